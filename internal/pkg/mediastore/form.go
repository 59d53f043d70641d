package mediastore

import (
	"fmt"
	"mime/multipart"
	"regexp"
	"sort"
	"strconv"

	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
)

// NewImage is one new_images[i] entry of the multipart form.
type NewImage struct {
	Index       int
	File        *multipart.FileHeader
	Kind        media.Kind
	Description string
	SortOrder   int
}

// ImageUpdate is one image_updates[i] entry.
type ImageUpdate struct {
	Index       int
	ID          uint
	Description string
	SortOrder   int
}

// Request is a decoded media push for one business.
type Request struct {
	New     []NewImage
	Updates []ImageUpdate
	Deleted []uint
	Logo    *multipart.FileHeader
}

// Empty reports whether the request changes nothing.
func (r Request) Empty() bool {
	return len(r.New) == 0 && len(r.Updates) == 0 && len(r.Deleted) == 0 && r.Logo == nil
}

var indexedField = regexp.MustCompile(`^(new_images|image_updates)\[(\d+)\]\[(\w+)\]$`)
var deletedField = regexp.MustCompile(`^deleted_image_ids\[(\d+)\]$`)

// ParseForm decodes the indexed multipart layout written by media.EncodeMultipart.
// Entries come back ordered by index; malformed values are reported as
// media.ItemError entries and skipped.
func ParseForm(form *multipart.Form) (Request, []media.ItemError) {
	var req Request
	var errs []media.ItemError

	news := map[int]*NewImage{}
	updates := map[int]*ImageUpdate{}
	deleted := map[int]uint{}

	newAt := func(i int) *NewImage {
		if news[i] == nil {
			news[i] = &NewImage{Index: i}
		}
		return news[i]
	}
	updateAt := func(i int) *ImageUpdate {
		if updates[i] == nil {
			updates[i] = &ImageUpdate{Index: i}
		}
		return updates[i]
	}

	for key, values := range form.Value {
		if len(values) == 0 {
			continue
		}
		v := values[0]
		if m := deletedField.FindStringSubmatch(key); m != nil {
			i, _ := strconv.Atoi(m[1])
			id, err := strconv.ParseUint(v, 10, 64)
			if err != nil || id == 0 {
				errs = append(errs, media.ItemError{Field: key, Message: "invalid image id"})
				continue
			}
			deleted[i] = uint(id)
			continue
		}
		m := indexedField.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		i, _ := strconv.Atoi(m[2])
		switch m[1] {
		case "new_images":
			n := newAt(i)
			switch m[3] {
			case "kind":
				if kind, err := media.ParseKind(v); err == nil && kind.IsGallery() {
					n.Kind = kind
				}
			case "description":
				n.Description = v
			case "sort_order":
				n.SortOrder, _ = strconv.Atoi(v)
			}
		case "image_updates":
			u := updateAt(i)
			switch m[3] {
			case "id":
				id, err := strconv.ParseUint(v, 10, 64)
				if err != nil {
					errs = append(errs, media.ItemError{Field: key, Message: "invalid image id"})
					continue
				}
				u.ID = uint(id)
			case "description":
				u.Description = v
			case "sort_order":
				u.SortOrder, _ = strconv.Atoi(v)
			}
		}
	}

	for key, fhs := range form.File {
		if len(fhs) == 0 {
			continue
		}
		if key == "logo" {
			req.Logo = fhs[0]
			continue
		}
		if m := indexedField.FindStringSubmatch(key); m != nil && m[1] == "new_images" && m[3] == "file" {
			i, _ := strconv.Atoi(m[2])
			newAt(i).File = fhs[0]
		}
	}

	for _, i := range sortedKeys(news) {
		n := news[i]
		field := fmt.Sprintf("new_images[%d]", i)
		switch {
		case n.File == nil:
			errs = append(errs, media.ItemError{Field: field, Message: "file is required"})
		case n.Kind == "":
			errs = append(errs, media.ItemError{Field: field, Message: "kind must be photo or menu"})
		default:
			req.New = append(req.New, *n)
		}
	}
	for _, i := range sortedKeys(updates) {
		u := updates[i]
		if u.ID == 0 {
			errs = append(errs, media.ItemError{Field: fmt.Sprintf("image_updates[%d]", i), Message: "id is required"})
			continue
		}
		req.Updates = append(req.Updates, *u)
	}
	for _, i := range sortedKeys(deleted) {
		req.Deleted = append(req.Deleted, deleted[i])
	}
	return req, errs
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
