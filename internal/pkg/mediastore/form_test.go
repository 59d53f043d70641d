package mediastore

import (
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
)

func TestParseFormReadsClientLayout(t *testing.T) {
	photo := pngFile(t, "patio.png", 4, 4)
	menu := pngFile(t, "menu.png", 4, 4)
	logo := pngFile(t, "logo.png", 4, 4)

	form := formOf(t, media.Diff{
		Photos: media.KindDiff{
			ToAdd:    []media.Upload{{File: photo, SortOrder: 3, Description: "patio"}},
			ToUpdate: []media.Update{{ID: 7, SortOrder: 1, Description: "front"}},
			ToDelete: []uint{9},
		},
		Menu: media.KindDiff{
			ToAdd:    []media.Upload{{File: menu, SortOrder: 1}},
			ToDelete: []uint{11},
		},
		Logo: &logo,
	})

	req, errs := ParseForm(form)
	require.Empty(t, errs)

	require.Len(t, req.New, 2)
	assert.Equal(t, media.KindPhoto, req.New[0].Kind)
	assert.Equal(t, "patio", req.New[0].Description)
	assert.Equal(t, 3, req.New[0].SortOrder)
	assert.Equal(t, "patio.png", req.New[0].File.Filename)
	assert.Equal(t, media.KindMenu, req.New[1].Kind)
	assert.Equal(t, 1, req.New[1].Index)

	assert.Equal(t, []ImageUpdate{{Index: 0, ID: 7, SortOrder: 1, Description: "front"}}, req.Updates)
	assert.Equal(t, []uint{9, 11}, req.Deleted)
	require.NotNil(t, req.Logo)
	assert.Equal(t, "logo.png", req.Logo.Filename)
	assert.False(t, req.Empty())
}

func TestParseFormReportsBadEntries(t *testing.T) {
	form := &multipart.Form{
		Value: map[string][]string{
			"new_images[0][kind]":   {"logo"},
			"image_updates[0][id]":  {"abc"},
			"image_updates[1][id]":  {"5"},
			"deleted_image_ids[0]":  {"0"},
			"unrelated_field":       {"x"},
			"new_images[1][kind]":   {"photo"},
			"new_images[1][weight]": {"9"},
		},
		File: map[string][]*multipart.FileHeader{},
	}

	req, errs := ParseForm(form)

	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.Field] = true
	}
	assert.True(t, fields["new_images[0]"], "logo is not a gallery kind and the file is missing")
	assert.True(t, fields["new_images[1]"], "file missing")
	assert.True(t, fields["image_updates[0][id]"])
	assert.True(t, fields["image_updates[0]"])
	assert.True(t, fields["deleted_image_ids[0]"])
	assert.Empty(t, req.New)
	assert.Equal(t, []ImageUpdate{{Index: 1, ID: 5}}, req.Updates)
	assert.Empty(t, req.Deleted)
}
