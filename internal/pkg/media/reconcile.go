package media

import "sort"

// Upload is a pending file that has to be added to a gallery.
type Upload struct {
	File        LocalFile `json:"file"`
	SortOrder   int       `json:"sort_order"`
	Description string    `json:"description"`
}

// Update carries the mutable fields of a persisted asset.
type Update struct {
	ID          uint   `json:"id"`
	SortOrder   int    `json:"sort_order"`
	Description string `json:"description"`
}

// KindDiff is the delta for a single gallery.
type KindDiff struct {
	ToAdd    []Upload `json:"to_add"`
	ToUpdate []Update `json:"to_update"`
	ToDelete []uint   `json:"to_delete"`
}

// Empty reports whether nothing at all has to be sent for the gallery.
func (d KindDiff) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToUpdate) == 0 && len(d.ToDelete) == 0
}

// Diff is the combined delta of a business media set.
type Diff struct {
	Photos KindDiff   `json:"photos"`
	Menu   KindDiff   `json:"menu"`
	Logo   *LocalFile `json:"logo,omitempty"`
}

// Gallery returns the delta for a gallery kind.
func (d Diff) Gallery(kind Kind) KindDiff {
	if kind == KindMenu {
		return d.Menu
	}
	return d.Photos
}

// Reconcile computes the delta that turns previous into current.
// Every persisted asset of current is reported as an update, changed or not.
func Reconcile(previous, current []Asset) KindDiff {
	kept := make(map[uint]struct{}, len(current))
	diff := KindDiff{
		ToAdd:    []Upload{},
		ToUpdate: []Update{},
		ToDelete: []uint{},
	}

	for _, a := range current {
		switch {
		case a.IsPersisted():
			if _, dup := kept[a.ID]; dup {
				continue
			}
			kept[a.ID] = struct{}{}
			diff.ToUpdate = append(diff.ToUpdate, Update{
				ID:          a.ID,
				SortOrder:   a.SortOrder,
				Description: a.Description,
			})
		case a.IsPending():
			diff.ToAdd = append(diff.ToAdd, Upload{
				File:        *a.Local,
				SortOrder:   a.SortOrder,
				Description: a.Description,
			})
		}
	}

	seen := make(map[uint]struct{}, len(previous))
	for _, a := range previous {
		if a.ID == 0 {
			continue
		}
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		if _, ok := kept[a.ID]; !ok {
			diff.ToDelete = append(diff.ToDelete, a.ID)
		}
	}

	return diff
}

// ReconcileSet runs Reconcile for both galleries and resolves the logo.
// A persisted logo is never re-sent; only a pending one is uploaded.
func ReconcileSet(previous, current Set) Diff {
	d := Diff{
		Photos: Reconcile(previous.Photos, current.Photos),
		Menu:   Reconcile(previous.Menu, current.Menu),
	}
	if current.Logo != nil && current.Logo.IsPending() {
		logo := *current.Logo.Local
		d.Logo = &logo
	}
	return d
}

// IsNoop reports whether pushing the diff would leave previous unchanged.
// Updates only count when their sort order or description differs from previous.
func (d Diff) IsNoop(previous Set) bool {
	if d.Logo != nil {
		return false
	}
	return d.Photos.isNoop(previous.Photos) && d.Menu.isNoop(previous.Menu)
}

func (d KindDiff) isNoop(previous []Asset) bool {
	if len(d.ToAdd) > 0 || len(d.ToDelete) > 0 {
		return false
	}
	byID := make(map[uint]Asset, len(previous))
	for _, a := range previous {
		byID[a.ID] = a
	}
	for _, u := range d.ToUpdate {
		prev, ok := byID[u.ID]
		if !ok || prev.SortOrder != u.SortOrder || prev.Description != u.Description {
			return false
		}
	}
	return true
}

// Apply plays a gallery delta onto previous and returns the resulting collection
// ordered by sort order. Added assets come back as pending entries.
func Apply(previous []Asset, d KindDiff) []Asset {
	deleted := make(map[uint]struct{}, len(d.ToDelete))
	for _, id := range d.ToDelete {
		deleted[id] = struct{}{}
	}
	updates := make(map[uint]Update, len(d.ToUpdate))
	for _, u := range d.ToUpdate {
		updates[u.ID] = u
	}

	out := make([]Asset, 0, len(previous)+len(d.ToAdd))
	for _, a := range previous {
		if _, gone := deleted[a.ID]; gone {
			continue
		}
		if u, ok := updates[a.ID]; ok {
			a.SortOrder = u.SortOrder
			a.Description = u.Description
		}
		out = append(out, a)
	}
	for _, up := range d.ToAdd {
		file := up.File
		out = append(out, Asset{
			Local:       &file,
			SortOrder:   up.SortOrder,
			Description: up.Description,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SortOrder < out[j].SortOrder
	})
	return out
}
