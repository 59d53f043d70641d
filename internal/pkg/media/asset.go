package media

import (
	"errors"
	"fmt"
)

// Kind identifies which gallery of a business an asset belongs to.
type Kind string

const (
	KindLogo  Kind = "logo"
	KindPhoto Kind = "photo"
	KindMenu  Kind = "menu"
)

// IsGallery reports whether the kind is one of the ordered image collections.
func (k Kind) IsGallery() bool {
	return k == KindPhoto || k == KindMenu
}

// ParseKind converts a form value into a Kind.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindLogo, KindPhoto, KindMenu:
		return Kind(raw), nil
	default:
		return "", fmt.Errorf("unknown media kind %q", raw)
	}
}

// LocalFile is a file staged on local disk that has not been uploaded yet.
type LocalFile struct {
	Path        string `json:"path"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// Asset is either a persisted remote image (ID set) or a pending local one (Local set).
type Asset struct {
	ID          uint       `json:"id,omitempty"`
	URL         string     `json:"url,omitempty"`
	Local       *LocalFile `json:"local,omitempty"`
	SortOrder   int        `json:"sort_order"`
	Description string     `json:"description"`
}

var (
	ErrAmbiguousAsset = errors.New("asset has both an id and a local file")
	ErrEmptyAsset     = errors.New("asset has neither an id nor a local file")
)

// IsPersisted reports whether the asset already exists in the remote store.
func (a Asset) IsPersisted() bool {
	return a.ID != 0 && a.Local == nil
}

// IsPending reports whether the asset still has to be uploaded.
func (a Asset) IsPending() bool {
	return a.ID == 0 && a.Local != nil
}

// Validate enforces the id XOR local-file invariant.
func (a Asset) Validate() error {
	switch {
	case a.ID != 0 && a.Local != nil:
		return ErrAmbiguousAsset
	case a.ID == 0 && a.Local == nil:
		return ErrEmptyAsset
	}
	return nil
}

// Set is the complete media state of one business.
type Set struct {
	Logo   *Asset  `json:"logo,omitempty"`
	Photos []Asset `json:"photos"`
	Menu   []Asset `json:"menu"`
}

// Validate checks every asset in the set.
func (s Set) Validate() error {
	if s.Logo != nil {
		if err := s.Logo.Validate(); err != nil {
			return fmt.Errorf("logo: %w", err)
		}
	}
	for i, a := range s.Photos {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("photos[%d]: %w", i, err)
		}
	}
	for i, a := range s.Menu {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("menu[%d]: %w", i, err)
		}
	}
	return nil
}

// Gallery returns the collection for a gallery kind.
func (s Set) Gallery(kind Kind) []Asset {
	switch kind {
	case KindPhoto:
		return s.Photos
	case KindMenu:
		return s.Menu
	default:
		return nil
	}
}
