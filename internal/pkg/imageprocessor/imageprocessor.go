package imageprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

// Bounding boxes per media kind
const (
	LogoMaxSize    = 512
	GalleryMaxSize = 1920
	MaxWorkers     = 3
	jpegQuality    = 85
	webpQuality    = 85
)

var ErrUndecodable = errors.New("image could not be decoded")

// throttle bounds concurrent decodes, full size images are memory heavy
var throttle = make(chan struct{}, MaxWorkers)

// Rendition is one encoded output of Normalize.
type Rendition struct {
	Ext         string
	ContentType string
	Data        []byte
}

// Result holds the primary rendition and its WebP sibling.
type Result struct {
	Primary Rendition
	WebP    *Rendition
	Width   int
	Height  int
	// TakenAt is the EXIF capture time of the source, if any.
	TakenAt *time.Time
}

// MaxSizeFor returns the bounding box for a media kind.
func MaxSizeFor(kind string) int {
	if kind == "logo" {
		return LogoMaxSize
	}
	return GalleryMaxSize
}

// Normalize decodes r honouring EXIF orientation, shrinks it into the kind's
// bounding box and re-encodes it. Logos stay PNG to keep transparency,
// gallery images become JPEG. Re-encoding drops all source metadata, only the
// capture time is kept on the Result. A failed WebP encode only drops the WebP.
func Normalize(r io.Reader, kind string) (*Result, error) {
	throttle <- struct{}{}
	defer func() { <-throttle }()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	img = fit(img, MaxSizeFor(kind))

	res := &Result{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
	if kind != "logo" {
		res.TakenAt = CaptureTime(raw)
	}
	var buf bytes.Buffer
	if kind == "logo" {
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("error encoding PNG: %w", err)
		}
		res.Primary = Rendition{Ext: ".png", ContentType: "image/png", Data: buf.Bytes()}
	} else {
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
			return nil, fmt.Errorf("error encoding JPEG: %w", err)
		}
		res.Primary = Rendition{Ext: ".jpg", ContentType: "image/jpeg", Data: buf.Bytes()}
	}

	if data, err := encodeWebP(img); err == nil {
		res.WebP = &Rendition{Ext: ".webp", ContentType: "image/webp", Data: data}
	}
	return res, nil
}

func fit(img image.Image, max int) image.Image {
	b := img.Bounds()
	if b.Dx() <= max && b.Dy() <= max {
		return img
	}
	return imaging.Fit(img, max, max, imaging.Lanczos)
}

func encodeWebP(img image.Image) ([]byte, error) {
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, webpQuality)
	if err != nil {
		return nil, fmt.Errorf("error creating encoder options: %w", err)
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, options); err != nil {
		return nil, fmt.Errorf("error encoding WebP image: %w", err)
	}
	return buf.Bytes(), nil
}
