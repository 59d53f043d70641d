package imageprocessor

import (
	"bytes"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/rwcarlsen/goexif/exif"
)

// CaptureTime reads the EXIF capture timestamp of a JPEG or TIFF upload.
// Images without EXIF data return nil.
func CaptureTime(raw []byte) *time.Time {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil
	}
	dt, err := x.DateTime()
	if err != nil {
		log.Debugf("[ImageProcessor] EXIF without capture time: %v", err)
		return nil
	}
	if dt.IsZero() || dt.After(time.Now().Add(24*time.Hour)) {
		return nil
	}
	return &dt
}
