package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

// SniffLen is the number of leading bytes http.DetectContentType looks at.
const SniffLen = 512

var (
	ErrExtension   = errors.New("only JPG, JPEG, PNG, GIF and WEBP images are supported")
	ErrScriptable  = errors.New("HTML, XML and SVG content is not allowed")
	ErrUnsupported = errors.New("file type is not supported")
	ErrTooLarge    = errors.New("file is too large")
)

var allowedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	// SVG stays out until there is a sanitizer
}

var allowedMime = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// ValidateImageBySniff checks the provided filename (extension) and the first bytes (head)
// against a whitelist of image types. Returns detected mime or an error.
func ValidateImageBySniff(filename string, head []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", ErrExtension
	}

	detected := http.DetectContentType(head)

	// Block obvious scriptable types regardless of extension
	if strings.HasPrefix(detected, "text/html") || strings.HasPrefix(detected, "application/xhtml") {
		return "", ErrScriptable
	}
	if strings.HasPrefix(detected, "text/xml") || strings.HasPrefix(detected, "application/xml") || detected == "image/svg+xml" {
		return "", ErrScriptable
	}

	if allowedMime[detected] {
		return detected, nil
	}
	return "", ErrUnsupported
}

// ValidateFileHeader opens a multipart file, enforces maxBytes and sniffs it.
func ValidateFileHeader(fh *multipart.FileHeader, maxBytes int64) (string, error) {
	if maxBytes > 0 && fh.Size > maxBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, fh.Size, maxBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, SniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return ValidateImageBySniff(fh.Filename, head[:n])
}
