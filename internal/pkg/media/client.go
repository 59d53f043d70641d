package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/ListingHub/internal/pkg/env"
)

// ItemError is a per-image failure reported by the media endpoint.
type ItemError struct {
	Field   string `json:"field"`
	ID      uint   `json:"id,omitempty"`
	Message string `json:"message"`
}

// Response is the body returned by the media endpoint.
type Response struct {
	Success bool        `json:"success"`
	Errors  []ItemError `json:"errors"`
}

// PushError is returned when the media endpoint answered but did not accept everything.
type PushError struct {
	Status int
	Items  []ItemError
}

func (e *PushError) Error() string {
	if len(e.Items) == 0 {
		return fmt.Sprintf("media push failed: status=%d", e.Status)
	}
	msgs := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		msgs = append(msgs, it.Field+": "+it.Message)
	}
	return fmt.Sprintf("media push failed: status=%d %s", e.Status, strings.Join(msgs, "; "))
}

// Pusher sends a media diff for a business record.
type Pusher interface {
	// Create pushes the media of a freshly created record.
	Create(ctx context.Context, recordID uint, diff Diff) error
	// Update pushes a reconcile diff for an existing record.
	Update(ctx context.Context, recordID uint, diff Diff) error
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	APIKey  string
}

// LoadConfig reads the media endpoint settings from the environment.
func LoadConfig() Config {
	timeout, err := time.ParseDuration(env.GetEnv("MEDIA_STORE_TIMEOUT", "60s"))
	if err != nil || timeout <= 0 {
		timeout = 60 * time.Second
	}
	return Config{
		BaseURL: strings.TrimRight(env.GetEnv("MEDIA_STORE_URL", "http://localhost:4000"), "/"),
		Timeout: timeout,
		APIKey:  strings.TrimSpace(env.GetEnv("MEDIA_STORE_API_KEY", env.GetEnv("SERVICE_API_KEY", ""))),
	}
}

// OwnerHeader carries the owner reference on media requests.
const OwnerHeader = "X-Owner-Ref"

type ownerKey struct{}

// WithOwner scopes media requests made with ctx to an owner.
func WithOwner(ctx context.Context, ownerRef string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerRef)
}

func OwnerFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ownerKey{}).(string)
	return v
}

// Client talks to the media endpoints over multipart HTTP.
type Client struct {
	BaseURL string
	// OwnerRef is used when the context carries no owner.
	OwnerRef   string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Create(ctx context.Context, recordID uint, diff Diff) error {
	return c.push(ctx, http.MethodPost, recordID, diff)
}

func (c *Client) Update(ctx context.Context, recordID uint, diff Diff) error {
	return c.push(ctx, http.MethodPatch, recordID, diff)
}

func (c *Client) push(ctx context.Context, method string, recordID uint, diff Diff) error {
	if recordID == 0 {
		return errors.New("record id is required")
	}

	body, contentType, err := EncodeMultipart(diff)
	if err != nil {
		return fmt.Errorf("encode media diff: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/businesses/%d/images", c.BaseURL, recordID)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	owner := OwnerFromContext(ctx)
	if owner == "" {
		owner = c.OwnerRef
	}
	if owner != "" {
		req.Header.Set(OwnerHeader, owner)
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var out Response
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode media response: %w", err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.Success || len(out.Errors) > 0 {
		return &PushError{Status: resp.StatusCode, Items: out.Errors}
	}
	return nil
}

// EncodeMultipart flattens a diff into the multipart layout of the media endpoint.
// Photos are numbered before menu images in new_images and image_updates.
func EncodeMultipart(diff Diff) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	idx := 0
	for _, kind := range []Kind{KindPhoto, KindMenu} {
		for _, up := range diff.Gallery(kind).ToAdd {
			prefix := fmt.Sprintf("new_images[%d]", idx)
			if err := writeFile(w, prefix+"[file]", up.File); err != nil {
				return nil, "", err
			}
			fields := map[string]string{
				prefix + "[kind]":        string(kind),
				prefix + "[description]": up.Description,
				prefix + "[sort_order]":  strconv.Itoa(up.SortOrder),
			}
			if err := writeFields(w, fields); err != nil {
				return nil, "", err
			}
			idx++
		}
	}

	idx = 0
	for _, kind := range []Kind{KindPhoto, KindMenu} {
		for _, u := range diff.Gallery(kind).ToUpdate {
			prefix := fmt.Sprintf("image_updates[%d]", idx)
			fields := map[string]string{
				prefix + "[id]":          strconv.FormatUint(uint64(u.ID), 10),
				prefix + "[description]": u.Description,
				prefix + "[sort_order]":  strconv.Itoa(u.SortOrder),
			}
			if err := writeFields(w, fields); err != nil {
				return nil, "", err
			}
			idx++
		}
	}

	idx = 0
	for _, kind := range []Kind{KindPhoto, KindMenu} {
		for _, id := range diff.Gallery(kind).ToDelete {
			key := fmt.Sprintf("deleted_image_ids[%d]", idx)
			if err := w.WriteField(key, strconv.FormatUint(uint64(id), 10)); err != nil {
				return nil, "", err
			}
			idx++
		}
	}

	if diff.Logo != nil {
		if err := writeFile(w, "logo", *diff.Logo); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func writeFields(w *multipart.Writer, fields map[string]string) error {
	// stable order keeps requests reproducible
	for _, suffix := range []string{"[id]", "[kind]", "[description]", "[sort_order]"} {
		for k, v := range fields {
			if strings.HasSuffix(k, suffix) {
				if err := w.WriteField(k, v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func writeFile(w *multipart.Writer, field string, f LocalFile) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Path, err)
	}
	defer src.Close()

	name := f.Filename
	if name == "" {
		name = filepath.Base(f.Path)
	}
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, strings.ReplaceAll(name, `"`, "")))
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, src)
	return err
}

// NoopPusher accepts every diff without doing anything.
type NoopPusher struct{}

func (NoopPusher) Create(context.Context, uint, Diff) error { return nil }
func (NoopPusher) Update(context.Context, uint, Diff) error { return nil }
