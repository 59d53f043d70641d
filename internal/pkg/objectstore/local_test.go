package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorePutDelete(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(root, "/media/")
	require.NoError(t, err)
	ctx := context.Background()

	key := BusinessKey(12, "photo", "abc", ".jpg")
	assert.Equal(t, "businesses/12/photo/abc.jpg", key)

	require.NoError(t, s.Put(ctx, key, strings.NewReader("data"), 4, ""))
	raw, err := os.ReadFile(filepath.Join(root, "businesses", "12", "photo", "abc.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(raw))
	assert.Equal(t, "/media/businesses/12/photo/abc.jpg", s.URL(key))

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key), "deleting twice is fine")
	_, err = os.Stat(filepath.Join(root, "businesses", "12", "photo", "abc.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "/media")
	require.NoError(t, err)
	assert.Error(t, s.Put(context.Background(), "../escape.jpg", strings.NewReader("x"), 1, ""))
	assert.Error(t, s.Delete(context.Background(), ""))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"local ok", Config{Driver: DriverLocal, LocalRoot: "./uploads"}, ""},
		{"s3 needs key", Config{Driver: DriverS3, BucketName: "b"}, "OBJECT_STORE_ACCESS_KEY_ID"},
		{"s3 needs bucket", Config{Driver: DriverS3, AccessKeyID: "a", SecretAccessKey: "s"}, "OBJECT_STORE_BUCKET"},
		{"unknown driver", Config{Driver: "ftp"}, "unknown OBJECT_STORE_DRIVER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfigPublicPath(t *testing.T) {
	assert.Equal(t, "/media", (&Config{PublicBaseURL: "/media/"}).PublicPath())
	assert.Equal(t, "", (&Config{PublicBaseURL: "https://cdn.example.com"}).PublicPath())
	assert.Equal(t, "businesses/7/photo/a.jpg", BusinessKey(7, "photo", "a", ".jpg"))
}
