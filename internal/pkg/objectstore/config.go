package objectstore

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/ManuelReschke/ListingHub/internal/pkg/env"
)

const (
	DriverLocal = "local"
	DriverS3    = "s3"
)

// Config holds object store configuration
type Config struct {
	Driver          string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	// PublicBaseURL prefixes object keys in public URLs.
	PublicBaseURL string
	// LocalRoot is the directory used by the local driver.
	LocalRoot string
	// CreateBucket allows creating a missing bucket outside prod.
	CreateBucket bool
}

// LoadConfig loads object store configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Driver:          strings.ToLower(env.GetEnv("OBJECT_STORE_DRIVER", DriverLocal)),
		AccessKeyID:     env.GetEnv("OBJECT_STORE_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("OBJECT_STORE_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("OBJECT_STORE_REGION", "us-east-1"),
		BucketName:      env.GetEnv("OBJECT_STORE_BUCKET", ""),
		EndpointURL:     env.GetEnv("OBJECT_STORE_ENDPOINT_URL", ""),
		PublicBaseURL:   env.GetEnv("OBJECT_STORE_PUBLIC_URL", "/media"),
		LocalRoot:       env.GetEnv("OBJECT_STORE_LOCAL_ROOT", "./uploads"),
		CreateBucket:    !strings.EqualFold(env.GetEnv("APP_ENV", "dev"), "prod"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Driver {
	case DriverLocal:
		if c.LocalRoot == "" {
			return errors.New("OBJECT_STORE_LOCAL_ROOT is required for the local driver")
		}
	case DriverS3:
		if c.AccessKeyID == "" {
			return errors.New("OBJECT_STORE_ACCESS_KEY_ID is required for the s3 driver")
		}
		if c.SecretAccessKey == "" {
			return errors.New("OBJECT_STORE_SECRET_ACCESS_KEY is required for the s3 driver")
		}
		if c.BucketName == "" {
			return errors.New("OBJECT_STORE_BUCKET is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown OBJECT_STORE_DRIVER %q", c.Driver)
	}
	return nil
}

// BusinessKey builds the object key for a business image rendition.
// Format: businesses/{id}/{kind}/{name}.{ext}
func BusinessKey(businessID uint, kind, name, ext string) string {
	return path.Join("businesses", fmt.Sprint(businessID), kind, name+"."+strings.TrimPrefix(ext, "."))
}

func publicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

// contentType returns the MIME type based on file extension
func contentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// PublicPath is the route prefix the app serves local objects under, or ""
// when PublicBaseURL points at another host.
func (c *Config) PublicPath() string {
	if !strings.HasPrefix(c.PublicBaseURL, "/") {
		return ""
	}
	return "/" + strings.Trim(c.PublicBaseURL, "/")
}
