// Package assets stores uploaded course media (thumbnails, lecture videos and
// resources) in S3-compatible storage or Cloudinary.
package assets

import (
	"context"
	"errors"
	"strings"

	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
)

// Kind selects the folder and resource type of an upload.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindRaw   Kind = "raw"
)

var ErrNotConfigured = errors.New("asset storage is not configured")

// Asset is the stored location of an upload.
type Asset struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

// Store persists bytes and returns a public URL for them.
type Store interface {
	Store(ctx context.Context, data []byte, kind Kind, filename string) (*Asset, error)
	Delete(ctx context.Context, id string, kind Kind) error
}

// NewStoreFromEnv picks the backend from ASSET_STORE ("s3" or "cloudinary").
func NewStoreFromEnv(ctx context.Context) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(env.GetEnv("ASSET_STORE", ""))) {
	case "s3":
		cfg, err := LoadS3Config()
		if err != nil {
			return nil, err
		}
		return NewS3Store(ctx, cfg)
	case "cloudinary":
		return NewCloudinaryStore(env.GetEnv("CLOUDINARY_URL", ""))
	default:
		return nil, ErrNotConfigured
	}
}
