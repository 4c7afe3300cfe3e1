package assets

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

const (
	ThumbnailWidth  = 1280
	ThumbnailHeight = 720
)

// NormalizeThumbnail crops an uploaded image to a 16:9 JPEG of the catalogue
// thumbnail size.
func NormalizeThumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode thumbnail: %w", err)
	}

	thumb := imaging.Fill(img, ThumbnailWidth, ThumbnailHeight, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
