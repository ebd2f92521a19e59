package fallback

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/maauso/thumbnailer/internal/fetch"
)

// Fetcher downloads a URL into memory.
type Fetcher interface {
	Fetch(ctx context.Context, url string, creds fetch.Credentials) ([]byte, error)
}

// PlatformThumbnail downloads the preview image the media platform already
// generated, and fits it into the thumbnail box.
type PlatformThumbnail struct {
	fetcher   Fetcher
	maxWidth  int
	maxHeight int
}

// NewPlatformThumbnail creates the preview download producer.
func NewPlatformThumbnail(f Fetcher, maxWidth, maxHeight int) *PlatformThumbnail {
	return &PlatformThumbnail{fetcher: f, maxWidth: maxWidth, maxHeight: maxHeight}
}

// Name implements Producer.
func (p *PlatformThumbnail) Name() string { return "platform_thumbnail" }

// Produce implements Producer.
func (p *PlatformThumbnail) Produce(ctx context.Context, in Input, scratch Scratch) (string, error) {
	if in.PreviewURL == "" || p.fetcher == nil {
		return "", ErrNotAvailable
	}

	data, err := p.fetcher.Fetch(ctx, in.PreviewURL, in.Credentials)
	if err != nil {
		return "", fmt.Errorf("download preview: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode preview: %w", err)
	}

	// Fit only shrinks; small previews keep their size.
	img = imaging.Fit(img, p.maxWidth, p.maxHeight, imaging.Lanczos)

	path := scratch.NewPath(Label, "jpg")
	if err := imaging.Save(img, path, imaging.JPEGQuality(85)); err != nil {
		scratch.Discard(path)
		return "", fmt.Errorf("save preview: %w", err)
	}
	return path, nil
}
