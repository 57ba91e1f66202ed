// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package clocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"
)

// MediaUploader uploads a blob to the homeserver media store and
// returns its mxc:// URI. messaging.Session satisfies it.
type MediaUploader interface {
	UploadMedia(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

// Presentation is the rendered form of a clock: either an uploaded
// dial image with a caption, or a plain text line for sizes without a
// dial asset.
type Presentation struct {
	ImageURI string
	Caption  string
	Text     string
}

// IsImage reports whether the presentation carries a dial image.
func (p Presentation) IsImage() bool {
	return p.ImageURI != ""
}

// manifest is the decoded asset manifest. The manifest file is JSONC
// so asset sets can carry comments.
type manifest struct {
	Sizes   []int  `json:"sizes"`
	Pattern string `json:"pattern"`
}

// Renderer turns a clock into a Presentation. Dial PNGs live in an
// asset directory described by manifest.jsonc; each upload is keyed
// by a blake3 hash of the file contents so a dial that has already
// been uploaded reuses its mxc:// URI instead of hitting the media
// store again.
type Renderer struct {
	uploader MediaUploader
	assetDir string
	sizes    map[int]bool
	pattern  string
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[[32]byte]string
}

// NewRenderer loads manifest.jsonc from assetDir and returns a
// renderer uploading through the given uploader. An empty assetDir is
// allowed: every render then falls back to text.
func NewRenderer(assetDir string, uploader MediaUploader, logger *slog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	renderer := &Renderer{
		uploader: uploader,
		assetDir: assetDir,
		sizes:    make(map[int]bool),
		pattern:  "clock_%d_%d.png",
		logger:   logger,
		cache:    make(map[[32]byte]string),
	}
	if assetDir == "" {
		return renderer, nil
	}

	raw, err := os.ReadFile(filepath.Join(assetDir, "manifest.jsonc"))
	if err != nil {
		return nil, fmt.Errorf("clocks: reading asset manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(jsonc.ToJSON(raw), &m); err != nil {
		return nil, fmt.Errorf("clocks: decoding asset manifest: %w", err)
	}
	for _, size := range m.Sizes {
		renderer.sizes[size] = true
	}
	if m.Pattern != "" {
		renderer.pattern = m.Pattern
	}
	return renderer, nil
}

// Render produces the clock's presentation. Sizes without a dial asset
// return ErrNoDialImage; callers are expected to fall back to
// RenderText rather than surface the error.
func (r *Renderer) Render(ctx context.Context, clock Clock) (Presentation, error) {
	if !r.sizes[clock.Size] {
		return Presentation{}, fmt.Errorf("%w %d", ErrNoDialImage, clock.Size)
	}
	filename := fmt.Sprintf(r.pattern, clock.Size, clock.Position)
	data, err := os.ReadFile(filepath.Join(r.assetDir, filename))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Presentation{}, fmt.Errorf("%w %d: missing %s", ErrNoDialImage, clock.Size, filename)
		}
		return Presentation{}, fmt.Errorf("clocks: reading dial %s: %w", filename, err)
	}

	uri, err := r.upload(ctx, filename, data)
	if err != nil {
		return Presentation{}, fmt.Errorf("clocks: uploading dial %s: %w", filename, err)
	}
	return Presentation{
		ImageURI: uri,
		Caption:  fmt.Sprintf("%s: %d/%d", clock.Name, clock.Position, clock.Size),
	}, nil
}

// RenderText is the fallback presentation: the clock's listing form.
// It never fails.
func (r *Renderer) RenderText(clock Clock) Presentation {
	return Presentation{Text: clock.String()}
}

// RenderOrText renders the clock, falling back to text when the size
// has no dial asset. The fallback is logged at debug, never returned
// as an error; only genuine failures (asset unreadable, upload
// refused) propagate.
func (r *Renderer) RenderOrText(ctx context.Context, clock Clock) (Presentation, error) {
	presentation, err := r.Render(ctx, clock)
	if err == nil {
		return presentation, nil
	}
	if errors.Is(err, ErrNoDialImage) {
		r.logger.Debug("no dial image, using text presentation",
			"tag", clock.Tag,
			"size", clock.Size,
		)
		return r.RenderText(clock), nil
	}
	return Presentation{}, err
}

// upload sends the dial to the media store unless an identical blob
// was uploaded before.
func (r *Renderer) upload(ctx context.Context, filename string, data []byte) (string, error) {
	key := blake3.Sum256(data)

	r.mu.Lock()
	uri, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return uri, nil
	}

	uri, err := r.uploader.UploadMedia(ctx, filename, "image/png", data)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cache[key] = uri
	r.mu.Unlock()
	return uri, nil
}
