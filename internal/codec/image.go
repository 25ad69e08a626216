// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// IMAGE NORMALIZATION
// =============================================================================

// MediaTypePNG is the single format pasted images are normalized to.
const MediaTypePNG = "image/png"

// DefaultMaxImageBytes bounds a normalized image payload (15 MiB).
const DefaultMaxImageBytes = 15 * 1024 * 1024

// ErrImageTooLarge is returned when an image exceeds the payload limit.
var ErrImageTooLarge = errors.New("image exceeds size limit")

// imageExtensions maps file extensions the paste path recognizes.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

// NormalizeImage decodes a raster image in any supported format and
// re-encodes it as PNG. PNG is lossless, so the decoded pixels are preserved
// exactly. maxBytes <= 0 selects DefaultMaxImageBytes.
func NormalizeImage(raw []byte, maxBytes int) (model.Image, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	if len(raw) == 0 {
		return model.Image{}, &EncodingError{Err: errors.New("empty image buffer")}
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return model.Image{}, &EncodingError{Err: fmt.Errorf("decode image: %w", err)}
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return model.Image{}, &EncodingError{Err: fmt.Errorf("re-encode %s as png: %w", format, err)}
	}
	if buf.Len() > maxBytes {
		return model.Image{}, &EncodingError{Err: fmt.Errorf("%w: %d bytes (max %d)", ErrImageTooLarge, buf.Len(), maxBytes)}
	}

	return model.Image{MediaType: MediaTypePNG, Data: buf.Bytes()}, nil
}

// LoadImageFile reads an image from disk and normalizes it.
func LoadImageFile(path string, maxBytes int) (model.Image, error) {
	path = expandHome(strings.TrimSpace(path))
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.Image{}, &EncodingError{Err: fmt.Errorf("read image: %w", err)}
	}
	return NormalizeImage(raw, maxBytes)
}

// LooksLikeImagePath reports whether s names an existing file with an image
// extension. Used to turn a pasted path into an image paste.
func LooksLikeImagePath(s string) bool {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	if s == "" || strings.ContainsAny(s, "\n\r") {
		return false
	}
	if !imageExtensions[strings.ToLower(filepath.Ext(s))] {
		return false
	}
	info, err := os.Stat(expandHome(s))
	return err == nil && info.Mode().IsRegular()
}

// ImageDimensions returns the pixel size of an encoded image without decoding
// the full raster.
func ImageDimensions(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

func expandHome(path string) string {
	path = strings.Trim(path, `"'`)
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
