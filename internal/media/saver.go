package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog/log"
)

const thumbnailWidth = 320

// Saver persists inbound attachment payloads to the local media directory
// and mirrors them into the archive when one is configured.
type Saver struct {
	dir     string
	archive *Archive
}

// NewSaver builds a saver over the media directory. archive may be nil.
func NewSaver(dir string, archive *Archive) (*Saver, error) {
	if dir == "" {
		return nil, fmt.Errorf("media directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &Saver{dir: dir, archive: archive}, nil
}

// SaveBase64 decodes and stores an attachment payload, returning the opaque
// token it is now addressable by. The stored name is prefixed with a fresh
// UUID so colliding upstream filenames cannot overwrite each other.
func (s *Saver) SaveBase64(ctx context.Context, chatJID, filename, payload string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decode media payload: %w", err)
	}
	return s.Save(ctx, chatJID, filename, data)
}

// Save stores raw attachment bytes and returns the token.
func (s *Saver) Save(ctx context.Context, chatJID, filename string, data []byte) (string, error) {
	base := filepath.Base(filename)
	if base == "" || base == "." || base == "/" {
		base = "attachment"
	}
	token := uuid.New().String() + "_" + base

	path := filepath.Join(s.dir, token)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write media %s: %w", token, err)
	}

	if thumb, ok := s.thumbnail(data, token); ok {
		thumbPath := filepath.Join(s.dir, "thumb_"+token)
		if err := os.WriteFile(thumbPath, thumb, 0o644); err != nil {
			log.Warn().Err(err).Str("token", token).Msg("Failed to write thumbnail")
		}
	}

	if s.archive != nil {
		key := s.archive.ObjectKey(chatJID, token)
		if err := s.archive.Put(ctx, key, data, ContentTypeFor(token)); err != nil {
			log.Warn().Err(err).Str("token", token).Msg("Media archive upload failed")
		}
	}

	log.Debug().Str("token", token).Int("size", len(data)).Msg("Media stored")
	return token, nil
}

// thumbnail renders a scaled-down copy for jpeg and png images. Other
// content passes through without one.
func (s *Saver) thumbnail(data []byte, token string) ([]byte, bool) {
	ext := strings.ToLower(filepath.Ext(token))
	if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
		return nil, false
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	small := resize.Resize(thumbnailWidth, 0, img, resize.Lanczos3)

	var buf bytes.Buffer
	if ext == ".png" {
		err = png.Encode(&buf, small)
	} else {
		err = jpeg.Encode(&buf, small, &jpeg.Options{Quality: 80})
	}
	if err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}
