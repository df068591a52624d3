// Package media stores, serves and archives message attachments. Attachments
// are addressed by opaque filename tokens only; transport-internal URLs never
// reach a client.
package media

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"whatsapp-crm-sync/internal/transport"
)

var (
	// ErrNotFound means no stored or upstream copy exists for the token.
	ErrNotFound = errors.New("media not found")
	// ErrBadToken means the token is empty or tries to escape the media dir.
	ErrBadToken = errors.New("invalid media token")
)

// Fetcher retrieves media from the upstream transport by filename.
type Fetcher interface {
	Media(ctx context.Context, filename string) ([]byte, string, error)
}

// Proxy resolves media tokens to file contents, checking local storage first
// and falling back to the upstream transport.
type Proxy struct {
	dir     string
	fetcher Fetcher
}

// NewProxy builds a proxy over the local media directory. fetcher may be nil
// when the transport cannot serve media.
func NewProxy(dir string, fetcher Fetcher) (*Proxy, error) {
	if dir == "" {
		return nil, fmt.Errorf("media directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &Proxy{dir: dir, fetcher: fetcher}, nil
}

// ValidateToken rejects tokens that are empty or contain path traversal.
func ValidateToken(token string) error {
	if token == "" || token == "." || token == ".." {
		return ErrBadToken
	}
	if strings.ContainsAny(token, "/\\") || strings.Contains(token, "..") {
		return ErrBadToken
	}
	return nil
}

// Get returns the bytes and content type for a media token.
func (p *Proxy) Get(ctx context.Context, token string) ([]byte, string, error) {
	if err := ValidateToken(token); err != nil {
		return nil, "", err
	}

	path := filepath.Join(p.dir, token)
	if data, err := os.ReadFile(path); err == nil {
		return data, ContentTypeFor(token), nil
	} else if !os.IsNotExist(err) {
		return nil, "", fmt.Errorf("read media %s: %w", token, err)
	}

	if p.fetcher == nil {
		return nil, "", ErrNotFound
	}
	data, contentType, err := p.fetcher.Media(ctx, token)
	if err != nil {
		if errors.Is(err, transport.ErrUnavailable) {
			log.Warn().Err(err).Str("token", token).Msg("Upstream media fetch failed")
		}
		return nil, "", ErrNotFound
	}
	if contentType == "" {
		contentType = ContentTypeFor(token)
	}
	return data, contentType, nil
}

// ContentTypeFor guesses a content type from the token's extension.
func ContentTypeFor(token string) string {
	if ct := mime.TypeByExtension(filepath.Ext(token)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
