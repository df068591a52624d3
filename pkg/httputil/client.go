package httputil

import (
	"time"

	"github.com/go-resty/resty/v2"
)

// Upstream calls fall into two latency classes: short status/metadata
// requests and long media transfers. Both are bounded; a call exceeding its
// timeout is a transport failure, never a hang.
const (
	MetadataTimeout = 10 * time.Second
	MediaTimeout    = 60 * time.Second
)

// NewClient returns a resty client for status and metadata calls.
func NewClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(MetadataTimeout)
}

// NewMediaClient returns a resty client sized for binary transfers.
func NewMediaClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(MediaTimeout)
}
