// Package bridge implements the transport contract against a self-hosted
// WhatsApp bridge service. The bridge owns the live session; this client only
// speaks its HTTP API.
package bridge

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"whatsapp-crm-sync/internal/transport"
	"whatsapp-crm-sync/pkg/httputil"
)

// Client talks to the bridge HTTP API.
type Client struct {
	httpClient  *resty.Client
	mediaClient *resty.Client
}

// NewClient creates a bridge client for the given base URL.
func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("bridge baseURL cannot be empty")
	}
	log.Info().Str("baseURL", baseURL).Msg("Bridge client configured")
	return &Client{
		httpClient:  httputil.NewClient(baseURL),
		mediaClient: httputil.NewMediaClient(baseURL),
	}, nil
}

// Name identifies the transport.
func (c *Client) Name() string { return "bridge" }

// Capabilities lists what the bridge supports. Reactions and templates are
// deliberately absent: the bridge rejects both.
func (c *Client) Capabilities() []transport.Capability {
	return []transport.Capability{
		transport.CapText,
		transport.CapMedia,
		transport.CapDirectory,
		transport.CapChatAdmin,
	}
}

type sendRequest struct {
	Phone      string `json:"phone"`
	Message    string `json:"message,omitempty"`
	FileURL    string `json:"file_url,omitempty"`
	Filename   string `json:"filename,omitempty"`
	Caption    string `json:"caption,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
}

// SendText sends a plain text message. The "phone" field accepts a full JID
// as well, which preserves @lid and @g.us targets.
func (c *Client) SendText(ctx context.Context, to, message, senderName string) (transport.SendResult, error) {
	var result transport.SendResult
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(sendRequest{Phone: to, Message: message, SenderName: senderName}).
		SetResult(&result).
		Post("/send")
	if err != nil {
		return transport.SendResult{}, fmt.Errorf("%w: send: %v", transport.ErrUnavailable, err)
	}
	if resp.IsError() {
		return transport.SendResult{}, fmt.Errorf("%w: send: status %s", transport.ErrUnavailable, resp.Status())
	}
	return result, nil
}

// SendFile sends a remotely hosted file. The bridge downloads fileURL itself,
// so the URL must be reachable from the bridge host.
func (c *Client) SendFile(ctx context.Context, to, fileURL, filename, caption, senderName string) (transport.SendResult, error) {
	var result transport.SendResult
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(sendRequest{Phone: to, FileURL: fileURL, Filename: filename, Caption: caption, SenderName: senderName}).
		SetResult(&result).
		Post("/send-file-url")
	if err != nil {
		return transport.SendResult{}, fmt.Errorf("%w: send-file-url: %v", transport.ErrUnavailable, err)
	}
	if resp.IsError() {
		return transport.SendResult{}, fmt.Errorf("%w: send-file-url: status %s", transport.ErrUnavailable, resp.Status())
	}
	return result, nil
}

// Chats returns the bridge's chat directory listing.
func (c *Client) Chats(ctx context.Context) ([]transport.Chat, error) {
	var chats []transport.Chat
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&chats).
		Get("/chats")
	if err != nil {
		return nil, fmt.Errorf("%w: chats: %v", transport.ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: chats: status %s", transport.ErrUnavailable, resp.Status())
	}
	return chats, nil
}

// Messages returns up to limit message records for a chat.
func (c *Client) Messages(ctx context.Context, jid string, limit int) ([]transport.Record, error) {
	var records []transport.Record
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&records).
		Get("/chats/" + url.PathEscape(jid) + "/messages")
	if err != nil {
		return nil, fmt.Errorf("%w: messages: %v", transport.ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: messages: status %s", transport.ErrUnavailable, resp.Status())
	}
	return records, nil
}

// Assign sets or clears the agent assigned to a chat. An empty user clears
// the assignment.
func (c *Client) Assign(ctx context.Context, jid, user string) error {
	body := map[string]any{"assigned_to": nil}
	if user != "" {
		body["assigned_to"] = user
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		Post("/chats/" + url.PathEscape(jid) + "/assign")
	if err != nil {
		return fmt.Errorf("%w: assign: %v", transport.ErrUnavailable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: assign: status %s", transport.ErrUnavailable, resp.Status())
	}
	return nil
}

// DeleteChat removes a chat and all its messages from the bridge store.
func (c *Client) DeleteChat(ctx context.Context, jid string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Delete("/chats/" + url.PathEscape(jid))
	if err != nil {
		return fmt.Errorf("%w: delete chat: %v", transport.ErrUnavailable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: delete chat: status %s", transport.ErrUnavailable, resp.Status())
	}
	return nil
}

// DeleteMessage removes a single message from the bridge store.
func (c *Client) DeleteMessage(ctx context.Context, jid, messageID string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Delete("/chats/" + url.PathEscape(jid) + "/messages/" + url.PathEscape(messageID))
	if err != nil {
		return fmt.Errorf("%w: delete message: %v", transport.ErrUnavailable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: delete message: status %s", transport.ErrUnavailable, resp.Status())
	}
	return nil
}

// MergeResult reports how many duplicate chats the bridge merged.
type MergeResult struct {
	OK     bool `json:"ok"`
	Merged int  `json:"merged"`
}

// MergeDuplicates merges chats that share the same phone number. The bridge
// walks its whole chat table for this, so it runs on the long-timeout client
// rather than the metadata one.
func (c *Client) MergeDuplicates(ctx context.Context) (MergeResult, error) {
	var result MergeResult
	resp, err := c.mediaClient.R().
		SetContext(ctx).
		SetResult(&result).
		Post("/chats/merge-duplicates")
	if err != nil {
		return MergeResult{}, fmt.Errorf("%w: merge-duplicates: %v", transport.ErrUnavailable, err)
	}
	if resp.IsError() {
		return MergeResult{}, fmt.Errorf("%w: merge-duplicates: status %s", transport.ErrUnavailable, resp.Status())
	}
	return result, nil
}

// ProfilePhoto returns the profile photo URL for a JID, empty when the
// contact has none.
func (c *Client) ProfilePhoto(ctx context.Context, jid string) (string, error) {
	var result struct {
		URL string `json:"url"`
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/chats/" + url.PathEscape(jid) + "/photo")
	if err != nil {
		return "", fmt.Errorf("%w: photo: %v", transport.ErrUnavailable, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: photo: status %s", transport.ErrUnavailable, resp.Status())
	}
	return result.URL, nil
}

// Media downloads a media file stored on the bridge by filename. It returns
// the raw bytes and the upstream content type.
func (c *Client) Media(ctx context.Context, filename string) ([]byte, string, error) {
	resp, err := c.mediaClient.R().
		SetContext(ctx).
		Get("/media/" + url.PathEscape(filename))
	if err != nil {
		return nil, "", fmt.Errorf("%w: media: %v", transport.ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("%w: media: status %s", transport.ErrUnavailable, resp.Status())
	}
	return resp.Body(), resp.Header().Get("Content-Type"), nil
}

// Status describes the bridge session state.
type Status struct {
	Connected bool   `json:"connected"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

// GetStatus reports whether the bridge has a live WhatsApp session.
func (c *Client) GetStatus(ctx context.Context) (Status, error) {
	var status Status
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&status).
		Get("/status")
	if err != nil {
		return Status{Connected: false, Error: err.Error()}, fmt.Errorf("%w: status: %v", transport.ErrUnavailable, err)
	}
	if resp.IsError() {
		return Status{Connected: false}, fmt.Errorf("%w: status: status %s", transport.ErrUnavailable, resp.Status())
	}
	return status, nil
}

// QR returns the current pairing code payload, empty once paired.
func (c *Client) QR(ctx context.Context) (string, error) {
	var result struct {
		QR    string `json:"qr"`
		Error string `json:"error,omitempty"`
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/qr")
	if err != nil {
		return "", fmt.Errorf("%w: qr: %v", transport.ErrUnavailable, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: qr: status %s", transport.ErrUnavailable, resp.Status())
	}
	return result.QR, nil
}
