// Package transport defines the capability surface the rest of the service
// uses to talk to whichever WhatsApp transport is active. The implementation
// is chosen once per process from configuration; callers never branch on a
// transport mode themselves, they probe capabilities.
package transport

import (
	"context"
	"errors"
)

// ErrUnavailable covers network errors, timeouts and non-2xx responses from
// the upstream transport.
var ErrUnavailable = errors.New("transport unavailable")

// ErrUnsupportedCapability is returned when a call needs a feature the active
// transport does not provide (for example reactions on the bridge).
var ErrUnsupportedCapability = errors.New("capability not supported by active transport")

// Capability names a feature a transport may provide.
type Capability string

const (
	CapText      Capability = "text"
	CapMedia     Capability = "media"
	CapReaction  Capability = "reaction"
	CapTemplate  Capability = "template"
	CapDirectory Capability = "directory"
	CapChatAdmin Capability = "chat_admin"
)

// SendResult is what a transport reports back for an accepted message.
type SendResult struct {
	MessageID string `json:"message_id"`
	ChatJID   string `json:"chat_jid"`
}

// Record is the transport-native message shape, shared by the bridge message
// listing and the inbound webhook body.
type Record struct {
	ID            string `json:"id"`
	ChatJID       string `json:"chat_jid"`
	Sender        string `json:"sender"`
	SenderName    string `json:"sender_name"`
	Content       string `json:"content"`
	ContentType   string `json:"content_type"`
	Timestamp     string `json:"timestamp"`
	IsFromMe      bool   `json:"is_from_me"`
	ReplyToID     string `json:"reply_to_id,omitempty"`
	MediaURL      string `json:"media_url,omitempty"`
	MediaBase64   string `json:"media_base64,omitempty"`
	MediaFilename string `json:"media_filename,omitempty"`
	MediaPath     string `json:"media_path,omitempty"`
}

// Chat is one entry of the transport's chat directory listing.
type Chat struct {
	JID                   string `json:"jid"`
	Name                  string `json:"name"`
	Phone                 string `json:"phone"`
	LastMessage           string `json:"last_message"`
	LastMessageTime       string `json:"last_message_time"`
	LastMessageIsFromMe   bool   `json:"last_message_is_from_me"`
	LastMessageSenderName string `json:"last_message_sender_name"`
	AssignedTo            string `json:"assigned_to"`
	PhotoURL              string `json:"photo_url"`
}

// Transport is the minimal send surface every implementation provides.
type Transport interface {
	Name() string
	Capabilities() []Capability
	SendText(ctx context.Context, to, message, senderName string) (SendResult, error)
	SendFile(ctx context.Context, to, fileURL, filename, caption, senderName string) (SendResult, error)
}

// ReactionSender is implemented by transports that can react to a message.
type ReactionSender interface {
	SendReaction(ctx context.Context, to, targetMessageID, emoji string) (SendResult, error)
}

// TemplateSender is implemented by transports that can dispatch vendor
// template messages.
type TemplateSender interface {
	SendTemplate(ctx context.Context, to, template string, params []string) (SendResult, error)
}

// Directory is implemented by transports that expose a chat listing.
type Directory interface {
	Chats(ctx context.Context) ([]Chat, error)
	Messages(ctx context.Context, jid string, limit int) ([]Record, error)
}

// Supports reports whether t advertises the given capability.
func Supports(t Transport, c Capability) bool {
	for _, have := range t.Capabilities() {
		if have == c {
			return true
		}
	}
	return false
}
