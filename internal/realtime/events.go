// Package realtime fans message events out to connected clients and
// downstream consumers with retry on partial failure.
package realtime

import (
	"encoding/json"

	"whatsapp-crm-sync/internal/models"
)

// Event names carried on the wire.
const (
	EventChatUpdate    = "whatsapp_chat_update"
	EventLegacyMessage = "whatsapp_message"
)

// ChatDelta is the summary refresh sent alongside a new message so list
// views update without refetching.
type ChatDelta struct {
	JID                 string `json:"jid"`
	LastMessage         string `json:"last_message"`
	LastMessageTime     string `json:"last_message_time"`
	LastMessageIsFromMe bool   `json:"last_message_is_from_me"`
	SenderName          string `json:"sender_name,omitempty"`
}

// ChatUpdate is the primary event published for every synced message.
type ChatUpdate struct {
	Type    string                   `json:"type"`
	ChatJID string                   `json:"chat_jid"`
	Phone   string                   `json:"phone,omitempty"`
	Message *models.CanonicalMessage `json:"message"`
	Chat    *ChatDelta               `json:"chat"`
}

// LegacyMessage is the older phone-only notification kept for consumers
// that predate ChatUpdate. It carries no message content.
type LegacyMessage struct {
	Type  string `json:"type"`
	Phone string `json:"phone"`
}

// NewChatUpdate builds the event pair for a freshly synced message: the full
// chat update plus the legacy notification, both pre-marshalled.
func NewChatUpdate(chatJID, phone string, msg models.CanonicalMessage, senderName string) (primary, legacy []byte) {
	update := ChatUpdate{
		Type:    EventChatUpdate,
		ChatJID: chatJID,
		Phone:   phone,
		Message: &msg,
		Chat: &ChatDelta{
			JID:                 chatJID,
			LastMessage:         msg.Body,
			LastMessageTime:     msg.CreatedAt,
			LastMessageIsFromMe: msg.Direction == models.DirectionOutgoing,
			SenderName:          senderName,
		},
	}
	primary, _ = json.Marshal(update)
	if phone != "" {
		legacy, _ = json.Marshal(LegacyMessage{Type: EventLegacyMessage, Phone: phone})
	}
	return primary, legacy
}
