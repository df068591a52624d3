package models

// Direction says which side of the conversation originated a message.
type Direction string

const (
	DirectionIncoming Direction = "Incoming"
	DirectionOutgoing Direction = "Outgoing"
)

// ContentKind classifies a message payload.
type ContentKind string

const (
	ContentText     ContentKind = "text"
	ContentImage    ContentKind = "image"
	ContentDocument ContentKind = "document"
	ContentVideo    ContentKind = "video"
	ContentAudio    ContentKind = "audio"
	ContentReaction ContentKind = "reaction"
)

// IsMedia reports whether the kind carries a binary attachment.
func (k ContentKind) IsMedia() bool {
	switch k {
	case ContentImage, ContentDocument, ContentVideo, ContentAudio:
		return true
	}
	return false
}

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	StatusSent     MessageStatus = "sent"
	StatusReceived MessageStatus = "received"
	StatusFailed   MessageStatus = "failed"
)

// EntityType names the kind of CRM record a message is linked to.
type EntityType string

const (
	EntityLead    EntityType = "lead"
	EntityDeal    EntityType = "deal"
	EntityContact EntityType = "contact"
)

// EntityRef points at a CRM lead, deal or contact.
type EntityRef struct {
	Type EntityType `json:"entity_type" db:"entity_type"`
	ID   string     `json:"entity_id" db:"entity_id"`
}

// CanonicalMessage is the transport-agnostic message shape every component
// operates on. It is created once (webhook receipt or outbound send attempt)
// and immutable afterwards; only a same-call send failure flips Status from
// sent to failed before it is recorded.
type CanonicalMessage struct {
	ID            string        `json:"id"`
	Direction     Direction     `json:"direction"`
	Counterpart   string        `json:"counterpart"`
	Body          string        `json:"body"`
	ContentKind   ContentKind   `json:"content_kind"`
	AttachmentRef string        `json:"attachment_ref,omitempty"`
	ReplyToID     string        `json:"reply_to_id,omitempty"`
	Status        MessageStatus `json:"status"`
	// CreatedAt carries the transport timestamp verbatim (RFC 3339 for the
	// bridge); callers treat it as opaque ordering metadata.
	CreatedAt string `json:"created_at"`
	// TemplateBody holds the rendered template text for template messages;
	// empty for everything else.
	TemplateBody string     `json:"template_body,omitempty"`
	SenderName   string     `json:"sender_name,omitempty"`
	Reference    *EntityRef `json:"reference,omitempty"`
}

// IsTemplate reports whether the message was produced from a vendor template.
func (m CanonicalMessage) IsTemplate() bool {
	return m.TemplateBody != ""
}

// ReplyPreview carries the copied-forward context of a replied-to message.
type ReplyPreview struct {
	TargetID   string `json:"target_id"`
	Body       string `json:"body"`
	SenderName string `json:"sender_name"`
}

// DisplayMessage is a CanonicalMessage annotated for presentation by the
// thread reconciler. Reaction-kind messages never appear as DisplayMessages;
// they surface only through ReactionOverlay on their targets.
type DisplayMessage struct {
	CanonicalMessage
	SenderDisplayName string        `json:"sender_display_name"`
	ReactionOverlay   string        `json:"reaction_overlay,omitempty"`
	ReplyPreview      *ReplyPreview `json:"reply_preview,omitempty"`
}

// ChatSummary is the derived, non-persisted view of a conversation. Every
// field is recomputed from the latest messages and the identity resolver on
// each list call.
type ChatSummary struct {
	JID                   string `json:"jid"`
	Phone                 string `json:"phone"`
	ContactName           string `json:"contact_name"`
	IsGroup               bool   `json:"is_group"`
	LastMessage           string `json:"last_message"`
	LastMessageTime       string `json:"last_message_time"`
	LastMessageIsFromMe   bool   `json:"last_message_is_from_me"`
	LastMessageSenderName string `json:"last_message_sender_name"`
	AssignedTo            string `json:"assigned_to"`
	PhotoURL              string `json:"photo_url"`
}
