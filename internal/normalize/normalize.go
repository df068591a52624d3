// Package normalize converts raw transport records into canonical messages.
package normalize

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"whatsapp-crm-sync/internal/identity"
	"whatsapp-crm-sync/internal/models"
	"whatsapp-crm-sync/internal/transport"
)

// ErrMissingTimestamp marks records the transport delivered without a
// creation time. Such records are never persisted.
var ErrMissingTimestamp = errors.New("record has no timestamp")

var contentKinds = map[string]models.ContentKind{
	"text":     models.ContentText,
	"image":    models.ContentImage,
	"document": models.ContentDocument,
	"video":    models.ContentVideo,
	"audio":    models.ContentAudio,
	"reaction": models.ContentReaction,
}

// Normalizer turns transport records into canonical messages using the
// resolver's address mapping for counterpart identity.
type Normalizer struct {
	resolver *identity.Resolver
}

func New(resolver *identity.Resolver) *Normalizer {
	return &Normalizer{resolver: resolver}
}

// Normalize converts a single record. The timestamp is carried verbatim; the
// attachment reference is rewritten into an internal media proxy path so no
// transport URL ever leaves this process.
func (n *Normalizer) Normalize(rec transport.Record) (models.CanonicalMessage, error) {
	if strings.TrimSpace(rec.Timestamp) == "" {
		return models.CanonicalMessage{}, fmt.Errorf("message %s: %w", rec.ID, ErrMissingTimestamp)
	}

	msg := models.CanonicalMessage{
		ID:         rec.ID,
		Body:       rec.Content,
		CreatedAt:  rec.Timestamp,
		ReplyToID:  rec.ReplyToID,
		SenderName: rec.SenderName,
	}

	if rec.IsFromMe {
		msg.Direction = models.DirectionOutgoing
		msg.Status = models.StatusSent
	} else {
		msg.Direction = models.DirectionIncoming
		msg.Status = models.StatusReceived
	}

	// Inbound identity comes from the sender address; in a group chat the
	// chat JID would collapse every participant onto the group. Outbound
	// messages address the chat itself.
	addr := rec.ChatJID
	if !rec.IsFromMe && rec.Sender != "" {
		addr = rec.Sender
	}
	if phone, ok := n.resolver.AddressToPhone(addr); ok {
		msg.Counterpart = phone
	} else {
		msg.Counterpart = addr
	}

	kind, ok := contentKinds[strings.ToLower(rec.ContentType)]
	if !ok {
		kind = models.ContentText
	}
	msg.ContentKind = kind

	if ref := ProxyRef(rec); ref != "" {
		msg.AttachmentRef = ref
	}

	return msg, nil
}

// ProxyRef derives the internal media path for a record's attachment. The
// token is the last path segment of the transport URL with any query
// stripped; local filenames pass through as-is. Empty when the record has no
// attachment.
func ProxyRef(rec transport.Record) string {
	name := rec.MediaFilename
	if name == "" && rec.MediaURL != "" {
		raw := rec.MediaURL
		if u, err := url.Parse(raw); err == nil && u.Path != "" {
			raw = u.Path
		}
		if i := strings.LastIndex(raw, "/"); i >= 0 {
			raw = raw[i+1:]
		}
		if i := strings.IndexByte(raw, '?'); i >= 0 {
			raw = raw[:i]
		}
		name = raw
	}
	if name == "" {
		return ""
	}
	return "/api/media/" + url.PathEscape(name)
}

// NormalizeAll converts a batch, dropping records that fail normalization.
// Order is preserved.
func (n *Normalizer) NormalizeAll(recs []transport.Record) []models.CanonicalMessage {
	out := make([]models.CanonicalMessage, 0, len(recs))
	for _, rec := range recs {
		msg, err := n.Normalize(rec)
		if err != nil {
			log.Warn().Err(err).Str("message_id", rec.ID).Msg("Skipping unnormalizable record")
			continue
		}
		out = append(out, msg)
	}
	return out
}
