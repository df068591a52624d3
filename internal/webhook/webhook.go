// Package webhook ingests inbound message deliveries from the transport.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"whatsapp-crm-sync/internal/identity"
	"whatsapp-crm-sync/internal/models"
	"whatsapp-crm-sync/internal/normalize"
	"whatsapp-crm-sync/internal/realtime"
	"whatsapp-crm-sync/internal/store"
	"whatsapp-crm-sync/internal/transport"
)

// SecretHeader carries the shared webhook secret on every delivery.
const SecretHeader = "X-Webhook-Secret"

// Result is the processing outcome reported back to the transport. Skips are
// successes: the delivery was understood and intentionally not persisted, so
// the transport must not redeliver.
type Result struct {
	OK        bool   `json:"ok"`
	MessageID string `json:"message_id,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Saver stores an inbound attachment payload and returns its token.
type Saver interface {
	SaveBase64(ctx context.Context, chatJID, filename, payload string) (string, error)
}

// Processor validates, deduplicates, persists and notifies for each inbound
// delivery.
type Processor struct {
	secret    []byte
	messages  store.MessageStore
	resolver  *identity.Resolver
	normalize *normalize.Normalizer
	saver     Saver
	publisher *realtime.Publisher
}

// NewProcessor wires the pipeline. saver and publisher may be nil; media and
// notification then degrade to no-ops.
func NewProcessor(secret string, messages store.MessageStore, resolver *identity.Resolver, n *normalize.Normalizer, saver Saver, publisher *realtime.Publisher) (*Processor, error) {
	if messages == nil {
		return nil, fmt.Errorf("processor requires a message store")
	}
	if resolver == nil || n == nil {
		return nil, fmt.Errorf("processor requires a resolver and normalizer")
	}
	return &Processor{
		secret:    []byte(secret),
		messages:  messages,
		resolver:  resolver,
		normalize: n,
		saver:     saver,
		publisher: publisher,
	}, nil
}

// Authorized checks the delivery secret in constant time. An empty
// configured secret rejects everything.
func (p *Processor) Authorized(r *http.Request) bool {
	if len(p.secret) == 0 {
		return false
	}
	given := []byte(r.Header.Get(SecretHeader))
	return subtle.ConstantTimeCompare(given, p.secret) == 1
}

// ServeHTTP is the transport-facing endpoint.
func (p *Processor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !p.Authorized(r) {
		log.Warn().Str("remote", r.RemoteAddr).Msg("Webhook rejected: bad secret")
		writeJSON(w, http.StatusUnauthorized, Result{Reason: "unauthorized"})
		return
	}

	var rec transport.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, Result{Reason: "malformed payload"})
		return
	}

	result, err := p.Process(r.Context(), rec)
	if err != nil {
		log.Error().Err(err).Str("message_id", rec.ID).Msg("Webhook processing failed")
		writeJSON(w, http.StatusInternalServerError, Result{Reason: "processing failed"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Process runs the pipeline for one delivery: validate, deduplicate,
// persist, notify. Reprocessing an already-seen id is a no-op success.
func (p *Processor) Process(ctx context.Context, rec transport.Record) (Result, error) {
	if rec.ID == "" {
		return Result{OK: true, Skipped: true, Reason: "no message id"}, nil
	}
	if rec.IsFromMe {
		// Our own messages come back through the transport's echo; the
		// dispatcher already recorded them.
		return Result{OK: true, Skipped: true, Reason: "self-sent"}, nil
	}

	seen, err := p.messages.Exists(ctx, rec.ID)
	if err != nil {
		return Result{}, fmt.Errorf("dedup check: %w", err)
	}
	if seen {
		return Result{OK: true, MessageID: rec.ID, Skipped: true, Reason: "duplicate"}, nil
	}

	msg, err := p.normalize.Normalize(rec)
	if err != nil {
		log.Warn().Err(err).Str("message_id", rec.ID).Msg("Skipping unnormalizable delivery")
		return Result{OK: true, Skipped: true, Reason: "unnormalizable"}, nil
	}

	if rec.MediaBase64 != "" && p.saver != nil {
		token, err := p.saver.SaveBase64(ctx, rec.ChatJID, rec.MediaFilename, rec.MediaBase64)
		if err != nil {
			// The message still syncs; only the attachment is lost.
			log.Warn().Err(err).Str("message_id", rec.ID).Msg("Media save failed, syncing without attachment")
			msg.AttachmentRef = ""
		} else {
			msg.AttachmentRef = "/api/media/" + token
		}
	}

	if ref, ok := p.resolver.ResolveEntity(ctx, msg.Counterpart); ok {
		msg.Reference = ref
	}

	if err := p.messages.Record(ctx, msg); err != nil {
		return Result{}, fmt.Errorf("persist message %s: %w", msg.ID, err)
	}

	p.notify(ctx, rec.ChatJID, msg)
	return Result{OK: true, MessageID: msg.ID}, nil
}

// notify publishes realtime events. Failures never affect the webhook
// response; the message is already durable.
func (p *Processor) notify(ctx context.Context, chatJID string, msg models.CanonicalMessage) {
	if p.publisher == nil {
		return
	}
	// Group chats have participants, not a counterpart phone.
	phone := ""
	if !identity.IsGroup(chatJID) {
		if ph, ok := p.resolver.AddressToPhone(chatJID); ok {
			phone = ph
		}
	}
	senderName := p.resolver.DisplayName(ctx, msg.Counterpart)
	if senderName == "" {
		senderName = msg.SenderName
	}

	primary, legacy := realtime.NewChatUpdate(chatJID, phone, msg, senderName)
	p.publisher.Publish(realtime.EventChatUpdate, primary)
	if legacy != nil {
		p.publisher.Publish(realtime.EventLegacyMessage, legacy)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
