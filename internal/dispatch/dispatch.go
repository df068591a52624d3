// Package dispatch sends agent-composed messages out through the active
// transport and records the outcome either way.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vincent-petithory/dataurl"

	"whatsapp-crm-sync/internal/identity"
	"whatsapp-crm-sync/internal/models"
	"whatsapp-crm-sync/internal/realtime"
	"whatsapp-crm-sync/internal/store"
	"whatsapp-crm-sync/internal/transport"
)

// SendRequest describes one outbound message. Phone or JID must be set; JID
// wins when both are.
type SendRequest struct {
	Phone          string             `json:"phone,omitempty"`
	JID            string             `json:"jid,omitempty"`
	Body           string             `json:"body,omitempty"`
	Attachment     string             `json:"attachment,omitempty"`
	Filename       string             `json:"filename,omitempty"`
	Kind           models.ContentKind `json:"kind,omitempty"`
	ReplyTo        string             `json:"reply_to,omitempty"`
	ReactionTarget string             `json:"reaction_target,omitempty"`
	SenderName     string             `json:"sender_name,omitempty"`
	Reference      *models.EntityRef  `json:"reference,omitempty"`
	Template       string             `json:"template,omitempty"`
	TemplateParams []string           `json:"template_params,omitempty"`
}

// Result reports how a send ended. A failed transport attempt is still a
// successful dispatch: the failure is recorded and surfaced here, not as an
// error.
type Result struct {
	MessageID string               `json:"message_id"`
	ChatJID   string               `json:"chat_jid"`
	Status    models.MessageStatus `json:"status"`
	Error     string               `json:"error,omitempty"`
}

// AttachmentSaver stores decoded inline attachments locally.
type AttachmentSaver interface {
	Save(ctx context.Context, chatJID, filename string, data []byte) (string, error)
}

// Dispatcher routes sends by content kind and capability, persists every
// outcome and emits realtime updates.
type Dispatcher struct {
	transport     transport.Transport
	messages      store.MessageStore
	resolver      *identity.Resolver
	saver         AttachmentSaver
	publisher     *realtime.Publisher
	publicBaseURL string
}

// New wires a dispatcher. saver and publisher may be nil.
func New(t transport.Transport, messages store.MessageStore, resolver *identity.Resolver, saver AttachmentSaver, publisher *realtime.Publisher, publicBaseURL string) (*Dispatcher, error) {
	if t == nil {
		return nil, fmt.Errorf("dispatcher requires a transport")
	}
	if messages == nil || resolver == nil {
		return nil, fmt.Errorf("dispatcher requires a message store and resolver")
	}
	return &Dispatcher{
		transport:     t,
		messages:      messages,
		resolver:      resolver,
		saver:         saver,
		publisher:     publisher,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// Send dispatches one message. Capability mismatches and invalid requests
// return an error with nothing recorded; transport failures record the
// message as failed and return a failed Result with a nil error.
func (d *Dispatcher) Send(ctx context.Context, req SendRequest) (Result, error) {
	jid := req.JID
	if jid == "" {
		if identity.NormalizePhone(req.Phone) == "" {
			return Result{}, fmt.Errorf("send request needs a phone or jid")
		}
		jid = d.resolver.ChatJID(ctx, req.Phone)
	}

	switch {
	case req.Template != "":
		return d.sendTemplate(ctx, jid, req)
	case req.Kind == models.ContentReaction:
		return d.sendReaction(ctx, jid, req)
	case req.Attachment != "":
		return d.sendFile(ctx, jid, req)
	default:
		if strings.TrimSpace(req.Body) == "" {
			return Result{}, fmt.Errorf("send request has no content")
		}
		res, err := d.transport.SendText(ctx, jid, req.Body, req.SenderName)
		return d.finish(ctx, jid, req, models.ContentText, res, err)
	}
}

func (d *Dispatcher) sendTemplate(ctx context.Context, jid string, req SendRequest) (Result, error) {
	sender, ok := d.transport.(transport.TemplateSender)
	if !ok || !transport.Supports(d.transport, transport.CapTemplate) {
		return Result{}, fmt.Errorf("templates: %w", transport.ErrUnsupportedCapability)
	}
	res, err := sender.SendTemplate(ctx, jid, req.Template, req.TemplateParams)
	return d.finish(ctx, jid, req, models.ContentText, res, err)
}

func (d *Dispatcher) sendReaction(ctx context.Context, jid string, req SendRequest) (Result, error) {
	sender, ok := d.transport.(transport.ReactionSender)
	if !ok || !transport.Supports(d.transport, transport.CapReaction) {
		return Result{}, fmt.Errorf("reactions: %w", transport.ErrUnsupportedCapability)
	}
	if req.ReactionTarget == "" {
		return Result{}, fmt.Errorf("reaction needs a target message id")
	}
	res, err := sender.SendReaction(ctx, jid, req.ReactionTarget, req.Body)
	return d.finish(ctx, jid, req, models.ContentReaction, res, err)
}

func (d *Dispatcher) sendFile(ctx context.Context, jid string, req SendRequest) (Result, error) {
	if !transport.Supports(d.transport, transport.CapMedia) {
		return Result{}, fmt.Errorf("media: %w", transport.ErrUnsupportedCapability)
	}
	fileURL, filename, err := d.resolveAttachment(ctx, jid, req)
	if err != nil {
		return Result{}, err
	}
	kind := req.Kind
	if kind == "" || kind == models.ContentText {
		kind = models.ContentDocument
	}
	res, sendErr := d.transport.SendFile(ctx, jid, fileURL, filename, req.Body, req.SenderName)
	return d.finish(ctx, jid, req, kind, res, sendErr)
}

// resolveAttachment turns the request's attachment into a URL the transport
// can fetch. Inline data: URIs are decoded and stored locally first;
// service-relative paths are made absolute against the public base URL.
func (d *Dispatcher) resolveAttachment(ctx context.Context, jid string, req SendRequest) (fileURL, filename string, err error) {
	att := req.Attachment
	filename = req.Filename

	if strings.HasPrefix(att, "data:") {
		if d.saver == nil {
			return "", "", fmt.Errorf("inline attachments are not supported without media storage")
		}
		decoded, derr := dataurl.DecodeString(att)
		if derr != nil {
			return "", "", fmt.Errorf("decode data url: %w", derr)
		}
		if filename == "" {
			filename = "attachment"
		}
		token, serr := d.saver.Save(ctx, jid, filename, decoded.Data)
		if serr != nil {
			return "", "", fmt.Errorf("store inline attachment: %w", serr)
		}
		att = "/api/media/" + token
	}

	if strings.HasPrefix(att, "/") {
		if d.publicBaseURL == "" {
			return "", "", fmt.Errorf("PUBLIC_BASE_URL is required for relative attachments")
		}
		att = d.publicBaseURL + att
	}
	if filename == "" {
		if i := strings.LastIndex(att, "/"); i >= 0 {
			filename = att[i+1:]
		}
	}
	return att, filename, nil
}

// finish records the outcome and, on success, notifies listeners.
func (d *Dispatcher) finish(ctx context.Context, jid string, req SendRequest, kind models.ContentKind, res transport.SendResult, sendErr error) (Result, error) {
	msg := models.CanonicalMessage{
		ID:          res.MessageID,
		Direction:   models.DirectionOutgoing,
		Body:        req.Body,
		ContentKind: kind,
		ReplyToID:   req.ReplyTo,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		SenderName:  req.SenderName,
		Reference:   req.Reference,
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if req.Template != "" {
		msg.TemplateBody = req.Template
	}
	if phone, ok := d.resolver.AddressToPhone(jid); ok {
		msg.Counterpart = phone
	} else {
		msg.Counterpart = jid
	}
	if req.Attachment != "" && strings.HasPrefix(req.Attachment, "/api/media/") {
		msg.AttachmentRef = req.Attachment
	}

	chatJID := res.ChatJID
	if chatJID == "" {
		chatJID = jid
	}

	if sendErr != nil {
		if errors.Is(sendErr, transport.ErrUnsupportedCapability) {
			return Result{}, sendErr
		}
		msg.Status = models.StatusFailed
		if err := d.messages.Record(ctx, msg); err != nil {
			return Result{}, fmt.Errorf("record failed send: %w", err)
		}
		d.emit(chatJID, req.SenderName, msg)
		log.Warn().Err(sendErr).Str("message_id", msg.ID).Str("chat_jid", chatJID).Msg("Send failed, recorded as failed")
		return Result{MessageID: msg.ID, ChatJID: chatJID, Status: models.StatusFailed, Error: sendErr.Error()}, nil
	}

	msg.Status = models.StatusSent
	if err := d.messages.Record(ctx, msg); err != nil {
		return Result{}, fmt.Errorf("record sent message: %w", err)
	}
	d.emit(chatJID, req.SenderName, msg)

	log.Info().Str("message_id", msg.ID).Str("chat_jid", chatJID).Str("kind", string(kind)).Msg("Message dispatched")
	return Result{MessageID: msg.ID, ChatJID: chatJID, Status: models.StatusSent}, nil
}

// emit publishes the chat update for an attempt. Failed sends publish too so
// agents see the failure without a refresh.
func (d *Dispatcher) emit(chatJID, senderName string, msg models.CanonicalMessage) {
	if d.publisher == nil {
		return
	}
	phone, _ := d.resolver.AddressToPhone(chatJID)
	if senderName == "" {
		senderName = "You"
	}
	primary, legacy := realtime.NewChatUpdate(chatJID, phone, msg, senderName)
	d.publisher.Publish(realtime.EventChatUpdate, primary)
	if legacy != nil {
		d.publisher.Publish(realtime.EventLegacyMessage, legacy)
	}
}
