package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"whatsapp-crm-sync/internal/models"
	"whatsapp-crm-sync/internal/transport/vendor"
)

// SQLStore implements Store on top of sqlx. Postgres and sqlite are both
// supported; the driver is picked from the DSN scheme the same way the
// service has always done it.
type SQLStore struct {
	db *sqlx.DB
}

// Open connects to the database named by dsn and ensures the schema exists.
func Open(dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}

	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "postgres"
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &SQLStore{db: db}
	if err := s.migrate(driver); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("driver", driver).Msg("Database connection established")
	return s, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) migrate(driver string) error {
	schema := schemaSQL
	if driver == "sqlite" {
		schema = strings.ReplaceAll(schema, "TIMESTAMPTZ", "TIMESTAMP")
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Exists reports whether a message id is already persisted.
func (s *SQLStore) Exists(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, nil
	}
	var one int
	err := s.db.GetContext(ctx, &one,
		s.db.Rebind(`SELECT 1 FROM whatsapp_messages WHERE message_id = ?`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return true, nil
}

// Record persists a canonical message.
func (s *SQLStore) Record(ctx context.Context, m models.CanonicalMessage) error {
	refType, refID := "", ""
	if m.Reference != nil {
		refType, refID = string(m.Reference.Type), m.Reference.ID
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO whatsapp_messages
			(message_id, direction, counterpart, body, content_kind, attachment_ref,
			 reply_to_id, status, created_at, template_body, sender_name, entity_type, entity_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		m.ID, m.Direction, m.Counterpart, m.Body, m.ContentKind, m.AttachmentRef,
		m.ReplyToID, m.Status, m.CreatedAt, m.TemplateBody, m.SenderName, refType, refID)
	if err != nil {
		return fmt.Errorf("record message %s: %w", m.ID, err)
	}
	return nil
}

type messageRow struct {
	MessageID     string `db:"message_id"`
	Direction     string `db:"direction"`
	Counterpart   string `db:"counterpart"`
	Body          string `db:"body"`
	ContentKind   string `db:"content_kind"`
	AttachmentRef string `db:"attachment_ref"`
	ReplyToID     string `db:"reply_to_id"`
	Status        string `db:"status"`
	CreatedAt     string `db:"created_at"`
	TemplateBody  string `db:"template_body"`
	SenderName    string `db:"sender_name"`
	EntityType    string `db:"entity_type"`
	EntityID      string `db:"entity_id"`
}

func (r messageRow) canonical() models.CanonicalMessage {
	m := models.CanonicalMessage{
		ID:            r.MessageID,
		Direction:     models.Direction(r.Direction),
		Counterpart:   r.Counterpart,
		Body:          r.Body,
		ContentKind:   models.ContentKind(r.ContentKind),
		AttachmentRef: r.AttachmentRef,
		ReplyToID:     r.ReplyToID,
		Status:        models.MessageStatus(r.Status),
		CreatedAt:     r.CreatedAt,
		TemplateBody:  r.TemplateBody,
		SenderName:    r.SenderName,
	}
	if r.EntityType != "" && r.EntityID != "" {
		m.Reference = &models.EntityRef{Type: models.EntityType(r.EntityType), ID: r.EntityID}
	}
	return m
}

// ByReference returns messages linked to a CRM entity, oldest first.
func (s *SQLStore) ByReference(ctx context.Context, ref models.EntityRef) ([]models.CanonicalMessage, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT message_id, direction, counterpart, body, content_kind, attachment_ref,
		       reply_to_id, status, created_at, template_body, sender_name, entity_type, entity_id
		FROM whatsapp_messages
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at ASC`),
		string(ref.Type), ref.ID)
	if err != nil {
		return nil, fmt.Errorf("messages by reference: %w", err)
	}
	out := make([]models.CanonicalMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.canonical())
	}
	return out, nil
}

// FindByPhone resolves a phone number to the entity that owns it. Lookup
// order: lead, then a deal whose contacts carry the phone, then a standalone
// contact. Phones are compared on bare digits.
func (s *SQLStore) FindByPhone(ctx context.Context, phone string) (*models.EntityRef, error) {
	digits := bareDigits(phone)
	if digits == "" {
		return nil, nil
	}

	var id string
	err := s.db.GetContext(ctx, &id, s.db.Rebind(`
		SELECT id FROM leads WHERE mobile_digits = ? OR phone_digits = ? LIMIT 1`),
		digits, digits)
	if err == nil {
		return &models.EntityRef{Type: models.EntityLead, ID: id}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lead by phone: %w", err)
	}

	err = s.db.GetContext(ctx, &id, s.db.Rebind(`
		SELECT dc.deal_id FROM deal_contacts dc
		JOIN contacts c ON c.id = dc.contact_id
		WHERE c.mobile_digits = ?
		ORDER BY dc.position ASC LIMIT 1`),
		digits)
	if err == nil {
		return &models.EntityRef{Type: models.EntityDeal, ID: id}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("deal by phone: %w", err)
	}

	err = s.db.GetContext(ctx, &id, s.db.Rebind(`
		SELECT id FROM contacts WHERE mobile_digits = ? LIMIT 1`), digits)
	if err == nil {
		return &models.EntityRef{Type: models.EntityContact, ID: id}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contact by phone: %w", err)
	}

	return nil, nil
}

// DisplayName returns the presentation name for an entity.
func (s *SQLStore) DisplayName(ctx context.Context, ref models.EntityRef) (string, error) {
	switch ref.Type {
	case models.EntityLead:
		var row struct {
			First sql.NullString `db:"first_name"`
			Last  sql.NullString `db:"last_name"`
		}
		err := s.db.GetContext(ctx, &row,
			s.db.Rebind(`SELECT first_name, last_name FROM leads WHERE id = ?`), ref.ID)
		if err != nil {
			return "", fmt.Errorf("lead name: %w", err)
		}
		return joinNames(row.First.String, row.Last.String), nil

	case models.EntityContact:
		var name sql.NullString
		err := s.db.GetContext(ctx, &name,
			s.db.Rebind(`SELECT full_name FROM contacts WHERE id = ?`), ref.ID)
		if err != nil {
			return "", fmt.Errorf("contact name: %w", err)
		}
		return name.String, nil

	case models.EntityDeal:
		// Primary contact first, then any contact, then the lead name.
		var name sql.NullString
		err := s.db.GetContext(ctx, &name, s.db.Rebind(`
			SELECT c.full_name FROM deal_contacts dc
			JOIN contacts c ON c.id = dc.contact_id
			WHERE dc.deal_id = ?
			ORDER BY dc.is_primary DESC, dc.position ASC LIMIT 1`),
			ref.ID)
		if err == nil && name.String != "" {
			return name.String, nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("deal contact name: %w", err)
		}
		err = s.db.GetContext(ctx, &name, s.db.Rebind(`
			SELECT l.lead_name FROM deals d
			JOIN leads l ON l.id = d.lead_id
			WHERE d.id = ?`), ref.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("deal lead name: %w", err)
		}
		return name.String, nil
	}
	return "", fmt.Errorf("unknown entity type %q", ref.Type)
}

// PhoneFor returns the phone number for an entity in display form.
func (s *SQLStore) PhoneFor(ctx context.Context, ref models.EntityRef) (string, error) {
	switch ref.Type {
	case models.EntityLead:
		var row struct {
			Mobile sql.NullString `db:"mobile_no"`
			Phone  sql.NullString `db:"phone"`
		}
		err := s.db.GetContext(ctx, &row,
			s.db.Rebind(`SELECT mobile_no, phone FROM leads WHERE id = ?`), ref.ID)
		if err != nil {
			return "", fmt.Errorf("lead phone: %w", err)
		}
		if row.Mobile.String != "" {
			return row.Mobile.String, nil
		}
		return row.Phone.String, nil

	case models.EntityContact:
		var phone sql.NullString
		err := s.db.GetContext(ctx, &phone,
			s.db.Rebind(`SELECT mobile_no FROM contacts WHERE id = ?`), ref.ID)
		if err != nil {
			return "", fmt.Errorf("contact phone: %w", err)
		}
		return phone.String, nil

	case models.EntityDeal:
		// The linked lead's number is authoritative for a deal's chat;
		// contacts are only a fallback, taken in listing order. This mirrors
		// how the CRM itself picks the number it dials for a deal.
		var phone sql.NullString
		err := s.db.GetContext(ctx, &phone, s.db.Rebind(`
			SELECT l.mobile_no FROM deals d
			JOIN leads l ON l.id = d.lead_id
			WHERE d.id = ? AND l.mobile_no IS NOT NULL AND l.mobile_no != ''`),
			ref.ID)
		if err == nil && phone.String != "" {
			return phone.String, nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("deal lead phone: %w", err)
		}
		err = s.db.GetContext(ctx, &phone, s.db.Rebind(`
			SELECT c.mobile_no FROM deal_contacts dc
			JOIN contacts c ON c.id = dc.contact_id
			WHERE dc.deal_id = ? AND c.mobile_no IS NOT NULL AND c.mobile_no != ''
			ORDER BY dc.position ASC LIMIT 1`),
			ref.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("deal contact phone: %w", err)
		}
		return phone.String, nil
	}
	return "", fmt.Errorf("unknown entity type %q", ref.Type)
}

// CreateLead inserts a new lead and returns its reference.
func (s *SQLStore) CreateLead(ctx context.Context, lead NewLead) (models.EntityRef, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO leads (id, first_name, last_name, lead_name, mobile_no, mobile_digits, phone, phone_digits, lead_owner, source, assigned_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id, lead.FirstName, lead.LastName,
		joinNames(lead.FirstName, lead.LastName),
		lead.Phone, bareDigits(lead.Phone), "", "",
		lead.Owner, lead.Source, lead.AssignedTo)
	if err != nil {
		return models.EntityRef{}, fmt.Errorf("create lead: %w", err)
	}
	return models.EntityRef{Type: models.EntityLead, ID: id}, nil
}

// Enqueue stores a queued vendor delivery.
func (s *SQLStore) Enqueue(ctx context.Context, item vendor.OutboundItem) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO vendor_outbox
			(id, recipient, kind, body, file_url, filename, template, template_params, reply_to_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		item.ID, item.To, item.Kind, item.Body, item.FileURL, item.Filename,
		item.Template, item.TemplateParams, item.ReplyToID, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue vendor delivery: %w", err)
	}
	return nil
}

func joinNames(first, last string) string {
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)
	if first == "" {
		return last
	}
	if last == "" {
		return first
	}
	return first + " " + last
}

func bareDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
