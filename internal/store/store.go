// Package store holds the narrow interfaces through which the core talks to
// the CRM's document store, plus the sqlx-backed implementation the service
// binary wires in. The core owns no persistent state of its own; in
// particular webhook deduplication must go through MessageStore so replayed
// deliveries are caught across processes.
package store

import (
	"context"

	"whatsapp-crm-sync/internal/models"
	"whatsapp-crm-sync/internal/transport/vendor"
)

// MessageStore records canonical messages and answers dedup queries.
type MessageStore interface {
	// Exists reports whether a message with the given transport id has
	// already been persisted. It must be backed by durable storage.
	Exists(ctx context.Context, messageID string) (bool, error)
	// Record persists a canonical message. Messages are write-once; status
	// is final by the time Record is called.
	Record(ctx context.Context, m models.CanonicalMessage) error
	// ByReference returns messages linked to a CRM entity, oldest first.
	ByReference(ctx context.Context, ref models.EntityRef) ([]models.CanonicalMessage, error)
}

// NewLead carries the fields needed to create a lead from a chat.
type NewLead struct {
	FirstName  string
	LastName   string
	Phone      string
	Owner      string
	Source     string
	AssignedTo string
}

// EntityStore resolves CRM entities by phone and reads their display data.
type EntityStore interface {
	// FindByPhone resolves a normalized phone number to the CRM entity that
	// owns it, or nil when unresolved.
	FindByPhone(ctx context.Context, phone string) (*models.EntityRef, error)
	// DisplayName returns the presentation name for an entity: deal -> the
	// primary contact's full name, else the lead name; lead -> first+last;
	// contact -> full name. Empty when nothing is recorded.
	DisplayName(ctx context.Context, ref models.EntityRef) (string, error)
	// PhoneFor returns the phone for an entity. For deals the order is the
	// linked lead's phone, then the first contact that has one.
	PhoneFor(ctx context.Context, ref models.EntityRef) (string, error)
	// CreateLead inserts a new lead and returns its reference.
	CreateLead(ctx context.Context, lead NewLead) (models.EntityRef, error)
}

// Store is the full collaborator surface implemented by the SQL backend.
type Store interface {
	MessageStore
	EntityStore
	vendor.Outbox
	Close() error
}
