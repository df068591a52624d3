package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"whatsapp-crm-sync/internal/models"
	"whatsapp-crm-sync/internal/transport/vendor"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open("file:" + filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndExists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "M1")
	if err != nil || ok {
		t.Fatalf("Exists before insert = (%v, %v)", ok, err)
	}

	msg := models.CanonicalMessage{
		ID:          "M1",
		Direction:   models.DirectionIncoming,
		Counterpart: "+911234567890",
		Body:        "hello",
		ContentKind: models.ContentText,
		Status:      models.StatusReceived,
		CreatedAt:   "2024-03-01T10:00:00Z",
		Reference:   &models.EntityRef{Type: models.EntityLead, ID: "LEAD-1"},
	}
	if err := s.Record(ctx, msg); err != nil {
		t.Fatalf("Record: %v", err)
	}

	ok, err = s.Exists(ctx, "M1")
	if err != nil || !ok {
		t.Fatalf("Exists after insert = (%v, %v)", ok, err)
	}
	if ok, _ := s.Exists(ctx, ""); ok {
		t.Fatal("empty id must never exist")
	}
}

func TestByReferenceOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ref := models.EntityRef{Type: models.EntityDeal, ID: "DEAL-1"}

	for _, m := range []models.CanonicalMessage{
		{ID: "B", Direction: models.DirectionIncoming, Counterpart: "+1", Status: models.StatusReceived, CreatedAt: "2024-03-01T11:00:00Z", Reference: &ref},
		{ID: "A", Direction: models.DirectionIncoming, Counterpart: "+1", Status: models.StatusReceived, CreatedAt: "2024-03-01T10:00:00Z", Reference: &ref},
		{ID: "C", Direction: models.DirectionOutgoing, Counterpart: "+1", Status: models.StatusSent, CreatedAt: "2024-03-01T12:00:00Z"},
	} {
		if err := s.Record(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := s.ByReference(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].ID != "A" || msgs[1].ID != "B" {
		t.Fatalf("order = [%s, %s]", msgs[0].ID, msgs[1].ID)
	}
	if msgs[0].Reference == nil || msgs[0].Reference.ID != "DEAL-1" {
		t.Fatalf("reference not restored: %+v", msgs[0].Reference)
	}
}

func TestFindByPhoneOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustExec := func(query string, args ...interface{}) {
		t.Helper()
		if _, err := s.db.Exec(s.db.Rebind(query), args...); err != nil {
			t.Fatal(err)
		}
	}

	mustExec(`INSERT INTO contacts (id, full_name, mobile_no, mobile_digits) VALUES (?, ?, ?, ?)`,
		"CON-1", "Shared Contact", "+911234567890", "911234567890")
	mustExec(`INSERT INTO deals (id, lead_id) VALUES (?, ?)`, "DEAL-1", "")
	mustExec(`INSERT INTO deal_contacts (deal_id, contact_id, is_primary, position) VALUES (?, ?, ?, ?)`,
		"DEAL-1", "CON-1", 1, 0)

	// Deal wins over the standalone contact for the same phone.
	ref, err := s.FindByPhone(ctx, "+91 1234567890")
	if err != nil {
		t.Fatal(err)
	}
	if ref == nil || ref.Type != models.EntityDeal || ref.ID != "DEAL-1" {
		t.Fatalf("ref = %+v", ref)
	}

	// A lead with the phone outranks the deal.
	mustExec(`INSERT INTO leads (id, first_name, last_name, lead_name, mobile_no, mobile_digits) VALUES (?, ?, ?, ?, ?, ?)`,
		"LEAD-1", "Asha", "Rao", "Asha Rao", "+911234567890", "911234567890")
	ref, err = s.FindByPhone(ctx, "+911234567890")
	if err != nil {
		t.Fatal(err)
	}
	if ref == nil || ref.Type != models.EntityLead || ref.ID != "LEAD-1" {
		t.Fatalf("ref = %+v", ref)
	}

	if ref, _ := s.FindByPhone(ctx, "+440000000000"); ref != nil {
		t.Fatalf("unknown phone resolved to %+v", ref)
	}
}

func TestDisplayName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustExec := func(query string, args ...interface{}) {
		t.Helper()
		if _, err := s.db.Exec(s.db.Rebind(query), args...); err != nil {
			t.Fatal(err)
		}
	}
	mustExec(`INSERT INTO leads (id, first_name, last_name, lead_name) VALUES (?, ?, ?, ?)`,
		"LEAD-1", "Asha", "Rao", "Asha Rao")
	mustExec(`INSERT INTO contacts (id, full_name) VALUES (?, ?)`, "CON-1", "Primary Person")
	mustExec(`INSERT INTO deals (id, lead_id) VALUES (?, ?)`, "DEAL-1", "LEAD-1")

	name, err := s.DisplayName(ctx, models.EntityRef{Type: models.EntityLead, ID: "LEAD-1"})
	if err != nil || name != "Asha Rao" {
		t.Fatalf("lead name = (%q, %v)", name, err)
	}

	// No contacts linked: the deal falls back to its lead's name.
	name, err = s.DisplayName(ctx, models.EntityRef{Type: models.EntityDeal, ID: "DEAL-1"})
	if err != nil || name != "Asha Rao" {
		t.Fatalf("deal fallback name = (%q, %v)", name, err)
	}

	// With a primary contact, that contact wins.
	mustExec(`INSERT INTO deal_contacts (deal_id, contact_id, is_primary, position) VALUES (?, ?, ?, ?)`,
		"DEAL-1", "CON-1", 1, 0)
	name, err = s.DisplayName(ctx, models.EntityRef{Type: models.EntityDeal, ID: "DEAL-1"})
	if err != nil || name != "Primary Person" {
		t.Fatalf("deal primary name = (%q, %v)", name, err)
	}
}

func TestCreateLead(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ref, err := s.CreateLead(ctx, NewLead{
		FirstName: "New",
		LastName:  "Person",
		Phone:     "+15550001111",
		Source:    "WhatsApp",
	})
	if err != nil {
		t.Fatal(err)
	}
	if ref.Type != models.EntityLead || ref.ID == "" {
		t.Fatalf("ref = %+v", ref)
	}

	found, err := s.FindByPhone(ctx, "+1 555 000 1111")
	if err != nil {
		t.Fatal(err)
	}
	if found == nil || found.ID != ref.ID {
		t.Fatalf("created lead not findable: %+v", found)
	}
	name, _ := s.DisplayName(ctx, ref)
	if name != "New Person" {
		t.Fatalf("name = %q", name)
	}
}

func TestEnqueue(t *testing.T) {
	s := openTestStore(t)
	item := vendor.OutboundItem{
		ID:        "Q1",
		To:        "911234567890@s.whatsapp.net",
		Kind:      "text",
		Body:      "queued",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Enqueue(context.Background(), item); err != nil {
		t.Fatal(err)
	}
	var count int
	if err := s.db.Get(&count, `SELECT COUNT(*) FROM vendor_outbox`); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("outbox rows = %d", count)
	}
}

func TestJoinNamesAndDigits(t *testing.T) {
	if got := joinNames("Asha", ""); got != "Asha" {
		t.Fatalf("joinNames = %q", got)
	}
	if got := joinNames("", "Rao"); got != "Rao" {
		t.Fatalf("joinNames = %q", got)
	}
	if got := joinNames(" Asha ", " Rao "); got != "Asha Rao" {
		t.Fatalf("joinNames = %q", got)
	}
	if got := bareDigits("+91 12-34"); got != "911234" {
		t.Fatalf("bareDigits = %q", got)
	}
}
