package identity

import (
	"context"
	"errors"
	"testing"

	"whatsapp-crm-sync/internal/models"
	"whatsapp-crm-sync/internal/transport"
)

type fakeEntities struct {
	byPhone map[string]models.EntityRef
	names   map[string]string
	failing bool
}

func (f *fakeEntities) FindByPhone(_ context.Context, phone string) (*models.EntityRef, error) {
	if f.failing {
		return nil, errors.New("db down")
	}
	if ref, ok := f.byPhone[NormalizePhone(phone)]; ok {
		return &ref, nil
	}
	return nil, nil
}

func (f *fakeEntities) DisplayName(_ context.Context, ref models.EntityRef) (string, error) {
	return f.names[ref.ID], nil
}

func (f *fakeEntities) PhoneFor(_ context.Context, ref models.EntityRef) (string, error) {
	return "", nil
}

func TestPhoneToAddress(t *testing.T) {
	r := NewResolver(&fakeEntities{}, nil, "")
	tests := []struct {
		phone string
		want  string
	}{
		{"+91 12345 67890", "911234567890@s.whatsapp.net"},
		{"911234567890", "911234567890@s.whatsapp.net"},
		{"+91-1234-567-890", "911234567890@s.whatsapp.net"},
	}
	for _, tt := range tests {
		if got := r.PhoneToAddress(tt.phone); got != tt.want {
			t.Fatalf("PhoneToAddress(%q) = %q, want %q", tt.phone, got, tt.want)
		}
	}
}

func TestAddressToPhone(t *testing.T) {
	r := NewResolver(&fakeEntities{}, nil, "")
	tests := []struct {
		addr   string
		want   string
		wantOK bool
	}{
		{"911234567890@s.whatsapp.net", "+911234567890", true},
		{"911234567890:12@s.whatsapp.net", "+911234567890", true},
		{"12345-67890@g.us", "", false},
		{"98765432101234@lid", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := r.AddressToPhone(tt.addr)
		if ok != tt.wantOK || got != tt.want {
			t.Fatalf("AddressToPhone(%q) = (%q, %v), want (%q, %v)", tt.addr, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	r := NewResolver(&fakeEntities{}, nil, "")
	addr := r.PhoneToAddress("+911234567890")
	phone, ok := r.AddressToPhone(addr)
	if !ok || phone != "+911234567890" {
		t.Fatalf("round trip gave (%q, %v)", phone, ok)
	}
}

func TestResolveEntity(t *testing.T) {
	entities := &fakeEntities{
		byPhone: map[string]models.EntityRef{
			"911234567890": {Type: models.EntityLead, ID: "LEAD-1"},
		},
		names: map[string]string{"LEAD-1": "Asha Rao"},
	}
	r := NewResolver(entities, nil, "")

	ref, ok := r.ResolveEntity(context.Background(), "+91 1234567890")
	if !ok || ref.ID != "LEAD-1" {
		t.Fatalf("expected LEAD-1, got (%+v, %v)", ref, ok)
	}
	if name := r.DisplayName(context.Background(), "+911234567890"); name != "Asha Rao" {
		t.Fatalf("DisplayName = %q", name)
	}

	if _, ok := r.ResolveEntity(context.Background(), "+440000000000"); ok {
		t.Fatal("unknown phone should be unresolved")
	}
}

type fakeDirectory struct {
	chats []transport.Chat
	calls int
}

func (f *fakeDirectory) Chats(_ context.Context) ([]transport.Chat, error) {
	f.calls++
	return f.chats, nil
}

func (f *fakeDirectory) Messages(_ context.Context, _ string, _ int) ([]transport.Record, error) {
	return nil, nil
}

func TestChatJIDUsesDirectoryOnce(t *testing.T) {
	dir := &fakeDirectory{chats: []transport.Chat{
		{JID: "447700900000@s.whatsapp.net"},
		{JID: "911234567890:3@s.whatsapp.net"},
	}}
	r := NewResolver(&fakeEntities{}, dir, "")

	got := r.ChatJID(context.Background(), "+911234567890")
	if got != "911234567890:3@s.whatsapp.net" {
		t.Fatalf("ChatJID = %q", got)
	}
	r.ChatJID(context.Background(), "+911234567890")
	if dir.calls != 1 {
		t.Fatalf("directory hit %d times, want 1", dir.calls)
	}

	// Unknown phone falls back to the derived address.
	if got := r.ChatJID(context.Background(), "+15550001111"); got != "15550001111@s.whatsapp.net" {
		t.Fatalf("fallback ChatJID = %q", got)
	}
}

func TestResolveEntityDegradesOnError(t *testing.T) {
	r := NewResolver(&fakeEntities{failing: true}, nil, "")
	if _, ok := r.ResolveEntity(context.Background(), "+911234567890"); ok {
		t.Fatal("store error must resolve to unresolved, not panic or propagate")
	}
}
