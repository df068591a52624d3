package normalize

import (
	"errors"
	"testing"

	"whatsapp-crm-sync/internal/identity"
	"whatsapp-crm-sync/internal/models"
	"whatsapp-crm-sync/internal/transport"
)

func newNormalizer() *Normalizer {
	return New(identity.NewResolver(nil, nil, ""))
}

func TestNormalizeIncomingText(t *testing.T) {
	rec := transport.Record{
		ID:          "M1",
		ChatJID:     "911234567890@s.whatsapp.net",
		Content:     "hello",
		ContentType: "text",
		Timestamp:   "2024-03-01T10:00:00Z",
	}
	msg, err := newNormalizer().Normalize(rec)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if msg.Direction != models.DirectionIncoming {
		t.Fatalf("direction = %q", msg.Direction)
	}
	if msg.Counterpart != "+911234567890" {
		t.Fatalf("counterpart = %q", msg.Counterpart)
	}
	if msg.Status != models.StatusReceived {
		t.Fatalf("status = %q", msg.Status)
	}
	if msg.CreatedAt != "2024-03-01T10:00:00Z" {
		t.Fatalf("created_at = %q", msg.CreatedAt)
	}
}

func TestNormalizeOutgoing(t *testing.T) {
	msg, err := newNormalizer().Normalize(transport.Record{
		ID:        "M2",
		ChatJID:   "911234567890@s.whatsapp.net",
		IsFromMe:  true,
		Timestamp: "2024-03-01T10:01:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Direction != models.DirectionOutgoing || msg.Status != models.StatusSent {
		t.Fatalf("got %q/%q", msg.Direction, msg.Status)
	}
}

func TestNormalizeMissingTimestamp(t *testing.T) {
	_, err := newNormalizer().Normalize(transport.Record{ID: "M3", ChatJID: "x@s.whatsapp.net"})
	if !errors.Is(err, ErrMissingTimestamp) {
		t.Fatalf("err = %v, want ErrMissingTimestamp", err)
	}
}

func TestNormalizeIncomingUsesSender(t *testing.T) {
	msg, err := newNormalizer().Normalize(transport.Record{
		ID:        "M10",
		ChatJID:   "1203630200212@g.us",
		Sender:    "911234567890@s.whatsapp.net",
		Timestamp: "2024-03-01T10:05:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Counterpart != "+911234567890" {
		t.Fatalf("counterpart = %q, want the sender's phone", msg.Counterpart)
	}
}

func TestNormalizeOutgoingAddressesChat(t *testing.T) {
	msg, err := newNormalizer().Normalize(transport.Record{
		ID:        "M11",
		ChatJID:   "911234567890@s.whatsapp.net",
		Sender:    "918888888888@s.whatsapp.net",
		IsFromMe:  true,
		Timestamp: "2024-03-01T10:06:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Counterpart != "+911234567890" {
		t.Fatalf("counterpart = %q, want the chat's phone", msg.Counterpart)
	}
}

func TestNormalizeGroupKeepsJID(t *testing.T) {
	msg, err := newNormalizer().Normalize(transport.Record{
		ID:        "M4",
		ChatJID:   "1203630200212@g.us",
		Timestamp: "2024-03-01T10:02:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Counterpart != "1203630200212@g.us" {
		t.Fatalf("group counterpart = %q", msg.Counterpart)
	}
}

func TestProxyRef(t *testing.T) {
	tests := []struct {
		name string
		rec  transport.Record
		want string
	}{
		{
			"url with query",
			transport.Record{MediaURL: "http://bridge:9090/media/abc123.jpg?token=secret"},
			"/api/media/abc123.jpg",
		},
		{
			"local filename",
			transport.Record{MediaFilename: "def456.pdf"},
			"/api/media/def456.pdf",
		},
		{
			"no attachment",
			transport.Record{},
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProxyRef(tt.rec); got != tt.want {
				t.Fatalf("ProxyRef = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProxyRefDeterministic(t *testing.T) {
	rec := transport.Record{MediaURL: "http://bridge:9090/media/abc123.jpg?t=1"}
	first := ProxyRef(rec)
	rec.MediaURL = "http://bridge:9090/media/abc123.jpg?t=2"
	if second := ProxyRef(rec); second != first {
		t.Fatalf("same media produced %q then %q", first, second)
	}
}

func TestNormalizeAllSkipsBadRecords(t *testing.T) {
	out := newNormalizer().NormalizeAll([]transport.Record{
		{ID: "good", ChatJID: "911234567890@s.whatsapp.net", Timestamp: "2024-03-01T10:00:00Z"},
		{ID: "bad", ChatJID: "911234567890@s.whatsapp.net"},
	})
	if len(out) != 1 || out[0].ID != "good" {
		t.Fatalf("NormalizeAll kept %d records", len(out))
	}
}
