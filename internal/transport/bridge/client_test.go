package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"whatsapp-crm-sync/internal/transport"
)

func TestSendText(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message_id":"SENT-1","chat_jid":"911234567890@s.whatsapp.net"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.SendText(context.Background(), "911234567890@s.whatsapp.net", "hello", "Agent A")
	if err != nil {
		t.Fatal(err)
	}
	if res.MessageID != "SENT-1" {
		t.Fatalf("result = %+v", res)
	}
	if got.Phone != "911234567890@s.whatsapp.net" || got.Message != "hello" || got.SenderName != "Agent A" {
		t.Fatalf("request body = %+v", got)
	}
}

func TestSendTextUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "session lost", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	_, err := c.SendText(context.Background(), "x@s.whatsapp.net", "hi", "")
	if !errors.Is(err, transport.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestAssignClearsWithNull(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	if err := c.Assign(context.Background(), "911234567890@s.whatsapp.net", ""); err != nil {
		t.Fatal(err)
	}
	if v, present := body["assigned_to"]; !present || v != nil {
		t.Fatalf("clear must send explicit null, got %v", body)
	}

	if err := c.Assign(context.Background(), "911234567890@s.whatsapp.net", "agent1"); err != nil {
		t.Fatal(err)
	}
	if body["assigned_to"] != "agent1" {
		t.Fatalf("assigned_to = %v", body["assigned_to"])
	}
}

func TestMessagesPassesLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Fatalf("limit = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"M1","chat_jid":"x@s.whatsapp.net","timestamp":"2024-03-01T10:00:00Z"}]`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	records, err := c.Messages(context.Background(), "x@s.whatsapp.net", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != "M1" {
		t.Fatalf("records = %+v", records)
	}
}

func TestMediaReturnsBytesAndContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/media/abc123.jpg" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg bytes"))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	data, ct, err := c.Media(context.Background(), "abc123.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "jpeg bytes" || ct != "image/jpeg" {
		t.Fatalf("got (%q, %q)", data, ct)
	}
}

func TestGetStatusAndQR(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/status":
			w.Write([]byte(`{"connected":false,"reason":"pairing"}`))
		case "/qr":
			w.Write([]byte(`{"qr":"2@abcdef"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	status, err := c.GetStatus(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if status.Connected || status.Reason != "pairing" {
		t.Fatalf("status = %+v", status)
	}
	qr, err := c.QR(context.Background())
	if err != nil || qr != "2@abcdef" {
		t.Fatalf("qr = (%q, %v)", qr, err)
	}
}

func TestCapabilitiesExcludeReactionsAndTemplates(t *testing.T) {
	c, _ := NewClient("http://bridge.local")
	for _, capability := range []transport.Capability{transport.CapReaction, transport.CapTemplate} {
		if transport.Supports(c, capability) {
			t.Fatalf("bridge must not advertise %s", capability)
		}
	}
	if !transport.Supports(c, transport.CapDirectory) {
		t.Fatal("bridge must advertise the chat directory")
	}
}
