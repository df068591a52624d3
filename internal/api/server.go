// Package api exposes the HTTP surface: agent-facing chat and send
// endpoints, manager-only chat administration, the transport webhook and the
// realtime channel.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"whatsapp-crm-sync/config"
	"whatsapp-crm-sync/internal/dispatch"
	"whatsapp-crm-sync/internal/identity"
	"whatsapp-crm-sync/internal/media"
	"whatsapp-crm-sync/internal/normalize"
	"whatsapp-crm-sync/internal/realtime"
	"whatsapp-crm-sync/internal/store"
	"whatsapp-crm-sync/internal/transport"
	"whatsapp-crm-sync/internal/transport/bridge"
	"whatsapp-crm-sync/internal/webhook"
)

type server struct {
	cfg        *config.Config
	store      store.Store
	transport  transport.Transport
	admin      *bridge.Client
	resolver   *identity.Resolver
	normalizer *normalize.Normalizer
	dispatcher *dispatch.Dispatcher
	webhook    *webhook.Processor
	proxy      *media.Proxy
	publisher  *realtime.Publisher
	hub        *realtime.Hub
}

// Deps carries everything the HTTP layer needs. Admin is nil when the
// active transport is not the bridge; the chat administration endpoints then
// answer 501.
type Deps struct {
	Config     *config.Config
	Store      store.Store
	Transport  transport.Transport
	Admin      *bridge.Client
	Resolver   *identity.Resolver
	Normalizer *normalize.Normalizer
	Dispatcher *dispatch.Dispatcher
	Webhook    *webhook.Processor
	Proxy      *media.Proxy
	Publisher  *realtime.Publisher
	Hub        *realtime.Hub
}

// NewRouter builds the full route table.
func NewRouter(d Deps) (*mux.Router, error) {
	if d.Config == nil || d.Store == nil || d.Transport == nil {
		return nil, fmt.Errorf("router requires config, store and transport")
	}
	if d.Resolver == nil || d.Normalizer == nil || d.Dispatcher == nil || d.Webhook == nil {
		return nil, fmt.Errorf("router requires the full pipeline")
	}
	s := &server{
		cfg:        d.Config,
		store:      d.Store,
		transport:  d.Transport,
		admin:      d.Admin,
		resolver:   d.Resolver,
		normalizer: d.Normalizer,
		dispatcher: d.Dispatcher,
		webhook:    d.Webhook,
		proxy:      d.Proxy,
		publisher:  d.Publisher,
		hub:        d.Hub,
	}

	base := alice.New(s.logged, s.measured)
	agent := base.Append(s.requireRole(roleAgent))
	manager := base.Append(s.requireRole(roleManager))

	r := mux.NewRouter()
	r.Handle("/webhook/whatsapp", base.Then(s.webhook)).Methods(http.MethodPost)

	r.Handle("/api/chats", agent.ThenFunc(s.ListChats())).Methods(http.MethodGet)
	r.Handle("/api/chats/merge-duplicates", manager.ThenFunc(s.MergeChats())).Methods(http.MethodPost)
	r.Handle("/api/chats/convert-to-lead", agent.ThenFunc(s.ConvertToLead())).Methods(http.MethodPost)
	r.Handle("/api/chats/{jid}/messages", agent.ThenFunc(s.ChatMessages())).Methods(http.MethodGet)
	r.Handle("/api/chats/{jid}/messages/{id}", manager.ThenFunc(s.DeleteMessage())).Methods(http.MethodDelete)
	r.Handle("/api/chats/{jid}/assign", manager.ThenFunc(s.AssignChat())).Methods(http.MethodPost)
	r.Handle("/api/chats/{jid}/photo", agent.ThenFunc(s.ChatPhoto())).Methods(http.MethodGet)
	r.Handle("/api/chats/{jid}", manager.ThenFunc(s.DeleteChat())).Methods(http.MethodDelete)

	r.Handle("/api/send", agent.ThenFunc(s.SendMessage())).Methods(http.MethodPost)
	r.Handle("/api/media/{filename}", agent.ThenFunc(s.ServeMedia())).Methods(http.MethodGet)

	r.Handle("/api/chat-lead", agent.ThenFunc(s.ChatLead())).Methods(http.MethodGet)
	r.Handle("/api/references/{type}/{id}/messages", agent.ThenFunc(s.ReferenceMessages())).Methods(http.MethodGet)

	r.Handle("/api/status", agent.ThenFunc(s.Status())).Methods(http.MethodGet)
	r.Handle("/api/status/qr.png", agent.ThenFunc(s.QRImage())).Methods(http.MethodGet)

	if s.hub != nil {
		r.Handle("/api/realtime/ws", agent.ThenFunc(s.hub.ServeWS)).Methods(http.MethodGet)
	}
	r.Handle("/api/realtime/status", manager.ThenFunc(s.DeliveryStatus())).Methods(http.MethodGet)
	r.Handle("/api/realtime/events/{eventId}", manager.ThenFunc(s.EventStatus())).Methods(http.MethodGet)
	r.Handle("/api/realtime/retry", manager.ThenFunc(s.ForceRetry())).Methods(http.MethodPost)
	r.Handle("/api/realtime/retry/{eventId}", manager.ThenFunc(s.ForceRetry())).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r, nil
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, errorBody{Error: msg})
}
