package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"whatsapp-crm-sync/internal/identity"
	"whatsapp-crm-sync/internal/models"
	"whatsapp-crm-sync/internal/reconcile"
	"whatsapp-crm-sync/internal/store"
)

// broadcastJID is the transport's broadcast pseudo-chat; it never syncs.
const broadcastJID = "status@broadcast"

// ListChats returns the chat directory with CRM names folded in. Supports
// ?search= over name and phone.
func (s *server) ListChats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.admin == nil {
			s.respondError(w, http.StatusNotImplemented, "chat listing requires the bridge transport")
			return
		}
		chats, err := s.admin.Chats(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Chat listing failed")
			s.respondError(w, http.StatusBadGateway, "chat listing unavailable")
			return
		}

		search := strings.ToLower(r.URL.Query().Get("search"))
		out := make([]models.ChatSummary, 0, len(chats))
		for _, c := range chats {
			if c.JID == broadcastJID {
				continue
			}
			summary := models.ChatSummary{
				JID:                   c.JID,
				ContactName:           c.Name,
				IsGroup:               identity.IsGroup(c.JID),
				LastMessage:           c.LastMessage,
				LastMessageTime:       c.LastMessageTime,
				LastMessageIsFromMe:   c.LastMessageIsFromMe,
				LastMessageSenderName: c.LastMessageSenderName,
				AssignedTo:            c.AssignedTo,
			}
			// The bridge resolves opaque @lid chats to a phone; trust its
			// phone field first and fall back to deriving from the JID.
			if phone := identity.DisplayPhone(c.Phone); phone != "" {
				summary.Phone = phone
			} else if phone, ok := s.resolver.AddressToPhone(c.JID); ok {
				summary.Phone = phone
			}
			if summary.Phone != "" {
				if name := s.resolver.DisplayName(r.Context(), summary.Phone); name != "" {
					summary.ContactName = name
				}
			}
			if summary.ContactName == "" {
				if summary.Phone != "" {
					summary.ContactName = summary.Phone
				} else {
					summary.ContactName = c.JID
				}
			}
			if c.PhotoURL != "" {
				summary.PhotoURL = "/api/chats/" + url.PathEscape(c.JID) + "/photo"
			}

			if search != "" &&
				!strings.Contains(strings.ToLower(summary.ContactName), search) &&
				!strings.Contains(summary.Phone, search) {
				continue
			}
			out = append(out, summary)
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"chats": out})
	}
}

// ChatMessages fetches, normalizes and threads a chat's history.
func (s *server) ChatMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.admin == nil {
			s.respondError(w, http.StatusNotImplemented, "message history requires the bridge transport")
			return
		}
		jid := mux.Vars(r)["jid"]

		limit := s.cfg.ChatFetchLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		records, err := s.admin.Messages(r.Context(), jid, limit)
		if err != nil {
			log.Error().Err(err).Str("jid", jid).Msg("Message fetch failed")
			s.respondError(w, http.StatusBadGateway, "message history unavailable")
			return
		}

		msgs := s.normalizer.NormalizeAll(records)
		display := reconcile.Reconcile(msgs, func(counterpart string) string {
			return s.resolver.DisplayName(r.Context(), counterpart)
		})
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"messages": display})
	}
}

// ReferenceMessages returns the WhatsApp conversation linked to a CRM
// entity: the entity's phone is resolved first, then its live chat JID, then
// the history. Without the bridge (or when it is down) the durable archive
// serves the thread instead.
func (s *server) ReferenceMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		ref := models.EntityRef{Type: models.EntityType(vars["type"]), ID: vars["id"]}
		switch ref.Type {
		case models.EntityLead, models.EntityDeal, models.EntityContact:
		default:
			s.respondError(w, http.StatusBadRequest, "unknown entity type")
			return
		}

		phone, err := s.store.PhoneFor(r.Context(), ref)
		if err != nil {
			s.respondError(w, http.StatusNotFound, "entity not found")
			return
		}

		nameFor := func(counterpart string) string {
			return s.resolver.DisplayName(r.Context(), counterpart)
		}

		if s.admin != nil && identity.NormalizePhone(phone) != "" {
			limit := s.cfg.ChatFetchLimit
			if v := r.URL.Query().Get("limit"); v != "" {
				if n, err := strconv.Atoi(v); err == nil && n > 0 {
					limit = n
				}
			}
			jid := s.resolver.ChatJID(r.Context(), phone)
			records, err := s.admin.Messages(r.Context(), jid, limit)
			if err == nil {
				display := reconcile.Reconcile(s.normalizer.NormalizeAll(records), nameFor)
				s.respondJSON(w, http.StatusOK, map[string]interface{}{
					"phone":    identity.DisplayPhone(phone),
					"chat_jid": jid,
					"messages": display,
				})
				return
			}
			log.Warn().Err(err).Str("jid", jid).Msg("Live history unavailable, serving archive")
		}

		msgs, err := s.store.ByReference(r.Context(), ref)
		if err != nil {
			log.Error().Err(err).Str("entity_id", ref.ID).Msg("Archive fetch failed")
			s.respondError(w, http.StatusInternalServerError, "message history unavailable")
			return
		}
		display := reconcile.Reconcile(msgs, nameFor)
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"phone":    identity.DisplayPhone(phone),
			"messages": display,
		})
	}
}

// AssignChat sets or clears a chat's assigned user. A null or empty user
// clears the assignment.
func (s *server) AssignChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.admin == nil {
			s.respondError(w, http.StatusNotImplemented, "assignment requires the bridge transport")
			return
		}
		jid := mux.Vars(r)["jid"]

		var body struct {
			User string `json:"user"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.respondError(w, http.StatusBadRequest, "malformed body")
			return
		}
		if err := s.admin.Assign(r.Context(), jid, body.User); err != nil {
			log.Error().Err(err).Str("jid", jid).Msg("Assign failed")
			s.respondError(w, http.StatusBadGateway, "assign failed")
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "assigned_to": body.User})
	}
}

func (s *server) DeleteChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.admin == nil {
			s.respondError(w, http.StatusNotImplemented, "chat deletion requires the bridge transport")
			return
		}
		jid := mux.Vars(r)["jid"]
		if err := s.admin.DeleteChat(r.Context(), jid); err != nil {
			log.Error().Err(err).Str("jid", jid).Msg("Chat deletion failed")
			s.respondError(w, http.StatusBadGateway, "delete failed")
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	}
}

func (s *server) DeleteMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.admin == nil {
			s.respondError(w, http.StatusNotImplemented, "message deletion requires the bridge transport")
			return
		}
		vars := mux.Vars(r)
		if err := s.admin.DeleteMessage(r.Context(), vars["jid"], vars["id"]); err != nil {
			log.Error().Err(err).Str("jid", vars["jid"]).Str("id", vars["id"]).Msg("Message deletion failed")
			s.respondError(w, http.StatusBadGateway, "delete failed")
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	}
}

func (s *server) MergeChats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.admin == nil {
			s.respondError(w, http.StatusNotImplemented, "merge requires the bridge transport")
			return
		}
		result, err := s.admin.MergeDuplicates(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Merge failed")
			s.respondError(w, http.StatusBadGateway, "merge failed")
			return
		}
		s.respondJSON(w, http.StatusOK, result)
	}
}

// ChatPhoto proxies a chat's profile photo location. The body carries the
// upstream URL only; clients that must not see it should mirror the image.
func (s *server) ChatPhoto() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.admin == nil {
			s.respondError(w, http.StatusNotImplemented, "photos require the bridge transport")
			return
		}
		jid := mux.Vars(r)["jid"]
		photoURL, err := s.admin.ProfilePhoto(r.Context(), jid)
		if err != nil {
			s.respondError(w, http.StatusBadGateway, "photo unavailable")
			return
		}
		if photoURL == "" {
			s.respondError(w, http.StatusNotFound, "no photo")
			return
		}
		http.Redirect(w, r, photoURL, http.StatusFound)
	}
}

// ChatLead resolves the CRM entity behind a phone number.
func (s *server) ChatLead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phone := r.URL.Query().Get("phone")
		if identity.NormalizePhone(phone) == "" {
			s.respondError(w, http.StatusBadRequest, "phone is required")
			return
		}
		ref, ok := s.resolver.ResolveEntity(r.Context(), phone)
		if !ok {
			s.respondJSON(w, http.StatusOK, map[string]interface{}{"found": false})
			return
		}
		name := s.resolver.DisplayName(r.Context(), phone)
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"found": true,
			"type":  ref.Type,
			"id":    ref.ID,
			"name":  name,
		})
	}
}

// ConvertToLead creates a lead from an unresolved chat.
func (s *server) ConvertToLead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Phone      string `json:"phone"`
			FirstName  string `json:"first_name"`
			LastName   string `json:"last_name"`
			Owner      string `json:"owner"`
			AssignedTo string `json:"assigned_to"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.respondError(w, http.StatusBadRequest, "malformed body")
			return
		}
		if identity.NormalizePhone(body.Phone) == "" {
			s.respondError(w, http.StatusBadRequest, "phone is required")
			return
		}
		if ref, ok := s.resolver.ResolveEntity(r.Context(), body.Phone); ok {
			s.respondJSON(w, http.StatusConflict, map[string]interface{}{
				"error": "phone already belongs to an entity",
				"type":  ref.Type,
				"id":    ref.ID,
			})
			return
		}

		ref, err := s.store.CreateLead(r.Context(), store.NewLead{
			FirstName:  body.FirstName,
			LastName:   body.LastName,
			Phone:      identity.DisplayPhone(body.Phone),
			Owner:      body.Owner,
			Source:     "WhatsApp",
			AssignedTo: body.AssignedTo,
		})
		if err != nil {
			log.Error().Err(err).Str("phone", body.Phone).Msg("Lead creation failed")
			s.respondError(w, http.StatusInternalServerError, "lead creation failed")
			return
		}
		s.respondJSON(w, http.StatusCreated, map[string]interface{}{"type": ref.Type, "id": ref.ID})
	}
}
