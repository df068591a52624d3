package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"
)

// Status reports transport health and realtime channel load.
func (s *server) Status() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"transport": s.transport.Name(),
		}
		if s.admin != nil {
			status, err := s.admin.GetStatus(r.Context())
			if err != nil {
				body["connected"] = false
				body["error"] = err.Error()
			} else {
				body["connected"] = status.Connected
				if status.Reason != "" {
					body["reason"] = status.Reason
				}
			}
		} else {
			// Store-and-forward transports have no session to lose.
			body["connected"] = true
		}
		if s.hub != nil {
			body["realtime_clients"] = s.hub.ClientCount()
		}
		if s.publisher != nil {
			body["pending_events"] = s.publisher.PendingCount()
		}
		s.respondJSON(w, http.StatusOK, body)
	}
}

// QRImage renders the current pairing code as a PNG. 404 once paired.
func (s *server) QRImage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.admin == nil {
			s.respondError(w, http.StatusNotImplemented, "pairing requires the bridge transport")
			return
		}
		payload, err := s.admin.QR(r.Context())
		if err != nil {
			s.respondError(w, http.StatusBadGateway, "pairing code unavailable")
			return
		}
		if payload == "" {
			s.respondError(w, http.StatusNotFound, "already paired")
			return
		}

		png, err := qrcode.Encode(payload, qrcode.Medium, 256)
		if err != nil {
			log.Error().Err(err).Msg("QR render failed")
			s.respondError(w, http.StatusInternalServerError, "qr render failed")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		w.Write(png)
	}
}

// DeliveryStatus reports the realtime fan-out state.
func (s *server) DeliveryStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.publisher == nil {
			s.respondError(w, http.StatusServiceUnavailable, "realtime publishing not configured")
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"status":         "running",
			"pending_events": s.publisher.PendingCount(),
		})
	}
}

// EventStatus looks up one in-flight event.
func (s *server) EventStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.publisher == nil {
			s.respondError(w, http.StatusServiceUnavailable, "realtime publishing not configured")
			return
		}
		eventID := mux.Vars(r)["eventId"]
		event, ok := s.publisher.EventStatus(eventID)
		if !ok {
			s.respondError(w, http.StatusNotFound, "event not found or already completed")
			return
		}
		s.respondJSON(w, http.StatusOK, event)
	}
}

// ForceRetry re-attempts pending realtime deliveries, all of them or one by
// event id.
func (s *server) ForceRetry() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.publisher == nil {
			s.respondError(w, http.StatusServiceUnavailable, "realtime publishing not configured")
			return
		}
		if eventID := mux.Vars(r)["eventId"]; eventID != "" {
			if !s.publisher.RetryEvent(eventID) {
				s.respondError(w, http.StatusNotFound, "event not found")
				return
			}
			log.Info().Str("eventID", eventID).Msg("Manual retry triggered")
			s.respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "retried": 1})
			return
		}
		retried := s.publisher.RetryNow()
		log.Info().Int("retried", retried).Msg("Manual retry triggered")
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "retried": retried})
	}
}
