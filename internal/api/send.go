package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"whatsapp-crm-sync/internal/dispatch"
	"whatsapp-crm-sync/internal/transport"
)

// SendMessage dispatches an outbound message. A transport failure is a 200
// with status "failed"; only capability and validation problems are HTTP
// errors.
func (s *server) SendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dispatch.SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "malformed body")
			return
		}

		result, err := s.dispatcher.Send(r.Context(), req)
		if err != nil {
			if errors.Is(err, transport.ErrUnsupportedCapability) {
				s.respondError(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
			log.Warn().Err(err).Msg("Send rejected")
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.respondJSON(w, http.StatusOK, result)
	}
}
