package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"whatsapp-crm-sync/internal/media"
)

// ServeMedia streams an attachment by its opaque token.
func (s *server) ServeMedia() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.proxy == nil {
			s.respondError(w, http.StatusNotImplemented, "media storage not configured")
			return
		}
		token := mux.Vars(r)["filename"]

		data, contentType, err := s.proxy.Get(r.Context(), token)
		switch {
		case errors.Is(err, media.ErrBadToken):
			s.respondError(w, http.StatusBadRequest, "invalid media token")
			return
		case errors.Is(err, media.ErrNotFound):
			s.respondError(w, http.StatusNotFound, "media not found")
			return
		case err != nil:
			s.respondError(w, http.StatusInternalServerError, "media read failed")
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Cache-Control", "private, max-age=3600")
		w.Write(data)
	}
}
