package http

import (
	"net/http"

	"github.com/aretw0/tally/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// ListConversations handles the GET /v1/conversations request.
func (s *Server) ListConversations(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	ids, err := s.Sessions.List(r.Context(), identity.UserID)
	if err != nil {
		s.Logger.Error("ListConversations failed", "err", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": ids})
}

// GetConversation handles the GET /v1/conversations/{id} request.
func (s *Server) GetConversation(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	t, err := s.Sessions.Load(r.Context(), chi.URLParam(r, "id"), identity.UserID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DeleteConversation handles the DELETE /v1/conversations/{id} request.
func (s *Server) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	if err := s.Sessions.Delete(r.Context(), chi.URLParam(r, "id"), identity.UserID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRecords handles the GET /v1/records request. The optional kind query
// parameter filters by entity kind.
func (s *Server) ListRecords(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	kind := domain.EntityKind(r.URL.Query().Get("kind"))
	switch kind {
	case "", domain.EntityTask, domain.EntityDeal, domain.EntityExpense:
	default:
		writeError(w, http.StatusBadRequest, "unknown kind "+string(kind))
		return
	}

	records, err := s.Records.List(r.Context(), identity.UserID, kind)
	if err != nil {
		s.Logger.Error("ListRecords failed", "err", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	if records == nil {
		records = []domain.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}
