package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aretw0/tally"
	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
	"github.com/aretw0/tally/pkg/runner"
	"github.com/aretw0/tally/pkg/stream"
)

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	ConversationID string               `json:"conversation_id,omitempty"`
	History        []domain.HistoryTurn `json:"history,omitempty"`
	Message        string               `json:"message"`
	Budget         int                  `json:"budget,omitempty"`
}

// Chat handles the POST /v1/chat request.
//
// With Accept: text/event-stream the answer is streamed as SSE frames
// (progress, delta, then done or abort) followed by a final "reply" event.
// Otherwise the Reply is returned as a single JSON document.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, domain.ErrMissingIdentity.Error())
		return
	}

	var body ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, runner.MaxRequestBytes())).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			s.Logger.Warn("Chat: Request body too large", "limit", tooLarge.Limit)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		s.Logger.Warn("Chat: Invalid request body", "err", err)
		return
	}

	message, err := runner.SanitizeInput(body.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message: "+err.Error())
		s.Logger.Warn("Chat: Input rejected", "err", err, "size", len(body.Message))
		return
	}

	history, err := runner.SanitizeHistory(body.History)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid history: "+err.Error())
		s.Logger.Warn("Chat: History rejected", "err", err, "turns", len(body.History))
		return
	}

	req := tally.Request{
		ConversationID: body.ConversationID,
		History:        history,
		Message:        message,
		Identity:       identity,
		Budget:         body.Budget,
	}
	log := s.Logger.With("user_id", identity.UserID, "conversation_id", body.ConversationID)

	if !wantsStream(r) {
		reply, err := s.Assistant.Respond(r.Context(), req, nil)
		if err != nil {
			log.Warn("Chat: Request failed", "err", err)
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, reply)
		return
	}

	sse, err := stream.NewSSE(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var emitter ports.Emitter = sse
	reply, err := s.Assistant.Respond(r.Context(), req, emitter)
	if err != nil {
		log.Warn("Chat: Request failed", "err", err)
		if sse.Closed() {
			_ = sse.Trailer("error", errorBody{Error: err.Error()})
			return
		}
		writeError(w, statusFor(err), err.Error())
		return
	}
	if err := sse.Trailer("reply", reply); err != nil {
		log.Debug("Chat: Client went away before the reply", "err", err)
	}
}

func wantsStream(r *http.Request) bool {
	if r.URL.Query().Get("stream") == "true" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}
