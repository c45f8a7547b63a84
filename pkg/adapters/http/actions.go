package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aretw0/tally/pkg/schema"
	"github.com/go-chi/chi/v5"
)

// ValidationIssue is one entry of a failed validation response.
type ValidationIssue struct {
	Kind   schema.ErrorKind `json:"kind"`
	Field  string           `json:"field,omitempty"`
	Reason string           `json:"reason"`
}

// ValidationResponse is the body of POST /v1/actions/{name}/validate.
type ValidationResponse struct {
	Valid  bool              `json:"valid"`
	Args   map[string]any    `json:"args,omitempty"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// ListActions handles the GET /v1/actions request.
func (s *Server) ListActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Assistant.Registry().Definitions())
}

// ValidateAction handles the POST /v1/actions/{name}/validate request.
// It runs the declared schema against the body without executing anything.
func (s *Server) ValidateAction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	args, err := s.Assistant.Registry().Validate(name, raw)
	if err == nil {
		writeJSON(w, http.StatusOK, ValidationResponse{Valid: true, Args: args})
		return
	}

	status := http.StatusUnprocessableEntity
	if schema.HasKind(err, schema.KindUnknownAction) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, ValidationResponse{Errors: issues(err)})
}

func issues(err error) []ValidationIssue {
	var out []ValidationIssue
	for _, e := range schema.ValidationErrors(err) {
		var ve *schema.ValidationError
		if !errors.As(e, &ve) {
			out = append(out, ValidationIssue{Kind: schema.KindInvalidValue, Reason: e.Error()})
			continue
		}
		issue := ValidationIssue{Kind: ve.Kind, Field: ve.Key, Reason: ve.Reason}
		if ve.Kind == schema.KindUnknownAction {
			issue.Field = ""
			issue.Reason = ve.Error()
		}
		out = append(out, issue)
	}
	if len(out) == 0 {
		out = append(out, ValidationIssue{Kind: schema.KindInvalidValue, Reason: err.Error()})
	}
	return out
}
