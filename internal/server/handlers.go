package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ppiankov/claimdesk/internal/model"
)

type updateRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type actionResult struct {
	ID     model.ClaimID `json:"id"`
	Action string        `json:"action"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ok(w, map[string]any{
		"status":  "healthy",
		"service": "claimdesk",
		"target":  s.target,
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	view, err := s.ctl.View(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, view)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		target = s.target
	}
	if s.results == nil {
		fail(w, http.StatusNotFound, "NOT_FOUND", "Not found", "results are not cached")
		return
	}
	entry, found := s.results.Results(target)
	if !found {
		fail(w, http.StatusNotFound, "NOT_FOUND", "Not found", fmt.Sprintf("no results for %q yet", target))
		return
	}
	ok(w, entry)
}

// claimAction adapts a single-claim transition to a handler
func (s *Server) claimAction(fn func(Controller, context.Context, model.ClaimID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := model.ClaimID(r.PathValue("id"))
		if err := fn(s.ctl, r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		ok(w, actionResult{ID: id, Action: actionName(r)})
	}
}

// actionName is the last path segment, e.g. "stage"
func actionName(r *http.Request) string {
	p := r.URL.Path
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decode(w, r, &req) {
		return
	}
	field, err := model.ParseField(req.Field)
	if err != nil {
		writeError(w, r, err)
		return
	}
	claim, err := s.ctl.UpdatePending(r.Context(), model.ClaimID(r.PathValue("id")), field, req.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, claim)
}

func (s *Server) handleDiscardBlock(w http.ResponseWriter, r *http.Request) {
	blockID := r.PathValue("id")
	n, err := s.ctl.DiscardCollection(r.Context(), blockID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, map[string]any{"block_id": blockID, "discarded": n})
}

func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	claim, err := s.ctl.Resend(r.Context(), model.ClaimID(r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Data: claim})
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	n, err := s.ctl.Dispatch(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	accepted(w, map[string]any{"dispatched": n})
}

func (s *Server) handleTextBlock(w http.ResponseWriter, r *http.Request) {
	var req model.TextBlockRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := s.text.Submit(req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	accepted(w, model.TextBlockResponse{
		Status:   "accepted",
		Message:  "Text block received, processing claims...",
		SourceID: id,
	})
}

// decode reads a JSON body, replying 400 on failure
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "Malformed JSON body", err.Error())
		return false
	}
	return true
}
