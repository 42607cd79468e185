package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/convault/convault/internal/vault"
)

// maxBodyBytes caps the accepted conversation body size (32 MiB).
const maxBodyBytes = 32 << 20

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type conversationListResponse struct {
	Profile string       `json:"profile"`
	Items   []vault.Meta `json:"items"`
	Total   int          `json:"total"`
	Offset  int          `json:"offset"`
	Dirty   int          `json:"dirty"`
}

type conversationResponse struct {
	Profile string          `json:"profile"`
	Meta    vault.Meta      `json:"meta"`
	Body    json.RawMessage `json:"body"`
}

type saveRequestResponse struct {
	OK   bool       `json:"ok"`
	Meta vault.Meta `json:"meta"`
}

type deleteResponse struct {
	OK      bool `json:"ok"`
	Deleted bool `json:"deleted"`
}

type titleRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	q := r.URL.Query()
	opts := vault.ListOptions{
		Query:  q.Get("q"),
		SortBy: vault.SortField(q.Get("sort")),
		Order:  vault.SortOrder(q.Get("order")),
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		opts.Offset = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		opts.Limit = v
	}

	result, err := s.store.List(opts)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conversationListResponse{
		Profile: s.cfg.Profile,
		Items:   result.Items,
		Total:   result.Total,
		Offset:  opts.Offset,
		Dirty:   s.store.DirtyCount(),
	})
}

func (s *Server) handleConversationByID(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	const prefix = "/api/conversations/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)

	// Title sub-route: /api/conversations/{id}/title
	if id, found := strings.CutSuffix(rest, "/title"); found {
		s.handleConversationTitle(w, r, id)
		return
	}

	id := rest
	if id == "" || strings.Contains(id, "/") {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "conversation id is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getConversation(w, r, id)
	case http.MethodPut:
		s.saveConversation(w, r, id)
	case http.MethodDelete:
		s.deleteConversation(w, r, id)
	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request, id string) {
	meta, ok, err := s.store.GetMeta(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !ok {
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "conversation not found")
		return
	}

	force := r.URL.Query().Get("reload") == "1"
	body, found, err := s.store.Load(r.Context(), id, force)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !found {
		// Indexed but its record is gone; surface the metadata anyway.
		body = nil
	}

	writeJSON(w, http.StatusOK, conversationResponse{
		Profile: s.cfg.Profile,
		Meta:    meta,
		Body:    body,
	})
}

func (s *Server) saveConversation(w http.ResponseWriter, r *http.Request, id string) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeAPIError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "conversation body too large")
		return
	}
	if len(body) == 0 || !json.Valid(body) {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "body must be a JSON conversation document")
		return
	}

	meta, err := s.store.Save(r.Context(), id, body, r.URL.Query().Get("title"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, saveRequestResponse{OK: true, Meta: meta})
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request, id string) {
	deleted, err := s.store.Delete(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{OK: true, Deleted: deleted})
}

func (s *Server) handleConversationTitle(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if id == "" || strings.Contains(id, "/") {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "conversation id is required")
		return
	}

	var req titleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid title payload")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "title is required")
		return
	}

	if err := s.store.UpdateTitle(r.Context(), id, req.Title); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "title": req.Title})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	result, err := s.store.Sync(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sync": result})
}

// writeStoreError maps store failure modes onto API status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vault.ErrNotFound):
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "conversation not found")
	case errors.Is(err, vault.ErrInvalidID):
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid conversation id")
	case errors.Is(err, vault.ErrIndexNotLoaded), errors.Is(err, vault.ErrStoreClosed):
		writeAPIError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "conversation store is not available")
	default:
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "conversation store operation failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiError{
			Code:    code,
			Message: message,
		},
	})
}
