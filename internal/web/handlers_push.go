package web

import (
	"encoding/json"
	"net/http"
	"strings"
)

type pushConfigResponse struct {
	Enabled           bool   `json:"enabled"`
	VAPIDPublicKey    string `json:"vapidPublicKey,omitempty"`
	Subject           string `json:"subject,omitempty"`
	SubscriptionCount int    `json:"subscriptionCount,omitempty"`
}

type pushResultResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type pushEndpointRequest struct {
	Endpoint string `json:"endpoint"`
	Focused  bool   `json:"focused"`
}

// guardPush handles the checks every push route shares. Returns false after
// writing the error response when the request must not proceed.
func (s *Server) guardPush(w http.ResponseWriter, r *http.Request, method string, needService bool) bool {
	if r.Method != method {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return false
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return false
	}
	if needService && (s.push == nil || !s.push.Enabled()) {
		writeAPIError(w, http.StatusServiceUnavailable, "PUSH_NOT_CONFIGURED", "push notifications are not configured")
		return false
	}
	return true
}

func (s *Server) handlePushConfig(w http.ResponseWriter, r *http.Request) {
	if !s.guardPush(w, r, http.MethodGet, false) {
		return
	}

	resp := pushConfigResponse{Enabled: s.push != nil && s.push.Enabled()}
	if resp.Enabled {
		resp.VAPIDPublicKey = s.push.PublicKey()
		resp.Subject = s.push.Subject()
		if count, err := s.push.SubscriberCount(r.Context()); err == nil {
			resp.SubscriptionCount = count
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePushSubscribe(w http.ResponseWriter, r *http.Request) {
	if !s.guardPush(w, r, http.MethodPost, true) {
		return
	}

	var sub pushSubscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid subscription payload")
		return
	}
	sub = sub.normalize()
	if err := sub.validate(); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if err := s.push.SaveSubscription(r.Context(), sub); err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to save push subscription")
		return
	}
	writeJSON(w, http.StatusOK, pushResultResponse{OK: true, Message: "subscription saved"})
}

// handlePushPresence records whether the subscribing tab is foregrounded.
// The notifier skips focused subscribers, so the page reports focus changes
// here as they happen.
func (s *Server) handlePushPresence(w http.ResponseWriter, r *http.Request) {
	if !s.guardPush(w, r, http.MethodPost, true) {
		return
	}

	var req pushEndpointRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	req.Endpoint = strings.TrimSpace(req.Endpoint)
	if req.Endpoint == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "endpoint is required")
		return
	}

	if err := s.push.SetSubscriptionFocus(r.Context(), req.Endpoint, req.Focused); err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to record push presence")
		return
	}
	writeJSON(w, http.StatusOK, pushResultResponse{OK: true})
}

func (s *Server) handlePushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if !s.guardPush(w, r, http.MethodPost, true) {
		return
	}

	var req pushEndpointRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	req.Endpoint = strings.TrimSpace(req.Endpoint)
	if req.Endpoint == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "endpoint is required")
		return
	}

	if err := s.push.DropSubscription(r.Context(), req.Endpoint); err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to remove push subscription")
		return
	}
	writeJSON(w, http.StatusOK, pushResultResponse{OK: true, Message: "subscription removed"})
}
