package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/riskguard/riskguard/internal/middleware"
	"github.com/riskguard/riskguard/internal/model"
	"github.com/riskguard/riskguard/internal/service"
)

// EvaluateRequest is the body of POST /api/v1/risk/evaluate
type EvaluateRequest struct {
	EventType      string              `json:"event_type"`
	TypingFeatures *model.TypingSample `json:"typing_features,omitempty"`
}

// EvaluateResponse is returned for every scored event
type EvaluateResponse struct {
	RiskScore   int                `json:"risk_score"`
	Action      model.Action       `json:"action"`
	Reasons     []model.ReasonCode `json:"reasons"`
	DeviceToken string             `json:"device_token"`
	EventID     string             `json:"event_id"`
}

// EventListResponse wraps the caller's recent events
type EventListResponse struct {
	Events []*model.RiskEvent `json:"events"`
}

// Evaluate scores one security-sensitive action for the authenticated user
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req EvaluateRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "Request body must be a JSON object with event_type")
		return
	}
	if msg := validateTyping(req.TypingFeatures); msg != "" {
		writeError(w, r, http.StatusBadRequest, "invalid_typing_features", msg)
		return
	}

	identity := h.devices.Resolve(r)

	result, err := h.riskSvc.Evaluate(r.Context(), service.EvaluateRequest{
		UserID:      userID,
		DeviceToken: identity.Token,
		EventType:   req.EventType,
		Typing:      req.TypingFeatures,
		Signals:     h.signals.Extract(r),
	})
	if errors.Is(err, service.ErrInvalidEventType) {
		writeError(w, r, http.StatusBadRequest, "invalid_event_type", "event_type must be one of login, signup, reward_redeem, payment, profile_edit, password_change")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	if identity.Minted {
		h.devices.SetCookie(w, identity.Token)
	}

	writeJSON(w, http.StatusOK, EvaluateResponse{
		RiskScore:   result.RiskScore,
		Action:      result.Action,
		Reasons:     result.Reasons,
		DeviceToken: identity.Token,
		EventID:     result.EventID,
	})
}

func validateTyping(s *model.TypingSample) string {
	if s == nil {
		return ""
	}
	if s.SampleSize < 0 || s.PasteCount < 0 {
		return "typing_features counts must not be negative"
	}
	if s.MeanDwell < 0 || s.StdDwell < 0 || s.MeanFlight < 0 || s.StdFlight < 0 {
		return "typing_features timings must not be negative"
	}
	if s.BackspaceRatio < 0 || s.BackspaceRatio > 1 {
		return "typing_features.backspace_ratio must be between 0 and 1"
	}
	return ""
}

// GetEvent returns one of the caller's own risk events
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	event, err := h.riskSvc.GetEvent(r.Context(), userID, r.PathValue("id"))
	if errors.Is(err, service.ErrEventNotFound) {
		writeError(w, r, http.StatusNotFound, "not_found", "Risk event not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// ListEvents returns the caller's most recent risk events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := h.riskSvc.ListEvents(r.Context(), userID, limit)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, EventListResponse{Events: events})
}
