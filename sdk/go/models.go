package riskguard

import "time"

// Event types accepted by the evaluate endpoint.
const (
	EventLogin          = "login"
	EventSignup         = "signup"
	EventRewardRedeem   = "reward_redeem"
	EventPayment        = "payment"
	EventProfileEdit    = "profile_edit"
	EventPasswordChange = "password_change"
)

// Actions returned with a score.
const (
	ActionAllow  = "allow"
	ActionStepUp = "step_up"
	ActionHold   = "hold"
	ActionBlock  = "block"
)

// TypingFeatures summarizes keystroke timing captured by the client.
type TypingFeatures struct {
	MeanDwell      float64 `json:"mean_dwell"`
	StdDwell       float64 `json:"std_dwell"`
	MeanFlight     float64 `json:"mean_flight"`
	StdFlight      float64 `json:"std_flight"`
	BackspaceRatio float64 `json:"backspace_ratio"`
	PasteCount     int     `json:"paste_count"`
	SampleSize     int     `json:"sample_size"`
}

// EvaluateRequest is the payload for scoring one action.
type EvaluateRequest struct {
	EventType      string          `json:"event_type"`
	TypingFeatures *TypingFeatures `json:"typing_features,omitempty"`
}

// EvaluateResponse is the decision for one action.
type EvaluateResponse struct {
	RiskScore   int      `json:"risk_score"`
	Action      string   `json:"action"`
	Reasons     []string `json:"reasons"`
	DeviceToken string   `json:"device_token"`
	EventID     string   `json:"event_id"`
}

// Allowed reports whether the action may proceed without friction.
func (r *EvaluateResponse) Allowed() bool {
	return r.Action == ActionAllow
}

// Event is a recorded risk event.
type Event struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	DeviceToken    string          `json:"device_token"`
	EventType      string          `json:"event_type"`
	IPPrefix       string          `json:"ip_prefix"`
	UAFamily       string          `json:"ua_family"`
	OSFamily       string          `json:"os_family"`
	BrowserFamily  string          `json:"browser_family"`
	RiskScore      int             `json:"risk_score"`
	Action         string          `json:"action"`
	Reasons        []string        `json:"reasons"`
	TypingFeatures *TypingFeatures `json:"typing_features,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type eventList struct {
	Events []*Event `json:"events"`
}
