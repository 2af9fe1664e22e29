package model

import "time"

// EventType is the kind of security-sensitive action being scored
type EventType string

const (
	EventTypeLogin          EventType = "login"
	EventTypeSignup         EventType = "signup"
	EventTypeRewardRedeem   EventType = "reward_redeem"
	EventTypePayment        EventType = "payment"
	EventTypeProfileEdit    EventType = "profile_edit"
	EventTypePasswordChange EventType = "password_change"
)

// EventTypes lists every event type accepted by the engine
var EventTypes = []EventType{
	EventTypeLogin,
	EventTypeSignup,
	EventTypeRewardRedeem,
	EventTypePayment,
	EventTypeProfileEdit,
	EventTypePasswordChange,
}

// ParseEventType returns the EventType for s, or false if s is not a known type
func ParseEventType(s string) (EventType, bool) {
	for _, t := range EventTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Action is the disposition returned for a scored event
type Action string

const (
	ActionAllow  Action = "allow"
	ActionStepUp Action = "step_up"
	ActionHold   Action = "hold"
	ActionBlock  Action = "block"
)

// ReasonCode is a machine-readable token explaining a score contribution
type ReasonCode string

const (
	ReasonNewAccount         ReasonCode = "new_account"
	ReasonYoungAccount       ReasonCode = "young_account"
	ReasonDeviceShared       ReasonCode = "device_shared"
	ReasonDeviceMultiUser    ReasonCode = "device_multi_user"
	ReasonHighVelocity       ReasonCode = "high_velocity"
	ReasonElevatedVelocity   ReasonCode = "elevated_velocity"
	ReasonDailyLimitExceeded ReasonCode = "daily_limit_exceeded"
	ReasonHighDailyActivity  ReasonCode = "high_daily_activity"
	ReasonManyDevices        ReasonCode = "many_devices"
	ReasonManyIPs            ReasonCode = "many_ips"
	ReasonTypingAnomaly      ReasonCode = "typing_anomaly"
	ReasonTypingVariation    ReasonCode = "typing_variation"
	ReasonNormalBehavior     ReasonCode = "normal_behavior"
)

// DeviceRegistration records that a user was seen on a device
type DeviceRegistration struct {
	DeviceToken   string    `json:"device_token"`
	UserID        string    `json:"user_id"`
	UAFamily      string    `json:"ua_family"`
	OSFamily      string    `json:"os_family"`
	BrowserFamily string    `json:"browser_family"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

// TypingSample is the keystroke-timing summary a client may attach to a request.
// It only lives for the duration of one evaluation.
type TypingSample struct {
	MeanDwell      float64 `json:"mean_dwell"`
	StdDwell       float64 `json:"std_dwell"`
	MeanFlight     float64 `json:"mean_flight"`
	StdFlight      float64 `json:"std_flight"`
	BackspaceRatio float64 `json:"backspace_ratio"`
	PasteCount     int     `json:"paste_count"`
	SampleSize     int     `json:"sample_size"`
}

// UserRiskFeatures holds slowly-changing per-user aggregates maintained offline
type UserRiskFeatures struct {
	UserID              string    `json:"user_id"`
	AccountAgeDays      float64   `json:"account_age_days"`
	DeviceDegree        int       `json:"device_degree"`
	IPDegree            int       `json:"ip_degree"`
	AvgTypingDwell      *float64  `json:"avg_typing_dwell,omitempty"`
	StdTypingDwell      *float64  `json:"std_typing_dwell,omitempty"`
	TypingBaselineCount int       `json:"typing_baseline_count"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Decision is the outcome of scoring one event
type Decision struct {
	RiskScore int          `json:"risk_score"`
	Action    Action       `json:"action"`
	Reasons   []ReasonCode `json:"reasons"`
}

// RiskEvent is the immutable ledger record written once per scored request
type RiskEvent struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	DeviceToken    string        `json:"device_token"`
	EventType      EventType     `json:"event_type"`
	IPPrefix       string        `json:"ip_prefix"`
	UAFamily       string        `json:"ua_family"`
	OSFamily       string        `json:"os_family"`
	BrowserFamily  string        `json:"browser_family"`
	RiskScore      int           `json:"risk_score"`
	Action         Action        `json:"action"`
	Reasons        []ReasonCode  `json:"reasons"`
	TypingFeatures *TypingSample `json:"typing_features,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}
