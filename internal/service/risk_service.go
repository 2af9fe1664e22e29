package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riskguard/riskguard/internal/alert"
	"github.com/riskguard/riskguard/internal/logger"
	"github.com/riskguard/riskguard/internal/metrics"
	"github.com/riskguard/riskguard/internal/model"
	"github.com/riskguard/riskguard/internal/reqsignal"
	"github.com/riskguard/riskguard/internal/repository"
	"github.com/riskguard/riskguard/internal/risk"
)

// Risk service errors
var (
	ErrInvalidEventType = errors.New("unknown event type")
	ErrMissingIdentity  = errors.New("user and device are required")
	ErrEventNotFound    = errors.New("risk event not found")
)

const (
	// DefaultListLimit is used when the caller does not ask for a page size
	DefaultListLimit = 20
	// MaxListLimit caps the page size of ListEvents
	MaxListLimit = 100
	// DefaultAuditTimeout bounds a detached ledger append
	DefaultAuditTimeout = 5 * time.Second
	// DefaultRegistryTimeout bounds the device registry upsert that runs
	// before scoring
	DefaultRegistryTimeout = 500 * time.Millisecond

	alertTimeout = time.Second
)

// Store names used in persistence failure metrics and alerts
const (
	storeDeviceRegistry = "device_registry"
	storeEventLedger    = "event_ledger"
)

// RiskService runs one evaluation end to end: registers the device sighting,
// scores the event, and records it in the ledger.
type RiskService struct {
	devices         risk.DeviceRegistry
	ledger          risk.EventLedger
	engine          *risk.Engine
	notifier        alert.Notifier
	auditTimeout    time.Duration
	registryTimeout time.Duration
	log             *logger.Logger

	inflight sync.WaitGroup
	now      func() time.Time
}

// NewRiskService creates a new RiskService
func NewRiskService(
	devices risk.DeviceRegistry,
	ledger risk.EventLedger,
	engine *risk.Engine,
	notifier alert.Notifier,
	auditTimeout time.Duration,
	log *logger.Logger,
) *RiskService {
	if auditTimeout <= 0 {
		auditTimeout = DefaultAuditTimeout
	}
	return &RiskService{
		devices:         devices,
		ledger:          ledger,
		engine:          engine,
		notifier:        notifier,
		auditTimeout:    auditTimeout,
		registryTimeout: DefaultRegistryTimeout,
		log:             log.WithComponent("risk_service"),
		now:             time.Now,
	}
}

// WithRegistryTimeout overrides the bound on the pre-scoring registry upsert
func (s *RiskService) WithRegistryTimeout(d time.Duration) *RiskService {
	if d > 0 {
		s.registryTimeout = d
	}
	return s
}

// EvaluateRequest is one event to score. UserID must come from a verified
// session, never from the request body.
type EvaluateRequest struct {
	UserID      string
	DeviceToken string
	EventType   string
	Typing      *model.TypingSample
	Signals     reqsignal.Signals
}

// EvaluateResult is the decision plus the ID under which the event will be
// recorded
type EvaluateResult struct {
	EventID string
	model.Decision
}

// Evaluate scores req. Persistence failures are logged, counted and alerted
// but never fail the call; only invalid input does.
func (s *RiskService) Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluateResult, error) {
	eventType, ok := model.ParseEventType(strings.TrimSpace(req.EventType))
	if !ok {
		return nil, ErrInvalidEventType
	}
	if req.UserID == "" || req.DeviceToken == "" {
		return nil, ErrMissingIdentity
	}

	start := s.now()
	now := start.UTC()

	// Register the sighting first so the device count includes this user.
	reg := &model.DeviceRegistration{
		DeviceToken:   req.DeviceToken,
		UserID:        req.UserID,
		UAFamily:      req.Signals.UAFamily,
		OSFamily:      req.Signals.OSFamily,
		BrowserFamily: req.Signals.BrowserFamily,
		FirstSeenAt:   now,
		LastSeenAt:    now,
	}
	if err := s.upsertDevice(ctx, reg); err != nil {
		s.persistenceFailed(ctx, storeDeviceRegistry, err, req.UserID, eventType, reg)
	}

	decision, _ := s.engine.Evaluate(ctx, risk.Input{
		UserID:      req.UserID,
		DeviceToken: req.DeviceToken,
		EventType:   eventType,
		Typing:      req.Typing,
		Now:         now,
	})

	event := &model.RiskEvent{
		ID:             uuid.New().String(),
		UserID:         req.UserID,
		DeviceToken:    req.DeviceToken,
		EventType:      eventType,
		IPPrefix:       req.Signals.IPPrefix,
		UAFamily:       req.Signals.UAFamily,
		OSFamily:       req.Signals.OSFamily,
		BrowserFamily:  req.Signals.BrowserFamily,
		RiskScore:      decision.RiskScore,
		Action:         decision.Action,
		Reasons:        decision.Reasons,
		TypingFeatures: req.Typing,
		CreatedAt:      now,
	}
	s.recordAsync(ctx, event)

	s.observeDecision(eventType, decision, s.now().Sub(start), req.UserID)

	return &EvaluateResult{EventID: event.ID, Decision: decision}, nil
}

// upsertDevice registers the sighting within registryTimeout. A stalled store
// costs the decision at most that long.
func (s *RiskService) upsertDevice(ctx context.Context, reg *model.DeviceRegistration) error {
	uctx, cancel := context.WithTimeout(ctx, s.registryTimeout)
	defer cancel()
	return s.devices.Upsert(uctx, reg)
}

// recordAsync appends event to the ledger without holding up the response.
// The write is detached from ctx cancellation and bounded by auditTimeout.
func (s *RiskService) recordAsync(ctx context.Context, event *model.RiskEvent) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.auditTimeout)

	s.inflight.Add(1)
	metrics.AuditWritesInFlight.Inc()
	go func() {
		defer s.inflight.Done()
		defer metrics.AuditWritesInFlight.Dec()
		defer cancel()

		if _, err := s.ledger.Append(actx, event); err != nil {
			s.persistenceFailed(actx, storeEventLedger, err, event.UserID, event.EventType, event)
		}
	}()
}

func (s *RiskService) persistenceFailed(ctx context.Context, store string, err error, userID string, eventType model.EventType, payload any) {
	metrics.PersistenceFailuresTotal.WithLabelValues(store).Inc()
	s.log.Error().
		Err(err).
		Str("store", store).
		Str("user_id", userID).
		Str("event_type", string(eventType)).
		Interface("record", payload).
		Msg("failed to persist risk data")

	s.alertAsync(ctx, alert.Alert{
		Kind:      alert.KindPersistenceFailure,
		Store:     store,
		Message:   fmt.Sprintf("%s write failed: %v", store, err),
		UserID:    userID,
		EventType: string(eventType),
		Payload:   payload,
	})
}

// alertAsync publishes a off the request path. Drain waits for it like it
// waits for ledger appends.
func (s *RiskService) alertAsync(ctx context.Context, a alert.Alert) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		s.notifier.Notify(actx, a)
	}()
}

func (s *RiskService) observeDecision(eventType model.EventType, d model.Decision, elapsed time.Duration, userID string) {
	metrics.DecisionsTotal.WithLabelValues(string(eventType), string(d.Action)).Inc()
	reasons := make([]string, len(d.Reasons))
	for i, r := range d.Reasons {
		metrics.ReasonsTotal.WithLabelValues(string(r)).Inc()
		reasons[i] = string(r)
	}
	s.log.Decision(userID, string(eventType), d.RiskScore, string(d.Action), reasons, elapsed)
}

// Drain waits for pending ledger appends and alerts, or until ctx is done
func (s *RiskService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit writes or alerts still pending: %w", ctx.Err())
	}
}

// GetEvent returns one of the user's own events. Another user's event is
// reported as not found.
func (s *RiskService) GetEvent(ctx context.Context, userID, id string) (*model.RiskEvent, error) {
	event, err := s.ledger.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get risk event: %w", err)
	}
	if event.UserID != userID {
		return nil, ErrEventNotFound
	}
	return event, nil
}

// ListEvents returns the user's most recent events. limit is clamped to
// [1, MaxListLimit]; zero or negative means DefaultListLimit.
func (s *RiskService) ListEvents(ctx context.Context, userID string, limit int) ([]*model.RiskEvent, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	events, err := s.ledger.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk events: %w", err)
	}
	return events, nil
}
