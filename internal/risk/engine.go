package risk

import (
	"context"
	"sync"
	"time"

	"github.com/riskguard/riskguard/internal/logger"
	"github.com/riskguard/riskguard/internal/metrics"
	"github.com/riskguard/riskguard/internal/model"
)

// DefaultSignalTimeout bounds each signal read when none is configured
const DefaultSignalTimeout = 300 * time.Millisecond

// Input identifies the event being scored
type Input struct {
	UserID      string
	DeviceToken string
	EventType   model.EventType
	Typing      *model.TypingSample
	// Now is the evaluation instant; velocity windows end here, exclusive.
	Now time.Time
}

// Engine gathers signals from the stores and decides. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	devices       DeviceRegistry
	ledger        EventLedger
	features      FeatureStore
	groups        []RuleGroup
	signalTimeout time.Duration
	log           *logger.Logger
}

// NewEngine creates an engine reading from the given stores
func NewEngine(devices DeviceRegistry, ledger EventLedger, features FeatureStore, log *logger.Logger) *Engine {
	return &Engine{
		devices:       devices,
		ledger:        ledger,
		features:      features,
		groups:        DefaultRuleGroups,
		signalTimeout: DefaultSignalTimeout,
		log:           log.WithComponent("risk_engine"),
	}
}

// WithSignalTimeout overrides the per-signal read timeout
func (e *Engine) WithSignalTimeout(d time.Duration) *Engine {
	if d > 0 {
		e.signalTimeout = d
	}
	return e
}

// Evaluate observes the signals for in and decides
func (e *Engine) Evaluate(ctx context.Context, in Input) (model.Decision, *Observation) {
	start := time.Now()
	obs := e.Observe(ctx, in)
	decision := Decide(e.groups, obs)
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	return decision, obs
}

// Observe fans the signal reads out concurrently and joins on all of them.
// A failing read leaves its field nil and is recorded in Degraded; it never
// fails the evaluation.
func (e *Engine) Observe(ctx context.Context, in Input) *Observation {
	obs := &Observation{Typing: in.Typing}

	var (
		deviceUsers, short, daily     int
		deviceErr, shortErr, dailyErr error
		features                      *model.UserRiskFeatures
		featuresErr                   error
	)

	// Reads are independent: one failing must not cancel the others.
	var wg sync.WaitGroup
	read := func(fn func(ctx context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, e.signalTimeout)
			defer cancel()
			fn(sctx)
		}()
	}
	read(func(ctx context.Context) {
		deviceUsers, deviceErr = e.devices.CountDistinctUsers(ctx, in.DeviceToken)
	})
	read(func(ctx context.Context) {
		short, shortErr = e.ledger.CountByUserAndType(ctx, in.UserID, in.EventType, in.Now.Add(-ShortWindow), in.Now)
	})
	read(func(ctx context.Context) {
		daily, dailyErr = e.ledger.CountByUserAndType(ctx, in.UserID, in.EventType, in.Now.Add(-DailyWindow), in.Now)
	})
	read(func(ctx context.Context) {
		features, featuresErr = e.features.GetFeatures(ctx, in.UserID)
	})
	wg.Wait()

	if e.accept(SignalDeviceUsers, in, deviceErr) {
		obs.DeviceUsers = &deviceUsers
	} else {
		obs.Degraded = append(obs.Degraded, SignalDeviceUsers)
	}
	if e.accept(SignalVelocity10m, in, shortErr) {
		obs.Velocity10m = &short
	} else {
		obs.Degraded = append(obs.Degraded, SignalVelocity10m)
	}
	if e.accept(SignalVelocity24h, in, dailyErr) {
		obs.Velocity24h = &daily
	} else {
		obs.Degraded = append(obs.Degraded, SignalVelocity24h)
	}
	if e.accept(SignalFeatures, in, featuresErr) {
		obs.Features = features
	} else {
		obs.Degraded = append(obs.Degraded, SignalFeatures)
	}

	return obs
}

func (e *Engine) accept(signal string, in Input, err error) bool {
	if err == nil {
		return true
	}
	metrics.SignalDegradedTotal.WithLabelValues(signal).Inc()
	e.log.Warn().
		Err(err).
		Str("signal", signal).
		Str("user_id", in.UserID).
		Str("event_type", string(in.EventType)).
		Msg("signal degraded, scoring without it")
	return false
}
