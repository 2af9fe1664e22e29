package risk

import (
	"math"

	"github.com/riskguard/riskguard/internal/model"
)

// Rule adds Weight and Reason to the score when Match holds
type Rule struct {
	Reason model.ReasonCode
	Weight int
	Match  func(o *Observation) bool
}

// RuleGroup is an ordered list of rules of which at most one fires: the
// first match wins and the rest of the group is skipped.
type RuleGroup struct {
	Name  string
	Rules []Rule
}

// Typing guard thresholds
const (
	minTypingSampleSize    = 5
	minTypingBaselineCount = 10
)

// DefaultRuleGroups is the scoring table. Group order is the order reason
// codes appear in a decision.
var DefaultRuleGroups = []RuleGroup{
	{
		Name: "account_age",
		Rules: []Rule{
			{model.ReasonNewAccount, 30, func(o *Observation) bool {
				return o.Features != nil && o.Features.AccountAgeDays < 1
			}},
			{model.ReasonYoungAccount, 15, func(o *Observation) bool {
				return o.Features != nil && o.Features.AccountAgeDays < 7
			}},
		},
	},
	{
		Name: "device_sharing",
		Rules: []Rule{
			{model.ReasonDeviceShared, 25, countAbove(func(o *Observation) *int { return o.DeviceUsers }, 3)},
			{model.ReasonDeviceMultiUser, 10, countAbove(func(o *Observation) *int { return o.DeviceUsers }, 1)},
		},
	},
	{
		Name: "short_velocity",
		Rules: []Rule{
			{model.ReasonHighVelocity, 40, countAbove(func(o *Observation) *int { return o.Velocity10m }, 5)},
			{model.ReasonElevatedVelocity, 20, countAbove(func(o *Observation) *int { return o.Velocity10m }, 2)},
		},
	},
	{
		Name: "daily_velocity",
		Rules: []Rule{
			{model.ReasonDailyLimitExceeded, 30, countAbove(func(o *Observation) *int { return o.Velocity24h }, 20)},
			{model.ReasonHighDailyActivity, 15, countAbove(func(o *Observation) *int { return o.Velocity24h }, 10)},
		},
	},
	{
		Name: "device_degree",
		Rules: []Rule{
			{model.ReasonManyDevices, 20, func(o *Observation) bool {
				return o.Features != nil && o.Features.DeviceDegree > 5
			}},
		},
	},
	{
		Name: "ip_degree",
		Rules: []Rule{
			{model.ReasonManyIPs, 15, func(o *Observation) bool {
				return o.Features != nil && o.Features.IPDegree > 10
			}},
		},
	},
	{
		Name: "typing",
		Rules: []Rule{
			{model.ReasonTypingAnomaly, 25, typingZAbove(3)},
			{model.ReasonTypingVariation, 10, typingZAbove(2)},
		},
	},
}

func countAbove(get func(o *Observation) *int, threshold int) func(o *Observation) bool {
	return func(o *Observation) bool {
		n := get(o)
		return n != nil && *n > threshold
	}
}

func typingZAbove(threshold float64) func(o *Observation) bool {
	return func(o *Observation) bool {
		z, ok := TypingZScore(o)
		return ok && z > threshold
	}
}

// TypingZScore returns how many baseline deviations the sample's mean dwell
// lies from the user's baseline. ok is false when the sample or the baseline
// is too small to compare.
func TypingZScore(o *Observation) (z float64, ok bool) {
	s, f := o.Typing, o.Features
	if s == nil || s.SampleSize < minTypingSampleSize {
		return 0, false
	}
	if f == nil || f.TypingBaselineCount <= minTypingBaselineCount || f.AvgTypingDwell == nil {
		return 0, false
	}

	std := 0.0
	if f.StdTypingDwell != nil {
		std = *f.StdTypingDwell
	}
	return math.Abs(s.MeanDwell-*f.AvgTypingDwell) / math.Max(std, 1), true
}

// Decide scores o against groups. It is pure: the same observation always
// yields the same decision.
func Decide(groups []RuleGroup, o *Observation) model.Decision {
	total := 0
	reasons := make([]model.ReasonCode, 0, len(groups))

	for _, g := range groups {
		for _, r := range g.Rules {
			if r.Match(o) {
				total += r.Weight
				reasons = append(reasons, r.Reason)
				break
			}
		}
	}

	if len(reasons) == 0 {
		reasons = append(reasons, model.ReasonNormalBehavior)
	}

	score := min(total, MaxScore)
	return model.Decision{
		RiskScore: score,
		Action:    ActionForScore(score),
		Reasons:   reasons,
	}
}

// ActionForScore maps a capped score onto its action tier
func ActionForScore(score int) model.Action {
	switch {
	case score >= 80:
		return model.ActionBlock
	case score >= 60:
		return model.ActionHold
	case score >= 40:
		return model.ActionStepUp
	default:
		return model.ActionAllow
	}
}
