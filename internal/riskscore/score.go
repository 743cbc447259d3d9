// Package riskscore maps a security-relevant action plus its context to an
// integer risk score in [0,100].
//
// Scoring is a pure function: identical inputs always yield the identical
// score. Each action kind has a base score; signals observed at the call
// site add to it; the sum is clamped to the valid range.
package riskscore

import "github.com/dkravets/bankvault/internal/server/models"

// Score bounds.
const (
	MinScore = 0
	MaxScore = 100
)

// Additive adjustments applied on top of the action base.
const (
	untrustedDeviceBonus  = 15
	newDeviceBonus        = 10
	perConsecutiveFailure = 5
	unknownActionBase     = 50
)

// Signals carries the context observed at the call site. The zero value
// means "nothing suspicious".
type Signals struct {
	// UntrustedDevice is set when the acting device exists but has not been
	// explicitly marked trusted.
	UntrustedDevice bool
	// NewDevice is set on the first sighting of a (user, ip, user-agent)
	// triple.
	NewDevice bool
	// ConsecutiveFailures is the number of failed logins already recorded
	// for this origin since its last success.
	ConsecutiveFailures int
}

var actionBase = map[models.ActionKind]int{
	models.ActionLogin:       10,
	models.ActionLogout:      5,
	models.ActionTransaction: 20,
	models.ActionAddCard:     30,
	models.ActionLimitChange: 30,
	models.ActionBlockCard:   35,
	models.ActionDeleteCard:  40,
	models.ActionFailedLogin: 45,
}

// Score computes the risk score for one action. Deterministic; no side
// effects.
func Score(action models.ActionKind, signals Signals) int {
	base, ok := actionBase[action]
	if !ok {
		base = unknownActionBase
	}

	score := base
	if signals.UntrustedDevice {
		score += untrustedDeviceBonus
	}
	if signals.NewDevice {
		score += newDeviceBonus
	}
	if signals.ConsecutiveFailures > 0 {
		score += signals.ConsecutiveFailures * perConsecutiveFailure
	}

	if score > MaxScore {
		return MaxScore
	}
	if score < MinScore {
		return MinScore
	}
	return score
}
