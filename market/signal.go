package market

import (
	"fmt"
	"strings"
	"time"
)

type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case Buy, Sell, Hold:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// RiskStance is the stance an upstream risk assessment attached to a signal.
// Unspecified means no assessment was made and sizing falls back to
// confidence bands.
type RiskStance int

const (
	StanceUnspecified RiskStance = iota
	StanceAggressive
	StanceNeutral
	StanceConservative
)

func (s RiskStance) String() string {
	switch s {
	case StanceAggressive:
		return "AGGRESSIVE"
	case StanceNeutral:
		return "NEUTRAL"
	case StanceConservative:
		return "CONSERVATIVE"
	}
	return "UNSPECIFIED"
}

// ParseRiskStance accepts the stance names case-insensitively. An empty
// string is StanceUnspecified.
func ParseRiskStance(s string) (RiskStance, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return StanceUnspecified, nil
	case "AGGRESSIVE":
		return StanceAggressive, nil
	case "NEUTRAL":
		return StanceNeutral, nil
	case "CONSERVATIVE":
		return StanceConservative, nil
	}
	return StanceUnspecified, fmt.Errorf("unknown risk stance %q", s)
}

// Signal is a trading decision emitted by an upstream strategy.
type Signal struct {
	ID         string
	Time       time.Time
	Symbol     string
	Action     Action
	Confidence float64 // [0,1]

	// SizeRecommendation is optional; zero means none. For SELL signals a
	// value in (0,1) is the fraction of the position to sell.
	SizeRecommendation float64
	Rationale          string
	RiskStance         RiskStance
}
