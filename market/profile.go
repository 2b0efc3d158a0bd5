package market

import "fmt"

// RiskProfile selects the maximum allocation fraction used when sizing.
type RiskProfile string

const (
	Aggressive   RiskProfile = "aggressive"
	Neutral      RiskProfile = "neutral"
	Conservative RiskProfile = "conservative"
)

var Profiles = []RiskProfile{Aggressive, Neutral, Conservative}

func (p RiskProfile) Valid() bool {
	switch p {
	case Aggressive, Neutral, Conservative:
		return true
	}
	return false
}

// ProfileForStance maps an explicit stance to its profile.
func ProfileForStance(s RiskStance) (RiskProfile, error) {
	switch s {
	case StanceAggressive:
		return Aggressive, nil
	case StanceNeutral:
		return Neutral, nil
	case StanceConservative:
		return Conservative, nil
	}
	return "", fmt.Errorf("no profile for stance %s", s)
}
