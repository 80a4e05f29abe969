package model

import (
	"fmt"
	"strings"
)

// StressAssessment holds per-factor stress scores on a 0-100 scale.
type StressAssessment struct {
	Overall     float64 `json:"overall"`
	GForce      float64 `json:"g_force"`
	Wind        float64 `json:"wind"`
	Temperature float64 `json:"temperature"`
	Altitude    float64 `json:"altitude"`
	Motor       float64 `json:"motor"`
	Arm         float64 `json:"arm"`
	Battery     float64 `json:"battery"`
}

// ComponentHealth is the estimated remaining health of each component, in
// percent. A component missing from the drone specification is reported as
// not computed and left out of Overall.
type ComponentHealth struct {
	Motor                 float64 `json:"motor"`
	Battery               float64 `json:"battery"`
	Frame                 float64 `json:"frame"`
	MotorRemainingHours   float64 `json:"motor_remaining_hours"`
	BatteryRemainingCycle float64 `json:"battery_remaining_cycles"`
	Overall               float64 `json:"overall"`

	MotorComputed   bool `json:"motor_computed"`
	BatteryComputed bool `json:"battery_computed"`
	FrameComputed   bool `json:"frame_computed"`
}

// RiskTier is an ordered risk category.
type RiskTier int

const (
	RiskLow RiskTier = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

// RiskTiers lists all tiers in ascending order.
var RiskTiers = []RiskTier{RiskLow, RiskMedium, RiskHigh, RiskCritical}

func (t RiskTier) String() string {
	switch t {
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	case RiskCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("RiskTier(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t RiskTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *RiskTier) UnmarshalText(b []byte) error {
	tier, err := ParseRiskTier(string(b))
	if err != nil {
		return err
	}
	*t = tier
	return nil
}

// ParseRiskTier parses a tier name, case-insensitively.
func ParseRiskTier(s string) (RiskTier, error) {
	for _, t := range RiskTiers {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return RiskLow, fmt.Errorf("unknown risk tier %q", s)
}

// RiskAssessment is the scorer's verdict on one sample.
type RiskAssessment struct {
	IsAnomaly      bool     `json:"is_anomaly"`
	Score          float64  `json:"score"`
	Tier           RiskTier `json:"tier"`
	Recommendation string   `json:"recommendation"`
}
