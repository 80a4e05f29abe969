package risk

import (
	"math"

	"github.com/signalsfoundry/flight-twin/core"
	"github.com/signalsfoundry/flight-twin/model"
)

// Tier boundaries on the normalised anomaly score.
const (
	MediumThreshold   = 0.3
	HighThreshold     = 0.6
	CriticalThreshold = 0.8
)

// TierForScore maps a [0,1] score to a risk tier.
func TierForScore(score float64) model.RiskTier {
	switch {
	case score >= CriticalThreshold:
		return model.RiskCritical
	case score >= HighThreshold:
		return model.RiskHigh
	case score >= MediumThreshold:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

var recommendations = map[model.RiskTier]string{
	model.RiskCritical: "IMMEDIATE ACTION: Land drone immediately and perform maintenance",
	model.RiskHigh:     "Return to base for inspection",
	model.RiskMedium:   "Monitor closely and reduce flight intensity",
	model.RiskLow:      "Continue normal operations",
}

// Recommendation returns the operator guidance for a tier.
func Recommendation(tier model.RiskTier) string {
	return recommendations[tier]
}

// featureSources maps scorer feature names to the feature-table columns
// they are read from.
var featureSources = map[string][]string{
	"battery_level": {"battery_remaining_pct"},
	"temperature":   {"air_temperature"},
	"altitude":      {"altitude"},
	"speed":         {"ground_speed", "speed_3d"},
	"motor_current": {"battery_current"},
}

// SampleFromFeatures builds a scorer sample from one feature-table row.
// Vibration is the magnitude of the per-axis vibration columns. The second
// result lists names that had no source column; those entries are zero.
func SampleFromFeatures(fv core.FeatureVector, names []string) ([]float64, []string) {
	sample := make([]float64, len(names))
	var missing []string
	for i, name := range names {
		if v, ok := fv[name]; ok {
			sample[i] = v
			continue
		}
		if name == "vibration" {
			var sum float64
			found := false
			for _, axis := range []string{"vibration_x", "vibration_y", "vibration_z"} {
				if v, ok := fv[axis]; ok {
					sum += v * v
					found = true
				}
			}
			if found {
				sample[i] = math.Sqrt(sum)
				continue
			}
		}
		found := false
		for _, col := range featureSources[name] {
			if v, ok := fv[col]; ok {
				sample[i] = v
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, name)
		}
	}
	return sample, missing
}
