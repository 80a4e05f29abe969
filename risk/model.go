// Package risk learns a normal operating envelope from historical flight
// samples and scores new samples against it.
package risk

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/flight-twin/core"
	"github.com/signalsfoundry/flight-twin/model"
)

// DefaultFeatureNames is the sample layout used by the twin.
var DefaultFeatureNames = []string{
	"battery_level",
	"temperature",
	"vibration",
	"altitude",
	"speed",
	"motor_current",
}

// Config parameterises training.
type Config struct {
	FeatureNames []string `yaml:"feature_names"`
	// Contamination is the expected fraction of anomalies in the training
	// data. It places the decision boundary.
	Contamination float64 `yaml:"contamination"`
	Trees         int     `yaml:"trees"`
	SampleSize    int     `yaml:"sample_size"`
	Seed          int64   `yaml:"seed"`
	// Gain sets how steeply the score rises past the decision boundary.
	Gain float64 `yaml:"gain"`
}

// DefaultConfig returns the stock training configuration.
func DefaultConfig() Config {
	return Config{
		FeatureNames:  DefaultFeatureNames,
		Contamination: 0.1,
		Trees:         100,
		SampleSize:    256,
		Seed:          42,
		Gain:          3,
	}
}

// Validate checks the training configuration.
func (c Config) Validate() error {
	switch {
	case len(c.FeatureNames) == 0:
		return &core.ConfigError{Field: "feature names", Expected: "at least one", Actual: "none"}
	case c.Contamination <= 0 || c.Contamination >= 0.5:
		return &core.ConfigError{Field: "contamination", Expected: "(0, 0.5)", Actual: strconv.FormatFloat(c.Contamination, 'g', -1, 64)}
	case c.Trees < 1:
		return &core.ConfigError{Field: "trees", Expected: ">= 1", Actual: strconv.Itoa(c.Trees)}
	case c.SampleSize < 2:
		return &core.ConfigError{Field: "sample size", Expected: ">= 2", Actual: strconv.Itoa(c.SampleSize)}
	case c.Gain <= 0:
		return &core.ConfigError{Field: "gain", Expected: "> 0", Actual: strconv.FormatFloat(c.Gain, 'g', -1, 64)}
	}
	return nil
}

// Model is a trained scorer. It is immutable and safe for concurrent use.
type Model struct {
	features  []string
	scaler    *StandardScaler
	forest    *isolationForest
	threshold float64
	spread    float64
	gain      float64
	samples   int
}

// Train fits a model on row-major historical samples whose columns follow
// cfg.FeatureNames.
func Train(data [][]float64, cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(data) < 2 {
		return nil, &core.DataQualityError{Reason: fmt.Sprintf("need at least 2 training samples, got %d", len(data)), Index: -1}
	}
	width := len(cfg.FeatureNames)
	for i, row := range data {
		if len(row) != width {
			return nil, &core.ConfigError{
				Field:    "feature count",
				Expected: strconv.Itoa(width),
				Actual:   fmt.Sprintf("%d in row %d", len(row), i),
			}
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &core.DataQualityError{Reason: fmt.Sprintf("non-finite %s", cfg.FeatureNames[j]), Index: i}
			}
		}
	}

	scaler := FitScaler(data)
	scaled := make([][]float64, len(data))
	for i, row := range data {
		scaled[i] = scaler.Transform(row)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	forest := fitForest(scaled, cfg.Trees, cfg.SampleSize, rng)

	scores := make([]float64, len(scaled))
	for i, row := range scaled {
		scores[i] = forest.score(row)
	}
	sort.Float64s(scores)
	threshold := stat.Quantile(1-cfg.Contamination, stat.LinInterp, scores, nil)
	median := stat.Quantile(0.5, stat.LinInterp, scores, nil)

	return &Model{
		features:  append([]string(nil), cfg.FeatureNames...),
		scaler:    scaler,
		forest:    forest,
		threshold: threshold,
		spread:    math.Max(threshold-median, 1e-6),
		gain:      cfg.Gain,
		samples:   len(data),
	}, nil
}

// FeatureNames returns the sample layout the model expects.
func (m *Model) FeatureNames() []string {
	return append([]string(nil), m.features...)
}

// TrainingSamples returns the number of rows the model was fitted on.
func (m *Model) TrainingSamples() int { return m.samples }

// Threshold returns the raw outlier score at the decision boundary.
func (m *Model) Threshold() float64 { return m.threshold }

// Score returns the anomaly flag and a score in [0,1]. The raw outlier score
// is centred on the decision boundary, scaled by the distance from the
// boundary to the median training score, then squashed with a logistic, so
// the boundary maps to 0.5 and typical training samples to about
// 1/(1+e^gain).
func (m *Model) Score(sample []float64) (bool, float64, error) {
	if m == nil {
		return false, 0, &core.UninitializedError{Op: "score", Requires: "a trained model"}
	}
	if len(sample) != len(m.features) {
		return false, 0, &core.ConfigError{
			Field:    "feature count",
			Expected: strconv.Itoa(len(m.features)),
			Actual:   strconv.Itoa(len(sample)),
		}
	}
	raw := m.forest.score(m.scaler.Transform(sample))
	z := m.gain * (raw - m.threshold) / m.spread
	return raw > m.threshold, 1 / (1 + math.Exp(-z)), nil
}

// Assess scores a sample and maps it to a risk tier and recommendation.
func (m *Model) Assess(sample []float64) (model.RiskAssessment, error) {
	anomaly, score, err := m.Score(sample)
	if err != nil {
		return model.RiskAssessment{}, err
	}
	tier := TierForScore(score)
	return model.RiskAssessment{
		IsAnomaly:      anomaly,
		Score:          score,
		Tier:           tier,
		Recommendation: Recommendation(tier),
	}, nil
}
