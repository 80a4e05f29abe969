package risk

import (
	"sync/atomic"

	"github.com/signalsfoundry/flight-twin/core"
	"github.com/signalsfoundry/flight-twin/model"
)

// Scorer holds the live model. Retraining builds a new model and swaps it
// in; scoring never observes a partially trained model.
type Scorer struct {
	cfg   Config
	model atomic.Pointer[Model]
}

// NewScorer returns an untrained scorer.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Train fits a new model and installs it. On failure the previous model, if
// any, stays in place.
func (s *Scorer) Train(data [][]float64) (*Model, error) {
	m, err := Train(data, s.cfg)
	if err != nil {
		return nil, err
	}
	s.model.Store(m)
	return m, nil
}

// Model returns the live model, or nil before the first successful Train.
func (s *Scorer) Model() *Model { return s.model.Load() }

// Trained reports whether a model is installed.
func (s *Scorer) Trained() bool { return s.model.Load() != nil }

// FeatureNames returns the configured sample layout.
func (s *Scorer) FeatureNames() []string {
	return append([]string(nil), s.cfg.FeatureNames...)
}

// Score scores a sample against the live model.
func (s *Scorer) Score(sample []float64) (bool, float64, error) {
	m := s.model.Load()
	if m == nil {
		return false, 0, &core.UninitializedError{Op: "score", Requires: "training"}
	}
	return m.Score(sample)
}

// Assess scores a sample against the live model and assigns a tier.
func (s *Scorer) Assess(sample []float64) (model.RiskAssessment, error) {
	m := s.model.Load()
	if m == nil {
		return model.RiskAssessment{}, &core.UninitializedError{Op: "assess", Requires: "training"}
	}
	return m.Assess(sample)
}
