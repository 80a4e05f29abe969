package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/flight-twin/model"
)

// Mission phases as exported on the twin_mission_phase gauge.
var phaseValues = map[string]float64{
	"UNINITIALIZED":   0,
	"INITIALIZED":     1,
	"MISSION_ACTIVE":  2,
	"MISSION_STOPPED": 3,
}

// TwinCollector bundles Prometheus metrics for the twin and its serving
// surfaces. It satisfies the recorder interfaces of the engine and the
// ingest queue.
type TwinCollector struct {
	gatherer prometheus.Gatherer

	Assessments      *prometheus.CounterVec
	AnomalyScores    prometheus.Histogram
	Replans          *prometheus.CounterVec
	MissionPhase     prometheus.Gauge
	HistorySize      prometheus.Gauge
	OverallStress    prometheus.Gauge
	DroppedTelemetry prometheus.Counter

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
	RPCRequests   *prometheus.CounterVec
	RPCDurations  *prometheus.HistogramVec
}

// NewTwinCollector registers twin metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewTwinCollector(reg prometheus.Registerer) (*TwinCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	assessments, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twin_assessments_total",
		Help: "Risk assessments produced during missions, labeled by tier.",
	}, []string{"tier"}), "twin_assessments_total")
	if err != nil {
		return nil, err
	}

	scores, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "twin_anomaly_score",
		Help:    "Distribution of normalised anomaly scores.",
		Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
	}), "twin_anomaly_score")
	if err != nil {
		return nil, err
	}

	replans, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twin_replans_total",
		Help: "Trajectory replans, labeled by the tier that was planned for.",
	}, []string{"tier"}), "twin_replans_total")
	if err != nil {
		return nil, err
	}

	phase, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "twin_mission_phase",
		Help: "Mission phase: 0 uninitialized, 1 initialized, 2 mission active, 3 mission stopped.",
	}), "twin_mission_phase")
	if err != nil {
		return nil, err
	}

	history, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "twin_history_size",
		Help: "Number of telemetry entries retained for the current mission.",
	}), "twin_history_size")
	if err != nil {
		return nil, err
	}

	stress, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "twin_overall_stress",
		Help: "Most recent overall stress score.",
	}), "twin_overall_stress")
	if err != nil {
		return nil, err
	}

	dropped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "twin_telemetry_dropped_total",
		Help: "Telemetry records discarded because the ingest queue was full.",
	}), "twin_telemetry_dropped_total")
	if err != nil {
		return nil, err
	}

	httpRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twin_http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by route, method, and status code.",
	}, []string{"route", "method", "code"}), "twin_http_requests_total")
	if err != nil {
		return nil, err
	}

	httpDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "twin_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"route", "method"}), "twin_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	rpcRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twin_rpc_requests_total",
		Help: "Total number of handled RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "twin_rpc_requests_total")
	if err != nil {
		return nil, err
	}

	rpcDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "twin_rpc_request_duration_seconds",
		Help:    "RPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"}), "twin_rpc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &TwinCollector{
		gatherer:         gatherer,
		Assessments:      assessments,
		AnomalyScores:    scores,
		Replans:          replans,
		MissionPhase:     phase,
		HistorySize:      history,
		OverallStress:    stress,
		DroppedTelemetry: dropped,
		HTTPRequests:     httpRequests,
		HTTPDurations:    httpDurations,
		RPCRequests:      rpcRequests,
		RPCDurations:     rpcDurations,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *TwinCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveAssessment records one telemetry update's risk and stress.
func (c *TwinCollector) ObserveAssessment(a model.RiskAssessment, overallStress float64) {
	if c == nil {
		return
	}
	c.Assessments.WithLabelValues(a.Tier.String()).Inc()
	c.AnomalyScores.Observe(a.Score)
	c.OverallStress.Set(overallStress)
}

// ObserveReplan counts a trajectory replan.
func (c *TwinCollector) ObserveReplan(tier model.RiskTier) {
	if c == nil {
		return
	}
	c.Replans.WithLabelValues(tier.String()).Inc()
}

// SetPhase updates the mission phase gauge. Unknown phases are ignored.
func (c *TwinCollector) SetPhase(phase string) {
	if c == nil {
		return
	}
	if v, ok := phaseValues[phase]; ok {
		c.MissionPhase.Set(v)
	}
}

// SetHistorySize updates the retained-history gauge.
func (c *TwinCollector) SetHistorySize(n int) {
	if c == nil {
		return
	}
	c.HistorySize.Set(float64(n))
}

// IncDroppedTelemetry counts a record evicted from the ingest queue.
func (c *TwinCollector) IncDroppedTelemetry() {
	if c == nil {
		return
	}
	c.DroppedTelemetry.Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
