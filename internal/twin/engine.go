// Package twin holds the digital twin orchestrator: the mission state
// machine that turns telemetry into risk assessments and trajectories.
package twin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/flight-twin/core"
	"github.com/signalsfoundry/flight-twin/internal/logging"
	"github.com/signalsfoundry/flight-twin/kb"
	"github.com/signalsfoundry/flight-twin/model"
	"github.com/signalsfoundry/flight-twin/risk"
	"github.com/signalsfoundry/flight-twin/timectrl"
)

// MetricsRecorder receives engine activity for export.
type MetricsRecorder interface {
	ObserveAssessment(a model.RiskAssessment, overallStress float64)
	ObserveReplan(tier model.RiskTier)
	SetPhase(phase string)
	SetHistorySize(n int)
}

// HistorySink persists history outside the engine. Sink failures are logged
// and never fail the update that produced the entry.
type HistorySink interface {
	AppendEntry(ctx context.Context, e HistoryEntry) error
	RecordSummary(ctx context.Context, s Summary) error
}

// Engine is the mission state machine. All mutations are serialised by a
// single mutex, so history stays in arrival order.
type Engine struct {
	mu sync.Mutex

	scorer  *risk.Scorer
	planner *core.Planner

	phase   Phase
	mission *missionState

	historyLimit int
	clock        timectrl.SimClock
	log          logging.Logger
	metrics      MetricsRecorder
	sink         HistorySink
	tracer       trace.Tracer

	// drone is optional; it enables component health in summaries.
	drone   *model.DroneSpecification
	stress  *core.StressModel
	catalog *kb.Catalog
	unwatch func()
}

// Option customises Engine construction.
type Option func(*Engine)

// WithHistoryLimit bounds the retained history to the most recent n entries.
// Zero keeps everything.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		e.historyLimit = n
	}
}

// WithHistorySink forwards every history entry and summary to s.
func WithHistorySink(s HistorySink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock sets the clock used for mission timestamps.
func WithClock(c timectrl.SimClock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithDrone sets the airframe being flown. Summaries then carry component
// health derived from the stress observed during the mission.
func WithDrone(spec model.DroneSpecification) Option {
	return func(e *Engine) {
		e.drone = &spec
		e.stress = core.NewStressModel(spec)
	}
}

// WithCatalog records completed flights against the drone's usage so that
// health reflects the airframe's whole service life, not one mission. The
// engine also follows catalog updates to its drone's specification until
// Close.
func WithCatalog(c *kb.Catalog) Option {
	return func(e *Engine) {
		e.catalog = c
	}
}

// NewEngine wires a scorer and planner into an uninitialised engine. An
// already trained scorer puts the engine straight into INITIALIZED.
func NewEngine(scorer *risk.Scorer, planner *core.Planner, log logging.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logging.Noop()
	}
	e := &Engine{
		scorer:  scorer,
		planner: planner,
		clock:   timectrl.WallClock{},
		log:     log,
		tracer:  otel.Tracer("github.com/signalsfoundry/flight-twin/internal/twin"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if scorer.Trained() {
		e.phase = PhaseInitialized
	}
	e.setPhaseLocked(e.phase)
	if e.catalog != nil && e.drone != nil {
		e.unwatch = e.catalog.Subscribe(e.droneWatcher(e.drone.ID))
	}
	return e
}

// droneWatcher swaps in a new specification for id. Usage events are
// skipped before locking: they are raised from StopMission, which already
// holds the engine lock.
func (e *Engine) droneWatcher(id string) func(kb.Event) {
	return func(ev kb.Event) {
		if ev.Type != kb.EventDroneUpdated || ev.Drone.ID != id {
			return
		}
		spec := ev.Drone
		e.mu.Lock()
		e.drone = &spec
		e.stress = core.NewStressModel(spec)
		e.mu.Unlock()
		e.log.Info(context.Background(), "drone specification updated", logging.String("drone_id", id))
	}
}

// Close stops following catalog updates.
func (e *Engine) Close() {
	if e.unwatch != nil {
		e.unwatch()
	}
}

// Scorer exposes the engine's risk scorer.
func (e *Engine) Scorer() *risk.Scorer { return e.scorer }

// Drone returns the configured airframe, if any.
func (e *Engine) Drone() (model.DroneSpecification, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drone == nil {
		return model.DroneSpecification{}, false
	}
	return *e.drone, true
}

// Initialize trains the risk scorer on historical samples. It may be called
// again at any time to retrain; the live model is swapped atomically and an
// active mission continues with the new model.
func (e *Engine) Initialize(ctx context.Context, historical [][]float64) error {
	ctx, span := e.tracer.Start(ctx, "twin.Initialize", trace.WithAttributes(attribute.Int("samples", len(historical))))
	defer span.End()

	m, err := e.scorer.Train(historical)
	if err != nil {
		span.RecordError(err)
		e.log.Warn(ctx, "risk model training failed", logging.Err(err), logging.Int("samples", len(historical)))
		return fmt.Errorf("initialize: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == PhaseUninitialized {
		e.setPhaseLocked(PhaseInitialized)
	}
	e.log.Info(ctx, "risk model trained",
		logging.Int("samples", m.TrainingSamples()),
		logging.Float("threshold", m.Threshold()),
	)
	return nil
}

// StartMission plans the initial path and opens a new mission with a fresh
// history.
func (e *Engine) StartMission(ctx context.Context, start, destination core.Vec3) (*MissionInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.phase {
	case PhaseUninitialized:
		return nil, &core.UninitializedError{Op: "start mission", Requires: "initialize"}
	case PhaseMissionActive:
		return nil, fmt.Errorf("start mission %s: %w", e.mission.info.ID, ErrMissionActive)
	}

	info := MissionInfo{
		ID:          uuid.NewString(),
		Start:       start,
		Destination: destination,
		StartedAt:   e.clock.Now(),
		Trajectory:  e.planner.InitialPath(start, destination),
	}
	if e.drone != nil {
		info.DroneID = e.drone.ID
	}
	e.mission = &missionState{
		info:       info,
		position:   start,
		trajectory: info.Trajectory,
		history:    newRing(e.historyLimit),
		tierCounts: make(map[model.RiskTier]int, len(model.RiskTiers)),
	}
	e.setPhaseLocked(PhaseMissionActive)
	if e.metrics != nil {
		e.metrics.SetHistorySize(0)
	}

	ctx = logging.ContextWithMission(ctx, info.ID, info.DroneID)
	e.log.Info(ctx, "mission started",
		logging.Any("start", start),
		logging.Any("destination", destination),
		logging.Int("waypoints", len(info.Trajectory.Waypoints)),
	)
	out := info
	out.Trajectory = copyTrajectory(info.Trajectory)
	return &out, nil
}

// UpdateTelemetry assesses a scorer sample taken at position.
func (e *Engine) UpdateTelemetry(ctx context.Context, sample []float64, position core.Vec3) (*Update, error) {
	return e.Observe(ctx, Observation{Sample: sample, Position: position})
}

// Observe assesses one observation and appends it to the mission history.
func (e *Engine) Observe(ctx context.Context, obs Observation) (*Update, error) {
	ctx, span := e.tracer.Start(ctx, "twin.Observe")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseMissionActive {
		return nil, &core.UninitializedError{Op: "update telemetry", Requires: "an active mission"}
	}
	m := e.mission
	ts := obs.Timestamp
	if ts.IsZero() {
		ts = e.clock.Now()
		if ts.Before(m.lastTS) {
			ts = m.lastTS
		}
	}
	if ts.Before(m.lastTS) {
		return nil, &core.DataQualityError{
			Reason: fmt.Sprintf("timestamp %s precedes previous update at %s", ts.Format(time.RFC3339Nano), m.lastTS.Format(time.RFC3339Nano)),
			Index:  m.updates,
		}
	}

	assessment, err := e.scorer.Assess(obs.Sample)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	entry := HistoryEntry{
		MissionID: m.info.ID,
		Seq:       m.updates,
		Timestamp: ts,
		Sample:    append([]float64(nil), obs.Sample...),
		Telemetry: obs.Telemetry,
		Stress:    obs.Stress,
		Risk:      assessment,
		Position:  obs.Position,
	}
	m.history.push(entry)
	m.updates++
	m.position = obs.Position
	m.risk = &assessment
	m.tierCounts[assessment.Tier]++
	m.scoreSum += assessment.Score
	if assessment.Score > m.scoreMax {
		m.scoreMax = assessment.Score
	}
	overall := 0.0
	if obs.Stress != nil {
		overall = obs.Stress.Overall
		m.stressSum += overall
		m.stressN++
	}
	if m.firstTS.IsZero() {
		m.firstTS = ts
	}
	m.lastTS = ts

	span.SetAttributes(
		attribute.String("tier", assessment.Tier.String()),
		attribute.Float64("score", assessment.Score),
	)
	if e.metrics != nil {
		e.metrics.ObserveAssessment(assessment, overall)
		e.metrics.SetHistorySize(m.history.len())
	}
	ctx = logging.ContextWithMission(ctx, m.info.ID, m.info.DroneID)
	if e.sink != nil {
		if err := e.sink.AppendEntry(ctx, entry); err != nil {
			e.log.Warn(ctx, "history sink append failed", logging.Err(err), logging.Int("seq", entry.Seq))
		}
	}
	e.log.Debug(ctx, "telemetry assessed",
		logging.Int("seq", entry.Seq),
		logging.String("tier", assessment.Tier.String()),
		logging.Float("score", assessment.Score),
	)

	return &Update{
		Seq:                   entry.Seq,
		Risk:                  assessment,
		PathUpdateRecommended: assessment.Tier != model.RiskLow,
	}, nil
}

// ReplanTrajectory plans from position to destination for the most recent
// risk tier and installs the result as the current trajectory.
func (e *Engine) ReplanTrajectory(ctx context.Context, position, destination core.Vec3) (*Replan, error) {
	ctx, span := e.tracer.Start(ctx, "twin.ReplanTrajectory")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseMissionActive {
		return nil, &core.UninitializedError{Op: "replan trajectory", Requires: "an active mission"}
	}
	m := e.mission
	if m.risk == nil {
		return nil, &core.UninitializedError{Op: "replan trajectory", Requires: "a risk assessment"}
	}
	tier := m.risk.Tier
	traj, err := e.planner.Optimize(position, tier, destination)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	m.trajectory = traj
	m.replans++
	span.SetAttributes(attribute.String("tier", tier.String()), attribute.String("strategy", traj.Strategy))
	if e.metrics != nil {
		e.metrics.ObserveReplan(tier)
	}

	metrics := traj.Metrics()
	e.log.Info(logging.ContextWithMission(ctx, m.info.ID, m.info.DroneID), "trajectory replanned",
		logging.String("tier", tier.String()),
		logging.String("strategy", traj.Strategy),
		logging.Int("waypoints", metrics.WaypointCount),
		logging.Float("distance_m", metrics.TotalDistance),
	)
	return &Replan{
		Tier:       tier,
		Strategy:   traj.Strategy,
		Trajectory: copyTrajectory(traj),
		Metrics:    metrics,
	}, nil
}

// StopMission ends the active mission, freezes its history and returns the
// summary.
func (e *Engine) StopMission(ctx context.Context) (*Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseMissionActive {
		return nil, &core.UninitializedError{Op: "stop mission", Requires: "an active mission"}
	}
	m := e.mission
	ctx = logging.ContextWithMission(ctx, m.info.ID, m.info.DroneID)

	s := Summary{
		MissionID:     m.info.ID,
		DroneID:       m.info.DroneID,
		Updates:       m.updates,
		Replans:       m.replans,
		TierCounts:    make(map[model.RiskTier]int, len(model.RiskTiers)),
		MaxScore:      m.scoreMax,
		FinalPosition: m.position,
		StartedAt:     m.info.StartedAt,
		StoppedAt:     e.clock.Now(),
	}
	for _, tier := range model.RiskTiers {
		s.TierCounts[tier] = m.tierCounts[tier]
	}
	if m.updates > 0 {
		s.MeanScore = m.scoreSum / float64(m.updates)
	}
	if m.stressN > 0 {
		s.MeanStress = m.stressSum / float64(m.stressN)
	}
	if m.risk != nil {
		r := *m.risk
		s.FinalRisk = &r
	}
	if !m.firstTS.IsZero() {
		s.FlightDuration = m.lastTS.Sub(m.firstTS)
	}
	s.Health = e.healthLocked(ctx, s)

	e.setPhaseLocked(PhaseMissionStopped)
	if e.sink != nil {
		if err := e.sink.RecordSummary(ctx, s); err != nil {
			e.log.Warn(ctx, "history sink summary failed", logging.Err(err))
		}
	}
	e.log.Info(ctx, "mission stopped",
		logging.Int("updates", s.Updates),
		logging.Int("replans", s.Replans),
		logging.Float("mean_score", s.MeanScore),
		logging.Float("max_score", s.MaxScore),
		logging.Duration("flight_duration", s.FlightDuration),
	)
	return &s, nil
}

// healthLocked derives component health for the configured drone. With a
// catalog the flight is recorded first and health reflects cumulative usage.
func (e *Engine) healthLocked(ctx context.Context, s Summary) *model.ComponentHealth {
	if e.stress == nil {
		return nil
	}
	hours := s.FlightDuration.Hours()
	avg := s.MeanStress
	if e.catalog != nil && e.drone != nil {
		usage, err := e.catalog.RecordFlight(e.drone.ID, hours, avg)
		if err != nil {
			e.log.Warn(ctx, "recording flight usage failed", logging.Err(err), logging.String("drone_id", e.drone.ID))
		} else {
			hours, avg = usage.Hours, usage.AvgStress
		}
	}
	h := e.stress.Health(hours, avg)
	return &h
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{Phase: e.phase, FeatureLayout: e.scorer.FeatureNames()}
	if m := e.scorer.Model(); m != nil {
		st.ModelSamples = m.TrainingSamples()
	}
	if m := e.mission; m != nil {
		st.MissionID = m.info.ID
		st.Position = m.position
		st.Destination = m.info.Destination
		st.Updates = m.updates
		st.Retained = m.history.len()
		if m.risk != nil {
			r := *m.risk
			st.Risk = &r
		}
		traj := copyTrajectory(m.trajectory)
		st.Trajectory = &traj
	}
	return st
}

// Phase returns the current lifecycle phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Mission returns the current or most recent mission.
func (e *Engine) Mission() (MissionInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mission == nil {
		return MissionInfo{}, false
	}
	info := e.mission.info
	info.Trajectory = copyTrajectory(info.Trajectory)
	return info, true
}

// History returns the retained history of the current or most recent
// mission, oldest first.
func (e *Engine) History() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mission == nil {
		return nil
	}
	return e.mission.history.entries()
}

func (e *Engine) setPhaseLocked(p Phase) {
	e.phase = p
	if e.metrics != nil {
		e.metrics.SetPhase(p.String())
	}
}

func copyTrajectory(t core.Trajectory) core.Trajectory {
	t.Waypoints = append([]core.Vec3(nil), t.Waypoints...)
	return t
}
