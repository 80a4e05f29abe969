package twin

import (
	"context"
	"errors"
	"strconv"

	"github.com/signalsfoundry/flight-twin/core"
	"github.com/signalsfoundry/flight-twin/internal/events"
	"github.com/signalsfoundry/flight-twin/internal/logging"
	"github.com/signalsfoundry/flight-twin/model"
	"github.com/signalsfoundry/flight-twin/risk"
)

// MonitorConfig tunes the telemetry monitor.
type MonitorConfig struct {
	// Window is the number of most recent records the feature pipeline sees.
	Window   int
	Features core.FeatureConfig
	// AutoReplan replans toward the mission destination once the tier
	// reaches ReplanAt.
	AutoReplan bool
	ReplanAt   model.RiskTier
}

// DefaultMonitorConfig returns the stock monitor settings.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Window:     50,
		Features:   core.DefaultFeatureConfig(),
		AutoReplan: true,
		ReplanAt:   model.RiskHigh,
	}
}

// Validate checks the monitor settings.
func (c MonitorConfig) Validate() error {
	if c.Window < 1 {
		return &core.ConfigError{Field: "monitor window", Expected: ">= 1", Actual: strconv.Itoa(c.Window)}
	}
	return c.Features.Validate()
}

// Result is what the monitor did with one record.
type Result struct {
	Update   *Update
	Stress   model.StressAssessment
	Replan   *Replan
	Position core.Vec3
	// Missing lists scorer features that no telemetry column could supply.
	Missing []string
}

// Monitor turns raw telemetry into engine observations. It keeps a sliding
// window of records per mission, derives features over the window and feeds
// the newest row to the engine. A Monitor is not safe for concurrent use;
// Run drains a single channel.
type Monitor struct {
	engine    *Engine
	cfg       MonitorConfig
	stress    *core.StressModel
	publisher events.Publisher
	log       logging.Logger

	missionID string
	window    []model.TelemetryRecord
	position  core.Vec3
	origin    *gpsFix
	lastTier  model.RiskTier
	hasTier   bool
	replanned model.RiskTier
	hasReplan bool
}

// NewMonitor builds a monitor over engine. Stress is computed for the
// engine's drone, or the reference quad when none is configured.
func NewMonitor(engine *Engine, cfg MonitorConfig, publisher events.Publisher, log logging.Logger) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	if log == nil {
		log = logging.Noop()
	}
	spec, ok := engine.Drone()
	if !ok {
		spec = model.ReferenceQuad()
	}
	return &Monitor{
		engine:    engine,
		cfg:       cfg,
		stress:    core.NewStressModel(spec),
		publisher: publisher,
		log:       log.With(logging.String("component", "monitor")),
	}, nil
}

// Handle processes one telemetry record.
func (m *Monitor) Handle(ctx context.Context, rec model.TelemetryRecord) (*Result, error) {
	info, ok := m.engine.Mission()
	if !ok || m.engine.Phase() != PhaseMissionActive {
		return nil, &core.UninitializedError{Op: "handle telemetry", Requires: "an active mission"}
	}
	if info.ID != m.missionID {
		m.reset(info)
	}
	ctx = logging.ContextWithMission(ctx, info.ID, info.DroneID)

	win := append(m.window[:len(m.window):len(m.window)], rec)
	if len(win) > m.cfg.Window {
		win = win[len(win)-m.cfg.Window:]
	}
	table, err := core.Extract(win, m.cfg.Features)
	if err != nil {
		return nil, err
	}

	fv := table.Last()
	stress := m.stress.StressFromFeatures(fv)
	sample, missing := risk.SampleFromFeatures(fv, m.engine.Scorer().FeatureNames())
	if len(missing) > 0 {
		m.log.Debug(ctx, "scorer features without telemetry source", logging.Any("missing", missing))
	}
	pos, origin := m.project(rec, info)

	recCopy := rec
	upd, err := m.engine.Observe(ctx, Observation{
		Timestamp: rec.Timestamp,
		Sample:    sample,
		Position:  pos,
		Telemetry: &recCopy,
		Stress:    &stress,
	})
	if err != nil {
		return nil, err
	}
	m.window = win
	m.position = pos
	m.origin = origin

	res := &Result{Update: upd, Stress: stress, Position: pos, Missing: missing}
	tier := upd.Risk.Tier
	prev := m.lastTier
	changed := !m.hasTier || tier != m.lastTier
	m.lastTier, m.hasTier = tier, true

	if m.cfg.AutoReplan && tier >= m.cfg.ReplanAt && (!m.hasReplan || tier != m.replanned) {
		rp, err := m.engine.ReplanTrajectory(ctx, pos, info.Destination)
		if err != nil {
			return res, err
		}
		res.Replan = rp
		m.replanned, m.hasReplan = tier, true
	}

	if changed || res.Replan != nil {
		ev := events.RiskEvent{
			MissionID:      info.ID,
			DroneID:        info.DroneID,
			Seq:            upd.Seq,
			Timestamp:      rec.Timestamp,
			Tier:           tier,
			PreviousTier:   prev,
			Score:          upd.Risk.Score,
			IsAnomaly:      upd.Risk.IsAnomaly,
			Recommendation: upd.Risk.Recommendation,
			Position:       pos,
			Replanned:      res.Replan != nil,
		}
		if res.Replan != nil {
			ev.Strategy = res.Replan.Strategy
		}
		if err := m.publisher.Publish(ctx, ev); err != nil {
			m.log.Warn(ctx, "risk event publish failed", logging.Err(err))
		}
	}
	return res, nil
}

// Run handles records from in until it is closed or ctx is cancelled.
// Per-record failures are logged and do not stop the loop.
func (m *Monitor) Run(ctx context.Context, in <-chan model.TelemetryRecord) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-in:
			if !ok {
				return nil
			}
			if _, err := m.Handle(ctx, rec); err != nil {
				level := m.log.Warn
				if errors.Is(err, core.ErrUninitialized) {
					level = m.log.Debug
				}
				level(ctx, "telemetry record rejected", logging.Err(err))
			}
		}
	}
}

// reset starts a new mission window. The stress model is rebuilt so a drone
// specification updated between missions takes effect.
func (m *Monitor) reset(info MissionInfo) {
	if spec, ok := m.engine.Drone(); ok {
		m.stress = core.NewStressModel(spec)
	}
	m.missionID = info.ID
	m.window = nil
	m.position = info.Start
	m.origin = nil
	m.hasTier = false
	m.hasReplan = false
}

type gpsFix struct {
	lat, lon float64
}

// project maps a record into the mission frame without changing monitor
// state. The first GPS fix of a mission is taken to be the mission start;
// altitude is used as-is. The returned origin is committed only once the
// engine accepts the record.
func (m *Monitor) project(rec model.TelemetryRecord, info MissionInfo) (core.Vec3, *gpsFix) {
	pos := m.position
	origin := m.origin
	if rec.Latitude != nil && rec.Longitude != nil {
		if origin == nil {
			origin = &gpsFix{lat: *rec.Latitude, lon: *rec.Longitude}
		}
		east, north := core.LocalOffset(origin.lat, origin.lon, *rec.Latitude, *rec.Longitude)
		pos.X = info.Start.X + east
		pos.Y = info.Start.Y + north
	}
	if rec.Altitude != nil {
		pos.Z = *rec.Altitude
	}
	return pos, origin
}
