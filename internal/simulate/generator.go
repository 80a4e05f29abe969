// Package simulate produces synthetic flight data: scorer samples in the
// twin's feature layout and raw telemetry streams derived from them.
package simulate

import (
	"math"
	"math/rand"
	"time"

	"github.com/signalsfoundry/flight-twin/core"
	"github.com/signalsfoundry/flight-twin/model"
)

// Range is a closed interval sampled uniformly.
type Range struct {
	Lo, Hi float64
}

func (r Range) draw(rng *rand.Rand) float64 {
	return r.Lo + rng.Float64()*(r.Hi-r.Lo)
}

// Feature indices of the default scorer layout.
const (
	Battery = iota
	Temperature
	Vibration
	Altitude
	Speed
	MotorCurrent
)

// NormalRanges is the normal operating envelope per feature.
var NormalRanges = []Range{
	Battery:      {80, 100},
	Temperature:  {20, 35},
	Vibration:    {0, 2},
	Altitude:     {50, 100},
	Speed:        {5, 15},
	MotorCurrent: {2, 5},
}

// AnomalyRanges is where degraded values are drawn from.
var AnomalyRanges = []Range{
	Battery:      {10, 40},
	Temperature:  {45, 70},
	Vibration:    {5, 15},
	Altitude:     {5, 30},
	Speed:        {0.5, 3},
	MotorCurrent: {8, 15},
}

// AnomalyKind selects which features an anomalous sample perturbs.
type AnomalyKind string

const (
	AnomalyBattery     AnomalyKind = "battery"
	AnomalyTemperature AnomalyKind = "temperature"
	AnomalyVibration   AnomalyKind = "vibration"
	AnomalyRandom      AnomalyKind = "random"
)

// Generator is a seeded source of synthetic data. It is not safe for
// concurrent use.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a generator with a fixed seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Normal returns n samples drawn from NormalRanges.
func (g *Generator) Normal(n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = g.normal()
	}
	return out
}

func (g *Generator) normal() []float64 {
	s := make([]float64, len(NormalRanges))
	for j, r := range NormalRanges {
		s[j] = r.draw(g.rng)
	}
	return s
}

// Anomalous returns n samples that start normal and have the features
// selected by kind redrawn from AnomalyRanges. Random perturbs each group
// independently with probability 0.3.
func (g *Generator) Anomalous(n int, kind AnomalyKind) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		s := g.normal()
		if kind == AnomalyBattery || (kind == AnomalyRandom && g.rng.Float64() < 0.3) {
			s[Battery] = AnomalyRanges[Battery].draw(g.rng)
		}
		if kind == AnomalyTemperature || (kind == AnomalyRandom && g.rng.Float64() < 0.3) {
			s[Temperature] = AnomalyRanges[Temperature].draw(g.rng)
		}
		if kind == AnomalyVibration || (kind == AnomalyRandom && g.rng.Float64() < 0.3) {
			s[Vibration] = AnomalyRanges[Vibration].draw(g.rng)
			s[MotorCurrent] = AnomalyRanges[MotorCurrent].draw(g.rng)
		}
		out[i] = s
	}
	return out
}

// TrainingSet mixes normal and anomalous samples in the given proportion
// and shuffles them.
func (g *Generator) TrainingSet(n int, contamination float64) [][]float64 {
	anomalies := int(float64(n) * contamination)
	out := append(g.Normal(n-anomalies), g.Anomalous(anomalies, AnomalyRandom)...)
	g.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Degrading returns a normal sample pushed toward failure by severity in
// [0,1]: the battery drains, and temperature, vibration and motor current
// rise.
func (g *Generator) Degrading(severity float64) []float64 {
	s := g.normal()
	s[Battery] -= severity * 50
	s[Temperature] += severity * 30
	s[Vibration] += severity * 8
	s[MotorCurrent] += severity * 7
	return s
}

// FlightPosition is the scripted position at step i around a 50 m cruise.
func FlightPosition(i int) core.Vec3 {
	return flightPosition(i, 50)
}

// FlightPath returns n scripted positions oscillating 10 m around cruise.
func FlightPath(n int, cruise float64) []core.Vec3 {
	out := make([]core.Vec3, n)
	for i := range out {
		out[i] = flightPosition(i, cruise)
	}
	return out
}

func flightPosition(i int, cruise float64) core.Vec3 {
	fi := float64(i)
	return core.Vec3{X: fi * 5, Y: fi * 3, Z: cruise + math.Sin(fi*0.3)*10}
}

// FlightSequence returns duration samples, normal until anomalyStart and
// degrading linearly afterwards, with their scripted positions.
func (g *Generator) FlightSequence(duration, anomalyStart int) ([][]float64, []core.Vec3) {
	samples := make([][]float64, duration)
	positions := make([]core.Vec3, duration)
	for i := 0; i < duration; i++ {
		if i < anomalyStart {
			samples[i] = g.normal()
		} else {
			samples[i] = g.Degrading(float64(i-anomalyStart) / float64(duration-anomalyStart))
		}
		positions[i] = FlightPosition(i)
	}
	return samples, positions
}

// TelemetryConfig shapes a synthetic telemetry stream.
type TelemetryConfig struct {
	Start     time.Time
	Interval  time.Duration
	OriginLat float64
	OriginLon float64
	WindSpeed float64
}

// DefaultTelemetryConfig returns a 10 Hz stream anchored in San Francisco.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Start:     time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		Interval:  100 * time.Millisecond,
		OriginLat: 37.7749,
		OriginLon: -122.4194,
		WindSpeed: 2,
	}
}

// Telemetry renders scorer samples and positions as raw telemetry records,
// the inverse of the monitor's feature mapping: battery and temperature map
// to the battery and air-temperature fields, vibration becomes accelerometer
// noise with that per-axis spread, speed is ground speed and motor current
// is battery current. Positions are local metres east/north of the origin
// fix with absolute altitude.
func (g *Generator) Telemetry(cfg TelemetryConfig, samples [][]float64, positions []core.Vec3) []model.TelemetryRecord {
	out := make([]model.TelemetryRecord, len(samples))
	for i, s := range samples {
		pos := positions[i]
		lat, lon := core.OffsetToGPS(cfg.OriginLat, cfg.OriginLon, pos.X, pos.Y)
		sigma := s[Vibration] / math.Sqrt(3)
		voltage := 19.8 + 5.4*s[Battery]/100
		out[i] = model.TelemetryRecord{
			Timestamp:        cfg.Start.Add(time.Duration(i) * cfg.Interval),
			Latitude:         model.Float(lat),
			Longitude:        model.Float(lon),
			Altitude:         model.Float(pos.Z),
			GroundSpeed:      model.Float(s[Speed]),
			AccelX:           model.Float(g.rng.NormFloat64() * sigma),
			AccelY:           model.Float(g.rng.NormFloat64() * sigma),
			AccelZ:           model.Float(model.Gravity + g.rng.NormFloat64()*sigma),
			BatteryVoltage:   model.Float(voltage),
			BatteryCurrent:   model.Float(s[MotorCurrent]),
			BatteryRemaining: model.Float(s[Battery]),
			WindSpeed:        model.Float(cfg.WindSpeed),
			AirTemperature:   model.Float(s[Temperature]),
		}
	}
	return out
}
