package core

import (
	"math"
	"sort"
	"strings"

	"github.com/signalsfoundry/flight-twin/model"
)

// SensorFamily groups telemetry fields that come from one physical sensor.
type SensorFamily string

const (
	SensorIMU         SensorFamily = "imu"
	SensorGPS         SensorFamily = "gps"
	SensorAltitude    SensorFamily = "altitude"
	SensorAttitude    SensorFamily = "attitude"
	SensorBattery     SensorFamily = "battery"
	SensorEnvironment SensorFamily = "environment"
)

// SensorAvailabilityThreshold, times the batch row count, is the number of
// present family cells above which a family is considered fitted.
const SensorAvailabilityThreshold = 0.10

// SensorSet is the set of families detected in a batch.
type SensorSet map[SensorFamily]bool

// Has reports whether the family was detected.
func (s SensorSet) Has(f SensorFamily) bool { return s[f] }

// List returns the detected families in sorted order.
func (s SensorSet) List() []SensorFamily {
	out := make([]SensorFamily, 0, len(s))
	for f, ok := range s {
		if ok {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FillMethod selects the missing-value policy.
type FillMethod string

const (
	FillInterpolate FillMethod = "interpolate"
	FillForward     FillMethod = "forward"
	FillZero        FillMethod = "zero"
)

// DefaultRollingKeywords selects the columns that get rolling statistics.
var DefaultRollingKeywords = []string{"g_force", "rotation", "speed", "altitude", "vibration", "jerk"}

// FeatureConfig controls feature extraction.
type FeatureConfig struct {
	RollingWindow     int      `yaml:"rolling_window"`
	VibrationWindow   int      `yaml:"vibration_window"`
	MaxRollingColumns int      `yaml:"max_rolling_columns"`
	RollingKeywords   []string `yaml:"rolling_keywords"`

	IncludeStatistical    bool `yaml:"include_statistical"`
	IncludeDerivative     bool `yaml:"include_derivative"`
	IncludeFlightDynamics bool `yaml:"include_flight_dynamics"`
	IncludeEnergy         bool `yaml:"include_energy"`

	FillMethod FillMethod `yaml:"fill_method"`
}

// DefaultFeatureConfig returns the configuration used by the twin.
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		RollingWindow:         10,
		VibrationWindow:       10,
		MaxRollingColumns:     10,
		RollingKeywords:       DefaultRollingKeywords,
		IncludeStatistical:    true,
		IncludeDerivative:     true,
		IncludeFlightDynamics: true,
		IncludeEnergy:         true,
		FillMethod:            FillInterpolate,
	}
}

// Validate checks the configuration.
func (c FeatureConfig) Validate() error {
	if c.RollingWindow < 1 {
		return configErrorf("rolling window", ">= 1", "%d", c.RollingWindow)
	}
	if c.VibrationWindow < 1 {
		return configErrorf("vibration window", ">= 1", "%d", c.VibrationWindow)
	}
	if c.MaxRollingColumns < 0 {
		return configErrorf("max rolling columns", ">= 0", "%d", c.MaxRollingColumns)
	}
	switch c.FillMethod {
	case FillInterpolate, FillForward, FillZero:
	default:
		return configErrorf("fill method", "interpolate, forward or zero", "%q", c.FillMethod)
	}
	return nil
}

// FeatureVector is one row of a FeatureTable keyed by column name.
type FeatureVector map[string]float64

// Get returns the value and whether the column exists.
func (v FeatureVector) Get(name string) (float64, bool) {
	x, ok := v[name]
	return x, ok
}

// FeatureTable is a dense, column-oriented feature matrix with one row per
// input telemetry record.
type FeatureTable struct {
	columns []string
	index   map[string]int
	data    [][]float64
	rows    int
	sensors SensorSet
}

func newFeatureTable(rows int, sensors SensorSet) *FeatureTable {
	return &FeatureTable{index: make(map[string]int), rows: rows, sensors: sensors}
}

func (t *FeatureTable) add(name string, col []float64) {
	if i, ok := t.index[name]; ok {
		t.data[i] = col
		return
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, name)
	t.data = append(t.data, col)
}

// Len returns the row count.
func (t *FeatureTable) Len() int { return t.rows }

// Columns returns the column names in derivation order.
func (t *FeatureTable) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Has reports whether a column exists.
func (t *FeatureTable) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns a copy of the named column.
func (t *FeatureTable) Column(name string) ([]float64, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), t.data[i]...), true
}

// Value returns a single cell.
func (t *FeatureTable) Value(row int, name string) (float64, bool) {
	i, ok := t.index[name]
	if !ok || row < 0 || row >= t.rows {
		return 0, false
	}
	return t.data[i][row], true
}

// Row returns the feature vector at row i.
func (t *FeatureTable) Row(i int) FeatureVector {
	fv := make(FeatureVector, len(t.columns))
	if i < 0 || i >= t.rows {
		return fv
	}
	for c, name := range t.columns {
		fv[name] = t.data[c][i]
	}
	return fv
}

// Last returns the most recent row.
func (t *FeatureTable) Last() FeatureVector { return t.Row(t.rows - 1) }

// Sensors returns the families detected in the batch.
func (t *FeatureTable) Sensors() SensorSet {
	out := make(SensorSet, len(t.sensors))
	for k, v := range t.sensors {
		out[k] = v
	}
	return out
}

type field func(*model.TelemetryRecord) *float64

var sensorFields = map[SensorFamily][]field{
	SensorIMU: {
		func(r *model.TelemetryRecord) *float64 { return r.AccelX },
		func(r *model.TelemetryRecord) *float64 { return r.AccelY },
		func(r *model.TelemetryRecord) *float64 { return r.AccelZ },
	},
	SensorGPS: {
		func(r *model.TelemetryRecord) *float64 { return r.Latitude },
		func(r *model.TelemetryRecord) *float64 { return r.Longitude },
	},
	SensorAltitude: {
		func(r *model.TelemetryRecord) *float64 { return r.Altitude },
	},
	SensorAttitude: {
		func(r *model.TelemetryRecord) *float64 { return r.Roll },
		func(r *model.TelemetryRecord) *float64 { return r.Pitch },
		func(r *model.TelemetryRecord) *float64 { return r.Yaw },
	},
	SensorBattery: {
		func(r *model.TelemetryRecord) *float64 { return r.BatteryVoltage },
	},
	SensorEnvironment: {
		func(r *model.TelemetryRecord) *float64 { return r.WindSpeed },
		func(r *model.TelemetryRecord) *float64 { return r.AirTemperature },
	},
}

// DetectSensors marks a family available when its present cells, summed over
// the family's fields, exceed SensorAvailabilityThreshold times the row count.
func DetectSensors(records []model.TelemetryRecord) SensorSet {
	set := make(SensorSet)
	if len(records) == 0 {
		return set
	}
	for family, fields := range sensorFields {
		present := 0
		for i := range records {
			for _, f := range fields {
				if f(&records[i]) != nil {
					present++
				}
			}
		}
		if float64(present) > SensorAvailabilityThreshold*float64(len(records)) {
			set[family] = true
		}
	}
	return set
}

func series(records []model.TelemetryRecord, f field) []float64 {
	out := make([]float64, len(records))
	for i := range records {
		if p := f(&records[i]); p != nil {
			out[i] = *p
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// Extract converts a time-ordered telemetry batch into a feature table.
// Columns depend on which sensor families are present; the row count always
// equals len(records).
func Extract(records []model.TelemetryRecord, cfg FeatureConfig) (*FeatureTable, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &DataQualityError{Reason: "empty telemetry batch", Index: -1}
	}
	for i := 1; i < len(records); i++ {
		if records[i].Timestamp.Before(records[i-1].Timestamp) {
			return nil, &DataQualityError{Reason: "timestamps decrease", Index: i}
		}
	}

	n := len(records)
	sensors := DetectSensors(records)
	t := newFeatureTable(n, sensors)
	col := func(f func(*model.TelemetryRecord) *float64) []float64 { return series(records, f) }

	// Time features are always present.
	elapsed := make([]float64, n)
	dt := make([]float64, n)
	interval := make([]float64, n)
	rate := nanSeries(n)
	start := records[0].Timestamp
	for i := range records {
		elapsed[i] = records[i].Timestamp.Sub(start).Seconds()
		if i == 0 {
			dt[i] = math.NaN()
			continue
		}
		dt[i] = elapsed[i] - elapsed[i-1]
		interval[i] = dt[i]
		if dt[i] > 0 {
			rate[i] = 1 / dt[i]
		}
	}
	t.add("time_since_start", elapsed)
	t.add("sample_interval", interval)
	t.add("sample_rate_hz", rate)

	var gForce, rotation, groundSpeed, altitudeRate []float64

	if sensors.Has(SensorIMU) {
		ax := col(func(r *model.TelemetryRecord) *float64 { return r.AccelX })
		ay := col(func(r *model.TelemetryRecord) *float64 { return r.AccelY })
		az := col(func(r *model.TelemetryRecord) *float64 { return r.AccelZ })

		gForce = scaled(magnitude(ax, ay, az), 1/model.Gravity)
		t.add("g_force", gForce)
		t.add("g_force_x", scaled(ax, 1/model.Gravity))
		t.add("g_force_y", scaled(ay, 1/model.Gravity))
		t.add("g_force_z", scaled(az, 1/model.Gravity))

		gx := col(func(r *model.TelemetryRecord) *float64 { return r.GyroX })
		gy := col(func(r *model.TelemetryRecord) *float64 { return r.GyroY })
		gz := col(func(r *model.TelemetryRecord) *float64 { return r.GyroZ })
		if anyPresent(gx) || anyPresent(gy) || anyPresent(gz) {
			rotation = magnitude(gx, gy, gz)
			t.add("rotation_rate", rotation)
			t.add("gyro_x_rate", gx)
			t.add("gyro_y_rate", gy)
			t.add("gyro_z_rate", gz)
		}

		if cfg.IncludeDerivative {
			jx, jy, jz := diffRate(ax, dt), diffRate(ay, dt), diffRate(az, dt)
			t.add("jerk_x", jx)
			t.add("jerk_y", jy)
			t.add("jerk_z", jz)
			t.add("jerk_magnitude", magnitude(jx, jy, jz))
		}

		t.add("vibration_x", rollingStd(ax, cfg.VibrationWindow))
		t.add("vibration_y", rollingStd(ay, cfg.VibrationWindow))
		t.add("vibration_z", rollingStd(az, cfg.VibrationWindow))
	}

	if sensors.Has(SensorGPS) {
		gs := col(func(r *model.TelemetryRecord) *float64 { return r.GroundSpeed })
		if anyPresent(gs) {
			groundSpeed = gs
			t.add("ground_speed", gs)
			t.add("speed_change_rate", diffRate(gs, dt))
		}

		lat := col(func(r *model.TelemetryRecord) *float64 { return r.Latitude })
		lon := col(func(r *model.TelemetryRecord) *float64 { return r.Longitude })
		if anyPresent(lat) && anyPresent(lon) {
			delta := make([]float64, n)
			travelled := make([]float64, n)
			for i := 1; i < n; i++ {
				dLat, dLon := lat[i]-lat[i-1], lon[i]-lon[i-1]
				if math.IsNaN(dLat) {
					dLat = 0
				}
				if math.IsNaN(dLon) {
					dLon = 0
				}
				delta[i] = math.Hypot(dLat, dLon) * MetresPerDegree
				travelled[i] = travelled[i-1] + delta[i]
			}
			t.add("distance_delta", delta)
			t.add("distance_traveled", travelled)
		}
	}

	if sensors.Has(SensorAltitude) {
		alt := col(func(r *model.TelemetryRecord) *float64 { return r.Altitude })
		altitudeRate = diffRate(alt, dt)
		t.add("altitude", alt)
		t.add("altitude_rate", altitudeRate)
	}

	if sensors.Has(SensorAttitude) {
		roll := col(func(r *model.TelemetryRecord) *float64 { return r.Roll })
		pitch := col(func(r *model.TelemetryRecord) *float64 { return r.Pitch })
		yaw := col(func(r *model.TelemetryRecord) *float64 { return r.Yaw })
		t.add("roll", roll)
		t.add("pitch", pitch)
		t.add("yaw", yaw)
		if cfg.IncludeDerivative {
			t.add("roll_rate", diffRate(roll, dt))
			t.add("pitch_rate", diffRate(pitch, dt))
			t.add("yaw_rate", diffRate(yaw, dt))
		}
		t.add("tilt_angle", magnitude(roll, pitch))
	}

	if sensors.Has(SensorBattery) {
		volts := col(func(r *model.TelemetryRecord) *float64 { return r.BatteryVoltage })
		amps := col(func(r *model.TelemetryRecord) *float64 { return r.BatteryCurrent })
		remaining := col(func(r *model.TelemetryRecord) *float64 { return r.BatteryRemaining })
		hasVolts, hasAmps := anyPresent(volts), anyPresent(amps)
		if hasVolts {
			t.add("battery_voltage", volts)
			t.add("voltage_drop_rate", diffRate(volts, dt))
		}
		if hasAmps {
			t.add("battery_current", amps)
		}
		if hasVolts && hasAmps {
			t.add("power_watts", product(volts, amps))
		}
		if anyPresent(remaining) {
			t.add("battery_remaining_pct", remaining)
		}
	}

	if sensors.Has(SensorEnvironment) {
		wind := col(func(r *model.TelemetryRecord) *float64 { return r.WindSpeed })
		temp := col(func(r *model.TelemetryRecord) *float64 { return r.AirTemperature })
		if anyPresent(wind) {
			t.add("wind_speed", wind)
		}
		if anyPresent(temp) {
			t.add("air_temperature", temp)
		}
	}

	if cfg.IncludeFlightDynamics {
		if groundSpeed != nil && altitudeRate != nil {
			t.add("speed_3d", magnitude(groundSpeed, altitudeRate))
		}
		if gForce != nil {
			intensity := append([]float64(nil), gForce...)
			if rotation != nil {
				intensity = product(gForce, rotation)
			}
			t.add("maneuver_intensity", intensity)
		}
	}
	if cfg.IncludeEnergy && groundSpeed != nil {
		t.add("kinetic_energy_indicator", product(groundSpeed, groundSpeed))
	}

	if cfg.IncludeStatistical {
		for _, name := range rollingColumns(t.columns, cfg) {
			mean, std, peak := rollingStats(t.data[t.index[name]], cfg.RollingWindow)
			t.add(name+"_rolling_mean", mean)
			t.add(name+"_rolling_std", std)
			t.add(name+"_rolling_max", peak)
		}
	}

	for _, c := range t.data {
		switch cfg.FillMethod {
		case FillInterpolate:
			interpolateLinear(c)
		case FillForward:
			fillForward(c)
		}
		sanitize(c)
	}
	return t, nil
}

// rollingColumns picks, in column order, the first MaxRollingColumns whose
// name contains one of the rolling keywords.
func rollingColumns(columns []string, cfg FeatureConfig) []string {
	keywords := cfg.RollingKeywords
	if keywords == nil {
		keywords = DefaultRollingKeywords
	}
	var out []string
	for _, name := range columns {
		if len(out) >= cfg.MaxRollingColumns {
			break
		}
		lower := strings.ToLower(name)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}
