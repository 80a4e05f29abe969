package core

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/flight-twin/model"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return model.Float(v) }

// fullRecords returns n records at 10 Hz with every sensor populated.
func fullRecords(n int) []model.TelemetryRecord {
	out := make([]model.TelemetryRecord, n)
	for i := range out {
		x := float64(i)
		out[i] = model.TelemetryRecord{
			Timestamp:        epoch.Add(time.Duration(i) * 100 * time.Millisecond),
			Latitude:         f(47.0 + x*0.0001),
			Longitude:        f(8.0),
			Altitude:         f(50 + x),
			GroundSpeed:      f(10),
			VerticalSpeed:    f(0),
			Roll:             f(3),
			Pitch:            f(4),
			Yaw:              f(90),
			AccelX:           f(0.1 * x),
			AccelY:           f(0),
			AccelZ:           f(model.Gravity),
			GyroX:            f(1),
			GyroY:            f(0),
			GyroZ:            f(0),
			BatteryVoltage:   f(22.2 - 0.01*x),
			BatteryCurrent:   f(10),
			BatteryRemaining: f(95 - 0.1*x),
			WindSpeed:        f(3),
			AirTemperature:   f(22),
		}
	}
	return out
}

func assertFinite(t *testing.T, table *FeatureTable) {
	t.Helper()
	for _, name := range table.Columns() {
		col, _ := table.Column(name)
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("column %s row %d = %v, want finite", name, i, v)
			}
		}
	}
}

func TestExtractRowCountMatchesInput(t *testing.T) {
	for _, n := range []int{1, 2, 9, 25} {
		table, err := Extract(fullRecords(n), DefaultFeatureConfig())
		if err != nil {
			t.Fatalf("Extract(%d) error = %v", n, err)
		}
		if table.Len() != n {
			t.Fatalf("Len() = %d, want %d", table.Len(), n)
		}
		assertFinite(t, table)
	}
}

func TestExtractSkipsMissingIMU(t *testing.T) {
	records := fullRecords(20)
	for i := range records {
		records[i].AccelX, records[i].AccelY, records[i].AccelZ = nil, nil, nil
	}
	table, err := Extract(records, DefaultFeatureConfig())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if table.Sensors().Has(SensorIMU) {
		t.Fatalf("IMU detected with no acceleration data")
	}
	for _, name := range table.Columns() {
		for _, banned := range []string{"g_force", "jerk", "vibration", "maneuver"} {
			if strings.HasPrefix(name, banned) {
				t.Fatalf("unexpected IMU column %q", name)
			}
		}
	}
	if !table.Has("ground_speed") || !table.Has("battery_voltage") {
		t.Fatalf("other families missing: %v", table.Columns())
	}
}

func TestDetectSensorsThreshold(t *testing.T) {
	records := make([]model.TelemetryRecord, 20)
	for i := range records {
		records[i].Timestamp = epoch.Add(time.Duration(i) * time.Second)
	}
	// 2 accelerometer cells against a bar of 0.1 * 20 rows = 2.
	records[0].AccelX, records[0].AccelZ = f(0), f(9.81)
	// 3 altitude cells clear it.
	records[0].Altitude, records[5].Altitude, records[10].Altitude = f(10), f(20), f(30)

	set := DetectSensors(records)
	if set.Has(SensorIMU) {
		t.Fatalf("IMU detected with 2 cells in 20 rows")
	}
	if !set.Has(SensorAltitude) {
		t.Fatalf("altitude not detected with 3 cells in 20 rows")
	}
	if got := set.List(); len(got) != 1 || got[0] != SensorAltitude {
		t.Fatalf("List() = %v", got)
	}
}

func TestDetectSensorsCountsCellsAgainstRows(t *testing.T) {
	records := make([]model.TelemetryRecord, 100)
	for i := range records {
		records[i].Timestamp = epoch.Add(time.Duration(i) * time.Second)
		records[i].BatteryCurrent = f(8)
		records[i].GroundSpeed = f(10)
	}
	// 13 GPS fixes give 26 lat/lon cells, above 0.1 * 100 rows.
	for i := 0; i < 13; i++ {
		records[i*7].Latitude = f(47.0 + float64(i)*0.0001)
		records[i*7].Longitude = f(8.0)
	}

	set := DetectSensors(records)
	if !set.Has(SensorGPS) {
		t.Fatalf("GPS not detected with 13 fixes in 100 rows")
	}
	if set.Has(SensorBattery) {
		t.Fatalf("battery detected without any voltage readings")
	}

	table, err := Extract(records, DefaultFeatureConfig())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if _, ok := table.Value(99, "distance_traveled"); !ok {
		t.Fatalf("distance_traveled missing for sparse GPS")
	}
	if _, ok := table.Value(0, "battery_current"); ok {
		t.Fatalf("battery_current emitted without a battery family")
	}
}

func TestExtractSingleRecordHasZeroDerivatives(t *testing.T) {
	table, err := Extract(fullRecords(1), DefaultFeatureConfig())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	for _, name := range []string{"jerk_x", "jerk_magnitude", "altitude_rate", "speed_change_rate", "roll_rate", "voltage_drop_rate", "sample_interval", "vibration_x"} {
		v, ok := table.Value(0, name)
		if !ok {
			t.Fatalf("column %s missing", name)
		}
		if v != 0 {
			t.Fatalf("%s = %v, want 0", name, v)
		}
	}
}

func TestExtractDerivedValues(t *testing.T) {
	table, err := Extract(fullRecords(11), DefaultFeatureConfig())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if g, _ := table.Value(0, "g_force"); math.Abs(g-1) > 1e-9 {
		t.Fatalf("g_force[0] = %v, want 1", g)
	}
	// accel_x rises 0.1 m/s^2 every 0.1 s.
	if j, _ := table.Value(5, "jerk_x"); math.Abs(j-1) > 1e-9 {
		t.Fatalf("jerk_x[5] = %v, want 1", j)
	}
	if r, _ := table.Value(3, "altitude_rate"); math.Abs(r-10) > 1e-9 {
		t.Fatalf("altitude_rate[3] = %v, want 10", r)
	}
	if d, _ := table.Value(10, "distance_traveled"); math.Abs(d-10*0.0001*MetresPerDegree) > 1e-6 {
		t.Fatalf("distance_traveled[10] = %v, want %v", d, 10*0.0001*MetresPerDegree)
	}
	if p, _ := table.Value(0, "power_watts"); math.Abs(p-222) > 1e-9 {
		t.Fatalf("power_watts[0] = %v, want 222", p)
	}
	if tilt, _ := table.Value(0, "tilt_angle"); tilt != 5 {
		t.Fatalf("tilt_angle = %v, want 5", tilt)
	}
	if hz, _ := table.Value(4, "sample_rate_hz"); math.Abs(hz-10) > 1e-6 {
		t.Fatalf("sample_rate_hz = %v, want 10", hz)
	}
	if elapsed, _ := table.Value(10, "time_since_start"); math.Abs(elapsed-1) > 1e-9 {
		t.Fatalf("time_since_start = %v, want 1", elapsed)
	}

	last := table.Last()
	if _, ok := last.Get("wind_speed"); !ok {
		t.Fatalf("wind_speed missing from last row")
	}
}

func TestExtractPowerRequiresVoltageAndCurrent(t *testing.T) {
	records := fullRecords(10)
	for i := range records {
		records[i].BatteryCurrent = nil
	}
	table, err := Extract(records, DefaultFeatureConfig())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if table.Has("power_watts") || table.Has("battery_current") {
		t.Fatalf("power derived without current: %v", table.Columns())
	}
	if !table.Has("voltage_drop_rate") {
		t.Fatalf("voltage_drop_rate missing")
	}
}

func TestExtractInterpolatesGaps(t *testing.T) {
	records := fullRecords(5)
	records[0].Altitude = nil
	records[2].Altitude = nil
	cfg := DefaultFeatureConfig()
	cfg.IncludeStatistical = false

	table, err := Extract(records, cfg)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	alt, _ := table.Column("altitude")
	// Leading gap holds the first observation, interior gaps are linear.
	want := []float64{51, 51, 52, 53, 54}
	for i := range want {
		if math.Abs(alt[i]-want[i]) > 1e-9 {
			t.Fatalf("altitude = %v, want %v", alt, want)
		}
	}

	cfg.FillMethod = FillZero
	table, err = Extract(records, cfg)
	if err != nil {
		t.Fatalf("Extract(zero) error = %v", err)
	}
	if v, _ := table.Value(2, "altitude"); v != 0 {
		t.Fatalf("zero fill altitude[2] = %v", v)
	}

	cfg.FillMethod = FillForward
	table, err = Extract(records, cfg)
	if err != nil {
		t.Fatalf("Extract(forward) error = %v", err)
	}
	if v, _ := table.Value(2, "altitude"); v != 51 {
		t.Fatalf("forward fill altitude[2] = %v, want 51", v)
	}
}

func TestExtractRollingColumnBound(t *testing.T) {
	cfg := DefaultFeatureConfig()
	cfg.MaxRollingColumns = 2

	table, err := Extract(fullRecords(15), cfg)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	var rolling []string
	for _, name := range table.Columns() {
		if strings.Contains(name, "_rolling_") {
			rolling = append(rolling, name)
		}
	}
	if len(rolling) != 6 {
		t.Fatalf("rolling columns = %v, want 6", rolling)
	}
	for _, want := range []string{"g_force_rolling_mean", "g_force_x_rolling_max"} {
		if !table.Has(want) {
			t.Fatalf("missing %s in %v", want, rolling)
		}
	}

	cfg.MaxRollingColumns = 0
	table, err = Extract(fullRecords(15), cfg)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	for _, name := range table.Columns() {
		if strings.Contains(name, "_rolling_") {
			t.Fatalf("unexpected rolling column %s", name)
		}
	}
}

func TestRollingStatsMinPeriods(t *testing.T) {
	mean, std, peak := rollingStats([]float64{1, 3, math.NaN(), 5}, 2)
	if mean[0] != 1 || peak[0] != 1 || !math.IsNaN(std[0]) {
		t.Fatalf("first window = %v %v %v", mean[0], std[0], peak[0])
	}
	if mean[1] != 2 || math.Abs(std[1]-math.Sqrt2) > 1e-12 || peak[1] != 3 {
		t.Fatalf("second window = %v %v %v", mean[1], std[1], peak[1])
	}
	if mean[2] != 3 || peak[2] != 3 {
		t.Fatalf("window skipping NaN = %v %v", mean[2], peak[2])
	}
}

func TestExtractRejectsBadInput(t *testing.T) {
	if _, err := Extract(nil, DefaultFeatureConfig()); !errors.Is(err, ErrDataQuality) {
		t.Fatalf("empty batch error = %v, want data quality", err)
	}

	records := fullRecords(4)
	records[2].Timestamp = records[0].Timestamp.Add(-time.Second)
	_, err := Extract(records, DefaultFeatureConfig())
	var dq *DataQualityError
	if !errors.As(err, &dq) || dq.Index != 2 {
		t.Fatalf("decreasing timestamps error = %v, want row 2", err)
	}

	cfg := DefaultFeatureConfig()
	cfg.RollingWindow = 0
	_, err = Extract(fullRecords(3), cfg)
	var ce *ConfigError
	if !errors.As(err, &ce) || !errors.Is(err, ErrConfig) {
		t.Fatalf("zero window error = %v, want ConfigError", err)
	}
	if !strings.Contains(err.Error(), "expected >= 1, got 0") {
		t.Fatalf("error %q lacks diagnostic", err)
	}
}
