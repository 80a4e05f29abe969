package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/flight-twin/core"
	"github.com/signalsfoundry/flight-twin/kb"
	"github.com/signalsfoundry/flight-twin/model"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TWIN_HTTP_ADDR", "TWIN_GRPC_ADDR", "LOG_LEVEL", "LOG_FORMAT",
		"TWIN_RISK_SEED", "TWIN_RISK_CONTAMINATION", "TWIN_TRAINING_SAMPLES",
		"TWIN_HISTORY_LIMIT", "TWIN_REPLAN_AT", "TWIN_DRONE_CATALOG", "TWIN_DRONE_ID",
		"TWIN_MQTT_BROKER", "TWIN_MQTT_TOPIC", "TWIN_MQTT_CLIENT_ID",
		"TWIN_KAFKA_BROKERS", "TWIN_KAFKA_TOPIC", "TWIN_HISTORY_DB", "TWIN_REPORT_DIR",
		"TWIN_TRACING_ENABLED", "TWIN_TRACING_EXPORTER", "TWIN_TRACING_SERVICE_NAME",
		"TWIN_TRACING_SAMPLE_RATIO", "TWIN_OTLP_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, ":9090", cfg.Server.GRPCAddr)
	assert.Equal(t, Duration(10*time.Second), cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 10, cfg.Features.RollingWindow)
	assert.Equal(t, 10, cfg.Features.MaxRollingColumns)
	assert.Equal(t, 0.1, cfg.Risk.Contamination)
	assert.Equal(t, int64(42), cfg.Risk.Seed)
	assert.Equal(t, 500, cfg.Risk.TrainingSamples)
	assert.Equal(t, 20, cfg.Planner.BaselineWaypoints)
	assert.Equal(t, 10000, cfg.Mission.HistoryLimit)
	assert.Equal(t, "HIGH", cfg.Mission.ReplanAt)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)

	mc, err := cfg.MonitorConfig()
	require.NoError(t, err)
	assert.Equal(t, model.RiskHigh, mc.ReplanAt)
	assert.Equal(t, 50, mc.Window)
	assert.True(t, mc.AutoReplan)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "twin.yaml", `
server:
  http_addr: ":18080"
  shutdown_timeout: 30s
features:
  rolling_window: 5
  max_rolling_columns: 4
  fill_method: forward
risk:
  contamination: 0.05
  trees: 50
  training_samples: 0
planner:
  dense_waypoints: 40
mission:
  history_limit: 200
  replan_at: critical
kafka:
  brokers: ["k1:9092"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":18080", cfg.Server.HTTPAddr)
	assert.Equal(t, ":9090", cfg.Server.GRPCAddr, "unset keys keep their defaults")
	assert.Equal(t, Duration(30*time.Second), cfg.Server.ShutdownTimeout)
	assert.Equal(t, 5, cfg.Features.RollingWindow)
	assert.Equal(t, 10, cfg.Features.VibrationWindow)
	assert.Equal(t, core.FillForward, cfg.Features.FillMethod)
	assert.Equal(t, 0.05, cfg.Risk.Contamination)
	assert.Equal(t, 50, cfg.Risk.Trees)
	assert.Equal(t, 256, cfg.Risk.SampleSize)
	assert.Equal(t, 0, cfg.Risk.TrainingSamples)
	assert.Equal(t, 40, cfg.Planner.DenseWaypoints)
	assert.Equal(t, 200, cfg.Mission.HistoryLimit)
	assert.Equal(t, []string{"k1:9092"}, cfg.Kafka.Brokers)

	mc, err := cfg.MonitorConfig()
	require.NoError(t, err)
	assert.Equal(t, model.RiskCritical, mc.ReplanAt)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "twin.yaml", "server:\n  http_addr: \":18080\"\n")
	t.Setenv("TWIN_HTTP_ADDR", ":28080")
	t.Setenv("TWIN_RISK_SEED", "7")
	t.Setenv("TWIN_RISK_CONTAMINATION", "0.2")
	t.Setenv("TWIN_KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("TWIN_MQTT_BROKER", "tcp://mqtt:1883")
	t.Setenv("TWIN_HISTORY_LIMIT", "not-a-number")
	t.Setenv("TWIN_TRACING_ENABLED", "true")
	t.Setenv("TWIN_TRACING_EXPORTER", "OTLP")
	t.Setenv("TWIN_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("TWIN_OTLP_ENDPOINT", "collector:4317")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":28080", cfg.Server.HTTPAddr)
	assert.Equal(t, int64(7), cfg.Risk.Seed)
	assert.Equal(t, 0.2, cfg.Risk.Contamination)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "tcp://mqtt:1883", cfg.MQTT.Broker)
	assert.Equal(t, 10000, cfg.Mission.HistoryLimit, "unparseable values fall back")
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRatio)
	assert.Equal(t, "collector:4317", cfg.Tracing.Endpoint)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "twin.yaml", `
features:
  rolling_window: 0
risk:
  contamination: 0.9
mission:
  replan_at: severe
mqtt:
  qos: 3
tracing:
  sample_ratio: 2
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConfig), "err = %v", err)
	for _, want := range []string{"rolling window", "contamination", "severe", "mqtt.qos", "tracing.sample_ratio"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoad_BadFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeFile(t, "twin.yaml", "server:\n  shutdown_timeout: soon\n")
	_, err = Load(path)
	assert.ErrorContains(t, err, `"soon"`)
}

const catalogYAML = `
drones:
  - id: survey-hex
    model: Survey Hex
    frame_type: hex_x
    total_weight_kg: 3.2
    motors:
      - {id: M1, max_thrust_n: 20, lifetime_hours: 300}
      - {id: M2, max_thrust_n: 20, lifetime_hours: 300}
    arms:
      - {length_m: 0.3, cross_section_area_m2: 0.000006, max_bending_stress_mpa: 500}
    battery:
      capacity_mah: 10000
      expected_cycle_life: 400
`

func TestBuildCatalog(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Drones.CatalogFile = writeFile(t, "drones.yaml", catalogYAML)

	catalog, err := cfg.BuildCatalog()
	require.NoError(t, err)

	drones := catalog.ListDrones()
	require.Len(t, drones, 2)
	assert.Equal(t, "REFERENCE_QUAD", drones[0].ID)
	assert.Equal(t, "survey-hex", drones[1].ID)
	assert.Equal(t, 10.0, drones[1].MaxWindSpeedMS, "defaults applied on insert")

	d, err := cfg.SelectedDrone(catalog)
	require.NoError(t, err)
	assert.Equal(t, "REFERENCE_QUAD", d.ID)

	cfg.Drones.DroneID = "survey-hex"
	d, err = cfg.SelectedDrone(catalog)
	require.NoError(t, err)
	assert.Equal(t, 2, d.NumMotors())

	cfg.Drones.DroneID = "ghost"
	_, err = cfg.SelectedDrone(catalog)
	assert.ErrorIs(t, err, kb.ErrDroneNotFound)
}

func TestBuildCatalogRejectsInvalidDrone(t *testing.T) {
	cfg := Default()
	cfg.Drones.CatalogFile = writeFile(t, "drones.yaml", "drones:\n  - id: broken\n")
	_, err := cfg.BuildCatalog()
	assert.ErrorContains(t, err, "broken")
}
