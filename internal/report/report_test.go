package report

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/flight-twin/core"
	"github.com/signalsfoundry/flight-twin/internal/twin"
	"github.com/signalsfoundry/flight-twin/model"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func sampleMission() (twin.Summary, []twin.HistoryEntry, *core.Trajectory) {
	var entries []twin.HistoryEntry
	for i := 0; i < 20; i++ {
		score := 0.1 + 0.04*float64(i)
		tier := model.RiskLow
		switch {
		case score >= 0.8:
			tier = model.RiskCritical
		case score >= 0.6:
			tier = model.RiskHigh
		case score >= 0.3:
			tier = model.RiskMedium
		}
		entries = append(entries, twin.HistoryEntry{
			MissionID: "m-1",
			Seq:       i,
			Timestamp: t0.Add(time.Duration(i) * 100 * time.Millisecond),
			Risk:      model.RiskAssessment{Score: score, Tier: tier},
			Position:  core.Vec3{X: 5 * float64(i), Y: 3 * float64(i), Z: 75 - float64(i)},
		})
	}
	final := entries[len(entries)-1].Risk
	final.Recommendation = "Return to base for inspection"
	sum := twin.Summary{
		MissionID:      "m-1",
		DroneID:        "REFERENCE_QUAD",
		Updates:        12345,
		Replans:        2,
		TierCounts:     map[model.RiskTier]int{model.RiskLow: 12000, model.RiskMedium: 300, model.RiskHigh: 45},
		MeanScore:      0.2512,
		MaxScore:       0.86,
		MeanStress:     0.31,
		FinalPosition:  core.Vec3{X: 95, Y: 57, Z: 56},
		FinalRisk:      &final,
		StartedAt:      t0,
		StoppedAt:      t0.Add(2 * time.Second),
		FlightDuration: 1900 * time.Millisecond,
		Health: &model.ComponentHealth{
			Motor: 99.5, Battery: 98, Overall: 98.7,
			MotorRemainingHours: 497.5, BatteryRemainingCycle: 299,
			MotorComputed: true, BatteryComputed: true,
		},
	}
	traj := &core.Trajectory{
		Waypoints: []core.Vec3{{X: 95, Y: 57, Z: 56}, {X: 100, Y: 80, Z: 52.5}, {X: 100, Y: 80, Z: 75}},
		Tier:      model.RiskHigh,
		Strategy:  core.StrategyName(model.RiskHigh),
	}
	return sum, entries, traj
}

func TestWriteSummary(t *testing.T) {
	sum, _, traj := sampleMission()
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, sum, traj))
	out := buf.String()

	for _, want := range []string{
		"Mission m-1",
		"drone:          REFERENCE_QUAD",
		"updates:        12,345",
		"12,000",
		"mean score:     0.251",
		"final risk:     CRITICAL",
		"Return to base for inspection",
		"frame     n/a",
		"motor life remaining: 497.5 h",
		traj.Strategy,
	} {
		assert.Contains(t, out, want)
	}
}

func TestWriteSummaryWithoutOptionalParts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, twin.Summary{MissionID: "empty"}, nil))
	out := buf.String()
	assert.Contains(t, out, "LOW")
	assert.NotContains(t, out, "health:")
	assert.NotContains(t, out, "final risk")
}

func TestWriteRendersCharts(t *testing.T) {
	sum, entries, traj := sampleMission()
	dir := filepath.Join(t.TempDir(), "report")

	files, err := Write(dir, sum, entries, traj)
	require.NoError(t, err)

	for _, path := range []string{files.Risk, files.Altitude, files.Path} {
		f, err := os.Open(path)
		require.NoError(t, err)
		img, err := png.Decode(f)
		f.Close()
		require.NoError(t, err, path)
		assert.Greater(t, img.Bounds().Dx(), 0)
	}
	text, err := os.ReadFile(files.Summary)
	require.NoError(t, err)
	assert.Contains(t, string(text), "Mission m-1")
}

func TestWriteWithoutHistorySkipsCharts(t *testing.T) {
	sum, _, _ := sampleMission()
	files, err := Write(t.TempDir(), sum, nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, files.Summary)
	assert.Empty(t, files.Risk)

	assert.Error(t, RiskChart(nil, filepath.Join(t.TempDir(), "x.png")))
}
