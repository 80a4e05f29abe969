package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/flight-twin/core"
	"github.com/signalsfoundry/flight-twin/internal/simulate"
	"github.com/signalsfoundry/flight-twin/internal/twin"
	"github.com/signalsfoundry/flight-twin/model"
	"github.com/signalsfoundry/flight-twin/risk"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(mission string, seq int, tier model.RiskTier, score float64) twin.HistoryEntry {
	return twin.HistoryEntry{
		MissionID: mission,
		Seq:       seq,
		Timestamp: t0.Add(time.Duration(seq) * 100 * time.Millisecond),
		Sample:    []float64{90, 25, 1, 75, 10, 3.5},
		Stress:    &model.StressAssessment{Overall: 0.2, Motor: 0.4},
		Risk: model.RiskAssessment{
			Score:          score,
			Tier:           tier,
			IsAnomaly:      tier >= model.RiskHigh,
			Recommendation: "x",
		},
		Position: core.Vec3{X: float64(seq), Y: 2 * float64(seq), Z: 75},
	}
}

func TestAppendAndReadEntries(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		tier := model.RiskLow
		if i > 3 {
			tier = model.RiskHigh
		}
		require.NoError(t, s.AppendEntry(ctx, entry("m-1", i, tier, 0.1*float64(i))))
	}
	require.NoError(t, s.AppendEntry(ctx, entry("m-2", 1, model.RiskMedium, 0.4)))

	got, err := s.Entries(ctx, "m-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, 1, got[0].Seq)
	assert.Equal(t, model.RiskHigh, got[4].Risk.Tier)
	assert.True(t, got[4].Timestamp.Equal(t0.Add(500*time.Millisecond)))
	assert.Equal(t, core.Vec3{X: 5, Y: 10, Z: 75}, got[4].Position)
	require.NotNil(t, got[4].Stress)
	assert.Equal(t, 0.4, got[4].Stress.Motor)

	tail, err := s.Entries(ctx, "m-1", 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, []int{4, 5}, []int{tail[0].Seq, tail[1].Seq})

	counts, err := s.TierCounts(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, map[model.RiskTier]int{model.RiskLow: 3, model.RiskHigh: 2}, counts)

	none, err := s.Entries(ctx, "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSummaryRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	final := model.RiskAssessment{Score: 0.7, Tier: model.RiskHigh, IsAnomaly: true}
	first := twin.Summary{
		MissionID:      "m-1",
		DroneID:        "REFERENCE_QUAD",
		Updates:        20,
		Replans:        1,
		TierCounts:     map[model.RiskTier]int{model.RiskLow: 12, model.RiskHigh: 8},
		MeanScore:      0.35,
		MaxScore:       0.7,
		FinalPosition:  core.Vec3{X: 10, Y: 8, Z: 40},
		FinalRisk:      &final,
		StartedAt:      t0,
		StoppedAt:      t0.Add(2 * time.Second),
		FlightDuration: 2 * time.Second,
	}
	second := first
	second.MissionID = "m-2"
	second.StartedAt = t0.Add(time.Minute)
	second.StoppedAt = t0.Add(2 * time.Minute)

	require.NoError(t, s.RecordSummary(ctx, first))
	require.NoError(t, s.RecordSummary(ctx, second))

	got, err := s.Summary(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, 8, got.TierCounts[model.RiskHigh])
	assert.Equal(t, 2*time.Second, got.FlightDuration)
	require.NotNil(t, got.FinalRisk)
	assert.Equal(t, model.RiskHigh, got.FinalRisk.Tier)

	all, err := s.Missions(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "m-2", all[0].MissionID, "most recent first")

	recent, err := s.Missions(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 1)

	_, err = s.Summary(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound), "err = %v", err)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.AppendEntry(ctx, entry("m-1", 1, model.RiskLow, 0.1)))
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Entries(ctx, "m-1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestAppendEntryRespectsContext(t *testing.T) {
	s := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.AppendEntry(ctx, entry("m-1", 1, model.RiskLow, 0.1)))
}

func TestEngineWritesThroughStore(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	planner, err := core.NewPlanner(core.DefaultPlannerConfig())
	require.NoError(t, err)
	engine := twin.NewEngine(risk.NewScorer(risk.DefaultConfig()), planner, nil,
		twin.WithHistorySink(s), twin.WithHistoryLimit(2))
	require.NoError(t, engine.Initialize(ctx, simulate.NewGenerator(3).Normal(300)))

	info, err := engine.StartMission(ctx, core.Vec3{}, core.Vec3{X: 100, Y: 80, Z: 75})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := engine.UpdateTelemetry(ctx, []float64{90, 27, 1, 75, 10, 3.5}, core.Vec3{X: float64(i), Z: 75})
		require.NoError(t, err)
	}
	summary, err := engine.StopMission(ctx)
	require.NoError(t, err)

	stored, err := s.Entries(ctx, info.ID, 0)
	require.NoError(t, err)
	assert.Len(t, stored, 4, "the store keeps entries evicted from the in-memory ring")
	assert.Len(t, engine.History(), 2)

	got, err := s.Summary(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, summary.Updates, got.Updates)
	assert.Equal(t, summary.TierCounts, got.TierCounts)
}
