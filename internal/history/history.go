// Package history persists mission updates and summaries to SQLite so that
// flights survive restarts and can be reported on afterwards.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/flight-twin/internal/logging"
	"github.com/signalsfoundry/flight-twin/internal/twin"
	"github.com/signalsfoundry/flight-twin/model"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a mission has no stored summary.
var ErrNotFound = errors.New("mission not found")

// Store is a twin.HistorySink backed by a SQLite database.
type Store struct {
	db  *sql.DB
	log logging.Logger
}

var _ twin.HistorySink = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" gives a private in-process database.
func Open(path string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Noop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db %s: %w", path, err)
	}
	// SQLite serialises writers; one connection also keeps ":memory:"
	// databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	log.Info(context.Background(), "history database ready", logging.String("path", path))
	return &Store{db: db, log: log}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

const insertEntrySQL = `
INSERT OR REPLACE INTO mission_entries
    (mission_id, seq, timestamp_ns, tier, score, is_anomaly, x, y, z, overall_stress, entry_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// AppendEntry stores one mission update.
func (s *Store) AppendEntry(ctx context.Context, e twin.HistoryEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry %s/%d: %w", e.MissionID, e.Seq, err)
	}
	var stress sql.NullFloat64
	if e.Stress != nil {
		stress = sql.NullFloat64{Float64: e.Stress.Overall, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, insertEntrySQL,
		e.MissionID, e.Seq, e.Timestamp.UnixNano(),
		e.Risk.Tier.String(), e.Risk.Score, e.Risk.IsAnomaly,
		e.Position.X, e.Position.Y, e.Position.Z,
		stress, string(raw),
	)
	if err != nil {
		return fmt.Errorf("insert entry %s/%d: %w", e.MissionID, e.Seq, err)
	}
	return nil
}

const upsertSummarySQL = `
INSERT OR REPLACE INTO mission_summaries
    (mission_id, drone_id, started_ns, stopped_ns, updates, replans, mean_score, max_score, summary_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// RecordSummary stores the summary of a finished mission, replacing any
// earlier summary for the same mission.
func (s *Store) RecordSummary(ctx context.Context, sum twin.Summary) error {
	raw, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal summary %s: %w", sum.MissionID, err)
	}
	_, err = s.db.ExecContext(ctx, upsertSummarySQL,
		sum.MissionID, sum.DroneID,
		sum.StartedAt.UnixNano(), sum.StoppedAt.UnixNano(),
		sum.Updates, sum.Replans, sum.MeanScore, sum.MaxScore,
		string(raw),
	)
	if err != nil {
		return fmt.Errorf("insert summary %s: %w", sum.MissionID, err)
	}
	s.log.Debug(ctx, "mission summary stored",
		logging.String("mission_id", sum.MissionID),
		logging.Int("updates", sum.Updates),
	)
	return nil
}

// Entries returns the stored updates of a mission in sequence order. A
// positive limit keeps only the most recent entries.
func (s *Store) Entries(ctx context.Context, missionID string, limit int) ([]twin.HistoryEntry, error) {
	query := `SELECT entry_json FROM mission_entries WHERE mission_id = ? ORDER BY seq`
	args := []any{missionID}
	if limit > 0 {
		query = `SELECT entry_json FROM (
			SELECT seq, entry_json FROM mission_entries WHERE mission_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries %s: %w", missionID, err)
	}
	defer rows.Close()

	var out []twin.HistoryEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e twin.HistoryEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode entry of %s: %w", missionID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// TierCounts returns how many stored updates of a mission fell in each tier.
func (s *Store) TierCounts(ctx context.Context, missionID string) (map[model.RiskTier]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tier, COUNT(*) FROM mission_entries WHERE mission_id = ? GROUP BY tier`, missionID)
	if err != nil {
		return nil, fmt.Errorf("query tier counts %s: %w", missionID, err)
	}
	defer rows.Close()

	out := make(map[model.RiskTier]int)
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		tier, err := model.ParseRiskTier(name)
		if err != nil {
			return nil, err
		}
		out[tier] = n
	}
	return out, rows.Err()
}

// Summary returns the stored summary of a mission.
func (s *Store) Summary(ctx context.Context, missionID string) (twin.Summary, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT summary_json FROM mission_summaries WHERE mission_id = ?`, missionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return twin.Summary{}, fmt.Errorf("%w: %q", ErrNotFound, missionID)
	}
	if err != nil {
		return twin.Summary{}, fmt.Errorf("query summary %s: %w", missionID, err)
	}
	return decodeSummary(raw)
}

// Missions returns stored summaries, most recently stopped first. Only
// missions stopped at or after since are included; a zero since returns all.
func (s *Store) Missions(ctx context.Context, since time.Time) ([]twin.Summary, error) {
	var from int64
	if !since.IsZero() {
		from = since.UnixNano()
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT summary_json FROM mission_summaries WHERE stopped_ns >= ? ORDER BY stopped_ns DESC`, from)
	if err != nil {
		return nil, fmt.Errorf("query missions: %w", err)
	}
	defer rows.Close()

	var out []twin.Summary
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		sum, err := decodeSummary(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func decodeSummary(raw string) (twin.Summary, error) {
	var sum twin.Summary
	if err := json.Unmarshal([]byte(raw), &sum); err != nil {
		return twin.Summary{}, fmt.Errorf("decode summary: %w", err)
	}
	return sum, nil
}
