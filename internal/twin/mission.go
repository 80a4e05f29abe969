package twin

import (
	"errors"
	"time"

	"github.com/signalsfoundry/flight-twin/core"
	"github.com/signalsfoundry/flight-twin/model"
)

// ErrMissionActive is returned when a mission is started while another one
// is still running.
var ErrMissionActive = errors.New("mission already active")

// Phase is the engine's lifecycle state.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseInitialized
	PhaseMissionActive
	PhaseMissionStopped
)

var phaseNames = map[Phase]string{
	PhaseUninitialized:  "UNINITIALIZED",
	PhaseInitialized:    "INITIALIZED",
	PhaseMissionActive:  "MISSION_ACTIVE",
	PhaseMissionStopped: "MISSION_STOPPED",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Observation is one telemetry update fed to the engine. Sample follows the
// scorer's feature layout. A zero Timestamp is replaced by the engine clock.
type Observation struct {
	Timestamp time.Time
	Sample    []float64
	Position  core.Vec3
	Telemetry *model.TelemetryRecord
	Stress    *model.StressAssessment
}

// HistoryEntry is one retained update of a mission.
type HistoryEntry struct {
	MissionID string                  `json:"mission_id"`
	Seq       int                     `json:"seq"`
	Timestamp time.Time               `json:"timestamp"`
	Sample    []float64               `json:"sample"`
	Telemetry *model.TelemetryRecord  `json:"telemetry,omitempty"`
	Stress    *model.StressAssessment `json:"stress,omitempty"`
	Risk      model.RiskAssessment    `json:"risk"`
	Position  core.Vec3               `json:"position"`
}

// Update is the result of one telemetry update.
type Update struct {
	Seq  int                  `json:"seq"`
	Risk model.RiskAssessment `json:"risk"`
	// PathUpdateRecommended is set whenever the tier is above LOW. The engine
	// never replans on its own.
	PathUpdateRecommended bool `json:"path_update_recommended"`
}

// MissionInfo describes a started mission.
type MissionInfo struct {
	ID          string          `json:"id"`
	DroneID     string          `json:"drone_id,omitempty"`
	Start       core.Vec3       `json:"start"`
	Destination core.Vec3       `json:"destination"`
	StartedAt   time.Time       `json:"started_at"`
	Trajectory  core.Trajectory `json:"trajectory"`
}

// Replan is the result of a trajectory replan.
type Replan struct {
	Tier       model.RiskTier   `json:"tier"`
	Strategy   string           `json:"strategy"`
	Trajectory core.Trajectory  `json:"trajectory"`
	Metrics    core.PathMetrics `json:"metrics"`
}

// Summary reports a finished mission. Aggregates cover every update, including
// those evicted from the retained history.
type Summary struct {
	MissionID      string                 `json:"mission_id"`
	DroneID        string                 `json:"drone_id,omitempty"`
	Updates        int                    `json:"updates"`
	Replans        int                    `json:"replans"`
	TierCounts     map[model.RiskTier]int `json:"tier_counts"`
	MeanScore      float64                `json:"mean_score"`
	MaxScore       float64                `json:"max_score"`
	MeanStress     float64                `json:"mean_stress"`
	FinalPosition  core.Vec3              `json:"final_position"`
	FinalRisk      *model.RiskAssessment  `json:"final_risk,omitempty"`
	StartedAt      time.Time              `json:"started_at"`
	StoppedAt      time.Time              `json:"stopped_at"`
	FlightDuration time.Duration          `json:"flight_duration"`
	Health         *model.ComponentHealth `json:"health,omitempty"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	Phase         Phase                 `json:"phase"`
	MissionID     string                `json:"mission_id,omitempty"`
	Position      core.Vec3             `json:"position"`
	Destination   core.Vec3             `json:"destination"`
	Risk          *model.RiskAssessment `json:"risk,omitempty"`
	Trajectory    *core.Trajectory      `json:"trajectory,omitempty"`
	Updates       int                   `json:"updates"`
	Retained      int                   `json:"retained"`
	ModelSamples  int                   `json:"model_samples"`
	FeatureLayout []string              `json:"feature_layout"`
}

// missionState is the engine-owned mutable record of the current mission.
type missionState struct {
	info       MissionInfo
	position   core.Vec3
	trajectory core.Trajectory
	risk       *model.RiskAssessment
	history    *ring

	updates    int
	replans    int
	tierCounts map[model.RiskTier]int
	scoreSum   float64
	scoreMax   float64
	stressSum  float64
	stressN    int
	firstTS    time.Time
	lastTS     time.Time
}
