package core

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/flight-twin/model"
)

// PlannerConfig sets waypoint densities and the shape of the conservative
// and emergency profiles.
type PlannerConfig struct {
	BaselineWaypoints     int `yaml:"baseline_waypoints"`
	DenseWaypoints        int `yaml:"dense_waypoints"`
	ConservativeWaypoints int `yaml:"conservative_waypoints"`
	EmergencyWaypoints    int `yaml:"emergency_waypoints"`
	RampWaypoints         int `yaml:"ramp_waypoints"`

	// SafeAltitudeFactor scales the current altitude for the conservative
	// cruise leg.
	SafeAltitudeFactor float64 `yaml:"safe_altitude_factor"`
	// EmergencyOffset is the forward and lateral displacement of the
	// emergency touchdown point.
	EmergencyOffset float64 `yaml:"emergency_offset"`
}

// DefaultPlannerConfig returns the stock planner settings.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		BaselineWaypoints:     20,
		DenseWaypoints:        30,
		ConservativeWaypoints: 25,
		EmergencyWaypoints:    10,
		RampWaypoints:         5,
		SafeAltitudeFactor:    0.7,
		EmergencyOffset:       5,
	}
}

// Validate checks the planner settings.
func (c PlannerConfig) Validate() error {
	for name, n := range map[string]int{
		"baseline waypoints":     c.BaselineWaypoints,
		"dense waypoints":        c.DenseWaypoints,
		"conservative waypoints": c.ConservativeWaypoints,
		"emergency waypoints":    c.EmergencyWaypoints,
	} {
		if n < 2 {
			return configErrorf(name, ">= 2", "%d", n)
		}
	}
	if c.RampWaypoints < 2 || 2*c.RampWaypoints > c.ConservativeWaypoints {
		return configErrorf("ramp waypoints", fmt.Sprintf("2..%d", c.ConservativeWaypoints/2), "%d", c.RampWaypoints)
	}
	if c.SafeAltitudeFactor <= 0 || c.SafeAltitudeFactor > 1 {
		return configErrorf("safe altitude factor", "(0, 1]", "%v", c.SafeAltitudeFactor)
	}
	return nil
}

// Trajectory is an ordered waypoint sequence together with the policy that
// produced it.
type Trajectory struct {
	Waypoints []Vec3         `json:"waypoints"`
	Tier      model.RiskTier `json:"tier"`
	Strategy  string         `json:"strategy"`
}

// Final returns the last waypoint.
func (t Trajectory) Final() Vec3 {
	if len(t.Waypoints) == 0 {
		return Vec3{}
	}
	return t.Waypoints[len(t.Waypoints)-1]
}

// PathMetrics summarises a trajectory.
type PathMetrics struct {
	TotalDistance       float64 `json:"total_distance"`
	TotalAltitudeChange float64 `json:"total_altitude_change"`
	Smoothness          float64 `json:"smoothness"`
	WaypointCount       int     `json:"waypoint_count"`
}

// Metrics computes path length, cumulative climb/descent and smoothness,
// where smoothness is 1/(1+variance of turn angles).
func (t Trajectory) Metrics() PathMetrics {
	wp := t.Waypoints
	m := PathMetrics{WaypointCount: len(wp), Smoothness: 1}
	for i := 1; i < len(wp); i++ {
		m.TotalDistance += wp[i].DistanceTo(wp[i-1])
		dz := wp[i].Z - wp[i-1].Z
		if dz < 0 {
			dz = -dz
		}
		m.TotalAltitudeChange += dz
	}
	if len(wp) < 3 {
		return m
	}
	angles := make([]float64, 0, len(wp)-2)
	for i := 2; i < len(wp); i++ {
		angles = append(angles, turnAngle(wp[i-1].Sub(wp[i-2]), wp[i].Sub(wp[i-1])))
	}
	m.Smoothness = 1 / (1 + stat.PopVariance(angles, nil))
	return m
}

type pathStrategy struct {
	name  string
	build func(c PlannerConfig, current, destination Vec3) []Vec3
}

// strategies maps every risk tier to its path policy.
var strategies = map[model.RiskTier]pathStrategy{
	model.RiskLow: {
		name: "direct",
		build: func(c PlannerConfig, cur, dst Vec3) []Vec3 {
			return linspace(cur, dst, c.BaselineWaypoints)
		},
	},
	model.RiskMedium: {
		name: "dense",
		build: func(c PlannerConfig, cur, dst Vec3) []Vec3 {
			return linspace(cur, dst, c.DenseWaypoints)
		},
	},
	model.RiskHigh: {
		name:  "conservative",
		build: conservativePath,
	},
	model.RiskCritical: {
		name:  "emergency_landing",
		build: emergencyLandingPath,
	},
}

// conservativePath flies the leg at a reduced altitude, ramping down over
// the first RampWaypoints and back to the destination altitude over the
// last RampWaypoints.
func conservativePath(c PlannerConfig, cur, dst Vec3) []Vec3 {
	n := c.ConservativeWaypoints
	safe := cur.Z * c.SafeAltitudeFactor
	if safe < dst.Z {
		safe = dst.Z
	}
	pts := linspace(cur, dst, n)
	for i := range pts {
		pts[i].Z = safe
	}
	r := c.RampWaypoints
	for i := 0; i < r; i++ {
		f := float64(i) / float64(r-1)
		pts[i].Z = cur.Z + (safe-cur.Z)*f
		pts[n-r+i].Z = safe + (dst.Z-safe)*f
	}
	pts[0].Z, pts[n-1].Z = cur.Z, dst.Z
	return pts
}

// emergencyLandingPath descends to the ground at a point just ahead of the
// current position. The destination is ignored.
func emergencyLandingPath(c PlannerConfig, cur, _ Vec3) []Vec3 {
	touchdown := Vec3{X: cur.X + c.EmergencyOffset, Y: cur.Y + c.EmergencyOffset, Z: 0}
	return linspace(cur, touchdown, c.EmergencyWaypoints)
}

// Planner generates risk-conditioned trajectories. It is stateless and safe
// for concurrent use.
type Planner struct {
	cfg PlannerConfig
}

// NewPlanner validates the configuration and returns a planner.
func NewPlanner(cfg PlannerConfig) (*Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Planner{cfg: cfg}, nil
}

// InitialPath returns evenly spaced waypoints from start to end inclusive.
func (p *Planner) InitialPath(start, end Vec3) Trajectory {
	return Trajectory{
		Waypoints: linspace(start, end, p.cfg.BaselineWaypoints),
		Tier:      model.RiskLow,
		Strategy:  strategies[model.RiskLow].name,
	}
}

// Optimize plans from the current position according to the risk tier.
func (p *Planner) Optimize(current Vec3, tier model.RiskTier, destination Vec3) (Trajectory, error) {
	s, ok := strategies[tier]
	if !ok {
		return Trajectory{}, configErrorf("risk tier", "LOW, MEDIUM, HIGH or CRITICAL", "%v", tier)
	}
	return Trajectory{
		Waypoints: s.build(p.cfg, current, destination),
		Tier:      tier,
		Strategy:  s.name,
	}, nil
}

// StrategyName returns the policy name used for a tier.
func StrategyName(tier model.RiskTier) string {
	return strategies[tier].name
}
