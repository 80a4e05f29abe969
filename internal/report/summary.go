// Package report renders finished missions as plain-text summaries and PNG
// charts.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/signalsfoundry/flight-twin/core"
	"github.com/signalsfoundry/flight-twin/internal/twin"
	"github.com/signalsfoundry/flight-twin/model"
)

// WriteSummary writes a human-readable mission summary. traj, when non-nil,
// is the final planned trajectory.
func WriteSummary(w io.Writer, s twin.Summary, traj *core.Trajectory) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Mission %s\n", s.MissionID)
	if s.DroneID != "" {
		fmt.Fprintf(&b, "  drone:          %s\n", s.DroneID)
	}
	fmt.Fprintf(&b, "  window:         %s to %s\n", s.StartedAt.UTC().Format(time.RFC3339), s.StoppedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "  flight time:    %s\n", s.FlightDuration.Round(time.Millisecond))
	fmt.Fprintf(&b, "  updates:        %s\n", humanize.Comma(int64(s.Updates)))
	fmt.Fprintf(&b, "  replans:        %s\n", humanize.Comma(int64(s.Replans)))
	fmt.Fprintf(&b, "  mean score:     %s\n", humanize.FtoaWithDigits(s.MeanScore, 3))
	fmt.Fprintf(&b, "  peak score:     %s\n", humanize.FtoaWithDigits(s.MaxScore, 3))
	fmt.Fprintf(&b, "  mean stress:    %s\n", humanize.FtoaWithDigits(s.MeanStress, 3))

	b.WriteString("  tiers:\n")
	for _, tier := range model.RiskTiers {
		n := s.TierCounts[tier]
		pct := 0.0
		if s.Updates > 0 {
			pct = 100 * float64(n) / float64(s.Updates)
		}
		fmt.Fprintf(&b, "    %-9s %8s  (%s%%)\n", tier, humanize.Comma(int64(n)), humanize.FtoaWithDigits(pct, 1))
	}

	if s.FinalRisk != nil {
		fmt.Fprintf(&b, "  final risk:     %s (score %s)\n", s.FinalRisk.Tier, humanize.FtoaWithDigits(s.FinalRisk.Score, 3))
		fmt.Fprintf(&b, "  recommendation: %s\n", s.FinalRisk.Recommendation)
	}
	p := s.FinalPosition
	fmt.Fprintf(&b, "  final position: (%s, %s, %s) m\n",
		humanize.FtoaWithDigits(p.X, 1), humanize.FtoaWithDigits(p.Y, 1), humanize.FtoaWithDigits(p.Z, 1))

	if traj != nil {
		m := traj.Metrics()
		fmt.Fprintf(&b, "  trajectory:     %s, %d waypoints, %s, %s altitude change\n",
			traj.Strategy, m.WaypointCount,
			humanize.SIWithDigits(m.TotalDistance, 2, "m"),
			humanize.SIWithDigits(m.TotalAltitudeChange, 2, "m"))
	}

	if h := s.Health; h != nil {
		b.WriteString("  health:\n")
		writeHealth(&b, "motor", h.Motor, h.MotorComputed)
		writeHealth(&b, "battery", h.Battery, h.BatteryComputed)
		writeHealth(&b, "frame", h.Frame, h.FrameComputed)
		fmt.Fprintf(&b, "    %-9s %s%%\n", "overall", humanize.FtoaWithDigits(h.Overall, 1))
		if h.MotorComputed {
			fmt.Fprintf(&b, "    motor life remaining: %s h\n", humanize.FtoaWithDigits(h.MotorRemainingHours, 1))
		}
		if h.BatteryComputed {
			fmt.Fprintf(&b, "    battery cycles remaining: %s\n", humanize.Comma(int64(h.BatteryRemainingCycle)))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeHealth(b *strings.Builder, name string, v float64, computed bool) {
	if !computed {
		fmt.Fprintf(b, "    %-9s n/a\n", name)
		return
	}
	fmt.Fprintf(b, "    %-9s %s%%\n", name, humanize.FtoaWithDigits(v, 1))
}
