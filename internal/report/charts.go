package report

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/signalsfoundry/flight-twin/core"
	"github.com/signalsfoundry/flight-twin/internal/twin"
	"github.com/signalsfoundry/flight-twin/model"
	"github.com/signalsfoundry/flight-twin/risk"
)

var (
	scoreColor    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	flownColor    = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	plannedColor  = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	mediumColor   = color.RGBA{R: 230, G: 200, B: 0, A: 255}
	highColor     = color.RGBA{R: 230, G: 120, B: 0, A: 255}
	criticalColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// Files lists the artefacts written by Write.
type Files struct {
	Summary  string `json:"summary"`
	Risk     string `json:"risk"`
	Altitude string `json:"altitude"`
	Path     string `json:"path"`
}

// Write renders the summary text and charts for a mission into dir, which
// is created if needed.
func Write(dir string, s twin.Summary, entries []twin.HistoryEntry, traj *core.Trajectory) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("create report dir: %w", err)
	}
	files := Files{
		Summary:  filepath.Join(dir, "summary.txt"),
		Risk:     filepath.Join(dir, "risk.png"),
		Altitude: filepath.Join(dir, "altitude.png"),
		Path:     filepath.Join(dir, "path.png"),
	}

	f, err := os.Create(files.Summary)
	if err != nil {
		return Files{}, fmt.Errorf("create summary: %w", err)
	}
	if err := WriteSummary(f, s, traj); err != nil {
		f.Close()
		return Files{}, fmt.Errorf("write summary: %w", err)
	}
	if err := f.Close(); err != nil {
		return Files{}, err
	}

	if len(entries) == 0 {
		return Files{Summary: files.Summary}, nil
	}
	if err := RiskChart(entries, files.Risk); err != nil {
		return Files{}, err
	}
	if err := AltitudeChart(entries, traj, files.Altitude); err != nil {
		return Files{}, err
	}
	if err := PathChart(entries, traj, files.Path); err != nil {
		return Files{}, err
	}
	return files, nil
}

// RiskChart plots the anomaly score per update with the tier boundaries.
func RiskChart(entries []twin.HistoryEntry, path string) error {
	if len(entries) == 0 {
		return errors.New("risk chart: no history")
	}
	p := plot.New()
	p.Title.Text = "Anomaly score"
	p.X.Label.Text = "Update"
	p.Y.Label.Text = "Score"
	p.Y.Min, p.Y.Max = 0, 1

	pts := make(plotter.XYs, len(entries))
	for i, e := range entries {
		pts[i] = plotter.XY{X: float64(e.Seq), Y: e.Risk.Score}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = scoreColor
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("score", line)

	for _, b := range []struct {
		name  string
		value float64
		c     color.Color
	}{
		{"MEDIUM", risk.MediumThreshold, mediumColor},
		{"HIGH", risk.HighThreshold, highColor},
		{"CRITICAL", risk.CriticalThreshold, criticalColor},
	} {
		v := b.value
		fn := plotter.NewFunction(func(float64) float64 { return v })
		fn.Color = b.c
		fn.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(fn)
		p.Legend.Add(b.name, fn)
	}
	p.Legend.Top = true
	p.Legend.Left = true

	return save(p, path)
}

// AltitudeChart plots flown altitude per update and, when traj is given, the
// planned altitude per waypoint on a second series.
func AltitudeChart(entries []twin.HistoryEntry, traj *core.Trajectory, path string) error {
	if len(entries) == 0 {
		return errors.New("altitude chart: no history")
	}
	p := plot.New()
	p.Title.Text = "Altitude"
	p.X.Label.Text = "Update / waypoint"
	p.Y.Label.Text = "Altitude (m)"

	flown := make(plotter.XYs, len(entries))
	for i, e := range entries {
		flown[i] = plotter.XY{X: float64(e.Seq), Y: e.Position.Z}
	}
	line, err := plotter.NewLine(flown)
	if err != nil {
		return err
	}
	line.Color = flownColor
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("flown", line)

	if traj != nil && len(traj.Waypoints) > 0 {
		// Waypoints continue from the last flown update.
		offset := float64(entries[len(entries)-1].Seq)
		planned := make(plotter.XYs, len(traj.Waypoints))
		for i, wp := range traj.Waypoints {
			planned[i] = plotter.XY{X: offset + float64(i), Y: wp.Z}
		}
		pl, err := plotter.NewLine(planned)
		if err != nil {
			return err
		}
		pl.Color = plannedColor
		pl.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(pl)
		p.Legend.Add("planned ("+traj.Strategy+")", pl)
	}
	p.Legend.Top = true

	return save(p, path)
}

// PathChart plots the ground track: flown positions coloured by tier and the
// planned trajectory.
func PathChart(entries []twin.HistoryEntry, traj *core.Trajectory, path string) error {
	if len(entries) == 0 {
		return errors.New("path chart: no history")
	}
	p := plot.New()
	p.Title.Text = "Ground track"
	p.X.Label.Text = "East (m)"
	p.Y.Label.Text = "North (m)"

	flown := make(plotter.XYs, len(entries))
	for i, e := range entries {
		flown[i] = plotter.XY{X: e.Position.X, Y: e.Position.Y}
	}
	sc, err := plotter.NewScatter(flown)
	if err != nil {
		return err
	}
	sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		g := sc.GlyphStyle
		g.Color = tierColor(entries[i])
		return g
	}
	p.Add(sc)
	p.Legend.Add("flown", sc)

	if traj != nil && len(traj.Waypoints) > 0 {
		planned := make(plotter.XYs, len(traj.Waypoints))
		for i, wp := range traj.Waypoints {
			planned[i] = plotter.XY{X: wp.X, Y: wp.Y}
		}
		pl, err := plotter.NewLine(planned)
		if err != nil {
			return err
		}
		pl.Color = plannedColor
		pl.Width = vg.Points(1)
		p.Add(pl)
		p.Legend.Add("planned", pl)
	}
	p.Add(plotter.NewGrid())

	return save(p, path)
}

func tierColor(e twin.HistoryEntry) color.Color {
	switch e.Risk.Tier {
	case model.RiskCritical:
		return criticalColor
	case model.RiskHigh:
		return highColor
	case model.RiskMedium:
		return mediumColor
	default:
		return flownColor
	}
}

func save(p *plot.Plot, path string) error {
	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", filepath.Base(path), err)
	}
	return nil
}
