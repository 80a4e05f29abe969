package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/flight-twin/core"
	"github.com/signalsfoundry/flight-twin/internal/config"
	"github.com/signalsfoundry/flight-twin/internal/events"
	"github.com/signalsfoundry/flight-twin/internal/logging"
	"github.com/signalsfoundry/flight-twin/internal/report"
	"github.com/signalsfoundry/flight-twin/internal/simulate"
	"github.com/signalsfoundry/flight-twin/internal/twin"
	"github.com/signalsfoundry/flight-twin/risk"
	"github.com/signalsfoundry/flight-twin/timectrl"
)

// options are the flight parameters not covered by the service config.
type options struct {
	Seed         int64
	Updates      int
	AnomalyStart int
	Cruise       float64
	RealTime     bool
	OutputDir    string
}

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (optional)")
	seed := flag.Int64("seed", 42, "Seed for synthetic training data and telemetry")
	updates := flag.Int("updates", 200, "Number of telemetry records to fly")
	anomalyStart := flag.Int("anomaly-start", 120, "Record index at which the drone starts degrading")
	cruise := flag.Float64("cruise", 75, "Cruise altitude in metres")
	realTime := flag.Bool("real-time", false, "Pace the flight at the telemetry rate instead of as fast as possible")
	outDir := flag.String("out", "", "Report directory (defaults to report.output_dir)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	opts := options{
		Seed:         *seed,
		Updates:      *updates,
		AnomalyStart: *anomalyStart,
		Cruise:       *cruise,
		RealTime:     *realTime,
		OutputDir:    *outDir,
	}
	if opts.OutputDir == "" {
		opts.OutputDir = cfg.Report.OutputDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := logging.New(cfg.LoggingConfig())
	if err := run(ctx, cfg, opts, log, os.Stdout); err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
}

// run trains the twin, flies a scripted degrading mission through the
// monitor on simulated time, and writes the report.
func run(ctx context.Context, cfg *config.Config, opts options, log logging.Logger, out io.Writer) error {
	if opts.Updates < 2 {
		return fmt.Errorf("need at least 2 updates, got %d", opts.Updates)
	}
	if opts.AnomalyStart < 0 || opts.AnomalyStart > opts.Updates {
		return fmt.Errorf("anomaly start %d outside [0, %d]", opts.AnomalyStart, opts.Updates)
	}

	catalog, err := cfg.BuildCatalog()
	if err != nil {
		return err
	}
	drone, err := cfg.SelectedDrone(catalog)
	if err != nil {
		return err
	}
	planner, err := core.NewPlanner(cfg.Planner)
	if err != nil {
		return err
	}
	monitorCfg, err := cfg.MonitorConfig()
	if err != nil {
		return err
	}

	telemetry := simulate.DefaultTelemetryConfig()
	mode := timectrl.Accelerated
	if opts.RealTime {
		mode = timectrl.RealTime
	}
	clock := timectrl.NewTimeController(telemetry.Start, telemetry.Interval, mode)

	engine := twin.NewEngine(risk.NewScorer(cfg.Risk.Config), planner, log,
		twin.WithHistoryLimit(cfg.Mission.HistoryLimit),
		twin.WithClock(clock),
		twin.WithDrone(drone),
		twin.WithCatalog(catalog),
	)
	defer engine.Close()

	gen := simulate.NewGenerator(opts.Seed)
	training := cfg.Risk.TrainingSamples
	if training == 0 {
		training = 500
	}
	if err := engine.Initialize(ctx, gen.Normal(training)); err != nil {
		return err
	}

	samples, _ := gen.FlightSequence(opts.Updates, opts.AnomalyStart)
	path := simulate.FlightPath(opts.Updates, opts.Cruise)
	records := gen.Telemetry(telemetry, samples, path)

	recorder := &events.Recorder{}
	monitor, err := twin.NewMonitor(engine, monitorCfg, recorder, log)
	if err != nil {
		return err
	}
	info, err := engine.StartMission(ctx, path[0], path[len(path)-1])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Mission %s: %s, %d records, degrading from #%d\n", info.ID, drone.ID, opts.Updates, opts.AnomalyStart)

	// Record i is handled on the tick that brings the clock to its timestamp.
	next := 1
	var flightErr error
	clock.AddListener(func(now time.Time) {
		if next >= len(records) || flightErr != nil {
			return
		}
		res, err := monitor.Handle(ctx, records[next])
		next++
		if err != nil {
			if !errors.Is(err, core.ErrDataQuality) {
				flightErr = err
			}
			return
		}
		if res.Replan != nil {
			fmt.Fprintf(out, "[%s] #%d %s score=%.2f: replanned (%s)\n",
				now.Format("15:04:05.0"), res.Update.Seq, res.Update.Risk.Tier, res.Update.Risk.Score, res.Replan.Strategy)
		}
	})
	if _, err := monitor.Handle(ctx, records[0]); err != nil {
		return err
	}
	if err := clock.Run(ctx, time.Duration(len(records)-1)*telemetry.Interval); err != nil {
		return err
	}
	if flightErr != nil {
		return flightErr
	}

	summary, err := engine.StopMission(ctx)
	if err != nil {
		return err
	}
	st := engine.Status()
	files, err := report.Write(opts.OutputDir, *summary, engine.History(), st.Trajectory)
	if err != nil {
		return err
	}

	if err := report.WriteSummary(out, *summary, st.Trajectory); err != nil {
		return err
	}
	fmt.Fprintf(out, "Risk events published: %d\n", len(recorder.Events()))
	fmt.Fprintf(out, "Report written to %s\n", files.Summary)
	return nil
}
