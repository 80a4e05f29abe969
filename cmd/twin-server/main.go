package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/flight-twin/core"
	"github.com/signalsfoundry/flight-twin/internal/api"
	"github.com/signalsfoundry/flight-twin/internal/config"
	"github.com/signalsfoundry/flight-twin/internal/events"
	"github.com/signalsfoundry/flight-twin/internal/history"
	"github.com/signalsfoundry/flight-twin/internal/ingest"
	"github.com/signalsfoundry/flight-twin/internal/logging"
	"github.com/signalsfoundry/flight-twin/internal/observability"
	"github.com/signalsfoundry/flight-twin/internal/simulate"
	"github.com/signalsfoundry/flight-twin/internal/twin"
	"github.com/signalsfoundry/flight-twin/risk"
)

// healthService is the gRPC health service name reported alongside the
// server-wide status.
const healthService = "flighttwin.Twin"

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (optional)")
	accessLog := flag.Bool("access-log", false, "Write Apache combined access logs to stdout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log := logging.New(cfg.LoggingConfig())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpLis, err := net.Listen("tcp", cfg.Server.HTTPAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for HTTP", logging.String("addr", cfg.Server.HTTPAddr), logging.Err(err))
		os.Exit(1)
	}
	var grpcLis net.Listener
	if cfg.Server.GRPCAddr != "" {
		grpcLis, err = net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Server.GRPCAddr), logging.Err(err))
			os.Exit(1)
		}
	}

	var access io.Writer
	if *accessLog {
		access = os.Stdout
	}
	if err := run(ctx, cfg, log, httpLis, grpcLis, access); err != nil {
		log.Error(ctx, "twin server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run wires the twin and serves until ctx is cancelled. grpcLis may be nil
// to skip the health server; access, when non-nil, receives access logs.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, httpLis, grpcLis net.Listener, access io.Writer) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := observability.NewTwinCollector(reg)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}

	catalog, err := cfg.BuildCatalog()
	if err != nil {
		return fmt.Errorf("drone catalog: %w", err)
	}
	drone, err := cfg.SelectedDrone(catalog)
	if err != nil {
		return fmt.Errorf("select drone: %w", err)
	}
	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing, log,
		observability.WithResourceAttributes(attribute.String("twin.drone_id", drone.ID)))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownTracing(shutdownTracing, 5*time.Second, log)

	planner, err := core.NewPlanner(cfg.Planner)
	if err != nil {
		return fmt.Errorf("planner: %w", err)
	}
	monitorCfg, err := cfg.MonitorConfig()
	if err != nil {
		return err
	}

	healthSrv := health.NewServer()
	opts := []twin.Option{
		twin.WithHistoryLimit(cfg.Mission.HistoryLimit),
		twin.WithMetricsRecorder(healthRecorder{MetricsRecorder: collector, health: healthSrv}),
		twin.WithDrone(drone),
		twin.WithCatalog(catalog),
	}

	var store *history.Store
	if cfg.History.DatabasePath != "" {
		store, err = history.Open(cfg.History.DatabasePath, log)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, twin.WithHistorySink(store))
	}

	engine := twin.NewEngine(risk.NewScorer(cfg.Risk.Config), planner, log, opts...)
	defer engine.Close()
	if n := cfg.Risk.TrainingSamples; n > 0 {
		if err := engine.Initialize(ctx, simulate.NewGenerator(cfg.Risk.Seed).Normal(n)); err != nil {
			return err
		}
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(events.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, log)
		if err != nil {
			return err
		}
		publisher = kp
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn(context.Background(), "closing event publisher", logging.Err(err))
		}
	}()

	monitor, err := twin.NewMonitor(engine, monitorCfg, publisher, log)
	if err != nil {
		return err
	}
	queue := ingest.NewQueue(cfg.MQTT.QueueSize, collector)

	var subscriber *ingest.Subscriber
	if cfg.MQTT.Broker != "" {
		subscriber, err = ingest.NewSubscriber(ingest.SubscriberConfig{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			QoS:      cfg.MQTT.QoS,
		}, queue, log)
		if err != nil {
			return err
		}
		if err := subscriber.Start(ctx); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Runs until the queue is closed and drained.
		if err := monitor.Run(context.WithoutCancel(ctx), queue.C()); err != nil {
			log.Warn(ctx, "telemetry monitor stopped", logging.Err(err))
		}
	}()

	apiOpts := []api.Option{
		api.WithCatalog(catalog),
		api.WithRecordQueue(queue),
		api.WithCollector(collector),
	}
	if store != nil {
		apiOpts = append(apiOpts, api.WithMissionStore(store))
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	mux.Handle("/", api.NewServer(engine, log, apiOpts...).Handler())
	var handler http.Handler = mux
	if access != nil {
		handler = handlers.CombinedLoggingHandler(access, handler)
	}
	httpSrv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info(ctx, "serving twin HTTP API", logging.String("addr", httpLis.Addr().String()))
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcSrv *grpc.Server
	if grpcLis != nil {
		grpcSrv = grpc.NewServer(
			grpc.StatsHandler(otelgrpc.NewServerHandler()),
			grpc.ChainUnaryInterceptor(
				api.RequestIDUnaryServerInterceptor(log),
				collector.UnaryServerInterceptor(),
			),
		)
		healthpb.RegisterHealthServer(grpcSrv, healthSrv)
		go func() {
			log.Info(ctx, "serving gRPC health", logging.String("addr", grpcLis.Addr().String()))
			if err := grpcSrv.Serve(grpcLis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	log.Info(context.Background(), "shutting down twin server")
	healthSrv.Shutdown()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "http shutdown", logging.Err(err))
	}
	if subscriber != nil {
		subscriber.Stop()
	} else {
		queue.Close()
	}
	wg.Wait()

	if engine.Phase() == twin.PhaseMissionActive {
		if _, err := engine.StopMission(shutdownCtx); err != nil {
			log.Warn(shutdownCtx, "stopping active mission", logging.Err(err))
		}
	}
	return runErr
}

// healthRecorder forwards engine metrics and mirrors the engine phase into
// the gRPC health service: SERVING once a model is trained.
type healthRecorder struct {
	twin.MetricsRecorder
	health *health.Server
}

func (h healthRecorder) SetPhase(phase string) {
	h.MetricsRecorder.SetPhase(phase)
	status := healthpb.HealthCheckResponse_SERVING
	if phase == twin.PhaseUninitialized.String() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(healthService, status)
}
