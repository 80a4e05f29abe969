// Package api exposes the twin engine over a JSON HTTP API.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/signalsfoundry/flight-twin/internal/logging"
	"github.com/signalsfoundry/flight-twin/internal/observability"
	"github.com/signalsfoundry/flight-twin/internal/twin"
	"github.com/signalsfoundry/flight-twin/kb"
	"github.com/signalsfoundry/flight-twin/model"
)

// RecordQueue accepts raw telemetry for asynchronous processing by the
// monitor.
type RecordQueue interface {
	Push(r model.TelemetryRecord) bool
}

// MissionStore reads persisted missions.
type MissionStore interface {
	Entries(ctx context.Context, missionID string, limit int) ([]twin.HistoryEntry, error)
	Summary(ctx context.Context, missionID string) (twin.Summary, error)
	Missions(ctx context.Context, since time.Time) ([]twin.Summary, error)
}

// Server serves the HTTP API.
type Server struct {
	engine    *twin.Engine
	catalog   *kb.Catalog
	records   RecordQueue
	store     MissionStore
	collector *observability.TwinCollector
	log       logging.Logger
}

// Option customises a Server.
type Option func(*Server)

// WithCatalog enables the drone endpoints and per-drone stress queries.
func WithCatalog(c *kb.Catalog) Option {
	return func(s *Server) { s.catalog = c }
}

// WithRecordQueue enables raw telemetry submission.
func WithRecordQueue(q RecordQueue) Option {
	return func(s *Server) { s.records = q }
}

// WithMissionStore enables the persisted mission endpoints.
func WithMissionStore(st MissionStore) Option {
	return func(s *Server) { s.store = st }
}

// WithCollector records per-route request metrics.
func WithCollector(c *observability.TwinCollector) Option {
	return func(s *Server) { s.collector = c }
}

// NewServer builds an API server over engine.
func NewServer(engine *twin.Engine, log logging.Logger, opts ...Option) *Server {
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{engine: engine, log: log}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Router returns the API routes without outer middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestContext)
	if s.collector != nil {
		r.Use(s.collector.HTTPMiddleware)
	}

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/initialize", s.initialize).Methods(http.MethodPost)
	v1.HandleFunc("/status", s.status).Methods(http.MethodGet)
	v1.HandleFunc("/history", s.history).Methods(http.MethodGet)
	v1.HandleFunc("/stress", s.stress).Methods(http.MethodPost)

	v1.HandleFunc("/missions", s.startMission).Methods(http.MethodPost)
	v1.HandleFunc("/missions", s.listMissions).Methods(http.MethodGet)
	v1.HandleFunc("/missions/telemetry", s.telemetry).Methods(http.MethodPost)
	v1.HandleFunc("/missions/replan", s.replan).Methods(http.MethodPost)
	v1.HandleFunc("/missions/stop", s.stopMission).Methods(http.MethodPost)
	v1.HandleFunc("/missions/{id}/summary", s.missionSummary).Methods(http.MethodGet)

	v1.HandleFunc("/drones", s.listDrones).Methods(http.MethodGet)
	v1.HandleFunc("/drones", s.addDrone).Methods(http.MethodPost)
	v1.HandleFunc("/drones/{id}", s.getDrone).Methods(http.MethodGet)
	v1.HandleFunc("/drones/{id}", s.updateDrone).Methods(http.MethodPut)
	return r
}

// Handler returns the router wrapped with panic recovery.
func (s *Server) Handler() http.Handler {
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.log}),
		handlers.PrintRecoveryStack(false),
	)(s.Router())
}

const requestIDHeader = "X-Request-ID"

// requestContext attaches a request id (reusing the caller's) and a request
// scoped logger.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get(requestIDHeader); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, s.log.With(
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		))
		ctx = logging.ContextWithLogger(ctx, reqLog)
		w.Header().Set(requestIDHeader, logging.RequestIDFromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type recoveryLogger struct{ log logging.Logger }

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error(context.Background(), "http handler panic", logging.Any("panic", v))
}
