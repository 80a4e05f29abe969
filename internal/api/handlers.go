package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/signalsfoundry/flight-twin/core"
	"github.com/signalsfoundry/flight-twin/internal/twin"
	"github.com/signalsfoundry/flight-twin/kb"
	"github.com/signalsfoundry/flight-twin/model"
)

type initializeRequest struct {
	Samples [][]float64 `json:"samples"`
}

type initializeResponse struct {
	Samples  int      `json:"samples"`
	Features []string `json:"features"`
	Phase    string   `json:"phase"`
}

type startMissionRequest struct {
	Start       core.Vec3 `json:"start"`
	Destination core.Vec3 `json:"destination"`
}

// telemetryRequest carries either a scorer sample with its position, or a
// raw record for the monitor.
type telemetryRequest struct {
	Timestamp time.Time              `json:"timestamp"`
	Sample    []float64              `json:"sample"`
	Position  core.Vec3              `json:"position"`
	Record    *model.TelemetryRecord `json:"record"`
}

type replanRequest struct {
	Position    *core.Vec3 `json:"position"`
	Destination *core.Vec3 `json:"destination"`
}

type stressRequest struct {
	DroneID        string   `json:"drone_id"`
	GForce         float64  `json:"g_force"`
	WindSpeed      float64  `json:"wind_speed"`
	AirTemperature float64  `json:"air_temperature"`
	Altitude       float64  `json:"altitude"`
	FlightHours    *float64 `json:"flight_hours"`
}

type stressResponse struct {
	DroneID string                 `json:"drone_id"`
	Stress  model.StressAssessment `json:"stress"`
	Health  *model.ComponentHealth `json:"health,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"phase": s.engine.Phase().String()})
}

func (s *Server) initialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.Initialize(r.Context(), req.Samples); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, initializeResponse{
		Samples:  len(req.Samples),
		Features: s.engine.Scorer().FeatureNames(),
		Phase:    s.engine.Phase().String(),
	})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) startMission(w http.ResponseWriter, r *http.Request) {
	var req startMissionRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := s.engine.StartMission(r.Context(), req.Start, req.Destination)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) telemetry(w http.ResponseWriter, r *http.Request) {
	var req telemetryRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Record != nil {
		if len(req.Sample) > 0 {
			s.writeError(w, r, fmt.Errorf("%w: send either sample or record, not both", ErrBadRequest))
			return
		}
		if s.records == nil {
			s.writeError(w, r, fmt.Errorf("raw telemetry: %w", ErrUnavailable))
			return
		}
		if !s.records.Push(*req.Record) {
			s.writeError(w, r, fmt.Errorf("raw telemetry: %w: queue closed", ErrUnavailable))
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
		return
	}

	upd, err := s.engine.Observe(r.Context(), twin.Observation{
		Timestamp: req.Timestamp,
		Sample:    req.Sample,
		Position:  req.Position,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, upd)
}

func (s *Server) replan(w http.ResponseWriter, r *http.Request) {
	var req replanRequest
	if err := decode(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	st := s.engine.Status()
	pos, dest := st.Position, st.Destination
	if req.Position != nil {
		pos = *req.Position
	}
	if req.Destination != nil {
		dest = *req.Destination
	}
	rp, err := s.engine.ReplanTrajectory(r.Context(), pos, dest)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rp)
}

func (s *Server) stopMission(w http.ResponseWriter, r *http.Request) {
	sum, err := s.engine.StopMission(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// history returns the engine's retained history, or with mission_id the
// persisted entries of that mission. limit keeps the most recent entries.
func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if id := r.URL.Query().Get("mission_id"); id != "" {
		if cur, ok := s.engine.Mission(); !ok || cur.ID != id {
			if s.store == nil {
				s.writeError(w, r, fmt.Errorf("stored history: %w", ErrUnavailable))
				return
			}
			entries, err := s.store.Entries(r.Context(), id, limit)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, nonNil(entries))
			return
		}
	}
	entries := s.engine.History()
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

func (s *Server) listMissions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, r, fmt.Errorf("mission store: %w", ErrUnavailable))
		return
	}
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: since: %v", ErrBadRequest, err))
			return
		}
		since = t
	}
	missions, err := s.store.Missions(r.Context(), since)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if missions == nil {
		missions = []twin.Summary{}
	}
	writeJSON(w, http.StatusOK, missions)
}

func (s *Server) missionSummary(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, r, fmt.Errorf("mission store: %w", ErrUnavailable))
		return
	}
	sum, err := s.store.Summary(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// stress evaluates instantaneous stress for a drone: the named catalog
// drone, else the engine's drone, else the reference quad. With
// flight_hours the response includes component health at that usage.
func (s *Server) stress(w http.ResponseWriter, r *http.Request) {
	var req stressRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	spec, err := s.droneFor(req.DroneID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.FlightHours != nil && *req.FlightHours < 0 {
		s.writeError(w, r, &core.ConfigError{Field: "flight hours", Expected: ">= 0", Actual: strconv.FormatFloat(*req.FlightHours, 'g', -1, 64)})
		return
	}
	sm := core.NewStressModel(spec)
	resp := stressResponse{
		DroneID: spec.ID,
		Stress:  sm.Stress(req.GForce, req.WindSpeed, req.AirTemperature, req.Altitude),
	}
	if req.FlightHours != nil {
		h := sm.Health(*req.FlightHours, resp.Stress.Overall)
		resp.Health = &h
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) droneFor(id string) (model.DroneSpecification, error) {
	if id != "" {
		if s.catalog == nil {
			return model.DroneSpecification{}, fmt.Errorf("drone catalog: %w", ErrUnavailable)
		}
		return s.catalog.Drone(id)
	}
	if d, ok := s.engine.Drone(); ok {
		return d, nil
	}
	return model.ReferenceQuad(), nil
}

func (s *Server) listDrones(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeJSON(w, http.StatusOK, []model.DroneSpecification{model.ReferenceQuad()})
		return
	}
	writeJSON(w, http.StatusOK, s.catalog.ListDrones())
}

func (s *Server) getDrone(w http.ResponseWriter, r *http.Request) {
	spec, err := s.droneFor(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

func (s *Server) addDrone(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.writeError(w, r, fmt.Errorf("drone catalog: %w", ErrUnavailable))
		return
	}
	var spec model.DroneSpecification
	if err := decode(r, &spec, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.catalog.AddDrone(spec); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	stored, err := s.catalog.Drone(spec.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) updateDrone(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.writeError(w, r, fmt.Errorf("drone catalog: %w", ErrUnavailable))
		return
	}
	id := mux.Vars(r)["id"]
	var spec model.DroneSpecification
	if err := decode(r, &spec, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if spec.ID == "" {
		spec.ID = id
	}
	if spec.ID != id {
		s.writeError(w, r, fmt.Errorf("%w: body id %q does not match path id %q", ErrBadRequest, spec.ID, id))
		return
	}
	if err := s.catalog.UpdateDrone(spec); err != nil {
		if !errors.Is(err, kb.ErrDroneNotFound) {
			err = fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		s.writeError(w, r, err)
		return
	}
	stored, err := s.catalog.Drone(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer, got %q", ErrBadRequest, key, v)
	}
	return n, nil
}

func nonNil(entries []twin.HistoryEntry) []twin.HistoryEntry {
	if entries == nil {
		return []twin.HistoryEntry{}
	}
	return entries
}
