// Package kb is the in-memory catalog of airframes known to the twin and
// the flight usage accumulated against each of them.
package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/flight-twin/model"
)

// ErrDroneNotFound is returned for unknown drone IDs.
var ErrDroneNotFound = errors.New("drone not found")

// EventType indicates what kind of change happened in the catalog.
type EventType int

const (
	EventDroneAdded EventType = iota
	EventDroneUpdated
	EventUsageRecorded
)

// Event is emitted to subscribers after a change has been applied.
type Event struct {
	Type  EventType
	Drone model.DroneSpecification
	Usage FlightUsage
}

// FlightUsage is the cumulative flight history of one airframe.
type FlightUsage struct {
	Flights int     `json:"flights"`
	Hours   float64 `json:"hours"`
	// AvgStress is the hours-weighted mean overall stress.
	AvgStress float64 `json:"avg_stress"`
}

// Catalog is a thread-safe store of drone specifications.
type Catalog struct {
	mu sync.RWMutex

	drones map[string]model.DroneSpecification
	usage  map[string]FlightUsage

	subs map[int]func(Event)
	next int
}

// NewCatalog constructs an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		drones: make(map[string]model.DroneSpecification),
		usage:  make(map[string]FlightUsage),
		subs:   make(map[int]func(Event)),
	}
}

// AddDrone validates and stores a new specification. It returns an error if
// the ID already exists.
func (c *Catalog) AddDrone(d model.DroneSpecification) error {
	d.ApplyDefaults()
	if err := d.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if _, exists := c.drones[d.ID]; exists {
		c.mu.Unlock()
		return fmt.Errorf("drone with ID %q already exists", d.ID)
	}
	c.drones[d.ID] = d
	subs := c.snapshotSubs()
	c.mu.Unlock()

	notify(subs, Event{Type: EventDroneAdded, Drone: d})
	return nil
}

// UpdateDrone replaces an existing specification.
func (c *Catalog) UpdateDrone(d model.DroneSpecification) error {
	d.ApplyDefaults()
	if err := d.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if _, ok := c.drones[d.ID]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDroneNotFound, d.ID)
	}
	c.drones[d.ID] = d
	subs := c.snapshotSubs()
	c.mu.Unlock()

	notify(subs, Event{Type: EventDroneUpdated, Drone: d})
	return nil
}

// Drone returns a copy of the specification with the given ID.
func (c *Catalog) Drone(id string) (model.DroneSpecification, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.drones[id]
	if !ok {
		return model.DroneSpecification{}, fmt.Errorf("%w: %q", ErrDroneNotFound, id)
	}
	return d, nil
}

// ListDrones returns all specifications ordered by ID.
func (c *Catalog) ListDrones() []model.DroneSpecification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := make([]model.DroneSpecification, 0, len(c.drones))
	for _, d := range c.drones {
		res = append(res, d)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// RecordFlight adds a completed flight to a drone's usage and returns the
// new totals.
func (c *Catalog) RecordFlight(id string, hours, avgStress float64) (FlightUsage, error) {
	if hours < 0 {
		return FlightUsage{}, fmt.Errorf("flight hours must be non-negative, got %v", hours)
	}
	c.mu.Lock()
	d, ok := c.drones[id]
	if !ok {
		c.mu.Unlock()
		return FlightUsage{}, fmt.Errorf("%w: %q", ErrDroneNotFound, id)
	}
	u := c.usage[id]
	total := u.Hours + hours
	if total > 0 {
		u.AvgStress = (u.AvgStress*u.Hours + avgStress*hours) / total
	}
	u.Hours = total
	u.Flights++
	c.usage[id] = u
	subs := c.snapshotSubs()
	c.mu.Unlock()

	notify(subs, Event{Type: EventUsageRecorded, Drone: d, Usage: u})
	return u, nil
}

// Usage returns the accumulated usage of a drone.
func (c *Catalog) Usage(id string) (FlightUsage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.drones[id]; !ok {
		return FlightUsage{}, fmt.Errorf("%w: %q", ErrDroneNotFound, id)
	}
	return c.usage[id], nil
}

// Subscribe registers a callback for catalog events. It returns an
// unsubscribe function. Callbacks run outside the catalog lock.
func (c *Catalog) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Catalog) snapshotSubs() []func(Event) {
	out := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(Event), e Event) {
	for _, sub := range subs {
		sub(e)
	}
}
