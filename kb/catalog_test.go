package kb

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/signalsfoundry/flight-twin/model"
)

func TestAddAndGetDrone(t *testing.T) {
	store := NewCatalog()
	if err := store.AddDrone(model.ReferenceQuad()); err != nil {
		t.Fatalf("AddDrone error: %v", err)
	}
	got, err := store.Drone("REFERENCE_QUAD")
	if err != nil {
		t.Fatalf("Drone error: %v", err)
	}
	if got.NumMotors() != 4 {
		t.Fatalf("Drone returned %d motors, want 4", got.NumMotors())
	}
}

func TestAddDroneDuplicateAndInvalid(t *testing.T) {
	store := NewCatalog()
	if err := store.AddDrone(model.ReferenceQuad()); err != nil {
		t.Fatalf("first AddDrone error: %v", err)
	}
	if err := store.AddDrone(model.ReferenceQuad()); err == nil {
		t.Fatalf("expected duplicate AddDrone to fail")
	}
	if err := store.AddDrone(model.DroneSpecification{ID: "empty"}); err == nil {
		t.Fatalf("expected invalid spec to be rejected")
	}
}

func TestUnknownDrone(t *testing.T) {
	store := NewCatalog()
	if _, err := store.Drone("missing"); !errors.Is(err, ErrDroneNotFound) {
		t.Fatalf("Drone(missing) error = %v, want ErrDroneNotFound", err)
	}
	if _, err := store.RecordFlight("missing", 1, 10); !errors.Is(err, ErrDroneNotFound) {
		t.Fatalf("RecordFlight(missing) error = %v", err)
	}
	if err := store.UpdateDrone(model.ReferenceQuad()); !errors.Is(err, ErrDroneNotFound) {
		t.Fatalf("UpdateDrone(missing) error = %v", err)
	}
}

func TestListDronesSorted(t *testing.T) {
	store := NewCatalog()
	for _, id := range []string{"c", "a", "b"} {
		d := model.ReferenceQuad()
		d.ID = id
		if err := store.AddDrone(d); err != nil {
			t.Fatalf("AddDrone(%s) error: %v", id, err)
		}
	}
	list := store.ListDrones()
	if len(list) != 3 || list[0].ID != "a" || list[2].ID != "c" {
		t.Fatalf("ListDrones = %v", list)
	}
}

func TestRecordFlightWeightsStressByHours(t *testing.T) {
	store := NewCatalog()
	if err := store.AddDrone(model.ReferenceQuad()); err != nil {
		t.Fatalf("AddDrone error: %v", err)
	}
	if _, err := store.RecordFlight("REFERENCE_QUAD", 1, 10); err != nil {
		t.Fatalf("RecordFlight error: %v", err)
	}
	u, err := store.RecordFlight("REFERENCE_QUAD", 3, 50)
	if err != nil {
		t.Fatalf("RecordFlight error: %v", err)
	}
	if u.Flights != 2 || u.Hours != 4 || math.Abs(u.AvgStress-40) > 1e-9 {
		t.Fatalf("usage = %+v, want 2 flights, 4h, avg 40", u)
	}
	if _, err := store.RecordFlight("REFERENCE_QUAD", -1, 0); err == nil {
		t.Fatalf("negative hours accepted")
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	store := NewCatalog()

	var mu sync.Mutex
	var got []EventType
	unsubscribe := store.Subscribe(func(e Event) {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
	})

	d := model.ReferenceQuad()
	if err := store.AddDrone(d); err != nil {
		t.Fatalf("AddDrone error: %v", err)
	}
	d.TotalWeightKg = 1.7
	if err := store.UpdateDrone(d); err != nil {
		t.Fatalf("UpdateDrone error: %v", err)
	}
	if _, err := store.RecordFlight(d.ID, 0.5, 20); err != nil {
		t.Fatalf("RecordFlight error: %v", err)
	}
	unsubscribe()
	if _, err := store.RecordFlight(d.ID, 0.5, 20); err != nil {
		t.Fatalf("RecordFlight error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []EventType{EventDroneAdded, EventDroneUpdated, EventUsageRecorded}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := NewCatalog()
	if err := store.AddDrone(model.ReferenceQuad()); err != nil {
		t.Fatalf("AddDrone error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = store.Drone("REFERENCE_QUAD")
			_ = store.ListDrones()
		}()
		go func() {
			defer wg.Done()
			_, _ = store.RecordFlight("REFERENCE_QUAD", float64(i)/10, 30)
		}()
	}
	wg.Wait()

	u, _ := store.Usage("REFERENCE_QUAD")
	if u.Flights != 10 {
		t.Fatalf("Flights = %d, want 10", u.Flights)
	}
}
