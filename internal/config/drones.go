package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/flight-twin/kb"
	"github.com/signalsfoundry/flight-twin/model"
)

type droneFile struct {
	Drones []model.DroneSpecification `yaml:"drones"`
}

// LoadDrones parses a drone catalog file of the form
//
//	drones:
//	  - id: survey-quad
//	    total_weight_kg: 1.5
//	    ...
func LoadDrones(path string) ([]model.DroneSpecification, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read drone catalog %s: %w", path, err)
	}
	var f droneFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse drone catalog %s: %w", path, err)
	}
	return f.Drones, nil
}

// BuildCatalog returns a catalog holding the reference quad plus every drone
// in the configured catalog file.
func (c *Config) BuildCatalog() (*kb.Catalog, error) {
	catalog := kb.NewCatalog()
	if err := catalog.AddDrone(model.ReferenceQuad()); err != nil {
		return nil, err
	}
	if c.Drones.CatalogFile == "" {
		return catalog, nil
	}
	drones, err := LoadDrones(c.Drones.CatalogFile)
	if err != nil {
		return nil, err
	}
	for _, d := range drones {
		if err := catalog.AddDrone(d); err != nil {
			return nil, fmt.Errorf("drone %q: %w", d.ID, err)
		}
	}
	return catalog, nil
}

// SelectedDrone returns the airframe named by drones.drone_id, or the
// reference quad when unset.
func (c *Config) SelectedDrone(catalog *kb.Catalog) (model.DroneSpecification, error) {
	id := c.Drones.DroneID
	if id == "" {
		id = model.ReferenceQuad().ID
	}
	return catalog.Drone(id)
}
