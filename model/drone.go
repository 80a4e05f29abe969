package model

import (
	"errors"
	"fmt"
)

// Gravity is standard gravitational acceleration in m/s^2.
const Gravity = 9.81

// FrameType describes the rotor layout.
type FrameType string

const (
	FrameQuadX      FrameType = "quad_x"
	FrameQuadPlus   FrameType = "quad_plus"
	FrameHexX       FrameType = "hex_x"
	FrameOctoX      FrameType = "octo_x"
	FrameFixedWing  FrameType = "fixed_wing"
	FrameVTOLHybrid FrameType = "vtol_hybrid"
)

// Material identifies a structural material.
type Material string

const (
	MaterialCarbonFiber Material = "carbon_fiber"
	MaterialAluminum    Material = "aluminum"
	MaterialPlastic     Material = "plastic"
	MaterialTitanium    Material = "titanium"
	MaterialComposite   Material = "composite"
)

// MotorSpec describes a single motor.
type MotorSpec struct {
	ID            string  `yaml:"id" json:"id"`
	MaxThrustN    float64 `yaml:"max_thrust_n" json:"max_thrust_n"`
	MaxRPM        int     `yaml:"max_rpm" json:"max_rpm"`
	WeightKg      float64 `yaml:"weight_kg" json:"weight_kg"`
	LifetimeHours float64 `yaml:"lifetime_hours" json:"lifetime_hours"`
	CriticalTempC float64 `yaml:"critical_temp_c" json:"critical_temp_c"`
}

// ArmSpec describes one structural arm carrying a motor.
type ArmSpec struct {
	LengthM             float64  `yaml:"length_m" json:"length_m"`
	CrossSectionAreaM2  float64  `yaml:"cross_section_area_m2" json:"cross_section_area_m2"`
	Material            Material `yaml:"material" json:"material"`
	ThicknessMM         float64  `yaml:"thickness_mm" json:"thickness_mm"`
	MaxBendingStressMPa float64  `yaml:"max_bending_stress_mpa" json:"max_bending_stress_mpa"`
	FatigueLimitMPa     float64  `yaml:"fatigue_limit_mpa" json:"fatigue_limit_mpa"`
	MotorID             string   `yaml:"motor_id" json:"motor_id"`
}

// BatterySpec describes the flight pack.
type BatterySpec struct {
	CapacityMAh       float64 `yaml:"capacity_mah" json:"capacity_mah"`
	NominalVoltage    float64 `yaml:"nominal_voltage" json:"nominal_voltage"`
	MaxVoltage        float64 `yaml:"max_voltage" json:"max_voltage"`
	MinVoltage        float64 `yaml:"min_voltage" json:"min_voltage"`
	Chemistry         string  `yaml:"chemistry" json:"chemistry"`
	Cells             int     `yaml:"cells" json:"cells"`
	WeightKg          float64 `yaml:"weight_kg" json:"weight_kg"`
	MaxDischargeC     float64 `yaml:"max_discharge_c" json:"max_discharge_c"`
	MaxChargeC        float64 `yaml:"max_charge_c" json:"max_charge_c"`
	ExpectedCycleLife int     `yaml:"expected_cycle_life" json:"expected_cycle_life"`
}

// DroneSpecification is the physical description of an airframe, used by the
// stress and health model.
type DroneSpecification struct {
	ID            string    `yaml:"id" json:"id"`
	Model         string    `yaml:"model" json:"model"`
	FrameType     FrameType `yaml:"frame_type" json:"frame_type"`
	FrameMaterial Material  `yaml:"frame_material" json:"frame_material"`
	TotalWeightKg float64   `yaml:"total_weight_kg" json:"total_weight_kg"`
	WheelbaseMM   float64   `yaml:"wheelbase_mm" json:"wheelbase_mm"`

	Motors  []MotorSpec `yaml:"motors" json:"motors"`
	Arms    []ArmSpec   `yaml:"arms" json:"arms"`
	Battery BatterySpec `yaml:"battery" json:"battery"`

	DragCoefficient float64 `yaml:"drag_coefficient" json:"drag_coefficient"`
	FrontalAreaM2   float64 `yaml:"frontal_area_m2" json:"frontal_area_m2"`
	MaxSpeedMS      float64 `yaml:"max_speed_ms" json:"max_speed_ms"`
	MaxClimbRateMS  float64 `yaml:"max_climb_rate_ms" json:"max_climb_rate_ms"`
	MaxBankAngleDeg float64 `yaml:"max_bank_angle_deg" json:"max_bank_angle_deg"`
	MaxYawRateDegS  float64 `yaml:"max_yaw_rate_deg_s" json:"max_yaw_rate_deg_s"`
	MaxWindSpeedMS  float64 `yaml:"max_wind_speed_ms" json:"max_wind_speed_ms"`
}

// ApplyDefaults fills unset aerodynamic and envelope values.
func (d *DroneSpecification) ApplyDefaults() {
	if d.DragCoefficient == 0 {
		d.DragCoefficient = 0.6
	}
	if d.FrontalAreaM2 == 0 {
		d.FrontalAreaM2 = 0.1
	}
	if d.MaxSpeedMS == 0 {
		d.MaxSpeedMS = 15
	}
	if d.MaxClimbRateMS == 0 {
		d.MaxClimbRateMS = 5
	}
	if d.MaxBankAngleDeg == 0 {
		d.MaxBankAngleDeg = 45
	}
	if d.MaxYawRateDegS == 0 {
		d.MaxYawRateDegS = 180
	}
	if d.MaxWindSpeedMS == 0 {
		d.MaxWindSpeedMS = 10
	}
}

// Validate reports the first structural problem with the specification.
func (d DroneSpecification) Validate() error {
	switch {
	case d.ID == "":
		return errors.New("drone id is required")
	case d.TotalWeightKg <= 0:
		return fmt.Errorf("drone %q: total weight must be positive, got %v", d.ID, d.TotalWeightKg)
	case len(d.Motors) == 0:
		return fmt.Errorf("drone %q: at least one motor is required", d.ID)
	}
	for i, m := range d.Motors {
		if m.MaxThrustN <= 0 {
			return fmt.Errorf("drone %q: motor %d max thrust must be positive", d.ID, i)
		}
	}
	for i, a := range d.Arms {
		if a.CrossSectionAreaM2 <= 0 || a.MaxBendingStressMPa <= 0 {
			return fmt.Errorf("drone %q: arm %d needs a cross-section and bending limit", d.ID, i)
		}
	}
	return nil
}

// NumMotors returns the motor count.
func (d DroneSpecification) NumMotors() int { return len(d.Motors) }

// TotalThrustN returns the summed maximum thrust of all motors.
func (d DroneSpecification) TotalThrustN() float64 {
	var total float64
	for _, m := range d.Motors {
		total += m.MaxThrustN
	}
	return total
}

// ThrustToWeight returns total thrust divided by weight force.
func (d DroneSpecification) ThrustToWeight() float64 {
	w := d.TotalWeightKg * Gravity
	if w <= 0 {
		return 0
	}
	return d.TotalThrustN() / w
}

// HoverThrustPerMotorN is the thrust each motor must produce to hover.
func (d DroneSpecification) HoverThrustPerMotorN() float64 {
	if len(d.Motors) == 0 {
		return 0
	}
	return d.TotalWeightKg * Gravity / float64(len(d.Motors))
}

// HoverThrottleFraction is the fraction of maximum thrust needed to hover
// (weight force / total maximum thrust).
func (d DroneSpecification) HoverThrottleFraction() float64 {
	total := d.TotalThrustN()
	if total <= 0 {
		return 0
	}
	return d.TotalWeightKg * Gravity / total
}
