package core

import (
	"math"

	"github.com/signalsfoundry/flight-twin/model"
)

// Overall stress weights.
const (
	weightGForce      = 0.4
	weightWind        = 0.2
	weightTemperature = 0.15
	weightMotor       = 0.15
	weightArm         = 0.1
)

// Neutral flight conditions, used both as defaults for absent sensors and
// as the load baseline motor and arm stress are measured against in the
// overall score.
const (
	NeutralGForce      = 1.0
	NeutralWindSpeed   = 0.0
	NeutralTemperature = 25.0
	NeutralAltitude    = 0.0
)

// StressModel computes instantaneous stress and cumulative component health
// for one airframe. It holds no mutable state.
type StressModel struct {
	spec model.DroneSpecification

	motorBaseline float64
	armBaseline   float64
}

// NewStressModel binds a stress model to a drone specification. Unset
// envelope values take their defaults.
func NewStressModel(spec model.DroneSpecification) *StressModel {
	spec.ApplyDefaults()
	m := &StressModel{spec: spec}
	m.motorBaseline = m.motorStress(NeutralGForce, NeutralTemperature)
	m.armBaseline = m.armStress(NeutralGForce)
	return m
}

// Spec returns the drone specification the model was built with.
func (m *StressModel) Spec() model.DroneSpecification { return m.spec }

// Stress scores the current flight condition.
func (m *StressModel) Stress(gForce, windSpeed, airTemp, altitude float64) model.StressAssessment {
	s := model.StressAssessment{
		GForce:      gStress(gForce),
		Wind:        m.windStress(windSpeed),
		Temperature: temperatureStress(airTemp),
		Altitude:    altitudeStress(altitude),
		Motor:       m.motorStress(gForce, airTemp),
		Arm:         m.armStress(gForce),
		Battery:     batteryStress(airTemp),
	}

	// Motors and arms carry load even in a still hover, so only the excess
	// over that hover load counts toward the overall score.
	motorExcess := math.Max(0, s.Motor-m.motorBaseline)
	armExcess := math.Max(0, s.Arm-m.armBaseline)

	s.Overall = clamp(
		s.GForce*weightGForce+
			s.Wind*weightWind+
			s.Temperature*weightTemperature+
			motorExcess*weightMotor+
			armExcess*weightArm,
		0, 100)
	return s
}

// StressFromFeatures reads g-force, wind, air temperature and altitude from a
// feature vector, falling back to neutral conditions for absent columns.
func (m *StressModel) StressFromFeatures(fv FeatureVector) model.StressAssessment {
	pick := func(name string, fallback float64) float64 {
		if v, ok := fv[name]; ok {
			return v
		}
		return fallback
	}
	return m.Stress(
		pick("g_force", NeutralGForce),
		pick("wind_speed", NeutralWindSpeed),
		pick("air_temperature", NeutralTemperature),
		pick("altitude", NeutralAltitude),
	)
}

func gStress(g float64) float64 {
	if g <= 1 {
		return 0
	}
	normalized := math.Min(1, (g-1)/4)
	return math.Min(100, 100*(1-math.Exp(-3*normalized)))
}

func (m *StressModel) windStress(wind float64) float64 {
	if wind <= 0 || m.spec.MaxWindSpeedMS <= 0 {
		return 0
	}
	ratio := wind / m.spec.MaxWindSpeedMS
	var s float64
	switch {
	case ratio < 0.5:
		s = ratio * 40
	case ratio < 0.8:
		s = 20 + (ratio-0.5)*100
	default:
		s = 50 + (ratio-0.8)*250
	}
	return clamp(s, 0, 100)
}

func temperatureStress(t float64) float64 {
	switch {
	case t < 15:
		return clamp((15-t)*3, 0, 100)
	case t > 35:
		return clamp((t-35)*4, 0, 100)
	}
	return 0
}

func altitudeStress(alt float64) float64 {
	if alt < 1000 {
		return 0
	}
	return math.Min(50, alt/1000*5)
}

func (m *StressModel) motorStress(g, temp float64) float64 {
	throttle := math.Min(100, g*m.spec.HoverThrottleFraction()*100)
	factor := 1.0
	if temp > 30 {
		factor = 1 + (temp-30)*0.02
	} else if temp < 10 {
		factor = 1 + (10-temp)*0.01
	}
	return math.Min(100, throttle*factor*0.8)
}

// armStress is cantilever bending stress on the first arm as a percentage of
// its rated limit.
func (m *StressModel) armStress(g float64) float64 {
	if len(m.spec.Arms) == 0 || len(m.spec.Motors) == 0 {
		return 0
	}
	arm := m.spec.Arms[0]
	if arm.CrossSectionAreaM2 <= 0 || arm.MaxBendingStressMPa <= 0 {
		return 0
	}
	forcePerArm := m.spec.TotalWeightKg * model.Gravity * g / float64(len(m.spec.Motors))
	bendingMPa := forcePerArm * arm.LengthM / (arm.CrossSectionAreaM2 * 1e6)
	return clamp(bendingMPa/arm.MaxBendingStressMPa*100, 0, 100)
}

func batteryStress(t float64) float64 {
	switch {
	case t < 20:
		return clamp((20-t)*2, 0, 100)
	case t > 30:
		return clamp((t-30)*3, 0, 100)
	}
	return 0
}

// Health estimates component wear from accumulated flight time and the
// average overall stress over that time.
func (m *StressModel) Health(flightHours, avgStress float64) model.ComponentHealth {
	var h model.ComponentHealth
	flightHours = math.Max(0, flightHours)
	avgStress = clamp(avgStress, 0, 100)

	var sum float64
	var count int

	if len(m.spec.Motors) > 0 && m.spec.Motors[0].LifetimeHours > 0 {
		life := m.spec.Motors[0].LifetimeHours
		wear := flightHours / life * (1 + avgStress/100)
		h.Motor = healthFromWear(wear)
		h.MotorRemainingHours = math.Max(0, life*(1-wear))
		h.MotorComputed = true
		sum += h.Motor
		count++
	}

	if cycles := m.spec.Battery.ExpectedCycleLife; cycles > 0 {
		used := flightHours / 0.5
		wear := used / float64(cycles) * (1 + avgStress/200)
		h.Battery = healthFromWear(wear)
		h.BatteryRemainingCycle = math.Max(0, float64(cycles)*(1-wear))
		h.BatteryComputed = true
		sum += h.Battery
		count++
	}

	if len(m.spec.Arms) > 0 {
		stressCycles := flightHours * 60
		fatigue := math.Pow(avgStress/100, 2)
		wear := stressCycles / 100000 * fatigue
		h.Frame = healthFromWear(wear)
		h.FrameComputed = true
		sum += h.Frame
		count++
	}

	if count > 0 {
		h.Overall = sum / float64(count)
	}
	return h
}

func healthFromWear(wear float64) float64 {
	return math.Max(0, 100-wear*100)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
