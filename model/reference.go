package model

import "fmt"

// ReferenceQuad returns a 1.5 kg, 450 mm carbon X-quad on a 6S pack. It is
// used by the demo binaries and as a baseline airframe when no catalog is
// configured.
func ReferenceQuad() DroneSpecification {
	const motorThrustKg = 1.2

	d := DroneSpecification{
		ID:            "REFERENCE_QUAD",
		Model:         "Reference 450 Quadcopter",
		FrameType:     FrameQuadX,
		FrameMaterial: MaterialCarbonFiber,
		TotalWeightKg: 1.5,
		WheelbaseMM:   450,
		Battery: BatterySpec{
			CapacityMAh:       5000,
			NominalVoltage:    22.2,
			MaxVoltage:        25.2,
			MinVoltage:        19.2,
			Chemistry:         "LiPo",
			Cells:             6,
			WeightKg:          0.65,
			MaxDischargeC:     50,
			MaxChargeC:        5,
			ExpectedCycleLife: 300,
		},
		DragCoefficient: 0.6,
		FrontalAreaM2:   0.08,
		MaxSpeedMS:      20,
		MaxClimbRateMS:  8,
		MaxBankAngleDeg: 60,
		MaxYawRateDegS:  200,
		MaxWindSpeedMS:  10,
	}
	for i := 1; i <= 4; i++ {
		id := fmt.Sprintf("M%d", i)
		d.Motors = append(d.Motors, MotorSpec{
			ID:            id,
			MaxThrustN:    motorThrustKg * Gravity,
			MaxRPM:        8000,
			WeightKg:      0.08,
			LifetimeHours: 200,
			CriticalTempC: 85,
		})
		d.Arms = append(d.Arms, ArmSpec{
			LengthM:             d.WheelbaseMM / 2000,
			CrossSectionAreaM2:  0.000004,
			Material:            MaterialCarbonFiber,
			ThicknessMM:         2.5,
			MaxBendingStressMPa: 600,
			FatigueLimitMPa:     300,
			MotorID:             id,
		})
	}
	return d
}
