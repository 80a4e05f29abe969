package model

import (
	"encoding/json"
	"math"
	"testing"
)

func TestReferenceQuadDerivedValues(t *testing.T) {
	d := ReferenceQuad()
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got := d.NumMotors(); got != 4 {
		t.Fatalf("NumMotors() = %d, want 4", got)
	}

	wantThrust := 4 * 1.2 * Gravity
	if got := d.TotalThrustN(); math.Abs(got-wantThrust) > 1e-9 {
		t.Fatalf("TotalThrustN() = %v, want %v", got, wantThrust)
	}
	if got := d.ThrustToWeight(); math.Abs(got-3.2) > 1e-9 {
		t.Fatalf("ThrustToWeight() = %v, want 3.2", got)
	}
	if got := d.HoverThrottleFraction(); math.Abs(got-0.3125) > 1e-9 {
		t.Fatalf("HoverThrottleFraction() = %v, want 0.3125", got)
	}
	if got := d.HoverThrustPerMotorN(); math.Abs(got-1.5*Gravity/4) > 1e-9 {
		t.Fatalf("HoverThrustPerMotorN() = %v", got)
	}
}

func TestValidateRejectsIncompleteSpecs(t *testing.T) {
	cases := map[string]func(*DroneSpecification){
		"missing id":     func(d *DroneSpecification) { d.ID = "" },
		"zero weight":    func(d *DroneSpecification) { d.TotalWeightKg = 0 },
		"no motors":      func(d *DroneSpecification) { d.Motors = nil },
		"dead motor":     func(d *DroneSpecification) { d.Motors[0].MaxThrustN = 0 },
		"arm w/o limits": func(d *DroneSpecification) { d.Arms[2].MaxBendingStressMPa = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			d := ReferenceQuad()
			mutate(&d)
			if err := d.Validate(); err == nil {
				t.Fatalf("Validate() = nil, want error")
			}
		})
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	d := DroneSpecification{MaxWindSpeedMS: 14}
	d.ApplyDefaults()
	if d.MaxWindSpeedMS != 14 {
		t.Fatalf("MaxWindSpeedMS = %v, want 14", d.MaxWindSpeedMS)
	}
	if d.DragCoefficient != 0.6 || d.MaxSpeedMS != 15 || d.MaxBankAngleDeg != 45 {
		t.Fatalf("defaults not applied: %+v", d)
	}
}

func TestRiskTierOrderingAndText(t *testing.T) {
	for i := 1; i < len(RiskTiers); i++ {
		if RiskTiers[i-1] >= RiskTiers[i] {
			t.Fatalf("tiers out of order at %d", i)
		}
	}

	b, err := json.Marshal(RiskAssessment{Tier: RiskCritical})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back RiskAssessment
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Tier != RiskCritical {
		t.Fatalf("tier = %v, want CRITICAL", back.Tier)
	}

	if _, err := ParseRiskTier("severe"); err == nil {
		t.Fatalf("ParseRiskTier(severe) = nil error")
	}
	if tier, _ := ParseRiskTier("medium"); tier != RiskMedium {
		t.Fatalf("ParseRiskTier(medium) = %v", tier)
	}
}
