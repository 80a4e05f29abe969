package model

import "time"

// TelemetryRecord is a single timestamped reading from a drone.
//
// Every physical field is optional: a nil pointer means the sensor was not
// fitted or did not report for this sample. Records are treated as immutable
// once built.
type TelemetryRecord struct {
	Timestamp time.Time `json:"timestamp"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"` // metres

	GroundSpeed   *float64 `json:"ground_speed,omitempty"`   // m/s
	VerticalSpeed *float64 `json:"vertical_speed,omitempty"` // m/s

	Roll  *float64 `json:"roll,omitempty"` // degrees
	Pitch *float64 `json:"pitch,omitempty"`
	Yaw   *float64 `json:"yaw,omitempty"`

	// Acceleration in m/s^2, body frame.
	AccelX *float64 `json:"accel_x,omitempty"`
	AccelY *float64 `json:"accel_y,omitempty"`
	AccelZ *float64 `json:"accel_z,omitempty"`

	// Angular rate in deg/s.
	GyroX *float64 `json:"gyro_x,omitempty"`
	GyroY *float64 `json:"gyro_y,omitempty"`
	GyroZ *float64 `json:"gyro_z,omitempty"`

	BatteryVoltage   *float64 `json:"battery_voltage,omitempty"`
	BatteryCurrent   *float64 `json:"battery_current,omitempty"`
	BatteryRemaining *float64 `json:"battery_remaining,omitempty"` // percent

	WindSpeed      *float64 `json:"wind_speed,omitempty"`      // m/s
	AirTemperature *float64 `json:"air_temperature,omitempty"` // Celsius
}

// Float returns a pointer to v. It keeps record literals readable.
func Float(v float64) *float64 {
	return &v
}
