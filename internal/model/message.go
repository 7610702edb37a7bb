// Package model defines shared sensor structures for GpsLogger.
package model

import "time"

// Power status bits carried in the telemetry packet.
const (
	PowerCharging  uint8 = 0x01
	PowerUSB       uint8 = 0x02
	PowerConnected uint8 = 0x04
)

// GpsData is one merged fix from the positioning receiver.
type GpsData struct {
	Time       time.Time `json:"time"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	AltM       float64   `json:"alt_m"`
	SpeedMps   float64   `json:"speed_mps"`
	HeadingDeg float64   `json:"heading_deg"`
	FixType    uint8     `json:"fix_type"` // 0 none, 2 2D, 3 3D
	Sats       uint8     `json:"sats"`
}

// ImuData is one inertial sample.
type ImuData struct {
	AccelX float64 `json:"accel_x"` // g
	AccelY float64 `json:"accel_y"`
	AccelZ float64 `json:"accel_z"`
	GyroX  float64 `json:"gyro_x"` // deg/s
	GyroY  float64 `json:"gyro_y"`
}

// BatteryData is one battery reading.
type BatteryData struct {
	Volts   float64 `json:"volts"`
	Percent uint8   `json:"percent"`
	Status  uint8   `json:"status"` // Power* bits
}

// Sample groups everything a telemetry packet is built from.
type Sample struct {
	Gps     GpsData
	Imu     ImuData
	Battery BatteryData
}

// PerfSnapshot is a persisted window of loop statistics.
type PerfSnapshot struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Packets    uint64    `json:"packets"`
	Dropped    uint64    `json:"dropped"`
	Skipped    uint64    `json:"skipped"` // fixes the loop was too busy to take
	MinDeltaMs int64     `json:"min_delta_ms"`
	MaxDeltaMs int64     `json:"max_delta_ms"`
	AvgDeltaMs float64   `json:"avg_delta_ms"`
}
