// Package device defines the line-oriented serial interface and the sensor
// sources (GNSS receiver, inertial unit, battery) sampled by the logger.
package device

import (
	"sync/atomic"
	"time"

	"GpsLogger/internal/model"
)

// Device defines an abstract interface for line-based serial devices.
// Implementations can provide ReadLine/WriteLine operations with optional timeout.
type Device interface {
	// ReadLine reads a single line terminated by '\n'.
	// If timeout > 0, it must return after timeout even if no data available.
	ReadLine(timeout time.Duration) (string, error)

	// WriteLine writes s followed by '\n' to the device.
	WriteLine(s string) error

	// Close closes the device and releases underlying resources.
	Close() error
}

// GpsSource streams fixes until the returned stop function is called.
// Fixes the consumer is not ready for are skipped and counted.
type GpsSource interface {
	Read(out chan<- model.GpsData) (func(), error)
	Skipped() uint64
}

// skipCounter counts fixes a GpsSource could not hand over.
type skipCounter struct {
	skipped atomic.Uint64
}

// Skipped returns the total number of fixes skipped since start.
func (c *skipCounter) Skipped() uint64 { return c.skipped.Load() }

// offer sends fix without blocking and counts it when out is full.
func (c *skipCounter) offer(out chan<- model.GpsData, fix model.GpsData) {
	select {
	case out <- fix:
	default:
		c.skipped.Add(1)
	}
}

// ImuSource returns the latest inertial sample.
type ImuSource interface {
	ReadImu() model.ImuData
}

// BatterySource returns the latest battery reading.
type BatterySource interface {
	ReadBattery() model.BatteryData
}
