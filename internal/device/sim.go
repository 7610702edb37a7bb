package device

import (
	"time"

	"GpsLogger/internal/model"
)

// SimulatedGps produces fixes in-process at a fixed rate.
type SimulatedGps struct {
	Interval time.Duration
	Track    *Track

	skipCounter
}

// NewSimulatedGps returns a source centred on the default test location.
func NewSimulatedGps(interval time.Duration) *SimulatedGps {
	return &SimulatedGps{Interval: interval, Track: NewTrack(21.0285, 105.8048)}
}

// Read implements GpsSource.
func (s *SimulatedGps) Read(out chan<- model.GpsData) (func(), error) {
	stop := make(chan struct{})
	go func() {
		defer close(out)
		tick := time.NewTicker(s.Interval)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-tick.C:
				s.offer(out, s.Track.Next(now.UTC()))
			}
		}
	}()
	return func() { close(stop) }, nil
}

// StaticImu reports a device lying flat and still.
type StaticImu struct{}

// ReadImu implements ImuSource.
func (StaticImu) ReadImu() model.ImuData { return model.ImuData{AccelZ: 1} }

// StaticBattery reports a USB-powered board with a full battery.
type StaticBattery struct{}

// ReadBattery implements BatterySource.
func (StaticBattery) ReadBattery() model.BatteryData {
	return model.BatteryData{
		Volts:   4.2,
		Percent: 100,
		Status:  model.PowerUSB | model.PowerConnected,
	}
}
