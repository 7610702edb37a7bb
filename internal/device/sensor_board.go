// Package device implements a reader for the serial sensor board,
// a microcontroller that reports inertial and power readings as CSV lines.
package device

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"GpsLogger/internal/model"
)

// boardFields is the number of CSV fields per line:
// ax,ay,az,gx,gy,volts,percent,status
const boardFields = 8

// SensorBoard keeps the latest IMU and battery readings from a serial board.
type SensorBoard struct {
	Device string
	Baud   int
	Serial Device

	mu   sync.RWMutex
	imu  model.ImuData
	batt model.BatteryData
}

// NewSensorBoard creates a new sensor board handler.
func NewSensorBoard(dev string, baud int) *SensorBoard {
	return &SensorBoard{Device: dev, Baud: baud}
}

// Open initializes the board serial connection.
func (b *SensorBoard) Open() error {
	if b.Serial != nil {
		return nil
	}
	sd, err := NewSerialDevice(b.Device, b.Baud)
	if err != nil {
		return fmt.Errorf("open sensor board serial failed: %w", err)
	}
	b.Serial = sd
	return nil
}

// Close terminates the serial connection safely.
func (b *SensorBoard) Close() error {
	if b.Serial == nil {
		return nil
	}
	err := b.Serial.Close()
	b.Serial = nil
	return err
}

// ParseBoardLine decodes one CSV line from the board.
func ParseBoardLine(line string) (model.ImuData, model.BatteryData, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != boardFields {
		return model.ImuData{}, model.BatteryData{}, fmt.Errorf("sensor board line has %d fields, want %d", len(parts), boardFields)
	}
	var v [6]float64
	for i := range v {
		f, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return model.ImuData{}, model.BatteryData{}, fmt.Errorf("sensor board field %d: %w", i, err)
		}
		v[i] = f
	}
	pct, err := strconv.ParseUint(parts[6], 10, 8)
	if err != nil {
		return model.ImuData{}, model.BatteryData{}, fmt.Errorf("sensor board percent: %w", err)
	}
	status, err := strconv.ParseUint(parts[7], 0, 8)
	if err != nil {
		return model.ImuData{}, model.BatteryData{}, fmt.Errorf("sensor board status: %w", err)
	}
	imu := model.ImuData{AccelX: v[0], AccelY: v[1], AccelZ: v[2], GyroX: v[3], GyroY: v[4]}
	batt := model.BatteryData{Volts: v[5], Percent: uint8(pct), Status: uint8(status)}
	return imu, batt, nil
}

// Update stores a parsed line. Malformed lines are logged and ignored.
func (b *SensorBoard) Update(line string) {
	imu, batt, err := ParseBoardLine(line)
	if err != nil {
		log.Printf("[board] %v", err)
		return
	}
	b.mu.Lock()
	b.imu, b.batt = imu, batt
	b.mu.Unlock()
}

// ReadImu implements ImuSource.
func (b *SensorBoard) ReadImu() model.ImuData {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.imu
}

// ReadBattery implements BatterySource.
func (b *SensorBoard) ReadBattery() model.BatteryData {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.batt
}

// Run reads lines until the returned stop function is called.
func (b *SensorBoard) Run() (func(), error) {
	if err := b.Open(); err != nil {
		return nil, err
	}
	sd := b.Serial
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			line, err := sd.ReadLine(500 * time.Millisecond)
			if err != nil {
				if !errors.Is(err, ErrReadTimeout) {
					time.Sleep(200 * time.Millisecond)
				}
				continue
			}
			if strings.TrimSpace(line) != "" {
				b.Update(line)
			}
		}
	}()
	return func() {
		close(stop)
		if err := b.Close(); err != nil {
			log.Printf("[board] warning: close %s: %v", b.Device, err)
		}
		<-done
	}, nil
}

// Simulate writes plausible board lines until stop is closed.
func (b *SensorBoard) Simulate(stop <-chan struct{}, interval time.Duration) error {
	if err := b.Open(); err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Printf("[warning] Failed to close sensor board: %v", err)
		}
	}()

	log.Printf("[board] simulator started on %s (baud %d)", b.Device, b.Baud)
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-stop:
			log.Println("[board] simulation stopped")
			return nil
		case <-tick.C:
		}
		line := fmt.Sprintf("%.3f,%.3f,%.3f,%.2f,%.2f,%.3f,%d,%d",
			(rand.Float64()-0.5)*0.05, (rand.Float64()-0.5)*0.05, 1+(rand.Float64()-0.5)*0.02,
			(rand.Float64()-0.5)*2, (rand.Float64()-0.5)*2,
			4.1, 90, model.PowerUSB|model.PowerConnected|model.PowerCharging)
		if err := b.Serial.WriteLine(line); err != nil {
			log.Printf("[board] simulate write error: %v", err)
		}
	}
}
