// Package core contains the main runtime logic and orchestration layer for the GpsLogger system.
// It defines the Logger main loop and the System type that builds and manages its collaborators.
package core

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"GpsLogger/internal/channel"
	"GpsLogger/internal/device"
	"GpsLogger/internal/model"
	"GpsLogger/internal/stats"
	"GpsLogger/internal/storage"
)

// LoadConfig reads the YAML configuration at path and applies defaults.
func LoadConfig(path string) (*model.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg model.Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// NewChannel builds the control channel selected by cfg.Kind.
func NewChannel(cfg model.ChannelConfig) (channel.Channel, error) {
	switch cfg.Kind {
	case "ble":
		return channel.NewBLE(cfg.BLE.LocalName, cfg.BLE.MTU), nil
	case "websocket":
		return channel.NewWebSocket(cfg.WebSocket.Addr, cfg.WebSocket.MTU), nil
	case "serial":
		dev, err := device.NewSerialDevice(cfg.Serial.Device, cfg.Serial.Baud)
		if err != nil {
			return nil, err
		}
		return channel.NewSerial(dev, cfg.Serial.MTU), nil
	}
	return nil, fmt.Errorf("unknown channel kind %q", cfg.Kind)
}

// System manages lifecycle of the logger and its devices.
// It loads configuration from a YAML file and constructs objects accordingly.
type System struct {
	cfgPath string
	cfg     *model.Config
	Logger  *Logger
	Channel channel.Channel
	Board   *device.SensorBoard
	Stats   *stats.Store

	stopBoard func()
	started   bool
	startLock sync.Mutex
}

// NewSystem reads the YAML configuration at cfgPath and creates a System instance.
func NewSystem(cfgPath string) (*System, error) {
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	return NewSystemFromConfig(cfgPath, cfg)
}

// NewSystemFromConfig builds a System from an already loaded configuration.
func NewSystemFromConfig(cfgPath string, cfg *model.Config) (*System, error) {
	ch, err := NewChannel(cfg.Channel)
	if err != nil {
		return nil, fmt.Errorf("build channel: %w", err)
	}
	s := &System{cfgPath: cfgPath, cfg: cfg, Channel: ch}

	src := Sources{Imu: device.StaticImu{}, Battery: device.StaticBattery{}}
	if cfg.Gnss.Simulate || cfg.Gnss.Device == "" {
		src.Gps = device.NewSimulatedGps(time.Duration(cfg.Gnss.RateMs) * time.Millisecond)
	} else {
		src.Gps = device.NewGpsDevice(cfg.Gnss.Device, cfg.Gnss.Baud)
	}
	if cfg.Board.Device != "" {
		s.Board = device.NewSensorBoard(cfg.Board.Device, cfg.Board.Baud)
		src.Imu, src.Battery = s.Board, s.Board
	}

	s.Logger = NewLogger(cfg, storage.NewDir(cfg.Storage.Root), ch, src)

	if cfg.Stats.DBPath != "" {
		st, err := stats.OpenStore(cfg.Stats.DBPath)
		if err != nil {
			log.Printf("[system] stats disabled: %v", err)
		} else {
			s.Stats = st
			s.Logger.Stats = st
		}
	}
	return s, nil
}

// StartAll starts the sensor board, the channel and the main loop.
func (s *System) StartAll() error {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if s.started {
		return nil
	}
	if s.Board != nil {
		stop, err := s.Board.Run()
		if err != nil {
			log.Printf("[system] sensor board start err: %v", err)
		} else {
			s.stopBoard = stop
		}
	}
	if err := s.Channel.Start(s.Logger.Dispatch); err != nil {
		return fmt.Errorf("start %s channel: %w", s.cfg.Channel.Kind, err)
	}
	if err := s.Logger.Start(); err != nil {
		if cerr := s.Channel.Close(); cerr != nil {
			log.Printf("warning: close channel: %v", cerr)
		}
		return err
	}
	log.Printf("[system] started (channel=%s storage=%s)", s.cfg.Channel.Kind, s.cfg.Storage.Root)
	s.started = true
	return nil
}

// StopAll stops all running components gracefully.
func (s *System) StopAll() {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if !s.started {
		return
	}
	s.Logger.Stop()
	if err := s.Channel.Close(); err != nil {
		log.Printf("warning: close channel: %v", err)
	}
	if s.stopBoard != nil {
		s.stopBoard()
	}
	if s.Stats != nil {
		if err := s.Stats.Close(); err != nil {
			log.Printf("warning: close stats db: %v", err)
		}
	}
	s.started = false
}
