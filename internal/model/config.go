// Package model defines shared configuration structures used to initialize the GpsLogger system.
// It includes storage, logging, transfer, channel, GNSS and statistics settings.
package model

import "time"

// Config represents the root structure loaded from configs/config.yml.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	Transfer TransferConfig `yaml:"transfer"`
	Framer   FramerConfig   `yaml:"framer"`
	Channel  ChannelConfig  `yaml:"channel"`
	Gnss     GnssConfig     `yaml:"gnss"`
	Board    BoardConfig    `yaml:"board"`
	Stats    StatsConfig    `yaml:"stats"`

	LoopIntervalMs int  `yaml:"loop_interval_ms"`
	Debug          bool `yaml:"debug"`
}

// StorageConfig points at the mounted removable card.
type StorageConfig struct {
	Root string `yaml:"root"` // directory the card is mounted on
}

// LoggingConfig gates START_LOG on fix quality.
type LoggingConfig struct {
	RequireFix bool `yaml:"require_fix"`
	MinFixType int  `yaml:"min_fix_type"`
}

// TransferConfig controls chunk pacing for downloads.
type TransferConfig struct {
	ChunkSize          int `yaml:"chunk_size"`
	MinChunkIntervalMs int `yaml:"min_chunk_interval_ms"`
}

// FramerConfig controls response fragmentation.
type FramerConfig struct {
	MaxFragment     int `yaml:"max_fragment"`
	FragmentDelayMs int `yaml:"fragment_delay_ms"`
}

// ChannelConfig selects and configures the control channel.
type ChannelConfig struct {
	Kind      string          `yaml:"kind"` // ble, websocket or serial
	BLE       BLEConfig       `yaml:"ble"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Serial    SerialConfig    `yaml:"serial"`
}

// BLEConfig configures the GATT peripheral.
type BLEConfig struct {
	LocalName string `yaml:"local_name"`
	MTU       int    `yaml:"mtu"` // assumed ATT MTU after connect, 0 keeps the default
}

// WebSocketConfig configures the websocket listener.
type WebSocketConfig struct {
	Addr string `yaml:"addr"` // e.g. ":10000"
	MTU  int    `yaml:"mtu"`
}

// SerialConfig configures a line-oriented serial control port.
type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	MTU    int    `yaml:"mtu"`
}

// GnssConfig configures the positioning receiver.
type GnssConfig struct {
	Device   string `yaml:"device"`
	Baud     int    `yaml:"baud"`
	Simulate bool   `yaml:"simulate"`
	RateMs   int    `yaml:"rate_ms"` // simulated fix interval
}

// BoardConfig configures the serial IMU/power board. An empty device uses
// static readings.
type BoardConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// StatsConfig configures performance statistics persistence.
type StatsConfig struct {
	DBPath          string `yaml:"db_path"`
	ResetIntervalS  int    `yaml:"reset_interval_s"`
	ReportIntervalS int    `yaml:"report_interval_s"`
}

// ApplyDefaults fills zero values with the device defaults.
func (c *Config) ApplyDefaults() {
	if c.Storage.Root == "" {
		c.Storage.Root = "/mnt/sd"
	}
	if c.Logging.MinFixType == 0 {
		c.Logging.MinFixType = 2
	}
	if c.Transfer.ChunkSize == 0 {
		c.Transfer.ChunkSize = 400
	}
	if c.Transfer.MinChunkIntervalMs == 0 {
		c.Transfer.MinChunkIntervalMs = 100
	}
	if c.Framer.MaxFragment == 0 {
		c.Framer.MaxFragment = 400
	}
	if c.Framer.FragmentDelayMs == 0 {
		c.Framer.FragmentDelayMs = 50
	}
	if c.Channel.Kind == "" {
		c.Channel.Kind = "ble"
	}
	if c.Channel.BLE.LocalName == "" {
		c.Channel.BLE.LocalName = "JC3248_GPS_Logger"
	}
	if c.Channel.WebSocket.Addr == "" {
		c.Channel.WebSocket.Addr = ":10000"
	}
	if c.Channel.Serial.Baud == 0 {
		c.Channel.Serial.Baud = 115200
	}
	if c.Gnss.Baud == 0 {
		c.Gnss.Baud = 9600
	}
	if c.Gnss.RateMs == 0 {
		c.Gnss.RateMs = 100
	}
	if c.Board.Baud == 0 {
		c.Board.Baud = 115200
	}
	if c.Stats.ResetIntervalS == 0 {
		c.Stats.ResetIntervalS = 300
	}
	if c.Stats.ReportIntervalS == 0 {
		c.Stats.ReportIntervalS = 10
	}
	if c.LoopIntervalMs == 0 {
		c.LoopIntervalMs = 5
	}
}

// LoopInterval returns the main loop period.
func (c *Config) LoopInterval() time.Duration {
	return time.Duration(c.LoopIntervalMs) * time.Millisecond
}
