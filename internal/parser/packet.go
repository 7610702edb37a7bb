// Package parser implements the binary telemetry packet codec and the NMEA
// helpers used by the positioning receiver.
package parser

import (
	"encoding/binary"
	"errors"
	"math"

	"GpsLogger/internal/model"
)

// PacketSize is the encoded length of one telemetry record.
const PacketSize = 42

// checksumOffset is where the trailing CRC starts; the CRC covers every byte before it.
const checksumOffset = PacketSize - 2

var (
	ErrShortPacket = errors.New("packet too short")
	ErrChecksum    = errors.New("packet checksum mismatch")
)

// Packet is the fixed-point telemetry record streamed and logged by the device.
type Packet struct {
	Timestamp  uint32 // UTC epoch seconds
	Lat        int32  // 1e-7 deg
	Lon        int32  // 1e-7 deg
	Alt        int32  // mm
	Speed      int32  // mm/s
	Heading    int32  // 1e-5 deg
	FixType    uint8
	Sats       uint8
	BatteryMv  uint16
	BatteryPct uint8
	AccelX     int16 // g*1000
	AccelY     int16
	AccelZ     int16
	GyroX      int16 // dps*100
	GyroY      int16
	PowerBits  uint8
	CRC        uint16
}

// NewPacket scales a sensor sample into packet units.
func NewPacket(s model.Sample) Packet {
	var ts uint32
	if !s.Gps.Time.IsZero() && s.Gps.Time.Unix() > 0 {
		ts = uint32(s.Gps.Time.Unix())
	}
	return Packet{
		Timestamp:  ts,
		Lat:        int32(math.Round(s.Gps.Lat * 1e7)),
		Lon:        int32(math.Round(s.Gps.Lon * 1e7)),
		Alt:        int32(math.Round(s.Gps.AltM * 1000)),
		Speed:      int32(math.Round(s.Gps.SpeedMps * 1000)),
		Heading:    int32(math.Round(s.Gps.HeadingDeg * 1e5)),
		FixType:    s.Gps.FixType,
		Sats:       s.Gps.Sats,
		BatteryMv:  uint16(math.Round(s.Battery.Volts * 1000)),
		BatteryPct: s.Battery.Percent,
		AccelX:     clamp16(s.Imu.AccelX * 1000),
		AccelY:     clamp16(s.Imu.AccelY * 1000),
		AccelZ:     clamp16(s.Imu.AccelZ * 1000),
		GyroX:      clamp16(s.Imu.GyroX * 100),
		GyroY:      clamp16(s.Imu.GyroY * 100),
		PowerBits:  s.Battery.Status,
	}
}

func clamp16(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// EncodePacket serialises p little-endian and stamps the checksum into both
// the buffer and p.CRC.
func EncodePacket(p *Packet) []byte {
	b := make([]byte, PacketSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:], p.Timestamp)
	le.PutUint32(b[4:], uint32(p.Lat))
	le.PutUint32(b[8:], uint32(p.Lon))
	le.PutUint32(b[12:], uint32(p.Alt))
	le.PutUint32(b[16:], uint32(p.Speed))
	le.PutUint32(b[20:], uint32(p.Heading))
	b[24] = p.FixType
	b[25] = p.Sats
	le.PutUint16(b[26:], p.BatteryMv)
	b[28] = p.BatteryPct
	le.PutUint16(b[29:], uint16(p.AccelX))
	le.PutUint16(b[31:], uint16(p.AccelY))
	le.PutUint16(b[33:], uint16(p.AccelZ))
	le.PutUint16(b[35:], uint16(p.GyroX))
	le.PutUint16(b[37:], uint16(p.GyroY))
	b[39] = p.PowerBits

	p.CRC = Checksum(b[:checksumOffset])
	le.PutUint16(b[checksumOffset:], p.CRC)
	return b
}

// DecodePacket parses one record and verifies its checksum.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < PacketSize {
		return Packet{}, ErrShortPacket
	}
	le := binary.LittleEndian
	p := Packet{
		Timestamp:  le.Uint32(b[0:]),
		Lat:        int32(le.Uint32(b[4:])),
		Lon:        int32(le.Uint32(b[8:])),
		Alt:        int32(le.Uint32(b[12:])),
		Speed:      int32(le.Uint32(b[16:])),
		Heading:    int32(le.Uint32(b[20:])),
		FixType:    b[24],
		Sats:       b[25],
		BatteryMv:  le.Uint16(b[26:]),
		BatteryPct: b[28],
		AccelX:     int16(le.Uint16(b[29:])),
		AccelY:     int16(le.Uint16(b[31:])),
		AccelZ:     int16(le.Uint16(b[33:])),
		GyroX:      int16(le.Uint16(b[35:])),
		GyroY:      int16(le.Uint16(b[37:])),
		PowerBits:  b[39],
		CRC:        le.Uint16(b[checksumOffset:]),
	}
	if Checksum(b[:checksumOffset]) != p.CRC {
		return p, ErrChecksum
	}
	return p, nil
}

// Degrees helpers for consumers that print packets.
func (p Packet) LatDeg() float64     { return float64(p.Lat) / 1e7 }
func (p Packet) LonDeg() float64     { return float64(p.Lon) / 1e7 }
func (p Packet) HeadingDeg() float64 { return float64(p.Heading) / 1e5 }
