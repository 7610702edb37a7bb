package parser

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// CSVHeader names the columns produced by Packet.CSVRow.
func CSVHeader() []string {
	return []string{
		"time_utc", "latitude", "longitude", "altitude_m", "speed_mps", "heading_deg",
		"fix_type", "num_sats", "battery_mv", "battery_pct",
		"accel_x_g", "accel_y_g", "accel_z_g", "gyro_x_dps", "gyro_y_dps", "power_status",
	}
}

// CSVRow renders p in engineering units.
func (p Packet) CSVRow() []string {
	return []string{
		time.Unix(int64(p.Timestamp), 0).UTC().Format(time.RFC3339),
		ftoa(p.LatDeg(), 7),
		ftoa(p.LonDeg(), 7),
		ftoa(float64(p.Alt)/1000, 3),
		ftoa(float64(p.Speed)/1000, 3),
		ftoa(p.HeadingDeg(), 5),
		strconv.Itoa(int(p.FixType)),
		strconv.Itoa(int(p.Sats)),
		strconv.Itoa(int(p.BatteryMv)),
		strconv.Itoa(int(p.BatteryPct)),
		ftoa(float64(p.AccelX)/1000, 3),
		ftoa(float64(p.AccelY)/1000, 3),
		ftoa(float64(p.AccelZ)/1000, 3),
		ftoa(float64(p.GyroX)/100, 2),
		ftoa(float64(p.GyroY)/100, 2),
		fmt.Sprintf("0x%02x", p.PowerBits),
	}
}

// ParseCSVRow is the inverse of CSVRow, used to re-import exported logs.
func ParseCSVRow(fields []string) (Packet, error) {
	if len(fields) != len(CSVHeader()) {
		return Packet{}, errors.New("invalid CSV field count")
	}
	ts, err := time.Parse(time.RFC3339, fields[0])
	if err != nil {
		return Packet{}, fmt.Errorf("csv time: %w", err)
	}
	var f [14]float64
	for i := range f {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i+1]), 64)
		if err != nil {
			return Packet{}, fmt.Errorf("csv field %s: %w", CSVHeader()[i+1], err)
		}
		f[i] = v
	}
	power, err := strconv.ParseUint(fields[15], 0, 8)
	if err != nil {
		return Packet{}, fmt.Errorf("csv power_status: %w", err)
	}
	return Packet{
		Timestamp:  uint32(ts.Unix()),
		Lat:        int32(math.Round(f[0] * 1e7)),
		Lon:        int32(math.Round(f[1] * 1e7)),
		Alt:        int32(math.Round(f[2] * 1000)),
		Speed:      int32(math.Round(f[3] * 1000)),
		Heading:    int32(math.Round(f[4] * 1e5)),
		FixType:    uint8(f[5]),
		Sats:       uint8(f[6]),
		BatteryMv:  uint16(f[7]),
		BatteryPct: uint8(f[8]),
		AccelX:     clamp16(f[9] * 1000),
		AccelY:     clamp16(f[10] * 1000),
		AccelZ:     clamp16(f[11] * 1000),
		GyroX:      clamp16(f[12] * 100),
		GyroY:      clamp16(f[13] * 100),
		PowerBits:  uint8(power),
	}, nil
}

func ftoa(v float64, prec int) string { return strconv.FormatFloat(v, 'f', prec, 64) }
