// Sensor simulator: writes NMEA sentences and sensor board lines to serial devices.
// Use this for local testing when you don't have the receiver or board attached.
// With -virtual it creates socat PTY pairs so the logger can open the other ends.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"GpsLogger/internal/device"
	"GpsLogger/internal/util"
)

func main() {
	gpsDev := flag.String("gps", "/tmp/ttyGPS0", "serial device to write NMEA into")
	gpsBaud := flag.Int("gps-baud", 9600, "gps baud rate")
	boardDev := flag.String("board", "", "serial device to write sensor board lines into (empty disables)")
	boardBaud := flag.Int("board-baud", 115200, "sensor board baud rate")
	interval := flag.Int("interval", 1000, "ms between fixes")
	virtual := flag.Bool("virtual", false, "create socat pty pairs; the logger opens the <dev>-peer ends")
	flag.Parse()
	util.SetupLogger(false)

	pairs := util.NewVirtualSerial()
	defer pairs.Cleanup()
	if *virtual {
		for _, dev := range []string{*gpsDev, *boardDev} {
			if dev == "" {
				continue
			}
			if err := pairs.CreatePair(dev, dev+"-peer"); err != nil {
				log.Fatalf("create virtual serial: %v", err)
			}
		}
		// socat needs a moment to create the links
		time.Sleep(500 * time.Millisecond)
	}

	stop := make(chan struct{})
	done := make(chan struct{}, 2)
	every := time.Duration(*interval) * time.Millisecond

	go func() {
		g := device.NewGpsDevice(*gpsDev, *gpsBaud)
		if err := g.Simulate(stop, every); err != nil {
			log.Printf("gps simulator: %v", err)
		}
		done <- struct{}{}
	}()
	running := 1
	if *boardDev != "" {
		running++
		go func() {
			b := device.NewSensorBoard(*boardDev, *boardBaud)
			if err := b.Simulate(stop, every/10); err != nil {
				log.Printf("board simulator: %v", err)
			}
			done <- struct{}{}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case <-done:
		running--
	}
	close(stop)
	for ; running > 0; running-- {
		<-done
	}
}
