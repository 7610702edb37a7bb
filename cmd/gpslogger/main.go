// Package main is the entry point of the GpsLogger device daemon.
// It initializes the logger, loads the configuration, constructs the channel,
// sensors and main loop, and runs them until interrupted.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"GpsLogger/internal/core"
	"GpsLogger/internal/util"
)

func main() {
	cfgPath := flag.String("c", "configs/config.yml", "path to configuration file")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	cfg, err := core.LoadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetupLogger(*verbose || cfg.Debug)
	log.Printf("[Main] Using config: %s", *cfgPath)

	sys, err := core.NewSystemFromConfig(*cfgPath, cfg)
	if err != nil {
		log.Fatalf("failed to create system: %v", err)
	}
	if err := sys.StartAll(); err != nil {
		log.Fatalf("failed to start system: %v", err)
	}

	// wait for Ctrl+C or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("[Main] Shutting down system...")
	sys.StopAll()
	log.Println("[Main] System stopped cleanly.")
}
