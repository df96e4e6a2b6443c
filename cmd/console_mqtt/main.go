package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/uvc_stereo/internal/app"
	"github.com/relabs-tech/uvc_stereo/internal/config"
	"github.com/relabs-tech/uvc_stereo/internal/logging"
)

func main() {
	configPath := flag.String("config", "uvc_config.txt", "configuration file")
	imuOnly := flag.Bool("imu-only", false, "print only inertial and combined messages")
	flag.Parse()

	log.Println("starting uvc-stereo console (MQTT subscriber)")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logging.Setup(cfg.LogLevel)

	if err := app.RunConsoleMQTT(cfg, *imuOnly); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
