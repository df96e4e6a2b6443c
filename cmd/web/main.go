// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

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
	static := flag.String("static", "web", "directory served at /")
	flag.Parse()

	log.Println("starting uvc-stereo web server (MQTT subscriber)")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logging.Setup(cfg.LogLevel)

	if err := app.RunWeb(cfg, *static); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
