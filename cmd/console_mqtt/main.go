// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/eos_sensor/internal/app"
	"github.com/relabs-tech/eos_sensor/internal/config"
)

func main() {
	configPath := flag.String("config", "./eos_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting eos console (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunConsoleMQTT(ctx, os.Stdout); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
