package main

import (
	"fmt"
	"os"

	"fleet-track/internal/common/config"
	"fleet-track/internal/common/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment, "telemetry-gateway")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("telemetry gateway failed")
	}
}
