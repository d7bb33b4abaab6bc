// Command nwrunnerd is the nwrunner server: it wires the registry, event
// bus, execution engine and run coordinator into the HTTP/WS surface
// described in spec.md §6, grounded on the teacher's cmd/core/main.go
// flag-plus-env-toggle shape.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/icecake0141/nwrunner/pkg/config"
	"github.com/icecake0141/nwrunner/pkg/engine"
	"github.com/icecake0141/nwrunner/pkg/eventbus"
	"github.com/icecake0141/nwrunner/pkg/httpapi"
	"github.com/icecake0141/nwrunner/pkg/importer"
	"github.com/icecake0141/nwrunner/pkg/lifecycle"
	"github.com/icecake0141/nwrunner/pkg/logger"
	"github.com/icecake0141/nwrunner/pkg/registry"
	"github.com/icecake0141/nwrunner/pkg/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("nwrunnerd: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to nwrunner.json (optional; env overrides always apply)")
	flag.Parse()

	ctx := context.Background()

	bootLog := logger.New(logger.Config{Level: "info"})

	cfg, err := config.Load(ctx, *configPath, bootLog)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Logger)

	inventory := registry.NewDeviceInventory()
	reg := registry.New(inventory, cfg.HistoryLimit)
	bus := eventbus.New(log.WithComponent("eventbus"), 0)
	w := buildWorker(cfg)

	eng := engine.New(reg, bus, w, log.WithComponent("engine"))
	coordinator := engine.NewRunCoordinator(eng, reg)

	srv := &httpapi.Server{
		Registry:             reg,
		Inventory:            inventory,
		Bus:                  bus,
		Coordinator:          coordinator,
		Worker:               w,
		Validator:            buildValidator(cfg),
		Log:                  log.WithComponent("httpapi"),
		APIKey:               cfg.APIKey,
		CORS:                 httpapi.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins},
		StatusCommandTimeout: 20 * time.Second,
		NATSMirror:           buildNATSMirror(cfg, log),
	}

	return lifecycle.RunServer(ctx, &lifecycle.ServerOptions{
		ListenAddr:  cfg.ListenAddr,
		ServiceName: "nwrunnerd",
		Handler:     srv.NewHandler(),
		Logger:      log,
	})
}

func buildWorker(cfg config.AppConfig) worker.DeviceWorker {
	if cfg.WorkerMode == config.WorkerModeSSH {
		return worker.NewSSHDeviceWorker(worker.DefaultSSHWorkerConfig(), logger.New(cfg.Logger).WithComponent("worker"))
	}

	delay := time.Duration(cfg.SimulatedDelayMs) * time.Millisecond

	return worker.NewSimulatedDeviceWorker(nil, delay)
}

func buildValidator(cfg config.AppConfig) importer.ConnectionValidator {
	if cfg.ValidatorMode == config.ValidatorModeTCP {
		return importer.NewTCPDialValidator(5 * time.Second)
	}

	return importer.SimulatedValidator{}
}

func buildNATSMirror(cfg config.AppConfig, log logger.Logger) *eventbus.NATSMirror {
	if cfg.NATSURL == "" {
		return nil
	}

	conn, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		log.Warn().Err(err).Str("url", cfg.NATSURL).Msg("could not connect to NATS, event mirror disabled")
		return nil
	}

	return eventbus.NewNATSMirror(conn, log.WithComponent("nats_mirror"))
}
