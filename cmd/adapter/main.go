package main

import (
	"context"
	"device-adapter-core/internal/adapters/input/http"
	"device-adapter-core/internal/adapters/input/ssdp"
	"device-adapter-core/internal/adapters/output/camera"
	"device-adapter-core/internal/adapters/output/configurator"
	"device-adapter-core/internal/adapters/output/events"
	"device-adapter-core/internal/adapters/output/hue"
	"device-adapter-core/internal/adapters/output/network"
	"device-adapter-core/internal/adapters/output/persistence"
	"device-adapter-core/internal/adapters/output/services"
	"device-adapter-core/internal/adapters/output/template"
	"device-adapter-core/internal/domain/pairing"
	"device-adapter-core/internal/domain/registration"
	"device-adapter-core/internal/domain/service"
	"device-adapter-core/internal/infrastructure/config"
	"device-adapter-core/internal/infrastructure/logging"
	"device-adapter-core/internal/infrastructure/metrics"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Set at build time via -ldflags "-X main.version=...".
var version = "dev"

const defaultConfigPath = "config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closeLog, err := logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer closeLog()
	logger.Info().Str("version", version).Msg("Starting device adapter")

	recorder := metrics.New()
	tracker := registration.NewTracker()
	tracker.Observe(registration.RecordStates(recorder))

	if cfg.MQTT.Enabled {
		publisher, disconnect, err := events.Connect(events.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, logger)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer disconnect()
		tracker.Observe(publisher.Observer())
	}

	registry, err := services.NewRegistry(logger)
	if err != nil {
		return err
	}
	pending := configurator.NewMemory(logger)
	controller := pairing.NewController(tracker, pending, logger,
		pairing.WithMaxAttempts(cfg.Pairing.MaxAttempts),
		pairing.WithRecorder(recorder),
	)
	bridges := service.NewBridgeService(service.BridgeDependencies{
		Connector: hue.NewConnector("", logger),
		Resolver:  network.NewResolver(),
		OpenStore: persistence.NewOpener(cfg.Storage.ConfigDir),
		Tracker:   tracker,
		Pairing:   controller,
		Services:  registry,
		Recorder:  recorder,
	}, logger)

	renderer := template.NewRenderer(cfg.Template.Variables)
	fetcher := camera.NewFetcher(cfg.FetchTimeout(), logger)
	cameras := make([]http.Camera, 0, len(cfg.Cameras))
	for _, c := range cfg.Cameras {
		cam := service.NewCameraService(c.Target(), renderer, fetcher, recorder, logger)
		cameras = append(cameras, cam)
		logger.Info().Str("camera", cam.Name()).Msg("Camera configured")
	}

	server := http.NewServer(http.Dependencies{
		Cameras:      cameras,
		Bridges:      bridges,
		Configurator: pending,
		Services:     registry,
		Metrics:      recorder,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, cfg.HTTP.Listen, cfg.ReadTimeout(), cfg.WriteTimeout())
	})
	if hueCfg := cfg.Hue; hueCfg != nil {
		if hueCfg.Host != "" || !hueCfg.Discovery {
			g.Go(func() error {
				setupBridge(gctx, bridges, *hueCfg, logger)
				return nil
			})
		}
		if hueCfg.Discovery {
			discoverer := ssdp.NewDiscoverer(hueCfg.Filename, logger)
			g.Go(func() error {
				if err := discoverer.Run(gctx, bridges); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error().Err(err).Msg("Hue bridge discovery failed")
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("Device adapter stopped")
	return nil
}

// setupBridge runs the configured bridge setup once. Failures are logged;
// the bridge can be set up again through the HTTP API.
func setupBridge(ctx context.Context, bridges *service.BridgeService, cfg config.HueConfig, logger zerolog.Logger) {
	outcome, err := bridges.Setup(ctx, cfg.Bridge())
	if err != nil {
		logger.Error().Err(err).Str("outcome", string(outcome)).Msg("Hue bridge setup failed")
		return
	}
	logger.Info().Str("outcome", string(outcome)).Msg("Hue bridge setup finished")
}

// configPath prefers ADAPTER_CONFIG, then ./config.yaml when present.
// An empty result means defaults and environment only.
func configPath() string {
	if p := os.Getenv("ADAPTER_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}
