// Light Switch - remote on/off control for a small set of devices.
//
// The service keeps one boolean per device in a hierarchical store
// (Firebase Realtime Database, SQLite, or memory), serves a JSON API to
// read, toggle and set them, and ships a small browser panel.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/lightswitch/internal/api"
	"github.com/nerrad567/lightswitch/internal/infrastructure/config"
	"github.com/nerrad567/lightswitch/internal/infrastructure/logging"
	"github.com/nerrad567/lightswitch/internal/infrastructure/mqtt"
	"github.com/nerrad567/lightswitch/internal/state"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// startupHealthTimeout bounds the store probe made before serving.
const startupHealthTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting lightswitch",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"backend", cfg.Store.Backend,
		"devices", len(cfg.Devices),
	)

	catalog, err := state.NewCatalog(cfg.DeviceKeys()...)
	if err != nil {
		return fmt.Errorf("building device catalog: %w", err)
	}

	var mirror state.Mirror
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := connectMQTT(cfg.MQTT, log)
		if mqttErr != nil {
			log.Warn("MQTT unavailable, state changes will not be mirrored", "error", mqttErr)
		} else {
			defer func() {
				log.Info("disconnecting from MQTT")
				if closeErr := mqttClient.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			}()
			mirror = &mqttMirror{publisher: mqttClient, catalog: catalog}
		}
	}

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("opening %s backend: %w", cfg.Store.Backend, err)
	}
	defer func() {
		if closeErr := be.Close(); closeErr != nil {
			log.Error("error closing state backend", "error", closeErr)
		}
	}()

	store := be.newStore(catalog, state.Options{
		StructuredPath: cfg.Store.StructuredPath,
		Logger:         log.With("component", "state"),
		Mirror:         mirror,
	})

	if store.Configured() {
		checkCtx, cancel := context.WithTimeout(ctx, startupHealthTimeout)
		if hcErr := store.HealthCheck(checkCtx); hcErr != nil {
			log.Warn("state store not healthy at startup, serving anyway", "error", hcErr)
		} else {
			log.Info("state store healthy")
		}
		cancel()
	} else {
		log.Warn("state store not configured, state requests will return 500 until restarted with credentials")
	}

	registry := newRegistry()

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Panel:    cfg.Panel,
		Metrics:  cfg.Metrics,
		Logger:   log,
		Store:    store,
		Devices:  cfg.Devices,
		Gatherer: registry,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LIGHTSWITCH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LIGHTSWITCH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads path, falling back to built-in defaults when the file
// does not exist. Any other read, parse or validation error is fatal.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// connectMQTT connects the state mirror and wires its logging callbacks.
func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, err
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return client, nil
}

// newRegistry returns a registry carrying runtime, HTTP and store metrics.
func newRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registry.MustRegister(api.MetricsCollectors()...)
	registry.MustRegister(state.MetricsCollectors()...)
	return registry
}
