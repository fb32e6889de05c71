// Command bhyve-bridge relays irrigation controller state between the
// cloud side and an MQTT broker under the bhyve/ namespace.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/bhyve-bridge/internal/bridge"
	"github.com/nerrad567/bhyve-bridge/internal/command"
	"github.com/nerrad567/bhyve-bridge/internal/infrastructure/config"
	"github.com/nerrad567/bhyve-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/bhyve-bridge/internal/infrastructure/metrics"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML config (default $BHYVE_CONFIG, or env-only)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("bhyve-bridge %s\n", version)
		return
	}

	if err := run(resolveConfigPath(*configPath)); err != nil {
		fmt.Fprintf(os.Stderr, "bhyve-bridge: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting bhyve-bridge",
		"broker", cfg.MQTT.Broker.Host,
		"port", cfg.MQTT.Broker.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	b := bridge.New(cfg, log.With("component", "bridge"), m)
	b.OnAll(bridge.NewSinkHandler(
		&logSink{log: log.With("component", "sink")},
		m,
		log.With("component", "upstream"),
	), bridge.EventZoneCommand, bridge.EventDeviceRefresh, bridge.EventValidationError)

	if cfg.Metrics.Enabled {
		startMetricsServer(ctx, cfg.Metrics.Listen, m, b, log)
	}

	err = b.Run(ctx)
	if err != nil {
		log.Error("bridge stopped", "error", err)
		return err
	}
	log.Info("bhyve-bridge stopped")
	return nil
}

// resolveConfigPath prefers the flag, then the BHYVE_CONFIG variable.
// Empty means env-only configuration.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("BHYVE_CONFIG")
}

// startMetricsServer serves /metrics and /healthz until the context ends.
func startMetricsServer(ctx context.Context, listen string, m *metrics.Metrics, b *bridge.Bridge, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := b.HealthCheck(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("metrics listener started", "listen", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics listener failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics listener shutdown", "error", err)
		}
	}()
}

// logSink is the default cloud-facing collaborator: it records what would
// be forwarded. Deployments integrating a cloud client replace this with
// a real CommandSink implementation.
type logSink struct {
	log *logging.Logger
}

func (s *logSink) SendCommand(_ context.Context, ev command.ChangeMode) error {
	s.log.Info("change_mode event",
		"device_id", ev.DeviceID,
		"stations", len(ev.Stations),
		"timestamp", ev.Timestamp)
	return nil
}

func (s *logSink) RequestRefresh(context.Context) error {
	s.log.Info("device refresh requested")
	return nil
}
