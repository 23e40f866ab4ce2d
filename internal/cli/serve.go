package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rizaldy/kanal/internal/config"
	"github.com/rizaldy/kanal/internal/logger"
	"github.com/rizaldy/kanal/internal/observability"
	"github.com/rizaldy/kanal/internal/tracing"
	"github.com/rizaldy/kanal/pkg/cron"
	"github.com/rizaldy/kanal/pkg/lanequeue"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the kanal scheduler daemon",
	Long: `Run the scheduler in the foreground: lane queue, optional cron job
service, optional Prometheus metrics endpoint, and config hot reload.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	lg, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer lg.Close()

	if err := tracing.InitOpenTelemetry("kanal"); err != nil {
		log.Warn().Err(err).Msg("Tracing init failed, continuing without traces")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.ShutdownOpenTelemetry(shutdownCtx)
	}()

	queue := lanequeue.New(cfg.Queue.LaneQueue())
	defer queue.Close()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		metricsServer = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			log.Info().Str("listen", cfg.Metrics.Listen).Msg("Metrics endpoint started")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("Metrics endpoint failed")
			}
		}()
	}

	var cronService *cron.Service
	if cfg.Cron.Enabled {
		cronService, err = cron.NewService(cron.ServiceOptions{
			StorePath: cfg.Cron.StorePath,
			Queue:     queue,
			Runner:    tickRunner,
		})
		if err != nil {
			return fmt.Errorf("failed to start cron service: %w", err)
		}
		defer cronService.Stop()
	}

	watcher, err := startConfigWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("Config watcher unavailable, hot reload disabled")
	} else if watcher != nil {
		defer watcher.Stop()
	}

	statusTicker := time.NewTicker(60 * time.Second)
	defer statusTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Str("version", version).Msg("Kanal daemon started")

	for {
		select {
		case <-statusTicker.C:
			log.Debug().Msg(queue.FormatStatus())
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("Shutting down")
			if metricsServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = metricsServer.Shutdown(shutdownCtx)
				cancel()
			}
			return nil
		}
	}
}

// tickRunner is the daemon's job runner: it logs the fired job. Library
// consumers embed the cron service with their own runner instead.
func tickRunner(ctx context.Context, job cron.Job) (interface{}, error) {
	log.Info().
		Str("job_id", job.ID).
		Str("name", job.Name).
		Str("lane", job.Lane).
		Msg("Cron job fired")
	return nil, nil
}

// startConfigWatcher wires hot reload for the settings that can change at
// runtime. Queue limits are fixed at construction; only the log level is
// applied live.
func startConfigWatcher() (*config.Watcher, error) {
	path := cfgFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".kanal", "kanal.json")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	watcher, err := config.NewWatcher(path, 0, func(cfg *config.Config) {
		if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			zerolog.SetGlobalLevel(level)
			log.Info().Str("level", cfg.Logging.Level).Msg("Log level applied")
		}
		log.Debug().Msg("Queue settings take effect on restart")
	})
	if err != nil {
		return nil, err
	}
	if err := watcher.Start(); err != nil {
		return nil, err
	}
	return watcher, nil
}
