package main

import (
	"clipboard-history/internal/clipboard"
	"clipboard-history/internal/config"
	"clipboard-history/internal/logging"
	"clipboard-history/internal/metrics"
	"clipboard-history/internal/server"
	"clipboard-history/internal/service"
	"clipboard-history/internal/storage"
	"clipboard-history/internal/storage/sqlite"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "clipboard-history: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("clipboard-history", pflag.ExitOnError)
	configDir := fs.String("config-dir", "", "Directory holding config.yaml (default: ~/.clipboard-history)")
	verbose := fs.BoolP("verbose", "v", false, "Enable verbose console logging")
	config.RegisterFlags(fs)
	fs.Parse(os.Args[1:])

	loader := config.NewLoader(*configDir)
	if err := loader.BindFlags(fs); err != nil {
		return err
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	logCfg := logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}
	if *verbose {
		logCfg = logging.Config{Level: "debug", Format: "console"}
	}
	if err := logging.Init(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()
	log := logging.L()

	// Initialize storage
	store, err := sqlite.New(storage.Config{
		Dir:      cfg.Storage.Path,
		MaxItems: cfg.Storage.MaxItems,
	}, sqlite.WithEvictionHook(metrics.RecordEvicted))
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	// Initialize monitor
	capturers := clipboard.DefaultCapturers()
	if cfg.Capture.ExtraTypes {
		capturers = clipboard.ExtendedCapturers(store.MediaDir())
	}

	source, err := clipboard.NewSystemSource()
	if err != nil {
		log.Warn("system clipboard unavailable, capture disabled", zap.Error(err))
	}
	monitor := clipboard.NewMonitor(source, store,
		clipboard.WithCapturers(capturers...),
		clipboard.WithInterval(cfg.Monitor.PollInterval),
	)

	clipService := service.New(monitor, store)
	if source != nil {
		if err := clipService.Start(); err != nil {
			return err
		}
	}

	var apiServer *server.Server
	if cfg.Server.Enabled {
		apiServer = server.New(clipService, server.Config{
			Port:    cfg.Server.Port,
			PIDDir:  loader.Dir(),
			Replace: cfg.Server.Replace,
		})
		if err := apiServer.Start(); err != nil {
			clipService.Stop()
			return fmt.Errorf("failed to start local API: %w", err)
		}
	}

	// Only an edit of max_items itself replaces the cap, so a value set
	// through the API is not reverted by unrelated config changes.
	configuredMax := cfg.Storage.MaxItems
	watching := loader.Watch(func(next *config.Config, e fsnotify.Event) {
		log.Info("config file changed", zap.String("file", e.Name))
		logging.SetLevel(next.Log.Level)
		if next.Storage.MaxItems > 0 && next.Storage.MaxItems != configuredMax {
			if err := clipService.SetMaxItems(context.Background(), next.Storage.MaxItems); err != nil {
				log.Error("failed to apply max_items", zap.Error(err))
			}
		}
		configuredMax = next.Storage.MaxItems
	}, func(err error) {
		log.Warn("ignoring invalid config change", zap.Error(err))
	})

	log.Info("clipboard history started",
		zap.String("storage", store.Path()),
		zap.Int("max_items", store.MaxItems()),
		zap.Bool("capturing", source != nil),
		zap.Bool("extra_types", cfg.Capture.ExtraTypes),
		zap.Bool("watching_config", watching),
	)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	var errs []error
	if apiServer != nil {
		errs = append(errs, apiServer.Stop())
	}
	errs = append(errs, clipService.Stop())
	return errors.Join(errs...)
}
