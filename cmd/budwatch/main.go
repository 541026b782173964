// budwatch watches for Bluetooth LE earbuds and reports their battery state.
//
// It scans passively for advertisements, tracks the status of the earbuds it
// recognizes, and fans every status change out to the enabled collaborators:
// the BlueZ battery provider, MPRIS auto play/pause, the tray indicator, the
// SQLite sighting journal and the MQTT publisher. Configuration is loaded
// from a YAML file discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	budwatch [-config path] [run]       Scan and publish until interrupted
//	budwatch [-config path] history [N] Print the N most recent journal entries
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"budwatch/internal/ble"
	"budwatch/internal/bluez"
	"budwatch/internal/config"
	"budwatch/internal/history"
	"budwatch/internal/indicator"
	"budwatch/internal/media"
	"budwatch/internal/mqtt"
	"budwatch/internal/podstate"
	"budwatch/internal/scan"
)

func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, level, cfg.LogFormat)
	slog.SetDefault(logger)

	switch command {
	case "", "run":
		return runDaemon(ctx, logger, cfg, cfgPath)
	case "history":
		limit := 20
		if len(cmdArgs) > 0 {
			n, err := strconv.Atoi(cmdArgs[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid history limit %q", cmdArgs[0])
			}
			limit = n
		}
		return runHistory(ctx, stdout, cfg, limit)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	_, err := fmt.Fprint(w, `Usage: budwatch [-config path] [command]

Commands:
  run            Scan for earbuds and publish their status (default)
  history [N]    Print the N most recent journal entries (default 20)
`)
	return err
}

// runDaemon wires the tracker to every enabled collaborator and scans until
// ctx is cancelled by a signal or the tray's Quit item.
func runDaemon(ctx context.Context, logger *slog.Logger, cfg *config.Config, cfgPath string) error {
	if cfgPath != "" {
		logger.Info("config loaded", "path", cfgPath)
	} else {
		logger.Info("no config file found, using defaults")
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src, err := newSource(cfg.Scanner)
	if err != nil {
		return fmt.Errorf("create advertisement source: %w", err)
	}
	defer src.Close()

	classifier := ble.NewClassifier(cfg.Classifier.Keywords)
	tracker := podstate.NewTracker(classifier, logger.With("component", "tracker"))
	session := scan.NewSession(src, tracker, scan.Options{RetryInterval: cfg.Scanner.RetryInterval()},
		logger.With("component", "scan"))

	if cfg.BlueZBattery.Enabled {
		provider, err := bluez.NewBatteryProvider(cfg.Scanner.Adapter, classifier, logger.With("component", "bluez"))
		if err != nil {
			logger.Warn("BlueZ battery provider unavailable, battery won't appear in system settings", "error", err)
		} else {
			defer provider.Close()
			tracker.RegisterCallback(provider.HandleStatus)
		}
	}

	if cfg.Media.AutoPlay {
		player, err := media.NewMPRIS()
		if err != nil {
			logger.Warn("media control unavailable", "error", err)
		} else {
			defer player.Close()
			tracker.RegisterCallback(media.NewAutoPlay(player, logger.With("component", "media")).HandleStatus)
		}
	}

	if cfg.Tray.Enabled {
		tray := indicator.New(
			func() { tracker.SimulateConnection() },
			cancel,
			logger.With("component", "indicator"),
		)
		tray.Start()
		defer tray.Stop()
		tracker.RegisterCallback(tray.HandleStatus)
	}

	if cfg.History.Enabled {
		store, err := history.Open(cfg.HistoryPath())
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()

		// Deferred after store.Close, so the queue (final disconnect
		// included) is flushed before the store closes.
		recorder := history.NewRecorder(store, session.ID, logger.With("component", "history"))
		recorder.Start()
		defer recorder.Close()
		tracker.RegisterCallback(recorder.HandleStatus)
	}

	var wg sync.WaitGroup
	if cfg.MQTT.Enabled {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.ResolvedDataDir())
		if err != nil {
			return fmt.Errorf("load mqtt instance id: %w", err)
		}
		publisher := mqtt.New(cfg.MQTT, instanceID, logger.With("component", "mqtt"))
		tracker.RegisterCallback(publisher.HandleStatus)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := publisher.Start(ctx); err != nil {
				logger.Error("mqtt publisher failed", "error", err)
			}
		}()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := publisher.Stop(stopCtx); err != nil {
				logger.Warn("mqtt disconnect failed", "error", err)
			}
		}()
	}

	logger.Info("budwatch started", "backend", cfg.Scanner.Backend, "adapter", cfg.Scanner.Adapter)

	err = session.Run(ctx)
	cancel()
	wg.Wait()

	stats := session.Stats()
	logger.Info("budwatch stopped",
		"session", stats.SessionID,
		"seen", stats.Seen,
		"updates", stats.Updates,
		"suppressed", stats.Suppressed,
		"restarts", stats.Restarts)
	return err
}

func runHistory(ctx context.Context, w io.Writer, cfg *config.Config, limit int) error {
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	entries, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No sightings recorded.")
		return err
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s  %s  %s\n", e.Time.Local().Format(time.DateTime), e.SessionID, e.Status); err != nil {
			return err
		}
	}
	return nil
}

func newSource(cfg config.ScannerConfig) (ble.Source, error) {
	switch cfg.Backend {
	case config.BackendAdapter:
		return ble.NewAdapterScanner(cfg.Adapter), nil
	default:
		return ble.NewScanner(cfg.Adapter)
	}
}

// newLogger creates a structured logger writing to w at the given level.
// Format is "json" for JSON output or anything else for text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates, parses and validates the configuration. A missing
// config file is not an error: the defaults are used and the returned path
// is empty.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		cfg := config.Default()
		return cfg, "", cfg.Validate()
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("config file %s not found", cfgPath)
		}
		return nil, "", fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}
