package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/proctord/internal/detect"
	"github.com/user/proctord/internal/extract"
	"github.com/user/proctord/internal/janitor"
	"github.com/user/proctord/internal/monitor"
	"github.com/user/proctord/internal/notify"
	"github.com/user/proctord/internal/report"
	"github.com/user/proctord/internal/state"
	"github.com/user/proctord/internal/types"
	"github.com/user/proctord/internal/ws"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proctord daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "proctord.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Write PID file
	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// Stores
	profiles := state.NewProfileStore()
	registry := state.NewRegistry()
	events := state.NewEventLog()

	// Report generator
	reports, err := report.NewGenerator(cfg.ReportsDir)
	if err != nil {
		return fmt.Errorf("create report generator: %w", err)
	}

	// Feature extractors: remote services when configured, degrading
	// fallbacks otherwise.
	var vision types.VisionExtractor = extract.NullVision{}
	if cfg.Vision.Endpoint != "" {
		vision = extract.NewRemoteVision(cfg.Vision.Endpoint)
	} else {
		slog.Warn("vision extractor disabled (assuming one centered face)")
	}
	var audio types.AudioExtractor = extract.NullAudio{}
	audioReady := cfg.Audio.Endpoint != ""
	if audioReady {
		audio = extract.NewRemoteAudio(cfg.Audio.Endpoint)
	} else {
		slog.Warn("audio extractor disabled (voice matching off)")
	}

	// Monitoring core
	detector := detect.New(cfg.Limits)
	mon := monitor.New(registry, profiles, events, detector, reports)
	mon.AddNotifier(notify.Log{})
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return fmt.Errorf("create telegram notifier: %w", err)
		}
		mon.AddNotifier(tg)
		slog.Info("telegram notifier enabled")
	} else {
		slog.Warn("telegram notifier disabled (no token or chat)")
	}

	// Dispatcher
	dispatcher := monitor.NewDispatcher(int64(cfg.MaxConcurrent))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	// Retention sweep
	sweeper := janitor.New(registry, events, reports, time.Duration(cfg.RetentionMinutes)*time.Minute)
	if err := sweeper.Start(cfg.SweepSchedule); err != nil {
		return fmt.Errorf("start retention sweep: %w", err)
	}
	defer sweeper.Stop()

	// HTTP + websocket server
	srv := ws.NewServer(ws.Deps{
		Monitor:        mon,
		Dispatcher:     dispatcher,
		Profiles:       profiles,
		Registry:       registry,
		Events:         events,
		Reports:        reports,
		Vision:         vision,
		Audio:          audio,
		AudioReady:     audioReady,
		Questions:      cfg.Questions,
		ExtractTimeout: time.Duration(cfg.ExtractTimeoutMS) * time.Millisecond,
	})
	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: srv.Handler(),
	}
	go func() {
		slog.Info("server started", "listen", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		httpServer.Close()
	}()

	slog.Info("proctord started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"listen", cfg.Listen,
		"max_concurrent", cfg.MaxConcurrent,
		"warning_limit", cfg.Limits.WarningLimit,
		"reports_dir", cfg.ReportsDir,
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// Clean up PID file before re-exec
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				// Re-write PID file since we failed to re-exec
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}
