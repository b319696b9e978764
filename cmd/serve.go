package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"timekeep/internal/arbiter"
	"timekeep/internal/clock"
	"timekeep/internal/display"
	"timekeep/internal/engine"
	"timekeep/internal/httpapi"
	"timekeep/internal/machine"
	"timekeep/internal/probe"
	"timekeep/internal/recorder"
	"timekeep/internal/status"
	"timekeep/internal/store"
	"timekeep/internal/tabqueue"
)

var serveEcho bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracking daemon",
	Long: `Run the activity tracking daemon: the window probe, the browser tab
ingest endpoint, the heartbeat poller with sleep detection, and the
dashboard HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		clk := clock.NewSystem(loc)
		logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

		st, err := store.Open(cfg.DBPath, cfg.FlushInterval(), logger)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer func() {
			if err := st.Close(); err != nil {
				logger.Error("store close failed", slog.Any("error", err))
			}
		}()

		rec := recorder.New(st.Programs(), st.Tabs(), logger)
		mach := machine.New(cfg.BrowserProcesses)
		container := engine.NewContainer(cfg.EngineTick(), logger)
		arb := arbiter.New(mach, container, rec, logger)
		if serveEcho {
			arb.AddDisplay(display.NewConsole(os.Stdout))
		}

		detector := status.NewDetector(cfg.StatusPoll(), cfg.SleepMargin, arb, st, logger)
		poller := status.NewPoller(clk, st, detector, cfg.StatusPoll(), logger)
		if err := poller.Start(); err != nil {
			return fmt.Errorf("failed to start heartbeat poller: %w", err)
		}

		queue := tabqueue.New(cfg.TabDebounce(), cfg.TabTransience(), cfg.TabQueueMax,
			arb, cfg.ProductiveDomain, logger)

		watcher := probe.NewWatcher(foregroundHook(), arb, clk, time.Second, cfg.ProductiveExe, logger)
		if err := watcher.Start(); err != nil {
			logger.Warn("window probe disabled", slog.Any("error", err))
		}

		handler := httpapi.NewHandler(st, queue, arb, clk, logger)
		server := &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      handler.Router(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		errCh := make(chan error, 1)
		go func() {
			logger.Info("listening", slog.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			return fmt.Errorf("server crashed: %w", err)
		}

		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", slog.Any("error", err))
		}
		watcher.Stop()
		queue.Flush()
		if err := arb.FlushAndReset(clk.Now()); err != nil {
			logger.Error("final session flush failed", slog.Any("error", err))
		}
		poller.Stop()
		return nil
	},
}

// foregroundHook returns the platform's focused-window probe. None of
// the supported builds ship one yet; the tab ingest endpoint and any
// external window hook drive the arbiter instead.
func foregroundHook() probe.Foreground {
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveEcho, "echo", false, "Print each session change to stdout")
}
