package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/keytally/keytally/internal/config"
	"github.com/keytally/keytally/internal/daemon"
	"github.com/keytally/keytally/internal/logging"
	"github.com/keytally/keytally/internal/metrics"
	"github.com/keytally/keytally/internal/tracker"
	"github.com/keytally/keytally/internal/web"
	"github.com/keytally/keytally/pkg/detector"
	"github.com/keytally/keytally/pkg/hook"
	"github.com/keytally/keytally/pkg/window"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func runTracker(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlushInterval != 0 {
		if err := cfg.SetFlushInterval(runFlushInterval); err != nil {
			return err
		}
	}
	if runPort != 0 {
		if err := cfg.SetWebPort(runPort); err != nil {
			return err
		}
	}
	if runNoWeb {
		cfg.Web.Enabled = false
	}
	if daemon.IsChild() && cfg.Logging.Path == "" {
		cfg.Logging.Path = logging.DefaultPath()
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	dm := daemon.New(cfg.Daemon.PIDFile)
	running, pid, err := dm.IsRunning()
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running && pid != os.Getpid() {
		return fmt.Errorf("daemon is already running (PID: %d)", pid)
	}
	if err := dm.WritePID(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer func() {
		if err := dm.RemovePID(); err != nil {
			logger.Warn("failed to remove PID file", zap.Error(err))
		}
	}()

	repo, closeDB, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	det := openDetector(logger)
	defer func() { _ = det.Close() }()

	m := metrics.New()
	bridge := hook.NewBridge(logger)
	svc := tracker.NewService(cfg, repo, det, bridge,
		tracker.WithLogger(logger),
		tracker.WithMetrics(m),
	)

	logger.Info("starting keytally",
		zap.String("version", version),
		zap.String("platform", det.GetPlatform()),
		zap.String("config", cfg.String()),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(); err != nil {
		// Inert: the API keeps serving persisted data.
		logger.Error("tracker did not start", zap.Error(err))
		if !cfg.Web.Enabled {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	var server *web.Server
	if cfg.Web.Enabled {
		handler := web.NewHandler(cfg, repo, svc, logger.Named("web"))
		handler.SetMetrics(m.Handler())
		handler.SetShutdown(stop)
		server = web.NewServer(cfg, handler, 0, logger.Named("web"))

		g.Go(func() error {
			if err := server.Start(); err != nil {
				return fmt.Errorf("web server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		return shutdown(server, svc)
	})

	if err := g.Wait(); err != nil {
		logger.Error("keytally stopped with error", zap.Error(err))
		return err
	}
	logger.Info("keytally stopped")
	return nil
}

// shutdown stops the web server, then the tracker, which flushes once more.
func shutdown(server *web.Server, svc *tracker.Service) error {
	var errs error

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		errs = multierr.Append(errs, server.Shutdown(ctx))
	}

	if err := svc.Stop(); err != nil && !errors.Is(err, tracker.ErrNotRunning) {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// openDetector returns the platform detector, or a fallback that attributes
// everything to the unknown app when none is available.
func openDetector(logger *zap.Logger) window.Detector {
	det, err := detector.New()
	if err != nil {
		logger.Warn("foreground window detection unavailable", zap.Error(err))
		return detector.Fallback()
	}
	return det
}

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check window detection, display metrics and input capture on this system",
		Args:  cobra.NoArgs,
		RunE:  runProbe,
	}
	cmd.Flags().DurationVar(&probeCapture, "capture", 0, "capture input for this long and print event counts")
	return cmd
}

func runProbe(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	logger := logging.OrNop(nil)

	fmt.Fprintf(out, "Display server: %s\n", detector.DetectDisplayServer())

	det := openDetector(logger)
	defer func() { _ = det.Close() }()
	fmt.Fprintf(out, "Detector: %s\n", det.GetPlatform())

	screen := tracker.MeasureScreen(det, logger)
	fmt.Fprintf(out, "Display: %dx%d px, %dx%d mm, %.2f px/mm", screen.WidthPx, screen.HeightPx, screen.WidthMM, screen.HeightMM, screen.PxPerMm)
	if screen.Fallback {
		fmt.Fprint(out, " (estimated)")
	}
	fmt.Fprintln(out)

	resolver := tracker.NewResolver(det, config.Default().Tracker.AppCheckInterval, nil)
	app := resolver.ActiveApp()
	fmt.Fprintf(out, "Foreground: %s (pid %d)\n", app.Name, app.PID)
	if app.Name != window.UnknownApp {
		fmt.Fprintf(out, "  Friendly name: %s\n", resolver.FriendlyName(app.Name, app.ExePath))
		fmt.Fprintf(out, "  Executable: %s\n", app.ExePath)
	}

	if probeCapture <= 0 {
		return nil
	}
	return captureInput(cmd.Context(), out, logger, probeCapture)
}

func captureInput(ctx context.Context, out io.Writer, logger *zap.Logger, d time.Duration) error {
	var (
		mu     sync.Mutex
		counts = map[string]int{}
	)
	sink := hook.SinkFunc(func(ev hook.Event) {
		var kind string
		switch e := ev.(type) {
		case hook.KeyPress:
			kind = "key"
		case hook.MouseMove:
			kind = "move"
		case hook.MouseClick:
			kind = "click " + e.Button.String()
		case hook.MouseScroll:
			kind = "scroll"
		}
		mu.Lock()
		counts[kind]++
		mu.Unlock()
	})

	bridge := hook.NewBridge(logger)
	if err := bridge.Start(sink); err != nil {
		return fmt.Errorf("input capture unavailable: %w", err)
	}
	fmt.Fprintf(out, "Capturing input for %s...\n", d)

	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
	if err := bridge.Stop(); err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	for _, kind := range []string{"key", "move", "click left", "click right", "click middle", "click x1", "click x2", "scroll"} {
		if n := counts[kind]; n > 0 {
			fmt.Fprintf(out, "  %-12s %d\n", kind, n)
		}
	}
	c := bridge.Counters()
	fmt.Fprintf(out, "  delivered %d, injected dropped %d, recovered panics %d\n", c.Delivered(), c.Injected(), c.Panics())
	return nil
}
