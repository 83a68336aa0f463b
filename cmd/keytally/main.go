// Package main provides the CLI entrypoint for keytally.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/keytally/keytally/internal/config"
	"github.com/keytally/keytally/internal/daemon"
	"github.com/keytally/keytally/internal/database"
	"github.com/keytally/keytally/internal/exporter"
	"github.com/keytally/keytally/internal/logging"
	"github.com/keytally/keytally/internal/reporter"
	"github.com/keytally/keytally/pkg/detector"
	"github.com/keytally/keytally/pkg/utils"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

const appName = "keytally"

var (
	configPath string

	runPort          int
	runNoWeb         bool
	runFlushInterval time.Duration

	reportJSON bool

	exportFormat string
	exportRange  string
	exportOut    string

	clearYes bool

	probeCapture time.Duration
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "Keyboard and mouse activity counter",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: "+config.DefaultFilePath()+")")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newClearCmd())
	rootCmd.AddCommand(newProbeCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openRepository(cfg *config.Config) (*database.Repository, func(), error) {
	db, err := database.Connect(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Initialize(); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return database.NewRepository(db), func() { _ = db.Close() }, nil
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tracker in the foreground",
		Args:  cobra.NoArgs,
		RunE:  runTracker,
	}
	cmd.Flags().IntVar(&runPort, "port", 0, "web API port (overrides config)")
	cmd.Flags().BoolVar(&runNoWeb, "no-web", false, "do not serve the web API")
	cmd.Flags().DurationVar(&runFlushInterval, "flush-interval", 0, "how often buffered counts are written (1s-300s)")
	return cmd
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the tracker in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			dm := daemon.New(cfg.Daemon.PIDFile)
			running, pid, err := dm.IsRunning()
			if err != nil {
				return fmt.Errorf("failed to check daemon status: %w", err)
			}
			if running {
				return fmt.Errorf("daemon is already running (PID: %d)", pid)
			}

			logPath := cfg.Logging.Path
			if logPath == "" {
				logPath = logging.DefaultPath()
			}

			args := []string{"run"}
			if configPath != "" {
				args = append(args, "--config", configPath)
			}
			pid, err = daemon.Spawn(args, logPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon started successfully (PID: %d)\n", pid)
			if cfg.Web.Enabled {
				fmt.Fprintf(out, "Web API available at: http://%s\n", cfg.WebAddr())
			}
			fmt.Fprintf(out, "Logs: %s\n", logPath)
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background tracker, flushing buffered counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			dm := daemon.New(cfg.Daemon.PIDFile)
			running, pid, err := dm.IsRunning()
			if err != nil {
				return fmt.Errorf("failed to check daemon status: %w", err)
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}

			shutdownURL := ""
			if cfg.Web.Enabled {
				shutdownURL = "http://" + cfg.WebAddr() + "/api/shutdown"
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Stopping daemon (PID: %d)...\n", pid)
			if err := dm.Stop(cmd.Context(), shutdownURL, 10*time.Second); err != nil {
				return fmt.Errorf("failed to stop daemon: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped successfully")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status, today's totals and the foreground app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			dm := daemon.New(cfg.Daemon.PIDFile)
			running, pid, err := dm.IsRunning()
			if err != nil {
				return fmt.Errorf("failed to check daemon status: %w", err)
			}

			if !running {
				fmt.Fprintln(out, "Status: Not running")
			} else {
				fmt.Fprintf(out, "Status: Running (PID: %d)\n", pid)
				if cfg.Web.Enabled {
					printLiveStatus(cmd.Context(), out, cfg)
				}
			}

			repo, closeDB, err := openRepository(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			today, err := repo.TodayTotals()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "\nToday (persisted):")
			if today == nil {
				fmt.Fprintln(out, "  No activity recorded yet.")
			} else {
				fmt.Fprintf(out, "  Keystrokes:     %s\n", utils.FormatCount(today.KeyCount))
				fmt.Fprintf(out, "  Mouse clicks:   %s\n", utils.FormatCount(today.MouseClickCount))
				fmt.Fprintf(out, "  Mouse distance: %s\n", utils.FormatDistance(today.MouseDistance))
				fmt.Fprintf(out, "  Scroll notches: %.0f\n", today.ScrollDistance)
			}

			det, err := detector.New()
			if err != nil {
				fmt.Fprintf(out, "\nCould not detect current window: %v\n", err)
				return nil
			}
			defer det.Close()

			if pid, err := det.ForegroundPID(); err == nil {
				if app, err := det.ProcessInfo(pid); err == nil {
					fmt.Fprintf(out, "\nCurrent Window:\n")
					fmt.Fprintf(out, "  App: %s\n", app.Name)
					fmt.Fprintf(out, "  Executable: %s\n", app.ExePath)
					fmt.Fprintf(out, "  Platform: %s\n", det.GetPlatform())
				}
			}
			return nil
		},
	}
}

func printLiveStatus(ctx context.Context, out io.Writer, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+cfg.WebAddr()+"/api/status", nil)
	if err != nil {
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(out, "Web API unreachable: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var status struct {
		State     string `json:"state"`
		HookError string `json:"hook_error"`
		Uptime    string `json:"uptime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return
	}

	fmt.Fprintf(out, "Tracker: %s\n", status.State)
	if status.Uptime != "" {
		fmt.Fprintf(out, "Uptime: %s\n", status.Uptime)
	}
	if status.HookError != "" {
		fmt.Fprintf(out, "Input capture unavailable: %s\n", status.HookError)
	}
	fmt.Fprintf(out, "Web API: http://%s\n", cfg.WebAddr())
}

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "report [day|week|month|year|all]",
		Short:     "Print a report of recorded activity",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"day", "today", "week", "month", "year", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			periodType := "day"
			if len(args) > 0 {
				periodType = args[0]
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, closeDB, err := openRepository(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			rep := reporter.New(cfg, repo)
			report, err := rep.GenerateReport(periodType)
			if err != nil {
				return fmt.Errorf("failed to generate report: %w", err)
			}

			if reportJSON {
				jsonStr, err := rep.FormatReportJSON(report)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), jsonStr)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), rep.FormatReportText(report))
			return nil
		},
	}
	cmd.Flags().BoolVar(&reportJSON, "json", false, "print the report as JSON")
	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export statistics to CSV files or a JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := exporter.Range(exportRange, time.Now())
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, closeDB, err := openRepository(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			exp := exporter.New(repo)
			out := cmd.OutOrStdout()

			switch exportFormat {
			case "csv":
				dir := exportOut
				if dir == "" {
					dir = "."
				}
				paths, err := exp.ExportAllCSV(dir, start, end)
				for _, p := range paths {
					fmt.Fprintf(out, "Wrote %s\n", p)
				}
				return err

			case "json":
				path := exportOut
				if path == "" {
					path = fmt.Sprintf("keytally_export_%s.json", time.Now().Format("20060102_150405"))
				} else if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
					path = filepath.Join(path, fmt.Sprintf("keytally_export_%s.json", time.Now().Format("20060102_150405")))
				}
				if err := exp.ExportJSON(path, start, end); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %s\n", path)
				return nil

			default:
				return fmt.Errorf("invalid format: %s (valid: csv, json)", exportFormat)
			}
		},
	}
	cmd.Flags().StringVar(&exportFormat, "format", "csv", "csv or json")
	cmd.Flags().StringVar(&exportRange, "range", "all", "today, week, month, year or all")
	cmd.Flags().StringVarP(&exportOut, "out", "o", "", "output directory (csv) or file (json)")
	return cmd
}

func newClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !clearYes {
				fmt.Fprint(cmd.OutOrStdout(), "This will delete all tracking data. Are you sure? (yes/no): ")
				response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				response = strings.ToLower(strings.TrimSpace(response))
				if response != "yes" && response != "y" {
					fmt.Fprintln(cmd.OutOrStdout(), "Operation cancelled")
					return nil
				}
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, closeDB, err := openRepository(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := repo.Clear(); err != nil {
				return fmt.Errorf("failed to clear database: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Database cleared successfully")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Write the default config file if missing and print the effective config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configPath
			if path == "" {
				path = config.DefaultFilePath()
			}

			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				if err := config.WriteFile(path, config.Default()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			} else if err != nil {
				return fmt.Errorf("failed to stat config: %w", err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "File: %s\n%s\n", path, cfg.String())
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s version %s\n", appName, version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}
