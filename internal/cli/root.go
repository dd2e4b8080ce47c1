// Package cli implements the grant-assistant commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"grant-assistant/internal/app"
	"grant-assistant/internal/common/config"
	apperrors "grant-assistant/internal/common/errors"
	"grant-assistant/internal/common/logger"
	"grant-assistant/internal/common/observability"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	metricsAddr string
	logLevel    string
)

// errReported marks a failure whose message was already printed.
var errReported = errors.New("reported")

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "grant-assistant",
	Short:         "Guided drafting of EU grant applications",
	Long:          "Collects project facts through a validated conversation, selects a grant template and populates it.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: configs/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := RootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		return 1
	}
	return 0
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

// runWithApp loads configuration, starts the assistant and runs fn as the
// named command. Failures are normalized, logged and printed once.
func runWithApp(cmd *cobra.Command, name string, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer log.Sync()
	handler := apperrors.NewErrorHandler(log)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		log.Warn("observability disabled", map[string]interface{}{"error": err.Error()})
	}
	defer obs.Shutdown()

	stopMetrics := serveMetrics(cfg, log)
	defer stopMetrics()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, handler.Handle("startup", err))
		return errReported
	}
	defer a.Close()

	err = obs.Track(ctx, name, func() error {
		if err := a.Start(ctx); err != nil {
			return err
		}
		return fn(ctx, a)
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, handler.Handle(name, err))
		return errReported
	}
	return nil
}

// serveMetrics exposes promhttp when an address is given on the command line
// or enabled in config.
func serveMetrics(cfg *config.Config, log logger.Logger) func() {
	addr := metricsAddr
	if addr == "" && cfg.Metrics.Enabled {
		addr = cfg.Metrics.Address
	}
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", map[string]interface{}{"error": err.Error(), "address": addr})
		}
	}()
	log.Info("metrics server listening", map[string]interface{}{"address": addr})

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

// readInput reads a file, or stdin when path is "-" or empty.
func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// writeOutput writes data to a file, or stdout when path is empty.
func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(path, data, 0644)
}
