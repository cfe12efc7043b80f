// File: main.go

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"ammeter-tester/pkg/config"
	"ammeter-tester/pkg/connectivity"
	"ammeter-tester/pkg/database"
	"ammeter-tester/pkg/influx"
	"ammeter-tester/pkg/metrics"
	"ammeter-tester/pkg/models"
	"ammeter-tester/pkg/results"
	"ammeter-tester/pkg/server"
	"ammeter-tester/pkg/tester"
)

var (
	debugFlag   bool
	configFile  string
	metricsAddr string
	logger      *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ammeter-tester",
	Short: "A tool for testing and comparing ammeters",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Set up logging based on the debug flag
		var logLevel slog.Level
		if debugFlag {
			logLevel = slog.LevelDebug
		} else {
			logLevel = slog.LevelInfo
		}

		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
		slog.SetDefault(logger)
	},
}

var runCmd = &cobra.Command{
	Use:     "run [type...]",
	Short:   "Run a full test on each ammeter type",
	Long:    `Sample, analyse and store the results of each given ammeter type. Without arguments every configured ammeter is tested.`,
	Example: "run greenlee entes",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := loadConfig()
		framework, cleanup := newFramework(ctx, cfg)
		defer cleanup()

		deviceTypes := args
		if len(deviceTypes) == 0 {
			deviceTypes = cfg.DeviceTypes()
		}

		failed := false
		for _, deviceType := range deviceTypes {
			bundle, err := framework.RunTest(ctx, deviceType)
			if err != nil {
				logger.Error("Test failed", "ammeter", deviceType, "error", err)
				failed = true
				continue
			}
			printSummary(bundle)
		}

		if failed {
			cleanup()
			os.Exit(1)
		}
		logger.Info("Tests completed successfully", "test_id", framework.TestID())
	},
}

var compareCmd = &cobra.Command{
	Use:     "compare [type...]",
	Short:   "Compare the accuracy of ammeter types",
	Example: "compare greenlee entes circutor --format yaml",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		format, _ := cmd.Flags().GetString("format")
		if format != "json" && format != "yaml" {
			logger.Error("Invalid output format. Must be 'json' or 'yaml'", "format", format)
			os.Exit(1)
		}

		cfg := loadConfig()
		framework, cleanup := newFramework(ctx, cfg)
		defer cleanup()

		report, _, err := framework.CompareAccuracy(ctx, args)
		if err != nil {
			logger.Error("Error comparing ammeters", "error", err)
			cleanup()
			os.Exit(1)
		}

		if err := writeReport(os.Stdout, report, format); err != nil {
			logger.Error("Error writing report", "error", err)
			os.Exit(1)
		}
	},
}

var checkCmd = &cobra.Command{
	Use:   "check [type...]",
	Short: "Check that ammeters are reachable",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := loadConfig()

		names := args
		if len(names) == 0 {
			names = cfg.DeviceTypes()
		}
		devices := make([]config.Device, 0, len(names))
		for _, name := range names {
			device, err := cfg.Device(name)
			if err != nil {
				logger.Error("Unknown ammeter", "error", err)
				os.Exit(1)
			}
			devices = append(devices, device)
		}

		failed := false
		enc := json.NewEncoder(os.Stdout)
		for _, report := range connectivity.ProbeAll(ctx, devices, cfg.Testing.RequestTimeout) {
			if err := enc.Encode(report); err != nil {
				logger.Error("Error writing report", "error", err)
				os.Exit(1)
			}
			if !report.IsSuccess() {
				logger.Warn("Ammeter unreachable", "ammeter", report.Ammeter, "error", report.Error.Msg)
				failed = true
			}
		}

		if failed {
			os.Exit(1)
		}
	},
}

var emulateCmd = &cobra.Command{
	Use:   "emulate",
	Short: "Start emulators for the configured ammeters",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := loadConfig()

		var binds []server.Bind
		for _, name := range cfg.DeviceTypes() {
			device, _ := cfg.Device(name)
			e, ok := server.Profile(name)
			if !ok {
				logger.Warn("No emulator profile for ammeter, skipping", "ammeter", name)
				continue
			}
			e.Command = device.Command
			e.Logger = logger
			binds = append(binds, server.Bind{Emulator: &e, Addr: device.Endpoint()})
		}

		if len(binds) == 0 {
			logger.Error("No ammeters to emulate")
			os.Exit(1)
		}

		if err := server.Run(ctx, binds); err != nil {
			logger.Error("Emulator failed", "error", err)
			os.Exit(1)
		}
		logger.Info("Emulators stopped")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default searches for config.yaml)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address, e.g. :9090")
	compareCmd.Flags().StringP("format", "f", "json", "Report format: json or yaml")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(emulateCmd)
}

func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Printf("Error reading .env file: %v\n", err)
		os.Exit(1)
	}

	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("AMMETER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("../")
		viper.AddConfigPath("$HOME/.ammeter-tester")
		viper.AddConfigPath("/etc/ammeter-tester/")
	}

	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.ListenAddress
	}
	return cfg
}

// newFramework wires the configured sinks and metrics into a test framework.
// The returned cleanup releases every sink.
func newFramework(ctx context.Context, cfg *config.Config) (*tester.Framework, func()) {
	var (
		closers []func()
		once    sync.Once
	)
	cleanup := func() {
		once.Do(func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		})
	}

	sinks := []tester.Sink{results.NewFileStore(cfg.ResultManagement.SavePath, logger)}

	if cfg.ResultManagement.Database.Driver != "" {
		db, err := initDB(ctx, cfg.ResultManagement.Database)
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		closers = append(closers, func() { db.Close() })
		sinks = append(sinks, db)
	}

	if cfg.ResultManagement.InfluxDB.URL != "" {
		w := influx.NewWriter(cfg.ResultManagement.InfluxDB, logger)
		closers = append(closers, w.Close)
		sinks = append(sinks, w)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sampling := metrics.NewSampling(registry)
	if metricsAddr != "" {
		closers = append(closers, serveMetrics(metricsAddr, registry))
	}

	return tester.New(cfg, logger, tester.WithSinks(sinks...), tester.WithMetrics(sampling)), cleanup
}

func initDB(ctx context.Context, cfg config.Database) (*database.DB, error) {
	db, err := database.NewDB(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return db, nil
}

func serveMetrics(addr string, registry *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Serving metrics", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func printSummary(bundle *models.ResultBundle) {
	a := bundle.Analysis
	fmt.Printf("\nResults for %s (%s samples):\n", bundle.Metadata.AmmeterType, humanize.Comma(int64(bundle.Metadata.SampleCount)))
	if a.Mean != nil {
		fmt.Printf("Mean current: %s\n", humanize.SIWithDigits(*a.Mean, 3, "A"))
	}
	if a.StdDev != nil {
		fmt.Printf("Standard deviation: %s\n", humanize.SIWithDigits(*a.StdDev, 3, "A"))
	}
	if a.OutlierCount != nil {
		fmt.Printf("Outliers: %d\n", *a.OutlierCount)
	}
	if a.IsNormalDistribution != nil {
		fmt.Printf("Normally distributed: %t\n", *a.IsNormalDistribution)
	}
}

func writeReport(w io.Writer, report models.AccuracyReport, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
