package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ryanmadzima/onboarder/internal/config"
	"github.com/ryanmadzima/onboarder/internal/inventory"
	"github.com/ryanmadzima/onboarder/internal/logging"
	"github.com/ryanmadzima/onboarder/internal/mist"
	"github.com/ryanmadzima/onboarder/internal/onboard"
)

func main() {
	var (
		token      string
		orgID      string
		csvPath    string
		logLevel   string
		configPath string
		workers    int
	)

	flag.StringVar(&token, "t", "", "Mist API token")
	flag.StringVar(&token, "token", "", "Mist API token")
	flag.StringVar(&orgID, "o", "", "Mist organization ID")
	flag.StringVar(&orgID, "org", "", "Mist organization ID")
	flag.StringVar(&csvPath, "c", "", "CSV file containing switches to be onboarded")
	flag.StringVar(&csvPath, "csv", "", "CSV file containing switches to be onboarded")
	flag.StringVar(&logLevel, "l", "", "log verbosity (debug, info, warn, error)")
	flag.StringVar(&logLevel, "log-level", "", "log verbosity (debug, info, warn, error)")
	flag.StringVar(&configPath, "config", "", "optional YAML config file")
	flag.IntVar(&workers, "workers", 0, "concurrent device sessions (overrides config)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags override file and environment values.
	if token != "" {
		cfg.API.Token = token
	}
	if orgID != "" {
		cfg.API.OrgID = orgID
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if workers > 0 {
		cfg.Onboard.Workers = workers
	}

	if csvPath == "" {
		log.Fatal("Inventory CSV is required (flag -c)")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	loggers, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := run(ctx, cfg, csvPath, loggers)
	loggers.Close()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, csvPath string, loggers *logging.Loggers) int {
	logger := loggers.Progress
	logger.Info("Starting onboarding",
		slog.String("org_id", cfg.API.OrgID),
		slog.String("inventory", csvPath),
		slog.Int("workers", cfg.Onboard.Workers),
	)

	devices, err := inventory.Load(csvPath)
	if err != nil {
		logger.Error("Failed to load inventory", slog.String("error", err.Error()))
		return 1
	}
	logger.Info("Inventory loaded", slog.Int("devices", len(devices)))

	client := mist.NewClient(cfg.API, logger, loggers.Commands)
	factory := onboard.NewSSHFactory(cfg.Onboard, loggers.Commands)
	orchestrator := onboard.NewOrchestrator(factory, cfg.Onboard.Workers, logger)

	report, err := orchestrator.Onboard(ctx, client, devices)
	if err != nil {
		logger.Error("Onboarding aborted, no devices were touched",
			slog.String("error", err.Error()),
		)
		return 1
	}

	printSummary(logger, report)

	if len(report.Failed()) > 0 {
		return 1
	}
	return 0
}

func printSummary(logger *slog.Logger, report onboard.Report) {
	successful := report.Succeeded()
	failed := report.Failed()

	logger.Info(fmt.Sprintf("Successful: %d", len(successful)),
		slog.String("run_id", report.RunID),
		slog.String("devices", strings.Join(onboard.Devices(successful), ", ")),
	)
	logger.Info(fmt.Sprintf("Failed: %d", len(failed)),
		slog.String("run_id", report.RunID),
		slog.String("devices", strings.Join(onboard.Devices(failed), ", ")),
	)
	for _, st := range failed {
		logger.Error("Device failed",
			slog.String("device", st.Device),
			slog.String("error", st.Err),
		)
	}
}
