package main

import (
	"flag"
	"log/slog"
	"os"
	"strings"

	"synapse/config"
	"synapse/observability/logging"
	"synapse/storage/exports"
	"synapse/storage/journal"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	outDir := flag.String("out", "", "Output directory (defaults to <DataDir>/exports)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SYNAPSE_ENV"))
	logger := logging.Setup("synapse-export", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	driver := strings.TrimSpace(cfg.Journal.Driver)
	if driver == "" {
		logger.Error("journal is not configured; nothing to export")
		os.Exit(1)
	}

	j, err := journal.Open(driver, cfg.Journal.DSN, logger)
	if err != nil {
		logger.Error("failed to open journal", slog.Any("error", err))
		os.Exit(1)
	}
	defer j.Close()

	outputDir := strings.TrimSpace(*outDir)
	if outputDir == "" {
		outputDir = cfg.DataDir + "/exports"
	}
	exporter, err := exports.NewExporter(exports.Config{
		Source:    j,
		OutputDir: outputDir,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to configure exporter", slog.Any("error", err))
		os.Exit(1)
	}

	result, err := exporter.Run()
	if err != nil {
		logger.Error("export failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("export complete", slog.String("dir", result.Dir), slog.Int("datasets", len(result.Files)))
}
