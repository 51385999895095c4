package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/redacted/internal/audit"
	"github.com/raaihank/redacted/internal/batch"
	"github.com/raaihank/redacted/internal/catalog"
	"github.com/raaihank/redacted/internal/config"
	"github.com/raaihank/redacted/internal/logger"
	"github.com/raaihank/redacted/internal/privacy"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Input dataset file (CSV, Parquet, or JSON lines)")
		outputFile = flag.String("output", "", "Output JSON lines file (default stdout)")
		batchSize  = flag.Int("batch-size", 0, "Records per batch (overrides config)")
		workers    = flag.Int("workers", 0, "Number of worker goroutines (overrides config)")
		withAudit  = flag.Bool("audit", false, "Record findings in the audit store")
	)
	flag.Parse()

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input dataset.csv --output redacted.jsonl\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input dataset.parquet --workers 8 --audit\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the redacted records
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Stderr: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log, *inputFile, *outputFile, *batchSize, *workers, *withAudit); err != nil {
		log.Fatal("Batch redaction failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *logger.Logger, input, output string, batchSize, workers int, withAudit bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg, err := catalog.Build(cfg.Definitions(), catalog.Options{Seed: cfg.Catalog.Seed})
	if err != nil {
		return fmt.Errorf("failed to build info type catalogue: %w", err)
	}

	redactor, err := privacy.New(cfg.Privacy, reg, log)
	if err != nil {
		return fmt.Errorf("failed to create redactor: %w", err)
	}

	var recorder batch.FindingRecorder
	if withAudit {
		store, err := audit.NewStore(audit.Config{
			DatabaseURL:     cfg.Audit.DatabaseURL,
			MaxOpenConns:    cfg.Audit.MaxOpenConns,
			MaxIdleConns:    cfg.Audit.MaxIdleConns,
			ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
		}, log.WithComponent("audit").Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize audit store: %w", err)
		}
		defer store.Close()
		recorder = store
	}

	batchConfig := batch.Config{
		BatchSize:      cfg.Batch.BatchSize,
		WorkerCount:    cfg.Batch.WorkerCount,
		MaxTextLength:  cfg.Batch.MaxTextLength,
		SkipEmpty:      cfg.Batch.SkipEmpty,
		ProgressReport: cfg.Batch.ProgressReport,
	}
	if batchSize > 0 {
		batchConfig.BatchSize = batchSize
	}
	if workers > 0 {
		batchConfig.WorkerCount = workers
	}

	var out io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	pipeline := batch.NewPipeline(redactor, recorder, batchConfig, log.WithComponent("batch").Logger)
	result, err := pipeline.ProcessFile(ctx, input, out)
	if err != nil {
		return err
	}

	summary, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	fmt.Fprintln(os.Stderr, string(summary))

	return nil
}
