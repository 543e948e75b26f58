// Command docexport writes every completed document, with its tags, to an
// XLSX workbook.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kirillkom/dokeep/internal/config"
	"github.com/kirillkom/dokeep/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/dokeep/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/dokeep/internal/observability/logging"
)

func main() {
	output := flag.String("o", "-", "output file, - for stdout")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, "docexport", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *output, logger); err != nil {
		logger.Error("export_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, output string, logger *slog.Logger) error {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	var w io.Writer = os.Stdout
	if output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	exporter := xlsx.NewExporter(postgres.NewDocumentRepository(db), logger)
	n, err := exporter.Export(ctx, w)
	if err != nil {
		return err
	}
	logger.Info("export_written", "documents", n, "output", output)
	return nil
}
