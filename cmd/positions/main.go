// Command positions prints a report of the position journal and optionally
// writes it as Markdown and CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/reporting"
	"solana-sniper/internal/storage"
	pgstore "solana-sniper/internal/storage/postgres"
	"solana-sniper/internal/storage/sqlite"
)

func main() {
	_ = godotenv.Load()

	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	sqlitePath := flag.String("sqlite", "", "SQLite journal path (used instead of PostgreSQL)")
	outputDir := flag.String("output-dir", "", "Write POSITIONS.md and positions.csv to this directory")
	limit := flag.Int("limit", 0, "Maximum closed positions to include (default 10000)")
	flag.Parse()

	ctx := context.Background()

	if *postgresDSN == "" && *sqlitePath == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn or --sqlite is required")
		os.Exit(1)
	}

	var store storage.PositionStore
	if *sqlitePath != "" {
		db, err := sqlite.Open(*sqlitePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening journal: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		store = db
	} else {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to PostgreSQL: %v\n", err)
			os.Exit(1)
		}
		defer pool.Close()
		store = pgstore.NewPositionStore(pool)
	}

	report, err := reporting.NewGenerator(store, *limit).Generate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	reporting.RenderTable(os.Stdout, report)

	if *outputDir == "" {
		return
	}
	if err := writeFiles(*outputDir, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nReport written:\n")
	fmt.Printf("  - %s/POSITIONS.md\n", *outputDir)
	fmt.Printf("  - %s/positions.csv\n", *outputDir)
}

func writeFiles(dir string, report *reporting.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "POSITIONS.md"), []byte(reporting.RenderMarkdown(report)), 0o644); err != nil {
		return err
	}
	all := make([]*domain.Position, 0, len(report.Closed)+len(report.Active)+len(report.Failed))
	all = append(all, report.Closed...)
	all = append(all, report.Active...)
	all = append(all, report.Failed...)
	return os.WriteFile(filepath.Join(dir, "positions.csv"), []byte(reporting.RenderCSV(all)), 0o644)
}
