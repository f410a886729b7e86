package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"traffic-platform/internal/config"
	"traffic-platform/internal/services"
	"traffic-platform/pkg/logging"
	"traffic-platform/pkg/metrics"
)

// inspect extracts every counter export on its own and reports what it holds,
// without writing the combined series
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	dataDir := flag.String("data-dir", cfg.Data.RawDir, "Directory containing counter exports")
	pattern := flag.String("pattern", cfg.Data.Pattern, "Glob pattern selecting the export files")
	flag.Parse()

	logger := logging.NewStructuredLogger("traffic-inspect", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	ctx := context.Background()

	files, err := services.DiscoverFiles(*dataDir, *pattern)
	if err != nil {
		logger.Fatal(ctx, "[INSPECT_ERROR] No input files", logging.Fields{"data_dir": *dataDir}, err)
	}

	ingestion := services.NewIngestionService(nil, logger, metrics.NewCollector("traffic_inspect"))
	summaries, err := ingestion.InspectFiles(ctx, files)
	if err != nil {
		logger.Fatal(ctx, "[INSPECT_ERROR] Inspection aborted", logging.Fields{}, err)
	}

	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Println("COUNTER EXPORT INSPECTION")
	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Printf("Found %d files in %s\n\n", len(files), *dataDir)

	totalRecords, failed := 0, 0
	for _, summary := range summaries {
		fmt.Println("─────────────────────────────────────────────────────────────")
		fmt.Printf("File: %s\n", filepath.Base(summary.Path))
		if summary.Err != nil {
			failed++
			fmt.Printf("  ✗ %v\n", summary.Err)
			continue
		}
		totalRecords += summary.Records
		fmt.Printf("  ✓ Hourly records: %d\n", summary.Records)
		fmt.Printf("  ✓ Stations:       %d (%s)\n", len(summary.Stations), strings.Join(summary.Stations, ", "))
		if summary.Records > 0 {
			fmt.Printf("  ✓ Range:          %s .. %s\n", summary.First.Format("2006-01-02 15:04"), summary.Last.Format("2006-01-02 15:04"))
		}
	}

	fmt.Println()
	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Printf("Files: %d   Failed: %d   Hourly records: %d\n", len(summaries), failed, totalRecords)
	fmt.Println("════════════════════════════════════════════════════════════════")

	if failed > 0 {
		os.Exit(1)
	}
}
