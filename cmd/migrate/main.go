package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"traffic-platform/internal/config"
	"traffic-platform/pkg/logging"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	dir := flag.String("dir", "migrations", "Directory holding NNN_name.up.sql and NNN_name.down.sql files")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("traffic-migrate", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	ctx := context.Background()

	if *direction != "up" && *direction != "down" {
		logger.Fatal(ctx, "[MIGRATE_ERROR] Invalid direction", logging.Fields{"direction": *direction}, fmt.Errorf("direction must be up or down"))
	}

	files, err := migrationFiles(*dir, *direction)
	if err != nil {
		logger.Fatal(ctx, "[MIGRATE_ERROR] Failed to list migrations", logging.Fields{"dir": *dir}, err)
	}

	// Connect to database
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Fatal(ctx, "[MIGRATE_ERROR] Failed to connect to database", logging.Fields{
			"host":     cfg.Database.Host,
			"database": cfg.Database.Database,
		}, err)
	}
	defer db.Close()

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			logger.Fatal(ctx, "[MIGRATE_ERROR] Failed to read migration file", logging.Fields{"file": file}, err)
		}

		logger.Info(ctx, "[MIGRATE_RUN] Running migration", logging.Fields{
			"file":      filepath.Base(file),
			"direction": *direction,
		})

		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			logger.Fatal(ctx, "[MIGRATE_ERROR] Failed to execute migration", logging.Fields{"file": file}, err)
		}
	}

	logger.Info(ctx, "[MIGRATE_COMPLETE] Migration completed successfully", logging.Fields{
		"direction":  *direction,
		"migrations": len(files),
	})
}

// migrationFiles lists the migrations of one direction in the order they must
// run: ascending for up, descending for down
func migrationFiles(dir, direction string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*."+direction+".sql"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s migrations found in %s", direction, dir)
	}

	sort.Strings(files)
	if direction == "down" {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}
	return files, nil
}
