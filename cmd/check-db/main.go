// Package main is a diagnostic tool for testing database connectivity and
// inspecting live masterlist data. It connects with the server's own
// configuration, prints profile and registration counts per status, and
// exits non-zero on any failure so it can gate a deployment step.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pwd-registry/pwd-registry/internal/config"
	"github.com/pwd-registry/pwd-registry/internal/db"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()
	sqlxDB := db.Wrap(database)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to read migration version: %v", err)
	}
	fmt.Printf("Schema version: %d (dirty: %v)\n", version, dirty)

	type statusCount struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}

	fmt.Println("\n=== PWD PROFILES ===")
	var profiles []statusCount
	if err := sqlxDB.SelectContext(ctx, &profiles,
		`SELECT status, COUNT(*) AS count FROM pwd_profiles WHERE deleted_at IS NULL GROUP BY status ORDER BY status`); err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	for _, p := range profiles {
		fmt.Printf("%-14s %d\n", p.Status, p.Count)
	}
	if len(profiles) == 0 {
		fmt.Println("No profiles found!")
	}

	fmt.Println("\n=== REGISTRATION CASES ===")
	var cases []statusCount
	if err := sqlxDB.SelectContext(ctx, &cases,
		`SELECT status, COUNT(*) AS count FROM pending_registrations WHERE deleted_at IS NULL GROUP BY status ORDER BY status`); err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	for _, c := range cases {
		fmt.Printf("%-14s %d\n", c.Status, c.Count)
	}

	var live, archived int
	if err := sqlxDB.GetContext(ctx, &live, `SELECT COUNT(*) FROM activity_logs`); err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	if err := sqlxDB.GetContext(ctx, &archived, `SELECT COUNT(*) FROM activity_log_archives`); err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	fmt.Printf("\n=== ACTIVITY LOG ===\nlive: %d  archived: %d\n", live, archived)
}
