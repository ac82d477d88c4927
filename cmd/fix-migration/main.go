// Package main is a repair tool for dirty migration state. golang-migrate
// marks a version dirty when a migration is interrupted before it completes,
// and the server then refuses to start. This tool clears the flag so the
// runner can retry on the next startup.
package main

import (
	"log"
	"os"

	"github.com/pwd-registry/pwd-registry/internal/config"
	"github.com/pwd-registry/pwd-registry/internal/db"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 1, 1)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Println("Connected to database successfully")

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check migration state: %v", err)
	}
	log.Printf("Current migration state: version=%d, dirty=%v", version, dirty)

	if !dirty {
		log.Println("Migration state is already clean")
		return
	}

	log.Println("Fixing dirty migration state...")
	if _, err := database.Exec("UPDATE schema_migrations SET dirty = false"); err != nil {
		log.Fatalf("Failed to fix dirty state: %v", err)
	}

	version, dirty, err = db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check final migration state: %v", err)
	}
	log.Printf("Final migration state: version=%d, dirty=%v", version, dirty)
}
