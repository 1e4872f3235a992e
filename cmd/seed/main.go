// Command seed populates the configured database with demo data.
package main

import (
	"flag"
	"log"

	"workroom/internal/config"
	"workroom/internal/database"
	"workroom/internal/seed"
)

func main() {
	users := flag.Int("users", 8, "Number of users to create")
	messages := flag.Int("messages", 200, "Number of messages to create")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	if err := seed.Run(db, *users, *messages); err != nil {
		log.Fatalf("Seed failed: %v", err)
	}
}
