package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/sdkgateway/ingress/internal/config"
	"github.com/sdkgateway/ingress/internal/registry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment as-is")
	}

	configPath := os.Getenv("GATEWAY_CONFIG_PATH")
	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if config.App.Postgres.DSN == "" {
		log.Fatal("postgres.dsn (or REGISTRY_DSN) is required")
	}

	db, err := sql.Open("postgres", config.App.Postgres.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	log.Println("Applying gateway_apps schema...")
	if _, err := db.Exec(registry.Schema); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migration applied successfully!")
}
