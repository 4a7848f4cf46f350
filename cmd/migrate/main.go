// Command migrate manages the ClickHouse schema of the order journal.
//
//	migrate [-dir ./migrations] up|down|redo|reset|status|version
//	migrate [-dir ./migrations] create <name>
package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
)

func main() {
	dir := flag.String("dir", "./migrations", "directory with migration files")
	flag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using existing environment variables")
	}

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	// create only writes a file and needs no connection
	if command == "create" {
		if flag.NArg() < 2 {
			log.Fatal("Usage: migrate create <migration_name>")
		}
		if err := goose.Create(nil, *dir, flag.Arg(1), "sql"); err != nil {
			log.Fatalf("Failed to create migration: %v", err)
		}
		return
	}

	db := openJournal()
	defer db.Close()

	if err := goose.SetDialect("clickhouse"); err != nil {
		log.Fatalf("Failed to set dialect: %v", err)
	}

	if err := run(db, command, *dir); err != nil {
		log.Fatalf("migrate %s: %v", command, err)
	}
}

// openJournal connects with the same CLICKHOUSE_* settings the bot uses
func openJournal() *sql.DB {
	options := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", getEnv("CLICKHOUSE_HOST", "localhost"), getEnv("CLICKHOUSE_PORT", "9000"))},
		Auth: clickhouse.Auth{
			Database: getEnv("CLICKHOUSE_DATABASE", "default"),
			Username: getEnv("CLICKHOUSE_USER", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
		},
		DialTimeout: 10 * time.Second,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	}
	if getEnv("CLICKHOUSE_USE_TLS", "false") == "true" {
		options.TLS = &tls.Config{}
	}

	db := clickhouse.OpenDB(options)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping ClickHouse at %s: %v", options.Addr[0], err)
	}

	log.Printf("Connected to ClickHouse at %s (database: %s)", options.Addr[0], options.Auth.Database)
	return db
}

func run(db *sql.DB, command, dir string) error {
	log.Printf("Running migrations: %s", command)

	switch command {
	case "up":
		return goose.Up(db, dir)
	case "down":
		return goose.Down(db, dir)
	case "redo":
		return goose.Redo(db, dir)
	case "reset":
		return goose.Reset(db, dir)
	case "status":
		return goose.Status(db, dir)
	case "version":
		version, err := goose.GetDBVersion(db)
		if err != nil {
			return err
		}
		log.Printf("Current migration version: %d", version)
		return nil
	}
	return fmt.Errorf("unknown command (available: up, down, redo, reset, status, version, create)")
}

// getEnv retrieves environment variable or returns default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
