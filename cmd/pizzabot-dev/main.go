package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	clickhouseTC "github.com/testcontainers/testcontainers-go/modules/clickhouse"
	redisTC "github.com/testcontainers/testcontainers-go/modules/redis"

	"pizzabot/internal/app"
)

func main() {
	ctx := context.Background()

	log.Println("Starting Redis testcontainer...")
	redisContainer, err := redisTC.Run(ctx, "redis:7-alpine")
	if err != nil {
		log.Fatalf("Failed to start Redis container: %v", err)
	}
	defer terminate(ctx, "Redis", redisContainer)

	redisHost, err := redisContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get Redis host: %v", err)
	}
	redisPort, err := redisContainer.MappedPort(ctx, "6379/tcp")
	if err != nil {
		log.Fatalf("Failed to get Redis port: %v", err)
	}
	log.Printf("Redis started at %s:%s", redisHost, redisPort.Port())

	log.Println("Starting ClickHouse testcontainer...")
	clickhouseContainer, err := clickhouseTC.Run(ctx,
		"clickhouse/clickhouse-server:latest",
		clickhouseTC.WithUsername("default"),
		clickhouseTC.WithPassword("devpassword"),
		clickhouseTC.WithDatabase("default"),
	)
	if err != nil {
		log.Fatalf("Failed to start ClickHouse container: %v", err)
	}
	defer terminate(ctx, "ClickHouse", clickhouseContainer)

	chHost, err := clickhouseContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get ClickHouse host: %v", err)
	}
	chPort, err := clickhouseContainer.MappedPort(ctx, "9000/tcp")
	if err != nil {
		log.Fatalf("Failed to get ClickHouse port: %v", err)
	}
	log.Printf("ClickHouse started at %s:%s", chHost, chPort.Port())

	if err := migrateJournal(chHost, chPort.Port()); err != nil {
		log.Fatalf("Failed to migrate order journal: %v", err)
	}

	// Set environment variables for the application
	os.Setenv("USE_MOCK_DB", "false")
	os.Setenv("REDIS_ADDR", redisHost+":"+redisPort.Port())
	os.Setenv("CLICKHOUSE_HOST", chHost)
	os.Setenv("CLICKHOUSE_PORT", chPort.Port())
	os.Setenv("CLICKHOUSE_DATABASE", "default")
	os.Setenv("CLICKHOUSE_USER", "default")
	os.Setenv("CLICKHOUSE_PASSWORD", "devpassword")
	os.Setenv("CLICKHOUSE_USE_TLS", "false")
	os.Setenv("WEBHOOK_MODE", "false")
	os.Setenv("LOG_LEVEL", "debug")

	if os.Getenv("COMMERCE_BACKEND") == "" {
		os.Setenv("COMMERCE_BACKEND", "mock")
	}
	if os.Getenv("REMINDER_DELAY") == "" {
		os.Setenv("REMINDER_DELAY", "1m")
	}
	if os.Getenv("PORT") == "" {
		os.Setenv("PORT", "8080")
	}

	if os.Getenv("TELEGRAM_BOT_TOKEN") == "" && os.Getenv("VK_TOKEN") == "" && os.Getenv("FB_PAGE_TOKEN") == "" {
		log.Println("⚠️  No platform token set. Set TELEGRAM_BOT_TOKEN, VK_TOKEN or FB_PAGE_TOKEN in your .env file or environment.")
		log.Println("   The bot will fail to start without at least one platform.")
	}

	log.Println("Starting application with Redis sessions and ClickHouse journal...")
	fmt.Println()

	application, err := app.New()
	if err != nil {
		log.Printf("Failed to create application: %v", err)
		return
	}

	// Run blocks until SIGINT or SIGTERM
	if err := application.Run(); err != nil {
		log.Printf("Application error: %v", err)
	}
}

// migrateJournal applies ./migrations to the fresh ClickHouse container
func migrateJournal(host, port string) error {
	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{host + ":" + port},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "devpassword",
		},
	})
	defer db.Close()

	if err := goose.SetDialect("clickhouse"); err != nil {
		return err
	}
	return goose.Up(db, "./migrations")
}

func terminate(ctx context.Context, name string, c testcontainers.Container) {
	log.Printf("Stopping %s container...", name)
	if err := c.Terminate(ctx); err != nil {
		log.Printf("Failed to terminate %s container: %v", name, err)
	}
}
