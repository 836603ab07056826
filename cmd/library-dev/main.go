package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	"librarysystem/internal/app"
	"librarysystem/internal/journal/ch"
	"librarysystem/migrations"
)

func main() {
	ctx := context.Background()

	log.Println("Starting MongoDB testcontainer...")

	// Start MongoDB container
	mongoContainer, err := mongodb.Run(ctx, "mongo:7.0")
	if err != nil {
		log.Fatalf("Failed to start MongoDB container: %v", err)
	}

	// Ensure container cleanup on exit
	defer func() {
		log.Println("Stopping MongoDB container...")
		if err := mongoContainer.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate container: %v", err)
		}
	}()

	mongoURI, err := mongoContainer.ConnectionString(ctx)
	if err != nil {
		log.Fatalf("Failed to get MongoDB connection string: %v", err)
	}
	log.Printf("MongoDB started at %s", mongoURI)

	log.Println("Starting ClickHouse testcontainer...")

	// Start ClickHouse container
	clickhouseContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:latest",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword("devpassword"),
		clickhouse.WithDatabase("default"),
	)
	if err != nil {
		log.Fatalf("Failed to start ClickHouse container: %v", err)
	}

	defer func() {
		log.Println("Stopping ClickHouse container...")
		if err := clickhouseContainer.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate container: %v", err)
		}
	}()

	// Get connection details
	host, err := clickhouseContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}

	port, err := clickhouseContainer.MappedPort(ctx, "9000/tcp")
	if err != nil {
		log.Fatalf("Failed to get container port: %v", err)
	}

	log.Printf("ClickHouse started at %s:%s", host, port.Port())

	// Create the activity table
	db := ch.OpenSQL(ch.NewOptions(host, port.Int(), "default", "default", "devpassword", false))
	if err := migrations.Run(ctx, db, "up", io.Discard); err != nil {
		db.Close()
		log.Fatalf("Failed to run migrations: %v", err)
	}
	db.Close()

	// Set environment variables for the application
	os.Setenv("USE_MOCK_DB", "false")
	os.Setenv("MONGODB_URI", mongoURI)
	os.Setenv("MONGODB_DATABASE", "library_management")
	os.Setenv("CLICKHOUSE_HOST", host)
	os.Setenv("CLICKHOUSE_PORT", port.Port())
	os.Setenv("CLICKHOUSE_DATABASE", "default")
	os.Setenv("CLICKHOUSE_USER", "default")
	os.Setenv("CLICKHOUSE_PASSWORD", "devpassword")
	os.Setenv("CLICKHOUSE_USE_TLS", "false")

	if os.Getenv("TELEGRAM_BOT_TOKEN") == "" || os.Getenv("TELEGRAM_CHAT_ID") == "" {
		log.Println("TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID not set, overdue notifications are disabled.")
	}

	log.Println("Starting application with MongoDB and ClickHouse backends...")
	fmt.Println()

	// Create and initialize application
	application, err := app.New(os.Stdin, os.Stdout)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Run returns on Exit, end of input or a shutdown signal, then the containers are stopped
	if err := application.Run(); err != nil {
		log.Printf("Application error: %v", err)
	}
}
