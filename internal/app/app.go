package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"librarysystem/internal/config"
	"librarysystem/internal/console"
	"librarysystem/internal/journal"
	"librarysystem/internal/library"
	"librarysystem/internal/notify"
	"librarysystem/internal/storage"
)

// App represents the application
type App struct {
	config   *config.Config
	logger   *zap.Logger
	out      io.Writer
	db       storage.Storage
	journal  journal.Journal
	notifier notify.Notifier
	service  *library.Service
	console  *console.Console
}

// New creates and initializes a new application instance reading the menu from in and writing to out
func New(in io.Reader, out io.Writer) (*App, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration from environment variables
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &App{config: cfg, logger: logger, out: out}

	logger.Info("Starting Library Management System")

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	// Initialize activity journal
	if err := app.initJournal(); err != nil {
		app.db.Close()
		return nil, err
	}

	// Initialize overdue notifier
	app.initNotifier()

	app.service = library.NewService(app.db, app.journal, logger)
	app.console = console.NewConsole(app.service, app.notifier, in, out, logger)

	return app, nil
}

// initDatabase initializes the database connection
func (a *App) initDatabase() error {
	db, err := OpenStore(context.Background(), a.config, a.logger)
	if err != nil {
		return err
	}
	a.logger.Info("Database initialized successfully")

	a.db = db
	return nil
}

// initJournal picks the activity journal: memory with the mock store, ClickHouse when configured, none otherwise
func (a *App) initJournal() error {
	if a.config.UseMockDB {
		a.journal = journal.NewMemoryJournal()
		return nil
	}

	j, err := OpenJournal(a.config, a.logger)
	if err != nil {
		return err
	}
	a.journal = j
	return nil
}

// initNotifier sets up the Telegram notifier. A broken notifier is not fatal.
func (a *App) initNotifier() {
	n, err := OpenNotifier(a.config, a.logger)
	if err != nil {
		a.logger.Warn("Overdue notifications disabled", zap.Error(err))
		n = notify.Nop{}
	}
	a.notifier = n
}

// Run shows the menu and blocks until Exit, end of input or a shutdown signal
func (a *App) Run() error {
	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() {
		done <- a.console.Run(ctx)
	}()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		a.logger.Info("Shutting down on signal")
		fmt.Fprintln(a.out)
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown releases the database and journal connections
func (a *App) Shutdown() error {
	var errs []error

	if err := a.journal.Close(); err != nil {
		a.logger.Error("Error closing journal", zap.Error(err))
		errs = append(errs, err)
	}

	// Close database
	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
		errs = append(errs, err)
	}

	a.logger.Info("Shutdown complete")
	a.logger.Sync()
	return errors.Join(errs...)
}
