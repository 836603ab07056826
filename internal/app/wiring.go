package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"librarysystem/internal/config"
	"librarysystem/internal/journal"
	"librarysystem/internal/journal/ch"
	"librarysystem/internal/notify"
	"librarysystem/internal/storage"
	"librarysystem/internal/storage/mdb"
	"librarysystem/internal/storage/stubs"
)

// NewLogger builds a JSON logger at the configured level, away from the interactive screen by default
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = level
	zapConfig.OutputPaths = []string{cfg.LogOutput}
	zapConfig.ErrorOutputPaths = []string{cfg.LogOutput}
	return zapConfig.Build()
}

// OpenStore connects to the record store and creates its indexes
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	var db storage.Storage
	if cfg.UseMockDB {
		logger.Info("Using mock database")
		db = stubs.NewMockDB()
	} else {
		logger.Info("Connecting to MongoDB",
			zap.String("host", cfg.MongoHost),
			zap.Int("port", cfg.MongoPort),
			zap.String("database", cfg.MongoDatabase),
		)
		mongoDB, err := mdb.NewMongoDB(ctx, cfg.MongoConnectionURI(), cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		db = mongoDB
	}

	if err := db.Initialize(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

// OpenJournal connects to the ClickHouse journal, or returns a no-op journal when it is not configured
func OpenJournal(cfg *config.Config, logger *zap.Logger) (journal.Journal, error) {
	if !cfg.JournalEnabled() {
		return journal.NopJournal{}, nil
	}

	logger.Info("Connecting to ClickHouse",
		zap.String("host", cfg.ClickHouseHost),
		zap.Int("port", cfg.ClickHousePort),
		zap.String("database", cfg.ClickHouseDatabase),
		zap.String("user", cfg.ClickHouseUser),
		zap.Bool("tls", cfg.ClickHouseUseTLS),
	)
	j, err := ch.NewClickHouseJournal(
		cfg.ClickHouseHost,
		cfg.ClickHousePort,
		cfg.ClickHouseDatabase,
		cfg.ClickHouseUser,
		cfg.ClickHousePassword,
		cfg.ClickHouseUseTLS,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	return j, nil
}

// OpenNotifier creates the Telegram notifier, or a no-op notifier when it is not configured
func OpenNotifier(cfg *config.Config, logger *zap.Logger) (notify.Notifier, error) {
	if !cfg.NotifierEnabled() {
		return notify.Nop{}, nil
	}
	n, err := notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, logger)
	if err != nil {
		return nil, err
	}
	return n, nil
}
