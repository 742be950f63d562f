package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"sendqueue/internal/constants"
	"sendqueue/internal/migrations"
	"sendqueue/internal/models"
	"sendqueue/internal/retry"
	"sendqueue/internal/security"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const defaultBusyTimeoutMillis = 5000

// Database is the SQLite file holding durable jobs and the message and
// conversation records send jobs update.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
	logger    *logrus.Logger
	backoff   *retry.Backoff
}

type Option func(*Database)

func WithLogger(logger *logrus.Logger) Option {
	return func(d *Database) {
		d.logger = logger
	}
}

// WithWriteRetry overrides the backoff used when SQLite reports a busy file.
func WithWriteRetry(config retry.BackoffConfig) Option {
	return func(d *Database) {
		d.backoff = retry.NewBackoff(config)
	}
}

func New(cfg models.DatabaseConfig, opts ...Option) (*Database, error) {
	dbPath := cfg.Path
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	d := &Database{
		logger: logrus.StandardLogger(),
		backoff: retry.NewBackoff(retry.BackoffConfig{
			InitialDelay: time.Duration(constants.DefaultDatabaseRetryBackoffMs) * time.Millisecond,
			MaxDelay:     time.Duration(constants.DefaultMaxBackoffMs) * time.Millisecond,
			Multiplier:   2,
			MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
			Jitter:       true,
		}),
	}
	for _, opt := range opts {
		opt(d)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	busyTimeout := cfg.BusyTimeoutMillis
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeoutMillis
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", dbPath, busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	d.db = db

	if err := db.Ping(); err != nil {
		return nil, d.closeAfter(fmt.Errorf("failed to ping database: %w", err))
	}

	schema, err := migrations.GetInitialSchema()
	if err != nil {
		return nil, d.closeAfter(fmt.Errorf("failed to read schema: %w", err))
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, d.closeAfter(fmt.Errorf("failed to initialize schema: %w", err))
	}

	enc, err := NewEncryptor(cfg.EncryptPayloads, cfg.EncryptionSecret)
	if err != nil {
		return nil, d.closeAfter(fmt.Errorf("failed to initialize encryptor: %w", err))
	}
	d.encryptor = enc

	d.logger.WithFields(logrus.Fields{
		"path":      dbPath,
		"encrypted": enc.Enabled(),
	}).Info("Database opened")
	return d, nil
}

// Open calls New until it succeeds, the backoff gives up or ctx ends.
func Open(ctx context.Context, cfg models.DatabaseConfig, backoff retry.BackoffConfig, opts ...Option) (*Database, error) {
	probe := &Database{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(probe)
	}

	var d *Database
	attempt := 0
	err := retry.NewBackoff(backoff).Retry(ctx, func() error {
		attempt++
		var err error
		d, err = New(cfg, opts...)
		if err != nil {
			probe.logger.WithError(err).WithField("attempt", attempt).Warn("Failed to open database")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Database) closeAfter(err error) error {
	if closeErr := d.db.Close(); closeErr != nil {
		return fmt.Errorf("%w (close error: %v)", err, closeErr)
	}
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping reports whether the database file is still reachable.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
