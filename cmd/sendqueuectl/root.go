package main

import (
	"context"
	"fmt"

	"sendqueue/internal/config"
	"sendqueue/internal/database"
	"sendqueue/internal/jobs"
	"sendqueue/internal/media"
	"sendqueue/internal/models"
	"sendqueue/internal/send"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app holds what every subcommand needs. It is filled in by the root
// command's PersistentPreRunE so --help works without a database.
type app struct {
	configPath string
	dbPath     string

	logger  *logrus.Logger
	db      *database.Database
	service *send.Service
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "sendqueuectl",
		Short:         "Inspect and feed the sendqueue job store",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "config.json", "Path to configuration file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "Database path (overrides the config file)")

	root.AddCommand(jobsCmd(a))
	root.AddCommand(enqueueCmd(a))
	root.AddCommand(retryCmd(a))
	return root
}

func (a *app) open(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.logger = logrus.New()
	a.logger.SetLevel(logrus.WarnLevel)

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	a.db, err = database.New(cfg.Database, database.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// The queue is never started here: jobs added by this tool are picked
	// up by the daemon's next poll of the store.
	queue := jobs.NewQueue(a.db.Jobs(), nil, a.logger,
		jobs.WithDefaultDeadline(config.MessageDeadline(cfg)),
		jobs.WithCurve(config.BackoffCurve(cfg)),
	)
	a.service = send.NewService(queue, send.Deps{
		Repository:  a.db,
		Attachments: media.NewFileLoader(cfg.Attachments),
		Logger:      a.logger,
	}, send.WithSyncChunkSize(cfg.Queue.SyncChunkSize))
	return nil
}

func (a *app) loadConfig() (*models.Config, error) {
	if a.dbPath != "" {
		return &models.Config{Database: models.DatabaseConfig{Path: a.dbPath}}, nil
	}
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
