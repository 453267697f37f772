package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"portalpilot-go/domain/credential"
	"portalpilot-go/domain/draft"
	"portalpilot-go/domain/target"
	"portalpilot-go/infrastructure/browser"
	"portalpilot-go/infrastructure/config"
	"portalpilot-go/infrastructure/logging"
	"portalpilot-go/infrastructure/repository"
	"portalpilot-go/infrastructure/vault"
)

// env holds what the commands build from configuration. Tests replace the
// driver factory.
type env struct {
	configPath string
	newFactory func(*browser.DriverConfig) browser.Factory
}

func defaultEnv() *env {
	return &env{newFactory: browser.NewChromeDPFactory}
}

// NewRootCommand builds the portalpilot command tree.
func NewRootCommand(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "portalpilot",
		Short: "Drive, record and replay headless browser sessions against web portals",
	}
	root.SilenceUsage = true
	root.SilenceErrors = true
	root.PersistentFlags().StringVarP(&e.configPath, "config", "c", "", "Path to a YAML config file")

	root.AddCommand(
		newServeCmd(e),
		newReplayCmd(e),
		newExportCmd(e),
	)
	return root
}

// loadConfig reads the config file and sets up logging.
func (e *env) loadConfig() (*config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, closeLog, err := logging.Setup(cfg.LoggingSetup())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize logging: %w", err)
	}
	return cfg, logger, closeLog, nil
}

// stores are the persistence and credential collaborators of a session.
type stores struct {
	targets *target.Service
	drafts  draft.Store
	vault   credential.Vault

	closers []func(context.Context) error
}

// openStores connects MongoDB when configured and falls back to in-memory
// stores otherwise. Seed targets from the config are upserted either way.
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	s := &stores{}

	if cfg.Mongo.URI != "" {
		db, err := repository.NewMongoDB(ctx, cfg.MongoDBConfig(), logger)
		if err != nil {
			return nil, fmt.Errorf("connect mongodb: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		if err := db.EnsureIndexes(ctx); err != nil {
			logger.Warn("Failed to ensure indexes", "error", err)
		}
		s.targets = target.NewService(repository.NewMongoTargetRepository(db, logger))
		s.drafts = repository.NewMongoDraftStore(db, logger)
		for _, t := range cfg.SeedTargets() {
			if err := s.targets.SaveTarget(ctx, t); err != nil {
				s.Close(ctx)
				return nil, fmt.Errorf("seed target %s: %w", t.ID, err)
			}
		}
		logger.Info("Using MongoDB stores", "database", cfg.Mongo.Database)
	} else {
		s.targets = target.NewService(repository.NewMemoryTargetRepository(cfg.SeedTargets()...))
		s.drafts = repository.NewMemoryDraftStore()
		logger.Info("Using in-memory stores", "targets", len(cfg.Targets))
	}

	if cfg.Vault.BaseURL != "" {
		vc := cfg.VaultClientConfig()
		vc.Logger = logger
		client := vault.NewHTTPClient(vc)
		s.closers = append(s.closers, func(context.Context) error {
			client.Close()
			return nil
		})
		s.vault = client
	} else {
		s.vault = credential.NewStaticVault(cfg.Vault.Static)
	}
	return s, nil
}

// Close releases the stores in reverse order of opening.
func (s *stores) Close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			logging.From(ctx).Warn("Failed to close store", "error", err)
		}
	}
	s.closers = nil
}
