package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"storyforge/internal/config"
	"storyforge/internal/logging"
	"storyforge/internal/pgstore"
	"storyforge/internal/queue"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	store  jobStore
	logger *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// openStore opens the configured backend once per invocation.
func (c *commandContext) openStore(ctx context.Context) (jobStore, error) {
	if c.store != nil {
		return c.store, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		store, err := pgstore.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		c.store = store
	default:
		store, err := queue.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open queue store: %w", err)
		}
		c.store = store
	}
	return c.store, nil
}

// withStore runs fn against the configured store.
func (c *commandContext) withStore(cmd *cobra.Command, fn func(jobStore) error) error {
	store, err := c.openStore(cmd.Context())
	if err != nil {
		return err
	}
	return fn(store)
}

// ensureLogger builds the file and console logger used by long-running commands.
func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	c.logger = logger
	return logger, nil
}

func (c *commandContext) close() {
	if c.store != nil {
		_ = c.store.Close()
		c.store = nil
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
