package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateExpansion(); err != nil {
		return err
	}
	if err := c.validateSynthesis(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverSQLite:
		return nil
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("database.url must be set when database.driver is postgres (or set STORYFORGE_DATABASE_URL)")
		}
		return nil
	default:
		return fmt.Errorf("database.driver %q is not supported (use sqlite or postgres)", c.Database.Driver)
	}
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.concurrency":          c.Workflow.Concurrency,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.BaseDelaySeconds <= 0 {
		return errors.New("retry.base_delay_seconds must be positive")
	}
	if c.Retry.MaxDelaySeconds < c.Retry.BaseDelaySeconds {
		return errors.New("retry.max_delay_seconds must be >= retry.base_delay_seconds")
	}
	if c.Retry.JitterRatio > 1 {
		return errors.New("retry.jitter_ratio must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateExpansion() error {
	switch c.Expansion.Provider {
	case ExpansionOpenAI, ExpansionGemini:
		if c.Expansion.APIKey == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = defaultConfigPath
			}
			return fmt.Errorf("expansion.api_key is required for provider %q. Set STORYFORGE_%s_API_KEY or edit %s (create with 'storyforge config init')",
				c.Expansion.Provider, strings.ToUpper(c.Expansion.Provider), defaultPath)
		}
	case ExpansionTemplate:
	default:
		return fmt.Errorf("expansion.provider %q is not supported (use openai, gemini, or template)", c.Expansion.Provider)
	}
	if c.Expansion.Temperature < 0 || c.Expansion.Temperature > 2 {
		return errors.New("expansion.temperature must be between 0 and 2")
	}
	return nil
}

func (c *Config) validateSynthesis() error {
	switch c.Synthesis.Provider {
	case SynthesisHTTP:
		if c.Synthesis.APIKey == "" {
			return errors.New("synthesis.api_key must be set when synthesis.provider is http (or set STORYFORGE_VIDEO_API_KEY)")
		}
	case SynthesisTestPattern:
	default:
		return fmt.Errorf("synthesis.provider %q is not supported (use http or testpattern)", c.Synthesis.Provider)
	}
	switch c.Synthesis.DefaultDuration {
	case 4, 6, 8:
	default:
		return errors.New("synthesis.default_duration must be one of 4, 6, 8")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return errors.New("storage.local_dir must be set when storage.backend is local")
		}
	case StorageGCS:
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported (use local or gcs)", c.Storage.Backend)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
