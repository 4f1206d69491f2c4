package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDatabase()
	c.normalizeWorkflow()
	c.normalizeRetry()
	c.normalizeContinuity()
	c.normalizeExpansion()
	c.normalizeSynthesis()
	c.normalizeTranscode()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	envFallback(&c.API.Token, "STORYFORGE_API_TOKEN")
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.normalizeLogging()
	return nil
}

// envFallback fills target from the first set environment variable when it is empty.
func envFallback(target *string, keys ...string) {
	*target = strings.TrimSpace(*target)
	if *target != "" {
		return
	}
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			*target = strings.TrimSpace(value)
			return
		}
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDatabase() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case "", "sqlite3":
		c.Database.Driver = DriverSQLite
	case "postgresql", "pgx":
		c.Database.Driver = DriverPostgres
	}
	envFallback(&c.Database.URL, "STORYFORGE_DATABASE_URL", "DATABASE_URL")
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Concurrency <= 0 {
		c.Workflow.Concurrency = defaultConcurrency
	}
	if c.Workflow.StageTimeout < 0 {
		c.Workflow.StageTimeout = 0
	}
}

func (c *Config) normalizeRetry() {
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = defaultMaxAttempts
	}
	if c.Retry.JitterRatio < 0 {
		c.Retry.JitterRatio = 0
	}
}

func (c *Config) normalizeContinuity() {
	if c.Continuity.ContextRadius <= 0 {
		c.Continuity.ContextRadius = defaultContinuityRadius
	}
}

func (c *Config) normalizeExpansion() {
	c.Expansion.Provider = strings.ToLower(strings.TrimSpace(c.Expansion.Provider))
	if c.Expansion.Provider == "" {
		c.Expansion.Provider = ExpansionOpenAI
	}
	c.Expansion.BaseURL = strings.TrimSpace(c.Expansion.BaseURL)
	c.Expansion.Model = strings.TrimSpace(c.Expansion.Model)
	c.Expansion.Referer = strings.TrimSpace(c.Expansion.Referer)
	c.Expansion.Title = strings.TrimSpace(c.Expansion.Title)
	switch c.Expansion.Provider {
	case ExpansionOpenAI:
		envFallback(&c.Expansion.APIKey, "STORYFORGE_OPENAI_API_KEY", "OPENAI_API_KEY")
		if c.Expansion.BaseURL == "" {
			c.Expansion.BaseURL = defaultExpansionBaseURL
		}
		if c.Expansion.Model == "" {
			c.Expansion.Model = defaultExpansionModel
		}
	case ExpansionGemini:
		envFallback(&c.Expansion.APIKey, "STORYFORGE_GEMINI_API_KEY", "GEMINI_API_KEY")
		if c.Expansion.Model == "" || c.Expansion.Model == defaultExpansionModel {
			c.Expansion.Model = defaultGeminiModel
		}
	}
	if c.Expansion.Title == "" {
		c.Expansion.Title = defaultExpansionTitle
	}
	if c.Expansion.TimeoutSeconds <= 0 {
		c.Expansion.TimeoutSeconds = defaultExpansionTimeout
	}
	if c.Expansion.PreviousSegments < 0 {
		c.Expansion.PreviousSegments = 0
	}
}

func (c *Config) normalizeSynthesis() {
	c.Synthesis.Provider = strings.ToLower(strings.TrimSpace(c.Synthesis.Provider))
	if c.Synthesis.Provider == "" {
		c.Synthesis.Provider = SynthesisHTTP
	}
	envFallback(&c.Synthesis.APIKey, "STORYFORGE_VIDEO_API_KEY", "RUNWAY_API_KEY")
	c.Synthesis.BaseURL = strings.TrimRight(strings.TrimSpace(c.Synthesis.BaseURL), "/")
	if c.Synthesis.BaseURL == "" {
		c.Synthesis.BaseURL = defaultSynthesisBaseURL
	}
	c.Synthesis.AspectRatio = strings.TrimSpace(c.Synthesis.AspectRatio)
	if c.Synthesis.AspectRatio == "" {
		c.Synthesis.AspectRatio = defaultAspectRatio
	}
	if c.Synthesis.DefaultDuration <= 0 {
		c.Synthesis.DefaultDuration = defaultSynthesisDuration
	}
	if c.Synthesis.PollIntervalSeconds <= 0 {
		c.Synthesis.PollIntervalSeconds = defaultSynthesisPollInterval
	}
	if c.Synthesis.TimeoutSeconds <= 0 {
		c.Synthesis.TimeoutSeconds = defaultSynthesisTimeout
	}
}

func (c *Config) normalizeTranscode() {
	c.Transcode.FFmpegBinary = strings.TrimSpace(c.Transcode.FFmpegBinary)
	if c.Transcode.FFmpegBinary == "" {
		c.Transcode.FFmpegBinary = defaultFFmpegBinary
	}
	c.Transcode.FFprobeBinary = strings.TrimSpace(c.Transcode.FFprobeBinary)
	if c.Transcode.FFprobeBinary == "" {
		c.Transcode.FFprobeBinary = defaultFFprobeBinary
	}
	if c.Transcode.SegmentSeconds <= 0 {
		c.Transcode.SegmentSeconds = defaultHLSSegmentSeconds
	}
	if c.Transcode.ThumbnailWidth <= 0 {
		c.Transcode.ThumbnailWidth = defaultThumbnailWidth
	}
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageLocal
	}
	if strings.TrimSpace(c.Storage.LocalDir) == "" {
		c.Storage.LocalDir = defaultAssetDir
	}
	var err error
	if c.Storage.LocalDir, err = expandPath(c.Storage.LocalDir); err != nil {
		return fmt.Errorf("storage.local_dir: %w", err)
	}
	if c.Storage.CredentialsFile != "" {
		if c.Storage.CredentialsFile, err = expandPath(c.Storage.CredentialsFile); err != nil {
			return fmt.Errorf("storage.credentials_file: %w", err)
		}
	}
	envFallback(&c.Storage.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.CDNURL = strings.TrimRight(strings.TrimSpace(c.Storage.CDNURL), "/")
	if c.Storage.CDNURL == "" {
		c.Storage.CDNURL = defaultCDNURL
	}
	if c.Storage.UploadConcurrency <= 0 {
		c.Storage.UploadConcurrency = defaultUploadConcurrency
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
