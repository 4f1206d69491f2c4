package config

const (
	defaultConfigPath             = "~/.config/storyforge/config.toml"
	defaultDataDir                = "~/.local/share/storyforge"
	defaultWorkDir                = "~/.local/share/storyforge/work"
	defaultLogDir                 = "~/.local/share/storyforge/logs"
	defaultAssetDir               = "~/.local/share/storyforge/assets"
	defaultLogRetentionDays       = 30
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultQueuePollInterval      = 5
	defaultErrorRetryInterval     = 10
	defaultHeartbeatInterval      = 15
	defaultHeartbeatTimeout       = 120
	defaultConcurrency            = 1
	defaultStageTimeout           = 1800
	defaultMaxAttempts            = 3
	defaultRetryBaseDelaySeconds  = 60
	defaultRetryMaxDelaySeconds   = 1800
	defaultRetryJitterRatio       = 0.2
	defaultContinuityRadius       = 100
	defaultExpansionBaseURL       = "https://api.openai.com/v1/chat/completions"
	defaultExpansionModel         = "gpt-4-turbo-preview"
	defaultGeminiModel            = "gemini-1.5-flash"
	defaultExpansionTitle         = "storyforge"
	defaultExpansionTemperature   = 0.7
	defaultExpansionTimeout       = 120
	defaultPreviousSegments       = 3
	defaultSynthesisBaseURL       = "https://api.runwayml.com/v1"
	defaultSynthesisModel         = "gen3a_turbo"
	defaultAspectRatio            = "16:9"
	defaultSynthesisDuration      = 8
	defaultSynthesisPollInterval  = 5
	defaultSynthesisTimeout       = 600
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultHLSSegmentSeconds      = 4
	defaultThumbnailOffsetSeconds = 1.0
	defaultThumbnailWidth         = 480
	defaultCDNURL                 = "http://localhost:8080/assets"
	defaultUploadConcurrency      = 4
	defaultNotifyRequestTimeout   = 10
	defaultAPIBind                = "127.0.0.1:7490"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Expansion providers.
const (
	ExpansionOpenAI   = "openai"
	ExpansionGemini   = "gemini"
	ExpansionTemplate = "template"
)

// Synthesis providers.
const (
	SynthesisHTTP        = "http"
	SynthesisTestPattern = "testpattern"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageGCS   = "gcs"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
		},
		Database: Database{
			Driver: DriverSQLite,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			Concurrency:        defaultConcurrency,
			StageTimeout:       defaultStageTimeout,
		},
		Retry: Retry{
			MaxAttempts:      defaultMaxAttempts,
			BaseDelaySeconds: defaultRetryBaseDelaySeconds,
			MaxDelaySeconds:  defaultRetryMaxDelaySeconds,
			JitterRatio:      defaultRetryJitterRatio,
		},
		Continuity: Continuity{
			Enabled:          true,
			ContextRadius:    defaultContinuityRadius,
			ApplyCorrections: true,
			ExtractUpdates:   true,
		},
		Expansion: Expansion{
			Provider:         ExpansionOpenAI,
			BaseURL:          defaultExpansionBaseURL,
			Model:            defaultExpansionModel,
			Title:            defaultExpansionTitle,
			Temperature:      defaultExpansionTemperature,
			TimeoutSeconds:   defaultExpansionTimeout,
			PreviousSegments: defaultPreviousSegments,
		},
		Synthesis: Synthesis{
			Provider:            SynthesisHTTP,
			BaseURL:             defaultSynthesisBaseURL,
			Model:               defaultSynthesisModel,
			AspectRatio:         defaultAspectRatio,
			DefaultDuration:     defaultSynthesisDuration,
			PollIntervalSeconds: defaultSynthesisPollInterval,
			TimeoutSeconds:      defaultSynthesisTimeout,
		},
		Transcode: Transcode{
			FFmpegBinary:           defaultFFmpegBinary,
			FFprobeBinary:          defaultFFprobeBinary,
			SegmentSeconds:         defaultHLSSegmentSeconds,
			ThumbnailOffsetSeconds: defaultThumbnailOffsetSeconds,
			ThumbnailWidth:         defaultThumbnailWidth,
		},
		Storage: Storage{
			Backend:           StorageLocal,
			LocalDir:          defaultAssetDir,
			CDNURL:            defaultCDNURL,
			UploadConcurrency: defaultUploadConcurrency,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobCompleted:   true,
			JobFailed:      true,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
