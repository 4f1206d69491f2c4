package videogen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"storyforge/internal/logging"
	"storyforge/internal/services"
)

// HTTPConfig configures a remote text-to-video API.
type HTTPConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	PollInterval time.Duration
	Timeout      time.Duration
}

// HTTPProvider submits a generation task, polls it until it settles, and
// downloads the first output.
type HTTPProvider struct {
	cfg    HTTPConfig
	client *http.Client
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

// HTTPOption customizes HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		if c != nil {
			p.client = c
		}
	}
}

// WithHTTPLogger logs task submission and sampled poll progress.
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(p *HTTPProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewHTTPProvider validates cfg and returns a provider.
func NewHTTPProvider(cfg HTTPConfig, opts ...HTTPOption) (*HTTPProvider, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "synthesize", "http provider", "api key required", nil)
	}
	if cfg.BaseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "synthesize", "http provider", "base url required", nil)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	p := &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logging.NewNop(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type taskRequest struct {
	Model    string `json:"model"`
	Prompt   string `json:"promptText"`
	Duration int    `json:"duration"`
	Ratio    string `json:"ratio"`
}

type taskStatus struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	Progress *float64 `json:"progress"`
	Output   []string `json:"output"`
	Failure  string   `json:"failure"`
}

// percent converts the API's 0..1 progress; -1 when the API omits it.
func (t taskStatus) percent() float64 {
	if t.Progress == nil {
		return -1
	}
	return *t.Progress * 100
}

// Task states reported by the API.
const (
	statusSucceeded = "SUCCEEDED"
	statusFailed    = "FAILED"
	statusCancelled = "CANCELLED"
)

// Generate renders req and stores it as OutputDir/source.mp4.
func (p *HTTPProvider) Generate(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "synthesize", "generate", "empty prompt", nil)
	}
	duration := ClampDuration(req.DurationSeconds)
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = DefaultAspectRatio
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	var task taskStatus
	if err := p.do(ctx, http.MethodPost, "/tasks", taskRequest{
		Model:    p.cfg.Model,
		Prompt:   req.Prompt,
		Duration: duration,
		Ratio:    aspect,
	}, &task); err != nil {
		return Result{}, err
	}
	if task.ID == "" {
		return Result{}, services.Wrap(services.ErrTransient, "synthesize", "submit", "response missing task id", nil)
	}

	logger := logging.WithContext(ctx, p.logger).With(logging.String("task_id", task.ID))
	logger.Info("synthesis task submitted",
		logging.Event("synthesis_submitted"),
		logging.String("model", p.cfg.Model),
		logging.Int("duration_seconds", duration),
	)
	sampler := logging.NewProgressSampler(10)
	for task.Status != statusSucceeded {
		if sampler.ShouldLog(task.percent(), task.Status) {
			logger.Debug("synthesis task progress",
				logging.String("task_status", task.Status),
				logging.Float64("percent", task.percent()),
			)
		}
		switch task.Status {
		case statusFailed, statusCancelled:
			return Result{}, services.Wrap(services.ErrTransient, "synthesize", "task "+task.ID,
				strings.ToLower(task.Status)+": "+task.Failure, nil)
		}
		if err := p.sleep(ctx, p.cfg.PollInterval); err != nil {
			return Result{}, timeoutOr(err, task.ID)
		}
		if err := p.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(task.ID), nil, &task); err != nil {
			return Result{}, err
		}
	}
	if len(task.Output) == 0 {
		return Result{}, services.Wrap(services.ErrTransient, "synthesize", "task "+task.ID, "succeeded without output", nil)
	}

	dest := filepath.Join(req.OutputDir, SourceFile)
	if err := p.download(ctx, task.Output[0], dest); err != nil {
		return Result{}, err
	}
	width, height := dimensions(aspect)
	return Result{
		VideoPath: dest,
		Duration:  float64(duration),
		Width:     width,
		Height:    height,
		Model:     p.cfg.Model,
	}, nil
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return timeoutOr(err, path)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return timeoutOr(err, path)
	}
	if err := statusError(resp.StatusCode, path, payload); err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return services.Wrap(services.ErrTransient, "synthesize", path, "decode response", err)
	}
	return nil
}

func (p *HTTPProvider) download(ctx context.Context, src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return services.Wrap(services.ErrTransient, "synthesize", "download", "bad output url", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return timeoutOr(err, "download")
	}
	defer resp.Body.Close()
	if err := statusError(resp.StatusCode, "download", nil); err != nil {
		return err
	}
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrTransient, "synthesize", "download", "copy body", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	return os.Rename(tmp, dest)
}

func statusError(code int, op string, body []byte) error {
	if code < http.StatusMultipleChoices {
		return nil
	}
	msg := fmt.Sprintf("http %d: %s", code, strings.TrimSpace(string(body)))
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "synthesize", op, msg, nil)
	case code == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "synthesize", op, msg, nil)
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "synthesize", op, msg, nil)
	default:
		return services.Wrap(services.ErrValidation, "synthesize", op, msg, nil)
	}
}

func timeoutOr(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "synthesize", op, "provider did not finish in time", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return services.Wrap(services.ErrTransient, "synthesize", op, "", err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
