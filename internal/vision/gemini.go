package vision

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"google.golang.org/genai"

	"brandwise/internal/logging"
	"brandwise/internal/types"
)

// GeminiConfig configures the vision model client.
type GeminiConfig struct {
	APIKey        string        `yaml:"api_key" json:"api_key"`
	Model         string        `yaml:"model" json:"model"`
	Temperature   float32       `yaml:"temperature" json:"temperature"`
	TopP          float32       `yaml:"top_p" json:"top_p"`
	RetryAttempts int           `yaml:"retry_attempts" json:"retry_attempts"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultGeminiConfig returns the shipped settings. Temperature stays low
// and top-p fixed to stabilize critique output.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:        apiKey,
		Model:         "gemini-2.0-flash",
		Temperature:   0.2,
		TopP:          0.9,
		RetryAttempts: 3,
		Timeout:       60 * time.Second,
	}
}

// GeminiCritic calls the Gemini API with the forensic prompt and an inline
// screenshot, coercing the reply into the critique schema.
type GeminiCritic struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGeminiCritic creates the model client.
func NewGeminiCritic(ctx context.Context, cfg GeminiConfig) (*GeminiCritic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vision API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.Temperature <= 0 || cfg.Temperature > 0.3 {
		cfg.Temperature = 0.2
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	logging.Vision("vision critic ready: model=%s temperature=%.2f", cfg.Model, cfg.Temperature)
	return &GeminiCritic{client: client, cfg: cfg}, nil
}

func float32Ptr(f float32) *float32 { return &f }

// Critique sends the screenshot with the forensic prompt. Responses that do
// not coerce retry with jittered exponential backoff; the final failure
// surfaces so the orchestrator can fall back to the deterministic path.
func (g *GeminiCritic) Critique(ctx context.Context, png []byte, vctx Context) (*types.VisualAnalysis, error) {
	timer := logging.StartTimer(logging.CategoryVision, "Critique")
	defer timer.Stop()

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(png, "image/png"),
			genai.NewPartFromText(forensicPrompt(vctx)),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature:      float32Ptr(g.cfg.Temperature),
		TopP:             float32Ptr(g.cfg.TopP),
		ResponseMIMEType: "application/json",
	}

	var lastErr error
	for attempt := 0; attempt < g.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := jitteredBackoff(attempt)
			logging.Vision("critique attempt %d failed (%v), retrying in %v", attempt, lastErr, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		callCtx := ctx
		if g.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
			defer cancel()
		}

		start := time.Now()
		resp, err := g.client.Models.GenerateContent(callCtx, g.cfg.Model, contents, config)
		if err != nil {
			lastErr = fmt.Errorf("vision call failed: %w", err)
			continue
		}
		logging.API("vision critique call completed in %v", time.Since(start))

		analysis, perr := ParseCritique(resp.Text(), "")
		if perr != nil {
			lastErr = fmt.Errorf("critique did not match schema: %w", perr)
			continue
		}
		return analysis, nil
	}
	return nil, fmt.Errorf("vision critique failed after %d attempts: %w", g.cfg.RetryAttempts, lastErr)
}

// jitteredBackoff doubles per attempt with up to 50% jitter.
func jitteredBackoff(attempt int) time.Duration {
	base := 500 * time.Millisecond << uint(attempt-1)
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}
