// Package brain asks a generative language model for short Stoic advice.
package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	GeminiAPIEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel      = "gemini-2.5-flash"

	// FallbackAdvice is returned whenever the model cannot be reached.
	FallbackAdvice = "Patience. The API is silent, but your mind must remain clear even in the time of doubt."
)

// SystemInstruction sets the mentor's persona.
const SystemInstruction = `You are a Stoic Philosopher trapped in a cute rubber duck.
The user is a programmer or just a computer user who is currently stressed because of some event.
Your goal: Calm them down using Stoic philosophy (Epictetus, Marcus Aurelius) but mixed with coding terminology.
Style: Deep voice, serious tone, but the situation is funny. Speak the way Socrates would, with a probing question.
Length: Strictly Max 2 sentences. Keep it very short.
Example: "The bug is external. Your anger is internal. 'git reset' your emotions, my friend."`

// ErrMissingAPIKey is returned by NewGemini when no key is configured.
var ErrMissingAPIKey = errors.New("missing key `GEMINI_API_KEY`")

// Advisor produces advice for a piece of user context. It never fails;
// problems degrade to FallbackAdvice.
type Advisor interface {
	GenerateAdvice(ctx context.Context, userContext string) string
}

// Config configures the Gemini client.
type Config struct {
	APIKey            string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Model             string        `mapstructure:"model" yaml:"model"`
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxExchanges      int           `mapstructure:"max_exchanges" yaml:"max_exchanges"`
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout" yaml:"inactivity_timeout"`
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Model:             DefaultModel,
		Endpoint:          GeminiAPIEndpoint,
		Timeout:           20 * time.Second,
		MaxExchanges:      10,
		InactivityTimeout: 30 * time.Minute,
	}
}

// Gemini talks to the generateContent REST API and keeps a running chat.
type Gemini struct {
	apiKey    string
	cfg       Config
	client    *http.Client
	history   *History
	logger    zerolog.Logger
	onLatency func(time.Duration, bool)
}

// NewGemini builds a client. The key falls back to GEMINI_API_KEY.
func NewGemini(cfg Config, logger zerolog.Logger) (*Gemini, error) {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w in the environment or .env file", ErrMissingAPIKey)
	}

	return &Gemini{
		apiKey:  apiKey,
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		history: NewHistory(cfg.MaxExchanges, cfg.InactivityTimeout),
		logger:  logger.With().Str("component", "gemini").Logger(),
	}, nil
}

// SetLatencyHandler registers a callback receiving each request's duration
// and whether it succeeded.
func (g *Gemini) SetLatencyHandler(fn func(time.Duration, bool)) { g.onLatency = fn }

// History exposes the running conversation.
func (g *Gemini) History() *History { return g.history }

// GenerateAdvice sends userContext as the next chat turn.
func (g *Gemini) GenerateAdvice(ctx context.Context, userContext string) string {
	start := time.Now()
	text, err := g.generate(ctx, userContext)
	if g.onLatency != nil {
		g.onLatency(time.Since(start), err == nil)
	}
	if err != nil {
		g.logger.Error().Err(err).Msg("Gemini request failed")
		return FallbackAdvice
	}

	g.history.Add(userContext, text)
	g.logger.Info().Dur("latency", time.Since(start)).Int("chars", len(text)).Msg("Advice generated")
	return text
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
	Contents          []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

func (g *Gemini) generate(ctx context.Context, userContext string) (string, error) {
	req := generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: SystemInstruction}}},
	}
	for _, ex := range g.history.Exchanges() {
		req.Contents = append(req.Contents,
			content{Role: "user", Parts: []part{{Text: ex.UserText}}},
			content{Role: "model", Parts: []part{{Text: ex.MentorText}}},
		)
	}
	req.Contents = append(req.Contents, content{Role: "user", Parts: []part{{Text: userContext}}})

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.cfg.Endpoint, g.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gemini API error %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked: %s", out.PromptFeedback.BlockReason)
	}

	var sb strings.Builder
	if len(out.Candidates) > 0 {
		for _, p := range out.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	text := Clean(sb.String())
	if text == "" {
		return "", errors.New("empty response from model")
	}
	return text, nil
}

var markdownStripper = strings.NewReplacer("*", "", "`", "", "_", "")

// Clean trims the reply and drops markdown emphasis characters, which the
// voice would otherwise read aloud.
func Clean(text string) string {
	return markdownStripper.Replace(strings.TrimSpace(text))
}

// Static always returns the same advice. It stands in when no API key is set.
type Static string

func (s Static) GenerateAdvice(context.Context, string) string { return string(s) }
