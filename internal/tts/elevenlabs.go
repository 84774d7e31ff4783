package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const (
	ElevenLabsAPIEndpoint = "https://api.elevenlabs.io/v1"
	StoicVoiceID          = "pNInz6obpgDQGcFmaJgB" // Adam - deep, calm male
	elevenLabsMaxText     = 5000
)

type ElevenLabsProvider struct {
	apiKey   string
	endpoint string
	logger   zerolog.Logger
	config   *ElevenLabsConfig
	client   *http.Client
}

type ElevenLabsConfig struct {
	APIKey       string  `json:"api_key"`
	Endpoint     string  `json:"endpoint"`
	DefaultVoice string  `json:"default_voice"`
	ModelID      string  `json:"model_id"`
	Stability    float64 `json:"stability"`
	Similarity   float64 `json:"similarity_boost"`
}

func DefaultElevenLabsConfig() *ElevenLabsConfig {
	return &ElevenLabsConfig{
		Endpoint:     ElevenLabsAPIEndpoint,
		DefaultVoice: StoicVoiceID,
		ModelID:      "eleven_turbo_v2_5",
		Stability:    0.5,
		Similarity:   0.75,
	}
}

// ElevenLabsConfigFrom maps file settings onto provider settings.
func ElevenLabsConfigFrom(cfg Config, apiKey string) *ElevenLabsConfig {
	c := DefaultElevenLabsConfig()
	c.APIKey = apiKey
	if cfg.VoiceID != "" {
		c.DefaultVoice = cfg.VoiceID
	}
	if cfg.ModelID != "" {
		c.ModelID = cfg.ModelID
	}
	if cfg.Stability > 0 {
		c.Stability = cfg.Stability
	}
	if cfg.Similarity > 0 {
		c.Similarity = cfg.Similarity
	}
	return c
}

func NewElevenLabsProvider(logger zerolog.Logger, config *ElevenLabsConfig) *ElevenLabsProvider {
	if config == nil {
		config = DefaultElevenLabsConfig()
	}

	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ELEVENLABS_API_KEY")
	}
	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = ElevenLabsAPIEndpoint
	}

	return &ElevenLabsProvider{
		apiKey:   apiKey,
		endpoint: endpoint,
		logger:   logger.With().Str("provider", "elevenlabs-tts").Logger(),
		config:   config,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

func (p *ElevenLabsProvider) IsAvailable() bool {
	return p.apiKey != ""
}

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if !p.IsAvailable() {
		return nil, fmt.Errorf("%w: ELEVENLABS_API_KEY not set", ErrProviderUnavailable)
	}
	if len(req.Text) > elevenLabsMaxText {
		return nil, ErrTextTooLong
	}

	startTime := time.Now()

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = p.config.DefaultVoice
	}

	payload := map[string]any{
		"text":     req.Text,
		"model_id": p.config.ModelID,
		"voice_settings": map[string]float64{
			"stability":        p.config.Stability,
			"similarity_boost": p.config.Similarity,
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", p.endpoint, voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ElevenLabs API error %d: %s", resp.StatusCode, string(body))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	processingTime := time.Since(startTime)

	p.logger.Info().
		Str("voice", voiceID).
		Int("audioBytes", len(audioData)).
		Dur("processingTime", processingTime).
		Msg("ElevenLabs TTS synthesis complete")

	return &SynthesizeResponse{
		Audio:          audioData,
		Format:         "mp3",
		ProcessingTime: processingTime,
		VoiceID:        voiceID,
		Provider:       p.Name(),
	}, nil
}

func (p *ElevenLabsProvider) Health(ctx context.Context) error {
	if !p.IsAvailable() {
		return ErrProviderUnavailable
	}
	return nil
}
