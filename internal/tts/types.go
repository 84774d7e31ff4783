// Package tts gives the mentor a voice: synthesis providers and local playback.
package tts

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrProviderUnavailable = errors.New("TTS provider unavailable")
	ErrTextTooLong         = errors.New("text exceeds maximum length")
	ErrNoPlayer            = errors.New("no audio player command configured")
)

// Provider converts text to encoded audio.
type Provider interface {
	// Name returns the provider identifier (e.g., "elevenlabs")
	Name() string

	// Synthesize converts text to audio
	Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error)

	// Health checks if the provider is available
	Health(ctx context.Context) error
}

// SynthesizeRequest represents a synthesis request
type SynthesizeRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

// SynthesizeResponse represents a synthesis result
type SynthesizeResponse struct {
	Audio          []byte        `json:"audio"`
	Format         string        `json:"format"`
	ProcessingTime time.Duration `json:"processing_time"`
	VoiceID        string        `json:"voice_id"`
	Provider       string        `json:"provider"`
}

// Config holds voice settings as they appear in the config file.
type Config struct {
	Enabled     bool     `mapstructure:"enabled" yaml:"enabled"`
	VoiceID     string   `mapstructure:"voice_id" yaml:"voice_id"`
	ModelID     string   `mapstructure:"model_id" yaml:"model_id"`
	Stability   float64  `mapstructure:"stability" yaml:"stability"`
	Similarity  float64  `mapstructure:"similarity_boost" yaml:"similarity_boost"`
	PlayCommand []string `mapstructure:"play_command" yaml:"play_command"`
}

// DefaultConfig uses the deep Stoic voice and mpg123 for playback.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		VoiceID:     StoicVoiceID,
		ModelID:     "eleven_turbo_v2_5",
		Stability:   0.5,
		Similarity:  0.75,
		PlayCommand: []string{"mpg123", "-q"},
	}
}
