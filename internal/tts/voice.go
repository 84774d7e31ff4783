package tts

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Voice synthesizes text and plays it. Failures are logged and swallowed:
// a silent duck is better than a crashed one.
type Voice struct {
	provider Provider
	player   Player
	voiceID  string
	logger   zerolog.Logger
}

// NewVoice joins a provider and a player. A nil provider makes Speak a no-op.
func NewVoice(provider Provider, player Player, voiceID string, logger zerolog.Logger) *Voice {
	if player == nil {
		player = NopPlayer{}
	}
	return &Voice{
		provider: provider,
		player:   player,
		voiceID:  voiceID,
		logger:   logger.With().Str("component", "voice").Logger(),
	}
}

// Speak blocks until the text has been played.
func (v *Voice) Speak(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" || v.provider == nil {
		return
	}

	resp, err := v.provider.Synthesize(ctx, &SynthesizeRequest{Text: text, VoiceID: v.voiceID})
	if err != nil {
		v.logger.Error().Err(err).Str("provider", v.provider.Name()).Msg("Speech synthesis failed")
		return
	}
	if err := v.player.Play(ctx, resp.Audio, resp.Format); err != nil {
		v.logger.Error().Err(err).Msg("Audio playback failed")
	}
}

// PlayFile plays a prerecorded clip such as the gong. Missing files are
// logged and skipped.
func (v *Voice) PlayFile(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		v.logger.Warn().Str("path", path).Msg("Could not find audio")
		return
	}
	if err := v.player.PlayFile(ctx, path); err != nil {
		v.logger.Error().Err(err).Str("path", path).Msg("Audio playback failed")
	}
}
