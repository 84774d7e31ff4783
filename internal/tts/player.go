package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/rs/zerolog"
)

// Player plays encoded audio and blocks until playback ends.
type Player interface {
	Play(ctx context.Context, audio []byte, format string) error
	PlayFile(ctx context.Context, path string) error
}

// CommandPlayer hands audio to an external program such as mpg123 or afplay.
type CommandPlayer struct {
	command []string
	logger  zerolog.Logger
}

// NewCommandPlayer returns a player running command with the file path
// appended as the final argument.
func NewCommandPlayer(command []string, logger zerolog.Logger) *CommandPlayer {
	return &CommandPlayer{
		command: command,
		logger:  logger.With().Str("component", "player").Logger(),
	}
}

// Available reports whether the player binary is on PATH.
func (p *CommandPlayer) Available() bool {
	if len(p.command) == 0 {
		return false
	}
	_, err := exec.LookPath(p.command[0])
	return err == nil
}

func (p *CommandPlayer) Play(ctx context.Context, audio []byte, format string) error {
	if format == "" {
		format = "mp3"
	}
	tmpFile, err := os.CreateTemp("", "neuroduck-*."+format)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(audio); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	return p.PlayFile(ctx, tmpPath)
}

func (p *CommandPlayer) PlayFile(ctx context.Context, path string) error {
	if len(p.command) == 0 {
		return ErrNoPlayer
	}
	args := append(append([]string{}, p.command[1:]...), path)
	cmd := exec.CommandContext(ctx, p.command[0], args...)

	p.logger.Debug().Str("cmd", p.command[0]).Str("file", path).Msg("Playing audio")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", p.command[0], err, out)
	}
	return nil
}

// NopPlayer discards audio. It is used when no speakers are wanted.
type NopPlayer struct{}

func (NopPlayer) Play(context.Context, []byte, string) error { return nil }
func (NopPlayer) PlayFile(context.Context, string) error { return nil }
