package mentor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdvisor struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	block   chan struct{}
	panics  bool
}

func (f *fakeAdvisor) GenerateAdvice(ctx context.Context, prompt string) string {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	if f.panics {
		panic("brain melted")
	}
	return f.reply
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
	files  []string
}

func (f *fakeSpeaker) Speak(_ context.Context, text string) {
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	f.mu.Unlock()
}

func (f *fakeSpeaker) PlayFile(_ context.Context, path string) {
	f.mu.Lock()
	f.files = append(f.files, path)
	f.mu.Unlock()
}

func (f *fakeSpeaker) snapshot() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...), append([]string(nil), f.files...)
}

func quickConfig() Config {
	cfg := DefaultConfig()
	cfg.Linger = 0
	cfg.GongPause = 0
	return cfg
}

func newTestMentor(adv *fakeAdvisor, sp *fakeSpeaker) *Mentor {
	return New(adv, sp, quickConfig(), zerolog.Nop())
}

func TestIntervene_RunsAdviceAndSpeaks(t *testing.T) {
	adv := &fakeAdvisor{reply: "Breathe, the build will pass."}
	sp := &fakeSpeaker{}
	m := newTestMentor(adv, sp)
	defer m.Close()

	var mu sync.Mutex
	var lines []string
	done := make(chan Result, 1)

	err := m.Intervene(context.Background(), Request{
		Trigger: TriggerChat,
		Prompt:  "My tests fail",
		Force:   true,
		OnResponse: func(text string) {
			mu.Lock()
			lines = append(lines, text)
			mu.Unlock()
		},
		OnDone: func(r Result) { done <- r },
	})
	require.NoError(t, err)

	res := <-done
	assert.Equal(t, TriggerChat, res.Trigger)
	assert.Equal(t, "Breathe, the build will pass.", res.Response)
	assert.NoError(t, res.Err)
	assert.False(t, m.IsSpeaking())

	mu.Lock()
	assert.Equal(t, []string{"Breathe, the build will pass."}, lines)
	mu.Unlock()
	spoken, _ := sp.snapshot()
	assert.Equal(t, []string{"Breathe, the build will pass."}, spoken)
}

func TestIntervene_OpeningWithGong(t *testing.T) {
	adv := &fakeAdvisor{reply: "advice"}
	sp := &fakeSpeaker{}
	cfg := quickConfig()
	cfg.GongPath = "gong.mp3"
	cfg.StarterAudioPath = filepath.Join(t.TempDir(), "starter.mp3")
	require.NoError(t, os.WriteFile(cfg.StarterAudioPath, []byte("x"), 0o644))
	m := New(adv, sp, cfg, zerolog.Nop())
	defer m.Close()

	done := make(chan Result, 1)
	require.NoError(t, m.Intervene(context.Background(), Request{
		Trigger: TriggerStress,
		Opening: ConversationStarter,
		Prompt:  "stress spiked",
		Force:   true,
		OnDone:  func(r Result) { done <- r },
	}))
	res := <-done

	spoken, files := sp.snapshot()
	assert.Equal(t, []string{"gong.mp3", cfg.StarterAudioPath}, files)
	assert.Equal(t, []string{"advice"}, spoken)
	assert.Equal(t, "advice", res.Response)
}

func TestIntervene_OpeningOnlySynthesizesWithoutRecording(t *testing.T) {
	sp := &fakeSpeaker{}
	m := newTestMentor(&fakeAdvisor{}, sp)
	defer m.Close()

	done := make(chan Result, 1)
	require.NoError(t, m.Intervene(context.Background(), Request{
		Opening: ConversationStarter,
		Force:   true,
		OnDone:  func(r Result) { done <- r },
	}))
	res := <-done
	spoken, _ := sp.snapshot()
	assert.Equal(t, []string{ConversationStarter}, spoken)
	assert.Equal(t, ConversationStarter, res.Response)
}

func TestIntervene_RejectsWhileBusy(t *testing.T) {
	adv := &fakeAdvisor{reply: "x", block: make(chan struct{})}
	m := newTestMentor(adv, &fakeSpeaker{})
	defer m.Close()

	require.NoError(t, m.Intervene(context.Background(), Request{Prompt: "a", Force: true}))
	assert.True(t, m.IsSpeaking())

	err := m.Intervene(context.Background(), Request{Prompt: "b", Force: true})
	assert.ErrorIs(t, err, ErrBusy)

	close(adv.block)
	m.wait()
	assert.False(t, m.IsSpeaking())

	adv.mu.Lock()
	assert.Equal(t, []string{"a"}, adv.prompts)
	adv.mu.Unlock()
}

func TestIntervene_Cooldown(t *testing.T) {
	m := newTestMentor(&fakeAdvisor{reply: "x"}, &fakeSpeaker{})
	defer m.Close()
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	assert.Zero(t, m.CooldownRemaining())
	require.NoError(t, m.Intervene(context.Background(), Request{Trigger: TriggerNudge, Prompt: "a"}))
	m.wait()

	now = now.Add(30 * time.Second)
	assert.Equal(t, 30*time.Second, m.CooldownRemaining())
	assert.ErrorIs(t, m.Intervene(context.Background(), Request{Prompt: "b"}), ErrCooldown)

	// Forced requests bypass the cooldown.
	require.NoError(t, m.Intervene(context.Background(), Request{Prompt: "c", Force: true}))
	m.wait()

	now = now.Add(61 * time.Second)
	require.NoError(t, m.Intervene(context.Background(), Request{Prompt: "d"}))
	m.wait()

	m.SetCooldown(time.Hour)
	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, m.Intervene(context.Background(), Request{Prompt: "e"}), ErrCooldown)
}

func TestIntervene_PanicStillCompletes(t *testing.T) {
	m := newTestMentor(&fakeAdvisor{panics: true}, &fakeSpeaker{})
	defer m.Close()

	done := make(chan Result, 1)
	require.NoError(t, m.Intervene(context.Background(), Request{
		Prompt: "boom",
		Force:  true,
		OnDone: func(r Result) { done <- r },
	}))
	res := <-done
	assert.Error(t, res.Err)
	assert.False(t, m.IsSpeaking())
}

func TestIntervene_CallbackPanicIsContained(t *testing.T) {
	sp := &fakeSpeaker{}
	m := newTestMentor(&fakeAdvisor{reply: "calm"}, sp)
	defer m.Close()

	done := make(chan Result, 1)
	require.NoError(t, m.Intervene(context.Background(), Request{
		Prompt:     "x",
		Force:      true,
		OnResponse: func(string) { panic("gui gone") },
		OnDone:     func(r Result) { done <- r },
	}))
	res := <-done
	assert.NoError(t, res.Err)
	spoken, _ := sp.snapshot()
	assert.Equal(t, []string{"calm"}, spoken)
}

func TestIntervene_EmptyAdviceFallsBack(t *testing.T) {
	m := newTestMentor(&fakeAdvisor{reply: ""}, &fakeSpeaker{})
	defer m.Close()

	done := make(chan Result, 1)
	require.NoError(t, m.Intervene(context.Background(), Request{Prompt: "x", Force: true, OnDone: func(r Result) { done <- r }}))
	assert.Contains(t, (<-done).Response, "Patience.")
}

func TestClose(t *testing.T) {
	adv := &fakeAdvisor{reply: "x", block: make(chan struct{})}
	m := newTestMentor(adv, &fakeSpeaker{})

	require.NoError(t, m.Intervene(context.Background(), Request{Prompt: "a", Force: true}))
	m.Close()
	assert.False(t, m.IsSpeaking())
	assert.ErrorIs(t, m.Intervene(context.Background(), Request{Prompt: "b", Force: true}), ErrClosed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, New(adv, nil, quickConfig(), zerolog.Nop()).Intervene(ctx, Request{}), context.Canceled)
}
