package avatar

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OskarRg/neurohackathon/internal/trigger"
)

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) add(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func TestExpressionFor(t *testing.T) {
	assert.Equal(t, ExpressionCalm, ExpressionFor(trigger.StateZen))
	assert.Equal(t, ExpressionCurious, ExpressionFor(trigger.StateFocus))
	assert.Equal(t, ExpressionWorried, ExpressionFor(trigger.StateWorry))
	assert.Equal(t, ExpressionStoic, ExpressionFor(trigger.StateStoic))
	assert.Equal(t, ExpressionCalm, ExpressionFor(trigger.State("unknown")))
}

func TestApplyView_SuppressesJitter(t *testing.T) {
	c := NewController()
	rec := &recorder{}
	c.SetStateHandler(rec.add)

	c.ApplyView(trigger.View{Level: 0.1, State: trigger.StateZen})
	c.ApplyView(trigger.View{Level: 0.105, State: trigger.StateZen})
	c.ApplyView(trigger.View{Level: 0.6, State: trigger.StateWorry})

	states := rec.all()
	require.Len(t, states, 2)
	assert.Equal(t, ExpressionCalm, states[0].Expression)
	assert.Equal(t, ExpressionWorried, states[1].Expression)
	assert.InDelta(t, 0.6, c.GetState().Level, 1e-12)
}

func TestSpeechLifecycle(t *testing.T) {
	c := NewController()

	c.StartThinking()
	assert.True(t, c.GetState().IsThinking)

	c.Say("Focus on what you control.")
	s := c.GetState()
	assert.False(t, s.IsThinking)
	assert.True(t, s.IsSpeaking)
	assert.Equal(t, "Focus on what you control.", s.Message)

	c.SetIdle()
	s = c.GetState()
	assert.False(t, s.IsSpeaking)
	assert.Equal(t, "Focus on what you control.", s.Message)
}

func TestApplyView_LockKeepsThinking(t *testing.T) {
	c := NewController()
	c.StartThinking()

	c.ApplyView(trigger.View{Level: 0.95, State: trigger.StateStoic, Locked: true})
	assert.True(t, c.GetState().IsThinking)

	c.ApplyView(trigger.View{Level: 0.2, State: trigger.StateFocus})
	assert.False(t, c.GetState().IsThinking)
}

func TestBlink(t *testing.T) {
	c := NewController()
	c.blinkEvery = 10 * time.Millisecond
	rec := &recorder{}
	c.SetStateHandler(rec.add)

	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool {
		for _, s := range rec.all() {
			if s.EyeState == EyeClosed {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	c.Stop()
}

func TestBlink_NotWhileSpeaking(t *testing.T) {
	c := NewController()
	c.Say("hello")
	rec := &recorder{}
	c.SetStateHandler(rec.add)

	c.blink()
	assert.Empty(t, rec.all())
	assert.Equal(t, EyeOpen, c.GetState().EyeState)
}
