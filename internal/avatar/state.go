// Package avatar manages the duck's displayed state and idle animation
package avatar

import (
	"math"
	"sync"
	"time"

	"github.com/OskarRg/neurohackathon/internal/trigger"
)

// Expression is the duck's face for a stress band
type Expression string

const (
	ExpressionCalm    Expression = "calm"
	ExpressionCurious Expression = "curious"
	ExpressionWorried Expression = "worried"
	ExpressionStoic   Expression = "stoic"
)

// EyeState represents eye animation state
type EyeState string

const (
	EyeOpen   EyeState = "open"
	EyeClosed EyeState = "closed"
)

// ExpressionFor maps a trigger state onto a face.
func ExpressionFor(s trigger.State) Expression {
	switch s {
	case trigger.StateFocus:
		return ExpressionCurious
	case trigger.StateWorry:
		return ExpressionWorried
	case trigger.StateStoic:
		return ExpressionStoic
	default:
		return ExpressionCalm
	}
}

// State represents what the GUI should draw
type State struct {
	Expression Expression    `json:"expression"`
	EyeState   EyeState      `json:"eyeState"`
	Stress     trigger.State `json:"stressState"`
	Level      float64       `json:"level"`
	IsSpeaking bool          `json:"isSpeaking"`
	IsThinking bool          `json:"isThinking"`
	Message    string        `json:"message,omitempty"`
}

// levelStep is the smallest level change worth redrawing.
const levelStep = 0.01

// Controller manages avatar state transitions
type Controller struct {
	state State
	mu    sync.RWMutex

	onStateChange func(State)

	blinkEvery time.Duration
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// NewController creates a calm duck.
func NewController() *Controller {
	return &Controller{
		state: State{
			Expression: ExpressionCalm,
			EyeState:   EyeOpen,
			Stress:     trigger.StateZen,
		},
		blinkEvery: 4 * time.Second,
		stopChan:   make(chan struct{}),
	}
}

// SetStateHandler sets the callback for state changes. Set it before Start.
func (c *Controller) SetStateHandler(handler func(State)) {
	c.onStateChange = handler
}

// Start begins the blink loop
func (c *Controller) Start() {
	ticker := time.NewTicker(c.blinkEvery)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-c.stopChan:
				return
			case <-ticker.C:
				c.blink()
			}
		}
	}()
}

// Stop halts the blink loop. It is safe to call more than once.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

// GetState returns the current state
func (c *Controller) GetState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// ApplyView follows the trigger's displayed level and band. Small level
// jitter inside the same band is not reported.
func (c *Controller) ApplyView(v trigger.View) {
	c.mu.Lock()
	prev := c.state
	c.state.Level = v.Level
	c.state.Stress = v.State
	c.state.Expression = ExpressionFor(v.State)
	c.state.IsSpeaking = v.Speaking
	if !v.Speaking && !v.Locked {
		c.state.IsThinking = false
	}
	state := c.state
	c.mu.Unlock()

	if changed(prev, state) {
		c.notifyStateChange(state)
	}
}

// StartThinking shows the duck pondering while advice is generated.
func (c *Controller) StartThinking() {
	c.mu.Lock()
	c.state.IsThinking = true
	state := c.state
	c.mu.Unlock()

	c.notifyStateChange(state)
}

// Say shows the mentor's words in the speech bubble.
func (c *Controller) Say(text string) {
	c.mu.Lock()
	c.state.IsThinking = false
	c.state.IsSpeaking = true
	c.state.Message = text
	state := c.state
	c.mu.Unlock()

	c.notifyStateChange(state)
}

// SetIdle clears speech and thought.
func (c *Controller) SetIdle() {
	c.mu.Lock()
	c.state.IsSpeaking = false
	c.state.IsThinking = false
	c.state.EyeState = EyeOpen
	state := c.state
	c.mu.Unlock()

	c.notifyStateChange(state)
}

func (c *Controller) blink() {
	c.mu.Lock()
	// Don't blink while speaking
	if c.state.IsSpeaking {
		c.mu.Unlock()
		return
	}
	c.state.EyeState = EyeClosed
	state := c.state
	c.mu.Unlock()

	c.notifyStateChange(state)

	time.AfterFunc(150*time.Millisecond, func() {
		c.mu.Lock()
		c.state.EyeState = EyeOpen
		state := c.state
		c.mu.Unlock()
		c.notifyStateChange(state)
	})
}

func (c *Controller) notifyStateChange(state State) {
	if c.onStateChange != nil {
		c.onStateChange(state)
	}
}

func changed(a, b State) bool {
	if a.Stress != b.Stress || a.IsSpeaking != b.IsSpeaking || a.IsThinking != b.IsThinking {
		return true
	}
	return math.Abs(a.Level-b.Level) >= levelStep
}
