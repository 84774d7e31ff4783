package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/OskarRg/neurohackathon/internal/acquisition"
	"github.com/OskarRg/neurohackathon/internal/avatar"
	"github.com/OskarRg/neurohackathon/internal/bus"
	"github.com/OskarRg/neurohackathon/internal/metrics"
	"github.com/OskarRg/neurohackathon/internal/store"
	"github.com/OskarRg/neurohackathon/internal/trigger"
)

var (
	allStates   = []string{string(trigger.StateZen), string(trigger.StateFocus), string(trigger.StateWorry), string(trigger.StateStoic)}
	allStatuses = []string{
		string(acquisition.StatusDisconnected), string(acquisition.StatusConnecting), string(acquisition.StatusBuffering),
		string(acquisition.StatusComputed), string(acquisition.StatusError), string(acquisition.StatusSimulated),
	}
)

// journal is the part of the store the recorder writes to.
type journal interface {
	RecordSample(ctx context.Context, smp store.Sample) error
	RecordTransition(ctx context.Context, tr store.Transition) error
	StartIntervention(ctx context.Context, iv store.Intervention) (string, error)
	FinishIntervention(ctx context.Context, id, response, outcome string, at time.Time) error
}

// journalQueue bounds the events waiting for the database.
const journalQueue = 256

// journalRecorder writes bus events into the session journal on its own
// goroutine, in the order they were published. Bus handlers only enqueue,
// so a slow disk never holds up the publisher. Samples are thinned to one
// per interval.
type journalRecorder struct {
	journal  journal
	interval time.Duration
	logger   zerolog.Logger

	queue chan bus.Event
	done  chan struct{}

	qmu    sync.Mutex
	closed bool

	mu   sync.Mutex
	last time.Time
}

func newJournalRecorder(j journal, interval time.Duration, logger zerolog.Logger) *journalRecorder {
	r := &journalRecorder{
		journal:  j,
		interval: interval,
		logger:   logger.With().Str("component", "journal").Logger(),
		queue:    make(chan bus.Event, journalQueue),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *journalRecorder) attach(b *bus.EventBus) {
	b.SubscribeMultiple([]bus.EventType{
		bus.EventTypeSnapshot,
		bus.EventTypeStateChanged,
		bus.EventTypeInterventionStarted,
		bus.EventTypeInterventionDone,
		bus.EventTypeInterventionRejected,
	}, r.enqueue)
}

// enqueue never blocks. When the writer falls behind, the event is dropped.
func (r *journalRecorder) enqueue(e bus.Event) {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.logger.Warn().Str("type", string(e.Type)).Msg("Journal queue full, dropping event")
	}
}

func (r *journalRecorder) run() {
	defer close(r.done)
	for e := range r.queue {
		switch e.Type {
		case bus.EventTypeSnapshot:
			r.onSnapshot(e)
		case bus.EventTypeStateChanged:
			r.onStateChanged(e)
		default:
			r.onIntervention(e)
		}
	}
}

// close stops accepting events and waits for the queued ones to be written.
func (r *journalRecorder) close() {
	r.qmu.Lock()
	if r.closed {
		r.qmu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.qmu.Unlock()
	<-r.done
}

func (r *journalRecorder) onSnapshot(e bus.Event) {
	v, ok := viewOf(e)
	if !ok || v.SourceStatus != acquisition.StatusComputed && v.SourceStatus != acquisition.StatusSimulated {
		return
	}

	r.mu.Lock()
	if !r.last.IsZero() && e.Timestamp.Sub(r.last) < r.interval {
		r.mu.Unlock()
		return
	}
	r.last = e.Timestamp
	r.mu.Unlock()

	err := r.journal.RecordSample(context.Background(), store.Sample{
		At:           e.Timestamp,
		Ratio:        v.Ratio,
		Normalized:   v.Normalized,
		Level:        v.Level,
		State:        string(v.State),
		Mood:         string(v.Mood),
		SourceStatus: string(v.SourceStatus),
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to record sample")
	}
}

func (r *journalRecorder) onStateChanged(e bus.Event) {
	from, _ := e.Data[keyFrom].(trigger.State)
	to, _ := e.Data[keyTo].(trigger.State)
	level, _ := e.Data[keyLevel].(float64)

	err := r.journal.RecordTransition(context.Background(), store.Transition{
		At: e.Timestamp, From: string(from), To: string(to), Level: level,
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to record transition")
	}
}

func (r *journalRecorder) onIntervention(e bus.Event) {
	i, ok := interventionOf(e)
	if !ok {
		return
	}
	ctx := context.Background()

	var err error
	switch i.Phase {
	case trigger.PhaseStarted:
		_, err = r.journal.StartIntervention(ctx, store.Intervention{
			ID: i.ID, Trigger: string(i.Trigger), StartedAt: i.At, Prompt: i.Prompt,
		})
	case trigger.PhaseDone:
		outcome := store.OutcomeCompleted
		if i.Error != "" {
			outcome = store.OutcomeFailed
		}
		err = r.journal.FinishIntervention(ctx, i.ID, i.Text, outcome, i.At)
	case trigger.PhaseRejected:
		at := i.At
		_, err = r.journal.StartIntervention(ctx, store.Intervention{
			ID: i.ID, Trigger: string(i.Trigger), StartedAt: i.At, FinishedAt: &at,
			Prompt: i.Prompt, Response: i.Error, Outcome: store.OutcomeRejected,
		})
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("id", i.ID).Str("phase", string(i.Phase)).Msg("Failed to record intervention")
	}
}

// attachMetrics keeps the Prometheus collectors in step with the bus.
func attachMetrics(b *bus.EventBus) {
	b.Subscribe(bus.EventTypeSnapshot, func(e bus.Event) {
		v, ok := viewOf(e)
		if !ok {
			return
		}
		metrics.StressRatio.Set(v.Ratio)
		metrics.StressLevel.Set(v.Normalized)
		metrics.BandRelativePower.WithLabelValues("alpha").Set(v.AlphaRel)
		metrics.BandRelativePower.WithLabelValues("beta").Set(v.BetaRel)
		metrics.SetOneHot(metrics.TriggerState, allStates, string(v.State))
	})
	b.Subscribe(bus.EventTypeAcquisitionStatus, func(e bus.Event) {
		if s, ok := e.Data[keyStatus].(acquisition.Status); ok {
			metrics.SetOneHot(metrics.SourceStatus, allStatuses, string(s))
		}
	})
	b.SubscribeMultiple([]bus.EventType{bus.EventTypeInterventionDone, bus.EventTypeInterventionRejected}, func(e bus.Event) {
		i, ok := interventionOf(e)
		if !ok {
			return
		}
		switch {
		case i.Phase == trigger.PhaseRejected:
			metrics.Interventions.WithLabelValues(string(i.Trigger), store.OutcomeRejected).Inc()
		case i.Error != "":
			metrics.Interventions.WithLabelValues(string(i.Trigger), store.OutcomeFailed).Inc()
			metrics.InterventionDuration.Observe(i.Took.Seconds())
		default:
			metrics.Interventions.WithLabelValues(string(i.Trigger), store.OutcomeCompleted).Inc()
			metrics.InterventionDuration.Observe(i.Took.Seconds())
		}
	})
}

// attachAvatar drives the duck from the bus and publishes its state back.
func attachAvatar(b *bus.EventBus, a *avatar.Controller) {
	a.SetStateHandler(func(s avatar.State) {
		b.Publish(bus.NewEvent(bus.EventTypeAvatarState, map[string]any{"state": s}))
	})
	b.Subscribe(bus.EventTypeSnapshot, func(e bus.Event) {
		if v, ok := viewOf(e); ok {
			a.ApplyView(v)
		}
	})
	b.Subscribe(bus.EventTypeInterventionStarted, func(bus.Event) { a.StartThinking() })
	b.Subscribe(bus.EventTypeInterventionText, func(e bus.Event) {
		if i, ok := interventionOf(e); ok {
			a.Say(i.Text)
		}
	})
	b.SubscribeMultiple([]bus.EventType{bus.EventTypeInterventionDone, bus.EventTypeInterventionRejected}, func(bus.Event) {
		a.SetIdle()
	})
}
