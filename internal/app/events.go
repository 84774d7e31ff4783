package app

import (
	"github.com/OskarRg/neurohackathon/internal/acquisition"
	"github.com/OskarRg/neurohackathon/internal/bus"
	"github.com/OskarRg/neurohackathon/internal/trigger"
)

// Event data keys shared by publishers and subscribers.
const (
	keyView         = "view"
	keyIntervention = "intervention"
	keyFrom         = "from"
	keyTo           = "to"
	keyLevel        = "level"
	keyStatus       = "status"
	keyPrevious     = "previous"
)

// busNotifier publishes trigger notifications on the event bus. Its methods
// run on the controller goroutine, so lastStatus needs no lock.
type busNotifier struct {
	bus        *bus.EventBus
	lastStatus acquisition.Status
}

func newBusNotifier(b *bus.EventBus) *busNotifier {
	return &busNotifier{bus: b}
}

func (n *busNotifier) NotifyTick(v trigger.View) {
	if v.SourceStatus != n.lastStatus {
		n.bus.PublishSync(bus.NewEvent(bus.EventTypeAcquisitionStatus, map[string]any{
			keyStatus:   v.SourceStatus,
			keyPrevious: n.lastStatus,
		}))
		n.lastStatus = v.SourceStatus
	}
	n.bus.Publish(bus.NewEvent(bus.EventTypeSnapshot, map[string]any{keyView: v}))
}

func (n *busNotifier) NotifyStateChange(v trigger.View, e trigger.Effect) {
	n.bus.PublishSync(bus.NewEvent(bus.EventTypeStateChanged, map[string]any{
		keyFrom:  e.From,
		keyTo:    e.To,
		keyLevel: e.Level,
		keyView:  v,
	}))
}

func (n *busNotifier) NotifyRecovered(v trigger.View, e trigger.Effect) {
	n.bus.PublishSync(bus.NewEvent(bus.EventTypeRecovered, map[string]any{
		keyLevel: e.Level,
		keyView:  v,
	}))
}

// NotifyIntervention publishes synchronously so subscribers see the phases
// of one intervention in order.
func (n *busNotifier) NotifyIntervention(i trigger.Intervention) {
	var t bus.EventType
	switch i.Phase {
	case trigger.PhaseStarted:
		t = bus.EventTypeInterventionStarted
	case trigger.PhaseText:
		t = bus.EventTypeInterventionText
	case trigger.PhaseDone:
		t = bus.EventTypeInterventionDone
	case trigger.PhaseRejected:
		t = bus.EventTypeInterventionRejected
	default:
		return
	}
	n.bus.PublishSync(bus.NewEvent(t, map[string]any{keyIntervention: i}))
}

func viewOf(e bus.Event) (trigger.View, bool) {
	v, ok := e.Data[keyView].(trigger.View)
	return v, ok
}

func interventionOf(e bus.Event) (trigger.Intervention, bool) {
	i, ok := e.Data[keyIntervention].(trigger.Intervention)
	return i, ok
}
