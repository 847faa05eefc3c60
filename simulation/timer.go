package simulation

import (
	"github.com/sirupsen/logrus"
)

// simTimer implements protocol.Timer by scheduling timer-interrupt
// events in simulated time. Stop() does not remove the pending event:
// it bumps the generation counter so the stale event is ignored when
// popped (lazy cancellation).
type simTimer struct {
	sim        *Simulator
	entity     entity
	l          logrus.FieldLogger
	generation int
	running    bool
}

func newSimTimer(sim *Simulator, e entity) *simTimer {
	return &simTimer{
		sim:    sim,
		entity: e,
		l:      logrus.WithField("entity", e.String()),
	}
}

func (t *simTimer) Start(duration float64) {
	if t.running {
		// one logical timer slot per entity. the protocol entities
		// always stop before restarting, so this is a protocol error.
		t.l.Error("timer started while already running")
	}
	t.generation++
	t.running = true
	t.sim.schedule(&event{
		time:            t.sim.now + duration,
		kind:            eventTimerInterrupt,
		entity:          t.entity,
		timerGeneration: t.generation,
	})
}

func (t *simTimer) Stop() {
	if !t.running {
		t.l.Error("timer stopped while not running")
		return
	}
	t.running = false
	t.generation++
}

// expired reports whether the popped timer event is still live, and
// clears the running flag if so.
func (t *simTimer) expired(ev *event) bool {
	if !t.running || ev.timerGeneration != t.generation {
		return false
	}
	t.running = false
	return true
}
