package simulation

import (
	"container/heap"

	"github.com/srlabs/arq-sim/protocol"
)

type (
	entity int

	eventKind int

	// event is a scheduled occurrence in simulated time: an application
	// message arriving at the sender, a packet reaching the far end of a
	// channel, or a timer interrupt.
	event struct {
		time   float64
		kind   eventKind
		entity entity
		pkt    protocol.Packet
		msg    protocol.Message

		// timerGeneration matches the event against the timer state that
		// scheduled it, implementing lazy cancellation.
		timerGeneration int

		id int
	}

	// eventQueue is a min-heap of events ordered by time, with insertion
	// order breaking ties so equal-time events are delivered
	// deterministically.
	eventQueue struct {
		events eventHeap
		nextID int
	}

	eventHeap []*event
)

const (
	entitySender entity = iota
	entityReceiver
)

const (
	eventMessageArrival eventKind = iota
	eventPacketArrival
	eventTimerInterrupt
)

func (e entity) String() string {
	if e == entitySender {
		return "sender"
	}
	return "receiver"
}

func (q *eventQueue) push(ev *event) {
	ev.id = q.nextID
	q.nextID++
	heap.Push(&q.events, ev)
}

func (q *eventQueue) pop() *event {
	return heap.Pop(&q.events).(*event)
}

func (q *eventQueue) len() int {
	return len(q.events)
}

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	return h[i].id < h[j].id
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x interface{}) {
	*h = append(*h, x.(*event))
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}
