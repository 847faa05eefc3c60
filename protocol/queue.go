package protocol

// messageQueue is a bounded FIFO holding application messages that
// arrived while the send window was full. It is drained by the sender
// immediately after acknowledgments free window slots.
type messageQueue struct {
	msgs []Message
	max  int
}

func newMessageQueue(max int) *messageQueue {
	return &messageQueue{max: max}
}

// enqueue appends the message, failing when the queue is at capacity.
func (q *messageQueue) enqueue(msg Message) bool {
	if len(q.msgs) == q.max {
		return false
	}
	q.msgs = append(q.msgs, msg)
	return true
}

func (q *messageQueue) dequeue() (Message, bool) {
	if len(q.msgs) == 0 {
		return Message{}, false
	}
	msg := q.msgs[0]
	q.msgs = q.msgs[1:]
	return msg, true
}

func (q *messageQueue) len() int {
	return len(q.msgs)
}
