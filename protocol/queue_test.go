package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageQueueFIFO(t *testing.T) {
	q := newMessageQueue(3)
	for _, c := range []byte{'a', 'b', 'c'} {
		var msg Message
		msg.Data[0] = c
		require.True(t, q.enqueue(msg))
	}
	for _, c := range []byte{'a', 'b', 'c'} {
		msg, ok := q.dequeue()
		require.True(t, ok)
		assert.Equal(t, c, msg.Data[0])
	}
	_, ok := q.dequeue()
	assert.False(t, ok)
}

func TestMessageQueueRejectsWhenFull(t *testing.T) {
	q := newMessageQueue(1)
	require.True(t, q.enqueue(Message{}))
	assert.False(t, q.enqueue(Message{}))
	assert.Equal(t, 1, q.len())
}
