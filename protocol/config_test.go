package protocol_test

import (
	"testing"

	"github.com/srlabs/arq-sim/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, protocol.DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	conf := protocol.DefaultConfig()
	conf.SeqSpace = 2*conf.WindowSize - 1
	assert.Error(t, conf.Validate(), "sequence-number disambiguation is unsound below 2*windowSize")

	conf = protocol.DefaultConfig()
	conf.WindowSize = 0
	assert.Error(t, conf.Validate())

	conf = protocol.DefaultConfig()
	conf.WindowSize = 51
	conf.SeqSpace = 102
	assert.Error(t, conf.Validate(), "the SACK encoding cannot represent sequence numbers above 99")

	conf = protocol.DefaultConfig()
	conf.RTT = 0
	assert.Error(t, conf.Validate())

	conf = protocol.DefaultConfig()
	conf.MaxSack = 10
	assert.Error(t, conf.Validate(), "the SACK count is a single decimal digit")

	conf = protocol.DefaultConfig()
	conf.MaxQueueSize = -1
	assert.Error(t, conf.Validate())
}
