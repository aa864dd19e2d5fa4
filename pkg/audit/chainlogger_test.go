package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainAppendsAndVerifies(t *testing.T) {
	c := NewChainLogger()

	entries := []*Entry{
		c.Append("deposit account=1"),
		c.Append("withdraw account=1"),
		c.Append("transfer source=1 target=2"),
	}

	require.Equal(t, uint64(1), entries[0].Seq)
	require.Equal(t, uint64(3), entries[2].Seq)
	assert.Equal(t, entries[0].Hash, entries[1].PreviousHash)
	assert.Equal(t, entries[1].Hash, entries[2].PreviousHash)
	assert.True(t, VerifyChain(entries))
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	c := NewChainLogger()

	entries := []*Entry{
		c.Append("deposit account=1"),
		c.Append("withdraw account=1"),
	}

	entries[0].Payload = "deposit account=999"
	assert.False(t, VerifyChain(entries))
}

func TestVerifyChainEmpty(t *testing.T) {
	assert.True(t, VerifyChain(nil))
}
