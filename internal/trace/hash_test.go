package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redpiler/internal/world"
)

func TestStateFingerprint_Deterministic(t *testing.T) {
	snap := []world.Change{lampAt(0, true), lampAt(1, false)}

	a, err := StateFingerprint(snap)
	require.NoError(t, err)
	b, err := StateFingerprint([]world.Change{lampAt(0, true), lampAt(1, false)})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := StateFingerprint([]world.Change{lampAt(0, true), lampAt(1, true)})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestFingerprint_DomainSeparated(t *testing.T) {
	var tr Trace
	tr.Add(0, []world.Change{lampAt(0, true)})

	traceFP, err := tr.Fingerprint()
	require.NoError(t, err)
	stateFP, err := StateFingerprint([]world.Change{lampAt(0, true)})
	require.NoError(t, err)
	assert.NotEqual(t, traceFP, stateFP)
}

func TestFormatFingerprint(t *testing.T) {
	assert.Equal(t, "00000000000000ff", FormatFingerprint(0xff))
	assert.Len(t, FormatFingerprint(^uint64(0)), 16)
}
