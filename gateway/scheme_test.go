package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangeScheme(t *testing.T) {
	scheme, err := RangeScheme(10, 19, 100)
	require.NoError(t, err)

	assert.Equal(t, 10, scheme.From)
	assert.Equal(t, 19, scheme.To)
	assert.Equal(t, 100, scheme.Total)

	ids := scheme.ShardIDs()
	require.Len(t, ids, 10)
	assert.Equal(t, 10, ids[0])
	assert.Equal(t, 19, ids[9])
}

func TestRangeSchemeInvalid(t *testing.T) {
	_, err := RangeScheme(50, 40, 100)
	require.Error(t, err)

	idErr, ok := err.(*IDTooLargeError)
	require.True(t, ok)
	assert.Equal(t, 50, idErr.Start)
	assert.Equal(t, 40, idErr.End)
	assert.Equal(t, 100, idErr.Total)

	_, err = RangeScheme(0, 100, 100)
	assert.Error(t, err)

	_, err = RangeScheme(-1, 0, 2)
	assert.Error(t, err)
}

func TestAutoScheme(t *testing.T) {
	scheme := AutoScheme()
	assert.True(t, scheme.Auto)
}
