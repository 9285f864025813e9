package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint64ToInt63(t *testing.T) {
	v, err := Uint64ToInt63(0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	v, err = Uint64ToInt63(math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), v)

	_, err = Uint64ToInt63(math.MaxInt64 + 1)
	assert.Error(t, err)

	_, err = Uint64ToInt63(math.MaxUint64)
	assert.Error(t, err)
}
