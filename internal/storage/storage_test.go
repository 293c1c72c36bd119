package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInt64(t *testing.T) {
	v, err := Int64("block_number", math.MaxInt64)
	require.NoError(t, err)
	require.Equal(t, int64(math.MaxInt64), v)

	_, err = Int64("block_number", math.MaxInt64+1)
	require.ErrorIs(t, err, ErrInvalidValue)
	require.ErrorContains(t, err, "block_number")
}

func TestNilAmountIsInvalidValue(t *testing.T) {
	require.ErrorIs(t, ErrNilAmount, ErrInvalidValue)
}
