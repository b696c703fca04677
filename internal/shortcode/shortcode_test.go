package shortcode

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := Generate()
		require.NoError(t, err)
		assert.Len(t, code, Length)
		for _, symbol := range code {
			assert.True(
				t,
				strings.ContainsRune(symbols, symbol),
				"code %q contains a symbol outside the alphabet",
				code,
			)
		}
	}
}

func TestUniqueReturnsFirstFreeCode(t *testing.T) {
	attempts := 0
	isTaken := func(ctx context.Context, code string) (bool, error) {
		attempts++
		return attempts <= 5, nil
	}

	code, err := Unique(context.Background(), isTaken)
	require.NoError(t, err)
	assert.Len(t, code, Length)
	assert.Equal(t, 6, attempts, "the first 5 candidates were taken")
}

func TestUniqueGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	everythingTaken := func(ctx context.Context, code string) (bool, error) {
		attempts++
		return true, nil
	}

	_, err := Unique(context.Background(), everythingTaken)
	require.ErrorIs(t, err, ErrSpaceExhausted)
	assert.Equal(t, MaxAttempts, attempts)
}

func TestUniquePropagatesCheckerError(t *testing.T) {
	isTaken := func(ctx context.Context, code string) (bool, error) {
		return false, context.DeadlineExceeded
	}

	_, err := Unique(context.Background(), isTaken)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
