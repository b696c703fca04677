// Package shortcode generates the 3-character redirect codes assigned to
// bookmarks. Codes are drawn uniformly from a 62-symbol alphabet, giving
// roughly 238 thousand combinations.
package shortcode

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
)

const symbols = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Length is the number of symbols in a short code.
const Length = 3

// MaxAttempts caps the retry loop in Unique. As the code space fills up the
// collision probability rises, so the search must fail explicitly instead of
// looping forever.
const MaxAttempts = 300

// ErrSpaceExhausted is returned when no free code was found within MaxAttempts tries.
var ErrSpaceExhausted = errors.New("the number of attempts to generate a unique short code has been exceeded")

// ExistenceChecker reports whether a candidate code is already taken.
type ExistenceChecker func(ctx context.Context, code string) (bool, error)

// Generate returns a random code of Length symbols from the alphabet [0-9a-zA-Z].
func Generate() (string, error) {
	result := make([]byte, Length)
	for i := range result {
		randomIndex, err := rand.Int(rand.Reader, big.NewInt(int64(len(symbols))))
		if err != nil {
			return "", err
		}
		result[i] = symbols[randomIndex.Int64()]
	}

	return string(result), nil
}

// Unique generates codes until isTaken reports a free one, giving up after
// MaxAttempts tries. The caller still has to treat the storage unique index as
// the source of truth: a code free at check time may be taken by the time it
// is inserted.
func Unique(ctx context.Context, isTaken ExistenceChecker) (string, error) {
	for i := 0; i < MaxAttempts; i++ {
		code, err := Generate()
		if err != nil {
			return "", err
		}

		taken, err := isTaken(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}

	return "", ErrSpaceExhausted
}
