package sequence

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Alphabet omits look-alike characters (0/O, 1/I).
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const DefaultCodeLength = 8

// GenerateCode returns length characters drawn uniformly from Alphabet.
// Uniqueness is not guaranteed; callers handle collisions on insert.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}
	return randomAlphaNumeric(length)
}

func randomAlphaNumeric(n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(Alphabet)))
	for i := range b {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		b[i] = Alphabet[num.Int64()]
	}
	return string(b), nil
}
