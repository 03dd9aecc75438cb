package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultHashCost keeps a single hash in the 250-350ms range on commodity
// hardware. The slowness is the point: it caps offline brute-force throughput.
const DefaultHashCost = 12

// Hasher produces and verifies salted bcrypt password hashes.
type Hasher struct {
	cost int
}

func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultHashCost
	}
	return Hasher{cost: cost}
}

func (h Hasher) Hash(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether secret matches the stored hash. A malformed or
// truncated hash is an ordinary mismatch, indistinguishable from a wrong
// password. bcrypt compares the final digest in constant time.
func (h Hasher) Verify(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
