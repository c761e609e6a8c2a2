package extension

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// IDLength is the number of hex characters in an extension id.
const IDLength = 40

// IDFromPublicKey derives an extension id from a DER encoded public key: the
// first 160 bits of its SHA-256 digest in lowercase hex.
func IDFromPublicKey(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:IDLength/2])
}

// IsValidID reports whether s is exactly 40 lowercase hex characters.
func IsValidID(s string) bool {
	if len(s) != IDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// IDGenerator hands out sequential ids for extensions that have no key,
// starting from 0000000000000000000000000000000000000000.
type IDGenerator struct {
	mu   sync.Mutex
	next uint64
}

// NewIDGenerator returns a generator whose first id is all zeros.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the current counter as a 40 digit hex id and advances it.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("%040x", g.next)
	g.next++
	return id
}

// Reset returns the counter to zero.
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	g.next = 0
	g.mu.Unlock()
}
