package str

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// BuildHasher produces keyed hashes of string contents. The key is drawn
// from the operating system's random source so hash values are not
// predictable across processes, which keeps hash-flooding inputs from
// being precomputed. Hashes are stable for the lifetime of one
// BuildHasher only.
type BuildHasher struct {
	seed uint64
}

// NewRandomBuildHasher returns a BuildHasher with a fresh random key.
func NewRandomBuildHasher() (*BuildHasher, error) {
	var key [8]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("str: seed hasher: %w", err)
	}
	return &BuildHasher{seed: binary.LittleEndian.Uint64(key[:])}, nil
}

// globalBuildHasher is initialised on first use and read-only afterwards.
var globalBuildHasher = sync.OnceValues(NewRandomBuildHasher)

// GlobalBuildHasher returns the process-wide hasher used for String#hash.
// The key is chosen once per process and never changes afterwards.
func GlobalBuildHasher() (*BuildHasher, error) {
	return globalBuildHasher()
}

// Sum64 hashes b with the hasher's key.
func (h *BuildHasher) Sum64(b []byte) uint64 {
	d := xxhash.NewWithSeed(h.seed)
	_, _ = d.Write(b)
	return d.Sum64()
}

// Hash returns the 32-bit content hash of s under h. Equal byte sequences
// hash identically for the same h regardless of encoding.
func (s *String) Hash(h *BuildHasher) uint32 {
	return uint32(h.Sum64(s.buf))
}
