package bloom

import (
	"github.com/cespare/xxhash/v2"
	"github.com/twmb/murmur3"
)

// HashFunc hashes data under a salt. Each distinct salt is expected to
// behave like an independent uniform hash function, which is how a filter
// gets k hash functions out of a single primitive.
type HashFunc func(data []byte, salt uint32) uint64

// Murmur3 is the default HashFunc: 32-bit MurmurHash3 seeded with the salt.
func Murmur3(data []byte, salt uint32) uint64 {
	return uint64(murmur3.SeedSum32(salt, data))
}

// Murmur3x64 is the 64-bit variant of MurmurHash3. Prefer it for tables
// larger than 2^32 bits, which the 32-bit variant cannot address evenly.
func Murmur3x64(data []byte, salt uint32) uint64 {
	return murmur3.SeedSum64(uint64(salt), data)
}

// XXHash is xxHash64 seeded with the salt.
func XXHash(data []byte, salt uint32) uint64 {
	d := xxhash.NewWithSeed(uint64(salt))
	d.Write(data)
	return d.Sum64()
}
