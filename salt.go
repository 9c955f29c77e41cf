package bloom

import "math/rand/v2"

const (
	// seedMultiplier is odd, so seed mixing is a bijection on uint64.
	seedMultiplier = 0xA5A5A5A5

	// saltStream selects the PCG stream salts are drawn from.
	saltStream = 0x9E3779B97F4A7C15
)

// GenerateSalts derives count salts from seed. The same seed and count
// always give the same salts. Salts are not checked for duplicates.
func GenerateSalts(seed uint64, count uint) []uint32 {
	r := rand.New(rand.NewPCG(mixSeed(seed), saltStream))
	salts := make([]uint32, count)
	for i := range salts {
		salts[i] = r.Uint32()
	}
	return salts
}

// mixSeed spreads small or sequential seeds apart before they reach the
// generator.
func mixSeed(seed uint64) uint64 {
	return seed*seedMultiplier + 1
}
