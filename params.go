package bloom

import (
	"fmt"
	"math"
)

const (
	// CellBits is the width of one storage cell of the bit table.
	// Table sizes are always a multiple of it.
	CellBits = 8

	// DefaultProjectedElementNumber is the capacity used by DefaultParameters.
	DefaultProjectedElementNumber = 10000

	// DefaultRandomSeed is the salt seed used by DefaultParameters.
	DefaultRandomSeed uint64 = 0xA5A5A5A55A5A5A5A

	// maxHashSearch is the largest hash count the optimizer tries.
	maxHashSearch = 1000
)

// Parameters holds the sizing inputs of a Bloom filter and, once
// ComputeOptimal has run, the solved table size and hash count.
type Parameters struct {
	// ProjectedElementNumber is the number of distinct keys the filter
	// is sized for.
	ProjectedElementNumber uint64
	// FalsePositiveProbability is the target error rate, in (0, 1).
	FalsePositiveProbability float64

	// Inclusive bounds on the table size, in bits.
	MinTableSize uint64
	MaxTableSize uint64

	// Inclusive bounds on the number of hash functions.
	MinNumberOfHashes uint
	MaxNumberOfHashes uint

	// RandomSeed derives the per-hash salts.
	RandomSeed uint64

	// TableSize is the solved table size in bits.
	TableSize uint64
	// NumberOfHashes is the solved number of hash functions.
	NumberOfHashes uint
}

// DefaultParameters returns parameters for DefaultProjectedElementNumber
// keys with a target error rate of one in that many.
func DefaultParameters() Parameters {
	return NewParameters(DefaultProjectedElementNumber)
}

// NewParameters returns default bounds and seed for n projected keys.
// The target error rate defaults to 1/n. When n is zero (or one, which
// makes 1/n equal to 1) the caller must set FalsePositiveProbability,
// otherwise ComputeOptimal rejects it.
func NewParameters(n uint64) Parameters {
	p := Parameters{
		ProjectedElementNumber: n,
		MinTableSize:           1,
		MaxTableSize:           math.MaxUint64,
		MinNumberOfHashes:      1,
		MaxNumberOfHashes:      math.MaxUint32,
		RandomSeed:             DefaultRandomSeed,
	}
	if n > 0 {
		p.FalsePositiveProbability = 1 / float64(n)
	}
	return p
}

// ComputeOptimalParameters is the function form of Parameters.ComputeOptimal.
func ComputeOptimalParameters(p Parameters) (Parameters, error) {
	return p.ComputeOptimal()
}

// ComputeOptimal searches hash counts 1..1000 for the one that needs the
// smallest table to reach the target error rate for the projected number
// of keys, using
//
//	m(k) = -(k*n) / ln(1 - p^(1/k))
//
// The hash count is truncated, the table size rounded up to a multiple of
// CellBits, and both are then clamped into their bounds. Clamping wins
// over the error target, so the realized error rate may be higher than
// requested.
//
// Table bounds are aligned inward to multiples of CellBits before
// clamping. An error is returned only for an error rate outside (0, 1)
// or for bounds that admit no value.
func (p Parameters) ComputeOptimal() (Parameters, error) {
	fpp := p.FalsePositiveProbability
	if math.IsNaN(fpp) || fpp <= 0 || fpp >= 1 {
		return p, fmt.Errorf("%w: %v", ErrBadProbability, fpp)
	}
	if p.MaxNumberOfHashes == 0 || p.MinNumberOfHashes > p.MaxNumberOfHashes {
		return p, fmt.Errorf("%w: [%d, %d]", ErrBadHashBounds, p.MinNumberOfHashes, p.MaxNumberOfHashes)
	}
	minM, maxM, ok := alignTableBounds(p.MinTableSize, p.MaxTableSize)
	if !ok {
		return p, fmt.Errorf("%w: [%d, %d]", ErrBadTableBounds, p.MinTableSize, p.MaxTableSize)
	}

	var (
		n        = float64(p.ProjectedElementNumber)
		optimalM = math.Inf(1)
		optimalK = 0.0
	)
	for k := 1.0; k <= maxHashSearch; k++ {
		m := -(k * n) / math.Log(1-math.Pow(fpp, 1/k))
		// 1 - p^(1/k) underflows to 0 for large k and p close to 1.
		if math.IsNaN(m) || math.IsInf(m, 0) || (n > 0 && m <= 0) {
			continue
		}
		if m < optimalM {
			optimalM = m
			optimalK = k
		}
	}
	if optimalK == 0 {
		optimalK, optimalM = 1, 0
	}

	p.NumberOfHashes = clampHashes(uint(optimalK), p.MinNumberOfHashes, p.MaxNumberOfHashes)

	m := maxM
	if c := math.Ceil(optimalM); c < float64(maxM) {
		m = alignUp(uint64(c))
	}
	switch {
	case m < minM:
		m = minM
	case m > maxM:
		m = maxM
	}
	p.TableSize = m
	return p, nil
}

func clampHashes(k, lo, hi uint) uint {
	if k < lo {
		return lo
	}
	if k > hi {
		return hi
	}
	return k
}

// alignUp rounds x up to a multiple of CellBits. x must be at most
// math.MaxUint64 - CellBits + 1.
func alignUp(x uint64) uint64 {
	return (x + CellBits - 1) &^ (CellBits - 1)
}

// alignTableBounds narrows [lo, hi] to the multiples of CellBits it
// contains, excluding zero.
func alignTableBounds(lo, hi uint64) (uint64, uint64, bool) {
	if lo > math.MaxUint64-CellBits+1 {
		return 0, 0, false
	}
	lo = alignUp(lo)
	if lo == 0 {
		lo = CellBits
	}
	hi &^= CellBits - 1
	if lo > hi {
		return 0, 0, false
	}
	return lo, hi, true
}
