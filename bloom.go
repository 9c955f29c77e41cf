/*
Package bloom provides a Bloom filter together with a solver that sizes it.

A Bloom filter is a representation of a set of _n_ items, where the main
requirement is to make membership queries; _i.e._, whether an item is a
member of a set.

A Bloom filter has two parameters: _m_, the size of its bit table, and _k_,
the number of hashing functions applied to each key. A key is represented
in the filter by setting the bits at each hash value (modulo _m_).
Membership is checked by _testing_ the same bits. If the key was inserted,
a Bloom filter will never fail (the true positive rate is 1.0); but it is
susceptible to false positives. The art is to choose _k_ and _m_ correctly,
which is what Parameters.ComputeOptimal does:

	p := bloom.NewParameters(20000) // target error rate 1/20000
	p, err := p.ComputeOptimal()
	if err != nil {
		...
	}
	filter, err := bloom.New(p)
	filter.InsertString("Love")

and to test if "Love" is in the filter:

	if filter.ContainsString("Love")

The _k_ hash functions are one salted hash (MurmurHash3 by default) with
_k_ salts derived from Parameters.RandomSeed, so two filters built from the
same Parameters set the same bits for the same keys.

Keys are byte sequences. For numeric data use Uint64Key and Int64Key, or
anything implementing encoding.BinaryMarshaler:

	filter.Insert(bloom.Uint64Key(100))

The current error rate can be estimated from the number of insertions:

	if filter.EffectiveFalsePositiveProbability() > 0.001 ...

The estimate assumes independent insertions and no more keys than the
filter was sized for. It becomes less accurate the further the filter is
filled past that point.

Filters are not safe for concurrent use. Insert calls must be serialized;
Contains may run concurrently with other Contains calls only while no
Insert is in progress.
*/
package bloom

import (
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrBadProbability = errors.New("bloom: false positive probability must be in (0, 1)")
	ErrBadTableBounds = errors.New("bloom: table size bounds admit no multiple of 8")
	ErrBadHashBounds  = errors.New("bloom: number of hashes bounds invalid")
	ErrZeroTableSize  = errors.New("bloom: table size must be positive")
	ErrZeroHashes     = errors.New("bloom: number of hashes must be positive")
)

type BloomFilter interface {
	// Size returns the size, _m_, of the bit table in bits
	Size() uint64
	// K returns the number of hash functions used in the BloomFilter
	K() uint
	// Salts returns a copy of the per-hash salts
	Salts() []uint32
	// BitSet returns the underlying bitset for this filter.
	BitSet() BitSet
	// ElementNumber returns the number of Insert calls, duplicates included.
	ElementNumber() uint64
	// ProjectedElementNumber returns the capacity the filter was sized for.
	ProjectedElementNumber() uint64
	// Insert data into the Bloom Filter. Returns the filter (allows chaining)
	Insert(data []byte) BloomFilter
	// InsertString into the Bloom Filter. Returns the filter (allows chaining)
	InsertString(data string) BloomFilter
	// InsertMarshaler inserts the binary encoding of v.
	InsertMarshaler(v encoding.BinaryMarshaler) error
	// Contains returns true if the data is in the BloomFilter, false otherwise.
	// If true, the result might be a false positive. If false, the data
	// is definitely not in the set.
	Contains(data []byte) bool
	// ContainsString is Contains for a string key.
	ContainsString(data string) bool
	// ContainsMarshaler is Contains for the binary encoding of v.
	ContainsMarshaler(v encoding.BinaryMarshaler) (bool, error)
	// TestAndInsert is the equivalent to calling Contains(data) then Insert(data).
	// Returns the result of Contains.
	TestAndInsert(data []byte) bool
	// EffectiveFalsePositiveProbability estimates the current error rate as
	// (1 - e^(-k*n/m))^k with n = ElementNumber().
	EffectiveFalsePositiveProbability() float64
	// ApproximatedSize approximates the number of distinct items from the
	// number of set bits.
	// https://en.wikipedia.org/wiki/Bloom_filter#Approximating_the_number_of_items_in_a_Bloom_filter
	ApproximatedSize() uint64
	// Stats returns a snapshot of the filter's counters.
	Stats() Stats
	// Equal tests for the equality of two Bloom filters
	Equal(g BloomFilter) bool
}

// Stats is a point in time view of a filter.
type Stats struct {
	TableSize                         uint64  `json:"table_size"`
	NumberOfHashes                    uint    `json:"number_of_hashes"`
	ProjectedElementNumber            uint64  `json:"projected_element_number"`
	ElementNumber                     uint64  `json:"element_number"`
	SetBits                           uint64  `json:"set_bits"`
	EffectiveFalsePositiveProbability float64 `json:"effective_false_positive_probability"`
}

type options struct {
	bitset BitSet
	hash   HashFunc
	logger *slog.Logger
}

// Option configures New.
type Option func(*options)

// WithBitSet stores the bit table in b instead of an in-memory CellBitSet.
// The filter initializes b and owns it from then on.
func WithBitSet(b BitSet) Option {
	return func(o *options) { o.bitset = b }
}

// WithHash replaces the Murmur3 hash primitive.
func WithHash(h HashFunc) Option {
	return func(o *options) { o.hash = h }
}

// WithLogger sets the logger used for diagnostics. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a Bloom filter from solved parameters. TableSize and
// NumberOfHashes must be positive; a TableSize that is not a multiple of
// CellBits is rounded up to one.
func New(p Parameters, opts ...Option) (BloomFilter, error) {
	if p.TableSize == 0 {
		return nil, ErrZeroTableSize
	}
	if p.NumberOfHashes == 0 {
		return nil, ErrZeroHashes
	}
	o := options{hash: Murmur3}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bitset == nil {
		o.bitset = NewCellBitSet()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	m := p.TableSize
	if m%CellBits != 0 {
		if m > alignDownMax {
			m = alignDownMax
		} else {
			m = alignUp(m)
		}
	}
	f := &bloomFilterImpl{
		m:         m,
		k:         p.NumberOfHashes,
		projected: p.ProjectedElementNumber,
		salts:     GenerateSalts(p.RandomSeed, p.NumberOfHashes),
		hash:      o.hash,
		b:         o.bitset.Init(m),
	}
	o.logger.Debug("bloom filter created",
		"m", f.m,
		"k", f.k,
		"projected", f.projected,
		"seed", p.RandomSeed,
	)
	return f, nil
}

// alignDownMax is the largest table size that is a multiple of CellBits.
const alignDownMax = ^uint64(0) &^ (CellBits - 1)

// NewWithEstimates creates a new Bloom filter for about n items with fp
// false positive rate, using default bounds and seed.
func NewWithEstimates(n uint64, fp float64, opts ...Option) (BloomFilter, error) {
	p := NewParameters(n)
	p.FalsePositiveProbability = fp
	p, err := p.ComputeOptimal()
	if err != nil {
		return nil, fmt.Errorf("estimating parameters: %w", err)
	}
	return New(p, opts...)
}

// MeasureFalsePositiveRate builds a filter from p, inserts n integer
// keys and returns the share of rounds further integer keys that test
// positive. It is relatively expensive and only meant for validation.
func MeasureFalsePositiveRate(p Parameters, n uint64, rounds uint32, opts ...Option) (float64, error) {
	f, err := New(p, opts...)
	if err != nil {
		return 0, err
	}
	key := make([]byte, 8)
	for i := uint64(0); i < n; i++ {
		binary.LittleEndian.PutUint64(key, i)
		f.Insert(key)
	}
	if rounds == 0 {
		return 0, nil
	}
	fp := 0
	for i := uint64(0); i < uint64(rounds); i++ {
		binary.LittleEndian.PutUint64(key, n+1+i)
		if f.Contains(key) {
			fp++
		}
	}
	return float64(fp) / float64(rounds), nil
}
