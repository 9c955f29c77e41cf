/*
In this implementation, the hashing function used is murmurhash,
a non-cryptographic hashing function, salted once per hash slot.
*/
package bloom

import (
	"encoding"
	"math"
	"slices"
)

// A BloomFilter is a representation of a set of _n_ items, where the main
// requirement is to make membership queries; _i.e._, whether an item is a
// member of a set.
type bloomFilterImpl struct {
	m         uint64
	k         uint
	projected uint64
	inserted  uint64
	salts     []uint32
	hash      HashFunc
	b         BitSet
}

// location returns the bit hashed from data under the ith salt
func (f *bloomFilterImpl) location(data []byte, i int) uint64 {
	return f.hash(data, f.salts[i]) % f.m
}

func (f *bloomFilterImpl) Size() uint64 {
	return f.m
}

func (f *bloomFilterImpl) K() uint {
	return f.k
}

func (f *bloomFilterImpl) Salts() []uint32 {
	return slices.Clone(f.salts)
}

func (f *bloomFilterImpl) BitSet() BitSet {
	return f.b
}

func (f *bloomFilterImpl) ElementNumber() uint64 {
	return f.inserted
}

func (f *bloomFilterImpl) ProjectedElementNumber() uint64 {
	return f.projected
}

func (f *bloomFilterImpl) Insert(data []byte) BloomFilter {
	for i := range f.salts {
		f.b.Set(f.location(data, i))
	}
	f.inserted++
	return f
}

func (f *bloomFilterImpl) InsertString(data string) BloomFilter {
	return f.Insert([]byte(data))
}

func (f *bloomFilterImpl) InsertMarshaler(v encoding.BinaryMarshaler) error {
	data, err := v.MarshalBinary()
	if err != nil {
		return err
	}
	f.Insert(data)
	return nil
}

func (f *bloomFilterImpl) Contains(data []byte) bool {
	for i := range f.salts {
		if !f.b.Test(f.location(data, i)) {
			return false
		}
	}
	return true
}

func (f *bloomFilterImpl) ContainsString(data string) bool {
	return f.Contains([]byte(data))
}

func (f *bloomFilterImpl) ContainsMarshaler(v encoding.BinaryMarshaler) (bool, error) {
	data, err := v.MarshalBinary()
	if err != nil {
		return false, err
	}
	return f.Contains(data), nil
}

func (f *bloomFilterImpl) TestAndInsert(data []byte) bool {
	present := true
	for i := range f.salts {
		l := f.location(data, i)
		if !f.b.Test(l) {
			present = false
		}
		f.b.Set(l)
	}
	f.inserted++
	return present
}

func (f *bloomFilterImpl) EffectiveFalsePositiveProbability() float64 {
	k := float64(f.k)
	n := float64(f.inserted)
	m := float64(f.m)
	return math.Pow(1-math.Exp(-k*n/m), k)
}

func (f *bloomFilterImpl) ApproximatedSize() uint64 {
	x := float64(f.b.Count())
	m := float64(f.m)
	k := float64(f.k)
	if x >= m {
		return math.MaxUint64
	}
	size := -1 * m / k * math.Log(1-x/m)
	return uint64(math.Floor(size + 0.5)) // round
}

func (f *bloomFilterImpl) Stats() Stats {
	return Stats{
		TableSize:                         f.m,
		NumberOfHashes:                    f.k,
		ProjectedElementNumber:            f.projected,
		ElementNumber:                     f.inserted,
		SetBits:                           f.b.Count(),
		EffectiveFalsePositiveProbability: f.EffectiveFalsePositiveProbability(),
	}
}

// Equal reports whether g has the same size, salts and bits. Counters
// are not compared.
func (f *bloomFilterImpl) Equal(g BloomFilter) bool {
	return f.m == g.Size() &&
		f.k == g.K() &&
		slices.Equal(f.salts, g.Salts()) &&
		f.b.Equal(g.BitSet())
}
