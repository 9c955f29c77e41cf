package bloom

import (
	"encoding/binary"
	"errors"
	"math"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestFilter(t testing.TB, n uint64, opts ...Option) BloomFilter {
	t.Helper()
	p, err := NewParameters(n).ComputeOptimal()
	require.NoError(t, err)
	f, err := New(p, opts...)
	require.NoError(t, err)
	return f
}

func TestBasic(t *testing.T) {
	f := newTestFilter(t, 1000)
	n1 := []byte("Bess")
	n2 := []byte("Jane")
	n3 := []byte("Emma")
	f.Insert(n1)
	n3a := f.TestAndInsert(n3)
	n1b := f.Contains(n1)
	n2b := f.Contains(n2)
	n3b := f.Contains(n3)
	if !n1b {
		t.Errorf("%v should be in.", n1)
	}
	if n2b {
		t.Errorf("%v should not be in.", n2)
	}
	if n3a {
		t.Errorf("%v should not be in the first time we look.", n3)
	}
	if !n3b {
		t.Errorf("%v should be in the second time we look.", n3)
	}
	if f.ElementNumber() != 2 {
		t.Errorf("element number %d should be 2", f.ElementNumber())
	}
}

func TestBasicUint64(t *testing.T) {
	f := newTestFilter(t, 1000)
	f.Insert(Uint64Key(100))
	f.Insert(Int64Key(-1))
	if !f.Contains(Uint64Key(100)) {
		t.Errorf("100 should be in.")
	}
	if !f.Contains(Uint64Key(math.MaxUint64)) {
		t.Errorf("-1 and MaxUint64 share an encoding and should be in.")
	}
	if f.Contains(Uint64Key(101)) {
		t.Errorf("101 should not be in.")
	}
}

func TestExampleScenario(t *testing.T) {
	p := NewParameters(20000)
	p.FalsePositiveProbability = 1.0 / 20000
	p, err := p.ComputeOptimal()
	require.NoError(t, err)
	f, err := New(p)
	require.NoError(t, err)

	for i := int64(1); i <= 5; i++ {
		f.Insert(Int64Key(i))
	}
	for _, s := range []string{"hello", "xz", "I", "love", "U"} {
		f.InsertString(s)
	}
	require.True(t, f.ContainsString("hello"))
	require.True(t, f.Contains(Int64Key(2)))
	require.Equal(t, uint64(10), f.ElementNumber())
	require.Equal(t, uint64(20000), f.ProjectedElementNumber())
	// With 10 keys in a table sized for 20000 the estimate is tiny.
	require.Less(t, f.EffectiveFalsePositiveProbability(), 1e-20)
	require.False(t, f.ContainsString("nonexistent-xyz"))
}

func TestEmptyFilterContainsNothing(t *testing.T) {
	f := newTestFilter(t, 1000)
	for i := uint64(0); i < 10000; i++ {
		if f.Contains(Uint64Key(i)) {
			t.Fatalf("empty filter reports %d as present", i)
		}
	}
	require.False(t, f.Contains(nil))
	require.Zero(t, f.EffectiveFalsePositiveProbability())
	require.Zero(t, f.BitSet().Count())
}

func TestEmptyKey(t *testing.T) {
	f := newTestFilter(t, 100)
	f.Insert([]byte{})
	require.True(t, f.Contains(nil))
	require.True(t, f.ContainsString(""))
}

func TestNoFalseNegatives(t *testing.T) {
	f := newTestFilter(t, 5000)
	key := make([]byte, 4)
	for i := uint32(0); i < 5000; i++ {
		binary.BigEndian.PutUint32(key, i)
		f.Insert(key)
	}
	// Keep filling well past capacity; earlier keys must stay present.
	for i := uint32(5000); i < 50000; i++ {
		binary.BigEndian.PutUint32(key, i)
		f.Insert(key)
	}
	for i := uint32(0); i < 50000; i++ {
		binary.BigEndian.PutUint32(key, i)
		if !f.Contains(key) {
			t.Fatalf("%d should be in.", i)
		}
	}
}

func TestDuplicateInsert(t *testing.T) {
	f := newTestFilter(t, 1000)
	f.InsertString("twice")
	before := f.BitSet().(*CellBitSet).Bytes()
	f.InsertString("twice")
	after := f.BitSet().(*CellBitSet).Bytes()
	require.Equal(t, before, after)
	require.Equal(t, uint64(2), f.ElementNumber())
}

func TestDeterministicSalts(t *testing.T) {
	p, err := NewParameters(2000).ComputeOptimal()
	require.NoError(t, err)
	f, err := New(p)
	require.NoError(t, err)
	g, err := New(p)
	require.NoError(t, err)
	for _, s := range []string{"a", "b", "c", "hello", ""} {
		f.InsertString(s)
		g.InsertString(s)
	}
	require.Equal(t, f.Salts(), g.Salts())
	require.True(t, f.Equal(g))
	require.Equal(t,
		f.BitSet().(*CellBitSet).Bytes(),
		g.BitSet().(*CellBitSet).Bytes(),
	)

	p.RandomSeed++
	h, err := New(p)
	require.NoError(t, err)
	require.NotEqual(t, f.Salts(), h.Salts())
	require.False(t, f.Equal(h))
}

func TestEffectiveFalsePositiveProbabilityMonotonic(t *testing.T) {
	f := newTestFilter(t, 1000)
	prev := f.EffectiveFalsePositiveProbability()
	for i := uint64(0); i < 3000; i++ {
		f.Insert(Uint64Key(i))
		cur := f.EffectiveFalsePositiveProbability()
		if cur < prev {
			t.Fatalf("estimate decreased from %g to %g after %d inserts", prev, cur, i+1)
		}
		prev = cur
	}
	require.LessOrEqual(t, prev, 1.0)
}

func TestEffectiveFalsePositiveProbabilityAtCapacity(t *testing.T) {
	const n = 10000
	f := newTestFilter(t, n)
	for i := uint64(0); i < n; i++ {
		f.Insert(Uint64Key(i))
	}
	fpp := f.EffectiveFalsePositiveProbability()
	require.InDelta(t, 1.0/n, fpp, 0.5/n)
}

func TestNewRejectsZeroSizes(t *testing.T) {
	_, err := New(Parameters{TableSize: 0, NumberOfHashes: 3})
	require.ErrorIs(t, err, ErrZeroTableSize)
	_, err = New(Parameters{TableSize: 64, NumberOfHashes: 0})
	require.ErrorIs(t, err, ErrZeroHashes)
}

func TestNewAlignsTableSize(t *testing.T) {
	f, err := New(Parameters{TableSize: 13, NumberOfHashes: 2})
	require.NoError(t, err)
	require.Equal(t, uint64(16), f.Size())
	require.Equal(t, uint64(16), f.BitSet().Len())
	require.Equal(t, uint(2), f.K())
}

func TestNewWithEstimates(t *testing.T) {
	f, err := NewWithEstimates(1000, 0.001)
	require.NoError(t, err)
	require.Equal(t, uint64(14384), f.Size())
	require.Equal(t, uint(10), f.K())

	_, err = NewWithEstimates(1000, 1)
	require.ErrorIs(t, err, ErrBadProbability)
}

func TestWithHash(t *testing.T) {
	for name, h := range map[string]HashFunc{
		"murmur3":    Murmur3,
		"murmur3x64": Murmur3x64,
		"xxhash":     XXHash,
	} {
		t.Run(name, func(t *testing.T) {
			f := newTestFilter(t, 1000, WithHash(h))
			f.InsertString("Love")
			require.True(t, f.ContainsString("Love"))
			require.False(t, f.ContainsString("is"))
		})
	}
}

func TestMarshaler(t *testing.T) {
	f := newTestFilter(t, 1000)
	addr := netip.MustParseAddr("192.0.2.1")
	require.NoError(t, f.InsertMarshaler(addr))
	ok, err := f.ContainsMarshaler(addr)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.ContainsMarshaler(netip.MustParseAddr("192.0.2.2"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, uint64(1), f.ElementNumber())
}

type badKey struct{}

var errBadKey = errors.New("bad key")

func (badKey) MarshalBinary() ([]byte, error) { return nil, errBadKey }

func TestMarshalerError(t *testing.T) {
	f := newTestFilter(t, 1000)
	require.ErrorIs(t, f.InsertMarshaler(badKey{}), errBadKey)
	_, err := f.ContainsMarshaler(badKey{})
	require.ErrorIs(t, err, errBadKey)
	require.Zero(t, f.ElementNumber())
}

func TestApproximatedSize(t *testing.T) {
	f, err := NewWithEstimates(1000, 0.001)
	require.NoError(t, err)
	f.InsertString("Love")
	f.InsertString("is")
	f.InsertString("in")
	f.InsertString("bloom")
	size := f.ApproximatedSize()
	if size != 4 {
		t.Errorf("%d should equal 4.", size)
	}
}

func TestStats(t *testing.T) {
	f := newTestFilter(t, 1000)
	f.InsertString("one")
	f.InsertString("one")
	s := f.Stats()
	require.Equal(t, f.Size(), s.TableSize)
	require.Equal(t, f.K(), s.NumberOfHashes)
	require.Equal(t, uint64(1000), s.ProjectedElementNumber)
	require.Equal(t, uint64(2), s.ElementNumber)
	require.LessOrEqual(t, s.SetBits, uint64(f.K()))
	require.NotZero(t, s.SetBits)
	require.Equal(t, f.EffectiveFalsePositiveProbability(), s.EffectiveFalsePositiveProbability)
}

func TestSaltsIsCopy(t *testing.T) {
	f := newTestFilter(t, 1000)
	f.InsertString("x")
	s := f.Salts()
	s[0]++
	require.True(t, f.ContainsString("x"))
	require.NotEqual(t, s, f.Salts())
}

func TestEqual(t *testing.T) {
	f := newTestFilter(t, 1000)
	f1 := newTestFilter(t, 1000)
	g, err := New(Parameters{TableSize: f.Size(), NumberOfHashes: 20})
	require.NoError(t, err)
	h, err := New(Parameters{TableSize: 16, NumberOfHashes: f.K()})
	require.NoError(t, err)
	f1.InsertString("Bess")
	if !f.Equal(f) {
		t.Errorf("%v should be equal to itself", f)
	}
	if f.Equal(f1) {
		t.Errorf("%v should not be equal to %v", f, f1)
	}
	if f.Equal(g) {
		t.Errorf("%v should not be equal to %v", f, g)
	}
	if f.Equal(h) {
		t.Errorf("%v should not be equal to %v", f, h)
	}
}

func TestFPP(t *testing.T) {
	f, err := NewWithEstimates(1000, 0.001)
	require.NoError(t, err)
	for i := uint32(0); i < 1000; i++ {
		n := make([]byte, 4)
		binary.BigEndian.PutUint32(n, i)
		f.Insert(n)
	}
	count := 0

	for i := uint32(0); i < 1000; i++ {
		n := make([]byte, 4)
		binary.BigEndian.PutUint32(n, i+1000)
		if f.Contains(n) {
			count += 1
		}
	}
	if float64(count)/1000.0 > 0.005 {
		t.Errorf("Excessive fpp")
	}
}

func testMeasured(n uint64, maxFp float64, t *testing.T) {
	p := NewParameters(n)
	p.FalsePositiveProbability = maxFp
	p, err := p.ComputeOptimal()
	require.NoError(t, err)
	fpRate, err := MeasureFalsePositiveRate(p, n, 100000)
	require.NoError(t, err)
	if fpRate > 1.5*maxFp {
		t.Errorf("False positive rate too high: n: %v; m: %v; k: %v; maxFp: %f; fpRate: %f, fpRate/maxFp: %f",
			n, p.TableSize, p.NumberOfHashes, maxFp, fpRate, fpRate/maxFp)
	}
}

func TestMeasured1000_001(t *testing.T)  { testMeasured(1000, 0.001, t) }
func TestMeasured10000_001(t *testing.T) { testMeasured(10000, 0.001, t) }
func TestMeasured1000_01(t *testing.T)   { testMeasured(1000, 0.01, t) }
func TestMeasured10000_01(t *testing.T)  { testMeasured(10000, 0.01, t) }

func TestMeasureFalsePositiveRateErrors(t *testing.T) {
	_, err := MeasureFalsePositiveRate(Parameters{}, 10, 10)
	require.ErrorIs(t, err, ErrZeroTableSize)

	p, err := NewParameters(10).ComputeOptimal()
	require.NoError(t, err)
	rate, err := MeasureFalsePositiveRate(p, 10, 0)
	require.NoError(t, err)
	require.Zero(t, rate)
}

// The following function courtesy of Nick @turgon
// This helper function ranges over the input data, applying the hashing
// which returns the bit locations to set in the filter.
// For each location, increment a counter for that bit address.
//
// If the Bloom Filter's location() method distributes locations uniformly
// at random, a property it should inherit from its hash function, then
// each bit location in the filter should end up with roughly the same
// number of hits.  Importantly, the value of k should not matter.
//
// Once the results are collected, we can run a chi squared goodness of fit
// test, comparing the result histogram with the uniform distribition.
// This yields a test statistic with degrees-of-freedom of m-1.
func chiTestBloom(m uint64, k uint, rounds uint, elements [][]byte) (succeeds bool) {
	bf, err := New(Parameters{TableSize: m, NumberOfHashes: k, RandomSeed: DefaultRandomSeed})
	if err != nil {
		return false
	}
	f := bf.(*bloomFilterImpl)
	results := make([]uint, m)
	chi := make([]float64, m)

	for _, data := range elements {
		for i := range f.salts {
			results[f.location(data, i)]++
		}
	}

	// Each element of results should contain the same value: k * rounds / m.
	// Let's run a chi-square goodness of fit and see how it fares.
	var chiStatistic float64
	e := float64(k*rounds) / float64(m)
	for i := uint64(0); i < m; i++ {
		chi[i] = math.Pow(float64(results[i])-e, 2.0) / e
		chiStatistic += chi[i]
	}

	// this tests at significant level 0.005 up to 20 degrees of freedom
	table := [20]float64{
		7.879, 10.597, 12.838, 14.86, 16.75, 18.548, 20.278,
		21.955, 23.589, 25.188, 26.757, 28.3, 29.819, 31.319, 32.801, 34.267,
		35.718, 37.156, 38.582, 39.997}
	df := min(m-1, 20)

	succeeds = table[df-1] > chiStatistic
	return
}

func TestLocation(t *testing.T) {
	var (
		m      uint64 = 8
		k      uint   = 3
		rounds uint   = 100000
	)

	elements := make([][]byte, rounds)

	for x := uint(0); x < rounds; x++ {
		ctrlist := make([]uint8, 4)
		ctrlist[0] = uint8(x)
		ctrlist[1] = uint8(x >> 8)
		ctrlist[2] = uint8(x >> 16)
		ctrlist[3] = uint8(x >> 24)
		elements[x] = ctrlist
	}

	succeeds := chiTestBloom(m, k, rounds, elements)
	if !succeeds {
		t.Error("random assignment is too unrandom")
	}
}

func BenchmarkSeparateTestAndInsert(b *testing.B) {
	f, err := NewWithEstimates(uint64(b.N)+1, 0.0001)
	if err != nil {
		b.Fatal(err)
	}
	key := make([]byte, 100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		binary.BigEndian.PutUint32(key, uint32(i))
		f.Contains(key)
		f.Insert(key)
	}
}

func BenchmarkCombinedTestAndInsert(b *testing.B) {
	f, err := NewWithEstimates(uint64(b.N)+1, 0.0001)
	if err != nil {
		b.Fatal(err)
	}
	key := make([]byte, 100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		binary.BigEndian.PutUint32(key, uint32(i))
		f.TestAndInsert(key)
	}
}
