package bloom

import (
	"bytes"
	"math/bits"
)

type BitSet interface {
	// Init allocates length bits, all zero. length is a multiple of
	// CellBits. A BitSet is initialized once, by the filter that owns it.
	Init(length uint64) BitSet
	// Len returns the number of bits.
	Len() uint64
	// Set bit i to 1. Setting a bit that is already set is a no-op.
	// If i >= Len(), this function will panic (in-memory sets only).
	Set(i uint64) BitSet
	// Test whether bit i is set.
	Test(i uint64) bool
	// Count (number of set bits).
	// Also known as "popcount" or "population count".
	Count() uint64
	// Equal tests the equivalence of two BitSets.
	// False if they are of different kinds or sizes, otherwise true
	// only if all the same bits are set
	Equal(c BitSet) bool
}

// cellMask maps a bit offset within a cell to its mask. Bit 0 is the
// least significant bit of the cell.
var cellMask = [CellBits]byte{0x01, 0x02, 0x04, 0x08, 0x10, 0x20, 0x40, 0x80}

// CellBitSet is an in-memory BitSet packed into byte cells.
type CellBitSet struct {
	cells  []byte
	length uint64
}

func NewCellBitSet() *CellBitSet {
	return &CellBitSet{}
}

func (b *CellBitSet) Init(length uint64) BitSet {
	b.cells = make([]byte, (length+CellBits-1)/CellBits)
	b.length = length
	return b
}

func (b *CellBitSet) Len() uint64 {
	return b.length
}

func (b *CellBitSet) Set(i uint64) BitSet {
	b.cells[i/CellBits] |= cellMask[i%CellBits]
	return b
}

func (b *CellBitSet) Test(i uint64) bool {
	return b.cells[i/CellBits]&cellMask[i%CellBits] != 0
}

func (b *CellBitSet) Count() uint64 {
	var n uint64
	for _, c := range b.cells {
		n += uint64(bits.OnesCount8(c))
	}
	return n
}

func (b *CellBitSet) Equal(c BitSet) bool {
	o, ok := c.(*CellBitSet)
	if !ok {
		return false
	}
	return b.length == o.length && bytes.Equal(b.cells, o.cells)
}

// Bytes returns a copy of the cells.
func (b *CellBitSet) Bytes() []byte {
	return bytes.Clone(b.cells)
}
