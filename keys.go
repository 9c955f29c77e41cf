package bloom

import "encoding/binary"

// Uint64Key encodes v as an 8-byte little-endian key.
func Uint64Key(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}

// Int64Key encodes v as an 8-byte little-endian two's complement key.
func Int64Key(v int64) []byte {
	return Uint64Key(uint64(v))
}
