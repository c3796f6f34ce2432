package types

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
)

// AppendU128 appends the low 128 bits of v as 16 little-endian bytes. Values
// above the 128-bit range are a programming error on the caller's side; the
// high bits are simply not representable here and are dropped.
func AppendU128(dst []byte, v *uint256.Int) []byte {
	var words [4]uint64
	if v != nil {
		words = [4]uint64(*v)
	}
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], words[0])
	binary.LittleEndian.PutUint64(buf[8:16], words[1])
	return append(dst, buf[:]...)
}

// AppendU256 appends v as 32 little-endian bytes.
func AppendU256(dst []byte, v *uint256.Int) []byte {
	var words [4]uint64
	if v != nil {
		words = [4]uint64(*v)
	}
	var buf [32]byte
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(buf[i*8:(i+1)*8], words[i])
	}
	return append(dst, buf[:]...)
}

// U128FromBytes decodes 16 little-endian bytes into a fresh integer.
func U128FromBytes(data []byte) (*uint256.Int, error) {
	if len(data) != 16 {
		return nil, fmt.Errorf("u128: want 16 bytes, got %d", len(data))
	}
	var v uint256.Int
	v[0] = binary.LittleEndian.Uint64(data[0:8])
	v[1] = binary.LittleEndian.Uint64(data[8:16])
	return &v, nil
}

// U256FromBytes decodes 32 little-endian bytes into a fresh integer.
func U256FromBytes(data []byte) (*uint256.Int, error) {
	if len(data) != 32 {
		return nil, fmt.Errorf("u256: want 32 bytes, got %d", len(data))
	}
	var v uint256.Int
	for i := 0; i < 4; i++ {
		v[i] = binary.LittleEndian.Uint64(data[i*8 : (i+1)*8])
	}
	return &v, nil
}
