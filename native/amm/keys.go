package amm

import "encoding/binary"

var (
	poolStateKey      = []byte("amm/pool/state")
	factoryStateKey   = []byte("amm/factory/state")
	factoryPairPrefix = []byte("amm/factory/pair/")
	factoryListPrefix = []byte("amm/factory/list/")
)

func factoryPairKey(a, b []byte) []byte {
	buf := make([]byte, len(factoryPairPrefix)+len(a)+len(b))
	n := copy(buf, factoryPairPrefix)
	n += copy(buf[n:], a)
	copy(buf[n:], b)
	return buf
}

func factoryListKey(index uint64) []byte {
	buf := make([]byte, len(factoryListPrefix)+8)
	copy(buf, factoryListPrefix)
	binary.BigEndian.PutUint64(buf[len(factoryListPrefix):], index)
	return buf
}
