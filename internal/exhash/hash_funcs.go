package exhash

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"
)

// HashInt32 hashes a 4-byte little-endian encoding of v with murmur3,
// mirroring the teacher's container/hash/hash_util.go GenHashMurMur, which
// feeds the same 128-bit murmur3 sum down to its low 32 bits.
func HashInt32(v int32) uint32 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	return sumMurmur(buf[:])
}

// HashUint32 hashes a 4-byte little-endian encoding of v with murmur3.
func HashUint32(v uint32) uint32 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return sumMurmur(buf[:])
}

func sumMurmur(b []byte) uint32 {
	h := murmur3.New128()
	h.Write(b)
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint32(sum)
}
