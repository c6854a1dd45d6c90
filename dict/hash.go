package dict

import (
	"encoding/binary"

	"github.com/dchest/siphash"
)

// hashSeed keys the provided SipHash functions. It is expected to be
// set once at process startup, before any Dict is built on top of
// GenHashFunction; changing it later silently orphans every stored key.
var hashSeed [16]byte

// SetHashFunctionSeed installs the process-wide 16-byte hash seed. Seeds
// shorter than 16 bytes are zero-padded, longer ones truncated.
func SetHashFunctionSeed(seed []byte) {
	var s [16]byte
	copy(s[:], seed)
	hashSeed = s
}

// HashFunctionSeed returns a copy of the current hash seed.
func HashFunctionSeed() []byte {
	seed := make([]byte, 16)
	copy(seed, hashSeed[:])
	return seed
}

func seedKeys() (k0, k1 uint64) {
	return binary.LittleEndian.Uint64(hashSeed[0:8]), binary.LittleEndian.Uint64(hashSeed[8:16])
}

// GenHashFunction hashes data with SipHash-2-4 keyed by the process
// seed.
func GenHashFunction(data []byte) uint64 {
	k0, k1 := seedKeys()
	return siphash.Hash(k0, k1, data)
}

// GenCaseHashFunction is GenHashFunction over the ASCII-lowercased
// input, for case-insensitive key spaces.
func GenCaseHashFunction(data []byte) uint64 {
	h := siphash.New(hashSeed[:])

	var buf [64]byte
	for len(data) > 0 {
		n := copy(buf[:], data)
		for i := 0; i < n; i++ {
			if c := buf[i]; c >= 'A' && c <= 'Z' {
				buf[i] = c + ('a' - 'A')
			}
		}
		_, _ = h.Write(buf[:n])
		data = data[n:]
	}
	return h.Sum64()
}
