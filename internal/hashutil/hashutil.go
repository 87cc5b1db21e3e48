// Package hashutil derives short, deterministic identifiers from arbitrary
// strings. It backs the segment/sub-playlist identifiers the HLS pipeline
// embeds in rewritten URLs: FNV-1a 32-bit over the UTF-8 bytes, encoded as
// base62.
package hashutil

const (
	fnvOffset32 uint32 = 2166136261
	fnvPrime32  uint32 = 16777619
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// FNV1a32 computes the 32-bit FNV-1a hash of s.
func FNV1a32(s string) uint32 {
	h := fnvOffset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime32
	}
	return h
}

// Base62 encodes n in base62 using the alphabet 0-9A-Za-z, most significant
// digit first. Zero encodes as "0".
func Base62(n uint32) string {
	if n == 0 {
		return "0"
	}

	var buf [6]byte // ceil(log62(2^32)) == 6
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = base62Alphabet[n%62]
		n /= 62
	}
	return string(buf[i:])
}

// DecodeBase62 is the inverse of Base62, used by round-trip tests.
func DecodeBase62(s string) (uint32, bool) {
	var n uint64
	for i := 0; i < len(s); i++ {
		idx := indexByte(s[i])
		if idx < 0 {
			return 0, false
		}
		n = n*62 + uint64(idx)
		if n > 1<<32-1 {
			return 0, false
		}
	}
	return uint32(n), true
}

func indexByte(b byte) int {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0')
	case b >= 'A' && b <= 'Z':
		return int(b-'A') + 10
	case b >= 'a' && b <= 'z':
		return int(b-'a') + 36
	default:
		return -1
	}
}

// Hash derives the wire-format short identifier for s: base62(fnv1a32(s)).
func Hash(s string) string {
	return Base62(FNV1a32(s))
}
