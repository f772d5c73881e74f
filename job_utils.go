package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

var (
	hexNibbleLUT   [256]byte
	hexPairByteLUT [65536]uint16
)

func init() {
	for i := range hexNibbleLUT {
		hexNibbleLUT[i] = 0xff
	}
	for c := byte('0'); c <= '9'; c++ {
		hexNibbleLUT[c] = c - '0'
	}
	for c := byte('a'); c <= 'f'; c++ {
		hexNibbleLUT[c] = c - 'a' + 10
	}
	for c := byte('A'); c <= 'F'; c++ {
		hexNibbleLUT[c] = c - 'A' + 10
	}

	// (hi<<8)|lo => decoded byte, or 0x100 when either nibble is invalid.
	for i := range hexPairByteLUT {
		hexPairByteLUT[i] = 0x100
	}
	for hi := 0; hi < 256; hi++ {
		h := hexNibbleLUT[hi]
		if h == 0xff {
			continue
		}
		for lo := 0; lo < 256; lo++ {
			l := hexNibbleLUT[lo]
			if l == 0xff {
				continue
			}
			hexPairByteLUT[(hi<<8)|lo] = uint16((h << 4) | l)
		}
	}
}

func decodeHexToFixedBytes(dst []byte, src string) error {
	if len(src) != len(dst)*2 {
		return fmt.Errorf("expected %d hex characters, got %d", len(dst)*2, len(src))
	}
	for i := range dst {
		v := hexPairByteLUT[int(src[i*2])<<8|int(src[i*2+1])]
		if v > 0xff {
			return fmt.Errorf("invalid hex digit in %q", src)
		}
		dst[i] = byte(v)
	}
	return nil
}

// decodeHexBounded decodes an even-length hex string of at most maxBytes.
func decodeHexBounded(src string, maxBytes int) ([]byte, error) {
	if len(src)%2 != 0 {
		return nil, fmt.Errorf("odd hex length %d", len(src))
	}
	if len(src)/2 > maxBytes {
		return nil, fmt.Errorf("%d bytes exceeds limit of %d", len(src)/2, maxBytes)
	}
	out := make([]byte, len(src)/2)
	if err := decodeHexToFixedBytes(out, src); err != nil {
		return nil, err
	}
	return out, nil
}

func isFixedHex(s string, chars int) bool {
	if len(s) != chars {
		return false
	}
	for i := 0; i < len(s); i++ {
		if hexNibbleLUT[s[i]] == 0xff {
			return false
		}
	}
	return true
}

func parseUint32BEHex(hexStr string) (uint32, error) {
	var buf [4]byte
	if err := decodeHexToFixedBytes(buf[:], hexStr); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func uint32ToBEHex(v uint32) string {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return hex.EncodeToString(buf[:])
}

// swapWords32 reverses byte order inside each 4-byte word. Stratum sends
// prevhash with its words in this order relative to the header encoding.
func swapWords32(in [32]byte) [32]byte {
	var out [32]byte
	for i := 0; i < 32; i += 4 {
		out[i], out[i+1], out[i+2], out[i+3] = in[i+3], in[i+2], in[i+1], in[i]
	}
	return out
}
