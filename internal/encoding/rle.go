package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Cell is any 16-bit value stored in a chunk array.
type Cell interface {
	~uint16 | ~int16
}

// EncodeRLE encodes vals into base64(varint pairs). The pairs are
// (zigzag(value), run_len) repeated.
func EncodeRLE[T Cell](vals []T) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(vals) {
		v := vals[i]
		run := 1
		for j := i + 1; j < len(vals) && vals[j] == v && run < 1<<31; j++ {
			run++
		}

		n := binary.PutVarint(tmp[:], int64(v))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// maxPrealloc caps the up-front allocation in DecodeRLE; longer outputs
// grow as runs are decoded.
const maxPrealloc = 1 << 20

// DecodeRLE reverses EncodeRLE. want, when >= 0, is the exact number of
// values expected; anything else is an error.
func DecodeRLE[T Cell](b64 string, want int) ([]T, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []T
	if want > 0 {
		out = make([]T, 0, min(want, maxPrealloc))
	}
	for i := 0; i < len(raw); {
		v, n := binary.Varint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if v != int64(T(v)) {
			return nil, fmt.Errorf("value out of range: %d", v)
		}
		if want >= 0 && uint64(len(out))+run > uint64(want) {
			return nil, fmt.Errorf("run overflows expected length %d", want)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, T(v))
		}
	}
	if want >= 0 && len(out) != want {
		return nil, fmt.Errorf("decoded %d values, want %d", len(out), want)
	}
	return out, nil
}
