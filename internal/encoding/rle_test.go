package encoding

import "testing"

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]uint16, 0, 200)
	in = append(in, 1, 1, 1, 2, 2, 3)
	for i := 0; i < 50; i++ {
		in = append(in, 7)
	}
	in = append(in, 9, 10, 10, 10, 65535)

	enc := EncodeRLE(in)
	out, err := DecodeRLE[uint16](enc, len(in))
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRLE_SignedValues(t *testing.T) {
	in := []int16{-1, -1, -1, 0, 15, 15, -1}
	out, err := DecodeRLE[int16](EncodeRLE(in), -1)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRLE_LengthChecks(t *testing.T) {
	enc := EncodeRLE([]uint16{4, 4, 4})
	if _, err := DecodeRLE[uint16](enc, 2); err == nil {
		t.Fatalf("expected error when runs overflow the expected length")
	}
	if _, err := DecodeRLE[uint16](enc, 4); err == nil {
		t.Fatalf("expected error when runs fall short of the expected length")
	}
	if _, err := DecodeRLE[uint16](EncodeRLE([]int16{-5}), 1); err == nil {
		t.Fatalf("expected range error decoding a negative into uint16")
	}
}
