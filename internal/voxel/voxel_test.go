package voxel

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestMetaNibble(t *testing.T) {
	cases := []struct {
		in   Meta
		want uint8
	}{
		{NoMeta, 0},
		{0, 0},
		{7, 7},
		{15, 15},
		{16, 0},
		{0x1F, 0x0F},
	}
	for _, c := range cases {
		if got := c.in.Nibble(); got != c.want {
			t.Fatalf("Meta(%d).Nibble()=%d want %d", c.in, got, c.want)
		}
	}
}

func TestBlockEquality_DistinguishesMissingMeta(t *testing.T) {
	if B(1) == BM(1, 0) {
		t.Fatalf("block without meta must differ from meta 0")
	}
	if B(1) != B(1) {
		t.Fatalf("identical blocks must be equal")
	}
}

func TestNewBox(t *testing.T) {
	b, err := NewBox(Pos{0, 0, 0}, Pos{1, 3, 2})
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}
	if b.Size() != (Pos{2, 4, 3}) || b.Volume() != 24 {
		t.Fatalf("size=%v volume=%d", b.Size(), b.Volume())
	}
	if !b.Contains(Pos{1, 3, 2}) || b.Contains(Pos{2, 0, 0}) {
		t.Fatalf("Contains mismatch")
	}
	if _, err := NewBox(Pos{2, 2, 2}, Pos{0, 0, 0}); !errors.Is(err, ErrInvalidCuboid) {
		t.Fatalf("expected ErrInvalidCuboid, got %v", err)
	}
	if _, err := NewBox(Pos{0, 1, 0}, Pos{5, 0, 5}); !errors.Is(err, ErrInvalidCuboid) {
		t.Fatalf("expected ErrInvalidCuboid for single bad axis, got %v", err)
	}
}

func TestVolume(t *testing.T) {
	cases := []struct {
		size Pos
		n    int
		ok   bool
	}{
		{Pos{2, 4, 3}, 24, true},
		{Pos{0, 5, 5}, 0, true},
		{Pos{-1, 1, 1}, 0, false},
		{Pos{1 << 32, 1, 1 << 32}, 0, false},
		{Pos{1 << 31, 1 << 31, 2}, 0, false},
	}
	for _, c := range cases {
		n, ok := Volume(c.size)
		if ok != c.ok || (ok && n != c.n) {
			t.Fatalf("Volume(%v)=(%d,%v) want (%d,%v)", c.size, n, ok, c.n, c.ok)
		}
	}
}

func TestBoxCheckedVolume(t *testing.T) {
	cases := []struct {
		box Box
		n   int
		ok  bool
	}{
		{Box{Max: Pos{1, 3, 2}}, 24, true},
		{Box{Min: Pos{-2, 0, 0}, Max: Pos{-1, 0, 0}}, 2, true},
		{Box{Max: Pos{1<<32 - 1, 1<<32 - 1, 0}}, 0, false},
		{Box{Min: Pos{math.MinInt, 0, 0}, Max: Pos{math.MaxInt, 0, 0}}, 0, false},
		{Box{Min: Pos{1, 0, 0}}, 0, false},
	}
	for _, c := range cases {
		n, ok := c.box.CheckedVolume()
		if ok != c.ok || (ok && n != c.n) {
			t.Fatalf("%v.CheckedVolume()=(%d,%v) want (%d,%v)", c.box, n, ok, c.n, c.ok)
		}
	}
}

func TestCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrInvalidRotation, CodeInvalidRotation},
		{fmt.Errorf("rotate: %w", ErrInvalidRotation), CodeInvalidRotation},
		{ErrEmptyCollection, CodeEmptyCollection},
		{ErrInvalidCuboid, CodeInvalidCuboid},
		{ErrSizeMismatch, CodeSizeMismatch},
		{errors.New("boom"), CodeInternal},
	}
	for _, c := range cases {
		if got := Code(c.err); got != c.want {
			t.Fatalf("Code(%v)=%q want %q", c.err, got, c.want)
		}
	}
}
