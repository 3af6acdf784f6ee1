package voxel

import (
	"fmt"
	"math"
	"math/bits"
)

// Pos is an integer lattice position. Index 0 is x, 1 is y (up), 2 is z.
type Pos [3]int

func (p Pos) X() int { return p[0] }
func (p Pos) Y() int { return p[1] }
func (p Pos) Z() int { return p[2] }

// Add returns p+o component-wise.
func (p Pos) Add(o Pos) Pos {
	return Pos{p[0] + o[0], p[1] + o[1], p[2] + o[2]}
}

// Sub returns p-o component-wise.
func (p Pos) Sub(o Pos) Pos {
	return Pos{p[0] - o[0], p[1] - o[1], p[2] - o[2]}
}

// Min returns the component-wise minimum of p and o.
func (p Pos) Min(o Pos) Pos {
	return Pos{min(p[0], o[0]), min(p[1], o[1]), min(p[2], o[2])}
}

// Max returns the component-wise maximum of p and o.
func (p Pos) Max(o Pos) Pos {
	return Pos{max(p[0], o[0]), max(p[1], o[1]), max(p[2], o[2])}
}

// LessEq reports whether every component of p is <= the matching component of o.
func (p Pos) LessEq(o Pos) bool {
	return p[0] <= o[0] && p[1] <= o[1] && p[2] <= o[2]
}

func (p Pos) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}

// Box is an axis-aligned box with both corners inclusive.
type Box struct {
	Min Pos
	Max Pos
}

// NewBox validates that min <= max on every axis.
func NewBox(lo, hi Pos) (Box, error) {
	if !lo.LessEq(hi) {
		return Box{}, fmt.Errorf("%w: min %v not <= max %v", ErrInvalidCuboid, lo, hi)
	}
	return Box{Min: lo, Max: hi}, nil
}

// Size returns the extents of the box (max-min+1 per axis).
func (b Box) Size() Pos {
	return Pos{b.Max[0] - b.Min[0] + 1, b.Max[1] - b.Min[1] + 1, b.Max[2] - b.Min[2] + 1}
}

// Volume is the number of lattice cells inside the box.
func (b Box) Volume() int {
	s := b.Size()
	return s[0] * s[1] * s[2]
}

// CheckedVolume is Volume with overflow detection. ok is false when the box
// is inverted or holds more cells than fit in an int.
func (b Box) CheckedVolume() (n int, ok bool) {
	var size Pos
	for i := 0; i < 3; i++ {
		if b.Max[i] < b.Min[i] {
			return 0, false
		}
		d := uint64(b.Max[i]) - uint64(b.Min[i]) + 1
		if d == 0 || d > math.MaxInt {
			return 0, false
		}
		size[i] = int(d)
	}
	return Volume(size)
}

// Volume returns sx*sy*sz for non-negative extents. ok is false for a
// negative extent or when the product overflows an int.
func Volume(size Pos) (n int, ok bool) {
	v := uint64(1)
	for _, s := range size {
		if s < 0 {
			return 0, false
		}
		hi, lo := bits.Mul64(v, uint64(s))
		if hi != 0 || lo > math.MaxInt {
			return 0, false
		}
		v = lo
	}
	return int(v), true
}

func (b Box) Contains(p Pos) bool {
	return b.Min.LessEq(p) && p.LessEq(b.Max)
}

// Extend grows the box so that it includes p.
func (b Box) Extend(p Pos) Box {
	return Box{Min: b.Min.Min(p), Max: b.Max.Max(p)}
}

// Translate shifts both corners by d.
func (b Box) Translate(d Pos) Box {
	return Box{Min: b.Min.Add(d), Max: b.Max.Add(d)}
}

func (b Box) String() string {
	return fmt.Sprintf("[%v..%v]", b.Min, b.Max)
}
