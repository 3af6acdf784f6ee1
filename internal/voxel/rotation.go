package voxel

import "fmt"

// Rotation is a counter-clockwise quarter-turn count in the x/z plane, as
// seen with +x right and +z up. The zero value is no rotation.
type Rotation uint8

const (
	Rot0 Rotation = iota
	Rot90
	Rot180
	Rot270
)

// quarterTurns holds exact (cos, sin) for each Rotation.
var quarterTurns = [4][2]int{
	Rot0:   {1, 0},
	Rot90:  {0, 1},
	Rot180: {-1, 0},
	Rot270: {0, -1},
}

// ParseDegrees accepts 90, 180 or 270.
func ParseDegrees(degrees int) (Rotation, error) {
	switch degrees {
	case 90:
		return Rot90, nil
	case 180:
		return Rot180, nil
	case 270:
		return Rot270, nil
	}
	return Rot0, fmt.Errorf("%w: %d degrees (valid: 90, 180, 270)", ErrInvalidRotation, degrees)
}

// ParseOptionalDegrees is ParseDegrees that also accepts 0 (no rotation).
func ParseOptionalDegrees(degrees int) (Rotation, error) {
	if degrees == 0 {
		return Rot0, nil
	}
	return ParseDegrees(degrees)
}

// Degrees returns the angle of r.
func (r Rotation) Degrees() int { return int(r&3) * 90 }

// Inverse returns the rotation that undoes r.
func (r Rotation) Inverse() Rotation { return (4 - r&3) & 3 }

// RotateXZ rotates (x, z) around (px, pz):
//
//	x' = px + dx*cos - dz*sin
//	z' = pz + dz*cos + dx*sin
//
// using exact integer cos/sin, so the result is always a lattice point.
func RotateXZ(x, z, px, pz int, r Rotation) (int, int) {
	cs := quarterTurns[r&3]
	dx, dz := x-px, z-pz
	return px + dx*cs[0] - dz*cs[1], pz + dz*cs[0] + dx*cs[1]
}

// RotatePos rotates p around pivot in the x/z plane. y is never changed.
func RotatePos(p, pivot Pos, r Rotation) Pos {
	x, z := RotateXZ(p[0], p[2], pivot[0], pivot[2], r)
	return Pos{x, p[1], z}
}

// RotateBox rotates both corners of b around pivot and re-normalizes them.
// A quarter-turn maps an axis-aligned box onto another axis-aligned box.
func RotateBox(b Box, pivot Pos, r Rotation) Box {
	a := RotatePos(b.Min, pivot, r)
	c := RotatePos(b.Max, pivot, r)
	return Box{Min: a.Min(c), Max: a.Max(c)}
}

// Rotate is the degree-based entry point: it validates degrees and rotates
// p around pivot.
func Rotate(p, pivot Pos, degrees int) (Pos, error) {
	r, err := ParseDegrees(degrees)
	if err != nil {
		return p, err
	}
	return RotatePos(p, pivot, r), nil
}
