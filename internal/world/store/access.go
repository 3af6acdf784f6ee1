package store

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"

	"thingcraft.ai/internal/voxel"
)

// ErrOutOfBounds is returned for writes outside a bounded store.
var ErrOutOfBounds = errors.New("position out of bounds")

func (s *ChunkStore) InBounds(x, y, z int) bool {
	if !s.Bounded {
		return true
	}
	return x >= s.Min[0] && x <= s.Max[0] &&
		y >= s.Min[1] && y <= s.Max[1] &&
		z >= s.Min[2] && z <= s.Max[2]
}

// split maps a world coordinate to its section index and the offset inside
// that section, rounding toward negative infinity.
func split(v int) (section, local int) {
	section = v / SectionSize
	local = v % SectionSize
	if local < 0 {
		section--
		local += SectionSize
	}
	return section, local
}

func (s *ChunkStore) SectionKeys() []SectionKey {
	keys := make([]SectionKey, 0, len(s.Sections))
	for k := range s.Sections {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CY != keys[j].CY {
			return keys[i].CY < keys[j].CY
		}
		if keys[i].CZ != keys[j].CZ {
			return keys[i].CZ < keys[j].CZ
		}
		return keys[i].CX < keys[j].CX
	})
	return keys
}

func (s *ChunkStore) GetBlock(x, y, z int) (uint16, uint8) {
	cx, lx := split(x)
	cy, ly := split(y)
	cz, lz := split(z)
	sec, ok := s.Sections[SectionKey{CX: cx, CY: cy, CZ: cz}]
	if !ok {
		return s.Air, 0
	}
	return sec.Get(lx, ly, lz)
}

func (s *ChunkStore) SetBlock(x, y, z int, b uint16, meta uint8) error {
	if !s.InBounds(x, y, z) {
		return fmt.Errorf("%w: (%d,%d,%d)", ErrOutOfBounds, x, y, z)
	}
	cx, lx := split(x)
	cy, ly := split(y)
	cz, lz := split(z)
	s.getOrCreate(SectionKey{CX: cx, CY: cy, CZ: cz}).Set(lx, ly, lz, b, meta)
	s.writes++
	return nil
}

// Fill writes b into every cell of the inclusive cuboid. The whole cuboid is
// bounds-checked before the first write.
func (s *ChunkStore) Fill(lo, hi [3]int, b uint16, meta uint8) error {
	if lo[0] > hi[0] || lo[1] > hi[1] || lo[2] > hi[2] {
		return fmt.Errorf("%w: fill %v..%v", voxel.ErrInvalidCuboid, lo, hi)
	}
	if !s.InBounds(lo[0], lo[1], lo[2]) || !s.InBounds(hi[0], hi[1], hi[2]) {
		return fmt.Errorf("%w: fill %v..%v", ErrOutOfBounds, lo, hi)
	}
	for y := lo[1]; y <= hi[1]; y++ {
		for z := lo[2]; z <= hi[2]; z++ {
			for x := lo[0]; x <= hi[0]; x++ {
				cx, lx := split(x)
				cy, ly := split(y)
				cz, lz := split(z)
				s.getOrCreate(SectionKey{CX: cx, CY: cy, CZ: cz}).Set(lx, ly, lz, b, meta)
			}
		}
	}
	s.writes++
	return nil
}

func (s *ChunkStore) getOrCreate(k SectionKey) *Section {
	if sec, ok := s.Sections[k]; ok {
		return sec
	}
	sec := newSection(k, s.Air)
	s.Sections[k] = sec
	return sec
}

// Writes counts SetBlock and Fill calls that succeeded.
func (s *ChunkStore) Writes() uint64 { return s.writes }

// Count returns the number of non-air cells.
func (s *ChunkStore) Count() int {
	n := 0
	for _, sec := range s.Sections {
		for _, b := range sec.Blocks {
			if b != s.Air {
				n++
			}
		}
	}
	return n
}

// Digest hashes all non-empty sections in key order.
func (s *ChunkStore) Digest() [32]byte {
	h := sha256.New()
	for _, k := range s.SectionKeys() {
		sec := s.Sections[k]
		if sec.Empty(s.Air) {
			continue
		}
		d := sec.Digest()
		fmt.Fprintf(h, "%d,%d,%d:", k.CX, k.CY, k.CZ)
		h.Write(d[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
