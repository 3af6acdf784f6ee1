package store

import (
	"crypto/sha256"
	"encoding/binary"
)

// SectionSize is the edge length of a stored section.
const SectionSize = 16

const sectionVolume = SectionSize * SectionSize * SectionSize

type SectionKey struct {
	CX int
	CY int
	CZ int
}

// Section is a 16x16x16 block cube. Cells use the same x, z, y nesting as
// render chunks.
type Section struct {
	Key    SectionKey
	Blocks []uint16 // len = 16*16*16
	Meta   []uint8  // low nibble only

	dirty bool
	hash  [32]byte
}

func newSection(k SectionKey, air uint16) *Section {
	s := &Section{
		Key:    k,
		Blocks: make([]uint16, sectionVolume),
		Meta:   make([]uint8, sectionVolume),
		dirty:  true,
	}
	if air != 0 {
		for i := range s.Blocks {
			s.Blocks[i] = air
		}
	}
	return s
}

func (s *Section) index(x, y, z int) int {
	return x + z*SectionSize + y*SectionSize*SectionSize
}

func (s *Section) Get(x, y, z int) (uint16, uint8) {
	i := s.index(x, y, z)
	return s.Blocks[i], s.Meta[i]
}

func (s *Section) Set(x, y, z int, b uint16, meta uint8) {
	i := s.index(x, y, z)
	meta &= 0x0F
	if s.Blocks[i] == b && s.Meta[i] == meta {
		return
	}
	s.Blocks[i] = b
	s.Meta[i] = meta
	s.dirty = true
}

// Empty reports whether every cell holds air.
func (s *Section) Empty(air uint16) bool {
	for i, b := range s.Blocks {
		if b != air || s.Meta[i] != 0 {
			return false
		}
	}
	return true
}

func (s *Section) Digest() [32]byte {
	if s.dirty || s.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [3]byte
		for i, v := range s.Blocks {
			binary.LittleEndian.PutUint16(tmp[:2], v)
			tmp[2] = s.Meta[i]
			h.Write(tmp[:])
		}
		copy(s.hash[:], h.Sum(nil))
		s.dirty = false
	}
	return s.hash
}

// ChunkStore is a sparse voxel world. Sections are created on first write;
// reads outside any section return Air. Bounds, when set, reject writes
// outside [Min, Max].
type ChunkStore struct {
	Air      uint16
	Bounded  bool
	Min, Max [3]int
	Sections map[SectionKey]*Section

	writes uint64
}

func NewChunkStore(air uint16) *ChunkStore {
	return &ChunkStore{
		Air:      air,
		Sections: map[SectionKey]*Section{},
	}
}
