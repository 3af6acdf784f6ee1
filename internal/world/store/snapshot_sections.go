package store

import (
	"fmt"

	snapv1 "thingcraft.ai/internal/persistence/snapshot"
)

// ExportSections converts non-empty sections into snapshot sections.
func ExportSections(s *ChunkStore) []snapv1.SectionV1 {
	keys := s.SectionKeys()
	out := make([]snapv1.SectionV1, 0, len(keys))
	for _, k := range keys {
		sec := s.Sections[k]
		if sec == nil || sec.Empty(s.Air) {
			continue
		}
		blocks := make([]uint16, len(sec.Blocks))
		copy(blocks, sec.Blocks)
		meta := make([]uint8, len(sec.Meta))
		copy(meta, sec.Meta)
		out = append(out, snapv1.SectionV1{
			CX:     k.CX,
			CY:     k.CY,
			CZ:     k.CZ,
			Size:   SectionSize,
			Blocks: blocks,
			Meta:   meta,
		})
	}
	return out
}

// ImportSections rebuilds a store from snapshot sections.
func ImportSections(air uint16, sections []snapv1.SectionV1) (*ChunkStore, error) {
	s := NewChunkStore(air)
	for _, in := range sections {
		if in.Size != SectionSize {
			return nil, fmt.Errorf("snapshot section size mismatch: got %d want %d", in.Size, SectionSize)
		}
		if len(in.Blocks) != sectionVolume || len(in.Meta) != sectionVolume {
			return nil, fmt.Errorf("snapshot section length mismatch: blocks=%d meta=%d want %d", len(in.Blocks), len(in.Meta), sectionVolume)
		}
		k := SectionKey{CX: in.CX, CY: in.CY, CZ: in.CZ}
		sec := &Section{
			Key:    k,
			Blocks: make([]uint16, sectionVolume),
			Meta:   make([]uint8, sectionVolume),
		}
		copy(sec.Blocks, in.Blocks)
		copy(sec.Meta, in.Meta)
		_ = sec.Digest()
		s.Sections[k] = sec
	}
	return s, nil
}
