package voxel

import "fmt"

// Air is the conventional empty block id.
const Air uint16 = 0

// Meta is the optional sub-type value of a block. Only the low 4 bits reach
// the target world; NoMeta marks a block without sub-type data.
type Meta int16

const NoMeta Meta = -1

// Valid reports whether m carries a value.
func (m Meta) Valid() bool { return m >= 0 }

// Nibble returns the 4-bit value written to the target world. A missing
// value is written as 0.
func (m Meta) Nibble() uint8 {
	if m < 0 {
		return 0
	}
	return uint8(m) & 0x0F
}

// Block is a block type id plus its sub-type metadata. Two blocks are equal
// only if both the id and the meta (including its presence) match.
type Block struct {
	ID   uint16
	Meta Meta
}

// B builds a block without metadata.
func B(id uint16) Block { return Block{ID: id, Meta: NoMeta} }

// BM builds a block with metadata.
func BM(id uint16, meta uint8) Block { return Block{ID: id, Meta: Meta(meta)} }

func (b Block) String() string {
	if !b.Meta.Valid() {
		return fmt.Sprintf("%d", b.ID)
	}
	return fmt.Sprintf("%d:%d", b.ID, b.Meta)
}

// Voxel is a single block placed at a lattice position.
type Voxel struct {
	Pos   Pos
	Block Block
}
