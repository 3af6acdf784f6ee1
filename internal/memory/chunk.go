package memory

import (
	"encoding/binary"
	"fmt"

	xxhash "github.com/cespare/xxhash/v2"

	"thingcraft.ai/internal/voxel"
)

// Chunk is a dense cuboid of blocks stored as two parallel flat arrays.
// Cells are laid out with x varying fastest, then z, then y:
//
//	index = x + sx*z + (sx*sz)*y
//
// A Chunk is immutable once constructed.
type Chunk struct {
	size voxel.Pos
	ids  []uint16
	meta []voxel.Meta
}

// NewChunk copies ids and meta into a new chunk of the given extents. Both
// arrays must hold exactly sx*sy*sz entries.
func NewChunk(size voxel.Pos, ids []uint16, meta []voxel.Meta) (*Chunk, error) {
	n, ok := voxel.Volume(size)
	if !ok {
		return nil, fmt.Errorf("%w: extents %v out of range", voxel.ErrSizeMismatch, size)
	}
	if len(ids) != n || len(meta) != n {
		return nil, fmt.Errorf("%w: extents %v want %d cells, got ids=%d meta=%d", voxel.ErrSizeMismatch, size, n, len(ids), len(meta))
	}
	c := &Chunk{
		size: size,
		ids:  make([]uint16, n),
		meta: make([]voxel.Meta, n),
	}
	copy(c.ids, ids)
	copy(c.meta, meta)
	return c, nil
}

// NewUniformChunk returns a chunk where every cell holds b.
func NewUniformChunk(size voxel.Pos, b voxel.Block) (*Chunk, error) {
	n, ok := voxel.Volume(size)
	if !ok {
		return nil, fmt.Errorf("%w: extents %v out of range", voxel.ErrSizeMismatch, size)
	}
	c := &Chunk{
		size: size,
		ids:  make([]uint16, n),
		meta: make([]voxel.Meta, n),
	}
	for i := 0; i < n; i++ {
		c.ids[i] = b.ID
		c.meta[i] = b.Meta
	}
	return c, nil
}

// Size returns the chunk extents (sx, sy, sz).
func (c *Chunk) Size() voxel.Pos { return c.size }

// Volume is sx*sy*sz.
func (c *Chunk) Volume() int { return len(c.ids) }

// Index maps a local position onto the flat array index.
func (c *Chunk) Index(x, y, z int) int {
	return x + c.size[0]*z + c.size[0]*c.size[2]*y
}

// LocalPos is the inverse of Index.
func (c *Chunk) LocalPos(i int) voxel.Pos {
	sx, sz := c.size[0], c.size[2]
	layer := sx * sz
	y := i / layer
	r := i % layer
	return voxel.Pos{r % sx, y, r / sx}
}

// At returns the block at flat index i.
func (c *Chunk) At(i int) voxel.Block {
	return voxel.Block{ID: c.ids[i], Meta: c.meta[i]}
}

// Get returns the block at a local position.
func (c *Chunk) Get(x, y, z int) voxel.Block {
	return c.At(c.Index(x, y, z))
}

// IDs returns a copy of the id array.
func (c *Chunk) IDs() []uint16 {
	out := make([]uint16, len(c.ids))
	copy(out, c.ids)
	return out
}

// Meta returns a copy of the meta array.
func (c *Chunk) Meta() []voxel.Meta {
	out := make([]voxel.Meta, len(c.meta))
	copy(out, c.meta)
	return out
}

// Each visits every cell in flattening order (y outer, z middle, x inner).
// Returning false from fn stops the walk.
func (c *Chunk) Each(fn func(local voxel.Pos, b voxel.Block) bool) {
	i := 0
	for y := 0; y < c.size[1]; y++ {
		for z := 0; z < c.size[2]; z++ {
			for x := 0; x < c.size[0]; x++ {
				if !fn(voxel.Pos{x, y, z}, voxel.Block{ID: c.ids[i], Meta: c.meta[i]}) {
					return
				}
				i++
			}
		}
	}
}

// AllEqual reports whether every cell holds the same (id, meta) pair. An
// empty chunk is not uniform.
func (c *Chunk) AllEqual() bool {
	if len(c.ids) == 0 {
		return false
	}
	id, m := c.ids[0], c.meta[0]
	for i := 1; i < len(c.ids); i++ {
		if c.ids[i] != id || c.meta[i] != m {
			return false
		}
	}
	return true
}

// Uniform returns the shared block when AllEqual is true.
func (c *Chunk) Uniform() (voxel.Block, bool) {
	if !c.AllEqual() {
		return voxel.Block{}, false
	}
	return c.At(0), true
}

// CountNonEmpty counts cells whose id differs from empty.
func (c *Chunk) CountNonEmpty(empty uint16) int {
	n := 0
	for _, id := range c.ids {
		if id != empty {
			n++
		}
	}
	return n
}

// Digest hashes extents and both arrays.
func (c *Chunk) Digest() uint64 {
	h := xxhash.New()
	var tmp [8]byte
	for _, v := range c.size {
		binary.LittleEndian.PutUint64(tmp[:], uint64(int64(v)))
		_, _ = h.Write(tmp[:])
	}
	for i := range c.ids {
		binary.LittleEndian.PutUint16(tmp[:2], c.ids[i])
		binary.LittleEndian.PutUint16(tmp[2:4], uint16(c.meta[i]))
		_, _ = h.Write(tmp[:4])
	}
	return h.Sum64()
}

// Placement is a chunk positioned relative to some origin.
type Placement struct {
	Anchor voxel.Pos
	Chunk  *Chunk
}

// Box returns the cells covered by the placement. ok is false for an empty chunk.
func (p Placement) Box() (b voxel.Box, ok bool) {
	if p.Chunk == nil || p.Chunk.Volume() == 0 {
		return voxel.Box{}, false
	}
	s := p.Chunk.Size()
	return voxel.Box{Min: p.Anchor, Max: p.Anchor.Add(voxel.Pos{s[0] - 1, s[1] - 1, s[2] - 1})}, true
}
