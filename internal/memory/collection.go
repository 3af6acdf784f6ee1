package memory

import (
	"encoding/binary"
	"fmt"
	"sort"

	xxhash "github.com/cespare/xxhash/v2"

	"thingcraft.ai/internal/voxel"
)

// Collection is an ordered set of voxels keyed by position.
//
// Positions are unique: adding a voxel at an occupied position replaces the
// stored block in place (last write wins) and keeps the original order slot.
// A Collection is not safe for concurrent use.
type Collection struct {
	voxels []voxel.Voxel
	index  map[voxel.Pos]int
}

func NewCollection() *Collection {
	return &Collection{index: map[voxel.Pos]int{}}
}

// Len returns the number of distinct positions.
func (c *Collection) Len() int { return len(c.voxels) }

// Voxels returns a copy of the voxels in insertion order.
func (c *Collection) Voxels() []voxel.Voxel {
	out := make([]voxel.Voxel, len(c.voxels))
	copy(out, c.voxels)
	return out
}

// Get returns the block stored at p.
func (c *Collection) Get(p voxel.Pos) (voxel.Block, bool) {
	i, ok := c.index[p]
	if !ok {
		return voxel.Block{}, false
	}
	return c.voxels[i].Block, true
}

// Add inserts v. Every other mutation funnels through here.
func (c *Collection) Add(v voxel.Voxel) {
	if c.index == nil {
		c.index = map[voxel.Pos]int{}
	}
	if i, ok := c.index[v.Pos]; ok {
		c.voxels[i].Block = v.Block
		return
	}
	c.index[v.Pos] = len(c.voxels)
	c.voxels = append(c.voxels, v)
}

// SetBlock adds a single block at p.
func (c *Collection) SetBlock(p voxel.Pos, b voxel.Block) {
	c.Add(voxel.Voxel{Pos: p, Block: b})
}

// SetBlocksCuboid fills the inclusive cuboid [lo, hi] with b, generating
// voxels in y, z, x nesting order. Nothing is added on error.
func (c *Collection) SetBlocksCuboid(lo, hi voxel.Pos, b voxel.Block) error {
	box, err := voxel.NewBox(lo, hi)
	if err != nil {
		return err
	}
	for y := box.Min[1]; y <= box.Max[1]; y++ {
		for z := box.Min[2]; z <= box.Max[2]; z++ {
			for x := box.Min[0]; x <= box.Max[0]; x++ {
				c.Add(voxel.Voxel{Pos: voxel.Pos{x, y, z}, Block: b})
			}
		}
	}
	return nil
}

// AddChunk copies every cell of ch into the collection at anchor+local,
// skipping cells whose id equals skip when skipEmpty is set.
func (c *Collection) AddChunk(anchor voxel.Pos, ch *Chunk, skipEmpty bool, skip uint16) {
	ch.Each(func(local voxel.Pos, b voxel.Block) bool {
		if skipEmpty && b.ID == skip {
			return true
		}
		c.Add(voxel.Voxel{Pos: anchor.Add(local), Block: b})
		return true
	})
}

// BoundingBox returns the component-wise min and max over all positions.
func (c *Collection) BoundingBox() (voxel.Box, error) {
	if len(c.voxels) == 0 {
		return voxel.Box{}, fmt.Errorf("bounding box: %w", voxel.ErrEmptyCollection)
	}
	b := voxel.Box{Min: c.voxels[0].Pos, Max: c.voxels[0].Pos}
	for _, v := range c.voxels[1:] {
		b = b.Extend(v.Pos)
	}
	return b, nil
}

// IsCuboid reports whether the voxels exactly fill their bounding box.
// Positions are unique, so count == volume means every cell is present.
func (c *Collection) IsCuboid() (bool, error) {
	b, err := c.BoundingBox()
	if err != nil {
		return false, err
	}
	return len(c.voxels) == b.Volume(), nil
}

// AllEqual reports whether every voxel has the first voxel's block. It is
// false for an empty collection.
func (c *Collection) AllEqual() bool {
	if len(c.voxels) == 0 {
		return false
	}
	first := c.voxels[0].Block
	for _, v := range c.voxels[1:] {
		if v.Block != first {
			return false
		}
	}
	return true
}

// Rotate turns every voxel around pivot in the x/z plane by degrees (90,
// 180 or 270). The rotated voxels are re-added in the original order into a
// fresh collection that then replaces the current contents, so a failure
// leaves the collection untouched. Rotated positions that land on the same
// cell keep the last written block.
func (c *Collection) Rotate(degrees int, pivot voxel.Pos) error {
	r, err := voxel.ParseDegrees(degrees)
	if err != nil {
		return err
	}
	c.RotateBy(r, pivot)
	return nil
}

// RotateBy is Rotate with an already validated rotation.
func (c *Collection) RotateBy(r voxel.Rotation, pivot voxel.Pos) {
	next := &Collection{
		voxels: make([]voxel.Voxel, 0, len(c.voxels)),
		index:  make(map[voxel.Pos]int, len(c.voxels)),
	}
	for _, v := range c.voxels {
		next.Add(voxel.Voxel{Pos: voxel.RotatePos(v.Pos, pivot, r), Block: v.Block})
	}
	c.voxels, c.index = next.voxels, next.index
}

// Translate shifts every voxel by d.
func (c *Collection) Translate(d voxel.Pos) {
	next := &Collection{
		voxels: make([]voxel.Voxel, 0, len(c.voxels)),
		index:  make(map[voxel.Pos]int, len(c.voxels)),
	}
	for _, v := range c.voxels {
		next.Add(voxel.Voxel{Pos: v.Pos.Add(d), Block: v.Block})
	}
	c.voxels, c.index = next.voxels, next.index
}

// Clone returns an independent copy.
func (c *Collection) Clone() *Collection {
	out := &Collection{
		voxels: make([]voxel.Voxel, len(c.voxels)),
		index:  make(map[voxel.Pos]int, len(c.index)),
	}
	copy(out.voxels, c.voxels)
	for k, v := range c.index {
		out.index[k] = v
	}
	return out
}

// Equal reports whether both collections hold the same voxels in the same order.
func (c *Collection) Equal(o *Collection) bool {
	if len(c.voxels) != len(o.voxels) {
		return false
	}
	for i := range c.voxels {
		if c.voxels[i] != o.voxels[i] {
			return false
		}
	}
	return true
}

// ToChunk returns the dense chunk covering the bounding box, anchored at
// its min corner. Cells without a voxel hold fill.
func (c *Collection) ToChunk(fill voxel.Block) (Placement, error) {
	b, err := c.BoundingBox()
	if err != nil {
		return Placement{}, err
	}
	size := b.Size()
	n := b.Volume()
	ids := make([]uint16, n)
	meta := make([]voxel.Meta, n)
	for i := range ids {
		ids[i] = fill.ID
		meta[i] = fill.Meta
	}
	sx, sz := size[0], size[2]
	for _, v := range c.voxels {
		l := v.Pos.Sub(b.Min)
		i := l[0] + sx*l[2] + sx*sz*l[1]
		ids[i] = v.Block.ID
		meta[i] = v.Block.Meta
	}
	ch, err := NewChunk(size, ids, meta)
	if err != nil {
		return Placement{}, err
	}
	return Placement{Anchor: b.Min, Chunk: ch}, nil
}

// Chunks converts the collection into placements for rendering. A cuboid
// collection becomes one dense chunk. Anything else is split into maximal
// runs along x of consecutive cells holding the same block, visited in
// y, z, x order; each run renders as a single bulk fill and no cell outside
// the collection is ever covered. An empty collection yields no placements.
func (c *Collection) Chunks() ([]Placement, error) {
	if len(c.voxels) == 0 {
		return nil, nil
	}
	cuboid, err := c.IsCuboid()
	if err != nil {
		return nil, err
	}
	if cuboid {
		p, err := c.ToChunk(voxel.B(voxel.Air))
		if err != nil {
			return nil, err
		}
		return []Placement{p}, nil
	}

	sorted := c.Voxels()
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i].Pos, sorted[j].Pos
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		if a[2] != b[2] {
			return a[2] < b[2]
		}
		return a[0] < b[0]
	})
	var out []Placement
	for i := 0; i < len(sorted); {
		start := sorted[i]
		j := i + 1
		for j < len(sorted) {
			prev, next := sorted[j-1], sorted[j]
			if next.Pos[1] != start.Pos[1] || next.Pos[2] != start.Pos[2] || next.Pos[0] != prev.Pos[0]+1 || next.Block != start.Block {
				break
			}
			j++
		}
		ch, err := NewUniformChunk(voxel.Pos{j - i, 1, 1}, start.Block)
		if err != nil {
			return nil, err
		}
		out = append(out, Placement{Anchor: start.Pos, Chunk: ch})
		i = j
	}
	return out, nil
}

// Digest hashes the voxels in insertion order.
func (c *Collection) Digest() uint64 {
	h := xxhash.New()
	var tmp [28]byte
	for _, v := range c.voxels {
		for i, p := range v.Pos {
			binary.LittleEndian.PutUint64(tmp[i*8:], uint64(int64(p)))
		}
		binary.LittleEndian.PutUint16(tmp[24:], v.Block.ID)
		binary.LittleEndian.PutUint16(tmp[26:], uint16(v.Block.Meta))
		_, _ = h.Write(tmp[:])
	}
	return h.Sum64()
}
