package scene

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"thingcraft.ai/internal/encoding"
	"thingcraft.ai/internal/memory"
	plog "thingcraft.ai/internal/persistence/log"
	"thingcraft.ai/internal/persistence/snapshot"
	"thingcraft.ai/internal/schematic"
	"thingcraft.ai/internal/voxel"
)

// Decorator adds detail to a built Thing, e.g. lighting or signage.
type Decorator interface {
	Decorate(ctx context.Context, t *Thing) error
}

// Thing is a named structure placed at a world position. Its blocks are
// kept in local coordinates, either in a Collection or as dense chunk
// placements added directly (schematics).
type Thing struct {
	id    string
	name  string
	pos   voxel.Pos
	scene *Scene

	blocks *memory.Collection
	direct []memory.Placement

	children   []*Thing
	decorators []Decorator
	built      bool
}

// NewThing creates a Thing at pos and registers it with the scene.
func (s *Scene) NewThing(name string, pos voxel.Pos) *Thing {
	t := &Thing{
		id:     uuid.NewString(),
		name:   name,
		pos:    pos,
		scene:  s,
		blocks: memory.NewCollection(),
	}
	s.add(t)
	return t
}

func (t *Thing) ID() string                 { return t.id }
func (t *Thing) Name() string               { return t.name }
func (t *Thing) Position() voxel.Pos        { return t.pos }
func (t *Thing) Scene() *Scene              { return t.scene }
func (t *Thing) Built() bool                { return t.built }
func (t *Thing) Blocks() *memory.Collection { return t.blocks }

// SetBlock places b at local position p.
func (t *Thing) SetBlock(p voxel.Pos, b voxel.Block) { t.blocks.SetBlock(p, b) }

// SetBlocks fills the inclusive local cuboid [lo, hi] with b.
func (t *Thing) SetBlocks(lo, hi voxel.Pos, b voxel.Block) error {
	return t.blocks.SetBlocksCuboid(lo, hi, b)
}

// AddChunk places a dense chunk with its local origin at anchor.
func (t *Thing) AddChunk(anchor voxel.Pos, ch *memory.Chunk) error {
	if ch == nil {
		return errors.New("thing: nil chunk")
	}
	t.direct = append(t.direct, memory.Placement{Anchor: anchor, Chunk: ch})
	return nil
}

// AddSchematic places a decoded schematic with its origin at anchor.
func (t *Thing) AddSchematic(anchor voxel.Pos, rec schematic.Record) error {
	ch, err := rec.ToChunk()
	if err != nil {
		return err
	}
	return t.AddChunk(anchor, ch)
}

func (t *Thing) AddChild(c *Thing)        { t.children = append(t.children, c) }
func (t *Thing) Children() []*Thing       { return append([]*Thing(nil), t.children...) }
func (t *Thing) AddDecorator(d Decorator) { t.decorators = append(t.decorators, d) }

// Decorate runs every decorator on the Thing and then on each child.
func (t *Thing) Decorate(ctx context.Context) error {
	for _, d := range t.decorators {
		if err := d.Decorate(ctx, t); err != nil {
			return err
		}
		for _, c := range t.children {
			if err := d.Decorate(ctx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// Placements lists what Build renders, in local coordinates: the
// collection's chunks followed by the direct placements.
func (t *Thing) Placements() ([]memory.Placement, error) {
	var out []memory.Placement
	if t.blocks.Len() > 0 {
		ps, err := t.blocks.Chunks()
		if err != nil {
			return nil, err
		}
		out = append(out, ps...)
	}
	return append(out, t.direct...), nil
}

// Build renders the Thing at its position.
func (t *Thing) Build(ctx context.Context) error {
	ps, err := t.Placements()
	if err != nil {
		return err
	}
	if err := t.scene.renderer.RenderAll(ctx, t.pos, ps); err != nil {
		return err
	}
	t.built = true
	t.record("build", ps, "")
	return nil
}

// Unbuild writes the empty block over every cell Build writes.
func (t *Thing) Unbuild(ctx context.Context) error {
	ps, err := t.Placements()
	if err != nil {
		return err
	}
	if err := t.scene.renderer.WithClearing(true).RenderAll(ctx, t.pos, ps); err != nil {
		return err
	}
	t.built = false
	t.record("unbuild", ps, "")
	return nil
}

// Move unbuilds the Thing, repositions it and builds it again.
func (t *Thing) Move(ctx context.Context, pos voxel.Pos) error {
	if err := t.Unbuild(ctx); err != nil {
		return err
	}
	from := t.pos
	t.pos = pos
	if err := t.Build(ctx); err != nil {
		return err
	}
	t.record("move", nil, fmt.Sprintf("from %v to %v", from, pos))
	return nil
}

// materialize folds the direct placements into c, skipping empty cells the
// same way rendering does.
func (t *Thing) materialize(c *memory.Collection) {
	empty := t.scene.renderer.Config().Empty
	for _, p := range t.direct {
		c.AddChunk(p.Anchor, p.Chunk, true, empty)
	}
}

// Rotate turns the Thing in memory around its local origin. Only the
// stored blocks change; call Build to show the result.
func (t *Thing) Rotate(degrees int) error {
	r, err := voxel.ParseDegrees(degrees)
	if err != nil {
		return err
	}
	t.materialize(t.blocks)
	t.direct = nil
	t.blocks.RotateBy(r, voxel.Pos{})
	t.record("rotate", nil, fmt.Sprintf("%d degrees", degrees))
	return nil
}

// BoundingBox returns the world-space cuboid covered by the Thing's
// placements.
func (t *Thing) BoundingBox() (voxel.Box, error) {
	ps, err := t.Placements()
	if err != nil {
		return voxel.Box{}, err
	}
	var (
		box   voxel.Box
		found bool
	)
	for _, p := range ps {
		b, ok := p.Box()
		if !ok {
			continue
		}
		if !found {
			box, found = b, true
			continue
		}
		box = box.Extend(b.Min).Extend(b.Max)
	}
	if !found {
		return voxel.Box{}, fmt.Errorf("thing %s: %w", t.name, voxel.ErrEmptyCollection)
	}
	return box.Translate(t.pos), nil
}

// ToSchematic exports the Thing's bounding box as a dense record. Cells the
// Thing does not set hold the empty block.
func (t *Thing) ToSchematic() (schematic.Record, error) {
	c := t.blocks.Clone()
	t.materialize(c)
	pl, err := c.ToChunk(voxel.B(t.scene.renderer.Config().Empty))
	if err != nil {
		return schematic.Record{}, err
	}
	return schematic.FromChunk(pl.Chunk), nil
}

// Digest hashes the Thing's placements. Two Things that render the same
// cells in the same order share a digest.
func (t *Thing) Digest() (uint64, error) {
	ps, err := t.Placements()
	if err != nil {
		return 0, err
	}
	return digestPlacements(ps), nil
}

func digestPlacements(ps []memory.Placement) uint64 {
	h := xxhash.New()
	var buf [8]byte
	for _, p := range ps {
		for _, v := range p.Anchor {
			binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
			_, _ = h.Write(buf[:])
		}
		binary.LittleEndian.PutUint64(buf[:], p.Chunk.Digest())
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

// Snapshot captures the Thing's placements with RLE-packed arrays.
func (t *Thing) Snapshot() (snapshot.ThingV1, error) {
	ps, err := t.Placements()
	if err != nil {
		return snapshot.ThingV1{}, err
	}
	snap := snapshot.ThingV1{
		Header: snapshot.Header{
			Version: 1,
			Kind:    snapshot.KindThing,
			ID:      t.id,
			Digest:  digestPlacements(ps),
		},
		Name:     t.name,
		Position: t.pos,
	}
	for _, p := range ps {
		snap.Placements = append(snap.Placements, snapshot.PlacementV1{
			Anchor: p.Anchor,
			Size:   p.Chunk.Size(),
			IDs:    encoding.EncodeRLE(p.Chunk.IDs()),
			Meta:   encoding.EncodeRLE(p.Chunk.Meta()),
		})
	}
	return snap, nil
}

// SaveSnapshot writes the Thing to path.
func (t *Thing) SaveSnapshot(path string) error {
	snap, err := t.Snapshot()
	if err != nil {
		return err
	}
	if err := snapshot.WriteThing(path, snap); err != nil {
		return err
	}
	t.record("snapshot", nil, path)
	return nil
}

// Restore registers a Thing rebuilt from snap. Its placements become direct
// placements, so it renders exactly what the original rendered.
func (s *Scene) Restore(snap snapshot.ThingV1) (*Thing, error) {
	t := &Thing{
		id:     snap.Header.ID,
		name:   snap.Name,
		pos:    snap.Position,
		scene:  s,
		blocks: memory.NewCollection(),
	}
	if t.id == "" {
		t.id = uuid.NewString()
	}
	for i, p := range snap.Placements {
		size := voxel.Pos(p.Size)
		n, ok := voxel.Volume(size)
		if !ok {
			return nil, fmt.Errorf("placement %d: %w: extents %v out of range", i, voxel.ErrSizeMismatch, size)
		}
		ids, err := encoding.DecodeRLE[uint16](p.IDs, n)
		if err != nil {
			return nil, fmt.Errorf("placement %d ids: %w", i, err)
		}
		meta, err := encoding.DecodeRLE[voxel.Meta](p.Meta, n)
		if err != nil {
			return nil, fmt.Errorf("placement %d meta: %w", i, err)
		}
		ch, err := memory.NewChunk(size, ids, meta)
		if err != nil {
			return nil, fmt.Errorf("placement %d: %w", i, err)
		}
		t.direct = append(t.direct, memory.Placement{Anchor: p.Anchor, Chunk: ch})
	}
	if snap.Header.Digest != 0 {
		if got := digestPlacements(t.direct); got != snap.Header.Digest {
			return nil, fmt.Errorf("thing %s: digest mismatch %016x != %016x", t.id, got, snap.Header.Digest)
		}
	}
	s.add(t)
	return t, nil
}

// LoadSnapshot reads path and restores the Thing into s.
func (s *Scene) LoadSnapshot(path string) (*Thing, error) {
	snap, err := snapshot.ReadThing(path)
	if err != nil {
		return nil, err
	}
	return s.Restore(snap)
}

func (t *Thing) record(action string, ps []memory.Placement, msg string) {
	e := plog.BuildEntry{
		Thing:   t.id,
		Name:    t.name,
		Action:  action,
		Message: msg,
	}
	voxels := 0
	if box, err := t.BoundingBox(); err == nil {
		e.Min, e.Max = box.Min, box.Max
	}
	for _, p := range ps {
		voxels += p.Chunk.Volume()
	}
	e.Voxels = voxels
	if ps != nil {
		e.Digest = fmt.Sprintf("%016x", digestPlacements(ps))
	}
	t.scene.log.Printf("%s %q (%s) at %v: %s cells", action, t.name, t.id, t.pos, humanize.Comma(int64(voxels)))
	t.scene.record(e)
}
