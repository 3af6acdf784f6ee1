package render

import (
	"context"

	"thingcraft.ai/internal/voxel"
)

// Journal receives every write that a backend accepted.
type Journal interface {
	WriteOp(op Op) error
}

type journaled struct {
	Backend
	j Journal
}

// Journaled records accepted writes of b into j. A journal failure is
// reported as the write's error.
func Journaled(b Backend, j Journal) Backend {
	if j == nil {
		return b
	}
	return &journaled{Backend: b, j: j}
}

func (b *journaled) Fill(ctx context.Context, box voxel.Box, id uint16, meta uint8) error {
	if err := b.Backend.Fill(ctx, box, id, meta); err != nil {
		return err
	}
	return b.j.WriteOp(Op{Kind: OpFill, Box: box, ID: id, Meta: meta})
}

func (b *journaled) Set(ctx context.Context, pos voxel.Pos, id uint16, meta uint8) error {
	if err := b.Backend.Set(ctx, pos, id, meta); err != nil {
		return err
	}
	return b.j.WriteOp(Op{Kind: OpSet, Box: voxel.Box{Min: pos, Max: pos}, ID: id, Meta: meta})
}
