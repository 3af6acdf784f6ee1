package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"thingcraft.ai/internal/memory"
	"thingcraft.ai/internal/voxel"
)

// Config holds the caller-supplied knobs of a Renderer. They are fixed for
// the lifetime of the Renderer; derive a new one with WithClearing or
// WithRotation instead of mutating.
type Config struct {
	// RotationDegrees is 0, 90, 180 or 270. Cells are rotated around the
	// chunk's local origin before the anchor is added.
	RotationDegrees int
	// Substitutions remaps ids before they are written.
	Substitutions map[uint16]uint16
	// Clearing writes Empty into every cell instead of the chunk contents.
	Clearing bool
	// Empty is the id of the empty block. Cells holding it are skipped
	// unless Clearing is set.
	Empty uint16
	// PlanWorkers bounds the concurrent uniformity scan in Plan. Zero means
	// GOMAXPROCS.
	PlanWorkers int
}

// Strategy is how a chunk is written.
type Strategy uint8

const (
	// StrategyCells writes every cell individually.
	StrategyCells Strategy = iota
	// StrategyFill writes the whole chunk with one bulk fill.
	StrategyFill
)

func (s Strategy) String() string {
	if s == StrategyFill {
		return "fill"
	}
	return "cells"
}

// Renderer dispatches chunks to a Backend.
type Renderer struct {
	backend Backend
	cfg     Config
	rot     voxel.Rotation
	stats   *Stats
	log     *log.Logger
}

// New validates cfg and binds it to backend. logger may be nil.
func New(backend Backend, cfg Config, logger *log.Logger) (*Renderer, error) {
	if backend == nil {
		return nil, errors.New("render: nil backend")
	}
	rot, err := voxel.ParseOptionalDegrees(cfg.RotationDegrees)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	subs := make(map[uint16]uint16, len(cfg.Substitutions))
	for k, v := range cfg.Substitutions {
		subs[k] = v
	}
	cfg.Substitutions = subs
	return &Renderer{
		backend: backend,
		cfg:     cfg,
		rot:     rot,
		stats:   &Stats{},
		log:     logger,
	}, nil
}

// Config returns a copy of the renderer configuration.
func (r *Renderer) Config() Config {
	c := r.cfg
	c.Substitutions = make(map[uint16]uint16, len(r.cfg.Substitutions))
	for k, v := range r.cfg.Substitutions {
		c.Substitutions[k] = v
	}
	return c
}

// Backend returns the backend the renderer writes to.
func (r *Renderer) Backend() Backend { return r.backend }

// Stats returns the counters shared by this renderer and every renderer
// derived from it.
func (r *Renderer) Stats() *Stats { return r.stats }

// WithClearing returns a renderer sharing backend and stats with Clearing set.
func (r *Renderer) WithClearing(clearing bool) *Renderer {
	out := *r
	out.cfg = r.Config()
	out.cfg.Clearing = clearing
	return &out
}

// WithRotation returns a renderer sharing backend and stats with a new
// draw-time rotation.
func (r *Renderer) WithRotation(degrees int) (*Renderer, error) {
	rot, err := voxel.ParseOptionalDegrees(degrees)
	if err != nil {
		return nil, err
	}
	out := *r
	out.cfg = r.Config()
	out.cfg.RotationDegrees = degrees
	out.rot = rot
	return &out, nil
}

// Render applies chunk with its local origin at anchor. A uniform chunk is
// written with a single bulk fill; any other chunk is written cell by cell
// in flattening order. Backend failures are returned as *Error and are not
// retried.
func (r *Renderer) Render(ctx context.Context, chunk *memory.Chunk, anchor voxel.Pos) error {
	if chunk == nil {
		return errors.New("render: nil chunk")
	}
	if chunk.AllEqual() {
		return r.renderWith(ctx, chunk, anchor, StrategyFill)
	}
	return r.renderWith(ctx, chunk, anchor, StrategyCells)
}

// Plan computes the strategy of every placement. The scans run
// concurrently; the result is index-aligned with placements.
func (r *Renderer) Plan(ctx context.Context, placements []memory.Placement) ([]Strategy, error) {
	out := make([]Strategy, len(placements))
	g, ctx := errgroup.WithContext(ctx)
	workers := r.cfg.PlanWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)
	for i := range placements {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if ch := placements[i].Chunk; ch != nil && ch.AllEqual() {
				out[i] = StrategyFill
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// RenderAll renders placements in order, each at origin + placement anchor.
// With a draw-time rotation the anchors are rotated around origin too, so
// the placements turn as one shape.
// Strategies are planned up front; writes stay strictly sequential so that
// the last write to a shared cell is deterministic.
func (r *Renderer) RenderAll(ctx context.Context, origin voxel.Pos, placements []memory.Placement) error {
	plan, err := r.Plan(ctx, placements)
	if err != nil {
		return err
	}
	before := r.stats.Snapshot()
	for i, p := range placements {
		if p.Chunk == nil {
			continue
		}
		anchor := origin.Add(voxel.RotatePos(p.Anchor, voxel.Pos{}, r.rot))
		if err := r.renderWith(ctx, p.Chunk, anchor, plan[i]); err != nil {
			return err
		}
	}
	d := r.stats.Snapshot().Sub(before)
	r.log.Printf("rendered %s placements at %v: fills=%s sets=%s skipped=%s clearing=%v",
		humanize.Comma(int64(len(placements))), origin,
		humanize.Comma(d.Fills), humanize.Comma(d.Sets), humanize.Comma(d.Skipped), r.cfg.Clearing)
	return nil
}

func (r *Renderer) renderWith(ctx context.Context, chunk *memory.Chunk, anchor voxel.Pos, s Strategy) error {
	r.stats.chunks.Inc()
	if s == StrategyFill {
		b, ok := chunk.Uniform()
		if ok {
			return r.fill(ctx, chunk.Size(), b, anchor)
		}
	}
	var failed error
	chunk.Each(func(local voxel.Pos, b voxel.Block) bool {
		id, meta, write := r.resolveCell(b)
		if !write {
			r.stats.skipped.Inc()
			return true
		}
		pos := anchor.Add(voxel.RotatePos(local, voxel.Pos{}, r.rot))
		op := Op{Kind: OpSet, Box: voxel.Box{Min: pos, Max: pos}, ID: id, Meta: meta}
		if err := r.apply(ctx, op); err != nil {
			failed = err
			return false
		}
		r.stats.sets.Inc()
		return true
	})
	return failed
}

func (r *Renderer) fill(ctx context.Context, size voxel.Pos, b voxel.Block, anchor voxel.Pos) error {
	local := voxel.Box{Max: voxel.Pos{size[0] - 1, size[1] - 1, size[2] - 1}}
	box := voxel.RotateBox(local, voxel.Pos{}, r.rot).Translate(anchor)
	id, meta := r.resolveFill(b)
	if err := r.apply(ctx, Op{Kind: OpFill, Box: box, ID: id, Meta: meta}); err != nil {
		return err
	}
	r.stats.fills.Inc()
	return nil
}

func (r *Renderer) apply(ctx context.Context, op Op) error {
	var err error
	if err = ctx.Err(); err == nil {
		if op.Kind == OpFill {
			err = r.backend.Fill(ctx, op.Box, op.ID, op.Meta)
		} else {
			err = r.backend.Set(ctx, op.Box.Min, op.ID, op.Meta)
		}
	}
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	return nil
}

// resolveCell maps a chunk cell to what the per-voxel path writes.
func (r *Renderer) resolveCell(b voxel.Block) (id uint16, meta uint8, write bool) {
	if r.cfg.Clearing {
		return r.cfg.Empty, 0, true
	}
	if b.ID == r.cfg.Empty {
		return 0, 0, false
	}
	return r.substitute(b.ID), b.Meta.Nibble(), true
}

// resolveFill maps the uniform block of a chunk to what the bulk path
// writes. A uniform empty chunk is still written.
func (r *Renderer) resolveFill(b voxel.Block) (uint16, uint8) {
	if r.cfg.Clearing {
		return r.cfg.Empty, 0
	}
	return r.substitute(b.ID), b.Meta.Nibble()
}

func (r *Renderer) substitute(id uint16) uint16 {
	if to, ok := r.cfg.Substitutions[id]; ok {
		return to
	}
	return id
}

// Close closes the backend.
func (r *Renderer) Close() error {
	return r.backend.Close()
}
