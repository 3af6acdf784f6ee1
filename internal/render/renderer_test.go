package render

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"thingcraft.ai/internal/memory"
	"thingcraft.ai/internal/voxel"
)

type recorder struct {
	ops    []Op
	failAt int // 1-based op index that fails; 0 never
}

var errBackend = errors.New("backend down")

func (r *recorder) record(op Op) error {
	if r.failAt > 0 && len(r.ops)+1 == r.failAt {
		return errBackend
	}
	r.ops = append(r.ops, op)
	return nil
}

func (r *recorder) Fill(_ context.Context, box voxel.Box, id uint16, meta uint8) error {
	return r.record(Op{Kind: OpFill, Box: box, ID: id, Meta: meta})
}

func (r *recorder) Set(_ context.Context, pos voxel.Pos, id uint16, meta uint8) error {
	return r.record(Op{Kind: OpSet, Box: voxel.Box{Min: pos, Max: pos}, ID: id, Meta: meta})
}

func (r *recorder) Close() error { return nil }

func set(x, y, z int, id uint16, meta uint8) Op {
	p := voxel.Pos{x, y, z}
	return Op{Kind: OpSet, Box: voxel.Box{Min: p, Max: p}, ID: id, Meta: meta}
}

func mustChunk(t *testing.T, size voxel.Pos, ids []uint16, meta []voxel.Meta) *memory.Chunk {
	t.Helper()
	if meta == nil {
		meta = make([]voxel.Meta, len(ids))
	}
	c, err := memory.NewChunk(size, ids, meta)
	if err != nil {
		t.Fatalf("NewChunk: %v", err)
	}
	return c
}

func mustRenderer(t *testing.T, b Backend, cfg Config) *Renderer {
	t.Helper()
	r, err := New(b, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestRender_UniformChunkIsOneFill(t *testing.T) {
	rec := &recorder{}
	r := mustRenderer(t, rec, Config{})
	anchor := voxel.Pos{10, 64, -5}

	if err := r.Render(context.Background(), mustChunk(t, voxel.Pos{2, 2, 1}, []uint16{1, 1, 1, 1}, nil), anchor); err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := []Op{{Kind: OpFill, Box: voxel.Box{Min: anchor, Max: voxel.Pos{11, 65, -5}}, ID: 1}}
	if !reflect.DeepEqual(rec.ops, want) {
		t.Fatalf("ops=%v want %v", rec.ops, want)
	}
}

func TestRender_MixedChunkIsSetsInFlatteningOrder(t *testing.T) {
	rec := &recorder{}
	r := mustRenderer(t, rec, Config{})
	anchor := voxel.Pos{10, 64, -5}

	if err := r.Render(context.Background(), mustChunk(t, voxel.Pos{2, 2, 1}, []uint16{1, 1, 1, 2}, nil), anchor); err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := []Op{
		set(10, 64, -5, 1, 0),
		set(11, 64, -5, 1, 0),
		set(10, 65, -5, 1, 0),
		set(11, 65, -5, 2, 0),
	}
	if !reflect.DeepEqual(rec.ops, want) {
		t.Fatalf("ops=%v want %v", rec.ops, want)
	}
	if s := r.Stats().Snapshot(); s.Sets != 4 || s.Fills != 0 || s.Chunks != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestRender_SkipsEmptyOutsideClearing(t *testing.T) {
	rec := &recorder{}
	r := mustRenderer(t, rec, Config{})
	ch := mustChunk(t, voxel.Pos{3, 1, 1}, []uint16{0, 5, 0}, nil)

	if err := r.Render(context.Background(), ch, voxel.Pos{}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := []Op{set(1, 0, 0, 5, 0)}
	if !reflect.DeepEqual(rec.ops, want) {
		t.Fatalf("ops=%v want %v", rec.ops, want)
	}
	if got := r.Stats().Snapshot().Skipped; got != 2 {
		t.Fatalf("skipped=%d want 2", got)
	}
}

func TestRender_ClearingWritesEmptyEverywhere(t *testing.T) {
	ch := mustChunk(t, voxel.Pos{3, 1, 1}, []uint16{0, 5, 7}, []voxel.Meta{0, 3, 4})

	rec := &recorder{}
	r := mustRenderer(t, rec, Config{Empty: 0}).WithClearing(true)
	if err := r.Render(context.Background(), ch, voxel.Pos{}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := []Op{set(0, 0, 0, 0, 0), set(1, 0, 0, 0, 0), set(2, 0, 0, 0, 0)}
	if !reflect.DeepEqual(rec.ops, want) {
		t.Fatalf("ops=%v want %v", rec.ops, want)
	}

	rec2 := &recorder{}
	r2 := mustRenderer(t, rec2, Config{Clearing: true})
	uni := mustChunk(t, voxel.Pos{2, 1, 1}, []uint16{9, 9}, []voxel.Meta{2, 2})
	if err := r2.Render(context.Background(), uni, voxel.Pos{1, 1, 1}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	wantFill := []Op{{Kind: OpFill, Box: voxel.Box{Min: voxel.Pos{1, 1, 1}, Max: voxel.Pos{2, 1, 1}}, ID: 0}}
	if !reflect.DeepEqual(rec2.ops, wantFill) {
		t.Fatalf("ops=%v want %v", rec2.ops, wantFill)
	}
}

func TestRender_SubstitutionAndMetaMask(t *testing.T) {
	rec := &recorder{}
	r := mustRenderer(t, rec, Config{Substitutions: map[uint16]uint16{5: 6}})
	ch := mustChunk(t, voxel.Pos{2, 1, 1}, []uint16{5, 7}, []voxel.Meta{0x1F, voxel.NoMeta})

	if err := r.Render(context.Background(), ch, voxel.Pos{}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := []Op{set(0, 0, 0, 6, 0x0F), set(1, 0, 0, 7, 0)}
	if !reflect.DeepEqual(rec.ops, want) {
		t.Fatalf("ops=%v want %v", rec.ops, want)
	}

	rec2 := &recorder{}
	r2 := mustRenderer(t, rec2, Config{Substitutions: map[uint16]uint16{5: 6}})
	uni := mustChunk(t, voxel.Pos{1, 2, 1}, []uint16{5, 5}, []voxel.Meta{0x23, 0x23})
	if err := r2.Render(context.Background(), uni, voxel.Pos{}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(rec2.ops) != 1 || rec2.ops[0].ID != 6 || rec2.ops[0].Meta != 3 {
		t.Fatalf("unexpected fill %v", rec2.ops)
	}
}

func TestRender_Rotation(t *testing.T) {
	rec := &recorder{}
	r := mustRenderer(t, rec, Config{RotationDegrees: 90})
	ch := mustChunk(t, voxel.Pos{2, 1, 1}, []uint16{1, 2}, nil)

	if err := r.Render(context.Background(), ch, voxel.Pos{10, 0, 10}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	// local (1,0,0) turns to (0,0,1).
	want := []Op{set(10, 0, 10, 1, 0), set(10, 0, 11, 2, 0)}
	if !reflect.DeepEqual(rec.ops, want) {
		t.Fatalf("ops=%v want %v", rec.ops, want)
	}

	rec2 := &recorder{}
	r2, err := mustRenderer(t, rec2, Config{}).WithRotation(90)
	if err != nil {
		t.Fatalf("WithRotation: %v", err)
	}
	uni := mustChunk(t, voxel.Pos{3, 1, 2}, []uint16{4, 4, 4, 4, 4, 4}, nil)
	if err := r2.Render(context.Background(), uni, voxel.Pos{0, 5, 0}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	wantBox := voxel.Box{Min: voxel.Pos{-1, 5, 0}, Max: voxel.Pos{0, 5, 2}}
	if len(rec2.ops) != 1 || rec2.ops[0].Box != wantBox {
		t.Fatalf("ops=%v want box %v", rec2.ops, wantBox)
	}
}

func TestNew_RejectsBadRotation(t *testing.T) {
	_, err := New(&recorder{}, Config{RotationDegrees: 45}, nil)
	if !errors.Is(err, voxel.ErrInvalidRotation) {
		t.Fatalf("expected ErrInvalidRotation, got %v", err)
	}
	if _, err := mustRenderer(t, &recorder{}, Config{}).WithRotation(30); !errors.Is(err, voxel.ErrInvalidRotation) {
		t.Fatalf("expected ErrInvalidRotation, got %v", err)
	}
}

func TestRender_BackendFailureStops(t *testing.T) {
	rec := &recorder{failAt: 2}
	r := mustRenderer(t, rec, Config{})
	ch := mustChunk(t, voxel.Pos{3, 1, 1}, []uint16{1, 2, 3}, nil)

	err := r.Render(context.Background(), ch, voxel.Pos{})
	if !errors.Is(err, ErrRenderFailure) {
		t.Fatalf("expected ErrRenderFailure, got %v", err)
	}
	if !errors.Is(err, errBackend) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
	var re *Error
	if !errors.As(err, &re) || re.Op != set(1, 0, 0, 2, 0) {
		t.Fatalf("unexpected failing op: %v", err)
	}
	if Code(err) != CodeRenderFailure {
		t.Fatalf("code=%s", Code(err))
	}
	if len(rec.ops) != 1 {
		t.Fatalf("writes after failure: %v", rec.ops)
	}
}

func TestRender_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &recorder{}
	r := mustRenderer(t, rec, Config{})
	err := r.Render(ctx, mustChunk(t, voxel.Pos{1, 1, 1}, []uint16{1}, nil), voxel.Pos{})
	if !errors.Is(err, context.Canceled) || len(rec.ops) != 0 {
		t.Fatalf("err=%v ops=%v", err, rec.ops)
	}
}

func TestPlanAndRenderAll(t *testing.T) {
	rec := &recorder{}
	r := mustRenderer(t, rec, Config{PlanWorkers: 2})
	placements := []memory.Placement{
		{Anchor: voxel.Pos{0, 0, 0}, Chunk: mustChunk(t, voxel.Pos{2, 1, 1}, []uint16{3, 3}, nil)},
		{Anchor: voxel.Pos{0, 1, 0}, Chunk: mustChunk(t, voxel.Pos{2, 1, 1}, []uint16{3, 4}, nil)},
		{Anchor: voxel.Pos{0, 2, 0}, Chunk: nil},
	}
	plan, err := r.Plan(context.Background(), placements)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if want := []Strategy{StrategyFill, StrategyCells, StrategyCells}; !reflect.DeepEqual(plan, want) {
		t.Fatalf("plan=%v want %v", plan, want)
	}

	if err := r.RenderAll(context.Background(), voxel.Pos{100, 0, 0}, placements); err != nil {
		t.Fatalf("RenderAll: %v", err)
	}
	want := []Op{
		{Kind: OpFill, Box: voxel.Box{Min: voxel.Pos{100, 0, 0}, Max: voxel.Pos{101, 0, 0}}, ID: 3},
		set(100, 1, 0, 3, 0),
		set(101, 1, 0, 4, 0),
	}
	if !reflect.DeepEqual(rec.ops, want) {
		t.Fatalf("ops=%v want %v", rec.ops, want)
	}
}

func TestRenderAll_RotatesAnchors(t *testing.T) {
	rec := &recorder{}
	r := mustRenderer(t, rec, Config{RotationDegrees: 90})
	placements := []memory.Placement{
		{Anchor: voxel.Pos{0, 0, 0}, Chunk: mustChunk(t, voxel.Pos{1, 1, 1}, []uint16{1}, nil)},
		{Anchor: voxel.Pos{2, 0, 0}, Chunk: mustChunk(t, voxel.Pos{1, 1, 1}, []uint16{2}, nil)},
	}
	if err := r.RenderAll(context.Background(), voxel.Pos{100, 0, 0}, placements); err != nil {
		t.Fatalf("RenderAll: %v", err)
	}
	got := map[voxel.Pos]uint16{}
	for _, op := range rec.ops {
		if op.Box.Min != op.Box.Max {
			t.Fatalf("unexpected op %v", op)
		}
		got[op.Box.Min] = op.ID
	}
	// anchor (2,0,0) turns to (0,0,2) like any local cell.
	want := map[voxel.Pos]uint16{{100, 0, 0}: 1, {100, 0, 2}: 2}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("cells=%v want %v", got, want)
	}
}

type opLog struct{ ops []Op }

func (l *opLog) WriteOp(op Op) error {
	l.ops = append(l.ops, op)
	return nil
}

func TestJournaled(t *testing.T) {
	rec := &recorder{failAt: 2}
	j := &opLog{}
	b := Journaled(rec, j)
	if err := b.Set(context.Background(), voxel.Pos{1, 2, 3}, 4, 5); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Fill(context.Background(), voxel.Box{Max: voxel.Pos{1, 1, 1}}, 4, 0); err == nil {
		t.Fatalf("expected failure")
	}
	if want := []Op{set(1, 2, 3, 4, 5)}; !reflect.DeepEqual(j.ops, want) {
		t.Fatalf("journal=%v want %v", j.ops, want)
	}
	if Journaled(rec, nil) != Backend(rec) {
		t.Fatalf("nil journal should return backend unchanged")
	}
}
