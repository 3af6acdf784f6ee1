package ws_test

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"thingcraft.ai/internal/memory"
	"thingcraft.ai/internal/protocol"
	"thingcraft.ai/internal/render"
	"thingcraft.ai/internal/transport/ws"
	"thingcraft.ai/internal/voxel"
	"thingcraft.ai/internal/world/store"
)

func startServer(t *testing.T, s *store.ChunkStore, maxFill int) (*ws.Server, string) {
	t.Helper()
	srv := ws.NewServer(render.NewMemoryBackend(s), protocol.WorldParams{Air: s.Air, Bounded: s.Bounded, Min: s.Min, Max: s.Max}, maxFill, log.New(io.Discard, "", 0))
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return srv, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func TestRenderOverWebSocket(t *testing.T) {
	world := store.NewChunkStore(0)
	srv, url := startServer(t, world, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, err := render.DialWebSocket(ctx, url, "test", time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if b.Welcome().SessionID == "" {
		t.Fatalf("missing session id")
	}
	r, err := render.New(b, render.Config{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	uni, _ := memory.NewUniformChunk(voxel.Pos{2, 2, 1}, voxel.B(1))
	mixed, _ := memory.NewChunk(voxel.Pos{2, 1, 1}, []uint16{3, 4}, []voxel.Meta{0, 9})
	if err := r.RenderAll(ctx, voxel.Pos{0, 10, 0}, []memory.Placement{
		{Anchor: voxel.Pos{}, Chunk: uni},
		{Anchor: voxel.Pos{0, 2, 0}, Chunk: mixed},
	}); err != nil {
		t.Fatalf("RenderAll: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Every write was acknowledged before Close, so the store is final.
	if id, _ := world.GetBlock(1, 11, 0); id != 1 {
		t.Fatalf("fill not applied: %d", id)
	}
	if id, meta := world.GetBlock(1, 12, 0); id != 4 || meta != 9 {
		t.Fatalf("set not applied: (%d,%d)", id, meta)
	}
	if _, applied, rejected := srv.Stats(); applied != 3 || rejected != 0 {
		t.Fatalf("applied=%d rejected=%d", applied, rejected)
	}
}

func TestRejectedWriteIsRenderFailure(t *testing.T) {
	world := store.NewChunkStore(0)
	world.Bounded = true
	world.Max = [3]int{7, 7, 7}
	_, url := startServer(t, world, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, err := render.DialWebSocket(ctx, url, "test", time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer b.Close()
	if !b.Welcome().World.Bounded {
		t.Fatalf("expected bounded world in WELCOME")
	}
	r, _ := render.New(b, render.Config{}, nil)
	ch, _ := memory.NewUniformChunk(voxel.Pos{1, 1, 1}, voxel.B(2))
	err = r.Render(ctx, ch, voxel.Pos{8, 0, 0})
	if !errors.Is(err, render.ErrRenderFailure) {
		t.Fatalf("expected render failure, got %v", err)
	}
	var re *render.RemoteError
	if !errors.As(err, &re) || re.Code != protocol.ErrOutOfBounds {
		t.Fatalf("expected %s, got %v", protocol.ErrOutOfBounds, err)
	}
}

func TestFillVolumeLimit(t *testing.T) {
	cases := []struct {
		name    string
		maxFill int
		box     voxel.Box
	}{
		{"over limit", 4, voxel.Box{Max: voxel.Pos{2, 2, 2}}},
		{"volume wraps to zero", 32768, voxel.Box{Max: voxel.Pos{1<<32 - 1, 1<<32 - 1, 0}}},
		{"axis spans every int", 32768, voxel.Box{Min: voxel.Pos{math.MinInt, 0, 0}, Max: voxel.Pos{math.MaxInt, 0, 0}}},
		{"wraps with limit disabled", 0, voxel.Box{Max: voxel.Pos{1<<32 - 1, 1<<32 - 1, 0}}},
	}
	for _, c := range cases {
		world := store.NewChunkStore(0)
		srv, url := startServer(t, world, c.maxFill)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		b, err := render.DialWebSocket(ctx, url, "test", time.Second)
		if err != nil {
			cancel()
			t.Fatalf("%s: dial: %v", c.name, err)
		}
		err = b.Fill(ctx, c.box, 1, 0)
		var re *render.RemoteError
		if !errors.As(err, &re) || re.Code != protocol.ErrBadRequest {
			t.Fatalf("%s: expected %s, got %v", c.name, protocol.ErrBadRequest, err)
		}
		if _, applied, rejected := srv.Stats(); applied != 0 || rejected != 1 {
			t.Fatalf("%s: applied=%d rejected=%d", c.name, applied, rejected)
		}
		if n := world.Count(); n != 0 {
			t.Fatalf("%s: store holds %d voxels", c.name, n)
		}
		_ = b.Close()
		cancel()
	}
}

func TestHandshakeRequiresHello(t *testing.T) {
	_, url := startServer(t, store.NewChunkStore(0), 0)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"SET","protocol_version":"1.0"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestInvalidFrameGetsError(t *testing.T) {
	_, url := startServer(t, store.NewChunkStore(0), 0)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "raw"})
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil || welcome.Type != protocol.TypeWelcome {
		t.Fatalf("welcome: %+v %v", welcome, err)
	}
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"SET","protocol_version":"1.0","seq":1,"pos":[0,0],"id":1,"meta":0}`))
	var e protocol.ErrorMsg
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read: %v", err)
	}
	if e.Type != protocol.TypeError || e.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("unexpected reply %+v", e)
	}
}
