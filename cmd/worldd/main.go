package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"thingcraft.ai/internal/config"
	"thingcraft.ai/internal/persistence/snapshot"
	"thingcraft.ai/internal/protocol"
	"thingcraft.ai/internal/render"
	"thingcraft.ai/internal/transport/ws"
	"thingcraft.ai/internal/world/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config.yaml (optional)")
		addr       = flag.String("addr", "", "override server.addr")
		snapPath   = flag.String("snapshot", "", "override server.snapshot")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[worldd] ", log.LstdFlags|log.Lmicroseconds)

	cfg := config.Defaults()
	if p := strings.TrimSpace(*configPath); p != "" {
		c, err := config.Load(p)
		if err != nil {
			logger.Fatalf("load config: %v", err)
		}
		cfg = c
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *snapPath != "" {
		cfg.Server.Snapshot = *snapPath
	}

	st, err := openStore(cfg)
	if err != nil {
		logger.Fatalf("open world: %v", err)
	}
	logger.Printf("world ready: %s sections, %s voxels", humanize.Comma(int64(len(st.Sections))), humanize.Comma(int64(st.Count())))

	params := protocol.WorldParams{
		Air:     st.Air,
		Bounded: st.Bounded,
		Min:     st.Min,
		Max:     st.Max,
	}
	srv := ws.NewServer(render.NewMemoryBackend(st), params, cfg.Server.MaxFillVolume, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", srv.Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/stats", func(rw http.ResponseWriter, r *http.Request) {
		sessions, applied, rejected := srv.Stats()
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(struct {
			Sessions int64 `json:"sessions"`
			Applied  int64 `json:"applied"`
			Rejected int64 `json:"rejected"`
		}{sessions, applied, rejected})
	})

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on %s", cfg.Server.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("listen: %v", err)
	}

	sessions, applied, rejected := srv.Stats()
	logger.Printf("stopped: %d sessions, %s writes applied, %s rejected", sessions, humanize.Comma(applied), humanize.Comma(rejected))

	if cfg.Server.Snapshot != "" {
		if err := writeWorld(cfg.Server.Snapshot, st); err != nil {
			logger.Fatalf("write snapshot: %v", err)
		}
		logger.Printf("snapshot written: %s", cfg.Server.Snapshot)
	}
}

// openStore resumes from the configured snapshot when it exists; otherwise
// it starts an empty store with the configured bounds.
func openStore(cfg config.Config) (*store.ChunkStore, error) {
	var st *store.ChunkStore
	if p := cfg.Server.Snapshot; p != "" {
		if _, err := os.Stat(p); err == nil {
			snap, err := snapshot.ReadWorld(p)
			if err != nil {
				return nil, err
			}
			st, err = store.ImportSections(snap.Air, snap.Sections)
			if err != nil {
				return nil, err
			}
		}
	}
	if st == nil {
		st = store.NewChunkStore(cfg.Renderer.EmptyID)
	}
	st.Bounded = cfg.Server.Bounded
	st.Min = cfg.Server.Min
	st.Max = cfg.Server.Max
	return st, nil
}

func writeWorld(path string, st *store.ChunkStore) error {
	return snapshot.WriteWorld(path, snapshot.WorldV1{
		Header: snapshot.Header{
			Version: 1,
			Kind:    snapshot.KindWorld,
			ID:      uuid.NewString(),
		},
		Air:      st.Air,
		Sections: store.ExportSections(st),
	})
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
