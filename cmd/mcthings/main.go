package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"thingcraft.ai/internal/config"
	"thingcraft.ai/internal/persistence/indexdb"
	plog "thingcraft.ai/internal/persistence/log"
	"thingcraft.ai/internal/persistence/snapshot"
	"thingcraft.ai/internal/render"
	"thingcraft.ai/internal/scene"
	"thingcraft.ai/internal/schematic"
	"thingcraft.ai/internal/voxel"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config.yaml (optional)")
		backend    = flag.String("backend", "", "override renderer.backend (memory|command|websocket|gltf)")
		out        = flag.String("out", "", "override renderer.out")
		url        = flag.String("url", "", "override renderer.url")

		schemPath = flag.String("schematic", "", "schematic file to build")
		loadPath  = flag.String("load", "", "thing snapshot to restore and build")
		name      = flag.String("name", "", "thing name (default: file base name)")
		posFlag   = flag.String("pos", "0,0,0", "world position x,y,z")
		rotate    = flag.Int("rotate", 0, "rotate the thing by 0/90/180/270 degrees before building")
		moveTo    = flag.String("move", "", "after building, move the thing to x,y,z")
		unbuild   = flag.Bool("unbuild", false, "clear the thing's footprint after building")

		savePath   = flag.String("save", "", "write a thing snapshot after building")
		exportPath = flag.String("export", "", "write the thing back out as a schematic")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[mcthings] ", log.LstdFlags|log.Lmicroseconds)

	cfg := config.Defaults()
	if p := strings.TrimSpace(*configPath); p != "" {
		c, err := config.Load(p)
		if err != nil {
			logger.Fatalf("load config: %v", err)
		}
		cfg = c
	}
	if *backend != "" {
		cfg.Renderer.Backend = *backend
	}
	if *out != "" {
		cfg.Renderer.Out = *out
	}
	if *url != "" {
		cfg.Renderer.URL = *url
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}
	if (*schemPath == "") == (*loadPath == "") {
		logger.Fatalf("exactly one of -schematic or -load is required")
	}
	pos, err := parsePos(*posFlag)
	if err != nil {
		logger.Fatalf("-pos: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	sc, idx, err := openScene(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("open scene: %v", err)
	}
	closeScene := func() {
		if err := sc.Close(); err != nil {
			logger.Printf("close: %v", err)
		}
	}
	defer closeScene()
	fail := func(format string, args ...any) {
		color.Red(format, args...)
		closeScene()
		os.Exit(1)
	}

	color.Blue("Loading thing...")
	var t *scene.Thing
	if *loadPath != "" {
		t, err = sc.LoadSnapshot(*loadPath)
		if err != nil {
			fail("load snapshot: %v", err)
		}
	} else {
		rec, err := schematic.ReadFile(*schemPath)
		if err != nil {
			fail("read schematic: %v", err)
		}
		n := strings.TrimSpace(*name)
		if n == "" {
			n = strings.TrimSuffix(filepath.Base(*schemPath), filepath.Ext(*schemPath))
		}
		t = sc.NewThing(n, pos)
		if err := t.AddSchematic(voxel.Pos{}, rec); err != nil {
			fail("add schematic: %v", err)
		}
		logger.Printf("schematic %s: %dx%dx%d (%s voxels)", *schemPath, rec.Width, rec.Height, rec.Length, humanize.Comma(int64(rec.Volume())))
	}

	if *rotate != 0 {
		if err := t.Rotate(*rotate); err != nil {
			fail("rotate: %v", err)
		}
	}

	start := time.Now()
	color.Blue("Building %s at %v...", t.Name(), t.Position())
	if err := t.Build(ctx); err != nil {
		fail("build failed: %v", err)
	}
	if *moveTo != "" {
		to, err := parsePos(*moveTo)
		if err != nil {
			fail("-move: %v", err)
		}
		if err := t.Move(ctx, to); err != nil {
			fail("move failed: %v", err)
		}
	}

	if *savePath != "" {
		if err := t.SaveSnapshot(*savePath); err != nil {
			fail("save snapshot: %v", err)
		}
		if idx != nil {
			snap, err := t.Snapshot()
			if err == nil {
				idx.RecordSnapshot(*savePath, snap.Header, voxelCount(snap.Placements))
			}
		}
	}
	if *exportPath != "" {
		rec, err := t.ToSchematic()
		if err != nil {
			fail("export: %v", err)
		}
		if err := schematic.WriteFile(*exportPath, rec); err != nil {
			fail("export: %v", err)
		}
	}

	if *unbuild {
		if err := t.Unbuild(ctx); err != nil {
			fail("unbuild failed: %v", err)
		}
	}

	if idx != nil {
		syncCtx, cancelSync := context.WithTimeout(context.Background(), 5*time.Second)
		if err := idx.Sync(syncCtx); err != nil {
			logger.Printf("index sync: %v", err)
		}
		cancelSync()
	}

	st := sc.Renderer().Stats().Snapshot()
	color.Green("Done in %s: %s chunks, %s fills, %s sets, %s skipped",
		time.Since(start).Round(time.Millisecond),
		humanize.Comma(st.Chunks), humanize.Comma(st.Fills), humanize.Comma(st.Sets), humanize.Comma(st.Skipped))
	if mb, ok := sc.Renderer().Backend().(*render.MemoryBackend); ok {
		logger.Printf("memory target holds %s non-empty voxels", humanize.Comma(int64(mb.Store().Count())))
	}
}

// openScene wires backend, journal, renderer and build sinks from cfg. The
// returned index is nil when cfg.IndexDB is empty.
func openScene(ctx context.Context, cfg config.Config, logger *log.Logger) (*scene.Scene, *indexdb.SQLiteIndex, error) {
	b, err := render.Open(ctx, cfg.BackendConfig())
	if err != nil {
		return nil, nil, err
	}

	var (
		sinks   []scene.BuildSink
		closers []io.Closer
	)
	cleanup := func() {
		_ = b.Close()
		for _, c := range closers {
			_ = c.Close()
		}
	}
	if cfg.Journal {
		rl := plog.NewRenderLogger(cfg.DataDir, "")
		al := plog.NewAuditLogger(cfg.DataDir)
		b = render.Journaled(b, rl)
		sinks = append(sinks, al)
		closers = append(closers, rl, al)
	}
	var idx *indexdb.SQLiteIndex
	if cfg.IndexDB != "" {
		idx, err = indexdb.OpenSQLite(cfg.IndexDB)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open index: %w", err)
		}
		sinks = append(sinks, idx)
		closers = append(closers, idx)
	}

	r, err := render.New(b, cfg.RenderConfig(), logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	sc, err := scene.New(scene.Options{
		Renderer: r,
		Logger:   logger,
		Sinks:    sinks,
		Closers:  closers,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return sc, idx, nil
}

func parsePos(s string) (voxel.Pos, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return voxel.Pos{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var p voxel.Pos
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return voxel.Pos{}, fmt.Errorf("bad coordinate %q", part)
		}
		p[i] = v
	}
	return p, nil
}

func voxelCount(ps []snapshot.PlacementV1) int {
	n := 0
	for _, p := range ps {
		if v, ok := voxel.Volume(voxel.Pos(p.Size)); ok {
			n += v
		}
	}
	return n
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
