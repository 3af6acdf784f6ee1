package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"thingcraft.ai/internal/world/store"
)

// BackendConfig selects and configures one backend variant.
type BackendConfig struct {
	Kind Kind
	// Empty is the empty block id of the target world.
	Empty uint16

	// memory
	Store *store.ChunkStore

	// command: Writer wins over Path; with neither, stdout is used.
	Writer io.Writer
	Path   string
	Names  map[uint16]string

	// websocket
	URL        string
	ClientName string
	Timeout    time.Duration

	// gltf: Path is the output file.
}

// Open builds the backend named by cfg.Kind.
func Open(ctx context.Context, cfg BackendConfig) (Backend, error) {
	switch cfg.Kind {
	case KindMemory:
		s := cfg.Store
		if s == nil {
			s = store.NewChunkStore(cfg.Empty)
		}
		return NewMemoryBackend(s), nil
	case KindCommand:
		w := cfg.Writer
		if w == nil && cfg.Path != "" {
			f, err := os.Create(cfg.Path)
			if err != nil {
				return nil, err
			}
			w = f
		}
		if w == nil {
			w = nopCloser{os.Stdout}
		}
		return NewCommandBackend(w, cfg.Names), nil
	case KindWebSocket:
		if cfg.URL == "" {
			return nil, fmt.Errorf("websocket backend: url is required")
		}
		name := cfg.ClientName
		if name == "" {
			name = "thingcraft"
		}
		return DialWebSocket(ctx, cfg.URL, name, cfg.Timeout)
	case KindGLTF:
		if cfg.Path == "" {
			return nil, fmt.Errorf("gltf backend: path is required")
		}
		return NewGLTFBackend(cfg.Path, cfg.Empty), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
}

type nopCloser struct{ io.Writer }
