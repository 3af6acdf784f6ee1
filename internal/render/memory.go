package render

import (
	"context"
	"sync"

	"thingcraft.ai/internal/voxel"
	"thingcraft.ai/internal/world/store"
)

// MemoryBackend writes into an in-process section store.
type MemoryBackend struct {
	mu    sync.Mutex
	store *store.ChunkStore
}

// NewMemoryBackend wraps s. A nil s gets a fresh unbounded store with air 0.
func NewMemoryBackend(s *store.ChunkStore) *MemoryBackend {
	if s == nil {
		s = store.NewChunkStore(voxel.Air)
	}
	return &MemoryBackend{store: s}
}

// Store returns the underlying store. Callers must not write to it while a
// render is in progress.
func (m *MemoryBackend) Store() *store.ChunkStore { return m.store }

func (m *MemoryBackend) Fill(ctx context.Context, box voxel.Box, id uint16, meta uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Fill(box.Min, box.Max, id, meta)
}

func (m *MemoryBackend) Set(ctx context.Context, pos voxel.Pos, id uint16, meta uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.SetBlock(pos[0], pos[1], pos[2], id, meta)
}

// Get reads a cell back.
func (m *MemoryBackend) Get(pos voxel.Pos) (uint16, uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.GetBlock(pos[0], pos[1], pos[2])
}

func (m *MemoryBackend) Close() error { return nil }
