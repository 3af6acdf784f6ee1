// Package scene holds the explicit build context: the renderer every Thing
// draws through, the lifecycle sinks, and the set of Things created during
// one top-level invocation.
package scene

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"

	plog "thingcraft.ai/internal/persistence/log"
	"thingcraft.ai/internal/render"
)

// BuildSink receives one entry per lifecycle action (build, unbuild, move,
// rotate, snapshot).
type BuildSink interface {
	WriteBuild(entry plog.BuildEntry) error
}

type Options struct {
	// Renderer is required.
	Renderer *render.Renderer
	Logger   *log.Logger
	Sinks    []BuildSink
	// Closers are closed by Scene.Close after the renderer, in order.
	Closers []io.Closer
}

// Scene is created once per invocation and torn down with Close.
type Scene struct {
	id       string
	renderer *render.Renderer
	log      *log.Logger
	sinks    []BuildSink
	closers  []io.Closer

	mu     sync.Mutex
	things []*Thing
	closed bool
}

func New(opts Options) (*Scene, error) {
	if opts.Renderer == nil {
		return nil, errors.New("scene: renderer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Scene{
		id:       uuid.NewString(),
		renderer: opts.Renderer,
		log:      logger,
		sinks:    append([]BuildSink(nil), opts.Sinks...),
		closers:  append([]io.Closer(nil), opts.Closers...),
	}, nil
}

func (s *Scene) ID() string                 { return s.id }
func (s *Scene) Renderer() *render.Renderer { return s.renderer }

// Things returns the registered Things in creation order.
func (s *Scene) Things() []*Thing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Thing(nil), s.things...)
}

// Find looks a Thing up by id.
func (s *Scene) Find(id string) (*Thing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.things {
		if t.id == id {
			return t, true
		}
	}
	return nil, false
}

func (s *Scene) add(t *Thing) {
	s.mu.Lock()
	s.things = append(s.things, t)
	s.mu.Unlock()
}

// BuildAll builds every Thing in creation order and stops at the first
// failure.
func (s *Scene) BuildAll(ctx context.Context) error {
	for _, t := range s.Things() {
		if err := t.Build(ctx); err != nil {
			return fmt.Errorf("build %s (%s): %w", t.name, t.id, err)
		}
	}
	return nil
}

func (s *Scene) record(e plog.BuildEntry) {
	e.Scene = s.id
	for _, sink := range s.sinks {
		if err := sink.WriteBuild(e); err != nil {
			s.log.Printf("build sink: %v", err)
		}
	}
}

// Close tears the scene down: the renderer's backend first, then the
// configured closers. It is safe to call more than once.
func (s *Scene) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if err := s.renderer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close renderer: %w", err))
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
