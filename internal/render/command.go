package render

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"thingcraft.ai/internal/voxel"
)

// CommandBackend emits one game command per write:
//
//	fill x0 y0 z0 x1 y1 z1 <block> <data>
//	setblock x y z <block> <data>
//
// Block ids are printed as numbers unless Names maps them.
type CommandBackend struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	names  map[uint16]string
	lines  int64
}

// NewCommandBackend writes to w. If w is an io.Closer it is closed by Close.
func NewCommandBackend(w io.Writer, names map[uint16]string) *CommandBackend {
	c := &CommandBackend{w: bufio.NewWriter(w), names: names}
	if cl, ok := w.(io.Closer); ok {
		c.closer = cl
	}
	return c
}

func (c *CommandBackend) block(id uint16) string {
	if n, ok := c.names[id]; ok {
		return n
	}
	return strconv.Itoa(int(id))
}

func (c *CommandBackend) Fill(ctx context.Context, box voxel.Box, id uint16, meta uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "fill %d %d %d %d %d %d %s %d\n",
		box.Min[0], box.Min[1], box.Min[2], box.Max[0], box.Max[1], box.Max[2], c.block(id), meta)
	if err == nil {
		c.lines++
	}
	return err
}

func (c *CommandBackend) Set(ctx context.Context, pos voxel.Pos, id uint16, meta uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "setblock %d %d %d %s %d\n", pos[0], pos[1], pos[2], c.block(id), meta)
	if err == nil {
		c.lines++
	}
	return err
}

// Lines is the number of commands written so far.
func (c *CommandBackend) Lines() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lines
}

// Flush pushes buffered commands to the underlying writer.
func (c *CommandBackend) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Flush()
}

func (c *CommandBackend) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.w.Flush()
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
