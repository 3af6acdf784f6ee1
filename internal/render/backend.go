// Package render applies chunks to a target world.
//
// A Renderer owns the dispatch policy (bulk fill vs per-voxel writes, empty
// skipping, clearing, id substitution, meta masking, draw-time rotation). The
// target world itself sits behind the Backend capability interface; the
// supported backends are a closed set selected by Open.
package render

import (
	"context"

	"thingcraft.ai/internal/voxel"
)

// Backend is the write surface of a target world. Meta values passed in are
// already masked to their low 4 bits.
type Backend interface {
	// Fill writes one block into every cell of the inclusive cuboid.
	Fill(ctx context.Context, box voxel.Box, id uint16, meta uint8) error
	// Set writes a single cell.
	Set(ctx context.Context, pos voxel.Pos, id uint16, meta uint8) error
	// Close releases the backend. Backends that produce an artifact write it here.
	Close() error
}

// Kind names a backend variant.
type Kind string

const (
	KindMemory    Kind = "memory"
	KindCommand   Kind = "command"
	KindWebSocket Kind = "websocket"
	KindGLTF      Kind = "gltf"
)

// Kinds lists every supported backend.
var Kinds = []Kind{KindMemory, KindCommand, KindWebSocket, KindGLTF}

func (k Kind) Valid() bool {
	for _, v := range Kinds {
		if v == k {
			return true
		}
	}
	return false
}

// OpKind distinguishes the two write operations.
type OpKind string

const (
	OpFill OpKind = "FILL"
	OpSet  OpKind = "SET"
)

// Op describes one backend write. For OpSet, Box.Min == Box.Max.
type Op struct {
	Kind OpKind    `json:"kind"`
	Box  voxel.Box `json:"box"`
	ID   uint16    `json:"id"`
	Meta uint8     `json:"meta"`
}
