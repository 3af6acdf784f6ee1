package render

import (
	"errors"
	"fmt"

	"thingcraft.ai/internal/voxel"
)

var ErrRenderFailure = errors.New("render failure")

const CodeRenderFailure = "E_RENDER_FAILURE"

// Error is a fatal failure reported by a backend while rendering.
type Error struct {
	Op  Op
	Err error
}

func (e *Error) Error() string {
	if e.Op.Kind == OpSet {
		return fmt.Sprintf("render failure: %s %v: %v", e.Op.Kind, e.Op.Box.Min, e.Err)
	}
	return fmt.Sprintf("render failure: %s %v: %v", e.Op.Kind, e.Op.Box, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrRenderFailure }

// Code extends voxel.Code with the render failure code.
func Code(err error) string {
	if errors.Is(err, ErrRenderFailure) {
		return CodeRenderFailure
	}
	return voxel.Code(err)
}
