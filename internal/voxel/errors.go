package voxel

import "errors"

var (
	ErrInvalidRotation = errors.New("invalid rotation")
	ErrEmptyCollection = errors.New("empty collection")
	ErrInvalidCuboid   = errors.New("invalid cuboid")
	ErrSizeMismatch    = errors.New("chunk size mismatch")
)

// Stable error codes, shared with the websocket protocol.
const (
	CodeInvalidRotation = "E_INVALID_ROTATION"
	CodeEmptyCollection = "E_EMPTY_COLLECTION"
	CodeInvalidCuboid   = "E_INVALID_CUBOID"
	CodeSizeMismatch    = "E_SIZE_MISMATCH"
	CodeInternal        = "E_INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidRotation, CodeInvalidRotation},
	{ErrEmptyCollection, CodeEmptyCollection},
	{ErrInvalidCuboid, CodeInvalidCuboid},
	{ErrSizeMismatch, CodeSizeMismatch},
}

// Code maps err onto its stable code. nil maps to "" and anything outside the
// taxonomy to CodeInternal.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
