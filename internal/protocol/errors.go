package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Voxel model.
	ErrInvalidRotation = "E_INVALID_ROTATION"
	ErrEmptyCollection = "E_EMPTY_COLLECTION"
	ErrInvalidCuboid   = "E_INVALID_CUBOID"
	ErrSizeMismatch    = "E_SIZE_MISMATCH"

	// World writes.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrOutOfBounds   = "E_OUT_OF_BOUNDS"
	ErrRenderFailure = "E_RENDER_FAILURE"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrInvalidRotation: {},
	ErrEmptyCollection: {},
	ErrInvalidCuboid:   {},
	ErrSizeMismatch:    {},
	ErrBadRequest:      {},
	ErrOutOfBounds:     {},
	ErrRenderFailure:   {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
