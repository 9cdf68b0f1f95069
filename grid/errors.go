package grid

import "errors"

// Taxonomy shared by the relay and the client. Validation failures are
// reported to the offending connection only and never mutate room state.
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room is full")
	ErrInvalidPhase     = errors.New("operation not valid in current phase")
	ErrOutOfRange       = errors.New("position out of range")
	ErrCapacityExceeded = errors.New("room capacity exceeded")
	ErrTransport        = errors.New("transport error")
)
