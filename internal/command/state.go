package command

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a CommandBuffer.
//
// State machine:
//
//	Fresh      -> Start()           -> Recording
//	Recording  -> StartRenderPass() -> RenderPass
//	RenderPass -> EndRenderPass()   -> Recording
//	Recording  -> End()             -> Executable
//	RenderPass -> End()             -> Executable (pass closed first)
//	Executable -> submitted         -> Pending
//	Pending    -> fence signaled    -> Executable (simultaneous use)
//	                                   or Fresh (one-time submit)
//	any but Pending -> Reset()      -> Fresh
type State uint8

// Command buffer states.
const (
	Fresh State = iota
	Recording
	RenderPass
	Executable
	Pending
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "Fresh"
	case Recording:
		return "Recording"
	case RenderPass:
		return "RenderPass"
	case Executable:
		return "Executable"
	case Pending:
		return "Pending"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Command buffer and pool errors.
var (
	// ErrInvalidState matches every *StateError.
	ErrInvalidState = errors.New("command: invalid state transition")

	// ErrNotResettable is returned by Reset on a buffer whose pool does not
	// allow individual reset.
	ErrNotResettable = errors.New("command: pool does not allow individual reset")

	// ErrPoolBusy is returned when a pool operation would touch a buffer that
	// is still pending on the GPU.
	ErrPoolBusy = errors.New("command: pool has pending buffers")

	// ErrForeignBuffer is returned when a buffer is handed to a pool that
	// does not own it.
	ErrForeignBuffer = errors.New("command: buffer not owned by this pool")

	// ErrPoolDestroyed is returned for operations on a destroyed pool.
	ErrPoolDestroyed = errors.New("command: pool destroyed")

	// ErrFreed is returned for operations on a buffer that was freed.
	ErrFreed = errors.New("command: buffer freed")
)

// StateError reports a transition that is not legal from the buffer's
// current state. The buffer is left unchanged.
type StateError struct {
	Op   string
	From State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("command: %s not allowed in state %s", e.Op, e.From)
}

// Is makes errors.Is(err, ErrInvalidState) match every StateError.
func (e *StateError) Is(target error) bool { return target == ErrInvalidState }
