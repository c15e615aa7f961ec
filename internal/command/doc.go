// Package command implements the command buffer lifecycle and the pools that
// own command buffers.
//
// Every transition method returns an error instead of silently ignoring
// calls made from the wrong state. A rejected call returns a *StateError,
// which matches ErrInvalidState under errors.Is, and leaves the buffer
// exactly as it was.
//
// Buffers submitted to a queue are Pending until the queue observes its
// fence signaled. The pool keeps the pending set, so Pool.Reset can refuse
// to run while any buffer is still executing.
package command
