// Package soft provides an in-memory gpucore.Driver.
//
// The soft driver executes nothing. It validates every call the way an
// explicit API's validation layer would (handle liveness, recording state,
// render pass balance, semaphore signal/consume discipline) and records an
// event log that tests inspect to check submission order and wiring.
//
// Work completes at submission time unless the queue is held with
// [Device.HoldQueue], which leaves fences unsignaled so callers observe
// timeouts. WaitIdle always drains.
package soft
