package deferred

// Window is the host window the renderer presents to. Window creation and
// input handling stay with the caller.
type Window interface {
	// Size returns the drawable size in pixels.
	Size() (width, height int)

	// OnResize registers fn to be called with the new drawable size. fn may
	// be called from any goroutine.
	OnResize(fn func(width, height int))

	// ShouldClose reports whether the user asked to close the window.
	ShouldClose() bool
}
