package step

import (
	"fmt"

	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/internal/command"
	"github.com/gogpu/deferred/internal/shader"
	"github.com/gogpu/deferred/internal/swapchain"
	"github.com/gogpu/deferred/internal/uniform"
	"github.com/gogpu/deferred/scene"
)

// QueueKind selects the queue a step is submitted to.
type QueueKind uint8

// Queue kinds.
const (
	Graphics QueueKind = iota
	Compute
)

func (k QueueKind) String() string {
	if k == Compute {
		return "compute"
	}
	return "graphics"
}

// Context is the shared state every step reads during setup and
// recording. The renderer owns everything it points to.
type Context struct {
	Driver    gpucore.Driver
	Shaders   *shader.Library
	Uniforms  *uniform.Buffers
	Targets   *Targets
	Swapchain *swapchain.Swapchain

	// GraphicsPool and ComputePool allocate the steps' command buffers.
	// They may be the same pool when compute runs on the graphics queue.
	GraphicsPool *command.Pool
	ComputePool  *command.Pool

	// Scene is nil while only the splash screen is shown.
	Scene *scene.Scene

	// Control holds the pass toggles read by UpdateDescriptorSets and
	// WriteCmdBuff.
	Control *uniform.ShaderControl
}

func (c *Context) pool(k QueueKind) *command.Pool {
	if k == Compute {
		return c.ComputePool
	}
	return c.GraphicsPool
}

func (c *Context) check() error {
	switch {
	case c.Driver == nil:
		return fmt.Errorf("step: context has no driver")
	case c.Shaders == nil:
		return fmt.Errorf("step: context has no shader library")
	case c.Uniforms == nil:
		return fmt.Errorf("step: context has no uniform buffers")
	case c.Targets == nil:
		return fmt.Errorf("step: context has no targets")
	case c.Control == nil:
		return fmt.Errorf("step: context has no shader control")
	}
	return nil
}

// shadowLights returns the shadow-casting lights of the current scene.
func (c *Context) shadowLights() []int {
	if c.Scene == nil {
		return nil
	}
	return c.Scene.ShadowLights()
}
