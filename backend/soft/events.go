package soft

import (
	"fmt"

	"github.com/gogpu/deferred/gpucore"
)

// EventKind classifies an entry of the device event log.
type EventKind uint8

// Event kinds.
const (
	EventAcquire EventKind = iota + 1
	EventSubmit
	EventPresent
	EventQueueIdle
	EventDeviceIdle
)

func (k EventKind) String() string {
	switch k {
	case EventAcquire:
		return "acquire"
	case EventSubmit:
		return "submit"
	case EventPresent:
		return "present"
	case EventQueueIdle:
		return "queue-idle"
	case EventDeviceIdle:
		return "device-idle"
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Event is one queue-level operation observed by the device.
type Event struct {
	Kind  EventKind
	Queue gpucore.QueueID

	// Batches is set for EventSubmit.
	Batches []gpucore.SubmitBatch
	Fence   gpucore.FenceID

	// Swapchain, Image and Semaphores are set for acquire and present.
	// For acquire Semaphores holds the signaled semaphore, for present the
	// waited ones.
	Swapchain  gpucore.SwapchainID
	Image      uint32
	Semaphores []gpucore.SemaphoreID
}

// Op identifies a recorded command.
type Op uint8

// Recorded command ops.
const (
	OpBeginRenderPass Op = iota + 1
	OpNextSubpass
	OpEndRenderPass
	OpBindPipeline
	OpBindDescriptorSets
	OpBindVertexBuffers
	OpBindIndexBuffer
	OpPushConstants
	OpSetViewport
	OpSetScissor
	OpDraw
	OpDrawIndexed
	OpDispatch
	OpPipelineBarrier
)

var opNames = map[Op]string{
	OpBeginRenderPass:    "BeginRenderPass",
	OpNextSubpass:        "NextSubpass",
	OpEndRenderPass:      "EndRenderPass",
	OpBindPipeline:       "BindPipeline",
	OpBindDescriptorSets: "BindDescriptorSets",
	OpBindVertexBuffers:  "BindVertexBuffers",
	OpBindIndexBuffer:    "BindIndexBuffer",
	OpPushConstants:      "PushConstants",
	OpSetViewport:        "SetViewport",
	OpSetScissor:         "SetScissor",
	OpDraw:               "Draw",
	OpDrawIndexed:        "DrawIndexed",
	OpDispatch:           "Dispatch",
	OpPipelineBarrier:    "PipelineBarrier",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// Command is one recorded command. Only the fields relevant to Op are set.
type Command struct {
	Op Op

	RenderPass  gpucore.RenderPassID
	Framebuffer gpucore.FramebufferID
	Pipeline    gpucore.PipelineID
	BindPoint   gpucore.PipelineBindPoint
	Sets        []gpucore.DescriptorSetID
	Buffers     []gpucore.BufferID
	Barriers    []gpucore.ImageBarrier

	// Counts holds draw counts (vertices or indices, instances) and
	// dispatch group counts.
	Counts [3]uint32

	Data []byte
}

// IsWork reports whether the command draws or dispatches.
func (c Command) IsWork() bool {
	return c.Op == OpDraw || c.Op == OpDrawIndexed || c.Op == OpDispatch
}
