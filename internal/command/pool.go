package command

import (
	"fmt"
	"sort"

	"github.com/gogpu/deferred/gpucore"
)

// Pool owns a set of command buffers allocated for one queue family.
// Destroying the pool frees every buffer it still owns.
//
// Pool is NOT safe for concurrent use.
type Pool struct {
	drv    gpucore.Driver
	id     gpucore.CommandPoolID
	label  string
	family uint32

	resettable bool
	transient  bool
	destroyed  bool

	buffers map[*CommandBuffer]struct{}

	// pending tracks in-flight buffers at pool level.
	pending map[*CommandBuffer]Tracker
}

// NewPool creates a driver command pool.
func NewPool(drv gpucore.Driver, desc *gpucore.CommandPoolDesc) (*Pool, error) {
	id, err := drv.CreateCommandPool(desc)
	if err != nil {
		return nil, fmt.Errorf("create command pool %q: %w", desc.Label, err)
	}
	return &Pool{
		drv:        drv,
		id:         id,
		label:      desc.Label,
		family:     desc.Family,
		resettable: desc.Resettable,
		transient:  desc.Transient,
		buffers:    make(map[*CommandBuffer]struct{}),
		pending:    make(map[*CommandBuffer]Tracker),
	}, nil
}

// ID returns the driver handle.
func (p *Pool) ID() gpucore.CommandPoolID { return p.id }

// Family returns the queue family the pool allocates for.
func (p *Pool) Family() uint32 { return p.family }

// Resettable reports whether buffers may be reset individually.
func (p *Pool) Resettable() bool { return p.resettable }

// Transient reports whether the pool is tuned for frequent re-recording.
func (p *Pool) Transient() bool { return p.transient }

// Len returns the number of buffers the pool owns.
func (p *Pool) Len() int { return len(p.buffers) }

// Buffers returns the owned buffers ordered by handle.
func (p *Pool) Buffers() []*CommandBuffer {
	out := make([]*CommandBuffer, 0, len(p.buffers))
	for cb := range p.buffers {
		out = append(out, cb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Owns reports whether cb was allocated from p and not freed.
func (p *Pool) Owns(cb *CommandBuffer) bool {
	_, ok := p.buffers[cb]
	return ok
}

// Allocate allocates one primary command buffer.
func (p *Pool) Allocate(label string) (*CommandBuffer, error) {
	if p.destroyed {
		return nil, ErrPoolDestroyed
	}
	id, err := p.drv.AllocateCommandBuffer(p.id)
	if err != nil {
		return nil, fmt.Errorf("allocate command buffer %q: %w", label, err)
	}
	cb := &CommandBuffer{pool: p, id: id, label: label}
	p.buffers[cb] = struct{}{}
	return cb, nil
}

// AllocateN allocates n buffers labelled label[0..n-1]. On failure the
// buffers allocated so far are freed.
func (p *Pool) AllocateN(label string, n int) ([]*CommandBuffer, error) {
	out := make([]*CommandBuffer, 0, n)
	for i := 0; i < n; i++ {
		cb, err := p.Allocate(fmt.Sprintf("%s[%d]", label, i))
		if err != nil {
			for _, done := range out {
				_ = p.Free(done)
			}
			return nil, err
		}
		out = append(out, cb)
	}
	return out, nil
}

// poll retires cb from the pending set once its submission finished.
func (p *Pool) poll(cb *CommandBuffer) {
	if cb.state != Pending {
		return
	}
	t, ok := p.pending[cb]
	if ok && !t.Done() {
		return
	}
	delete(p.pending, cb)
	if cb.oneTime {
		cb.toFresh()
		return
	}
	cb.state = Executable
}

// Busy reports whether any owned buffer is still Pending.
func (p *Pool) Busy() bool {
	for cb := range p.pending {
		p.poll(cb)
	}
	return len(p.pending) > 0
}

// Reset returns every owned buffer to Fresh, optionally releasing backing
// memory. It fails without touching anything while a buffer is Pending.
// Resetting an already reset pool is a no-op on observable state.
func (p *Pool) Reset(release bool) error {
	if p.destroyed {
		return ErrPoolDestroyed
	}
	if p.Busy() {
		return fmt.Errorf("reset pool %q: %w", p.label, ErrPoolBusy)
	}
	if err := p.drv.ResetCommandPool(p.id, release); err != nil {
		return fmt.Errorf("reset pool %q: %w", p.label, err)
	}
	for cb := range p.buffers {
		cb.toFresh()
	}
	return nil
}

// Free releases a buffer owned by this pool.
func (p *Pool) Free(cb *CommandBuffer) error {
	if p.destroyed {
		return ErrPoolDestroyed
	}
	if cb == nil || !p.Owns(cb) {
		return ErrForeignBuffer
	}
	if cb.State() == Pending {
		return cb.reject("free")
	}
	p.drv.FreeCommandBuffer(p.id, cb.id)
	delete(p.buffers, cb)
	cb.freed = true
	cb.rec = nil
	return nil
}

// Destroy frees every remaining buffer, then the pool itself. Callers must
// make sure no buffer is still executing.
func (p *Pool) Destroy() {
	if p.destroyed {
		return
	}
	for _, cb := range p.Buffers() {
		p.drv.FreeCommandBuffer(p.id, cb.id)
		cb.freed = true
		cb.rec = nil
	}
	p.buffers = map[*CommandBuffer]struct{}{}
	p.pending = map[*CommandBuffer]Tracker{}
	p.drv.DestroyCommandPool(p.id)
	p.destroyed = true
}
