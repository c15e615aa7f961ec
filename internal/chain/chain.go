// Package chain wires the per-frame semaphore chain.
//
// A Chain is a linked list of links in fixed submission order. Each enabled
// link waits on the signal semaphore of the nearest enabled link before it,
// or on the chain source (the swapchain's image-ready semaphore) when there
// is none. Optional links can be switched off; Rewire recomputes every wait
// from the current enable flags alone, so the wiring never depends on the
// order toggles were flipped in.
package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/deferred/gpucore"
)

// Chain errors.
var (
	ErrUnknownLink = errors.New("chain: unknown link")
	ErrNotOptional = errors.New("chain: link cannot be disabled")
	ErrDuplicate   = errors.New("chain: duplicate link name")
)

// Link is one pass of the chain.
type Link struct {
	name     string
	signal   gpucore.SemaphoreID
	stage    gpucore.PipelineStage
	optional bool
	enabled  bool

	next *Link
	// waitOn is the nearest enabled predecessor, nil for the chain source.
	waitOn *Link
}

// Name returns the link name.
func (l *Link) Name() string { return l.name }

// Signal returns the semaphore the link signals.
func (l *Link) Signal() gpucore.SemaphoreID { return l.signal }

// Enabled reports whether the link takes part in the frame.
func (l *Link) Enabled() bool { return l.enabled }

// Optional reports whether the link may be disabled.
func (l *Link) Optional() bool { return l.optional }

// Chain is the ordered semaphore chain of one frame.
type Chain struct {
	source gpucore.SemaphoreID
	head   *Link
	tail   *Link
	byName map[string]*Link
}

// New returns an empty chain whose first link waits on source.
func New(source gpucore.SemaphoreID) *Chain {
	return &Chain{source: source, byName: make(map[string]*Link)}
}

// Source returns the semaphore the first enabled link waits on.
func (c *Chain) Source() gpucore.SemaphoreID { return c.source }

// Append adds a link that signals signal and whose wait is applied at
// stage. New links are enabled.
func (c *Chain) Append(name string, signal gpucore.SemaphoreID, stage gpucore.PipelineStage, optional bool) (*Link, error) {
	if _, ok := c.byName[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicate, name)
	}
	l := &Link{name: name, signal: signal, stage: stage, optional: optional, enabled: true}
	if c.tail == nil {
		c.head = l
	} else {
		c.tail.next = l
	}
	c.tail = l
	c.byName[name] = l
	c.Rewire()
	return l, nil
}

// Link returns the link called name.
func (c *Chain) Link(name string) (*Link, bool) {
	l, ok := c.byName[name]
	return l, ok
}

// SetEnabled switches an optional link and rewires the chain.
func (c *Chain) SetEnabled(name string, on bool) error {
	l, ok := c.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLink, name)
	}
	if !l.optional && !on {
		return fmt.Errorf("%w: %q", ErrNotOptional, name)
	}
	l.enabled = on
	c.Rewire()
	return nil
}

// Rewire points every enabled link at its nearest enabled predecessor.
func (c *Chain) Rewire() {
	var prev *Link
	for l := c.head; l != nil; l = l.next {
		l.waitOn = nil
		if !l.enabled {
			continue
		}
		l.waitOn = prev
		prev = l
	}
}

// Wait returns the wait of the named link. Disabled links have none.
func (c *Chain) Wait(name string) (gpucore.Wait, bool) {
	l, ok := c.byName[name]
	if !ok || !l.enabled {
		return gpucore.Wait{}, false
	}
	return c.waitOf(l), true
}

func (c *Chain) waitOf(l *Link) gpucore.Wait {
	sem := c.source
	if l.waitOn != nil {
		sem = l.waitOn.signal
	}
	return gpucore.Wait{Semaphore: sem, Stage: l.stage}
}

// Step is one enabled link with its resolved wait.
type Step struct {
	Name   string
	Wait   gpucore.Wait
	Signal gpucore.SemaphoreID
}

// Steps returns the enabled links in submission order.
func (c *Chain) Steps() []Step {
	var out []Step
	for l := c.head; l != nil; l = l.next {
		if l.enabled {
			out = append(out, Step{Name: l.name, Wait: c.waitOf(l), Signal: l.signal})
		}
	}
	return out
}

// Last returns the signal of the last enabled link, or the source when
// every link is disabled.
func (c *Chain) Last() gpucore.SemaphoreID {
	last := c.source
	for l := c.head; l != nil; l = l.next {
		if l.enabled {
			last = l.signal
		}
	}
	return last
}

func (c *Chain) String() string {
	var b strings.Builder
	b.WriteString("source")
	for _, s := range c.Steps() {
		b.WriteString(" -> ")
		b.WriteString(s.Name)
	}
	return b.String()
}
