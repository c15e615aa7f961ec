// Package handle provides a generation-checked arena that maps opaque uint64
// IDs to driver objects.
//
// An ID packs a slot index and the slot's generation. Removing an object
// bumps the generation, so IDs that outlive their object never resolve to a
// newer occupant of the same slot.
package handle

// Arena stores values of type T addressed by generation-checked IDs.
// The zero Arena is ready to use. Arena is not safe for concurrent use.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

type slot[T any] struct {
	value T
	gen   uint32
	used  bool
}

// pack never yields zero: the index is stored off by one.
func pack(index, gen uint32) uint64 {
	return uint64(gen)<<32 | uint64(index+1)
}

func unpack(id uint64) (index, gen uint32, ok bool) {
	lo := uint32(id)
	if lo == 0 {
		return 0, 0, false
	}
	return lo - 1, uint32(id >> 32), true
}

// Insert stores v and returns its ID.
func (a *Arena[T]) Insert(v T) uint64 {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot[T]{})
	}
	s := &a.slots[idx]
	s.value = v
	s.used = true
	a.live++
	return pack(idx, s.gen)
}

func (a *Arena[T]) lookup(id uint64) *slot[T] {
	idx, gen, ok := unpack(id)
	if !ok || int(idx) >= len(a.slots) {
		return nil
	}
	s := &a.slots[idx]
	if !s.used || s.gen != gen {
		return nil
	}
	return s
}

// Get returns the value stored under id.
func (a *Arena[T]) Get(id uint64) (T, bool) {
	if s := a.lookup(id); s != nil {
		return s.value, true
	}
	var zero T
	return zero, false
}

// Set replaces the value stored under id. It reports false for stale IDs.
func (a *Arena[T]) Set(id uint64, v T) bool {
	s := a.lookup(id)
	if s == nil {
		return false
	}
	s.value = v
	return true
}

// Contains reports whether id resolves to a live value.
func (a *Arena[T]) Contains(id uint64) bool { return a.lookup(id) != nil }

// Remove deletes the value stored under id and returns it.
func (a *Arena[T]) Remove(id uint64) (T, bool) {
	var zero T
	s := a.lookup(id)
	if s == nil {
		return zero, false
	}
	v := s.value
	s.value = zero
	s.used = false
	s.gen++
	idx, _, _ := unpack(id)
	a.free = append(a.free, idx)
	a.live--
	return v, true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int { return a.live }

// Each calls fn for every live value in slot order.
func (a *Arena[T]) Each(fn func(id uint64, v T)) {
	for i := range a.slots {
		s := &a.slots[i]
		if s.used {
			fn(pack(uint32(i), s.gen), s.value)
		}
	}
}
