package handle

import "testing"

func TestArenaInsertGet(t *testing.T) {
	var a Arena[string]
	id := a.Insert("geometry")
	if id == 0 {
		t.Fatal("Insert returned the zero ID")
	}
	v, ok := a.Get(id)
	if !ok || v != "geometry" {
		t.Fatalf("Get(%d) = %q, %v; want geometry, true", id, v, ok)
	}
	if a.Len() != 1 {
		t.Errorf("Len() = %d, want 1", a.Len())
	}
}

func TestArenaStaleIDRejected(t *testing.T) {
	var a Arena[int]
	old := a.Insert(1)
	if _, ok := a.Remove(old); !ok {
		t.Fatal("Remove of live ID failed")
	}
	fresh := a.Insert(2)
	if fresh == old {
		t.Fatal("reused slot produced the same ID")
	}
	if _, ok := a.Get(old); ok {
		t.Error("stale ID resolved after slot reuse")
	}
	if v, ok := a.Get(fresh); !ok || v != 2 {
		t.Errorf("Get(fresh) = %d, %v; want 2, true", v, ok)
	}
	if _, ok := a.Remove(old); ok {
		t.Error("double Remove succeeded")
	}
}

func TestArenaZeroIDInvalid(t *testing.T) {
	var a Arena[int]
	a.Insert(7)
	if a.Contains(0) {
		t.Error("zero ID resolved")
	}
	if a.Set(0, 3) {
		t.Error("Set on zero ID succeeded")
	}
}

func TestArenaEach(t *testing.T) {
	var a Arena[int]
	ids := []uint64{a.Insert(10), a.Insert(20), a.Insert(30)}
	a.Remove(ids[1])

	sum := 0
	a.Each(func(_ uint64, v int) { sum += v })
	if sum != 40 {
		t.Errorf("Each visited sum %d, want 40", sum)
	}
}
