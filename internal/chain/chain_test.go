package chain

import (
	"errors"
	"testing"

	"github.com/gogpu/deferred/gpucore"
)

const (
	s0 gpucore.SemaphoreID = iota + 100
	s1
	s2
	s3
	s4
	s5
	s6
	sPresent
)

func frameChain(t *testing.T) *Chain {
	t.Helper()
	c := New(s0)
	links := []struct {
		name     string
		signal   gpucore.SemaphoreID
		optional bool
	}{
		{"geometry", s1, false},
		{"shadow", s2, false},
		{"blur", s3, true},
		{"global", s4, true},
		{"local", s5, false},
		{"ambient", s6, false},
		{"final", sPresent, false},
	}
	for _, l := range links {
		if _, err := c.Append(l.name, l.signal, gpucore.StageFragmentShader, l.optional); err != nil {
			t.Fatal(err)
		}
	}
	return c
}

func waits(c *Chain) map[string]gpucore.SemaphoreID {
	out := make(map[string]gpucore.SemaphoreID)
	for _, s := range c.Steps() {
		out[s.Name] = s.Wait.Semaphore
	}
	return out
}

func TestFullChainIsTotalOrder(t *testing.T) {
	c := frameChain(t)
	want := map[string]gpucore.SemaphoreID{
		"geometry": s0, "shadow": s1, "blur": s2, "global": s3,
		"local": s4, "ambient": s5, "final": s6,
	}
	got := waits(c)
	for name, sem := range want {
		if got[name] != sem {
			t.Errorf("%s waits on %d, want %d", name, got[name], sem)
		}
	}
	if c.Last() != sPresent {
		t.Errorf("Last() = %d, want present semaphore", c.Last())
	}

	// Every semaphore is signaled once and waited once.
	signaled := map[gpucore.SemaphoreID]int{}
	waited := map[gpucore.SemaphoreID]int{}
	for _, s := range c.Steps() {
		signaled[s.Signal]++
		waited[s.Wait.Semaphore]++
	}
	for sem, n := range waited {
		if n != 1 {
			t.Errorf("semaphore %d waited %d times", sem, n)
		}
	}
	for sem, n := range signaled {
		if n != 1 {
			t.Errorf("semaphore %d signaled %d times", sem, n)
		}
	}
}

func TestDisabledPassesRewire(t *testing.T) {
	tests := []struct {
		name    string
		blur    bool
		global  bool
		want    map[string]gpucore.SemaphoreID
		missing []string
	}{
		{"blur off", false, true, map[string]gpucore.SemaphoreID{"global": s2, "local": s4}, []string{"blur"}},
		{"global off", true, false, map[string]gpucore.SemaphoreID{"blur": s2, "local": s3}, []string{"global"}},
		{"both off", false, false, map[string]gpucore.SemaphoreID{"local": s2}, []string{"blur", "global"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := frameChain(t)
			_ = c.SetEnabled("blur", tt.blur)
			_ = c.SetEnabled("global", tt.global)
			got := waits(c)
			for name, sem := range tt.want {
				if got[name] != sem {
					t.Errorf("%s waits on %d, want %d", name, got[name], sem)
				}
			}
			for _, name := range tt.missing {
				if _, ok := got[name]; ok {
					t.Errorf("disabled %s still in Steps()", name)
				}
				if _, ok := c.Wait(name); ok {
					t.Errorf("Wait(%s) reported a wait for a disabled link", name)
				}
			}
		})
	}
}

func TestToggleHistoryDoesNotMatter(t *testing.T) {
	fresh := frameChain(t)

	toggled := frameChain(t)
	for _, step := range []struct {
		name string
		on   bool
	}{
		{"blur", false}, {"global", false}, {"blur", true}, {"global", true},
		{"global", false}, {"blur", false}, {"global", true}, {"blur", true},
	} {
		if err := toggled.SetEnabled(step.name, step.on); err != nil {
			t.Fatal(err)
		}
	}

	a, b := fresh.Steps(), toggled.Steps()
	if len(a) != len(b) {
		t.Fatalf("len(Steps()) = %d after toggles, want %d", len(b), len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("step %d = %+v after toggles, want %+v", i, b[i], a[i])
		}
	}
	if fresh.String() != toggled.String() {
		t.Errorf("String() = %q, want %q", toggled, fresh)
	}
}

func TestMandatoryLinks(t *testing.T) {
	c := frameChain(t)
	if err := c.SetEnabled("shadow", false); !errors.Is(err, ErrNotOptional) {
		t.Errorf("disable shadow: err = %v, want ErrNotOptional", err)
	}
	if err := c.SetEnabled("shadow", true); err != nil {
		t.Errorf("enable mandatory link: %v", err)
	}
	if err := c.SetEnabled("nope", false); !errors.Is(err, ErrUnknownLink) {
		t.Errorf("unknown link: err = %v", err)
	}
	if _, err := c.Append("final", 1, 0, false); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate name: err = %v", err)
	}
}

func TestEmptyChainLastIsSource(t *testing.T) {
	c := New(s0)
	if c.Last() != s0 {
		t.Errorf("Last() of empty chain = %d, want source", c.Last())
	}
	l, _ := c.Append("only", s1, gpucore.StageTopOfPipe, true)
	_ = c.SetEnabled("only", false)
	if c.Last() != s0 || l.Enabled() {
		t.Error("disabled only link still counted")
	}
}
