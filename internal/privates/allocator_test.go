package privates

import (
	"errors"
	"math/rand"
	"testing"
)

// objectSet is a minimal backing holding a list of live tables.
type objectSet struct {
	objects []*Cells
	grows   int
	failAt  int
}

func (s *objectSet) Grow(size int) error {
	s.grows++
	if s.failAt > 0 && size >= s.failAt {
		return errors.New("no memory")
	}
	for _, o := range s.objects {
		if err := o.Grow(size); err != nil {
			return err
		}
	}
	return nil
}

func (s *objectSet) Reset(index Index) {
	for _, o := range s.objects {
		o.Clear(index)
	}
}

func TestAllocateSequential(t *testing.T) {
	a := NewAllocator(KindScreen, nil)

	for want := 0; want < 20; want++ {
		got, err := a.Allocate()
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
		if got != Index(want) {
			t.Errorf("Allocate() = %d, want %d", got, want)
		}
	}
	if a.Count() != 20 {
		t.Errorf("Count() = %d, want 20", a.Count())
	}
	if a.Len() != 24 {
		t.Errorf("Len() = %d, want 24 (three chunks)", a.Len())
	}
}

func TestFreeThenReallocateReturnsLowest(t *testing.T) {
	a := NewAllocator(KindWindow, nil)
	for i := 0; i < 5; i++ {
		if _, err := a.Allocate(); err != nil {
			t.Fatal(err)
		}
	}

	if err := a.Free(3); err != nil {
		t.Fatalf("Free(3) error = %v", err)
	}
	if err := a.Free(1); err != nil {
		t.Fatalf("Free(1) error = %v", err)
	}

	got, _ := a.Allocate()
	if got != 1 {
		t.Errorf("Allocate() after freeing 1 and 3 = %d, want 1", got)
	}
	got, _ = a.Allocate()
	if got != 3 {
		t.Errorf("second Allocate() = %d, want 3", got)
	}
}

func TestFreeUnallocated(t *testing.T) {
	a := NewAllocator(KindCore, nil)
	if err := a.Free(0); !errors.Is(err, ErrNotAllocated) {
		t.Errorf("Free(0) on empty allocator error = %v, want ErrNotAllocated", err)
	}

	idx, _ := a.Allocate()
	if err := a.Free(idx); err != nil {
		t.Fatal(err)
	}
	if err := a.Free(idx); !errors.Is(err, ErrNotAllocated) {
		t.Errorf("double Free error = %v, want ErrNotAllocated", err)
	}
	if err := a.Free(-4); !errors.Is(err, ErrNotAllocated) {
		t.Errorf("Free(-4) error = %v, want ErrNotAllocated", err)
	}
}

func TestAllocateNeverDoubleIssues(t *testing.T) {
	a := NewAllocator(KindWindow, nil)
	held := make(map[Index]bool)
	rng := rand.New(rand.NewSource(42))

	for step := 0; step < 5000; step++ {
		if len(held) == 0 || rng.Intn(3) != 0 {
			idx, err := a.Allocate()
			if err != nil {
				t.Fatalf("step %d: Allocate() error = %v", step, err)
			}
			if held[idx] {
				t.Fatalf("step %d: index %d issued twice", step, idx)
			}
			held[idx] = true
			continue
		}

		for idx := range held {
			if err := a.Free(idx); err != nil {
				t.Fatalf("step %d: Free(%d) error = %v", step, idx, err)
			}
			delete(held, idx)
			break
		}
	}

	if a.Count() != len(held) {
		t.Errorf("Count() = %d, want %d", a.Count(), len(held))
	}
}

func TestGrowResizesLiveObjects(t *testing.T) {
	set := &objectSet{objects: []*Cells{{}, {}}}
	a := NewAllocator(KindScreen, set)

	idx, err := a.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	for i, o := range set.objects {
		if o.Len() <= int(idx) {
			t.Errorf("object %d has %d cells, want > %d", i, o.Len(), idx)
		}
	}
	if set.grows != 1 {
		t.Errorf("grow called %d times, want 1", set.grows)
	}

	// The rest of the chunk is served without growing again.
	for i := 1; i < ChunkSize; i++ {
		if _, err := a.Allocate(); err != nil {
			t.Fatal(err)
		}
	}
	if set.grows != 1 {
		t.Errorf("grow called %d times within one chunk, want 1", set.grows)
	}
}

func TestGrowFailureRollsBack(t *testing.T) {
	set := &objectSet{objects: []*Cells{{}}, failAt: ChunkSize * 2}
	a := NewAllocator(KindDisplay, set)

	for i := 0; i < ChunkSize; i++ {
		if _, err := a.Allocate(); err != nil {
			t.Fatalf("Allocate() %d error = %v", i, err)
		}
	}

	idx, err := a.Allocate()
	if !errors.Is(err, ErrGrowFailed) {
		t.Fatalf("Allocate() error = %v, want ErrGrowFailed", err)
	}
	if idx != InvalidIndex {
		t.Errorf("Allocate() index = %d, want InvalidIndex", idx)
	}
	if a.Len() != ChunkSize {
		t.Errorf("Len() after failed grow = %d, want %d", a.Len(), ChunkSize)
	}
	if a.Count() != ChunkSize {
		t.Errorf("Count() after failed grow = %d, want %d", a.Count(), ChunkSize)
	}

	// Freeing makes room again without growth.
	if err := a.Free(2); err != nil {
		t.Fatal(err)
	}
	if idx, err := a.Allocate(); err != nil || idx != 2 {
		t.Errorf("Allocate() = %d, %v; want 2, nil", idx, err)
	}
}

func TestReusedIndexIsReset(t *testing.T) {
	first, second := &Cells{}, &Cells{}
	set := &objectSet{objects: []*Cells{first, second}}
	a := NewAllocator(KindCore, set)

	idx, _ := a.Allocate()
	_ = first.Set(idx, "first")
	_ = second.Set(idx, 2)

	if err := a.Free(idx); err != nil {
		t.Fatal(err)
	}
	again, _ := a.Allocate()
	if again != idx {
		t.Fatalf("Allocate() = %d, want reuse of %d", again, idx)
	}
	if v := first.Get(again); v != nil {
		t.Errorf("first.Get(%d) = %v, want nil after reuse", again, v)
	}
	if v := second.Get(again); v != nil {
		t.Errorf("second.Get(%d) = %v, want nil after reuse", again, v)
	}
}

func TestAllocateFromOtherKindsGrow(t *testing.T) {
	windows := NewAllocator(KindWindow, nil)
	var inner Index = InvalidIndex

	screens := NewAllocator(KindScreen, BackingFuncs{
		GrowFunc: func(size int) error {
			idx, err := windows.Allocate()
			inner = idx
			return err
		},
	})

	idx, err := screens.Allocate()
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if idx != 0 || inner != 0 {
		t.Errorf("screen index %d, window index %d; want 0 and 0", idx, inner)
	}
	if windows.Count() != 1 || screens.Count() != 1 {
		t.Errorf("counts = %d/%d, want 1/1", windows.Count(), screens.Count())
	}
}

func TestAllocated(t *testing.T) {
	a := NewAllocator(KindScreen, nil)
	for i := 0; i < 4; i++ {
		_, _ = a.Allocate()
	}
	_ = a.Free(0)
	_ = a.Free(2)

	got := a.Allocated()
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("Allocated() = %v, want [1 3]", got)
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindCore, "core"},
		{KindDisplay, "display"},
		{KindScreen, "screen"},
		{KindWindow, "window"},
		{Kind(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
