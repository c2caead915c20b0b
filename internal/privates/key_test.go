package privates

import (
	"errors"
	"testing"
)

type object struct {
	cells Cells
}

func (o *object) Privates() *Cells { return &o.cells }

type liveObjects []*object

func (l liveObjects) Grow(size int) error {
	for _, o := range l {
		if err := o.cells.Grow(size); err != nil {
			return err
		}
	}
	return nil
}

func (l liveObjects) Reset(index Index) {
	for _, o := range l {
		o.cells.Clear(index)
	}
}

func TestKeyRoundTrip(t *testing.T) {
	a, b := &object{}, &object{}
	alloc := NewAllocator(KindWindow, liveObjects{a, b})

	key, err := NewKey[*int](alloc)
	if err != nil {
		t.Fatalf("NewKey() error = %v", err)
	}

	one, two := 1, 2
	if err := key.Set(a, &one); err != nil {
		t.Fatal(err)
	}
	if err := key.Set(b, &two); err != nil {
		t.Fatal(err)
	}

	if v, ok := key.Get(a); !ok || *v != 1 {
		t.Errorf("Get(a) = %v, %v; want 1, true", v, ok)
	}
	if v, ok := key.Get(b); !ok || *v != 2 {
		t.Errorf("Get(b) = %v, %v; want 2, true", v, ok)
	}

	key.Delete(a)
	if _, ok := key.Get(a); ok {
		t.Error("Get(a) after Delete should report false")
	}
}

func TestKeyTypeMismatch(t *testing.T) {
	o := &object{}
	alloc := NewAllocator(KindScreen, liveObjects{o})

	key, _ := NewKey[string](alloc)
	_ = o.cells.Set(key.Index(), 42)

	if _, ok := key.Get(o); ok {
		t.Error("Get should fail when the stored value is not a string")
	}
}

func TestKeyRelease(t *testing.T) {
	o := &object{}
	alloc := NewAllocator(KindCore, liveObjects{o})

	key, _ := NewKey[int](alloc)
	if err := key.Release(alloc); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if key.Valid() {
		t.Error("key should be invalid after Release")
	}
	if key.Index() != InvalidIndex {
		t.Errorf("Index() = %d, want InvalidIndex", key.Index())
	}
	if err := key.Set(o, 1); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Set on released key error = %v, want ErrInvalidKey", err)
	}
	if err := key.Release(alloc); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("second Release error = %v, want ErrInvalidKey", err)
	}
}

func TestReallocatedKeyDoesNotAlias(t *testing.T) {
	first, second := &object{}, &object{}
	alloc := NewAllocator(KindCore, liveObjects{first, second})

	old, _ := NewKey[string](alloc)
	_ = old.Set(first, "alpha")
	_ = old.Set(second, "beta")
	_ = old.Release(alloc)

	fresh, err := NewKey[string](alloc)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := fresh.Get(first); ok {
		t.Errorf("fresh key sees %q on first object", v)
	}
	if v, ok := fresh.Get(second); ok {
		t.Errorf("fresh key sees %q on second object", v)
	}
}

func TestCellsBounds(t *testing.T) {
	c := NewCells(2)
	if err := c.Set(2, "x"); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Set(2) error = %v, want ErrOutOfRange", err)
	}
	if c.Get(7) != nil {
		t.Error("Get out of range should be nil")
	}
	if err := c.Grow(MaxCells + 1); !errors.Is(err, ErrTooManyCells) {
		t.Errorf("Grow(MaxCells+1) error = %v, want ErrTooManyCells", err)
	}
	if err := c.Grow(1); err != nil || c.Len() != 2 {
		t.Errorf("Grow(1) = %v, Len() = %d; want nil, 2 (never shrinks)", err, c.Len())
	}
}
