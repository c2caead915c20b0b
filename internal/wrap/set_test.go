package wrap

import (
	"errors"
	"reflect"
	"testing"
)

func TestSetAddressesChainsByName(t *testing.T) {
	paint := New("PaintScreen", func(int) bool { return true })
	notify := New("WindowAddNotify", func(Void) Void { return Void{} })

	s := NewSet()
	s.Add(paint)
	s.Add(notify)

	if got := s.Names(); !reflect.DeepEqual(got, []string{"PaintScreen", "WindowAddNotify"}) {
		t.Errorf("Names() = %v", got)
	}
	p, ok := s.Get("PaintScreen")
	if !ok || p.Name() != "PaintScreen" {
		t.Fatalf("Get(PaintScreen) = %v, %v", p, ok)
	}
	if _, ok := s.Get("Missing"); ok {
		t.Error("Get(Missing) should report false")
	}
}

func TestSetRemoveOwnerAcrossChains(t *testing.T) {
	paint := New("PaintScreen", func(int) bool { return true })
	notify := New("WindowAddNotify", func(Void) Void { return Void{} })
	s := NewSet()
	s.Add(paint)
	s.Add(notify)

	paint.Install("fps", func(n int, next Next[int, bool]) bool { return next(n) })
	notify.Install("fps", func(v Void, next Next[Void, Void]) Void { return next(v) })
	paint.Install("dim", func(n int, next Next[int, bool]) bool { return next(n) })

	if got := s.Owners(); !reflect.DeepEqual(got, []string{"dim", "fps"}) {
		t.Errorf("Owners() = %v, want [dim fps]", got)
	}
	if n := s.RemoveOwner("fps"); n != 2 {
		t.Errorf("RemoveOwner(fps) = %d, want 2", n)
	}
	if got := s.Installed(); !reflect.DeepEqual(got, map[string]int{"PaintScreen": 1}) {
		t.Errorf("Installed() = %v", got)
	}
}

func TestSetRemoveByHandle(t *testing.T) {
	paint := New("PaintScreen", func(int) bool { return true })
	s := NewSet()
	s.Add(paint)

	h := paint.Install("p", func(n int, next Next[int, bool]) bool { return false })
	if err := s.Remove(h); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !paint.Call(0) {
		t.Error("base should run after Remove")
	}
	if err := s.Remove(h); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("second Remove error = %v, want ErrUnknownHandle", err)
	}
}
