package loop

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T) (*Scheduler, *ManualClock) {
	t.Helper()
	clock := NewManualClock(epoch)
	s := NewScheduler(
		WithClock(clock),
		WithPoller(PollFunc(func(fds []unix.PollFd, timeout int) (int, error) { return 0, nil })),
	)
	return s, clock
}

func TestOneShotFiresOnceAndIsRemoved(t *testing.T) {
	s, clock := newTestScheduler(t)

	fires := 0
	if _, err := s.AddTimeout(5*time.Millisecond, 5*time.Millisecond, func(any) bool {
		fires++
		return false
	}, nil); err != nil {
		t.Fatalf("AddTimeout() error = %v", err)
	}

	clock.Advance(5 * time.Millisecond)
	if n := s.HandleTimeouts(); n != 1 {
		t.Errorf("HandleTimeouts() = %d, want 1", n)
	}
	if fires != 1 {
		t.Errorf("fires = %d, want 1", fires)
	}
	if s.TimeoutCount() != 0 {
		t.Errorf("TimeoutCount() = %d, want 0", s.TimeoutCount())
	}

	clock.Advance(50 * time.Millisecond)
	s.HandleTimeouts()
	if fires != 1 {
		t.Errorf("fires after second tick = %d, want 1", fires)
	}
}

func TestTimeoutNeverFiresEarly(t *testing.T) {
	s, clock := newTestScheduler(t)

	fired := false
	_, _ = s.AddTimeout(10*time.Millisecond, 10*time.Millisecond, func(any) bool {
		fired = true
		return false
	}, nil)

	for i := 0; i < 9; i++ {
		clock.Advance(time.Millisecond)
		s.HandleTimeouts()
		if fired {
			t.Fatalf("fired after %dms, want no earlier than 10ms", i+1)
		}
	}
	clock.Advance(time.Millisecond)
	s.HandleTimeouts()
	if !fired {
		t.Error("did not fire at 10ms")
	}
}

func TestTimeoutsFireInWindowOrder(t *testing.T) {
	s, clock := newTestScheduler(t)

	var order []string
	record := func(name string) TimeoutFunc {
		return func(any) bool {
			order = append(order, name)
			return false
		}
	}
	_, _ = s.AddTimeout(100*time.Millisecond, 100*time.Millisecond, record("slow"), nil)
	_, _ = s.AddTimeout(10*time.Millisecond, 10*time.Millisecond, record("fast"), nil)
	_, _ = s.AddTimeout(50*time.Millisecond, 60*time.Millisecond, record("mid"), nil)

	clock.Advance(200 * time.Millisecond)
	s.HandleTimeouts()

	if want := []string{"fast", "mid", "slow"}; !reflect.DeepEqual(order, want) {
		t.Errorf("fire order = %v, want %v", order, want)
	}
}

func TestInsertionKeepsListSorted(t *testing.T) {
	s, _ := newTestScheduler(t)
	noop := func(any) bool { return false }

	for _, ms := range []int{30, 10, 20, 10, 40, 0} {
		d := time.Duration(ms) * time.Millisecond
		if _, err := s.AddTimeout(d, d, noop, nil); err != nil {
			t.Fatal(err)
		}
	}

	var got []time.Duration
	for _, info := range s.Timeouts() {
		got = append(got, info.MinLeft)
	}
	for i := 1; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Fatalf("timeouts not sorted by minLeft: %v", got)
		}
	}
}

func TestEqualWindowsFireInRegistrationOrder(t *testing.T) {
	s, clock := newTestScheduler(t)

	var order []int
	for i := 0; i < 4; i++ {
		i := i
		_, _ = s.AddTimeout(5*time.Millisecond, 5*time.Millisecond, func(any) bool {
			order = append(order, i)
			return false
		}, nil)
	}
	clock.Advance(5 * time.Millisecond)
	s.HandleTimeouts()

	if want := []int{0, 1, 2, 3}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestRecurringTimeoutResetsWindow(t *testing.T) {
	s, clock := newTestScheduler(t)

	fires := 0
	_, _ = s.AddTimeout(10*time.Millisecond, 20*time.Millisecond, func(any) bool {
		fires++
		return true
	}, nil)

	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Millisecond)
		s.HandleTimeouts()
	}
	if fires != 5 {
		t.Errorf("fires = %d, want 5", fires)
	}
	infos := s.Timeouts()
	if len(infos) != 1 || infos[0].MinLeft != 10*time.Millisecond || infos[0].MaxLeft != 20*time.Millisecond {
		t.Errorf("Timeouts() = %+v, want one timeout with a fresh window", infos)
	}
}

func TestZeroWindowRecurringRunsOncePerTick(t *testing.T) {
	s, _ := newTestScheduler(t)

	fires := 0
	_, _ = s.AddTimeout(0, 0, func(any) bool {
		fires++
		return true
	}, nil)

	s.HandleTimeouts()
	s.HandleTimeouts()
	if fires != 2 {
		t.Errorf("fires = %d, want 2", fires)
	}
}

func TestRemoveTimeoutReturnsData(t *testing.T) {
	s, clock := newTestScheduler(t)

	h, _ := s.AddTimeout(5*time.Millisecond, 5*time.Millisecond, func(any) bool {
		t.Error("removed timeout fired")
		return false
	}, "payload")

	data, ok := s.RemoveTimeout(h)
	if !ok || data != "payload" {
		t.Errorf("RemoveTimeout() = %v, %v; want payload, true", data, ok)
	}
	if _, ok := s.RemoveTimeout(h); ok {
		t.Error("second RemoveTimeout() should report false")
	}

	clock.Advance(10 * time.Millisecond)
	s.HandleTimeouts()
}

func TestRemoveTimeoutFromOwnCallback(t *testing.T) {
	s, clock := newTestScheduler(t)

	var h Handle
	fires := 0
	h, _ = s.AddTimeout(time.Millisecond, time.Millisecond, func(any) bool {
		fires++
		if _, ok := s.RemoveTimeout(h); !ok {
			t.Error("RemoveTimeout() from own callback reported false")
		}
		return true
	}, nil)

	clock.Advance(time.Millisecond)
	s.HandleTimeouts()
	clock.Advance(time.Millisecond)
	s.HandleTimeouts()

	if fires != 1 {
		t.Errorf("fires = %d, want 1", fires)
	}
	if s.TimeoutCount() != 0 {
		t.Errorf("TimeoutCount() = %d, want 0", s.TimeoutCount())
	}
}

func TestRemoveSiblingInSameBatch(t *testing.T) {
	s, clock := newTestScheduler(t)

	var second Handle
	secondFired := false
	_, _ = s.AddTimeout(time.Millisecond, time.Millisecond, func(any) bool {
		s.RemoveTimeout(second)
		return false
	}, nil)
	second, _ = s.AddTimeout(time.Millisecond, time.Millisecond, func(any) bool {
		secondFired = true
		return false
	}, nil)

	clock.Advance(2 * time.Millisecond)
	if n := s.HandleTimeouts(); n != 1 {
		t.Errorf("HandleTimeouts() = %d, want 1", n)
	}
	if secondFired {
		t.Error("timeout cancelled by a sibling still fired")
	}
}

func TestClockRollbackCountsAsNoTime(t *testing.T) {
	s, clock := newTestScheduler(t)

	fired := false
	_, _ = s.AddTimeout(10*time.Millisecond, 10*time.Millisecond, func(any) bool {
		fired = true
		return false
	}, nil)

	clock.Advance(-time.Hour)
	s.HandleTimeouts()
	if fired {
		t.Fatal("fired after clock moved backwards")
	}
	infos := s.Timeouts()
	if infos[0].MinLeft != 10*time.Millisecond {
		t.Errorf("MinLeft = %v after rollback, want 10ms", infos[0].MinLeft)
	}

	clock.Advance(10 * time.Millisecond)
	s.HandleTimeouts()
	if !fired {
		t.Error("did not fire 10ms after rollback")
	}
}

func TestNextTimeout(t *testing.T) {
	noop := func(any) bool { return false }

	tests := []struct {
		name    string
		windows [][2]time.Duration
		advance time.Duration
		want    time.Duration
		wantOK  bool
	}{
		{name: "empty", wantOK: false},
		{
			name:    "single window waits for max",
			windows: [][2]time.Duration{{10 * time.Millisecond, 30 * time.Millisecond}},
			want:    30 * time.Millisecond,
			wantOK:  true,
		},
		{
			name: "batches overlapping windows",
			windows: [][2]time.Duration{
				{10 * time.Millisecond, 30 * time.Millisecond},
				{20 * time.Millisecond, 25 * time.Millisecond},
			},
			want:   25 * time.Millisecond,
			wantOK: true,
		},
		{
			name: "ignores windows opening later",
			windows: [][2]time.Duration{
				{10 * time.Millisecond, 30 * time.Millisecond},
				{40 * time.Millisecond, 45 * time.Millisecond},
			},
			want:   30 * time.Millisecond,
			wantOK: true,
		},
		{
			name:    "open window is due now",
			windows: [][2]time.Duration{{10 * time.Millisecond, 30 * time.Millisecond}},
			advance: 12 * time.Millisecond,
			want:    0,
			wantOK:  true,
		},
		{
			name:    "accounts for elapsed time",
			windows: [][2]time.Duration{{10 * time.Millisecond, 10 * time.Millisecond}},
			advance: 4 * time.Millisecond,
			want:    6 * time.Millisecond,
			wantOK:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clock := newTestScheduler(t)
			for _, w := range tt.windows {
				if _, err := s.AddTimeout(w[0], w[1], noop, nil); err != nil {
					t.Fatal(err)
				}
			}
			clock.Advance(tt.advance)

			got, ok := s.NextTimeout()
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("NextTimeout() = %v, %v; want %v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestAddTimeoutValidation(t *testing.T) {
	s, _ := newTestScheduler(t)

	if _, err := s.AddTimeout(time.Millisecond, time.Millisecond, nil, nil); !errors.Is(err, ErrNilCallback) {
		t.Errorf("nil callback error = %v, want ErrNilCallback", err)
	}
	if _, err := s.AddTimeout(-time.Millisecond, 0, func(any) bool { return false }, nil); !errors.Is(err, ErrBadWindow) {
		t.Errorf("negative window error = %v, want ErrBadWindow", err)
	}

	h, err := s.AddTimeout(20*time.Millisecond, 5*time.Millisecond, func(any) bool { return false }, nil)
	if err != nil {
		t.Fatal(err)
	}
	info := s.Timeouts()[0]
	if info.Handle != h || info.MaxTime != 20*time.Millisecond {
		t.Errorf("max below min should be raised: %+v", info)
	}
}

func TestHandlesAreMonotonic(t *testing.T) {
	s, _ := newTestScheduler(t)
	noop := func(any) bool { return false }

	var last Handle
	for i := 0; i < 100; i++ {
		h, _ := s.AddTimeout(time.Millisecond, time.Millisecond, noop, nil)
		if h == 0 || h <= last {
			t.Fatalf("handle %d after %d is not increasing", h, last)
		}
		last = h
		s.RemoveTimeout(h)
	}

	wh, _ := s.AddWatchFd(3, EventIn, func(int, int16, any) {}, nil)
	if wh <= last {
		t.Errorf("watch handle %d not above timeout handle %d", wh, last)
	}
}

func TestPanickingTimeoutIsDropped(t *testing.T) {
	s, clock := newTestScheduler(t)

	_, _ = s.AddTimeout(time.Millisecond, time.Millisecond, func(any) bool {
		panic("boom")
	}, nil)
	clock.Advance(time.Millisecond)
	s.HandleTimeouts()

	if s.TimeoutCount() != 0 {
		t.Errorf("TimeoutCount() = %d, want 0", s.TimeoutCount())
	}
}
