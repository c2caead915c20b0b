package loop

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Handle identifies a timeout or watch. Handles increase monotonically for
// the life of a Scheduler and zero is never issued.
type Handle uint64

// Poll event bits accepted by AddWatchFd.
const (
	EventIn  = unix.POLLIN
	EventPri = unix.POLLPRI
	EventOut = unix.POLLOUT
	EventErr = unix.POLLERR
	EventHup = unix.POLLHUP
)

// Scheduler errors.
var (
	// ErrBadWindow is returned for a negative firing window.
	ErrBadWindow = errors.New("loop: negative timeout window")

	// ErrNilCallback is returned when registering without a callback.
	ErrNilCallback = errors.New("loop: nil callback")

	// ErrBadFd is returned when watching a negative descriptor.
	ErrBadFd = errors.New("loop: invalid file descriptor")
)

// TimeoutFunc is called when a timeout fires. Returning true keeps the
// timeout: it is rescheduled with its full window again.
type TimeoutFunc func(data any) bool

// WatchFunc is called when fd reports any of the watched events.
type WatchFunc func(fd int, revents int16, data any)

// Logger is the logging surface the scheduler needs.
type Logger interface {
	Warn(msg string, args ...any)
}

type timeout struct {
	minTime time.Duration
	maxTime time.Duration
	minLeft time.Duration
	maxLeft time.Duration

	callback TimeoutFunc
	data     any
	handle   Handle
	dead     bool

	next *timeout
}

type watch struct {
	fd       int
	callback WatchFunc
	data     any
	handle   Handle
}

// TimeoutInfo describes a pending timeout.
type TimeoutInfo struct {
	Handle  Handle
	MinTime time.Duration
	MaxTime time.Duration
	MinLeft time.Duration
	MaxLeft time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithPoller sets the readiness poller.
func WithPoller(p Poller) Option {
	return func(s *Scheduler) { s.poller = p }
}

// WithLogger sets where callback panics are reported.
func WithLogger(l Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// Scheduler owns the timer list and the watched descriptor set.
// It is not safe for concurrent use.
type Scheduler struct {
	clock  Clock
	poller Poller
	logger Logger

	timeouts    *timeout
	lastTimeout time.Time
	lastHandle  Handle

	// firing holds the batch detached by HandleTimeouts while it runs.
	firing []*timeout

	// watches and pollFds are kept in lockstep.
	watches []watch
	pollFds []unix.PollFd

	fired uint64
}

// NewScheduler creates a scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  SystemClock{},
		poller: UnixPoller{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastTimeout = s.clock.Now()
	return s
}

// Clock returns the scheduler's time source.
func (s *Scheduler) Clock() Clock {
	return s.clock
}

func (s *Scheduler) newHandle() Handle {
	s.lastHandle++
	return s.lastHandle
}

// AddTimeout registers cb to fire no earlier than min and preferably no later
// than max from now. A max below min is raised to min.
func (s *Scheduler) AddTimeout(min, max time.Duration, cb TimeoutFunc, data any) (Handle, error) {
	if cb == nil {
		return 0, ErrNilCallback
	}
	if min < 0 || max < 0 {
		return 0, fmt.Errorf("%w: [%v, %v]", ErrBadWindow, min, max)
	}
	if max < min {
		max = min
	}

	// Bring existing countdowns up to date so the new window starts now.
	s.elapse(s.clock.Now())

	t := &timeout{
		minTime:  min,
		maxTime:  max,
		callback: cb,
		data:     data,
		handle:   s.newHandle(),
	}
	s.insert(t)
	return t.handle, nil
}

// insert resets t's window and links it before the first timeout whose
// minLeft exceeds t.minTime.
func (s *Scheduler) insert(t *timeout) {
	t.minLeft = t.minTime
	t.maxLeft = t.maxTime

	var prev *timeout
	cur := s.timeouts
	for cur != nil && cur.minLeft <= t.minTime {
		prev = cur
		cur = cur.next
	}
	t.next = cur
	if prev == nil {
		s.timeouts = t
	} else {
		prev.next = t
	}
}

// RemoveTimeout cancels h and returns the data it was registered with.
// It is safe to call from any callback, including h's own.
func (s *Scheduler) RemoveTimeout(h Handle) (any, bool) {
	var prev *timeout
	for cur := s.timeouts; cur != nil; cur = cur.next {
		if cur.handle == h {
			if prev == nil {
				s.timeouts = cur.next
			} else {
				prev.next = cur.next
			}
			cur.next = nil
			cur.dead = true
			return cur.data, true
		}
		prev = cur
	}
	for _, t := range s.firing {
		if t.handle == h && !t.dead {
			t.dead = true
			return t.data, true
		}
	}
	return nil, false
}

// elapse subtracts the time since the last tick from every countdown.
// A clock that moved backwards counts as no time passing.
func (s *Scheduler) elapse(now time.Time) {
	diff := now.Sub(s.lastTimeout)
	if diff < 0 {
		diff = 0
	}
	s.lastTimeout = now
	if diff == 0 {
		return
	}
	for t := s.timeouts; t != nil; t = t.next {
		t.minLeft -= diff
		t.maxLeft -= diff
	}
}

// HandleTimeouts fires every timeout whose window has opened and returns how
// many callbacks ran.
//
// Expired timeouts are detached first and fired in list order, so a
// recurring timeout with a zero window runs once per call rather than
// spinning.
func (s *Scheduler) HandleTimeouts() int {
	s.elapse(s.clock.Now())

	var expired []*timeout
	for s.timeouts != nil && s.timeouts.minLeft <= 0 {
		t := s.timeouts
		s.timeouts = t.next
		t.next = nil
		expired = append(expired, t)
	}
	if len(expired) == 0 {
		return 0
	}

	s.firing = expired
	defer func() { s.firing = nil }()

	ran := 0
	for _, t := range expired {
		if t.dead {
			continue
		}
		ran++
		s.fired++
		keep := s.fire(t)
		if keep && !t.dead {
			s.insert(t)
		} else {
			t.dead = true
		}
	}
	return ran
}

func (s *Scheduler) fire(t *timeout) (keep bool) {
	defer func() {
		if r := recover(); r != nil {
			keep = false
			if s.logger != nil {
				s.logger.Warn("timeout %d panicked: %v", t.handle, r)
			}
		}
	}()
	return t.callback(t.data)
}

// NextTimeout returns how long the loop may sleep before a timeout must be
// serviced. ok is false when no timeouts are pending.
//
// When the head timeout's window is still closed the wait is stretched to
// the smallest max bound among every timeout whose window opens before that
// point, so they can be batched into one wakeup.
func (s *Scheduler) NextTimeout() (d time.Duration, ok bool) {
	if s.timeouts == nil {
		return 0, false
	}
	s.elapse(s.clock.Now())

	head := s.timeouts
	if head.minLeft <= 0 {
		return 0, true
	}

	wait := head.maxLeft
	for t := head; t != nil && t.minLeft <= wait; t = t.next {
		if t.maxLeft < wait {
			wait = t.maxLeft
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

// TimeoutCount returns the number of pending timeouts.
func (s *Scheduler) TimeoutCount() int {
	n := 0
	for t := s.timeouts; t != nil; t = t.next {
		n++
	}
	return n
}

// Timeouts describes the pending timeouts in firing order.
func (s *Scheduler) Timeouts() []TimeoutInfo {
	var out []TimeoutInfo
	for t := s.timeouts; t != nil; t = t.next {
		out = append(out, TimeoutInfo{
			Handle:  t.handle,
			MinTime: t.minTime,
			MaxTime: t.maxTime,
			MinLeft: t.minLeft,
			MaxLeft: t.maxLeft,
		})
	}
	return out
}

// Fired returns the total number of timeout callbacks run.
func (s *Scheduler) Fired() uint64 {
	return s.fired
}

// AddWatchFd calls cb whenever fd reports one of events.
func (s *Scheduler) AddWatchFd(fd int, events int16, cb WatchFunc, data any) (Handle, error) {
	if cb == nil {
		return 0, ErrNilCallback
	}
	if fd < 0 {
		return 0, fmt.Errorf("%w: %d", ErrBadFd, fd)
	}
	h := s.newHandle()
	s.watches = append(s.watches, watch{fd: fd, callback: cb, data: data, handle: h})
	s.pollFds = append(s.pollFds, unix.PollFd{Fd: int32(fd), Events: events})
	return h, nil
}

// RemoveWatchFd stops watching h. Remaining watches are shifted down so the
// poll set stays dense.
func (s *Scheduler) RemoveWatchFd(h Handle) bool {
	for i := range s.watches {
		if s.watches[i].handle != h {
			continue
		}
		copy(s.watches[i:], s.watches[i+1:])
		s.watches = s.watches[:len(s.watches)-1]
		copy(s.pollFds[i:], s.pollFds[i+1:])
		s.pollFds = s.pollFds[:len(s.pollFds)-1]
		return true
	}
	return false
}

// WatchCount returns the number of watched descriptors.
func (s *Scheduler) WatchCount() int {
	return len(s.watches)
}

// Wait blocks until a watched descriptor is ready or timeout passes, then
// runs the callbacks of every ready watch. A negative timeout blocks until a
// descriptor is ready. It returns the number of ready descriptors.
func (s *Scheduler) Wait(timeout time.Duration) (int, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
		// Round sub-millisecond remainders up rather than spinning.
		if timeout%time.Millisecond != 0 {
			ms++
		}
	}

	for i := range s.pollFds {
		s.pollFds[i].Revents = 0
	}
	n, err := s.poller.Poll(s.pollFds, ms)
	if err != nil {
		return 0, fmt.Errorf("loop: poll: %w", err)
	}
	if n <= 0 {
		return 0, nil
	}

	type ready struct {
		handle  Handle
		revents int16
	}
	var readyList []ready
	for i, pfd := range s.pollFds {
		if pfd.Revents != 0 {
			readyList = append(readyList, ready{handle: s.watches[i].handle, revents: pfd.Revents})
		}
	}

	for _, r := range readyList {
		w, ok := s.watchByHandle(r.handle)
		if !ok {
			// Removed by an earlier callback in this round.
			continue
		}
		s.dispatch(w, r.revents)
	}
	return n, nil
}

func (s *Scheduler) watchByHandle(h Handle) (watch, bool) {
	for _, w := range s.watches {
		if w.handle == h {
			return w, true
		}
	}
	return watch{}, false
}

func (s *Scheduler) dispatch(w watch, revents int16) {
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.Warn("watch %d on fd %d panicked: %v", w.handle, w.fd, r)
		}
	}()
	w.callback(w.fd, revents, w.data)
}
