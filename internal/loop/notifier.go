package loop

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrNotifierClosed is returned when posting to a closed Notifier.
var ErrNotifierClosed = errors.New("loop: notifier closed")

// Notifier carries work from other goroutines into the loop.
//
// Post may be called from any goroutine. The posted functions run on the loop
// goroutine, in posting order, the next time the scheduler's Wait sees the
// notifier's wake pipe become readable.
type Notifier struct {
	sched  *Scheduler
	handle Handle

	readFd  int
	writeFd int

	mu      sync.Mutex
	queue   []func()
	pending bool
	closed  bool
}

// NewNotifier creates a wake pipe and registers it with s.
func NewNotifier(s *Scheduler) (*Notifier, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, fmt.Errorf("loop: wake pipe: %w", err)
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, fmt.Errorf("loop: wake pipe: %w", err)
		}
	}

	n := &Notifier{sched: s, readFd: fds[0], writeFd: fds[1]}
	h, err := s.AddWatchFd(n.readFd, EventIn, func(int, int16, any) { n.Drain() }, nil)
	if err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, err
	}
	n.handle = h
	return n, nil
}

// Post queues fn to run on the loop goroutine.
func (n *Notifier) Post(fn func()) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrNotifierClosed
	}
	n.queue = append(n.queue, fn)
	wake := !n.pending
	n.pending = true
	n.mu.Unlock()

	if wake {
		// A full pipe already guarantees a wakeup.
		if _, err := unix.Write(n.writeFd, []byte{1}); err != nil && !errors.Is(err, unix.EAGAIN) {
			return fmt.Errorf("loop: wake: %w", err)
		}
	}
	return nil
}

// Drain empties the wake pipe and runs every queued function. It returns how
// many ran. Must be called on the loop goroutine.
func (n *Notifier) Drain() int {
	var buf [64]byte
	for {
		if k, err := unix.Read(n.readFd, buf[:]); k <= 0 || err != nil {
			break
		}
	}

	n.mu.Lock()
	queue := n.queue
	n.queue = nil
	n.pending = false
	n.mu.Unlock()

	for _, fn := range queue {
		fn()
	}
	return len(queue)
}

// Pending returns the number of queued functions.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

// Close unregisters the wake pipe and closes it. Queued functions are
// dropped.
func (n *Notifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.queue = nil
	n.mu.Unlock()

	n.sched.RemoveWatchFd(n.handle)
	return errors.Join(unix.Close(n.readFd), unix.Close(n.writeFd))
}
