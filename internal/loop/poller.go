package loop

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Poller waits for readiness on a set of descriptors.
// timeout is in milliseconds; a negative timeout blocks indefinitely.
type Poller interface {
	Poll(fds []unix.PollFd, timeout int) (int, error)
}

// UnixPoller polls with poll(2).
type UnixPoller struct{}

// Poll implements Poller. An interrupted poll reports zero ready descriptors.
func (UnixPoller) Poll(fds []unix.PollFd, timeout int) (int, error) {
	n, err := unix.Poll(fds, timeout)
	if errors.Is(err, unix.EINTR) {
		return 0, nil
	}
	return n, err
}

// PollFunc adapts a function to the Poller interface.
type PollFunc func(fds []unix.PollFd, timeout int) (int, error)

// Poll implements Poller.
func (f PollFunc) Poll(fds []unix.PollFd, timeout int) (int, error) {
	return f(fds, timeout)
}
