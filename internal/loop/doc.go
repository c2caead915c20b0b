// Package loop implements the timer and file descriptor scheduler that
// drives the window manager's single event loop.
//
// Timers carry a firing window [min, max]. They are kept in a singly linked
// list ordered by the earliest moment they may fire, and the scheduler picks
// a poll timeout that lets as many timers as possible fire in one wakeup
// without any of them running past its max bound.
//
// File descriptor watches are polled with poll(2). Callbacks for both run on
// the goroutine that calls HandleTimeouts and Wait; nothing in this package
// starts goroutines. Work produced on other goroutines enters the loop
// through a Notifier.
package loop
