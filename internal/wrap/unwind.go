package wrap

// Unwinder records undo steps during a multi-step setup so a failure part
// way through reverses everything done so far.
//
//	u := wrap.NewUnwinder()
//	defer u.Unwind()
//	h := wrap.Track(u, screen.Hooks.PaintScreen, "fps", paint)
//	if err := key.Set(screen, state); err != nil {
//	    return err // h is removed by the deferred Unwind
//	}
//	u.Commit()
//
// The zero value is ready to use.
type Unwinder struct {
	steps []func()
}

// NewUnwinder returns an empty Unwinder.
func NewUnwinder() *Unwinder {
	return &Unwinder{}
}

// Defer records undo to run if the setup is unwound.
func (u *Unwinder) Defer(undo func()) {
	u.steps = append(u.steps, undo)
}

// Len returns the number of recorded steps.
func (u *Unwinder) Len() int {
	return len(u.steps)
}

// Unwind runs the recorded steps newest first and forgets them.
// After Commit it does nothing.
func (u *Unwinder) Unwind() {
	steps := u.steps
	u.steps = nil
	for i := len(steps) - 1; i >= 0; i-- {
		steps[i]()
	}
}

// Commit keeps everything done so far.
func (u *Unwinder) Commit() {
	u.steps = nil
}

// Track installs fn on c for owner and records its removal on u.
func Track[A, R any](u *Unwinder, c *Chain[A, R], owner string, fn Func[A, R]) Handle {
	h := c.Install(owner, fn)
	u.Defer(func() { _ = c.Remove(h) })
	return h
}
