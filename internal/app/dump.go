package app

import (
	"fmt"
	"os"
	"time"

	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/dshills/stormwm/internal/core"
)

// dumpDoc accumulates sjson writes and keeps the first error.
type dumpDoc struct {
	json string
	err  error
}

func (d *dumpDoc) set(path string, v any) {
	if d.err != nil {
		return
	}
	d.json, d.err = sjson.Set(d.json, path, v)
}

// DumpState renders the object graph, plugins, timers and frame metrics as
// JSON.
func (app *Application) DumpState() ([]byte, error) {
	c := app.core
	d := &dumpDoc{json: "{}"}

	d.set("session", app.session.String())
	d.set("time", c.Clock().Now().UTC().Format(time.RFC3339Nano))
	d.set("config.backend", app.config.Display.Backend)
	d.set("config.files", app.loader.Files())

	created, destroyed := c.ObjectCounts()
	d.set("core.iterations", c.Iterations())
	d.set("core.objects.created", created)
	d.set("core.objects.destroyed", destroyed)
	d.set("core.plugins", c.Plugins())

	sched := c.Scheduler()
	d.set("timers", []any{})
	for i, t := range sched.Timeouts() {
		p := fmt.Sprintf("timers.%d", i)
		d.set(p+".handle", uint64(t.Handle))
		d.set(p+".min_ms", t.MinTime.Milliseconds())
		d.set(p+".max_ms", t.MaxTime.Milliseconds())
		d.set(p+".min_left_ms", t.MinLeft.Milliseconds())
		d.set(p+".max_left_ms", t.MaxLeft.Milliseconds())
	}
	d.set("scheduler.fired", sched.Fired())
	d.set("scheduler.watches", sched.WatchCount())

	disp := c.Display()
	d.set("display.backend", disp.Backend().Name())
	d.set("display.events", disp.EventCount())
	d.set("display.errors", disp.ErrorCount())
	if w := disp.ActiveWindow(); w != nil {
		d.set("display.active", uint32(w.ID()))
	}

	d.set("screens", []any{})
	for i, s := range disp.Screens() {
		dumpScreen(d, fmt.Sprintf("screens.%d", i), s)
	}

	d.set("plugins", []any{})
	for i, st := range app.plugins.List() {
		p := fmt.Sprintf("plugins.%d", i)
		d.set(p+".name", st.Name)
		d.set(p+".state", st.State)
		d.set(p+".builtin", st.Builtin)
		if st.ID != "" {
			d.set(p+".id", st.ID)
		}
		if st.Version != "" {
			d.set(p+".version", st.Version)
		}
		if !st.Builtin {
			d.set(p+".timers", st.Timers)
			d.set(p+".wraps", st.Wraps)
		}
		if st.Error != "" {
			d.set(p+".error", st.Error)
		}
	}

	m := app.metrics.Snapshot()
	d.set("metrics.frames", m.FrameCount)
	d.set("metrics.skipped", m.Skipped())
	d.set("metrics.avg_paint_ns", m.AvgFrameTimeNs)
	d.set("metrics.max_paint_ns", m.MaxFrameTimeNs)

	if d.err != nil {
		return nil, fmt.Errorf("state dump: %w", d.err)
	}
	return []byte(d.json), nil
}

func dumpScreen(d *dumpDoc, p string, s *core.Screen) {
	b := s.Bounds()
	pacer := s.Pacer()
	st := pacer.Stats()

	d.set(p+".name", s.Name())
	d.set(p+".bounds", []int{b.X, b.Y, b.Width, b.Height})
	d.set(p+".refresh_rate", pacer.RefreshRate())
	d.set(p+".redraw_ms", pacer.RedrawTime().Milliseconds())
	d.set(p+".time_mult", pacer.TimeMult())
	d.set(p+".state", pacer.State().String())
	d.set(p+".frames", st.Frames)
	d.set(p+".skipped", st.Skipped)
	d.set(p+".damaged_rects", len(s.DamagedRects()))

	d.set(p+".outputs", []any{})
	for j, o := range s.Outputs() {
		op := fmt.Sprintf("%s.outputs.%d", p, j)
		d.set(op+".name", o.Name)
		d.set(op+".rect", []int{o.Rect.X, o.Rect.Y, o.Rect.Width, o.Rect.Height})
	}

	// Windows are listed bottom to top.
	d.set(p+".windows", []any{})
	for j, w := range s.Windows() {
		wp := fmt.Sprintf("%s.windows.%d", p, j)
		r := w.Rect()
		d.set(wp+".id", uint32(w.ID()))
		d.set(wp+".rect", []int{r.X, r.Y, r.Width, r.Height})
		d.set(wp+".mapped", w.Mapped())
		d.set(wp+".focused", w.Focused())
		d.set(wp+".override_redirect", w.OverrideRedirect())
		d.set(wp+".opacity", w.Opacity())
	}
}

// WriteDump writes the state dump to debug.dump_path, or logs it when no
// path is configured.
func (app *Application) WriteDump() error {
	data, err := app.DumpState()
	if err != nil {
		return err
	}
	path := app.config.Debug.DumpPath
	if path == "" {
		app.logger.Info("state: %s", data)
		return nil
	}
	if err := os.WriteFile(path, pretty.Pretty(data), 0o644); err != nil {
		return NewComponentError("dump", "write", err)
	}
	app.logger.Info("state written to %s", path)
	return nil
}

// RequestDump asks the loop to write a state dump. It may be called from
// any goroutine.
func (app *Application) RequestDump() {
	err := app.core.Notifier().Post(func() {
		if err := app.WriteDump(); err != nil {
			app.logger.Error("%v", err)
		}
	})
	if err != nil {
		app.logger.Warn("state dump: %v", err)
	}
}
