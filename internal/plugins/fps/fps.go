// Package fps is a builtin plugin that counts the frames each screen paints
// and samples the rate on a recurring timer.
package fps

import (
	"time"

	"github.com/dshills/stormwm/internal/core"
	"github.com/dshills/stormwm/internal/loop"
	"github.com/dshills/stormwm/internal/plugin"
	"github.com/dshills/stormwm/internal/privates"
	"github.com/dshills/stormwm/internal/wrap"
)

// Name is the name the plugin registers under.
const Name = "fps"

// DefaultInterval is how often the frame rate is sampled.
const DefaultInterval = time.Second

func init() {
	plugin.Register(Name, func() *core.PluginVTable {
		return newPlugin(DefaultInterval).vtable()
	})
}

// counter lives in each screen's private slot.
type counter struct {
	frames uint64 // since the last sample
	total  uint64
	rate   float64
	paint  wrap.Handle
}

// totals lives in the core's private slot.
type totals struct {
	frames  uint64
	samples uint64
	peak    float64
}

type fpsPlugin struct {
	core     *core.Core
	interval time.Duration
	screens  privates.Key[*counter]
	totals   privates.Key[*totals]
	timer    loop.Handle
	last     time.Time
}

func newPlugin(interval time.Duration) *fpsPlugin {
	return &fpsPlugin{interval: interval}
}

func (p *fpsPlugin) vtable() *core.PluginVTable {
	return &core.PluginVTable{
		Name:       Name,
		ABI:        core.ABIVersion,
		Init:       p.init,
		Fini:       p.fini,
		InitScreen: p.initScreen,
		FiniScreen: p.finiScreen,
	}
}

func (p *fpsPlugin) init(c *core.Core) error {
	u := wrap.NewUnwinder()
	defer u.Unwind()

	var err error
	p.core = c
	if p.totals, err = core.NewKey[*totals](c, privates.KindCore); err != nil {
		return err
	}
	u.Defer(func() { _ = core.ReleaseKey(c, &p.totals) })
	if p.screens, err = core.NewKey[*counter](c, privates.KindScreen); err != nil {
		return err
	}
	u.Defer(func() { _ = core.ReleaseKey(c, &p.screens) })
	if err := p.totals.Set(c, &totals{}); err != nil {
		return err
	}

	p.last = c.Clock().Now()
	if p.timer, err = c.Scheduler().AddTimeout(p.interval, p.interval+p.interval/10, p.sample, nil); err != nil {
		return err
	}
	u.Commit()
	return nil
}

func (p *fpsPlugin) fini(c *core.Core) {
	c.Scheduler().RemoveTimeout(p.timer)
	p.timer = 0
	_ = core.ReleaseKey(c, &p.screens)
	_ = core.ReleaseKey(c, &p.totals)
}

func (p *fpsPlugin) initScreen(s *core.Screen) error {
	cnt := &counter{}
	cnt.paint = s.Hooks.PaintScreen.Install(Name, func(a core.PaintScreenArgs, next wrap.Next[core.PaintScreenArgs, bool]) bool {
		cnt.frames++
		cnt.total++
		if t, ok := p.totals.Get(p.core); ok {
			t.frames++
		}
		return next(a)
	})
	if err := p.screens.Set(s, cnt); err != nil {
		_ = s.Hooks.PaintScreen.Remove(cnt.paint)
		return err
	}
	return nil
}

func (p *fpsPlugin) finiScreen(s *core.Screen) {
	if cnt, ok := p.screens.Get(s); ok {
		_ = s.Hooks.PaintScreen.Remove(cnt.paint)
		p.screens.Delete(s)
	}
}

// sample turns the frames counted since the last call into a rate.
func (p *fpsPlugin) sample(any) bool {
	now := p.core.Clock().Now()
	secs := now.Sub(p.last).Seconds()
	p.last = now
	if secs <= 0 {
		return true
	}

	t, _ := p.totals.Get(p.core)
	for _, s := range p.core.Display().Screens() {
		cnt, ok := p.screens.Get(s)
		if !ok {
			continue
		}
		cnt.rate = float64(cnt.frames) / secs
		cnt.frames = 0
		if t != nil {
			t.peak = max(t.peak, cnt.rate)
		}
		p.core.Logger().Debug("fps: %s %.1f", s.Name(), cnt.rate)
	}
	if t != nil {
		t.samples++
	}
	return true
}

// rate returns the last sampled rate of s.
func (p *fpsPlugin) rate(s *core.Screen) (float64, bool) {
	cnt, ok := p.screens.Get(s)
	if !ok {
		return 0, false
	}
	return cnt.rate, true
}
