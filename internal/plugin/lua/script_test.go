package lua

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	glua "github.com/yuin/gopher-lua"

	"github.com/dshills/stormwm/internal/backend/headless"
	"github.com/dshills/stormwm/internal/core"
	"github.com/dshills/stormwm/internal/damage"
	"github.com/dshills/stormwm/internal/loop"
	"github.com/dshills/stormwm/internal/privates"
	"github.com/dshills/stormwm/internal/wrap"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestCore(t *testing.T) (*core.Core, *loop.ManualClock) {
	t.Helper()
	clock := loop.NewManualClock(epoch)
	c, err := core.New(headless.New(), core.WithClock(clock))
	if err != nil {
		t.Fatalf("core.New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

func createWindow(t *testing.T, c *core.Core, id core.WindowID) *core.Window {
	t.Helper()
	d := c.Display()
	d.Inject(core.Event{
		Type:   core.EventCreateWindow,
		Window: id,
		Rect:   damage.Rect{X: 10, Y: 20, Width: 100, Height: 50},
	})
	d.Inject(core.Event{Type: core.EventMapWindow, Window: id})
	d.ProcessEvents()
	w := d.FindWindow(id)
	if w == nil {
		t.Fatalf("window %d not managed", id)
	}
	return w
}

func loadTestScript(t *testing.T, c *core.Core, logger core.Logger, src string) *Script {
	t.Helper()
	s, err := LoadScript(context.Background(), c, ScriptConfig{
		Name:   "test",
		Source: src,
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("LoadScript() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func activate(t *testing.T, c *core.Core, s *Script) {
	t.Helper()
	if err := c.ActivatePlugin(s.VTable()); err != nil {
		t.Fatalf("ActivatePlugin() error = %v", err)
	}
}

func global(s *Script, name string) any {
	return ToGoValue(s.State().L.GetGlobal(name))
}

func TestLoadScriptSetup(t *testing.T) {
	c, _ := newTestCore(t)

	s, err := LoadScript(context.Background(), c, ScriptConfig{
		Name: "test",
		Source: `
			function setup(cfg)
				doubled = cfg.interval * 2
				label = cfg.label
			end
		`,
		Config: map[string]any{"interval": 250, "label": "fps"},
	})
	if err != nil {
		t.Fatalf("LoadScript() error = %v", err)
	}
	defer s.Close()

	if got := global(s, "doubled"); got != int64(500) {
		t.Errorf("doubled = %v, want 500", got)
	}
	if got := global(s, "label"); got != "fps" {
		t.Errorf("label = %v, want fps", got)
	}
	if s.Name() != "test" {
		t.Errorf("Name() = %q, want test", s.Name())
	}
}

func TestLoadScriptErrors(t *testing.T) {
	tests := []struct {
		name   string
		cfg    ScriptConfig
		errMsg string
	}{
		{"no name", ScriptConfig{Source: `x = 1`}, "no name"},
		{"syntax", ScriptConfig{Name: "bad", Source: `x = = 1`}, "lua plugin bad"},
		{"setup fails", ScriptConfig{Name: "bad", Source: `function setup() error("bad config") end`}, "bad config"},
		{"denied module", ScriptConfig{Name: "bad", Source: `require("os")`}, ErrModuleDenied.Error()},
		{"missing file", ScriptConfig{Name: "bad", Path: "/nonexistent/init.lua"}, "lua plugin bad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCore(t)
			_, err := LoadScript(context.Background(), c, tt.cfg)
			if err == nil {
				t.Fatal("LoadScript() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("LoadScript() error = %v, want containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestScriptLifecycleHooks(t *testing.T) {
	c, _ := newTestCore(t)
	createWindow(t, c, 1)

	s := loadTestScript(t, c, nil, `
		trace = {}
		local function add(s) trace[#trace + 1] = s end
		function init() add("init") end
		function fini() add("fini") end
		function init_screen(s) add("screen " .. s.name) end
		function fini_screen(s) add("~screen " .. s.name) end
		function init_window(w) add("window " .. w.id) end
		function fini_window(w) add("~window " .. w.id) end
	`)
	activate(t, c, s)
	createWindow(t, c, 2)
	if err := c.DeactivatePlugin("test"); err != nil {
		t.Fatalf("DeactivatePlugin() error = %v", err)
	}

	want := []any{
		"init",
		"screen headless-0",
		"window 1",
		"window 2",
		"~window 2",
		"~window 1",
		"~screen headless-0",
		"fini",
	}
	if got := global(s, "trace"); !reflect.DeepEqual(got, want) {
		t.Errorf("trace = %v, want %v", got, want)
	}
}

func TestScriptWithoutObjectHooks(t *testing.T) {
	c, _ := newTestCore(t)
	s := loadTestScript(t, c, nil, `function init() end`)

	vt := s.VTable()
	if vt.InitScreen != nil || vt.InitWindow != nil {
		t.Error("VTable() has object hooks the script does not define")
	}
	if vt.ABI != core.ABIVersion {
		t.Errorf("ABI = %d, want %d", vt.ABI, core.ABIVersion)
	}
}

func TestScriptInitError(t *testing.T) {
	c, _ := newTestCore(t)
	s := loadTestScript(t, c, nil, `function init() error("no way") end`)

	err := c.ActivatePlugin(s.VTable())
	if err == nil || !strings.Contains(err.Error(), "no way") {
		t.Fatalf("ActivatePlugin() error = %v, want init error", err)
	}
	if c.PluginActive("test") {
		t.Error("plugin active after failed init")
	}
}

func TestScriptTimeout(t *testing.T) {
	c, clock := newTestCore(t)
	sched := c.Scheduler()
	base := sched.TimeoutCount()

	s := loadTestScript(t, c, nil, `
		local wm = require("wm")
		count = 0
		function init()
			wm.timeout(10, 20, function()
				count = count + 1
				return count < 3
			end)
		end
	`)
	activate(t, c, s)
	if s.Timers() != 1 {
		t.Fatalf("Timers() = %d, want 1", s.Timers())
	}

	clock.Advance(5 * time.Millisecond)
	sched.HandleTimeouts()
	if got := global(s, "count"); got != int64(0) {
		t.Fatalf("count = %v before the window opened", got)
	}

	for range 4 {
		clock.Advance(20 * time.Millisecond)
		sched.HandleTimeouts()
	}
	if got := global(s, "count"); got != int64(3) {
		t.Errorf("count = %v, want 3", got)
	}
	if s.Timers() != 0 {
		t.Errorf("Timers() = %d after the callback stopped, want 0", s.Timers())
	}
	if got := sched.TimeoutCount(); got != base {
		t.Errorf("TimeoutCount() = %d, want %d", got, base)
	}
}

func TestScriptTimeoutErrorStops(t *testing.T) {
	c, clock := newTestCore(t)
	logger := &recordLogger{}
	s := loadTestScript(t, c, logger, `
		local wm = require("wm")
		function init()
			wm.timeout(1, function() error("tick failed") end)
		end
	`)
	activate(t, c, s)

	clock.Advance(time.Millisecond)
	c.Scheduler().HandleTimeouts()
	if s.Timers() != 0 {
		t.Errorf("Timers() = %d after a failing callback, want 0", s.Timers())
	}
	if !logger.contains("tick failed") {
		t.Errorf("callback error not logged, got %v", logger.msgs)
	}
}

func TestScriptRemoveTimeout(t *testing.T) {
	c, _ := newTestCore(t)
	s := loadTestScript(t, c, nil, `
		local wm = require("wm")
		function init()
			local h = wm.timeout(5, function() return true end)
			first = wm.remove_timeout(h)
			second = wm.remove_timeout(h)
			foreign = wm.remove_timeout(123456)
		end
	`)
	activate(t, c, s)

	for name, want := range map[string]any{"first": true, "second": false, "foreign": false} {
		if got := global(s, name); got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
	if s.Timers() != 0 {
		t.Errorf("Timers() = %d, want 0", s.Timers())
	}
}

func TestScriptReleasedOnDeactivate(t *testing.T) {
	c, _ := newTestCore(t)
	createWindow(t, c, 1)
	sc := c.Display().Screen(0)
	base := c.Scheduler().TimeoutCount()

	s := loadTestScript(t, c, nil, `
		local wm = require("wm")
		function init()
			wm.timeout(100, function() return true end)
		end
		function init_screen(s)
			wm.wrap(s, "PaintWindow", function(args, next) return next(args) end)
			wm.wrap(s, "DonePaint", function(args, next) return next(args) end)
		end
		function init_window(w)
			wm.private(w).seen = true
		end
	`)
	activate(t, c, s)
	if s.Timers() != 1 || s.Wraps() != 2 {
		t.Fatalf("Timers(), Wraps() = %d, %d, want 1, 2", s.Timers(), s.Wraps())
	}

	if err := c.DeactivatePlugin("test"); err != nil {
		t.Fatalf("DeactivatePlugin() error = %v", err)
	}
	if s.Timers() != 0 || s.Wraps() != 0 {
		t.Errorf("Timers(), Wraps() = %d, %d after deactivate, want 0, 0", s.Timers(), s.Wraps())
	}
	if got := c.Scheduler().TimeoutCount(); got != base {
		t.Errorf("TimeoutCount() = %d, want %d", got, base)
	}
	if sc.Hooks.PaintWindow.Len() != 0 || sc.Hooks.DonePaint.Len() != 0 {
		t.Error("interceptions left on the screen")
	}
	if s.tables[privates.KindWindow].Valid() {
		t.Error("window private slot not released")
	}
}

// captureWindow installs an innermost PaintWindow link recording what
// reached it.
func captureWindow(sc *core.Screen, got *[]core.WindowPaintAttrib) {
	sc.Hooks.PaintWindow.Install("capture", func(a core.PaintWindowArgs, _ wrap.Next[core.PaintWindowArgs, bool]) bool {
		*got = append(*got, a.Attrib)
		return true
	})
}

func paintWindow(sc *core.Screen, w *core.Window) bool {
	return sc.Hooks.PaintWindow.Call(core.PaintWindowArgs{
		Window: w,
		Attrib: w.PaintAttrib(),
		Region: []damage.Rect{w.Rect()},
		Mask:   core.PaintRegion,
	})
}

func TestScriptWrapPaintWindow(t *testing.T) {
	c, _ := newTestCore(t)
	w := createWindow(t, c, 1)
	sc := w.Screen()

	var got []core.WindowPaintAttrib
	captureWindow(sc, &got)

	s := loadTestScript(t, c, nil, `
		local wm = require("wm")
		function init_screen(s)
			wm.wrap(s, "PaintWindow", function(args, next)
				if args.window.id == 1 then
					args.brightness = math.floor(args.brightness / 2)
					args.x_offset = 5
				end
				return next(args)
			end)
		end
	`)
	activate(t, c, s)

	if !paintWindow(sc, w) {
		t.Error("PaintWindow = false, want true")
	}
	want := core.WindowPaintAttrib{
		Opacity:    core.OpaqueValue,
		Brightness: core.OpaqueValue / 2,
		Saturation: core.OpaqueValue,
		XOffset:    5,
	}
	if len(got) != 1 || got[0] != want {
		t.Errorf("attrib = %+v, want [%+v]", got, want)
	}
}

func TestScriptWrapResult(t *testing.T) {
	c, _ := newTestCore(t)
	w := createWindow(t, c, 1)
	sc := w.Screen()

	var got []core.WindowPaintAttrib
	captureWindow(sc, &got)

	s := loadTestScript(t, c, nil, `
		local wm = require("wm")
		function init_screen(s)
			wm.wrap(s, "PaintWindow", function(args, next) return false end)
		end
	`)
	activate(t, c, s)

	if paintWindow(sc, w) {
		t.Error("PaintWindow = true, want false")
	}
	if len(got) != 0 {
		t.Errorf("inner link ran %d times, want 0", len(got))
	}
}

func TestScriptWrapErrorFallsThrough(t *testing.T) {
	c, _ := newTestCore(t)
	w := createWindow(t, c, 1)
	sc := w.Screen()

	var got []core.WindowPaintAttrib
	captureWindow(sc, &got)

	logger := &recordLogger{}
	s := loadTestScript(t, c, logger, `
		local wm = require("wm")
		function init_screen(s)
			wm.wrap(s, "PaintWindow", function(args, next) error("broken") end)
		end
	`)
	activate(t, c, s)

	for range 3 {
		if !paintWindow(sc, w) {
			t.Error("PaintWindow = false, want true")
		}
	}
	if len(got) != 3 {
		t.Errorf("inner link ran %d times, want 3", len(got))
	}
	if n := logger.count("ERROR"); n != 1 {
		t.Errorf("logged %d errors, want 1", n)
	}
}

func TestScriptWrapUnknownOperation(t *testing.T) {
	c, _ := newTestCore(t)
	s := loadTestScript(t, c, nil, `
		local wm = require("wm")
		function init_screen(s)
			wm.wrap(s, "Bogus", function(args, next) return next(args) end)
		end
	`)

	err := c.ActivatePlugin(s.VTable())
	if err == nil || !strings.Contains(err.Error(), ErrUnknownOperation.Error()) {
		t.Errorf("ActivatePlugin() error = %v, want %v", err, ErrUnknownOperation)
	}
}

func TestScriptUnwrap(t *testing.T) {
	c, _ := newTestCore(t)
	sc := c.Display().Screen(0)
	s := loadTestScript(t, c, nil, `
		local wm = require("wm")
		local h
		function init_screen(s)
			h = wm.wrap(s, "DonePaint", function(args, next) return next(args) end)
		end
		function remove()
			first = wm.unwrap(h)
			second = wm.unwrap(h)
		end
	`)
	activate(t, c, s)
	if sc.Hooks.DonePaint.Len() != 1 {
		t.Fatalf("DonePaint links = %d, want 1", sc.Hooks.DonePaint.Len())
	}

	if err := s.State().CallGlobal("remove"); err != nil {
		t.Fatalf("remove() error = %v", err)
	}
	if global(s, "first") != true || global(s, "second") != false {
		t.Errorf("unwrap results = %v, %v, want true, false", global(s, "first"), global(s, "second"))
	}
	if sc.Hooks.DonePaint.Len() != 0 || s.Wraps() != 0 {
		t.Error("unwrap left the link installed")
	}
}

func TestScriptWrapDamageWindowRect(t *testing.T) {
	c, _ := newTestCore(t)
	w := createWindow(t, c, 1)
	sc := w.Screen()

	var rects []damage.Rect
	sc.Hooks.DamageWindowRect.Install("capture", func(a core.DamageWindowRectArgs, _ wrap.Next[core.DamageWindowRectArgs, bool]) bool {
		rects = append(rects, a.Rect)
		return true
	})

	s := loadTestScript(t, c, nil, `
		local wm = require("wm")
		function init_screen(s)
			wm.wrap(s, "DamageWindowRect", function(args, next)
				args.x = args.x - 2
				args.width = args.width + 4
				return next(args)
			end)
		end
		function hit(w)
			wm.damage(w, 10, 10, 20, 20)
		end
	`)
	activate(t, c, s)

	ud, err := s.userdata(w)
	if err != nil {
		t.Fatalf("userdata() error = %v", err)
	}
	if err := s.State().CallGlobal("hit", ud); err != nil {
		t.Fatalf("hit() error = %v", err)
	}
	want := []damage.Rect{{X: 8, Y: 10, Width: 24, Height: 20}}
	if !reflect.DeepEqual(rects, want) {
		t.Errorf("damaged = %v, want %v", rects, want)
	}
}

func TestScriptWindowAddNotify(t *testing.T) {
	c, _ := newTestCore(t)
	s := loadTestScript(t, c, nil, `
		local wm = require("wm")
		added = {}
		function init_screen(s)
			wm.wrap(s, "WindowAddNotify", function(w, next)
				added[#added + 1] = w.id
				return next(w)
			end)
		end
	`)
	activate(t, c, s)
	createWindow(t, c, 7)
	createWindow(t, c, 9)

	if got, want := global(s, "added"), []any{int64(7), int64(9)}; !reflect.DeepEqual(got, want) {
		t.Errorf("added = %v, want %v", got, want)
	}
}

func TestScriptPrivate(t *testing.T) {
	c, _ := newTestCore(t)
	w := createWindow(t, c, 1)
	s := loadTestScript(t, c, nil, `
		local wm = require("wm")
		function init_window(w)
			local p = wm.private(w)
			p.seen = (p.seen or 0) + 1
		end
		function bump()
			local p = wm.private()
			p.n = (p.n or 0) + 1
			return p.n
		end
	`)
	activate(t, c, s)

	p, err := s.private(w)
	if err != nil {
		t.Fatalf("private() error = %v", err)
	}
	if got := p.RawGetString("seen"); got != glua.LNumber(1) {
		t.Errorf("seen = %v, want 1", got)
	}

	for want := 1; want <= 2; want++ {
		res, err := s.State().Call(s.State().Function("bump"), 1)
		if err != nil {
			t.Fatalf("bump() error = %v", err)
		}
		if res[0] != glua.LNumber(want) {
			t.Errorf("bump() = %v, want %d", res[0], want)
		}
	}
}

func TestScriptObjectIdentity(t *testing.T) {
	c, _ := newTestCore(t)
	s := loadTestScript(t, c, nil, `
		local wm = require("wm")
		function init()
			same = rawequal(wm.screens()[1], wm.screens()[1])
			count = #wm.screens()
		end
	`)
	activate(t, c, s)

	if global(s, "same") != true {
		t.Error("screen userdata differs between calls")
	}
	if got := global(s, "count"); got != int64(1) {
		t.Errorf("#wm.screens() = %v, want 1", got)
	}
}

func TestScriptObjectFields(t *testing.T) {
	c, _ := newTestCore(t)
	w := createWindow(t, c, 3)
	s := loadTestScript(t, c, nil, `
		function probe(w)
			return w.width, w.mapped, w.opacity, w.screen.name, w.nosuch
		end
		function screen(s)
			return s.width, s.height, s.refresh_rate, #s:windows()
		end
	`)
	activate(t, c, s)

	ud, err := s.userdata(w)
	if err != nil {
		t.Fatalf("userdata() error = %v", err)
	}
	res, err := s.State().Call(s.State().Function("probe"), 5, ud)
	if err != nil {
		t.Fatalf("probe() error = %v", err)
	}
	want := []glua.LValue{glua.LNumber(100), glua.LTrue, glua.LNumber(core.OpaqueValue), glua.LString("headless-0"), glua.LNil}
	if !reflect.DeepEqual(res, want) {
		t.Errorf("probe() = %v, want %v", res, want)
	}

	sud, err := s.userdata(w.Screen())
	if err != nil {
		t.Fatalf("userdata() error = %v", err)
	}
	res, err = s.State().Call(s.State().Function("screen"), 4, sud)
	if err != nil {
		t.Fatalf("screen() error = %v", err)
	}
	want = []glua.LValue{glua.LNumber(1024), glua.LNumber(768), glua.LNumber(60), glua.LNumber(1)}
	if !reflect.DeepEqual(res, want) {
		t.Errorf("screen() = %v, want %v", res, want)
	}
}

func TestScriptSetAttributes(t *testing.T) {
	c, _ := newTestCore(t)
	w := createWindow(t, c, 1)
	s := loadTestScript(t, c, nil, `
		function dim(w)
			w:set_brightness(40000)
			w:set_opacity(-5)
			w:set_saturation(1e9)
		end
	`)
	activate(t, c, s)

	ud, err := s.userdata(w)
	if err != nil {
		t.Fatalf("userdata() error = %v", err)
	}
	if err := s.State().CallGlobal("dim", ud); err != nil {
		t.Fatalf("dim() error = %v", err)
	}
	if w.Brightness() != 40000 {
		t.Errorf("Brightness() = %d, want 40000", w.Brightness())
	}
	if w.Opacity() != 0 {
		t.Errorf("Opacity() = %d, want 0", w.Opacity())
	}
	if w.Saturation() != core.OpaqueValue {
		t.Errorf("Saturation() = %d, want %d", w.Saturation(), core.OpaqueValue)
	}
}

func TestScriptLogging(t *testing.T) {
	c, _ := newTestCore(t)
	logger := &recordLogger{}
	loadTestScript(t, c, logger, `
		local wm = require("wm")
		wm.log("hello", 1)
		wm.warn({b = 2, a = 1})
	`)

	if !logger.contains("INFO [test] hello 1") {
		t.Errorf("wm.log not logged, got %v", logger.msgs)
	}
	if !logger.contains("WARN [test] {a=1 b=2}") {
		t.Errorf("wm.warn not logged, got %v", logger.msgs)
	}
}

func TestScriptConstants(t *testing.T) {
	c, _ := newTestCore(t)
	s := loadTestScript(t, c, nil, `
		local wm = require("wm")
		opaque = wm.OPAQUE
		abi = wm.ABI
		now = wm.now()
	`)

	if got := global(s, "opaque"); got != int64(core.OpaqueValue) {
		t.Errorf("OPAQUE = %v, want %d", got, core.OpaqueValue)
	}
	if got := global(s, "abi"); got != int64(core.ABIVersion) {
		t.Errorf("ABI = %v, want %d", got, core.ABIVersion)
	}
	if got := global(s, "now"); got != epoch.UnixMilli() {
		t.Errorf("now = %v, want %d", got, epoch.UnixMilli())
	}
}
