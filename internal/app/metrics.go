package app

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/stormwm/internal/core"
	"github.com/dshills/stormwm/internal/wrap"
)

// metricsOwner owns the PaintScreen links installed by Metrics.
const metricsOwner = "stormwm.metrics"

// Metrics tracks frame timing across every screen.
//
// Record methods may be called from any goroutine. Attach and Detach must
// be called on the loop goroutine.
type Metrics struct {
	frameCount   atomic.Uint64
	frameTotalNs atomic.Int64
	frameMinNs   atomic.Int64
	frameMaxNs   atomic.Int64
	lastFrameNs  atomic.Int64

	startTime time.Time
	now       func() time.Time

	mu      sync.Mutex
	screens map[string]ScreenMetrics
	links   map[*core.Screen]wrap.Handle
}

// ScreenMetrics is the pacing state of one screen as of its last frame.
type ScreenMetrics struct {
	Name        string
	Frames      uint64
	Skipped     uint64
	MultChanges uint64
	TimeMult    int
	RefreshRate int
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
		now:       time.Now,
		screens:   make(map[string]ScreenMetrics),
		links:     make(map[*core.Screen]wrap.Handle),
	}
	m.frameMinNs.Store(1<<63 - 1)
	return m
}

// Attach times every PaintScreen call on the screens of c.
func (m *Metrics) Attach(c *core.Core) {
	for _, s := range c.Display().Screens() {
		m.attachScreen(s)
	}
}

func (m *Metrics) attachScreen(s *core.Screen) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[s]; ok {
		return
	}
	m.links[s] = s.Hooks.PaintScreen.Install(metricsOwner, func(a core.PaintScreenArgs, next wrap.Next[core.PaintScreenArgs, bool]) bool {
		start := m.now()
		r := next(a)
		m.RecordFrame(m.now().Sub(start))
		m.recordScreen(s)
		return r
	})
}

// Detach removes every link installed by Attach.
func (m *Metrics) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for s, h := range m.links {
		_ = s.Hooks.PaintScreen.Remove(h)
	}
	clear(m.links)
}

func (m *Metrics) recordScreen(s *core.Screen) {
	p := s.Pacer()
	st := p.Stats()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.screens[s.Name()] = ScreenMetrics{
		Name:        s.Name(),
		Frames:      st.Frames,
		Skipped:     st.Skipped,
		MultChanges: st.MultChanges,
		TimeMult:    p.TimeMult(),
		RefreshRate: p.RefreshRate(),
	}
}

// RecordFrame records how long one PaintScreen call took.
func (m *Metrics) RecordFrame(duration time.Duration) {
	ns := duration.Nanoseconds()

	m.frameCount.Add(1)
	m.frameTotalNs.Add(ns)
	m.lastFrameNs.Store(ns)

	for {
		old := m.frameMinNs.Load()
		if ns >= old || m.frameMinNs.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.frameMaxNs.Load()
		if ns <= old || m.frameMaxNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	frameCount := m.frameCount.Load()

	var avgFrameNs int64
	if frameCount > 0 {
		avgFrameNs = m.frameTotalNs.Load() / int64(frameCount)
	}
	minFrameNs := m.frameMinNs.Load()
	if minFrameNs == 1<<63-1 {
		minFrameNs = 0
	}

	m.mu.Lock()
	screens := make([]ScreenMetrics, 0, len(m.screens))
	for _, name := range slices.Sorted(maps.Keys(m.screens)) {
		screens = append(screens, m.screens[name])
	}
	m.mu.Unlock()

	return MetricsSnapshot{
		Uptime:         m.now().Sub(m.startTime),
		FrameCount:     frameCount,
		AvgFrameTimeNs: avgFrameNs,
		MinFrameTimeNs: minFrameNs,
		MaxFrameTimeNs: m.frameMaxNs.Load(),
		LastFrameNs:    m.lastFrameNs.Load(),
		Screens:        screens,
	}
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.frameCount.Store(0)
	m.frameTotalNs.Store(0)
	m.frameMinNs.Store(1<<63 - 1)
	m.frameMaxNs.Store(0)
	m.lastFrameNs.Store(0)
	m.mu.Lock()
	clear(m.screens)
	m.startTime = m.now()
	m.mu.Unlock()
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	Uptime         time.Duration
	FrameCount     uint64
	AvgFrameTimeNs int64
	MinFrameTimeNs int64
	MaxFrameTimeNs int64
	LastFrameNs    int64
	Screens        []ScreenMetrics
}

// Skipped returns the redraws deferred by pacing, summed over screens.
func (s MetricsSnapshot) Skipped() uint64 {
	var n uint64
	for _, sc := range s.Screens {
		n += sc.Skipped
	}
	return n
}

// SkipRate returns the percentage of damaged loop passes that did not
// paint.
func (s MetricsSnapshot) SkipRate() float64 {
	var frames uint64
	for _, sc := range s.Screens {
		frames += sc.Frames
	}
	skipped := s.Skipped()
	if frames+skipped == 0 {
		return 0
	}
	return float64(skipped) / float64(frames+skipped) * 100
}

// AvgPaintMs returns the mean PaintScreen time in milliseconds.
func (s MetricsSnapshot) AvgPaintMs() float64 {
	return float64(s.AvgFrameTimeNs) / 1e6
}
