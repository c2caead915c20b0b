// Package backend holds the display backends the core can run on.
//
// Each backend lives in its own subpackage and implements core.Backend:
//
//   - headless: screens that exist only in memory, for tests and CI
//   - term: a nested display drawn into a terminal with tcell
//   - x11: a compositing manager on a real X server, via xgb
//
// Backends deliver events from their own goroutines through the sink handed
// to Start; the core moves them onto the loop goroutine. Renderers are only
// called from the loop goroutine.
package backend
