// Package watcher reports changes to configuration files and plugin
// directories using fsnotify.
//
// Files are watched through their parent directory, so editors that save
// by writing a new file and renaming it over the old one are still seen.
// Events are delivered on the watcher's goroutine without debouncing;
// callers coalesce them on their own loop.
package watcher

import (
	"errors"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("watcher: closed")

// Op is the kind of change.
type Op int

const (
	OpWrite Op = iota + 1
	OpCreate
	OpRemove
	OpRename
)

// String returns the operation name.
func (op Op) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpCreate:
		return "create"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event is one change to a watched path.
type Event struct {
	Path string
	Op   Op
}

// Handler receives events. It runs on the watcher goroutine.
type Handler func(Event)

// Option configures a Watcher.
type Option func(*Watcher)

// WithErrorHandler receives errors reported by the file system watcher.
func WithErrorHandler(fn func(error)) Option {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// Watcher follows a set of files and directories.
type Watcher struct {
	fsw     *fsnotify.Watcher
	handler Handler
	onError func(error)

	mu     sync.Mutex
	files  map[string]bool // files of interest
	dirs   map[string]bool // directories whose every entry is of interest
	added  map[string]bool // directories handed to fsnotify
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New starts a watcher that sends events to handler.
func New(handler Handler, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:     fsw,
		handler: handler,
		files:   make(map[string]bool),
		dirs:    make(map[string]bool),
		added:   make(map[string]bool),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// WatchFile reports changes to path. The file need not exist yet, but its
// directory must.
func (w *Watcher) WatchFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.addDir(filepath.Dir(abs)); err != nil {
		return err
	}
	w.files[abs] = true
	return nil
}

// WatchDir reports changes to any entry of dir.
func (w *Watcher) WatchDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.addDir(abs); err != nil {
		return err
	}
	w.dirs[abs] = true
	return nil
}

func (w *Watcher) addDir(dir string) error {
	if w.closed {
		return ErrClosed
	}
	if w.added[dir] {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.added[dir] = true
	return nil
}

// Reset forgets every watched path.
func (w *Watcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for dir := range w.added {
		_ = w.fsw.Remove(dir)
	}
	clear(w.files)
	clear(w.dirs)
	clear(w.added)
}

// Paths returns the watched files and directories, sorted.
func (w *Watcher) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files)+len(w.dirs))
	for p := range w.files {
		out = append(out, p)
	}
	for p := range w.dirs {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.dispatch(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

func (w *Watcher) dispatch(ev fsnotify.Event) {
	op := convertOp(ev.Op)
	if op == 0 {
		return
	}
	w.mu.Lock()
	wanted := w.files[ev.Name] || w.dirs[filepath.Dir(ev.Name)]
	w.mu.Unlock()
	if wanted {
		w.handler(Event{Path: ev.Name, Op: op})
	}
}

// convertOp picks the most significant operation; chmod alone is ignored.
func convertOp(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Write):
		return OpWrite
	}
	return 0
}
