package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/stormwm/internal/config/layer"
)

// IncludeKey names the files a TOML file pulls in. Its value is a path or a
// list of paths relative to the including file. The including file wins
// over everything it includes; later includes win over earlier ones.
const IncludeKey = "@include"

// MaxIncludeDepth bounds nested includes.
const MaxIncludeDepth = 8

// ErrIncludeDepth is returned when includes nest deeper than
// MaxIncludeDepth, which is also how include cycles surface.
var ErrIncludeDepth = errors.New("include depth exceeded")

// TOMLLoader reads a TOML file and the files it includes.
type TOMLLoader struct {
	fs   FileSystem
	path string

	// files lists every file read by the last Load, the main file first.
	files []string
}

// NewTOMLLoader returns a loader for path on the OS file system.
func NewTOMLLoader(path string) *TOMLLoader {
	return NewTOMLLoaderWithFS(DefaultFS(), path)
}

// NewTOMLLoaderWithFS returns a loader for path on fsys.
func NewTOMLLoaderWithFS(fsys FileSystem, path string) *TOMLLoader {
	return &TOMLLoader{fs: fsys, path: path}
}

// Path returns the main file.
func (l *TOMLLoader) Path() string { return l.path }

// Files returns every file the last Load read, main file first. The
// config watcher follows all of them.
func (l *TOMLLoader) Files() []string {
	return slices.Clone(l.files)
}

// Load implements Loader. A missing main file yields nil, nil; a missing
// include is an error.
func (l *TOMLLoader) Load() (map[string]any, error) {
	l.files = nil
	data, err := l.load(l.path, MaxIncludeDepth)
	if errors.Is(err, fs.ErrNotExist) && len(l.files) == 0 {
		return nil, nil
	}
	return data, err
}

func (l *TOMLLoader) load(path string, depth int) (map[string]any, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("%w at %s", ErrIncludeDepth, path)
	}
	raw, err := l.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	l.files = append(l.files, path)

	data, err := Parse(path, raw)
	if err != nil {
		return nil, err
	}
	inc, ok := data[IncludeKey]
	if !ok {
		return data, nil
	}
	delete(data, IncludeKey)

	includes, err := includeList(inc)
	if err != nil {
		return nil, &ParseError{Path: path, Message: err.Error()}
	}
	base := make(map[string]any)
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		sub, err := l.load(inc, depth-1)
		if err != nil {
			return nil, fmt.Errorf("including %s: %w", inc, err)
		}
		base = layer.DeepMerge(base, sub)
	}
	return layer.DeepMerge(base, data), nil
}

func includeList(v any) ([]string, error) {
	switch v := v.(type) {
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s entries must be strings, got %T", IncludeKey, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be a string or an array of strings, got %T", IncludeKey, v)
	}
}

// Parse decodes TOML data read from source into a nested map.
func Parse(source string, data []byte) (map[string]any, error) {
	var out map[string]any
	if err := toml.Unmarshal(data, &out); err != nil {
		perr := &ParseError{Path: source, Message: err.Error(), Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return nil, perr
	}
	if out == nil {
		out = make(map[string]any)
	}
	return out, nil
}

// ParseError reports a configuration file that could not be decoded.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
