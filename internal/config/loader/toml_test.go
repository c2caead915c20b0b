package loader

import (
	"errors"
	"io/fs"
	"path/filepath"
	"reflect"
	"testing"
)

// memFS is an in-memory FileSystem.
type memFS map[string]string

func (m memFS) ReadFile(path string) ([]byte, error) {
	data, ok := m[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return []byte(data), nil
}

func TestTOMLLoaderLoad(t *testing.T) {
	fsys := memFS{"/etc/stormwm.toml": `
[display]
backend = "x11"
refresh_rate = 75
sync_to_vblank = false

[plugins]
active = ["fps", "dim"]
`}

	l := NewTOMLLoaderWithFS(fsys, "/etc/stormwm.toml")
	got, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := map[string]any{
		"display": map[string]any{"backend": "x11", "refresh_rate": int64(75), "sync_to_vblank": false},
		"plugins": map[string]any{"active": []any{"fps", "dim"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(l.Files(), []string{"/etc/stormwm.toml"}) {
		t.Errorf("Files() = %v", l.Files())
	}
}

func TestTOMLLoaderMissing(t *testing.T) {
	l := NewTOMLLoaderWithFS(memFS{}, "/nosuch.toml")
	got, err := l.Load()
	if err != nil || got != nil {
		t.Errorf("Load() = %v, %v, want nil, nil", got, err)
	}
}

func TestTOMLLoaderIncludes(t *testing.T) {
	fsys := memFS{
		"/cfg/main.toml": `
"@include" = ["base.toml", "/shared/plugins.toml"]

[display]
refresh_rate = 144
`,
		"/cfg/base.toml": `
"@include" = "defaults/display.toml"

[display]
backend = "x11"
refresh_rate = 60

[log]
level = "warn"
`,
		"/cfg/defaults/display.toml": `
[display]
backend = "headless"
sync_to_vblank = true
`,
		"/shared/plugins.toml": `
[log]
level = "debug"

[plugins]
active = ["fps"]
`,
	}

	l := NewTOMLLoaderWithFS(fsys, "/cfg/main.toml")
	got, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := map[string]any{
		"display": map[string]any{"backend": "x11", "refresh_rate": int64(144), "sync_to_vblank": true},
		"log":     map[string]any{"level": "debug"},
		"plugins": map[string]any{"active": []any{"fps"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %v, want %v", got, want)
	}
	wantFiles := []string{
		"/cfg/main.toml",
		"/cfg/base.toml",
		filepath.Join("/cfg", "defaults/display.toml"),
		"/shared/plugins.toml",
	}
	if !reflect.DeepEqual(l.Files(), wantFiles) {
		t.Errorf("Files() = %v, want %v", l.Files(), wantFiles)
	}
}

func TestTOMLLoaderErrors(t *testing.T) {
	tests := []struct {
		name  string
		files memFS
		check func(error) bool
	}{
		{
			"syntax",
			memFS{"/c.toml": "[display\nbackend = 1"},
			func(err error) bool {
				var perr *ParseError
				return errors.As(err, &perr) && perr.Path == "/c.toml" && perr.Line > 0
			},
		},
		{
			"cycle",
			memFS{"/c.toml": `"@include" = "d.toml"`, "/d.toml": `"@include" = "c.toml"`},
			func(err error) bool { return errors.Is(err, ErrIncludeDepth) },
		},
		{
			"missing include",
			memFS{"/c.toml": `"@include" = "gone.toml"`},
			func(err error) bool { return errors.Is(err, fs.ErrNotExist) },
		},
		{
			"bad include type",
			memFS{"/c.toml": `"@include" = 3`},
			func(err error) bool {
				var perr *ParseError
				return errors.As(err, &perr)
			},
		},
		{
			"bad include entry",
			memFS{"/c.toml": `"@include" = ["a.toml", 2]`},
			func(err error) bool {
				var perr *ParseError
				return errors.As(err, &perr)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTOMLLoaderWithFS(tt.files, "/c.toml").Load()
			if err == nil || !tt.check(err) {
				t.Errorf("Load() error = %v", err)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	got, err := Parse("empty", nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Parse() = %v, want empty map", got)
	}
}

func TestParseErrorMessage(t *testing.T) {
	tests := []struct {
		err  *ParseError
		want string
	}{
		{&ParseError{Path: "a", Line: 2, Column: 5, Message: "bad"}, "parse error in a at line 2, column 5: bad"},
		{&ParseError{Path: "a", Line: 2, Message: "bad"}, "parse error in a at line 2: bad"},
		{&ParseError{Path: "a", Message: "bad"}, "parse error in a: bad"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
