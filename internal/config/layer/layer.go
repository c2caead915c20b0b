// Package layer stacks configuration sources. Each layer is a nested map;
// higher priority layers override lower ones key by key.
package layer

// Source says where a layer's values came from.
type Source uint8

const (
	SourceDefaults Source = iota
	SourceFile
	SourceEnv
	SourceArgs
)

// String returns the source name used in logs and state dumps.
func (s Source) String() string {
	switch s {
	case SourceDefaults:
		return "defaults"
	case SourceFile:
		return "file"
	case SourceEnv:
		return "environment"
	case SourceArgs:
		return "arguments"
	default:
		return "unknown"
	}
}

// Priority returns the merge priority of s. Later sources win.
func (s Source) Priority() int {
	return int(s) * 100
}

// Layer is one configuration source.
type Layer struct {
	Name   string
	Source Source
	// Path is the file the layer was read from, if any.
	Path string
	Data map[string]any
}

// New returns a layer holding data. A nil data map is replaced by an empty
// one.
func New(name string, source Source, data map[string]any) *Layer {
	if data == nil {
		data = make(map[string]any)
	}
	return &Layer{Name: name, Source: source, Data: data}
}

// Clone returns a deep copy of l.
func (l *Layer) Clone() *Layer {
	c := *l
	c.Data = cloneMap(l.Data)
	return &c
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneSlice(src []any) []any {
	if src == nil {
		return nil
	}
	dst := make([]any, len(src))
	for i, v := range src {
		dst[i] = cloneValue(v)
	}
	return dst
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		return cloneSlice(v)
	default:
		return v
	}
}
