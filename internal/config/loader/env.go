package loader

import (
	"os"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dshills/stormwm/internal/config/layer"
)

// EnvPrefix starts every variable the environment loader reads.
const EnvPrefix = "STORMWM_"

// EnvLoader reads prefixed environment variables. Mapped variables go to
// their configured path; any other prefixed variable maps by section, so
// STORMWM_DISPLAY_SYNC_TO_VBLANK sets display.sync_to_vblank.
type EnvLoader struct {
	prefix  string
	mapping map[string]string // variable -> config path
	lists   map[string]string // config path -> separator
	skip    map[string]bool
	environ func() []string
}

// NewEnvLoader returns a loader for prefix with the default mapping.
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix: prefix,
		mapping: map[string]string{
			prefix + "DISPLAY":      "display.name",
			prefix + "BACKEND":      "display.backend",
			prefix + "REFRESH_RATE": "display.refresh_rate",
			prefix + "PLUGINS":      "plugins.active",
			prefix + "PLUGIN_PATH":  "plugins.paths",
			prefix + "DUMP_PATH":    "debug.dump_path",
		},
		lists: map[string]string{
			"plugins.active": ",",
			"plugins.paths":  string(os.PathListSeparator),
		},
		// Read by the command line before any configuration exists.
		skip:    map[string]bool{prefix + "CONFIG": true},
		environ: os.Environ,
	}
}

// WithEnviron makes the loader read env instead of the process
// environment. Entries are KEY=VALUE.
func (l *EnvLoader) WithEnviron(env []string) *EnvLoader {
	l.environ = func() []string { return env }
	return l
}

// Map sends variable to path.
func (l *EnvLoader) Map(variable, path string) {
	l.mapping[variable] = path
}

// Load implements Loader. Empty values count as set.
func (l *EnvLoader) Load() (map[string]any, error) {
	out := make(map[string]any)
	for _, kv := range l.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) || l.skip[name] {
			continue
		}
		path, mapped := l.mapping[name]
		if !mapped {
			path = l.envToPath(name)
			if path == "" {
				continue
			}
		}
		if sep, ok := l.lists[path]; ok {
			layer.SetByPath(out, path, splitList(value, sep))
			continue
		}
		layer.SetByPath(out, path, parseValue(value))
	}
	return out, nil
}

// envToPath turns STORMWM_LOG_LEVEL into log.level: the first word is the
// section and the rest is the key.
func (l *EnvLoader) envToPath(name string) string {
	section, key, ok := strings.Cut(strings.ToLower(strings.TrimPrefix(name, l.prefix)), "_")
	if !ok || section == "" || key == "" {
		return ""
	}
	return section + "." + key
}

func splitList(s, sep string) []any {
	out := []any{}
	for part := range strings.SplitSeq(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseValue guesses the type of an environment value: bool, integer,
// float, JSON array or object, and otherwise string.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		if gjson.Valid(s) {
			return gjson.Parse(s).Value()
		}
	}
	return s
}
