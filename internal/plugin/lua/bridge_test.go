package lua

import (
	"reflect"
	"testing"

	glua "github.com/yuin/gopher-lua"
)

func TestToGoValue(t *testing.T) {
	tests := []struct {
		name     string
		input    glua.LValue
		expected any
	}{
		{"nil", glua.LNil, nil},
		{"true", glua.LTrue, true},
		{"false", glua.LFalse, false},
		{"integer", glua.LNumber(42), int64(42)},
		{"float", glua.LNumber(3.14), 3.14},
		{"string", glua.LString("hello"), "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToGoValue(tt.input)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("ToGoValue(%v) = %v (%T), want %v (%T)",
					tt.input, result, result, tt.expected, tt.expected)
			}
		})
	}
}

func TestToGoValueTable(t *testing.T) {
	L := glua.NewState()
	defer L.Close()

	t.Run("array", func(t *testing.T) {
		tbl := L.NewTable()
		tbl.Append(glua.LString("a"))
		tbl.Append(glua.LString("b"))

		want := []any{"a", "b"}
		if got := ToGoValue(tbl); !reflect.DeepEqual(got, want) {
			t.Errorf("ToGoValue(array) = %v, want %v", got, want)
		}
	})

	t.Run("map", func(t *testing.T) {
		tbl := L.NewTable()
		tbl.RawSetString("x", glua.LNumber(1))
		tbl.RawSetString("nested", L.NewTable())

		want := map[string]any{"x": int64(1), "nested": map[string]any{}}
		if got := ToGoValue(tbl); !reflect.DeepEqual(got, want) {
			t.Errorf("ToGoValue(map) = %v, want %v", got, want)
		}
	})

	t.Run("cycle", func(t *testing.T) {
		tbl := L.NewTable()
		tbl.RawSetString("self", tbl)

		want := map[string]any{"self": nil}
		if got := ToGoValue(tbl); !reflect.DeepEqual(got, want) {
			t.Errorf("ToGoValue(cycle) = %v, want %v", got, want)
		}
	})
}

func TestToLuaValue(t *testing.T) {
	L := glua.NewState()
	defer L.Close()

	tests := []struct {
		name  string
		input any
		want  glua.LValue
	}{
		{"nil", nil, glua.LNil},
		{"bool", true, glua.LTrue},
		{"int", 7, glua.LNumber(7)},
		{"int64", int64(-3), glua.LNumber(-3)},
		{"uint64", uint64(9), glua.LNumber(9)},
		{"float", 0.5, glua.LNumber(0.5)},
		{"string", "wm", glua.LString("wm")},
		{"fallback", struct{ A int }{1}, glua.LString("{1}")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToLuaValue(L, tt.input); got != tt.want {
				t.Errorf("ToLuaValue(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// Configuration decoded from a manifest comes back unchanged.
func TestToLuaValueRoundTrip(t *testing.T) {
	L := glua.NewState()
	defer L.Close()

	config := map[string]any{
		"interval": int64(500),
		"opacity":  0.75,
		"screens":  []any{"left", "right"},
		"colors":   map[string]any{"text": "white"},
		"enabled":  true,
	}
	if got := ToGoValue(ToLuaValue(L, config)); !reflect.DeepEqual(got, config) {
		t.Errorf("round trip = %v, want %v", got, config)
	}

	list := ToGoValue(ToLuaValue(L, []string{"a", "b"}))
	if !reflect.DeepEqual(list, []any{"a", "b"}) {
		t.Errorf("[]string round trip = %v", list)
	}
}

func TestFormatArgs(t *testing.T) {
	L := glua.NewState()
	defer L.Close()

	tbl := L.NewTable()
	tbl.RawSetString("b", glua.LNumber(2))
	tbl.RawSetString("a", glua.LString("x"))

	L.Push(glua.LString("skip"))
	L.Push(glua.LString("hello"))
	L.Push(glua.LNumber(1.5))
	L.Push(tbl)

	want := []string{"hello", "1.5", "{a=x b=2}"}
	if got := formatArgs(L, 2); !reflect.DeepEqual(got, want) {
		t.Errorf("formatArgs() = %q, want %q", got, want)
	}
}
