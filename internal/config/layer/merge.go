package layer

import (
	"reflect"
	"slices"
	"strings"
)

// DeepMerge merges src into dst and returns dst. Tables present in both are
// merged key by key; any other src value replaces the dst value. Values
// taken from src are copied, so later changes to src do not leak into dst.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, sv := range src {
		sm, srcTable := sv.(map[string]any)
		dm, dstTable := dst[k].(map[string]any)
		if srcTable && dstTable {
			dst[k] = DeepMerge(dm, sm)
			continue
		}
		dst[k] = cloneValue(sv)
	}
	return dst
}

// GetByPath looks up a dotted path such as "display.refresh_rate".
func GetByPath(data map[string]any, path string) (any, bool) {
	var cur any = data
	for part := range strings.SplitSeq(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetByPath stores value at a dotted path, creating tables on the way and
// replacing any non-table value that is in the way.
func SetByPath(data map[string]any, path string, value any) {
	if data == nil {
		return
	}
	parts := strings.Split(path, ".")
	cur := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// Flatten returns the leaves of data keyed by dotted path.
func Flatten(data map[string]any) map[string]any {
	out := make(map[string]any)
	flatten(data, "", out)
	return out
}

func flatten(data map[string]any, prefix string, out map[string]any) {
	for k, v := range data {
		if prefix != "" {
			k = prefix + "." + k
		}
		if m, ok := v.(map[string]any); ok && len(m) > 0 {
			flatten(m, k, out)
			continue
		}
		out[k] = v
	}
}

// Diff lists the dotted paths that differ between two configurations.
type Diff struct {
	Added    []string
	Modified []string
	Removed  []string
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Removed) == 0
}

// Changed reports whether path, or anything below it, differs.
func (d Diff) Changed(path string) bool {
	for _, list := range [][]string{d.Added, d.Modified, d.Removed} {
		for _, p := range list {
			if p == path || strings.HasPrefix(p, path+".") {
				return true
			}
		}
	}
	return false
}

// DiffMaps compares two configurations leaf by leaf. Each list is sorted.
func DiffMaps(old, new map[string]any) Diff {
	var d Diff
	of, nf := Flatten(old), Flatten(new)
	for k, nv := range nf {
		ov, ok := of[k]
		switch {
		case !ok:
			d.Added = append(d.Added, k)
		case !reflect.DeepEqual(ov, nv):
			d.Modified = append(d.Modified, k)
		}
	}
	for k := range of {
		if _, ok := nf[k]; !ok {
			d.Removed = append(d.Removed, k)
		}
	}
	slices.Sort(d.Added)
	slices.Sort(d.Modified)
	slices.Sort(d.Removed)
	return d
}
