package plugin

import (
	"fmt"
	"strings"
)

// activationOrder sorts names so that every plugin comes after the plugins
// it depends on or asks to load after, as far as they are in the same set.
// Plugins with no constraint between them keep their requested order.
func activationOrder(names []string, manifests map[string]*Manifest) ([]string, error) {
	in := make(map[string]bool, len(names))
	for _, n := range names {
		in[n] = true
	}

	// before[n] lists the plugins that must precede n.
	before := make(map[string][]string, len(names))
	for _, n := range names {
		m := manifests[n]
		for _, list := range [][]string{m.Depends, m.LoadAfter} {
			for _, dep := range list {
				if in[dep] {
					before[n] = append(before[n], dep)
				}
			}
		}
	}

	placed := make(map[string]bool, len(names))
	order := make([]string, 0, len(names))
	for len(order) < len(names) {
		progress := false
		for _, n := range names {
			if placed[n] || !allPlaced(before[n], placed) {
				continue
			}
			placed[n] = true
			order = append(order, n)
			progress = true
			break
		}
		if !progress {
			var stuck []string
			for _, n := range names {
				if !placed[n] {
					stuck = append(stuck, n)
				}
			}
			return nil, fmt.Errorf("%w: %s", ErrCyclicDependency, strings.Join(stuck, ", "))
		}
	}
	return order, nil
}

func allPlaced(deps []string, placed map[string]bool) bool {
	for _, d := range deps {
		if !placed[d] {
			return false
		}
	}
	return true
}
