package wrap

import "sort"

// Point is the type-independent view of a chain.
type Point interface {
	Name() string
	Len() int
	Owners() []string
	Has(h Handle) bool
	Remove(h Handle) error
	RemoveOwner(owner string) int
}

// Set groups the chains of one object so they can be addressed by name.
type Set struct {
	points map[string]Point
	order  []string
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{points: make(map[string]Point)}
}

// Add registers p under its name. A later Add with the same name replaces it.
func (s *Set) Add(p Point) {
	if _, exists := s.points[p.Name()]; !exists {
		s.order = append(s.order, p.Name())
	}
	s.points[p.Name()] = p
}

// Get returns the chain registered as name.
func (s *Set) Get(name string) (Point, bool) {
	p, ok := s.points[name]
	return p, ok
}

// Names returns the chain names in registration order.
func (s *Set) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Remove removes h from whichever chain holds it.
func (s *Set) Remove(h Handle) error {
	for _, name := range s.order {
		if p := s.points[name]; p.Has(h) {
			return p.Remove(h)
		}
	}
	return ErrUnknownHandle
}

// RemoveOwner removes every link owner installed on any chain of the set.
// Chains are visited in reverse registration order.
func (s *Set) RemoveOwner(owner string) int {
	n := 0
	for i := len(s.order) - 1; i >= 0; i-- {
		n += s.points[s.order[i]].RemoveOwner(owner)
	}
	return n
}

// Installed returns, for each chain with at least one link, its link count.
func (s *Set) Installed() map[string]int {
	out := make(map[string]int)
	for name, p := range s.points {
		if p.Len() > 0 {
			out[name] = p.Len()
		}
	}
	return out
}

// Owners returns every distinct owner with a link in the set, sorted.
func (s *Set) Owners() []string {
	seen := make(map[string]bool)
	for _, p := range s.points {
		for _, o := range p.Owners() {
			seen[o] = true
		}
	}
	out := make([]string, 0, len(seen))
	for o := range seen {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}
