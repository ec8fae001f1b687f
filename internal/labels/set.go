package labels

import (
	"sort"
	"strings"
)

// Set is an unordered collection of label ids. The zero value is an empty set
// ready for reads; use NewSet or Add to populate it.
type Set map[string]struct{}

// NewSet builds a set from ids, collapsing duplicates.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id, allocating the set when nil.
func (s *Set) Add(id string) {
	if *s == nil {
		*s = make(Set)
	}
	(*s)[id] = struct{}{}
}

// Has reports membership.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of labels.
func (s Set) Len() int { return len(s) }

// Empty reports whether the set has no labels.
func (s Set) Empty() bool { return len(s) == 0 }

// Union returns a new set holding the members of s and other.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Difference returns the members of s absent from other (s − other).
func (s Set) Difference(other Set) Set {
	out := make(Set)
	for id := range s {
		if !other.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Intersect returns the members present in both sets.
func (s Set) Intersect(other Set) Set {
	out := make(Set)
	for id := range s {
		if other.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Equal reports whether both sets hold the same members.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Sorted lists the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s Set) String() string {
	return "{" + strings.Join(s.Sorted(), ", ") + "}"
}
