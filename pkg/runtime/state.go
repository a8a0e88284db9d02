package runtime

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
)

// step is one concrete path segment: a child name and an evaluated index.
type step struct {
	name  string
	index int
}

func stepsKey(steps []step) string {
	var b strings.Builder
	for _, s := range steps {
		b.WriteString(s.name)
		b.WriteByte(0)
		b.WriteString(strconv.Itoa(s.index))
		b.WriteByte(0)
	}
	return b.String()
}

func hasStepsPrefix(key, prefix string) bool {
	return strings.HasPrefix(key, prefix)
}

// State is the data a thread operates on: a root value plus the alias table
// written by pointer assignments.
//
// An alias maps a concrete location to a target location. Resolution rewrites
// the shortest aliased prefix of a path with its target and repeats, so a
// pointer always follows the current target and never copies it. A chain that
// needs more hops than there are aliases is a loop and fails with
// domain.ErrAliasCycle.
type State struct {
	root *domain.Value

	mu      sync.RWMutex
	aliases map[string][]step
}

// NewState wraps root. A nil root starts empty.
func NewState(root *domain.Value) *State {
	if root == nil {
		root = domain.NewValue()
	}
	return &State{root: root, aliases: make(map[string][]step)}
}

// Root returns the root value.
func (s *State) Root() *domain.Value {
	return s.root
}

// Clone deep-copies the tree and the alias table.
func (s *State) Clone() *State {
	c := NewState(s.root.Clone())
	s.mu.RLock()
	for k, v := range s.aliases {
		c.aliases[k] = append([]step(nil), v...)
	}
	s.mu.RUnlock()
	return c
}

// Aliases returns the number of installed aliases.
func (s *State) Aliases() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.aliases)
}

func (s *State) setAlias(from, to []step) {
	s.mu.Lock()
	s.aliases[stepsKey(from)] = append([]step(nil), to...)
	s.mu.Unlock()
}

// dropAliases removes the alias installed at the location and every alias
// below it. It reports whether the location itself was an alias.
func (s *State) dropAliases(at []step) bool {
	key := stepsKey(at)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exact := s.aliases[key]
	for k := range s.aliases {
		if hasStepsPrefix(k, key) {
			delete(s.aliases, k)
		}
	}
	return exact
}

// rewrite expands aliases until no prefix of steps is aliased.
func (s *State) rewrite(steps []step) ([]step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.aliases) == 0 {
		return steps, nil
	}
	limit := len(s.aliases)
	for hops := 0; ; hops++ {
		rewritten := false
		for j := 1; j <= len(steps); j++ {
			target, ok := s.aliases[stepsKey(steps[:j])]
			if !ok {
				continue
			}
			next := make([]step, 0, len(target)+len(steps)-j)
			next = append(next, target...)
			next = append(next, steps[j:]...)
			steps = next
			rewritten = true
			break
		}
		if !rewritten {
			return steps, nil
		}
		if hops >= limit {
			return nil, fmt.Errorf("%w: more than %d hops", domain.ErrAliasCycle, limit)
		}
	}
}

// walk returns the value at steps, creating missing nodes.
func (s *State) walk(steps []step) *domain.Value {
	v := s.root
	for _, st := range steps {
		v = v.Children(st.name).Get(st.index)
	}
	return v
}

// lookup returns the value at steps without creating nodes.
func (s *State) lookup(steps []step) (*domain.Value, bool) {
	v := s.root
	for _, st := range steps {
		vec, ok := v.LookupChildren(st.name)
		if !ok {
			return nil, false
		}
		if v, ok = vec.Lookup(st.index); !ok {
			return nil, false
		}
	}
	return v, true
}
