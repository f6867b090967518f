package template

import "sort"

// Scope is an ordered set of string variables visible to templates. Keys keep
// the order in which they were first set.
type Scope struct {
	keys   []string
	values map[string]string
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{values: make(map[string]string)}
}

// ScopeFrom creates a scope from a plain map. Keys are inserted in sorted
// order so the result is deterministic.
func ScopeFrom(vars map[string]string) *Scope {
	s := NewScope()
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Set(k, vars[k])
	}
	return s
}

// Set stores a variable, overwriting any previous value.
func (s *Scope) Set(key, value string) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// Get returns the value stored under key.
func (s *Scope) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the variable names in insertion order.
func (s *Scope) Keys() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of variables.
func (s *Scope) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Clone returns an independent copy of the scope.
func (s *Scope) Clone() *Scope {
	c := NewScope()
	if s == nil {
		return c
	}
	for _, k := range s.keys {
		c.Set(k, s.values[k])
	}
	return c
}

// Map returns the variables as a plain map.
func (s *Scope) Map() map[string]string {
	out := make(map[string]string, s.Len())
	if s == nil {
		return out
	}
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
