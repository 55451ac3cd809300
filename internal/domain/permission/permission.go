// Package permission decides whether a caller may act on a scope.
//
// Scopes are dot-separated paths such as "jobs.enqueue.restore_stats".
// A rule is a scope, optionally ending in "*" to match one or more further
// segments, optionally prefixed with "!" to reject instead of grant. The
// most specific matching rule decides; at equal specificity a reject wins;
// a scope no rule matches is denied.
package permission

import (
	"fmt"
	"strings"
)

const (
	separator = "."
	wildcard  = "*"
	negation  = "!"
)

type verdict struct {
	grant  bool
	reject bool
}

func (v *verdict) set(reject bool) {
	if reject {
		v.reject = true
	} else {
		v.grant = true
	}
}

func (v verdict) any() bool { return v.grant || v.reject }

type node struct {
	children map[string]*node
	exact    verdict
	prefix   verdict
}

func newNode() *node { return &node{children: make(map[string]*node)} }

// Set is a compiled rule list.
type Set struct {
	root  *node
	rules []string
}

// Compile parses rules into a Set.
func Compile(rules ...string) (*Set, error) {
	s := &Set{root: newNode()}
	for _, r := range rules {
		if err := s.add(r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// MustCompile is Compile for static rule lists.
func MustCompile(rules ...string) *Set {
	s, err := Compile(rules...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Set) add(rule string) error {
	raw := strings.TrimSpace(rule)
	reject := strings.HasPrefix(raw, negation)
	raw = strings.TrimPrefix(raw, negation)
	if raw == "" {
		return fmt.Errorf("%w: %q is empty", ErrInvalidRule, rule)
	}
	segs := strings.Split(raw, separator)
	n := s.root
	for i, seg := range segs {
		switch {
		case seg == wildcard && i == len(segs)-1:
			n.prefix.set(reject)
			s.rules = append(s.rules, rule)
			return nil
		case seg == "" || strings.Contains(seg, wildcard):
			return fmt.Errorf("%w: %q has a bad segment %q", ErrInvalidRule, rule, seg)
		}
		child, ok := n.children[seg]
		if !ok {
			child = newNode()
			n.children[seg] = child
		}
		n = child
	}
	n.exact.set(reject)
	s.rules = append(s.rules, rule)
	return nil
}

// Rules returns the source rules in compile order.
func (s *Set) Rules() []string {
	return append([]string(nil), s.rules...)
}

// Allowed reports whether scope is granted.
func (s *Set) Allowed(scope string) bool {
	if s == nil || scope == "" {
		return false
	}
	segs := strings.Split(scope, separator)
	var best verdict
	bestSpec := -1
	consider := func(v verdict, spec int) {
		if !v.any() {
			return
		}
		// deeper rules replace shallower ones; equal depth merges
		if spec > bestSpec {
			best, bestSpec = v, spec
		} else if spec == bestSpec {
			best.grant = best.grant || v.grant
			best.reject = best.reject || v.reject
		}
	}

	n := s.root
	for i, seg := range segs {
		// a trailing wildcard needs at least one more segment
		consider(n.prefix, 2*i)
		child, ok := n.children[seg]
		if !ok {
			n = nil
			break
		}
		n = child
	}
	if n != nil {
		consider(n.exact, 2*len(segs)+1)
	}
	return best.grant && !best.reject
}

// Check returns ErrForbidden when scope is not granted.
func (s *Set) Check(scope string) error {
	if !s.Allowed(scope) {
		return fmt.Errorf("%w: %s", ErrForbidden, scope)
	}
	return nil
}

// Keyring maps API keys to their rule sets.
type Keyring struct {
	keys map[string]*Set
}

// NewKeyring compiles rules per key.
func NewKeyring(keys map[string][]string) (*Keyring, error) {
	k := &Keyring{keys: make(map[string]*Set, len(keys))}
	for key, rules := range keys {
		if key == "" {
			return nil, fmt.Errorf("%w: empty api key", ErrInvalidRule)
		}
		set, err := Compile(rules...)
		if err != nil {
			return nil, fmt.Errorf("key %s...: %w", redact(key), err)
		}
		k.keys[key] = set
	}
	return k, nil
}

// Len returns the number of configured keys.
func (k *Keyring) Len() int {
	if k == nil {
		return 0
	}
	return len(k.keys)
}

// Check authorizes key for scope.
func (k *Keyring) Check(key, scope string) error {
	if k == nil {
		return ErrUnknownKey
	}
	set, ok := k.keys[key]
	if !ok {
		return ErrUnknownKey
	}
	return set.Check(scope)
}

func redact(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4]
}
