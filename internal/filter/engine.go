package filter

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// compiled pairs a Rule with its precompiled glob matchers, so
// evaluation never reparses a pattern.
type compiled struct {
	rule    *Rule
	direct  []string
	descend []string
}

// Engine evaluates a compiled, ordered list of rules against paths
// (spec.md §4.10, "Evaluation").
type Engine struct {
	rules []compiled
}

// New compiles rules in order, applying `clear` directives as they
// are encountered (spec.md §4.10, "clear is a meta-directive that
// removes all prior rules matching the requested side").
func New(rules []*Rule) (*Engine, error) {
	e := &Engine{}
	for _, r := range rules {
		if r.Action == actionClear {
			e.clear(r.AppliesToSender, r.AppliesToReceiver)
			continue
		}
		for _, p := range append(append([]string{}, r.DirectMatchers...), r.DescendantMatchers...) {
			if !doublestar.ValidatePattern(p) {
				return nil, fmt.Errorf("filter: invalid pattern %q", p)
			}
		}
		e.rules = append(e.rules, compiled{rule: r, direct: r.DirectMatchers, descend: r.DescendantMatchers})
	}
	return e, nil
}

func (e *Engine) clear(sender, receiver bool) {
	kept := e.rules[:0]
	for _, c := range e.rules {
		removeFromSender := sender && c.rule.AppliesToSender
		removeFromReceiver := receiver && c.rule.AppliesToReceiver
		if removeFromSender && removeFromReceiver {
			continue
		}
		if removeFromSender {
			c.rule.AppliesToSender = false
		}
		if removeFromReceiver {
			c.rule.AppliesToReceiver = false
		}
		kept = append(kept, c)
	}
	e.rules = kept
}

// Decide evaluates path (isDir indicates whether it names a
// directory) against the compiled rules in order and returns the
// first match's action, or ActionInclude if nothing matches (spec.md
// §4.10, "the implicit default is include").
func (e *Engine) Decide(path string, isDir bool, sender bool) Action {
	for _, c := range e.rules {
		if sender && !c.rule.AppliesToSender {
			continue
		}
		if !sender && !c.rule.AppliesToReceiver {
			continue
		}
		if (!c.rule.DirectoryOnly || isDir) && matchesAny(c.direct, path) {
			return c.rule.Action
		}
		if isDir && matchesAny(c.descend, path) {
			return c.rule.Action
		}
		if !isDir && matchesDescendant(c.descend, path) {
			return c.rule.Action
		}
	}
	return ActionInclude
}

func matchesAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}

// matchesDescendant tests whether path lies under a directory named
// by one of patterns (each already suffixed with "/**" at compile
// time), so a file under an excluded directory inherits the
// exclusion even though the file's own name never appears in the
// pattern.
func matchesDescendant(patterns []string, path string) bool {
	for i := 0; i < len(path); i++ {
		if path[i] != '/' {
			continue
		}
		for _, p := range patterns {
			if ok, _ := doublestar.Match(strings.TrimSuffix(p, "/**"), path[:i]); ok {
				return true
			}
		}
	}
	return false
}
