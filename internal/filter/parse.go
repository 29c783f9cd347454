package filter

import (
	"fmt"
	"strings"
)

// Parse compiles one filter rule line (spec.md §4.10 grammar):
//
//	[modifier]* ACTION [/]PATTERN[/]
//
// The first whitespace-separated field carries the action, either as
// a keyword (include/exclude/protect/risk/clear) or its CLI short
// form (+/-/P/R/!), optionally preceded by comma-separated single
// character modifiers (!,C,D,F,s,r,p,x). Everything after the first
// field is the pattern.
func Parse(line string) (*Rule, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("filter: empty rule")
	}

	head, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	action, modifiers, err := splitActionModifiers(head)
	if err != nil {
		return nil, fmt.Errorf("filter: rule %q: %w", line, err)
	}

	if action != actionClear && rest == "" {
		return nil, fmt.Errorf("filter: rule %q has no pattern", line)
	}

	r := &Rule{
		Action:            action,
		AppliesToSender:   true,
		AppliesToReceiver: true,
	}
	for _, m := range modifiers {
		if err := applyModifier(r, m); err != nil {
			return nil, fmt.Errorf("filter: rule %q: %w", line, err)
		}
	}

	if action == actionClear {
		return r, nil
	}

	pattern := rest
	if strings.HasPrefix(pattern, "/") {
		r.Anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	}
	if strings.HasSuffix(pattern, "/") {
		r.DirectoryOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	r.DirectMatchers = []string{pattern}
	if !r.Anchored {
		r.DirectMatchers = append(r.DirectMatchers, "**/"+pattern)
	}
	if action == ActionExclude || action == ActionProtect || action == ActionRisk || r.DirectoryOnly {
		r.DescendantMatchers = []string{pattern + "/**"}
		if !r.Anchored {
			r.DescendantMatchers = append(r.DescendantMatchers, "**/"+pattern+"/**")
		}
	}

	return r, nil
}

func applyModifier(r *Rule, m string) error {
	if len(m) != 1 {
		return fmt.Errorf("unknown modifier %q", m)
	}
	switch m[0] {
	case '!':
		// Negation is expressed by choosing ActionExclude/ActionInclude
		// directly at the call site; a bare '!' modifier has no
		// additional effect on an already-resolved action.
	case 'D':
		r.DirectoryOnly = true
	case 'F':
		r.Anchored = true
	case 's':
		r.AppliesToReceiver = false
	case 'r':
		r.AppliesToSender = false
	case 'p':
		r.Perishable = true
	case 'x', 'C':
		// Recognized but carry no dedicated Rule field: 'x' (xattr-only)
		// is consulted by the caller alongside the match result, 'C'
		// (CVS-style defaults) only affects which default rule set a
		// higher layer seeds, not an individual compiled rule.
	default:
		return fmt.Errorf("unknown modifier %q", m)
	}
	return nil
}

// splitActionModifiers splits a rule's leading token into an Action
// and its modifier characters. Two forms are accepted: a short symbol
// (+/-/P/R/!) with modifier letters fused directly after it (e.g.
// "-s", "+p"), or a long keyword optionally preceded by
// comma-separated modifiers (e.g. "s,exclude").
func splitActionModifiers(head string) (Action, []string, error) {
	if head == "" {
		return 0, nil, fmt.Errorf("empty action token")
	}
	if isShortActionSymbol(head[0]) {
		action, err := parseAction(head[:1])
		if err != nil {
			return 0, nil, err
		}
		mods := make([]string, 0, len(head)-1)
		for _, c := range head[1:] {
			mods = append(mods, string(c))
		}
		return action, mods, nil
	}

	parts := strings.Split(head, ",")
	action, err := parseAction(parts[len(parts)-1])
	if err != nil {
		return 0, nil, err
	}
	return action, parts[:len(parts)-1], nil
}

func isShortActionSymbol(c byte) bool {
	switch c {
	case '+', '-', 'P', 'R', '!':
		return true
	default:
		return false
	}
}

func parseAction(tok string) (Action, error) {
	switch tok {
	case "include", "+":
		return ActionInclude, nil
	case "exclude", "-":
		return ActionExclude, nil
	case "protect", "P":
		return ActionProtect, nil
	case "risk", "R":
		return ActionRisk, nil
	case "clear", "!":
		return actionClear, nil
	default:
		return 0, fmt.Errorf("unrecognized filter action %q", tok)
	}
}
