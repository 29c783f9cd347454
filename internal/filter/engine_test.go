package filter

import "testing"

func mustParse(t *testing.T, lines ...string) []*Rule {
	t.Helper()
	var rules []*Rule
	for _, l := range lines {
		r, err := Parse(l)
		if err != nil {
			t.Fatalf("Parse(%q): %v", l, err)
		}
		rules = append(rules, r)
	}
	return rules
}

func TestEngineFirstMatchWins(t *testing.T) {
	rules := mustParse(t, "+ *.go", "- *")
	e, err := New(rules)
	if err != nil {
		t.Fatal(err)
	}
	if got := e.Decide("main.go", false, true); got != ActionInclude {
		t.Errorf("main.go = %v, want include", got)
	}
	if got := e.Decide("README.md", false, true); got != ActionExclude {
		t.Errorf("README.md = %v, want exclude", got)
	}
}

func TestEngineDefaultIsInclude(t *testing.T) {
	e, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := e.Decide("anything", false, true); got != ActionInclude {
		t.Errorf("no rules = %v, want include", got)
	}
}

func TestEngineDirectoryOnlyRule(t *testing.T) {
	rules := mustParse(t, "- build/")
	e, err := New(rules)
	if err != nil {
		t.Fatal(err)
	}
	if got := e.Decide("build", true, true); got != ActionExclude {
		t.Errorf("dir build = %v, want exclude", got)
	}
	if got := e.Decide("build", false, true); got != ActionInclude {
		t.Errorf("file named build = %v, want include (directory-only rule should not match a file)", got)
	}
}

func TestEngineDescendantExclusion(t *testing.T) {
	rules := mustParse(t, "- node_modules/")
	e, err := New(rules)
	if err != nil {
		t.Fatal(err)
	}
	if got := e.Decide("node_modules/pkg/index.js", false, true); got != ActionExclude {
		t.Errorf("file under excluded dir = %v, want exclude", got)
	}
}

func TestEngineClearRemovesPriorRules(t *testing.T) {
	rules := mustParse(t, "- *.log", "clear", "+ *")
	e, err := New(rules)
	if err != nil {
		t.Fatal(err)
	}
	if got := e.Decide("debug.log", false, true); got != ActionInclude {
		t.Errorf("after clear, debug.log = %v, want include", got)
	}
}

func TestEngineSenderReceiverScoping(t *testing.T) {
	rules := mustParse(t, "-s secret.txt")
	e, err := New(rules)
	if err != nil {
		t.Fatal(err)
	}
	if got := e.Decide("secret.txt", false, true); got != ActionExclude {
		t.Errorf("sender-side exclude on sender = %v, want exclude", got)
	}
	if got := e.Decide("secret.txt", false, false); got != ActionInclude {
		t.Errorf("sender-only exclude must not apply on receiver side: got %v", got)
	}
}

func TestParseRejectsUnknownAction(t *testing.T) {
	if _, err := Parse("bogus pattern"); err == nil {
		t.Fatal("expected error for unrecognized action")
	}
}

func TestParseAnchoredPattern(t *testing.T) {
	r, err := Parse("- /top-level-only")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Anchored {
		t.Error("leading slash should anchor the rule")
	}
}
