package diff

import "testing"

func has(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func TestNormalizeHandle(t *testing.T) {
	cases := map[string]string{
		"  Alice ":  "alice",
		"@Bob":      "bob",
		"carol":     "carol",
		"@":         "",
		"":          "",
		" @DaVe\t":  "dave",
		"UPPERCASE": "uppercase",
	}
	for in, want := range cases {
		if got := NormalizeHandle(in); got != want {
			t.Errorf("NormalizeHandle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectBasic(t *testing.T) {
	got := Detect([]string{"bob", "carol"}, []string{"bob", "dave"})
	if len(got.Added) != 1 || got.Added[0] != "dave" {
		t.Errorf("added = %v, want [dave]", got.Added)
	}
	if len(got.Removed) != 1 || got.Removed[0] != "carol" {
		t.Errorf("removed = %v, want [carol]", got.Removed)
	}
}

func TestDetectCaseInsensitive(t *testing.T) {
	got := Detect([]string{"Bob", "@Carol"}, []string{"bob", "carol"})
	if !got.Empty() {
		t.Errorf("expected no changes, got added=%v removed=%v", got.Added, got.Removed)
	}
}

func TestDetectEmptyPrevious(t *testing.T) {
	got := Detect(nil, []string{"alice", "bob"})
	if len(got.Added) != 2 || len(got.Removed) != 0 {
		t.Errorf("added=%v removed=%v, want 2 added 0 removed", got.Added, got.Removed)
	}
}

func TestDetectEmptyCurrent(t *testing.T) {
	// The detector itself reports everyone as removed; trusting an empty
	// observation is the caller's decision.
	got := Detect([]string{"alice", "bob"}, nil)
	if len(got.Removed) != 2 || len(got.Added) != 0 {
		t.Errorf("added=%v removed=%v, want 0 added 2 removed", got.Added, got.Removed)
	}
}

func TestDetectDisjointSets(t *testing.T) {
	got := Detect([]string{"a", "b"}, []string{"c", "d"})
	for _, h := range got.Added {
		if has(got.Removed, h) {
			t.Fatalf("handle %q present in both added and removed", h)
		}
	}
	if len(got.Added) != 2 || len(got.Removed) != 2 {
		t.Errorf("added=%v removed=%v", got.Added, got.Removed)
	}
}

func TestDetectDuplicatesCollapsed(t *testing.T) {
	got := Detect([]string{"bob"}, []string{"dave", "Dave", "@dave"})
	if len(got.Added) != 1 {
		t.Errorf("added = %v, want single dave", got.Added)
	}
}
