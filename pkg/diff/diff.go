// Package diff implements set-difference change detection over username
// lists. It is the only pure component in the pipeline: given the previous
// and the newly observed list it reports which handles appeared and which
// disappeared, after normalizing both sides.
package diff

import "strings"

// Changes holds the outcome of comparing two username lists.
type Changes struct {
	Added   []string
	Removed []string
}

// Empty reports whether no additions or removals were detected.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// NormalizeHandle canonicalizes a username for comparison and storage:
// trimmed, lowercased, leading "@" stripped. Handles are case-insensitive
// identity keys everywhere in the system.
func NormalizeHandle(handle string) string {
	h := strings.TrimSpace(handle)
	h = strings.TrimPrefix(h, "@")
	return strings.ToLower(h)
}

// NormalizeHandles normalizes a list and drops empty entries and
// duplicates, preserving first-seen order.
func NormalizeHandles(handles []string) []string {
	seen := make(map[string]bool, len(handles))
	out := make([]string, 0, len(handles))
	for _, h := range handles {
		n := NormalizeHandle(h)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Detect computes added = current − previous and removed = previous − current.
// Inputs are normalized before comparison, so callers may pass raw scraped
// lists. An empty current list yields every previous handle as removed; the
// caller decides whether an empty observation is trustworthy (it is not,
// when the upstream page only exposed counts).
func Detect(previous, current []string) Changes {
	prevSet := make(map[string]bool, len(previous))
	for _, h := range previous {
		if n := NormalizeHandle(h); n != "" {
			prevSet[n] = true
		}
	}
	curSet := make(map[string]bool, len(current))
	for _, h := range current {
		if n := NormalizeHandle(h); n != "" {
			curSet[n] = true
		}
	}

	var changes Changes
	for _, h := range NormalizeHandles(current) {
		if !prevSet[h] {
			changes.Added = append(changes.Added, h)
		}
	}
	for _, h := range NormalizeHandles(previous) {
		if !curSet[h] {
			changes.Removed = append(changes.Removed, h)
		}
	}
	return changes
}
