package training

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/reconciler/internal/banking"
)

type snapshotEntry struct {
	pattern ClassificationPattern
	folded  string
	re      *regexp.Regexp
}

// Snapshot is an immutable, pre-sorted view of the active patterns at one
// store version. A batch run evaluates every transaction against the same
// snapshot even if patterns are added meanwhile.
type Snapshot struct {
	Version int64
	TakenAt time.Time
	entries []snapshotEntry
	skipped []int64
}

// NewSnapshot compiles and orders patterns: priority desc, usage desc, then
// insertion order (id asc). Inactive patterns are dropped; regexes that do
// not compile are skipped and reported by Skipped.
func NewSnapshot(version int64, patterns []ClassificationPattern) *Snapshot {
	snap := &Snapshot{Version: version, TakenAt: time.Now().UTC()}
	for _, p := range patterns {
		if !p.Active {
			continue
		}
		entry := snapshotEntry{pattern: p}
		switch p.MatchType {
		case MatchRegex:
			re, err := regexp.Compile("(?i)" + p.Pattern)
			if err != nil {
				snap.skipped = append(snap.skipped, p.ID)
				continue
			}
			entry.re = re
		case MatchContains, MatchExact:
			entry.folded = Fold(p.Pattern)
			if entry.folded == "" {
				snap.skipped = append(snap.skipped, p.ID)
				continue
			}
		default:
			snap.skipped = append(snap.skipped, p.ID)
			continue
		}
		snap.entries = append(snap.entries, entry)
	}
	sort.SliceStable(snap.entries, func(i, j int) bool {
		a, b := snap.entries[i].pattern, snap.entries[j].pattern
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.UsageCount != b.UsageCount {
			return a.UsageCount > b.UsageCount
		}
		return a.ID < b.ID
	})
	return snap
}

// Match returns the first pattern, in precedence order, that matches
// description and is compatible with dir.
func (s *Snapshot) Match(description string, dir banking.Direction) (ClassificationPattern, bool) {
	if s == nil {
		return ClassificationPattern{}, false
	}
	folded := Fold(description)
	for _, e := range s.entries {
		if !e.pattern.Compatible(dir) {
			continue
		}
		if e.matches(description, folded) {
			return e.pattern, true
		}
	}
	return ClassificationPattern{}, false
}

func (e snapshotEntry) matches(raw, folded string) bool {
	switch e.pattern.MatchType {
	case MatchContains:
		return strings.Contains(folded, e.folded)
	case MatchExact:
		return folded == e.folded
	case MatchRegex:
		return e.re.MatchString(raw)
	}
	return false
}

// Patterns lists the snapshot in precedence order.
func (s *Snapshot) Patterns() []ClassificationPattern {
	if s == nil {
		return nil
	}
	out := make([]ClassificationPattern, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.pattern
	}
	return out
}

// Len is the number of usable patterns.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Skipped lists ids of active patterns that could not be compiled.
func (s *Snapshot) Skipped() []int64 {
	if s == nil {
		return nil
	}
	return s.skipped
}
