package model

import "strings"

// Credit ladder tags mirrored on the loyalty platform customer
const (
	TagCreditedOnce   = "credited-once"
	TagCreditedTwice  = "credited-twice"
	TagCreditedThrice = "credited-thrice"
)

// TagSet is a case-insensitive set of customer tags that remembers the
// original spelling and insertion order of each tag.
type TagSet struct {
	order []string
	index map[string]int
}

// NewTagSet creates a TagSet from the given tags, skipping blanks and duplicates
func NewTagSet(tags ...string) *TagSet {
	ts := &TagSet{index: make(map[string]int)}
	ts.Add(tags...)
	return ts
}

// ParseTags parses a comma-separated tag string as used by the loyalty platform
func ParseTags(raw string) *TagSet {
	return NewTagSet(strings.Split(raw, ",")...)
}

// Add inserts tags not already present. It returns how many were new.
func (ts *TagSet) Add(tags ...string) int {
	added := 0
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := ts.index[key]; ok {
			continue
		}
		ts.index[key] = len(ts.order)
		ts.order = append(ts.order, t)
		added++
	}
	return added
}

// Has reports whether tag is present, ignoring case
func (ts *TagSet) Has(tag string) bool {
	_, ok := ts.index[strings.ToLower(strings.TrimSpace(tag))]
	return ok
}

// Len returns the number of tags
func (ts *TagSet) Len() int {
	return len(ts.order)
}

// Slice returns the tags in insertion order
func (ts *TagSet) Slice() []string {
	out := make([]string, len(ts.order))
	copy(out, ts.order)
	return out
}

// String renders the set in the platform's comma-separated form
func (ts *TagSet) String() string {
	return strings.Join(ts.order, ", ")
}

// Eligibility is the ladder decision for one play: the tag to add after the
// draw, and whether the customer has already exhausted wallet credits.
type Eligibility struct {
	NextTag  string `json:"next_tag,omitempty"`
	Terminal bool   `json:"terminal"`
}

// Ladder is the ordered sequence of mutually exclusive credit tags.
// The last rung is terminal: no further credit is issued once it is present.
type Ladder []string

// DefaultLadder is credited-once -> credited-twice -> credited-thrice
var DefaultLadder = Ladder{TagCreditedOnce, TagCreditedTwice, TagCreditedThrice}

// Evaluate finds the highest rung present in tags. No rung means the next
// tag is the first rung; the top rung means terminal.
func (l Ladder) Evaluate(tags *TagSet) Eligibility {
	highest := -1
	for i, rung := range l {
		if tags.Has(rung) {
			highest = i
		}
	}
	if highest == len(l)-1 {
		return Eligibility{Terminal: true}
	}
	return Eligibility{NextTag: l[highest+1]}
}
