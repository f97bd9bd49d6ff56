// Package emotion defines the fixed label set and the model index mapping.
package emotion

import (
	"fmt"
	"sort"
	"strings"
)

// Label is one of the six diary emotions.
type Label string

// Labels in priority order. The first declared label wins every tie.
const (
	Happy       Label = "HAPPY"
	Anxiety     Label = "ANXIETY"
	Embarrassed Label = "EMBARRASSED"
	Sad         Label = "SAD"
	Angry       Label = "ANGRY"
	Hurt        Label = "HURT"
)

var all = []Label{Happy, Anxiety, Embarrassed, Sad, Angry, Hurt}

// tags are the human-readable names used by label_mapping.json.
var tags = map[string]Label{
	"기쁨": Happy,
	"불안": Anxiety,
	"당황": Embarrassed,
	"슬픔": Sad,
	"분노": Angry,
	"상처": Hurt,
}

// All returns the label set in priority order.
func All() []Label {
	out := make([]Label, len(all))
	copy(out, all)
	return out
}

// Count is the size of the label set.
func Count() int {
	return len(all)
}

// Valid reports whether l is a member of the label set.
func (l Label) Valid() bool {
	for _, candidate := range all {
		if l == candidate {
			return true
		}
	}
	return false
}

// Priority returns the position of l in All, or -1 for unknown labels.
func (l Label) Priority() int {
	for i, candidate := range all {
		if l == candidate {
			return i
		}
	}
	return -1
}

// String implements fmt.Stringer.
func (l Label) String() string {
	return string(l)
}

// Tag returns the Korean tag of l, or "" for unknown labels.
func (l Label) Tag() string {
	for tag, label := range tags {
		if label == l {
			return tag
		}
	}
	return ""
}

// Parse converts a canonical label name (case-insensitive) to a Label.
func Parse(s string) (Label, error) {
	l := Label(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown emotion label %q", s)
	}
	return l, nil
}

// FromTag translates a label_mapping.json tag into a Label.
// Both the Korean tags and the canonical names are accepted.
func FromTag(tag string) (Label, bool) {
	tag = strings.TrimSpace(tag)
	if l, ok := tags[tag]; ok {
		return l, true
	}
	if l, err := Parse(tag); err == nil {
		return l, true
	}
	return "", false
}

// IndexMap maps a model output index to a label.
type IndexMap map[int]Label

// DefaultIndexMap returns the compiled-in mapping: index i is All()[i].
func DefaultIndexMap() IndexMap {
	m := make(IndexMap, len(all))
	for i, l := range all {
		m[i] = l
	}
	return m
}

// Lookup returns the label for index.
func (m IndexMap) Lookup(index int) (Label, bool) {
	l, ok := m[index]
	return l, ok
}

// Covers reports whether every index in [0, n) is mapped.
func (m IndexMap) Covers(n int) bool {
	for i := 0; i < n; i++ {
		if _, ok := m[i]; !ok {
			return false
		}
	}
	return true
}

// Indices returns the mapped indices in ascending order.
func (m IndexMap) Indices() []int {
	out := make([]int, 0, len(m))
	for i := range m {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
