// Package fallback classifies text by keyword counting.
//
// It is the degraded path used when no model is loaded or inference fails,
// so Classify never fails and always returns a member of the label set.
package fallback

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/born-ml/emodiary/internal/emotion"
)

var defaultKeywords = map[emotion.Label][]string{
	emotion.Happy:       {"행복", "기쁨", "좋아", "즐거", "웃", "신나", "최고", "사랑", "감사"},
	emotion.Anxiety:     {"불안", "걱정", "두렵", "무서", "조심", "긴장", "초조"},
	emotion.Embarrassed: {"당황", "어색", "부끄", "창피", "민망"},
	emotion.Sad:         {"슬프", "우울", "눈물", "힘들", "외로", "아프"},
	emotion.Angry:       {"화", "짜증", "분노", "싫", "미워", "열받"},
	emotion.Hurt:        {"상처", "아픔", "서러", "서운", "섭섭"},
}

// Classifier scores text against one keyword set per label.
// It is immutable and safe for concurrent use.
type Classifier struct {
	keywords map[emotion.Label][]string
}

// Default returns a classifier with the built-in Korean keyword sets.
func Default() *Classifier {
	return New(defaultKeywords)
}

// New builds a classifier from custom keyword sets.
// Labels outside the label set and empty keywords are ignored.
func New(keywords map[emotion.Label][]string) *Classifier {
	c := &Classifier{keywords: make(map[emotion.Label][]string, emotion.Count())}
	for label, words := range keywords {
		if !label.Valid() {
			continue
		}
		seen := make(map[string]bool, len(words))
		for _, w := range words {
			w = normalize(w)
			if w == "" || seen[w] {
				continue
			}
			seen[w] = true
			c.keywords[label] = append(c.keywords[label], w)
		}
	}
	return c
}

// Keywords returns a copy of the normalized keywords for label.
func (c *Classifier) Keywords(label emotion.Label) []string {
	words := c.keywords[label]
	out := make([]string, len(words))
	copy(out, words)
	return out
}

// Scores counts, per label, how many of its keywords occur in text.
// Every label of the set is present in the result.
func (c *Classifier) Scores(text string) map[emotion.Label]int {
	text = normalize(text)
	scores := make(map[emotion.Label]int, emotion.Count())
	for _, label := range emotion.All() {
		n := 0
		for _, w := range c.keywords[label] {
			if strings.Contains(text, w) {
				n++
			}
		}
		scores[label] = n
	}
	return scores
}

// Classify returns the label with the highest keyword score.
// Ties, including text with no keyword at all, go to the earliest label in
// emotion.All order.
func (c *Classifier) Classify(text string) emotion.Label {
	scores := c.Scores(text)
	best := emotion.All()[0]
	for _, label := range emotion.All()[1:] {
		if scores[label] > scores[best] {
			best = label
		}
	}
	return best
}

func normalize(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}
