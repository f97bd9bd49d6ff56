package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/unicode/norm"
)

func TestBasicSplit(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "empty string",
			text: "",
			want: []string{},
		},
		{
			name: "blank string",
			text: " \t\n ",
			want: []string{},
		},
		{
			name: "korean words",
			text: "오늘 정말 행복했다",
			want: []string{"오늘", "정말", "행복했다"},
		},
		{
			name: "trailing punctuation",
			text: "hello, world!",
			want: []string{"hello", ",", "world", "!"},
		},
		{
			name: "punctuation inside a run",
			text: "a.b,c",
			want: []string{"a", ".", "b", ",", "c"},
		},
		{
			name: "repeated punctuation",
			text: "정말?!",
			want: []string{"정말", "?", "!"},
		},
		{
			name: "punctuation only",
			text: ";:",
			want: []string{";", ":"},
		},
		{
			name: "mixed scripts",
			text: "오늘은 happy 했다.",
			want: []string{"오늘은", "happy", "했다", "."},
		},
		{
			name: "unicode whitespace",
			text: "좋아　최고",
			want: []string{"좋아", "최고"},
		},
		{
			name: "other symbols stay attached",
			text: "ok-then (yes)",
			want: []string{"ok-then", "(yes)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BasicSplit(tt.text))
		})
	}
}

func TestBasicSplit_NormalizesDecomposedHangul(t *testing.T) {
	decomposed := norm.NFD.String("행복")
	assert.NotEqual(t, "행복", decomposed)
	assert.Equal(t, []string{"행복"}, BasicSplit(decomposed))
}
