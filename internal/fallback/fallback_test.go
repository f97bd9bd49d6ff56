package fallback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/unicode/norm"

	"github.com/born-ml/emodiary/internal/emotion"
)

func TestClassify_Default(t *testing.T) {
	c := Default()

	tests := []struct {
		name string
		text string
		want emotion.Label
	}{
		{"happy diary", "오늘 정말 행복했다", emotion.Happy},
		{"empty text", "", emotion.Happy},
		{"no keywords", "점심으로 국수를 먹었다", emotion.Happy},
		{"anxiety", "시험 결과가 걱정되고 긴장된다", emotion.Anxiety},
		{"embarrassed", "발표 중에 말이 막혀서 너무 창피하고 민망했다", emotion.Embarrassed},
		{"sad", "하루 종일 우울해서 눈물이 났다", emotion.Sad},
		{"angry", "짜증나고 열받는 하루", emotion.Angry},
		{"hurt", "친구 말에 상처받고 서운했다", emotion.Hurt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.text)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}
}

func TestClassify_TieGoesToPriority(t *testing.T) {
	c := Default()

	// One SAD keyword and one HURT keyword.
	assert.Equal(t, emotion.Sad, c.Classify("눈물과 상처"))
	// One HAPPY keyword and one ANGRY keyword.
	assert.Equal(t, emotion.Happy, c.Classify("좋아하지만 짜증"))
}

func TestScores_CountsEachKeywordOnce(t *testing.T) {
	c := Default()
	scores := c.Scores("행복 행복 행복")

	assert.Equal(t, 1, scores[emotion.Happy])
	assert.Len(t, scores, emotion.Count())
	for _, label := range emotion.All()[1:] {
		assert.Zero(t, scores[label])
	}
}

func TestScores_NormalizesInput(t *testing.T) {
	c := Default()
	decomposed := norm.NFD.String("행복")
	assert.NotEqual(t, "행복", decomposed)
	assert.Equal(t, 1, c.Scores(decomposed)[emotion.Happy])
}

func TestNew_CustomKeywords(t *testing.T) {
	c := New(map[emotion.Label][]string{
		emotion.Angry:      {"Furious", "", "furious"},
		emotion.Hurt:       {"betrayed"},
		emotion.Label("X"): {"ignored"},
	})

	assert.Equal(t, []string{"furious"}, c.Keywords(emotion.Angry))
	assert.Equal(t, emotion.Angry, c.Classify("I was FURIOUS today"))
	assert.Equal(t, emotion.Hurt, c.Classify("felt betrayed"))
	assert.Equal(t, emotion.Happy, c.Classify("ignored"))
}
