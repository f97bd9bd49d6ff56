package classifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/emodiary/classifier"
)

func TestOpen_KeywordFallback(t *testing.T) {
	c, err := classifier.Open(classifier.Options{ModelDir: t.TempDir()})
	require.Error(t, err)
	defer c.Close()

	r := c.Classify("오늘 정말 행복했다")
	assert.Equal(t, classifier.Happy, r.Label)
	assert.Equal(t, classifier.SourceKeywords, r.Source)

	assert.Equal(t, classifier.Happy, c.Classify("").Label)
}

func TestLabels(t *testing.T) {
	assert.Equal(t, []classifier.Label{
		classifier.Happy, classifier.Anxiety, classifier.Embarrassed,
		classifier.Sad, classifier.Angry, classifier.Hurt,
	}, classifier.Labels())
}
