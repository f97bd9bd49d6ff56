package store

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/emodiary/internal/classifier"
	"github.com/born-ml/emodiary/internal/emotion"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "emodiary.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func TestUpsert_InsertAndFind(t *testing.T) {
	s := setupTestStore(t)

	stored, err := s.Upsert(Analysis{
		DiaryID:    "d1",
		Emotion:    emotion.Sad,
		Confidence: 0.8,
		Source:     classifier.SourceModel,
		DiaryDate:  day(2024, time.March, 5),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, emotion.Sad, stored.Emotion)
	assert.InDelta(t, 0.8, stored.Confidence, 1e-9)
	assert.Equal(t, classifier.SourceModel, stored.Source)
	assert.Equal(t, day(2024, time.March, 5), stored.DiaryDate)
	assert.False(t, stored.AnalyzedAt.IsZero())

	found, err := s.FindByDiaryID("d1")
	require.NoError(t, err)
	assert.Equal(t, stored, found)
}

func TestUpsert_ReplacesAndKeepsID(t *testing.T) {
	s := setupTestStore(t)

	first, err := s.Upsert(Analysis{DiaryID: "d1", Emotion: emotion.Sad, Confidence: 0.4, DiaryDate: day(2024, time.March, 5)})
	require.NoError(t, err)
	second, err := s.Upsert(Analysis{DiaryID: "d1", Emotion: emotion.Happy, Confidence: 0.9, DiaryDate: day(2024, time.March, 5)})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, emotion.Happy, second.Emotion)
	assert.InDelta(t, 0.9, second.Confidence, 1e-9)

	all, err := s.FindByMonth(2024, time.March)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsert_Invalid(t *testing.T) {
	s := setupTestStore(t)

	tests := []struct {
		name string
		a    Analysis
	}{
		{"empty diary id", Analysis{DiaryID: " ", Emotion: emotion.Happy}},
		{"unknown emotion", Analysis{DiaryID: "d1", Emotion: "BORED"}},
		{"negative confidence", Analysis{DiaryID: "d1", Emotion: emotion.Happy, Confidence: -0.1}},
		{"confidence above one", Analysis{DiaryID: "d1", Emotion: emotion.Happy, Confidence: 1.5}},
		{"nan confidence", Analysis{DiaryID: "d1", Emotion: emotion.Happy, Confidence: math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Upsert(tt.a)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestFindByDiaryID_CorruptDates(t *testing.T) {
	s := setupTestStore(t)

	tests := []struct {
		name       string
		diaryDate  string
		analyzedAt string
		column     string
	}{
		{"diary date", "05/03/2024", "2024-03-05T10:00:00.000000000Z", "diary_date"},
		{"analyzed at", "2024-03-05", "yesterday", "analyzed_at"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diaryID := "broken-" + tt.column
			_, err := s.db.Exec(
				`INSERT INTO sentiment_analysis (analysis_id, diary_id, emotion, confidence, source, diary_date, analyzed_at)
				 VALUES (?, ?, 'SAD', 0.5, 'model', ?, ?)`,
				tt.column, diaryID, tt.diaryDate, tt.analyzedAt,
			)
			require.NoError(t, err, "case %d", i)

			_, err = s.FindByDiaryID(diaryID)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.column)
			assert.NotErrorIs(t, err, ErrNotFound)

			_, err = s.FindByEmotion(emotion.Sad)
			assert.Error(t, err)
		})
	}
}

func TestFindByDiaryID_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.FindByDiaryID("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	rows := []Analysis{
		{DiaryID: "feb-28", Emotion: emotion.Sad, DiaryDate: day(2024, time.February, 28)},
		{DiaryID: "mar-01", Emotion: emotion.Sad, DiaryDate: day(2024, time.March, 1)},
		{DiaryID: "mar-15", Emotion: emotion.Happy, DiaryDate: day(2024, time.March, 15)},
		{DiaryID: "mar-31", Emotion: emotion.Sad, DiaryDate: day(2024, time.March, 31)},
		{DiaryID: "apr-01", Emotion: emotion.Angry, DiaryDate: day(2024, time.April, 1)},
	}
	for _, a := range rows {
		_, err := s.Upsert(a)
		require.NoError(t, err)
	}
}

func diaryIDs(as []Analysis) []string {
	ids := make([]string, len(as))
	for i, a := range as {
		ids[i] = a.DiaryID
	}
	return ids
}

func TestFindByEmotion_NewestFirst(t *testing.T) {
	s := setupTestStore(t)
	seed(t, s)

	sad, err := s.FindByEmotion(emotion.Sad)
	require.NoError(t, err)
	assert.Equal(t, []string{"mar-31", "mar-01", "feb-28"}, diaryIDs(sad))

	hurt, err := s.FindByEmotion(emotion.Hurt)
	require.NoError(t, err)
	assert.Empty(t, hurt)
}

func TestFindByMonth(t *testing.T) {
	s := setupTestStore(t)
	seed(t, s)

	march, err := s.FindByMonth(2024, time.March)
	require.NoError(t, err)
	assert.Equal(t, []string{"mar-31", "mar-15", "mar-01"}, diaryIDs(march))
}

func TestCountByMonth(t *testing.T) {
	s := setupTestStore(t)
	seed(t, s)

	counts, err := s.CountByMonth(2024, time.March)
	require.NoError(t, err)
	assert.Equal(t, map[emotion.Label]int{emotion.Sad: 2, emotion.Happy: 1}, counts)

	counts, err = s.CountByMonth(2023, time.December)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestDeleteByDiaryID(t *testing.T) {
	s := setupTestStore(t)
	seed(t, s)

	require.NoError(t, s.DeleteByDiaryID("mar-15"))
	require.NoError(t, s.DeleteByDiaryID("mar-15"))

	_, err := s.FindByDiaryID("mar-15")
	assert.ErrorIs(t, err, ErrNotFound)

	counts, err := s.CountByMonth(2024, time.March)
	require.NoError(t, err)
	assert.Equal(t, map[emotion.Label]int{emotion.Sad: 2}, counts)
}

func TestRecord(t *testing.T) {
	s := setupTestStore(t)
	s.now = func() time.Time { return time.Date(2024, time.May, 2, 21, 30, 0, 0, time.UTC) }

	var rec classifier.Recorder = s
	require.NoError(t, rec.Record("d9", classifier.Result{
		Label:      emotion.Anxiety,
		Confidence: 0.7,
		Source:     classifier.SourceModel,
	}))

	a, err := s.FindByDiaryID("d9")
	require.NoError(t, err)
	assert.Equal(t, emotion.Anxiety, a.Emotion)
	assert.Equal(t, day(2024, time.May, 2), a.DiaryDate)
	assert.WithinDuration(t, s.now(), a.AnalyzedAt, 0)
}

func TestRecordOn_FiledUnderDiaryDate(t *testing.T) {
	s := setupTestStore(t)
	s.now = func() time.Time { return time.Date(2024, time.May, 2, 21, 30, 0, 0, time.UTC) }

	r := classifier.Result{Label: emotion.Hurt, Confidence: 0.6, Source: classifier.SourceModel}
	require.NoError(t, s.RecordOn("late", day(2024, time.April, 29), r))
	require.NoError(t, s.Record("today", r))

	april, err := s.FindByMonth(2024, time.April)
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, diaryIDs(april))

	counts, err := s.CountByMonth(2024, time.May)
	require.NoError(t, err)
	assert.Equal(t, map[emotion.Label]int{emotion.Hurt: 1}, counts)
}

func TestClassifyAndRecord(t *testing.T) {
	s := setupTestStore(t)
	c := classifier.New(classifier.Deps{Recorder: s})

	r, err := c.ClassifyAndRecord("d1", "오늘 정말 행복했다")
	require.NoError(t, err)

	a, err := s.FindByDiaryID("d1")
	require.NoError(t, err)
	assert.Equal(t, r.Label, a.Emotion)
	assert.Equal(t, classifier.SourceKeywords, a.Source)
	assert.Zero(t, a.Confidence)
}
