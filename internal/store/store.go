// Package store persists emotion analyses in SQLite.
//
// Each diary has at most one analysis; writing again replaces the label and
// confidence but keeps the analysis id. A Store implements
// classifier.Recorder.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/born-ml/emodiary/internal/classifier"
	"github.com/born-ml/emodiary/internal/emotion"
)

const schema = `
CREATE TABLE IF NOT EXISTS sentiment_analysis (
	analysis_id TEXT PRIMARY KEY,
	diary_id    TEXT NOT NULL UNIQUE,
	emotion     TEXT NOT NULL,
	confidence  REAL NOT NULL,
	source      TEXT NOT NULL,
	diary_date  TEXT NOT NULL,
	analyzed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analysis_emotion ON sentiment_analysis(emotion, diary_date);
CREATE INDEX IF NOT EXISTS idx_analysis_date ON sentiment_analysis(diary_date);
`

// Column formats. Both sort lexicographically in time order.
const (
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

const selectColumns = `SELECT analysis_id, diary_id, emotion, confidence, source, diary_date, analyzed_at
	 FROM sentiment_analysis`

// Common errors.
var (
	ErrNotFound = errors.New("analysis not found")
	ErrInvalid  = errors.New("invalid analysis")
)

// Analysis is the stored emotion of one diary.
type Analysis struct {
	ID         string
	DiaryID    string
	Emotion    emotion.Label
	Confidence float64
	Source     classifier.Source
	DiaryDate  time.Time // day precision, UTC
	AnalyzedAt time.Time
}

// Store manages the sentiment_analysis table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New creates the tables on db and returns a Store using it.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert stores a, replacing any analysis of the same diary.
// ID and AnalyzedAt are assigned by the store; the stored row is returned.
func (s *Store) Upsert(a Analysis) (Analysis, error) {
	if err := validate(a); err != nil {
		return Analysis{}, err
	}
	if a.DiaryDate.IsZero() {
		a.DiaryDate = s.now()
	}

	_, err := s.db.Exec(
		`INSERT INTO sentiment_analysis (analysis_id, diary_id, emotion, confidence, source, diary_date, analyzed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(diary_id) DO UPDATE SET
		   emotion = excluded.emotion,
		   confidence = excluded.confidence,
		   source = excluded.source,
		   diary_date = excluded.diary_date,
		   analyzed_at = excluded.analyzed_at`,
		uuid.New().String(), a.DiaryID, string(a.Emotion), a.Confidence, string(a.Source),
		a.DiaryDate.UTC().Format(dateLayout), s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return Analysis{}, fmt.Errorf("upsert analysis %s: %w", a.DiaryID, err)
	}
	return s.FindByDiaryID(a.DiaryID)
}

func validate(a Analysis) error {
	switch {
	case strings.TrimSpace(a.DiaryID) == "":
		return fmt.Errorf("%w: empty diary id", ErrInvalid)
	case !a.Emotion.Valid():
		return fmt.Errorf("%w: unknown emotion %q", ErrInvalid, a.Emotion)
	case math.IsNaN(a.Confidence) || a.Confidence < 0 || a.Confidence > 1:
		return fmt.Errorf("%w: confidence %v outside [0, 1]", ErrInvalid, a.Confidence)
	}
	return nil
}

// Record implements classifier.Recorder.
//
// A Recorder is not told the diary's date, so the analysis is filed under
// the current UTC day and FindByMonth and CountByMonth group it by when it
// ran. Use RecordOn when the diary date is known.
func (s *Store) Record(diaryID string, r classifier.Result) error {
	return s.RecordOn(diaryID, time.Time{}, r)
}

// RecordOn stores r as the analysis of a diary written on diaryDate.
// A zero diaryDate means today.
func (s *Store) RecordOn(diaryID string, diaryDate time.Time, r classifier.Result) error {
	_, err := s.Upsert(Analysis{
		DiaryID:    diaryID,
		Emotion:    r.Label,
		Confidence: r.Confidence,
		Source:     r.Source,
		DiaryDate:  diaryDate,
	})
	return err
}

// FindByDiaryID returns the analysis of a diary, or ErrNotFound.
func (s *Store) FindByDiaryID(diaryID string) (Analysis, error) {
	row := s.db.QueryRow(selectColumns+` WHERE diary_id = ?`, diaryID)
	a, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, fmt.Errorf("%w: diary %s", ErrNotFound, diaryID)
	}
	return a, err
}

// FindByEmotion returns the analyses labeled e, newest diary date first.
func (s *Store) FindByEmotion(e emotion.Label) ([]Analysis, error) {
	return s.query(selectColumns+`
		 WHERE emotion = ?
		 ORDER BY diary_date DESC, analyzed_at DESC`,
		string(e),
	)
}

// FindByMonth returns the analyses of diaries dated in the given month,
// newest diary date first.
func (s *Store) FindByMonth(year int, month time.Month) ([]Analysis, error) {
	from, to := monthRange(year, month)
	return s.query(selectColumns+`
		 WHERE diary_date >= ? AND diary_date < ?
		 ORDER BY diary_date DESC, analyzed_at DESC`,
		from, to,
	)
}

// CountByMonth returns per-emotion counts for diaries dated in the given
// month. Emotions without analyses are absent.
func (s *Store) CountByMonth(year int, month time.Month) (map[emotion.Label]int, error) {
	from, to := monthRange(year, month)
	rows, err := s.db.Query(
		`SELECT emotion, COUNT(*) FROM sentiment_analysis
		 WHERE diary_date >= ? AND diary_date < ?
		 GROUP BY emotion`,
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[emotion.Label]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		counts[emotion.Label(label)] = n
	}
	return counts, rows.Err()
}

// DeleteByDiaryID removes the analysis of a diary. Deleting a missing
// analysis is not an error.
func (s *Store) DeleteByDiaryID(diaryID string) error {
	_, err := s.db.Exec(`DELETE FROM sentiment_analysis WHERE diary_id = ?`, diaryID)
	return err
}

func monthRange(year int, month time.Month) (from, to string) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start.Format(dateLayout), start.AddDate(0, 1, 0).Format(dateLayout)
}

func (s *Store) query(q string, args ...any) ([]Analysis, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (Analysis, error) {
	var a Analysis
	var label, source, diaryDate, analyzedAt string
	if err := row.Scan(&a.ID, &a.DiaryID, &label, &a.Confidence, &source, &diaryDate, &analyzedAt); err != nil {
		return Analysis{}, err
	}
	a.Emotion = emotion.Label(label)
	a.Source = classifier.Source(source)
	var err error
	if a.DiaryDate, err = time.Parse(dateLayout, diaryDate); err != nil {
		return Analysis{}, fmt.Errorf("analysis %s: diary_date: %w", a.ID, err)
	}
	if a.AnalyzedAt, err = time.Parse(timeLayout, analyzedAt); err != nil {
		return Analysis{}, fmt.Errorf("analysis %s: analyzed_at: %w", a.ID, err)
	}
	return a, nil
}
