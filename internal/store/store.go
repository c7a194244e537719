// Package store defines the persisted records of the reader and the Store
// interface implemented by the sqlite, postgres and memory backends.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hyperifyio/goreader/internal/difficulty"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// InsertBatchSize is the number of sentences written per statement.
const InsertBatchSize = 50

type Book struct {
	ID             uuid.UUID        `json:"id"`
	TitleEn        string           `json:"title_en"`
	TitleJa        string           `json:"title_ja"`
	AuthorEn       string           `json:"author_en"`
	AuthorJa       string           `json:"author_ja"`
	DescriptionJa  string           `json:"description_ja"`
	CEFR           difficulty.Level `json:"cefr_level"`
	GenreTags      []string         `json:"genre_tags"`
	TotalChapters  int              `json:"total_chapters"`
	TotalSentences int              `json:"total_sentences"`
	TotalWords     int              `json:"total_words"`
	LicenseType    string           `json:"license_type"`
	SourceURL      string           `json:"source_url"`
	PolicyVersion  int              `json:"policy_version"`
	CreatedAt      time.Time        `json:"created_at"`
}

type Chapter struct {
	ID            uuid.UUID `json:"id"`
	BookID        uuid.UUID `json:"book_id"`
	ChapterNumber int       `json:"chapter_number"`
	TitleEn       string    `json:"title_en"`
	TitleJa       string    `json:"title_ja"`
	SentenceCount int       `json:"sentence_count"`
	WordCount     int       `json:"word_count"`
}

// Sentence is immutable after ingestion except for TextJa.
type Sentence struct {
	ID              uuid.UUID        `json:"id"`
	ChapterID       uuid.UUID        `json:"chapter_id"`
	Position        int              `json:"position"`
	TextEn          string           `json:"text_en"`
	TextJa          string           `json:"text_ja"`
	DifficultyScore float64          `json:"difficulty_score"`
	WordCount       int              `json:"word_count"`
	CEFR            difficulty.Level `json:"cefr_estimate"`
}

type WordEntry struct {
	ID            uuid.UUID         `json:"id"`
	Word          string            `json:"word"`
	POS           string            `json:"pos"`
	MeaningJa     string            `json:"meaning_ja"`
	Pronunciation string            `json:"pronunciation"`
	CEFR          *difficulty.Level `json:"cefr_level"`
}

// AIExplanation caches a contextual explanation of a word inside one
// sentence.
type AIExplanation struct {
	Word       string    `json:"word"`
	SentenceID uuid.UUID `json:"sentence_id"`
	ResponseJa string    `json:"response_ja"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists books and dictionary data. Get methods return ErrNotFound
// for missing rows; InsertWordEntry returns ErrConflict for a duplicate word.
// Insert methods assign IDs (and CreatedAt) when they are zero.
type Store interface {
	// DeleteBooksByTitle removes every book whose title_en equals title,
	// together with its chapters and sentences, and reports how many books
	// were removed.
	DeleteBooksByTitle(ctx context.Context, title string) (int64, error)
	InsertBook(ctx context.Context, b *Book) error
	InsertChapter(ctx context.Context, c *Chapter) error
	// InsertSentences writes sentences in groups of InsertBatchSize inside
	// one transaction.
	InsertSentences(ctx context.Context, ss []Sentence) error

	ListBooks(ctx context.Context) ([]Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (Book, error)
	ListChapters(ctx context.Context, bookID uuid.UUID) ([]Chapter, error)
	GetChapter(ctx context.Context, id uuid.UUID) (Chapter, error)
	ListSentences(ctx context.Context, chapterID uuid.UUID) ([]Sentence, error)
	GetSentence(ctx context.Context, id uuid.UUID) (Sentence, error)
	UpdateSentenceTranslation(ctx context.Context, id uuid.UUID, textJa string) error

	GetWordEntry(ctx context.Context, word string) (WordEntry, error)
	InsertWordEntry(ctx context.Context, e *WordEntry) error
	GetAIExplanation(ctx context.Context, word string, sentenceID uuid.UUID) (AIExplanation, error)
	SaveAIExplanation(ctx context.Context, e AIExplanation) error

	// WithTx runs fn against a Store whose writes are committed together
	// when fn returns nil and discarded otherwise. Calling WithTx on that
	// Store runs fn inside the same transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	Close() error
}

// Chunks splits n items into [start, end) ranges of at most size.
func Chunks(n, size int) [][2]int {
	if size <= 0 {
		size = InsertBatchSize
	}
	var out [][2]int
	for i := 0; i < n; i += size {
		end := i + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{i, end})
	}
	return out
}

// Prepare assigns missing IDs and timestamps before an insert.
func (b *Book) Prepare(now time.Time) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now.UTC()
	}
	if b.GenreTags == nil {
		b.GenreTags = []string{}
	}
}

func (c *Chapter) Prepare() {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
}

func (s *Sentence) Prepare() {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
}

func (e *WordEntry) Prepare() {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
}
