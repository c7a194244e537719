// Package ingest runs the book ingestion pipeline: fetch a catalog entry,
// isolate its stories, split and score sentences, translate them and
// persist the result.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goreader/internal/catalog"
	"github.com/hyperifyio/goreader/internal/difficulty"
	"github.com/hyperifyio/goreader/internal/extract"
	"github.com/hyperifyio/goreader/internal/fetch"
	"github.com/hyperifyio/goreader/internal/gutenberg"
	"github.com/hyperifyio/goreader/internal/segment"
	"github.com/hyperifyio/goreader/internal/store"
	"github.com/hyperifyio/goreader/internal/translate"
)

// ErrNoStories is returned when none of a book's story titles were found in
// the source text.
var ErrNoStories = errors.New("no stories extracted")

// Fetcher retrieves a source document and its content type.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, string, error)
}

// Job holds the collaborators of one ingestion run. Store may be nil for
// Plan.
type Job struct {
	Fetcher    Fetcher
	HTML       extract.Extractor
	Translator *translate.Batcher
	Store      store.Store
	Policy     difficulty.Policy
	Logger     *zerolog.Logger
	Now        func() time.Time
}

func (j *Job) logger() *zerolog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return &log.Logger
}

func (j *Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

// policy falls back to the built-in table when none was configured.
func (j *Job) policy() difficulty.Policy {
	if len(j.Policy.Levels) == 0 {
		return difficulty.DefaultPolicy()
	}
	return j.Policy
}

func (j *Job) batcher() *translate.Batcher {
	if j.Translator != nil {
		return j.Translator
	}
	return &translate.Batcher{Translator: translate.Stub{}, Logger: j.Logger}
}

// ScoredSentence is a sentence ready for persistence.
type ScoredSentence struct {
	Position  int
	TextEn    string
	TextJa    string
	Score     float64
	WordCount int
	Level     difficulty.Level
}

// PlannedChapter is one extracted story with its scored sentences.
type PlannedChapter struct {
	Number    int
	Story     gutenberg.Story
	Sentences []ScoredSentence
	WordCount int
}

// Plan is everything Run computes before translating and writing.
type Plan struct {
	Book        catalog.Book
	ContentType string
	Chapters    []PlannedChapter
	Warnings    []gutenberg.Warning
}

// Plan fetches the book and prepares its chapters without side effects.
func (j *Job) Plan(ctx context.Context, book catalog.Book) (*Plan, error) {
	logger := j.logger()
	if j.Fetcher == nil {
		return nil, errors.New("ingest: no fetcher configured")
	}

	start := time.Now()
	body, contentType, err := j.Fetcher.Get(ctx, book.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", book.URL, err)
	}
	logger.Info().Str("url", book.URL).Str("content_type", contentType).Int("bytes", len(body)).
		Dur("took", time.Since(start)).Msg("fetched source")

	text := string(body)
	if fetch.IsHTML(contentType) {
		ex := j.HTML
		if ex == nil {
			ex = extract.BookExtractor{}
		}
		text = ex.Extract(body).Text
	}

	stories, warnings := gutenberg.ExtractStories(gutenberg.StripBoilerplate(gutenberg.Normalize(text)), book.Stories, book.ExtractOptions())
	for _, w := range warnings {
		logger.Warn().Str("book", book.TitleEn).Int("index", w.Index).Str("title", w.Title).Str("reason", w.Reason).Msg("story skipped")
	}
	if len(stories) == 0 {
		return nil, fmt.Errorf("%s: %w", book.TitleEn, ErrNoStories)
	}

	policy := j.policy()
	p := &Plan{Book: book, ContentType: contentType, Warnings: warnings}
	for i, st := range stories {
		sentences := segment.Split(st.Body)
		ch := PlannedChapter{Number: i + 1, Story: st, WordCount: segment.TotalWords(sentences)}
		for k, sentence := range sentences {
			score := difficulty.Score(sentence)
			ch.Sentences = append(ch.Sentences, ScoredSentence{
				Position:  k + 1,
				TextEn:    sentence,
				Score:     score,
				WordCount: segment.WordCount(sentence),
				Level:     policy.Classify(score),
			})
		}
		if len(ch.Sentences) == 0 {
			logger.Warn().Str("book", book.TitleEn).Str("chapter", st.TitleEn).Msg("chapter has no sentences")
		}
		logger.Debug().Int("chapter", ch.Number).Str("title", st.TitleEn).Int("sentences", len(ch.Sentences)).
			Int("words", ch.WordCount).Msg("segmented chapter")
		p.Chapters = append(p.Chapters, ch)
	}
	return p, nil
}

// Translate fills TextJa of every sentence, sending them to the batcher as
// one ordered list.
func (j *Job) Translate(ctx context.Context, p *Plan) error {
	var all []string
	for _, ch := range p.Chapters {
		for _, s := range ch.Sentences {
			all = append(all, s.TextEn)
		}
	}
	if len(all) == 0 {
		return nil
	}
	j.logger().Info().Str("book", p.Book.TitleEn).Int("sentences", len(all)).Msg("translating")
	out, err := j.batcher().Translate(ctx, all)
	if err != nil {
		return fmt.Errorf("translate %s: %w", p.Book.TitleEn, err)
	}
	offset := 0
	for ci := range p.Chapters {
		ss := p.Chapters[ci].Sentences
		for si := range ss {
			ss[si].TextJa = out[offset]
			offset++
		}
	}
	return nil
}

// Run ingests one book. Earlier copies stored under the book title or any
// story title are removed only after fetching and translating succeeded, in
// the same transaction that writes the new copy.
func (j *Job) Run(ctx context.Context, book catalog.Book) (Result, error) {
	if j.Store == nil {
		return Result{}, errors.New("ingest: no store configured")
	}
	started := j.now()
	p, err := j.Plan(ctx, book)
	if err != nil {
		return Result{}, err
	}
	if err := j.Translate(ctx, p); err != nil {
		return Result{}, err
	}

	res := p.Result(j.policy())
	res.StartedAt = started

	var id uuid.UUID
	err = j.Store.WithTx(ctx, func(tx store.Store) error {
		for _, title := range book.TitlesToReplace() {
			n, err := tx.DeleteBooksByTitle(ctx, title)
			if err != nil {
				return fmt.Errorf("delete existing %q: %w", title, err)
			}
			if n > 0 {
				j.logger().Info().Str("title", title).Int64("books", n).Msg("removed existing copy")
			}
			res.Replaced += n
		}
		id, err = persist(ctx, tx, p, res)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	res.BookID = id
	res.FinishedAt = j.now()
	j.logger().Info().Str("book", book.TitleEn).Str("id", id.String()).Int("chapters", len(res.Chapters)).
		Int("sentences", res.TotalSentences).Int("words", res.TotalWords).Msg("ingested book")
	return res, nil
}

func persist(ctx context.Context, st store.Store, p *Plan, res Result) (uuid.UUID, error) {
	book := p.Book
	b := &store.Book{
		TitleEn:        book.TitleEn,
		TitleJa:        book.TitleJa,
		AuthorEn:       book.AuthorEn,
		AuthorJa:       book.AuthorJa,
		DescriptionJa:  book.DescriptionJa,
		CEFR:           res.BookLevel,
		GenreTags:      book.GenreTags,
		TotalChapters:  len(p.Chapters),
		TotalSentences: res.TotalSentences,
		TotalWords:     res.TotalWords,
		LicenseType:    book.License,
		SourceURL:      book.URL,
		PolicyVersion:  res.PolicyVersion,
	}
	if b.LicenseType == "" {
		b.LicenseType = catalog.LicensePublicDomain
	}
	if err := st.InsertBook(ctx, b); err != nil {
		return uuid.Nil, fmt.Errorf("insert book %q: %w", book.TitleEn, err)
	}

	for _, ch := range p.Chapters {
		c := &store.Chapter{
			BookID:        b.ID,
			ChapterNumber: ch.Number,
			TitleEn:       ch.Story.TitleEn,
			TitleJa:       ch.Story.TitleJa,
			SentenceCount: len(ch.Sentences),
			WordCount:     ch.WordCount,
		}
		if err := st.InsertChapter(ctx, c); err != nil {
			return uuid.Nil, fmt.Errorf("insert chapter %d: %w", ch.Number, err)
		}
		rows := make([]store.Sentence, len(ch.Sentences))
		for i, s := range ch.Sentences {
			rows[i] = store.Sentence{
				ChapterID:       c.ID,
				Position:        s.Position,
				TextEn:          s.TextEn,
				TextJa:          s.TextJa,
				DifficultyScore: s.Score,
				WordCount:       s.WordCount,
				CEFR:            s.Level,
			}
		}
		if err := st.InsertSentences(ctx, rows); err != nil {
			return uuid.Nil, fmt.Errorf("insert sentences of chapter %d: %w", ch.Number, err)
		}
	}
	return b.ID, nil
}

// Backfill retranslates sentences of a stored book whose Japanese text is
// empty or still the stub placeholder, and reports how many were updated.
func (j *Job) Backfill(ctx context.Context, bookID uuid.UUID) (int, error) {
	if j.Store == nil {
		return 0, errors.New("ingest: no store configured")
	}
	chapters, err := j.Store.ListChapters(ctx, bookID)
	if err != nil {
		return 0, fmt.Errorf("list chapters: %w", err)
	}
	var pending []store.Sentence
	for _, c := range chapters {
		ss, err := j.Store.ListSentences(ctx, c.ID)
		if err != nil {
			return 0, fmt.Errorf("list sentences of chapter %d: %w", c.ChapterNumber, err)
		}
		for _, s := range ss {
			if s.TextJa == "" || strings.HasPrefix(s.TextJa, translate.UntranslatedPrefix) {
				pending = append(pending, s)
			}
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	texts := make([]string, len(pending))
	for i, s := range pending {
		texts[i] = s.TextEn
	}
	out, err := j.batcher().Translate(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("backfill: %w", err)
	}
	for i, s := range pending {
		if err := j.Store.UpdateSentenceTranslation(ctx, s.ID, out[i]); err != nil {
			return i, fmt.Errorf("update sentence %s: %w", s.ID, err)
		}
	}
	j.logger().Info().Str("book_id", bookID.String()).Int("sentences", len(pending)).Msg("backfilled translations")
	return len(pending), nil
}

// ChapterDigest is the hex sha256 of a chapter body.
func ChapterDigest(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
