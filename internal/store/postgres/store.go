// Package postgres implements store.Store on PostgreSQL with a pgx pool and
// squirrel-built statements.
package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hyperifyio/goreader/internal/difficulty"
	"github.com/hyperifyio/goreader/internal/store"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var (
	bookColumns = []string{
		"id", "title_en", "title_ja", "author_en", "author_ja", "description_ja",
		"cefr_level", "genre_tags", "total_chapters", "total_sentences", "total_words",
		"license_type", "source_url", "policy_version", "created_at",
	}
	chapterColumns = []string{
		"id", "book_id", "chapter_number", "title_en", "title_ja", "sentence_count", "word_count",
	}
	sentenceColumns = []string{
		"id", "chapter_id", "position", "text_en", "text_ja",
		"difficulty_score", "word_count", "cefr_estimate",
	}
	wordColumns = []string{"id", "word", "pos", "meaning_ja", "pronunciation", "cefr_level"}
)

// Store runs statements on q: the pool, or inside WithTx the open
// transaction, in which case tx is set.
type Store struct {
	db  DB
	q   Querier
	tx  pgx.Tx
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New wraps an open pool. The schema must already be migrated.
func New(db DB) *Store {
	return &Store{db: db, q: db, now: time.Now}
}

// Open connects, migrates and returns a ready store.
func Open(ctx context.Context, cfg PoolConfig) (*Store, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return New(pool), nil
}

func (s *Store) Close() error {
	if s.tx == nil {
		s.db.Close()
	}
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return s.inTx(ctx, func(tx *Store) error { return fn(tx) })
}

func (s *Store) inTx(ctx context.Context, fn func(*Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()
	if err := fn(&Store{db: s.db, q: tx, tx: tx, now: s.now}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) DeleteBooksByTitle(ctx context.Context, title string) (int64, error) {
	query, args, err := psql.Delete("books").Where(sq.Eq{"title_en": title}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete books: %w", err)
	}
	tag, err := s.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, mapError(err, "books titled", title)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) InsertBook(ctx context.Context, b *store.Book) error {
	b.Prepare(s.now())
	query, args, err := psql.Insert("books").Columns(bookColumns...).Values(
		b.ID, b.TitleEn, b.TitleJa, b.AuthorEn, b.AuthorJa, b.DescriptionJa,
		string(b.CEFR), b.GenreTags, b.TotalChapters, b.TotalSentences, b.TotalWords,
		b.LicenseType, b.SourceURL, b.PolicyVersion, b.CreatedAt,
	).ToSql()
	if err != nil {
		return fmt.Errorf("build insert book: %w", err)
	}
	if _, err := s.q.Exec(ctx, query, args...); err != nil {
		return mapError(err, "book", b.ID)
	}
	return nil
}

func (s *Store) ListBooks(ctx context.Context) ([]store.Book, error) {
	query, args, err := psql.Select(bookColumns...).From("books").OrderBy("created_at", "title_en").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list books: %w", err)
	}
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	out := []store.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) GetBook(ctx context.Context, id uuid.UUID) (store.Book, error) {
	query, args, err := psql.Select(bookColumns...).From("books").Where(sq.Eq{"id": id.String()}).ToSql()
	if err != nil {
		return store.Book{}, fmt.Errorf("build get book: %w", err)
	}
	b, err := scanBook(s.q.QueryRow(ctx, query, args...))
	if err != nil {
		return store.Book{}, mapError(err, "book", id)
	}
	return b, nil
}

func scanBook(row pgx.Row) (store.Book, error) {
	var (
		b     store.Book
		level string
	)
	err := row.Scan(&b.ID, &b.TitleEn, &b.TitleJa, &b.AuthorEn, &b.AuthorJa, &b.DescriptionJa,
		&level, &b.GenreTags, &b.TotalChapters, &b.TotalSentences, &b.TotalWords,
		&b.LicenseType, &b.SourceURL, &b.PolicyVersion, &b.CreatedAt)
	if err != nil {
		return store.Book{}, err
	}
	b.CEFR = difficulty.Level(level)
	if b.GenreTags == nil {
		b.GenreTags = []string{}
	}
	return b, nil
}

func (s *Store) InsertChapter(ctx context.Context, c *store.Chapter) error {
	c.Prepare()
	query, args, err := psql.Insert("chapters").Columns(chapterColumns...).Values(
		c.ID, c.BookID, c.ChapterNumber, c.TitleEn, c.TitleJa, c.SentenceCount, c.WordCount,
	).ToSql()
	if err != nil {
		return fmt.Errorf("build insert chapter: %w", err)
	}
	if _, err := s.q.Exec(ctx, query, args...); err != nil {
		return mapError(err, "chapter", c.ID)
	}
	return nil
}

func (s *Store) ListChapters(ctx context.Context, bookID uuid.UUID) ([]store.Chapter, error) {
	query, args, err := psql.Select(chapterColumns...).From("chapters").
		Where(sq.Eq{"book_id": bookID.String()}).OrderBy("chapter_number").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list chapters: %w", err)
	}
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	out := []store.Chapter{}
	for rows.Next() {
		c, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetChapter(ctx context.Context, id uuid.UUID) (store.Chapter, error) {
	query, args, err := psql.Select(chapterColumns...).From("chapters").Where(sq.Eq{"id": id.String()}).ToSql()
	if err != nil {
		return store.Chapter{}, fmt.Errorf("build get chapter: %w", err)
	}
	c, err := scanChapter(s.q.QueryRow(ctx, query, args...))
	if err != nil {
		return store.Chapter{}, mapError(err, "chapter", id)
	}
	return c, nil
}

func scanChapter(row pgx.Row) (store.Chapter, error) {
	var c store.Chapter
	err := row.Scan(&c.ID, &c.BookID, &c.ChapterNumber, &c.TitleEn, &c.TitleJa, &c.SentenceCount, &c.WordCount)
	return c, err
}

// InsertSentences writes all rows in one transaction, one multi-row INSERT
// per store.InsertBatchSize sentences.
func (s *Store) InsertSentences(ctx context.Context, ss []store.Sentence) error {
	if len(ss) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *Store) error { return tx.insertSentences(ctx, ss) })
}

func (s *Store) insertSentences(ctx context.Context, ss []store.Sentence) error {
	for _, span := range store.Chunks(len(ss), store.InsertBatchSize) {
		ins := psql.Insert("sentences").Columns(sentenceColumns...)
		for i := span[0]; i < span[1]; i++ {
			st := &ss[i]
			st.Prepare()
			ins = ins.Values(st.ID, st.ChapterID, st.Position, st.TextEn, st.TextJa,
				st.DifficultyScore, st.WordCount, string(st.CEFR))
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("build insert sentences: %w", err)
		}
		if _, err := s.q.Exec(ctx, query, args...); err != nil {
			return mapError(err, "sentences", fmt.Sprintf("%d-%d", span[0]+1, span[1]))
		}
	}
	return nil
}

func (s *Store) ListSentences(ctx context.Context, chapterID uuid.UUID) ([]store.Sentence, error) {
	query, args, err := psql.Select(sentenceColumns...).From("sentences").
		Where(sq.Eq{"chapter_id": chapterID.String()}).OrderBy("position").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sentences: %w", err)
	}
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sentences: %w", err)
	}
	defer rows.Close()

	out := []store.Sentence{}
	for rows.Next() {
		st, err := scanSentence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sentence: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) GetSentence(ctx context.Context, id uuid.UUID) (store.Sentence, error) {
	query, args, err := psql.Select(sentenceColumns...).From("sentences").Where(sq.Eq{"id": id.String()}).ToSql()
	if err != nil {
		return store.Sentence{}, fmt.Errorf("build get sentence: %w", err)
	}
	st, err := scanSentence(s.q.QueryRow(ctx, query, args...))
	if err != nil {
		return store.Sentence{}, mapError(err, "sentence", id)
	}
	return st, nil
}

func (s *Store) UpdateSentenceTranslation(ctx context.Context, id uuid.UUID, textJa string) error {
	query, args, err := psql.Update("sentences").Set("text_ja", textJa).Where(sq.Eq{"id": id.String()}).ToSql()
	if err != nil {
		return fmt.Errorf("build update sentence: %w", err)
	}
	tag, err := s.q.Exec(ctx, query, args...)
	if err != nil {
		return mapError(err, "sentence", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sentence %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func scanSentence(row pgx.Row) (store.Sentence, error) {
	var (
		st    store.Sentence
		level string
	)
	if err := row.Scan(&st.ID, &st.ChapterID, &st.Position, &st.TextEn, &st.TextJa,
		&st.DifficultyScore, &st.WordCount, &level); err != nil {
		return store.Sentence{}, err
	}
	st.CEFR = difficulty.Level(level)
	return st, nil
}

func (s *Store) GetWordEntry(ctx context.Context, word string) (store.WordEntry, error) {
	query, args, err := psql.Select(wordColumns...).From("word_entries").Where(sq.Eq{"word": word}).ToSql()
	if err != nil {
		return store.WordEntry{}, fmt.Errorf("build get word: %w", err)
	}
	var (
		e     store.WordEntry
		level *string
	)
	err = s.q.QueryRow(ctx, query, args...).Scan(&e.ID, &e.Word, &e.POS, &e.MeaningJa, &e.Pronunciation, &level)
	if err != nil {
		return store.WordEntry{}, mapError(err, "word", word)
	}
	if level != nil {
		l := difficulty.Level(*level)
		e.CEFR = &l
	}
	return e, nil
}

func (s *Store) InsertWordEntry(ctx context.Context, e *store.WordEntry) error {
	e.Prepare()
	var level *string
	if e.CEFR != nil {
		l := string(*e.CEFR)
		level = &l
	}
	query, args, err := psql.Insert("word_entries").Columns(wordColumns...).
		Values(e.ID, e.Word, e.POS, e.MeaningJa, e.Pronunciation, level).ToSql()
	if err != nil {
		return fmt.Errorf("build insert word: %w", err)
	}
	if _, err := s.q.Exec(ctx, query, args...); err != nil {
		return mapError(err, "word", e.Word)
	}
	return nil
}

func (s *Store) GetAIExplanation(ctx context.Context, word string, sentenceID uuid.UUID) (store.AIExplanation, error) {
	query, args, err := psql.Select("response_ja", "created_at").From("ai_explanations").
		Where(sq.Eq{"word": word, "sentence_id": sentenceID.String()}).ToSql()
	if err != nil {
		return store.AIExplanation{}, fmt.Errorf("build get explanation: %w", err)
	}
	e := store.AIExplanation{Word: word, SentenceID: sentenceID}
	if err := s.q.QueryRow(ctx, query, args...).Scan(&e.ResponseJa, &e.CreatedAt); err != nil {
		return store.AIExplanation{}, mapError(err, "explanation", word)
	}
	return e, nil
}

// SaveAIExplanation replaces any earlier explanation for the pair.
func (s *Store) SaveAIExplanation(ctx context.Context, e store.AIExplanation) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	query, args, err := psql.Insert("ai_explanations").
		Columns("word", "sentence_id", "response_ja", "created_at").
		Values(e.Word, e.SentenceID, e.ResponseJa, e.CreatedAt).
		Suffix("ON CONFLICT (word, sentence_id) DO UPDATE SET response_ja = EXCLUDED.response_ja, created_at = EXCLUDED.created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build save explanation: %w", err)
	}
	if _, err := s.q.Exec(ctx, query, args...); err != nil {
		return mapError(err, "explanation", e.Word)
	}
	return nil
}
