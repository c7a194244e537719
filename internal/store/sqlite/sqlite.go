// Package sqlite implements store.Store on a local SQLite file using the
// pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/hyperifyio/goreader/internal/difficulty"
	"github.com/hyperifyio/goreader/internal/store"
	"github.com/hyperifyio/goreader/internal/store/sqlite/migrations"
)

const timeLayout = time.RFC3339Nano

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

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

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a store.Store backed by one SQLite database file. Inside WithTx
// q is the open transaction and tx is set.
type Store struct {
	db   *sql.DB
	q    querier
	tx   *sql.Tx
	path string
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open opens (creating when needed) the database at path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	// WAL for concurrent readers; foreign_keys is per connection so it goes
	// in the DSN.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, q: db, path: path, now: time.Now}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.tx != nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return s.inTx(ctx, func(tx *Store) error { return fn(tx) })
}

func (s *Store) inTx(ctx context.Context, fn func(*Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&Store{db: s.db, q: tx, tx: tx, path: s.path, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs every NNN_name.up.sql newer than the recorded version.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}
	return nil
}

// ==================== Books ====================

func (s *Store) DeleteBooksByTitle(ctx context.Context, title string) (int64, error) {
	query, args, err := psql.Delete("books").Where(sq.Eq{"title_en": title}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete books: %w", err)
	}
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete books: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) InsertBook(ctx context.Context, b *store.Book) error {
	b.Prepare(s.now())
	tags, err := json.Marshal(b.GenreTags)
	if err != nil {
		return fmt.Errorf("marshalling genre tags: %w", err)
	}
	query, args, err := psql.Insert("books").Columns(bookColumns...).Values(
		b.ID.String(), b.TitleEn, b.TitleJa, b.AuthorEn, b.AuthorJa, b.DescriptionJa,
		string(b.CEFR), string(tags), b.TotalChapters, b.TotalSentences, b.TotalWords,
		b.LicenseType, b.SourceURL, b.PolicyVersion, b.CreatedAt.UTC().Format(timeLayout),
	).ToSql()
	if err != nil {
		return fmt.Errorf("build insert book: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert book: %w", mapError(err))
	}
	return nil
}

func (s *Store) ListBooks(ctx context.Context) ([]store.Book, error) {
	query, args, err := psql.Select(bookColumns...).From("books").OrderBy("created_at", "title_en").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list books: %w", err)
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	out := []store.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
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
	b, err := scanBook(s.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return store.Book{}, fmt.Errorf("get book %s: %w", id, mapError(err))
	}
	return b, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBook(row scanner) (store.Book, error) {
	var (
		b                   store.Book
		id, level, tags, at string
	)
	err := row.Scan(&id, &b.TitleEn, &b.TitleJa, &b.AuthorEn, &b.AuthorJa, &b.DescriptionJa,
		&level, &tags, &b.TotalChapters, &b.TotalSentences, &b.TotalWords,
		&b.LicenseType, &b.SourceURL, &b.PolicyVersion, &at)
	if err != nil {
		return store.Book{}, err
	}
	if b.ID, err = uuid.Parse(id); err != nil {
		return store.Book{}, fmt.Errorf("parsing book id: %w", err)
	}
	b.CEFR = difficulty.Level(level)
	if err := json.Unmarshal([]byte(tags), &b.GenreTags); err != nil {
		return store.Book{}, fmt.Errorf("unmarshalling genre tags: %w", err)
	}
	if b.GenreTags == nil {
		b.GenreTags = []string{}
	}
	if b.CreatedAt, err = time.Parse(timeLayout, at); err != nil {
		return store.Book{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return b, nil
}

// ==================== Chapters ====================

func (s *Store) InsertChapter(ctx context.Context, c *store.Chapter) error {
	c.Prepare()
	query, args, err := psql.Insert("chapters").Columns(chapterColumns...).Values(
		c.ID.String(), c.BookID.String(), c.ChapterNumber, c.TitleEn, c.TitleJa, c.SentenceCount, c.WordCount,
	).ToSql()
	if err != nil {
		return fmt.Errorf("build insert chapter: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert chapter: %w", mapError(err))
	}
	return nil
}

func (s *Store) ListChapters(ctx context.Context, bookID uuid.UUID) ([]store.Chapter, error) {
	query, args, err := psql.Select(chapterColumns...).From("chapters").
		Where(sq.Eq{"book_id": bookID.String()}).OrderBy("chapter_number").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list chapters: %w", err)
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	out := []store.Chapter{}
	for rows.Next() {
		c, err := scanChapter(rows)
		if err != nil {
			return nil, err
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
	c, err := scanChapter(s.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return store.Chapter{}, fmt.Errorf("get chapter %s: %w", id, mapError(err))
	}
	return c, nil
}

func scanChapter(row scanner) (store.Chapter, error) {
	var (
		c          store.Chapter
		id, bookID string
	)
	if err := row.Scan(&id, &bookID, &c.ChapterNumber, &c.TitleEn, &c.TitleJa, &c.SentenceCount, &c.WordCount); err != nil {
		return store.Chapter{}, err
	}
	var err error
	if c.ID, err = uuid.Parse(id); err != nil {
		return store.Chapter{}, fmt.Errorf("parsing chapter id: %w", err)
	}
	if c.BookID, err = uuid.Parse(bookID); err != nil {
		return store.Chapter{}, fmt.Errorf("parsing book id: %w", err)
	}
	return c, nil
}

// ==================== Sentences ====================

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
			ins = ins.Values(st.ID.String(), st.ChapterID.String(), st.Position, st.TextEn, st.TextJa,
				st.DifficultyScore, st.WordCount, string(st.CEFR))
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("build insert sentences: %w", err)
		}
		if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert sentences %d-%d: %w", span[0]+1, span[1], mapError(err))
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
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sentences: %w", err)
	}
	defer rows.Close()

	out := []store.Sentence{}
	for rows.Next() {
		st, err := scanSentence(rows)
		if err != nil {
			return nil, err
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
	st, err := scanSentence(s.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return store.Sentence{}, fmt.Errorf("get sentence %s: %w", id, mapError(err))
	}
	return st, nil
}

func (s *Store) UpdateSentenceTranslation(ctx context.Context, id uuid.UUID, textJa string) error {
	query, args, err := psql.Update("sentences").Set("text_ja", textJa).Where(sq.Eq{"id": id.String()}).ToSql()
	if err != nil {
		return fmt.Errorf("build update sentence: %w", err)
	}
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update sentence: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update sentence %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func scanSentence(row scanner) (store.Sentence, error) {
	var (
		st                   store.Sentence
		id, chapterID, level string
	)
	if err := row.Scan(&id, &chapterID, &st.Position, &st.TextEn, &st.TextJa,
		&st.DifficultyScore, &st.WordCount, &level); err != nil {
		return store.Sentence{}, err
	}
	var err error
	if st.ID, err = uuid.Parse(id); err != nil {
		return store.Sentence{}, fmt.Errorf("parsing sentence id: %w", err)
	}
	if st.ChapterID, err = uuid.Parse(chapterID); err != nil {
		return store.Sentence{}, fmt.Errorf("parsing chapter id: %w", err)
	}
	st.CEFR = difficulty.Level(level)
	return st, nil
}

// ==================== Dictionary ====================

func (s *Store) GetWordEntry(ctx context.Context, word string) (store.WordEntry, error) {
	query, args, err := psql.Select(wordColumns...).From("word_entries").Where(sq.Eq{"word": word}).ToSql()
	if err != nil {
		return store.WordEntry{}, fmt.Errorf("build get word: %w", err)
	}
	var (
		e     store.WordEntry
		id    string
		level sql.NullString
	)
	err = s.q.QueryRowContext(ctx, query, args...).Scan(&id, &e.Word, &e.POS, &e.MeaningJa, &e.Pronunciation, &level)
	if err != nil {
		return store.WordEntry{}, fmt.Errorf("get word %q: %w", word, mapError(err))
	}
	if e.ID, err = uuid.Parse(id); err != nil {
		return store.WordEntry{}, fmt.Errorf("parsing word id: %w", err)
	}
	if level.Valid {
		l := difficulty.Level(level.String)
		e.CEFR = &l
	}
	return e, nil
}

func (s *Store) InsertWordEntry(ctx context.Context, e *store.WordEntry) error {
	e.Prepare()
	var level any
	if e.CEFR != nil {
		level = string(*e.CEFR)
	}
	query, args, err := psql.Insert("word_entries").Columns(wordColumns...).
		Values(e.ID.String(), e.Word, e.POS, e.MeaningJa, e.Pronunciation, level).ToSql()
	if err != nil {
		return fmt.Errorf("build insert word: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert word %q: %w", e.Word, mapError(err))
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
	var at string
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&e.ResponseJa, &at); err != nil {
		return store.AIExplanation{}, fmt.Errorf("get explanation %q: %w", word, mapError(err))
	}
	if e.CreatedAt, err = time.Parse(timeLayout, at); err != nil {
		return store.AIExplanation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return e, nil
}

// SaveAIExplanation replaces any earlier explanation for the pair.
func (s *Store) SaveAIExplanation(ctx context.Context, e store.AIExplanation) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	query, args, err := psql.Insert("ai_explanations").
		Columns("word", "sentence_id", "response_ja", "created_at").
		Values(e.Word, e.SentenceID.String(), e.ResponseJa, e.CreatedAt.UTC().Format(timeLayout)).
		Suffix("ON CONFLICT (word, sentence_id) DO UPDATE SET response_ja = excluded.response_ja, created_at = excluded.created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build save explanation: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save explanation %q: %w", e.Word, mapError(err))
	}
	return nil
}

// mapError translates driver errors into store sentinels.
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"), strings.Contains(msg, "PRIMARY KEY constraint failed"):
		return fmt.Errorf("%w: %s", store.ErrConflict, msg)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %s", store.ErrNotFound, msg)
	}
	return err
}
