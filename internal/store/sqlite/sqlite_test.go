package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/goreader/internal/difficulty"
	"github.com/hyperifyio/goreader/internal/store"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "reader.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertBook(t *testing.T, s *Store, title string) (store.Book, store.Chapter) {
	t.Helper()
	ctx := context.Background()
	b := store.Book{
		TitleEn:   title,
		TitleJa:   "幸福な王子",
		CEFR:      difficulty.B1,
		GenreTags: []string{"fairy-tale", "classic"},
		SourceURL: "https://www.gutenberg.org/files/902/902-0.txt",
	}
	require.NoError(t, s.InsertBook(ctx, &b))
	c := store.Chapter{BookID: b.ID, ChapterNumber: 1, TitleEn: title}
	require.NoError(t, s.InsertChapter(ctx, &c))
	return b, c
}

func TestOpen_AppliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reader.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	var count, version int
	require.NoError(t, s2.db.QueryRow("SELECT COUNT(*), MAX(version) FROM schema_migrations").Scan(&count, &version))
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, version)
	assert.Equal(t, path, s2.Path())
}

func TestStore_BookRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	b, _ := insertBook(t, s, "The Happy Prince")

	got, err := s.GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.TitleJa, got.TitleJa)
	assert.Equal(t, difficulty.B1, got.CEFR)
	assert.Equal(t, []string{"fairy-tale", "classic"}, got.GenreTags)
	assert.WithinDuration(t, b.CreatedAt, got.CreatedAt, time.Millisecond)

	_, err = s.GetBook(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 1)
}

func TestStore_SentencesBatchedAndOrdered(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	_, c := insertBook(t, s, "Alice")

	var ss []store.Sentence
	for i := 120; i >= 1; i-- {
		ss = append(ss, store.Sentence{
			ChapterID: c.ID, Position: i, TextEn: fmt.Sprintf("Sentence number %d.", i),
			DifficultyScore: 0.25, WordCount: 3, CEFR: difficulty.A2,
		})
	}
	require.NoError(t, s.InsertSentences(ctx, ss))

	got, err := s.ListSentences(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got, 120)
	assert.Equal(t, 1, got[0].Position)
	assert.Equal(t, 120, got[119].Position)
	assert.Equal(t, difficulty.A2, got[0].CEFR)

	require.NoError(t, s.UpdateSentenceTranslation(ctx, got[0].ID, "文 1"))
	one, err := s.GetSentence(ctx, got[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "文 1", one.TextJa)

	err = s.UpdateSentenceTranslation(ctx, uuid.New(), "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_DuplicatePositionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	_, c := insertBook(t, s, "Alice")

	err := s.InsertSentences(ctx, []store.Sentence{
		{ChapterID: c.ID, Position: 1, TextEn: "One here.", CEFR: difficulty.A1},
		{ChapterID: c.ID, Position: 1, TextEn: "Again one.", CEFR: difficulty.A1},
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := s.ListSentences(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_DeleteBooksByTitleCascades(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	_, c := insertBook(t, s, "Alice")
	require.NoError(t, s.InsertSentences(ctx, []store.Sentence{{ChapterID: c.ID, Position: 1, TextEn: "Hello there.", CEFR: difficulty.A1}}))
	insertBook(t, s, "Alice")
	insertBook(t, s, "Other")

	n, err := s.DeleteBooksByTitle(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = s.GetChapter(ctx, c.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	ss, err := s.ListSentences(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, ss)
}

func TestStore_ChapterRequiresBook(t *testing.T) {
	s := setupTestStore(t)
	err := s.InsertChapter(context.Background(), &store.Chapter{BookID: uuid.New(), ChapterNumber: 1, TitleEn: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_Dictionary(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	level := difficulty.B2
	e := store.WordEntry{Word: "swallow", POS: "noun", MeaningJa: "ツバメ", CEFR: &level}
	require.NoError(t, s.InsertWordEntry(ctx, &e))
	assert.ErrorIs(t, s.InsertWordEntry(ctx, &store.WordEntry{Word: "swallow", MeaningJa: "x"}), store.ErrConflict)

	got, err := s.GetWordEntry(ctx, "swallow")
	require.NoError(t, err)
	require.NotNil(t, got.CEFR)
	assert.Equal(t, difficulty.B2, *got.CEFR)

	plain := store.WordEntry{Word: "reed", MeaningJa: "葦"}
	require.NoError(t, s.InsertWordEntry(ctx, &plain))
	got, err = s.GetWordEntry(ctx, "reed")
	require.NoError(t, err)
	assert.Nil(t, got.CEFR)

	_, err = s.GetWordEntry(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_AIExplanationUpsert(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	_, c := insertBook(t, s, "Alice")
	sentence := store.Sentence{ChapterID: c.ID, Position: 1, TextEn: "The swallow flew.", CEFR: difficulty.A1}
	require.NoError(t, s.InsertSentences(ctx, []store.Sentence{sentence}))
	ss, err := s.ListSentences(ctx, c.ID)
	require.NoError(t, err)
	sid := ss[0].ID

	_, err = s.GetAIExplanation(ctx, "swallow", sid)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SaveAIExplanation(ctx, store.AIExplanation{Word: "swallow", SentenceID: sid, ResponseJa: "一"}))
	require.NoError(t, s.SaveAIExplanation(ctx, store.AIExplanation{Word: "swallow", SentenceID: sid, ResponseJa: "二"}))
	got, err := s.GetAIExplanation(ctx, "swallow", sid)
	require.NoError(t, err)
	assert.Equal(t, "二", got.ResponseJa)
}

func TestStore_WithTxRollsBackReplacement(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	old, oldChapter := insertBook(t, s, "The Happy Prince")

	err := s.WithTx(ctx, func(tx store.Store) error {
		n, err := tx.DeleteBooksByTitle(ctx, "The Happy Prince")
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
		b := store.Book{TitleEn: "The Happy Prince"}
		require.NoError(t, tx.InsertBook(ctx, &b))
		c := store.Chapter{BookID: b.ID, ChapterNumber: 1}
		require.NoError(t, tx.InsertChapter(ctx, &c))
		return tx.InsertSentences(ctx, []store.Sentence{
			{ChapterID: c.ID, Position: 1, TextEn: "One here.", CEFR: difficulty.A1},
			{ChapterID: c.ID, Position: 1, TextEn: "Again one.", CEFR: difficulty.A1},
		})
	})
	require.ErrorIs(t, err, store.ErrConflict)

	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, old.ID, books[0].ID)
	_, err = s.GetChapter(ctx, oldChapter.ID)
	assert.NoError(t, err)
}

func TestStore_WithTxCommits(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	var id uuid.UUID
	err := s.WithTx(ctx, func(tx store.Store) error {
		b := store.Book{TitleEn: "The Selfish Giant"}
		if err := tx.InsertBook(ctx, &b); err != nil {
			return err
		}
		id = b.ID
		c := store.Chapter{BookID: b.ID, ChapterNumber: 1}
		if err := tx.InsertChapter(ctx, &c); err != nil {
			return err
		}
		return tx.InsertSentences(ctx, []store.Sentence{{ChapterID: c.ID, Position: 1, TextEn: "One here.", CEFR: difficulty.A1}})
	})
	require.NoError(t, err)

	b, err := s.GetBook(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "The Selfish Giant", b.TitleEn)
}
