package postgres

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/goreader/internal/difficulty"
	"github.com/hyperifyio/goreader/internal/store"
)

func newMock(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s := New(mock)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s, mock
}

func bookRow(id uuid.UUID, title string, created time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(bookColumns).AddRow(
		id, title, "幸福な王子", "Oscar Wilde", "オスカー・ワイルド", "説明",
		"B1", []string{"fairy-tale"}, 5, 120, 2400,
		"PUBLIC_DOMAIN", "https://www.gutenberg.org/files/902/902-0.txt", 1, created,
	)
}

func TestStore_GetBook(t *testing.T) {
	id := uuid.New()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		setup   func(mock pgxmock.PgxPoolIface)
		wantErr error
	}{
		{
			name: "found",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .+ FROM books WHERE id = \$1`).
					WithArgs(id.String()).
					WillReturnRows(bookRow(id, "The Happy Prince", created))
			},
		},
		{
			name: "not found",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT`).
					WithArgs(pgxmock.AnyArg()).
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: store.ErrNotFound,
		},
		{
			name: "context canceled passes through",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT`).
					WithArgs(pgxmock.AnyArg()).
					WillReturnError(context.Canceled)
			},
			wantErr: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMock(t)
			tt.setup(mock)

			got, err := s.GetBook(context.Background(), id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, id, got.ID)
				assert.Equal(t, difficulty.B1, got.CEFR)
				assert.Equal(t, []string{"fairy-tale"}, got.GenreTags)
				assert.Equal(t, 120, got.TotalSentences)
				assert.Equal(t, created, got.CreatedAt)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_ListBooks(t *testing.T) {
	s, mock := newMock(t)
	a, b := uuid.New(), uuid.New()
	rows := bookRow(a, "Alice", time.Now())
	rows.AddRow(b, "The Gift of the Magi", "", "", "", "", "A2", []string{}, 1, 80, 2100, "PUBLIC_DOMAIN", "", 1, time.Now())
	mock.ExpectQuery(`SELECT .+ FROM books ORDER BY created_at, title_en`).WillReturnRows(rows)

	got, err := s.ListBooks(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b, got[1].ID)
	assert.Equal(t, difficulty.A2, got[1].CEFR)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteBooksByTitle(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`DELETE FROM books WHERE title_en = \$1`).
		WithArgs("Alice").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := s.DeleteBooksByTitle(context.Background(), "Alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertBookAssignsIDAndTimestamp(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO books`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	b := store.Book{TitleEn: "Alice", CEFR: difficulty.B2}
	require.NoError(t, s.InsertBook(context.Background(), &b))
	assert.NotEqual(t, uuid.Nil, b.ID)
	assert.Equal(t, s.now(), b.CreatedAt)
	assert.Equal(t, []string{}, b.GenreTags)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertChapterMissingBook(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO chapters`).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err := s.InsertChapter(context.Background(), &store.Chapter{BookID: uuid.New(), ChapterNumber: 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func sentences(chapterID uuid.UUID, n int) []store.Sentence {
	out := make([]store.Sentence, n)
	for i := range out {
		out[i] = store.Sentence{
			ChapterID: chapterID, Position: i + 1, TextEn: fmt.Sprintf("Sentence %d here.", i+1),
			DifficultyScore: 0.3, WordCount: 3, CEFR: difficulty.A2,
		}
	}
	return out
}

func TestStore_InsertSentencesBatches(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	for i := 0; i < 3; i++ {
		mock.ExpectExec(`INSERT INTO sentences`).WillReturnResult(pgxmock.NewResult("INSERT", 50))
	}
	mock.ExpectCommit()

	ss := sentences(uuid.New(), 120)
	require.NoError(t, s.InsertSentences(context.Background(), ss))
	for _, st := range ss {
		assert.NotEqual(t, uuid.Nil, st.ID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertSentencesRollsBackOnFailure(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO sentences`).WillReturnResult(pgxmock.NewResult("INSERT", 50))
	mock.ExpectExec(`INSERT INTO sentences`).WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := s.InsertSentences(context.Background(), sentences(uuid.New(), 60))
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTxCommitsReplacement(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM books WHERE title_en = \$1`).
		WithArgs("Alice").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`INSERT INTO books`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO sentences`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(tx store.Store) error {
		if _, err := tx.DeleteBooksByTitle(context.Background(), "Alice"); err != nil {
			return err
		}
		if err := tx.InsertBook(context.Background(), &store.Book{TitleEn: "Alice"}); err != nil {
			return err
		}
		return tx.InsertSentences(context.Background(), sentences(uuid.New(), 2))
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM books`).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`INSERT INTO chapters`).WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(tx store.Store) error {
		if _, err := tx.DeleteBooksByTitle(context.Background(), "Alice"); err != nil {
			return err
		}
		return tx.InsertChapter(context.Background(), &store.Chapter{BookID: uuid.New()})
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertSentencesEmpty(t *testing.T) {
	s, mock := newMock(t)
	require.NoError(t, s.InsertSentences(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListSentences(t *testing.T) {
	s, mock := newMock(t)
	chapterID := uuid.New()
	rows := pgxmock.NewRows(sentenceColumns).
		AddRow(uuid.New(), chapterID, 1, "Hello world today.", "", 0.06, 3, "A1").
		AddRow(uuid.New(), chapterID, 2, "The swallow flew away.", "ツバメは飛び去った。", 0.2, 4, "A2")
	mock.ExpectQuery(`SELECT .+ FROM sentences WHERE chapter_id = \$1 ORDER BY position`).
		WithArgs(chapterID.String()).
		WillReturnRows(rows)

	got, err := s.ListSentences(context.Background(), chapterID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, difficulty.A1, got[0].CEFR)
	assert.Equal(t, 2, got[1].Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateSentenceTranslationMissing(t *testing.T) {
	s, mock := newMock(t)
	id := uuid.New()
	mock.ExpectExec(`UPDATE sentences SET text_ja = \$1 WHERE id = \$2`).
		WithArgs("こんにちは", id.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateSentenceTranslation(context.Background(), id, "こんにちは")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WordEntries(t *testing.T) {
	s, mock := newMock(t)
	id := uuid.New()
	level := "B1"
	mock.ExpectQuery(`SELECT .+ FROM word_entries WHERE word = \$1`).
		WithArgs("swallow").
		WillReturnRows(pgxmock.NewRows(wordColumns).AddRow(id, "swallow", "noun", "ツバメ", "/ˈswɒl.əʊ/", &level))
	mock.ExpectQuery(`SELECT .+ FROM word_entries`).
		WithArgs("reed").
		WillReturnRows(pgxmock.NewRows(wordColumns).AddRow(uuid.New(), "reed", "noun", "葦", "", nil))
	mock.ExpectExec(`INSERT INTO word_entries`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	ctx := context.Background()
	got, err := s.GetWordEntry(ctx, "swallow")
	require.NoError(t, err)
	require.NotNil(t, got.CEFR)
	assert.Equal(t, difficulty.B1, *got.CEFR)

	got, err = s.GetWordEntry(ctx, "reed")
	require.NoError(t, err)
	assert.Nil(t, got.CEFR)

	err = s.InsertWordEntry(ctx, &store.WordEntry{Word: "swallow", MeaningJa: "ツバメ"})
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AIExplanations(t *testing.T) {
	s, mock := newMock(t)
	sid := uuid.New()
	created := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO ai_explanations .+ ON CONFLICT \(word, sentence_id\) DO UPDATE`).
		WithArgs("swallow", sid, "鳥の名前", s.now().UTC()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT response_ja, created_at FROM ai_explanations`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"response_ja", "created_at"}).AddRow("鳥の名前", created))

	ctx := context.Background()
	require.NoError(t, s.SaveAIExplanation(ctx, store.AIExplanation{Word: "swallow", SentenceID: sid, ResponseJa: "鳥の名前"}))
	got, err := s.GetAIExplanation(ctx, "swallow", sid)
	require.NoError(t, err)
	assert.Equal(t, "鳥の名前", got.ResponseJa)
	assert.Equal(t, created, got.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	t.Run("fresh database", func(t *testing.T) {
		_, mock := newMock(t)
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")).
			WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(0))
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS books`).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mock.ExpectExec(`INSERT INTO schema_migrations`).
			WithArgs(1).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, Migrate(context.Background(), mock))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("up to date", func(t *testing.T) {
		_, mock := newMock(t)
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mock.ExpectQuery(`SELECT COALESCE`).
			WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(1))

		require.NoError(t, Migrate(context.Background(), mock))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
