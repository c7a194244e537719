// Package memory is an in-process store.Store used by tests and dry runs.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperifyio/goreader/internal/store"
)

type explanationKey struct {
	word       string
	sentenceID uuid.UUID
}

// Store keeps every record in maps guarded by one mutex. Returned values are
// copies.
type Store struct {
	txMu         sync.Mutex
	mu           sync.RWMutex
	now          func() time.Time
	books        map[uuid.UUID]store.Book
	chapters     map[uuid.UUID]store.Chapter
	sentences    map[uuid.UUID]store.Sentence
	words        map[string]store.WordEntry
	explanations map[explanationKey]store.AIExplanation
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:          time.Now,
		books:        map[uuid.UUID]store.Book{},
		chapters:     map[uuid.UUID]store.Chapter{},
		sentences:    map[uuid.UUID]store.Sentence{},
		words:        map[string]store.WordEntry{},
		explanations: map[explanationKey]store.AIExplanation{},
	}
}

func (s *Store) DeleteBooksByTitle(_ context.Context, title string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, b := range s.books {
		if b.TitleEn != title {
			continue
		}
		for cid, c := range s.chapters {
			if c.BookID != id {
				continue
			}
			for sid, st := range s.sentences {
				if st.ChapterID == cid {
					delete(s.sentences, sid)
				}
			}
			delete(s.chapters, cid)
		}
		delete(s.books, id)
		n++
	}
	return n, nil
}

func (s *Store) InsertBook(_ context.Context, b *store.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.Prepare(s.now())
	if _, ok := s.books[b.ID]; ok {
		return store.ErrConflict
	}
	cp := *b
	cp.GenreTags = append([]string(nil), b.GenreTags...)
	s.books[b.ID] = cp
	return nil
}

func (s *Store) InsertChapter(_ context.Context, c *store.Chapter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Prepare()
	if _, ok := s.books[c.BookID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := s.chapters[c.ID]; ok {
		return store.ErrConflict
	}
	s.chapters[c.ID] = *c
	return nil
}

func (s *Store) InsertSentences(_ context.Context, ss []store.Sentence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range ss {
		ss[i].Prepare()
		if _, ok := s.chapters[ss[i].ChapterID]; !ok {
			return store.ErrNotFound
		}
	}
	for _, st := range ss {
		s.sentences[st.ID] = st
	}
	return nil
}

func (s *Store) ListBooks(_ context.Context) ([]store.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Book, 0, len(s.books))
	for _, b := range s.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].TitleEn < out[j].TitleEn
	})
	return out, nil
}

func (s *Store) GetBook(_ context.Context, id uuid.UUID) (store.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	if !ok {
		return store.Book{}, store.ErrNotFound
	}
	return b, nil
}

func (s *Store) ListChapters(_ context.Context, bookID uuid.UUID) ([]store.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []store.Chapter{}
	for _, c := range s.chapters {
		if c.BookID == bookID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChapterNumber < out[j].ChapterNumber })
	return out, nil
}

func (s *Store) GetChapter(_ context.Context, id uuid.UUID) (store.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chapters[id]
	if !ok {
		return store.Chapter{}, store.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListSentences(_ context.Context, chapterID uuid.UUID) ([]store.Sentence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []store.Sentence{}
	for _, st := range s.sentences {
		if st.ChapterID == chapterID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *Store) GetSentence(_ context.Context, id uuid.UUID) (store.Sentence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sentences[id]
	if !ok {
		return store.Sentence{}, store.ErrNotFound
	}
	return st, nil
}

func (s *Store) UpdateSentenceTranslation(_ context.Context, id uuid.UUID, textJa string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sentences[id]
	if !ok {
		return store.ErrNotFound
	}
	st.TextJa = textJa
	s.sentences[id] = st
	return nil
}

func (s *Store) GetWordEntry(_ context.Context, word string) (store.WordEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.words[word]
	if !ok {
		return store.WordEntry{}, store.ErrNotFound
	}
	return e, nil
}

func (s *Store) InsertWordEntry(_ context.Context, e *store.WordEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.words[e.Word]; ok {
		return store.ErrConflict
	}
	e.Prepare()
	s.words[e.Word] = *e
	return nil
}

func (s *Store) GetAIExplanation(_ context.Context, word string, sentenceID uuid.UUID) (store.AIExplanation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.explanations[explanationKey{word, sentenceID}]
	if !ok {
		return store.AIExplanation{}, store.ErrNotFound
	}
	return e, nil
}

// SaveAIExplanation overwrites any earlier explanation for the pair.
func (s *Store) SaveAIExplanation(_ context.Context, e store.AIExplanation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	s.explanations[explanationKey{e.Word, e.SentenceID}] = e
	return nil
}

func (s *Store) Close() error { return nil }

type snapshot struct {
	books        map[uuid.UUID]store.Book
	chapters     map[uuid.UUID]store.Chapter
	sentences    map[uuid.UUID]store.Sentence
	words        map[string]store.WordEntry
	explanations map[explanationKey]store.AIExplanation
}

// WithTx runs transactions one at a time. A failed fn restores the state
// captured when it started, so writes made outside fn in the meantime are
// discarded too.
func (s *Store) WithTx(_ context.Context, fn func(store.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snap := snapshot{
		books:        maps.Clone(s.books),
		chapters:     maps.Clone(s.chapters),
		sentences:    maps.Clone(s.sentences),
		words:        maps.Clone(s.words),
		explanations: maps.Clone(s.explanations),
	}
	s.mu.RUnlock()

	if err := fn(txStore{s}); err != nil {
		s.mu.Lock()
		s.books, s.chapters, s.sentences = snap.books, snap.chapters, snap.sentences
		s.words, s.explanations = snap.words, snap.explanations
		s.mu.Unlock()
		return err
	}
	return nil
}

// txStore is the view handed to WithTx callbacks.
type txStore struct{ *Store }

func (t txStore) WithTx(_ context.Context, fn func(store.Store) error) error { return fn(t) }

func (t txStore) Close() error { return nil }
