package ingest

import (
	"time"

	"github.com/google/uuid"

	"github.com/hyperifyio/goreader/internal/catalog"
	"github.com/hyperifyio/goreader/internal/difficulty"
	"github.com/hyperifyio/goreader/internal/gutenberg"
	"github.com/hyperifyio/goreader/internal/ratio"
)

// ChapterStats summarises one chapter for reports. EnglishShare maps each
// selectable ratio to the fraction of sentences shown in English by default.
type ChapterStats struct {
	Number       int                      `json:"number"`
	TitleEn      string                   `json:"title_en"`
	TitleJa      string                   `json:"title_ja"`
	Sentences    int                      `json:"sentences"`
	Words        int                      `json:"words"`
	MeanScore    float64                  `json:"mean_score"`
	Levels       map[difficulty.Level]int `json:"levels"`
	EnglishShare map[int]float64          `json:"english_share"`
	SHA256       string                   `json:"sha256"`
}

// Result describes a finished (or planned) ingestion.
type Result struct {
	BookID         uuid.UUID                `json:"book_id"`
	Book           catalog.Book             `json:"book"`
	BookLevel      difficulty.Level         `json:"book_level"`
	PolicyVersion  int                      `json:"policy_version"`
	ContentType    string                   `json:"content_type"`
	Chapters       []ChapterStats           `json:"chapters"`
	Histogram      map[difficulty.Level]int `json:"histogram"`
	TotalSentences int                      `json:"total_sentences"`
	TotalWords     int                      `json:"total_words"`
	Warnings       []gutenberg.Warning      `json:"warnings,omitempty"`
	Replaced       int64                    `json:"replaced"`
	StartedAt      time.Time                `json:"started_at"`
	FinishedAt     time.Time                `json:"finished_at"`
}

// DryRun reports whether nothing was persisted.
func (r Result) DryRun() bool { return r.BookID == uuid.Nil }

// Result summarises the plan. The book level is the catalog's label when
// present, otherwise the level of the mean sentence score.
func (p *Plan) Result(policy difficulty.Policy) Result {
	res := Result{
		Book:          p.Book,
		PolicyVersion: policy.Version,
		ContentType:   p.ContentType,
		Histogram:     map[difficulty.Level]int{},
		Warnings:      p.Warnings,
	}
	decider := ratio.NewDecider(policy)
	var sum float64
	for _, ch := range p.Chapters {
		cs := ChapterStats{
			Number:       ch.Number,
			TitleEn:      ch.Story.TitleEn,
			TitleJa:      ch.Story.TitleJa,
			Sentences:    len(ch.Sentences),
			Words:        ch.WordCount,
			Levels:       map[difficulty.Level]int{},
			EnglishShare: map[int]float64{},
			SHA256:       ChapterDigest(ch.Story.Body),
		}
		var chSum float64
		scores := make([]float64, len(ch.Sentences))
		for i, s := range ch.Sentences {
			cs.Levels[s.Level]++
			res.Histogram[s.Level]++
			chSum += s.Score
			scores[i] = s.Score
		}
		for _, r := range ratio.Values(policy) {
			cs.EnglishShare[r] = difficulty.Round2(decider.Share(scores, r))
		}
		if cs.Sentences > 0 {
			cs.MeanScore = difficulty.Round2(chSum / float64(cs.Sentences))
		}
		sum += chSum
		res.TotalSentences += cs.Sentences
		res.TotalWords += cs.Words
		res.Chapters = append(res.Chapters, cs)
	}

	res.BookLevel = p.Book.CEFR
	if !res.BookLevel.Valid() {
		mean := 0.0
		if res.TotalSentences > 0 {
			mean = sum / float64(res.TotalSentences)
		}
		res.BookLevel = policy.Classify(mean)
	}
	return res
}
