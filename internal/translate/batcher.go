package translate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	DefaultBatchSize = 50
	DefaultInterval  = 500 * time.Millisecond
)

// Batcher slices input into fixed-size batches and paces calls to the
// backend. It does not retry: the first failing batch aborts the run.
type Batcher struct {
	Translator Translator
	BatchSize  int
	// Interval is the minimum spacing between batch calls.
	Interval time.Duration
	Logger   *zerolog.Logger
}

func (b *Batcher) logger() *zerolog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return &log.Logger
}

// Translate returns one translation per sentence in input order.
func (b *Batcher) Translate(ctx context.Context, sentences []string) ([]string, error) {
	size := b.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	interval := b.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	out := make([]string, 0, len(sentences))
	total := (len(sentences) + size - 1) / size
	for i := 0; i < len(sentences); i += size {
		end := i + size
		if end > len(sentences) {
			end = len(sentences)
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		batch := sentences[i:end]
		got, err := b.Translator.TranslateBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d/%d: %w", i/size+1, total, err)
		}
		if err := checkLength(batch, got); err != nil {
			return nil, fmt.Errorf("batch %d/%d: %w", i/size+1, total, err)
		}
		out = append(out, got...)
		b.logger().Debug().Int("batch", i/size+1).Int("of", total).Int("done", len(out)).Msg("translated batch")
	}
	return out, nil
}
