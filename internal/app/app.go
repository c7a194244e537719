// Package app wires configuration, caches, the store and the translation
// backends into the operations the command line exposes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goreader/internal/api"
	"github.com/hyperifyio/goreader/internal/cache"
	"github.com/hyperifyio/goreader/internal/catalog"
	"github.com/hyperifyio/goreader/internal/dictionary"
	"github.com/hyperifyio/goreader/internal/difficulty"
	"github.com/hyperifyio/goreader/internal/fetch"
	"github.com/hyperifyio/goreader/internal/ingest"
	"github.com/hyperifyio/goreader/internal/llm"
	"github.com/hyperifyio/goreader/internal/ratio"
	"github.com/hyperifyio/goreader/internal/store"
	"github.com/hyperifyio/goreader/internal/store/memory"
	"github.com/hyperifyio/goreader/internal/store/postgres"
	"github.com/hyperifyio/goreader/internal/store/sqlite"
	"github.com/hyperifyio/goreader/internal/translate"
)

// ErrNoStories is returned when a book yields no stories at all. The CLI
// maps it to exit code 2.
var ErrNoStories = ingest.ErrNoStories

// App owns the long-lived resources of one process.
type App struct {
	cfg        Config
	policy     difficulty.Policy
	catalog    catalog.Catalog
	store      store.Store
	fetcher    *fetch.Client
	httpCache  *cache.HTTPCache
	llmCache   *cache.LLMCache
	caller     *llm.Caller
	translator translate.Translator
}

// New loads the catalog and policy, maintains the cache directory, and opens
// the configured store.
func New(ctx context.Context, cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg}

	policy := difficulty.DefaultPolicy()
	if cfg.PolicyPath != "" {
		p, err := difficulty.LoadPolicy(cfg.PolicyPath)
		if err != nil {
			return nil, fmt.Errorf("load policy: %w", err)
		}
		policy = p
	}
	a.policy = policy

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	a.catalog = cat

	httpClient := newHTTPClient(0)
	a.prepareCache()

	a.fetcher = &fetch.Client{
		HTTPClient:        httpClient,
		UserAgent:         cfg.Fetch.UserAgent,
		MaxAttempts:       cfg.Fetch.MaxAttempts,
		PerRequestTimeout: cfg.Fetch.Timeout,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		Cache:             a.httpCache,
	}

	if strings.TrimSpace(cfg.LLM.Model) != "" {
		provider := llm.NewOpenAI(cfg.LLM.BaseURL, cfg.LLM.APIKey, httpClient)
		a.caller = &llm.Caller{
			Client:      provider,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Cache:       a.llmCache,
		}
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := llm.Preflight(pctx, provider, cfg.LLM.Model); err != nil {
			log.Warn().Err(err).Str("model", cfg.LLM.Model).Msg("LLM preflight failed; continuing")
		}
		cancel()
	}

	a.translator, err = a.newTranslator(httpClient)
	if err != nil {
		return nil, err
	}

	a.store, err = openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// prepareCache applies the clear/max-age/size controls and creates the
// caches. Maintenance failures are logged, never fatal.
func (a *App) prepareCache() {
	c := a.cfg.Cache
	if strings.TrimSpace(c.Dir) == "" {
		return
	}
	if c.Clear {
		if err := cache.ClearDir(c.Dir); err != nil {
			log.Warn().Err(err).Str("dir", c.Dir).Msg("cache clear failed")
		}
	}
	if c.MaxAge > 0 {
		if n, err := cache.PurgeByAge(c.Dir, c.MaxAge); err != nil {
			log.Warn().Err(err).Msg("cache age purge failed")
		} else if n > 0 {
			log.Info().Int("removed", n).Msg("purged stale cache entries")
		}
	}
	if c.MaxBytes > 0 || c.MaxCount > 0 {
		if n, err := cache.Enforce(c.Dir, c.MaxBytes, c.MaxCount); err != nil {
			log.Warn().Err(err).Msg("cache size enforcement failed")
		} else if n > 0 {
			log.Info().Int("removed", n).Msg("evicted cache entries")
		}
	}
	a.httpCache = &cache.HTTPCache{Dir: c.Dir, StrictPerms: c.StrictPerms}
	a.llmCache = &cache.LLMCache{Dir: c.Dir, StrictPerms: c.StrictPerms}
}

func (a *App) newTranslator(httpClient *http.Client) (translate.Translator, error) {
	switch strings.ToLower(a.cfg.Translate.Backend) {
	case "", BackendStub:
		return translate.Stub{}, nil
	case BackendDeepL:
		return &translate.DeepL{
			APIKey:     a.cfg.Translate.DeepLKey,
			BaseURL:    a.cfg.Translate.DeepLURL,
			HTTPClient: httpClient,
		}, nil
	case BackendLLM:
		if a.caller == nil {
			return nil, errors.New("llm translation needs llm.model")
		}
		return &translate.LLM{Caller: a.caller}, nil
	default:
		return nil, fmt.Errorf("unknown translation backend %q", a.cfg.Translate.Backend)
	}
}

func openStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverMemory:
		return memory.New(), nil
	case DriverPostgres:
		s, err := postgres.Open(ctx, postgres.PoolConfig{
			DSN:             cfg.DSN,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	case "", DriverSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Close releases the store.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func (a *App) Catalog() catalog.Catalog  { return a.catalog }
func (a *App) Policy() difficulty.Policy { return a.policy }
func (a *App) Store() store.Store        { return a.store }

// Job returns an ingestion job bound to the app's resources.
func (a *App) Job() *ingest.Job {
	return &ingest.Job{
		Fetcher: a.fetcher,
		Translator: &translate.Batcher{
			Translator: a.translator,
			BatchSize:  a.cfg.Translate.BatchSize,
			Interval:   a.cfg.Translate.Interval,
		},
		Store:  a.store,
		Policy: a.policy,
	}
}

// IngestOutput is what one ingest command produced.
type IngestOutput struct {
	Result  ingest.Result `json:"result"`
	Reports ReportPaths   `json:"reports"`
}

// Ingest processes the catalog book picked by selector (1-based index or
// title). A dry run plans without translating or storing. Reports are
// written either way.
func (a *App) Ingest(ctx context.Context, selector string, dryRun bool) (IngestOutput, error) {
	book, err := a.catalog.Find(selector)
	if err != nil {
		return IngestOutput{}, err
	}
	job := a.Job()

	var res ingest.Result
	if dryRun {
		started := time.Now().UTC()
		plan, err := job.Plan(ctx, book)
		if err != nil {
			return IngestOutput{}, err
		}
		res = plan.Result(a.policy)
		res.StartedAt, res.FinishedAt = started, time.Now().UTC()
	} else {
		res, err = job.Run(ctx, book)
		if err != nil {
			return IngestOutput{}, err
		}
	}

	out := IngestOutput{Result: res}
	paths, err := writeReports(a.cfg.Reports.Dir, a.cfg.Reports.PDF, res, a.manifestMeta(res))
	if err != nil {
		// Ingestion itself succeeded; only the report is missing.
		log.Warn().Err(err).Msg("writing ingestion report failed")
		return out, nil
	}
	out.Reports = paths
	log.Info().Str("report", paths.Markdown).Msg("ingestion report written")
	return out, nil
}

func (a *App) manifestMeta(res ingest.Result) manifestMeta {
	meta := manifestMeta{
		SourceURL:     res.Book.URL,
		ContentType:   res.ContentType,
		Translator:    strings.ToLower(a.cfg.Translate.Backend),
		PolicyVersion: res.PolicyVersion,
		ChapterCount:  len(res.Chapters),
		HTTPCache:     a.httpCache != nil,
		LLMCache:      a.llmCache != nil && a.caller != nil,
		DryRun:        res.DryRun(),
		GeneratedAt:   time.Now().UTC(),
	}
	if meta.Translator == "" {
		meta.Translator = BackendStub
	}
	if a.caller != nil {
		meta.Model = a.cfg.LLM.Model
		meta.LLMBaseURL = a.cfg.LLM.BaseURL
	}
	return meta
}

// Backfill retranslates placeholder sentences of a stored book.
func (a *App) Backfill(ctx context.Context, bookID uuid.UUID) (int, error) {
	return a.Job().Backfill(ctx, bookID)
}

// Dictionary returns the word service. Without a model it still serves
// stored entries and answers ErrNoModel for anything new.
func (a *App) Dictionary() *dictionary.Service {
	return &dictionary.Service{Store: a.store, Caller: a.caller}
}

// Server returns the read API bound to the store and the shared policy.
func (a *App) Server() *api.Server {
	return &api.Server{
		Store:      a.store,
		Dictionary: a.Dictionary(),
		Decider:    ratio.NewDecider(a.policy),
	}
}

// Serve runs the API until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	log.Info().Str("addr", a.cfg.Server.Addr).Msg("serving")
	return a.Server().ListenAndServe(ctx, a.cfg.Server.Addr)
}
