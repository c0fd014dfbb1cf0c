package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/marcoavk/urban-plan-assistant/internal/core/domain"
	"github.com/marcoavk/urban-plan-assistant/internal/core/ports"
)

const (
	maxQueryBytes        = 2000
	defaultVectorLimit   = 10
	defaultBranchTimeout = 8 * time.Second
	defaultCacheTTL      = 10 * time.Minute
)

// PipelineMetrics is the observation surface the pipeline reports into.
type PipelineMetrics interface {
	RecordQuery(queryType, strategy, status string, duration time.Duration)
	RecordStage(stage string, duration time.Duration)
	RecordCacheEvent(result string)
	RecordEvidence(tabular, conceptual int)
}

// PipelineConfig bounds the pipeline's external calls.
type PipelineConfig struct {
	VectorLimit   int
	VectorTimeout time.Duration
	LookupTimeout time.Duration
	CacheTTL      time.Duration
}

func (c PipelineConfig) normalize() PipelineConfig {
	if c.VectorLimit <= 0 {
		c.VectorLimit = defaultVectorLimit
	}
	if c.VectorTimeout <= 0 {
		c.VectorTimeout = defaultBranchTimeout
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = defaultBranchTimeout
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = defaultCacheTTL
	}
	return c
}

// QueryPipeline chains extraction, classification, the two evidence branches
// and synthesis for one query. The two branches fan out concurrently and are
// joined before synthesis; either may fail without aborting the other.
type QueryPipeline struct {
	extractor   *EntityExtractor
	classifier  *QueryClassifier
	scorer      *ContextualScorer
	retriever   *StructuredRetriever
	synthesizer *Synthesizer

	embedder ports.Embedder
	searcher ports.VectorSearcher
	cache    ports.AnswerCache
	events   ports.EventPublisher

	metrics PipelineMetrics
	logger  *slog.Logger
	cfg     PipelineConfig
}

func NewQueryPipeline(
	extractor *EntityExtractor,
	classifier *QueryClassifier,
	scorer *ContextualScorer,
	retriever *StructuredRetriever,
	synthesizer *Synthesizer,
	embedder ports.Embedder,
	searcher ports.VectorSearcher,
	cache ports.AnswerCache,
	events ports.EventPublisher,
	metrics PipelineMetrics,
	logger *slog.Logger,
	cfg PipelineConfig,
) *QueryPipeline {
	return &QueryPipeline{
		extractor:   extractor,
		classifier:  classifier,
		scorer:      scorer,
		retriever:   retriever,
		synthesizer: synthesizer,
		embedder:    embedder,
		searcher:    searcher,
		cache:       cache,
		events:      events,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg.normalize(),
	}
}

func (p *QueryPipeline) Answer(ctx context.Context, query domain.Query) (*domain.SynthesisResult, error) {
	start := time.Now()

	if err := validateQuery(query); err != nil {
		return nil, err
	}

	entities := p.extractor.Extract(query.Text)
	classification := p.classifier.Classify(query.Text, entities)

	logger := p.logger.With(
		"session_id", query.SessionID,
		"query_type", classification.QueryType,
		"strategy", classification.Strategy,
	)

	cacheKey := answerCacheKey(query.Text, classification)
	if cached := p.cacheProbe(ctx, query, cacheKey, logger); cached != nil {
		p.observe(classification, cached, start, true)
		return cached, nil
	}

	structured, scored := p.gatherEvidence(ctx, query, classification, logger)

	result := p.synthesizer.Synthesize(query, classification, structured, scored)
	p.cacheStore(ctx, query, cacheKey, result, logger)
	p.publishCompleted(query, classification, result, time.Since(start))
	p.observe(classification, &result, start, false)

	logger.Info("query_answered",
		"confidence", result.Confidence,
		"tabular_sources", result.Sources.Tabular,
		"conceptual_sources", result.Sources.Conceptual,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return &result, nil
}

func validateQuery(query domain.Query) error {
	text := query.Text
	if len(text) > maxQueryBytes {
		return domain.WrapError(domain.ErrMalformedInput, "validate query", errors.New("query text too long"))
	}
	for _, r := range text {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return nil
		}
	}
	return domain.WrapError(domain.ErrMalformedInput, "validate query", errors.New("empty query text"))
}

// gatherEvidence fans out the structured and vector branches per the
// strategy. A failed or timed-out branch contributes no evidence instead of
// failing the query; total failure still yields a well-formed (fallback)
// synthesis downstream.
func (p *QueryPipeline) gatherEvidence(
	ctx context.Context,
	query domain.Query,
	classification domain.Classification,
	logger *slog.Logger,
) (domain.StructuredResult, domain.ScoreReport) {
	var structured domain.StructuredResult
	var scored domain.ScoreReport

	if classification.NeedsClarification {
		return structured, scored
	}

	needStructured := classification.Strategy != domain.StrategyVectorOnly
	needVector := classification.Strategy != domain.StrategyStructuredOnly

	structuredCh := make(chan domain.StructuredResult, 1)
	scoredCh := make(chan domain.ScoreReport, 1)

	if needStructured {
		go func() {
			stageStart := time.Now()
			branchCtx, cancel := context.WithTimeout(ctx, p.cfg.LookupTimeout)
			defer cancel()
			result := p.retriever.Retrieve(branchCtx, classification.Entities, classification.QueryType)
			p.recordStage("structured", time.Since(stageStart))
			structuredCh <- result
		}()
	}
	if needVector {
		go func() {
			stageStart := time.Now()
			branchCtx, cancel := context.WithTimeout(ctx, p.cfg.VectorTimeout)
			defer cancel()
			report, err := p.vectorBranch(branchCtx, query.Text, classification)
			p.recordStage("vector", time.Since(stageStart))
			if err != nil {
				logger.Warn("vector_branch_failed", "error", err)
				report = domain.ScoreReport{Matches: []domain.ScoredMatch{}}
			}
			scoredCh <- report
		}()
	}

	if needStructured {
		structured = <-structuredCh
	}
	if needVector {
		scored = <-scoredCh
	}

	if needStructured && needVector && !structured.HasRows() && len(scored.Matches) == 0 && len(structured.Errors) > 0 {
		logger.Warn("retrieval_total_failure")
	}
	return structured, scored
}

func (p *QueryPipeline) vectorBranch(ctx context.Context, text string, classification domain.Classification) (domain.ScoreReport, error) {
	vector, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return domain.ScoreReport{}, domain.WrapError(domain.ErrPartialRetrieval, "embed query", err)
	}
	matches, err := p.searcher.Search(ctx, text, vector, p.cfg.VectorLimit)
	if err != nil {
		return domain.ScoreReport{}, domain.WrapError(domain.ErrPartialRetrieval, "vector search", err)
	}
	return p.scorer.Score(matches, classification), nil
}

func (p *QueryPipeline) cacheProbe(ctx context.Context, query domain.Query, key string, logger *slog.Logger) *domain.SynthesisResult {
	if p.cache == nil || query.BypassCache {
		return nil
	}
	result, hit, err := p.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("cache_get_failed", "error", err)
		p.recordCacheEvent("error")
		return nil
	}
	if !hit {
		p.recordCacheEvent("miss")
		return nil
	}
	p.recordCacheEvent("hit")
	return result
}

func (p *QueryPipeline) cacheStore(ctx context.Context, query domain.Query, key string, result domain.SynthesisResult, logger *slog.Logger) {
	if p.cache == nil || query.BypassCache {
		return
	}
	if err := p.cache.Set(ctx, key, result, p.cfg.CacheTTL); err != nil {
		logger.Warn("cache_set_failed", "error", err)
		p.recordCacheEvent("error")
	}
}

func (p *QueryPipeline) publishCompleted(query domain.Query, classification domain.Classification, result domain.SynthesisResult, elapsed time.Duration) {
	if p.events == nil {
		return
	}
	event := domain.QueryCompletedEvent{
		ID:         uuid.NewString(),
		SessionID:  query.SessionID,
		QueryType:  result.QueryType,
		Strategy:   classification.Strategy,
		Confidence: result.Confidence,
		Sources:    result.Sources,
		DurationMS: float64(elapsed.Microseconds()) / 1000.0,
		CreatedAt:  time.Now().UTC(),
	}

	// Fire-and-forget: event delivery must not delay or fail the answer.
	publishCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	go func() {
		defer cancel()
		if err := p.events.PublishQueryCompleted(publishCtx, event); err != nil {
			p.logger.Warn("event_publish_failed", "error", err)
		}
	}()
}

func (p *QueryPipeline) observe(classification domain.Classification, result *domain.SynthesisResult, start time.Time, cacheHit bool) {
	if p.metrics == nil {
		return
	}
	status := "answered"
	switch {
	case cacheHit:
		status = "cached"
	case result.Sources.Tabular == 0 && result.Sources.Conceptual == 0:
		status = "no_evidence"
	}
	p.metrics.RecordQuery(string(classification.QueryType), string(classification.Strategy), status, time.Since(start))
	p.metrics.RecordEvidence(result.Sources.Tabular, result.Sources.Conceptual)
}

func (p *QueryPipeline) recordStage(stage string, duration time.Duration) {
	if p.metrics != nil {
		p.metrics.RecordStage(stage, duration)
	}
}

func (p *QueryPipeline) recordCacheEvent(result string) {
	if p.metrics != nil {
		p.metrics.RecordCacheEvent(result)
	}
}

// answerCacheKey pins the cache entry to the normalized text plus the
// classification outcome so rule changes invalidate stale entries.
func answerCacheKey(text string, c domain.Classification) string {
	sum := sha256.Sum256([]byte(foldText(text) + "|" + string(c.QueryType) + "|" + string(c.Strategy)))
	return "answer:" + hex.EncodeToString(sum[:16])
}
