package digest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/muilab/notigpt/internal/drawer"
	"github.com/muilab/notigpt/internal/events"
	"github.com/muilab/notigpt/internal/llm"
	"github.com/muilab/notigpt/internal/logger"
)

// Publisher announces finished digests.
type Publisher interface {
	PublishDigestCompleted(ctx context.Context, evt events.DigestCompleted) error
}

// SeenMarker rotates every unit's current infos into its previous infos.
type SeenMarker interface {
	MarkSeen(ctx context.Context) (int, error)
}

// Config wires a Pipeline. Units, Client and Logger are required.
type Config struct {
	Units   drawer.Store
	Client  llm.Completer
	Prompts PromptSet
	Logger  *logger.Logger

	Workers      int
	MaxChunkSize int
	Measure      Measure
	Normalizer   Normalizer

	// Optional collaborators; nil disables each.
	History    *HistoryStore
	Publisher  Publisher
	SeenMarker SeenMarker
	Metrics    *Metrics
}

// Pipeline turns the stored notifications into one model-written digest:
// load, chunk, dispatch in parallel, join in order.
type Pipeline struct {
	units      drawer.Store
	formatter  *Formatter
	dispatcher *Dispatcher
	pool       *WorkerPool
	history    *HistoryStore
	publisher  Publisher
	seenMarker SeenMarker
	metrics    *Metrics
	logger     *logger.Logger
	now        func() time.Time
}

// NewPipeline builds a pipeline and starts its worker pool.
func NewPipeline(cfg Config) *Pipeline {
	log := cfg.Logger.WithComponent("digest")
	pool := NewWorkerPool(cfg.Workers, log)

	return &Pipeline{
		units:      cfg.Units,
		formatter:  NewFormatter(cfg.MaxChunkSize, cfg.Measure),
		dispatcher: NewDispatcher(cfg.Client, cfg.Prompts, pool, cfg.Normalizer, cfg.Metrics, log),
		pool:       pool,
		history:    cfg.History,
		publisher:  cfg.Publisher,
		seenMarker: cfg.SeenMarker,
		metrics:    cfg.Metrics,
		logger:     log,
		now:        time.Now,
	}
}

// Run builds a digest of every stored unit in mode.
//
// A chunk whose request fails never fails the run: its error text takes the
// chunk's slot in Digest.Text and Failed counts it. The one error Run returns
// is a failure to read the drawer, since there is then nothing to digest. In
// that case no digest is stored or published and the result is nil.
func (p *Pipeline) Run(ctx context.Context, mode Mode) (*Digest, error) {
	runID := uuid.New().String()
	ctx = logger.WithRunID(ctx, runID)
	ctx = logger.WithMode(ctx, string(mode))
	log := p.logger.WithContext(ctx)
	start := p.now()

	units, err := p.units.GetAll(ctx)
	if err != nil {
		p.metrics.observeStoreError(mode)
		return nil, fmt.Errorf("failed to load notification units: %w", err)
	}

	chunks := p.formatter.Chunks(units)
	log.Info("digest run started",
		slog.Int("unit_count", len(units)),
		slog.Int("chunk_count", len(chunks)),
		slog.Bool("known_mode", mode.Known()))

	// Calls run to completion even if the caller goes away.
	results := p.dispatcher.Dispatch(context.WithoutCancel(ctx), mode, chunks)

	d := &Digest{
		ID:         runID,
		Mode:       mode,
		Text:       Join(results),
		Chunks:     results,
		ChunkCount: len(results),
		Failed:     countFailed(results),
		UnitCount:  len(units),
		CreatedAt:  start,
		Duration:   p.now().Sub(start),
	}

	p.metrics.observeRun(d)
	log.Info("digest run finished",
		slog.Int("failed_chunks", d.Failed),
		slog.Duration("duration", d.Duration))

	p.afterRun(context.WithoutCancel(ctx), d)

	return d, nil
}

// afterRun records, announces and acknowledges a finished digest. Failures
// are logged only.
func (p *Pipeline) afterRun(ctx context.Context, d *Digest) {
	log := p.logger.WithContext(ctx)

	if p.history != nil {
		if err := p.history.Save(ctx, d); err != nil {
			log.Error("failed to save digest", slog.String("error", err.Error()))
		}
	}

	if p.publisher != nil {
		evt := events.DigestCompleted{
			DigestID:     d.ID,
			Mode:         string(d.Mode),
			ChunkCount:   d.ChunkCount,
			FailedChunks: d.Failed,
			UnitCount:    d.UnitCount,
			DurationMS:   d.Duration.Milliseconds(),
			CreatedAt:    d.CreatedAt,
		}
		if err := p.publisher.PublishDigestCompleted(ctx, evt); err != nil {
			log.Warn("failed to publish digest event", slog.String("error", err.Error()))
		}
	}

	// Only a complete summary acknowledges what it covered.
	if p.seenMarker != nil && d.Mode == ModeSummarize && !d.Degraded() && d.UnitCount > 0 {
		n, err := p.seenMarker.MarkSeen(ctx)
		if err != nil {
			log.Error("failed to mark units seen", slog.String("error", err.Error()))
			return
		}
		log.Debug("units marked seen", slog.Int("updated", n))
	}
}

// Latest returns the most recent recorded digest for mode.
func (p *Pipeline) Latest(ctx context.Context, mode Mode) (*Digest, error) {
	if p.history == nil {
		return nil, fmt.Errorf("%w: history is disabled", ErrNoDigest)
	}
	return p.history.Latest(ctx, mode)
}

// Close stops the worker pool. Calls already running finish; chunks of an
// unfinished run that no worker took yet end up as Unknown.
func (p *Pipeline) Close() {
	p.pool.Close()
}
