package digest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/muilab/notigpt/internal/llm"
	"github.com/muilab/notigpt/internal/logger"
)

const currentTimeLayout = "2006-01-02 15:04 Monday"

// Dispatcher sends chunks to the model on a shared worker pool and collects
// one result per chunk.
type Dispatcher struct {
	client     llm.Completer
	prompts    PromptSet
	pool       *WorkerPool
	normalizer Normalizer
	metrics    *Metrics
	logger     *logger.Logger
	now        func() time.Time
}

// NewDispatcher creates a dispatcher. A nil normalizer leaves replies unchanged.
func NewDispatcher(client llm.Completer, prompts PromptSet, pool *WorkerPool, normalizer Normalizer, metrics *Metrics, logger *logger.Logger) *Dispatcher {
	if normalizer == nil {
		normalizer = identityNormalizer{}
	}
	return &Dispatcher{
		client:     client,
		prompts:    prompts,
		pool:       pool,
		normalizer: normalizer,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Messages builds the four-message conversation for one chunk: lead
// instruction, current time, the chunk, end instruction.
func (d *Dispatcher) Messages(mode Mode, chunk string, now time.Time) []llm.Message {
	pair := d.prompts.For(mode)
	return []llm.Message{
		{Role: llm.RoleSystem, Content: pair.Lead},
		{Role: llm.RoleSystem, Content: "The current time is " + now.Format(currentTimeLayout) + "."},
		{Role: llm.RoleUser, Content: chunk},
		{Role: llm.RoleSystem, Content: pair.End},
	}
}

// Dispatch sends every chunk and waits for all of them. results[i] always
// belongs to chunks[i], whatever order the calls finish in.
func (d *Dispatcher) Dispatch(ctx context.Context, mode Mode, chunks []string) []ChunkResult {
	results := make([]ChunkResult, len(chunks))
	if len(chunks) == 0 {
		return results
	}

	log := d.logger.WithContext(ctx)
	log.Debug("dispatching chunks",
		slog.Int("chunk_count", len(chunks)),
		slog.Int("workers", d.pool.Size()))

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		err := d.pool.Submit(ctx, func() {
			defer wg.Done()
			results[i] = d.call(ctx, mode, i, chunk)
		})
		if err != nil {
			wg.Done()
			log.Warn("chunk not dispatched",
				slog.Int("chunk", i),
				slog.String("error", err.Error()))
			results[i] = ChunkResult{Index: i, Text: UnknownErrorText, Status: StatusUnknown, Err: err}
		}
	}
	wg.Wait()

	return results
}

// call performs one completion and maps its outcome onto a ChunkResult.
// Failures never escape the chunk.
func (d *Dispatcher) call(ctx context.Context, mode Mode, index int, chunk string) (result ChunkResult) {
	log := d.logger.WithContext(ctx)
	start := time.Now()
	d.metrics.chunkStarted()
	defer func() {
		if r := recover(); r != nil {
			log.Error("chunk call panicked", slog.Int("chunk", index), slog.Any("panic", r))
			result = ChunkResult{Index: index, Text: UnknownErrorText, Status: StatusUnknown, Err: fmt.Errorf("panic: %v", r)}
		}
		d.metrics.chunkFinished(mode, result, time.Since(start).Seconds())
	}()

	resp, err := d.client.CreateChatCompletion(ctx, llm.ChatRequest{
		Messages: d.Messages(mode, chunk, d.now()),
	})
	if err != nil {
		if apiErr, ok := llm.AsAPIError(err); ok {
			log.Warn("provider rejected chunk",
				slog.Int("chunk", index),
				slog.Int("status_code", apiErr.StatusCode),
				slog.Bool("rate_limited", apiErr.IsRateLimited()),
				slog.String("error", apiErr.Message))
			return ChunkResult{Index: index, Text: apiErr.Message, Status: StatusProviderError, Err: err}
		}
		log.Error("chunk call failed",
			slog.Int("chunk", index),
			slog.String("error", err.Error()))
		return ChunkResult{Index: index, Text: UnknownErrorText, Status: StatusUnknown, Err: err}
	}

	content, finishReason, ok := resp.FirstContent()
	if !ok {
		log.Error("completion has no choices", slog.Int("chunk", index))
		return ChunkResult{Index: index, Text: UnknownErrorText, Status: StatusUnknown, Err: fmt.Errorf("completion has no choices")}
	}
	if finishReason != "" && finishReason != "stop" {
		log.Warn("completion did not finish cleanly",
			slog.Int("chunk", index),
			slog.String("finish_reason", finishReason))
	}

	log.Debug("chunk completed",
		slog.Int("chunk", index),
		slog.Duration("duration", time.Since(start)))

	return ChunkResult{Index: index, Text: d.normalizer.Normalize(CleanReply(content)), Status: StatusOK}
}
