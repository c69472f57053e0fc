package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docgloss/internal/chunker"
	"github.com/dgallion1/docgloss/internal/doctree"
	"github.com/dgallion1/docgloss/internal/document"
	"github.com/dgallion1/docgloss/internal/extract"
	"github.com/dgallion1/docgloss/internal/lock"
	"github.com/dgallion1/docgloss/internal/model"
	"github.com/dgallion1/docgloss/internal/overlay"
)

// minOutputTokens is the smallest reply budget requested for a chunk.
const minOutputTokens = 256

// Querier sends one structured request. *model.Client implements it.
type Querier interface {
	Query(ctx context.Context, q model.Query) (model.Result, error)
}

// Options configures scanning.
type Options struct {
	Chunking        chunker.Config
	Concurrency     int // concurrent chunk queries; 1 is sequential
	MaxRetries      int
	MaxOutputTokens int
	LockTTL         time.Duration
	ScanTimeout     time.Duration
	WorkerCount     int
	MaxQueueSize    int
	ScanTTL         time.Duration
}

func DefaultOptions() Options {
	return Options{
		Chunking:        chunker.DefaultConfig(),
		Concurrency:     1,
		MaxRetries:      DefaultMaxRetries,
		MaxOutputTokens: 4096,
		LockTTL:         2 * time.Minute,
		WorkerCount:     2,
		MaxQueueSize:    50,
		ScanTTL:         time.Hour,
	}
}

// Runner executes scans against a single model.
type Runner struct {
	querier Querier
	locker  lock.Locker
	saver   ReportSaver
	engine  *overlay.Engine
	log     *slog.Logger
	opts    Options
	backoff func(attempt int) time.Duration
}

// NewRunner builds a Runner. locker defaults to an in-process lock and saver
// may be nil.
func NewRunner(q Querier, locker lock.Locker, saver ReportSaver, log *slog.Logger, opts Options) *Runner {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultOptions().LockTTL
	}
	return &Runner{
		querier: q,
		locker:  locker,
		saver:   saver,
		engine:  overlay.NewEngine(),
		log:     log,
		opts:    opts,
		backoff: Backoff,
	}
}

// chunkTerms holds the terms each chunk defined, indexed by chunk position.
// A word takes its definition from the chunk that holds it.
type chunkTerms struct {
	chunks []doctree.Chunk
	terms  []overlay.Terms
}

func newChunkTerms(chunks []doctree.Chunk) *chunkTerms {
	return &chunkTerms{chunks: chunks, terms: make([]overlay.Terms, len(chunks))}
}

func (ct *chunkTerms) at(word int) overlay.Terms {
	i := sort.Search(len(ct.chunks), func(i int) bool {
		return ct.chunks[i].WordStart+ct.chunks[i].Words > word
	})
	if i == len(ct.chunks) || word < ct.chunks[i].WordStart {
		return nil
	}
	return ct.terms[i]
}

// chunkResult is the outcome of one chunk query.
type chunkResult struct {
	res model.Result
	err error
}

// Run scans the document held by scan. Chunk failures are collected in the
// report; an error is returned only when the scan could not run at all.
func (r *Runner) Run(ctx context.Context, scan *Scan) (Report, error) {
	doc := scan.Document()
	log := r.log.With("scan_id", scan.ID, "doc_id", doc.ID)
	rep := Report{ScanID: scan.ID, DocID: doc.ID, StartedAt: time.Now()}

	ok, err := r.locker.Acquire(ctx, doc.ID, r.opts.LockTTL)
	if err != nil {
		scan.AddError(err.Error())
		scan.SetStatus(StatusFailed, "locking")
		return rep, fmt.Errorf("acquire scan lock: %w", err)
	}
	if !ok {
		scan.SetStatus(StatusFailed, "locked")
		return rep, ErrScanInProgress
	}
	defer func() {
		if err := r.locker.Release(context.WithoutCancel(ctx), doc.ID); err != nil {
			log.Warn("release scan lock failed", "error", err)
		}
	}()
	stop := r.keepalive(ctx, doc.ID, log)
	defer stop()

	// Phase 1: Extract
	scan.SetStatus(StatusExtracting, "extracting")
	dc := extract.Context(doc, nil)
	scan.SetTitle(dc.Title)

	// Phase 2: Chunk
	scan.SetStatus(StatusChunking, "chunking")
	chunks, err := chunker.ChunkWith(doc.Text(), r.opts.Chunking)
	if err != nil {
		scan.AddError(err.Error())
		scan.SetStatus(StatusFailed, "chunking")
		return rep, err
	}
	rep.Chunks = len(chunks)
	scan.SetTotalChunks(len(chunks))
	sets := document.Partition(doc.TextLeaves(), chunks)
	log.Info("chunked document", "chunks", len(chunks), "concurrency", r.opts.Concurrency)

	// Phase 3: Query, parse and overlay per chunk.
	ct := newChunkTerms(chunks)
	if r.opts.Concurrency > 1 && len(chunks) > 1 {
		r.runConcurrent(ctx, log, scan, &rep, dc, ct, sets)
	} else {
		r.runSequential(ctx, log, scan, &rep, dc, ct, sets)
	}

	rep.FinishedAt = time.Now()
	if rep.Cancelled {
		scan.SetStatus(StatusCancelled, "cancelled")
	} else {
		scan.SetStatus(StatusDone, "done")
	}
	scan.setReport(rep)
	log.Info("scan finished",
		"succeeded", rep.Succeeded, "failed", len(rep.Failed),
		"annotated", rep.Annotated, "dropped", rep.Dropped, "cancelled", rep.Cancelled)

	if r.saver != nil {
		if err := r.saver.SaveReport(context.WithoutCancel(ctx), rep); err != nil {
			log.Error("save report failed", "error", err)
		}
	}
	return rep, nil
}

func (r *Runner) runSequential(ctx context.Context, log *slog.Logger, scan *Scan, rep *Report, dc doctree.DocumentContext, ct *chunkTerms, sets []document.LeafSet) {
	chunks := ct.chunks
	for i, c := range chunks {
		if ctx.Err() != nil {
			rep.Cancelled = true
			return
		}
		scan.SetStatus(StatusQuerying, fmt.Sprintf("querying chunk %d/%d", i+1, len(chunks)))
		cr := r.query(ctx, log, dc, c)
		if ctx.Err() != nil {
			rep.Cancelled = true
			return
		}
		r.apply(log, scan, rep, ct, i, sets[i], cr)
	}
}

// runConcurrent queries up to Concurrency chunks at once and applies results
// strictly in chunk order.
func (r *Runner) runConcurrent(ctx context.Context, log *slog.Logger, scan *Scan, rep *Report, dc doctree.DocumentContext, ct *chunkTerms, sets []document.LeafSet) {
	chunks := ct.chunks
	qctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]chan chunkResult, len(chunks))
	for i := range results {
		results[i] = make(chan chunkResult, 1)
	}

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	launched := make(chan struct{})
	go func() {
		defer close(launched)
		for i, c := range chunks {
			if qctx.Err() != nil {
				return
			}
			g.Go(func() error {
				results[i] <- r.query(qctx, log, dc, c)
				return nil
			})
		}
	}()
	defer func() {
		cancel()
		<-launched
		_ = g.Wait()
	}()

	scan.SetStatus(StatusQuerying, fmt.Sprintf("querying %d chunks", len(chunks)))
	for i := range chunks {
		var cr chunkResult
		select {
		case cr = <-results[i]:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			rep.Cancelled = true
			return
		}
		r.apply(log, scan, rep, ct, i, sets[i], cr)
	}
}

// query asks for the chunk's terms, retrying retryable transport errors.
func (r *Runner) query(ctx context.Context, log *slog.Logger, dc doctree.DocumentContext, c doctree.Chunk) chunkResult {
	q := model.TermsQuery(dc, c, chunker.OutputBudget(c.Text, minOutputTokens, r.opts.MaxOutputTokens))
	res, err := retry(ctx, r.opts.MaxRetries, r.backoff,
		func(attempt int, err error) {
			log.Warn("retryable model error", "chunk", c.Index, "attempt", attempt, "error", err)
		},
		func(ctx context.Context) (model.Result, error) {
			return r.querier.Query(ctx, q)
		})
	return chunkResult{res: res, err: err}
}

// apply validates chunk i's reply and overlays the leaves attributed to it.
// Leaves reaching back into earlier chunks take those chunks' terms for their
// earlier words. Failures are recorded and never stop later chunks.
func (r *Runner) apply(log *slog.Logger, scan *Scan, rep *Report, ct *chunkTerms, i int, set document.LeafSet, cr chunkResult) {
	idx := ct.chunks[i].Index
	if cr.err != nil {
		log.Error("chunk failed", "chunk", idx, "error", cr.err)
		rep.Failed = append(rep.Failed, ChunkFailure{
			ChunkIndex: idx,
			Kind:       failureKind(cr.err),
			Error:      cr.err.Error(),
			Err:        cr.err,
		})
		scan.AddError(fmt.Sprintf("chunk %d: %s", idx, cr.err))
		n := r.engine.ApplyByWord(set, ct.at)
		rep.Annotated += n
		scan.ChunkDone(n, 0)
		return
	}

	scan.SetStatus(StatusParsing, fmt.Sprintf("parsing chunk %d", idx+1))
	terms, dropped := model.ParseTerms(cr.res)
	ct.terms[i] = overlay.Index(terms)

	scan.SetStatus(StatusOverlaying, fmt.Sprintf("overlaying chunk %d", idx+1))
	n := r.engine.ApplyByWord(set, ct.at)

	rep.Succeeded++
	rep.Annotated += n
	rep.Dropped += dropped
	scan.ChunkDone(n, dropped)
	log.Debug("chunk applied", "chunk", idx, "terms", len(terms), "annotated", n, "dropped", dropped)
}

// keepalive extends the document lock while the scan runs, if the locker
// supports it.
func (r *Runner) keepalive(ctx context.Context, name string, log *slog.Logger) (stop func()) {
	ext, ok := r.locker.(lock.Extender)
	if !ok {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.opts.LockTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ext.Extend(ctx, name, r.opts.LockTTL); err != nil {
					log.Warn("extend scan lock failed", "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}
