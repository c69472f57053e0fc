package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/docgloss/internal/document"
	"github.com/dgallion1/docgloss/internal/lock"
)

// Orchestrator manages scans: synchronous runs and a queued worker pool.
type Orchestrator struct {
	scans  *ScanStore
	queue  chan *Scan
	runner *Runner
	log    *slog.Logger
	opts   Options

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start before Submit.
func NewOrchestrator(opts Options, q Querier, locker lock.Locker, saver ReportSaver, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxQueueSize <= 0 {
		opts.MaxQueueSize = DefaultOptions().MaxQueueSize
	}
	if opts.ScanTTL <= 0 {
		opts.ScanTTL = DefaultOptions().ScanTTL
	}
	return &Orchestrator{
		scans:  NewScanStore(opts.ScanTTL),
		queue:  make(chan *Scan, opts.MaxQueueSize),
		runner: NewRunner(q, locker, saver, log, opts),
		log:    log,
		opts:   opts,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range max(o.opts.WorkerCount, 1) {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case scan, ok := <-o.queue:
					if !ok {
						return
					}
					if _, err := o.execute(workerCtx, scan); err != nil {
						o.log.Warn("scan did not run", "scan_id", scan.ID, "error", err)
					}
				}
			}
		}()
	}

	// Scan store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.scans.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// NewScan registers a scan for doc without starting it.
func (o *Orchestrator) NewScan(source string, doc *document.Document) *Scan {
	scan := NewScan(uuid.NewString(), source, doc)
	o.scans.Put(scan)
	return scan
}

// Run scans doc synchronously.
func (o *Orchestrator) Run(ctx context.Context, doc *document.Document) (Report, error) {
	return o.execute(ctx, o.NewScan("", doc))
}

// Submit queues a scan for the worker pool.
func (o *Orchestrator) Submit(scan *Scan) error {
	o.scans.Put(scan)
	scan.SetStatus(StatusQueued, "queued")
	select {
	case o.queue <- scan:
		return nil
	default:
		scan.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("scan queue is full (%d)", o.opts.MaxQueueSize)
	}
}

func (o *Orchestrator) execute(ctx context.Context, scan *Scan) (Report, error) {
	var cancel context.CancelFunc
	if o.opts.ScanTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.opts.ScanTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	scan.mu.Lock()
	skip := scan.Status == StatusCancelled
	scan.cancel = cancel
	scan.mu.Unlock()
	if skip {
		return Report{ScanID: scan.ID, DocID: scan.DocID, Cancelled: true}, nil
	}
	return o.runner.Run(ctx, scan)
}

// GetScan returns a scan by ID.
func (o *Orchestrator) GetScan(id string) *Scan {
	return o.scans.Get(id)
}

// Cancel stops a queued or running scan.
func (o *Orchestrator) Cancel(id string) bool {
	scan := o.scans.Get(id)
	if scan == nil {
		return false
	}
	return scan.Cancel()
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
