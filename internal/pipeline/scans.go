package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/dgallion1/docgloss/internal/document"
)

// ScanStatus is the state of a scan.
type ScanStatus string

const (
	StatusIdle       ScanStatus = "idle"
	StatusQueued     ScanStatus = "queued"
	StatusExtracting ScanStatus = "extracting"
	StatusChunking   ScanStatus = "chunking"
	StatusQuerying   ScanStatus = "querying"
	StatusParsing    ScanStatus = "parsing"
	StatusOverlaying ScanStatus = "overlaying"
	StatusDone       ScanStatus = "done"
	StatusCancelled  ScanStatus = "cancelled"
	StatusFailed     ScanStatus = "failed"
)

// Terminal reports whether no further transitions happen.
func (s ScanStatus) Terminal() bool {
	return s == StatusDone || s == StatusCancelled || s == StatusFailed
}

// Scan tracks one full-document pass.
type Scan struct {
	mu sync.Mutex

	ID     string
	DocID  string
	Source string // file name or URL
	Title  string

	Status   ScanStatus
	Phase    string
	Progress Progress

	CreatedAt time.Time
	UpdatedAt time.Time

	// Internal: not serialized.
	doc    *document.Document
	report *Report
	cancel context.CancelFunc
}

// Progress tracks per-chunk processing.
type Progress struct {
	TotalChunks     int      `json:"total_chunks"`
	ChunksProcessed int      `json:"chunks_processed"`
	Annotated       int      `json:"annotated"`
	Dropped         int      `json:"dropped"`
	Errors          []string `json:"errors"`
}

// NewScan registers doc for scanning under id.
func NewScan(id, source string, doc *document.Document) *Scan {
	now := time.Now()
	return &Scan{
		ID:        id,
		DocID:     doc.ID,
		Source:    source,
		Status:    StatusIdle,
		Phase:     "idle",
		CreatedAt: now,
		UpdatedAt: now,
		doc:       doc,
	}
}

// SetStatus updates scan status atomically.
func (s *Scan) SetStatus(status ScanStatus, phase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
	s.Phase = phase
	s.UpdatedAt = time.Now()
}

// AddError records a failure message.
func (s *Scan) AddError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Progress.Errors = append(s.Progress.Errors, msg)
	s.UpdatedAt = time.Now()
}

// ChunkDone records one processed chunk and what it contributed.
func (s *Scan) ChunkDone(annotated, dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Progress.ChunksProcessed++
	s.Progress.Annotated += annotated
	s.Progress.Dropped += dropped
	s.UpdatedAt = time.Now()
}

func (s *Scan) SetTotalChunks(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Progress.TotalChunks = n
	s.UpdatedAt = time.Now()
}

func (s *Scan) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Title = title
}

// Document returns the live document under scan.
func (s *Scan) Document() *document.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Report returns the final report, nil until the scan ends.
func (s *Scan) Report() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

func (s *Scan) setReport(r Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = &r
	s.UpdatedAt = time.Now()
}

// Cancel stops the scan. Results arriving afterwards are discarded.
func (s *Scan) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status.Terminal() {
		return false
	}
	if s.cancel == nil {
		// Not started yet; the worker skips it.
		s.Status = StatusCancelled
		s.Phase = "cancelled"
		s.UpdatedAt = time.Now()
		return true
	}
	s.cancel()
	return true
}

// ScanSnapshot is a read-only, JSON-safe copy of scan state.
type ScanSnapshot struct {
	ID       string     `json:"scan_id"`
	DocID    string     `json:"doc_id"`
	Source   string     `json:"source"`
	Title    string     `json:"title"`
	Status   ScanStatus `json:"status"`
	Phase    string     `json:"phase"`
	Progress Progress   `json:"progress"`
	Report   *Report    `json:"report,omitempty"`
}

// Snapshot returns a JSON-safe copy of the scan state.
func (s *Scan) Snapshot() ScanSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	progress := s.Progress
	progress.Errors = append([]string{}, s.Progress.Errors...)
	return ScanSnapshot{
		ID:       s.ID,
		DocID:    s.DocID,
		Source:   s.Source,
		Title:    s.Title,
		Status:   s.Status,
		Phase:    s.Phase,
		Progress: progress,
		Report:   s.report,
	}
}

// ScanStore is a thread-safe in-memory scan registry with TTL eviction.
type ScanStore struct {
	mu    sync.Mutex
	scans map[string]*Scan
	ttl   time.Duration
}

func NewScanStore(ttl time.Duration) *ScanStore {
	return &ScanStore{
		scans: make(map[string]*Scan),
		ttl:   ttl,
	}
}

func (s *ScanStore) Put(scan *Scan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans[scan.ID] = scan
}

func (s *ScanStore) Get(id string) *Scan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scans[id]
}

// Cleanup removes finished scans idle for longer than the TTL.
func (s *ScanStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, scan := range s.scans {
		scan.mu.Lock()
		expired := scan.Status.Terminal() && now.Sub(scan.UpdatedAt) > s.ttl
		scan.mu.Unlock()
		if expired {
			delete(s.scans, id)
		}
	}
}

func (s *ScanStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scans)
}
