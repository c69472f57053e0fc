package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/dgallion1/docgloss/internal/model"
)

// ErrScanInProgress is returned when the document is already being scanned.
var ErrScanInProgress = errors.New("scan already in progress for document")

// Failure kinds.
const (
	KindTransport = "transport"
	KindMalformed = "malformed"
	KindOther     = "other"
)

// ChunkFailure records a chunk whose query or reply failed. The scan moved on.
type ChunkFailure struct {
	ChunkIndex int    `json:"chunk_index"`
	Kind       string `json:"kind"`
	Error      string `json:"error"`
	Err        error  `json:"-"`
}

// Report summarizes a finished scan.
type Report struct {
	ScanID     string         `json:"scan_id"`
	DocID      string         `json:"doc_id"`
	Chunks     int            `json:"chunks"`
	Succeeded  int            `json:"succeeded"`
	Failed     []ChunkFailure `json:"failed"`
	Annotated  int            `json:"annotated"`
	Dropped    int            `json:"dropped"`
	Cancelled  bool           `json:"cancelled"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Complete reports whether every chunk was applied.
func (r Report) Complete() bool {
	return !r.Cancelled && len(r.Failed) == 0 && r.Succeeded == r.Chunks
}

// ReportSaver persists finished reports.
type ReportSaver interface {
	SaveReport(ctx context.Context, r Report) error
}

func failureKind(err error) string {
	switch {
	case model.IsMalformed(err):
		return KindMalformed
	case model.IsTransport(err):
		return KindTransport
	default:
		return KindOther
	}
}
