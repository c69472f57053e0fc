package pipeline

import (
	"testing"
	"time"

	"github.com/dgallion1/docgloss/internal/document"
)

func testScan(t *testing.T, id string) *Scan {
	t.Helper()
	doc, err := document.ParseString("<p>hello world</p>")
	if err != nil {
		t.Fatal(err)
	}
	return NewScan(id, "test.html", doc)
}

func TestNewScan_UsesDocumentID(t *testing.T) {
	scan := testScan(t, "s-1")
	if scan.DocID == "" || scan.DocID != scan.Document().ID {
		t.Errorf("expected doc id %q, got %q", scan.Document().ID, scan.DocID)
	}
	if scan.Status != StatusIdle {
		t.Errorf("expected status %q, got %q", StatusIdle, scan.Status)
	}
}

func TestScan_StateTransitions(t *testing.T) {
	scan := testScan(t, "s-2")

	transitions := []struct {
		status ScanStatus
		phase  string
	}{
		{StatusExtracting, "extracting"},
		{StatusChunking, "chunking"},
		{StatusQuerying, "querying chunk 1/2"},
		{StatusParsing, "parsing chunk 1"},
		{StatusOverlaying, "overlaying chunk 1"},
		{StatusDone, "done"},
	}

	for _, tr := range transitions {
		before := scan.UpdatedAt
		time.Sleep(time.Millisecond)
		scan.SetStatus(tr.status, tr.phase)

		if scan.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, scan.Status)
		}
		if scan.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, scan.Phase)
		}
		if !scan.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestScanStatus_Terminal(t *testing.T) {
	tests := []struct {
		status ScanStatus
		want   bool
	}{
		{StatusIdle, false},
		{StatusQueued, false},
		{StatusQuerying, false},
		{StatusDone, true},
		{StatusCancelled, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestScan_Progress(t *testing.T) {
	scan := testScan(t, "s-3")
	scan.SetTotalChunks(3)
	scan.ChunkDone(4, 1)
	scan.ChunkDone(0, 0)
	scan.AddError("chunk 1: boom")

	snap := scan.Snapshot()
	if snap.Progress.TotalChunks != 3 {
		t.Errorf("expected 3 total chunks, got %d", snap.Progress.TotalChunks)
	}
	if snap.Progress.ChunksProcessed != 2 {
		t.Errorf("expected 2 chunks processed, got %d", snap.Progress.ChunksProcessed)
	}
	if snap.Progress.Annotated != 4 || snap.Progress.Dropped != 1 {
		t.Errorf("unexpected counts: %+v", snap.Progress)
	}
	if len(snap.Progress.Errors) != 1 || snap.Progress.Errors[0] != "chunk 1: boom" {
		t.Errorf("unexpected errors: %v", snap.Progress.Errors)
	}
}

func TestScan_SnapshotErrorsNotNil(t *testing.T) {
	snap := testScan(t, "s-4").Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if snap.Report != nil {
		t.Error("expected no report before the scan ends")
	}
}

func TestScan_CancelBeforeStart(t *testing.T) {
	scan := testScan(t, "s-5")
	if !scan.Cancel() {
		t.Fatal("expected cancel to succeed")
	}
	if scan.Status != StatusCancelled {
		t.Errorf("expected status %q, got %q", StatusCancelled, scan.Status)
	}
	if scan.Cancel() {
		t.Error("expected second cancel to be a no-op")
	}
}

func TestScanStore_PutGet(t *testing.T) {
	store := NewScanStore(time.Hour)
	store.Put(testScan(t, "store-1"))

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get scan back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing scan")
	}
}

func TestScanStore_TTLCleanup(t *testing.T) {
	store := NewScanStore(50 * time.Millisecond)

	expired := testScan(t, "old")
	expired.SetStatus(StatusDone, "done")
	running := testScan(t, "running")
	running.SetStatus(StatusQuerying, "querying")
	store.Put(expired)
	store.Put(running)

	time.Sleep(100 * time.Millisecond)

	fresh := testScan(t, "new")
	fresh.SetStatus(StatusDone, "done")
	store.Put(fresh)

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired scan to be cleaned up")
	}
	if store.Get("running") == nil {
		t.Error("expected running scan to survive cleanup")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh scan to survive cleanup")
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 scans, got %d", store.Len())
	}
}

func TestBackoff_Bounds(t *testing.T) {
	for attempt := range 8 {
		d := Backoff(attempt)
		base := time.Duration(1<<uint(min(attempt, 5))) * time.Second
		base = min(base, 30*time.Second)
		if d < base || d >= base+base/2 {
			t.Errorf("Backoff(%d) = %v, want in [%v, %v)", attempt, d, base, base+base/2)
		}
	}
}
