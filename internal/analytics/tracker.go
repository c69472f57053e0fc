package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Event types.
const (
	TypeAnnotation = "annotation"
	TypeCommand    = "command"
	TypeClick      = "click"
)

// Rect is an element's position in the viewport, as reported by the host.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Event is one interaction beacon.
type Event struct {
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Position  *Rect     `json:"position,omitempty"`
	Timestamp int64     `json:"timestamp"` // unix millis
	Viewport  *Viewport `json:"viewport,omitempty"`
}

// Tracker posts events to an endpoint in the background. Delivery is best
// effort: a full buffer or a failed post drops the event.
type Tracker struct {
	endpoint   string
	httpClient *http.Client
	log        *slog.Logger

	mu     sync.Mutex
	closed bool
	events chan Event
	done   chan struct{}
}

// NewTracker starts a tracker. An empty endpoint disables tracking.
func NewTracker(endpoint string, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	t := &Tracker{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log:  log.With("component", "analytics"),
		done: make(chan struct{}),
	}
	if endpoint == "" {
		close(t.done)
		return t
	}
	t.events = make(chan Event, 256)
	go t.loop()
	return t
}

// Enabled reports whether events are sent anywhere.
func (t *Tracker) Enabled() bool {
	return t != nil && t.endpoint != ""
}

// Track queues ev without blocking.
func (t *Tracker) Track(ev Event) {
	if !t.Enabled() {
		return
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.events <- ev:
	default:
		t.log.Warn("analytics buffer full, dropping event", "type", ev.Type)
	}
}

// Close flushes queued events and stops the sender.
func (t *Tracker) Close() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if !t.closed && t.events != nil {
		close(t.events)
	}
	t.closed = true
	t.mu.Unlock()
	<-t.done
}

func (t *Tracker) loop() {
	defer close(t.done)
	for ev := range t.events {
		ctx, cancel := context.WithTimeout(context.Background(), t.httpClient.Timeout)
		if err := t.send(ctx, ev); err != nil {
			t.log.Warn("analytics post failed", "type", ev.Type, "error", err)
		}
		cancel()
	}
}

func (t *Tracker) send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("post event: status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
