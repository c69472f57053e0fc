package command

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dgallion1/docgloss/internal/document"
)

var (
	ErrDuplicateCommand = errors.New("command already registered")
	ErrInvalidCombo     = errors.New("invalid key combination")
	ErrUnknownCommand   = errors.New("no command registered")
)

// Event is one key-combination activation delivered by the host.
type Event struct {
	Combo     string
	Doc       *document.Document
	Selection *document.Selection
}

// Handler runs a command and returns a JSON-serializable result.
type Handler func(ctx context.Context, ev Event) (any, error)

// Registry maps normalized combos to handlers. The host's dispatch loop
// delivers each key event once; the registry does no de-duplication.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds h to combo. A combo already bound fails with
// ErrDuplicateCommand and leaves the first handler in place.
func (r *Registry) Register(combo string, h Handler) error {
	if h == nil {
		return fmt.Errorf("register %q: nil handler", combo)
	}
	key, err := Normalize(combo)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[key]; ok {
		return fmt.Errorf("%s: %w", key, ErrDuplicateCommand)
	}
	r.handlers[key] = h
	return nil
}

// Dispatch runs the handler bound to combo.
func (r *Registry) Dispatch(ctx context.Context, combo string, ev Event) (any, error) {
	key, err := Normalize(combo)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	h, ok := r.handlers[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrUnknownCommand)
	}
	ev.Combo = key
	return h(ctx, ev)
}

// Combos returns the registered combos, sorted.
func (r *Registry) Combos() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

var modifierOrder = []string{"ctrl", "alt", "shift", "meta"}

var modifierAliases = map[string]string{
	"ctrl":    "ctrl",
	"control": "ctrl",
	"alt":     "alt",
	"option":  "alt",
	"shift":   "shift",
	"meta":    "meta",
	"cmd":     "meta",
	"command": "meta",
	"super":   "meta",
}

// Normalize lowercases combo and orders its modifiers as ctrl, alt, shift,
// meta followed by exactly one key, e.g. "A+Shift" becomes "shift+a".
func Normalize(combo string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(combo))
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCombo)
	}
	var parts []string
	if strings.HasSuffix(s, "++") {
		parts = append(strings.Split(strings.TrimSuffix(s, "++"), "+"), "+")
	} else {
		parts = strings.Split(s, "+")
	}

	mods := make(map[string]bool)
	key := ""
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidCombo, combo)
		}
		if m, ok := modifierAliases[p]; ok {
			mods[m] = true
			continue
		}
		if key != "" {
			return "", fmt.Errorf("%w: %q has more than one key", ErrInvalidCombo, combo)
		}
		key = p
	}
	if key == "" {
		return "", fmt.Errorf("%w: %q has no key", ErrInvalidCombo, combo)
	}

	out := make([]string, 0, len(mods)+1)
	for _, m := range modifierOrder {
		if mods[m] {
			out = append(out, m)
		}
	}
	return strings.Join(append(out, key), "+"), nil
}
