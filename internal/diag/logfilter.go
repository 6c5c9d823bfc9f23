package diag

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// botAttrKey is the slog attribute the filter matches overrides against.
// Bot-aware call sites log with slog.String("bot", name).
const botAttrKey = "bot"

// LevelFilter is a slog.Handler that applies per-bot log-level overrides
// on top of the host logger. Records without a bot attribute, or for bots
// without an override, pass through to the wrapped handler's own level.
type LevelFilter struct {
	inner slog.Handler

	mu        sync.RWMutex
	overrides map[string]slog.Level // lowercase bot name → minimum level
}

// NewLevelFilter wraps a handler with an empty override table.
func NewLevelFilter(inner slog.Handler) *LevelFilter {
	return &LevelFilter{
		inner:     inner,
		overrides: make(map[string]slog.Level, 8),
	}
}

// Set installs or replaces the override for a bot name.
func (f *LevelFilter) Set(name string, level slog.Level) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[strings.ToLower(name)] = level
}

// Clear removes the override for a bot name. Idempotent.
func (f *LevelFilter) Clear(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.overrides, strings.ToLower(name))
}

// List returns the active overrides sorted by bot name.
func (f *LevelFilter) List() []LevelOverride {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]LevelOverride, 0, len(f.overrides))
	for name, level := range f.overrides {
		out = append(out, LevelOverride{Name: name, Level: level})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LevelOverride is one active per-bot override.
type LevelOverride struct {
	Name  string
	Level slog.Level
}

// Enabled defers to the wrapped handler. Per-bot overrides can only be
// applied in Handle, where the record's attributes are visible.
func (f *LevelFilter) Enabled(ctx context.Context, level slog.Level) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	// If any override is more permissive than the base handler, records at
	// that level must reach Handle for per-bot matching.
	for _, min := range f.overrides {
		if level >= min {
			return true
		}
	}
	return f.inner.Enabled(ctx, level)
}

// Handle applies the override for the record's bot attribute, if any.
func (f *LevelFilter) Handle(ctx context.Context, r slog.Record) error {
	var botName string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == botAttrKey {
			botName = strings.ToLower(a.Value.String())
			return false
		}
		return true
	})

	if botName != "" {
		f.mu.RLock()
		min, ok := f.overrides[botName]
		f.mu.RUnlock()
		if ok {
			if r.Level < min {
				return nil
			}
			return f.inner.Handle(ctx, r)
		}
	}

	if !f.inner.Enabled(ctx, r.Level) {
		return nil
	}
	return f.inner.Handle(ctx, r)
}

// WithAttrs wraps the derived handler so overrides keep applying.
func (f *LevelFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &derivedFilter{parent: f, inner: f.inner.WithAttrs(attrs)}
}

// WithGroup wraps the derived handler so overrides keep applying.
func (f *LevelFilter) WithGroup(name string) slog.Handler {
	return &derivedFilter{parent: f, inner: f.inner.WithGroup(name)}
}

// derivedFilter shares the parent's override table but delegates to a
// handler derived via WithAttrs/WithGroup.
type derivedFilter struct {
	parent *LevelFilter
	inner  slog.Handler
}

func (d *derivedFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return d.parent.Enabled(ctx, level)
}

// Handle applies the parent's overrides against the derived inner handler.
func (d *derivedFilter) Handle(ctx context.Context, r slog.Record) error {
	var botName string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == botAttrKey {
			botName = strings.ToLower(a.Value.String())
			return false
		}
		return true
	})

	if botName != "" {
		d.parent.mu.RLock()
		min, ok := d.parent.overrides[botName]
		d.parent.mu.RUnlock()
		if ok {
			if r.Level < min {
				return nil
			}
			return d.inner.Handle(ctx, r)
		}
	}

	if !d.inner.Enabled(ctx, r.Level) {
		return nil
	}
	return d.inner.Handle(ctx, r)
}

func (d *derivedFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &derivedFilter{parent: d.parent, inner: d.inner.WithAttrs(attrs)}
}

func (d *derivedFilter) WithGroup(name string) slog.Handler {
	return &derivedFilter{parent: d.parent, inner: d.inner.WithGroup(name)}
}
