// Package telemetry records timed spans and discrete events around schema
// generation and action dispatch. Recording is pure observation: disabling
// it changes nothing about generation or dispatch outcomes, and no recorded
// value ever feeds back into business logic.
package telemetry

import (
	"sync"
	"time"
)

// Well-known span and event kinds emitted by the core.
const (
	SpanGenerate   = "schema.generate"
	SpanHydrate    = "schema.hydrate"
	SpanDispatch   = "action.dispatch"
	EventCacheHit  = "cache.hit"
	EventCacheMiss = "cache.miss"
	EventFallback  = "hydrate.fallback"
	EventUnknown   = "action.unknown"
)

// Event is a discrete occurrence with optional attributes.
type Event struct {
	Kind  string         `json:"kind"`
	At    time.Time      `json:"at"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Span is a completed timed operation.
type Span struct {
	ID       string        `json:"id"`
	Kind     string        `json:"kind"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
}

// KindStats aggregates the spans of one kind.
type KindStats struct {
	Count int           `json:"count"`
	Total time.Duration `json:"total"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

// Summary aggregates the recorder's current in-memory buffer.
type Summary struct {
	SpanCount  int                  `json:"spanCount"`
	EventCount int                  `json:"eventCount"`
	ByKind     map[string]KindStats `json:"byKind"`
}

// Recorder is the telemetry contract consumed by the generator, hydrator
// and action router. Implementations must be safe for concurrent use.
type Recorder interface {
	// StartSpan opens a timed span. The id pairs it with a later EndSpan.
	StartSpan(id, kind string)
	// EndSpan closes the span and records its duration. Ending an unknown
	// id is a no-op.
	EndSpan(id, kind string)
	RecordEvent(e Event)
	Summary() Summary
	Clear()
	SetEnabled(enabled bool)
	Enabled() bool
}

type openSpan struct {
	kind  string
	start time.Time
}

// MemoryRecorder buffers spans and events in memory. It is the default
// recorder and the one tests assert against.
type MemoryRecorder struct {
	mu      sync.Mutex
	enabled bool
	open    map[string]openSpan
	spans   []Span
	events  []Event
	now     func() time.Time
}

// NewMemoryRecorder returns an enabled in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		enabled: true,
		open:    make(map[string]openSpan),
		now:     time.Now,
	}
}

func (r *MemoryRecorder) StartSpan(id, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	r.open[id] = openSpan{kind: kind, start: r.now()}
}

func (r *MemoryRecorder) EndSpan(id, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	o, ok := r.open[id]
	if !ok {
		return
	}
	delete(r.open, id)
	end := r.now()
	r.spans = append(r.spans, Span{
		ID:       id,
		Kind:     kind,
		Start:    o.start,
		End:      end,
		Duration: end.Sub(o.start),
	})
}

func (r *MemoryRecorder) RecordEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	if e.At.IsZero() {
		e.At = r.now()
	}
	r.events = append(r.events, e)
}

func (r *MemoryRecorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Summary{
		SpanCount:  len(r.spans),
		EventCount: len(r.events),
		ByKind:     make(map[string]KindStats),
	}
	for _, sp := range r.spans {
		st := s.ByKind[sp.Kind]
		if st.Count == 0 || sp.Duration < st.Min {
			st.Min = sp.Duration
		}
		if sp.Duration > st.Max {
			st.Max = sp.Duration
		}
		st.Count++
		st.Total += sp.Duration
		st.Avg = st.Total / time.Duration(st.Count)
		s.ByKind[sp.Kind] = st
	}
	return s
}

func (r *MemoryRecorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = make(map[string]openSpan)
	r.spans = nil
	r.events = nil
}

func (r *MemoryRecorder) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

func (r *MemoryRecorder) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Events returns a copy of the buffered events, oldest first.
func (r *MemoryRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Spans returns a copy of the completed spans, oldest first.
func (r *MemoryRecorder) Spans() []Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Span, len(r.spans))
	copy(out, r.spans)
	return out
}

var (
	defaultMu       sync.RWMutex
	defaultRecorder Recorder = NewMemoryRecorder()
)

// Default returns the process-wide recorder. It exists for convenience at
// composition roots; everything in this module also accepts an injected
// Recorder so tests never touch global state.
func Default() Recorder {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultRecorder
}

// SetDefault replaces the process-wide recorder.
func SetDefault(r Recorder) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRecorder = r
}
