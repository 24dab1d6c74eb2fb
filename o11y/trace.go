package o11y

import (
	"context"
	"encoding/json"
	"reflect"
	"runtime"
	"sync"
	"time"
)

type SpanKind string

const (
	SpanKindInternal SpanKind = "internal"
	SpanKindServer   SpanKind = "server"
	SpanKindClient   SpanKind = "client"
)

// Span is one node of the per-request trace tree. The claim service
// emits the finished tree as a response header, so the JSON shape here
// is the wire format downstream tooling reads.
type Span struct {
	Kind        SpanKind          `json:"kind,omitempty"`
	Name        string            `json:"name"`
	StartedAt   time.Time         `json:"started_at"`
	EndedAt     time.Time         `json:"ended_at,omitempty"`
	DurationMS  int64             `json:"duration_ms,omitempty"`
	Spans       []*Span           `json:"spans,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Status      int               `json:"status,omitempty"`
	Logs        []json.RawMessage `json:"logs,omitempty"`

	mu sync.Mutex
}

type spanKey struct{}

// GetSpan returns the active span, or nil outside a trace.
func GetSpan(ctx context.Context) *Span {
	span, ok := ctx.Value(spanKey{}).(*Span)
	if !ok {
		return nil
	}
	return span
}

// Trace opens a child span under the active one (or a root span if
// there is none) and returns a context carrying it.
func Trace(ctx context.Context, name string, opts ...func(*Span)) (context.Context, *Span) {
	span := &Span{
		Name:        name,
		StartedAt:   time.Now(),
		Metadata:    make(map[string]any),
		Annotations: make(map[string]string),
	}
	if parent := GetSpan(ctx); parent != nil {
		parent.mu.Lock()
		parent.Spans = append(parent.Spans, span)
		parent.mu.Unlock()
	}
	for _, opt := range opts {
		opt(span)
	}
	return context.WithValue(ctx, spanKey{}, span), span
}

func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndedAt = time.Now()
	s.DurationMS = s.EndedAt.Sub(s.StartedAt).Milliseconds()
}

// RecordError marks the span with the error's type, message and the
// goroutine stack at the record site. A nil error is a no-op, so call
// sites can record unconditionally in a defer.
func (s *Span) RecordError(err error) {
	if s == nil || err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Metadata["error.type"] = errType(err)
	s.Metadata["error.message"] = err.Error()

	stack := make([]byte, 2048)
	n := runtime.Stack(stack, false)
	s.Metadata["error.stack"] = string(stack[0:n])
}

func (s *Span) SetMetadata(attrs map[string]any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range attrs {
		s.Metadata[k] = v
	}
}

func (s *Span) SetAnnotation(key string, value string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Annotations[key] = value
}

func (s *Span) SetStatus(status int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
}

// Write collects structured log lines emitted while the span is active;
// see LoggerFromContext.
func (s *Span) Write(p []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Logs = append(s.Logs, json.RawMessage(p))
	return len(p), nil
}

func errType(err error) string {
	t := reflect.TypeOf(err)
	if t.PkgPath() == "" && t.Name() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

func WithSpanKind(kind SpanKind) func(s *Span) {
	return func(s *Span) {
		s.Kind = kind
	}
}

func WithMetadata(attrs map[string]any) func(s *Span) {
	return func(s *Span) {
		s.SetMetadata(attrs)
	}
}

func WithAnnotation(key string, value string) func(s *Span) {
	return func(s *Span) {
		s.SetAnnotation(key, value)
	}
}
