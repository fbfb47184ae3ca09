package logger

import (
	"sync"

	"go.uber.org/zap/zapcore"
)

// ============================================================================
// Ring buffer
// ============================================================================

type ring struct {
	mu   sync.Mutex
	buf  []Entry
	next int
	full bool
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Entry, capacity)}
}

func (r *ring) push(e Entry) {
	r.mu.Lock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

func (r *ring) recent(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	start := 0
	if r.full {
		size = len(r.buf)
		start = r.next
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Entry, 0, n)
	for i := size - n; i < size; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// ringCore is a zapcore.Core that records entries into a ring.
type ringCore struct {
	zapcore.LevelEnabler
	fields []zapcore.Field
	ring   *ring
}

func (c *ringCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &ringCore{LevelEnabler: c.LevelEnabler, fields: merged, ring: c.ring}
}

func (c *ringCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *ringCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	var kv map[string]any
	if len(c.fields)+len(fields) > 0 {
		enc := zapcore.NewMapObjectEncoder()
		for _, f := range c.fields {
			f.AddTo(enc)
		}
		for _, f := range fields {
			f.AddTo(enc)
		}
		kv = enc.Fields
	}

	c.ring.push(Entry{
		Time:    ent.Time,
		Level:   fromZap(ent.Level),
		Message: ent.Message,
		Fields:  kv,
	})
	return nil
}

func (c *ringCore) Sync() error { return nil }

// ============================================================================
// Asynchronous writer
// ============================================================================

type queued struct {
	line  []byte
	flush chan struct{}
}

// asyncWriter is a zapcore.WriteSyncer that hands encoded lines to a
// background goroutine. The queue is bounded: writers block when it is full.
type asyncWriter struct {
	out    zapcore.WriteSyncer
	queue  chan queued
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

func newAsyncWriter(out zapcore.WriteSyncer, size int) *asyncWriter {
	if size <= 0 {
		size = 256
	}
	w := &asyncWriter{
		out:   out,
		queue: make(chan queued, size),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for item := range w.queue {
		if item.flush != nil {
			_ = w.out.Sync()
			close(item.flush)
			continue
		}
		_, _ = w.out.Write(item.line)
	}
}

// Write copies p onto the queue. The encoder reuses its buffer after Write
// returns, so the copy is required.
func (w *asyncWriter) Write(p []byte) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return w.out.Write(p)
	}
	line := make([]byte, len(p))
	copy(line, p)
	w.queue <- queued{line: line}
	return len(p), nil
}

func (w *asyncWriter) Sync() error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return w.out.Sync()
	}
	flushed := make(chan struct{})
	w.queue <- queued{flush: flushed}
	w.mu.RUnlock()

	<-flushed
	return nil
}

func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	<-w.done
	return w.out.Sync()
}
