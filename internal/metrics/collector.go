// Package metrics keeps in-memory timing and token statistics for one
// command run.
package metrics

import (
	"cmp"
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpDocument    = "document"
	OpPrompt      = "prompt"
	OpEmbedding   = "embedding"
	OpLLMGenerate = "llm_generate"
	OpDBUpsert    = "db_upsert"
	OpDBSearch    = "db_search"
)

// span tracks the smallest and largest value observed.
type span[T cmp.Ordered] struct {
	min, max T
	seen     bool
}

func (s *span[T]) observe(v T) {
	if !s.seen {
		s.min, s.max, s.seen = v, v, true
		return
	}
	s.min = min(s.min, v)
	s.max = max(s.max, v)
}

// OperationMetrics is the raw aggregate for one operation.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	// Token totals stay zero for operations without LLM usage.
	TotalInputTokens  int64
	TotalOutputTokens int64

	times     span[time.Duration]
	inTokens  span[int64]
	outTokens span[int64]
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64

	// Token stats (nil if not applicable)
	TotalInputTokens  *int64
	TotalOutputTokens *int64
	AvgInputTokens    *float64
	AvgOutputTokens   *float64
	MinInputTokens    *int64
	MaxInputTokens    *int64
	MinOutputTokens   *int64
	MaxOutputTokens   *int64
}

// Snapshot is the state of every known operation at one point in time.
// Operations that never ran are nil.
type Snapshot struct {
	ElapsedSeconds float64
	Document       *OperationSnapshot
	Prompt         *OperationSnapshot
	Embedding      *OperationSnapshot
	LLMGenerate    *OperationSnapshot
	DBUpsert       *OperationSnapshot
	DBSearch       *OperationSnapshot
}

// Collector aggregates statistics. It is safe for concurrent use.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	now       func() time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a collector on the wall clock.
func NewCollector() *Collector {
	return NewCollectorWithClock(time.Now)
}

// NewCollectorWithClock creates a collector that reads time from now.
func NewCollectorWithClock(now func() time.Time) *Collector {
	return &Collector{
		startTime: now(),
		now:       now,
		ops:       make(map[string]*OperationMetrics),
	}
}

// Elapsed returns the time since the collector was created.
func (c *Collector) Elapsed() time.Duration {
	return c.now().Sub(c.startTime)
}

// Time runs fn and records its duration under op, whether or not it fails.
func (c *Collector) Time(op string, fn func() error) error {
	start := c.now()
	err := fn()
	c.RecordTiming(op, c.now().Sub(start))
	return err
}

// Count returns how often op was recorded.
func (c *Collector) Count(op string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if m, ok := c.ops[op]; ok {
		return m.Count
	}
	return 0
}

// record adds one timed observation. Caller holds the write lock.
func (c *Collector) record(op string, d time.Duration) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{}
		c.ops[op] = m
	}
	m.Count++
	m.TotalTime += d
	m.times.observe(d)
	return m
}

// RecordTiming records one duration for op.
func (c *Collector) RecordTiming(op string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(op, d)
}

// RecordLLMUsage records one LLM call with its token usage.
func (c *Collector) RecordLLMUsage(op string, d time.Duration, inputTokens, outputTokens int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.record(op, d)
	m.TotalInputTokens += inputTokens
	m.TotalOutputTokens += outputTokens
	m.inTokens.observe(inputTokens)
	m.outTokens.observe(outputTokens)
}

func ptr[T any](v T) *T { return &v }

func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	n := float64(m.Count)
	snap := &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / n,
		MinTimeMs:   m.times.min.Milliseconds(),
		MaxTimeMs:   m.times.max.Milliseconds(),
	}
	if m.TotalInputTokens == 0 && m.TotalOutputTokens == 0 {
		return snap
	}

	snap.TotalInputTokens = ptr(m.TotalInputTokens)
	snap.TotalOutputTokens = ptr(m.TotalOutputTokens)
	snap.AvgInputTokens = ptr(float64(m.TotalInputTokens) / n)
	snap.AvgOutputTokens = ptr(float64(m.TotalOutputTokens) / n)
	snap.MinInputTokens = ptr(m.inTokens.min)
	snap.MaxInputTokens = ptr(m.inTokens.max)
	snap.MinOutputTokens = ptr(m.outTokens.min)
	snap.MaxOutputTokens = ptr(m.outTokens.max)
	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		ElapsedSeconds: c.now().Sub(c.startTime).Seconds(),
		Document:       snapshotOp(c.ops[OpDocument]),
		Prompt:         snapshotOp(c.ops[OpPrompt]),
		Embedding:      snapshotOp(c.ops[OpEmbedding]),
		LLMGenerate:    snapshotOp(c.ops[OpLLMGenerate]),
		DBUpsert:       snapshotOp(c.ops[OpDBUpsert]),
		DBSearch:       snapshotOp(c.ops[OpDBSearch]),
	}
}
