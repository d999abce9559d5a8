// Package stats tracks query statistics for status displays.
package stats

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/flynn-ai/joat/pkg/protocol"
)

// Collector counts queries per category and per model. Safe for concurrent use.
type Collector struct {
	mu        sync.Mutex
	startTime time.Time

	requestCount  int64
	tokenCount    int64
	errorCount    int64
	totalDuration int64 // nanoseconds

	categories map[protocol.TaskCategory]int64
	models     map[string]*modelCounters
}

type modelCounters struct {
	requests      int64
	errors        int64
	tokens        int64
	totalDuration int64
}

// NewCollector creates a new stats collector.
func NewCollector() *Collector {
	return &Collector{
		startTime:  time.Now(),
		categories: make(map[protocol.TaskCategory]int64),
		models:     make(map[string]*modelCounters),
	}
}

// Stats represents statistics at a point in time.
type Stats struct {
	// System resources
	MemoryStats MemoryStats `json:"memory"`
	Goroutines  int         `json:"goroutines"`
	Uptime      string      `json:"uptime"`

	// Query metrics
	RequestCount int64   `json:"request_count"`
	TokenCount   int64   `json:"token_count"`
	ErrorCount   int64   `json:"error_count"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`

	Categories map[protocol.TaskCategory]int64 `json:"categories"`
	Models     []ModelStats                    `json:"models"`
}

// ModelStats are the counters of one model.
type ModelStats struct {
	Model        string  `json:"model"`
	Requests     int64   `json:"requests"`
	Errors       int64   `json:"errors"`
	Tokens       int64   `json:"tokens"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// MemoryStats represents memory usage statistics.
type MemoryStats struct {
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	HeapSysMB   float64 `json:"heap_sys_mb"`
	NumGC       uint32  `json:"num_gc"`
}

// RecordRequest records a completed query.
func (c *Collector) RecordRequest(category protocol.TaskCategory, model string, tokens int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestCount++
	c.tokenCount += int64(tokens)
	c.totalDuration += duration.Nanoseconds()
	c.categories[category]++

	m := c.model(model)
	m.requests++
	m.tokens += int64(tokens)
	m.totalDuration += duration.Nanoseconds()
}

// RecordError records a failed query. model may be empty when routing failed.
func (c *Collector) RecordError(category protocol.TaskCategory, model string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.errorCount++
	if category != "" {
		c.categories[category]++
	}
	if model != "" {
		c.model(model).errors++
	}
}

func (c *Collector) model(id string) *modelCounters {
	m, ok := c.models[id]
	if !ok {
		m = &modelCounters{}
		c.models[id] = m
	}
	return m
}

// Collect returns current statistics.
func (c *Collector) Collect() *Stats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	c.mu.Lock()
	defer c.mu.Unlock()

	categories := make(map[protocol.TaskCategory]int64, len(c.categories))
	for k, v := range c.categories {
		categories[k] = v
	}

	models := make([]ModelStats, 0, len(c.models))
	for id, m := range c.models {
		models = append(models, ModelStats{
			Model:        id,
			Requests:     m.requests,
			Errors:       m.errors,
			Tokens:       m.tokens,
			AvgLatencyMs: avgMillis(m.totalDuration, m.requests),
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Model < models[j].Model })

	return &Stats{
		MemoryStats: MemoryStats{
			HeapAllocMB: bytesToMB(int64(ms.HeapAlloc)),
			HeapSysMB:   bytesToMB(int64(ms.HeapSys)),
			NumGC:       ms.NumGC,
		},
		Goroutines:   runtime.NumGoroutine(),
		Uptime:       time.Since(c.startTime).Round(time.Second).String(),
		RequestCount: c.requestCount,
		TokenCount:   c.tokenCount,
		ErrorCount:   c.errorCount,
		AvgLatencyMs: avgMillis(c.totalDuration, c.requestCount),
		Categories:   categories,
		Models:       models,
	}
}

// StartTime returns when the collector started.
func (c *Collector) StartTime() time.Time {
	return c.startTime
}

func avgMillis(totalNanos, n int64) float64 {
	if n == 0 {
		return 0
	}
	return float64(totalNanos) / float64(n) / 1e6 // nanos to millis
}

// bytesToMB converts bytes to megabytes.
func bytesToMB(b int64) float64 {
	return float64(b) / 1024 / 1024
}
