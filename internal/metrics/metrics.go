// Package metrics implements MetricsHub: in-process counters and
// histograms for the recall/ingest/maintenance paths, exposed as JSON and
// as Prometheus text exposition for scrape tooling. No metrics client
// library is shared across the example pack, so this is hand-rolled on
// sync.Mutex-guarded maps, matching the teacher's own preference for plain
// structs over a framework where one isn't already in the dependency set.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Hub aggregates every counter and histogram the recall/ingest/maintenance
// paths report against. One Hub is shared process-wide.
type Hub struct {
	mu sync.Mutex

	requestsByEndpoint map[string]int64
	cacheHits          int64
	cacheMisses        int64

	embedSuccess     int64
	embedFailed      int64
	embedCircuitOpen int64

	recallLatency map[string]*histogram // stage -> histogram, millis

	memoriesByAgent map[string]int64
	vectorlessCount int64
	diskUsageBytes  int64
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{
		requestsByEndpoint: map[string]int64{},
		recallLatency:      map[string]*histogram{},
		memoriesByAgent:    map[string]int64{},
	}
}

// RecordRequest increments the per-endpoint request counter.
func (h *Hub) RecordRequest(endpoint string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requestsByEndpoint[endpoint]++
}

// RecordCacheHit / RecordCacheMiss track RecallCache outcomes.
func (h *Hub) RecordCacheHit() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cacheHits++
}

func (h *Hub) RecordCacheMiss() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cacheMisses++
}

// RecordEmbed tracks one embed call's outcome.
func (h *Hub) RecordEmbed(ok, circuitOpen bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case circuitOpen:
		h.embedCircuitOpen++
	case ok:
		h.embedSuccess++
	default:
		h.embedFailed++
	}
}

// RecordRecallStage adds one latency sample (in milliseconds) for stage
// ("candidate", "fuse", "rerank_primary", "rerank_secondary", "total").
func (h *Hub) RecordRecallStage(stage string, millis float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hg, ok := h.recallLatency[stage]
	if !ok {
		hg = newHistogram()
		h.recallLatency[stage] = hg
	}
	hg.observe(millis)
}

// SetMemoryCount records the current live-memory count for an agent, for
// the per-agent gauge.
func (h *Hub) SetMemoryCount(agent string, count int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.memoriesByAgent[agent] = count
}

// SetVectorlessCount records how many memories currently have no embedding.
func (h *Hub) SetVectorlessCount(count int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vectorlessCount = count
}

// SetDiskUsage records the current on-disk footprint in bytes.
func (h *Hub) SetDiskUsage(bytes int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.diskUsageBytes = bytes
}

// Snapshot is a point-in-time, lock-free copy of every tracked metric.
type Snapshot struct {
	RequestsByEndpoint map[string]int64             `json:"requests_by_endpoint"`
	CacheHits          int64                        `json:"cache_hits"`
	CacheMisses        int64                        `json:"cache_misses"`
	EmbedSuccess       int64                        `json:"embed_success"`
	EmbedFailed        int64                        `json:"embed_failed"`
	EmbedCircuitOpen   int64                        `json:"embed_circuit_open"`
	RecallLatencyMS    map[string]HistogramSnapshot `json:"recall_latency_ms"`
	MemoriesByAgent    map[string]int64             `json:"memories_by_agent"`
	VectorlessCount    int64                        `json:"vectorless_count"`
	DiskUsageBytes     int64                        `json:"disk_usage_bytes"`
}

// Snapshot copies out the current state of every metric.
func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := Snapshot{
		RequestsByEndpoint: make(map[string]int64, len(h.requestsByEndpoint)),
		CacheHits:          h.cacheHits,
		CacheMisses:        h.cacheMisses,
		EmbedSuccess:       h.embedSuccess,
		EmbedFailed:        h.embedFailed,
		EmbedCircuitOpen:   h.embedCircuitOpen,
		RecallLatencyMS:    make(map[string]HistogramSnapshot, len(h.recallLatency)),
		MemoriesByAgent:    make(map[string]int64, len(h.memoriesByAgent)),
		VectorlessCount:    h.vectorlessCount,
		DiskUsageBytes:     h.diskUsageBytes,
	}
	for k, v := range h.requestsByEndpoint {
		s.RequestsByEndpoint[k] = v
	}
	for k, v := range h.memoriesByAgent {
		s.MemoriesByAgent[k] = v
	}
	for k, v := range h.recallLatency {
		s.RecallLatencyMS[k] = v.snapshot()
	}
	return s
}

// PrometheusText renders the current Snapshot in Prometheus text exposition
// format. Metrics appear in a fixed order and label values (endpoints,
// agents, stages) are sorted, so scrapes are byte-stable across calls.
func (h *Hub) PrometheusText() string {
	s := h.Snapshot()
	var b strings.Builder

	writeCounter := func(name string, v int64) {
		fmt.Fprintf(&b, "# TYPE %s counter\n%s %d\n", name, name, v)
	}
	writeGauge := func(name string, v int64) {
		fmt.Fprintf(&b, "# TYPE %s gauge\n%s %d\n", name, name, v)
	}

	endpoints := make([]string, 0, len(s.RequestsByEndpoint))
	for e := range s.RequestsByEndpoint {
		endpoints = append(endpoints, e)
	}
	sort.Strings(endpoints)
	for _, e := range endpoints {
		fmt.Fprintf(&b, "# TYPE agent_memory_requests_total counter\nagent_memory_requests_total{endpoint=%q} %d\n",
			e, s.RequestsByEndpoint[e])
	}

	writeCounter("agent_memory_cache_hits_total", s.CacheHits)
	writeCounter("agent_memory_cache_misses_total", s.CacheMisses)
	writeCounter("agent_memory_embed_success_total", s.EmbedSuccess)
	writeCounter("agent_memory_embed_failed_total", s.EmbedFailed)
	writeCounter("agent_memory_embed_circuit_open_total", s.EmbedCircuitOpen)
	writeGauge("agent_memory_vectorless_count", s.VectorlessCount)
	writeGauge("agent_memory_disk_usage_bytes", s.DiskUsageBytes)

	agents := make([]string, 0, len(s.MemoriesByAgent))
	for a := range s.MemoriesByAgent {
		agents = append(agents, a)
	}
	sort.Strings(agents)
	for _, a := range agents {
		fmt.Fprintf(&b, "# TYPE agent_memory_memories_count gauge\nagent_memory_memories_count{agent=%q} %d\n",
			a, s.MemoriesByAgent[a])
	}

	stages := make([]string, 0, len(s.RecallLatencyMS))
	for st := range s.RecallLatencyMS {
		stages = append(stages, st)
	}
	sort.Strings(stages)
	for _, st := range stages {
		hs := s.RecallLatencyMS[st]
		fmt.Fprintf(&b, "# TYPE agent_memory_recall_latency_ms summary\n"+
			"agent_memory_recall_latency_ms_count{stage=%q} %d\n"+
			"agent_memory_recall_latency_ms_sum{stage=%q} %f\n"+
			"agent_memory_recall_latency_ms{stage=%q,quantile=\"0.5\"} %f\n"+
			"agent_memory_recall_latency_ms{stage=%q,quantile=\"0.99\"} %f\n",
			st, hs.Count, st, hs.Sum, st, hs.P50, st, hs.P99)
	}

	return b.String()
}
