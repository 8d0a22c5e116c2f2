package llm

import (
	"sort"
	"sync"
	"time"
)

// ModelStats aggregates every attempt made against one model.
type ModelStats struct {
	Model          string  `json:"model"`
	Successes      int64   `json:"success_count"`
	Errors         int64   `json:"error_count"`
	TotalLatencyMS int64   `json:"total_latency_ms"`
	AvgLatencyMS   float64 `json:"avg_latency_ms"`
}

// Stats is the in-process view of per-model counters.
type Stats struct {
	mu      sync.Mutex
	byModel map[string]*ModelStats
}

func NewStats() *Stats {
	return &Stats{byModel: make(map[string]*ModelStats)}
}

func (s *Stats) Record(model string, success bool, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms, ok := s.byModel[model]
	if !ok {
		ms = &ModelStats{Model: model}
		s.byModel[model] = ms
	}
	if success {
		ms.Successes++
	} else {
		ms.Errors++
	}
	ms.TotalLatencyMS += latency.Milliseconds()
	ms.AvgLatencyMS = float64(ms.TotalLatencyMS) / float64(ms.Successes+ms.Errors)
}

func (s *Stats) Get(model string) (ModelStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.byModel[model]
	if !ok {
		return ModelStats{}, false
	}
	return *ms, true
}

// Snapshot returns copies sorted by model id.
func (s *Stats) Snapshot() []ModelStats {
	s.mu.Lock()
	out := make([]ModelStats, 0, len(s.byModel))
	for _, ms := range s.byModel {
		out = append(out, *ms)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}
