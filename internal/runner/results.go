package runner

import (
	"context"
	"sync"
	"time"

	"github.com/jandubois/healthagent/internal/probe"
)

// ResultSet holds the most recent result of every check that has run.
type ResultSet struct {
	mu      sync.Mutex
	results map[string]*probe.Result
}

// NewResultSet creates an empty result set.
func NewResultSet() *ResultSet {
	return &ResultSet{results: make(map[string]*probe.Result)}
}

// Store replaces the result recorded for name.
func (s *ResultSet) Store(name string, result *probe.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[name] = result
}

// Get returns the latest result for name.
func (s *ResultSet) Get(name string) (*probe.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[name]
	return r, ok
}

// Snapshot returns a copy of the set. Results are immutable once stored,
// so only the map itself is copied.
func (s *ResultSet) Snapshot() map[string]*probe.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*probe.Result, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}

// Len returns the number of checks with a result.
func (s *ResultSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// RunRecord describes one completed check run.
type RunRecord struct {
	ID             string
	Check          string
	Result         *probe.Result
	StartedAt      time.Time
	Duration       time.Duration
	AlertAttempted bool
	AlertDelivered bool
}

// Recorder observes completed runs, e.g. to keep history or export metrics.
type Recorder interface {
	RecordRun(ctx context.Context, rec *RunRecord) error
}
