// Package metrics publishes check results for external consumers: a JSON
// snapshot file and Prometheus collectors.
package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jandubois/healthagent/internal/probe"
)

// Snapshot is the document written to the metrics file.
type Snapshot struct {
	Timestamp time.Time                `json:"timestamp"`
	Server    string                   `json:"server"`
	Checks    map[string]*probe.Result `json:"checks"`
}

// Publisher rewrites the snapshot file after every run.
type Publisher struct {
	path   string
	server string
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewPublisher creates a Publisher writing to path.
func NewPublisher(path, server string, logger *zap.Logger) *Publisher {
	return &Publisher{
		path:   path,
		server: server,
		logger: logger,
		now:    time.Now,
	}
}

// Publish writes the full result set. Failures are logged only.
func (p *Publisher) Publish(results map[string]*probe.Result) {
	if err := p.Write(results); err != nil {
		p.logger.Error("failed to write metrics file", zap.String("path", p.path), zap.Error(err))
	}
}

// Write replaces the snapshot file with the given results.
func (p *Publisher) Write(results map[string]*probe.Result) error {
	if results == nil {
		results = map[string]*probe.Result{}
	}
	snap := Snapshot{
		Timestamp: p.now(),
		Server:    p.server,
		Checks:    results,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	tmpPath := fmt.Sprintf("%s.%d.tmp", p.path, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace metrics file: %w", err)
	}
	return nil
}

// ReadSnapshot loads a snapshot file.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metrics file: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse metrics file: %w", err)
	}
	if snap.Checks == nil {
		snap.Checks = map[string]*probe.Result{}
	}
	return &snap, nil
}
