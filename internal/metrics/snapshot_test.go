package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jandubois/healthagent/internal/probe"
)

func TestPublisherWritesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "metrics.json")
	p := NewPublisher(path, "web-1", zap.NewNop())
	p.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	disk := probe.New(probe.StatusWarning, "sda hot").WithValue(48, "C")
	require.NoError(t, disk.Set("disk", "/dev/sda"))
	p.Publish(map[string]*probe.Result{
		"disk": disk,
		"ssl":  probe.New(probe.StatusOK, "certificates valid"),
	})

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "2024-05-01T12:00:00Z", raw["timestamp"])
	assert.Equal(t, "web-1", raw["server"])
	checks := raw["checks"].(map[string]any)
	require.Len(t, checks, 2)
	d := checks["disk"].(map[string]any)
	assert.Equal(t, "warning", d["status"])
	assert.Equal(t, 48.0, d["value"])
	assert.Equal(t, "/dev/sda", d["disk"])

	snap, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, "web-1", snap.Server)
	assert.Equal(t, probe.StatusOK, snap.Checks["ssl"].Status)

	matches, err := filepath.Glob(path + ".*.tmp")
	require.NoError(t, err)
	assert.Empty(t, matches, "temp files are cleaned up")
}

func TestPublisherEmptyResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	p := NewPublisher(path, "web-1", zap.NewNop())
	p.Publish(nil)

	snap, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Empty(t, snap.Checks)
}

func TestPublisherWriteFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	p := NewPublisher(filepath.Join(blocker, "metrics.json"), "web-1", zap.NewNop())
	require.Error(t, p.Write(map[string]*probe.Result{}))
	assert.NotPanics(t, func() { p.Publish(map[string]*probe.Result{}) })
}

func TestPublisherConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	p := NewPublisher(path, "web-1", zap.NewNop())

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Publish(map[string]*probe.Result{
				"check": probe.New(probe.StatusOK, "run").WithValue(float64(i), ""),
			})
		}()
	}
	wg.Wait()

	snap, err := ReadSnapshot(path)
	require.NoError(t, err)
	require.Contains(t, snap.Checks, "check")
}

func TestReadSnapshotErrors(t *testing.T) {
	_, err := ReadSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = ReadSnapshot(path)
	assert.ErrorContains(t, err, "parse metrics file")
}
