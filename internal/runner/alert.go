package runner

import (
	"sync"
	"time"

	"github.com/jandubois/healthagent/internal/probe"
)

// AlertGate decides whether a degraded result should be notified, based on
// when the last alert for the same check was delivered.
//
// Only warning and critical results alert; ok and unknown never do.
type AlertGate struct {
	mu       sync.Mutex
	lastSent map[string]time.Time
	now      func() time.Time
}

// NewAlertGate creates a gate with no delivery history.
func NewAlertGate() *AlertGate {
	return &AlertGate{
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// ShouldAlert reports whether result warrants an alert for name. The
// cooldown boundary is inclusive: an alert exactly cooldown after the last
// one is allowed.
func (g *AlertGate) ShouldAlert(name string, result *probe.Result, cooldown time.Duration) bool {
	if result == nil || !result.Status.Degraded() {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.lastSent[name]
	if !ok {
		return true
	}
	return g.now().Sub(last) >= cooldown
}

// RecordDelivery marks a confirmed alert delivery for name. Call it only
// after the notifier reported success, so failed deliveries are retried on
// the next degraded run.
func (g *AlertGate) RecordDelivery(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastSent[name] = g.now()
}

// LastDelivery returns the time of the last delivered alert for name.
func (g *AlertGate) LastDelivery(name string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.lastSent[name]
	return t, ok
}
