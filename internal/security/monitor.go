package security

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/herbieproject/herbie-dash/internal/config"
)

// Monitor periodically checks the certificates of every HTTPS source and
// keeps the latest result per source ID.
type Monitor struct {
	sources  []config.Source
	interval time.Duration
	check    func(context.Context, config.Source) *CertStatus

	mu     sync.RWMutex
	status map[string]*CertStatus
}

// NewMonitor returns a Monitor for the HTTPS sources among sources.
func NewMonitor(sources []config.Source, interval time.Duration) *Monitor {
	m := &Monitor{
		interval: interval,
		check:    Check,
		status:   make(map[string]*CertStatus),
	}
	for _, src := range sources {
		if Endpoint(src) != "" {
			m.sources = append(m.sources, src)
		}
	}
	return m
}

// Len returns the number of monitored sources.
func (m *Monitor) Len() int { return len(m.sources) }

// Status returns the latest certificate status for a source.
func (m *Monitor) Status(sourceID string) (*CertStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cs, ok := m.status[sourceID]
	return cs, ok
}

// CheckAll checks every monitored source once.
func (m *Monitor) CheckAll(ctx context.Context) {
	for _, src := range m.sources {
		cs := m.check(ctx, src)
		if cs == nil || ctx.Err() != nil {
			continue
		}
		if cs.Status != CertValid {
			slog.Warn("security: certificate needs attention",
				"source", src.ID, "status", cs.Status, "days_left", cs.DaysLeft)
		}
		m.mu.Lock()
		m.status[src.ID] = cs
		m.mu.Unlock()
	}
}

// Run checks immediately, then every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	if len(m.sources) == 0 {
		return
	}
	m.CheckAll(ctx)

	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.CheckAll(ctx)
		}
	}
}
