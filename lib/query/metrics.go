package query

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// CloseReason says why a session was removed from the registry
type CloseReason string

const (
	ReasonExplicit  CloseReason = "explicit"  // closed by a Close command
	ReasonExhausted CloseReason = "exhausted" // the last page was delivered
	ReasonEvicted   CloseReason = "evicted"   // idle for too long
	ReasonFailed    CloseReason = "failed"    // the engine failed while paging
	ReasonShutdown  CloseReason = "shutdown"  // the registry was closed
)

var closeReasons = []CloseReason{ReasonExplicit, ReasonExhausted, ReasonEvicted, ReasonFailed, ReasonShutdown}

// Metrics holds the counters of one registry. All metrics are registered in
// their own set so that several registries (e.g. in tests) never collide.
type Metrics struct {
	set       *metrics.Set
	opened    *metrics.Counter
	closed    map[CloseReason]*metrics.Counter
	pageItems *metrics.Histogram
}

func newMetrics(set *metrics.Set, open func() float64) *Metrics {
	m := &Metrics{
		set:       set,
		opened:    set.NewCounter("dqry_sessions_opened_total"),
		closed:    make(map[CloseReason]*metrics.Counter, len(closeReasons)),
		pageItems: set.NewHistogram("dqry_page_items"),
	}
	for _, reason := range closeReasons {
		m.closed[reason] = set.NewCounter(fmt.Sprintf(`dqry_sessions_closed_total{reason=%q}`, reason))
	}
	set.NewGauge("dqry_sessions_open", open)
	return m
}

// Set returns the underlying metric set, e.g. to write it in prometheus format
func (m *Metrics) Set() *metrics.Set {
	return m.set
}

func (m *Metrics) sessionOpened() {
	m.opened.Inc()
}

func (m *Metrics) sessionClosed(reason CloseReason) {
	if c, ok := m.closed[reason]; ok {
		c.Inc()
	}
}

func (m *Metrics) pageDelivered(items int) {
	m.pageItems.Update(float64(items))
}

func (m *Metrics) request(cmd Command) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`dqry_requests_total{command=%q}`, cmd)).Inc()
}

func (m *Metrics) requestFailed(cmd Command) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`dqry_request_errors_total{command=%q}`, cmd)).Inc()
}
