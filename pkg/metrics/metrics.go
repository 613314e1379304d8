package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// Metrics exposes a tiny in-memory counter set for the deliverer.
type Metrics struct {
	ingested    atomic.Int64
	rejected    atomic.Int64
	selected    atomic.Int64
	delivered   atomic.Int64
	oversized   atomic.Int64
	writeFailed atomic.Int64
	aborted     atomic.Int64
}

// New returns a zeroed Metrics collector.
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncIngested()    { m.ingested.Add(1) }
func (m *Metrics) IncRejected()    { m.rejected.Add(1) }
func (m *Metrics) IncSelected()    { m.selected.Add(1) }
func (m *Metrics) IncDelivered()   { m.delivered.Add(1) }
func (m *Metrics) IncOversized()   { m.oversized.Add(1) }
func (m *Metrics) IncWriteFailed() { m.writeFailed.Add(1) }
func (m *Metrics) IncAborted()     { m.aborted.Add(1) }

// Handler exposes the counters via a very small JSON response so we do not
// need to pull in a heavy metrics dependency.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "ingested": ` + itoa(m.ingested.Load()) + `,
  "rejected": ` + itoa(m.rejected.Load()) + `,
  "selected": ` + itoa(m.selected.Load()) + `,
  "delivered": ` + itoa(m.delivered.Load()) + `,
  "oversized": ` + itoa(m.oversized.Load()) + `,
  "write_failed": ` + itoa(m.writeFailed.Load()) + `,
  "aborted": ` + itoa(m.aborted.Load()) + `
}`))
	})
}

func itoa(v int64) string {
	return fmt.Sprintf("%d", v)
}
