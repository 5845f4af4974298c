package tracing

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pressroom/backend/internal/chain"
	"github.com/pressroom/backend/internal/metrics"
	"github.com/pressroom/backend/internal/storage/models"
	"github.com/pressroom/backend/pkg/utils"
)

const hashLength = 12

type Record = models.ChainTrace

// Buffer accumulates records until drained. It has no capacity bound; an
// Exporter keeps it short in production.
type Buffer struct {
	mu      sync.Mutex
	records []Record
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Append(r Record) {
	b.mu.Lock()
	b.records = append(b.records, r)
	b.mu.Unlock()
}

func (b *Buffer) Drain() []Record {
	b.mu.Lock()
	out := b.records
	b.records = nil
	b.mu.Unlock()
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

type Traced[In, Out any] struct {
	name  string
	inner chain.Chain[In, Out]
	buf   *Buffer
	now   func() time.Time
}

// Wrap returns a chain with the same contract as c that appends one Record
// per invocation to buf.
func Wrap[In, Out any](name string, c chain.Chain[In, Out], buf *Buffer) *Traced[In, Out] {
	return &Traced[In, Out]{name: name, inner: c, buf: buf, now: time.Now}
}

func (t *Traced[In, Out]) Invoke(ctx context.Context, in In) (Out, error) {
	rec := Record{
		RunID: uuid.New().String(),
		Chain: t.name,
		Start: t.now(),
	}

	out, err := t.inner.Invoke(ctx, in)

	rec.End = t.now()
	latency := rec.End.Sub(rec.Start)
	rec.LatencyMs = latency.Milliseconds()

	status := "success"
	if err != nil {
		status = "error"
		rec.Error = err.Error()
	} else {
		rec.OutputHash = outputHash(out)
	}

	metrics.ChainDuration.WithLabelValues(t.name).Observe(latency.Seconds())
	metrics.ChainTotal.WithLabelValues(t.name, status).Inc()

	t.buf.Append(rec)
	return out, err
}

func outputHash(v any) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return utils.ShortHash(string(encoded), hashLength)
}
