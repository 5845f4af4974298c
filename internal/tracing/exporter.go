package tracing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pressroom/backend/internal/metrics"
	"github.com/pressroom/backend/pkg/retry"
)

type Sink interface {
	InsertTraces(ctx context.Context, records []Record) error
}

// Exporter drains a Buffer into a Sink on a fixed interval. Records from a
// batch that still fails after retries are dropped.
type Exporter struct {
	buf      *Buffer
	sink     Sink
	interval time.Duration
	retry    retry.Config
	logger   *zap.Logger
}

func NewExporter(buf *Buffer, sink Sink, interval time.Duration, logger *zap.Logger) *Exporter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := retry.DefaultConfig("trace-export")
	cfg.Logger = logger
	return &Exporter{buf: buf, sink: sink, interval: interval, retry: cfg, logger: logger}
}

func (e *Exporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			e.Flush(flushCtx)
			cancel()
			return nil
		case <-ticker.C:
			e.Flush(ctx)
		}
	}
}

// Flush exports the current buffer contents once and returns how many
// records reached the sink.
func (e *Exporter) Flush(ctx context.Context) int {
	records := e.buf.Drain()
	if len(records) == 0 {
		return 0
	}

	err := retry.Do(ctx, e.retry, func(ctx context.Context) error {
		return e.sink.InsertTraces(ctx, records)
	})
	if err != nil {
		metrics.TracesExported.WithLabelValues("dropped").Add(float64(len(records)))
		e.logger.Error("Trace export failed, dropping batch",
			zap.Int("records", len(records)),
			zap.Error(err),
		)
		return 0
	}

	metrics.TracesExported.WithLabelValues("exported").Add(float64(len(records)))
	e.logger.Debug("Traces exported", zap.Int("records", len(records)))
	return len(records)
}
