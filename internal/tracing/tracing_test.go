package tracing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressroom/backend/internal/chain"
	"github.com/pressroom/backend/pkg/utils"
)

func TestWrap_RecordsSuccess(t *testing.T) {
	buf := NewBuffer()
	inner := chain.Func[string, string](func(ctx context.Context, in string) (string, error) {
		return "Acme Opens Plant", nil
	})

	traced := Wrap[string, string]("headline", inner, buf)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{start, start.Add(250 * time.Millisecond)}
	traced.now = func() time.Time {
		next := ticks[0]
		ticks = ticks[1:]
		return next
	}

	out, err := traced.Invoke(context.Background(), "ctx")
	require.NoError(t, err)
	assert.Equal(t, "Acme Opens Plant", out)

	records := buf.Drain()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "headline", rec.Chain)
	assert.NotEmpty(t, rec.RunID)
	assert.Equal(t, int64(250), rec.LatencyMs)
	assert.Equal(t, utils.ShortHash(`"Acme Opens Plant"`, 12), rec.OutputHash)
	assert.Len(t, rec.OutputHash, 12)
	assert.Empty(t, rec.Error)
}

func TestWrap_RecordsErrorWithoutHash(t *testing.T) {
	buf := NewBuffer()
	boom := errors.New("provider down")
	inner := chain.Func[string, string](func(ctx context.Context, in string) (string, error) {
		return "", boom
	})

	_, err := Wrap[string, string]("edit", inner, buf).Invoke(context.Background(), "x")
	assert.ErrorIs(t, err, boom)

	records := buf.Drain()
	require.Len(t, records, 1)
	assert.Equal(t, "provider down", records[0].Error)
	assert.Empty(t, records[0].OutputHash)
	assert.False(t, records[0].End.Before(records[0].Start))
}

func TestBuffer_DrainEmpties(t *testing.T) {
	buf := NewBuffer()
	buf.Append(Record{RunID: "a"})
	buf.Append(Record{RunID: "b"})
	assert.Equal(t, 2, buf.Len())

	assert.Len(t, buf.Drain(), 2)
	assert.Equal(t, 0, buf.Len())
	assert.Empty(t, buf.Drain())
}

func TestBuffer_ConcurrentAppend(t *testing.T) {
	buf := NewBuffer()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf.Append(Record{})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, buf.Len())
}

type sinkFunc func(ctx context.Context, records []Record) error

func (f sinkFunc) InsertTraces(ctx context.Context, records []Record) error { return f(ctx, records) }

func TestExporter_FlushWritesBatch(t *testing.T) {
	buf := NewBuffer()
	buf.Append(Record{RunID: "a"})
	buf.Append(Record{RunID: "b"})

	var got []Record
	exp := NewExporter(buf, sinkFunc(func(ctx context.Context, records []Record) error {
		got = append(got, records...)
		return nil
	}), time.Minute, nil)

	assert.Equal(t, 2, exp.Flush(context.Background()))
	assert.Len(t, got, 2)
	assert.Equal(t, 0, buf.Len())
	assert.Equal(t, 0, exp.Flush(context.Background()))
}

func TestExporter_DropsAfterRetries(t *testing.T) {
	buf := NewBuffer()
	buf.Append(Record{RunID: "a"})

	attempts := 0
	exp := NewExporter(buf, sinkFunc(func(ctx context.Context, records []Record) error {
		attempts++
		return errors.New("disk full")
	}), time.Minute, nil)
	exp.retry.InitialDelay = time.Millisecond
	exp.retry.MaxDelay = time.Millisecond

	assert.Equal(t, 0, exp.Flush(context.Background()))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 0, buf.Len())
}

func TestExporter_RunFlushesOnShutdown(t *testing.T) {
	buf := NewBuffer()
	buf.Append(Record{RunID: "a"})

	done := make(chan []Record, 1)
	exp := NewExporter(buf, sinkFunc(func(ctx context.Context, records []Record) error {
		done <- records
		return nil
	}), time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, exp.Run(ctx))

	select {
	case got := <-done:
		assert.Len(t, got, 1)
	default:
		t.Fatal("expected final flush")
	}
}
