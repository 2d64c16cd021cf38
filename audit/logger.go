package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-core/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var _ Writer = (*Logger)(nil)

// Logger buffers entries on a channel and writes them to the sink in batches
// from a single worker. Log never blocks; a full buffer drops the entry.
type Logger struct {
	sink          Sink
	recorder      metrics.Recorder
	buffer        chan Entry
	batchSize     int
	flushInterval time.Duration
	nowTime       func() time.Time

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

type Option func(*Logger)

func WithBufferSize(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.buffer = make(chan Entry, n)
		}
	}
}

func WithBatchSize(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(l *Logger) {
		l.flushInterval = d
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(l *Logger) {
		l.recorder = r
	}
}

func WithNowTime(now func() time.Time) Option {
	return func(l *Logger) {
		l.nowTime = now
	}
}

func NewLogger(sink Sink, opts ...Option) (*Logger, error) {
	if sink == nil {
		return nil, errors.New("[NewLogger] audit sink is required")
	}
	l := &Logger{
		sink:          sink,
		recorder:      metrics.NoopMetrics{},
		buffer:        make(chan Entry, 1000),
		batchSize:     100,
		flushInterval: time.Second,
		nowTime:       time.Now,
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.wg.Add(1)
	go l.worker()
	return l, nil
}

// Log queues entry. It fills in the id and date when absent.
func (l *Logger) Log(_ context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Date.IsZero() {
		entry.Date = l.nowTime().UTC()
	}

	select {
	case <-l.stop:
		log.Warn().Str("type", string(entry.Type)).Msg("audit logger stopped, dropping entry")
		l.recorder.RecordAuditDropped()
		return
	default:
	}

	select {
	case l.buffer <- entry:
	default:
		log.Warn().Str("type", string(entry.Type)).Str("tenant_id", entry.TenantID).Msg("audit buffer full, dropping entry")
		l.recorder.RecordAuditDropped()
	}
}

func (l *Logger) worker() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, l.batchSize)
	for {
		select {
		case e := <-l.buffer:
			batch = append(batch, e)
			if len(batch) >= l.batchSize {
				batch = l.flush(batch)
			}
		case <-ticker.C:
			batch = l.flush(batch)
		case <-l.stop:
			for {
				select {
				case e := <-l.buffer:
					batch = append(batch, e)
				default:
					l.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes batch and returns it emptied. Sink errors are logged only;
// audit writes never affect the request that produced them.
func (l *Logger) flush(batch []Entry) []Entry {
	if len(batch) == 0 {
		return batch
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.sink.Write(ctx, batch); err != nil {
		log.Err(err).Int("entries", len(batch)).Msg("failed to write audit batch")
	}
	return batch[:0]
}

// Shutdown stops accepting entries, drains the buffer and waits for the final
// write or ctx, whichever comes first.
func (l *Logger) Shutdown(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stop) })

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "[Logger.Shutdown] waiting for audit worker")
	}
}
