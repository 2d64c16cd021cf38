package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jrsteele09/go-identity-core/audit"
	"github.com/jrsteele09/go-identity-core/audit/repofake"
	"github.com/jrsteele09/go-identity-core/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// blockingSink holds every write until release is closed.
type blockingSink struct {
	release chan struct{}
	inner   *repofake.MemorySink
}

func (s *blockingSink) Write(ctx context.Context, entries []audit.Entry) error {
	<-s.release
	return s.inner.Write(ctx, entries)
}

func TestLogger_FlushesOnShutdown(t *testing.T) {
	sink := repofake.NewMemorySink()
	l, err := audit.NewLogger(sink, audit.WithFlushInterval(time.Hour))
	require.NoError(t, err)

	l.Log(context.Background(), audit.Entry{TenantID: "t", Type: audit.TypeSuccessLogin})
	l.Log(context.Background(), audit.Entry{TenantID: "t", Type: audit.TypeSuccessLogout})
	require.NoError(t, l.Shutdown(context.Background()))

	entries := sink.Entries()
	require.Len(t, entries, 2)
	require.NotEmpty(t, entries[0].ID)
	require.False(t, entries[0].Date.IsZero())
}

func TestLogger_FlushesOnBatchSize(t *testing.T) {
	sink := repofake.NewMemorySink()
	l, err := audit.NewLogger(sink, audit.WithBatchSize(2), audit.WithFlushInterval(time.Hour))
	require.NoError(t, err)
	defer func() { _ = l.Shutdown(context.Background()) }()

	l.Log(context.Background(), audit.Entry{Type: audit.TypeSuccessLogin})
	l.Log(context.Background(), audit.Entry{Type: audit.TypeSuccessLogin})

	require.Eventually(t, func() bool { return len(sink.Entries()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestLogger_DropsWhenFullWithoutBlocking(t *testing.T) {
	m := metrics.New()
	sink := &blockingSink{release: make(chan struct{}), inner: repofake.NewMemorySink()}
	l, err := audit.NewLogger(sink,
		audit.WithBufferSize(1),
		audit.WithBatchSize(1),
		audit.WithRecorder(m),
	)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			l.Log(context.Background(), audit.Entry{Type: audit.TypeFailedLogin})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Log blocked on a stalled sink")
	}

	require.Greater(t, testutil.ToFloat64(m.AuditDroppedTotal), 0.0)
	close(sink.release)
	require.NoError(t, l.Shutdown(context.Background()))
}

func TestLogger_SinkErrorsAreSwallowed(t *testing.T) {
	sink := repofake.NewMemorySink()
	sink.Err = errors.New("disk full")
	l, err := audit.NewLogger(sink)
	require.NoError(t, err)

	l.Log(context.Background(), audit.Entry{Type: audit.TypeSuccessLogin})
	require.NoError(t, l.Shutdown(context.Background()))
	require.Empty(t, sink.Entries())
}

func TestTypeName(t *testing.T) {
	require.Equal(t, "SUCCESS_LOGIN", audit.TypeSuccessLogin.Name())
	require.Equal(t, "FAILED_EXCHANGE_AUTHORIZATION_CODE_FOR_ACCESS_TOKEN", audit.TypeFailedExchangeAuthCodeForAccessToken.Name())
}
