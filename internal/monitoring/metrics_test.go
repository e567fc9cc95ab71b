package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twmailer/backend/internal/domain"
	"twmailer/backend/internal/storage/memory"
)

func TestMetrics_Sessions(t *testing.T) {
	m := NewMetricsWithRegistry(prometheus.NewRegistry())

	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SessionsTotal))
}

func TestMetrics_Commands(t *testing.T) {
	m := NewMetricsWithRegistry(prometheus.NewRegistry())

	m.RecordCommand("LIST", ResultOK, time.Millisecond)
	m.RecordCommand("LIST", ResultOK, time.Millisecond)
	m.RecordCommand("READ", ResultErr, time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CommandsTotal.WithLabelValues("LIST", ResultOK)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CommandsTotal.WithLabelValues("READ", ResultErr)))
}

func TestInstrumentStore(t *testing.T) {
	ctx := context.Background()
	m := NewMetricsWithRegistry(prometheus.NewRegistry())
	store := InstrumentStore(memory.NewStore(), m)

	require.NoError(t, store.Append(ctx, &domain.Message{Sender: "alice", Receiver: "bob", Subject: "s"}))
	_, err := store.List(ctx, "nobody")
	require.True(t, errors.Is(err, domain.ErrNoSuchMailbox))
	require.NoError(t, store.Delete(ctx, "bob", 1))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.MessagesStored))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MessagesDeleted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StoreOperations.WithLabelValues("list", ResultErr)))

	assert.Same(t, store, InstrumentStore(store, nil))
}

func TestMetrics_HTTPHandler(t *testing.T) {
	m := NewMetricsWithRegistry(prometheus.NewRegistry())
	m.SessionStarted()

	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "twmailer_sessions_active 1")
}
