package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"payflow/internal/domain/payment/model"
	"payflow/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeStore struct {
	mu       sync.Mutex
	failures int
	calls    int
	saved    []*model.PaymentCallback
}

func (s *fakeStore) CreateCallback(_ context.Context, cb *model.PaymentCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("connection reset")
	}
	s.saved = append(s.saved, cb)
	return nil
}

func (s *fakeStore) snapshot() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, len(s.saved)
}

func newTestPool(store CallbackStore) *WorkerPool {
	p := NewWorkerPool(store, nil, zap.NewNop(), 2, 8)
	p.RetryDelay = time.Millisecond
	return p
}

func callback(txnID string) CallbackTask {
	return CallbackTask{Callback: &model.PaymentCallback{TxnID: txnID, Outcome: model.CallbackOutcomeSuccess}}
}

func TestWorkerPoolPersistsTasks(t *testing.T) {
	store := &fakeStore{}
	p := newTestPool(store)
	p.Start()

	p.AddTask(callback("txn_1"))
	p.AddTask(callback("txn_2"))

	assert.Eventually(t, func() bool {
		_, saved := store.snapshot()
		return saved == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop(context.Background()))
}

func TestWorkerPoolRetriesThenSucceeds(t *testing.T) {
	store := &fakeStore{failures: 2}
	p := newTestPool(store)
	p.Start()

	p.AddTask(callback("txn_1"))

	assert.Eventually(t, func() bool {
		calls, saved := store.snapshot()
		return calls == 3 && saved == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop(context.Background()))
}

func TestWorkerPoolGivesUpAfterMaxRetry(t *testing.T) {
	store := &fakeStore{failures: 100}
	p := newTestPool(store)
	p.Start()

	p.AddTask(callback("txn_1"))
	require.NoError(t, p.Stop(context.Background()))

	calls, saved := store.snapshot()
	assert.Equal(t, p.MaxRetry+1, calls)
	assert.Zero(t, saved)
}

func TestAddTaskAfterStopIsDropped(t *testing.T) {
	store := &fakeStore{}
	p := newTestPool(store)
	p.Start()
	require.NoError(t, p.Stop(context.Background()))

	assert.NotPanics(t, func() { p.AddTask(callback("txn_late")) })
	calls, _ := store.snapshot()
	assert.Zero(t, calls)

	assert.NoError(t, p.Stop(context.Background()))
}

func newTestExecutor(healthCheck database.ProberFunc) *database.Executor {
	return database.NewExecutor(healthCheck, zap.NewNop(),
		database.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
}

func TestWorkerPoolUsesExecutor(t *testing.T) {
	t.Run("Transient failures retried by executor", func(t *testing.T) {
		store := &fakeStore{failures: 2}
		exec := newTestExecutor(func(context.Context) error { return nil })
		p := NewWorkerPool(store, exec, zap.NewNop(), 1, 8)
		p.MaxRetry = 0
		p.Start()

		p.AddTask(callback("txn_1"))
		require.NoError(t, p.Stop(context.Background()))

		calls, saved := store.snapshot()
		assert.Equal(t, 3, calls)
		assert.Equal(t, 1, saved)
	})

	t.Run("Unhealthy database skips the write", func(t *testing.T) {
		store := &fakeStore{}
		var checks int
		var mu sync.Mutex
		exec := newTestExecutor(func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			checks++
			return errors.New("database is down")
		})
		p := NewWorkerPool(store, exec, zap.NewNop(), 1, 8)
		p.MaxRetry = 0
		p.Start()

		p.AddTask(callback("txn_1"))
		require.NoError(t, p.Stop(context.Background()))

		calls, _ := store.snapshot()
		assert.Zero(t, calls)
		mu.Lock()
		assert.Equal(t, database.DefaultRetries, checks)
		mu.Unlock()
	})
}

func TestDeadLetterRedactsHash(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	p := NewWorkerPool(&fakeStore{failures: 100}, nil, zap.New(core), 1, 8)
	p.MaxRetry = 0

	metadata, err := json.Marshal(map[string][]string{
		"txnid":  {"txn_1"},
		"status": {"success"},
		"hash":   {"d1c3f0a9secret"},
	})
	require.NoError(t, err)
	p.Start()
	p.AddTask(CallbackTask{Callback: &model.PaymentCallback{TxnID: "txn_1", Metadata: metadata}})
	require.NoError(t, p.Stop(context.Background()))

	entries := logs.FilterMessage("[DeadLetter] Callback audit dropped").All()
	require.Len(t, entries, 1)
	logged := entries[0].ContextMap()["metadata"].(string)
	assert.Contains(t, logged, "txn_1")
	assert.NotContains(t, logged, "hash")
	assert.NotContains(t, logged, "d1c3f0a9secret")
}

func TestRedact(t *testing.T) {
	assert.Nil(t, redact(nil))
	assert.Nil(t, redact(json.RawMessage(`not json`)))
	assert.JSONEq(t, `{"txnid":["t"]}`, string(redact(json.RawMessage(`{"txnid":["t"],"hash":["h"]}`))))
}
