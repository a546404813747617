package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/autotrader-api/internal/broker"
	"github.com/ksred/autotrader-api/internal/types"
)

func (s *fakeStore) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func testConfig() Config {
	return Config{
		PollInterval:      5 * time.Millisecond,
		ErrorInterval:     10 * time.Millisecond,
		WatchTimeout:      time.Second,
		MaxRecoveryJitter: 10 * time.Millisecond,
	}
}

func newTestSupervisor(store *fakeStore, gateway broker.Gateway, cfg Config) (*Supervisor, *fakeSyncer) {
	syncer := &fakeSyncer{}
	checker := NewChecker(store, &fakeResolver{gateway: gateway}, syncer)
	return NewSupervisor(checker, store, cfg), syncer
}

func openForever() *fakeGateway {
	return &fakeGateway{script: []*broker.OrderSnapshot{{Status: "OPEN"}}}
}

func TestSupervisorWatchRunsToCompletion(t *testing.T) {
	store := newFakeStore()
	seedOpenOrder(store)
	gateway := &fakeGateway{script: []*broker.OrderSnapshot{
		{Status: "OPEN"},
		{Status: "COMPLETE", AveragePrice: 101.5, FilledQuantity: 10},
	}}
	sup, syncer := newTestSupervisor(store, gateway, testConfig())
	defer sup.ShutdownAll()

	sup.StartWatch(42, 7, "BRK-1")

	require.Eventually(t, func() bool {
		return sup.GetStatus().ActiveCount == 0
	}, 2*time.Second, 5*time.Millisecond, "watch should stop after terminal transition")

	store.mu.Lock()
	order := store.orders[42]
	store.mu.Unlock()
	assert.Equal(t, types.StatusComplete, order.Status)
	assert.Equal(t, 101.5, order.ExecutedPrice)
	assert.Equal(t, 10.0, order.ExecutedQuantity)
	assert.Equal(t, -1015.00, order.PnL)
	assert.Equal(t, 1, syncer.callCount())
	assert.Equal(t, 1, store.updateCount())
}

func TestSupervisorAtMostOneWatchPerKey(t *testing.T) {
	store := newFakeStore()
	seedOpenOrder(store)
	sup, _ := newTestSupervisor(store, openForever(), testConfig())
	defer sup.ShutdownAll()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sup.StartWatch(42, 7, "BRK-1")
		}()
	}
	wg.Wait()

	status := sup.GetStatus()
	assert.Equal(t, 1, status.ActiveCount)
	assert.Equal(t, []string{"42-BRK-1"}, status.ActiveKeys)
}

func TestSupervisorAutoExpiry(t *testing.T) {
	store := newFakeStore()
	seedOpenOrder(store)

	cfg := testConfig()
	cfg.WatchTimeout = 50 * time.Millisecond
	sup, _ := newTestSupervisor(store, openForever(), cfg)
	defer sup.ShutdownAll()

	sup.StartWatch(42, 7, "BRK-1")
	assert.Equal(t, 1, sup.GetStatus().ActiveCount)

	require.Eventually(t, func() bool {
		return sup.GetStatus().ActiveCount == 0
	}, 2*time.Second, 5*time.Millisecond, "watch should expire even though the broker never finalizes")

	store.mu.Lock()
	status := store.orders[42].Status
	store.mu.Unlock()
	assert.Equal(t, types.StatusOpen, status)
}

func TestSupervisorRecoveryIsIdempotent(t *testing.T) {
	store := newFakeStore()
	seedOpenOrder(store)
	store.open = []OpenOrder{{
		Order:      *store.orders[42],
		Connection: *store.conns[7],
	}}
	sup, _ := newTestSupervisor(store, openForever(), testConfig())
	defer sup.ShutdownAll()

	require.NoError(t, sup.RecoverOpenWatches(context.Background()))
	require.NoError(t, sup.RecoverOpenWatches(context.Background()))

	require.Eventually(t, func() bool {
		return sup.GetStatus().ActiveCount == 1
	}, 2*time.Second, 5*time.Millisecond)

	// The duplicate sweep's starts are rejected by the registry.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, sup.GetStatus().ActiveCount)
}

func TestSupervisorShutdownCompleteness(t *testing.T) {
	store := newFakeStore()
	seedOpenOrder(store)
	sup, _ := newTestSupervisor(store, openForever(), testConfig())

	sup.StartWatch(42, 7, "BRK-1")
	require.Eventually(t, func() bool {
		return store.readCount() > 0
	}, 2*time.Second, time.Millisecond)

	sup.ShutdownAll()

	assert.Equal(t, 0, sup.GetStatus().ActiveCount)

	// No store access happens once shutdown has returned.
	reads := store.readCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, reads, store.readCount())

	// Starting new watches after shutdown is a no-op.
	sup.StartWatch(42, 7, "BRK-1")
	assert.Equal(t, 0, sup.GetStatus().ActiveCount)
}
