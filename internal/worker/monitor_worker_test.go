package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexbit/backoffice/internal/domain"
	"github.com/nexbit/backoffice/internal/models"
	"github.com/nexbit/backoffice/internal/notifier"
	"github.com/nexbit/backoffice/internal/service"
)

// blockingStore parks the first deposit listing until released so tests can
// hold a sweep open mid-flight.
type blockingStore struct {
	listCalls atomic.Int32
	started   chan struct{}
	release   chan struct{}
	once      sync.Once
}

func (s *blockingStore) ListPendingDeposits(ctx context.Context, olderThan time.Time, limit int32) ([]models.Movement, error) {
	if s.listCalls.Add(1) == 1 {
		s.once.Do(func() { close(s.started) })
		<-s.release
	}
	return nil, nil
}

func (s *blockingStore) ListProcessingWithdrawals(ctx context.Context, olderThan time.Time, limit int32) ([]models.Movement, error) {
	return nil, nil
}

func (s *blockingStore) GetMember(ctx context.Context, id string) (*models.Member, error) {
	return nil, models.ErrMemberNotFound
}

func (s *blockingStore) GetMovement(ctx context.Context, kind domain.MovementKind, id string) (*models.Movement, error) {
	return nil, models.ErrMovementNotFound
}

func (s *blockingStore) UpdateMovementStatusIf(ctx context.Context, kind domain.MovementKind, id string, from, to domain.MovementStatus) (bool, error) {
	return false, nil
}

func (s *blockingStore) SetMovementStatus(ctx context.Context, kind domain.MovementKind, id string, to domain.MovementStatus) error {
	return nil
}

func (s *blockingStore) CreditDeposit(ctx context.Context, mov models.Movement, actor string) (int64, bool, error) {
	return 0, false, nil
}

func (s *blockingStore) AdjustBalance(ctx context.Context, memberID string, delta int64, reason, actor string) (int64, int64, error) {
	return 0, 0, nil
}

func (s *blockingStore) CountDepositsCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	return 0, nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(ctx context.Context, channel notifier.Channel, text string) {}

func newTestEngine(store service.Store) *service.StatusEngine {
	return service.NewStatusEngine(store, nopNotifier{}, service.Policy{
		DepositGrace:      time.Second,
		WithdrawalTimeout: time.Second,
	})
}

func TestMonitorWorkerSkipsOverlappingSweep(t *testing.T) {
	store := &blockingStore{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	w := NewMonitorWorker(newTestEngine(store))

	first := make(chan struct{})
	go func() {
		w.SweepOnce(context.Background())
		close(first)
	}()
	<-store.started

	// While the first sweep is parked, an overlapping invocation must return
	// immediately without touching the store again.
	second := make(chan struct{})
	go func() {
		w.SweepOnce(context.Background())
		close(second)
	}()
	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("overlapping sweep was not skipped")
	}
	require.Equal(t, int32(1), store.listCalls.Load())

	close(store.release)
	<-first
}

func TestMonitorWorkerRunAndStop(t *testing.T) {
	store := &blockingStore{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	close(store.release) // never park

	w := NewMonitorWorker(newTestEngine(store)).WithInterval(10 * time.Millisecond)
	stop := w.Run(context.Background())

	require.Eventually(t, func() bool {
		return store.listCalls.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	stop()
	stop() // second stop is a no-op
}

func TestMonitorWorkerInterval(t *testing.T) {
	w := NewMonitorWorker(newTestEngine(&blockingStore{}))
	require.Equal(t, 10*time.Second, w.interval)

	w.WithInterval(-time.Second)
	require.Equal(t, 10*time.Second, w.interval)

	w.WithInterval(time.Minute)
	require.Equal(t, time.Minute, w.interval)
}
