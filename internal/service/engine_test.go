package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nexbit/backoffice/internal/domain"
	"github.com/nexbit/backoffice/internal/models"
	"github.com/nexbit/backoffice/internal/notifier"
)

type memStore struct {
	mu        sync.Mutex
	members   map[string]*models.Member
	movements map[string]*models.Movement
	ledger    []models.LedgerEntry
}

func newMemStore() *memStore {
	return &memStore{
		members:   make(map[string]*models.Member),
		movements: make(map[string]*models.Movement),
	}
}

func (m *memStore) addMember(username string, balance int64) *models.Member {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem := &models.Member{
		ID:            uuid.NewString(),
		Username:      username,
		BalanceMicros: balance,
		CreatedAt:     time.Now(),
	}
	m.members[mem.ID] = mem
	return mem
}

func (m *memStore) addMovement(kind domain.MovementKind, status domain.MovementStatus, memberID string, amount int64, age time.Duration) *models.Movement {
	m.mu.Lock()
	defer m.mu.Unlock()
	mov := &models.Movement{
		ID:        uuid.NewString(),
		OrderID:   uuid.NewString(),
		MemberID:  memberID,
		Amount:    amount,
		Currency:  "USD",
		Status:    status,
		Kind:      kind,
		CreatedAt: time.Now().Add(-age),
		UpdatedAt: time.Now().Add(-age),
	}
	m.movements[mov.ID] = mov
	return mov
}

func (m *memStore) balance(t *testing.T, id string) int64 {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[id]
	require.True(t, ok)
	return mem.BalanceMicros
}

func (m *memStore) status(t *testing.T, id string) domain.MovementStatus {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	mov, ok := m.movements[id]
	require.True(t, ok)
	return mov.Status
}

func (m *memStore) GetMember(ctx context.Context, id string) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[id]
	if !ok {
		return nil, models.ErrMemberNotFound
	}
	cp := *mem
	return &cp, nil
}

func (m *memStore) listMovements(kind domain.MovementKind, status domain.MovementStatus, olderThan time.Time, limit int32) []models.Movement {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Movement
	for _, mov := range m.movements {
		if mov.Kind == kind && mov.Status == status && mov.CreatedAt.Before(olderThan) {
			out = append(out, *mov)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if int32(len(out)) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memStore) ListPendingDeposits(ctx context.Context, olderThan time.Time, limit int32) ([]models.Movement, error) {
	return m.listMovements(domain.KindDeposit, domain.StatusPending, olderThan, limit), nil
}

func (m *memStore) ListProcessingWithdrawals(ctx context.Context, olderThan time.Time, limit int32) ([]models.Movement, error) {
	return m.listMovements(domain.KindWithdrawal, domain.StatusProcessing, olderThan, limit), nil
}

func (m *memStore) GetMovement(ctx context.Context, kind domain.MovementKind, id string) (*models.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mov, ok := m.movements[id]
	if !ok || mov.Kind != kind {
		return nil, models.ErrMovementNotFound
	}
	cp := *mov
	return &cp, nil
}

func (m *memStore) UpdateMovementStatusIf(ctx context.Context, kind domain.MovementKind, id string, from, to domain.MovementStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mov, ok := m.movements[id]
	if !ok || mov.Kind != kind || mov.Status != from {
		return false, nil
	}
	mov.Status = to
	mov.UpdatedAt = time.Now()
	return true, nil
}

func (m *memStore) SetMovementStatus(ctx context.Context, kind domain.MovementKind, id string, to domain.MovementStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mov, ok := m.movements[id]
	if !ok || mov.Kind != kind {
		return models.ErrMovementNotFound
	}
	mov.Status = to
	mov.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) CreditDeposit(ctx context.Context, mov models.Movement, actor string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.movements[mov.ID]
	if !ok || cur.Kind != domain.KindDeposit || cur.Status != domain.StatusPending {
		return 0, false, nil
	}
	mem, ok := m.members[cur.MemberID]
	if !ok {
		return 0, false, models.ErrMemberNotFound
	}
	cur.Status = domain.StatusDone
	cur.UpdatedAt = time.Now()
	mem.BalanceMicros += cur.Amount
	m.ledger = append(m.ledger, models.LedgerEntry{
		ID:        uuid.NewString(),
		MemberID:  mem.ID,
		Kind:      "deposit",
		Amount:    cur.Amount,
		Status:    "done",
		Actor:     actor,
		CreatedAt: time.Now(),
	})
	return mem.BalanceMicros, true, nil
}

func (m *memStore) AdjustBalance(ctx context.Context, memberID string, delta int64, reason, actor string) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[memberID]
	if !ok {
		return 0, 0, models.ErrMemberNotFound
	}
	old := mem.BalanceMicros
	mem.BalanceMicros += delta
	m.ledger = append(m.ledger, models.LedgerEntry{
		ID:        uuid.NewString(),
		MemberID:  memberID,
		Kind:      "adjust",
		Amount:    delta,
		Status:    "done",
		Note:      reason,
		Actor:     actor,
		CreatedAt: time.Now(),
	})
	return old, mem.BalanceMicros, nil
}

func (m *memStore) CountDepositsCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, mov := range m.movements {
		if mov.Kind == domain.KindDeposit && !mov.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	channels []notifier.Channel
}

func (n *recordingNotifier) Notify(ctx context.Context, channel notifier.Channel, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels = append(n.channels, channel)
	n.messages = append(n.messages, text)
}

func (n *recordingNotifier) count(channel notifier.Channel) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	var c int
	for _, ch := range n.channels {
		if ch == channel {
			c++
		}
	}
	return c
}

func testPolicy() Policy {
	return Policy{
		DepositGrace:      10 * time.Second,
		WithdrawalTimeout: time.Minute,
		AnomalyThreshold:  100,
		AnomalyWindow:     10 * time.Minute,
	}
}

func TestSweepDepositsIdempotent(t *testing.T) {
	store := newMemStore()
	notes := &recordingNotifier{}
	engine := NewStatusEngine(store, notes, testPolicy())

	member := store.addMember("alice", 0)
	dep := store.addMovement(domain.KindDeposit, domain.StatusPending, member.ID, 100_000_000, time.Minute)

	ctx := context.Background()
	require.NoError(t, engine.SweepDeposits(ctx))
	require.NoError(t, engine.SweepDeposits(ctx))

	require.Equal(t, int64(100_000_000), store.balance(t, member.ID))
	require.Equal(t, domain.StatusDone, store.status(t, dep.ID))
	require.Len(t, store.ledger, 1)
	require.Equal(t, 1, notes.count(notifier.ChannelMarket))
}

func TestSweepDepositsRespectsGrace(t *testing.T) {
	store := newMemStore()
	notes := &recordingNotifier{}
	engine := NewStatusEngine(store, notes, testPolicy())

	member := store.addMember("bob", 0)
	dep := store.addMovement(domain.KindDeposit, domain.StatusPending, member.ID, 50_000_000, time.Second)

	require.NoError(t, engine.SweepDeposits(context.Background()))

	require.Equal(t, domain.StatusPending, store.status(t, dep.ID))
	require.Zero(t, store.balance(t, member.ID))
	require.Empty(t, notes.messages)
}

func TestSweepDepositsMissingMember(t *testing.T) {
	store := newMemStore()
	notes := &recordingNotifier{}
	engine := NewStatusEngine(store, notes, testPolicy())

	dep := store.addMovement(domain.KindDeposit, domain.StatusPending, uuid.NewString(), 75_000_000, time.Minute)

	require.NoError(t, engine.SweepDeposits(context.Background()))

	require.Equal(t, domain.StatusFailed, store.status(t, dep.ID))
	require.Empty(t, store.ledger)
	require.Equal(t, 1, notes.count(notifier.ChannelAdmin))
}

func TestSweepWithdrawalsTimeout(t *testing.T) {
	store := newMemStore()
	notes := &recordingNotifier{}
	engine := NewStatusEngine(store, notes, testPolicy())

	member := store.addMember("carol", 500_000_000)
	old := store.addMovement(domain.KindWithdrawal, domain.StatusProcessing, member.ID, 100_000_000, 2*time.Minute)
	young := store.addMovement(domain.KindWithdrawal, domain.StatusProcessing, member.ID, 100_000_000, 10*time.Second)

	require.NoError(t, engine.SweepWithdrawals(context.Background()))

	require.Equal(t, domain.StatusFailed, store.status(t, old.ID))
	require.Equal(t, domain.StatusProcessing, store.status(t, young.ID))
	require.Equal(t, int64(500_000_000), store.balance(t, member.ID))
	require.Equal(t, 1, notes.count(notifier.ChannelAdmin))
}

func TestSweepDepositsConcurrent(t *testing.T) {
	store := newMemStore()
	notes := &recordingNotifier{}
	engine := NewStatusEngine(store, notes, testPolicy())

	member := store.addMember("dave", 0)
	store.addMovement(domain.KindDeposit, domain.StatusPending, member.ID, 100_000_000, time.Minute)

	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- engine.SweepDeposits(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, int64(100_000_000), store.balance(t, member.ID))
	require.Len(t, store.ledger, 1)
	require.Equal(t, 1, notes.count(notifier.ChannelMarket))
}

func TestAdjustBalanceAudit(t *testing.T) {
	store := newMemStore()
	notes := &recordingNotifier{}
	engine := NewStatusEngine(store, notes, testPolicy())

	member := store.addMember("erin", 0)
	ctx := context.Background()

	balance, err := engine.AdjustBalance(ctx, member.ID, 50_000_000, "promo credit", "ops1")
	require.NoError(t, err)
	require.Equal(t, int64(50_000_000), balance)

	balance, err = engine.AdjustBalance(ctx, member.ID, -20_000_000, "chargeback", "ops2")
	require.NoError(t, err)
	require.Equal(t, int64(30_000_000), balance)

	require.Len(t, store.ledger, 2)
	require.Equal(t, int64(50_000_000), store.ledger[0].Amount)
	require.Equal(t, "ops1", store.ledger[0].Actor)
	require.Equal(t, int64(-20_000_000), store.ledger[1].Amount)
	require.Equal(t, "ops2", store.ledger[1].Actor)
	require.Equal(t, 2, notes.count(notifier.ChannelAdmin))
}

func TestAdjustBalanceMissingMember(t *testing.T) {
	store := newMemStore()
	engine := NewStatusEngine(store, &recordingNotifier{}, testPolicy())

	_, err := engine.AdjustBalance(context.Background(), uuid.NewString(), 1, "x", "ops")
	require.ErrorIs(t, err, models.ErrMemberNotFound)
}

func TestAnomalySingleAggregateAlert(t *testing.T) {
	store := newMemStore()
	notes := &recordingNotifier{}
	policy := testPolicy()
	policy.AnomalyThreshold = 3
	engine := NewStatusEngine(store, notes, policy)

	member := store.addMember("frank", 0)
	for i := 0; i < 5; i++ {
		store.addMovement(domain.KindDeposit, domain.StatusPending, member.ID, 1_000_000, time.Second)
	}

	ctx := context.Background()
	require.NoError(t, engine.CheckDepositAnomaly(ctx))
	require.NoError(t, engine.CheckDepositAnomaly(ctx))

	require.Equal(t, 1, notes.count(notifier.ChannelAdmin))
}

func TestAnomalyBelowThreshold(t *testing.T) {
	store := newMemStore()
	notes := &recordingNotifier{}
	policy := testPolicy()
	policy.AnomalyThreshold = 10
	engine := NewStatusEngine(store, notes, policy)

	member := store.addMember("gina", 0)
	store.addMovement(domain.KindDeposit, domain.StatusPending, member.ID, 1_000_000, time.Second)

	require.NoError(t, engine.CheckDepositAnomaly(context.Background()))
	require.Empty(t, notes.messages)
}

func TestSetStatusManualDoneCreditsOnce(t *testing.T) {
	store := newMemStore()
	notes := &recordingNotifier{}
	engine := NewStatusEngine(store, notes, testPolicy())

	member := store.addMember("henry", 0)
	dep := store.addMovement(domain.KindDeposit, domain.StatusPending, member.ID, 40_000_000, time.Minute)

	ctx := context.Background()
	mov, err := engine.SetStatus(ctx, domain.KindDeposit, dep.ID, "done", "ops1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusDone, mov.Status)

	// A second manual done must not credit again.
	mov, err = engine.SetStatus(ctx, domain.KindDeposit, dep.ID, "done", "ops2")
	require.NoError(t, err)
	require.Equal(t, domain.StatusDone, mov.Status)

	require.Equal(t, int64(40_000_000), store.balance(t, member.ID))
	require.Len(t, store.ledger, 1)
}

func TestSetStatusSweepThenManualDone(t *testing.T) {
	store := newMemStore()
	notes := &recordingNotifier{}
	engine := NewStatusEngine(store, notes, testPolicy())

	member := store.addMember("iris", 0)
	dep := store.addMovement(domain.KindDeposit, domain.StatusPending, member.ID, 25_000_000, time.Minute)

	ctx := context.Background()
	require.NoError(t, engine.SweepDeposits(ctx))

	_, err := engine.SetStatus(ctx, domain.KindDeposit, dep.ID, "done", "ops1")
	require.NoError(t, err)

	require.Equal(t, int64(25_000_000), store.balance(t, member.ID))
	require.Len(t, store.ledger, 1)
}

func TestSetStatusRejectsUnknownStatus(t *testing.T) {
	store := newMemStore()
	engine := NewStatusEngine(store, &recordingNotifier{}, testPolicy())

	member := store.addMember("judy", 0)
	dep := store.addMovement(domain.KindDeposit, domain.StatusPending, member.ID, 10_000_000, time.Minute)

	_, err := engine.SetStatus(context.Background(), domain.KindDeposit, dep.ID, "exploded", "ops")
	require.ErrorIs(t, err, domain.ErrInvalidStatus)

	// processing belongs to withdrawals only
	_, err = engine.SetStatus(context.Background(), domain.KindDeposit, dep.ID, "processing", "ops")
	require.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestSetStatusMovementNotFound(t *testing.T) {
	store := newMemStore()
	engine := NewStatusEngine(store, &recordingNotifier{}, testPolicy())

	_, err := engine.SetStatus(context.Background(), domain.KindWithdrawal, uuid.NewString(), "approved", "ops")
	require.ErrorIs(t, err, models.ErrMovementNotFound)
}

func TestSetStatusWithdrawalApproved(t *testing.T) {
	store := newMemStore()
	notes := &recordingNotifier{}
	engine := NewStatusEngine(store, notes, testPolicy())

	member := store.addMember("kate", 0)
	wd := store.addMovement(domain.KindWithdrawal, domain.StatusPending, member.ID, 15_000_000, time.Second)

	mov, err := engine.SetStatus(context.Background(), domain.KindWithdrawal, wd.ID, "approved", "ops")
	require.NoError(t, err)
	require.Equal(t, domain.StatusApproved, mov.Status)
	require.Equal(t, 1, notes.count(notifier.ChannelAdmin))
}

func TestUpdatePolicy(t *testing.T) {
	store := newMemStore()
	engine := NewStatusEngine(store, &recordingNotifier{}, testPolicy())

	p := engine.Policy()
	p.WithdrawalTimeout = 5 * time.Minute
	engine.UpdatePolicy(p)

	require.Equal(t, 5*time.Minute, engine.Policy().WithdrawalTimeout)
}
