package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nexbit/backoffice/internal/domain"
	"github.com/nexbit/backoffice/internal/models"
	"github.com/nexbit/backoffice/internal/notifier"
	"github.com/nexbit/backoffice/internal/observability"
	"go.uber.org/zap"
)

// actorSystem marks transitions performed by the automatic sweep.
const actorSystem = "system"

// Policy holds the runtime-tunable thresholds driving the sweeps.
type Policy struct {
	// DepositGrace is the settlement delay before a pending deposit is
	// auto-completed.
	DepositGrace time.Duration
	// WithdrawalTimeout is how long a withdrawal may stay processing before
	// it is marked failed.
	WithdrawalTimeout time.Duration
	// AnomalyThreshold is the deposit count within AnomalyWindow that raises
	// one aggregate alert. Zero disables the check.
	AnomalyThreshold int
	// AnomalyWindow is the sliding window for the anomaly check.
	AnomalyWindow time.Duration
}

// StatusEngine owns the movement lifecycle: it advances pending records on a
// time-based policy, applies balance effects exactly once per transition, and
// emits one notification per transition, always after the durable write.
type StatusEngine struct {
	store     Store
	notifier  notifier.Notifier
	batchSize int32

	mu     sync.RWMutex
	policy Policy

	anomalyMu        sync.Mutex
	lastAnomalyAlert time.Time
}

// NewStatusEngine wires the engine with its injected collaborators.
func NewStatusEngine(store Store, n notifier.Notifier, policy Policy) *StatusEngine {
	return &StatusEngine{
		store:     store,
		notifier:  n,
		batchSize: 50,
		policy:    policy,
	}
}

// WithBatchSize caps how many records one sweep pass evaluates.
func (s *StatusEngine) WithBatchSize(size int32) *StatusEngine {
	if size > 0 {
		s.batchSize = size
	}
	return s
}

// Policy returns the current sweep policy.
func (s *StatusEngine) Policy() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// UpdatePolicy replaces the sweep policy at runtime.
func (s *StatusEngine) UpdatePolicy(p Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p
}

// SweepDeposits evaluates pending deposits older than the grace period.
// A missing member fails the record; otherwise the deposit is credited and
// completed as one storage transaction. Per-record storage failures are
// logged and retried on the next tick, since unresolved records stay pending.
func (s *StatusEngine) SweepDeposits(ctx context.Context) error {
	cutoff := time.Now().Add(-s.Policy().DepositGrace)
	deposits, err := s.store.ListPendingDeposits(ctx, cutoff, s.batchSize)
	if err != nil {
		return fmt.Errorf("list pending deposits: %w", err)
	}

	for _, dep := range deposits {
		if err := ctx.Err(); err != nil {
			return err
		}

		member, err := s.store.GetMember(ctx, dep.MemberID)
		if errors.Is(err, models.ErrMemberNotFound) {
			s.failDeposit(ctx, dep)
			continue
		}
		if err != nil {
			zap.L().Error("sweep: member lookup failed",
				zap.Error(err), zap.String("deposit_id", dep.ID))
			continue
		}

		newBalance, claimed, err := s.store.CreditDeposit(ctx, dep, actorSystem)
		if err != nil {
			zap.L().Error("sweep: credit deposit failed",
				zap.Error(err), zap.String("deposit_id", dep.ID))
			continue
		}
		if !claimed {
			// Another sweep or an operator already resolved this record.
			continue
		}

		observability.IncrementMovementTransition(string(dep.Kind), string(domain.StatusDone))
		s.notifier.Notify(ctx, notifier.ChannelMarket, fmt.Sprintf(
			"member %s credited %s %s (deposit %s), new balance %s",
			member.Username, domain.FormatAmount(dep.Amount), dep.Currency,
			dep.OrderID, domain.FormatAmount(newBalance),
		))
	}
	return nil
}

func (s *StatusEngine) failDeposit(ctx context.Context, dep models.Movement) {
	claimed, err := s.store.UpdateMovementStatusIf(ctx, dep.Kind, dep.ID,
		domain.StatusPending, domain.StatusFailed)
	if err != nil {
		zap.L().Error("sweep: fail deposit write failed",
			zap.Error(err), zap.String("deposit_id", dep.ID))
		return
	}
	if !claimed {
		return
	}
	observability.IncrementMovementTransition(string(dep.Kind), string(domain.StatusFailed))
	s.notifier.Notify(ctx, notifier.ChannelAdmin, fmt.Sprintf(
		"deposit %s failed: member %s not found", dep.ID, dep.MemberID))
}

// SweepWithdrawals marks processing withdrawals older than the timeout as
// failed, one notification per record. The debited amount is not refunded
// automatically; operators refund through AdjustBalance when warranted.
func (s *StatusEngine) SweepWithdrawals(ctx context.Context) error {
	cutoff := time.Now().Add(-s.Policy().WithdrawalTimeout)
	withdrawals, err := s.store.ListProcessingWithdrawals(ctx, cutoff, s.batchSize)
	if err != nil {
		return fmt.Errorf("list processing withdrawals: %w", err)
	}

	for _, wd := range withdrawals {
		if err := ctx.Err(); err != nil {
			return err
		}

		claimed, err := s.store.UpdateMovementStatusIf(ctx, wd.Kind, wd.ID,
			domain.StatusProcessing, domain.StatusFailed)
		if err != nil {
			zap.L().Error("sweep: fail withdrawal write failed",
				zap.Error(err), zap.String("withdrawal_id", wd.ID))
			continue
		}
		if !claimed {
			continue
		}

		observability.IncrementMovementTransition(string(wd.Kind), string(domain.StatusFailed))
		s.notifier.Notify(ctx, notifier.ChannelAdmin, fmt.Sprintf(
			"withdrawal %s processing timed out, marked failed", wd.ID))
	}
	return nil
}

// SetStatus is the administrative override. The status must belong to the
// kind's closed set. Marking a deposit done routes through the same
// credit-once path as the sweep, so the balance effect is applied exactly
// once regardless of which side wins the race.
func (s *StatusEngine) SetStatus(ctx context.Context, kind domain.MovementKind, id, rawStatus, actor string) (*models.Movement, error) {
	status, err := domain.ParseStatus(kind, rawStatus)
	if err != nil {
		return nil, err
	}

	mov, err := s.store.GetMovement(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	if kind == domain.KindDeposit && status == domain.StatusDone {
		newBalance, claimed, err := s.store.CreditDeposit(ctx, *mov, actor)
		if err != nil {
			return nil, fmt.Errorf("credit deposit %s: %w", id, err)
		}
		if claimed {
			observability.IncrementMovementTransition(string(kind), string(status))
			s.notifier.Notify(ctx, notifier.ChannelAdmin, fmt.Sprintf(
				"deposit %s marked done by %s, member credited %s (balance %s)",
				id, actor, domain.FormatAmount(mov.Amount), domain.FormatAmount(newBalance)))
		}
		return s.store.GetMovement(ctx, kind, id)
	}

	if err := s.store.SetMovementStatus(ctx, kind, id, status); err != nil {
		return nil, err
	}

	observability.IncrementMovementTransition(string(kind), string(status))
	s.notifier.Notify(ctx, notifier.ChannelAdmin, fmt.Sprintf(
		"%s %s status set to %s by %s", kind, id, status, actor))
	return s.store.GetMovement(ctx, kind, id)
}

// AdjustBalance applies a signed delta to a member balance outside the normal
// movement lifecycle and appends an audit row. Any sign, no bounds.
func (s *StatusEngine) AdjustBalance(ctx context.Context, memberID string, delta int64, reason, actor string) (int64, error) {
	oldBalance, newBalance, err := s.store.AdjustBalance(ctx, memberID, delta, reason, actor)
	if err != nil {
		return 0, err
	}

	observability.IncrementBalanceAdjustment()
	s.notifier.Notify(ctx, notifier.ChannelAdmin, fmt.Sprintf(
		"balance adjustment by %s: member %s %+d micros, %s -> %s, reason: %s",
		actor, memberID, delta,
		domain.FormatAmount(oldBalance), domain.FormatAmount(newBalance), reason))
	return newBalance, nil
}

// CheckDepositAnomaly counts deposits created inside the sliding window and
// raises at most one aggregate alert per window when the threshold is met.
func (s *StatusEngine) CheckDepositAnomaly(ctx context.Context) error {
	p := s.Policy()
	if p.AnomalyThreshold <= 0 || p.AnomalyWindow <= 0 {
		return nil
	}

	since := time.Now().Add(-p.AnomalyWindow)
	count, err := s.store.CountDepositsCreatedSince(ctx, since)
	if err != nil {
		return fmt.Errorf("count recent deposits: %w", err)
	}
	if count < int64(p.AnomalyThreshold) {
		return nil
	}

	s.anomalyMu.Lock()
	if time.Since(s.lastAnomalyAlert) < p.AnomalyWindow {
		s.anomalyMu.Unlock()
		return nil
	}
	s.lastAnomalyAlert = time.Now()
	s.anomalyMu.Unlock()

	observability.IncrementAnomalyAlert()
	s.notifier.Notify(ctx, notifier.ChannelAdmin, fmt.Sprintf(
		"anomaly: %d deposits created within the last %s (threshold %d)",
		count, p.AnomalyWindow, p.AnomalyThreshold))
	return nil
}
