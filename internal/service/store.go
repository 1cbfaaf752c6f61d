package service

import (
	"context"
	"time"

	"github.com/nexbit/backoffice/internal/domain"
	"github.com/nexbit/backoffice/internal/models"
)

// Store is the persistence contract the status engine depends on.
// Implementations must provide single-row atomicity: conditional status
// updates report whether a row was actually claimed, and balance changes
// are atomic increments, never read-modify-write.
type Store interface {
	GetMember(ctx context.Context, id string) (*models.Member, error)

	// ListPendingDeposits returns the oldest pending deposits created before
	// olderThan, capped at limit.
	ListPendingDeposits(ctx context.Context, olderThan time.Time, limit int32) ([]models.Movement, error)

	// ListProcessingWithdrawals returns processing withdrawals created before
	// olderThan, oldest first, capped at limit.
	ListProcessingWithdrawals(ctx context.Context, olderThan time.Time, limit int32) ([]models.Movement, error)

	GetMovement(ctx context.Context, kind domain.MovementKind, id string) (*models.Movement, error)

	// UpdateMovementStatusIf transitions the record only when its current
	// status still equals from. Zero rows affected means another worker got
	// there first; that is reported as claimed=false, not an error.
	UpdateMovementStatusIf(ctx context.Context, kind domain.MovementKind, id string, from, to domain.MovementStatus) (bool, error)

	// SetMovementStatus writes the status unconditionally (administrative
	// override path). Returns models.ErrMovementNotFound when the row is absent.
	SetMovementStatus(ctx context.Context, kind domain.MovementKind, id string, to domain.MovementStatus) error

	// CreditDeposit executes, as a single unit: the pending->done transition
	// conditioned on the current status, the atomic balance increment, and the
	// ledger append. claimed=false means the record was no longer pending and
	// nothing was written.
	CreditDeposit(ctx context.Context, mov models.Movement, actor string) (newBalance int64, claimed bool, err error)

	// AdjustBalance atomically applies a signed delta to the member balance and
	// appends a ledger row, returning the balance before and after.
	AdjustBalance(ctx context.Context, memberID string, delta int64, reason, actor string) (oldBalance, newBalance int64, err error)

	CountDepositsCreatedSince(ctx context.Context, since time.Time) (int64, error)
}
