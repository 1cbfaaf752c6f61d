package models

import (
	"errors"
	"time"

	"github.com/nexbit/backoffice/internal/domain"
)

var (
	ErrMemberNotFound   = errors.New("member not found")
	ErrMovementNotFound = errors.New("movement not found")
	ErrAdminNotFound    = errors.New("admin not found")
)

// Admin is a back-office operator account.
type Admin struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Email        string    `json:"email"`
	IsSuper      bool      `json:"is_super"`
	TwoFAEnabled bool      `json:"two_fa_enabled"`
	CreatedAt    time.Time `json:"created_at"`
}

// Member is a customer account whose balance the status engine maintains.
type Member struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	BalanceMicros int64     `json:"balance_micros"`
	CreatedAt     time.Time `json:"created_at"`
}

// Movement is a deposit or withdrawal tracked through its lifecycle.
// Records are never deleted; terminal rows remain for audit.
type Movement struct {
	ID        string                `json:"id"`
	OrderID   string                `json:"order_id"`
	MemberID  string                `json:"member_id"`
	Amount    int64                 `json:"amount_micros"`
	Currency  string                `json:"currency"`
	Status    domain.MovementStatus `json:"status"`
	Kind      domain.MovementKind   `json:"kind"`
	Note      string                `json:"note,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// LedgerEntry is an append-only audit row for every balance effect:
// credited deposits and direct administrative adjustments.
type LedgerEntry struct {
	ID        string    `json:"id"`
	MemberID  string    `json:"member_id"`
	Kind      string    `json:"kind"` // deposit, withdrawal, adjust
	Amount    int64     `json:"amount_micros"`
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Setting is a key/value row for runtime-tunable policy.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
