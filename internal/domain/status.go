package domain

import (
	"errors"
	"fmt"
	"strings"
)

// MovementKind identifies the direction of a movement record.
type MovementKind string

const (
	KindDeposit    MovementKind = "deposit"
	KindWithdrawal MovementKind = "withdrawal"
)

// MovementStatus is the lifecycle state of a movement record.
type MovementStatus string

const (
	StatusPending    MovementStatus = "pending"
	StatusProcessing MovementStatus = "processing"
	StatusDone       MovementStatus = "done"
	StatusApproved   MovementStatus = "approved"
	StatusRejected   MovementStatus = "rejected"
	StatusFailed     MovementStatus = "failed"
)

var (
	ErrInvalidKind   = errors.New("invalid movement kind")
	ErrInvalidStatus = errors.New("invalid movement status")
)

// Recognized statuses per kind. Deposits never pass through processing;
// withdrawals never reach done (they end approved, rejected or failed).
var kindStatuses = map[MovementKind]map[MovementStatus]struct{}{
	KindDeposit: {
		StatusPending:  {},
		StatusDone:     {},
		StatusApproved: {},
		StatusRejected: {},
		StatusFailed:   {},
	},
	KindWithdrawal: {
		StatusPending:    {},
		StatusProcessing: {},
		StatusApproved:   {},
		StatusRejected:   {},
		StatusFailed:     {},
	},
}

// ParseKind validates a caller-supplied kind string.
func ParseKind(s string) (MovementKind, error) {
	switch MovementKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindDeposit:
		return KindDeposit, nil
	case KindWithdrawal:
		return KindWithdrawal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// ParseStatus validates a caller-supplied status against the closed set for kind.
func ParseStatus(kind MovementKind, s string) (MovementStatus, error) {
	status := MovementStatus(strings.ToLower(strings.TrimSpace(s)))
	allowed, ok := kindStatuses[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if _, ok := allowed[status]; !ok {
		return "", fmt.Errorf("%w: %q for kind %s", ErrInvalidStatus, s, kind)
	}
	return status, nil
}

// Terminal reports whether no automatic transition ever leaves the status.
func (s MovementStatus) Terminal() bool {
	switch s {
	case StatusDone, StatusApproved, StatusRejected, StatusFailed:
		return true
	}
	return false
}

func (s MovementStatus) String() string { return string(s) }

func (k MovementKind) String() string { return string(k) }
