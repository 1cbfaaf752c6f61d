package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	cases := []struct {
		in   string
		want MovementKind
		ok   bool
	}{
		{in: "deposit", want: KindDeposit, ok: true},
		{in: " Withdrawal ", want: KindWithdrawal, ok: true},
		{in: "transfer", ok: false},
		{in: "", ok: false},
	}

	for _, tc := range cases {
		got, err := ParseKind(tc.in)
		if !tc.ok {
			require.ErrorIs(t, err, ErrInvalidKind)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestParseStatusClosedSet(t *testing.T) {
	cases := []struct {
		name string
		kind MovementKind
		in   string
		want MovementStatus
		ok   bool
	}{
		{name: "deposit_done", kind: KindDeposit, in: "done", want: StatusDone, ok: true},
		{name: "deposit_upper", kind: KindDeposit, in: "FAILED", want: StatusFailed, ok: true},
		{name: "deposit_processing_rejected", kind: KindDeposit, in: "processing", ok: false},
		{name: "withdrawal_processing", kind: KindWithdrawal, in: "processing", want: StatusProcessing, ok: true},
		{name: "withdrawal_done_rejected", kind: KindWithdrawal, in: "done", ok: false},
		{name: "unknown_value", kind: KindDeposit, in: "settled", ok: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseStatus(tc.kind, tc.in)
			if !tc.ok {
				require.ErrorIs(t, err, ErrInvalidStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusApproved.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.True(t, StatusFailed.Terminal())
}
