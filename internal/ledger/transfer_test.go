package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	l, sink := newTestLedger(t)

	ev, err := l.Transfer(ctx, holderA, holderB, 3000, []byte("trade 42"))
	require.NoError(t, err)

	assert.Equal(t, uint64(2000), l.PrincipalOf(holderA))
	assert.Equal(t, uint64(4_998_000), l.PrincipalOf(holderB))
	assert.Equal(t, uint64(5_000_000), l.IssueVolume())

	require.Len(t, sink.events, 1)
	assert.Equal(t, domain.EventTransferred, ev.Kind)
	assert.Equal(t, uint64(1), ev.Seq)
	assert.Equal(t, holderA, ev.From)
	assert.Equal(t, holderB, ev.To)
	assert.Equal(t, uint64(3000), ev.Amount)
	assert.Equal(t, []byte("trade 42"), ev.Data)
	requireConserved(t, l)
}

func TestTransferRejectsInvalidAmounts(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		amount uint64
	}{
		{"not a multiple of denomination", 1500},
		{"zero", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l, sink := newTestLedger(t)

			_, err := l.Transfer(ctx, holderA, holderB, tc.amount, nil)
			require.ErrorIs(t, err, domain.ErrInvalidAmount)

			assert.Equal(t, uint64(5000), l.PrincipalOf(holderA))
			assert.Empty(t, sink.events, "failed transfer must emit nothing")
			assert.Zero(t, l.Seq())
		})
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	l, sink := newTestLedger(t)

	_, err := l.Transfer(ctx, holderA, holderB, 6000, nil)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, uint64(5000), l.PrincipalOf(holderA))
	assert.Empty(t, sink.events)
}

func TestSelfTransferEmitsEventWithoutBalanceChange(t *testing.T) {
	ctx := context.Background()
	l, sink := newTestLedger(t)

	ev, err := l.Transfer(ctx, holderA, holderA, 2000, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(5000), l.PrincipalOf(holderA))
	assert.Equal(t, uint64(1), ev.Seq)
	require.Len(t, sink.events, 1)
	requireConserved(t, l)
}

func TestTransferDrainsHoldingToZero(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	_, err := l.Transfer(ctx, holderA, holderB, 5000, nil)
	require.NoError(t, err)

	// Zero is a valid holding state: further reads succeed and report zero.
	assert.Zero(t, l.PrincipalOf(holderA))
	assert.Equal(t, uint64(5_000_000), l.PrincipalOf(holderB))
	requireConserved(t, l)
}

func TestTransferAll(t *testing.T) {
	ctx := context.Background()
	l, sink := newTestLedger(t)

	ev, err := l.TransferAll(ctx, holderA, holderB, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(5000), ev.Amount)
	assert.Zero(t, l.PrincipalOf(holderA))
	require.Len(t, sink.events, 1)
	requireConserved(t, l)
}

func TestTransferAllOnZeroBalanceFails(t *testing.T) {
	ctx := context.Background()
	l, sink := newTestLedger(t)

	_, err := l.TransferAll(ctx, acct(0x77), holderB, nil)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Empty(t, sink.events)
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	ctx := context.Background()
	l, sink := newTestLedger(t)

	_, err := l.Approve(ctx, holderA, spender, 4000)
	require.NoError(t, err)

	ev, err := l.TransferFrom(ctx, spender, holderA, holderB, 3000, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(2000), l.PrincipalOf(holderA))
	assert.Equal(t, uint64(1000), l.Approval(holderA, spender), "allowance 4000 - 3000")
	assert.Equal(t, domain.EventTransferred, ev.Kind)
	require.Len(t, sink.events, 2, "one Approved, one Transferred")
	requireConserved(t, l)
}

func TestTransferFromUnderApproveAllLeavesGrantUnlimited(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	_, err := l.ApproveAll(ctx, holderA, spender)
	require.NoError(t, err)

	_, err = l.TransferFrom(ctx, spender, holderA, holderB, 3000, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.UnlimitedAllowance, l.Approval(holderA, spender))
	assert.Equal(t, uint64(2000), l.PrincipalOf(holderA))
}

func TestTransferFromWithoutAllowanceFails(t *testing.T) {
	ctx := context.Background()
	l, sink := newTestLedger(t)

	_, err := l.TransferFrom(ctx, spender, holderA, holderB, 1000, nil)
	require.ErrorIs(t, err, domain.ErrInsufficientAllowance)
	assert.Equal(t, uint64(5000), l.PrincipalOf(holderA))
	assert.Empty(t, sink.events)
}

func TestTransferFromExceedingAllowanceFails(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	// Scenario: approve 2000, decrease by 500, then attempt 2000.
	_, err := l.Approve(ctx, holderA, spender, 2000)
	require.NoError(t, err)
	_, err = l.DecreaseAllowance(ctx, holderA, spender, 500)
	require.ErrorIs(t, err, domain.ErrInvalidAmount, "500 is not a denomination multiple")

	_, err = l.DecreaseAllowance(ctx, holderA, spender, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), l.Approval(holderA, spender))

	_, err = l.TransferFrom(ctx, spender, holderA, holderB, 2000, nil)
	require.ErrorIs(t, err, domain.ErrInsufficientAllowance)

	assert.Equal(t, uint64(5000), l.PrincipalOf(holderA))
	assert.Equal(t, uint64(4_995_000), l.PrincipalOf(holderB))
	assert.Equal(t, uint64(1000), l.Approval(holderA, spender),
		"failed transfer must not consume the allowance")
}

func TestTransferFromInsufficientBalancePreservesAllowance(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	_, err := l.Approve(ctx, holderA, spender, 10_000)
	require.NoError(t, err)

	_, err = l.TransferFrom(ctx, spender, holderA, holderB, 6000, nil)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, uint64(10_000), l.Approval(holderA, spender))
}

func TestTransferFromByOwnerNeedsNoAllowance(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	_, err := l.TransferFrom(ctx, holderA, holderA, holderB, 1000, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(4000), l.PrincipalOf(holderA))
}

func TestTransferAllFrom(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	_, err := l.ApproveAll(ctx, holderA, spender)
	require.NoError(t, err)

	ev, err := l.TransferAllFrom(ctx, spender, holderA, holderB, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(5000), ev.Amount)
	assert.Zero(t, l.PrincipalOf(holderA))
	assert.Equal(t, uint64(5_000_000), l.PrincipalOf(holderB))
	requireConserved(t, l)
}

func TestTransferAllFromOnZeroBalanceFails(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	_, err := l.ApproveAll(ctx, acct(0x77), spender)
	require.NoError(t, err)

	_, err = l.TransferAllFrom(ctx, spender, acct(0x77), holderB, nil)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestEventSequenceIsContiguous(t *testing.T) {
	ctx := context.Background()
	l, sink := newTestLedger(t)

	_, err := l.Transfer(ctx, holderA, holderB, 1000, nil)
	require.NoError(t, err)
	_, err = l.Approve(ctx, holderA, spender, 2000)
	require.NoError(t, err)
	_, err = l.Transfer(ctx, holderB, holderA, 2000, nil)
	require.NoError(t, err)

	require.Len(t, sink.events, 3)
	for i, ev := range sink.events {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}
	assert.Equal(t, uint64(3), l.Seq())
}
