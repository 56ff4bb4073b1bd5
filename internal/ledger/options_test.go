package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// newOptionLedger wires recording settlers for all three option kinds.
func newOptionLedger(t *testing.T, opts ...Option) (*Ledger, *recordingSink, *recordingSettler) {
	t.Helper()

	settler := &recordingSettler{}
	base := []Option{
		WithSettler(domain.CapabilityCall, settler),
		WithSettler(domain.CapabilityPut, settler),
		WithSettler(domain.CapabilityConvert, settler),
	}
	l, sink := newTestLedger(t, append(base, opts...)...)
	return l, sink, settler
}

func TestCall(t *testing.T) {
	ctx := context.Background()
	l, sink, settler := newOptionLedger(t)

	res, err := l.Call(ctx, issuer, holderA, []byte("early redemption"))
	require.NoError(t, err)

	assert.Zero(t, l.PrincipalOf(holderA))
	assert.Equal(t, uint64(4_995_000), l.IssueVolume())
	assert.Equal(t, uint64(4_995_000), res.IssueVolume)
	requireConserved(t, l)

	require.Len(t, settler.instructions, 1)
	instr := settler.instructions[0]
	assert.Equal(t, domain.SettlementCall, instr.Kind)
	assert.Equal(t, holderA, instr.Holder)
	assert.Equal(t, uint64(5000), instr.Amount)
	assert.NotEmpty(t, instr.ID)
	assert.Equal(t, instr, res.Instruction)

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, domain.EventTransferred, ev.Kind)
	assert.Equal(t, holderA, ev.From)
	assert.Equal(t, domain.ZeroAccount, ev.To)
	assert.Equal(t, uint64(5000), ev.Amount)
	assert.Equal(t, res.Seq, ev.Seq)
}

func TestCallByNonIssuerFails(t *testing.T) {
	ctx := context.Background()
	l, sink, settler := newOptionLedger(t)

	_, err := l.Call(ctx, holderB, holderA, nil)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	assert.Equal(t, uint64(5000), l.PrincipalOf(holderA))
	assert.Empty(t, settler.instructions)
	assert.Empty(t, sink.events)
}

func TestCallOnEmptyHoldingFails(t *testing.T) {
	ctx := context.Background()
	l, _, settler := newOptionLedger(t)

	_, err := l.Call(ctx, issuer, acct(0x77), nil)
	require.ErrorIs(t, err, domain.ErrNoHolding)
	assert.Empty(t, settler.instructions)
}

func TestPut(t *testing.T) {
	ctx := context.Background()
	l, _, settler := newOptionLedger(t)

	res, err := l.Put(ctx, holderA, nil)
	require.NoError(t, err)

	assert.Zero(t, l.PrincipalOf(holderA))
	assert.Equal(t, uint64(4_995_000), l.IssueVolume())
	require.Len(t, settler.instructions, 1)
	assert.Equal(t, domain.SettlementPut, settler.instructions[0].Kind)
	assert.Equal(t, holderA, settler.instructions[0].Holder)
	assert.Equal(t, res.Instruction, settler.instructions[0])
	requireConserved(t, l)
}

func TestPutWithoutHoldingFails(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newOptionLedger(t)

	_, err := l.Put(ctx, acct(0x77), nil)
	require.ErrorIs(t, err, domain.ErrNoHolding)
}

func TestConvertByHolder(t *testing.T) {
	ctx := context.Background()
	l, _, settler := newOptionLedger(t)

	_, err := l.Convert(ctx, holderA, holderA, nil)
	require.NoError(t, err)

	assert.Zero(t, l.PrincipalOf(holderA))
	require.Len(t, settler.instructions, 1)
	assert.Equal(t, domain.SettlementConvert, settler.instructions[0].Kind)
}

func TestConvertByIssuerRequiresIssuerConvertibleTerms(t *testing.T) {
	ctx := context.Background()

	t.Run("not granted", func(t *testing.T) {
		l, _, _ := newOptionLedger(t)

		_, err := l.Convert(ctx, issuer, holderA, nil)
		require.ErrorIs(t, err, domain.ErrUnauthorized)
		assert.Equal(t, uint64(5000), l.PrincipalOf(holderA))
	})

	t.Run("granted", func(t *testing.T) {
		settler := &recordingSettler{}
		terms := testTerms()
		terms.IssuerConvertible = true

		l, err := New(terms, []domain.Holding{
			{Account: holderA, Amount: 5000},
			{Account: holderB, Amount: 4_995_000},
		},
			WithClock(fixedClock(terms.IssueDate.AddDate(1, 0, 0))),
			WithSettler(domain.CapabilityConvert, settler),
		)
		require.NoError(t, err)

		_, err = l.Convert(ctx, issuer, holderA, nil)
		require.NoError(t, err)
		assert.Zero(t, l.PrincipalOf(holderA))
	})

	t.Run("third party never", func(t *testing.T) {
		l, _, _ := newOptionLedger(t)

		_, err := l.Convert(ctx, holderB, holderA, nil)
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}

func TestOptionsWithoutCapabilityOrSettler(t *testing.T) {
	ctx := context.Background()

	t.Run("capability absent from terms", func(t *testing.T) {
		settler := &recordingSettler{}
		terms := testTerms()
		terms.Capabilities = []domain.Capability{domain.CapabilityCall}

		l, err := New(terms, []domain.Holding{
			{Account: holderA, Amount: 5_000_000},
		},
			WithClock(fixedClock(terms.IssueDate.AddDate(1, 0, 0))),
			WithSettler(domain.CapabilityPut, settler),
		)
		require.NoError(t, err)

		_, err = l.Put(ctx, holderA, nil)
		require.ErrorIs(t, err, domain.ErrUnsupportedOperation)
	})

	t.Run("no settler wired", func(t *testing.T) {
		l, _ := newTestLedger(t)

		_, err := l.Put(ctx, holderA, nil)
		require.ErrorIs(t, err, domain.ErrUnsupportedOperation)
	})
}

func TestOptionsAfterMaturityFail(t *testing.T) {
	ctx := context.Background()
	terms := testTerms()

	for _, clock := range []struct {
		name string
		at   func() Option
	}{
		{"at maturity", func() Option { return WithClock(fixedClock(terms.MaturityDate)) }},
		{"after maturity", func() Option { return WithClock(fixedClock(terms.MaturityDate.AddDate(0, 0, 1))) }},
	} {
		t.Run(clock.name, func(t *testing.T) {
			l, sink, settler := newOptionLedger(t, clock.at())

			_, err := l.Call(ctx, issuer, holderA, nil)
			require.ErrorIs(t, err, domain.ErrMaturityExpired)
			_, err = l.Put(ctx, holderA, nil)
			require.ErrorIs(t, err, domain.ErrMaturityExpired)
			_, err = l.Convert(ctx, holderA, holderA, nil)
			require.ErrorIs(t, err, domain.ErrMaturityExpired)

			assert.Equal(t, uint64(5000), l.PrincipalOf(holderA))
			assert.Empty(t, settler.instructions)
			assert.Empty(t, sink.events)
		})
	}
}

func TestOptionJustBeforeMaturitySucceeds(t *testing.T) {
	ctx := context.Background()
	terms := testTerms()

	l, _, _ := newOptionLedger(t, WithClock(fixedClock(terms.MaturityDate.Add(-1))))

	_, err := l.Put(ctx, holderA, nil)
	require.NoError(t, err)
}

func TestSettlerFailureLeavesLedgerUntouched(t *testing.T) {
	ctx := context.Background()
	handoffErr := errors.New("settlement rail unavailable")

	settler := &recordingSettler{failWith: handoffErr}
	l, sink := newTestLedger(t, WithSettler(domain.CapabilityPut, settler))

	_, err := l.Put(ctx, holderA, nil)
	require.ErrorIs(t, err, handoffErr)

	assert.Equal(t, uint64(5000), l.PrincipalOf(holderA))
	assert.Equal(t, uint64(5_000_000), l.IssueVolume())
	assert.Zero(t, l.Seq())
	assert.Empty(t, sink.events)
	requireConserved(t, l)
}

func TestIssuerAuthorizerOverridesTermsIssuer(t *testing.T) {
	ctx := context.Background()
	delegate := acct(0xDD)

	auth := issuerSet{delegate: true}
	l, _, settler := newOptionLedger(t, WithIssuerAuthorizer(auth))

	_, err := l.Call(ctx, delegate, holderA, nil)
	require.NoError(t, err)
	require.Len(t, settler.instructions, 1)

	// The terms issuer is no longer recognized once an authorizer is wired.
	_, err = l.Call(ctx, issuer, holderB, nil)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

// issuerSet authorizes a fixed set of accounts.
type issuerSet map[domain.Account]bool

func (s issuerSet) IsIssuer(_ context.Context, caller domain.Account) (bool, error) {
	return s[caller], nil
}
