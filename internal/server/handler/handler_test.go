package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func acct(b byte) domain.Account {
	var a domain.Account
	a[19] = b
	return a
}

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// ---------------------------------------------------------------------------
// Transfers
// ---------------------------------------------------------------------------

type fakeTransfers struct {
	transfer        func(from, to domain.Account, amount uint64, data []byte) (domain.Event, error)
	transferAll     func(from, to domain.Account, data []byte) (domain.Event, error)
	transferFrom    func(caller, from, to domain.Account, amount uint64, data []byte) (domain.Event, error)
	transferAllFrom func(caller, from, to domain.Account, data []byte) (domain.Event, error)
}

func (f *fakeTransfers) Transfer(ctx context.Context, from, to domain.Account, amount uint64, data []byte) (domain.Event, error) {
	return f.transfer(from, to, amount, data)
}

func (f *fakeTransfers) TransferAll(ctx context.Context, from, to domain.Account, data []byte) (domain.Event, error) {
	return f.transferAll(from, to, data)
}

func (f *fakeTransfers) TransferFrom(ctx context.Context, caller, from, to domain.Account, amount uint64, data []byte) (domain.Event, error) {
	return f.transferFrom(caller, from, to, amount, data)
}

func (f *fakeTransfers) TransferAllFrom(ctx context.Context, caller, from, to domain.Account, data []byte) (domain.Event, error) {
	return f.transferAllFrom(caller, from, to, data)
}

func TestTransferHandlerHappyPath(t *testing.T) {
	var gotFrom, gotTo domain.Account
	var gotAmount uint64
	var gotData []byte
	fake := &fakeTransfers{
		transfer: func(from, to domain.Account, amount uint64, data []byte) (domain.Event, error) {
			gotFrom, gotTo, gotAmount, gotData = from, to, amount, data
			return domain.Event{Seq: 7, Kind: domain.EventTransferred, From: from, To: to, Amount: amount}, nil
		},
	}
	h := NewTransferHandler(fake, discardLogger())

	body := `{"caller":"` + acct(1).Hex() + `","to":"` + acct(2).Hex() + `","amount":3000,"data":"coupon"}`
	rec := postJSON(t, h.Transfer, body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, acct(1), gotFrom)
	assert.Equal(t, acct(2), gotTo)
	assert.Equal(t, uint64(3000), gotAmount)
	assert.Equal(t, []byte("coupon"), gotData)

	ev := decodeBody[domain.Event](t, rec)
	assert.Equal(t, uint64(7), ev.Seq)
}

func TestTransferHandlerDelegatedUsesCallerAsSpender(t *testing.T) {
	var gotCaller, gotFrom domain.Account
	fake := &fakeTransfers{
		transferFrom: func(caller, from, to domain.Account, amount uint64, data []byte) (domain.Event, error) {
			gotCaller, gotFrom = caller, from
			return domain.Event{Seq: 1}, nil
		},
	}
	h := NewTransferHandler(fake, discardLogger())

	body := `{"caller":"` + acct(3).Hex() + `","from":"` + acct(1).Hex() + `","to":"` + acct(2).Hex() + `","amount":1000}`
	rec := postJSON(t, h.TransferFrom, body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, acct(3), gotCaller)
	assert.Equal(t, acct(1), gotFrom)
}

func TestTransferHandlerRejectsBadInput(t *testing.T) {
	h := NewTransferHandler(&fakeTransfers{}, discardLogger())

	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{"caller":`, "invalid request body"},
		{"bad caller", `{"caller":"0x12","to":"` + acct(2).Hex() + `"}`, "caller"},
		{"bad to", `{"caller":"` + acct(1).Hex() + `","to":"nope"}`, "to"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h.Transfer, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestTransferHandlerDelegatedRequiresFrom(t *testing.T) {
	h := NewTransferHandler(&fakeTransfers{}, discardLogger())

	body := `{"caller":"` + acct(3).Hex() + `","to":"` + acct(2).Hex() + `","amount":1000}`
	rec := postJSON(t, h.TransferFrom, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "from")
}

func TestLedgerErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{domain.ErrUnsupportedOperation, http.StatusBadRequest},
		{domain.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{domain.ErrInsufficientAllowance, http.StatusUnprocessableEntity},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrMaturityExpired, http.StatusConflict},
		{domain.ErrNoHolding, http.StatusConflict},
		{domain.ErrNotFound, http.StatusNotFound},
		{assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			fake := &fakeTransfers{
				transfer: func(from, to domain.Account, amount uint64, data []byte) (domain.Event, error) {
					return domain.Event{}, tt.err
				},
			}
			h := NewTransferHandler(fake, discardLogger())

			body := `{"caller":"` + acct(1).Hex() + `","to":"` + acct(2).Hex() + `","amount":1000}`
			rec := postJSON(t, h.Transfer, body)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusInternalServerError {
				// Internal failures never leak their message.
				assert.NotContains(t, rec.Body.String(), tt.err.Error())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

type fakeOptions struct {
	call        func(caller, holder domain.Account, data []byte) (domain.SettlementResult, error)
	put         func(caller domain.Account, data []byte) (domain.SettlementResult, error)
	convert     func(caller, holder domain.Account, data []byte) (domain.SettlementResult, error)
	settlements func(limit int) ([]domain.SettlementInstruction, error)
}

func (f *fakeOptions) Call(ctx context.Context, caller, holder domain.Account, data []byte) (domain.SettlementResult, error) {
	return f.call(caller, holder, data)
}

func (f *fakeOptions) Put(ctx context.Context, caller domain.Account, data []byte) (domain.SettlementResult, error) {
	return f.put(caller, data)
}

func (f *fakeOptions) Convert(ctx context.Context, caller, holder domain.Account, data []byte) (domain.SettlementResult, error) {
	return f.convert(caller, holder, data)
}

func (f *fakeOptions) Settlements(ctx context.Context, limit int) ([]domain.SettlementInstruction, error) {
	return f.settlements(limit)
}

func TestOptionHandlerCallTargetsHolder(t *testing.T) {
	var gotCaller, gotHolder domain.Account
	fake := &fakeOptions{
		call: func(caller, holder domain.Account, data []byte) (domain.SettlementResult, error) {
			gotCaller, gotHolder = caller, holder
			return domain.SettlementResult{Seq: 3}, nil
		},
	}
	h := NewOptionHandler(fake, discardLogger())

	body := `{"caller":"` + acct(1).Hex() + `","holder":"` + acct(2).Hex() + `"}`
	rec := postJSON(t, h.Call, body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, acct(1), gotCaller)
	assert.Equal(t, acct(2), gotHolder)

	res := decodeBody[domain.SettlementResult](t, rec)
	assert.Equal(t, uint64(3), res.Seq)
}

func TestOptionHandlerHolderDefaultsToCaller(t *testing.T) {
	var gotHolder domain.Account
	fake := &fakeOptions{
		convert: func(caller, holder domain.Account, data []byte) (domain.SettlementResult, error) {
			gotHolder = holder
			return domain.SettlementResult{}, nil
		},
	}
	h := NewOptionHandler(fake, discardLogger())

	rec := postJSON(t, h.Convert, `{"caller":"`+acct(2).Hex()+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, acct(2), gotHolder)
}

func TestOptionHandlerPutRejectsUnsupported(t *testing.T) {
	fake := &fakeOptions{
		put: func(caller domain.Account, data []byte) (domain.SettlementResult, error) {
			return domain.SettlementResult{}, domain.ErrUnsupportedOperation
		},
	}
	h := NewOptionHandler(fake, discardLogger())

	rec := postJSON(t, h.Put, `{"caller":"`+acct(2).Hex()+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOptionHandlerListSettlements(t *testing.T) {
	var gotLimit int
	fake := &fakeOptions{
		settlements: func(limit int) ([]domain.SettlementInstruction, error) {
			gotLimit = limit
			return []domain.SettlementInstruction{
				{ID: "s-1", Kind: domain.SettlementCall, Holder: acct(2), Amount: 5000, IssuedAt: time.Now()},
			}, nil
		},
	}
	h := NewOptionHandler(fake, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/settlements?limit=9000", nil)
	rec := httptest.NewRecorder()
	h.ListSettlements(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, gotLimit) // clamped

	out := decodeBody[listSettlementsResponse](t, rec)
	require.Len(t, out.Settlements, 1)
	assert.Equal(t, "s-1", out.Settlements[0].ID)
}

// ---------------------------------------------------------------------------
// Allowances
// ---------------------------------------------------------------------------

type fakeAllowances struct {
	approval    func(owner, spender domain.Account) uint64
	approve     func(owner, spender domain.Account, amount uint64) (domain.Event, error)
	approveAll  func(owner, spender domain.Account) (domain.Event, error)
	decrease    func(owner, spender domain.Account, amount uint64) (domain.Event, error)
	decreaseAll func(owner, spender domain.Account) (domain.Event, error)
}

func (f *fakeAllowances) Approval(ctx context.Context, owner, spender domain.Account) uint64 {
	return f.approval(owner, spender)
}

func (f *fakeAllowances) Approve(ctx context.Context, owner, spender domain.Account, amount uint64) (domain.Event, error) {
	return f.approve(owner, spender, amount)
}

func (f *fakeAllowances) ApproveAll(ctx context.Context, owner, spender domain.Account) (domain.Event, error) {
	return f.approveAll(owner, spender)
}

func (f *fakeAllowances) DecreaseAllowance(ctx context.Context, owner, spender domain.Account, amount uint64) (domain.Event, error) {
	return f.decrease(owner, spender, amount)
}

func (f *fakeAllowances) DecreaseAllowanceForAll(ctx context.Context, owner, spender domain.Account) (domain.Event, error) {
	return f.decreaseAll(owner, spender)
}

func TestAllowanceHandlerGetApproval(t *testing.T) {
	fake := &fakeAllowances{
		approval: func(owner, spender domain.Account) uint64 {
			return domain.UnlimitedAllowance
		},
	}
	h := NewAllowanceHandler(fake, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/allowances/x/y", nil)
	req.SetPathValue("owner", acct(1).Hex())
	req.SetPathValue("spender", acct(3).Hex())
	rec := httptest.NewRecorder()
	h.GetApproval(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody[approvalResponse](t, rec)
	assert.Equal(t, acct(1).Hex(), out.Owner)
	assert.True(t, out.Unlimited)
	assert.Equal(t, domain.UnlimitedAllowance, out.Remaining)
}

func TestAllowanceHandlerGetApprovalBadAccount(t *testing.T) {
	h := NewAllowanceHandler(&fakeAllowances{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/allowances/x/y", nil)
	req.SetPathValue("owner", "not-an-address")
	req.SetPathValue("spender", acct(3).Hex())
	rec := httptest.NewRecorder()
	h.GetApproval(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAllowanceHandlerApprove(t *testing.T) {
	var gotOwner, gotSpender domain.Account
	var gotAmount uint64
	fake := &fakeAllowances{
		approve: func(owner, spender domain.Account, amount uint64) (domain.Event, error) {
			gotOwner, gotSpender, gotAmount = owner, spender, amount
			return domain.Event{Seq: 2, Kind: domain.EventApproved}, nil
		},
	}
	h := NewAllowanceHandler(fake, discardLogger())

	body := `{"caller":"` + acct(1).Hex() + `","spender":"` + acct(3).Hex() + `","amount":5000}`
	rec := postJSON(t, h.Approve, body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, acct(1), gotOwner)
	assert.Equal(t, acct(3), gotSpender)
	assert.Equal(t, uint64(5000), gotAmount)
}

func TestAllowanceHandlerDecreaseBelowRemaining(t *testing.T) {
	fake := &fakeAllowances{
		decrease: func(owner, spender domain.Account, amount uint64) (domain.Event, error) {
			return domain.Event{}, domain.ErrInsufficientAllowance
		},
	}
	h := NewAllowanceHandler(fake, discardLogger())

	body := `{"caller":"` + acct(1).Hex() + `","spender":"` + acct(3).Hex() + `","amount":9999}`
	rec := postJSON(t, h.Decrease, body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// ---------------------------------------------------------------------------
// Holdings and events
// ---------------------------------------------------------------------------

type fakeHoldings struct {
	principal func(account domain.Account) uint64
}

func (f *fakeHoldings) Principal(ctx context.Context, account domain.Account) uint64 {
	return f.principal(account)
}

func TestHoldingHandlerReportsPrincipal(t *testing.T) {
	fake := &fakeHoldings{principal: func(domain.Account) uint64 { return 6000 }}
	h := NewHoldingHandler(fake, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/holdings/x", nil)
	req.SetPathValue("account", acct(2).Hex())
	rec := httptest.NewRecorder()
	h.GetHolding(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody[holdingResponse](t, rec)
	assert.Equal(t, acct(2).Hex(), out.Account)
	assert.Equal(t, uint64(6000), out.Principal)
}

type fakeEvents struct {
	events func(since uint64, limit int) ([]domain.Event, error)
}

func (f *fakeEvents) Events(ctx context.Context, since uint64, limit int) ([]domain.Event, error) {
	return f.events(since, limit)
}

func TestEventHandlerPassesQueryParams(t *testing.T) {
	var gotSince uint64
	var gotLimit int
	fake := &fakeEvents{
		events: func(since uint64, limit int) ([]domain.Event, error) {
			gotSince, gotLimit = since, limit
			return []domain.Event{{Seq: 43}}, nil
		},
	}
	h := NewEventHandler(fake, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/events?since=42&limit=5", nil)
	rec := httptest.NewRecorder()
	h.ListEvents(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(42), gotSince)
	assert.Equal(t, 5, gotLimit)

	out := decodeBody[listEventsResponse](t, rec)
	require.Len(t, out.Events, 1)
	assert.Equal(t, uint64(43), out.Events[0].Seq)
}

func TestEventHandlerEmptyResultIsArray(t *testing.T) {
	fake := &fakeEvents{
		events: func(since uint64, limit int) ([]domain.Event, error) { return nil, nil },
	}
	h := NewEventHandler(fake, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	h.ListEvents(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"events":[]}`, rec.Body.String())
}

func TestEventHandlerReadFailure(t *testing.T) {
	fake := &fakeEvents{
		events: func(since uint64, limit int) ([]domain.Event, error) { return nil, assert.AnError },
	}
	h := NewEventHandler(fake, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	h.ListEvents(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to list events")
}
