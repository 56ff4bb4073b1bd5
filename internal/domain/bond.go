// Package domain defines the core types of the bond ledger: the bond terms,
// holdings, allowances, events, settlement instructions, and the store and bus
// interfaces implemented by the infrastructure packages.
package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Account identifies a bond holder or spender. Accounts are 20-byte addresses,
// the native account identifier of the token standard the ledger implements.
type Account = common.Address

// ZeroAccount is the null address. Option settlements record the vacated
// principal as a transfer to this account.
var ZeroAccount = Account{}

// HexToAccount parses the canonical 0x-prefixed hex form of an account.
func HexToAccount(s string) Account {
	return common.HexToAddress(s)
}

// CouponType classifies how the coupon rate behaves over the bond's life.
type CouponType string

const (
	CouponFixed    CouponType = "fixed"
	CouponFloating CouponType = "floating"
	CouponZero     CouponType = "zero"
)

// DayCountBasis is the day-count convention used for coupon period fractions.
type DayCountBasis string

const (
	DayCount30360  DayCountBasis = "30/360"
	DayCountAct360 DayCountBasis = "ACT/360"
	DayCountAct365 DayCountBasis = "ACT/365"
	DayCountActAct DayCountBasis = "ACT/ACT"
)

// Capability is an embedded option the bond was configured with at issuance.
type Capability string

const (
	CapabilityCall    Capability = "call"
	CapabilityPut     Capability = "put"
	CapabilityConvert Capability = "convert"
)

// Terms holds the bond-wide issuance metadata. All fields are immutable after
// issuance; the current issue volume is ledger state, not part of Terms, since
// option settlement reduces it over time.
type Terms struct {
	ISIN             string          `json:"isin"`
	Name             string          `json:"name"`
	Symbol           string          `json:"symbol"`
	Decimals         uint8           `json:"decimals"`
	Currency         string          `json:"currency"`
	CurrencyOfCoupon string          `json:"currency_of_coupon"`
	Denomination     uint64          `json:"denomination"`
	IssueVolume      uint64          `json:"issue_volume"`
	CouponRateBps    uint32          `json:"coupon_rate_bps"`
	CouponType       CouponType      `json:"coupon_type"`
	CouponFrequency  int             `json:"coupon_frequency"`
	IssueDate        time.Time       `json:"issue_date"`
	MaturityDate     time.Time       `json:"maturity_date"`
	DayCountBasis    DayCountBasis   `json:"day_count_basis"`
	Issuer           Account         `json:"issuer"`
	Capabilities     []Capability    `json:"capabilities"`

	// IssuerConvertible grants the issuer the right to trigger conversion in
	// addition to the holder. Off unless the bond's terms say otherwise.
	IssuerConvertible bool `json:"issuer_convertible"`
}

// HasCapability reports whether the bond was issued with the given embedded
// option.
func (t Terms) HasCapability(c Capability) bool {
	for _, have := range t.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Holding pairs an account with its principal balance in currency units.
type Holding struct {
	Account Account `json:"account"`
	Amount  uint64  `json:"amount"`
}

// Allowance is the authorization an owner granted a spender: either a numeric
// ceiling or the approve-all flag, never both.
type Allowance struct {
	Owner     Account `json:"owner"`
	Spender   Account `json:"spender"`
	Remaining uint64  `json:"remaining"`
	Unlimited bool    `json:"unlimited"`
}
