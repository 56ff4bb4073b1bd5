package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// BondStore implements domain.BondStore using PostgreSQL. The bond table holds
// a single row; the process serves exactly one bond issue.
type BondStore struct {
	pool *pgxpool.Pool
}

// NewBondStore creates a new BondStore backed by the given connection pool.
func NewBondStore(pool *pgxpool.Pool) *BondStore {
	return &BondStore{pool: pool}
}

// Save upserts the bond terms row.
func (s *BondStore) Save(ctx context.Context, terms domain.Terms) error {
	caps := make([]string, len(terms.Capabilities))
	for i, c := range terms.Capabilities {
		caps[i] = string(c)
	}

	const query = `
		INSERT INTO bond (id, isin, name, symbol, decimals, currency, currency_of_coupon,
			denomination, issue_volume, coupon_rate_bps, coupon_type, coupon_frequency,
			issue_date, maturity_date, day_count_basis, issuer, capabilities, issuer_convertible)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			isin = EXCLUDED.isin, name = EXCLUDED.name, symbol = EXCLUDED.symbol,
			decimals = EXCLUDED.decimals, currency = EXCLUDED.currency,
			currency_of_coupon = EXCLUDED.currency_of_coupon,
			denomination = EXCLUDED.denomination, issue_volume = EXCLUDED.issue_volume,
			coupon_rate_bps = EXCLUDED.coupon_rate_bps, coupon_type = EXCLUDED.coupon_type,
			coupon_frequency = EXCLUDED.coupon_frequency, issue_date = EXCLUDED.issue_date,
			maturity_date = EXCLUDED.maturity_date, day_count_basis = EXCLUDED.day_count_basis,
			issuer = EXCLUDED.issuer, capabilities = EXCLUDED.capabilities,
			issuer_convertible = EXCLUDED.issuer_convertible`
	_, err := s.pool.Exec(ctx, query,
		terms.ISIN, terms.Name, terms.Symbol, int16(terms.Decimals), terms.Currency,
		terms.CurrencyOfCoupon, int64(terms.Denomination), int64(terms.IssueVolume),
		int64(terms.CouponRateBps), string(terms.CouponType), terms.CouponFrequency,
		terms.IssueDate, terms.MaturityDate, string(terms.DayCountBasis),
		terms.Issuer.Hex(), caps, terms.IssuerConvertible,
	)
	if err != nil {
		return fmt.Errorf("postgres: save bond %s: %w", terms.ISIN, err)
	}
	return nil
}

// Get returns the bond terms, or domain.ErrNotFound before first issuance.
func (s *BondStore) Get(ctx context.Context) (domain.Terms, error) {
	const query = `
		SELECT isin, name, symbol, decimals, currency, currency_of_coupon,
			denomination, issue_volume, coupon_rate_bps, coupon_type, coupon_frequency,
			issue_date, maturity_date, day_count_basis, issuer, capabilities, issuer_convertible
		FROM bond WHERE id = 1`

	var (
		terms        domain.Terms
		decimals     int16
		denomination int64
		issueVolume  int64
		couponBps    int64
		couponType   string
		basis        string
		issuer       string
		caps         []string
	)
	err := s.pool.QueryRow(ctx, query).Scan(
		&terms.ISIN, &terms.Name, &terms.Symbol, &decimals, &terms.Currency,
		&terms.CurrencyOfCoupon, &denomination, &issueVolume, &couponBps,
		&couponType, &terms.CouponFrequency, &terms.IssueDate, &terms.MaturityDate,
		&basis, &issuer, &caps, &terms.IssuerConvertible,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Terms{}, fmt.Errorf("postgres: get bond: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.Terms{}, fmt.Errorf("postgres: get bond: %w", err)
	}

	terms.Decimals = uint8(decimals)
	terms.Denomination = uint64(denomination)
	terms.IssueVolume = uint64(issueVolume)
	terms.CouponRateBps = uint32(couponBps)
	terms.CouponType = domain.CouponType(couponType)
	terms.DayCountBasis = domain.DayCountBasis(basis)
	terms.Issuer = domain.HexToAccount(issuer)
	terms.Capabilities = make([]domain.Capability, len(caps))
	for i, c := range caps {
		terms.Capabilities[i] = domain.Capability(c)
	}
	return terms, nil
}
