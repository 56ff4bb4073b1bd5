package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// PrincipalCache implements domain.PrincipalCache using plain Redis strings.
// Each account's principal lives at key "principal:{account}". The cache is
// invalidation-based: the ledger sink refreshes it after every commit, and a
// miss falls through to the in-memory ledger.
type PrincipalCache struct {
	rdb *redis.Client
}

// NewPrincipalCache creates a PrincipalCache backed by the given Client.
func NewPrincipalCache(c *Client) *PrincipalCache {
	return &PrincipalCache{rdb: c.Underlying()}
}

func principalKey(account domain.Account) string {
	return "principal:" + account.Hex()
}

// Set stores an account's current principal.
func (pc *PrincipalCache) Set(ctx context.Context, account domain.Account, amount uint64) error {
	if err := pc.rdb.Set(ctx, principalKey(account), strconv.FormatUint(amount, 10), 0).Err(); err != nil {
		return fmt.Errorf("redis: set principal %s: %w", account, err)
	}
	return nil
}

// Get retrieves an account's cached principal. It returns domain.ErrNotFound
// on a cache miss.
func (pc *PrincipalCache) Get(ctx context.Context, account domain.Account) (uint64, error) {
	val, err := pc.rdb.Get(ctx, principalKey(account)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redis: get principal %s: %w", account, err)
	}

	amount, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse principal %s: %w", account, err)
	}
	return amount, nil
}

// Invalidate drops an account's cached principal.
func (pc *PrincipalCache) Invalidate(ctx context.Context, account domain.Account) error {
	if err := pc.rdb.Del(ctx, principalKey(account)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate principal %s: %w", account, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PrincipalCache = (*PrincipalCache)(nil)
