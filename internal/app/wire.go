package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/bondledgerd/internal/blob/s3"
	"github.com/alanyoungcy/bondledgerd/internal/cache/redis"
	"github.com/alanyoungcy/bondledgerd/internal/config"
	"github.com/alanyoungcy/bondledgerd/internal/domain"
	"github.com/alanyoungcy/bondledgerd/internal/notify"
	"github.com/alanyoungcy/bondledgerd/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	Bonds       domain.BondStore
	Holdings    domain.HoldingStore
	Allowances  domain.AllowanceStore
	Journal     domain.EventJournal
	Settlements domain.SettlementStore

	// Redis
	Bus         domain.EventBus
	Cache       domain.PrincipalCache
	Locks       domain.LockManager
	RateLimiter domain.RateLimiter

	// Blob storage
	BlobWriter  domain.BlobWriter
	BlobReader  domain.BlobReader
	BlobDeleter domain.BlobDeleter
	Archiver    *s3blob.Archiver
	Segments    *s3blob.SegmentReader

	// Notifications
	Notifier *notify.Notifier
}

// needsRedis returns true for modes that run the serve loop and therefore need
// the event bus, the principal cache, and the writer lock.
func needsRedis(mode string) bool {
	switch mode {
	case "serve", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that touch the event archive.
func needsS3(mode string) bool {
	switch mode {
	case "archive", "replay", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (every mode journals or reads the journal) ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Bonds = postgres.NewBondStore(pool)
	deps.Holdings = postgres.NewHoldingStore(pool)
	deps.Allowances = postgres.NewAllowanceStore(pool)
	deps.Journal = postgres.NewEventStore(pool)
	deps.Settlements = postgres.NewSettlementStore(pool)

	// --- Redis (serve loop only) ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Bus = redis.NewEventBus(redisClient)
		deps.Cache = redis.NewPrincipalCache(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- S3 blob storage (archive and replay paths) ---
	if needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.BlobDeleter = reader // same type implements BlobDeleter
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Journal)
		deps.Segments = s3blob.NewSegmentReader(reader)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, slog.Default())

	return deps, cleanup, nil
}
