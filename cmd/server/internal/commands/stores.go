package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/coursecert/internal/store"
	awsstore "github.com/wolfeidau/coursecert/internal/store/aws"
	memorystore "github.com/wolfeidau/coursecert/internal/store/memory"
	postgresstore "github.com/wolfeidau/coursecert/internal/store/postgres"
)

type storeSet struct {
	Certificates store.CertificateStore
	Principals   store.PrincipalStore
	Sessions     store.SessionStore

	close func()
}

func (s *storeSet) Close() {
	if s.close != nil {
		s.close()
	}
}

// createStores creates stores based on store type
func (c *ServerCmd) createStores(ctx context.Context, clients *awsClients) (*storeSet, error) {
	switch c.StoreType {
	case "aws":
		if err := c.AWSStore.Validate(); err != nil {
			return nil, fmt.Errorf("failed to validate aws flags: %w", err)
		}
		dynamoClient, err := clients.DynamoDB(ctx)
		if err != nil {
			return nil, err
		}

		log.Info().Str("table", c.AWSStore.CertificatesTable).Msg("Using DynamoDB certificate store")
		log.Info().Msg("Using in-memory identity stores")

		// AWS mode uses memory stores for identity
		return &storeSet{
			Certificates: awsstore.NewCertificateStore(dynamoClient, c.AWSStore.CertificatesTable),
			Principals:   memorystore.NewPrincipalStore(),
			Sessions:     memorystore.NewSessionStore(),
		}, nil

	case "postgres":
		if err := c.PostgresStore.Validate(); err != nil {
			return nil, fmt.Errorf("failed to validate postgres flags: %w", err)
		}

		// Create shared connection pool for all PostgreSQL stores
		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:       c.PostgresStore.ConnString,
			MaxConns:         c.PostgresStore.MaxConns,
			MinConns:         c.PostgresStore.MinConns,
			MaxConnLifetime:  c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime:  c.PostgresStore.MaxConnIdleTime,
			StatementTimeout: c.PostgresStore.StatementTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}

		if c.PostgresStore.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("Database migrations completed")
		}

		log.Info().Msg("Using PostgreSQL stores with shared connection pool")

		return &storeSet{
			Certificates: postgresstore.NewCertificateStore(pool),
			Principals:   postgresstore.NewPrincipalStore(pool),
			Sessions:     postgresstore.NewSessionStore(pool),
			close:        pool.Close,
		}, nil

	default:
		log.Info().Msg("Using in-memory stores")
		return &storeSet{
			Certificates: memorystore.NewCertificateStore(),
			Principals:   memorystore.NewPrincipalStore(),
			Sessions:     memorystore.NewSessionStore(),
		}, nil
	}
}

// sweepSessions deletes expired sessions every interval until ctx is done.
func sweepSessions(ctx context.Context, sessions store.SessionStore, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.DeleteExpired(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Failed to delete expired sessions")
				continue
			}
			if n > 0 {
				log.Info().Int("count", n).Msg("Deleted expired sessions")
			}
		}
	}
}
