package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

const defaultMaxAttempts = 10

// Bootstrap creates the certificates table and, when configured, the
// certificate bucket. Each step is retried while the endpoint is unavailable.
// If CleanResources is true, deletes the existing table first to ensure clean state
// If CleanResources is false, creates resources only if they don't exist (preserves data)
func Bootstrap(ctx context.Context, cfg Config) (*Resources, error) {
	if cfg.DynamoClient == nil {
		return nil, errors.New("DynamoClient is required")
	}
	if cfg.Environment == "" {
		cfg.Environment = "dev"
	}

	resources := &Resources{}

	table, err := retry(ctx, cfg, "create certificates table", func() (string, error) {
		return CreateCertificatesTable(ctx, cfg.DynamoClient, cfg.Environment, cfg.CleanResources)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DynamoDB table: %w", err)
	}
	resources.CertificatesTable = table

	if cfg.Bucket != nil {
		_, err := retry(ctx, cfg, "ensure certificate bucket", func() (struct{}, error) {
			return struct{}{}, cfg.Bucket.EnsureBucket(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create certificate bucket: %w", err)
		}
		resources.BucketReady = true
	}

	return resources, nil
}

func retry[T any](ctx context.Context, cfg Config, step string, op func() (T, error)) (T, error) {
	b := cfg.BackOff
	if b == nil {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 250 * time.Millisecond
		eb.MaxInterval = 5 * time.Second
		b = eb
	}

	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = defaultMaxAttempts
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Str("step", step).Dur("retry_in", next).Msg("Bootstrap step failed, retrying")
		}),
	)
}
