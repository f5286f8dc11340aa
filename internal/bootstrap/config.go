package bootstrap

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/cenkalti/backoff/v5"
)

// TableAPI is the subset of the DynamoDB client used to manage tables.
type TableAPI interface {
	dynamodb.DescribeTableAPIClient
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
}

// Bucket creates the certificate bucket, see blob.S3Store.
type Bucket interface {
	EnsureBucket(ctx context.Context) error
}

// Config holds configuration for bootstrapping LocalStack infrastructure
type Config struct {
	DynamoClient TableAPI
	Bucket       Bucket // optional

	// Resource naming
	Environment string // e.g., "dev", "test" - used as prefix for resource names

	// CleanResources controls whether to delete existing resources before creating
	// Set to false to preserve data across restarts (useful for development with live reload)
	CleanResources bool

	// Retry policy for each step while LocalStack starts up. Nil selects an
	// exponential backoff.
	BackOff     backoff.BackOff
	MaxAttempts uint // 0 selects 10
}

// Resources holds identifiers for created infrastructure resources
type Resources struct {
	CertificatesTable string
	BucketReady       bool
}
