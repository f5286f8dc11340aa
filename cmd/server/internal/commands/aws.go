package commands

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/coursecert/internal/blob"
	"github.com/wolfeidau/coursecert/internal/bootstrap"
)

const localStackRegion = "us-east-1"

// awsClients builds AWS clients from the command flags, loading the shared
// configuration once.
type awsClients struct {
	cmd *ServerCmd
	cfg *aws.Config
}

func newAWSClients(cmd *ServerCmd) *awsClients {
	return &awsClients{cmd: cmd}
}

func (a *awsClients) config(ctx context.Context) (aws.Config, error) {
	if a.cfg != nil {
		return *a.cfg, nil
	}

	var opts []func(*config.LoadOptions) error
	if a.cmd.Development {
		opts = append(opts,
			config.WithRegion(localStackRegion),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "test")),
		)
	} else if a.cmd.AWSStore.Region != "" {
		opts = append(opts, config.WithRegion(a.cmd.AWSStore.Region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	a.cfg = &cfg
	return cfg, nil
}

func (a *awsClients) DynamoDB(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := a.config(ctx)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if a.cmd.AWSStore.DynamoDBEndpointURL != "" {
			o.BaseEndpoint = aws.String(a.cmd.AWSStore.DynamoDBEndpointURL)
		}
	}), nil
}

func (a *awsClients) S3Store(ctx context.Context) (*blob.S3Store, error) {
	cfg, err := a.config(ctx)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if a.cmd.Blob.EndpointURL != "" {
			o.BaseEndpoint = aws.String(a.cmd.Blob.EndpointURL)
		}
		o.UsePathStyle = a.cmd.Blob.PathStyle
	})

	return blob.NewS3Store(client, a.cmd.Blob.Bucket, cfg.Region), nil
}

func (a *awsClients) SSM(ctx context.Context) (*ssm.Client, error) {
	cfg, err := a.config(ctx)
	if err != nil {
		return nil, err
	}

	return ssm.NewFromConfig(cfg, func(o *ssm.Options) {
		if a.cmd.AWSStore.SSMEndpointURL != "" {
			o.BaseEndpoint = aws.String(a.cmd.AWSStore.SSMEndpointURL)
		}
	}), nil
}

// setupDevelopment points every AWS client at LocalStack and creates the
// certificates table and bucket there.
func (c *ServerCmd) setupDevelopment(ctx context.Context, clients *awsClients) error {
	log.Info().Str("endpoint", c.LocalStackURL).Msg("Development mode enabled - setting up LocalStack infrastructure")

	if c.StoreType == "" || c.StoreType == "memory" {
		c.StoreType = "aws"
	}
	if c.Blob.Type == "memory" && !c.Blob.Disabled {
		c.Blob.Type = "s3"
	}

	c.AWSStore.DynamoDBEndpointURL = c.LocalStackURL
	c.AWSStore.SSMEndpointURL = c.LocalStackURL
	c.Blob.EndpointURL = c.LocalStackURL
	c.Blob.PathStyle = true

	dynamoClient, err := clients.DynamoDB(ctx)
	if err != nil {
		return err
	}

	cfg := bootstrap.Config{
		DynamoClient:   dynamoClient,
		Environment:    "dev",
		CleanResources: c.DevelopmentClean,
	}
	if c.Blob.Type == "s3" && !c.Blob.Disabled {
		s3Store, err := clients.S3Store(ctx)
		if err != nil {
			return err
		}
		cfg.Bucket = s3Store
	}

	resources, err := bootstrap.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to bootstrap development infrastructure: %w", err)
	}

	c.AWSStore.CertificatesTable = resources.CertificatesTable

	log.Info().
		Str("certificates_table", resources.CertificatesTable).
		Str("bucket", c.Blob.Bucket).
		Bool("bucket_ready", resources.BucketReady).
		Msg("Development infrastructure ready")

	return nil
}
