package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v5"
	awsstore "github.com/wolfeidau/coursecert/internal/store/aws"
)

const tableWaitTimeout = 30 * time.Second

// CertificatesTableName returns the table name used for env.
func CertificatesTableName(env string) string {
	return fmt.Sprintf("%s_certificates", env)
}

// CreateCertificatesTable creates the certificates table and its user index.
// If cleanResources is false an existing table is reused.
func CreateCertificatesTable(ctx context.Context, client TableAPI, env string, cleanResources bool) (string, error) {
	tableName := CertificatesTableName(env)

	if cleanResources {
		if err := deleteTableIfExists(ctx, client, tableName); err != nil {
			return "", err
		}
	}

	_, err := client.CreateTable(ctx, certificatesTableInput(tableName))
	if err != nil {
		var resourceInUse *types.ResourceInUseException
		if errors.As(err, &resourceInUse) {
			if cleanResources {
				return "", backoff.Permanent(err)
			}
			return tableName, nil // Table exists, reuse it
		}
		return "", err
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}, tableWaitTimeout); err != nil {
		return "", err
	}

	return tableName, nil
}

// certificatesTableInput describes the table read and written by
// awsstore.CertificateStore: cert_id hash key, and a user_id/issued_at index
// for listing a user's certificates.
func certificatesTableInput(tableName string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("cert_id"), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("cert_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("user_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("issued_at"), AttributeType: types.ScalarAttributeTypeS},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(awsstore.UserIndexName),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("user_id"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("issued_at"), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	}
}

// deleteTableIfExists attempts to delete a table if it exists
func deleteTableIfExists(ctx context.Context, client TableAPI, tableName string) error {
	_, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		var resourceNotFound *types.ResourceNotFoundException
		if errors.As(err, &resourceNotFound) {
			return nil
		}
		return err
	}

	waiter := dynamodb.NewTableNotExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	}, tableWaitTimeout)
}
