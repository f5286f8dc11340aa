package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/coursecert/internal/models"
	"github.com/wolfeidau/coursecert/internal/store"
)

// UserIndexName is the global secondary index keyed on user_id with issued_at as range key.
const UserIndexName = "GSI1"

// timeLayout is fixed width so that issued_at sorts lexically in the index.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// certificateItem is the DynamoDB representation of a certificate.
type certificateItem struct {
	CertID      string  `dynamodbav:"cert_id"`
	UserID      string  `dynamodbav:"user_id"`
	FullName    string  `dynamodbav:"full_name"`
	CourseKey   string  `dynamodbav:"course_key"`
	IssuedAt    string  `dynamodbav:"issued_at"`
	UpdatedAt   string  `dynamodbav:"updated_at"`
	StoragePath *string `dynamodbav:"storage_path,omitempty"`
}

func (i *certificateItem) toModel() (*models.Certificate, error) {
	userID, err := uuid.Parse(i.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user_id %q: %w", i.UserID, err)
	}

	issuedAt, err := time.Parse(timeLayout, i.IssuedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid issued_at %q: %w", i.IssuedAt, err)
	}

	updatedAt, err := time.Parse(timeLayout, i.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid updated_at %q: %w", i.UpdatedAt, err)
	}

	return &models.Certificate{
		CertID:      i.CertID,
		UserID:      userID,
		FullName:    i.FullName,
		CourseKey:   i.CourseKey,
		IssuedAt:    issuedAt,
		UpdatedAt:   updatedAt,
		StoragePath: i.StoragePath,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// CertificateStore is a DynamoDB implementation of store.CertificateStore.
type CertificateStore struct {
	client    *dynamodb.Client
	tableName string
	now       func() time.Time
}

// NewCertificateStore creates a new DynamoDB certificate store.
func NewCertificateStore(client *dynamodb.Client, tableName string) *CertificateStore {
	return &CertificateStore{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

// buildUpsertExpression builds the conditional update used by Upsert.
// Fields not selected by merge only take the certificate's value when the
// item is created.
func buildUpsertExpression(cert *models.Certificate, merge store.Merge, now time.Time) (expression.Expression, error) {
	issuedAt := cert.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = now
	}

	update := expression.Set(
		expression.Name("user_id"), expression.Value(cert.UserID.String()),
	).Set(
		expression.Name("full_name"), mergeValue("full_name", cert.FullName, merge.FullName),
	).Set(
		expression.Name("course_key"), mergeValue("course_key", cert.CourseKey, merge.CourseKey),
	).Set(
		expression.Name("updated_at"), expression.Value(formatTime(now)),
	).Set(
		expression.Name("issued_at"),
		expression.Name("issued_at").IfNotExists(expression.Value(formatTime(issuedAt))),
	)

	if cert.StoragePath != nil {
		update = update.Set(expression.Name("storage_path"), expression.Value(*cert.StoragePath))
	}

	condition := expression.AttributeNotExists(expression.Name("cert_id")).Or(
		expression.Name("user_id").Equal(expression.Value(cert.UserID.String())),
	)

	return expression.NewBuilder().
		WithUpdate(update).
		WithCondition(condition).
		Build()
}

func mergeValue(name, value string, overwrite bool) expression.OperandBuilder {
	if overwrite {
		return expression.Value(value)
	}
	return expression.Name(name).IfNotExists(expression.Value(value))
}

// Upsert inserts or merges certificate metadata keyed on cert_id.
func (s *CertificateStore) Upsert(ctx context.Context, cert *models.Certificate, merge store.Merge) (*models.Certificate, error) {
	expr, err := buildUpsertExpression(cert, merge, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       certificateKey(cert.CertID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, store.ErrCertificateOwnerMismatch
		}
		return nil, wrapAWSError(err, "failed to upsert certificate")
	}

	stored, err := unmarshalCertificate(result.Attributes)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("cert_id", stored.CertID).
		Str("user_id", stored.UserID.String()).
		Bool("has_artifact", stored.HasArtifact()).
		Msg("certificate upserted")

	return stored, nil
}

// Get retrieves a certificate by ID.
func (s *CertificateStore) Get(ctx context.Context, certID string) (*models.Certificate, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            certificateKey(certID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, wrapAWSError(err, "failed to get certificate")
	}

	if result.Item == nil {
		return nil, store.ErrCertificateNotFound
	}

	return unmarshalCertificate(result.Item)
}

// ListByUser queries the user index newest first.
func (s *CertificateStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Certificate, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	keyCond := expression.Key("user_id").Equal(expression.Value(userID.String()))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build key condition: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(UserIndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(int32(limit)), //nolint:gosec // bounded by DefaultListLimit or caller
	})

	certs := make([]*models.Certificate, 0)
	for paginator.HasMorePages() && len(certs) < limit {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapAWSError(err, "failed to list certificates")
		}

		for _, item := range page.Items {
			cert, err := unmarshalCertificate(item)
			if err != nil {
				return nil, err
			}
			certs = append(certs, cert)
			if len(certs) == limit {
				break
			}
		}
	}

	return certs, nil
}

func certificateKey(certID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"cert_id": &types.AttributeValueMemberS{Value: certID},
	}
}

func unmarshalCertificate(av map[string]types.AttributeValue) (*models.Certificate, error) {
	var item certificateItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal certificate: %w", err)
	}
	return item.toModel()
}
