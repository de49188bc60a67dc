package recordstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	apperrors "license-verification/internal/common/errors"
	"license-verification/internal/models"
)

// DynamoDBAPI is the part of the DynamoDB client used here.
type DynamoDBAPI interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoStore keeps one item per application keyed by APP_UUID.
type DynamoStore struct {
	client DynamoDBAPI
	table  string
}

func NewDynamoStore(client DynamoDBAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

func (d *DynamoStore) key(applicationID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		models.FieldApplicationID: &types.AttributeValueMemberS{Value: applicationID},
	}
}

// update issues a single UpdateItem with one SET clause per attribute.
// Attributes are given in a fixed order so expressions are stable.
func (d *DynamoStore) update(ctx context.Context, applicationID string, names []string, values []types.AttributeValue) error {
	clauses := make([]string, len(names))
	exprNames := make(map[string]string, len(names))
	exprValues := make(map[string]types.AttributeValue, len(names))
	for i, name := range names {
		n, v := fmt.Sprintf("#f%d", i), fmt.Sprintf(":v%d", i)
		clauses[i] = n + " = " + v
		exprNames[n] = name
		exprValues[v] = values[i]
	}

	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.table),
		Key:                       d.key(applicationID),
		UpdateExpression:          aws.String("SET " + strings.Join(clauses, ", ")),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
	})
	if err != nil {
		return apperrors.NewRecordUpdateFailedError(strings.Join(names, ","), err)
	}
	return nil
}

func (d *DynamoStore) UpsertClaim(ctx context.Context, applicationID string, claim models.ClaimFields) error {
	restricted := claim.Restrict()
	var names []string
	var values []types.AttributeValue
	for _, name := range models.ClaimFieldNames {
		if v, ok := restricted[name]; ok {
			names = append(names, name)
			values = append(values, &types.AttributeValueMemberS{Value: v})
		}
	}
	if len(names) == 0 {
		return apperrors.NewClaimParseFailedError("claim has no schema fields")
	}
	return d.update(ctx, applicationID, names, values)
}

func (d *DynamoStore) SetVerdict(ctx context.Context, applicationID, field string, verdict bool) error {
	if err := checkVerdictField(field); err != nil {
		return err
	}
	return d.update(ctx, applicationID,
		[]string{field},
		[]types.AttributeValue{&types.AttributeValueMemberBOOL{Value: verdict}})
}

func (d *DynamoStore) MarkAborted(ctx context.Context, applicationID, stage, reason string) error {
	return d.update(ctx, applicationID,
		[]string{models.FieldAbortedStage, models.FieldAbortReason},
		[]types.AttributeValue{
			&types.AttributeValueMemberS{Value: stage},
			&types.AttributeValueMemberS{Value: reason},
		})
}

// ClearAbort is conditional on the stored stage, so a missing item or a
// marker left by another stage is not an error.
func (d *DynamoStore) ClearAbort(ctx context.Context, applicationID, stage string) error {
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(d.table),
		Key:                 d.key(applicationID),
		UpdateExpression:    aws.String("REMOVE #s, #r"),
		ConditionExpression: aws.String("#s = :stage"),
		ExpressionAttributeNames: map[string]string{
			"#s": models.FieldAbortedStage,
			"#r": models.FieldAbortReason,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":stage": &types.AttributeValueMemberS{Value: stage},
		},
	})
	var condErr *types.ConditionalCheckFailedException
	if stderrors.As(err, &condErr) {
		return nil
	}
	if err != nil {
		return apperrors.NewRecordUpdateFailedError(models.FieldAbortedStage, err)
	}
	return nil
}

func (d *DynamoStore) Get(ctx context.Context, applicationID string) (*models.Record, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            d.key(applicationID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, apperrors.NewRecordUpdateFailedError("get", err)
	}
	if len(out.Item) == 0 {
		return nil, apperrors.NewRecordNotFoundError(applicationID)
	}
	return recordFromItem(applicationID, out.Item), nil
}

func recordFromItem(applicationID string, item map[string]types.AttributeValue) *models.Record {
	r := &models.Record{ApplicationID: applicationID}
	for name, av := range item {
		switch v := av.(type) {
		case *types.AttributeValueMemberS:
			switch {
			case models.IsClaimField(name):
				if r.Claim == nil {
					r.Claim = models.ClaimFields{}
				}
				r.Claim[name] = v.Value
			case name == models.FieldAbortedStage:
				r.AbortedStage = v.Value
			case name == models.FieldAbortReason:
				r.AbortReason = v.Value
			}
		case *types.AttributeValueMemberBOOL:
			r.SetVerdict(name, v.Value)
		}
	}
	return r
}
