package repository

import (
	"context"
	"fmt"

	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const (
	batchGetLimit       = 100
	maxUnprocessedTries = 3
)

// ProductDetailsRepository reads catalog display fields that are not part of
// the order record.
type ProductDetailsRepository interface {
	FetchDetails(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ProductDetails, error)
}

// BatchGetter is the subset of the DynamoDB client used here.
type BatchGetter interface {
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
}

// DynamoProductDetailsRepository reads the product table owned by product-service.
// Items are keyed by `product_id` (string).
type DynamoProductDetailsRepository struct {
	client BatchGetter
	table  string
}

func NewDynamoProductDetailsRepository(client BatchGetter, table string) *DynamoProductDetailsRepository {
	return &DynamoProductDetailsRepository{client: client, table: table}
}

type ddbProductDetails struct {
	ProductID    string   `dynamodbav:"product_id"`
	Description  *string  `dynamodbav:"description,omitempty"`
	Images       []string `dynamodbav:"images,omitempty"`
	CategoryPath []string `dynamodbav:"category_path,omitempty"`
	FarmName     *string  `dynamodbav:"farm_name,omitempty"`
}

// FetchDetails returns whatever it could read. On error the map still holds
// the items fetched before the failure.
func (d *DynamoProductDetailsRepository) FetchDetails(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ProductDetails, error) {
	out := make(map[uuid.UUID]models.ProductDetails, len(ids))

	for start := 0; start < len(ids); start += batchGetLimit {
		end := start + batchGetLimit
		if end > len(ids) {
			end = len(ids)
		}

		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range ids[start:end] {
			key, err := attributevalue.MarshalMap(map[string]string{"product_id": id.String()})
			if err != nil {
				return out, fmt.Errorf("marshal key: %w", err)
			}
			keys = append(keys, key)
		}

		if err := d.fetchChunk(ctx, keys, out); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (d *DynamoProductDetailsRepository) fetchChunk(ctx context.Context, keys []map[string]types.AttributeValue, out map[uuid.UUID]models.ProductDetails) error {
	request := map[string]types.KeysAndAttributes{
		d.table: {
			Keys:                 keys,
			ProjectionExpression: aws.String("#pid, #desc, #img, #cat, #farm"),
			ExpressionAttributeNames: map[string]string{
				"#pid":  "product_id",
				"#desc": "description",
				"#img":  "images",
				"#cat":  "category_path",
				"#farm": "farm_name",
			},
		},
	}

	for attempt := 0; len(request) > 0; attempt++ {
		if attempt >= maxUnprocessedTries {
			return fmt.Errorf("dynamodb BatchGetItem left %d keys unprocessed", len(request[d.table].Keys))
		}

		resp, err := d.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
		if err != nil {
			return fmt.Errorf("dynamodb BatchGetItem failed: %w", err)
		}

		for _, item := range resp.Responses[d.table] {
			var dp ddbProductDetails
			if err := attributevalue.UnmarshalMap(item, &dp); err != nil {
				return fmt.Errorf("unmarshal item: %w", err)
			}
			id, err := uuid.Parse(dp.ProductID)
			if err != nil {
				continue
			}
			details := models.ProductDetails{
				ProductID:    id,
				Images:       dp.Images,
				CategoryPath: dp.CategoryPath,
			}
			if dp.Description != nil {
				details.Description = *dp.Description
			}
			if dp.FarmName != nil {
				details.FarmName = *dp.FarmName
			}
			out[id] = details
		}

		request = resp.UnprocessedKeys
	}
	return nil
}
