package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/repository"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedBatchGetter struct {
	responses []*dynamodb.BatchGetItemOutput
	err       error
	calls     []*dynamodb.BatchGetItemInput
}

func (s *scriptedBatchGetter) BatchGetItem(_ context.Context, params *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	s.calls = append(s.calls, params)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return &dynamodb.BatchGetItemOutput{}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func detailsItem(id uuid.UUID, farm string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"product_id":    &types.AttributeValueMemberS{Value: id.String()},
		"farm_name":     &types.AttributeValueMemberS{Value: farm},
		"images":        &types.AttributeValueMemberL{Value: []types.AttributeValue{&types.AttributeValueMemberS{Value: "https://cdn.example.com/" + id.String() + ".jpg"}}},
		"category_path": &types.AttributeValueMemberL{Value: []types.AttributeValue{&types.AttributeValueMemberS{Value: "vegetables"}}},
	}
}

func TestFetchDetails_RetriesUnprocessedKeys(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	table := "products"
	leftover := map[string]types.KeysAndAttributes{
		table: {Keys: []map[string]types.AttributeValue{{"product_id": &types.AttributeValueMemberS{Value: b.String()}}}},
	}
	client := &scriptedBatchGetter{responses: []*dynamodb.BatchGetItemOutput{
		{Responses: map[string][]map[string]types.AttributeValue{table: {detailsItem(a, "Green Acres")}}, UnprocessedKeys: leftover},
		{Responses: map[string][]map[string]types.AttributeValue{table: {detailsItem(b, "Sunrise Farm")}}},
	}}

	repo := repository.NewDynamoProductDetailsRepository(client, table)
	details, err := repo.FetchDetails(context.Background(), []uuid.UUID{a, b})
	require.NoError(t, err)

	require.Len(t, details, 2)
	assert.Equal(t, "Green Acres", details[a].FarmName)
	assert.Equal(t, "Sunrise Farm", details[b].FarmName)
	assert.Equal(t, []string{"vegetables"}, details[a].CategoryPath)
	require.Len(t, client.calls, 2)
	assert.Len(t, client.calls[0].RequestItems[table].Keys, 2)
	assert.NotNil(t, client.calls[0].RequestItems[table].ProjectionExpression)
}

func TestFetchDetails_GivesUpAfterRepeatedUnprocessedKeys(t *testing.T) {
	id := uuid.New()
	table := "products"
	stuck := &dynamodb.BatchGetItemOutput{UnprocessedKeys: map[string]types.KeysAndAttributes{
		table: {Keys: []map[string]types.AttributeValue{{"product_id": &types.AttributeValueMemberS{Value: id.String()}}}},
	}}
	client := &scriptedBatchGetter{responses: []*dynamodb.BatchGetItemOutput{stuck, stuck, stuck}}

	_, err := repository.NewDynamoProductDetailsRepository(client, table).FetchDetails(context.Background(), []uuid.UUID{id})
	assert.Error(t, err)
	assert.Len(t, client.calls, 3)
}

func TestFetchDetails_ChunksLargeRequests(t *testing.T) {
	ids := make([]uuid.UUID, 150)
	for i := range ids {
		ids[i] = uuid.New()
	}
	client := &scriptedBatchGetter{}

	_, err := repository.NewDynamoProductDetailsRepository(client, "products").FetchDetails(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, client.calls, 2)
	assert.Len(t, client.calls[0].RequestItems["products"].Keys, 100)
	assert.Len(t, client.calls[1].RequestItems["products"].Keys, 50)
}

func TestFetchDetails_ClientError(t *testing.T) {
	client := &scriptedBatchGetter{err: errors.New("throttled")}
	details, err := repository.NewDynamoProductDetailsRepository(client, "products").FetchDetails(context.Background(), []uuid.UUID{uuid.New()})
	assert.Error(t, err)
	assert.Empty(t, details)
}
