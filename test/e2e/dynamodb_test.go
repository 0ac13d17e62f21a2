package e2e

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTable(t *testing.T, e *env) {
	t.Helper()
	_, err := e.DynamoDB.CreateTable(context.Background(), &dynamodb.CreateTableInput{
		TableName: aws.String("items"),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("sk"), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("sk"), AttributeType: types.ScalarAttributeTypeN},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	require.NoError(t, err)
}

func putItem(t *testing.T, e *env, pk, sk, x string) {
	t.Helper()
	item := map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberN{Value: sk},
	}
	if x != "" {
		item["x"] = &types.AttributeValueMemberS{Value: x}
	}
	_, err := e.DynamoDB.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String("items"),
		Item:      item,
	})
	require.NoError(t, err)
}

func TestDynamoDBPutGetRoundTrip(t *testing.T) {
	e := newEnv(t)
	createTable(t, e)
	putItem(t, e, "p1", "1", "a")

	got, err := e.DynamoDB.GetItem(context.Background(), &dynamodb.GetItemInput{
		TableName: aws.String("items"),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: "p1"},
			"sk": &types.AttributeValueMemberN{Value: "1"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, got.Item)
	assert.Equal(t, "a", got.Item["x"].(*types.AttributeValueMemberS).Value)
}

func TestDynamoDBQueryKeyCondition(t *testing.T) {
	e := newEnv(t)
	createTable(t, e)
	putItem(t, e, "p1", "1", "a")
	putItem(t, e, "p1", "2", "b")
	putItem(t, e, "p2", "1", "c")

	out, err := e.DynamoDB.Query(context.Background(), &dynamodb.QueryInput{
		TableName:              aws.String("items"),
		KeyConditionExpression: aws.String("pk = :p AND sk BETWEEN :lo AND :hi"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p":  &types.AttributeValueMemberS{Value: "p1"},
			":lo": &types.AttributeValueMemberN{Value: "1"},
			":hi": &types.AttributeValueMemberN{Value: "3"},
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Items, 2)
	assert.Equal(t, "1", out.Items[0]["sk"].(*types.AttributeValueMemberN).Value)
	assert.Equal(t, "2", out.Items[1]["sk"].(*types.AttributeValueMemberN).Value)
}

func TestDynamoDBUpdateArithmetic(t *testing.T) {
	e := newEnv(t)
	createTable(t, e)

	_, err := e.DynamoDB.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String("items"),
		Item: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: "p"},
			"sk": &types.AttributeValueMemberN{Value: "1"},
			"n":  &types.AttributeValueMemberN{Value: "10"},
		},
	})
	require.NoError(t, err)

	out, err := e.DynamoDB.UpdateItem(context.Background(), &dynamodb.UpdateItemInput{
		TableName: aws.String("items"),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: "p"},
			"sk": &types.AttributeValueMemberN{Value: "1"},
		},
		UpdateExpression: aws.String("SET n = n - :d"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d": &types.AttributeValueMemberN{Value: "3"},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	require.NoError(t, err)
	assert.Equal(t, "7", out.Attributes["n"].(*types.AttributeValueMemberN).Value)
}

func TestDynamoDBScanWithFilter(t *testing.T) {
	e := newEnv(t)
	createTable(t, e)
	putItem(t, e, "p1", "1", "keep")
	putItem(t, e, "p2", "1", "drop")

	out, err := e.DynamoDB.Scan(context.Background(), &dynamodb.ScanInput{
		TableName:        aws.String("items"),
		FilterExpression: aws.String("x = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: "keep"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, out.Items, 1)
	assert.Equal(t, int32(2), out.ScannedCount)
}

func TestDynamoDBDeleteTable(t *testing.T) {
	e := newEnv(t)
	createTable(t, e)

	_, err := e.DynamoDB.DeleteTable(context.Background(), &dynamodb.DeleteTableInput{
		TableName: aws.String("items"),
	})
	require.NoError(t, err)

	_, err = e.DynamoDB.DescribeTable(context.Background(), &dynamodb.DescribeTableInput{
		TableName: aws.String("items"),
	})
	assert.Error(t, err)
}
