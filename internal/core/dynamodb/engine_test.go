package dynamodb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine("000000000000", "us-east-1")
	_, err := e.CreateTable(&CreateTableInput{
		TableName: "t",
		KeySchema: []KeySchemaElement{
			{AttributeName: "pk", KeyType: "HASH"},
			{AttributeName: "sk", KeyType: "RANGE"},
		},
		AttributeDefinitions: []AttributeDefinition{
			{AttributeName: "pk", AttributeType: "S"},
			{AttributeName: "sk", AttributeType: "N"},
		},
	})
	require.NoError(t, err)
	return e
}

func put(t *testing.T, e *Engine, target Item) {
	t.Helper()
	_, err := e.PutItem(&PutItemInput{TableName: "t", Item: target})
	require.NoError(t, err)
}

func TestCreateTableValidation(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.CreateTable(&CreateTableInput{TableName: "t",
		KeySchema: []KeySchemaElement{{AttributeName: "pk", KeyType: "HASH"}}})
	assert.Error(t, err, "duplicate table")

	_, err = e.CreateTable(&CreateTableInput{TableName: "nohash",
		KeySchema: []KeySchemaElement{{AttributeName: "sk", KeyType: "RANGE"}}})
	assert.Error(t, err, "missing hash key")
}

func TestPutGetRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	target := item("pk", s("p1"), "sk", n("1"), "x", s("a"))
	put(t, e, target)

	out, err := e.GetItem(&GetItemInput{TableName: "t", Key: item("pk", s("p1"), "sk", n("1"))})
	require.NoError(t, err)
	assert.Equal(t, target, out.Item)
}

func TestPutRequiresKeyAttributes(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.PutItem(&PutItemInput{TableName: "t", Item: item("pk", s("p1"))})
	assert.Error(t, err)
}

func TestPrimaryKeyIsIdentifying(t *testing.T) {
	e := newTestEngine(t)
	put(t, e, item("pk", s("p1"), "sk", n("1"), "v", s("first")))
	put(t, e, item("pk", s("p1"), "sk", n("1"), "v", s("second")))

	scan, err := e.Scan(&ScanInput{TableName: "t"})
	require.NoError(t, err)
	require.Len(t, scan.Items, 1)
	assert.Equal(t, s("second"), scan.Items[0]["v"])
}

func TestPutReturnsOldValues(t *testing.T) {
	e := newTestEngine(t)
	put(t, e, item("pk", s("p1"), "sk", n("1"), "v", s("old")))

	out, err := e.PutItem(&PutItemInput{
		TableName:    "t",
		Item:         item("pk", s("p1"), "sk", n("1"), "v", s("new")),
		ReturnValues: "ALL_OLD",
	})
	require.NoError(t, err)
	assert.Equal(t, s("old"), out.Attributes["v"])
}

func TestDeleteItem(t *testing.T) {
	e := newTestEngine(t)
	put(t, e, item("pk", s("p1"), "sk", n("1"), "v", s("x")))

	out, err := e.DeleteItem(&DeleteItemInput{
		TableName:    "t",
		Key:          item("pk", s("p1"), "sk", n("1")),
		ReturnValues: "ALL_OLD",
	})
	require.NoError(t, err)
	assert.Equal(t, s("x"), out.Attributes["v"])

	got, err := e.GetItem(&GetItemInput{TableName: "t", Key: item("pk", s("p1"), "sk", n("1"))})
	require.NoError(t, err)
	assert.Nil(t, got.Item)
}

func TestUpdateItemSynthesizesMissing(t *testing.T) {
	e := newTestEngine(t)

	out, err := e.UpdateItem(&UpdateItemInput{
		TableName:                 "t",
		Key:                       item("pk", s("p1"), "sk", n("1")),
		UpdateExpression:          "SET v = :v",
		ExpressionAttributeValues: map[string]AttributeValue{":v": s("fresh")},
		ReturnValues:              "ALL_NEW",
	})
	require.NoError(t, err)
	assert.Equal(t, s("fresh"), out.Attributes["v"])
	assert.Equal(t, s("p1"), out.Attributes["pk"])
}

func TestUpdateItemArithmetic(t *testing.T) {
	e := newTestEngine(t)
	put(t, e, item("pk", s("p"), "sk", n("1"), "n", n("10")))

	out, err := e.UpdateItem(&UpdateItemInput{
		TableName:                 "t",
		Key:                       item("pk", s("p"), "sk", n("1")),
		UpdateExpression:          "SET n = n - :d",
		ExpressionAttributeValues: map[string]AttributeValue{":d": n("3")},
		ReturnValues:              "ALL_NEW",
	})
	require.NoError(t, err)
	assert.Equal(t, n("7"), out.Attributes["n"])
}

func TestUpdateItemReturnValues(t *testing.T) {
	e := newTestEngine(t)
	put(t, e, item("pk", s("p"), "sk", n("1"), "v", s("before")))

	out, err := e.UpdateItem(&UpdateItemInput{
		TableName:                 "t",
		Key:                       item("pk", s("p"), "sk", n("1")),
		UpdateExpression:          "SET v = :v",
		ExpressionAttributeValues: map[string]AttributeValue{":v": s("after")},
		ReturnValues:              "ALL_OLD",
	})
	require.NoError(t, err)
	assert.Equal(t, s("before"), out.Attributes["v"])
}

func TestQueryKeyConditionScenario(t *testing.T) {
	e := newTestEngine(t)
	put(t, e, item("pk", s("p1"), "sk", n("1"), "x", s("a")))
	put(t, e, item("pk", s("p1"), "sk", n("2"), "x", s("b")))
	put(t, e, item("pk", s("p2"), "sk", n("1"), "x", s("c")))

	out, err := e.Query(&QueryInput{
		TableName:              "t",
		KeyConditionExpression: "pk = :p AND sk BETWEEN :lo AND :hi",
		ExpressionAttributeValues: map[string]AttributeValue{
			":p": s("p1"), ":lo": n("1"), ":hi": n("3"),
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Items, 2)
	assert.Equal(t, n("1"), out.Items[0]["sk"])
	assert.Equal(t, n("2"), out.Items[1]["sk"])
	assert.Equal(t, int64(2), out.ScannedCount)
}

func TestQuerySortDirection(t *testing.T) {
	e := newTestEngine(t)
	put(t, e, item("pk", s("p"), "sk", n("2")))
	put(t, e, item("pk", s("p"), "sk", n("10")))
	put(t, e, item("pk", s("p"), "sk", n("1")))

	forward := true
	out, err := e.Query(&QueryInput{
		TableName:                 "t",
		KeyConditionExpression:    "pk = :p",
		ExpressionAttributeValues: map[string]AttributeValue{":p": s("p")},
		ScanIndexForward:          &forward,
	})
	require.NoError(t, err)
	require.Len(t, out.Items, 3)
	// Numeric sort, not lexicographic.
	assert.Equal(t, n("1"), out.Items[0]["sk"])
	assert.Equal(t, n("10"), out.Items[2]["sk"])

	backward := false
	out, err = e.Query(&QueryInput{
		TableName:                 "t",
		KeyConditionExpression:    "pk = :p",
		ExpressionAttributeValues: map[string]AttributeValue{":p": s("p")},
		ScanIndexForward:          &backward,
	})
	require.NoError(t, err)
	assert.Equal(t, n("10"), out.Items[0]["sk"])
}

func TestQueryFilterCountsScannedBeforeFilter(t *testing.T) {
	e := newTestEngine(t)
	put(t, e, item("pk", s("p"), "sk", n("1"), "flag", s("keep")))
	put(t, e, item("pk", s("p"), "sk", n("2"), "flag", s("drop")))

	out, err := e.Query(&QueryInput{
		TableName:              "t",
		KeyConditionExpression: "pk = :p",
		FilterExpression:       "flag = :f",
		ExpressionAttributeValues: map[string]AttributeValue{
			":p": s("p"), ":f": s("keep"),
		},
	})
	require.NoError(t, err)
	assert.Len(t, out.Items, 1)
	assert.Equal(t, int64(1), out.Count)
	assert.Equal(t, int64(2), out.ScannedCount)
}

func TestQueryPagination(t *testing.T) {
	e := newTestEngine(t)
	for i := 1; i <= 5; i++ {
		put(t, e, item("pk", s("p"), "sk", n(string(rune('0'+i)))))
	}

	limit := int32(2)
	first, err := e.Query(&QueryInput{
		TableName:                 "t",
		KeyConditionExpression:    "pk = :p",
		ExpressionAttributeValues: map[string]AttributeValue{":p": s("p")},
		Limit:                     &limit,
	})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotNil(t, first.LastEvaluatedKey)
	assert.Equal(t, n("2"), first.LastEvaluatedKey["sk"])

	second, err := e.Query(&QueryInput{
		TableName:                 "t",
		KeyConditionExpression:    "pk = :p",
		ExpressionAttributeValues: map[string]AttributeValue{":p": s("p")},
		ExclusiveStartKey:         first.LastEvaluatedKey,
	})
	require.NoError(t, err)
	require.Len(t, second.Items, 3)
	assert.Nil(t, second.LastEvaluatedKey)
	assert.Equal(t, n("3"), second.Items[0]["sk"])
}

func TestQuerySelectCount(t *testing.T) {
	e := newTestEngine(t)
	put(t, e, item("pk", s("p"), "sk", n("1")))
	put(t, e, item("pk", s("p"), "sk", n("2")))

	out, err := e.Query(&QueryInput{
		TableName:                 "t",
		KeyConditionExpression:    "pk = :p",
		ExpressionAttributeValues: map[string]AttributeValue{":p": s("p")},
		Select:                    "COUNT",
	})
	require.NoError(t, err)
	assert.Empty(t, out.Items)
	assert.Equal(t, int64(2), out.Count)
}

func TestQueryRequiresKeyCondition(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Query(&QueryInput{TableName: "t"})
	assert.Error(t, err)
}

func TestScan(t *testing.T) {
	e := newTestEngine(t)
	put(t, e, item("pk", s("a"), "sk", n("1"), "flag", s("keep")))
	put(t, e, item("pk", s("b"), "sk", n("1"), "flag", s("drop")))

	out, err := e.Scan(&ScanInput{
		TableName:                 "t",
		FilterExpression:          "flag = :f",
		ExpressionAttributeValues: map[string]AttributeValue{":f": s("keep")},
	})
	require.NoError(t, err)
	assert.Len(t, out.Items, 1)
	assert.Equal(t, int64(2), out.ScannedCount)
}

func TestProjectionExpression(t *testing.T) {
	e := newTestEngine(t)
	put(t, e, item("pk", s("p"), "sk", n("1"), "a", s("1"), "b", s("2")))

	out, err := e.GetItem(&GetItemInput{
		TableName:            "t",
		Key:                  item("pk", s("p"), "sk", n("1")),
		ProjectionExpression: "a, missing",
	})
	require.NoError(t, err)
	assert.Len(t, out.Item, 1)
	assert.Contains(t, out.Item, "a")
}

func TestBatchGetItem(t *testing.T) {
	e := newTestEngine(t)
	put(t, e, item("pk", s("p"), "sk", n("1"), "v", s("x")))
	put(t, e, item("pk", s("p"), "sk", n("2"), "v", s("y")))

	out, err := e.BatchGetItem(&BatchGetItemInput{RequestItems: map[string]KeysAndAttributes{
		"t": {Keys: []Item{
			item("pk", s("p"), "sk", n("1")),
			item("pk", s("p"), "sk", n("9")),
		}},
	}})
	require.NoError(t, err)
	require.Len(t, out.Responses["t"], 1)
	assert.Equal(t, s("x"), out.Responses["t"][0]["v"])
}

func TestBatchWriteItem(t *testing.T) {
	e := newTestEngine(t)
	put(t, e, item("pk", s("p"), "sk", n("1")))

	_, err := e.BatchWriteItem(&BatchWriteItemInput{RequestItems: map[string][]WriteRequest{
		"t": {
			{PutRequest: &PutRequest{Item: item("pk", s("p"), "sk", n("2"))}},
			{DeleteRequest: &DeleteRequest{Key: item("pk", s("p"), "sk", n("1"))}},
		},
	}})
	require.NoError(t, err)

	scan, err := e.Scan(&ScanInput{TableName: "t"})
	require.NoError(t, err)
	require.Len(t, scan.Items, 1)
	assert.Equal(t, n("2"), scan.Items[0]["sk"])
}

func TestListTables(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreateTable(&CreateTableInput{TableName: "a",
		KeySchema: []KeySchemaElement{{AttributeName: "pk", KeyType: "HASH"}}})
	require.NoError(t, err)

	out, err := e.ListTables(&ListTablesInput{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "t"}, out.TableNames)

	limit := int32(1)
	page, err := e.ListTables(&ListTablesInput{Limit: &limit})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, page.TableNames)
	assert.Equal(t, "a", page.LastEvaluatedTableName)
}

func TestTableTags(t *testing.T) {
	e := newTestEngine(t)
	tableARN := "arn:aws:dynamodb:us-east-1:000000000000:table/t"

	require.NoError(t, e.TagResource(&TagResourceInput{
		ResourceArn: tableARN,
		Tags:        []Tag{{Key: "team", Value: "data"}},
	}))

	out, err := e.ListTagsOfResource(&ListTagsOfResourceInput{ResourceArn: tableARN})
	require.NoError(t, err)
	require.Len(t, out.Tags, 1)
	assert.Equal(t, "team", out.Tags[0].Key)

	require.NoError(t, e.UntagResource(&UntagResourceInput{ResourceArn: tableARN, TagKeys: []string{"team"}}))
	out, err = e.ListTagsOfResource(&ListTagsOfResourceInput{ResourceArn: tableARN})
	require.NoError(t, err)
	assert.Empty(t, out.Tags)
}
