package dynamodb

// Wire types for the table service's JSON protocol.

type KeySchemaElement struct {
	AttributeName string `json:"AttributeName"`
	KeyType       string `json:"KeyType"`
}

type AttributeDefinition struct {
	AttributeName string `json:"AttributeName"`
	AttributeType string `json:"AttributeType"`
}

type ProvisionedThroughput struct {
	ReadCapacityUnits  int64 `json:"ReadCapacityUnits"`
	WriteCapacityUnits int64 `json:"WriteCapacityUnits"`
}

type ProvisionedThroughputDescription struct {
	ReadCapacityUnits      int64    `json:"ReadCapacityUnits"`
	WriteCapacityUnits     int64    `json:"WriteCapacityUnits"`
	LastIncreaseDateTime   *float64 `json:"LastIncreaseDateTime,omitempty"`
	LastDecreaseDateTime   *float64 `json:"LastDecreaseDateTime,omitempty"`
	NumberOfDecreasesToday int64    `json:"NumberOfDecreasesToday"`
}

type Tag struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

type TableDescription struct {
	TableName             string                           `json:"TableName"`
	TableArn              string                           `json:"TableArn"`
	TableId               string                           `json:"TableId"`
	KeySchema             []KeySchemaElement               `json:"KeySchema"`
	AttributeDefinitions  []AttributeDefinition            `json:"AttributeDefinitions"`
	BillingModeSummary    *BillingModeSummary              `json:"BillingModeSummary,omitempty"`
	ProvisionedThroughput ProvisionedThroughputDescription `json:"ProvisionedThroughput"`
	CreationDateTime      float64                          `json:"CreationDateTime"`
	TableStatus           string                           `json:"TableStatus"`
	ItemCount             int64                            `json:"ItemCount"`
	TableSizeBytes        int64                            `json:"TableSizeBytes"`
}

type BillingModeSummary struct {
	BillingMode string `json:"BillingMode"`
}

type CreateTableInput struct {
	TableName             string                 `json:"TableName"`
	KeySchema             []KeySchemaElement     `json:"KeySchema"`
	AttributeDefinitions  []AttributeDefinition  `json:"AttributeDefinitions"`
	BillingMode           string                 `json:"BillingMode,omitempty"`
	ProvisionedThroughput *ProvisionedThroughput `json:"ProvisionedThroughput,omitempty"`
	Tags                  []Tag                  `json:"Tags,omitempty"`
}

type CreateTableOutput struct {
	TableDescription TableDescription `json:"TableDescription"`
}

type DeleteTableInput struct {
	TableName string `json:"TableName"`
}

type DeleteTableOutput struct {
	TableDescription TableDescription `json:"TableDescription"`
}

type DescribeTableInput struct {
	TableName string `json:"TableName"`
}

type DescribeTableOutput struct {
	Table TableDescription `json:"Table"`
}

type ListTablesInput struct {
	ExclusiveStartTableName string `json:"ExclusiveStartTableName,omitempty"`
	Limit                   *int32 `json:"Limit,omitempty"`
}

type ListTablesOutput struct {
	TableNames             []string `json:"TableNames"`
	LastEvaluatedTableName string   `json:"LastEvaluatedTableName,omitempty"`
}

type UpdateTableInput struct {
	TableName             string                 `json:"TableName"`
	BillingMode           string                 `json:"BillingMode,omitempty"`
	ProvisionedThroughput *ProvisionedThroughput `json:"ProvisionedThroughput,omitempty"`
}

type UpdateTableOutput struct {
	TableDescription TableDescription `json:"TableDescription"`
}

type PutItemInput struct {
	TableName    string `json:"TableName"`
	Item         Item   `json:"Item"`
	ReturnValues string `json:"ReturnValues,omitempty"`
}

type PutItemOutput struct {
	Attributes Item `json:"Attributes,omitempty"`
}

type GetItemInput struct {
	TableName                string            `json:"TableName"`
	Key                      Item              `json:"Key"`
	ProjectionExpression     string            `json:"ProjectionExpression,omitempty"`
	ExpressionAttributeNames map[string]string `json:"ExpressionAttributeNames,omitempty"`
}

type GetItemOutput struct {
	Item Item `json:"Item,omitempty"`
}

type DeleteItemInput struct {
	TableName    string `json:"TableName"`
	Key          Item   `json:"Key"`
	ReturnValues string `json:"ReturnValues,omitempty"`
}

type DeleteItemOutput struct {
	Attributes Item `json:"Attributes,omitempty"`
}

type UpdateItemInput struct {
	TableName                 string                    `json:"TableName"`
	Key                       Item                      `json:"Key"`
	UpdateExpression          string                    `json:"UpdateExpression,omitempty"`
	ExpressionAttributeNames  map[string]string         `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]AttributeValue `json:"ExpressionAttributeValues,omitempty"`
	ReturnValues              string                    `json:"ReturnValues,omitempty"`
}

type UpdateItemOutput struct {
	Attributes Item `json:"Attributes,omitempty"`
}

type QueryInput struct {
	TableName                 string                    `json:"TableName"`
	KeyConditionExpression    string                    `json:"KeyConditionExpression,omitempty"`
	FilterExpression          string                    `json:"FilterExpression,omitempty"`
	ProjectionExpression      string                    `json:"ProjectionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string         `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]AttributeValue `json:"ExpressionAttributeValues,omitempty"`
	ScanIndexForward          *bool                     `json:"ScanIndexForward,omitempty"`
	ExclusiveStartKey         Item                      `json:"ExclusiveStartKey,omitempty"`
	Limit                     *int32                    `json:"Limit,omitempty"`
	Select                    string                    `json:"Select,omitempty"`
}

type QueryOutput struct {
	Items            []Item `json:"Items"`
	Count            int64  `json:"Count"`
	ScannedCount     int64  `json:"ScannedCount"`
	LastEvaluatedKey Item   `json:"LastEvaluatedKey,omitempty"`
}

type ScanInput struct {
	TableName                 string                    `json:"TableName"`
	FilterExpression          string                    `json:"FilterExpression,omitempty"`
	ProjectionExpression      string                    `json:"ProjectionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string         `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]AttributeValue `json:"ExpressionAttributeValues,omitempty"`
	ExclusiveStartKey         Item                      `json:"ExclusiveStartKey,omitempty"`
	Limit                     *int32                    `json:"Limit,omitempty"`
	Select                    string                    `json:"Select,omitempty"`
}

type ScanOutput struct {
	Items            []Item `json:"Items"`
	Count            int64  `json:"Count"`
	ScannedCount     int64  `json:"ScannedCount"`
	LastEvaluatedKey Item   `json:"LastEvaluatedKey,omitempty"`
}

type KeysAndAttributes struct {
	Keys                     []Item            `json:"Keys"`
	ProjectionExpression     string            `json:"ProjectionExpression,omitempty"`
	ExpressionAttributeNames map[string]string `json:"ExpressionAttributeNames,omitempty"`
}

type BatchGetItemInput struct {
	RequestItems map[string]KeysAndAttributes `json:"RequestItems"`
}

type BatchGetItemOutput struct {
	Responses       map[string][]Item            `json:"Responses"`
	UnprocessedKeys map[string]KeysAndAttributes `json:"UnprocessedKeys"`
}

type PutRequest struct {
	Item Item `json:"Item"`
}

type DeleteRequest struct {
	Key Item `json:"Key"`
}

type WriteRequest struct {
	PutRequest    *PutRequest    `json:"PutRequest,omitempty"`
	DeleteRequest *DeleteRequest `json:"DeleteRequest,omitempty"`
}

type BatchWriteItemInput struct {
	RequestItems map[string][]WriteRequest `json:"RequestItems"`
}

type BatchWriteItemOutput struct {
	UnprocessedItems map[string][]WriteRequest `json:"UnprocessedItems"`
}

type TagResourceInput struct {
	ResourceArn string `json:"ResourceArn"`
	Tags        []Tag  `json:"Tags"`
}

type UntagResourceInput struct {
	ResourceArn string   `json:"ResourceArn"`
	TagKeys     []string `json:"TagKeys"`
}

type ListTagsOfResourceInput struct {
	ResourceArn string `json:"ResourceArn"`
}

type ListTagsOfResourceOutput struct {
	Tags []Tag `json:"Tags"`
}
