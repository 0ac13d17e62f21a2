package dynamodb

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nimbuslocal/nimbus/internal/arn"
	"github.com/nimbuslocal/nimbus/internal/ident"
)

// Engine is the table service: the table collection behind one exclusive
// lock. All operations, including expression evaluation, are synchronous
// within the lock.
type Engine struct {
	mu        sync.Mutex
	tables    map[string]*Table
	accountID string
	region    string
}

func NewEngine(accountID, region string) *Engine {
	return &Engine{
		tables:    make(map[string]*Table),
		accountID: accountID,
		region:    region,
	}
}

func nowEpoch() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func (e *Engine) table(name string) (*Table, error) {
	t, ok := e.tables[name]
	if !ok {
		return nil, errResourceNotFound(fmt.Sprintf(
			"Requested resource not found: Table: %s not found", name))
	}
	return t, nil
}

// --- Table operations ---

func (e *Engine) CreateTable(in *CreateTableInput) (*CreateTableOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tables[in.TableName]; exists {
		return nil, errResourceInUse(fmt.Sprintf("Table already exists: %s", in.TableName))
	}

	hasHash := false
	for _, k := range in.KeySchema {
		if k.KeyType == "HASH" {
			hasHash = true
		}
	}
	if !hasHash {
		return nil, errValidation("No HASH key defined in KeySchema")
	}

	billingMode := in.BillingMode
	if billingMode == "" {
		billingMode = "PROVISIONED"
	}

	var throughput ProvisionedThroughputDescription
	if in.ProvisionedThroughput != nil {
		throughput.ReadCapacityUnits = in.ProvisionedThroughput.ReadCapacityUnits
		throughput.WriteCapacityUnits = in.ProvisionedThroughput.WriteCapacityUnits
	}

	table := &Table{
		Name:                  in.TableName,
		ARN:                   arn.New("dynamodb", e.region, e.accountID, "table/"+in.TableName),
		ID:                    ident.New(),
		KeySchema:             in.KeySchema,
		AttributeDefinitions:  in.AttributeDefinitions,
		BillingMode:           billingMode,
		ProvisionedThroughput: throughput,
		CreatedAt:             nowEpoch(),
		Status:                "ACTIVE",
		Tags:                  make(map[string]string),
	}
	for _, tag := range in.Tags {
		table.Tags[tag.Key] = tag.Value
	}

	e.tables[in.TableName] = table
	return &CreateTableOutput{TableDescription: table.description()}, nil
}

func (e *Engine) DeleteTable(in *DeleteTableInput) (*DeleteTableOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	table, err := e.table(in.TableName)
	if err != nil {
		return nil, err
	}
	delete(e.tables, in.TableName)

	description := table.description()
	description.TableStatus = "DELETING"
	return &DeleteTableOutput{TableDescription: description}, nil
}

func (e *Engine) DescribeTable(in *DescribeTableInput) (*DescribeTableOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	table, err := e.table(in.TableName)
	if err != nil {
		return nil, err
	}
	return &DescribeTableOutput{Table: table.description()}, nil
}

func (e *Engine) ListTables(in *ListTablesInput) (*ListTablesOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.tables))
	for name := range e.tables {
		if in.ExclusiveStartTableName == "" || name > in.ExclusiveStartTableName {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	limit := 100
	if in.Limit != nil {
		limit = int(*in.Limit)
	}

	out := &ListTablesOutput{TableNames: names}
	if len(names) > limit {
		out.TableNames = names[:limit]
		out.LastEvaluatedTableName = names[limit-1]
	}
	return out, nil
}

func (e *Engine) UpdateTable(in *UpdateTableInput) (*UpdateTableOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	table, err := e.table(in.TableName)
	if err != nil {
		return nil, err
	}

	if in.BillingMode != "" {
		table.BillingMode = in.BillingMode
	}
	if in.ProvisionedThroughput != nil {
		now := nowEpoch()
		table.ProvisionedThroughput = ProvisionedThroughputDescription{
			ReadCapacityUnits:    in.ProvisionedThroughput.ReadCapacityUnits,
			WriteCapacityUnits:   in.ProvisionedThroughput.WriteCapacityUnits,
			LastIncreaseDateTime: &now,
		}
	}

	return &UpdateTableOutput{TableDescription: table.description()}, nil
}

// --- Item operations ---

func (e *Engine) PutItem(in *PutItemInput) (*PutItemOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	table, err := e.table(in.TableName)
	if err != nil {
		return nil, err
	}

	if err := requireKeyAttributes(table, in.Item); err != nil {
		return nil, err
	}

	var oldItem Item
	if idx := table.findItemIndex(in.Item); idx >= 0 {
		oldItem = table.Items[idx]
		table.Items[idx] = in.Item
	} else {
		table.Items = append(table.Items, in.Item)
	}

	out := &PutItemOutput{}
	if in.ReturnValues == "ALL_OLD" {
		out.Attributes = oldItem
	}
	return out, nil
}

func requireKeyAttributes(table *Table, item Item) error {
	if _, ok := item[table.hashKeyName()]; !ok {
		return errValidation(fmt.Sprintf(
			"One or more parameter values are not valid. Missing the key %s in the item",
			table.hashKeyName()))
	}
	if rk := table.rangeKeyName(); rk != "" {
		if _, ok := item[rk]; !ok {
			return errValidation(fmt.Sprintf(
				"One or more parameter values are not valid. Missing the key %s in the item", rk))
		}
	}
	return nil
}

func (e *Engine) GetItem(in *GetItemInput) (*GetItemOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	table, err := e.table(in.TableName)
	if err != nil {
		return nil, err
	}

	out := &GetItemOutput{}
	if idx := table.findItemIndex(in.Key); idx >= 0 {
		out.Item = applyProjection(table.Items[idx], in.ProjectionExpression, in.ExpressionAttributeNames)
	}
	return out, nil
}

func (e *Engine) DeleteItem(in *DeleteItemInput) (*DeleteItemOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	table, err := e.table(in.TableName)
	if err != nil {
		return nil, err
	}

	out := &DeleteItemOutput{}
	if idx := table.findItemIndex(in.Key); idx >= 0 {
		if in.ReturnValues == "ALL_OLD" {
			out.Attributes = table.Items[idx]
		}
		table.Items = append(table.Items[:idx], table.Items[idx+1:]...)
	}
	return out, nil
}

// UpdateItem applies the update expression in place, synthesizing a
// key-only item when none matches the primary key.
func (e *Engine) UpdateItem(in *UpdateItemInput) (*UpdateItemOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	table, err := e.table(in.TableName)
	if err != nil {
		return nil, err
	}

	idx := table.findItemIndex(in.Key)
	existed := idx >= 0
	if !existed {
		synthesized := Item{}
		for k, v := range in.Key {
			synthesized[k] = v
		}
		table.Items = append(table.Items, synthesized)
		idx = len(table.Items) - 1
	}

	var oldItem Item
	if existed {
		oldItem = copyItem(table.Items[idx])
	}

	if in.UpdateExpression != "" {
		if err := applyUpdateExpression(table.Items[idx], in.UpdateExpression,
			in.ExpressionAttributeNames, in.ExpressionAttributeValues); err != nil {
			return nil, err
		}
	}

	out := &UpdateItemOutput{}
	switch in.ReturnValues {
	case "ALL_NEW", "UPDATED_NEW":
		out.Attributes = table.Items[idx]
	case "ALL_OLD", "UPDATED_OLD":
		out.Attributes = oldItem
	}
	return out, nil
}

func copyItem(item Item) Item {
	out := make(Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

// --- Query and Scan ---

func (e *Engine) Query(in *QueryInput) (*QueryOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	table, err := e.table(in.TableName)
	if err != nil {
		return nil, err
	}

	if in.KeyConditionExpression == "" {
		return nil, errValidation("KeyConditionExpression is required for Query")
	}
	conditions, err := parseKeyConditions(in.KeyConditionExpression,
		in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	var matched []Item
	for _, item := range table.Items {
		if evaluateKeyConditions(item, conditions) {
			matched = append(matched, item)
		}
	}

	if rangeKey := table.rangeKeyName(); rangeKey != "" {
		ascending := in.ScanIndexForward == nil || *in.ScanIndexForward
		sort.SliceStable(matched, func(i, j int) bool {
			vi, iok := matched[i][rangeKey]
			vj, jok := matched[j][rangeKey]
			var pi, pj *AttributeValue
			if iok {
				pi = &vi
			}
			if jok {
				pj = &vj
			}
			if ascending {
				return compareValues(pi, pj) < 0
			}
			return compareValues(pi, pj) > 0
		})
	}

	scannedCount := int64(len(matched))

	matched = e.filterAndPage(table, matched, in.FilterExpression,
		in.ExpressionAttributeNames, in.ExpressionAttributeValues, in.ExclusiveStartKey)

	items, lastKey := limitPage(table, matched, in.Limit)

	if in.Select == "COUNT" {
		return &QueryOutput{
			Items:            []Item{},
			Count:            int64(len(items)),
			ScannedCount:     scannedCount,
			LastEvaluatedKey: lastKey,
		}, nil
	}

	projected := make([]Item, len(items))
	for i, item := range items {
		projected[i] = applyProjection(item, in.ProjectionExpression, in.ExpressionAttributeNames)
	}

	return &QueryOutput{
		Items:            projected,
		Count:            int64(len(projected)),
		ScannedCount:     scannedCount,
		LastEvaluatedKey: lastKey,
	}, nil
}

func (e *Engine) Scan(in *ScanInput) (*ScanOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	table, err := e.table(in.TableName)
	if err != nil {
		return nil, err
	}

	items := make([]Item, len(table.Items))
	copy(items, table.Items)
	scannedCount := int64(len(items))

	items = e.filterAndPage(table, items, in.FilterExpression,
		in.ExpressionAttributeNames, in.ExpressionAttributeValues, in.ExclusiveStartKey)

	page, lastKey := limitPage(table, items, in.Limit)

	if in.Select == "COUNT" {
		return &ScanOutput{
			Items:            []Item{},
			Count:            int64(len(page)),
			ScannedCount:     scannedCount,
			LastEvaluatedKey: lastKey,
		}, nil
	}

	projected := make([]Item, len(page))
	for i, item := range page {
		projected[i] = applyProjection(item, in.ProjectionExpression, in.ExpressionAttributeNames)
	}

	return &ScanOutput{
		Items:            projected,
		Count:            int64(len(projected)),
		ScannedCount:     scannedCount,
		LastEvaluatedKey: lastKey,
	}, nil
}

// filterAndPage applies the filter expression and then drops everything up
// to and including the exclusive-start item.
func (e *Engine) filterAndPage(table *Table, items []Item, filterExpr string, names map[string]string, values map[string]AttributeValue, startKey Item) []Item {
	if filterExpr != "" {
		filtered := items[:0]
		for _, item := range items {
			if evaluateFilter(item, filterExpr, names, values) {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	if len(startKey) > 0 {
		startPK := table.extractKey(startKey)
		for i, item := range items {
			if itemsEqual(table.extractKey(item), startPK) {
				items = items[i+1:]
				break
			}
		}
	}
	return items
}

func limitPage(table *Table, items []Item, limit *int32) ([]Item, Item) {
	if limit == nil || len(items) <= int(*limit) {
		return items, nil
	}
	page := items[:int(*limit)]
	return page, table.extractKey(page[len(page)-1])
}

func itemsEqual(a, b Item) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !av.Equal(bv) {
			return false
		}
	}
	return true
}

// --- Batch operations ---

func (e *Engine) BatchGetItem(in *BatchGetItemInput) (*BatchGetItemOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := &BatchGetItemOutput{
		Responses:       make(map[string][]Item),
		UnprocessedKeys: map[string]KeysAndAttributes{},
	}
	for tableName, keysAndAttrs := range in.RequestItems {
		table, err := e.table(tableName)
		if err != nil {
			return nil, err
		}

		items := []Item{}
		for _, key := range keysAndAttrs.Keys {
			if idx := table.findItemIndex(key); idx >= 0 {
				items = append(items, applyProjection(table.Items[idx],
					keysAndAttrs.ProjectionExpression, keysAndAttrs.ExpressionAttributeNames))
			}
		}
		out.Responses[tableName] = items
	}
	return out, nil
}

func (e *Engine) BatchWriteItem(in *BatchWriteItemInput) (*BatchWriteItemOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for tableName, writes := range in.RequestItems {
		table, err := e.table(tableName)
		if err != nil {
			return nil, err
		}

		for _, write := range writes {
			if write.PutRequest != nil {
				if idx := table.findItemIndex(write.PutRequest.Item); idx >= 0 {
					table.Items[idx] = write.PutRequest.Item
				} else {
					table.Items = append(table.Items, write.PutRequest.Item)
				}
			}
			if write.DeleteRequest != nil {
				if idx := table.findItemIndex(write.DeleteRequest.Key); idx >= 0 {
					table.Items = append(table.Items[:idx], table.Items[idx+1:]...)
				}
			}
		}
	}

	return &BatchWriteItemOutput{UnprocessedItems: map[string][]WriteRequest{}}, nil
}

// --- Tag operations ---

func (e *Engine) TagResource(in *TagResourceInput) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	table, err := e.tableByARN(in.ResourceArn)
	if err != nil {
		return err
	}
	for _, tag := range in.Tags {
		table.Tags[tag.Key] = tag.Value
	}
	return nil
}

func (e *Engine) UntagResource(in *UntagResourceInput) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	table, err := e.tableByARN(in.ResourceArn)
	if err != nil {
		return err
	}
	for _, key := range in.TagKeys {
		delete(table.Tags, key)
	}
	return nil
}

func (e *Engine) ListTagsOfResource(in *ListTagsOfResourceInput) (*ListTagsOfResourceOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	table, err := e.tableByARN(in.ResourceArn)
	if err != nil {
		return nil, err
	}

	tags := make([]Tag, 0, len(table.Tags))
	for k, v := range table.Tags {
		tags = append(tags, Tag{Key: k, Value: v})
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Key < tags[j].Key })
	return &ListTagsOfResourceOutput{Tags: tags}, nil
}

func (e *Engine) tableByARN(resourceARN string) (*Table, error) {
	for _, t := range e.tables {
		if t.ARN == resourceARN {
			return t, nil
		}
	}
	return nil, errResourceNotFound(fmt.Sprintf("Requested resource not found: %s", resourceARN))
}
