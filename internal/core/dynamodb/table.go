package dynamodb

type Table struct {
	Name                  string
	ARN                   string
	ID                    string
	KeySchema             []KeySchemaElement
	AttributeDefinitions  []AttributeDefinition
	BillingMode           string
	ProvisionedThroughput ProvisionedThroughputDescription
	CreatedAt             float64
	Status                string
	Items                 []Item
	Tags                  map[string]string
}

func (t *Table) hashKeyName() string {
	for _, k := range t.KeySchema {
		if k.KeyType == "HASH" {
			return k.AttributeName
		}
	}
	return ""
}

func (t *Table) rangeKeyName() string {
	for _, k := range t.KeySchema {
		if k.KeyType == "RANGE" {
			return k.AttributeName
		}
	}
	return ""
}

// findItemIndex is the primary-key probe: the index of the first item whose
// (hash, optional range) attributes equal the candidate's, or -1.
func (t *Table) findItemIndex(candidate Item) int {
	hashKey := t.hashKeyName()
	rangeKey := t.rangeKeyName()

	hashVal, ok := candidate[hashKey]
	if !ok {
		return -1
	}
	var rangeVal *AttributeValue
	if rangeKey != "" {
		rv, ok := candidate[rangeKey]
		if !ok {
			return -1
		}
		rangeVal = &rv
	}

	for i, item := range t.Items {
		iv, ok := item[hashKey]
		if !ok || !iv.Equal(hashVal) {
			continue
		}
		if rangeVal != nil {
			rv, ok := item[rangeKey]
			if !ok || !rv.Equal(*rangeVal) {
				continue
			}
		}
		return i
	}
	return -1
}

// extractKey projects the primary-key attributes out of an item.
func (t *Table) extractKey(item Item) Item {
	key := Item{}
	if v, ok := item[t.hashKeyName()]; ok {
		key[t.hashKeyName()] = v
	}
	if rk := t.rangeKeyName(); rk != "" {
		if v, ok := item[rk]; ok {
			key[rk] = v
		}
	}
	return key
}

func (t *Table) description() TableDescription {
	return TableDescription{
		TableName:             t.Name,
		TableArn:              t.ARN,
		TableId:               t.ID,
		KeySchema:             t.KeySchema,
		AttributeDefinitions:  t.AttributeDefinitions,
		BillingModeSummary:    &BillingModeSummary{BillingMode: t.BillingMode},
		ProvisionedThroughput: t.ProvisionedThroughput,
		CreationDateTime:      t.CreatedAt,
		TableStatus:           t.Status,
		ItemCount:             int64(len(t.Items)),
	}
}
