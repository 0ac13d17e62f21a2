package dynamodb

import (
	"fmt"
	"strings"
)

// The expression evaluator works over the raw expression strings with a
// scanner that tracks parenthesis depth, so logical operators and commas
// only split at the top level. Keywords are matched at word boundaries.

func resolveName(token string, names map[string]string) string {
	if resolved, ok := names[token]; ok {
		return resolved
	}
	return token
}

func resolveValue(token string, values map[string]AttributeValue) (AttributeValue, error) {
	if v, ok := values[token]; ok {
		return v, nil
	}
	return AttributeValue{}, errValidation(fmt.Sprintf(
		"Value %s not found in ExpressionAttributeValues", token))
}

// splitTopLevel splits expr on the given word-bounded operator (spelled
// with surrounding spaces, e.g. " AND "), ignoring occurrences inside
// parentheses. Case-insensitive. Returns nil when the operator is absent.
func splitTopLevel(expr, op string) []string {
	upper := strings.ToUpper(expr)
	op = strings.ToUpper(op)

	var parts []string
	depth := 0
	last := 0
	for i := 0; i+len(op) <= len(expr); i++ {
		switch expr[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		}
		if depth == 0 && upper[i:i+len(op)] == op {
			parts = append(parts, expr[last:i])
			last = i + len(op)
			i = last - 1
		}
	}
	if parts == nil {
		return nil
	}
	return append(parts, expr[last:])
}

// splitTopLevelOnce splits at the first top-level occurrence only.
func splitTopLevelOnce(expr, op string) (string, string, bool) {
	upper := strings.ToUpper(expr)
	op = strings.ToUpper(op)

	depth := 0
	for i := 0; i+len(op) <= len(expr); i++ {
		switch expr[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		}
		if depth == 0 && upper[i:i+len(op)] == op {
			return expr[:i], expr[i+len(op):], true
		}
	}
	return "", "", false
}

// splitArgs splits a comma-separated list at paren depth zero.
func splitArgs(body string) []string {
	var parts []string
	depth := 0
	last := 0
	for i, c := range body {
		switch c {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, body[last:i])
				last = i + 1
			}
		}
	}
	return append(parts, body[last:])
}

// functionArgs returns the argument list of a call to the named function,
// or false when expr is not such a call.
func functionArgs(expr, name string) (string, bool) {
	trimmed := strings.TrimSpace(expr)
	lower := strings.ToLower(trimmed)
	prefix := name + "("
	if !strings.HasPrefix(lower, prefix) || !strings.HasSuffix(trimmed, ")") {
		return "", false
	}
	return trimmed[len(prefix) : len(trimmed)-1], true
}

// findOperatorTopLevel locates op outside parentheses, or -1.
func findOperatorTopLevel(expr, op string) int {
	depth := 0
	for i := 0; i+len(op) <= len(expr); i++ {
		switch expr[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		}
		if depth == 0 && expr[i:i+len(op)] == op {
			return i
		}
	}
	return -1
}

// --- Key-condition expressions ---

type keyConditionOp int

const (
	opEq keyConditionOp = iota
	opLt
	opLe
	opGt
	opGe
	opBeginsWith
	opBetween
)

type keyCondition struct {
	attribute string
	op        keyConditionOp
	value     AttributeValue
	value2    AttributeValue
}

// parseKeyConditions splits a key-condition expression at top-level AND and
// parses each conjunct.
func parseKeyConditions(expr string, names map[string]string, values map[string]AttributeValue) ([]keyCondition, error) {
	parts := splitTopLevel(expr, " AND ")
	if parts == nil {
		parts = []string{expr}
	}

	conditions := make([]keyCondition, 0, len(parts))
	for i := 0; i < len(parts); i++ {
		part := parts[i]
		// The AND inside a BETWEEN conjunct belongs to it: rejoin the upper bound.
		if _, _, ok := splitTopLevelOnce(part, " BETWEEN "); ok && i+1 < len(parts) {
			part += " AND " + parts[i+1]
			i++
		}
		cond, err := parseKeyCondition(strings.TrimSpace(part), names, values)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}
	return conditions, nil
}

func parseKeyCondition(part string, names map[string]string, values map[string]AttributeValue) (keyCondition, error) {
	if args, ok := functionArgs(part, "begins_with"); ok {
		pieces := splitArgs(args)
		if len(pieces) != 2 {
			return keyCondition{}, errValidation("Invalid begins_with expression")
		}
		value, err := resolveValue(strings.TrimSpace(pieces[1]), values)
		if err != nil {
			return keyCondition{}, err
		}
		return keyCondition{
			attribute: resolveName(strings.TrimSpace(pieces[0]), names),
			op:        opBeginsWith,
			value:     value,
		}, nil
	}

	if attr, rest, ok := splitTopLevelOnce(part, " BETWEEN "); ok {
		lo, hi, ok := splitTopLevelOnce(rest, " AND ")
		if !ok {
			return keyCondition{}, errValidation(fmt.Sprintf("Invalid BETWEEN expression: %s", part))
		}
		value, err := resolveValue(strings.TrimSpace(lo), values)
		if err != nil {
			return keyCondition{}, err
		}
		value2, err := resolveValue(strings.TrimSpace(hi), values)
		if err != nil {
			return keyCondition{}, err
		}
		return keyCondition{
			attribute: resolveName(strings.TrimSpace(attr), names),
			op:        opBetween,
			value:     value,
			value2:    value2,
		}, nil
	}

	// Longer operators first so <= does not parse as <.
	for _, cand := range []struct {
		text string
		op   keyConditionOp
	}{
		{"<=", opLe}, {">=", opGe}, {"=", opEq}, {"<", opLt}, {">", opGt},
	} {
		pos := findOperatorTopLevel(part, cand.text)
		if pos < 0 {
			continue
		}
		value, err := resolveValue(strings.TrimSpace(part[pos+len(cand.text):]), values)
		if err != nil {
			return keyCondition{}, err
		}
		return keyCondition{
			attribute: resolveName(strings.TrimSpace(part[:pos]), names),
			op:        cand.op,
			value:     value,
		}, nil
	}

	return keyCondition{}, errValidation(fmt.Sprintf("Invalid key condition expression: %s", part))
}

func evaluateKeyConditions(item Item, conditions []keyCondition) bool {
	for _, cond := range conditions {
		itemValue, ok := item[cond.attribute]
		if !ok {
			return false
		}
		if !cond.matches(itemValue) {
			return false
		}
	}
	return true
}

func (c keyCondition) matches(v AttributeValue) bool {
	switch c.op {
	case opEq:
		return v.Equal(c.value)
	case opLt:
		return compareValues(&v, &c.value) < 0
	case opLe:
		return compareValues(&v, &c.value) <= 0
	case opGt:
		return compareValues(&v, &c.value) > 0
	case opGe:
		return compareValues(&v, &c.value) >= 0
	case opBeginsWith:
		itemStr, _ := v.extractString()
		prefix, _ := c.value.extractString()
		return strings.HasPrefix(itemStr, prefix)
	case opBetween:
		return compareValues(&v, &c.value) >= 0 && compareValues(&v, &c.value2) <= 0
	}
	return false
}

// --- Filter expressions ---

// evaluateFilter evaluates a full boolean expression over an item. OR binds
// loosest, then AND, then NOT; parentheses group.
func evaluateFilter(item Item, expr string, names map[string]string, values map[string]AttributeValue) bool {
	expr = strings.TrimSpace(expr)

	if left, right, ok := splitTopLevelOnce(expr, " OR "); ok {
		return evaluateFilter(item, left, names, values) ||
			evaluateFilter(item, right, names, values)
	}
	if left, right, ok := splitTopLevelOnce(expr, " AND "); ok {
		return evaluateFilter(item, left, names, values) &&
			evaluateFilter(item, right, names, values)
	}
	if len(expr) > 4 && strings.EqualFold(expr[:4], "NOT ") {
		return !evaluateFilter(item, expr[4:], names, values)
	}
	if strings.HasPrefix(expr, "(") && strings.HasSuffix(expr, ")") && balancedOuter(expr) {
		return evaluateFilter(item, expr[1:len(expr)-1], names, values)
	}

	if args, ok := functionArgs(expr, "attribute_exists"); ok {
		_, exists := item[resolveName(strings.TrimSpace(args), names)]
		return exists
	}
	if args, ok := functionArgs(expr, "attribute_not_exists"); ok {
		_, exists := item[resolveName(strings.TrimSpace(args), names)]
		return !exists
	}
	if args, ok := functionArgs(expr, "begins_with"); ok {
		return stringFunc(item, args, names, values, strings.HasPrefix)
	}
	if args, ok := functionArgs(expr, "contains"); ok {
		return stringFunc(item, args, names, values, strings.Contains)
	}

	type comparator struct {
		text string
		fn   func(a, b AttributeValue) bool
	}
	comparators := []comparator{
		{"<>", func(a, b AttributeValue) bool { return !a.Equal(b) }},
		{"<=", func(a, b AttributeValue) bool { return compareValues(&a, &b) <= 0 }},
		{">=", func(a, b AttributeValue) bool { return compareValues(&a, &b) >= 0 }},
		{"=", func(a, b AttributeValue) bool { return a.Equal(b) }},
		{"<", func(a, b AttributeValue) bool { return compareValues(&a, &b) < 0 }},
		{">", func(a, b AttributeValue) bool { return compareValues(&a, &b) > 0 }},
	}
	for _, cmp := range comparators {
		pos := findOperatorTopLevel(expr, cmp.text)
		if pos < 0 {
			continue
		}
		attr := resolveName(strings.TrimSpace(expr[:pos]), names)
		itemValue, ok := item[attr]
		if !ok {
			return false
		}
		cmpValue, err := resolveValue(strings.TrimSpace(expr[pos+len(cmp.text):]), values)
		if err != nil {
			return false
		}
		return cmp.fn(itemValue, cmpValue)
	}

	// Unparseable conjuncts do not filter.
	return true
}

// balancedOuter reports whether the leading paren closes at the very end.
func balancedOuter(expr string) bool {
	depth := 0
	for i, c := range expr {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(expr)-1 {
				return false
			}
		}
	}
	return depth == 0
}

func stringFunc(item Item, args string, names map[string]string, values map[string]AttributeValue, fn func(s, sub string) bool) bool {
	pieces := splitArgs(args)
	if len(pieces) != 2 {
		return false
	}
	itemValue, ok := item[resolveName(strings.TrimSpace(pieces[0]), names)]
	if !ok {
		return false
	}
	cmpValue, err := resolveValue(strings.TrimSpace(pieces[1]), values)
	if err != nil {
		return false
	}
	itemStr, _ := itemValue.extractString()
	cmpStr, _ := cmpValue.extractString()
	return fn(itemStr, cmpStr)
}

// --- Projection expressions ---

// applyProjection keeps only the requested attributes, silently omitting
// missing ones. An empty expression projects everything.
func applyProjection(item Item, expr string, names map[string]string) Item {
	if expr == "" {
		return item
	}
	projected := Item{}
	for _, part := range strings.Split(expr, ",") {
		attr := resolveName(strings.TrimSpace(part), names)
		if v, ok := item[attr]; ok {
			projected[attr] = v
		}
	}
	return projected
}
