package dynamodb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateSetDirectValue(t *testing.T) {
	target := item("pk", s("p"))
	err := applyUpdateExpression(target, "SET name = :n", nil,
		map[string]AttributeValue{":n": s("alice")})
	require.NoError(t, err)
	assert.Equal(t, s("alice"), target["name"])
}

func TestUpdateSetMultipleAssignments(t *testing.T) {
	target := item("pk", s("p"))
	err := applyUpdateExpression(target, "SET a = :a, b = :b", nil,
		map[string]AttributeValue{":a": n("1"), ":b": s("two")})
	require.NoError(t, err)
	assert.Equal(t, n("1"), target["a"])
	assert.Equal(t, s("two"), target["b"])
}

func TestUpdateSetArithmetic(t *testing.T) {
	tests := []struct {
		name   string
		start  string
		expr   string
		delta  string
		want   string
	}{
		{"subtract", "10", "SET n = n - :d", "3", "7"},
		{"add", "10", "SET n = n + :d", "5", "15"},
		{"decimal result", "1.5", "SET n = n + :d", "0.25", "1.75"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := item("pk", s("p"), "n", n(tt.start))
			err := applyUpdateExpression(target, tt.expr, nil,
				map[string]AttributeValue{":d": n(tt.delta)})
			require.NoError(t, err)
			assert.Equal(t, n(tt.want), target["n"])
		})
	}
}

func TestUpdateSetIfNotExists(t *testing.T) {
	values := map[string]AttributeValue{":v": n("5")}

	absent := item("pk", s("p"))
	require.NoError(t, applyUpdateExpression(absent, "SET a = if_not_exists(a, :v)", nil, values))
	assert.Equal(t, n("5"), absent["a"])

	present := item("pk", s("p"), "a", n("1"))
	require.NoError(t, applyUpdateExpression(present, "SET a = if_not_exists(a, :v)", nil, values))
	assert.Equal(t, n("1"), present["a"])
}

func TestUpdateSetListAppend(t *testing.T) {
	target := item("pk", s("p"), "l", AttributeValue{L: []AttributeValue{s("a")}})
	err := applyUpdateExpression(target, "SET l = list_append(l, :more)", nil,
		map[string]AttributeValue{":more": {L: []AttributeValue{s("b"), s("c")}}})
	require.NoError(t, err)
	require.Len(t, target["l"].L, 3)
	assert.Equal(t, s("a"), target["l"].L[0])
	assert.Equal(t, s("c"), target["l"].L[2])
}

func TestUpdateRemove(t *testing.T) {
	target := item("pk", s("p"), "a", s("1"), "b", s("2"))
	err := applyUpdateExpression(target, "REMOVE a, b", nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, target, "a")
	assert.NotContains(t, target, "b")
	assert.Contains(t, target, "pk")
}

func TestUpdateAddNumeric(t *testing.T) {
	target := item("pk", s("p"), "count", n("41"))
	err := applyUpdateExpression(target, "ADD count :one", nil,
		map[string]AttributeValue{":one": n("1")})
	require.NoError(t, err)
	assert.Equal(t, n("42"), target["count"])

	// Absent attribute: created with the added value.
	err = applyUpdateExpression(target, "ADD fresh :one", nil,
		map[string]AttributeValue{":one": n("1")})
	require.NoError(t, err)
	assert.Equal(t, n("1"), target["fresh"])
}

func TestUpdateAddSetUnion(t *testing.T) {
	target := item("pk", s("p"), "tags", AttributeValue{SS: []string{"a", "b"}})
	err := applyUpdateExpression(target, "ADD tags :more", nil,
		map[string]AttributeValue{":more": {SS: []string{"b", "c"}}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, target["tags"].SS)
}

func TestUpdateDeleteSetElements(t *testing.T) {
	target := item("pk", s("p"), "tags", AttributeValue{SS: []string{"a", "b", "c"}})
	err := applyUpdateExpression(target, "DELETE tags :drop", nil,
		map[string]AttributeValue{":drop": {SS: []string{"b"}}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, target["tags"].SS)

	// Emptying the set removes the attribute entirely.
	err = applyUpdateExpression(target, "DELETE tags :rest", nil,
		map[string]AttributeValue{":rest": {SS: []string{"a", "c"}}})
	require.NoError(t, err)
	assert.NotContains(t, target, "tags")
}

func TestUpdateCombinedClauses(t *testing.T) {
	target := item("pk", s("p"), "old", s("x"), "count", n("1"))
	err := applyUpdateExpression(target,
		"SET name = :n REMOVE old ADD count :one", nil,
		map[string]AttributeValue{":n": s("v"), ":one": n("1")})
	require.NoError(t, err)
	assert.Equal(t, s("v"), target["name"])
	assert.NotContains(t, target, "old")
	assert.Equal(t, n("2"), target["count"])
}

func TestUpdateNamePlaceholders(t *testing.T) {
	target := item("pk", s("p"))
	err := applyUpdateExpression(target, "SET #n = :v",
		map[string]string{"#n": "name"},
		map[string]AttributeValue{":v": s("alice")})
	require.NoError(t, err)
	assert.Equal(t, s("alice"), target["name"])
}

func TestUpdateMissingValueFails(t *testing.T) {
	target := item("pk", s("p"))
	err := applyUpdateExpression(target, "SET a = :missing", nil, nil)
	assert.Error(t, err)
}

func TestRenderNumber(t *testing.T) {
	target := item("pk", s("p"), "n", n("2.5"))
	err := applyUpdateExpression(target, "SET n = n + :d", nil,
		map[string]AttributeValue{":d": n("2.5")})
	require.NoError(t, err)
	// A whole result renders without a fractional part.
	assert.Equal(t, n("5"), target["n"])
}
