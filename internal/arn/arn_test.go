package arn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndParse(t *testing.T) {
	built := New("sqs", "us-east-1", "000000000000", "orders")
	assert.Equal(t, "arn:aws:sqs:us-east-1:000000000000:orders", built)

	parsed, err := Parse(built)
	require.NoError(t, err)
	assert.Equal(t, "sqs", parsed.Service)
	assert.Equal(t, "us-east-1", parsed.Region)
	assert.Equal(t, "000000000000", parsed.Account)
	assert.Equal(t, "orders", parsed.Resource)

	_, err = Parse("not-an-arn")
	assert.Error(t, err)
}

func TestResource(t *testing.T) {
	assert.Equal(t, "orders", Resource("arn:aws:sqs:us-east-1:0:orders"))
	assert.Equal(t, "mytable", Resource("arn:aws:dynamodb:us-east-1:0:table/mytable"))
	assert.Equal(t, "plain", Resource("plain"))
}
