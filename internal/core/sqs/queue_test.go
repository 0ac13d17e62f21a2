package sqs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, fifo bool) *Queue {
	t.Helper()
	attrs := defaultQueueAttributes()
	attrs.FifoQueue = fifo
	if fifo {
		return NewQueue("test.fifo", "arn:aws:sqs:us-east-1:000000000000:test.fifo",
			"http://localhost:4566/000000000000/test.fifo", attrs)
	}
	return NewQueue("test", "arn:aws:sqs:us-east-1:000000000000:test",
		"http://localhost:4566/000000000000/test", attrs)
}

func strPtr(s string) *string { return &s }

func int32Ptr(v int32) *int32 { return &v }

func TestSendComputesBodyMD5(t *testing.T) {
	q := newTestQueue(t, false)

	out, err := q.Send(&SendMessageInput{MessageBody: "hello"}, "000000000000")
	require.NoError(t, err)

	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", out.MD5OfMessageBody)
	assert.NotEmpty(t, out.MessageId)
	assert.Empty(t, out.SequenceNumber)
}

func TestSendValidation(t *testing.T) {
	q := newTestQueue(t, false)

	_, err := q.Send(&SendMessageInput{MessageBody: ""}, "acct")
	assert.Error(t, err)

	q.Attributes.MaximumMessageSize = 1024
	_, err = q.Send(&SendMessageInput{MessageBody: string(make([]byte, 2048))}, "acct")
	assert.Error(t, err)
}

func TestAttributeMD5Framing(t *testing.T) {
	attrs := map[string]MessageAttributeValue{
		"beta":  {DataType: "String", StringValue: strPtr("two")},
		"alpha": {DataType: "Number", StringValue: strPtr("1")},
	}
	digest := computeAttributeMD5(attrs)
	require.Len(t, digest, 32)

	// Insertion order must not matter: names are sorted before hashing.
	reordered := map[string]MessageAttributeValue{
		"alpha": {DataType: "Number", StringValue: strPtr("1")},
		"beta":  {DataType: "String", StringValue: strPtr("two")},
	}
	assert.Equal(t, digest, computeAttributeMD5(reordered))

	// A changed value must change the digest.
	attrs["beta"] = MessageAttributeValue{DataType: "String", StringValue: strPtr("three")}
	assert.NotEqual(t, digest, computeAttributeMD5(attrs))

	// Binary values hash their decoded bytes under transport byte 2.
	binary := map[string]MessageAttributeValue{
		"blob": {DataType: "Binary", BinaryValue: []byte{0x01, 0x02}},
	}
	assert.Len(t, computeAttributeMD5(binary), 32)
	assert.NotEqual(t, digest, computeAttributeMD5(binary))

	assert.Empty(t, computeAttributeMD5(nil))
}

func TestFifoRequiresGroupID(t *testing.T) {
	q := newTestQueue(t, true)

	_, err := q.Send(&SendMessageInput{MessageBody: "a", MessageDeduplicationId: "d1"}, "acct")
	assert.Error(t, err)
}

func TestFifoRequiresDedupWithoutContentDedup(t *testing.T) {
	q := newTestQueue(t, true)

	_, err := q.Send(&SendMessageInput{MessageBody: "a", MessageGroupId: "g1"}, "acct")
	assert.Error(t, err)

	q.Attributes.ContentBasedDeduplication = true
	out, err := q.Send(&SendMessageInput{MessageBody: "a", MessageGroupId: "g1"}, "acct")
	require.NoError(t, err)
	assert.Equal(t, "00000000000000000001", out.SequenceNumber)
}

func TestFifoDedupReplaysResponse(t *testing.T) {
	q := newTestQueue(t, true)

	first, err := q.Send(&SendMessageInput{
		MessageBody: "a", MessageGroupId: "g1", MessageDeduplicationId: "d1",
	}, "acct")
	require.NoError(t, err)

	second, err := q.Send(&SendMessageInput{
		MessageBody: "a", MessageGroupId: "g1", MessageDeduplicationId: "d1",
	}, "acct")
	require.NoError(t, err)

	assert.Equal(t, first.MessageId, second.MessageId)
	assert.Equal(t, 1, q.PendingCount())
}

func TestFifoVisibilityScenario(t *testing.T) {
	q := newTestQueue(t, true)

	_, err := q.Send(&SendMessageInput{
		MessageBody: "a", MessageGroupId: "g1", MessageDeduplicationId: "d1",
	}, "acct")
	require.NoError(t, err)

	received, err := q.Receive(1, nil, "acct")
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "a", received[0].Body)
	assert.Equal(t, "1", received[0].Attributes["ApproximateReceiveCount"])
	handle := received[0].ReceiptHandle

	// The group is locked while a is in flight.
	again, err := q.Receive(1, nil, "acct")
	require.NoError(t, err)
	assert.Empty(t, again)

	q.Delete(handle)

	_, err = q.Send(&SendMessageInput{
		MessageBody: "b", MessageGroupId: "g1", MessageDeduplicationId: "d2",
	}, "acct")
	require.NoError(t, err)

	received, err = q.Receive(1, nil, "acct")
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "b", received[0].Body)
}

func TestReceiveSkipsDelayed(t *testing.T) {
	q := newTestQueue(t, false)

	_, err := q.Send(&SendMessageInput{MessageBody: "visible"}, "acct")
	require.NoError(t, err)
	_, err = q.Send(&SendMessageInput{MessageBody: "delayed", DelaySeconds: int32Ptr(900)}, "acct")
	require.NoError(t, err)

	received, err := q.Receive(10, nil, "acct")
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "visible", received[0].Body)
}

func TestRetentionDropsExpiredMessages(t *testing.T) {
	q := newTestQueue(t, false)

	_, err := q.Send(&SendMessageInput{MessageBody: "old"}, "acct")
	require.NoError(t, err)
	// Age the message past the retention window.
	q.pending[0].SentTimestamp -= int64(q.Attributes.MessageRetentionPeriod+10) * 1000

	received, err := q.Receive(10, nil, "acct")
	require.NoError(t, err)
	assert.Empty(t, received)
	assert.Zero(t, q.PendingCount())
}

func TestDeleteIsIdempotent(t *testing.T) {
	q := newTestQueue(t, false)
	q.Delete("unknown-handle")
	assert.Zero(t, len(q.inflight))
}

func TestChangeVisibilityZeroRequeues(t *testing.T) {
	q := newTestQueue(t, false)

	_, err := q.Send(&SendMessageInput{MessageBody: "m"}, "acct")
	require.NoError(t, err)

	received, err := q.Receive(1, nil, "acct")
	require.NoError(t, err)
	require.Len(t, received, 1)

	require.NoError(t, q.ChangeVisibility(received[0].ReceiptHandle, 0))
	assert.Equal(t, 1, q.PendingCount())
	assert.Empty(t, q.inflight)

	// The same message is immediately receivable again.
	received, err = q.Receive(1, nil, "acct")
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "m", received[0].Body)
}

func TestChangeVisibilityValidation(t *testing.T) {
	q := newTestQueue(t, false)

	assert.Error(t, q.ChangeVisibility("handle", 43201))
	assert.Error(t, q.ChangeVisibility("unknown", 30))
}

func TestExpiredInflightReturnsToPending(t *testing.T) {
	q := newTestQueue(t, false)

	_, err := q.Send(&SendMessageInput{MessageBody: "m"}, "acct")
	require.NoError(t, err)

	received, err := q.Receive(1, int32Ptr(0), "acct")
	require.NoError(t, err)
	require.Len(t, received, 1)

	redrives := q.ReturnExpiredInflight()
	assert.Empty(t, redrives)
	assert.Equal(t, 1, q.PendingCount())
	assert.Empty(t, q.inflight)
}

func TestExpiredInflightRedrivesToDLQ(t *testing.T) {
	q := newTestQueue(t, false)
	q.Attributes.RedrivePolicy = &RedrivePolicy{
		DeadLetterTargetArn: "arn:aws:sqs:us-east-1:000000000000:dlq",
		MaxReceiveCount:     2,
	}

	_, err := q.Send(&SendMessageInput{MessageBody: "m"}, "acct")
	require.NoError(t, err)

	// First receive and expiry: back to pending.
	_, err = q.Receive(1, int32Ptr(0), "acct")
	require.NoError(t, err)
	redrives := q.ReturnExpiredInflight()
	assert.Empty(t, redrives)
	assert.Equal(t, 1, q.PendingCount())

	// Second receive reaches the threshold: redriven.
	_, err = q.Receive(1, int32Ptr(0), "acct")
	require.NoError(t, err)
	redrives = q.ReturnExpiredInflight()
	require.Len(t, redrives, 1)
	assert.Equal(t, "arn:aws:sqs:us-east-1:000000000000:dlq", redrives[0].DLQArn)
	assert.Equal(t, q.ARN, redrives[0].Message.OriginArn)
	assert.Zero(t, q.PendingCount())
}

func TestPurgeGuardsRepeatWithinMinute(t *testing.T) {
	q := newTestQueue(t, false)

	_, err := q.Send(&SendMessageInput{MessageBody: "m"}, "acct")
	require.NoError(t, err)

	require.NoError(t, q.Purge())
	assert.Zero(t, q.PendingCount())
	assert.Error(t, q.Purge())

	q.lastPurge = time.Now().Add(-2 * time.Minute)
	assert.NoError(t, q.Purge())
}

func TestAttributeView(t *testing.T) {
	q := newTestQueue(t, false)

	_, err := q.Send(&SendMessageInput{MessageBody: "visible"}, "acct")
	require.NoError(t, err)
	_, err = q.Send(&SendMessageInput{MessageBody: "delayed", DelaySeconds: int32Ptr(900)}, "acct")
	require.NoError(t, err)

	all := q.AttributeView(nil)
	assert.Equal(t, q.ARN, all["QueueArn"])
	assert.Equal(t, "1", all["ApproximateNumberOfMessages"])
	assert.Equal(t, "1", all["ApproximateNumberOfMessagesDelayed"])
	assert.Equal(t, "0", all["ApproximateNumberOfMessagesNotVisible"])

	filtered := q.AttributeView([]string{"QueueArn"})
	assert.Len(t, filtered, 1)
	assert.Equal(t, q.ARN, filtered["QueueArn"])
}

func TestFifoFlagImmutable(t *testing.T) {
	q := newTestQueue(t, false)
	err := q.SetAttributes(map[string]string{"FifoQueue": "true"})
	assert.Error(t, err)
}

func TestSetAttributesValidatesRanges(t *testing.T) {
	q := newTestQueue(t, false)

	assert.Error(t, q.SetAttributes(map[string]string{"VisibilityTimeout": "43201"}))
	assert.Error(t, q.SetAttributes(map[string]string{"MessageRetentionPeriod": "59"}))
	assert.Error(t, q.SetAttributes(map[string]string{"DelaySeconds": "901"}))
	assert.Error(t, q.SetAttributes(map[string]string{"Bogus": "1"}))
	assert.NoError(t, q.SetAttributes(map[string]string{"VisibilityTimeout": "60"}))
	assert.Equal(t, 60, q.Attributes.VisibilityTimeout)
}

func TestRedrivePolicyParsing(t *testing.T) {
	rp, err := parseRedrivePolicy(`{"deadLetterTargetArn":"arn:aws:sqs:us-east-1:0:dlq","maxReceiveCount":3}`)
	require.NoError(t, err)
	assert.Equal(t, 3, rp.MaxReceiveCount)

	// maxReceiveCount may arrive as a string.
	rp, err = parseRedrivePolicy(`{"deadLetterTargetArn":"arn:aws:sqs:us-east-1:0:dlq","maxReceiveCount":"5"}`)
	require.NoError(t, err)
	assert.Equal(t, 5, rp.MaxReceiveCount)

	_, err = parseRedrivePolicy(`{"maxReceiveCount":1}`)
	assert.Error(t, err)
	_, err = parseRedrivePolicy(`{"deadLetterTargetArn":"arn","maxReceiveCount":0}`)
	assert.Error(t, err)
}
