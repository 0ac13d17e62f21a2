package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQSQueueLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created, err := e.SQS.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String("orders"),
		Tags:      map[string]string{"team": "platform"},
	})
	require.NoError(t, err)
	require.NotNil(t, created.QueueUrl)

	urlOut, err := e.SQS.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String("orders")})
	require.NoError(t, err)
	assert.Equal(t, *created.QueueUrl, *urlOut.QueueUrl)

	tags, err := e.SQS.ListQueueTags(ctx, &sqs.ListQueueTagsInput{QueueUrl: created.QueueUrl})
	require.NoError(t, err)
	assert.Equal(t, "platform", tags.Tags["team"])

	list, err := e.SQS.ListQueues(ctx, &sqs.ListQueuesInput{})
	require.NoError(t, err)
	assert.Len(t, list.QueueUrls, 1)

	_, err = e.SQS.DeleteQueue(ctx, &sqs.DeleteQueueInput{QueueUrl: created.QueueUrl})
	require.NoError(t, err)

	_, err = e.SQS.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String("orders")})
	assert.Error(t, err)
}

func TestSQSSendReceiveDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created, err := e.SQS.CreateQueue(ctx, &sqs.CreateQueueInput{QueueName: aws.String("work")})
	require.NoError(t, err)

	sent, err := e.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    created.QueueUrl,
		MessageBody: aws.String("hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", *sent.MD5OfMessageBody)

	received, err := e.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:                    created.QueueUrl,
		MaxNumberOfMessages:         1,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{"All"},
	})
	require.NoError(t, err)
	require.Len(t, received.Messages, 1)
	assert.Equal(t, "hello", *received.Messages[0].Body)
	assert.Equal(t, "1", received.Messages[0].Attributes["ApproximateReceiveCount"])

	_, err = e.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      created.QueueUrl,
		ReceiptHandle: received.Messages[0].ReceiptHandle,
	})
	require.NoError(t, err)

	empty, err := e.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{QueueUrl: created.QueueUrl})
	require.NoError(t, err)
	assert.Empty(t, empty.Messages)
}

func TestSQSFifoGroupLocking(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created, err := e.SQS.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName:  aws.String("q.fifo"),
		Attributes: map[string]string{"FifoQueue": "true"},
	})
	require.NoError(t, err)

	_, err = e.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               created.QueueUrl,
		MessageBody:            aws.String("a"),
		MessageGroupId:         aws.String("g1"),
		MessageDeduplicationId: aws.String("d1"),
	})
	require.NoError(t, err)

	first, err := e.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            created.QueueUrl,
		MaxNumberOfMessages: 1,
	})
	require.NoError(t, err)
	require.Len(t, first.Messages, 1)
	assert.Equal(t, "a", *first.Messages[0].Body)

	// The group stays locked until the in-flight message is deleted.
	locked, err := e.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            created.QueueUrl,
		MaxNumberOfMessages: 1,
	})
	require.NoError(t, err)
	assert.Empty(t, locked.Messages)

	_, err = e.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      created.QueueUrl,
		ReceiptHandle: first.Messages[0].ReceiptHandle,
	})
	require.NoError(t, err)

	_, err = e.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               created.QueueUrl,
		MessageBody:            aws.String("b"),
		MessageGroupId:         aws.String("g1"),
		MessageDeduplicationId: aws.String("d2"),
	})
	require.NoError(t, err)

	second, err := e.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            created.QueueUrl,
		MaxNumberOfMessages: 1,
	})
	require.NoError(t, err)
	require.Len(t, second.Messages, 1)
	assert.Equal(t, "b", *second.Messages[0].Body)
}

func TestSQSFifoDeduplication(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created, err := e.SQS.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName:  aws.String("dedup.fifo"),
		Attributes: map[string]string{"FifoQueue": "true"},
	})
	require.NoError(t, err)

	send := &sqs.SendMessageInput{
		QueueUrl:               created.QueueUrl,
		MessageBody:            aws.String("payload"),
		MessageGroupId:         aws.String("g"),
		MessageDeduplicationId: aws.String("dedup-1"),
	}
	first, err := e.SQS.SendMessage(ctx, send)
	require.NoError(t, err)
	second, err := e.SQS.SendMessage(ctx, send)
	require.NoError(t, err)
	assert.Equal(t, *first.MessageId, *second.MessageId)

	attrs, err := e.SQS.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       created.QueueUrl,
		AttributeNames: []types.QueueAttributeName{"ApproximateNumberOfMessages"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1", attrs.Attributes["ApproximateNumberOfMessages"])
}

func TestSQSLongPolling(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created, err := e.SQS.CreateQueue(ctx, &sqs.CreateQueueInput{QueueName: aws.String("poll")})
	require.NoError(t, err)

	go func() {
		time.Sleep(500 * time.Millisecond)
		_, err := e.SQS.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    created.QueueUrl,
			MessageBody: aws.String("x"),
		})
		if err != nil {
			t.Error(err)
		}
	}()

	start := time.Now()
	received, err := e.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:        created.QueueUrl,
		WaitTimeSeconds: 2,
	})
	require.NoError(t, err)
	require.Len(t, received.Messages, 1)
	assert.Equal(t, "x", *received.Messages[0].Body)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSQSBatchOperations(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created, err := e.SQS.CreateQueue(ctx, &sqs.CreateQueueInput{QueueName: aws.String("batch")})
	require.NoError(t, err)

	sent, err := e.SQS.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
		QueueUrl: created.QueueUrl,
		Entries: []types.SendMessageBatchRequestEntry{
			{Id: aws.String("one"), MessageBody: aws.String("m1")},
			{Id: aws.String("two"), MessageBody: aws.String("m2")},
		},
	})
	require.NoError(t, err)
	assert.Len(t, sent.Successful, 2)
	assert.Empty(t, sent.Failed)

	received, err := e.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            created.QueueUrl,
		MaxNumberOfMessages: 10,
	})
	require.NoError(t, err)
	require.Len(t, received.Messages, 2)

	var deletes []types.DeleteMessageBatchRequestEntry
	for i, msg := range received.Messages {
		deletes = append(deletes, types.DeleteMessageBatchRequestEntry{
			Id:            aws.String(string(rune('a' + i))),
			ReceiptHandle: msg.ReceiptHandle,
		})
	}
	deleted, err := e.SQS.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
		QueueUrl: created.QueueUrl,
		Entries:  deletes,
	})
	require.NoError(t, err)
	assert.Len(t, deleted.Successful, 2)
}

func TestSQSChangeVisibilityRequeues(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created, err := e.SQS.CreateQueue(ctx, &sqs.CreateQueueInput{QueueName: aws.String("vis")})
	require.NoError(t, err)

	_, err = e.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    created.QueueUrl,
		MessageBody: aws.String("m"),
	})
	require.NoError(t, err)

	received, err := e.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{QueueUrl: created.QueueUrl})
	require.NoError(t, err)
	require.Len(t, received.Messages, 1)

	_, err = e.SQS.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          created.QueueUrl,
		ReceiptHandle:     received.Messages[0].ReceiptHandle,
		VisibilityTimeout: 0,
	})
	require.NoError(t, err)

	again, err := e.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{QueueUrl: created.QueueUrl})
	require.NoError(t, err)
	require.Len(t, again.Messages, 1)
	assert.Equal(t, *received.Messages[0].MessageId, *again.Messages[0].MessageId)
}
