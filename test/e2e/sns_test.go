package e2e

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSNSTopicLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created, err := e.SNS.CreateTopic(ctx, &sns.CreateTopicInput{Name: aws.String("alerts")})
	require.NoError(t, err)
	require.NotNil(t, created.TopicArn)

	attrs, err := e.SNS.GetTopicAttributes(ctx, &sns.GetTopicAttributesInput{
		TopicArn: created.TopicArn,
	})
	require.NoError(t, err)
	assert.Equal(t, *created.TopicArn, attrs.Attributes["TopicArn"])

	list, err := e.SNS.ListTopics(ctx, &sns.ListTopicsInput{})
	require.NoError(t, err)
	require.Len(t, list.Topics, 1)

	_, err = e.SNS.DeleteTopic(ctx, &sns.DeleteTopicInput{TopicArn: created.TopicArn})
	require.NoError(t, err)

	list, err = e.SNS.ListTopics(ctx, &sns.ListTopicsInput{})
	require.NoError(t, err)
	assert.Empty(t, list.Topics)
}

func TestSNSPublishToSQSSubscription(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	topic, err := e.SNS.CreateTopic(ctx, &sns.CreateTopicInput{Name: aws.String("orders")})
	require.NoError(t, err)

	queue, err := e.SQS.CreateQueue(ctx, &sqs.CreateQueueInput{QueueName: aws.String("inbox")})
	require.NoError(t, err)

	subscribed, err := e.SNS.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn: topic.TopicArn,
		Protocol: aws.String("sqs"),
		Endpoint: aws.String("arn:aws:sqs:us-east-1:000000000000:inbox"),
	})
	require.NoError(t, err)
	require.NotNil(t, subscribed.SubscriptionArn)

	published, err := e.SNS.Publish(ctx, &sns.PublishInput{
		TopicArn: topic.TopicArn,
		Message:  aws.String("order placed"),
		Subject:  aws.String("orders"),
	})
	require.NoError(t, err)
	require.NotNil(t, published.MessageId)

	received, err := e.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{QueueUrl: queue.QueueUrl})
	require.NoError(t, err)
	require.Len(t, received.Messages, 1)

	var envelope map[string]string
	require.NoError(t, json.Unmarshal([]byte(*received.Messages[0].Body), &envelope))
	assert.Equal(t, "Notification", envelope["Type"])
	assert.Equal(t, "order placed", envelope["Message"])
	assert.Equal(t, *published.MessageId, envelope["MessageId"])
}
