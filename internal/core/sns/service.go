// Package sns implements the notification service: topics, subscriptions
// and publishing. Subscriptions whose protocol is sqs deliver published
// messages into the queue engine.
package sns

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/nimbuslocal/nimbus/internal/arn"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	"github.com/nimbuslocal/nimbus/internal/ident"
	sqscore "github.com/nimbuslocal/nimbus/internal/core/sqs"
	"github.com/rs/zerolog/log"
)

func errNotFound(msg string) *awserr.Error {
	return awserr.New("NotFound", http.StatusNotFound, msg)
}

func errInvalidParameter(msg string) *awserr.Error {
	return awserr.New("InvalidParameter", http.StatusBadRequest, msg)
}

type Topic struct {
	ARN                       string
	Name                      string
	DisplayName               string
	FifoTopic                 bool
	ContentBasedDeduplication bool
	Policy                    string
	Tags                      map[string]string
}

type Subscription struct {
	ARN         string
	TopicArn    string
	Protocol    string
	Endpoint    string
	Owner       string
	RawDelivery bool
	Confirmed   bool
}

type PublishBatchEntry struct {
	Id                     string
	Message                string
	Subject                string
	MessageGroupId         string
	MessageDeduplicationId string
}

type BatchResultEntry struct {
	Id             string
	MessageId      string
	SequenceNumber string
}

type BatchErrorEntry struct {
	Id          string
	Code        string
	Message     string
	SenderFault bool
}

// Service is the topic registry guarded by one exclusive lock.
type Service struct {
	mu              sync.Mutex
	topics          map[string]*Topic
	subscriptions   map[string]*Subscription
	sequenceCounter uint64

	accountID string
	region    string
	queues    *sqscore.Registry
}

func New(accountID, region string, queues *sqscore.Registry) *Service {
	return &Service{
		topics:        make(map[string]*Topic),
		subscriptions: make(map[string]*Subscription),
		accountID:     accountID,
		region:        region,
		queues:        queues,
	}
}

// CreateTopic is idempotent by name.
func (s *Service) CreateTopic(name string, attributes, tags map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return "", errInvalidParameter("Topic name is required")
	}
	topicARN := arn.New("sns", s.region, s.accountID, name)
	if existing, ok := s.topics[topicARN]; ok {
		return existing.ARN, nil
	}

	topic := &Topic{
		ARN:       topicARN,
		Name:      name,
		FifoTopic: strings.HasSuffix(name, ".fifo"),
		Tags:      make(map[string]string),
	}
	if attributes["FifoTopic"] == "true" {
		topic.FifoTopic = true
	}
	topic.ContentBasedDeduplication = attributes["ContentBasedDeduplication"] == "true"
	topic.DisplayName = attributes["DisplayName"]
	topic.Policy = attributes["Policy"]
	for k, v := range tags {
		topic.Tags[k] = v
	}

	s.topics[topicARN] = topic
	return topicARN, nil
}

func (s *Service) DeleteTopic(topicARN string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.topics, topicARN)
	for subARN, sub := range s.subscriptions {
		if sub.TopicArn == topicARN {
			delete(s.subscriptions, subARN)
		}
	}
	return nil
}

func (s *Service) ListTopics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	arns := make([]string, 0, len(s.topics))
	for topicARN := range s.topics {
		arns = append(arns, topicARN)
	}
	sort.Strings(arns)
	return arns
}

func (s *Service) GetTopicAttributes(topicARN string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	topic, ok := s.topics[topicARN]
	if !ok {
		return nil, errNotFound("Topic does not exist")
	}

	count := 0
	for _, sub := range s.subscriptions {
		if sub.TopicArn == topicARN && sub.Confirmed {
			count++
		}
	}

	attrs := map[string]string{
		"TopicArn":                  topic.ARN,
		"DisplayName":               topic.DisplayName,
		"Owner":                     s.accountID,
		"SubscriptionsConfirmed":    fmt.Sprintf("%d", count),
		"SubscriptionsPending":      "0",
		"SubscriptionsDeleted":      "0",
		"FifoTopic":                 fmt.Sprintf("%t", topic.FifoTopic),
		"ContentBasedDeduplication": fmt.Sprintf("%t", topic.ContentBasedDeduplication),
	}
	if topic.Policy != "" {
		attrs["Policy"] = topic.Policy
	}
	return attrs, nil
}

func (s *Service) SetTopicAttributes(topicARN, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	topic, ok := s.topics[topicARN]
	if !ok {
		return errNotFound("Topic does not exist")
	}
	switch name {
	case "DisplayName":
		topic.DisplayName = value
	case "Policy":
		topic.Policy = value
	case "ContentBasedDeduplication":
		topic.ContentBasedDeduplication = value == "true"
	default:
		return errInvalidParameter(fmt.Sprintf("Unsupported attribute: %s", name))
	}
	return nil
}

func (s *Service) Subscribe(topicARN, protocol, endpoint string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.topics[topicARN]; !ok {
		return "", errNotFound("Topic does not exist")
	}
	if protocol == "" {
		return "", errInvalidParameter("Protocol is required")
	}

	subARN := fmt.Sprintf("%s:%s", topicARN, ident.New())
	s.subscriptions[subARN] = &Subscription{
		ARN:       subARN,
		TopicArn:  topicARN,
		Protocol:  protocol,
		Endpoint:  endpoint,
		Owner:     s.accountID,
		Confirmed: true,
	}
	return subARN, nil
}

func (s *Service) Unsubscribe(subscriptionARN string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, subscriptionARN)
	return nil
}

// ConfirmSubscription marks a pending subscription confirmed. The emulator
// auto-confirms, so this resolves to the existing ARN.
func (s *Service) ConfirmSubscription(topicARN, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subscriptions {
		if sub.TopicArn == topicARN {
			sub.Confirmed = true
			return sub.ARN, nil
		}
	}
	return "", errNotFound("Subscription does not exist")
}

func (s *Service) ListSubscriptions() []*Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedSubscriptions("")
}

func (s *Service) ListSubscriptionsByTopic(topicARN string) ([]*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.topics[topicARN]; !ok {
		return nil, errNotFound("Topic does not exist")
	}
	return s.sortedSubscriptions(topicARN), nil
}

func (s *Service) sortedSubscriptions(topicARN string) []*Subscription {
	var subs []*Subscription
	for _, sub := range s.subscriptions {
		if topicARN == "" || sub.TopicArn == topicARN {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ARN < subs[j].ARN })
	return subs
}

func (s *Service) GetSubscriptionAttributes(subscriptionARN string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subscriptionARN]
	if !ok {
		return nil, errNotFound("Subscription does not exist")
	}
	return map[string]string{
		"SubscriptionArn":              sub.ARN,
		"TopicArn":                     sub.TopicArn,
		"Protocol":                     sub.Protocol,
		"Endpoint":                     sub.Endpoint,
		"Owner":                        sub.Owner,
		"RawMessageDelivery":           fmt.Sprintf("%t", sub.RawDelivery),
		"ConfirmationWasAuthenticated": "true",
	}, nil
}

func (s *Service) SetSubscriptionAttributes(subscriptionARN, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subscriptionARN]
	if !ok {
		return errNotFound("Subscription does not exist")
	}
	if name == "RawMessageDelivery" {
		sub.RawDelivery = value == "true"
		return nil
	}
	return errInvalidParameter(fmt.Sprintf("Unsupported attribute: %s", name))
}

// Publish validates the message, mints a message id (and sequence number
// for FIFO topics) and forwards to sqs subscribers.
func (s *Service) Publish(topicARN, message, subject, groupID, dedupID string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	topic, ok := s.topics[topicARN]
	if !ok {
		return "", "", errNotFound("Topic does not exist")
	}
	if message == "" {
		return "", "", errInvalidParameter("Message must not be empty")
	}
	if len(message) > 262144 {
		return "", "", errInvalidParameter("Message must be shorter than 262144 bytes")
	}
	if topic.FifoTopic && groupID == "" {
		return "", "", errInvalidParameter("MessageGroupId is required for FIFO topics")
	}

	messageID := ident.New()
	var sequenceNumber string
	if topic.FifoTopic {
		s.sequenceCounter++
		sequenceNumber = ident.SequenceNumber(s.sequenceCounter)
	}

	s.deliver(topic, messageID, message, subject, groupID, dedupID)
	return messageID, sequenceNumber, nil
}

func (s *Service) PublishBatch(topicARN string, entries []PublishBatchEntry) ([]BatchResultEntry, []BatchErrorEntry, error) {
	s.mu.Lock()
	topic, ok := s.topics[topicARN]
	s.mu.Unlock()
	if !ok {
		return nil, nil, errNotFound("Topic does not exist")
	}
	if len(entries) == 0 {
		return nil, nil, errInvalidParameter("Batch must contain at least one entry")
	}
	if len(entries) > 10 {
		return nil, nil, errInvalidParameter("Batch must contain at most 10 entries")
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Id]; dup {
			return nil, nil, errInvalidParameter("Batch entry IDs must be distinct")
		}
		seen[e.Id] = struct{}{}
	}

	var successful []BatchResultEntry
	var failed []BatchErrorEntry
	for _, e := range entries {
		messageID, seq, err := s.Publish(topic.ARN, e.Message, e.Subject, e.MessageGroupId, e.MessageDeduplicationId)
		if err != nil {
			code := "InvalidParameter"
			if ae, ok := err.(*awserr.Error); ok {
				code = ae.Code
			}
			failed = append(failed, BatchErrorEntry{Id: e.Id, Code: code, Message: err.Error(), SenderFault: true})
			continue
		}
		successful = append(successful, BatchResultEntry{Id: e.Id, MessageId: messageID, SequenceNumber: seq})
	}
	return successful, failed, nil
}

// deliver forwards a published message to every confirmed sqs
// subscription, wrapping it in the notification envelope unless raw
// delivery is enabled. Called with the service lock held; queue sends go
// through the queue registry's own lock.
func (s *Service) deliver(topic *Topic, messageID, message, subject, groupID, dedupID string) {
	if s.queues == nil {
		return
	}
	for _, sub := range s.subscriptions {
		if sub.TopicArn != topic.ARN || sub.Protocol != "sqs" || !sub.Confirmed {
			continue
		}

		body := message
		if !sub.RawDelivery {
			envelope := map[string]string{
				"Type":      "Notification",
				"MessageId": messageID,
				"TopicArn":  topic.ARN,
				"Message":   message,
				"Timestamp": fmt.Sprintf("%d", ident.NowMillis()),
			}
			if subject != "" {
				envelope["Subject"] = subject
			}
			encoded, _ := json.Marshal(envelope)
			body = string(encoded)
		}

		queueName := arn.Resource(sub.Endpoint)
		urlOut, err := s.queues.GetQueueUrl(&sqscore.GetQueueUrlInput{QueueName: queueName})
		if err != nil {
			log.Debug().Str("endpoint", sub.Endpoint).Msg("Subscribed queue missing, dropping notification")
			continue
		}
		_, err = s.queues.SendMessage(&sqscore.SendMessageInput{
			QueueUrl:               urlOut.QueueUrl,
			MessageBody:            body,
			MessageGroupId:         groupID,
			MessageDeduplicationId: dedupID,
		})
		if err != nil {
			log.Debug().Err(err).Str("endpoint", sub.Endpoint).Msg("Failed to deliver notification")
		}
	}
}

// Tagging.

func (s *Service) TagResource(resourceARN string, tags map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	topic, ok := s.topics[resourceARN]
	if !ok {
		return errNotFound("Resource does not exist")
	}
	for k, v := range tags {
		topic.Tags[k] = v
	}
	return nil
}

func (s *Service) UntagResource(resourceARN string, tagKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	topic, ok := s.topics[resourceARN]
	if !ok {
		return errNotFound("Resource does not exist")
	}
	for _, k := range tagKeys {
		delete(topic.Tags, k)
	}
	return nil
}

func (s *Service) ListTagsForResource(resourceARN string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	topic, ok := s.topics[resourceARN]
	if !ok {
		return nil, errNotFound("Resource does not exist")
	}
	tags := make(map[string]string, len(topic.Tags))
	for k, v := range topic.Tags {
		tags[k] = v
	}
	return tags, nil
}
