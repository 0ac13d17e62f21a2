package sqs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nimbuslocal/nimbus/internal/arn"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	"github.com/nimbuslocal/nimbus/internal/worker"
	"github.com/rs/zerolog/log"
)

type queueEntry struct {
	queue  *Queue
	notify *notifier
}

// Registry is the queue service: the collection of queues plus the
// background move tasks, all guarded by one exclusive lock. The lock is
// released only for the bounded long-poll wait and between move-task ticks.
type Registry struct {
	mu        sync.Mutex
	queues    map[string]*queueEntry
	moveTasks []*moveTask

	accountID string
	region    string
	baseURL   string
	pool      *worker.Pool
}

func NewRegistry(accountID, region, baseURL string, pool *worker.Pool) *Registry {
	return &Registry{
		queues:    make(map[string]*queueEntry),
		accountID: accountID,
		region:    region,
		baseURL:   baseURL,
		pool:      pool,
	}
}

// SetBaseURL rebases the URLs handed out for queues. Used by tests that
// bind an ephemeral listener.
func (r *Registry) SetBaseURL(baseURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.baseURL = baseURL
}

func queueNameFromURL(queueURL string) (string, error) {
	parts := strings.Split(queueURL, "/")
	name := parts[len(parts)-1]
	if name == "" {
		return "", errQueueDoesNotExist("Invalid queue URL")
	}
	return name, nil
}

func validateQueueName(name string, isFifo bool) error {
	if name == "" || len(name) > 80 {
		return errInvalidParameterValue("Queue name must be 1-80 characters")
	}
	base := name
	if isFifo {
		base = strings.TrimSuffix(name, ".fifo")
	}
	for _, c := range base {
		if !isAlnum(c) && c != '-' && c != '_' && c != '.' {
			return errInvalidParameterValue(
				"Queue name can only contain alphanumeric characters, hyphens, and underscores")
		}
	}
	if isFifo && !strings.HasSuffix(name, ".fifo") {
		return errInvalidParameterValue("FIFO queue name must end with .fifo")
	}
	if !isFifo && strings.HasSuffix(name, ".fifo") {
		return errInvalidParameterValue("Non-FIFO queue name must not end with .fifo")
	}
	return nil
}

func isAlnum(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func validateBatchIDs(ids []string) error {
	if len(ids) == 0 {
		return errEmptyBatchRequest("Batch request must contain at least one entry")
	}
	if len(ids) > 10 {
		return errTooManyEntriesInBatchRequest("Batch request must contain at most 10 entries")
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		for _, c := range id {
			if !isAlnum(c) && c != '-' && c != '_' {
				return errInvalidBatchEntryId(fmt.Sprintf("Invalid batch entry Id: %s", id))
			}
		}
		if _, dup := seen[id]; dup {
			return errBatchEntryIdsNotDistinct("Batch entry IDs must be distinct")
		}
		seen[id] = struct{}{}
	}
	return nil
}

// handleDLQRedrives appends each redriven message to its dead-letter queue.
// A missing DLQ drops the message, matching provider behavior after the
// DLQ is deleted.
func (r *Registry) handleDLQRedrives(redrives []DLQRedrive) {
	for _, redrive := range redrives {
		dlqName := arn.Resource(redrive.DLQArn)
		entry, ok := r.queues[dlqName]
		if !ok {
			log.Debug().Str("dlq_arn", redrive.DLQArn).Msg("Dead-letter queue missing, dropping message")
			continue
		}
		entry.queue.appendPending(redrive.Message)
		entry.notify.Notify()
	}
}

func (r *Registry) lookup(queueURL string) (*queueEntry, error) {
	name, err := queueNameFromURL(queueURL)
	if err != nil {
		return nil, err
	}
	entry, ok := r.queues[name]
	if !ok {
		return nil, errQueueDoesNotExist("The specified queue does not exist.")
	}
	return entry, nil
}

// CreateQueue is idempotent when the supplied attributes all match the
// existing queue's current values.
func (r *Registry) CreateQueue(in *CreateQueueInput) (*CreateQueueOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	isFifo := in.Attributes["FifoQueue"] == "true"

	if err := validateQueueName(in.QueueName, isFifo); err != nil {
		return nil, err
	}

	if entry, ok := r.queues[in.QueueName]; ok {
		existing := entry.queue.Attributes.Map()
		for key, value := range in.Attributes {
			if current, ok := existing[key]; ok && current != value {
				return nil, errQueueAlreadyExists(fmt.Sprintf(
					"A queue named %s already exists with different attributes", in.QueueName))
			}
		}
		return &CreateQueueOutput{QueueUrl: entry.queue.URL}, nil
	}

	url := fmt.Sprintf("%s/%s/%s", r.baseURL, r.accountID, in.QueueName)
	queueARN := arn.New("sqs", r.region, r.accountID, in.QueueName)

	attributes := defaultQueueAttributes()
	attributes.FifoQueue = isFifo
	if len(in.Attributes) > 0 {
		// FifoQueue is consumed above; it is not a mutable attribute.
		attrs := make(map[string]string, len(in.Attributes))
		for k, v := range in.Attributes {
			if k != "FifoQueue" {
				attrs[k] = v
			}
		}
		if err := attributes.Apply(attrs); err != nil {
			return nil, err
		}
	}

	queue := NewQueue(in.QueueName, queueARN, url, attributes)
	for k, v := range in.Tags {
		queue.Tags[k] = v
	}

	r.queues[in.QueueName] = &queueEntry{queue: queue, notify: newNotifier()}
	return &CreateQueueOutput{QueueUrl: url}, nil
}

func (r *Registry) DeleteQueue(in *DeleteQueueInput) error {
	name, err := queueNameFromURL(in.QueueUrl)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queues, name)
	return nil
}

func (r *Registry) GetQueueUrl(in *GetQueueUrlInput) (*GetQueueUrlOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.queues[in.QueueName]
	if !ok {
		return nil, errQueueDoesNotExist("The specified queue does not exist.")
	}
	return &GetQueueUrlOutput{QueueUrl: entry.queue.URL}, nil
}

func (r *Registry) ListQueues(in *ListQueuesInput) (*ListQueuesOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	max := 1000
	if in.MaxResults != nil && int(*in.MaxResults) < max {
		max = int(*in.MaxResults)
	}

	names := make([]string, 0, len(r.queues))
	for name := range r.queues {
		if in.QueueNamePrefix == "" || strings.HasPrefix(name, in.QueueNamePrefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	start := 0
	if in.NextToken != "" {
		start = len(names)
		for i, n := range names {
			if n > in.NextToken {
				start = i
				break
			}
		}
	}

	urls := make([]string, 0, max)
	for _, name := range names[start:] {
		if len(urls) >= max {
			break
		}
		urls = append(urls, r.queues[name].queue.URL)
	}

	out := &ListQueuesOutput{QueueUrls: urls}
	if max > 0 && start+max < len(names) {
		out.NextToken = names[start+max-1]
	}
	return out, nil
}

func (r *Registry) GetQueueAttributes(in *GetQueueAttributesInput) (*GetQueueAttributesOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.lookup(in.QueueUrl)
	if err != nil {
		return nil, err
	}
	return &GetQueueAttributesOutput{Attributes: entry.queue.AttributeView(in.AttributeNames)}, nil
}

func (r *Registry) SetQueueAttributes(in *SetQueueAttributesInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.lookup(in.QueueUrl)
	if err != nil {
		return err
	}
	return entry.queue.SetAttributes(in.Attributes)
}

func (r *Registry) PurgeQueue(in *PurgeQueueInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.lookup(in.QueueUrl)
	if err != nil {
		return err
	}
	return entry.queue.Purge()
}

func (r *Registry) SendMessage(in *SendMessageInput) (*SendMessageOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.lookup(in.QueueUrl)
	if err != nil {
		return nil, err
	}
	out, err := entry.queue.Send(in, r.accountID)
	if err != nil {
		return nil, err
	}
	entry.notify.Notify()
	return out, nil
}

func (r *Registry) SendMessageBatch(in *SendMessageBatchInput) (*SendMessageBatchOutput, error) {
	ids := make([]string, len(in.Entries))
	for i, e := range in.Entries {
		ids[i] = e.Id
	}
	if err := validateBatchIDs(ids); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.lookup(in.QueueUrl)
	if err != nil {
		return nil, err
	}

	out := &SendMessageBatchOutput{
		Successful: []SendMessageBatchResultEntry{},
		Failed:     []BatchResultErrorEntry{},
	}
	anySuccess := false
	for _, e := range in.Entries {
		send := &SendMessageInput{
			MessageBody:             e.MessageBody,
			DelaySeconds:            e.DelaySeconds,
			MessageAttributes:       e.MessageAttributes,
			MessageSystemAttributes: e.MessageSystemAttributes,
			MessageDeduplicationId:  e.MessageDeduplicationId,
			MessageGroupId:          e.MessageGroupId,
		}
		resp, err := entry.queue.Send(send, r.accountID)
		if err != nil {
			out.Failed = append(out.Failed, batchError(e.Id, err))
			continue
		}
		anySuccess = true
		out.Successful = append(out.Successful, SendMessageBatchResultEntry{
			Id:                           e.Id,
			MessageId:                    resp.MessageId,
			MD5OfMessageBody:             resp.MD5OfMessageBody,
			MD5OfMessageAttributes:       resp.MD5OfMessageAttributes,
			MD5OfMessageSystemAttributes: resp.MD5OfMessageSystemAttributes,
			SequenceNumber:               resp.SequenceNumber,
		})
	}
	if anySuccess {
		entry.notify.Notify()
	}
	return out, nil
}

// ReceiveMessage sweeps expired in-flight messages, attempts a receive, and
// on an empty result long-polls: the lock is released, the queue's notifier
// awaited for at most the effective wait time, and the receive retried once.
func (r *Registry) ReceiveMessage(ctx context.Context, in *ReceiveMessageInput) (*ReceiveMessageOutput, error) {
	maxCount := 1
	if in.MaxNumberOfMessages != nil {
		maxCount = int(*in.MaxNumberOfMessages)
		if maxCount < 1 {
			maxCount = 1
		}
		if maxCount > 10 {
			maxCount = 10
		}
	}

	r.mu.Lock()
	entry, err := r.lookup(in.QueueUrl)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	r.handleDLQRedrives(entry.queue.ReturnExpiredInflight())

	results, err := entry.queue.Receive(maxCount, in.VisibilityTimeout, r.accountID)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if len(results) > 0 {
		r.mu.Unlock()
		return &ReceiveMessageOutput{Messages: filterReceived(results, in)}, nil
	}

	waitTime := entry.queue.Attributes.ReceiveMessageWaitTimeSeconds
	if in.WaitTimeSeconds != nil {
		waitTime = int(*in.WaitTimeSeconds)
	}
	notify := entry.notify
	r.mu.Unlock()

	if waitTime <= 0 {
		return &ReceiveMessageOutput{}, nil
	}

	notify.Wait(ctx, time.Duration(waitTime)*time.Second)

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err = r.lookup(in.QueueUrl)
	if err != nil {
		return nil, err
	}
	r.handleDLQRedrives(entry.queue.ReturnExpiredInflight())
	results, err = entry.queue.Receive(maxCount, in.VisibilityTimeout, r.accountID)
	if err != nil {
		return nil, err
	}
	return &ReceiveMessageOutput{Messages: filterReceived(results, in)}, nil
}

// filterReceived applies the caller's attribute-name filters. System
// attribute names may come through either AttributeNames or the newer
// MessageSystemAttributeNames field.
func filterReceived(results []ReceivedMessage, in *ReceiveMessageInput) []ReceivedMessage {
	sysNames := make([]string, 0, len(in.AttributeNames)+len(in.MessageSystemAttributeNames))
	sysNames = append(sysNames, in.AttributeNames...)
	sysNames = append(sysNames, in.MessageSystemAttributeNames...)

	filtered := make([]ReceivedMessage, 0, len(results))
	for _, msg := range results {
		if len(sysNames) == 0 {
			msg.Attributes = nil
		} else if !contains(sysNames, "All") {
			attrs := make(map[string]string)
			for k, v := range msg.Attributes {
				if contains(sysNames, k) {
					attrs[k] = v
				}
			}
			if len(attrs) == 0 {
				attrs = nil
			}
			msg.Attributes = attrs
		}

		if len(in.MessageAttributeNames) == 0 {
			msg.MessageAttributes = nil
			msg.MD5OfMessageAttributes = ""
		} else if !contains(in.MessageAttributeNames, "All") {
			attrs := make(map[string]MessageAttributeValue)
			for k, v := range msg.MessageAttributes {
				for _, n := range in.MessageAttributeNames {
					if n == k || (strings.HasSuffix(n, ".*") && strings.HasPrefix(k, n[:len(n)-2])) {
						attrs[k] = v
						break
					}
				}
			}
			if len(attrs) == 0 {
				attrs = nil
			}
			msg.MessageAttributes = attrs
		}

		filtered = append(filtered, msg)
	}
	return filtered
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r *Registry) DeleteMessage(in *DeleteMessageInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.lookup(in.QueueUrl)
	if err != nil {
		return err
	}
	entry.queue.Delete(in.ReceiptHandle)
	return nil
}

func (r *Registry) DeleteMessageBatch(in *DeleteMessageBatchInput) (*DeleteMessageBatchOutput, error) {
	ids := make([]string, len(in.Entries))
	for i, e := range in.Entries {
		ids[i] = e.Id
	}
	if err := validateBatchIDs(ids); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.lookup(in.QueueUrl)
	if err != nil {
		return nil, err
	}

	out := &DeleteMessageBatchOutput{
		Successful: []DeleteMessageBatchResultEntry{},
		Failed:     []BatchResultErrorEntry{},
	}
	for _, e := range in.Entries {
		entry.queue.Delete(e.ReceiptHandle)
		out.Successful = append(out.Successful, DeleteMessageBatchResultEntry{Id: e.Id})
	}
	return out, nil
}

func (r *Registry) ChangeMessageVisibility(in *ChangeMessageVisibilityInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.lookup(in.QueueUrl)
	if err != nil {
		return err
	}
	return entry.queue.ChangeVisibility(in.ReceiptHandle, int(in.VisibilityTimeout))
}

func (r *Registry) ChangeMessageVisibilityBatch(in *ChangeMessageVisibilityBatchInput) (*ChangeMessageVisibilityBatchOutput, error) {
	ids := make([]string, len(in.Entries))
	for i, e := range in.Entries {
		ids[i] = e.Id
	}
	if err := validateBatchIDs(ids); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.lookup(in.QueueUrl)
	if err != nil {
		return nil, err
	}

	out := &ChangeMessageVisibilityBatchOutput{
		Successful: []ChangeMessageVisibilityBatchResultEntry{},
		Failed:     []BatchResultErrorEntry{},
	}
	for _, e := range in.Entries {
		if err := entry.queue.ChangeVisibility(e.ReceiptHandle, int(e.VisibilityTimeout)); err != nil {
			out.Failed = append(out.Failed, batchError(e.Id, err))
			continue
		}
		out.Successful = append(out.Successful, ChangeMessageVisibilityBatchResultEntry{Id: e.Id})
	}
	return out, nil
}

func (r *Registry) TagQueue(in *TagQueueInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.lookup(in.QueueUrl)
	if err != nil {
		return err
	}
	for k, v := range in.Tags {
		entry.queue.Tags[k] = v
	}
	if len(entry.queue.Tags) > 50 {
		return errInvalidParameterValue("Maximum 50 tags per queue")
	}
	return nil
}

func (r *Registry) UntagQueue(in *UntagQueueInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.lookup(in.QueueUrl)
	if err != nil {
		return err
	}
	for _, key := range in.TagKeys {
		delete(entry.queue.Tags, key)
	}
	return nil
}

func (r *Registry) ListQueueTags(in *ListQueueTagsInput) (*ListQueueTagsOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.lookup(in.QueueUrl)
	if err != nil {
		return nil, err
	}
	out := &ListQueueTagsOutput{}
	if len(entry.queue.Tags) > 0 {
		out.Tags = make(map[string]string, len(entry.queue.Tags))
		for k, v := range entry.queue.Tags {
			out.Tags[k] = v
		}
	}
	return out, nil
}

func (r *Registry) AddPermission(in *AddPermissionInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.lookup(in.QueueUrl)
	if err != nil {
		return err
	}
	if _, exists := entry.queue.Permissions[in.Label]; exists {
		return errInvalidParameterValue(fmt.Sprintf("Permission label %s already exists", in.Label))
	}
	if len(entry.queue.Permissions) >= 7 {
		return errOverLimit("Maximum 7 permission statements per queue")
	}
	entry.queue.Permissions[in.Label] = Permission{
		Label:         in.Label,
		AWSAccountIDs: in.AWSAccountIds,
		Actions:       in.Actions,
	}
	return nil
}

func (r *Registry) RemovePermission(in *RemovePermissionInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.lookup(in.QueueUrl)
	if err != nil {
		return err
	}
	if _, ok := entry.queue.Permissions[in.Label]; !ok {
		return errInvalidParameterValue(fmt.Sprintf("Permission label %s not found", in.Label))
	}
	delete(entry.queue.Permissions, in.Label)
	return nil
}

// ListDeadLetterSourceQueues returns the URLs of all queues whose redrive
// policy targets this queue, lexicographic, paged with a URL cursor.
func (r *Registry) ListDeadLetterSourceQueues(in *ListDeadLetterSourceQueuesInput) (*ListDeadLetterSourceQueuesOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.lookup(in.QueueUrl)
	if err != nil {
		return nil, err
	}
	targetARN := entry.queue.ARN

	var sourceURLs []string
	for _, e := range r.queues {
		if rp := e.queue.Attributes.RedrivePolicy; rp != nil && rp.DeadLetterTargetArn == targetARN {
			sourceURLs = append(sourceURLs, e.queue.URL)
		}
	}
	sort.Strings(sourceURLs)

	max := 1000
	if in.MaxResults != nil && int(*in.MaxResults) < max {
		max = int(*in.MaxResults)
	}
	start := 0
	if in.NextToken != "" {
		start = len(sourceURLs)
		for i, u := range sourceURLs {
			if u > in.NextToken {
				start = i
				break
			}
		}
	}

	page := sourceURLs[start:]
	if len(page) > max {
		page = page[:max]
	}
	out := &ListDeadLetterSourceQueuesOutput{QueueUrls: page}
	if max > 0 && start+max < len(sourceURLs) {
		out.NextToken = sourceURLs[start+max-1]
	}
	return out, nil
}

func batchError(id string, err error) BatchResultErrorEntry {
	code := "InternalError"
	message := err.Error()
	var ae *awserr.Error
	if errors.As(err, &ae) {
		code = ae.Code
		message = ae.Message
	}
	return BatchResultErrorEntry{Id: id, Code: code, Message: message, SenderFault: true}
}
