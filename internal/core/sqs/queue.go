package sqs

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/nimbuslocal/nimbus/internal/ident"
)

const dedupRetention = 5 * time.Minute

// Message is a single queue message together with its delivery state.
type Message struct {
	MessageID              string
	Body                   string
	MD5OfBody              string
	MessageAttributes      map[string]MessageAttributeValue
	MD5OfAttributes        string
	SystemAttributes       map[string]MessageAttributeValue
	MD5OfSystemAttributes  string
	SentTimestamp          int64
	VisibleAt              time.Time
	ReceiveCount           int
	FirstReceiveTimestamp  int64
	ReceiptHandle          string
	VisibilityDeadline     time.Time
	MessageGroupID         string
	DeduplicationID        string
	SequenceNumber         string
	SenderID               string

	// OriginArn records the queue a message was redriven out of, so a
	// move task without an explicit destination can return it home.
	OriginArn string
}

type Permission struct {
	Label         string
	AWSAccountIDs []string
	Actions       []string
}

type dedupEntry struct {
	response SendMessageOutput
	inserted time.Time
}

// DLQRedrive carries a message that exhausted its receive budget together
// with the ARN of the dead-letter queue it must move to.
type DLQRedrive struct {
	DLQArn  string
	Message *Message
}

// Queue is a single message queue: a pending sequence in insertion order
// plus an in-flight map keyed by receipt handle.
type Queue struct {
	Name       string
	ARN        string
	URL        string
	Attributes QueueAttributes

	pending  []*Message
	inflight map[string]*Message

	Tags        map[string]string
	Permissions map[string]Permission

	CreatedAt    int64
	LastModified int64
	lastPurge    time.Time

	dedupCache      map[string]dedupEntry
	sequenceCounter uint64
	lockedGroups    map[string]struct{}
}

func NewQueue(name, queueARN, url string, attributes QueueAttributes) *Queue {
	now := ident.NowSecs()
	return &Queue{
		Name:         name,
		ARN:          queueARN,
		URL:          url,
		Attributes:   attributes,
		inflight:     make(map[string]*Message),
		Tags:         make(map[string]string),
		Permissions:  make(map[string]Permission),
		CreatedAt:    now,
		LastModified: now,
		dedupCache:   make(map[string]dedupEntry),
		lockedGroups: make(map[string]struct{}),
	}
}

// computeAttributeMD5 implements the provider's attribute digest framing:
// names sorted lexicographically, each attribute encoded as
// len(name)|name|len(type)|type|transport-byte|len(value)|value with 4-byte
// big-endian length prefixes, then MD5 of the concatenation as lowercase
// hex. The transport byte is 1 for string/number values and 2 for binary;
// binary values contribute their decoded bytes.
func computeAttributeMD5(attrs map[string]MessageAttributeValue) string {
	if len(attrs) == 0 {
		return ""
	}
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf []byte
	appendLV := func(b []byte) {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(b)))
		buf = append(buf, l[:]...)
		buf = append(buf, b...)
	}

	for _, name := range names {
		attr := attrs[name]
		appendLV([]byte(name))
		appendLV([]byte(attr.DataType))
		if len(attr.DataType) >= 6 && attr.DataType[:6] == "Binary" {
			buf = append(buf, 2)
			appendLV(attr.BinaryValue)
		} else {
			buf = append(buf, 1)
			var value string
			if attr.StringValue != nil {
				value = *attr.StringValue
			}
			appendLV([]byte(value))
		}
	}

	return ident.MD5Hex(buf)
}

// Send validates and enqueues a message, replaying the cached response for
// an unexpired deduplication id.
func (q *Queue) Send(in *SendMessageInput, accountID string) (*SendMessageOutput, error) {
	if len(in.MessageBody) > q.Attributes.MaximumMessageSize {
		return nil, errInvalidParameterValue(fmt.Sprintf(
			"Message body must be shorter than %d bytes", q.Attributes.MaximumMessageSize))
	}
	if in.MessageBody == "" {
		return nil, errInvalidParameterValue("Message body must not be empty")
	}

	if q.Attributes.FifoQueue && in.MessageGroupId == "" {
		return nil, errMissingParameter("MessageGroupId is required for FIFO queues")
	}

	dedupID := in.MessageDeduplicationId
	if q.Attributes.FifoQueue && dedupID == "" {
		if !q.Attributes.ContentBasedDeduplication {
			return nil, errInvalidParameterValue(
				"MessageDeduplicationId is required for FIFO queues without ContentBasedDeduplication")
		}
		dedupID = ident.SHA256Hex([]byte(in.MessageBody))
	}

	q.scrubDedupCache()
	if dedupID != "" {
		if entry, ok := q.dedupCache[dedupID]; ok {
			response := entry.response
			return &response, nil
		}
	}

	delay := q.Attributes.DelaySeconds
	if in.DelaySeconds != nil {
		delay = int(*in.DelaySeconds)
	}

	msg := &Message{
		MessageID:         ident.New(),
		Body:              in.MessageBody,
		MD5OfBody:         ident.MD5Hex([]byte(in.MessageBody)),
		MessageAttributes: in.MessageAttributes,
		SystemAttributes:  in.MessageSystemAttributes,
		SentTimestamp:     ident.NowMillis(),
		VisibleAt:         time.Now().Add(time.Duration(delay) * time.Second),
		MessageGroupID:    in.MessageGroupId,
		DeduplicationID:   dedupID,
		SenderID:          accountID,
	}
	msg.MD5OfAttributes = computeAttributeMD5(in.MessageAttributes)
	msg.MD5OfSystemAttributes = computeAttributeMD5(in.MessageSystemAttributes)
	if q.Attributes.FifoQueue {
		q.sequenceCounter++
		msg.SequenceNumber = ident.SequenceNumber(q.sequenceCounter)
	}

	q.pending = append(q.pending, msg)

	out := SendMessageOutput{
		MessageId:                    msg.MessageID,
		MD5OfMessageBody:             msg.MD5OfBody,
		MD5OfMessageAttributes:       msg.MD5OfAttributes,
		MD5OfMessageSystemAttributes: msg.MD5OfSystemAttributes,
		SequenceNumber:               msg.SequenceNumber,
	}
	if dedupID != "" {
		q.dedupCache[dedupID] = dedupEntry{response: out, inserted: time.Now()}
	}

	result := out
	return &result, nil
}

// ReturnExpiredInflight sweeps the in-flight map for messages whose
// visibility deadline passed. Messages that reached the redrive threshold
// are returned as DLQ candidates; the rest re-enter the pending sequence.
func (q *Queue) ReturnExpiredInflight() []DLQRedrive {
	now := time.Now()
	var expired []string
	for handle, msg := range q.inflight {
		if !msg.VisibilityDeadline.IsZero() && !now.Before(msg.VisibilityDeadline) {
			expired = append(expired, handle)
		}
	}

	var redrives []DLQRedrive
	for _, handle := range expired {
		msg := q.inflight[handle]
		delete(q.inflight, handle)
		if msg.MessageGroupID != "" {
			delete(q.lockedGroups, msg.MessageGroupID)
		}
		msg.ReceiptHandle = ""
		msg.VisibilityDeadline = time.Time{}

		if rp := q.Attributes.RedrivePolicy; rp != nil && msg.ReceiveCount >= rp.MaxReceiveCount {
			msg.OriginArn = q.ARN
			redrives = append(redrives, DLQRedrive{DLQArn: rp.DeadLetterTargetArn, Message: msg})
			continue
		}

		q.pending = append(q.pending, msg)
	}
	return redrives
}

// Receive selects up to maxCount visible messages, moves them in flight and
// assembles their system attributes.
func (q *Queue) Receive(maxCount int, visibilityOverride *int32, accountID string) ([]ReceivedMessage, error) {
	visibility := q.Attributes.VisibilityTimeout
	if visibilityOverride != nil {
		visibility = int(*visibilityOverride)
	}

	inflightLimit := 120000
	if q.Attributes.FifoQueue {
		inflightLimit = 20000
	}
	if len(q.inflight) >= inflightLimit {
		return nil, errOverLimit("Too many inflight messages")
	}

	now := time.Now()
	nowMillis := ident.NowMillis()
	retentionCutoff := nowMillis - int64(q.Attributes.MessageRetentionPeriod)*1000

	var results []ReceivedMessage
	seenGroups := make(map[string]struct{})
	remaining := q.pending[:0]

	for _, msg := range q.pending {
		if len(results) >= maxCount {
			remaining = append(remaining, msg)
			continue
		}
		if msg.VisibleAt.After(now) {
			remaining = append(remaining, msg)
			continue
		}
		if msg.SentTimestamp < retentionCutoff {
			// Past the retention window: dropped, not delivered.
			continue
		}
		if q.Attributes.FifoQueue && msg.MessageGroupID != "" {
			if _, locked := q.lockedGroups[msg.MessageGroupID]; locked {
				remaining = append(remaining, msg)
				continue
			}
			if _, seen := seenGroups[msg.MessageGroupID]; seen {
				remaining = append(remaining, msg)
				continue
			}
			seenGroups[msg.MessageGroupID] = struct{}{}
		}

		msg.ReceiveCount++
		if msg.FirstReceiveTimestamp == 0 {
			msg.FirstReceiveTimestamp = nowMillis
		}
		msg.ReceiptHandle = ident.New()
		msg.VisibilityDeadline = now.Add(time.Duration(visibility) * time.Second)
		if q.Attributes.FifoQueue && msg.MessageGroupID != "" {
			q.lockedGroups[msg.MessageGroupID] = struct{}{}
		}
		q.inflight[msg.ReceiptHandle] = msg

		results = append(results, q.assembleReceived(msg, accountID))
	}
	q.pending = remaining

	return results, nil
}

func (q *Queue) assembleReceived(msg *Message, accountID string) ReceivedMessage {
	attrs := map[string]string{
		"SenderId":                         accountID,
		"SentTimestamp":                    strconv.FormatInt(msg.SentTimestamp, 10),
		"ApproximateReceiveCount":          strconv.Itoa(msg.ReceiveCount),
		"ApproximateFirstReceiveTimestamp": strconv.FormatInt(msg.FirstReceiveTimestamp, 10),
	}
	if msg.DeduplicationID != "" {
		attrs["MessageDeduplicationId"] = msg.DeduplicationID
	}
	if msg.MessageGroupID != "" {
		attrs["MessageGroupId"] = msg.MessageGroupID
	}
	if msg.SequenceNumber != "" {
		attrs["SequenceNumber"] = msg.SequenceNumber
	}
	if trace, ok := msg.SystemAttributes["AWSTraceHeader"]; ok && trace.StringValue != nil {
		attrs["AWSTraceHeader"] = *trace.StringValue
	}

	return ReceivedMessage{
		MessageId:              msg.MessageID,
		ReceiptHandle:          msg.ReceiptHandle,
		MD5OfBody:              msg.MD5OfBody,
		Body:                   msg.Body,
		Attributes:             attrs,
		MD5OfMessageAttributes: msg.MD5OfAttributes,
		MessageAttributes:      msg.MessageAttributes,
	}
}

// Delete removes an in-flight message by receipt handle. Deleting an
// unknown handle succeeds.
func (q *Queue) Delete(receiptHandle string) {
	if msg, ok := q.inflight[receiptHandle]; ok {
		delete(q.inflight, receiptHandle)
		if msg.MessageGroupID != "" {
			delete(q.lockedGroups, msg.MessageGroupID)
		}
	}
}

// ChangeVisibility adjusts an in-flight message's visibility deadline. A
// timeout of zero returns the message to the pending sequence.
func (q *Queue) ChangeVisibility(receiptHandle string, timeout int) error {
	if timeout < 0 || timeout > 43200 {
		return errInvalidParameterValue("VisibilityTimeout must be between 0 and 43200")
	}

	msg, ok := q.inflight[receiptHandle]
	if !ok {
		return errMessageNotInflight("The message is not in flight.")
	}

	if timeout == 0 {
		delete(q.inflight, receiptHandle)
		if msg.MessageGroupID != "" {
			delete(q.lockedGroups, msg.MessageGroupID)
		}
		msg.ReceiptHandle = ""
		msg.VisibilityDeadline = time.Time{}
		q.pending = append(q.pending, msg)
		return nil
	}

	msg.VisibilityDeadline = time.Now().Add(time.Duration(timeout) * time.Second)
	return nil
}

// Purge clears all message state. A second purge within 60 seconds fails.
func (q *Queue) Purge() error {
	if !q.lastPurge.IsZero() && time.Since(q.lastPurge) < 60*time.Second {
		return errPurgeQueueInProgress("A purge was already initiated within the last 60 seconds.")
	}
	q.pending = nil
	q.inflight = make(map[string]*Message)
	q.lockedGroups = make(map[string]struct{})
	q.lastPurge = time.Now()
	return nil
}

// AttributeView combines the configured attributes with the dynamically
// computed ones, filtered by the requested names. An empty list or the
// literal All returns everything.
func (q *Queue) AttributeView(names []string) map[string]string {
	all := len(names) == 0
	requested := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "All" {
			all = true
		}
		requested[n] = struct{}{}
	}
	include := func(name string) bool {
		if all {
			return true
		}
		_, ok := requested[name]
		return ok
	}

	result := make(map[string]string)
	for name, value := range q.Attributes.Map() {
		if include(name) {
			result[name] = value
		}
	}

	if include("QueueArn") {
		result["QueueArn"] = q.ARN
	}
	if include("CreatedTimestamp") {
		result["CreatedTimestamp"] = strconv.FormatInt(q.CreatedAt, 10)
	}
	if include("LastModifiedTimestamp") {
		result["LastModifiedTimestamp"] = strconv.FormatInt(q.LastModified, 10)
	}
	now := time.Now()
	if include("ApproximateNumberOfMessages") {
		visible := 0
		for _, m := range q.pending {
			if !m.VisibleAt.After(now) {
				visible++
			}
		}
		result["ApproximateNumberOfMessages"] = strconv.Itoa(visible)
	}
	if include("ApproximateNumberOfMessagesNotVisible") {
		result["ApproximateNumberOfMessagesNotVisible"] = strconv.Itoa(len(q.inflight))
	}
	if include("ApproximateNumberOfMessagesDelayed") {
		delayed := 0
		for _, m := range q.pending {
			if m.VisibleAt.After(now) {
				delayed++
			}
		}
		result["ApproximateNumberOfMessagesDelayed"] = strconv.Itoa(delayed)
	}

	return result
}

// SetAttributes applies a mutable attribute update. FifoQueue is set at
// creation and cannot change.
func (q *Queue) SetAttributes(attrs map[string]string) error {
	if _, ok := attrs["FifoQueue"]; ok {
		return errInvalidAttributeName("FifoQueue cannot be changed after creation")
	}
	if err := q.Attributes.Apply(attrs); err != nil {
		return err
	}
	q.LastModified = ident.NowSecs()
	return nil
}

func (q *Queue) scrubDedupCache() {
	for id, entry := range q.dedupCache {
		if time.Since(entry.inserted) >= dedupRetention {
			delete(q.dedupCache, id)
		}
	}
}

// PendingCount reports the size of the pending sequence.
func (q *Queue) PendingCount() int {
	return len(q.pending)
}

func (q *Queue) popPending() *Message {
	if len(q.pending) == 0 {
		return nil
	}
	msg := q.pending[0]
	q.pending = q.pending[1:]
	return msg
}

func (q *Queue) appendPending(msg *Message) {
	q.pending = append(q.pending, msg)
}
