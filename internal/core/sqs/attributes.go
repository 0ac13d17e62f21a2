package sqs

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nimbuslocal/nimbus/internal/awserr"
)

// RedrivePolicy moves messages exceeding a receive-count threshold to a
// named dead-letter queue.
type RedrivePolicy struct {
	DeadLetterTargetArn string `json:"deadLetterTargetArn"`
	MaxReceiveCount     int    `json:"maxReceiveCount"`
}

func parseRedrivePolicy(s string) (*RedrivePolicy, error) {
	var raw struct {
		DeadLetterTargetArn string          `json:"deadLetterTargetArn"`
		MaxReceiveCount     json.RawMessage `json:"maxReceiveCount"`
	}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, errInvalidAttributeValue(fmt.Sprintf("Invalid RedrivePolicy JSON: %v", err))
	}
	if raw.DeadLetterTargetArn == "" {
		return nil, errInvalidAttributeValue("RedrivePolicy must contain deadLetterTargetArn")
	}

	// maxReceiveCount arrives as a number or a numeric string
	var count int
	if err := json.Unmarshal(raw.MaxReceiveCount, &count); err != nil {
		var str string
		if err := json.Unmarshal(raw.MaxReceiveCount, &str); err != nil {
			return nil, errInvalidAttributeValue("RedrivePolicy must contain maxReceiveCount")
		}
		parsed, err := strconv.Atoi(str)
		if err != nil {
			return nil, errInvalidAttributeValue("RedrivePolicy must contain maxReceiveCount")
		}
		count = parsed
	}
	if count < 1 {
		return nil, errInvalidAttributeValue("maxReceiveCount must be at least 1")
	}

	return &RedrivePolicy{DeadLetterTargetArn: raw.DeadLetterTargetArn, MaxReceiveCount: count}, nil
}

func (rp *RedrivePolicy) toJSON() string {
	b, _ := json.Marshal(rp)
	return string(b)
}

type RedriveAllowPolicy struct {
	RedrivePermission string   `json:"redrivePermission"`
	SourceQueueArns   []string `json:"sourceQueueArns,omitempty"`
}

func parseRedriveAllowPolicy(s string) (*RedriveAllowPolicy, error) {
	var rap RedriveAllowPolicy
	if err := json.Unmarshal([]byte(s), &rap); err != nil {
		return nil, errInvalidAttributeValue(fmt.Sprintf("Invalid RedriveAllowPolicy JSON: %v", err))
	}
	if rap.RedrivePermission == "" {
		rap.RedrivePermission = "allowAll"
	}
	return &rap, nil
}

func (rap *RedriveAllowPolicy) toJSON() string {
	b, _ := json.Marshal(rap)
	return string(b)
}

// QueueAttributes holds a queue's configured attributes.
type QueueAttributes struct {
	VisibilityTimeout             int
	MessageRetentionPeriod        int
	DelaySeconds                  int
	MaximumMessageSize            int
	ReceiveMessageWaitTimeSeconds int
	RedrivePolicy                 *RedrivePolicy
	RedriveAllowPolicy            *RedriveAllowPolicy
	FifoQueue                     bool
	ContentBasedDeduplication     bool
	DeduplicationScope            string
	FifoThroughputLimit           string
	SqsManagedSseEnabled          bool
	KmsMasterKeyID                string
	KmsDataKeyReusePeriodSeconds  int
}

func defaultQueueAttributes() QueueAttributes {
	return QueueAttributes{
		VisibilityTimeout:             30,
		MessageRetentionPeriod:        345600,
		DelaySeconds:                  0,
		MaximumMessageSize:            262144,
		ReceiveMessageWaitTimeSeconds: 0,
		DeduplicationScope:            "Queue",
		FifoThroughputLimit:           "PerQueue",
		SqsManagedSseEnabled:          true,
		KmsDataKeyReusePeriodSeconds:  300,
	}
}

// Map renders the configured attributes in their wire form.
func (a *QueueAttributes) Map() map[string]string {
	m := map[string]string{
		"VisibilityTimeout":             strconv.Itoa(a.VisibilityTimeout),
		"MessageRetentionPeriod":        strconv.Itoa(a.MessageRetentionPeriod),
		"DelaySeconds":                  strconv.Itoa(a.DelaySeconds),
		"MaximumMessageSize":            strconv.Itoa(a.MaximumMessageSize),
		"ReceiveMessageWaitTimeSeconds": strconv.Itoa(a.ReceiveMessageWaitTimeSeconds),
		"FifoQueue":                     strconv.FormatBool(a.FifoQueue),
		"SqsManagedSseEnabled":          strconv.FormatBool(a.SqsManagedSseEnabled),
		"KmsDataKeyReusePeriodSeconds":  strconv.Itoa(a.KmsDataKeyReusePeriodSeconds),
	}
	if a.RedrivePolicy != nil {
		m["RedrivePolicy"] = a.RedrivePolicy.toJSON()
	}
	if a.RedriveAllowPolicy != nil {
		m["RedriveAllowPolicy"] = a.RedriveAllowPolicy.toJSON()
	}
	if a.FifoQueue {
		m["ContentBasedDeduplication"] = strconv.FormatBool(a.ContentBasedDeduplication)
		m["DeduplicationScope"] = a.DeduplicationScope
		m["FifoThroughputLimit"] = a.FifoThroughputLimit
	}
	if a.KmsMasterKeyID != "" {
		m["KmsMasterKeyId"] = a.KmsMasterKeyID
	}
	return m
}

// Apply sets the supplied attributes, validating each value range.
func (a *QueueAttributes) Apply(attrs map[string]string) error {
	for key, value := range attrs {
		switch key {
		case "VisibilityTimeout":
			v, err := parseBoundedInt(key, value, 0, 43200)
			if err != nil {
				return err
			}
			a.VisibilityTimeout = v
		case "MessageRetentionPeriod":
			v, err := parseBoundedInt(key, value, 60, 1209600)
			if err != nil {
				return err
			}
			a.MessageRetentionPeriod = v
		case "DelaySeconds":
			v, err := parseBoundedInt(key, value, 0, 900)
			if err != nil {
				return err
			}
			a.DelaySeconds = v
		case "MaximumMessageSize":
			v, err := parseBoundedInt(key, value, 1024, 262144)
			if err != nil {
				return err
			}
			a.MaximumMessageSize = v
		case "ReceiveMessageWaitTimeSeconds":
			v, err := parseBoundedInt(key, value, 0, 20)
			if err != nil {
				return err
			}
			a.ReceiveMessageWaitTimeSeconds = v
		case "RedrivePolicy":
			if value == "" {
				a.RedrivePolicy = nil
				continue
			}
			rp, err := parseRedrivePolicy(value)
			if err != nil {
				return err
			}
			a.RedrivePolicy = rp
		case "RedriveAllowPolicy":
			if value == "" {
				a.RedriveAllowPolicy = nil
				continue
			}
			rap, err := parseRedriveAllowPolicy(value)
			if err != nil {
				return err
			}
			a.RedriveAllowPolicy = rap
		case "FifoQueue":
			// Settable at creation only; the queue rejects later changes.
			a.FifoQueue = value == "true"
		case "ContentBasedDeduplication":
			a.ContentBasedDeduplication = value == "true"
		case "DeduplicationScope":
			if value != "Queue" && value != "MessageGroup" {
				return errInvalidAttributeValue("DeduplicationScope must be Queue or MessageGroup")
			}
			a.DeduplicationScope = value
		case "FifoThroughputLimit":
			if value != "PerQueue" && value != "PerMessageGroupId" {
				return errInvalidAttributeValue("FifoThroughputLimit must be PerQueue or PerMessageGroupId")
			}
			a.FifoThroughputLimit = value
		case "SqsManagedSseEnabled":
			a.SqsManagedSseEnabled = value == "true"
		case "KmsMasterKeyId":
			a.KmsMasterKeyID = value
		case "KmsDataKeyReusePeriodSeconds":
			v, err := parseBoundedInt(key, value, 60, 86400)
			if err != nil {
				return err
			}
			a.KmsDataKeyReusePeriodSeconds = v
		default:
			return errInvalidAttributeName(fmt.Sprintf("Unknown attribute: %s", key))
		}
	}
	return nil
}

func parseBoundedInt(name, value string, min, max int) (int, *awserr.Error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, errInvalidAttributeValue(fmt.Sprintf("Invalid %s: %s", name, value))
	}
	if v < min || v > max {
		return 0, errInvalidAttributeValue(fmt.Sprintf("%s must be between %d and %d", name, min, max))
	}
	return v, nil
}
