package sqs

import (
	"net/http"

	"github.com/nimbuslocal/nimbus/internal/awserr"
)

// One constructor per documented queue-service error kind.

func errQueueAlreadyExists(msg string) *awserr.Error {
	return awserr.New("QueueAlreadyExists", http.StatusBadRequest, msg)
}

func errQueueDoesNotExist(msg string) *awserr.Error {
	return awserr.New("QueueDoesNotExist", http.StatusBadRequest, msg)
}

func errInvalidAttributeName(msg string) *awserr.Error {
	return awserr.New("InvalidAttributeName", http.StatusBadRequest, msg)
}

func errInvalidAttributeValue(msg string) *awserr.Error {
	return awserr.New("InvalidAttributeValue", http.StatusBadRequest, msg)
}

func errInvalidParameterValue(msg string) *awserr.Error {
	return awserr.New("InvalidParameterValue", http.StatusBadRequest, msg)
}

func errPurgeQueueInProgress(msg string) *awserr.Error {
	return awserr.New("PurgeQueueInProgress", http.StatusForbidden, msg)
}

func errMessageNotInflight(msg string) *awserr.Error {
	return awserr.New("MessageNotInflight", http.StatusBadRequest, msg)
}

func errOverLimit(msg string) *awserr.Error {
	return awserr.New("OverLimit", http.StatusForbidden, msg)
}

func errEmptyBatchRequest(msg string) *awserr.Error {
	return awserr.New("EmptyBatchRequest", http.StatusBadRequest, msg)
}

func errTooManyEntriesInBatchRequest(msg string) *awserr.Error {
	return awserr.New("TooManyEntriesInBatchRequest", http.StatusBadRequest, msg)
}

func errBatchEntryIdsNotDistinct(msg string) *awserr.Error {
	return awserr.New("BatchEntryIdsNotDistinct", http.StatusBadRequest, msg)
}

func errInvalidBatchEntryId(msg string) *awserr.Error {
	return awserr.New("InvalidBatchEntryId", http.StatusBadRequest, msg)
}

func errResourceNotFound(msg string) *awserr.Error {
	return awserr.New("ResourceNotFoundException", http.StatusBadRequest, msg)
}

func errMissingParameter(msg string) *awserr.Error {
	return awserr.New("MissingParameter", http.StatusBadRequest, msg)
}
