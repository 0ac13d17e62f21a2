package dynamodb

import (
	"net/http"

	"github.com/nimbuslocal/nimbus/internal/awserr"
)

func errResourceInUse(msg string) *awserr.Error {
	return awserr.New("ResourceInUseException", http.StatusBadRequest, msg)
}

func errResourceNotFound(msg string) *awserr.Error {
	return awserr.New("ResourceNotFoundException", http.StatusBadRequest, msg)
}

func errValidation(msg string) *awserr.Error {
	return awserr.New("ValidationException", http.StatusBadRequest, msg)
}
