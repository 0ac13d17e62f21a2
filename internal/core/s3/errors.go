package s3

import (
	"net/http"

	"github.com/nimbuslocal/nimbus/internal/awserr"
)

func errNoSuchBucket(msg string) *awserr.Error {
	return awserr.New("NoSuchBucket", http.StatusNotFound, msg)
}

func errNoSuchKey(msg string) *awserr.Error {
	return awserr.New("NoSuchKey", http.StatusNotFound, msg)
}

func errNoSuchUpload(msg string) *awserr.Error {
	return awserr.New("NoSuchUpload", http.StatusNotFound, msg)
}

func errInvalidPart(msg string) *awserr.Error {
	return awserr.New("InvalidPart", http.StatusBadRequest, msg)
}

func errInvalidPartOrder(msg string) *awserr.Error {
	return awserr.New("InvalidPartOrder", http.StatusBadRequest, msg)
}

func errInvalidRange(msg string) *awserr.Error {
	return awserr.New("InvalidRange", http.StatusRequestedRangeNotSatisfiable, msg)
}

func errBucketAlreadyOwnedByYou(msg string) *awserr.Error {
	return awserr.New("BucketAlreadyOwnedByYou", http.StatusConflict, msg)
}

func errBucketNotEmpty(msg string) *awserr.Error {
	return awserr.New("BucketNotEmpty", http.StatusConflict, msg)
}

func errInvalidBucketName(msg string) *awserr.Error {
	return awserr.New("InvalidBucketName", http.StatusBadRequest, msg)
}

func errNoSuchTagSet(msg string) *awserr.Error {
	return awserr.New("NoSuchTagSet", http.StatusNotFound, msg)
}

func errInvalidArgument(msg string) *awserr.Error {
	return awserr.New("InvalidArgument", http.StatusBadRequest, msg)
}
