// Package ident provides identifiers, clocks and digests shared by the
// service engines.
package ident

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New returns a fresh opaque identifier.
func New() string {
	return uuid.NewString()
}

// NowMillis returns the current wall-clock time in milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// NowSecs returns the current wall-clock time in seconds.
func NowSecs() int64 {
	return time.Now().Unix()
}

// Timestamp renders t in RFC 3339 with millisecond precision, the format
// the object store uses for Last-Modified values.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// SequenceNumber renders a monotonic FIFO sequence counter as the
// zero-padded 20-digit form the queue service returns.
func SequenceNumber(n uint64) string {
	return fmt.Sprintf("%020d", n)
}

func MD5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func MD5Raw(data []byte) []byte {
	sum := md5.Sum(data)
	return sum[:]
}

func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func B64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func B64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
