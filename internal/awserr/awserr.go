// Package awserr defines the typed error value shared by every service.
// Each service declares constructors for its documented error kinds; the
// transport layer maps the code and status onto the service's wire framing.
package awserr

import "fmt"

type Error struct {
	Code        string
	Message     string
	Status      int
	SenderFault bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New returns a sender-fault error with the given code and HTTP status.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Message: message, Status: status, SenderFault: true}
}

// NewFault returns a server-fault error.
func NewFault(code string, status int, message string) *Error {
	return &Error{Code: code, Message: message, Status: status}
}
