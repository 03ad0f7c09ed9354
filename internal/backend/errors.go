package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx answer from the backend. Message is the backend's
// own text when it sent one.
type APIError struct {
	Operation string
	Status    int
	Code      string
	Message   string
}

func (e *APIError) Error() string {
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: backend returned %d (%s)", e.Operation, e.Status, e.Code)
	}
	return fmt.Sprintf("%s: backend returned %d", e.Operation, e.Status)
}

// UserMessage is the backend's own message, empty when the response had
// none.
func (e *APIError) UserMessage() string {
	return strings.TrimSpace(e.Message)
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (b errorBody) message() string {
	if strings.TrimSpace(b.Message) != "" {
		return b.Message
	}
	return b.Error
}
