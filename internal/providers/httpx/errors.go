package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/restorehq/restore/pkg/retry"
)

// ServiceError reports a failed call to an external collaborator.
type ServiceError struct {
	Service    string
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Service)
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the call may succeed.
func (e *ServiceError) Temporary() bool {
	if e.StatusCode == 0 {
		if e.Err == nil {
			return false
		}
		if errors.Is(e.Err, context.Canceled) {
			return false
		}
		var netErr net.Error
		return errors.As(e.Err, &netErr) || errors.Is(e.Err, context.DeadlineExceeded) || isConnErr(e.Err)
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func isConnErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "EOF")
}

// ForRetry marks non-temporary service errors as permanent.
func ForRetry(err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) && se.Temporary() {
		return err
	}
	return retry.Permanent(err)
}

// StatusError builds a ServiceError from a non-2xx response, using the
// message field of a JSON error body when one is present.
func StatusError(service, op string, resp *http.Response, body []byte) *ServiceError {
	return &ServiceError{
		Service:    service,
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    errorMessage(body),
	}
}

func errorMessage(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Errors  []struct {
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		var text string
		if len(payload.Error) > 0 && json.Unmarshal(payload.Error, &text) == nil && text != "" {
			return text
		}
		var nested struct {
			Message string `json:"message"`
		}
		if len(payload.Error) > 0 && json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		if payload.Message != "" {
			return payload.Message
		}
		if len(payload.Errors) > 0 && payload.Errors[0].Detail != "" {
			return payload.Errors[0].Detail
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}
