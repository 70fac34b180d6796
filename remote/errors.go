package remote

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
)

// APIError is a non-2xx response from the remote API.
type APIError struct {
	StatusCode int
	RawBody    []byte
	Message    string
}

func newAPIError(status int, body []byte) *APIError {
	return &APIError{
		StatusCode: status,
		RawBody:    body,
		Message:    faultMessage(body),
	}
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote API status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote API status %d", e.StatusCode)
}

// Unwrap exposes the taxonomy sentinel for the status code.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return syncerrors.ErrStaleToken
	case e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500:
		return syncerrors.ErrRemoteServer
	case e.StatusCode >= 400:
		return syncerrors.ErrRemoteValidation
	}
	return nil
}

type faultDetail struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Code    string `json:"code"`
}

type faultEnvelope struct {
	// Field matching is case-insensitive, so this covers both "Fault" and "fault".
	Fault *struct {
		Error []faultDetail `json:"error"`
		Type  string        `json:"type"`
	} `json:"fault"`
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// faultMessage extracts a human-readable message from a remote error body.
func faultMessage(body []byte) string {
	var env faultEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return strings.TrimSpace(truncate(string(body), 200))
	}
	if env.Fault != nil && len(env.Fault.Error) > 0 {
		parts := make([]string, 0, len(env.Fault.Error))
		for _, fe := range env.Fault.Error {
			msg := fe.Message
			if fe.Detail != "" && fe.Detail != fe.Message {
				msg = strings.TrimSpace(msg + ": " + fe.Detail)
			}
			parts = append(parts, strings.TrimPrefix(msg, ": "))
		}
		return strings.Join(parts, "; ")
	}
	var flat string
	if len(env.Error) > 0 && json.Unmarshal(env.Error, &flat) == nil && flat != "" {
		if env.ErrorDescription != "" {
			return flat + ": " + env.ErrorDescription
		}
		return flat
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
