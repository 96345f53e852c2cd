// ABOUTME: Error taxonomy for game API calls
// ABOUTME: Classifies transport failures and non-2xx responses into APIError kinds

package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an API failure.
type Kind int

const (
	// KindNetwork means no response reached the client
	KindNetwork Kind = iota + 1
	// KindUnauthorized is a 401 on an authenticated request
	KindUnauthorized
	// KindValidation is a 4xx carrying field errors
	KindValidation
	// KindNotFound is a 404
	KindNotFound
	// KindServer covers 5xx, unclassified 4xx and malformed responses
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network_error"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindServer:
		return "server_error"
	default:
		return "unknown"
	}
}

// APIError is returned by every Client method on failure.
type APIError struct {
	Kind    Kind
	Status  int               // 0 when no response arrived
	Message string            // from the body's message/detail, or generic
	Fields  map[string]string // field errors for KindValidation
	Err     error             // underlying transport or decode error
}

func (e *APIError) Error() string {
	switch e.Kind {
	case KindNetwork:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Message
	case KindValidation:
		if len(e.Fields) > 0 {
			parts := make([]string, 0, len(e.Fields))
			for field, msg := range e.Fields {
				parts = append(parts, field+": "+msg)
			}
			return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, "; "))
		}
	}
	if e.Status > 0 {
		return fmt.Sprintf("backend error (%d): %s", e.Status, e.Message)
	}
	return "backend error: " + e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

// IsKind reports whether err is an *APIError of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// Retryable reports whether a caller may reasonably repeat the request.
func (e *APIError) Retryable() bool {
	return e.Kind == KindNetwork || (e.Kind == KindServer && e.Status >= 500)
}

// errorBody covers the error shapes the API produces: {message},
// {error: "..."}, {detail: "..."}, FastAPI's {detail: [{loc, msg}]} and
// {errors: {field: msg}}. Fields are decoded one by one so a shape we do
// not know in one of them never hides the others.
type errorBody struct {
	Message json.RawMessage `json:"message"`
	Error   json.RawMessage `json:"error"`
	Detail  json.RawMessage `json:"detail"`
	Errors  json.RawMessage `json:"errors"`
}

type fieldDetail struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// classifyResponse converts a non-2xx response body into an APIError.
func classifyResponse(status int, body []byte) *APIError {
	apiErr := &APIError{Kind: KindServer, Status: status}

	var eb errorBody
	if len(body) > 0 && json.Unmarshal(body, &eb) == nil {
		apiErr.Message = firstMessage(eb.Message, eb.Error, eb.Detail)
		apiErr.Fields = fieldErrors(eb)
	}

	switch {
	case status == http.StatusUnauthorized:
		apiErr.Kind = KindUnauthorized
	case status == http.StatusNotFound:
		apiErr.Kind = KindNotFound
	case (status == http.StatusBadRequest || status == http.StatusUnprocessableEntity) && len(apiErr.Fields) > 0:
		apiErr.Kind = KindValidation
	}

	if apiErr.Message == "" {
		apiErr.Message = genericMessage(apiErr.Kind, status)
	}
	return apiErr
}

// firstMessage returns the first candidate that is a non-empty string or an
// object carrying one under "message".
func firstMessage(candidates ...json.RawMessage) string {
	for _, raw := range candidates {
		if len(raw) == 0 {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}
	return ""
}

func fieldErrors(eb errorBody) map[string]string {
	fields := make(map[string]string)

	var byField map[string]json.RawMessage
	if len(eb.Errors) > 0 && json.Unmarshal(eb.Errors, &byField) == nil {
		for field, raw := range byField {
			if msg := fieldMessage(raw); msg != "" {
				fields[field] = msg
			}
		}
	}

	var details []fieldDetail
	if len(eb.Detail) > 0 && json.Unmarshal(eb.Detail, &details) == nil {
		for _, d := range details {
			if len(d.Loc) == 0 {
				continue
			}
			// loc is ["body", "field"]; the last element names the field
			fields[fmt.Sprint(d.Loc[len(d.Loc)-1])] = d.Msg
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

// fieldMessage accepts "msg" or ["msg", ...].
func fieldMessage(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return strings.Join(list, "; ")
	}
	return ""
}

func genericMessage(kind Kind, status int) string {
	switch kind {
	case KindUnauthorized:
		return "not authorized"
	case KindNotFound:
		return "resource not found"
	case KindValidation:
		return "request validation failed"
	}
	return fmt.Sprintf("backend returned status %d", status)
}
