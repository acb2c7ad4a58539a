package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/kz4killua/course-alerts/internal/common"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is a non-2xx response. Detail holds the server's message when the
// body carried one.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Detail)
}

// Unwrap maps the status onto the package sentinels so callers can use
// errors.Is(err, ErrUnauthorized) without inspecting codes.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Status >= http.StatusInternalServerError:
		return ErrUnavailable
	default:
		return nil
	}
}

// parseDetail extracts a human-readable message from an error body. The
// backend answers with {"detail": "..."} for most failures and with
// {"field": ["..."]} for serializer validation errors.
func parseDetail(body []byte) string {
	var payload map[string]json.RawMessage
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}

	if raw, ok := payload["detail"]; ok {
		if msg := firstMessage(raw); msg != "" {
			return msg
		}
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if msg := firstMessage(payload[k]); msg != "" {
			return msg
		}
	}
	return ""
}

func firstMessage(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}

// Detail returns the server-provided message carried by err, or fallback
// when there is none. An empty fallback means the generic message.
func Detail(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	if fallback == "" {
		return common.GenericErrorMessage
	}
	return fallback
}
