package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aschepis/backscratcher/relay/llm"
)

// The gateway does not always send a Retry-After header on 429s.
const defaultRetryAfter = 60 * time.Second

// errorBody is the JSON error envelope the gateway returns on non-2xx
// responses. Bodies that don't parse fall back to the raw text.
type errorBody struct {
	Error *chunkError `json:"error"`
}

// classifyStatusError maps a non-2xx pre-stream response to a neutral error.
// At this point no bytes have been forwarded, so the caller gets exactly one
// synchronous structured error.
func classifyStatusError(status int, body []byte, header http.Header) *llm.Error {
	message := extractErrorMessage(body)
	if message == "" {
		message = http.StatusText(status)
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &llm.Error{
			Type:       llm.ErrorTypeAuth,
			Message:    fmt.Sprintf("gateway rejected credentials: %s", message),
			Retryable:  false,
			StatusCode: status,
		}
	case http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(header)
		return &llm.Error{
			Type:       llm.ErrorTypeRateLimit,
			Message:    fmt.Sprintf("gateway rate limit: %s", message),
			Retryable:  true,
			RetryAfter: &retryAfter,
			StatusCode: status,
		}
	case http.StatusRequestEntityTooLarge:
		return &llm.Error{
			Type:       llm.ErrorTypeRequestTooLarge,
			Message:    fmt.Sprintf("gateway request too large: %s", message),
			Retryable:  false,
			StatusCode: status,
		}
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return &llm.Error{
			Type:       llm.ErrorTypeInvalidRequest,
			Message:    fmt.Sprintf("gateway invalid request: %s", message),
			Retryable:  false,
			StatusCode: status,
		}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &llm.Error{
			Type:       llm.ErrorTypeProvider,
			Message:    fmt.Sprintf("gateway server error: %s", message),
			Retryable:  true,
			StatusCode: status,
		}
	default:
		return &llm.Error{
			Type:       llm.ErrorTypeProvider,
			Message:    fmt.Sprintf("gateway error: %s", message),
			Retryable:  false,
			StatusCode: status,
		}
	}
}

// classifyTransportError maps a transport failure to a neutral error. The
// enforced stream duration ceiling is the only source of a timeout error;
// everything else is a network error.
func classifyTransportError(ctx context.Context, err error) *llm.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return llm.NewTimeoutError("stream exceeded duration ceiling", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return llm.NewNetworkError("stream canceled", err)
	}
	return llm.NewNetworkError("gateway transport error", err)
}

func extractErrorMessage(body []byte) string {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	if len(body) > 0 {
		return string(body)
	}
	return ""
}

// parseRetryAfter reads the Retry-After header, accepting both the
// delta-seconds and HTTP-date forms.
func parseRetryAfter(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return defaultRetryAfter
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return defaultRetryAfter
}
