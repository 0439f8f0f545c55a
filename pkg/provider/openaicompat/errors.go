package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rhuss/tabula/pkg/api"
)

// MapHTTPError converts a non-2xx backend response into an APIError. The
// backend's own message is used when the body carries one. The Code field
// records the backend status class for logs and metrics.
func MapHTTPError(resp *http.Response) *api.APIError {
	message := ExtractErrorMessage(resp.Body)
	orDefault := func(def string) string {
		if message == "" {
			return def
		}
		return message
	}

	var e *api.APIError
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		e = api.NewInvalidRequestError("", orDefault("invalid request to backend"))
		e.Code = "backend_bad_request"
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		e = api.NewOracleError(orDefault("backend authentication failed"))
		e.Code = "backend_auth"
	case resp.StatusCode == http.StatusNotFound:
		e = api.NewOracleError(orDefault("backend model or endpoint not found"))
		e.Code = "backend_not_found"
	case resp.StatusCode == http.StatusTooManyRequests:
		e = api.NewTooManyRequestsError(orDefault("backend rate limit exceeded"))
		e.Code = "backend_rate_limited"
	default:
		e = api.NewOracleError(orDefault(fmt.Sprintf("backend error (HTTP %d)", resp.StatusCode)))
		e.Code = "backend_unavailable"
	}
	return e
}

// MapNetworkError converts a network-level error (connection refused,
// timeout, DNS failure) into an APIError.
func MapNetworkError(err error) *api.APIError {
	e := api.NewOracleError(fmt.Sprintf("backend connection error: %s", err.Error()))
	e.Code = "backend_unreachable"
	return e
}

// ExtractErrorMessage parses the body as a ChatErrorResponse and returns
// its message, or "" when there is none.
func ExtractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var errResp ChatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return ""
}
