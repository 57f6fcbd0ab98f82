package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is an error reported by the provider itself: rate limits, auth
// failures, malformed requests. Message is the provider's human-readable detail.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Param      string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("provider returned %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited reports whether the provider throttled the request.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// errorEnvelope matches {"error": {...}}. Some gateways send "error" as a bare
// string, and "code" may be a number.
type errorEnvelope struct {
	Error json.RawMessage `json:"error"`
}

type errorBody struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Param   string          `json:"param"`
	Code    json.RawMessage `json:"code"`
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Error) > 0 {
		var detail errorBody
		if err := json.Unmarshal(env.Error, &detail); err == nil {
			apiErr.Message = detail.Message
			apiErr.Type = detail.Type
			apiErr.Param = detail.Param
			apiErr.Code = strings.Trim(string(detail.Code), `"`)
			if apiErr.Code == "null" {
				apiErr.Code = ""
			}
		} else {
			var msg string
			if err := json.Unmarshal(env.Error, &msg); err == nil {
				apiErr.Message = msg
			}
		}
	}

	if apiErr.Message == "" {
		text := strings.TrimSpace(string(body))
		if text == "" {
			text = http.StatusText(status)
		}
		apiErr.Message = text
	}

	return apiErr
}
