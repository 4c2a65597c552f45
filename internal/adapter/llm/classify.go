package llm

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/xiaot623/gogo/gateway/internal/domain"
)

// Classify maps a provider failure to a gateway error from the HTTP status
// and the shape of the error body ({"error":{"type","code","message"}}).
// It performs no I/O.
func Classify(status int, body []byte) *domain.Error {
	errType := gjson.GetBytes(body, "error.type").String()
	errCode := gjson.GetBytes(body, "error.code").String()
	msg := gjson.GetBytes(body, "error.message").String()
	return classifyShape(status, errType, errCode, msg)
}

func classifyShape(status int, errType, errCode, msg string) *domain.Error {
	kind := classifyKind(status, errType, errCode)
	text := fmt.Sprintf("upstream returned status %d", status)
	if status == 0 {
		text = "upstream returned an error"
	}
	if msg != "" {
		text += ": " + msg
	}
	return domain.NewError(kind, text, nil)
}

func classifyKind(status int, errType, errCode string) domain.Kind {
	switch {
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		errType == "authentication_error",
		errType == "permission_error",
		errCode == "invalid_api_key":
		return domain.KindUpstreamAuth
	case status == http.StatusTooManyRequests,
		errType == "rate_limit_error",
		errType == "tokens",
		errCode == "rate_limit_exceeded":
		return domain.KindUpstreamRateLimited
	case status >= http.StatusInternalServerError,
		status == http.StatusRequestTimeout,
		errType == "server_error",
		errType == "overloaded_error":
		return domain.KindUpstreamUnavailable
	case status >= http.StatusBadRequest:
		return domain.KindUpstreamProtocol
	}
	// Error object delivered with a success status, e.g. inside a stream.
	return domain.KindUpstreamUnavailable
}

func transportError(err error) error {
	return domain.NewError(domain.KindUpstreamUnavailable, "failed to reach upstream", err)
}

func protocolError(msg string, err error) error {
	return domain.NewError(domain.KindUpstreamProtocol, msg, err)
}
