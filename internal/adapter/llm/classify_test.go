package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/gogo/gateway/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   domain.Kind
	}{
		{"unauthorized", 401, `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`, domain.KindUpstreamAuth},
		{"forbidden", 403, ``, domain.KindUpstreamAuth},
		{"auth type on 400", 400, `{"error":{"type":"authentication_error"}}`, domain.KindUpstreamAuth},
		{"rate limited", 429, `{"error":{"type":"requests","code":"rate_limit_exceeded"}}`, domain.KindUpstreamRateLimited},
		{"rate limit type", 400, `{"error":{"type":"rate_limit_error"}}`, domain.KindUpstreamRateLimited},
		{"server error", 500, `{"error":{"type":"server_error"}}`, domain.KindUpstreamUnavailable},
		{"bad gateway html", 502, `<html>bad gateway</html>`, domain.KindUpstreamUnavailable},
		{"overloaded", 529, `{"error":{"type":"overloaded_error"}}`, domain.KindUpstreamUnavailable},
		{"request timeout", 408, ``, domain.KindUpstreamUnavailable},
		{"bad request", 400, `{"error":{"type":"invalid_request_error","message":"model not found"}}`, domain.KindUpstreamProtocol},
		{"not found", 404, `not json`, domain.KindUpstreamProtocol},
		{"numeric code", 400, `{"error":{"code":400}}`, domain.KindUpstreamProtocol},
		{"in-stream error", 0, `{"error":{"type":"server_error"}}`, domain.KindUpstreamUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.status, []byte(tt.body))
			assert.Equal(t, tt.want, got.Kind)
		})
	}
}

func TestClassifyKeepsProviderMessage(t *testing.T) {
	err := Classify(400, []byte(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
	assert.Equal(t, "upstream returned status 400: model not found", err.Error())
	assert.ErrorIs(t, err, domain.ErrUpstreamProtocol)
}
