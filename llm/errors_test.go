package llm

import (
	"errors"
	"testing"
)

func TestErrorFromStatusCode(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{413, false},
		{422, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{418, true}, // unknown defaults to retryable
	}

	for _, tt := range tests {
		err := ErrorFromStatusCode(tt.status, "boom", "testprov", "", nil)
		if got := IsRetryable(err); got != tt.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tt.status, got, tt.retryable)
		}
	}
}

func TestErrorTypes(t *testing.T) {
	err := ErrorFromStatusCode(401, "bad key", "testprov", "", nil)
	var auth *AuthenticationError
	if !errors.As(err, &auth) {
		t.Errorf("401 should map to AuthenticationError, got %T", err)
	}

	err = ErrorFromStatusCode(429, "slow down", "testprov", "", nil)
	var rate *RateLimitError
	if !errors.As(err, &rate) {
		t.Errorf("429 should map to RateLimitError, got %T", err)
	}
}

func TestProviderErrorCarriesStatusAndBody(t *testing.T) {
	err := ErrorFromStatusCode(500, "server broke", "testprov", `{"error":"oops"}`, nil)
	var server *ServerError
	if !errors.As(err, &server) {
		t.Fatalf("500 should map to ServerError, got %T", err)
	}
	if server.StatusCode != 500 || server.Body != `{"error":"oops"}` {
		t.Errorf("status/body lost: %d %q", server.StatusCode, server.Body)
	}
}

func TestIsRetryableNonProviderErrors(t *testing.T) {
	if IsRetryable(&ConfigurationError{SDKError: SDKError{Message: "no key"}}) {
		t.Errorf("configuration errors must not retry")
	}
	if IsRetryable(&AbortError{SDKError: SDKError{Message: "cancelled"}}) {
		t.Errorf("abort errors must not retry")
	}
	if !IsRetryable(&RequestTimeoutError{SDKError: SDKError{Message: "timeout"}}) {
		t.Errorf("timeouts should retry")
	}
	if IsRetryable(nil) {
		t.Errorf("nil is not retryable")
	}
}

func TestSDKErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &SDKError{Message: "wrapped", Cause: cause}
	if !errors.Is(err, cause) {
		t.Errorf("Unwrap chain broken")
	}
}
