package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHelloOK(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
	}{
		{`{"type":"hello-ok","protocol":3}`, true},
		{`{"payload":{"type":"hello-ok"}}`, true},
		{`{"type":"hello-ok","ok":false}`, false},
		{`{"type":"hello-ok","ok":true}`, true},
		{`{"type":"hello-error"}`, false},
		{`{}`, false},
		{``, false},
		{`not json`, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsHelloOK(json.RawMessage(tt.payload)), tt.payload)
	}
}

func TestIsScopeError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&RequestError{Method: "connect", Message: "Unauthorized: device not approved"}, true},
		{&RequestError{Method: "connect", Code: "NOT_PAIRED", Message: "x"}, true},
		{&RequestError{Method: "connect", Message: "missing scope: operator.write"}, true},
		{fmt.Errorf("%w: pairing required", ErrHandshakeRejected), true},
		{errors.New("token expired"), true},
		{&RequestError{Method: "connect", Message: "protocol mismatch"}, false},
		{ErrRequestTimeout, false},
		{nil, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isScopeError(tt.err), "%v", tt.err)
	}
}

func TestRejectionReason(t *testing.T) {
	assert.Equal(t, "bad protocol", rejectionReason(json.RawMessage(`{"error":{"message":"bad protocol"}}`)))
	assert.Equal(t, "hello-error", rejectionReason(json.RawMessage(`{"type":"hello-error"}`)))
	assert.Equal(t, "unexpected connect response", rejectionReason(json.RawMessage(`{}`)))
}
