package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected는 소켓이 없을 때 Request가 즉시 반환하는 오류입니다.
	ErrNotConnected = errors.New("gateway: not connected")
	// ErrRequestTimeout은 응답 대기 시간이 만료된 요청의 오류입니다.
	ErrRequestTimeout = errors.New("gateway: request timed out")
	// ErrHandshakeRejected는 connect 응답이 hello-ok가 아닐 때의 오류입니다.
	ErrHandshakeRejected = errors.New("gateway: handshake rejected")
	// ErrHeartbeatTimeout은 무활동 감시로 연결을 끊었을 때의 사유입니다.
	ErrHeartbeatTimeout = errors.New("gateway: heartbeat timeout")
	// ErrClientClosed는 Close 이후 호출된 작업의 오류입니다.
	ErrClientClosed = errors.New("gateway: client closed")
	// ErrNoPairer는 페어링 협력자가 설정되지 않았을 때의 오류입니다.
	ErrNoPairer = errors.New("gateway: pairing is not configured")
	// ErrPairingRejected는 운영자가 페어링을 승인하지 않았을 때의 오류입니다.
	ErrPairingRejected = errors.New("gateway: pairing not approved")
)

// RequestError는 게이트웨이가 ok=false 또는 error로 응답한 요청의 오류입니다.
type RequestError struct {
	Method  string
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Method, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

var (
	errUnsupportedScheme = errors.New("scheme must be ws or wss")
	errMissingHost       = errors.New("missing host")
)
