// Package protocol은 에이전트 게이트웨이와 주고받는 와이어 포맷을 정의합니다.
// 모든 프레임은 {type: req|res|event} 형태의 JSON 텍스트 메시지입니다.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion은 클라이언트가 협상하는 게이트웨이 프로토콜 버전입니다.
const ProtocolVersion = 3

// 프레임 타입
const (
	FrameRequest  = "req"
	FrameResponse = "res"
	FrameEvent    = "event"
)

// 이벤트 이름
const (
	EventConnectChallenge = "connect.challenge"
	EventChat             = "chat"
)

// 요청 메서드
const (
	MethodConnect     = "connect"
	MethodChatSend    = "chat.send"
	MethodChatAbort   = "chat.abort"
	MethodChatHistory = "chat.history"
)

// ErrMalformedFrame은 파싱할 수 없거나 타입이 알 수 없는 프레임입니다.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame은 게이트웨이 프로토콜의 단일 프레임입니다.
type Frame struct {
	Type    string          `json:"type"`              // "req", "res", "event"
	ID      string          `json:"id,omitempty"`      // request/response ID
	Method  string          `json:"method,omitempty"`  // request method
	Params  json.RawMessage `json:"params,omitempty"`  // request params
	OK      *bool           `json:"ok,omitempty"`      // response ok
	Payload json.RawMessage `json:"payload,omitempty"` // response/event payload
	Event   string          `json:"event,omitempty"`   // event name
	Error   *ErrorShape     `json:"error,omitempty"`   // response error
}

// ErrorShape는 실패한 응답의 error 필드입니다.
type ErrorShape struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// NewRequest는 params를 직렬화하여 req 프레임을 만듭니다.
func NewRequest(id, method string, params interface{}) (*Frame, error) {
	frame := &Frame{Type: FrameRequest, ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("%s params 직렬화 실패: %w", method, err)
		}
		frame.Params = raw
	}
	return frame, nil
}

// Decode는 수신한 텍스트 메시지를 프레임으로 파싱합니다.
// JSON이 아니거나, type이 없거나, 타입별 필수 필드가 빠진 경우 ErrMalformedFrame을 감싸서 반환합니다.
func Decode(data []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch frame.Type {
	case FrameResponse:
		if frame.ID == "" {
			return nil, fmt.Errorf("%w: response without id", ErrMalformedFrame)
		}
	case FrameEvent:
		if frame.Event == "" {
			return nil, fmt.Errorf("%w: event without name", ErrMalformedFrame)
		}
	case FrameRequest:
		if frame.ID == "" || frame.Method == "" {
			return nil, fmt.Errorf("%w: request without id or method", ErrMalformedFrame)
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, frame.Type)
	}

	return &frame, nil
}

// Failed는 응답 프레임이 실패를 나타내는지 확인합니다.
// ok가 명시적으로 false이거나 error 필드가 있으면 실패입니다.
func (f *Frame) Failed() bool {
	if f.Error != nil {
		return true
	}
	return f.OK != nil && !*f.OK
}

// ErrorMessage는 실패 응답의 메시지를 반환합니다.
func (f *Frame) ErrorMessage() string {
	if f.Error != nil && f.Error.Message != "" {
		return f.Error.Message
	}
	return "request failed"
}
