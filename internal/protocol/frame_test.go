package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

// TestDecode는 프레임 타입별 파싱과 필수 필드 검증을 확인합니다.
func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		want    string
	}{
		{name: "response", input: `{"type":"res","id":"a","ok":true,"payload":{}}`, want: FrameResponse},
		{name: "event", input: `{"type":"event","event":"chat","payload":{}}`, want: FrameEvent},
		{name: "request", input: `{"type":"req","id":"1","method":"ping"}`, want: FrameRequest},
		{name: "not json", input: `{not json`, wantErr: true},
		{name: "unknown type", input: `{"type":"hello"}`, wantErr: true},
		{name: "missing type", input: `{"id":"x"}`, wantErr: true},
		{name: "response without id", input: `{"type":"res","ok":true}`, wantErr: true},
		{name: "event without name", input: `{"type":"event","payload":{}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Decode([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedFrame) {
					t.Fatalf("Decode() error = %v, want ErrMalformedFrame", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() unexpected error: %v", err)
			}
			if frame.Type != tt.want {
				t.Errorf("Type = %q, want %q", frame.Type, tt.want)
			}
		})
	}
}

// TestFrameFailed는 ok/error 조합에 따른 실패 판정을 검증합니다.
func TestFrameFailed(t *testing.T) {
	no := false
	yes := true

	if (&Frame{OK: &yes}).Failed() {
		t.Error("ok=true 응답은 실패가 아니어야 합니다")
	}
	if (&Frame{}).Failed() {
		t.Error("ok 필드가 없는 응답은 실패가 아니어야 합니다")
	}
	if !(&Frame{OK: &no}).Failed() {
		t.Error("ok=false 응답은 실패여야 합니다")
	}

	f := &Frame{Error: &ErrorShape{Message: "denied"}}
	if !f.Failed() {
		t.Error("error 필드가 있으면 실패여야 합니다")
	}
	if f.ErrorMessage() != "denied" {
		t.Errorf("ErrorMessage() = %q, want %q", f.ErrorMessage(), "denied")
	}
	if (&Frame{OK: &no}).ErrorMessage() != "request failed" {
		t.Error("메시지가 없으면 기본 메시지를 반환해야 합니다")
	}
}

// TestNewRequest는 params가 JSON으로 직렬화되는지 확인합니다.
func TestNewRequest(t *testing.T) {
	frame, err := NewRequest("id-1", MethodChatSend, ChatSendParams{
		SessionKey:     "main",
		Message:        "hi",
		IdempotencyKey: "k",
	})
	if err != nil {
		t.Fatalf("NewRequest() error: %v", err)
	}

	var params map[string]interface{}
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		t.Fatalf("params 파싱 실패: %v", err)
	}
	if params["message"] != "hi" || params["sessionKey"] != "main" {
		t.Errorf("params = %v", params)
	}
	if _, ok := params["attachments"]; ok {
		t.Error("빈 attachments는 생략되어야 합니다")
	}

	frame, err = NewRequest("id-2", "health", nil)
	if err != nil {
		t.Fatalf("NewRequest(nil) error: %v", err)
	}
	if frame.Params != nil {
		t.Errorf("nil params는 생략되어야 합니다: %s", frame.Params)
	}
}

// TestDeviceAuthPayload는 nonce 유무에 따른 서명 문자열 형식을 검증합니다.
func TestDeviceAuthPayload(t *testing.T) {
	req := SignRequest{
		ClientID:   "mctl",
		ClientMode: "cli",
		Role:       "operator",
		Scopes:     []string{"operator.read", "operator.write"},
		Token:      "tok",
		SignedAtMs: 1700000000000,
	}

	got := DeviceAuthPayload("dev1", req)
	want := "v1|dev1|mctl|cli|operator|operator.read,operator.write|1700000000000|tok"
	if got != want {
		t.Errorf("v1 payload = %q, want %q", got, want)
	}

	req.Nonce = "n0nce"
	got = DeviceAuthPayload("dev1", req)
	want = "v2|dev1|mctl|cli|operator|operator.read,operator.write|1700000000000|tok|n0nce"
	if got != want {
		t.Errorf("v2 payload = %q, want %q", got, want)
	}
}
