package protocol

import "encoding/json"

// chat 이벤트 상태
const (
	ChatStateDelta   = "delta"
	ChatStateFinal   = "final"
	ChatStateError   = "error"
	ChatStateAborted = "aborted"
)

// Attachment는 chat.send에 함께 보내는 첨부 파일입니다.
type Attachment struct {
	Type     string `json:"type"`
	MimeType string `json:"mimeType,omitempty"`
	FileName string `json:"fileName,omitempty"`
	// Content는 base64 인코딩된 본문입니다.
	Content string `json:"content,omitempty"`
	URL     string `json:"url,omitempty"`
}

// ChatSendParams는 "chat.send" 요청의 params입니다.
type ChatSendParams struct {
	SessionKey     string       `json:"sessionKey"`
	Message        string       `json:"message"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	IdempotencyKey string       `json:"idempotencyKey"`
}

// ChatSendResult는 "chat.send" 응답 페이로드입니다.
type ChatSendResult struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
}

// ChatAbortParams는 "chat.abort" 요청의 params입니다.
type ChatAbortParams struct {
	SessionKey string `json:"sessionKey"`
	RunID      string `json:"runId,omitempty"`
}

// ChatHistoryParams는 "chat.history" 요청의 params입니다.
type ChatHistoryParams struct {
	SessionKey string `json:"sessionKey"`
	Limit      int    `json:"limit,omitempty"`
}

// ChatEvent는 chat 이벤트 페이로드입니다.
// Message.content는 문자열 또는 블록 배열이라 원본 그대로 보관합니다.
type ChatEvent struct {
	State        string          `json:"state"`
	RunID        string          `json:"runId"`
	SessionKey   string          `json:"sessionKey,omitempty"`
	Message      json.RawMessage `json:"message,omitempty"`
	MediaURL     string          `json:"mediaUrl,omitempty"`
	MediaType    string          `json:"mediaType,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}
