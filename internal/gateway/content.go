package gateway

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// flattenMessage는 chat 이벤트의 message 필드를 평문으로 변환합니다.
//
//	"text"                                  -> text
//	{"content": "text"}                     -> text
//	{"content": [{"type":"text","text":..}]} -> 텍스트 블록 연결
//	{"text": "..."}                         -> text
//
// 중첩된 content는 재귀적으로 펼치고, 알 수 없는 형태는 JSON 그대로 둡니다.
func flattenMessage(raw json.RawMessage) string {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return ""
	}

	msg := gjson.ParseBytes(raw)
	switch {
	case msg.Type == gjson.String:
		return msg.String()
	case msg.Type == gjson.Null:
		return ""
	case msg.IsObject():
		if content := msg.Get("content"); content.Exists() {
			return flattenContent(content)
		}
		if text := msg.Get("text"); text.Type == gjson.String {
			return text.String()
		}
		return msg.Raw
	default:
		return flattenContent(msg)
	}
}

// flattenContent는 content 값(문자열, 블록 배열, 단일 블록)을 펼칩니다.
func flattenContent(content gjson.Result) string {
	switch {
	case content.Type == gjson.String:
		return content.String()
	case content.Type == gjson.Null:
		return ""
	case content.IsArray():
		var b strings.Builder
		content.ForEach(func(_, block gjson.Result) bool {
			b.WriteString(flattenBlock(block))
			return true
		})
		return b.String()
	case content.IsObject():
		return flattenBlock(content)
	default:
		return content.Raw
	}
}

// flattenBlock은 content 배열의 블록 하나를 펼칩니다.
func flattenBlock(block gjson.Result) string {
	if block.Type == gjson.String {
		return block.String()
	}
	if !block.IsObject() {
		return block.Raw
	}

	if text := block.Get("text"); text.Type == gjson.String {
		return text.String()
	}
	if nested := block.Get("content"); nested.Exists() {
		return flattenContent(nested)
	}
	return block.Raw
}
