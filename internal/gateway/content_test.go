package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlattenMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "empty", raw: ``, want: ""},
		{name: "null", raw: `null`, want: ""},
		{name: "invalid json", raw: `{"content":`, want: ""},
		{name: "bare string", raw: `"hello"`, want: "hello"},
		{name: "string content", raw: `{"role":"assistant","content":"hi there"}`, want: "hi there"},
		{
			name: "text blocks concatenated",
			raw:  `{"content":[{"type":"text","text":"Hello, "},{"type":"text","text":"world"}]}`,
			want: "Hello, world",
		},
		{
			name: "nested content recursed",
			raw:  `{"content":[{"type":"tool_result","content":[{"type":"text","text":"inner"}]},{"type":"text","text":"!"}]}`,
			want: "inner!",
		},
		{
			name: "unknown block serialized",
			raw:  `{"content":[{"type":"image","source":{"url":"x"}}]}`,
			want: `{"type":"image","source":{"url":"x"}}`,
		},
		{name: "text field only", raw: `{"text":"plain"}`, want: "plain"},
		{name: "unknown object", raw: `{"foo":1}`, want: `{"foo":1}`},
		{name: "top-level block array", raw: `[{"type":"text","text":"a"},"b"]`, want: "ab"},
		{name: "number content", raw: `{"content":42}`, want: "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, flattenMessage(json.RawMessage(tt.raw)))
		})
	}
}
