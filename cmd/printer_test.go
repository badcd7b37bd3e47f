package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lstailors/LST-MissionControl-sub000/internal/gateway"
	"github.com/lstailors/LST-MissionControl-sub000/internal/protocol"
)

// TestStreamPrinter_Incremental는 누적 텍스트에서 새로 붙은 부분만 출력하는지 테스트합니다.
func TestStreamPrinter_Incremental(t *testing.T) {
	var buf bytes.Buffer
	p := newStreamPrinter(&buf)

	p.chunk(gateway.StreamChunk{RunID: "r1", Text: "Hel"})
	p.chunk(gateway.StreamChunk{RunID: "r1", Text: "Hello"})
	p.end(gateway.StreamEnd{RunID: "r1", State: protocol.ChatStateFinal, Text: "Hello world"})

	assert.Equal(t, "Hello world\n", buf.String())
}

// TestStreamPrinter_Rewrite는 누적 텍스트가 바뀌면 새 줄에 다시 쓰는지 테스트합니다.
func TestStreamPrinter_Rewrite(t *testing.T) {
	var buf bytes.Buffer
	p := newStreamPrinter(&buf)

	p.chunk(gateway.StreamChunk{RunID: "r1", Text: "abc"})
	p.chunk(gateway.StreamChunk{RunID: "r1", Text: "xyz"})
	p.end(gateway.StreamEnd{RunID: "r1", State: protocol.ChatStateFinal, Text: "xyz"})

	assert.Equal(t, "abc\nxyz\n", buf.String())
}

func TestStreamPrinter_EndStates(t *testing.T) {
	tests := []struct {
		name string
		end  gateway.StreamEnd
		want []string
	}{
		{
			name: "에러 메시지",
			end:  gateway.StreamEnd{RunID: "r", State: protocol.ChatStateError, ErrorMessage: "rate limited"},
			want: []string{"rate limited"},
		},
		{
			name: "에러 메시지 없음",
			end:  gateway.StreamEnd{RunID: "r", State: protocol.ChatStateError},
			want: []string{"chat error"},
		},
		{
			name: "중단",
			end:  gateway.StreamEnd{RunID: "r", State: protocol.ChatStateAborted, Text: "partial", Aborted: true},
			want: []string{"partial\n", "[aborted]"},
		},
		{
			name: "미디어",
			end: gateway.StreamEnd{
				RunID: "r", State: protocol.ChatStateFinal, Text: "see",
				Media: []gateway.MediaRef{{URL: "https://x/y.png", Type: "image/png"}},
			},
			want: []string{"see\n", "media: https://x/y.png (image/png)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			newStreamPrinter(&buf).end(tt.end)
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

// TestStreamPrinter_LineBreaksStream은 상태 줄이 진행 중인 스트림 뒤에 새 줄로 찍히는지 테스트합니다.
func TestStreamPrinter_LineBreaksStream(t *testing.T) {
	var buf bytes.Buffer
	p := newStreamPrinter(&buf)

	p.chunk(gateway.StreamChunk{RunID: "r1", Text: "par"})
	p.line("status")
	p.chunk(gateway.StreamChunk{RunID: "r1", Text: "partial"})

	lines := strings.Split(buf.String(), "\n")
	assert.Equal(t, []string{"par", "status", "partial"}, lines)
}
