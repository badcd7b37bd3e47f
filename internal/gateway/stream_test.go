package gateway

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lstailors/LST-MissionControl-sub000/internal/protocol"
)

func chatEvent(state, runID, text string) *protocol.ChatEvent {
	msg, _ := json.Marshal(map[string]interface{}{
		"role":    "assistant",
		"content": []map[string]string{{"type": "text", "text": text}},
	})
	return &protocol.ChatEvent{State: state, RunID: runID, SessionKey: "main", Message: msg}
}

func TestStream_DeltaMonotonic(t *testing.T) {
	var m streamMachine

	upd := m.apply(chatEvent(protocol.ChatStateDelta, "r1", "Hel"))
	require.NotNil(t, upd.chunk)
	assert.Equal(t, "Hel", upd.chunk.Text)

	upd = m.apply(chatEvent(protocol.ChatStateDelta, "r1", "Hello"))
	require.NotNil(t, upd.chunk)
	assert.Equal(t, "Hello", upd.chunk.Text)

	// 더 짧은 delta는 순서가 뒤바뀐 것으로 보고 버림
	upd = m.apply(chatEvent(protocol.ChatStateDelta, "r1", "He"))
	assert.True(t, upd.stale)
	assert.Nil(t, upd.chunk)
	assert.Equal(t, "Hello", m.text)

	// 같은 길이는 수락
	upd = m.apply(chatEvent(protocol.ChatStateDelta, "r1", "Hellp"))
	require.NotNil(t, upd.chunk)
	assert.Equal(t, "Hellp", m.text)
}

func TestStream_MonotonicOverManyDeltas(t *testing.T) {
	var m streamMachine
	lengths := []int{1, 5, 3, 8, 8, 2, 12}
	published := 0

	for _, n := range lengths {
		text := ""
		for i := 0; i < n; i++ {
			text += "x"
		}
		upd := m.apply(chatEvent(protocol.ChatStateDelta, "r", text))
		if upd.chunk != nil {
			assert.GreaterOrEqual(t, len(upd.chunk.Text), published, fmt.Sprintf("len %d", n))
			published = len(upd.chunk.Text)
		}
	}
	assert.Equal(t, 12, published)
}

func TestStream_FinalFallsBackToBuffer(t *testing.T) {
	var m streamMachine
	m.apply(chatEvent(protocol.ChatStateDelta, "r1", "partial answer"))

	upd := m.apply(&protocol.ChatEvent{State: protocol.ChatStateFinal, RunID: "r1"})
	require.NotNil(t, upd.end)
	assert.Equal(t, "partial answer", upd.end.Text)
	assert.Equal(t, protocol.ChatStateFinal, upd.end.State)
	assert.False(t, m.active())
}

func TestStream_FinalPrefersPayloadText(t *testing.T) {
	var m streamMachine
	m.apply(chatEvent(protocol.ChatStateDelta, "r1", "draft"))

	upd := m.apply(chatEvent(protocol.ChatStateFinal, "r1", "the final text"))
	require.NotNil(t, upd.end)
	assert.Equal(t, "the final text", upd.end.Text)
	assert.False(t, m.active())
}

func TestStream_FinalForOtherRunDoesNotUseBuffer(t *testing.T) {
	var m streamMachine
	m.apply(chatEvent(protocol.ChatStateDelta, "r1", "r1 text"))

	upd := m.apply(&protocol.ChatEvent{State: protocol.ChatStateFinal, RunID: "r2"})
	require.NotNil(t, upd.end)
	assert.Equal(t, "", upd.end.Text)
	assert.False(t, m.active())
}

func TestStream_ErrorSynthesizesMessage(t *testing.T) {
	var m streamMachine
	m.apply(chatEvent(protocol.ChatStateDelta, "r1", "abc"))

	upd := m.apply(&protocol.ChatEvent{State: protocol.ChatStateError, RunID: "r1", ErrorMessage: "rate limited"})
	require.NotNil(t, upd.end)
	assert.Equal(t, "Error: rate limited", upd.end.Text)
	assert.Equal(t, "rate limited", upd.end.ErrorMessage)
	assert.False(t, m.active())

	upd = m.apply(&protocol.ChatEvent{State: protocol.ChatStateError, RunID: "r2"})
	assert.Equal(t, defaultErrorText, upd.end.Text)
}

func TestStream_Aborted(t *testing.T) {
	var m streamMachine
	m.apply(chatEvent(protocol.ChatStateDelta, "r1", "abc"))

	upd := m.apply(&protocol.ChatEvent{State: protocol.ChatStateAborted, RunID: "r1"})
	require.NotNil(t, upd.end)
	assert.True(t, upd.end.Aborted)
	assert.Equal(t, StoppedText, upd.end.Text)
	assert.False(t, m.active())
}

func TestStream_NewRunReplacesBuffer(t *testing.T) {
	var m streamMachine
	m.apply(chatEvent(protocol.ChatStateDelta, "r1", "a long first answer"))

	// 다른 실행의 짧은 delta는 stale이 아님
	upd := m.apply(chatEvent(protocol.ChatStateDelta, "r2", "hi"))
	require.NotNil(t, upd.chunk)
	assert.Equal(t, "r2", m.runID)
	assert.Equal(t, "hi", upd.chunk.Text)
}

func TestStream_MediaLineResolvedOnceComplete(t *testing.T) {
	var m streamMachine

	// 줄바꿈으로 끝나지 않은 MEDIA 줄은 보류
	upd := m.apply(chatEvent(protocol.ChatStateDelta, "r1", "Look\nMEDIA: https://x.io/a.png"))
	require.NotNil(t, upd.chunk)
	assert.Equal(t, "Look", upd.chunk.Text)
	assert.Empty(t, upd.chunk.Media)

	// 다음 줄이 시작되면 MEDIA 줄을 제거하고 미디어로 전달
	upd = m.apply(chatEvent(protocol.ChatStateDelta, "r1", "Look\nMEDIA: https://x.io/a.png\nmore"))
	require.NotNil(t, upd.chunk)
	assert.Equal(t, "Look\nmore", upd.chunk.Text)
	require.Len(t, upd.chunk.Media, 1)
	assert.Equal(t, "https://x.io/a.png", upd.chunk.Media[0].URL)
}

func TestStream_PartialMediaLineKeepsLengthMonotonic(t *testing.T) {
	tests := []struct {
		name   string
		deltas []string
		want   string
	}{
		{
			name:   "경로가 나뉘어 도착",
			deltas: []string{"Here you go\nMEDIA:", "Here you go\nMEDIA:/tm", "Here you go\nMEDIA:/tmp/cat.png"},
			want:   "Here you go",
		},
		{
			name:   "MEDIA 줄 앞의 공백 줄",
			deltas: []string{"Hello \n", "Hello \nMEDIA:/tmp/x.png", "Hello \nMEDIA:/tmp/x.png\n"},
			want:   "Hello \n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m streamMachine
			published := 0
			var last StreamChunk

			for _, d := range tt.deltas {
				upd := m.apply(chatEvent(protocol.ChatStateDelta, "r1", d))
				require.NotNil(t, upd.chunk, d)
				assert.GreaterOrEqual(t, len(upd.chunk.Text), published, "delta %q", d)
				published = len(upd.chunk.Text)
				last = *upd.chunk
			}
			assert.Equal(t, tt.want, last.Text)
			for _, ref := range last.Media {
				assert.NotEqual(t, "mc-media://local/tm", ref.URL, "덜 도착한 경로가 미디어로 전달됨")
			}

			// final에서는 MEDIA 줄이 해석됨
			upd := m.apply(&protocol.ChatEvent{State: protocol.ChatStateFinal, RunID: "r1"})
			require.NotNil(t, upd.end)
			require.Len(t, upd.end.Media, 1)
			assert.Equal(t, "/tmp", upd.end.Media[0].Path[:4])
		})
	}
}

func TestStream_PayloadMediaSurfaced(t *testing.T) {
	var m streamMachine
	ev := chatEvent(protocol.ChatStateFinal, "r1", "voice reply")
	ev.MediaURL = "/tmp/reply.ogg"
	ev.MediaType = "audio/ogg"

	upd := m.apply(ev)
	require.NotNil(t, upd.end)
	require.Len(t, upd.end.Media, 1)
	assert.Equal(t, "audio/ogg", upd.end.Media[0].Type)
	assert.Equal(t, "mc-media://local/tmp/reply.ogg", upd.end.Media[0].URL)
}

func TestStream_UnknownStateIgnored(t *testing.T) {
	var m streamMachine
	upd := m.apply(&protocol.ChatEvent{State: "thinking", RunID: "r1"})
	assert.Nil(t, upd.chunk)
	assert.Nil(t, upd.end)
	assert.False(t, upd.stale)
}

func TestSessionAccepted(t *testing.T) {
	tests := []struct {
		event, active string
		want          bool
	}{
		{"", "main", true},
		{"main", "main", true},
		{"other", "main", false},
		{"anything", "", true},
		{"agent:main:isolated:job-1", "agent:main:isolated:job-1", false},
		{"agent:main:background", "", false},
		{"agent:main:main", "agent:main:main", true},
	}

	for _, tt := range tests {
		got := sessionAccepted(tt.event, tt.active)
		assert.Equal(t, tt.want, got, "event=%q active=%q", tt.event, tt.active)
	}
}
