package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lstailors/LST-MissionControl-sub000/internal/gateway"
	"github.com/lstailors/LST-MissionControl-sub000/internal/protocol"
)

// fakeChatClient는 REPL 테스트용 클라이언트입니다.
type fakeChatClient struct {
	sent     []string
	queued   bool
	sendErr  error
	aborted  int
	historyN int
	history  json.RawMessage
	status   gateway.Status
}

func (f *fakeChatClient) SendMessage(ctx context.Context, text string, attachments []protocol.Attachment, sessionKey string) (gateway.SendResult, error) {
	if f.sendErr != nil {
		return gateway.SendResult{}, f.sendErr
	}
	f.sent = append(f.sent, text)
	if f.queued {
		f.status.QueueSize++
		return gateway.SendResult{Queued: true}, nil
	}
	return gateway.SendResult{RunID: "run-1"}, nil
}

func (f *fakeChatClient) Abort(ctx context.Context, runID string) error {
	f.aborted++
	return nil
}

func (f *fakeChatClient) History(ctx context.Context, sessionKey string, limit int) (json.RawMessage, error) {
	f.historyN = limit
	return f.history, nil
}

func (f *fakeChatClient) Status() gateway.Status {
	return f.status
}

func TestHandleChatLine(t *testing.T) {
	ctx := context.Background()

	t.Run("메시지 전송", func(t *testing.T) {
		var buf bytes.Buffer
		c := &fakeChatClient{}
		quit, err := handleChatLine(ctx, c, newStreamPrinter(&buf), "  hello  ")
		require.NoError(t, err)
		assert.False(t, quit)
		assert.Equal(t, []string{"hello"}, c.sent)
		assert.Empty(t, buf.String())
	})

	t.Run("오프라인 큐 보관 안내", func(t *testing.T) {
		var buf bytes.Buffer
		c := &fakeChatClient{queued: true}
		_, err := handleChatLine(ctx, c, newStreamPrinter(&buf), "hello")
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "1개 대기")
	})

	t.Run("전송 실패", func(t *testing.T) {
		c := &fakeChatClient{sendErr: errors.New("boom")}
		_, err := handleChatLine(ctx, c, newStreamPrinter(&bytes.Buffer{}), "hello")
		assert.ErrorContains(t, err, "boom")
	})

	t.Run("빈 줄 무시", func(t *testing.T) {
		c := &fakeChatClient{}
		quit, err := handleChatLine(ctx, c, newStreamPrinter(&bytes.Buffer{}), "   ")
		require.NoError(t, err)
		assert.False(t, quit)
		assert.Empty(t, c.sent)
	})

	t.Run("종료", func(t *testing.T) {
		quit, err := handleChatLine(ctx, &fakeChatClient{}, newStreamPrinter(&bytes.Buffer{}), "/quit")
		require.NoError(t, err)
		assert.True(t, quit)
	})

	t.Run("중단", func(t *testing.T) {
		c := &fakeChatClient{}
		_, err := handleChatLine(ctx, c, newStreamPrinter(&bytes.Buffer{}), "/abort")
		require.NoError(t, err)
		assert.Equal(t, 1, c.aborted)
	})

	t.Run("기록 조회", func(t *testing.T) {
		var buf bytes.Buffer
		c := &fakeChatClient{history: json.RawMessage(`{"messages":[]}`)}
		_, err := handleChatLine(ctx, c, newStreamPrinter(&buf), "/history 5")
		require.NoError(t, err)
		assert.Equal(t, 5, c.historyN)
		assert.Contains(t, buf.String(), `"messages"`)
	})

	t.Run("기록 개수 오류", func(t *testing.T) {
		_, err := handleChatLine(ctx, &fakeChatClient{}, newStreamPrinter(&bytes.Buffer{}), "/history abc")
		assert.Error(t, err)
	})

	t.Run("상태", func(t *testing.T) {
		var buf bytes.Buffer
		c := &fakeChatClient{status: gateway.Status{
			Phase: gateway.PhaseIdle, URL: "ws://gw", SessionKey: "main", Attempt: 2, MaxAttempts: 10,
		}}
		_, err := handleChatLine(ctx, c, newStreamPrinter(&buf), "/status")
		require.NoError(t, err)
		out := buf.String()
		assert.Contains(t, out, "ws://gw")
		assert.Contains(t, out, "main")
		assert.Contains(t, out, "2/10")
	})

	t.Run("알 수 없는 명령", func(t *testing.T) {
		_, err := handleChatLine(ctx, &fakeChatClient{}, newStreamPrinter(&bytes.Buffer{}), "/nope")
		assert.ErrorContains(t, err, "/nope")
	})
}

func TestPrettyJSON(t *testing.T) {
	assert.Equal(t, "null", prettyJSON(nil))
	assert.Equal(t, "not json", prettyJSON(json.RawMessage("not json")))
	assert.Equal(t, "{\n  \"a\": 1\n}", prettyJSON(json.RawMessage(`{"a":1}`)))
}
