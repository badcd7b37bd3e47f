package gateway

import (
	"strings"

	"github.com/lstailors/LST-MissionControl-sub000/internal/protocol"
)

// StoppedText는 aborted 스트림 종료 시 전달하는 표시 문구입니다.
const StoppedText = "Stopped."

// defaultErrorText는 errorMessage가 없는 error 이벤트의 문구입니다.
const defaultErrorText = "Error: the agent run failed"

// StreamChunk는 수락된 delta 하나입니다. Text는 지금까지 누적된 전체 텍스트입니다.
type StreamChunk struct {
	RunID      string
	SessionKey string
	Text       string
	Media      []MediaRef
}

// StreamEnd는 실행 하나의 종료(final, error, aborted)입니다.
type StreamEnd struct {
	RunID      string
	SessionKey string
	State      string
	Text       string
	Media      []MediaRef
	// ErrorMessage는 error 상태에서 게이트웨이가 보낸 원문입니다.
	ErrorMessage string
	Aborted      bool
}

// streamUpdate는 chat 이벤트 하나를 적용한 결과입니다. 최대 하나만 채워집니다.
type streamUpdate struct {
	chunk *StreamChunk
	end   *StreamEnd
	// stale은 누적 텍스트보다 짧아 버려진 delta입니다.
	stale bool
}

// streamMachine은 활성 실행 하나의 누적 텍스트를 관리합니다.
// 누적 텍스트는 원문 그대로(MEDIA 줄 포함) 저장하고, 길이 비교도 원문 기준입니다.
// 이벤트 루프에서만 접근합니다.
type streamMachine struct {
	runID string
	text  string
	// shown은 마지막으로 전달한 표시 텍스트입니다. 전달되는 텍스트 길이는 줄지 않습니다.
	shown string
}

// active는 진행 중인 실행이 있는지 반환합니다.
func (m *streamMachine) active() bool {
	return m.runID != ""
}

func (m *streamMachine) reset() {
	m.runID = ""
	m.text = ""
	m.shown = ""
}

// apply는 chat 이벤트를 상태 머신에 적용합니다.
func (m *streamMachine) apply(ev *protocol.ChatEvent) streamUpdate {
	raw := flattenMessage(ev.Message)

	switch ev.State {
	case protocol.ChatStateDelta:
		if ev.RunID != m.runID {
			// 새 실행이 시작되면 이전 실행의 누적 텍스트는 버림
			m.runID = ev.RunID
			m.text = ""
			m.shown = ""
		}
		if len(raw) < len(m.text) {
			return streamUpdate{stale: true}
		}
		m.text = raw

		text, media := extractMedia(settledText(raw))
		if len(text) < len(m.shown) {
			// MEDIA 줄 제거로 짧아진 경우 이전 표시 텍스트 유지
			text = m.shown
		}
		m.shown = text
		return streamUpdate{chunk: &StreamChunk{
			RunID:      ev.RunID,
			SessionKey: ev.SessionKey,
			Text:       text,
			Media:      collectMedia(media, ev.MediaURL, ev.MediaType),
		}}

	case protocol.ChatStateFinal:
		if raw == "" && ev.RunID == m.runID {
			raw = m.text
		}
		m.reset()

		text, media := extractMedia(raw)
		return streamUpdate{end: &StreamEnd{
			RunID:      ev.RunID,
			SessionKey: ev.SessionKey,
			State:      protocol.ChatStateFinal,
			Text:       text,
			Media:      collectMedia(media, ev.MediaURL, ev.MediaType),
		}}

	case protocol.ChatStateError:
		m.reset()

		text := defaultErrorText
		if msg := strings.TrimSpace(ev.ErrorMessage); msg != "" {
			text = "Error: " + msg
		}
		return streamUpdate{end: &StreamEnd{
			RunID:        ev.RunID,
			SessionKey:   ev.SessionKey,
			State:        protocol.ChatStateError,
			Text:         text,
			ErrorMessage: ev.ErrorMessage,
			Media:        collectMedia(nil, ev.MediaURL, ev.MediaType),
		}}

	case protocol.ChatStateAborted:
		m.reset()

		return streamUpdate{end: &StreamEnd{
			RunID:      ev.RunID,
			SessionKey: ev.SessionKey,
			State:      protocol.ChatStateAborted,
			Text:       StoppedText,
			Aborted:    true,
			Media:      collectMedia(nil, ev.MediaURL, ev.MediaType),
		}}
	}

	return streamUpdate{}
}

// settledText는 줄바꿈으로 끝나지 않은 마지막 줄에 MEDIA 토큰이 있으면 떼어냅니다.
// 스트리밍 중인 줄의 경로는 아직 덜 도착했을 수 있어 final 또는 다음 줄바꿈까지 보류합니다.
func settledText(raw string) string {
	i := strings.LastIndex(raw, "\n")
	if !strings.Contains(raw[i+1:], MediaMarker) {
		return raw
	}
	if i < 0 {
		return ""
	}
	return raw[:i]
}

// backgroundMarkers는 사용자 대화가 아닌 세션 키에 포함되는 구간입니다.
var backgroundMarkers = []string{"isolated", "background"}

// sessionAccepted는 chat 이벤트를 현재 대화로 전달할지 결정합니다.
// 키가 없는 이벤트와 활성 세션과 같은 키는 수락하고,
// 격리/백그라운드 세션은 항상 버립니다.
func sessionAccepted(eventKey, activeKey string) bool {
	if eventKey == "" {
		return true
	}
	if isBackgroundSession(eventKey) {
		return false
	}
	return activeKey == "" || eventKey == activeKey
}

// isBackgroundSession은 ':'로 구분된 세션 키 구간 중 격리 표식이 있는지 확인합니다.
func isBackgroundSession(key string) bool {
	for _, segment := range strings.Split(strings.ToLower(key), ":") {
		for _, marker := range backgroundMarkers {
			if segment == marker {
				return true
			}
		}
	}
	return false
}
