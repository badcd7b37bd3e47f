package gateway

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lstailors/LST-MissionControl-sub000/internal/metrics"
)

// 전송 계층 상수
const (
	// WriteTimeout은 메시지 쓰기 타임아웃입니다.
	WriteTimeout = 10 * time.Second

	// ConnectTimeout은 WebSocket 다이얼 타임아웃입니다.
	ConnectTimeout = 30 * time.Second

	// MaxMessageSize는 최대 수신 메시지 크기입니다 (4MB).
	MaxMessageSize = 4 * 1024 * 1024

	// PingTimeout은 WebSocket ping 전송 대기 시간입니다.
	PingTimeout = 5 * time.Second

	// CloseHeartbeatTimeout은 무활동 감시로 끊을 때 사용하는 close 코드입니다.
	// 4000번대는 애플리케이션 정의 코드 영역입니다.
	CloseHeartbeatTimeout = 4000
)

// wsConn은 소켓 하나와 그 세대 번호입니다.
// gorilla/websocket은 동시 쓰기를 허용하지 않으므로 모든 쓰기는 writeMu로 직렬화합니다.
type wsConn struct {
	gen     uint64
	ws      *websocket.Conn
	metrics *metrics.Metrics

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSConn(gen uint64, ws *websocket.Conn, m *metrics.Metrics) *wsConn {
	ws.SetReadLimit(MaxMessageSize)
	return &wsConn{gen: gen, ws: ws, metrics: m}
}

// writeJSON은 v를 텍스트 프레임으로 전송합니다.
func (w *wsConn) writeJSON(v interface{}) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.ws.SetWriteDeadline(time.Now().Add(WriteTimeout)); err != nil {
		return err
	}
	if err := w.ws.WriteJSON(v); err != nil {
		return err
	}
	w.metrics.FramesSent.Add(1)
	return nil
}

// ping은 ping 컨트롤 프레임을 보내 소켓이 쓰기 가능한지 확인합니다.
func (w *wsConn) ping() error {
	return w.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(PingTimeout))
}

// close는 close 프레임을 보낸 뒤 소켓을 닫습니다. 여러 번 호출해도 안전합니다.
// close 프레임 전송 실패는 무시합니다 (이미 끊긴 소켓일 수 있음).
func (w *wsConn) close(code int, reason string) {
	w.closeOnce.Do(func() {
		w.writeMu.Lock()
		_ = w.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second),
		)
		w.writeMu.Unlock()
		_ = w.ws.Close()
	})
}

// HTTPBaseURL은 WebSocket URL에서 같은 호스트의 HTTP(S) 기본 URL을 만듭니다.
// ws -> http, wss -> https. 페어링 API 호출에 사용합니다.
func HTTPBaseURL(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil || u.Host == "" {
		// 파싱 실패 시 단순 문자열 치환
		result := strings.Replace(wsURL, "wss://", "https://", 1)
		result = strings.Replace(result, "ws://", "http://", 1)
		return strings.TrimRight(result, "/")
	}

	scheme := "http"
	switch u.Scheme {
	case "wss", "https":
		scheme = "https"
	}

	return scheme + "://" + u.Host
}

// validateURL은 다이얼 가능한 ws/wss URL인지 확인합니다.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return &url.Error{Op: "dial", URL: raw, Err: errUnsupportedScheme}
	}
	if u.Host == "" {
		return &url.Error{Op: "dial", URL: raw, Err: errMissingHost}
	}
	return nil
}
