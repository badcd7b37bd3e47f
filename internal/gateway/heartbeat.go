package gateway

import (
	"time"

	"k8s.io/utils/clock"
)

// DefaultHeartbeatTimeout은 수신 무활동 허용 시간입니다.
// 이 시간 동안 어떤 프레임도 받지 못하면 연결이 죽은 것으로 봅니다.
const DefaultHeartbeatTimeout = 45 * time.Second

// heartbeat는 수신 프레임마다 재설정되는 dead-man 타이머입니다.
// 이벤트 루프에서만 접근합니다.
type heartbeat struct {
	clock  clock.Clock
	window time.Duration
	timer  clock.Timer
}

// start는 타이머를 (재)시작합니다.
// Reset 대신 새 타이머를 만들어, 이미 발화해 채널에 남은 값이 다음 주기로 새지 않게 합니다.
func (h *heartbeat) start() {
	h.stop()
	h.timer = h.clock.NewTimer(h.window)
}

// touch는 동작 중일 때만 타이머를 재설정합니다.
func (h *heartbeat) touch() {
	if h.timer != nil {
		h.start()
	}
}

func (h *heartbeat) stop() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// C는 발화 채널을 반환합니다. 멈춘 상태에서는 nil이라 select에서 선택되지 않습니다.
func (h *heartbeat) C() <-chan time.Time {
	if h.timer == nil {
		return nil
	}
	return h.timer.C()
}
