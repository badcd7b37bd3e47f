package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"k8s.io/utils/clock"

	"github.com/lstailors/LST-MissionControl-sub000/internal/protocol"
)

// 이벤트 루프 메시지
type (
	connectCmd struct {
		url, token string
		// force는 연결 중이어도 기존 소켓을 닫고 새로 연결합니다 (페어링 후 토큰 교체).
		force bool
	}
	disconnectCmd struct{ done chan struct{} }
	reconnectCmd  struct{ reason string }
	sendCmd       struct {
		msg   QueuedMessage
		reply chan sendDecision
	}
	// requeueCmd는 바로 보내기로 했던 메시지가 소켓을 잃어 큐로 되돌아온 것입니다.
	requeueCmd struct{ msg QueuedMessage }
	dialResult struct {
		gen uint64
		ws  *websocket.Conn
		err error
	}
	frameMsg struct {
		gen   uint64
		frame *protocol.Frame
	}
	closedMsg struct {
		gen uint64
		err error
	}
	handshakeResult struct {
		gen uint64
		err error
	}
	flushResult struct {
		epoch     uint64
		gen       uint64
		sent      int
		remaining []QueuedMessage
		err       error
	}
)

// sendDecision은 SendMessage에 대한 루프의 결정입니다.
type sendDecision struct {
	queued     bool
	sessionKey string
}

// loop는 이벤트 루프가 단독 소유하는 연결 상태입니다.
type loop struct {
	c *Client

	phase      Phase
	url, token string

	// gen은 현재 소켓의 세대입니다. 소켓을 버릴 때마다 증가하여
	// 이전 소켓에서 늦게 도착한 프레임, close, 다이얼/핸드셰이크 결과를 무시하게 합니다.
	gen  uint64
	conn *wsConn

	dialCancel      context.CancelFunc
	handshakeCancel context.CancelFunc
	handshaking     bool

	// explicit은 Disconnect로 끊었음을, suppressed는 권한 오류로 자동 재연결을 막았음을 뜻합니다.
	explicit   bool
	suppressed bool

	grace clock.Timer
	retry clock.Timer
	hb    heartbeat

	queue *offlineQueue
	// queueEpoch는 Disconnect로 큐를 비울 때 증가하여 진행 중이던 flush 결과를 무효화합니다.
	queueEpoch uint64
	flushing   bool
	// flushCancel은 진행 중인 flush의 요청을 취소합니다. 소켓을 버리면 함께 취소됩니다.
	flushCancel context.CancelFunc

	stream  streamMachine
	session string
}

// run은 이벤트 루프 본체입니다.
func (c *Client) run() {
	defer close(c.loopDone)

	l := &loop{
		c:       c,
		queue:   newOfflineQueue(c.opts.QueueLimit),
		session: c.opts.SessionKey,
		hb:      heartbeat{clock: c.clock, window: c.opts.HeartbeatTimeout},
	}

	for {
		select {
		case <-c.quit:
			l.shutdown()
			return
		case msg := <-c.inbox:
			l.handle(msg)
		case <-timerC(l.grace):
			l.grace = nil
			l.onGraceElapsed()
		case <-timerC(l.retry):
			l.retry = nil
			l.onRetry()
		case <-l.hb.C():
			l.hb.timer = nil
			l.onHeartbeatTimeout()
		}
		l.publish()
	}
}

func (l *loop) handle(msg interface{}) {
	switch m := msg.(type) {
	case connectCmd:
		l.onConnect(m)
	case disconnectCmd:
		l.onDisconnect(m)
	case reconnectCmd:
		l.onTriggerReconnect(m)
	case sendCmd:
		l.onSend(m)
	case requeueCmd:
		l.onRequeue(m)
	case dialResult:
		l.onDialResult(m)
	case frameMsg:
		l.onFrame(m)
	case closedMsg:
		l.onClosed(m)
	case handshakeResult:
		l.onHandshakeResult(m)
	case flushResult:
		l.onFlushResult(m)
	default:
		l.c.log.Error().Str("type", fmt.Sprintf("%T", msg)).Msg("알 수 없는 루프 메시지")
	}
}

func (l *loop) onConnect(cmd connectCmd) {
	if !cmd.force && (l.phase == PhaseConnecting || l.phase == PhaseConnected) {
		l.c.log.Debug().Str("phase", l.phase.String()).Msg("이미 연결 중이거나 연결됨, Connect 무시")
		return
	}

	if err := validateURL(cmd.url); err != nil {
		l.c.log.Error().Err(err).Msg("잘못된 게이트웨이 URL")
		l.emitStatus(err.Error())
		return
	}

	stopTimer(&l.retry)
	l.teardown(websocket.CloseNormalClosure, "reconnecting")

	l.explicit = false
	l.suppressed = false
	l.c.strategy.Reset()
	l.url, l.token = cmd.url, cmd.token

	l.dial()
}

// dial은 새 세대의 소켓 연결을 시작합니다. 결과는 dialResult로 돌아옵니다.
func (l *loop) dial() {
	c := l.c

	l.gen++
	gen := l.gen
	l.phase = PhaseConnecting
	c.metrics.ConnectionAttempts.Add(1)

	ctx, cancel := context.WithTimeout(c.ctx, ConnectTimeout)
	l.dialCancel = cancel

	c.log.Info().
		Str("url", l.url).
		Int("attempt", c.strategy.CurrentAttempt()).
		Msg("게이트웨이 연결 시도")
	l.emitStatus("")

	url, header := l.url, c.dialHeader()
	go func() {
		defer cancel()
		ws, _, err := c.dialer.DialContext(ctx, url, header)
		if !c.post(dialResult{gen: gen, ws: ws, err: err}) && ws != nil {
			_ = ws.Close()
		}
	}()
}

func (l *loop) onDialResult(r dialResult) {
	if r.gen != l.gen {
		// 그 사이 Disconnect 또는 새 Connect가 있었음
		if r.ws != nil {
			_ = r.ws.Close()
		}
		return
	}
	l.dialCancel = nil

	if r.err != nil {
		l.onDrop(fmt.Errorf("게이트웨이 연결 실패: %w", r.err), websocket.CloseNormalClosure, "")
		return
	}

	conn := newWSConn(r.gen, r.ws, l.c.metrics)
	l.conn = conn
	l.c.setConn(conn)
	go l.c.readLoop(conn)

	// connect.challenge를 유예 시간 동안 기다림
	l.grace = l.c.clock.NewTimer(l.c.opts.ChallengeGrace)
	l.c.log.Debug().Dur("grace", l.c.opts.ChallengeGrace).Msg("소켓 연결됨, connect.challenge 대기")
}

func (l *loop) onFrame(m frameMsg) {
	if m.gen != l.gen || l.conn == nil {
		return
	}

	l.c.metrics.RecordFrame()
	if l.phase == PhaseConnected {
		l.hb.touch()
	}

	frame := m.frame
	switch frame.Type {
	case protocol.FrameResponse:
		l.c.pending.resolve(frame)
	case protocol.FrameEvent:
		l.onEvent(frame)
	default:
		l.c.log.Debug().Str("type", frame.Type).Str("method", frame.Method).Msg("처리하지 않는 프레임 타입")
	}
}

func (l *loop) onEvent(frame *protocol.Frame) {
	switch frame.Event {
	case protocol.EventConnectChallenge:
		if l.grace == nil || l.handshaking {
			l.c.log.Debug().Msg("핸드셰이크 시작 이후 도착한 connect.challenge 무시")
			return
		}
		var challenge protocol.ChallengePayload
		if err := json.Unmarshal(frame.Payload, &challenge); err != nil {
			l.c.log.Warn().Err(err).Msg("connect.challenge 페이로드 파싱 실패, nonce 없이 진행")
		}
		stopTimer(&l.grace)
		l.startHandshake(challenge.Nonce)

	case protocol.EventChat:
		l.onChat(frame.Payload)

	default:
		emit(l.c.events, &l.c.onEvent, Event{Name: frame.Event, Payload: frame.Payload})
	}
}

func (l *loop) onChat(payload json.RawMessage) {
	c := l.c

	var ev protocol.ChatEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		c.metrics.MalformedFrames.Add(1)
		c.log.Warn().Err(err).Msg("chat 이벤트 파싱 실패")
		return
	}

	if !sessionAccepted(ev.SessionKey, l.session) {
		c.log.Debug().
			Str("session", ev.SessionKey).
			Str("active", l.session).
			Msg("다른 세션의 chat 이벤트 무시")
		return
	}

	upd := l.stream.apply(&ev)
	switch {
	case upd.stale:
		c.metrics.StaleDeltas.Add(1)
		c.log.Debug().Str("run_id", ev.RunID).Msg("누적 텍스트보다 짧은 delta 폐기")
	case upd.chunk != nil:
		c.metrics.StreamChunks.Add(1)
		emit(c.events, &c.onChunk, *upd.chunk)
	case upd.end != nil:
		c.metrics.StreamEnds.Add(1)
		emit(c.events, &c.onEnd, *upd.end)
	default:
		c.log.Debug().Str("state", ev.State).Msg("알 수 없는 chat 상태 무시")
	}
}

func (l *loop) onGraceElapsed() {
	if l.conn == nil || l.handshaking {
		return
	}
	l.c.log.Debug().Msg("connect.challenge 유예 시간 경과, nonce 없이 핸드셰이크")
	l.startHandshake("")
}

// startHandshake는 connect 요청을 별도 고루틴에서 보냅니다.
// 응답 대기가 루프를 막으면 응답 프레임 자체를 처리할 수 없기 때문입니다.
func (l *loop) startHandshake(nonce string) {
	c := l.c
	l.handshaking = true

	ctx, cancel := context.WithCancel(c.ctx)
	l.handshakeCancel = cancel

	gen, conn, token := l.gen, l.conn, l.token
	go func() {
		defer cancel()
		err := c.handshake(ctx, conn, token, nonce)
		c.post(handshakeResult{gen: gen, err: err})
	}()
}

func (l *loop) onHandshakeResult(r handshakeResult) {
	if r.gen != l.gen {
		return
	}
	c := l.c
	l.handshaking = false
	l.handshakeCancel = nil

	if r.err == nil {
		l.phase = PhaseConnected
		c.strategy.Reset()
		l.hb.start()
		c.metrics.HandshakeSuccesses.Add(1)
		c.metrics.SetConnected(true)

		c.log.Info().Str("url", l.url).Msg("게이트웨이 핸드셰이크 완료")
		l.emitStatus("")
		l.flush()
		return
	}

	c.metrics.HandshakeFailures.Add(1)
	reason := fmt.Errorf("handshake failed: %w", r.err)

	if isScopeError(r.err) {
		c.metrics.ScopeErrors.Add(1)
		c.log.Warn().Err(r.err).Msg("권한 부족으로 핸드셰이크 거부, 재페어링 필요")

		l.suppressed = true
		l.onDrop(reason, websocket.ClosePolicyViolation, "unauthorized")
		emit(c.events, &c.onScope, ScopeError{Message: errorText(r.err)})
		return
	}

	c.log.Warn().Err(r.err).Msg("핸드셰이크 실패")
	l.onDrop(reason, websocket.CloseNormalClosure, "handshake failed")
}

func (l *loop) onClosed(m closedMsg) {
	if m.gen != l.gen {
		return
	}
	l.c.log.Warn().Str("reason", errorText(m.err)).Msg("게이트웨이 연결 끊김")
	l.onDrop(fmt.Errorf("connection lost: %s", errorText(m.err)), websocket.CloseNormalClosure, "")
}

func (l *loop) onHeartbeatTimeout() {
	if l.phase != PhaseConnected {
		return
	}
	c := l.c
	c.metrics.HeartbeatTimeouts.Add(1)
	c.log.Warn().Dur("window", c.opts.HeartbeatTimeout).Msg("수신 무활동 시간 초과, 연결 강제 종료")

	// close 이벤트를 기다리지 않고 즉시 끊김으로 처리 (이전 세대의 close는 무시됨)
	l.onDrop(ErrHeartbeatTimeout, CloseHeartbeatTimeout, "heartbeat timeout")
}

// onDrop은 현재 소켓을 버리고 idle로 전이한 뒤, 허용되면 재연결을 예약합니다.
// 재연결 타이머를 먼저 예약하고 상태를 발행하므로 구독자는 예약된 시도 횟수를 봅니다.
func (l *loop) onDrop(reason error, code int, text string) {
	l.teardown(code, text)
	l.phase = PhaseIdle
	l.c.metrics.SetConnected(false)

	auto := !l.explicit && !l.suppressed
	retrying := auto && l.scheduleReconnect()

	l.emitStatus(errorText(reason))
	if auto && !retrying {
		l.emit(StatusUpdate{
			Phase:     l.phase,
			Error:     fmt.Sprintf("reconnect attempts exhausted (%d)", l.c.strategy.MaxAttempts()),
			Attempt:   l.c.strategy.CurrentAttempt(),
			Exhausted: true,
		})
	}
}

// scheduleReconnect는 백오프 지연 후 재연결을 예약합니다. 시도 횟수를 다 썼으면 false입니다.
func (l *loop) scheduleReconnect() bool {
	c := l.c
	if !c.strategy.CanRetry() {
		c.log.Error().
			Int("max_attempts", c.strategy.MaxAttempts()).
			Msg("최대 재연결 시도 횟수 초과, 재연결 중단")
		return false
	}

	delay := c.strategy.NextDelay()
	c.metrics.Reconnections.Add(1)
	c.log.Info().
		Int("attempt", c.strategy.CurrentAttempt()).
		Int("remaining", c.strategy.RemainingAttempts()).
		Dur("delay", delay).
		Msg("재연결 예약")

	stopTimer(&l.retry)
	l.retry = c.clock.NewTimer(delay)
	return true
}

func (l *loop) onRetry() {
	if l.explicit || l.suppressed || l.phase != PhaseIdle {
		return
	}
	l.dial()
}

func (l *loop) onTriggerReconnect(cmd reconnectCmd) {
	if l.explicit || l.suppressed || l.url == "" {
		return
	}
	l.c.log.Info().Str("reason", cmd.reason).Msg("외부 재연결 트리거 수신")

	// 네트워크 변경은 일시적 장애가 아니므로 카운터 리셋
	l.c.strategy.Reset()
	l.onDrop(errors.New(cmd.reason), websocket.CloseGoingAway, "reconnecting")
}

func (l *loop) onDisconnect(cmd disconnectCmd) {
	defer close(cmd.done)
	c := l.c

	l.explicit = true
	c.strategy.Exhaust()
	stopTimer(&l.retry)

	if l.conn != nil {
		l.phase = PhaseClosing
		l.publish()
	}
	l.teardown(websocket.CloseNormalClosure, "client disconnect")
	l.phase = PhaseIdle

	if dropped := l.queue.len(); dropped > 0 {
		c.log.Info().Int("dropped", dropped).Msg("Disconnect로 오프라인 큐 폐기")
	}
	l.queue.clear()
	l.queueEpoch++
	l.flushing = false
	l.cancelFlush()
	l.stream.reset()

	c.metrics.SetConnected(false)
	c.log.Info().Msg("게이트웨이 연결 종료")
	l.emitStatus("")
	// Disconnect가 반환될 때 Status가 이미 최신이도록
	l.publish()
}

func (l *loop) onSend(cmd sendCmd) {
	c := l.c
	if cmd.msg.SessionKey != "" {
		l.session = cmd.msg.SessionKey
	} else {
		cmd.msg.SessionKey = l.session
	}

	// 큐가 비어 있을 때만 바로 보냄. 그렇지 않으면 큐 뒤에 붙여 순서를 유지
	if l.phase == PhaseConnected && !l.flushing && l.queue.len() == 0 {
		cmd.reply <- sendDecision{sessionKey: cmd.msg.SessionKey}
		return
	}

	evicted := l.queue.push(cmd.msg)
	c.metrics.MessagesQueued.Add(1)
	if evicted > 0 {
		c.metrics.MessagesEvicted.Add(int64(evicted))
		c.log.Warn().Int("evicted", evicted).Int("limit", l.queue.limit).Msg("오프라인 큐가 가득 차 가장 오래된 메시지 폐기")
	}
	cmd.reply <- sendDecision{queued: true, sessionKey: cmd.msg.SessionKey}

	l.flush()
}

// onRequeue는 직접 전송 경로에서 소켓을 잃은 메시지를 큐 앞에 되돌립니다.
// 그 사이 큐에 들어온 메시지보다 먼저 보내져야 순서가 유지됩니다.
func (l *loop) onRequeue(cmd requeueCmd) {
	c := l.c
	c.metrics.MessagesQueued.Add(1)
	if evicted := l.queue.requeueFront([]QueuedMessage{cmd.msg}); evicted > 0 {
		c.metrics.MessagesEvicted.Add(int64(evicted))
		c.log.Warn().Int("evicted", evicted).Int("limit", l.queue.limit).Msg("오프라인 큐가 가득 차 가장 오래된 메시지 폐기")
	}
	c.log.Info().Str("idempotency_key", cmd.msg.IdempotencyKey).Msg("전송 직전 연결이 끊겨 메시지를 큐에 보관")
	l.flush()
}

// flush는 연결된 상태에서 큐를 한 번에 꺼내 별도 고루틴에서 순서대로 보냅니다.
// 요청은 현재 소켓 수명에 묶인 ctx로 보내므로 소켓을 버리면 즉시 실패하고 큐로 돌아옵니다.
func (l *loop) flush() {
	if l.flushing || l.phase != PhaseConnected || l.queue.len() == 0 {
		return
	}
	batch := l.queue.drain()
	l.flushing = true

	ctx, cancel := context.WithCancel(l.c.ctx)
	l.flushCancel = cancel

	l.c.log.Info().
		Int("count", len(batch)).
		Dur("oldest_age", l.c.clock.Since(batch[0].EnqueuedAt)).
		Msg("오프라인 큐 전송 시작")
	go l.c.flushBatch(ctx, flushResult{epoch: l.queueEpoch, gen: l.gen}, batch)
}

func (l *loop) cancelFlush() {
	if l.flushCancel != nil {
		l.flushCancel()
		l.flushCancel = nil
	}
}

func (l *loop) onFlushResult(r flushResult) {
	if r.epoch != l.queueEpoch {
		// Disconnect로 폐기된 큐의 결과
		return
	}
	c := l.c
	l.flushing = false
	l.cancelFlush()
	c.metrics.MessagesFlushed.Add(int64(r.sent))

	if r.err != nil {
		c.metrics.FlushFailures.Add(1)
		evicted := l.queue.requeueFront(r.remaining)
		c.metrics.MessagesEvicted.Add(int64(evicted))
		c.log.Warn().
			Err(r.err).
			Int("sent", r.sent).
			Int("requeued", len(r.remaining)).
			Msg("오프라인 큐 전송 중단, 남은 메시지 재보관")
		if r.gen != l.gen {
			// 이전 소켓에서 시작한 flush. 이미 새 연결이 맺어졌다면 바로 다시 보냄
			l.flush()
		}
		return
	}

	c.log.Info().Int("sent", r.sent).Msg("오프라인 큐 전송 완료")
	// 전송 중 새로 쌓인 메시지
	l.flush()
}

// teardown은 현재 소켓과 소켓에 묶인 타이머, 진행 중인 다이얼/핸드셰이크를 정리합니다.
func (l *loop) teardown(code int, reason string) {
	stopTimer(&l.grace)
	l.hb.stop()

	if l.dialCancel != nil {
		l.dialCancel()
		l.dialCancel = nil
	}
	if l.handshakeCancel != nil {
		l.handshakeCancel()
		l.handshakeCancel = nil
	}
	l.handshaking = false
	l.cancelFlush()

	// 이전 소켓에서 늦게 도착하는 메시지를 무시하도록 세대 증가
	l.gen++

	if l.conn != nil {
		conn := l.conn
		l.conn = nil
		l.c.setConn(nil)
		// close 프레임 전송이 루프를 막지 않도록 비동기로 닫음
		go conn.close(code, reason)
	}
}

func (l *loop) shutdown() {
	stopTimer(&l.retry)
	l.teardown(websocket.CloseGoingAway, "client closed")
	l.phase = PhaseIdle
}

// emitStatus는 현재 단계로 상태 변화를 발행합니다.
func (l *loop) emitStatus(errText string) {
	l.emit(StatusUpdate{
		Phase:      l.phase,
		Connected:  l.phase == PhaseConnected,
		Connecting: l.phase == PhaseConnecting,
		Error:      errText,
		Attempt:    l.c.strategy.CurrentAttempt(),
	})
}

func (l *loop) emit(u StatusUpdate) {
	emit(l.c.events, &l.c.onStatus, u)
}

// publish는 Status()가 읽는 스냅샷을 갱신합니다.
func (l *loop) publish() {
	c := l.c
	c.metrics.QueueDepth.Store(int64(l.queue.len()))

	c.stateMu.Lock()
	c.state = Status{
		Phase:       l.phase,
		URL:         l.url,
		Attempt:     c.strategy.CurrentAttempt(),
		MaxAttempts: c.strategy.MaxAttempts(),
		QueueSize:   l.queue.len(),
		SessionKey:  l.session,
	}
	c.stateMu.Unlock()
}

func timerC(t clock.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C()
}

func stopTimer(t *clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
