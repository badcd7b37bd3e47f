// Package gateway는 에이전트 게이트웨이와의 단일 WebSocket 연결을 관리하는 클라이언트 엔진입니다.
//
// 연결 상태, 타이머, 재연결, 오프라인 큐, 스트리밍 상태는 모두 이벤트 루프 고루틴 하나가 소유합니다.
// 소켓 읽기, 다이얼 결과, 핸드셰이크 결과, 타이머 발화, API 호출은 메시지로 루프에 전달되어
// 한 번에 하나씩 적용되므로 구독자는 중간 상태나 순서가 뒤바뀐 상태를 보지 않습니다.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"k8s.io/utils/clock"

	"github.com/lstailors/LST-MissionControl-sub000/internal/metrics"
	"github.com/lstailors/LST-MissionControl-sub000/internal/protocol"
)

// DefaultChallengeGrace는 connect.challenge를 기다리는 기본 유예 시간입니다.
const DefaultChallengeGrace = 750 * time.Millisecond

// Phase는 연결 단계입니다.
type Phase int32

const (
	// PhaseIdle은 소켓이 없는 상태입니다. 재연결 대기 중에도 idle입니다.
	PhaseIdle Phase = iota
	// PhaseConnecting은 다이얼 또는 핸드셰이크 진행 중인 상태입니다.
	PhaseConnecting
	// PhaseConnected는 hello-ok를 받은 상태입니다.
	PhaseConnected
	// PhaseClosing은 명시적 Disconnect로 소켓을 닫는 중인 상태입니다.
	PhaseClosing
)

// String은 Phase의 문자열 표현을 반환합니다.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Options는 클라이언트 식별 정보와 타이밍 설정입니다.
type Options struct {
	ClientID      string
	ClientVersion string
	Platform      string
	ClientMode    string
	Role          string
	Scopes        []string
	Caps          []string
	Locale        string
	UserAgent     string

	// SessionKey는 SendMessage에 세션 키가 없을 때 사용하는 기본 세션입니다.
	SessionKey string

	RequestTimeout   time.Duration
	ChallengeGrace   time.Duration
	HeartbeatTimeout time.Duration
	QueueLimit       int
}

// DefaultOptions는 기본 설정을 반환합니다.
func DefaultOptions() Options {
	return Options{
		ClientID:         "mctl",
		ClientVersion:    "dev",
		Platform:         "linux",
		ClientMode:       "cli",
		Role:             "operator",
		Scopes:           []string{"operator.read", "operator.write"},
		Caps:             []string{},
		SessionKey:       "main",
		RequestTimeout:   DefaultRequestTimeout,
		ChallengeGrace:   DefaultChallengeGrace,
		HeartbeatTimeout: DefaultHeartbeatTimeout,
		QueueLimit:       DefaultQueueLimit,
	}
}

// Status는 클라이언트 상태의 스냅샷입니다.
type Status struct {
	Phase       Phase
	URL         string
	Attempt     int
	MaxAttempts int
	QueueSize   int
	SessionKey  string
}

// SendResult는 SendMessage의 결과입니다.
type SendResult struct {
	// Queued는 연결이 없어 오프라인 큐에 보관되었는지 여부입니다.
	Queued bool
	// RunID는 게이트웨이가 시작한 실행 ID입니다. 큐에 보관된 경우 비어 있습니다.
	RunID   string
	Payload json.RawMessage
}

// Client는 게이트웨이 WebSocket 클라이언트입니다.
type Client struct {
	opts     Options
	clock    clock.WithTicker
	dialer   *websocket.Dialer
	log      zerolog.Logger
	metrics  *metrics.Metrics
	signer   DeviceSigner
	tokens   TokenStore
	pairer   Pairer
	strategy *ReconnectStrategy

	pending *correlator
	events  *dispatcher

	onChunk  subscribers[StreamChunk]
	onEnd    subscribers[StreamEnd]
	onStatus subscribers[StatusUpdate]
	onScope  subscribers[ScopeError]
	onPaired subscribers[PairingComplete]
	onEvent  subscribers[Event]

	// connMu는 Request가 읽는 현재 소켓을 보호합니다. 쓰기는 이벤트 루프만 합니다.
	connMu sync.RWMutex
	conn   *wsConn

	// stateMu는 이벤트 루프가 발행하는 상태 스냅샷을 보호합니다.
	stateMu sync.RWMutex
	state   Status

	inbox     chan interface{}
	quit      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	// ctx는 클라이언트 수명 동안 유효하며 Close에서 취소됩니다.
	ctx    context.Context
	cancel context.CancelFunc
}

// ClientOption은 Client 설정 옵션입니다.
type ClientOption func(*Client)

// WithClock은 타이머에 사용할 시계를 설정합니다 (테스트용 가짜 시계 주입).
func WithClock(clk clock.WithTicker) ClientOption {
	return func(c *Client) {
		c.clock = clk
	}
}

// WithLogger는 로거를 설정합니다.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = l
	}
}

// WithMetrics는 지표 수집기를 설정합니다.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithSigner는 디바이스 서명자를 설정합니다.
func WithSigner(s DeviceSigner) ClientOption {
	return func(c *Client) {
		c.signer = s
	}
}

// WithTokenStore는 페어링 후 토큰을 저장할 곳을 설정합니다.
func WithTokenStore(s TokenStore) ClientOption {
	return func(c *Client) {
		c.tokens = s
	}
}

// WithPairer는 페어링 API 클라이언트를 설정합니다.
func WithPairer(p Pairer) ClientOption {
	return func(c *Client) {
		c.pairer = p
	}
}

// WithReconnectStrategy는 재연결 전략을 설정합니다.
func WithReconnectStrategy(s *ReconnectStrategy) ClientOption {
	return func(c *Client) {
		c.strategy = s
	}
}

// WithDialer는 WebSocket 다이얼러를 설정합니다.
func WithDialer(d *websocket.Dialer) ClientOption {
	return func(c *Client) {
		c.dialer = d
	}
}

// NewClient는 클라이언트를 만들고 이벤트 루프를 시작합니다.
// 사용이 끝나면 Close를 호출해야 합니다.
func NewClient(opts Options, options ...ClientOption) *Client {
	defaults := DefaultOptions()
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaults.RequestTimeout
	}
	if opts.ChallengeGrace <= 0 {
		opts.ChallengeGrace = defaults.ChallengeGrace
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = defaults.HeartbeatTimeout
	}
	if opts.QueueLimit <= 0 {
		opts.QueueLimit = defaults.QueueLimit
	}
	if opts.Role == "" {
		opts.Role = defaults.Role
	}

	c := &Client{
		opts:     opts,
		clock:    clock.RealClock{},
		log:      log.With().Str("component", "gateway").Logger(),
		inbox:    make(chan interface{}, 64),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	for _, opt := range options {
		opt(c)
	}

	if c.metrics == nil {
		c.metrics = metrics.NewMetrics()
	}
	if c.strategy == nil {
		c.strategy = DefaultReconnectStrategy()
	}
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{
			HandshakeTimeout: ConnectTimeout,
			Proxy:            http.ProxyFromEnvironment,
		}
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.pending = newCorrelator(c.clock, opts.RequestTimeout, c.metrics, c.log)
	c.events = newDispatcher(c.log)
	c.state = Status{MaxAttempts: c.strategy.MaxAttempts(), SessionKey: opts.SessionKey}

	go c.run()
	return c
}

// Connect는 url로 연결을 시작합니다. 이미 연결 중이거나 연결된 상태면 아무것도 하지 않습니다.
// 결과는 OnStatusChange로 보고됩니다.
func (c *Client) Connect(url, token string) {
	c.post(connectCmd{url: url, token: token})
}

// Disconnect는 연결을 명시적으로 종료합니다.
// 예약된 재연결을 취소하고, 소켓과 무활동 감시를 멈추고, 오프라인 큐를 비운 뒤
// 마지막 disconnected 상태를 발행합니다. 진행 중인 요청은 각자의 타임아웃으로 끝납니다.
func (c *Client) Disconnect() {
	done := make(chan struct{})
	if !c.post(disconnectCmd{done: done}) {
		return
	}
	select {
	case <-done:
	case <-c.loopDone:
	}
}

// Close는 연결을 끊고 이벤트 루프와 디스패처를 종료합니다.
// 이미 쌓인 콜백은 Close가 반환되기 전에 모두 실행됩니다.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.Disconnect()
		close(c.quit)
		<-c.loopDone
		c.cancel()
		c.events.close()
	})
}

// TriggerReconnect는 외부 컴포넌트(네트워크 감시 등)에서 재연결을 요청합니다.
// 현재 소켓을 닫고 재연결 카운터를 초기화한 뒤 백오프 일정에 따라 다시 연결합니다.
func (c *Client) TriggerReconnect(reason string) {
	c.post(reconnectCmd{reason: reason})
}

// Request는 method 요청을 보내고 응답 페이로드를 기다립니다.
// 소켓이 없으면 즉시 ErrNotConnected를 반환합니다.
func (c *Client) Request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	conn := c.currentConn()
	if conn == nil {
		return nil, ErrNotConnected
	}
	return c.requestOn(ctx, conn, method, params)
}

// Call은 Request의 결과를 out으로 디코딩합니다.
func (c *Client) Call(ctx context.Context, method string, params, out interface{}) error {
	payload, err := c.Request(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s 응답 파싱 실패: %w", method, err)
	}
	return nil
}

// requestOn은 지정한 소켓으로 요청을 보냅니다.
func (c *Client) requestOn(ctx context.Context, conn *wsConn, method string, params interface{}) (json.RawMessage, error) {
	id := uuid.NewString()
	frame, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	req := c.pending.register(id, method)
	if err := conn.writeJSON(frame); err != nil {
		c.pending.take(id)
		// 쓰기 실패는 소켓을 잃은 것이므로 ErrNotConnected로도 판별됨
		return nil, fmt.Errorf("%s 요청 전송 실패: %w (%w)", method, err, ErrNotConnected)
	}

	return c.pending.await(ctx, id, req)
}

// SendMessage는 채팅 메시지를 보냅니다.
// 연결되지 않은 상태면 오프라인 큐에 보관하고 즉시 Queued=true를 반환합니다.
// sessionKey가 비어 있으면 현재 활성 세션을 사용하고, 비어 있지 않으면 활성 세션을 바꿉니다.
func (c *Client) SendMessage(ctx context.Context, text string, attachments []protocol.Attachment, sessionKey string) (SendResult, error) {
	msg := QueuedMessage{
		Text:           text,
		Attachments:    attachments,
		SessionKey:     sessionKey,
		IdempotencyKey: uuid.NewString(),
		EnqueuedAt:     c.clock.Now(),
	}

	reply := make(chan sendDecision, 1)
	if !c.post(sendCmd{msg: msg, reply: reply}) {
		return SendResult{}, ErrClientClosed
	}

	var decision sendDecision
	select {
	case decision = <-reply:
	case <-ctx.Done():
		return SendResult{}, ctx.Err()
	case <-c.loopDone:
		return SendResult{}, ErrClientClosed
	}

	if decision.queued {
		return SendResult{Queued: true}, nil
	}

	msg.SessionKey = decision.sessionKey
	payload, err := c.sendChat(ctx, msg)
	if errors.Is(err, ErrNotConnected) {
		// 결정 이후 소켓을 잃음. 같은 idempotencyKey로 큐에 되돌림
		if !c.post(requeueCmd{msg: msg}) {
			return SendResult{}, ErrClientClosed
		}
		return SendResult{Queued: true}, nil
	}
	if err != nil {
		return SendResult{}, err
	}

	result := SendResult{Payload: payload}
	var ack protocol.ChatSendResult
	if json.Unmarshal(payload, &ack) == nil {
		result.RunID = ack.RunID
	}
	return result, nil
}

// sendChat은 chat.send 요청을 보냅니다. 큐 재전송에도 같은 idempotencyKey를 사용합니다.
func (c *Client) sendChat(ctx context.Context, msg QueuedMessage) (json.RawMessage, error) {
	return c.Request(ctx, protocol.MethodChatSend, protocol.ChatSendParams{
		SessionKey:     msg.SessionKey,
		Message:        msg.Text,
		Attachments:    msg.Attachments,
		IdempotencyKey: msg.IdempotencyKey,
	})
}

// Abort는 활성 세션의 실행을 중단 요청합니다. runID가 비면 세션의 현재 실행이 대상입니다.
func (c *Client) Abort(ctx context.Context, runID string) error {
	_, err := c.Request(ctx, protocol.MethodChatAbort, protocol.ChatAbortParams{
		SessionKey: c.Status().SessionKey,
		RunID:      runID,
	})
	return err
}

// History는 세션의 대화 기록을 요청합니다. 응답 형식은 게이트웨이에 따르므로 원문을 반환합니다.
func (c *Client) History(ctx context.Context, sessionKey string, limit int) (json.RawMessage, error) {
	if sessionKey == "" {
		sessionKey = c.Status().SessionKey
	}
	return c.Request(ctx, protocol.MethodChatHistory, protocol.ChatHistoryParams{
		SessionKey: sessionKey,
		Limit:      limit,
	})
}

// Ping은 현재 소켓에 ping 프레임을 보내 쓰기 가능한지 확인합니다.
func (c *Client) Ping() error {
	conn := c.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.ping()
}

// Status는 현재 상태 스냅샷을 반환합니다.
func (c *Client) Status() Status {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// QueueSize는 오프라인 큐에 보관된 메시지 수를 반환합니다.
func (c *Client) QueueSize() int {
	return c.Status().QueueSize
}

// Metrics는 클라이언트 지표를 반환합니다.
func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}

// OnStreamChunk는 수락된 delta마다 호출될 콜백을 등록합니다. 반환값은 구독 해제 함수입니다.
func (c *Client) OnStreamChunk(fn func(StreamChunk)) func() {
	return c.onChunk.add(fn)
}

// OnStreamEnd는 실행 종료(final, error, aborted)마다 호출될 콜백을 등록합니다.
func (c *Client) OnStreamEnd(fn func(StreamEnd)) func() {
	return c.onEnd.add(fn)
}

// OnStatusChange는 연결 상태 전이마다 호출될 콜백을 등록합니다.
func (c *Client) OnStatusChange(fn func(StatusUpdate)) func() {
	return c.onStatus.add(fn)
}

// OnScopeError는 재페어링이 필요한 핸드셰이크 거부 시 호출될 콜백을 등록합니다.
func (c *Client) OnScopeError(fn func(ScopeError)) func() {
	return c.onScope.add(fn)
}

// OnPairingComplete는 페어링 완료 시 호출될 콜백을 등록합니다.
func (c *Client) OnPairingComplete(fn func(PairingComplete)) func() {
	return c.onPaired.add(fn)
}

// OnEvent는 코어가 처리하지 않는 서버 이벤트(chat, connect.challenge 이외)를 구독합니다.
func (c *Client) OnEvent(fn func(Event)) func() {
	return c.onEvent.add(fn)
}

// post는 이벤트 루프에 메시지를 전달합니다. 루프가 종료되었으면 false를 반환합니다.
func (c *Client) post(msg interface{}) bool {
	select {
	case c.inbox <- msg:
		return true
	case <-c.loopDone:
		return false
	}
}

func (c *Client) currentConn() *wsConn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

func (c *Client) setConn(conn *wsConn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

// readLoop는 소켓에서 프레임을 읽어 이벤트 루프로 전달합니다.
// 파싱할 수 없는 메시지는 로그만 남기고 버립니다.
func (c *Client) readLoop(conn *wsConn) {
	for {
		// gorilla/websocket은 ReadMessage 에러 후 같은 conn에서 다시 읽으면 panic하므로 즉시 종료
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			c.post(closedMsg{gen: conn.gen, err: err})
			return
		}

		frame, err := protocol.Decode(data)
		if err != nil {
			c.metrics.MalformedFrames.Add(1)
			c.log.Warn().Err(err).Int("size", len(data)).Msg("잘못된 프레임 폐기")
			continue
		}

		if !c.post(frameMsg{gen: conn.gen, frame: frame}) {
			return
		}
	}
}

// flushBatch는 큐에서 꺼낸 메시지를 순서대로 보냅니다.
// 첫 실패에서 멈추고 실패한 메시지와 나머지를 res에 담아 루프에 돌려보냅니다.
func (c *Client) flushBatch(ctx context.Context, res flushResult, batch []QueuedMessage) {
	for i, msg := range batch {
		if _, err := c.sendChat(ctx, msg); err != nil {
			res.sent, res.remaining, res.err = i, batch[i:], err
			c.post(res)
			return
		}
	}
	res.sent = len(batch)
	c.post(res)
}

// dialHeader는 WebSocket 업그레이드 요청 헤더입니다.
func (c *Client) dialHeader() http.Header {
	h := http.Header{}
	if c.opts.UserAgent != "" {
		h.Set("User-Agent", c.opts.UserAgent)
	}
	return h
}

// errorText는 nil 안전한 에러 문자열입니다.
func errorText(err error) string {
	if err == nil {
		return ""
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Text != "" {
		return fmt.Sprintf("%s (code %d)", closeErr.Text, closeErr.Code)
	}
	return err.Error()
}
