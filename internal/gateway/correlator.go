package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"

	"github.com/lstailors/LST-MissionControl-sub000/internal/metrics"
	"github.com/lstailors/LST-MissionControl-sub000/internal/protocol"
)

// DefaultRequestTimeout은 요청 응답 대기 기본 시간입니다.
const DefaultRequestTimeout = 120 * time.Second

// result는 대기 중인 요청에 전달되는 결과입니다.
type result struct {
	payload json.RawMessage
	err     error
}

// pendingRequest는 응답을 기다리는 요청 하나입니다.
type pendingRequest struct {
	method string
	sentAt time.Time
	// done은 버퍼 1의 채널이라 전달 측이 블록되지 않습니다.
	done chan result
}

// correlator는 요청 ID와 응답을 짝짓는 대기 테이블입니다.
// 항목은 응답 또는 타임아웃 중 먼저 도착한 쪽이 take로 제거하며,
// 제거에 성공한 쪽만 결과를 전달하므로 요청당 정확히 한 번 완료됩니다.
type correlator struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest

	clock   clock.Clock
	timeout time.Duration
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func newCorrelator(clk clock.Clock, timeout time.Duration, m *metrics.Metrics, log zerolog.Logger) *correlator {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &correlator{
		pending: make(map[string]*pendingRequest),
		clock:   clk,
		timeout: timeout,
		metrics: m,
		log:     log,
	}
}

// register는 id에 대한 대기 항목을 추가합니다.
func (c *correlator) register(id, method string) *pendingRequest {
	req := &pendingRequest{
		method: method,
		sentAt: c.clock.Now(),
		done:   make(chan result, 1),
	}

	c.mu.Lock()
	c.pending[id] = req
	c.mu.Unlock()

	c.metrics.RequestsTotal.Add(1)
	return req
}

// take는 대기 항목을 제거하고 반환합니다. 이미 제거된 경우 nil입니다.
func (c *correlator) take(id string) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return req
}

// resolve는 res 프레임을 대기 중인 요청에 전달합니다.
// 대기 항목이 없으면(타임아웃 이후 도착 등) 로그만 남기고 false를 반환합니다.
func (c *correlator) resolve(frame *protocol.Frame) bool {
	req := c.take(frame.ID)
	if req == nil {
		c.metrics.LateResponses.Add(1)
		c.log.Debug().Str("id", frame.ID).Msg("대기 중이지 않은 요청의 응답, 폐기")
		return false
	}

	c.metrics.RecordLatency(c.clock.Since(req.sentAt))

	if frame.Failed() {
		c.metrics.RequestFailures.Add(1)
		code := ""
		if frame.Error != nil {
			code = frame.Error.Code
		}
		req.done <- result{err: &RequestError{Method: req.method, Code: code, Message: frame.ErrorMessage()}}
		return true
	}

	req.done <- result{payload: frame.Payload}
	return true
}

// await는 응답, 타임아웃, ctx 취소 중 먼저 일어난 것을 반환합니다.
// 타임아웃과 응답이 동시에 일어나면 take에 성공한 쪽이 이기고,
// 진 쪽은 이긴 쪽이 채널에 넣은 결과를 그대로 받습니다.
func (c *correlator) await(ctx context.Context, id string, req *pendingRequest) (json.RawMessage, error) {
	timer := c.clock.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case r := <-req.done:
		return r.payload, r.err
	case <-timer.C():
		if c.take(id) != nil {
			c.metrics.RequestTimeouts.Add(1)
			c.log.Warn().Str("id", id).Str("method", req.method).Dur("timeout", c.timeout).Msg("요청 응답 시간 초과")
			return nil, ErrRequestTimeout
		}
	case <-ctx.Done():
		if c.take(id) != nil {
			return nil, ctx.Err()
		}
	}

	r := <-req.done
	return r.payload, r.err
}

// size는 대기 중인 요청 수를 반환합니다.
func (c *correlator) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
