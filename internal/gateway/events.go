package gateway

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// StatusUpdate는 연결 상태 변화입니다. 모든 전이는 이 한 채널로 보고됩니다.
type StatusUpdate struct {
	Phase      Phase
	Connected  bool
	Connecting bool
	// Error는 끊김이나 핸드셰이크 실패 사유입니다. 정상 전이에서는 비어 있습니다.
	Error string
	// Attempt는 현재 재연결 시도 횟수입니다.
	Attempt int
	// Exhausted는 재연결 시도를 모두 써서 자동 재연결이 멈췄음을 뜻합니다.
	Exhausted bool
}

// ScopeError는 인증/권한 부족으로 핸드셰이크가 거부되어 재페어링이 필요함을 알립니다.
type ScopeError struct {
	Message string
}

// PairingComplete는 페어링 승인과 토큰 저장이 끝났음을 알립니다.
type PairingComplete struct {
	DeviceID string
}

// Event는 코어가 처리하지 않는 서버 이벤트입니다.
type Event struct {
	Name    string
	Payload json.RawMessage
}

// subscribers는 타입별 구독자 목록입니다.
type subscribers[T any] struct {
	mu   sync.RWMutex
	next int
	fns  map[int]func(T)
}

// add는 구독자를 추가하고 구독 해제 함수를 반환합니다.
func (s *subscribers[T]) add(fn func(T)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fns == nil {
		s.fns = make(map[int]func(T))
	}
	id := s.next
	s.next++
	s.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

// snapshot은 등록 순서대로 현재 구독자를 반환합니다.
func (s *subscribers[T]) snapshot() []func(T) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]func(T), 0, len(s.fns))
	for id := 0; id < s.next; id++ {
		if fn, ok := s.fns[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

// dispatcher는 콜백을 전용 고루틴 하나에서 발생 순서대로 실행합니다.
// 이벤트 루프는 post만 하고 기다리지 않으므로, 콜백 안에서 클라이언트 API를 다시 호출해도 교착되지 않습니다.
type dispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	closed  bool
	stopped chan struct{}
	log     zerolog.Logger
}

func newDispatcher(log zerolog.Logger) *dispatcher {
	d := &dispatcher{
		stopped: make(chan struct{}),
		log:     log,
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// post는 fn을 큐 뒤에 추가합니다. close 이후에는 무시됩니다.
func (d *dispatcher) post(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.queue = append(d.queue, fn)
	d.cond.Signal()
}

func (d *dispatcher) run() {
	defer close(d.stopped)

	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 && d.closed {
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.invoke(fn)
	}
}

// invoke는 콜백 패닉이 디스패처를 멈추지 않도록 복구합니다.
func (d *dispatcher) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Msg("이벤트 구독자 패닉 복구")
		}
	}()
	fn()
}

// close는 이미 쌓인 콜백을 모두 실행한 뒤 디스패처를 종료합니다.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Signal()
	d.mu.Unlock()

	<-d.stopped
}

// emit은 구독자 목록의 스냅샷에 값을 전달하는 작업을 디스패처에 넣습니다.
func emit[T any](d *dispatcher, subs *subscribers[T], value T) {
	d.post(func() {
		for _, fn := range subs.snapshot() {
			fn(value)
		}
	})
}
