package gateway

import (
	"math"
	"sync"
	"time"
)

// ReconnectStrategy는 지수 백오프 재연결 전략을 구현합니다.
// delay = min(initialDelay * multiplier^attempt, maxDelay)
//
// 시도 횟수는 재연결을 예약할 때마다 1씩 증가하고,
// 핸드셰이크가 성공했을 때만 0으로 초기화됩니다.
type ReconnectStrategy struct {
	// initialDelay는 초기 재연결 지연 시간입니다.
	initialDelay time.Duration
	// maxDelay는 최대 재연결 지연 시간입니다.
	maxDelay time.Duration
	// multiplier는 지수 백오프 배수입니다.
	multiplier float64
	// maxAttempts는 최대 재연결 시도 횟수입니다 (0 = 무제한).
	maxAttempts int

	mu sync.RWMutex
	// currentAttempt는 현재 재연결 시도 횟수입니다.
	currentAttempt int
	// lastDelay는 마지막 계산된 지연 시간입니다.
	lastDelay time.Duration
}

// DefaultReconnectStrategy는 기본값(1초, 최대 30초, 배수 2, 10회)을 사용하는 전략을 생성합니다.
func DefaultReconnectStrategy() *ReconnectStrategy {
	return NewReconnectStrategy(
		time.Second,
		30*time.Second,
		2.0,
		10,
	)
}

// NewReconnectStrategy는 새로운 재연결 전략을 생성합니다.
// maxAttempts가 0이면 무제한 재시도를 허용합니다.
func NewReconnectStrategy(initialDelay, maxDelay time.Duration, multiplier float64, maxAttempts int) *ReconnectStrategy {
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	if multiplier < 1 {
		multiplier = 1
	}
	if maxDelay < initialDelay {
		maxDelay = initialDelay
	}

	return &ReconnectStrategy{
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		multiplier:   multiplier,
		maxAttempts:  maxAttempts,
	}
}

// NextDelay는 다음 재연결까지 대기해야 할 시간을 반환하고 시도 횟수를 증가시킵니다.
func (r *ReconnectStrategy) NextDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	delay := r.delayFor(r.currentAttempt)
	r.lastDelay = delay
	r.currentAttempt++
	return delay
}

// delayFor는 attempt번째 재시도의 지연 시간을 계산합니다.
func (r *ReconnectStrategy) delayFor(attempt int) time.Duration {
	scaled := float64(r.initialDelay) * math.Pow(r.multiplier, float64(attempt))
	// 오버플로우 방지: 큰 attempt에서는 float 연산 결과가 Duration 범위를 넘을 수 있음
	if scaled > float64(r.maxDelay) || math.IsInf(scaled, 0) {
		return r.maxDelay
	}
	return time.Duration(scaled)
}

// Reset은 재연결 시도 횟수를 초기화합니다.
// 핸드셰이크 성공 시 호출해야 합니다.
func (r *ReconnectStrategy) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.currentAttempt = 0
	r.lastDelay = 0
}

// Exhaust는 시도 횟수를 최대값으로 설정하여 자동 재연결을 막습니다.
// 명시적 Disconnect에서 사용합니다. 무제한 모드에서는 효과가 없으므로
// 호출 측에서 별도 플래그로도 재연결을 막아야 합니다.
func (r *ReconnectStrategy) Exhaust() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxAttempts > 0 {
		r.currentAttempt = r.maxAttempts
	}
}

// CurrentAttempt는 현재 재연결 시도 횟수를 반환합니다.
func (r *ReconnectStrategy) CurrentAttempt() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.currentAttempt
}

// CanRetry는 재연결 시도가 가능한지 확인합니다.
func (r *ReconnectStrategy) CanRetry() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.maxAttempts == 0 {
		return true // 무제한
	}
	return r.currentAttempt < r.maxAttempts
}

// MaxAttempts는 최대 재연결 시도 횟수를 반환합니다. 0은 무제한입니다.
func (r *ReconnectStrategy) MaxAttempts() int {
	return r.maxAttempts
}

// RemainingAttempts는 남은 재연결 시도 횟수를 반환합니다.
// 무제한 모드에서는 -1을 반환합니다.
func (r *ReconnectStrategy) RemainingAttempts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.maxAttempts == 0 {
		return -1
	}
	remaining := r.maxAttempts - r.currentAttempt
	if remaining < 0 {
		return 0
	}
	return remaining
}

// LastDelay는 마지막으로 계산된 지연 시간을 반환합니다.
func (r *ReconnectStrategy) LastDelay() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lastDelay
}
