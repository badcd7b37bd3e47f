package gateway

import (
	"context"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

// DefaultNetworkCheckInterval은 네트워크 변경 감지 기본 폴링 간격입니다.
const DefaultNetworkCheckInterval = 5 * time.Second

// reconnector는 NetworkMonitor가 사용하는 클라이언트 기능입니다.
type reconnector interface {
	Status() Status
	Ping() error
	TriggerReconnect(reason string)
}

// NetworkMonitor는 네트워크 인터페이스 주소 변경을 감지하여 재연결을 트리거합니다.
// 주소가 바뀌어도 소켓에 ping을 쓸 수 있으면 연결을 유지합니다.
type NetworkMonitor struct {
	client   reconnector
	clock    clock.WithTicker
	interval time.Duration
	log      zerolog.Logger

	mu        sync.Mutex
	lastAddrs []string

	// getAddrs는 테스트에서 주입 가능하도록 함수 필드로 둡니다.
	getAddrs func() ([]string, error)
}

// NewNetworkMonitor는 c를 감시하는 NetworkMonitor를 생성합니다.
func NewNetworkMonitor(c *Client, interval time.Duration) *NetworkMonitor {
	return newNetworkMonitor(c, c.clock, interval, c.log)
}

func newNetworkMonitor(client reconnector, clk clock.WithTicker, interval time.Duration, log zerolog.Logger) *NetworkMonitor {
	if interval <= 0 {
		interval = DefaultNetworkCheckInterval
	}
	return &NetworkMonitor{
		client:   client,
		clock:    clk,
		interval: interval,
		log:      log.With().Str("component", "netmon").Logger(),
		getAddrs: interfaceAddrs,
	}
}

// Start는 현재 주소를 기준값으로 기록하고 감시 고루틴을 시작합니다.
// ctx가 취소되면 감시를 멈춥니다.
func (m *NetworkMonitor) Start(ctx context.Context) {
	addrs, err := m.getAddrs()
	if err != nil {
		m.log.Warn().Err(err).Msg("네트워크 주소 초기 조회 실패, 빈 상태로 시작합니다")
	}

	m.mu.Lock()
	m.lastAddrs = addrs
	m.mu.Unlock()

	m.log.Debug().
		Int("addr_count", len(addrs)).
		Dur("interval", m.interval).
		Msg("네트워크 변경 감지 시작")

	ticker := m.clock.NewTicker(m.interval)
	go m.loop(ctx, ticker)
}

func (m *NetworkMonitor) loop(ctx context.Context, ticker clock.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			m.check()
		}
	}
}

// check는 주소 변경을 확인하고 필요하면 재연결을 요청합니다.
// 재연결 요청 여부를 반환합니다.
func (m *NetworkMonitor) check() bool {
	if !m.hasChanged() {
		return false
	}
	m.log.Info().Msg("네트워크 인터페이스 변경 감지됨")

	status := m.client.Status()
	if status.URL == "" {
		return false
	}
	if status.Phase == PhaseConnected {
		err := m.client.Ping()
		if err == nil {
			m.log.Info().Msg("네트워크가 바뀌었지만 연결은 유효함")
			return false
		}
		m.log.Debug().Err(err).Msg("ping 실패")
	}

	m.client.TriggerReconnect("network change detected")
	return true
}

// hasChanged는 마지막 확인 이후 주소 목록이 바뀌었는지 확인합니다.
// 조회 실패는 변경 없음으로 처리합니다.
func (m *NetworkMonitor) hasChanged() bool {
	current, err := m.getAddrs()
	if err != nil {
		m.log.Debug().Err(err).Msg("네트워크 주소 조회 실패, 변경 없음으로 처리")
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	changed := !equalStrings(m.lastAddrs, current)
	if changed {
		m.log.Debug().
			Strs("prev_addrs", m.lastAddrs).
			Strs("curr_addrs", current).
			Msg("네트워크 주소 변경 상세")
	}
	m.lastAddrs = current
	return changed
}

// interfaceAddrs는 루프백을 제외한 인터페이스 주소를 정렬해 반환합니다.
func interfaceAddrs() ([]string, error) {
	ifaces, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}

	addrs := make([]string, 0, len(ifaces))
	for _, addr := range ifaces {
		s := addr.String()
		if strings.HasPrefix(s, "127.") || strings.HasPrefix(s, "::1") {
			continue
		}
		addrs = append(addrs, s)
	}
	sort.Strings(addrs)
	return addrs, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
