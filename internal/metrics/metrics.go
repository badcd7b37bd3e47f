// Package metrics는 게이트웨이 클라이언트의 운영 지표를 추적합니다.
// 카운터는 atomic으로 관리하며, Snapshot/JSON과 Prometheus 두 경로로 노출합니다.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics는 게이트웨이 연결, 요청, 스트리밍, 오프라인 큐 지표를 추적합니다.
// All fields are thread-safe for concurrent access.
type Metrics struct {
	// Connection metrics
	ConnectionAttempts atomic.Int64
	HandshakeSuccesses atomic.Int64
	HandshakeFailures  atomic.Int64
	Reconnections      atomic.Int64
	HeartbeatTimeouts  atomic.Int64
	ScopeErrors        atomic.Int64

	// Frame metrics
	FramesSent      atomic.Int64
	FramesReceived  atomic.Int64
	MalformedFrames atomic.Int64

	// Request metrics
	RequestsTotal   atomic.Int64
	RequestFailures atomic.Int64
	RequestTimeouts atomic.Int64
	LateResponses   atomic.Int64

	// Stream metrics
	StreamChunks atomic.Int64
	StreamEnds   atomic.Int64
	StaleDeltas  atomic.Int64

	// Offline queue metrics
	MessagesQueued  atomic.Int64
	MessagesEvicted atomic.Int64
	MessagesFlushed atomic.Int64
	FlushFailures   atomic.Int64
	QueueDepth      atomic.Int64

	// Timing metrics
	startTime     time.Time
	lastFrameAt   atomic.Value // time.Time
	avgLatencyNs  atomic.Int64
	latencyCount  atomic.Int64
	connectedFlag atomic.Bool

	mu sync.RWMutex
}

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot struct {
	Timestamp          time.Time `json:"timestamp"`
	Uptime             string    `json:"uptime"`
	Connected          bool      `json:"connected"`
	ConnectionAttempts int64     `json:"connection_attempts"`
	HandshakeSuccesses int64     `json:"handshake_successes"`
	HandshakeFailures  int64     `json:"handshake_failures"`
	Reconnections      int64     `json:"reconnections"`
	HeartbeatTimeouts  int64     `json:"heartbeat_timeouts"`
	ScopeErrors        int64     `json:"scope_errors"`
	FramesSent         int64     `json:"frames_sent"`
	FramesReceived     int64     `json:"frames_received"`
	MalformedFrames    int64     `json:"malformed_frames"`
	RequestsTotal      int64     `json:"requests_total"`
	RequestFailures    int64     `json:"request_failures"`
	RequestTimeouts    int64     `json:"request_timeouts"`
	LateResponses      int64     `json:"late_responses"`
	StreamChunks       int64     `json:"stream_chunks"`
	StreamEnds         int64     `json:"stream_ends"`
	StaleDeltas        int64     `json:"stale_deltas"`
	MessagesQueued     int64     `json:"messages_queued"`
	MessagesEvicted    int64     `json:"messages_evicted"`
	MessagesFlushed    int64     `json:"messages_flushed"`
	FlushFailures      int64     `json:"flush_failures"`
	QueueDepth         int64     `json:"queue_depth"`
	AvgLatencyMs       float64   `json:"avg_latency_ms"`
	LastFrameAt        string    `json:"last_frame_at,omitempty"`
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// RecordLatency는 요청 왕복 시간을 기록하고 이동 평균을 갱신합니다.
func (m *Metrics) RecordLatency(d time.Duration) {
	ns := d.Nanoseconds()
	count := m.latencyCount.Add(1)

	// Running average: newAvg = oldAvg + (newValue - oldAvg) / count
	for {
		oldAvg := m.avgLatencyNs.Load()
		newAvg := oldAvg + (ns-oldAvg)/count
		if m.avgLatencyNs.CompareAndSwap(oldAvg, newAvg) {
			break
		}
		count = m.latencyCount.Load()
		if count == 0 {
			count = 1
		}
	}
}

// RecordFrame은 수신 프레임 수와 마지막 수신 시각을 기록합니다.
func (m *Metrics) RecordFrame() {
	m.FramesReceived.Add(1)
	m.lastFrameAt.Store(time.Now())
}

// SetConnected는 현재 연결 여부를 기록합니다.
func (m *Metrics) SetConnected(connected bool) {
	m.connectedFlag.Store(connected)
}

// Connected는 마지막으로 기록된 연결 여부를 반환합니다.
func (m *Metrics) Connected() bool {
	return m.connectedFlag.Load()
}

// Uptime returns the duration since the metrics instance was created.
func (m *Metrics) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Since(m.startTime)
}

// AvgLatency returns the average recorded latency.
func (m *Metrics) AvgLatency() time.Duration {
	return time.Duration(m.avgLatencyNs.Load())
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Timestamp:          time.Now(),
		Uptime:             m.Uptime().Round(time.Millisecond).String(),
		Connected:          m.connectedFlag.Load(),
		ConnectionAttempts: m.ConnectionAttempts.Load(),
		HandshakeSuccesses: m.HandshakeSuccesses.Load(),
		HandshakeFailures:  m.HandshakeFailures.Load(),
		Reconnections:      m.Reconnections.Load(),
		HeartbeatTimeouts:  m.HeartbeatTimeouts.Load(),
		ScopeErrors:        m.ScopeErrors.Load(),
		FramesSent:         m.FramesSent.Load(),
		FramesReceived:     m.FramesReceived.Load(),
		MalformedFrames:    m.MalformedFrames.Load(),
		RequestsTotal:      m.RequestsTotal.Load(),
		RequestFailures:    m.RequestFailures.Load(),
		RequestTimeouts:    m.RequestTimeouts.Load(),
		LateResponses:      m.LateResponses.Load(),
		StreamChunks:       m.StreamChunks.Load(),
		StreamEnds:         m.StreamEnds.Load(),
		StaleDeltas:        m.StaleDeltas.Load(),
		MessagesQueued:     m.MessagesQueued.Load(),
		MessagesEvicted:    m.MessagesEvicted.Load(),
		MessagesFlushed:    m.MessagesFlushed.Load(),
		FlushFailures:      m.FlushFailures.Load(),
		QueueDepth:         m.QueueDepth.Load(),
		AvgLatencyMs:       float64(m.avgLatencyNs.Load()) / float64(time.Millisecond),
	}

	if v := m.lastFrameAt.Load(); v != nil {
		if t, ok := v.(time.Time); ok && !t.IsZero() {
			snap.LastFrameAt = t.Format(time.RFC3339)
		}
	}

	return snap
}

// ToJSON returns a JSON-encoded representation of the current metrics snapshot.
func (m *Metrics) ToJSON() ([]byte, error) {
	return json.Marshal(m.Snapshot())
}

// Reset resets all metric counters to zero while preserving connection state.
func (m *Metrics) Reset() {
	for _, c := range m.counters() {
		c.value.Store(0)
	}
	m.avgLatencyNs.Store(0)
	m.latencyCount.Store(0)

	m.mu.Lock()
	m.startTime = time.Now()
	m.mu.Unlock()
}

// counter는 Prometheus 노출과 Reset에서 공유하는 카운터 메타데이터입니다.
type counter struct {
	name  string
	help  string
	gauge bool
	value *atomic.Int64
}

func (m *Metrics) counters() []counter {
	return []counter{
		{"connection_attempts_total", "Gateway dial attempts.", false, &m.ConnectionAttempts},
		{"handshake_successes_total", "Handshakes answered with hello-ok.", false, &m.HandshakeSuccesses},
		{"handshake_failures_total", "Rejected or failed handshakes.", false, &m.HandshakeFailures},
		{"reconnections_total", "Scheduled automatic reconnects.", false, &m.Reconnections},
		{"heartbeat_timeouts_total", "Connections closed by the inactivity watchdog.", false, &m.HeartbeatTimeouts},
		{"scope_errors_total", "Handshakes rejected for missing authorization.", false, &m.ScopeErrors},
		{"frames_sent_total", "Frames written to the gateway.", false, &m.FramesSent},
		{"frames_received_total", "Frames parsed from the gateway.", false, &m.FramesReceived},
		{"malformed_frames_total", "Inbound messages dropped as unparseable.", false, &m.MalformedFrames},
		{"requests_total", "Correlated requests issued.", false, &m.RequestsTotal},
		{"request_failures_total", "Requests answered with an error.", false, &m.RequestFailures},
		{"request_timeouts_total", "Requests that expired without a response.", false, &m.RequestTimeouts},
		{"late_responses_total", "Responses for ids no longer pending.", false, &m.LateResponses},
		{"stream_chunks_total", "Accepted streaming deltas.", false, &m.StreamChunks},
		{"stream_ends_total", "Terminal stream events delivered.", false, &m.StreamEnds},
		{"stale_deltas_total", "Deltas discarded for shrinking text.", false, &m.StaleDeltas},
		{"messages_queued_total", "Messages buffered while offline.", false, &m.MessagesQueued},
		{"messages_evicted_total", "Queued messages dropped for capacity.", false, &m.MessagesEvicted},
		{"messages_flushed_total", "Queued messages delivered after reconnect.", false, &m.MessagesFlushed},
		{"flush_failures_total", "Queue flushes halted by a send error.", false, &m.FlushFailures},
		{"queue_depth", "Messages currently waiting in the offline queue.", true, &m.QueueDepth},
	}
}
