package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mctl_gateway"

// Register는 atomic 카운터를 읽는 CounterFunc/GaugeFunc를 reg에 등록합니다.
// 값은 스크레이프 시점에 atomic에서 직접 읽으므로 별도 동기화가 필요 없습니다.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.counters() {
		value := c.value
		opts := prometheus.Opts{Namespace: namespace, Name: c.name, Help: c.help}

		var collector prometheus.Collector
		if c.gauge {
			collector = prometheus.NewGaugeFunc(prometheus.GaugeOpts(opts), func() float64 {
				return float64(value.Load())
			})
		} else {
			collector = prometheus.NewCounterFunc(prometheus.CounterOpts(opts), func() float64 {
				return float64(value.Load())
			})
		}
		if err := reg.Register(collector); err != nil {
			return err
		}
	}

	connected := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connected",
		Help:      "1 when the handshake has completed and the socket is live.",
	}, func() float64 {
		if m.Connected() {
			return 1
		}
		return 0
	})
	if err := reg.Register(connected); err != nil {
		return err
	}

	latency := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "request_latency_avg_seconds",
		Help:      "Running average of correlated request round-trip time.",
	}, func() float64 {
		return m.AvgLatency().Seconds()
	})
	return reg.Register(latency)
}

// Handler는 전용 레지스트리로 /metrics 엔드포인트 핸들러를 만듭니다.
func (m *Metrics) Handler() (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
