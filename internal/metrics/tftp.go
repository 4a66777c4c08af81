// =============================================================================
// 文件: internal/metrics/tftp.go
// 描述: 传输指标 - Prometheus 计数器与仪表
// =============================================================================
package metrics

import "github.com/prometheus/client_golang/prometheus"

// 传输方向标签值
const (
	DirectionSend    = "send"
	DirectionReceive = "receive"
)

// TFTPMetrics 传输指标收集器
type TFTPMetrics struct {
	TransfersStarted   *prometheus.CounterVec
	TransfersSucceeded *prometheus.CounterVec
	TransfersFailed    *prometheus.CounterVec
	ActiveTransfers    prometheus.Gauge

	BlocksSent        prometheus.Counter
	BlocksReceived    prometheus.Counter
	WindowRetransmits prometheus.Counter
	BytesSent         prometheus.Counter
	BytesReceived     prometheus.Counter
}

// NewTFTPMetrics 创建并注册传输指标
func NewTFTPMetrics(reg prometheus.Registerer) *TFTPMetrics {
	m := &TFTPMetrics{
		TransfersStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tftp_transfers_started_total",
			Help: "已开始的传输次数",
		}, []string{"direction"}),
		TransfersSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tftp_transfers_succeeded_total",
			Help: "成功完成的传输次数",
		}, []string{"direction"}),
		TransfersFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tftp_transfers_failed_total",
			Help: "失败的传输次数",
		}, []string{"direction"}),
		ActiveTransfers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tftp_active_transfers",
			Help: "当前活跃传输数",
		}),
		BlocksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tftp_blocks_sent_total",
			Help: "已发送的数据块数 (含重传)",
		}),
		BlocksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tftp_blocks_received_total",
			Help: "已接受的数据块数 (不含重复)",
		}),
		WindowRetransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tftp_window_retransmits_total",
			Help: "整窗重传次数",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tftp_bytes_sent_total",
			Help: "已发送的载荷字节数",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tftp_bytes_received_total",
			Help: "已接收的载荷字节数",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.TransfersStarted, m.TransfersSucceeded, m.TransfersFailed,
			m.ActiveTransfers,
			m.BlocksSent, m.BlocksReceived, m.WindowRetransmits,
			m.BytesSent, m.BytesReceived,
		)
	}
	return m
}

// TransferStarted 记录一次传输开始
func (m *TFTPMetrics) TransferStarted(direction string) {
	m.TransfersStarted.WithLabelValues(direction).Inc()
	m.ActiveTransfers.Inc()
}

// TransferDone 记录一次传输结束
func (m *TFTPMetrics) TransferDone(direction string, err error) {
	m.ActiveTransfers.Dec()
	if err != nil {
		m.TransfersFailed.WithLabelValues(direction).Inc()
	} else {
		m.TransfersSucceeded.WithLabelValues(direction).Inc()
	}
}
