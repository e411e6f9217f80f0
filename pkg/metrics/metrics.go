package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		DistributionTotal, DistributionDuration, DistributionAgents,
		DBConnectionHealthy, DBHeartbeatTotal, DBConnectAttemptsTotal,
	)
}

// DistributionTotal 分发尝试总数（按结果）
var DistributionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "matching_distribution_total",
		Help: "分发尝试总数（按结果）",
	},
	[]string{"result"}, // success | empty | not_found | invalid_state | transaction_conflict | connection_failure | canceled | internal
)

// DistributionDuration 单次分发耗时（秒）
var DistributionDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "matching_distribution_duration_seconds",
		Help:    "单次分发耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
)

// DistributionAgents 每次成功分发的 Agent 数
var DistributionAgents = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "matching_distribution_agents",
		Help:    "每次成功分发的 Agent 数",
		Buckets: []float64{0, 1, 2, 3, 4, 5, 10},
	},
)

// DBConnectionHealthy 读写连接健康状态（1 健康，0 异常）
var DBConnectionHealthy = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "matching_db_connection_healthy",
		Help: "数据库连接健康状态（1 健康，0 异常）",
	},
	[]string{"role"}, // writer | reader
)

// DBHeartbeatTotal 心跳次数（按角色与结果）
var DBHeartbeatTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "matching_db_heartbeat_total",
		Help: "数据库心跳次数",
	},
	[]string{"role", "result"}, // ok | error
)

// DBConnectAttemptsTotal 连接尝试次数（按角色与结果）
var DBConnectAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "matching_db_connect_attempts_total",
		Help: "数据库连接尝试次数",
	},
	[]string{"role", "result"}, // ok | error
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
