package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pibot"

// Metrics 交易引擎指标。所有方法对 nil 接收者安全，未启用指标时直接传 nil
type Metrics struct {
	cycles      *prometheus.CounterVec
	trades      *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	errors      *prometheus.CounterVec
	riskScore   prometheus.Gauge
	lastPrice   prometheus.Gauge
	position    prometheus.Gauge
	entryPrice  prometheus.Gauge
	realizedPnL prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics 创建并注册到 reg；reg 为 nil 时使用独立的注册表
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "cycles_total", Help: "Trading cycles by outcome"},
			[]string{"outcome"},
		),
		trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "trades_total", Help: "Executed trades"},
			[]string{"side", "trigger"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "rejections_total", Help: "Rejected position transitions"},
			[]string{"reason"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "errors_total", Help: "Data and execution failures"},
			[]string{"kind"},
		),
		riskScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "risk_score", Help: "Last computed risk score",
		}),
		lastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_price", Help: "Last observed ticker price",
		}),
		position: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "position_open", Help: "1 when LONG, 0 when FLAT",
		}),
		entryPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "entry_price", Help: "Entry price of the open position",
		}),
		realizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "realized_pnl", Help: "Cumulative realized P/L in quote units",
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.cycles, m.trades, m.rejections, m.errors,
		m.riskScore, m.lastPrice, m.position, m.entryPrice, m.realizedPnL)
	return m
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCycle(outcome string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
}

// ObserveTrade side 为 buy/sell，manual 区分手动与自动
func (m *Metrics) ObserveTrade(side string, manual bool) {
	if m == nil {
		return
	}
	trigger := "auto"
	if manual {
		trigger = "manual"
	}
	m.trades.WithLabelValues(side, trigger).Inc()
}

func (m *Metrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveError(kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetRiskScore(score int) {
	if m == nil {
		return
	}
	m.riskScore.Set(float64(score))
}

func (m *Metrics) SetPrice(price float64) {
	if m == nil {
		return
	}
	m.lastPrice.Set(price)
}

// SetPosition entry 仅在 open 时有意义
func (m *Metrics) SetPosition(open bool, entry float64) {
	if m == nil {
		return
	}
	if open {
		m.position.Set(1)
		m.entryPrice.Set(entry)
		return
	}
	m.position.Set(0)
	m.entryPrice.Set(0)
}

func (m *Metrics) AddRealizedPnL(pnl float64) {
	if m == nil {
		return
	}
	m.realizedPnL.Add(pnl)
}
