package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Trading metrics
	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_trades_total",
			Help: "Total number of trades executed",
		},
		[]string{"symbol", "side"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_signal_rejections_total",
			Help: "Signals rejected before execution, by gate",
		},
		[]string{"reason"},
	)

	slippagePct = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trader_fill_slippage_pct",
			Help:    "Distribution of fill slippage as a fraction of signal price",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005},
		},
		[]string{"symbol"},
	)

	// Account metrics
	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_open_positions",
			Help: "Number of currently open positions",
		},
	)

	accountEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_account_equity",
			Help: "Current account equity",
		},
	)

	dailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_daily_pnl",
			Help: "Realized profit and loss for the current session",
		},
	)

	// Lifecycle metrics
	lifecycleEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_lifecycle_events_total",
			Help: "Position lifecycle events by kind",
		},
		[]string{"kind"},
	)

	// Loop metrics
	loopDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trader_loop_duration_seconds",
			Help:    "Duration of one engine loop pass",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"loop"},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_errors_total",
			Help: "Total number of errors",
		},
		[]string{"category"},
	)
)

func init() {
	// Register metrics
	prometheus.MustRegister(tradesTotal)
	prometheus.MustRegister(rejectionsTotal)
	prometheus.MustRegister(slippagePct)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(accountEquity)
	prometheus.MustRegister(dailyPnL)
	prometheus.MustRegister(lifecycleEvents)
	prometheus.MustRegister(loopDuration)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler handles Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordTrade records an executed trade
func RecordTrade(symbol, side string, slippage float64) {
	tradesTotal.WithLabelValues(symbol, side).Inc()
	if slippage >= 0 {
		slippagePct.WithLabelValues(symbol).Observe(slippage)
	}
}

// RecordRejection records a signal rejected by a pre-trade gate
func RecordRejection(reason string) {
	rejectionsTotal.WithLabelValues(reason).Inc()
}

// UpdateOpenPositions updates the open position count
func UpdateOpenPositions(count int) {
	openPositions.Set(float64(count))
}

// UpdateAccount updates the equity and daily P/L gauges
func UpdateAccount(equity, pnl float64) {
	accountEquity.Set(equity)
	dailyPnL.Set(pnl)
}

// RecordLifecycleEvent records one position lifecycle event
func RecordLifecycleEvent(kind string) {
	lifecycleEvents.WithLabelValues(kind).Inc()
}

// ObserveLoopDuration records how long one loop pass took
func ObserveLoopDuration(loop string, seconds float64) {
	loopDuration.WithLabelValues(loop).Observe(seconds)
}

// RecordError records an error metric by category
func RecordError(category string) {
	errorsTotal.WithLabelValues(category).Inc()
}
