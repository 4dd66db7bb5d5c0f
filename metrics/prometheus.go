package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lending market metrics collector

var (
	// Singleton collector
	collector     *Collector
	collectorOnce sync.Once
)

// Collector holds all lending market metrics
type Collector struct {
	// Action metrics
	ActionsTotal  *prometheus.CounterVec
	ActionLatency *prometheus.HistogramVec

	// Reserve metrics
	ReserveUtilization  *prometheus.GaugeVec
	ReserveBorrowRate   *prometheus.GaugeVec
	ReserveSupplyRate   *prometheus.GaugeVec
	ReserveDeposits     *prometheus.GaugeVec
	ReserveBorrows      *prometheus.GaugeVec
	ProtocolFeesAccrued *prometheus.GaugeVec

	// Liquidation metrics
	LiquidationsTotal *prometheus.CounterVec
	LiquidationRepaid *prometheus.CounterVec
	LiquidationSeized *prometheus.CounterVec

	// Health metrics
	AtRiskAccounts   prometheus.Gauge
	IndexedAccounts  prometheus.Gauge
	HealthScanErrors prometheus.Counter

	// Oracle metrics
	OraclePrice       *prometheus.GaugeVec
	OracleSubmissions *prometheus.CounterVec
	OracleRejections  *prometheus.CounterVec

	// API metrics
	APIRequestsTotal  *prometheus.CounterVec
	APIRequestLatency *prometheus.HistogramVec

	// System metrics
	BlockHeight prometheus.Gauge
}

// GetCollector returns the singleton metrics collector
func GetCollector() *Collector {
	collectorOnce.Do(func() {
		collector = newCollector()
	})
	return collector
}

// newCollector creates a new metrics collector
func newCollector() *Collector {
	c := &Collector{}

	// Action metrics
	c.ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lending",
			Subsystem: "actions",
			Name:      "total",
			Help:      "Total number of user actions processed",
		},
		[]string{"action", "asset_id", "status"},
	)

	c.ActionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lending",
			Subsystem: "actions",
			Name:      "latency_ms",
			Help:      "Action processing latency in milliseconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500},
		},
		[]string{"action"},
	)

	// Reserve metrics
	c.ReserveUtilization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lending",
			Subsystem: "reserve",
			Name:      "utilization",
			Help:      "Reserve utilization (borrows / deposits)",
		},
		[]string{"asset_id"},
	)

	c.ReserveBorrowRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lending",
			Subsystem: "reserve",
			Name:      "borrow_rate",
			Help:      "Current annual borrow rate",
		},
		[]string{"asset_id"},
	)

	c.ReserveSupplyRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lending",
			Subsystem: "reserve",
			Name:      "supply_rate",
			Help:      "Current annual supply rate",
		},
		[]string{"asset_id"},
	)

	c.ReserveDeposits = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lending",
			Subsystem: "reserve",
			Name:      "total_deposits",
			Help:      "Total deposits in the reserve",
		},
		[]string{"asset_id"},
	)

	c.ReserveBorrows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lending",
			Subsystem: "reserve",
			Name:      "total_borrows",
			Help:      "Total outstanding borrows in the reserve",
		},
		[]string{"asset_id"},
	)

	c.ProtocolFeesAccrued = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lending",
			Subsystem: "reserve",
			Name:      "protocol_fees",
			Help:      "Accrued protocol fees per reserve",
		},
		[]string{"asset_id"},
	)

	// Liquidation metrics
	c.LiquidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lending",
			Subsystem: "liquidations",
			Name:      "total",
			Help:      "Total number of executed liquidations",
		},
		[]string{"debt_asset", "collateral_asset"},
	)

	c.LiquidationRepaid = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lending",
			Subsystem: "liquidations",
			Name:      "repaid",
			Help:      "Cumulative debt repaid through liquidations",
		},
		[]string{"debt_asset"},
	)

	c.LiquidationSeized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lending",
			Subsystem: "liquidations",
			Name:      "seized",
			Help:      "Cumulative collateral seized through liquidations",
		},
		[]string{"collateral_asset"},
	)

	// Health metrics
	c.AtRiskAccounts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lending",
			Subsystem: "health",
			Name:      "at_risk_accounts",
			Help:      "Accounts with health factor below the safe threshold",
		},
	)

	c.IndexedAccounts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lending",
			Subsystem: "health",
			Name:      "indexed_accounts",
			Help:      "Accounts tracked in the at-risk index",
		},
	)

	c.HealthScanErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lending",
			Subsystem: "health",
			Name:      "scan_errors",
			Help:      "Positions skipped during solvency scans",
		},
	)

	// Oracle metrics
	c.OraclePrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lending",
			Subsystem: "oracle",
			Name:      "price",
			Help:      "Latest aggregated price per asset",
		},
		[]string{"asset_id"},
	)

	c.OracleSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lending",
			Subsystem: "oracle",
			Name:      "submissions_total",
			Help:      "Accepted source price submissions",
		},
		[]string{"source", "asset_id"},
	)

	c.OracleRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lending",
			Subsystem: "oracle",
			Name:      "rejections_total",
			Help:      "Rejected source price submissions",
		},
		[]string{"source", "asset_id", "reason"},
	)

	// API metrics
	c.APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lending",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total API requests",
		},
		[]string{"method", "path", "status"},
	)

	c.APIRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lending",
			Subsystem: "api",
			Name:      "request_latency_ms",
			Help:      "API request latency in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000},
		},
		[]string{"method", "path"},
	)

	// System metrics
	c.BlockHeight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lending",
			Subsystem: "system",
			Name:      "block_height",
			Help:      "Current block height",
		},
	)

	c.registerAll()

	return c
}

// registerAll registers all metrics with Prometheus
func (c *Collector) registerAll() {
	prometheus.MustRegister(c.ActionsTotal)
	prometheus.MustRegister(c.ActionLatency)

	prometheus.MustRegister(c.ReserveUtilization)
	prometheus.MustRegister(c.ReserveBorrowRate)
	prometheus.MustRegister(c.ReserveSupplyRate)
	prometheus.MustRegister(c.ReserveDeposits)
	prometheus.MustRegister(c.ReserveBorrows)
	prometheus.MustRegister(c.ProtocolFeesAccrued)

	prometheus.MustRegister(c.LiquidationsTotal)
	prometheus.MustRegister(c.LiquidationRepaid)
	prometheus.MustRegister(c.LiquidationSeized)

	prometheus.MustRegister(c.AtRiskAccounts)
	prometheus.MustRegister(c.IndexedAccounts)
	prometheus.MustRegister(c.HealthScanErrors)

	prometheus.MustRegister(c.OraclePrice)
	prometheus.MustRegister(c.OracleSubmissions)
	prometheus.MustRegister(c.OracleRejections)

	prometheus.MustRegister(c.APIRequestsTotal)
	prometheus.MustRegister(c.APIRequestLatency)

	prometheus.MustRegister(c.BlockHeight)
}

// ============ Recording Helpers ============

// RecordAction records an action outcome
func (c *Collector) RecordAction(action, assetID, status string) {
	c.ActionsTotal.WithLabelValues(action, assetID, status).Inc()
}

// RecordActionLatency records action processing latency
func (c *Collector) RecordActionLatency(action string, latencyMs float64) {
	c.ActionLatency.WithLabelValues(action).Observe(latencyMs)
}

// UpdateReserve updates the per-reserve gauges
func (c *Collector) UpdateReserve(assetID string, utilization, borrowRate, supplyRate, deposits, borrows float64) {
	c.ReserveUtilization.WithLabelValues(assetID).Set(utilization)
	c.ReserveBorrowRate.WithLabelValues(assetID).Set(borrowRate)
	c.ReserveSupplyRate.WithLabelValues(assetID).Set(supplyRate)
	c.ReserveDeposits.WithLabelValues(assetID).Set(deposits)
	c.ReserveBorrows.WithLabelValues(assetID).Set(borrows)
}

// RecordLiquidation records an executed liquidation
func (c *Collector) RecordLiquidation(debtAsset, collateralAsset string, repaid, seized float64) {
	c.LiquidationsTotal.WithLabelValues(debtAsset, collateralAsset).Inc()
	c.LiquidationRepaid.WithLabelValues(debtAsset).Add(repaid)
	c.LiquidationSeized.WithLabelValues(collateralAsset).Add(seized)
}

// UpdateHealthGauges updates the solvency-scan gauges
func (c *Collector) UpdateHealthGauges(atRisk, indexed int) {
	c.AtRiskAccounts.Set(float64(atRisk))
	c.IndexedAccounts.Set(float64(indexed))
}

// RecordOraclePrice records the latest aggregated price
func (c *Collector) RecordOraclePrice(assetID string, price float64) {
	c.OraclePrice.WithLabelValues(assetID).Set(price)
}

// RecordOracleSubmission records an accepted source submission
func (c *Collector) RecordOracleSubmission(source, assetID string) {
	c.OracleSubmissions.WithLabelValues(source, assetID).Inc()
}

// RecordOracleRejection records a rejected source submission
func (c *Collector) RecordOracleRejection(source, assetID, reason string) {
	c.OracleRejections.WithLabelValues(source, assetID, reason).Inc()
}

// RecordAPIRequest records an API request
func (c *Collector) RecordAPIRequest(method, path, status string, latencyMs float64) {
	c.APIRequestsTotal.WithLabelValues(method, path, status).Inc()
	c.APIRequestLatency.WithLabelValues(method, path).Observe(latencyMs)
}

// ============ HTTP Handler ============

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for measuring latency
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ElapsedMs returns the elapsed time in milliseconds
func (t *Timer) ElapsedMs() float64 {
	return float64(time.Since(t.start).Microseconds()) / 1000.0
}
