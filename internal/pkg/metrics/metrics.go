package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 聚合了订单服务暴露的所有 Prometheus 指标。
// nil *Metrics 是合法的，所有方法都会直接返回，方便测试中省略。
type Metrics struct {
	requests      *prometheus.CounterVec
	latencyMS     *prometheus.HistogramVec
	orders        *prometheus.CounterVec
	compensations prometheus.Counter
	inventory     *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	outboxPending prometheus.Gauge
}

func New(service string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: service,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		latencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: service,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: service,
			Name:      "orders_placed_total",
			Help:      "Order placement attempts by result.",
		}, []string{"result"}),
		compensations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: service,
			Name:      "saga_compensations_total",
			Help:      "Compensation actions executed by the order saga.",
		}),
		inventory: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: service,
			Name:      "inventory_operation_seconds",
			Help:      "Inventory ledger operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: service,
			Name:      "notifications_total",
			Help:      "Outbound order notifications by result.",
		}, []string{"result"}),
		outboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "storefront",
			Subsystem: service,
			Name:      "outbox_pending",
			Help:      "Pending outbox records seen by the last relay poll.",
		}),
	}

	reg.MustRegister(m.requests, m.latencyMS, m.orders, m.compensations, m.inventory, m.notifications, m.outboxPending)
	return m
}

func (m *Metrics) OrderPlaced(result string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(result).Inc()
}

func (m *Metrics) Compensated() {
	if m == nil {
		return
	}
	m.compensations.Inc()
}

func (m *Metrics) ObserveInventory(op, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.inventory.WithLabelValues(op, result).Observe(d.Seconds())
}

func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) OutboxPending(n int) {
	if m == nil {
		return
	}
	m.outboxPending.Set(float64(n))
}

// Instrument 记录单个路由的请求数和耗时
func (m *Metrics) Instrument(name string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.requests.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
		m.latencyMS.WithLabelValues(name).Observe(float64(time.Since(start).Milliseconds()))
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
