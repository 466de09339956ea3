package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"clinic-booking-chatbot/models"
)

// ChatbotMetrics exposes counters/histograms for the assistant.
type ChatbotMetrics struct {
	repliesTotal  *prometheus.CounterVec
	replyLatency  *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	sessionsGauge prometheus.Gauge
}

func NewChatbotMetrics(reg prometheus.Registerer) *ChatbotMetrics {
	m := &ChatbotMetrics{
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "chatbot",
			Name:      "replies_total",
			Help:      "Replies generated, by intent and outcome",
		}, []string{"intent", "outcome"}),
		replyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "chatbot",
			Name:      "reply_latency_seconds",
			Help:      "Time spent generating a reply, excluding the thinking delay",
			Buckets:   prometheus.DefBuckets,
		}, []string{"intent"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "chatbot",
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups, by resource and result",
		}, []string{"resource", "result"}),
		sessionsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinic",
			Subsystem: "chatbot",
			Name:      "active_sessions",
			Help:      "Chat sessions currently held in memory",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.repliesTotal, m.replyLatency, m.cacheLookups, m.sessionsGauge)
	return m
}

func (m *ChatbotMetrics) ObserveReply(intent models.Intent, failed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.repliesTotal.WithLabelValues(string(intent), outcome).Inc()
	m.replyLatency.WithLabelValues(string(intent)).Observe(elapsed.Seconds())
}

func (m *ChatbotMetrics) ObserveCacheLookup(resource string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(resource, result).Inc()
}

func (m *ChatbotMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.sessionsGauge.Set(float64(n))
}
