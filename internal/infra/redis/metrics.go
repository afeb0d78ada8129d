package redis

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "console"

var (
	commandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "redis",
		Name:      "command_duration_seconds",
		Help:      "Latency of Redis commands issued by the console",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"command", "outcome"})

	poolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "redis",
		Name:      "pool_connections",
		Help:      "Redis pool counters by kind (hits, misses, timeouts, total, idle)",
	}, []string{"kind"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by cache name and result",
	}, []string{"cache", "result"})

	userLockAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "bulk",
		Name:      "user_lock_attempts_total",
		Help:      "Per-user lock attempts by result (acquired, timeout, error)",
	}, []string{"result"})
)

func observeCommand(command string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	commandDuration.WithLabelValues(command, outcome).Observe(time.Since(start).Seconds())
}

func recordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(cache, result).Inc()
}

func recordUserLock(result string) {
	userLockAttempts.WithLabelValues(result).Inc()
}

func (c *Client) exportPoolStats() {
	stats := c.client.PoolStats()
	if stats == nil {
		return
	}
	poolConnections.WithLabelValues("hits").Set(float64(stats.Hits))
	poolConnections.WithLabelValues("misses").Set(float64(stats.Misses))
	poolConnections.WithLabelValues("timeouts").Set(float64(stats.Timeouts))
	poolConnections.WithLabelValues("total").Set(float64(stats.TotalConns))
	poolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns))
}

// CollectPoolStats exports pool statistics every interval until ctx is done.
func (c *Client) CollectPoolStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		c.exportPoolStats()
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
