// Package metrics holds the Prometheus collectors of the console.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every console metric.
const Namespace = "console"

// Bulk operation metrics
var (
	// BulkOperationsTotal counts finished operations by kind and terminal outcome.
	BulkOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "bulk_operations_total",
			Help:      "Total number of bulk operations by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// BulkOperationsRejected counts requests rejected before dispatch.
	BulkOperationsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "bulk_operations_rejected_total",
			Help:      "Total number of bulk requests rejected at validation",
		},
		[]string{"kind", "reason"},
	)

	// BulkItemsTotal counts item outcomes; result is "success" or an error kind.
	BulkItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "bulk_items_total",
			Help:      "Total number of bulk operation items by kind and result",
		},
		[]string{"kind", "result"},
	)

	// BulkItemDuration tracks per-item processing time.
	BulkItemDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "bulk_item_duration_seconds",
			Help:      "Bulk operation item duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	// BulkOperationsInFlight tracks operations that have not reached a terminal state.
	BulkOperationsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "bulk_operations_in_flight",
			Help:      "Number of bulk operations currently running",
		},
	)

	// BulkLockWait tracks time spent waiting for the per-user lock.
	BulkLockWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "bulk_user_lock_wait_seconds",
			Help:      "Time spent waiting for a per-user lock",
			Buckets:   []float64{.0001, .001, .01, .05, .1, .5, 1, 5},
		},
	)
)

// Authorization metrics
var (
	// AuthzDenialsTotal counts authorization refusals by error kind and scope.
	AuthzDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "authz_denials_total",
			Help:      "Total number of authorization denials",
		},
		[]string{"reason", "scope"},
	)

	// RoleHierarchyLoads counts role hierarchy loads by result.
	RoleHierarchyLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "role_hierarchy_loads_total",
			Help:      "Total number of role hierarchy loads by result",
		},
		[]string{"result"},
	)

	// RoleHierarchyRoles reports the number of roles in the active snapshot.
	RoleHierarchyRoles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "role_hierarchy_roles",
			Help:      "Number of roles in the active hierarchy",
		},
	)
)

// Audit metrics
var (
	// AuditWritesTotal counts audit hand-offs by delivery mode.
	AuditWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "audit_writes_total",
			Help:      "Total number of audit entries handed off",
		},
		[]string{"mode"},
	)

	// AuditWriteFailures counts audit entries that could not be handed off.
	AuditWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "audit_write_failures_total",
			Help:      "Total number of failed audit writes",
		},
		[]string{"mode"},
	)
)

// Archive metrics
var (
	// ArchiveUploadsTotal counts result archive uploads by status.
	ArchiveUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "archive_uploads_total",
			Help:      "Total number of result archive uploads",
		},
		[]string{"status"},
	)
)
