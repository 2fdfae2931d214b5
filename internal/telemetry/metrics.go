package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/collabhq/portal"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Session metrics
	ProfileSnapshotsTotal metric.Int64Counter
	SignInsTotal          metric.Int64Counter
	SignOutsTotal         metric.Int64Counter

	// Live subscription metrics
	ActiveSubscriptions     metric.Int64UpDownCounter
	SnapshotsDeliveredTotal metric.Int64Counter
	SubscriptionErrorsTotal metric.Int64Counter
	RefreshTicksTotal       metric.Int64Counter

	// Guard metrics
	MembershipsHealedTotal metric.Int64Counter
	AccessDeniedTotal      metric.Int64Counter

	// Mutation metrics
	MutationsTotal         metric.Int64Counter
	MutationRollbacksTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.ProfileSnapshotsTotal, _ = meter.Int64Counter(
		"portal.session.profile_snapshots.total",
		metric.WithDescription("Total number of live profile snapshots applied"),
		metric.WithUnit("{snapshot}"),
	)

	m.SignInsTotal, _ = meter.Int64Counter(
		"portal.session.sign_ins.total",
		metric.WithDescription("Total number of sign-in transitions processed"),
		metric.WithUnit("{transition}"),
	)

	m.SignOutsTotal, _ = meter.Int64Counter(
		"portal.session.sign_outs.total",
		metric.WithDescription("Total number of sign-out transitions processed"),
		metric.WithUnit("{transition}"),
	)

	m.ActiveSubscriptions, _ = meter.Int64UpDownCounter(
		"portal.live.active_subscriptions",
		metric.WithDescription("Number of live collection subscriptions currently open"),
		metric.WithUnit("{subscription}"),
	)

	m.SnapshotsDeliveredTotal, _ = meter.Int64Counter(
		"portal.live.snapshots.total",
		metric.WithDescription("Total number of collection snapshots delivered"),
		metric.WithUnit("{snapshot}"),
	)

	m.SubscriptionErrorsTotal, _ = meter.Int64Counter(
		"portal.live.subscription_errors.total",
		metric.WithDescription("Total number of subscription errors observed"),
		metric.WithUnit("{error}"),
	)

	m.RefreshTicksTotal, _ = meter.Int64Counter(
		"portal.live.refresh_ticks.total",
		metric.WithDescription("Total number of polling fallback refreshes"),
		metric.WithUnit("{tick}"),
	)

	m.MembershipsHealedTotal, _ = meter.Int64Counter(
		"portal.guard.memberships_healed.total",
		metric.WithDescription("Total number of missing membership records created by the guard"),
		metric.WithUnit("{membership}"),
	)

	m.AccessDeniedTotal, _ = meter.Int64Counter(
		"portal.guard.access_denied.total",
		metric.WithDescription("Total number of workflow-fatal access denials"),
		metric.WithUnit("{denial}"),
	)

	m.MutationsTotal, _ = meter.Int64Counter(
		"portal.mutate.mutations.total",
		metric.WithDescription("Total number of optimistic mutations executed"),
		metric.WithUnit("{mutation}"),
	)

	m.MutationRollbacksTotal, _ = meter.Int64Counter(
		"portal.mutate.rollbacks.total",
		metric.WithDescription("Total number of optimistic mutations rolled back"),
		metric.WithUnit("{rollback}"),
	)

	return m
}
