package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/certsign"
)

// Metrics holds the OpenTelemetry instruments used across certsign.
type Metrics struct {
	// Issuer gateway
	IssuerRequestsTotal   metric.Int64Counter
	IssuerErrorsTotal     metric.Int64Counter
	IssuerRequestDuration metric.Float64Histogram

	// Reconciliation
	ReconcileTicksTotal       metric.Int64Counter
	ReconcileTransitionsTotal metric.Int64Counter
	ReconcileFailuresTotal    metric.Int64Counter

	// Signing pipeline
	PackagesSignedTotal  metric.Int64Counter
	PackagesSkippedTotal metric.Int64Counter
	SignDuration         metric.Float64Histogram
	PublishFailuresTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary.
// Instruments are bound to whatever meter provider is global at first use.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.IssuerRequestsTotal, _ = meter.Int64Counter(
		"certsign.issuer.requests.total",
		metric.WithDescription("Total number of requests sent to the issuing service"),
		metric.WithUnit("{request}"),
	)

	m.IssuerErrorsTotal, _ = meter.Int64Counter(
		"certsign.issuer.errors.total",
		metric.WithDescription("Total number of failed requests to the issuing service"),
		metric.WithUnit("{error}"),
	)

	m.IssuerRequestDuration, _ = meter.Float64Histogram(
		"certsign.issuer.request.duration",
		metric.WithDescription("Duration of issuing service requests"),
		metric.WithUnit("ms"),
	)

	m.ReconcileTicksTotal, _ = meter.Int64Counter(
		"certsign.reconcile.ticks.total",
		metric.WithDescription("Total number of reconciliation sweeps"),
		metric.WithUnit("{tick}"),
	)

	m.ReconcileTransitionsTotal, _ = meter.Int64Counter(
		"certsign.reconcile.transitions.total",
		metric.WithDescription("Total number of registrations moved from processing to ready"),
		metric.WithUnit("{registration}"),
	)

	m.ReconcileFailuresTotal, _ = meter.Int64Counter(
		"certsign.reconcile.failures.total",
		metric.WithDescription("Total number of registrations that failed to reconcile"),
		metric.WithUnit("{registration}"),
	)

	m.PackagesSignedTotal, _ = meter.Int64Counter(
		"certsign.packages.signed.total",
		metric.WithDescription("Total number of packages signed and published"),
		metric.WithUnit("{package}"),
	)

	m.PackagesSkippedTotal, _ = meter.Int64Counter(
		"certsign.packages.skipped.total",
		metric.WithDescription("Total number of packages skipped during a signing batch"),
		metric.WithUnit("{package}"),
	)

	m.SignDuration, _ = meter.Float64Histogram(
		"certsign.signer.duration",
		metric.WithDescription("Duration of external signer invocations"),
		metric.WithUnit("ms"),
	)

	m.PublishFailuresTotal, _ = meter.Int64Counter(
		"certsign.publish.failures.total",
		metric.WithDescription("Total number of artifact publish failures"),
		metric.WithUnit("{error}"),
	)

	return m
}
