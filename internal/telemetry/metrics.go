package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/coursecert"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Issuance metrics
	CertificatesRegisteredTotal metric.Int64Counter
	CertificatesStoredTotal     metric.Int64Counter

	// Verification metrics
	CertificatesVerifiedTotal metric.Int64Counter

	// Rendering metrics
	RenderDuration    metric.Float64Histogram
	LogoFallbackTotal metric.Int64Counter

	// Blob metrics
	BlobSignErrorsTotal metric.Int64Counter
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

	m.CertificatesRegisteredTotal, _ = meter.Int64Counter(
		"coursecert.certificates.registered.total",
		metric.WithDescription("Total number of certificate registrations"),
		metric.WithUnit("{certificate}"),
	)

	m.CertificatesStoredTotal, _ = meter.Int64Counter(
		"coursecert.certificates.stored.total",
		metric.WithDescription("Total number of certificate documents uploaded to blob storage"),
		metric.WithUnit("{certificate}"),
	)

	m.CertificatesVerifiedTotal, _ = meter.Int64Counter(
		"coursecert.certificates.verified.total",
		metric.WithDescription("Total number of verification lookups"),
		metric.WithUnit("{lookup}"),
	)

	m.RenderDuration, _ = meter.Float64Histogram(
		"coursecert.render.duration",
		metric.WithDescription("Duration of certificate document rendering"),
		metric.WithUnit("ms"),
	)

	m.LogoFallbackTotal, _ = meter.Int64Counter(
		"coursecert.logo.fallback.total",
		metric.WithDescription("Total number of renders that used the text brand mark instead of the logo"),
		metric.WithUnit("{render}"),
	)

	m.BlobSignErrorsTotal, _ = meter.Int64Counter(
		"coursecert.blob.sign.errors.total",
		metric.WithDescription("Total number of failed signed URL requests"),
		metric.WithUnit("{error}"),
	)

	return m
}
