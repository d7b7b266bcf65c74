/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package prometheus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/meridianfed/meridian/pkg/httpserver"
	. "github.com/meridianfed/meridian/pkg/observability/metrics"
)

var (
	createOnce sync.Once //nolint:gochecknoglobals
	instance   Metrics   //nolint:gochecknoglobals
)

// PromProvider implements a Prometheus metrics provider backed by an optional
// metrics HTTP server.
type PromProvider struct {
	httpServer *httpserver.Server
}

// NewPrometheusProvider creates a new instance of the Prometheus metrics provider.
func NewPrometheusProvider(httpServer *httpserver.Server) Provider {
	return &PromProvider{httpServer: httpServer}
}

// Create starts the metrics HTTP server (if one was provided).
func (pp *PromProvider) Create() error {
	if pp.httpServer == nil {
		return nil
	}

	if err := pp.httpServer.Start(); err != nil {
		return fmt.Errorf("start metrics HTTP server: %w", err)
	}

	return nil
}

// Metrics returns supported metrics.
func (pp *PromProvider) Metrics() Metrics {
	return GetMetrics()
}

// Destroy stops the metrics HTTP server (if one was provided).
func (pp *PromProvider) Destroy() error {
	if pp.httpServer == nil {
		return nil
	}

	return pp.httpServer.Stop(context.Background())
}

// GetMetrics returns metrics implementation.
func GetMetrics() Metrics {
	createOnce.Do(func() {
		instance = NewMetrics()
	})

	return instance
}

// PromMetrics manages the metrics for Meridian.
type PromMetrics struct {
	apOutboxPostTime           prometheus.Histogram
	apOutboxResolveInboxesTime prometheus.Histogram
	apInboxHandlerTimes        map[string]prometheus.Histogram
	apOutboxActivityCounts     map[string]prometheus.Counter

	httpSigSignTime   prometheus.Histogram
	httpSigVerifyTime prometheus.Histogram

	webFingerResolveTime prometheus.Histogram

	docLoaderCacheHitCount  prometheus.Counter
	docLoaderRemoteLoadTime prometheus.Histogram
}

// NewMetrics creates the metrics and registers them with the default Prometheus registerer.
func NewMetrics() Metrics {
	activityTypes := []string{"Create", "Update", "Delete", "Announce", "Offer", "Like", "Follow", "Accept", "Reject", "Undo"}

	pm := &PromMetrics{
		apOutboxPostTime:           newOutboxPostTime(),
		apOutboxResolveInboxesTime: newOutboxResolveInboxesTime(),
		apInboxHandlerTimes:        newInboxHandlerTimes(activityTypes),
		apOutboxActivityCounts:     newOutboxActivityCounts(activityTypes),
		httpSigSignTime:            newHTTPSigSignTime(),
		httpSigVerifyTime:          newHTTPSigVerifyTime(),
		webFingerResolveTime:       newWebFingerResolveTime(),
		docLoaderCacheHitCount:     newDocLoaderCacheHitCount(),
		docLoaderRemoteLoadTime:    newDocLoaderRemoteLoadTime(),
	}

	registerMetrics(pm)

	return pm
}

func registerMetrics(pm *PromMetrics) {
	prometheus.MustRegister(
		pm.apOutboxPostTime, pm.apOutboxResolveInboxesTime,
		pm.httpSigSignTime, pm.httpSigVerifyTime,
		pm.webFingerResolveTime,
		pm.docLoaderCacheHitCount, pm.docLoaderRemoteLoadTime,
	)

	for _, c := range pm.apInboxHandlerTimes {
		prometheus.MustRegister(c)
	}

	for _, c := range pm.apOutboxActivityCounts {
		prometheus.MustRegister(c)
	}
}

// OutboxPostTime records the time it takes to post a message to the outbox.
func (pm *PromMetrics) OutboxPostTime(value time.Duration) {
	pm.apOutboxPostTime.Observe(value.Seconds())

	Logger.Debug("OutboxPost time", zap.Duration("duration", value))
}

// OutboxResolveInboxesTime records the time it takes to resolve inboxes for an outbox post.
func (pm *PromMetrics) OutboxResolveInboxesTime(value time.Duration) {
	pm.apOutboxResolveInboxesTime.Observe(value.Seconds())

	Logger.Debug("OutboxResolveInboxes time", zap.Duration("duration", value))
}

// OutboxIncrementActivityCount increments the number of activities of the given type posted to the outbox.
func (pm *PromMetrics) OutboxIncrementActivityCount(activityType string) {
	if c, ok := pm.apOutboxActivityCounts[activityType]; ok {
		c.Inc()
	}
}

// InboxHandlerTime records the time it takes to handle an activity posted to the inbox.
func (pm *PromMetrics) InboxHandlerTime(activityType string, value time.Duration) {
	if c, ok := pm.apInboxHandlerTimes[activityType]; ok {
		c.Observe(value.Seconds())
	}

	Logger.Debug("InboxHandler time", zap.String("type", activityType), zap.Duration("duration", value))
}

// SignatureSignTime records the time it takes to sign an outbound request.
func (pm *PromMetrics) SignatureSignTime(value time.Duration) {
	pm.httpSigSignTime.Observe(value.Seconds())

	Logger.Debug("SignatureSign time", zap.Duration("duration", value))
}

// SignatureVerifyTime records the time it takes to verify the signature on an inbound request.
func (pm *PromMetrics) SignatureVerifyTime(value time.Duration) {
	pm.httpSigVerifyTime.Observe(value.Seconds())

	Logger.Debug("SignatureVerify time", zap.Duration("duration", value))
}

// WebFingerResolveTime records the time it takes to resolve a WebFinger resource.
func (pm *PromMetrics) WebFingerResolveTime(value time.Duration) {
	pm.webFingerResolveTime.Observe(value.Seconds())

	Logger.Debug("WebFingerResolve time", zap.Duration("duration", value))
}

// DocumentLoaderIncrementCacheHitCount increments the number of document loader cache hits.
func (pm *PromMetrics) DocumentLoaderIncrementCacheHitCount() {
	pm.docLoaderCacheHitCount.Inc()
}

// DocumentLoaderRemoteLoadTime records the time it takes to load a remote JSON-LD context document.
func (pm *PromMetrics) DocumentLoaderRemoteLoadTime(value time.Duration) {
	pm.docLoaderRemoteLoadTime.Observe(value.Seconds())

	Logger.Debug("DocumentLoaderRemoteLoad time", zap.Duration("duration", value))
}

func newCounter(subsystem, name, help string, labels prometheus.Labels) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   Namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	})
}

func newHistogram(subsystem, name, help string, labels prometheus.Labels) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   Namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	})
}

func newOutboxPostTime() prometheus.Histogram {
	return newHistogram(
		ActivityPub, ApPostTimeMetric,
		"The time (in seconds) that it takes to post a message to the outbox.",
		nil,
	)
}

func newOutboxResolveInboxesTime() prometheus.Histogram {
	return newHistogram(
		ActivityPub, ApResolveInboxesTimeMetric,
		"The time (in seconds) that it takes to resolve the inboxes of the recipients of an activity.",
		nil,
	)
}

func newInboxHandlerTimes(activityTypes []string) map[string]prometheus.Histogram {
	histograms := make(map[string]prometheus.Histogram)

	for _, activityType := range activityTypes {
		histograms[activityType] = newHistogram(
			ActivityPub, ApInboxHandlerTimeMetric,
			"The time (in seconds) that it takes to handle an activity posted to the inbox.",
			prometheus.Labels{"type": activityType},
		)
	}

	return histograms
}

func newOutboxActivityCounts(activityTypes []string) map[string]prometheus.Counter {
	counters := make(map[string]prometheus.Counter)

	for _, activityType := range activityTypes {
		counters[activityType] = newCounter(
			ActivityPub, ApOutboxActivityCounterMetric,
			"The number of activities posted to the outbox.",
			prometheus.Labels{"type": activityType},
		)
	}

	return counters
}

func newHTTPSigSignTime() prometheus.Histogram {
	return newHistogram(
		HTTPSig, HTTPSigSignTimeMetric,
		"The time (in seconds) that it takes to sign an outbound HTTP request.",
		nil,
	)
}

func newHTTPSigVerifyTime() prometheus.Histogram {
	return newHistogram(
		HTTPSig, HTTPSigVerifyTimeMetric,
		"The time (in seconds) that it takes to verify the signature on an inbound HTTP request.",
		nil,
	)
}

func newWebFingerResolveTime() prometheus.Histogram {
	return newHistogram(
		WebFinger, WebFingerResolveTimeMetric,
		"The time (in seconds) that it takes to resolve a WebFinger resource.",
		nil,
	)
}

func newDocLoaderCacheHitCount() prometheus.Counter {
	return newCounter(
		DocLoader, DocLoaderCacheHitCountMetric,
		"The number of times a JSON-LD context document was loaded from the cache.",
		nil,
	)
}

func newDocLoaderRemoteLoadTime() prometheus.Histogram {
	return newHistogram(
		DocLoader, DocLoaderRemoteLoadTimeMetric,
		"The time (in seconds) that it takes to load a JSON-LD context document from a remote source.",
		nil,
	)
}
