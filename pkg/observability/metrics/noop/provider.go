/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package noop

import (
	"time"

	"github.com/meridianfed/meridian/pkg/observability/metrics"
)

// Provider implements a no-op metrics provider.
type Provider struct {
}

// NewProvider creates new instance of the no-op metrics provider.
func NewProvider() *Provider {
	return &Provider{}
}

// Create does nothing.
func (pp *Provider) Create() error {
	return nil
}

// Destroy does nothing.
func (pp *Provider) Destroy() error {
	return nil
}

// Metrics returns supported metrics.
func (pp *Provider) Metrics() metrics.Metrics {
	return &NoOptMetrics{}
}

// NoOptMetrics provides default no operation implementation for the Metrics interface.
type NoOptMetrics struct{}

// OutboxPostTime records the time it takes to post a message to the outbox.
func (nm NoOptMetrics) OutboxPostTime(value time.Duration) {}

// OutboxResolveInboxesTime records the time it takes to resolve inboxes for an outbox post.
func (nm NoOptMetrics) OutboxResolveInboxesTime(value time.Duration) {}

// OutboxIncrementActivityCount increments the number of activities of the given type posted to the outbox.
func (nm NoOptMetrics) OutboxIncrementActivityCount(activityType string) {}

// InboxHandlerTime records the time it takes to handle an activity posted to the inbox.
func (nm NoOptMetrics) InboxHandlerTime(activityType string, value time.Duration) {}

// SignatureSignTime records the time it takes to sign an outbound request.
func (nm NoOptMetrics) SignatureSignTime(value time.Duration) {}

// SignatureVerifyTime records the time it takes to verify the signature on an inbound request.
func (nm NoOptMetrics) SignatureVerifyTime(value time.Duration) {}

// WebFingerResolveTime records the time it takes to resolve a WebFinger resource.
func (nm NoOptMetrics) WebFingerResolveTime(value time.Duration) {}

// DocumentLoaderIncrementCacheHitCount increments the number of document loader cache hits.
func (nm NoOptMetrics) DocumentLoaderIncrementCacheHitCount() {}

// DocumentLoaderRemoteLoadTime records the time it takes to load a remote JSON-LD context document.
func (nm NoOptMetrics) DocumentLoaderRemoteLoadTime(value time.Duration) {}
