/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"time"

	"github.com/trustbloc/logutil-go/pkg/log"
)

// Logger used by the metrics providers.
var Logger = log.New("metrics-provider")

// Constants used by the metrics providers.
const (
	// Namespace Organization namespace.
	Namespace = "meridian"

	// ActivityPub ActivityPub.
	ActivityPub                   = "activitypub"
	ApPostTimeMetric              = "outbox_post_seconds"
	ApResolveInboxesTimeMetric    = "outbox_resolve_inboxes_seconds"
	ApInboxHandlerTimeMetric      = "inbox_handler_seconds"
	ApOutboxActivityCounterMetric = "outbox_count"

	// HTTPSig HTTP signatures.
	HTTPSig                 = "httpsig"
	HTTPSigSignTimeMetric   = "sign_seconds"
	HTTPSigVerifyTimeMetric = "verify_seconds"

	// WebFinger WebFinger.
	WebFinger                  = "webfinger"
	WebFingerResolveTimeMetric = "resolve_seconds"

	// DocLoader JSON-LD document loader.
	DocLoader                     = "docloader"
	DocLoaderCacheHitCountMetric  = "cache_hit_count"
	DocLoaderRemoteLoadTimeMetric = "remote_load_seconds"
)

// Provider is an interface for metrics provider.
type Provider interface {
	// Create creates a metrics provider instance
	Create() error
	// Destroy destroys the metrics provider instance
	Destroy() error
	// Metrics providers metrics
	Metrics() Metrics
}

// Metrics is an interface for the metrics to be supported by the provider.
type Metrics interface {
	OutboxPostTime(value time.Duration)
	OutboxResolveInboxesTime(value time.Duration)
	OutboxIncrementActivityCount(activityType string)
	InboxHandlerTime(activityType string, value time.Duration)
	SignatureSignTime(value time.Duration)
	SignatureVerifyTime(value time.Duration)
	WebFingerResolveTime(value time.Duration)
	DocumentLoaderIncrementCacheHitCount()
	DocumentLoaderRemoteLoadTime(value time.Duration)
}
