/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package client

import (
	"time"

	"github.com/meridianfed/meridian/pkg/vocab"
)

type options struct {
	interval          time.Duration
	suppressErrors    bool
	crossOriginPolicy vocab.CrossOriginPolicy
}

// Option sets an option on a client operation.
type Option func(*options)

func newOptions(opts ...Option) *options {
	o := &options{
		crossOriginPolicy: vocab.CrossOriginReject,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// WithInterval sets the delay that is applied before each page of a collection
// is retrieved during traversal, so that a remote server is not flooded with
// requests.
func WithInterval(interval time.Duration) Option {
	return func(o *options) {
		o.interval = interval
	}
}

// WithSuppressErrors, when set to true, causes collection traversal to skip over
// items and pages that cannot be retrieved or parsed, instead of failing the
// iteration.
func WithSuppressErrors(suppress bool) Option {
	return func(o *options) {
		o.suppressErrors = suppress
	}
}

// WithCrossOriginPolicy sets the policy that is applied when a looked-up object's
// ID has an origin which differs from the origin of the document that it was
// loaded from. The default policy is to reject the object.
func WithCrossOriginPolicy(policy vocab.CrossOriginPolicy) Option {
	return func(o *options) {
		o.crossOriginPolicy = policy
	}
}
