/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package redelivery schedules failed messages for redelivery with an
// exponential backoff. The number of redelivery attempts for a message is
// carried in the message metadata and the delay is applied by the
// publisher's delayed-delivery support.
package redelivery

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/pubsub/spi"
)

// AttemptsMetadataKey is the metadata key under which the number of delivery
// attempts of a message is stored.
const AttemptsMetadataKey = "redelivery_attempts"

// ErrMaxAttemptsReached indicates that a message cannot be redelivered since
// the maximum number of delivery attempts has been reached.
var ErrMaxAttemptsReached = errors.New("maximum delivery attempts reached")

const (
	defaultInitialInterval     = time.Minute
	defaultRandomizationFactor = 0.1
	defaultMultiplier          = 2.5
	defaultMaxInterval         = 12 * time.Hour
	defaultMaxAttempts         = 10
)

// Policy defines the backoff schedule for redelivering messages.
type Policy struct {
	// InitialInterval is the delay before the first redelivery.
	InitialInterval time.Duration

	// RandomizationFactor randomizes each interval by the given factor, e.g.
	// a factor of 0.1 results in an interval within 10% of the computed value.
	RandomizationFactor float64

	// Multiplier is the factor by which the interval grows on each attempt.
	Multiplier float64

	// MaxInterval is the limit for the exponential backoff. The interval will
	// not be increased beyond MaxInterval.
	MaxInterval time.Duration

	// MaxAttempts is the maximum number of delivery attempts, including the
	// first. Once reached, the message is no longer redelivered.
	MaxAttempts int
}

// DefaultPolicy returns the default redelivery policy.
func DefaultPolicy() *Policy {
	return &Policy{
		InitialInterval:     defaultInitialInterval,
		RandomizationFactor: defaultRandomizationFactor,
		Multiplier:          defaultMultiplier,
		MaxInterval:         defaultMaxInterval,
		MaxAttempts:         defaultMaxAttempts,
	}
}

// Interval returns the delay to apply before the given redelivery attempt.
// The first redelivery is attempt 1.
func (p *Policy) Interval(attempt int) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.RandomizationFactor = p.RandomizationFactor
	bo.Multiplier = p.Multiplier
	bo.MaxInterval = p.MaxInterval
	bo.MaxElapsedTime = 0

	bo.Reset()

	interval := bo.NextBackOff()

	for i := 1; i < attempt; i++ {
		interval = bo.NextBackOff()
	}

	return interval
}

// Attempts returns the number of redelivery attempts that have been made for
// the given message. Zero is returned for a message that has never been
// redelivered.
func Attempts(msg *message.Message) (int, error) {
	value, ok := msg.Metadata[AttemptsMetadataKey]
	if !ok {
		return 0, nil
	}

	attempts, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert redelivery attempts metadata to number for message [%s]: %w", msg.UUID, err)
	}

	return attempts, nil
}

type publisher interface {
	PublishWithOpts(topic string, msg *message.Message, opts ...spi.Option) error
}

// Service redelivers messages that failed delivery. A copy of the message,
// with an incremented attempt count, is published to the given topic after a
// delay which is calculated according to the policy.
type Service struct {
	serviceName string
	policy      *Policy
	publisher   publisher
	logger      *log.Log
}

// NewService returns a new redelivery service.
func NewService(serviceName string, policy *Policy, pub publisher) *Service {
	if policy == nil {
		policy = DefaultPolicy()
	}

	return &Service{
		serviceName: serviceName,
		policy:      policy,
		publisher:   pub,
		logger:      log.New("pubsub", log.WithFields(logfields.WithServiceName(serviceName))),
	}
}

// MaxAttempts returns the maximum number of delivery attempts for a message.
func (s *Service) MaxAttempts() int {
	return s.policy.MaxAttempts
}

// Redeliver schedules the given message for redelivery and returns the
// attempt number. ErrMaxAttemptsReached is returned if the message has
// reached the maximum number of delivery attempts.
func (s *Service) Redeliver(topic string, msg *message.Message) (int, error) {
	attempts, err := Attempts(msg)
	if err != nil {
		return 0, err
	}

	// The original delivery also counts as an attempt.
	if attempts+1 >= s.policy.MaxAttempts {
		return 0, fmt.Errorf("redeliver message [%s] after %d attempts: %w",
			msg.UUID, attempts+1, ErrMaxAttemptsReached)
	}

	next := attempts + 1

	newMsg := msg.Copy()
	newMsg.Metadata[AttemptsMetadataKey] = strconv.Itoa(next)

	delay := s.policy.Interval(next)

	s.logger.Debug("Scheduling message for redelivery", logfields.WithMessageID(msg.UUID),
		logfields.WithTopic(topic), logfields.WithAttempt(next), logfields.WithDeliveryDelay(delay))

	if err := s.publisher.PublishWithOpts(topic, newMsg, spi.WithDeliveryDelay(delay)); err != nil {
		return 0, fmt.Errorf("publish message [%s] to topic [%s]: %w", msg.UUID, topic, err)
	}

	return next, nil
}
