/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package httpsubscriber implements a Watermill subscriber which is fed by
// HTTP requests posted to an inbox endpoint. The HTTP signature on a request
// is verified and the activity is checked against the verified actor before
// the request body is handed to the message pipeline.
package httpsubscriber

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	wmhttp "github.com/ThreeDotsLabs/watermill-http/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	merrors "github.com/meridianfed/meridian/pkg/errors"
	"github.com/meridianfed/meridian/pkg/lifecycle"
	"github.com/meridianfed/meridian/pkg/pubsub"
	"github.com/meridianfed/meridian/pkg/restapi/common"
	"github.com/meridianfed/meridian/pkg/vocab"
)

const (
	// ActorIRIKey is the metadata key under which the IRI of the verified
	// signing actor is stored.
	ActorIRIKey = "actor-iri"

	// InboxPathKey is the metadata key under which the path of the inbox that
	// received the request is stored. A service that accepts deliveries on
	// multiple inbox endpoints uses this path to process the same activity
	// once per inbox rather than once per service.
	InboxPathKey = "inbox-path"

	defaultBufferSize = 100

	loggerModule = "activitypub_service"
)

// Config holds the HTTP subscriber configuration parameters.
type Config struct {
	ServiceEndpoint string
	BufferSize      int

	// SkipVerification disables HTTP signature verification. Requests are
	// accepted from anyone. This should only be set in tests or when requests
	// are verified by an upstream gateway.
	SkipVerification bool
}

type signatureVerifier interface {
	VerifyRequest(req *http.Request) (*url.URL, error)
}

// Subscriber implements a subscriber for Watermill that handles HTTP requests.
type Subscriber struct {
	*lifecycle.Lifecycle
	*Config

	pubChan          chan *message.Message
	msgChan          chan *message.Message
	stopped          chan struct{}
	done             chan struct{}
	unmarshalMessage wmhttp.UnmarshalMessageFunc
	verifier         signatureVerifier
	logger           *log.Log
}

// New returns a new HTTP subscriber.
func New(cfg *Config, sigVerifier signatureVerifier) *Subscriber {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = defaultBufferSize
	}

	s := &Subscriber{
		Config:           cfg,
		unmarshalMessage: wmhttp.DefaultUnmarshalMessageFunc,
		verifier:         sigVerifier,
		pubChan:          make(chan *message.Message, cfg.BufferSize),
		msgChan:          make(chan *message.Message, cfg.BufferSize),
		stopped:          make(chan struct{}),
		done:             make(chan struct{}),
		logger:           log.New(loggerModule, log.WithFields(logfields.WithServiceName(cfg.ServiceEndpoint))),
	}

	s.Lifecycle = lifecycle.New("httpsubscriber-"+cfg.ServiceEndpoint,
		lifecycle.WithStop(s.stop),
		lifecycle.WithStart(func() {
			go s.publisher()
		}),
	)

	// Start the service immediately.
	s.Start()

	return s
}

// Subscribe returns the channel over which incoming messages are sent.
func (s *Subscriber) Subscribe(_ context.Context, _ string) (<-chan *message.Message, error) {
	return s.msgChan, nil
}

// Close stops the subscriber.
func (s *Subscriber) Close() error {
	s.Stop()

	return nil
}

// Path returns the base path of the target endpoint for this subscriber.
func (s *Subscriber) Path() string {
	return s.ServiceEndpoint
}

// Method returns the HTTP method, which is always POST.
func (s *Subscriber) Method() string {
	return http.MethodPost
}

// Handler returns the handler that should be invoked when an HTTP request is posted to the target endpoint.
// This handler must be registered with an HTTP server.
func (s *Subscriber) Handler() common.HTTPRequestHandler {
	return s.handleMessage
}

func (s *Subscriber) handleMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var actorIRI *url.URL

	if s.SkipVerification || s.verifier == nil {
		s.logger.Debugc(ctx, "Signature verification is disabled. Request will not be verified.",
			logfields.WithSenderURL(r.URL))
	} else {
		actor, err := s.verifier.VerifyRequest(r)
		if err != nil {
			if merrors.IsKind(err, merrors.KindSignature) {
				s.logger.Infoc(ctx, "Invalid HTTP signature", log.WithError(err), logfields.WithSenderURL(r.URL))

				w.WriteHeader(http.StatusUnauthorized)
			} else {
				s.logger.Errorc(ctx, "Error verifying HTTP signature", log.WithError(err),
					logfields.WithSenderURL(r.URL))

				w.WriteHeader(http.StatusInternalServerError)
			}

			return
		}

		actorIRI = actor
	}

	msg, err := s.unmarshalMessage("", r)
	if err != nil {
		s.logger.Warnc(ctx, "Error reading message", log.WithError(err), logfields.WithSenderURL(r.URL))

		w.WriteHeader(http.StatusBadRequest)

		return
	}

	activity := &vocab.ActivityType{}

	if err := json.Unmarshal(msg.Payload, activity); err != nil {
		s.logger.Warnc(ctx, "Error parsing activity", log.WithError(err), logfields.WithSenderURL(r.URL))

		w.WriteHeader(http.StatusBadRequest)

		return
	}

	if activity.ID().URL() == nil {
		s.logger.Infoc(ctx, "Activity has no ID. Request will be rejected.", logfields.WithSenderURL(r.URL))

		w.WriteHeader(http.StatusBadRequest)

		return
	}

	if actorIRI != nil {
		// An activity whose actor is in a different origin than the actor
		// that signed the request is considered spoofed.
		if !vocab.SameOrigin(activity.Actor(), actorIRI) {
			s.logger.Infoc(ctx, "Origin of the actor in the activity does not match the origin of the verified signing actor",
				logfields.WithActorIRI(activity.Actor()), logfields.WithKeyOwnerIRI(actorIRI))

			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		msg.Metadata[ActorIRIKey] = actorIRI.String()
	}

	msg.Metadata[InboxPathKey] = r.URL.Path

	s.logger.Debugc(ctx, "Handling message", logfields.WithMessageID(msg.UUID),
		logfields.WithActorIRI(actorIRI), logfields.WithSenderURL(r.URL))

	pubsub.InjectContext(ctx, msg)

	err = s.publish(msg)
	if err != nil {
		s.logger.Infoc(ctx, "Message wasn't sent", logfields.WithMessageID(msg.UUID), log.WithError(err),
			logfields.WithSenderURL(r.URL))

		w.WriteHeader(http.StatusServiceUnavailable)

		return
	}

	s.respond(msg, w, r)
}

func (s *Subscriber) publish(msg *message.Message) error {
	if s.State() != lifecycle.StateStarted {
		return lifecycle.ErrNotStarted
	}

	s.pubChan <- msg

	s.logger.Debug("Message was posted to publisher", logfields.WithMessageID(msg.UUID))

	return nil
}

func (s *Subscriber) publisher() {
	s.logger.Info("Starting publisher.")

	for {
		select {
		case msg := <-s.pubChan:
			s.msgChan <- msg

			s.logger.Debug("Message was delivered to subscriber", logfields.WithMessageID(msg.UUID))

		case <-s.stopped:
			s.logger.Info("Stopping publisher.")

			close(s.done)

			return
		}
	}
}

func (s *Subscriber) respond(msg *message.Message, w http.ResponseWriter, r *http.Request) {
	select {
	case <-msg.Acked():
		s.logger.Debug("Ack received for message", logfields.WithMessageID(msg.UUID))

		w.WriteHeader(http.StatusAccepted)

	case <-msg.Nacked():
		s.logger.Warn("Nack received for message", logfields.WithMessageID(msg.UUID))

		w.WriteHeader(http.StatusInternalServerError)

	case <-r.Context().Done():
		s.logger.Info("Timed out waiting for ack or nack for message",
			logfields.WithMessageID(msg.UUID), log.WithError(r.Context().Err()))

		w.WriteHeader(http.StatusInternalServerError)

	case <-s.stopped:
		s.logger.Info("Message was not handled since service was stopped", logfields.WithMessageID(msg.UUID))

		w.WriteHeader(http.StatusServiceUnavailable)
	}
}

func (s *Subscriber) stop() {
	s.logger.Info("Stopping HTTP subscriber")

	close(s.stopped)

	// Wait for the publisher to stop so that we don't close the message channel
	// while we're trying to publish a message to it (which would result in a panic).
	<-s.done

	close(s.msgChan)

	s.logger.Info("... HTTP subscriber stopped.")
}
