/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	wmhttp "github.com/ThreeDotsLabs/watermill-http/pkg/http"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	merrors "github.com/meridianfed/meridian/pkg/errors"
	"github.com/meridianfed/meridian/pkg/internal/testutil"
	"github.com/meridianfed/meridian/pkg/lifecycle"
	"github.com/meridianfed/meridian/pkg/nodeinfo"
	"github.com/meridianfed/meridian/pkg/pubsub/mempubsub"
	"github.com/meridianfed/meridian/pkg/service/mocks"
	"github.com/meridianfed/meridian/pkg/store/memstore"
	"github.com/meridianfed/meridian/pkg/vocab"
)

var (
	testOrigin     = testutil.MustParseURL("https://example1.com")
	remoteActorIRI = testutil.MustParseURL("https://example2.com/services/service2")
)

func TestBuilder_Build(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f, err := newTestBuilder().
			WithNodeInfo(nodeinfo.Software{Name: "meridian-test", Version: "0.1.0"}, nil).
			Build(BuildParams{KV: memstore.New()})
		require.NoError(t, err)
		require.NotNil(t, f)

		require.Equal(t, testOrigin, f.Origin())
		require.NotNil(t, f.Store())
		require.NotNil(t, f.Queue())
		require.NotNil(t, f.Client())
		require.NotNil(t, f.Transport())
		require.NotNil(t, f.DocumentLoader())
	})

	t.Run("no key-value store", func(t *testing.T) {
		_, err := newTestBuilder().Build(BuildParams{})
		require.Error(t, err)
		require.Contains(t, err.Error(), "key-value store is required")
	})

	t.Run("no origin", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.Origin = nil

		_, err := NewBuilder(cfg).Build(BuildParams{KV: memstore.New()})
		require.Error(t, err)
		require.Contains(t, err.Error(), "origin is required")
	})

	t.Run("missing signing key", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.SkipVerification = false

		_, err := NewBuilder(cfg).Build(BuildParams{KV: memstore.New()})
		require.Error(t, err)
		require.Contains(t, err.Error(), "private key")
	})

	t.Run("nil actor dispatcher", func(t *testing.T) {
		_, err := NewBuilder(newTestConfig()).
			WithActor("/users/{handle}", nil).
			Build(BuildParams{KV: memstore.New()})
		require.Error(t, err)
		require.Contains(t, err.Error(), "requires a dispatcher")
	})

	t.Run("nil object dispatcher", func(t *testing.T) {
		_, err := NewBuilder(newTestConfig()).
			WithObject(vocab.TypeNote, "/notes/{id}", nil).
			Build(BuildParams{KV: memstore.New()})
		require.Error(t, err)
		require.Contains(t, err.Error(), "requires a dispatcher")
	})

	t.Run("collection without GetItems", func(t *testing.T) {
		_, err := NewBuilder(newTestConfig()).
			WithCollection(RouteFollowers, "/users/{handle}/followers", CollectionDispatcher{}).
			Build(BuildParams{KV: memstore.New()})
		require.Error(t, err)
		require.Contains(t, err.Error(), "requires GetItems")
	})

	t.Run("actor template without handle", func(t *testing.T) {
		_, err := NewBuilder(newTestConfig()).
			WithActor("/users/{name}", testActorDispatcher("alice")).
			Build(BuildParams{KV: memstore.New()})
		require.Error(t, err)
		require.Contains(t, err.Error(), "must capture")
	})

	t.Run("shared inbox template with variables", func(t *testing.T) {
		_, err := NewBuilder(newTestConfig()).
			WithSharedInbox("/inbox/{handle}").
			Build(BuildParams{KV: memstore.New()})
		require.Error(t, err)
		require.Contains(t, err.Error(), "must not capture")
	})

	t.Run("invalid template", func(t *testing.T) {
		_, err := NewBuilder(newTestConfig()).
			WithActor("/users/{", testActorDispatcher("alice")).
			Build(BuildParams{KV: memstore.New()})
		require.Error(t, err)
		require.Contains(t, err.Error(), "parse template")
	})

	t.Run("ambiguous templates", func(t *testing.T) {
		_, err := NewBuilder(newTestConfig()).
			WithActor("/users/{handle}", testActorDispatcher("alice")).
			WithObject(vocab.TypeNote, "/users/{id}", testNoteDispatcher()).
			Build(BuildParams{KV: memstore.New()})
		require.Error(t, err)
		require.Contains(t, err.Error(), "ambiguous")
	})

	t.Run("duplicate route", func(t *testing.T) {
		_, err := NewBuilder(newTestConfig()).
			WithInbox("/users/{handle}/inbox").
			WithInbox("/actors/{handle}/inbox").
			Build(BuildParams{KV: memstore.New()})
		require.Error(t, err)
		require.Contains(t, err.Error(), "already registered")
	})

	t.Run("pubsub subscribe error", func(t *testing.T) {
		errExpected := errors.New("injected pub sub error")

		_, err := newTestBuilder().Build(BuildParams{
			KV:    memstore.New(),
			Queue: mocks.NewPubSub().WithError(errExpected),
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), errExpected.Error())
	})
}

func TestFederation_StartStop(t *testing.T) {
	f, err := newTestBuilder().Build(BuildParams{KV: memstore.New()})
	require.NoError(t, err)

	require.Equal(t, lifecycle.StateNotStarted, f.State())

	f.Start()

	require.Equal(t, lifecycle.StateStarted, f.State())

	f.Stop()

	require.Equal(t, lifecycle.StateStopped, f.State())
}

func TestFederation_ProvidedQueue(t *testing.T) {
	pubSub := mempubsub.New(mempubsub.DefaultConfig())
	defer func() {
		require.NoError(t, pubSub.Close())
	}()

	f, err := newTestBuilder().Build(BuildParams{
		KV:    memstore.New(),
		Queue: pubSub,
	})
	require.NoError(t, err)
	require.Same(t, pubSub, f.Queue())

	f.Start()

	// Stopping the federation must not close a queue it does not own.
	f.Stop()
}

func TestFederation_ActorResolution(t *testing.T) {
	f, err := newTestBuilder().Build(BuildParams{KV: memstore.New()})
	require.NoError(t, err)

	t.Run("by username", func(t *testing.T) {
		actor, err := f.ActorByUsername("alice")
		require.NoError(t, err)
		require.Equal(t, "https://example1.com/users/alice", actor.ID().String())
	})

	t.Run("by username - not found", func(t *testing.T) {
		_, err := f.ActorByUsername("eve")
		require.ErrorIs(t, err, merrors.ErrContentNotFound)
	})

	t.Run("by IRI", func(t *testing.T) {
		actor, err := f.ActorByIRI(testutil.MustParseURL("https://example1.com/users/bob"))
		require.NoError(t, err)
		require.Equal(t, "https://example1.com/users/bob", actor.ID().String())
	})

	t.Run("by IRI - not an actor route", func(t *testing.T) {
		_, err := f.ActorByIRI(testutil.MustParseURL("https://example1.com/inbox"))
		require.ErrorIs(t, err, merrors.ErrContentNotFound)
	})

	t.Run("by IRI - unmatched path", func(t *testing.T) {
		_, err := f.ActorByIRI(testutil.MustParseURL("https://example1.com/widgets/1"))
		require.ErrorIs(t, err, merrors.ErrContentNotFound)
	})
}

func TestFederation_ActorByUsernameWithoutActorRoute(t *testing.T) {
	f, err := NewBuilder(newTestConfig()).
		WithSharedInbox("/inbox").
		Build(BuildParams{KV: memstore.New()})
	require.NoError(t, err)

	_, err = f.ActorByUsername("alice")
	require.ErrorIs(t, err, merrors.ErrContentNotFound)
}

func newTestConfig() Config {
	return Config{
		ServiceName:           "federation1",
		Origin:                testOrigin,
		SkipVerification:      true,
		AllowPrivateAddresses: true,
	}
}

// newTestBuilder returns a builder with the standard routes of a small
// service: the actors alice and bob, their inboxes, a shared inbox and an
// empty followers collection.
func newTestBuilder() *Builder {
	return NewBuilder(newTestConfig()).
		WithActor("/users/{handle}", testActorDispatcher("alice", "bob")).
		WithInbox("/users/{handle}/inbox").
		WithSharedInbox("/inbox").
		WithCollection(RouteFollowers, "/users/{handle}/followers", CollectionDispatcher{
			GetItems: func(_ *RequestContext, _, _ string) (*CollectionPage, error) {
				return &CollectionPage{}, nil
			},
		})
}

func testActorDispatcher(handles ...string) ActorDispatcher {
	return func(_ *RequestContext, handle string) (*vocab.ActorType, error) {
		for _, h := range handles {
			if h == handle {
				return newTestActor(handle), nil
			}
		}

		return nil, merrors.ErrContentNotFound
	}
}

func testNoteDispatcher() ObjectDispatcher {
	return func(_ *RequestContext, vars map[string]string) (*vocab.ObjectType, error) {
		if vars["id"] != "note1" {
			return nil, merrors.ErrContentNotFound
		}

		return vocab.NewObject(
			vocab.WithType(vocab.TypeNote),
			vocab.WithID(testutil.NewMockID(testOrigin, "/notes/note1")),
			vocab.WithContent(vocab.NewLangString("Hello!")),
		), nil
	}
}

func newTestActor(handle string) *vocab.ActorType {
	return vocab.NewPerson(testutil.NewMockID(testOrigin, "/users/"+handle),
		vocab.WithPreferredUsername(handle),
		vocab.WithInbox(testutil.NewMockID(testOrigin, "/users/"+handle+"/inbox")),
		vocab.WithOutbox(testutil.NewMockID(testOrigin, "/users/"+handle+"/outbox")),
	)
}

func newCreateActivity() *vocab.ActivityType {
	return vocab.NewCreateActivity(
		vocab.NewObjectProperty(vocab.WithIRI(testutil.MustParseURL("https://example2.com/notes/note1"))),
		vocab.WithID(testutil.NewMockID(remoteActorIRI, "/activities/"+uuid.New().String())),
		vocab.WithActor(remoteActorIRI),
	)
}

func newPostRequest(t *testing.T, path string, activity *vocab.ActivityType) *http.Request {
	t.Helper()

	activityBytes, err := json.Marshal(activity)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, testOrigin.String()+path, bytes.NewReader(activityBytes))
	req.Header.Set(wmhttp.HeaderUUID, watermill.NewUUID())

	return req
}
