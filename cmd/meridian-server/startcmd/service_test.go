/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmhttp "github.com/ThreeDotsLabs/watermill-http/pkg/http"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridianfed/meridian/pkg/client/transport"
	merrors "github.com/meridianfed/meridian/pkg/errors"
	"github.com/meridianfed/meridian/pkg/federation"
	"github.com/meridianfed/meridian/pkg/store/memstore"
	"github.com/meridianfed/meridian/pkg/store/spi"
	"github.com/meridianfed/meridian/pkg/vocab"
)

const testServiceOrigin = "https://meridian.example"

func TestLocalService_Actor(t *testing.T) {
	fixture := newServiceFixture(t, nil)

	t.Run("success", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.True(t, fixture.fed.Handle(rw, newServiceGetRequest("/services/meridian")))
		require.Equal(t, http.StatusOK, rw.Code)

		actor := &vocab.ActorType{}
		require.NoError(t, json.Unmarshal(rw.Body.Bytes(), actor))

		require.Equal(t, testServiceOrigin+"/services/meridian", actor.ID().String())
		require.True(t, actor.Type().Is(vocab.TypeService))
		require.Equal(t, "meridian", actor.GetPreferredUsername())
		require.Equal(t, testServiceOrigin+"/services/meridian/inbox", actor.GetInbox().String())
		require.Equal(t, testServiceOrigin+"/services/meridian/outbox", actor.GetOutbox().String())
		require.Equal(t, testServiceOrigin+"/services/meridian/followers", actor.GetFollowers().String())
		require.Equal(t, testServiceOrigin+"/services/meridian/following", actor.GetFollowing().String())
		require.Equal(t, testServiceOrigin+"/inbox", actor.SharedInbox().String())

		publicKey := actor.GetPublicKey()
		require.NotNil(t, publicKey)
		require.Equal(t, testServiceOrigin+"/services/meridian/keys/main-key", publicKey.ID)
		require.Equal(t, testServiceOrigin+"/services/meridian", publicKey.Owner)
		require.NotEmpty(t, publicKey.PublicKeyPem)
	})

	t.Run("unknown handle -> delegated", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.False(t, fixture.fed.Handle(rw, newServiceGetRequest("/services/other")))
	})

	t.Run("dispatcher with unknown handle", func(t *testing.T) {
		_, err := fixture.svc.actor(nil, "other")
		require.ErrorIs(t, err, merrors.ErrContentNotFound)
	})
}

func TestLocalService_Collections(t *testing.T) {
	fixture := newServiceFixture(t, nil)

	t.Run("empty collection", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.True(t, fixture.fed.Handle(rw, newServiceGetRequest("/services/meridian/followers")))
		require.Equal(t, http.StatusOK, rw.Code)

		coll := &vocab.OrderedCollectionType{}
		require.NoError(t, json.Unmarshal(rw.Body.Bytes(), coll))
		require.Equal(t, 0, coll.TotalItems())
	})

	const numFollowers = defaultPageSize + 10

	for i := 0; i < numFollowers; i++ {
		added, err := fixture.svc.addToCollection(followersCollection,
			fmt.Sprintf("https://example%d.com/services/follower", i))
		require.NoError(t, err)
		require.True(t, added)
	}

	t.Run("index", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.True(t, fixture.fed.Handle(rw, newServiceGetRequest("/services/meridian/followers")))
		require.Equal(t, http.StatusOK, rw.Code)

		coll := &vocab.OrderedCollectionType{}
		require.NoError(t, json.Unmarshal(rw.Body.Bytes(), coll))
		require.Equal(t, numFollowers, coll.TotalItems())
	})

	t.Run("first page", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.True(t, fixture.fed.Handle(rw, newServiceGetRequest("/services/meridian/followers?page=true")))
		require.Equal(t, http.StatusOK, rw.Code)

		page := &vocab.OrderedCollectionPageType{}
		require.NoError(t, json.Unmarshal(rw.Body.Bytes(), page))

		require.Len(t, page.Items(), defaultPageSize)
		require.Equal(t, "https://example0.com/services/follower", page.Items()[0].IRI().String())
		require.Equal(t,
			testServiceOrigin+fmt.Sprintf("/services/meridian/followers?cursor=%d&page=true", defaultPageSize),
			page.Next().IRI().String())
		require.Nil(t, page.Prev())
	})

	t.Run("last page", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.True(t, fixture.fed.Handle(rw, newServiceGetRequest(
			fmt.Sprintf("/services/meridian/followers?cursor=%d&page=true", defaultPageSize))))
		require.Equal(t, http.StatusOK, rw.Code)

		page := &vocab.OrderedCollectionPageType{}
		require.NoError(t, json.Unmarshal(rw.Body.Bytes(), page))

		require.Len(t, page.Items(), numFollowers-defaultPageSize)
		require.Nil(t, page.Next())
		require.Equal(t, testServiceOrigin+"/services/meridian/followers?cursor=0&page=true",
			page.Prev().IRI().String())
	})

	t.Run("unknown handle -> delegated", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.False(t, fixture.fed.Handle(rw, newServiceGetRequest("/services/other/followers")))
	})
}

func TestLocalService_Page(t *testing.T) {
	svc := newTestLocalService()

	for i := 0; i < 3; i++ {
		_, err := svc.addToCollection(followersCollection,
			fmt.Sprintf("https://example%d.com/services/follower", i))
		require.NoError(t, err)
	}

	t.Run("invalid cursor", func(t *testing.T) {
		_, err := svc.page(followersCollection, "abc")
		require.Error(t, err)
		require.True(t, merrors.IsKind(err, merrors.KindParse))
		require.Contains(t, err.Error(), "invalid cursor")
	})

	t.Run("negative cursor", func(t *testing.T) {
		_, err := svc.page(followersCollection, "-1")
		require.Error(t, err)
		require.True(t, merrors.IsKind(err, merrors.KindParse))
	})

	t.Run("cursor beyond the collection", func(t *testing.T) {
		page, err := svc.page(followersCollection, "100")
		require.NoError(t, err)
		require.Empty(t, page.Items)
		require.Empty(t, page.NextCursor)
		require.Equal(t, "0", page.PrevCursor)
	})

	t.Run("corrupt collection", func(t *testing.T) {
		require.NoError(t, svc.kv.Set(collectionStoreKey("corrupt"), []byte("not json")))

		_, err := svc.page("corrupt", "")
		require.Error(t, err)
		require.Contains(t, err.Error(), "unmarshal collection")
	})
}

func TestLocalService_AddRemove(t *testing.T) {
	svc := newTestLocalService()

	const follower = "https://example2.com/services/follower"

	t.Run("add", func(t *testing.T) {
		added, err := svc.addToCollection(followersCollection, follower)
		require.NoError(t, err)
		require.True(t, added)

		items, err := svc.collectionItems(followersCollection)
		require.NoError(t, err)
		require.Equal(t, []string{follower}, items)
	})

	t.Run("add duplicate", func(t *testing.T) {
		added, err := svc.addToCollection(followersCollection, follower)
		require.NoError(t, err)
		require.False(t, added)

		items, err := svc.collectionItems(followersCollection)
		require.NoError(t, err)
		require.Len(t, items, 1)
	})

	t.Run("remove", func(t *testing.T) {
		removed, err := svc.removeFromCollection(followersCollection, follower)
		require.NoError(t, err)
		require.True(t, removed)

		items, err := svc.collectionItems(followersCollection)
		require.NoError(t, err)
		require.Empty(t, items)
	})

	t.Run("remove missing item", func(t *testing.T) {
		removed, err := svc.removeFromCollection(followersCollection, follower)
		require.NoError(t, err)
		require.False(t, removed)
	})

	t.Run("remove from missing collection", func(t *testing.T) {
		removed, err := svc.removeFromCollection("unknown", follower)
		require.NoError(t, err)
		require.False(t, removed)
	})
}

func TestLocalService_HandleFollow(t *testing.T) {
	peer := newTestPeer(t)
	fixture := newServiceFixture(t, nil)

	serviceIRI := mustParseURL(testServiceOrigin, "/services/meridian")

	t.Run("follow and accept", func(t *testing.T) {
		follow := newFollowActivity(peer, serviceIRI)

		rw := httptest.NewRecorder()

		require.True(t, fixture.fed.Handle(rw, newInboxPostRequest(t, "/inbox", follow)))
		require.Equal(t, http.StatusAccepted, rw.Code)

		accept := peer.expectActivity(t)
		require.True(t, accept.Type().Is(vocab.TypeAccept))
		require.Equal(t, testServiceOrigin, accept.Actor().String())
		require.Equal(t, follow.ID().String(), accept.Object().Activity().ID().String())

		items, err := fixture.svc.collectionItems(followersCollection)
		require.NoError(t, err)
		require.Equal(t, []string{peer.actorIRI().String()}, items)
	})

	t.Run("repeated follow is accepted again", func(t *testing.T) {
		follow := newFollowActivity(peer, serviceIRI)

		rw := httptest.NewRecorder()

		require.True(t, fixture.fed.Handle(rw, newInboxPostRequest(t, "/inbox", follow)))
		require.Equal(t, http.StatusAccepted, rw.Code)

		accept := peer.expectActivity(t)
		require.True(t, accept.Type().Is(vocab.TypeAccept))

		items, err := fixture.svc.collectionItems(followersCollection)
		require.NoError(t, err)
		require.Len(t, items, 1, "the follower should not have been added twice")
	})

	t.Run("no actor", func(t *testing.T) {
		follow := vocab.NewFollowActivity(
			vocab.NewObjectProperty(vocab.WithIRI(serviceIRI)),
			vocab.WithID(newActivityID(peer.Server.URL)),
		)

		err := fixture.svc.handleFollow(context.Background(), follow)
		require.Error(t, err)
		require.Contains(t, err.Error(), "no actor specified")
	})

	t.Run("no object", func(t *testing.T) {
		follow := vocab.NewFollowActivity(nil,
			vocab.WithID(newActivityID(peer.Server.URL)),
			vocab.WithActor(peer.actorIRI()),
		)

		err := fixture.svc.handleFollow(context.Background(), follow)
		require.Error(t, err)
		require.Contains(t, err.Error(), "no object IRI specified")
	})

	t.Run("wrong target", func(t *testing.T) {
		follow := vocab.NewFollowActivity(
			vocab.NewObjectProperty(vocab.WithIRI(mustParseURL(testServiceOrigin, "/services/other"))),
			vocab.WithID(newActivityID(peer.Server.URL)),
			vocab.WithActor(peer.actorIRI()),
		)

		err := fixture.svc.handleFollow(context.Background(), follow)
		require.Error(t, err)
		require.Contains(t, err.Error(), "does not target the local service")

		peer.ensureNoActivity(t, "no accept should have been sent for a misdirected follow")
	})
}

func TestLocalService_HandleUndo(t *testing.T) {
	peer := newTestPeer(t)
	fixture := newServiceFixture(t, nil)

	serviceIRI := mustParseURL(testServiceOrigin, "/services/meridian")

	seedFollower := func(t *testing.T) {
		t.Helper()

		_, err := fixture.svc.addToCollection(followersCollection, peer.actorIRI().String())
		require.NoError(t, err)
	}

	t.Run("undo follow", func(t *testing.T) {
		seedFollower(t)

		follow := newFollowActivity(peer, serviceIRI)

		undo := vocab.NewUndoActivity(
			vocab.NewObjectProperty(vocab.WithActivity(follow)),
			vocab.WithID(newActivityID(peer.Server.URL)),
			vocab.WithActor(peer.actorIRI()),
		)

		require.NoError(t, fixture.svc.handleUndo(context.Background(), undo))

		items, err := fixture.svc.collectionItems(followersCollection)
		require.NoError(t, err)
		require.Empty(t, items)
	})

	t.Run("undo follow of another actor", func(t *testing.T) {
		seedFollower(t)

		follow := newFollowActivity(peer, serviceIRI)

		undo := vocab.NewUndoActivity(
			vocab.NewObjectProperty(vocab.WithActivity(follow)),
			vocab.WithID(newActivityID(peer.Server.URL)),
			vocab.WithActor(mustParseURL(peer.Server.URL, "/services/impostor")),
		)

		err := fixture.svc.handleUndo(context.Background(), undo)
		require.Error(t, err)
		require.Contains(t, err.Error(), "does not match the actor of the undone follow")

		items, err := fixture.svc.collectionItems(followersCollection)
		require.NoError(t, err)
		require.Len(t, items, 1, "the follower should not have been removed")

		_, err = fixture.svc.removeFromCollection(followersCollection, peer.actorIRI().String())
		require.NoError(t, err)
	})

	t.Run("undo of an unsupported object is ignored", func(t *testing.T) {
		undo := vocab.NewUndoActivity(
			vocab.NewObjectProperty(vocab.WithIRI(newActivityID(peer.Server.URL))),
			vocab.WithID(newActivityID(peer.Server.URL)),
			vocab.WithActor(peer.actorIRI()),
		)

		require.NoError(t, fixture.svc.handleUndo(context.Background(), undo))
	})

	t.Run("no actor", func(t *testing.T) {
		undo := vocab.NewUndoActivity(
			vocab.NewObjectProperty(vocab.WithActivity(newFollowActivity(peer, serviceIRI))),
			vocab.WithID(newActivityID(peer.Server.URL)),
		)

		err := fixture.svc.handleUndo(context.Background(), undo)
		require.Error(t, err)
		require.Contains(t, err.Error(), "no actor specified")
	})
}

func TestLocalService_HandleAccept(t *testing.T) {
	peer := newTestPeer(t)
	fixture := newServiceFixture(t, nil)

	serviceIRI := mustParseURL(testServiceOrigin, "/services/meridian")

	t.Run("accept of our follow", func(t *testing.T) {
		follow := vocab.NewFollowActivity(
			vocab.NewObjectProperty(vocab.WithIRI(peer.actorIRI())),
			vocab.WithID(mustParseURL(testServiceOrigin, "/activities/"+uuid.New().String())),
			vocab.WithActor(serviceIRI),
		)

		accept := vocab.NewAcceptActivity(
			vocab.NewObjectProperty(vocab.WithActivity(follow)),
			vocab.WithID(newActivityID(peer.Server.URL)),
			vocab.WithActor(peer.actorIRI()),
		)

		require.NoError(t, fixture.svc.handleAccept(context.Background(), accept))

		items, err := fixture.svc.collectionItems(followingCollection)
		require.NoError(t, err)
		require.Equal(t, []string{peer.actorIRI().String()}, items)
	})

	t.Run("accept of someone else's follow", func(t *testing.T) {
		follow := vocab.NewFollowActivity(
			vocab.NewObjectProperty(vocab.WithIRI(peer.actorIRI())),
			vocab.WithID(newActivityID(peer.Server.URL)),
			vocab.WithActor(mustParseURL(peer.Server.URL, "/services/impostor")),
		)

		accept := vocab.NewAcceptActivity(
			vocab.NewObjectProperty(vocab.WithActivity(follow)),
			vocab.WithID(newActivityID(peer.Server.URL)),
			vocab.WithActor(peer.actorIRI()),
		)

		err := fixture.svc.handleAccept(context.Background(), accept)
		require.Error(t, err)
		require.Contains(t, err.Error(), "not for a follow sent by the local service")
	})

	t.Run("accept of an unsupported object is ignored", func(t *testing.T) {
		accept := vocab.NewAcceptActivity(
			vocab.NewObjectProperty(vocab.WithIRI(newActivityID(peer.Server.URL))),
			vocab.WithID(newActivityID(peer.Server.URL)),
			vocab.WithActor(peer.actorIRI()),
		)

		require.NoError(t, fixture.svc.handleAccept(context.Background(), accept))
	})

	t.Run("no actor", func(t *testing.T) {
		accept := vocab.NewAcceptActivity(
			vocab.NewObjectProperty(vocab.WithIRI(newActivityID(peer.Server.URL))),
			vocab.WithID(newActivityID(peer.Server.URL)),
		)

		err := fixture.svc.handleAccept(context.Background(), accept)
		require.Error(t, err)
		require.Contains(t, err.Error(), "no actor specified")
	})
}

func TestLocalService_FollowActor(t *testing.T) {
	peer := newTestPeer(t)
	fixture := newServiceFixture(t, nil)

	t.Run("success", func(t *testing.T) {
		id, err := fixture.svc.followActor(context.Background(), peer.actorIRI().String())
		require.NoError(t, err)
		require.NotNil(t, id)

		follow := peer.expectActivity(t)
		require.True(t, follow.Type().Is(vocab.TypeFollow))
		require.Equal(t, id.String(), follow.ID().String())
		require.Equal(t, peer.actorIRI().String(), follow.Object().IRI().String())

		items, err := fixture.svc.collectionItems(outboxCollection)
		require.NoError(t, err)
		require.Contains(t, items, id.String())

		stats, err := fixture.svc.GetStats()
		require.NoError(t, err)
		require.Equal(t, 1, stats.TotalUsers)
		require.Equal(t, len(items), stats.LocalPosts)
	})

	t.Run("unresolvable target", func(t *testing.T) {
		_, err := fixture.svc.followActor(context.Background(), peer.Server.URL+"/services/unknown")
		require.Error(t, err)
		require.Contains(t, err.Error(), "look up actor")
	})
}

func TestFollowHandler(t *testing.T) {
	peer := newTestPeer(t)
	fixture := newServiceFixture(t, nil)

	handler := newFollowHandler(fixture.svc)

	require.Equal(t, "/follow", handler.Path())
	require.Equal(t, http.MethodPost, handler.Method())
	require.NotNil(t, handler.Handler())

	t.Run("success", func(t *testing.T) {
		body, err := json.Marshal(&followRequest{Actor: peer.actorIRI().String()})
		require.NoError(t, err)

		rw := httptest.NewRecorder()

		handler.handle(rw, httptest.NewRequest(http.MethodPost, testServiceOrigin+"/follow",
			bytes.NewReader(body)))

		require.Equal(t, http.StatusOK, rw.Code)

		follow := peer.expectActivity(t)
		require.True(t, follow.Type().Is(vocab.TypeFollow))
	})

	t.Run("invalid request body", func(t *testing.T) {
		rw := httptest.NewRecorder()

		handler.handle(rw, httptest.NewRequest(http.MethodPost, testServiceOrigin+"/follow",
			bytes.NewReader([]byte("{"))))

		require.Equal(t, http.StatusBadRequest, rw.Code)
	})

	t.Run("no actor", func(t *testing.T) {
		rw := httptest.NewRecorder()

		handler.handle(rw, httptest.NewRequest(http.MethodPost, testServiceOrigin+"/follow",
			bytes.NewReader([]byte("{}"))))

		require.Equal(t, http.StatusBadRequest, rw.Code)
	})

	t.Run("unresolvable actor", func(t *testing.T) {
		body, err := json.Marshal(&followRequest{Actor: peer.Server.URL + "/services/unknown"})
		require.NoError(t, err)

		rw := httptest.NewRecorder()

		handler.handle(rw, httptest.NewRequest(http.MethodPost, testServiceOrigin+"/follow",
			bytes.NewReader(body)))

		require.Equal(t, http.StatusInternalServerError, rw.Code)
	})

	t.Run("read error", func(t *testing.T) {
		rw := httptest.NewRecorder()

		handler.handle(rw, httptest.NewRequest(http.MethodPost, testServiceOrigin+"/follow", errReader{}))

		require.Equal(t, http.StatusInternalServerError, rw.Code)
	})
}

func TestPublicKeyHandler(t *testing.T) {
	publicKey := vocab.NewPublicKey(
		mustParseURL(testServiceOrigin, "/services/meridian/keys/main-key"),
		mustParseURL(testServiceOrigin, "/services/meridian"),
		"-----BEGIN PUBLIC KEY-----\n-----END PUBLIC KEY-----\n",
	)

	handler := newPublicKeyHandler("/services/meridian/keys/main-key", publicKey)

	require.Equal(t, "/services/meridian/keys/main-key", handler.Path())
	require.Equal(t, http.MethodGet, handler.Method())
	require.NotNil(t, handler.Handler())

	rw := httptest.NewRecorder()

	handler.handle(rw, httptest.NewRequest(http.MethodGet, testServiceOrigin+handler.Path(), http.NoBody))

	require.Equal(t, http.StatusOK, rw.Code)
	require.Equal(t, transport.ActivityJSONContentType, rw.Header().Get(transport.ContentTypeHeader))

	doc := &publicKeyDoc{PublicKeyType: &vocab.PublicKeyType{}}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), doc))

	require.Equal(t, vocab.ContextSecurity, doc.Context)
	require.Equal(t, publicKey.ID, doc.ID)
	require.Equal(t, publicKey.Owner, doc.Owner)
	require.Equal(t, publicKey.PublicKeyPem, doc.PublicKeyPem)
}

func TestLocalService_GetStats(t *testing.T) {
	svc := newTestLocalService()

	stats, err := svc.GetStats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalUsers)
	require.Equal(t, 0, stats.LocalPosts)

	_, err = svc.addToCollection(outboxCollection, testServiceOrigin+"/activities/"+uuid.New().String())
	require.NoError(t, err)

	stats, err = svc.GetStats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.LocalPosts)
}

type serviceFixture struct {
	svc *localService
	fed *federation.Federation
}

// newServiceFixture builds and starts a federation with the same routes and
// listeners that the server wires up, backed by an in-memory store and queue.
func newServiceFixture(t *testing.T, httpClient *http.Client) *serviceFixture {
	t.Helper()

	kv := memstore.New()

	publicKey := vocab.NewPublicKey(
		mustParseURL(testServiceOrigin, "/services/meridian/keys/main-key"),
		mustParseURL(testServiceOrigin, "/services/meridian"),
		"-----BEGIN PUBLIC KEY-----\n-----END PUBLIC KEY-----\n",
	)

	svc := newLocalService("meridian", publicKey, kv)

	fed, err := federation.NewBuilder(federation.Config{
		ServiceName:           "meridian",
		Origin:                mustParseURL(testServiceOrigin, ""),
		SkipVerification:      true,
		AllowPrivateAddresses: true,
		PreferSharedInbox:     true,
	}).
		WithActor(actorTemplate, svc.actor).
		WithInbox(inboxTemplate).
		WithSharedInbox(sharedInboxPath).
		WithOutbox(outboxTemplate, svc.collection(outboxCollection)).
		WithCollection(federation.RouteFollowers, followersTemplate, svc.collection(followersCollection)).
		WithCollection(federation.RouteFollowing, followingTemplate, svc.collection(followingCollection)).
		OnActivity(vocab.TypeFollow, svc.handleFollow).
		OnActivity(vocab.TypeUndo, svc.handleUndo).
		OnActivity(vocab.TypeAccept, svc.handleAccept).
		Build(federation.BuildParams{KV: kv, HTTPClient: httpClient})
	require.NoError(t, err)

	svc.setFederation(fed)

	fed.Start()

	t.Cleanup(fed.Stop)

	return &serviceFixture{svc: svc, fed: fed}
}

func newTestLocalService() *localService {
	publicKey := vocab.NewPublicKey(
		mustParseURL(testServiceOrigin, "/services/meridian/keys/main-key"),
		mustParseURL(testServiceOrigin, "/services/meridian"),
		"-----BEGIN PUBLIC KEY-----\n-----END PUBLIC KEY-----\n",
	)

	return newLocalService("meridian", publicKey, memstore.New())
}

func newServiceGetRequest(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, testServiceOrigin+path, nil)
	req.Header.Set(transport.AcceptHeader, transport.ActivityJSONContentType)

	return req
}

func newInboxPostRequest(t *testing.T, path string, activity *vocab.ActivityType) *http.Request {
	t.Helper()

	activityBytes, err := json.Marshal(activity)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, testServiceOrigin+path, bytes.NewReader(activityBytes))
	req.Header.Set(wmhttp.HeaderUUID, watermill.NewUUID())

	return req
}

func newFollowActivity(peer *testPeer, target *url.URL) *vocab.ActivityType {
	return vocab.NewFollowActivity(
		vocab.NewObjectProperty(vocab.WithIRI(target)),
		vocab.WithID(newActivityID(peer.Server.URL)),
		vocab.WithActor(peer.actorIRI()),
		vocab.WithTo(target),
	)
}

func newActivityID(origin string) *url.URL {
	return mustParseURL(origin, "/activities/"+uuid.New().String())
}

// testPeer is an HTTP server that acts as a remote service: it serves the
// actor document of a single actor and records every activity that is posted
// to the actor's inbox.
type testPeer struct {
	*httptest.Server

	t            *testing.T
	activityChan chan *vocab.ActivityType
}

func newTestPeer(t *testing.T) *testPeer {
	t.Helper()

	p := &testPeer{
		t:            t,
		activityChan: make(chan *vocab.ActivityType, 10),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/services/peer", p.serveActor)
	mux.HandleFunc("/services/peer/inbox", p.serveInbox)

	p.Server = httptest.NewServer(mux)

	t.Cleanup(p.Server.Close)

	return p
}

func (p *testPeer) actorIRI() *url.URL {
	return mustParseURL(p.Server.URL, "/services/peer")
}

func (p *testPeer) serveActor(w http.ResponseWriter, _ *http.Request) {
	actor := vocab.NewService(p.actorIRI(),
		vocab.WithInbox(mustParseURL(p.Server.URL, "/services/peer/inbox")),
	)

	actorBytes, err := json.Marshal(actor)
	require.NoError(p.t, err)

	w.Header().Set(transport.ContentTypeHeader, transport.ActivityJSONContentType)

	_, err = w.Write(actorBytes)
	require.NoError(p.t, err)
}

func (p *testPeer) serveInbox(w http.ResponseWriter, req *http.Request) {
	payload, err := io.ReadAll(req.Body)
	require.NoError(p.t, err)

	activity := &vocab.ActivityType{}
	require.NoError(p.t, json.Unmarshal(payload, activity))

	p.activityChan <- activity

	w.WriteHeader(http.StatusOK)
}

func (p *testPeer) expectActivity(t *testing.T) *vocab.ActivityType {
	t.Helper()

	select {
	case activity := <-p.activityChan:
		return activity
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an activity to be delivered to the peer")

		return nil
	}
}

// ensureNoActivity fails the test if an activity arrives within a short interval.
func (p *testPeer) ensureNoActivity(t *testing.T, msgAndArgs ...interface{}) {
	t.Helper()

	select {
	case activity := <-p.activityChan:
		require.Fail(t, "unexpected activity "+activity.ID().String(), msgAndArgs...)
	case <-time.After(100 * time.Millisecond):
	}
}

type errReader struct{}

func (r errReader) Read(_ []byte) (int, error) {
	return 0, errors.New("injected read error")
}
