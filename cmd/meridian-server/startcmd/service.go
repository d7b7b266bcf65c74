/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/client/transport"
	merrors "github.com/meridianfed/meridian/pkg/errors"
	"github.com/meridianfed/meridian/pkg/federation"
	"github.com/meridianfed/meridian/pkg/nodeinfo"
	"github.com/meridianfed/meridian/pkg/restapi/common"
	"github.com/meridianfed/meridian/pkg/store/spi"
	"github.com/meridianfed/meridian/pkg/vocab"
)

const (
	followersCollection = "followers"
	followingCollection = "following"
	outboxCollection    = "outbox"

	defaultPageSize = 50
)

// appStorePrefix namespaces the service's own data away from the keys used by
// the federation framework.
var appStorePrefix = spi.Key{"_meridian-app"}

func collectionStoreKey(name string) spi.Key {
	return appStorePrefix.Append("collection", name)
}

// localService owns the data of this server's service actor: its public key,
// who follows it, whom it follows and what it has sent. The framework persists
// none of this, so the dispatchers and activity listeners registered on the
// builder read and write the collections through this type.
type localService struct {
	handle     string
	publicKey  *vocab.PublicKeyType
	kv         spi.Store
	federation *federation.Federation
	logger     *log.Log
}

func newLocalService(handle string, publicKey *vocab.PublicKeyType, kv spi.Store) *localService {
	return &localService{
		handle:    handle,
		publicKey: publicKey,
		kv:        kv,
		logger:    log.New("local-service"),
	}
}

// setFederation supplies the built federation. It must be called before any
// request or activity is dispatched.
func (s *localService) setFederation(f *federation.Federation) {
	s.federation = f
}

// actor serves the document of the local service actor.
func (s *localService) actor(reqCtx *federation.RequestContext, handle string) (*vocab.ActorType, error) {
	if handle != s.handle {
		return nil, merrors.ErrContentNotFound
	}

	id, err := reqCtx.ActorURI(handle)
	if err != nil {
		return nil, err
	}

	inbox, err := reqCtx.InboxURI(handle)
	if err != nil {
		return nil, err
	}

	sharedInbox, err := reqCtx.SharedInboxURI()
	if err != nil {
		return nil, err
	}

	outbox, err := reqCtx.OutboxURI(handle)
	if err != nil {
		return nil, err
	}

	followers, err := reqCtx.FollowersURI(handle)
	if err != nil {
		return nil, err
	}

	following, err := reqCtx.FollowingURI(handle)
	if err != nil {
		return nil, err
	}

	return vocab.NewService(id,
		vocab.WithPreferredUsername(handle),
		vocab.WithInbox(inbox),
		vocab.WithOutbox(outbox),
		vocab.WithFollowers(followers),
		vocab.WithFollowing(following),
		vocab.WithEndpoints(vocab.NewEndpoints(sharedInbox)),
		vocab.WithPublicKey(s.publicKey),
	), nil
}

// collection returns a dispatcher that serves the named collection from the
// KV store. Cursors are decimal offsets into the collection.
func (s *localService) collection(name string) federation.CollectionDispatcher {
	return federation.CollectionDispatcher{
		GetItems: func(_ *federation.RequestContext, handle, cursor string) (*federation.CollectionPage, error) {
			if handle != s.handle {
				return nil, merrors.ErrContentNotFound
			}

			return s.page(name, cursor)
		},
		Count: func(_ *federation.RequestContext, handle string) (int, error) {
			if handle != s.handle {
				return 0, merrors.ErrContentNotFound
			}

			items, err := s.collectionItems(name)
			if err != nil {
				return 0, err
			}

			return len(items), nil
		},
		Ordered: true,
	}
}

func (s *localService) page(name, cursor string) (*federation.CollectionPage, error) {
	items, err := s.collectionItems(name)
	if err != nil {
		return nil, err
	}

	from := 0

	if cursor != "" {
		from, err = strconv.Atoi(cursor)
		if err != nil || from < 0 {
			return nil, merrors.Newf(merrors.KindParse, "invalid cursor [%s]", cursor)
		}
	}

	if from > len(items) {
		from = len(items)
	}

	to := from + defaultPageSize
	if to > len(items) {
		to = len(items)
	}

	page := &federation.CollectionPage{}

	for _, item := range items[from:to] {
		iri, err := url.Parse(item)
		if err != nil {
			return nil, fmt.Errorf("parse item in collection [%s]: %w", name, err)
		}

		page.Items = append(page.Items, vocab.NewObjectProperty(vocab.WithIRI(iri)))
	}

	if to < len(items) {
		page.NextCursor = strconv.Itoa(to)
	}

	if from > 0 {
		prev := from - defaultPageSize
		if prev < 0 {
			prev = 0
		}

		page.PrevCursor = strconv.Itoa(prev)
	}

	return page, nil
}

func (s *localService) collectionItems(name string) ([]string, error) {
	value, err := s.kv.Get(collectionStoreKey(name))
	if err != nil {
		if errors.Is(err, spi.ErrDataNotFound) {
			return nil, nil
		}

		return nil, merrors.NewTransientf("get collection [%s]: %s", name, err)
	}

	var items []string

	if err := json.Unmarshal(value, &items); err != nil {
		return nil, fmt.Errorf("unmarshal collection [%s]: %w", name, err)
	}

	return items, nil
}

// addToCollection appends the given item to the named collection if it isn't
// already present. It returns false if the item was already there. Concurrent
// writers are serialized with a compare-and-swap loop.
func (s *localService) addToCollection(name, item string) (bool, error) {
	key := collectionStoreKey(name)

	for {
		current, err := s.kv.Get(key)
		if err != nil && !errors.Is(err, spi.ErrDataNotFound) {
			return false, merrors.NewTransientf("get collection [%s]: %s", name, err)
		}

		var items []string

		if current != nil {
			if err := json.Unmarshal(current, &items); err != nil {
				return false, fmt.Errorf("unmarshal collection [%s]: %w", name, err)
			}
		}

		if contains(items, item) {
			return false, nil
		}

		value, err := json.Marshal(append(items, item))
		if err != nil {
			return false, fmt.Errorf("marshal collection [%s]: %w", name, err)
		}

		swapped, err := s.kv.CompareAndSwap(key, current, value)
		if err != nil {
			return false, merrors.NewTransientf("update collection [%s]: %s", name, err)
		}

		if swapped {
			return true, nil
		}
	}
}

// removeFromCollection removes the given item from the named collection. It
// returns false if the item wasn't there.
func (s *localService) removeFromCollection(name, item string) (bool, error) {
	key := collectionStoreKey(name)

	for {
		current, err := s.kv.Get(key)
		if err != nil {
			if errors.Is(err, spi.ErrDataNotFound) {
				return false, nil
			}

			return false, merrors.NewTransientf("get collection [%s]: %s", name, err)
		}

		var items []string

		if err := json.Unmarshal(current, &items); err != nil {
			return false, fmt.Errorf("unmarshal collection [%s]: %w", name, err)
		}

		remaining := make([]string, 0, len(items))

		for _, existing := range items {
			if existing != item {
				remaining = append(remaining, existing)
			}
		}

		if len(remaining) == len(items) {
			return false, nil
		}

		value, err := json.Marshal(remaining)
		if err != nil {
			return false, fmt.Errorf("marshal collection [%s]: %w", name, err)
		}

		swapped, err := s.kv.CompareAndSwap(key, current, value)
		if err != nil {
			return false, merrors.NewTransientf("update collection [%s]: %s", name, err)
		}

		if swapped {
			return true, nil
		}
	}
}

// handleFollow adds the sender to the followers collection and replies with
// an Accept. The Accept is sent even when the follower was already present,
// since the peer may be retrying a Follow whose reply was lost.
func (s *localService) handleFollow(_ context.Context, activity *vocab.ActivityType) error {
	actorIRI := activity.Actor()
	if actorIRI == nil {
		return fmt.Errorf("no actor specified in follow activity [%s]", activity.ID())
	}

	obj := activity.Object()
	if obj == nil || obj.IRI() == nil {
		return fmt.Errorf("no object IRI specified in follow activity [%s]", activity.ID())
	}

	serviceIRI, err := s.actorIRI()
	if err != nil {
		return fmt.Errorf("resolve local service IRI: %w", err)
	}

	if obj.IRI().String() != serviceIRI.String() {
		return fmt.Errorf("follow activity [%s] does not target the local service", activity.ID())
	}

	added, err := s.addToCollection(followersCollection, actorIRI.String())
	if err != nil {
		return fmt.Errorf("add follower: %w", err)
	}

	if added {
		s.logger.Info("Added follower", logfields.WithActorIRI(actorIRI))
	}

	accept := vocab.NewAcceptActivity(
		vocab.NewObjectProperty(vocab.WithActivity(activity)),
		vocab.WithTo(actorIRI),
	)

	if _, err := s.publish(accept); err != nil {
		return fmt.Errorf("reply with accept: %w", err)
	}

	return nil
}

// handleUndo removes the sender from the followers collection when it undoes
// a Follow. Undo of anything else is logged and dropped.
func (s *localService) handleUndo(_ context.Context, activity *vocab.ActivityType) error {
	actorIRI := activity.Actor()
	if actorIRI == nil {
		return fmt.Errorf("no actor specified in undo activity [%s]", activity.ID())
	}

	obj := activity.Object()

	if obj == nil || obj.Activity() == nil || !obj.Activity().Type().Is(vocab.TypeFollow) {
		s.logger.Debug("Ignoring undo of an unsupported object", logfields.WithActivityID(activity.ID()))

		return nil
	}

	// An actor may only undo its own activities.
	undoneActor := obj.Activity().Actor()
	if undoneActor != nil && undoneActor.String() != actorIRI.String() {
		return fmt.Errorf("actor of undo activity [%s] does not match the actor of the undone follow",
			activity.ID())
	}

	removed, err := s.removeFromCollection(followersCollection, actorIRI.String())
	if err != nil {
		return fmt.Errorf("remove follower: %w", err)
	}

	if removed {
		s.logger.Info("Removed follower", logfields.WithActorIRI(actorIRI))
	}

	return nil
}

// handleAccept records that a remote actor accepted a Follow sent by the
// local service.
func (s *localService) handleAccept(_ context.Context, activity *vocab.ActivityType) error {
	actorIRI := activity.Actor()
	if actorIRI == nil {
		return fmt.Errorf("no actor specified in accept activity [%s]", activity.ID())
	}

	obj := activity.Object()

	if obj == nil || obj.Activity() == nil || !obj.Activity().Type().Is(vocab.TypeFollow) {
		s.logger.Debug("Ignoring accept of an unsupported object", logfields.WithActivityID(activity.ID()))

		return nil
	}

	serviceIRI, err := s.actorIRI()
	if err != nil {
		return fmt.Errorf("resolve local service IRI: %w", err)
	}

	follower := obj.Activity().Actor()
	if follower == nil || follower.String() != serviceIRI.String() {
		return fmt.Errorf("accept activity [%s] is not for a follow sent by the local service",
			activity.ID())
	}

	added, err := s.addToCollection(followingCollection, actorIRI.String())
	if err != nil {
		return fmt.Errorf("add to following: %w", err)
	}

	if added {
		s.logger.Info("Added to following", logfields.WithActorIRI(actorIRI))
	}

	return nil
}

// followActor resolves the given target, which is either an actor URL or a
// WebFinger handle such as @bob@remote.example, and sends it a Follow.
func (s *localService) followActor(ctx context.Context, target string) (*url.URL, error) {
	obj, err := s.federation.NewContext(nil, nil).Client().LookupObject(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("look up actor [%s]: %w", target, err)
	}

	targetIRI := obj.ID().URL()
	if targetIRI == nil {
		return nil, fmt.Errorf("actor [%s] has no ID", target)
	}

	follow := vocab.NewFollowActivity(
		vocab.NewObjectProperty(vocab.WithIRI(targetIRI)),
		vocab.WithTo(targetIRI),
	)

	return s.publish(follow)
}

// publish sends the activity through the outbox and records its ID in the
// outbox collection.
func (s *localService) publish(activity *vocab.ActivityType) (*url.URL, error) {
	id, err := s.federation.NewContext(nil, nil).SendActivity(activity)
	if err != nil {
		return nil, err
	}

	if _, err := s.addToCollection(outboxCollection, id.String()); err != nil {
		s.logger.Warn("Error recording sent activity", logfields.WithActivityID(id), log.WithError(err))
	}

	return id, nil
}

// GetStats reports usage statistics for NodeInfo: one local user (the service
// actor) and the number of activities it has sent.
func (s *localService) GetStats() (*nodeinfo.Stats, error) {
	items, err := s.collectionItems(outboxCollection)
	if err != nil {
		return nil, err
	}

	return &nodeinfo.Stats{TotalUsers: 1, LocalPosts: len(items)}, nil
}

// followingIRIs returns the IRIs of the services that the local service is
// following. It is used as the source of services to synchronize with.
func (s *localService) followingIRIs() ([]*url.URL, error) {
	items, err := s.collectionItems(followingCollection)
	if err != nil {
		return nil, err
	}

	iris := make([]*url.URL, len(items))

	for i, item := range items {
		iri, err := url.Parse(item)
		if err != nil {
			return nil, fmt.Errorf("parse IRI in following collection [%s]: %w", item, err)
		}

		iris[i] = iri
	}

	return iris, nil
}

func (s *localService) actorIRI() (*url.URL, error) {
	return s.federation.NewContext(nil, nil).ActorURI(s.handle)
}

func contains(items []string, item string) bool {
	for _, existing := range items {
		if existing == item {
			return true
		}
	}

	return false
}

type followRequest struct {
	Actor string `json:"actor"`
}

// followHandler is an administrative endpoint that makes the local service
// actor follow a remote actor. The request body carries the target as an
// actor URL or a WebFinger handle.
type followHandler struct {
	svc    *localService
	logger *log.Log
}

func newFollowHandler(svc *localService) *followHandler {
	return &followHandler{
		svc:    svc,
		logger: log.New("follow-handler"),
	}
}

// Path returns the path of the endpoint.
func (h *followHandler) Path() string {
	return "/follow"
}

// Method returns the HTTP method of the endpoint.
func (h *followHandler) Method() string {
	return http.MethodPost
}

// Handler returns the function that is invoked for requests to the endpoint.
func (h *followHandler) Handler() common.HTTPRequestHandler {
	return h.handle
}

func (h *followHandler) handle(w http.ResponseWriter, req *http.Request) {
	reqBytes, err := io.ReadAll(req.Body)
	if err != nil {
		h.logger.Error("Error reading request body", log.WithError(err))

		w.WriteHeader(http.StatusInternalServerError)

		return
	}

	var request followRequest

	if err := json.Unmarshal(reqBytes, &request); err != nil || request.Actor == "" {
		w.WriteHeader(http.StatusBadRequest)

		return
	}

	id, err := h.svc.followActor(req.Context(), request.Actor)
	if err != nil {
		h.logger.Error("Error sending follow", logfields.WithTarget(request.Actor), log.WithError(err))

		w.WriteHeader(http.StatusInternalServerError)

		return
	}

	h.logger.Info("Sent follow", logfields.WithActivityID(id), logfields.WithTarget(request.Actor))

	w.WriteHeader(http.StatusOK)
}

// publicKeyDoc is the standalone rendition of the service's public key, served
// at the key's own IRI so that remote servers can dereference it when they
// verify request signatures.
type publicKeyDoc struct {
	Context vocab.Context `json:"@context"`
	*vocab.PublicKeyType
}

type publicKeyHandler struct {
	path      string
	publicKey *vocab.PublicKeyType
	logger    *log.Log
}

func newPublicKeyHandler(path string, publicKey *vocab.PublicKeyType) *publicKeyHandler {
	return &publicKeyHandler{
		path:      path,
		publicKey: publicKey,
		logger:    log.New("public-key-handler"),
	}
}

// Path returns the path of the endpoint.
func (h *publicKeyHandler) Path() string {
	return h.path
}

// Method returns the HTTP method of the endpoint.
func (h *publicKeyHandler) Method() string {
	return http.MethodGet
}

// Handler returns the function that is invoked for requests to the endpoint.
func (h *publicKeyHandler) Handler() common.HTTPRequestHandler {
	return h.handle
}

func (h *publicKeyHandler) handle(w http.ResponseWriter, _ *http.Request) {
	body, err := json.Marshal(&publicKeyDoc{
		Context:       vocab.ContextSecurity,
		PublicKeyType: h.publicKey,
	})
	if err != nil {
		h.logger.Error("Error marshalling public key", log.WithError(err))

		w.WriteHeader(http.StatusInternalServerError)

		return
	}

	w.Header().Set(transport.ContentTypeHeader, transport.ActivityJSONContentType)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(body); err != nil {
		h.logger.Warn("Error writing response", log.WithError(err))
	}
}
