/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridianfed/meridian/pkg/client/transport"
	merrors "github.com/meridianfed/meridian/pkg/errors"
	"github.com/meridianfed/meridian/pkg/internal/testutil"
	"github.com/meridianfed/meridian/pkg/nodeinfo"
	"github.com/meridianfed/meridian/pkg/store/memstore"
	"github.com/meridianfed/meridian/pkg/vocab"
)

func TestFederation_HandleActor(t *testing.T) {
	f, err := newTestBuilder().Build(BuildParams{KV: memstore.New()})
	require.NoError(t, err)

	f.Start()
	defer f.Stop()

	t.Run("success", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.True(t, f.Handle(rw, newGetRequest("/users/alice")))

		resp := rw.Result()
		defer func() {
			require.NoError(t, resp.Body.Close())
		}()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, transport.ActivityJSONContentType, resp.Header.Get("Content-Type"))

		respBytes, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		actor := &vocab.ActorType{}
		require.NoError(t, json.Unmarshal(respBytes, actor))
		require.Equal(t, "https://example1.com/users/alice", actor.ID().String())
		require.True(t, actor.Type().Is(vocab.TypePerson))
	})

	t.Run("head", func(t *testing.T) {
		rw := httptest.NewRecorder()

		req := httptest.NewRequest(http.MethodHead, "https://example1.com/users/alice", nil)
		req.Header.Set("Accept", "application/activity+json")

		require.True(t, f.Handle(rw, req))
		require.Equal(t, http.StatusOK, rw.Code)
	})

	t.Run("unknown actor -> delegated", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.False(t, f.Handle(rw, newGetRequest("/users/eve")))
		require.Zero(t, rw.Body.Len())
	})

	t.Run("unmatched path -> delegated", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.False(t, f.Handle(rw, newGetRequest("/widgets/1")))
	})

	t.Run("different origin -> delegated", func(t *testing.T) {
		rw := httptest.NewRecorder()

		req := httptest.NewRequest(http.MethodGet, "https://other.com/users/alice", nil)

		require.False(t, f.Handle(rw, req))
	})

	t.Run("not acceptable", func(t *testing.T) {
		rw := httptest.NewRecorder()

		req := httptest.NewRequest(http.MethodGet, "https://example1.com/users/alice", nil)
		req.Header.Set("Accept", "text/html")

		require.True(t, f.Handle(rw, req))
		require.Equal(t, http.StatusNotAcceptable, rw.Code)
		require.Equal(t, notAcceptableResponse, rw.Body.String())
	})

	t.Run("accept with parameters", func(t *testing.T) {
		rw := httptest.NewRecorder()

		req := httptest.NewRequest(http.MethodGet, "https://example1.com/users/alice", nil)
		req.Header.Set("Accept", `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`)

		require.True(t, f.Handle(rw, req))
		require.Equal(t, http.StatusOK, rw.Code)
	})

	t.Run("no accept header", func(t *testing.T) {
		rw := httptest.NewRecorder()

		req := httptest.NewRequest(http.MethodGet, "https://example1.com/users/alice", nil)

		require.True(t, f.Handle(rw, req))
		require.Equal(t, http.StatusOK, rw.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		rw := httptest.NewRecorder()

		req := httptest.NewRequest(http.MethodPut, "https://example1.com/users/alice", nil)

		require.True(t, f.Handle(rw, req))
		require.Equal(t, http.StatusMethodNotAllowed, rw.Code)
		require.Equal(t, "GET, HEAD", rw.Header().Get("Allow"))
		require.Equal(t, methodNotAllowedResponse, rw.Body.String())
	})
}

func TestFederation_HandleObject(t *testing.T) {
	f, err := NewBuilder(newTestConfig()).
		WithObject(vocab.TypeNote, "/notes/{id}", testNoteDispatcher()).
		Build(BuildParams{KV: memstore.New()})
	require.NoError(t, err)

	f.Start()
	defer f.Stop()

	t.Run("success", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.True(t, f.Handle(rw, newGetRequest("/notes/note1")))
		require.Equal(t, http.StatusOK, rw.Code)

		obj := &vocab.ObjectType{}
		require.NoError(t, json.Unmarshal(rw.Body.Bytes(), obj))
		require.Equal(t, "https://example1.com/notes/note1", obj.ID().String())
		require.True(t, obj.Type().Is(vocab.TypeNote))
		require.Equal(t, "Hello!", obj.Content().String())
	})

	t.Run("unknown object -> delegated", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.False(t, f.Handle(rw, newGetRequest("/notes/other")))
	})
}

func TestFederation_HandleDispatcherError(t *testing.T) {
	f, err := NewBuilder(newTestConfig()).
		WithActor("/users/{handle}", func(_ *RequestContext, handle string) (*vocab.ActorType, error) {
			switch handle {
			case "boom":
				return nil, errors.New("injected dispatcher error")
			case "upstream":
				return nil, merrors.Newf(merrors.KindFetch, "injected fetch error")
			default:
				return nil, merrors.ErrContentNotFound
			}
		}).
		Build(BuildParams{KV: memstore.New()})
	require.NoError(t, err)

	f.Start()
	defer f.Stop()

	t.Run("internal error", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.True(t, f.Handle(rw, newGetRequest("/users/boom")))
		require.Equal(t, http.StatusInternalServerError, rw.Code)
		require.Equal(t, internalServerErrorResponse, rw.Body.String())
	})

	t.Run("upstream fetch error", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.True(t, f.Handle(rw, newGetRequest("/users/upstream")))
		require.Equal(t, http.StatusBadGateway, rw.Code)
		require.Equal(t, badGatewayResponse, rw.Body.String())
	})
}

func TestFederation_HandleCollection(t *testing.T) {
	followers := []*url.URL{
		testutil.MustParseURL("https://example2.com/users/carol"),
		testutil.MustParseURL("https://example3.com/users/dan"),
		testutil.MustParseURL("https://example4.com/users/erin"),
	}

	d := CollectionDispatcher{
		GetItems: func(_ *RequestContext, handle, cursor string) (*CollectionPage, error) {
			if handle != "alice" {
				return nil, merrors.ErrContentNotFound
			}

			switch cursor {
			case "", "0":
				return &CollectionPage{
					Items: []*vocab.ObjectProperty{
						vocab.NewObjectProperty(vocab.WithIRI(followers[0])),
						vocab.NewObjectProperty(vocab.WithIRI(followers[1])),
					},
					NextCursor: "2",
				}, nil
			case "2":
				return &CollectionPage{
					Items: []*vocab.ObjectProperty{
						vocab.NewObjectProperty(vocab.WithIRI(followers[2])),
					},
					PrevCursor: "0",
				}, nil
			default:
				return nil, merrors.ErrContentNotFound
			}
		},
		Count: func(_ *RequestContext, handle string) (int, error) {
			if handle != "alice" {
				return 0, merrors.ErrContentNotFound
			}

			return len(followers), nil
		},
		FirstCursor: func(_ *RequestContext, _ string) (string, error) {
			return "0", nil
		},
		LastCursor: func(_ *RequestContext, _ string) (string, error) {
			return "2", nil
		},
		Ordered: true,
	}

	f, err := NewBuilder(newTestConfig()).
		WithCollection(RouteFollowers, "/users/{handle}/followers", d).
		Build(BuildParams{KV: memstore.New()})
	require.NoError(t, err)

	f.Start()
	defer f.Stop()

	t.Run("index", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.True(t, f.Handle(rw, newGetRequest("/users/alice/followers")))
		require.Equal(t, http.StatusOK, rw.Code)

		coll := &vocab.OrderedCollectionType{}
		require.NoError(t, json.Unmarshal(rw.Body.Bytes(), coll))

		require.Equal(t, "https://example1.com/users/alice/followers", coll.ID().String())
		require.True(t, coll.Type().Is(vocab.TypeOrderedCollection))
		require.Equal(t, 3, coll.TotalItems())
		require.Empty(t, coll.Items())
		require.Equal(t, "https://example1.com/users/alice/followers?cursor=0&page=true",
			coll.First().IRI().String())
		require.Equal(t, "https://example1.com/users/alice/followers?cursor=2&page=true",
			coll.Last().IRI().String())
	})

	t.Run("first page", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.True(t, f.Handle(rw, newGetRequest("/users/alice/followers?cursor=0&page=true")))
		require.Equal(t, http.StatusOK, rw.Code)

		page := &vocab.OrderedCollectionPageType{}
		require.NoError(t, json.Unmarshal(rw.Body.Bytes(), page))

		require.True(t, page.Type().Is(vocab.TypeOrderedCollectionPage))
		require.Equal(t, "https://example1.com/users/alice/followers", page.PartOf().String())
		require.Equal(t, 3, page.TotalItems())

		items := page.Items()
		require.Len(t, items, 2)
		require.Equal(t, followers[0].String(), items[0].IRI().String())
		require.Equal(t, followers[1].String(), items[1].IRI().String())

		require.Equal(t, "https://example1.com/users/alice/followers?cursor=2&page=true",
			page.Next().IRI().String())
		require.Nil(t, page.Prev())
	})

	t.Run("last page", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.True(t, f.Handle(rw, newGetRequest("/users/alice/followers?cursor=2&page=true")))
		require.Equal(t, http.StatusOK, rw.Code)

		page := &vocab.OrderedCollectionPageType{}
		require.NoError(t, json.Unmarshal(rw.Body.Bytes(), page))

		items := page.Items()
		require.Len(t, items, 1)
		require.Equal(t, followers[2].String(), items[0].IRI().String())

		require.Nil(t, page.Next())
		require.Equal(t, "https://example1.com/users/alice/followers?cursor=0&page=true",
			page.Prev().IRI().String())
	})

	t.Run("default page", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.True(t, f.Handle(rw, newGetRequest("/users/alice/followers?page=true")))
		require.Equal(t, http.StatusOK, rw.Code)

		page := &vocab.OrderedCollectionPageType{}
		require.NoError(t, json.Unmarshal(rw.Body.Bytes(), page))
		require.Len(t, page.Items(), 2)
	})

	t.Run("unknown handle -> delegated", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.False(t, f.Handle(rw, newGetRequest("/users/bob/followers")))
	})
}

func TestFederation_HandleDelivery(t *testing.T) {
	handledChan := make(chan *vocab.ActivityType, 5)

	f, err := newTestBuilder().
		OnActivity(vocab.TypeCreate, func(_ context.Context, activity *vocab.ActivityType) error {
			handledChan <- activity

			return nil
		}).
		Build(BuildParams{KV: memstore.New()})
	require.NoError(t, err)

	f.Start()
	defer f.Stop()

	t.Run("shared inbox", func(t *testing.T) {
		rw := httptest.NewRecorder()

		activity := newCreateActivity()

		require.True(t, f.Handle(rw, newPostRequest(t, "/inbox", activity)))
		require.Equal(t, http.StatusAccepted, rw.Code)

		select {
		case a := <-handledChan:
			require.Equal(t, activity.ID().String(), a.ID().String())
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for activity to be handled")
		}
	})

	t.Run("actor inbox", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.True(t, f.Handle(rw, newPostRequest(t, "/users/alice/inbox", newCreateActivity())))
		require.Equal(t, http.StatusAccepted, rw.Code)

		select {
		case <-handledChan:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for activity to be handled")
		}
	})

	t.Run("same activity to two inboxes", func(t *testing.T) {
		activity := newCreateActivity()

		for _, path := range []string{"/users/alice/inbox", "/users/bob/inbox"} {
			rw := httptest.NewRecorder()

			require.True(t, f.Handle(rw, newPostRequest(t, path, activity)))
			require.Equal(t, http.StatusAccepted, rw.Code)
		}

		for i := 0; i < 2; i++ {
			select {
			case <-handledChan:
			case <-time.After(time.Second):
				t.Fatal("timed out waiting for activity to be handled")
			}
		}
	})

	t.Run("duplicate to the same inbox", func(t *testing.T) {
		activity := newCreateActivity()

		for i := 0; i < 2; i++ {
			rw := httptest.NewRecorder()

			require.True(t, f.Handle(rw, newPostRequest(t, "/users/alice/inbox", activity)))
			require.Equal(t, http.StatusAccepted, rw.Code)
		}

		select {
		case <-handledChan:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for activity to be handled")
		}

		select {
		case <-handledChan:
			t.Fatal("duplicate activity should not have been handled")
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("unknown actor inbox -> delegated", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.False(t, f.Handle(rw, newPostRequest(t, "/users/eve/inbox", newCreateActivity())))
	})

	t.Run("method not allowed", func(t *testing.T) {
		rw := httptest.NewRecorder()

		req := httptest.NewRequest(http.MethodGet, "https://example1.com/inbox", nil)

		require.True(t, f.Handle(rw, req))
		require.Equal(t, http.StatusMethodNotAllowed, rw.Code)
		require.Equal(t, http.MethodPost, rw.Header().Get("Allow"))
	})
}

func TestFederation_HandleNodeInfo(t *testing.T) {
	f, err := newTestBuilder().
		WithNodeInfo(nodeinfo.Software{
			Name:       "meridian-test",
			Version:    "0.1.0",
			Repository: "https://github.com/meridianfed/meridian",
		}, nodeinfo.StaticStats{TotalUsers: 2, LocalPosts: 7}).
		Build(BuildParams{KV: memstore.New()})
	require.NoError(t, err)

	f.Start()
	defer f.Stop()

	// The initial stats refresh runs in the background.
	time.Sleep(100 * time.Millisecond)

	t.Run("well-known", func(t *testing.T) {
		rw := httptest.NewRecorder()

		req := httptest.NewRequest(http.MethodGet, "https://example1.com"+nodeinfo.WellKnownPath, nil)

		require.True(t, f.Handle(rw, req))
		require.Equal(t, http.StatusOK, rw.Code)
		require.Contains(t, rw.Body.String(), "https://example1.com/nodeinfo/2.0")
		require.Contains(t, rw.Body.String(), "https://example1.com/nodeinfo/2.1")
	})

	t.Run("well-known method not allowed", func(t *testing.T) {
		rw := httptest.NewRecorder()

		req := httptest.NewRequest(http.MethodPost, "https://example1.com"+nodeinfo.WellKnownPath, nil)

		require.True(t, f.Handle(rw, req))
		require.Equal(t, http.StatusMethodNotAllowed, rw.Code)
	})

	t.Run("version 2.0", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.True(t, f.Handle(rw, newGetRequest("/nodeinfo/2.0")))
		require.Equal(t, http.StatusOK, rw.Code)

		ni := &nodeinfo.NodeInfo{}
		require.NoError(t, json.Unmarshal(rw.Body.Bytes(), ni))
		require.Equal(t, nodeinfo.V2_0, ni.Version)
		require.Equal(t, "meridian-test", ni.Software.Name)
		require.Equal(t, "0.1.0", ni.Software.Version)
		require.Empty(t, ni.Software.Repository)
		require.Equal(t, 2, ni.Usage.Users.Total)
		require.Equal(t, 7, ni.Usage.LocalPosts)
	})

	t.Run("version 2.1", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.True(t, f.Handle(rw, newGetRequest("/nodeinfo/2.1")))
		require.Equal(t, http.StatusOK, rw.Code)

		ni := &nodeinfo.NodeInfo{}
		require.NoError(t, json.Unmarshal(rw.Body.Bytes(), ni))
		require.Equal(t, nodeinfo.V2_1, ni.Version)
		require.Equal(t, "https://github.com/meridianfed/meridian", ni.Software.Repository)
	})

	t.Run("unsupported version -> delegated", func(t *testing.T) {
		rw := httptest.NewRecorder()

		require.False(t, f.Handle(rw, newGetRequest("/nodeinfo/3.0")))
	})
}

func TestFederation_Authorize(t *testing.T) {
	t.Run("deny", func(t *testing.T) {
		f, err := newTestBuilder().
			WithAuthorizer(func(_ *RequestContext, _ string, vars map[string]string) (bool, error) {
				return vars[HandleVar] == "alice", nil
			}).
			Build(BuildParams{KV: memstore.New()})
		require.NoError(t, err)

		f.Start()
		defer f.Stop()

		rw := httptest.NewRecorder()

		require.True(t, f.Handle(rw, newGetRequest("/users/alice")))
		require.Equal(t, http.StatusOK, rw.Code)

		rw = httptest.NewRecorder()

		require.True(t, f.Handle(rw, newGetRequest("/users/bob")))
		require.Equal(t, http.StatusUnauthorized, rw.Code)
		require.Equal(t, unauthorizedResponse, rw.Body.String())
	})

	t.Run("custom unauthorized handler", func(t *testing.T) {
		f, err := newTestBuilder().
			WithAuthorizer(func(_ *RequestContext, _ string, _ map[string]string) (bool, error) {
				return false, nil
			}).
			WithUnauthorizedHandler(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			}).
			Build(BuildParams{KV: memstore.New()})
		require.NoError(t, err)

		f.Start()
		defer f.Stop()

		rw := httptest.NewRecorder()

		require.True(t, f.Handle(rw, newGetRequest("/users/alice")))
		require.Equal(t, http.StatusForbidden, rw.Code)
	})

	t.Run("authorizer error", func(t *testing.T) {
		f, err := newTestBuilder().
			WithAuthorizer(func(_ *RequestContext, _ string, _ map[string]string) (bool, error) {
				return false, merrors.Newf(merrors.KindAuthorization, "injected authorizer error")
			}).
			Build(BuildParams{KV: memstore.New()})
		require.NoError(t, err)

		f.Start()
		defer f.Stop()

		rw := httptest.NewRecorder()

		require.True(t, f.Handle(rw, newGetRequest("/users/alice")))
		require.Equal(t, http.StatusUnauthorized, rw.Code)
	})
}

func newGetRequest(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, testOrigin.String()+path, nil)
	req.Header.Set("Accept", "application/activity+json")

	return req
}
