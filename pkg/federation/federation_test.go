/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fedway/fedway/pkg/federation/mocks"
	"github.com/fedway/fedway/pkg/federation/router"
	"github.com/fedway/fedway/pkg/nodeinfo"
	"github.com/fedway/fedway/pkg/store/memstore"
	"github.com/fedway/fedway/pkg/vocab"
	"github.com/fedway/fedway/pkg/webfinger/model"
)

func newTestFederation(t *testing.T, cfg *Config) *Federation {
	t.Helper()

	if cfg == nil {
		cfg = &Config{}
	}

	if cfg.KVStore == nil {
		s, err := memstore.New("federation-test")
		require.NoError(t, err)

		cfg.KVStore = s
	}

	if cfg.DocumentLoader == nil {
		cfg.DocumentLoader = mocks.NewDocumentLoader()
	}

	f, err := New(cfg)
	require.NoError(t, err)

	return f
}

func newTestActor(t *testing.T, id string) *vocab.ActorType {
	t.Helper()

	return &vocab.ActorType{
		ID:                vocab.NewURLProperty(vocab.MustParseURL(id)),
		Type:              vocab.NewTypeProperty(vocab.TypePerson),
		PreferredUsername: "john",
		Inbox:             vocab.NewURLProperty(vocab.MustParseURL(id + "/inbox")),
	}
}

func TestNew(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newTestFederation(t, nil)
		require.NotNil(t, f)
	})

	t.Run("no KV store -> error", func(t *testing.T) {
		_, err := New(&Config{})
		require.Error(t, err)
		require.Contains(t, err.Error(), "KV store is required")
	})
}

func TestRegistration(t *testing.T) {
	t.Run("actor dispatcher", func(t *testing.T) {
		f := newTestFederation(t, nil)

		setters, err := f.SetActorDispatcher("/users/{handle}",
			func(*RequestContext, string, *vocab.PublicKeyType) (*vocab.ActorType, error) {
				return nil, nil
			})
		require.NoError(t, err)
		require.NotNil(t, setters)

		_, err = f.SetActorDispatcher("/people/{handle}",
			func(*RequestContext, string, *vocab.PublicKeyType) (*vocab.ActorType, error) {
				return nil, nil
			})
		require.Error(t, err)

		routerErr := &router.Error{}
		require.ErrorAs(t, err, &routerErr)
		require.Contains(t, err.Error(), "already set")
	})

	t.Run("actor path without {handle} -> error", func(t *testing.T) {
		f := newTestFederation(t, nil)

		_, err := f.SetActorDispatcher("/users/{name}",
			func(*RequestContext, string, *vocab.PublicKeyType) (*vocab.ActorType, error) {
				return nil, nil
			})
		require.Error(t, err)
		require.Contains(t, err.Error(), "{handle}")

		routerErr := &router.Error{}
		require.ErrorAs(t, err, &routerErr)
	})

	t.Run("object path without variables -> error", func(t *testing.T) {
		f := newTestFederation(t, nil)

		_, err := f.SetObjectDispatcher(vocab.TypeNote, "/notes",
			func(*RequestContext, map[string]string) (vocab.Document, error) {
				return nil, nil
			})
		require.Error(t, err)
		require.Contains(t, err.Error(), "at least one variable")
	})

	t.Run("NodeInfo path with variables -> error", func(t *testing.T) {
		f := newTestFederation(t, nil)

		err := f.SetNodeInfoDispatcher("/nodeinfo/{version}",
			func(*RequestContext) (*nodeinfo.NodeInfo, error) {
				return nil, nil
			})
		require.Error(t, err)
		require.Contains(t, err.Error(), "must not have variables")
	})

	t.Run("collection dispatchers", func(t *testing.T) {
		f := newTestFederation(t, nil)

		dispatch := func(*RequestContext, string, string) (*CollectionPage, error) {
			return nil, nil
		}

		_, err := f.SetOutboxDispatcher("/users/{handle}/outbox", dispatch)
		require.NoError(t, err)

		_, err = f.SetFollowingDispatcher("/users/{handle}/following", dispatch)
		require.NoError(t, err)

		_, err = f.SetFollowersDispatcher("/users/{handle}/followers", dispatch)
		require.NoError(t, err)

		_, err = f.SetOutboxDispatcher("/users/{handle}/outbox2", dispatch)
		require.Error(t, err)
		require.Contains(t, err.Error(), "already set")

		_, err = f.SetFollowersDispatcher("/users/{handle}", dispatch)
		require.Error(t, err)
	})

	t.Run("inbox listeners", func(t *testing.T) {
		f := newTestFederation(t, nil)

		setter, err := f.SetInboxListeners("/users/{handle}/inbox", "/inbox")
		require.NoError(t, err)

		listener := func(*RequestContext, *vocab.ActivityType) error { return nil }

		require.NoError(t, setter.On(vocab.TypeCreate, listener))
		require.Error(t, setter.On(vocab.TypeCreate, listener))

		_, err = f.SetInboxListeners("/inbox2/{handle}", "")
		require.Error(t, err)
		require.Contains(t, err.Error(), "already set")
	})

	t.Run("shared inbox path with variables -> error", func(t *testing.T) {
		f := newTestFederation(t, nil)

		_, err := f.SetInboxListeners("/users/{handle}/inbox", "/inbox/{handle}")
		require.Error(t, err)
		require.Contains(t, err.Error(), "must not have variables")
	})
}

func TestFetchActor(t *testing.T) {
	f := newTestFederation(t, nil)

	actor := newTestActor(t, "http://example.com/users/john")

	_, err := f.SetActorDispatcher("/users/{handle}",
		func(_ *RequestContext, handle string, _ *vocab.PublicKeyType) (*vocab.ActorType, error) {
			if handle != "john" {
				return nil, nil
			}

			return actor, nil
		})
	require.NoError(t, err)

	t.Run("200 with ActivityStreams accept", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/users/john", nil)
		req.Header.Set("Accept", "application/activity+json")

		w := httptest.NewRecorder()

		f.Fetch(w, req, nil)

		resp := w.Result()
		require.NoError(t, resp.Body.Close())

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, resp.Header.Get("Content-Type"), "application/activity+json")
		require.Contains(t, w.Body.String(), `"preferredUsername":"john"`)
	})

	t.Run("406 with Vary for non-AS accept", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/users/john", nil)
		req.Header.Set("Accept", "text/html")

		w := httptest.NewRecorder()

		f.Fetch(w, req, nil)

		resp := w.Result()
		require.NoError(t, resp.Body.Close())

		require.Equal(t, http.StatusNotAcceptable, resp.StatusCode)
		require.Equal(t, "Accept, Signature", resp.Header.Get("Vary"))
	})

	t.Run("404 for unknown handle", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/users/jane", nil)
		req.Header.Set("Accept", "application/activity+json")

		w := httptest.NewRecorder()

		f.Fetch(w, req, nil)

		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("404 for unknown route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/nothing/here", nil)

		w := httptest.NewRecorder()

		f.Fetch(w, req, nil)

		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("custom OnNotFound", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/nothing/here", nil)

		w := httptest.NewRecorder()

		f.Fetch(w, req, &FetchOptions{
			OnNotFound: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			},
		})

		require.Equal(t, http.StatusTeapot, w.Code)
	})
}

func TestFetchActorAuthorize(t *testing.T) {
	f := newTestFederation(t, nil)

	setters, err := f.SetActorDispatcher("/users/{handle}",
		func(_ *RequestContext, handle string, _ *vocab.PublicKeyType) (*vocab.ActorType, error) {
			return newTestActor(t, "http://example.com/users/"+handle), nil
		})
	require.NoError(t, err)

	setters.Authorize(func(_ *RequestContext, _ string, signedKey *vocab.PublicKeyType,
		_ *vocab.ActorType) (bool, error) {
		return signedKey != nil, nil
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/users/john", nil)
	req.Header.Set("Accept", "application/activity+json")

	w := httptest.NewRecorder()

	f.Fetch(w, req, nil)

	resp := w.Result()
	require.NoError(t, resp.Body.Close())

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "Accept, Signature", resp.Header.Get("Vary"))
}

func TestFetchObject(t *testing.T) {
	f := newTestFederation(t, nil)

	_, err := f.SetObjectDispatcher(vocab.TypeNote, "/users/{handle}/notes/{id}",
		func(_ *RequestContext, values map[string]string) (vocab.Document, error) {
			if values["id"] != "1" {
				return nil, nil
			}

			return vocab.Document{
				"id":      "http://example.com/users/" + values["handle"] + "/notes/1",
				"type":    "Note",
				"content": "Hello world",
			}, nil
		})
	require.NoError(t, err)

	t.Run("200", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/users/john/notes/1", nil)
		req.Header.Set("Accept", "application/ld+json")

		w := httptest.NewRecorder()

		f.Fetch(w, req, nil)

		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), `"content":"Hello world"`)
		require.Contains(t, w.Body.String(), `"@context"`)
	})

	t.Run("404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/users/john/notes/2", nil)
		req.Header.Set("Accept", "application/ld+json")

		w := httptest.NewRecorder()

		f.Fetch(w, req, nil)

		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestFetchCollection(t *testing.T) {
	f := newTestFederation(t, nil)

	first := "0"
	last := "9"
	next := "1"
	total := 42

	setters, err := f.SetOutboxDispatcher("/users/{handle}/outbox",
		func(_ *RequestContext, _, cursor string) (*CollectionPage, error) {
			if cursor == "missing" {
				return nil, nil
			}

			return &CollectionPage{
				Items:      []interface{}{"http://example.com/activities/1"},
				NextCursor: &next,
			}, nil
		})
	require.NoError(t, err)

	setters.
		SetCounter(func(*RequestContext, string) (*int, error) { return &total, nil }).
		SetFirstCursor(func(*RequestContext, string) (*string, error) { return &first, nil }).
		SetLastCursor(func(*RequestContext, string) (*string, error) { return &last, nil })

	t.Run("index", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/users/john/outbox", nil)
		req.Header.Set("Accept", "application/activity+json")

		w := httptest.NewRecorder()

		f.Fetch(w, req, nil)

		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), `"type":"OrderedCollection"`)
		require.Contains(t, w.Body.String(), `"totalItems":42`)
		require.Contains(t, w.Body.String(), "cursor=0")
		require.Contains(t, w.Body.String(), "cursor=9")
	})

	t.Run("page", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/users/john/outbox?cursor=0", nil)
		req.Header.Set("Accept", "application/activity+json")

		w := httptest.NewRecorder()

		f.Fetch(w, req, nil)

		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), `"type":"OrderedCollectionPage"`)
		require.Contains(t, w.Body.String(), `"orderedItems":["http://example.com/activities/1"]`)
		require.Contains(t, w.Body.String(), "cursor=1")
	})

	t.Run("missing page -> 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/users/john/outbox?cursor=missing", nil)
		req.Header.Set("Accept", "application/activity+json")

		w := httptest.NewRecorder()

		f.Fetch(w, req, nil)

		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestFetchWebFinger(t *testing.T) {
	f := newTestFederation(t, nil)

	_, err := f.SetActorDispatcher("/users/{handle}",
		func(_ *RequestContext, handle string, _ *vocab.PublicKeyType) (*vocab.ActorType, error) {
			if handle != "john" {
				return nil, nil
			}

			actor := newTestActor(t, "http://example.com/users/john")
			actor.URL = vocab.NewURLProperty(vocab.MustParseURL("http://example.com/@john"))

			return actor, nil
		})
	require.NoError(t, err)

	t.Run("acct resource", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"http://example.com/.well-known/webfinger?resource=acct:john@example.com", nil)

		w := httptest.NewRecorder()

		f.Fetch(w, req, nil)

		resp := w.Result()
		require.NoError(t, resp.Body.Close())

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, model.ContentType, resp.Header.Get("Content-Type"))
		require.Contains(t, w.Body.String(), `"subject":"acct:john@example.com"`)
		require.Contains(t, w.Body.String(), `"rel":"self"`)
		require.Contains(t, w.Body.String(), "http://example.com/users/john")
		require.Contains(t, w.Body.String(), model.RelProfilePage)
	})

	t.Run("actor URI resource", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"http://example.com/.well-known/webfinger?resource=http://example.com/users/john", nil)

		w := httptest.NewRecorder()

		f.Fetch(w, req, nil)

		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown handle -> 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"http://example.com/.well-known/webfinger?resource=acct:jane@example.com", nil)

		w := httptest.NewRecorder()

		f.Fetch(w, req, nil)

		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("foreign host -> 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"http://example.com/.well-known/webfinger?resource=acct:john@other.example", nil)

		w := httptest.NewRecorder()

		f.Fetch(w, req, nil)

		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed resource -> 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"http://example.com/.well-known/webfinger?resource=acct:john", nil)

		w := httptest.NewRecorder()

		f.Fetch(w, req, nil)

		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing resource -> 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/.well-known/webfinger", nil)

		w := httptest.NewRecorder()

		f.Fetch(w, req, nil)

		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestFetchNodeInfo(t *testing.T) {
	f := newTestFederation(t, nil)

	err := f.SetNodeInfoDispatcher("/nodeinfo/2.0", func(*RequestContext) (*nodeinfo.NodeInfo, error) {
		return &nodeinfo.NodeInfo{
			Version: nodeinfo.V2_0,
			Software: nodeinfo.Software{
				Name:    "fedway",
				Version: "1.0.0",
			},
			Protocols: []string{nodeinfo.ActivityPubProtocol},
			Services:  nodeinfo.Services{Inbound: []string{}, Outbound: []string{}},
			Usage: nodeinfo.Usage{
				Users: nodeinfo.Users{Total: 1},
			},
		}, nil
	})
	require.NoError(t, err)

	t.Run("discovery JRD", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/.well-known/nodeinfo", nil)

		w := httptest.NewRecorder()

		f.Fetch(w, req, nil)

		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), nodeinfo.SchemaIRI(nodeinfo.V2_0))
		require.Contains(t, w.Body.String(), "http://example.com/nodeinfo/2.0")
	})

	t.Run("document", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/nodeinfo/2.0", nil)

		w := httptest.NewRecorder()

		f.Fetch(w, req, nil)

		resp := w.Result()
		require.NoError(t, resp.Body.Close())

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, resp.Header.Get("Content-Type"), nodeinfo.SchemaIRI(nodeinfo.V2_0))
		require.Contains(t, w.Body.String(), `"name":"fedway"`)
	})
}

func TestFetchNodeInfoInvalidDocument(t *testing.T) {
	f := newTestFederation(t, nil)

	err := f.SetNodeInfoDispatcher("/nodeinfo/2.0", func(*RequestContext) (*nodeinfo.NodeInfo, error) {
		return &nodeinfo.NodeInfo{Version: "3.0"}, nil
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/nodeinfo/2.0", nil)

	w := httptest.NewRecorder()

	f.Fetch(w, req, nil)

	require.Equal(t, http.StatusInternalServerError, w.Code)
}
