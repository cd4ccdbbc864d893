/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	federrors "github.com/fedway/fedway/pkg/errors"
	"github.com/fedway/fedway/pkg/webfinger/model"
)

func newWebFingerServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)

		require.Equal(t, "/.well-known/webfinger", r.URL.Path)

		resource := r.URL.Query().Get("resource")
		if resource != "acct:john@"+r.Host {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		jrd := &model.JRD{
			Subject: resource,
			Links: []model.Link{
				{
					Rel:  model.RelSelf,
					Type: "application/activity+json",
					Href: "http://" + r.Host + "/users/john",
				},
			},
		}

		w.Header().Set("Content-Type", model.ContentType)

		require.NoError(t, json.NewEncoder(w).Encode(jrd))
	}))
}

func TestResolveResource(t *testing.T) {
	var hits int32

	srv := newWebFingerServer(t, &hits)
	defer srv.Close()

	c := New(WithHTTPClient(srv.Client()))

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	jrd, err := c.ResolveResource(srv.URL, "acct:john@"+u.Host)
	require.NoError(t, err)
	require.Equal(t, "acct:john@"+u.Host, jrd.Subject)
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// A second resolution is served from the cache.
	_, err = c.ResolveResource(srv.URL, "acct:john@"+u.Host)
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestResolveActorIRI(t *testing.T) {
	var hits int32

	srv := newWebFingerServer(t, &hits)
	defer srv.Close()

	c := New(WithHTTPClient(srv.Client()), WithCacheLifetime(time.Minute), WithCacheSize(10))

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	actorIRI, err := c.ResolveActorIRI(srv.URL, "john")
	require.NoError(t, err)
	require.Equal(t, "http://"+u.Host+"/users/john", actorIRI.String())
}

func TestResolveResourceNotFound(t *testing.T) {
	var hits int32

	srv := newWebFingerServer(t, &hits)
	defer srv.Close()

	c := New(WithHTTPClient(srv.Client()))

	_, err := c.ResolveResource(srv.URL, "acct:jane@unknown.example")
	require.ErrorIs(t, err, model.ErrResourceNotFound)
}

func TestResolveResourceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(WithHTTPClient(srv.Client()))

	_, err := c.ResolveResource(srv.URL, "acct:john@example.com")
	require.Error(t, err)
	require.True(t, federrors.IsTransient(err))
}

func TestResolveActorIRINoSelfLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(&model.JRD{Subject: "acct:john@example.com"}))
	}))
	defer srv.Close()

	c := New(WithHTTPClient(srv.Client()))

	_, err := c.ResolveActorIRI(srv.URL, "john")
	require.ErrorIs(t, err, model.ErrResourceNotFound)
}
