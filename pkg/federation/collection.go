/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"net/http"
	"net/url"

	"github.com/fedway/fedway/pkg/transport"
	"github.com/fedway/fedway/pkg/vocab"
)

const cursorParameter = "cursor"

// handleCollection serves one of the collection surfaces (outbox, following,
// followers). Without a cursor query parameter it serves the collection's index
// document; with one it invokes the dispatcher for that page.
func (f *Federation) handleCollection(w http.ResponseWriter, r *http.Request, rc *RequestContext,
	name, handle string, opts *FetchOptions) {
	reg := f.collections[name]
	if reg == nil {
		opts.notFound()(w, r)

		return
	}

	if !acceptsActivityStreams(r) {
		opts.notAcceptable()(w, r)

		return
	}

	if reg.authorize != nil {
		authorized, err := f.authorize(rc, reg.authorize, handle)
		if err != nil {
			serverError(w, r, err)

			return
		}

		if !authorized {
			opts.unauthorized()(w, r)

			return
		}
	}

	base := *rc.Origin()
	base.Path = r.URL.Path

	if !r.URL.Query().Has(cursorParameter) {
		f.handleCollectionIndex(w, r, rc, reg, handle, &base, opts)

		return
	}

	f.handleCollectionPage(w, r, rc, reg, handle, r.URL.Query().Get(cursorParameter), &base, opts)
}

func (f *Federation) handleCollectionIndex(w http.ResponseWriter, r *http.Request, rc *RequestContext,
	reg *collectionRegistration, handle string, base *url.URL, _ *FetchOptions) {
	collection := vocab.NewOrderedCollection(base)

	if reg.counter != nil {
		total, err := reg.counter(rc, handle)
		if err != nil {
			serverError(w, r, err)

			return
		}

		collection.TotalItems = total
	}

	if reg.firstCursor != nil {
		cursor, err := reg.firstCursor(rc, handle)
		if err != nil {
			serverError(w, r, err)

			return
		}

		if cursor != nil {
			collection.First = vocab.NewURLProperty(pageURL(base, *cursor))
		}
	}

	if reg.lastCursor != nil {
		cursor, err := reg.lastCursor(rc, handle)
		if err != nil {
			serverError(w, r, err)

			return
		}

		if cursor != nil {
			collection.Last = vocab.NewURLProperty(pageURL(base, *cursor))
		}
	}

	respondWithJSON(w, http.StatusOK, transport.ActivityJSONContentType, collection)
}

func (f *Federation) handleCollectionPage(w http.ResponseWriter, r *http.Request, rc *RequestContext,
	reg *collectionRegistration, handle, cursor string, base *url.URL, opts *FetchOptions) {
	page, err := reg.dispatch(rc, handle, cursor)
	if err != nil {
		serverError(w, r, err)

		return
	}

	if page == nil {
		opts.notFound()(w, r)

		return
	}

	items := page.Items
	if items == nil {
		items = []interface{}{}
	}

	pageDoc := vocab.NewOrderedCollectionPage(pageURL(base, cursor), items)
	pageDoc.PartOf = vocab.NewURLProperty(base)

	if page.NextCursor != nil {
		pageDoc.Next = vocab.NewURLProperty(pageURL(base, *page.NextCursor))
	}

	respondWithJSON(w, http.StatusOK, transport.ActivityJSONContentType, pageDoc)
}

// pageURL returns the collection URL with the given cursor as its query parameter.
func pageURL(base *url.URL, cursor string) *url.URL {
	u := *base
	q := u.Query()
	q.Set(cursorParameter, cursor)
	u.RawQuery = q.Encode()

	return &u
}
