/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"net/http"

	"github.com/fedway/fedway/pkg/transport"
	"github.com/fedway/fedway/pkg/vocab"
)

// handleActor serves the actor document for the handle in the request path.
func (f *Federation) handleActor(w http.ResponseWriter, r *http.Request, rc *RequestContext,
	handle string, opts *FetchOptions) {
	reg := f.actor
	if reg == nil {
		opts.notFound()(w, r)

		return
	}

	if !acceptsActivityStreams(r) {
		opts.notAcceptable()(w, r)

		return
	}

	key, err := rc.ActorKey(handle)
	if err != nil {
		serverError(w, r, err)

		return
	}

	wrapped := rc.rewrap()
	wrapped.inGetActor = true

	actor, err := reg.dispatch(wrapped, handle, key)
	if err != nil {
		serverError(w, r, err)

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

	if actor == nil {
		opts.notFound()(w, r)

		return
	}

	if actor.Context == nil {
		actor.Context = []string{string(vocab.ContextActivityStreams), string(vocab.ContextSecurity)}
	}

	respondWithJSON(w, http.StatusOK, transport.ActivityJSONContentType, actor)
}

// handleObject serves the document of the object whose type owns the matched route.
func (f *Federation) handleObject(w http.ResponseWriter, r *http.Request, rc *RequestContext,
	routeName string, values map[string]string, opts *FetchOptions) {
	var reg *objectRegistration

	for _, candidate := range f.objects {
		if candidate.routeName == routeName {
			reg = candidate

			break
		}
	}

	if reg == nil {
		opts.notFound()(w, r)

		return
	}

	if !acceptsActivityStreams(r) {
		opts.notAcceptable()(w, r)

		return
	}

	wrapped := rc.rewrap()
	wrapped.inGetObject = true

	object, err := reg.dispatch(wrapped, values)
	if err != nil {
		serverError(w, r, err)

		return
	}

	if reg.authorize != nil {
		signedKey, err := rc.GetSignedKey()
		if err != nil {
			serverError(w, r, err)

			return
		}

		signedKeyOwner, err := rc.GetSignedKeyOwner()
		if err != nil {
			serverError(w, r, err)

			return
		}

		authorized, err := reg.authorize(rc, values, signedKey, signedKeyOwner)
		if err != nil {
			serverError(w, r, err)

			return
		}

		if !authorized {
			opts.unauthorized()(w, r)

			return
		}
	}

	if object == nil {
		opts.notFound()(w, r)

		return
	}

	if _, ok := object["@context"]; !ok {
		withContext := make(vocab.Document, len(object)+1)
		withContext["@context"] = string(vocab.ContextActivityStreams)
		withContext.MergeWith(object)

		object = withContext
	}

	respondWithJSON(w, http.StatusOK, transport.ActivityJSONContentType, object)
}

// authorize runs a handle-keyed authorize predicate against the request's
// signature verification results.
func (f *Federation) authorize(rc *RequestContext, predicate Authorizer, handle string) (bool, error) {
	signedKey, err := rc.GetSignedKey()
	if err != nil {
		return false, err
	}

	signedKeyOwner, err := rc.GetSignedKeyOwner()
	if err != nil {
		return false, err
	}

	return predicate(rc, handle, signedKey, signedKeyOwner)
}
