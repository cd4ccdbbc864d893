/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/fedway/fedway/pkg/transport"
	"github.com/fedway/fedway/pkg/webfinger/model"
)

const acctScheme = "acct:"

// handleWebFinger resolves a 'resource' query parameter of the form
// acct:handle@host, or a local actor URI, to a JRD describing the actor.
func (f *Federation) handleWebFinger(w http.ResponseWriter, r *http.Request, rc *RequestContext,
	opts *FetchOptions) {
	reg := f.actor
	if reg == nil {
		opts.notFound()(w, r)

		return
	}

	resource := r.URL.Query().Get("resource")
	if resource == "" {
		respondWithError(w, http.StatusBadRequest)

		return
	}

	handle, err := f.resolveResource(rc, resource)
	if err != nil {
		respondWithError(w, http.StatusBadRequest)

		return
	}

	if handle == "" {
		opts.notFound()(w, r)

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

	if actor == nil {
		opts.notFound()(w, r)

		return
	}

	actorURI, err := rc.ActorURI(handle)
	if err != nil {
		serverError(w, r, err)

		return
	}

	jrd := &model.JRD{
		Subject: fmt.Sprintf("%s%s@%s", acctScheme, handle, rc.URL().Host),
		Aliases: []string{actorURI.String()},
		Links: []model.Link{
			{
				Rel:  model.RelSelf,
				Type: transport.ActivityJSONContentType,
				Href: actorURI.String(),
			},
		},
	}

	if actor.URL != nil {
		jrd.Links = append(jrd.Links, model.Link{
			Rel:  model.RelProfilePage,
			Href: actor.URL.String(),
		})
	}

	respondWithJSON(w, http.StatusOK, model.ContentType, jrd)
}

// resolveResource returns the handle of the local actor that the WebFinger
// resource refers to, or an empty string if the resource refers to another host
// or to a path that is not the actor route. A malformed resource is an error.
func (f *Federation) resolveResource(rc *RequestContext, resource string) (string, error) {
	if strings.HasPrefix(resource, acctScheme) {
		acct := strings.TrimPrefix(resource, acctScheme)

		sep := strings.LastIndex(acct, "@")
		if sep <= 0 || sep == len(acct)-1 {
			return "", fmt.Errorf("malformed acct resource [%s]", resource)
		}

		handle, host := acct[:sep], acct[sep+1:]

		if host != rc.URL().Host {
			return "", nil
		}

		return handle, nil
	}

	u, err := url.Parse(resource)
	if err != nil || u.Scheme == "" {
		return "", fmt.Errorf("malformed resource [%s]", resource)
	}

	return rc.HandleFromActorURI(u), nil
}
