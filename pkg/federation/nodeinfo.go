/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"fmt"
	"net/http"

	"github.com/fedway/fedway/pkg/nodeinfo"
	"github.com/fedway/fedway/pkg/webfinger/model"
)

// handleNodeInfoJRD serves /.well-known/nodeinfo: a JRD whose single link points
// at the registered NodeInfo path under the schema IRI of the document's version.
func (f *Federation) handleNodeInfoJRD(w http.ResponseWriter, r *http.Request, rc *RequestContext,
	opts *FetchOptions) {
	reg := f.nodeInfo
	if reg == nil {
		opts.notFound()(w, r)

		return
	}

	doc, err := reg.dispatch(rc)
	if err != nil {
		serverError(w, r, err)

		return
	}

	nodeInfoURI, err := rc.NodeInfoURI()
	if err != nil {
		serverError(w, r, err)

		return
	}

	jrd := &model.JRD{
		Links: []model.Link{
			{
				Rel:  nodeinfo.SchemaIRI(doc.Version),
				Href: nodeInfoURI.String(),
			},
		},
	}

	respondWithJSON(w, http.StatusOK, model.ContentType, jrd)
}

// handleNodeInfo serves the dispatcher's NodeInfo document after validating it
// against the schema requirements.
func (f *Federation) handleNodeInfo(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	reg := f.nodeInfo
	if reg == nil {
		respondWithError(w, http.StatusNotFound)

		return
	}

	doc, err := reg.dispatch(rc)
	if err != nil {
		serverError(w, r, err)

		return
	}

	if err := doc.Validate(); err != nil {
		serverError(w, r, fmt.Errorf("invalid NodeInfo document: %w", err))

		return
	}

	respondWithJSON(w, http.StatusOK, nodeinfo.ContentType(doc.Version), doc)
}
