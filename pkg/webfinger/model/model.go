/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package model contains the JSON Resource Descriptor (JRD) model used by the
// WebFinger and NodeInfo discovery endpoints.
package model

import "errors"

// ErrResourceNotFound indicates that the server does not have a JRD for the
// requested resource.
var ErrResourceNotFound = errors.New("resource not found")

// ContentType is the media type of a JRD response.
const ContentType = "application/jrd+json"

// RelSelf is the link relation for an actor's canonical ActivityStreams document.
const RelSelf = "self"

// RelProfilePage is the link relation for an actor's human-readable profile page.
const RelProfilePage = "http://webfinger.net/rel/profile-page"

// JRD is a JSON Resource Descriptor (RFC 7033).
type JRD struct {
	Subject    string                 `json:"subject,omitempty"`
	Aliases    []string               `json:"aliases,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Links      []Link                 `json:"links,omitempty"`
}

// Link is a link in a JRD.
type Link struct {
	Rel  string `json:"rel,omitempty"`
	Type string `json:"type,omitempty"`
	Href string `json:"href,omitempty"`
}
