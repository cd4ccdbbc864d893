/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package nodeinfo contains the NodeInfo 2.x data model served by the
// federation NodeInfo endpoint.
package nodeinfo

import "fmt"

// ActivityPubProtocol is the protocol identifier for ActivityPub in the
// 'protocols' field of a NodeInfo document.
const ActivityPubProtocol = "activitypub"

// Version specifies the version of the NodeInfo data.
type Version = string

const (
	// V2_0 is NodeInfo version 2.0 (http://nodeinfo.diaspora.software/ns/schema/2.0#).
	V2_0 Version = "2.0"

	// V2_1 is NodeInfo version 2.1 (http://nodeinfo.diaspora.software/ns/schema/2.1#).
	V2_1 Version = "2.1"
)

// SchemaIRI returns the schema IRI for the given NodeInfo version. The IRI is
// used as the link relation in the /.well-known/nodeinfo JRD.
func SchemaIRI(version Version) string {
	return "http://nodeinfo.diaspora.software/ns/schema/" + version
}

// ContentType returns the media type for a NodeInfo document of the given version.
func ContentType(version Version) string {
	return fmt.Sprintf(`application/json; profile=%q; charset=utf-8`, SchemaIRI(version)+"#")
}

// NodeInfo contains NodeInfo data.
type NodeInfo struct {
	Version           string                 `json:"version"`
	Software          Software               `json:"software"`
	Protocols         []string               `json:"protocols"`
	Services          Services               `json:"services"`
	OpenRegistrations bool                   `json:"openRegistrations"`
	Usage             Usage                  `json:"usage"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// Software contains the name and version of the server software.
type Software struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Repository string `json:"repository,omitempty"`
}

// Services contains the third-party services this server connects to.
type Services struct {
	Inbound  []string `json:"inbound"`
	Outbound []string `json:"outbound"`
}

// Usage contains usage statistics for this server.
type Usage struct {
	Users         Users `json:"users"`
	LocalPosts    int   `json:"localPosts"`
	LocalComments int   `json:"localComments"`
}

// Users contains statistics about the users of this server.
type Users struct {
	Total          int `json:"total"`
	ActiveMonth    int `json:"activeMonth,omitempty"`
	ActiveHalfyear int `json:"activeHalfyear,omitempty"`
}

// Validate checks the document against the NodeInfo schema requirements before
// it is served: a known version, a software name and version, at least one
// protocol, and non-negative usage counters.
func (n *NodeInfo) Validate() error {
	if n.Version != V2_0 && n.Version != V2_1 {
		return fmt.Errorf("unsupported NodeInfo version [%s]", n.Version)
	}

	if n.Software.Name == "" {
		return fmt.Errorf("software name is required")
	}

	if n.Software.Version == "" {
		return fmt.Errorf("software version is required")
	}

	if n.Software.Repository != "" && n.Version == V2_0 {
		return fmt.Errorf("software repository is not supported in version %s", V2_0)
	}

	if len(n.Protocols) == 0 {
		return fmt.Errorf("at least one protocol is required")
	}

	if n.Usage.Users.Total < 0 || n.Usage.LocalPosts < 0 || n.Usage.LocalComments < 0 {
		return fmt.Errorf("usage counters must not be negative")
	}

	return nil
}
