/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"net/url"
)

// PublicKeyType defines a public key of an actor.
type PublicKeyType struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// NewPublicKey returns a new public key with the given ID, owner and PEM-encoded key.
func NewPublicKey(id, owner *url.URL, publicKeyPem string) *PublicKeyType {
	return &PublicKeyType{
		ID:           id.String(),
		Owner:        owner.String(),
		PublicKeyPem: publicKeyPem,
	}
}

// EndpointsType defines additional endpoints of an actor.
type EndpointsType struct {
	SharedInbox *URLProperty `json:"sharedInbox,omitempty"`
}

// ActorType defines an ActivityPub actor.
type ActorType struct {
	Context           interface{}    `json:"@context,omitempty"`
	ID                *URLProperty   `json:"id"`
	Type              *TypeProperty  `json:"type,omitempty"`
	PreferredUsername string         `json:"preferredUsername,omitempty"`
	Name              string         `json:"name,omitempty"`
	Inbox             *URLProperty   `json:"inbox,omitempty"`
	Outbox            *URLProperty   `json:"outbox,omitempty"`
	Following         *URLProperty   `json:"following,omitempty"`
	Followers         *URLProperty   `json:"followers,omitempty"`
	URL               *URLProperty   `json:"url,omitempty"`
	Endpoints         *EndpointsType `json:"endpoints,omitempty"`
	PublicKey         *PublicKeyType `json:"publicKey,omitempty"`
}

// InboxID returns the IRI of the actor's personal inbox, or nil if the actor has none.
func (a *ActorType) InboxID() *url.URL {
	if a == nil {
		return nil
	}

	return a.Inbox.URL()
}

// SharedInboxID returns the IRI of the actor's shared inbox, or nil if the actor has none.
func (a *ActorType) SharedInboxID() *url.URL {
	if a == nil || a.Endpoints == nil {
		return nil
	}

	return a.Endpoints.SharedInbox.URL()
}
