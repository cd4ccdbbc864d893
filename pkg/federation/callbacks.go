/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"crypto/rsa"

	"github.com/fedway/fedway/pkg/nodeinfo"
	"github.com/fedway/fedway/pkg/vocab"
)

// KeyPair holds an actor's RSA key pair.
type KeyPair struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
}

// ActorDispatcher returns the actor for the given handle, or nil if the actor
// does not exist. The key is the actor's public key as returned by the key-pair
// dispatcher, or nil if no key-pair dispatcher is registered.
type ActorDispatcher func(ctx *RequestContext, handle string, key *vocab.PublicKeyType) (*vocab.ActorType, error)

// KeyPairDispatcher returns the key pair for the given handle, or nil if the
// actor has no key pair.
type KeyPairDispatcher func(ctx *Context, handle string) (*KeyPair, error)

// Authorizer decides whether the request may access the given handle's resource.
// The signed key and its owner are the result of HTTP-signature verification on
// the request; either may be nil when the request is unsigned.
type Authorizer func(ctx *RequestContext, handle string, signedKey *vocab.PublicKeyType,
	signedKeyOwner *vocab.ActorType) (bool, error)

// ObjectDispatcher returns the JSON-LD document for the object identified by the
// given template variable values, or nil if the object does not exist.
type ObjectDispatcher func(ctx *RequestContext, values map[string]string) (vocab.Document, error)

// ObjectAuthorizer decides whether the request may access the object identified
// by the given template variable values.
type ObjectAuthorizer func(ctx *RequestContext, values map[string]string, signedKey *vocab.PublicKeyType,
	signedKeyOwner *vocab.ActorType) (bool, error)

// CollectionPage is one page of a collection, as returned by a CollectionDispatcher.
type CollectionPage struct {
	// Items contains the items of the page. Each item must marshal to JSON.
	Items []interface{}

	// NextCursor is the cursor of the next page, or nil if this is the last page.
	NextCursor *string
}

// CollectionDispatcher returns the page of the handle's collection identified by
// the given cursor, or nil if the collection does not exist.
type CollectionDispatcher func(ctx *RequestContext, handle, cursor string) (*CollectionPage, error)

// CollectionCounter returns the total number of items in the handle's collection,
// or nil if the count is unknown.
type CollectionCounter func(ctx *RequestContext, handle string) (*int, error)

// CollectionCursor returns a cursor into the handle's collection (the first or
// last page), or nil if the collection has no such page.
type CollectionCursor func(ctx *RequestContext, handle string) (*string, error)

// InboxListener handles an activity that was posted to a local inbox. The handle
// is empty when the activity arrived at the shared inbox.
type InboxListener func(ctx *RequestContext, activity *vocab.ActivityType) error

// InboxErrorHandler is invoked when an inbound activity cannot be parsed (with a
// nil activity in the context) or when an inbox listener returns an error.
type InboxErrorHandler func(ctx *RequestContext, err error)

// NodeInfoDispatcher returns the NodeInfo document for this server.
type NodeInfoDispatcher func(ctx *RequestContext) (*nodeinfo.NodeInfo, error)

// OutboxErrorHandler is invoked for each failed outbound delivery. The activity
// is nil when the queued message could not be deserialized.
type OutboxErrorHandler func(err error, activity *vocab.ActivityType)
