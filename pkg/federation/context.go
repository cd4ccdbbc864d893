/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	jsonld "github.com/piprate/json-gold/ld"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedway/fedway/internal/pkg/log"
	federrors "github.com/fedway/fedway/pkg/errors"
	"github.com/fedway/fedway/pkg/federation/router"
	"github.com/fedway/fedway/pkg/httpsig"
	"github.com/fedway/fedway/pkg/keyutil"
	"github.com/fedway/fedway/pkg/vocab"
)

const mainKeyFragment = "main-key"

// Context carries the registry, the request origin and opaque user data into
// dispatcher callbacks. It provides reverse-routed URL builders for every
// registered surface.
type Context struct {
	federation *Federation
	origin     *url.URL
	data       interface{}
	docLoader  jsonld.DocumentLoader
}

// NewContext returns a Context for the given base URL. The query and fragment of
// the base URL are discarded; when the registry is configured with TreatHTTPS,
// an http scheme is rewritten to https.
func (f *Federation) NewContext(base *url.URL, data interface{}) *Context {
	origin := &url.URL{Scheme: base.Scheme, Host: base.Host}

	if f.treatHTTPS && origin.Scheme == "http" {
		origin.Scheme = "https"
	}

	return &Context{
		federation: f,
		origin:     origin,
		data:       data,
		docLoader:  f.documentLoader,
	}
}

// Data returns the opaque user data of the context.
func (c *Context) Data() interface{} {
	return c.data
}

// Origin returns the scheme and host against which the context builds URLs.
func (c *Context) Origin() *url.URL {
	return c.origin
}

// DocumentLoader returns the JSON-LD document loader of the context.
func (c *Context) DocumentLoader() jsonld.DocumentLoader {
	return c.docLoader
}

func (c *Context) buildURL(routeName string, values map[string]string, notRegisteredMsg string) (*url.URL, error) {
	if !c.federation.router.Has(routeName) {
		return nil, router.NewError(notRegisteredMsg)
	}

	path, ok := c.federation.router.Build(routeName, values)
	if !ok {
		return nil, router.NewErrorf("failed to build a path for route [%s]", routeName)
	}

	u, err := url.Parse(c.origin.String() + path)
	if err != nil {
		return nil, router.NewErrorf("invalid path built for route [%s]: %s", routeName, err)
	}

	return u, nil
}

// NodeInfoURI returns the URI of the NodeInfo document.
func (c *Context) NodeInfoURI() (*url.URL, error) {
	return c.buildURL(routeNodeInfo, nil, "No NodeInfo dispatcher registered.")
}

// ActorURI returns the URI of the actor with the given handle.
func (c *Context) ActorURI(handle string) (*url.URL, error) {
	return c.buildURL(routeActor, map[string]string{handleVariable: handle}, "No actor dispatcher registered.")
}

// ObjectURI returns the URI of the object of the given type identified by the
// given template variable values.
func (c *Context) ObjectURI(objectType vocab.Type, values map[string]string) (*url.URL, error) {
	return c.buildURL(objectRouteName(objectType), values,
		fmt.Sprintf("No object dispatcher registered for %s.", objectType))
}

// OutboxURI returns the URI of the outbox of the actor with the given handle.
func (c *Context) OutboxURI(handle string) (*url.URL, error) {
	return c.buildURL(routeOutbox, map[string]string{handleVariable: handle}, "No outbox dispatcher registered.")
}

// FollowingURI returns the URI of the following collection of the actor with the given handle.
func (c *Context) FollowingURI(handle string) (*url.URL, error) {
	return c.buildURL(routeFollowing, map[string]string{handleVariable: handle}, "No following dispatcher registered.")
}

// FollowersURI returns the URI of the followers collection of the actor with the given handle.
func (c *Context) FollowersURI(handle string) (*url.URL, error) {
	return c.buildURL(routeFollowers, map[string]string{handleVariable: handle}, "No followers dispatcher registered.")
}

// InboxURI returns the URI of the inbox of the actor with the given handle. With
// an empty handle it returns the URI of the shared inbox.
func (c *Context) InboxURI(handle string) (*url.URL, error) {
	if handle == "" {
		return c.buildURL(routeSharedInbox, nil, "No shared inbox path registered.")
	}

	return c.buildURL(routeInbox, map[string]string{handleVariable: handle}, "No inbox path registered.")
}

// HandleFromActorURI returns the handle of the actor whose URI is the given URL,
// or an empty string if the URL is not a local actor URI.
func (c *Context) HandleFromActorURI(u *url.URL) string {
	if u == nil {
		return ""
	}

	target := *u

	if c.federation.treatHTTPS && target.Scheme == "http" {
		target.Scheme = "https"
	}

	if target.Scheme != c.origin.Scheme || target.Host != c.origin.Host {
		return ""
	}

	match := c.federation.router.Route(target.Path)
	if match == nil || match.Name != routeActor {
		return ""
	}

	return match.Values[handleVariable]
}

// ActorKey returns the public key of the actor with the given handle as a
// CryptographicKey whose ID is the actor URI with a #main-key fragment. Nil is
// returned when no key-pair dispatcher is registered or the actor has no key.
func (c *Context) ActorKey(handle string) (*vocab.PublicKeyType, error) {
	reg := c.federation.actor
	if reg == nil || reg.keyPair == nil {
		return nil, nil //nolint:nilnil
	}

	keyPair, err := reg.keyPair(c, handle)
	if err != nil {
		return nil, fmt.Errorf("key pair for actor [%s]: %w", handle, err)
	}

	if keyPair == nil {
		return nil, nil //nolint:nilnil
	}

	actorURI, err := c.ActorURI(handle)
	if err != nil {
		return nil, err
	}

	pubKeyPem, err := keyutil.EncodePublicKeyPEM(keyPair.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encode public key for actor [%s]: %w", handle, err)
	}

	keyID := *actorURI
	keyID.Fragment = mainKeyFragment

	return vocab.NewPublicKey(&keyID, actorURI, pubKeyPem), nil
}

// ResolveRemoteActor resolves the actor with the given handle at a remote
// domain: the actor IRI is discovered from the domain's WebFinger endpoint and
// the actor document is dereferenced with the context's document loader.
// Resolved JRDs are cached by the underlying WebFinger client.
func (c *Context) ResolveRemoteActor(domainWithScheme, handle string) (*vocab.ActorType, error) {
	actorIRI, err := c.federation.webFinger.ResolveActorIRI(domainWithScheme, handle)
	if err != nil {
		return nil, fmt.Errorf("resolve actor [%s] at domain [%s]: %w", handle, domainWithScheme, err)
	}

	return resolveActor(c.docLoader, actorIRI.String())
}

// AuthenticatedDocumentLoader returns a document loader whose requests are
// signed with the given key.
func (c *Context) AuthenticatedDocumentLoader(keyID *url.URL, privateKey crypto.PrivateKey) jsonld.DocumentLoader {
	return c.federation.loaderFactory.Authenticated(keyID, privateKey)
}

// ActorDocumentLoader returns a document loader whose requests are signed with
// the main key of the actor with the given handle. A key-pair dispatcher must be
// registered and the actor must have a key pair.
func (c *Context) ActorDocumentLoader(handle string) (jsonld.DocumentLoader, error) {
	reg := c.federation.actor
	if reg == nil || reg.keyPair == nil {
		return nil, errors.New("no key-pair dispatcher registered")
	}

	keyPair, err := reg.keyPair(c, handle)
	if err != nil {
		return nil, fmt.Errorf("key pair for actor [%s]: %w", handle, err)
	}

	if keyPair == nil {
		return nil, fmt.Errorf("actor [%s] has no key pair", handle)
	}

	actorURI, err := c.ActorURI(handle)
	if err != nil {
		return nil, err
	}

	keyID := *actorURI
	keyID.Fragment = mainKeyFragment

	return c.AuthenticatedDocumentLoader(&keyID, keyPair.PrivateKey), nil
}

// withDocumentLoader returns a copy of the context with the given document loader.
func (c *Context) withDocumentLoader(loader jsonld.DocumentLoader) *Context {
	ctx := *c
	ctx.docLoader = loader

	return &ctx
}

const (
	keyStateUnresolved = iota
	keyStateNone
	keyStateResolved
)

// signatureCell memoizes the result of HTTP-signature verification for one
// request. It is shared by all rewrapped copies of the RequestContext so that
// verification runs at most once per request.
type signatureCell struct {
	keyState   int
	key        *vocab.PublicKeyType
	ownerState int
	owner      *vocab.ActorType
}

// RequestContext extends Context with the inbound request and lazily verified
// signature information.
type RequestContext struct {
	*Context

	request *http.Request
	url     *url.URL
	sig     *signatureCell

	inGetActor  bool
	inGetObject bool
}

func (f *Federation) newRequestContext(r *http.Request, data interface{}) *RequestContext {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	u := &url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}

	return &RequestContext{
		Context: f.NewContext(u, data),
		request: r,
		url:     u,
		sig:     &signatureCell{},
	}
}

// Request returns the inbound HTTP request.
func (rc *RequestContext) Request() *http.Request {
	return rc.request
}

// URL returns the parsed URL of the inbound request.
func (rc *RequestContext) URL() *url.URL {
	return rc.url
}

// rewrap returns a shallow copy of the request context. The signature cell is
// shared, so memoized verification results survive the copy.
func (rc *RequestContext) rewrap() *RequestContext {
	ctx := *rc

	return &ctx
}

// GetSignedKey verifies the HTTP signature on the request and returns the public
// key that produced it, or nil if the request is unsigned or the signature is
// invalid. The result is memoized: repeated calls return the same value without
// verifying again.
func (rc *RequestContext) GetSignedKey() (*vocab.PublicKeyType, error) {
	if rc.sig.keyState != keyStateUnresolved {
		return rc.sig.key, nil
	}

	verifier := httpsig.NewVerifier(&documentKeyResolver{loader: rc.DocumentLoader()})

	key, err := verifier.VerifyRequest(rc.request)
	if err != nil {
		return nil, fmt.Errorf("verify request signature: %w", err)
	}

	if key == nil {
		rc.sig.keyState = keyStateNone
	} else {
		rc.sig.keyState = keyStateResolved
		rc.sig.key = key
	}

	return key, nil
}

// GetSignedKeyOwner returns the actor that owns the request's signing key, or
// nil if the request is unsigned or the key has no resolvable owner. The result
// is memoized like GetSignedKey.
func (rc *RequestContext) GetSignedKeyOwner() (*vocab.ActorType, error) {
	if rc.sig.ownerState != keyStateUnresolved {
		return rc.sig.owner, nil
	}

	key, err := rc.GetSignedKey()
	if err != nil {
		return nil, err
	}

	if key == nil || key.Owner == "" {
		rc.sig.ownerState = keyStateNone

		return nil, nil //nolint:nilnil
	}

	owner, err := resolveActor(rc.DocumentLoader(), key.Owner)
	if err != nil {
		if federrors.IsTransient(err) {
			return nil, fmt.Errorf("resolve key owner [%s]: %w", key.Owner, err)
		}

		logger.Debug("Could not resolve the owner of the signing key", logfields.WithKeyID(key.ID),
			log.WithError(err))

		rc.sig.ownerState = keyStateNone

		return nil, nil //nolint:nilnil
	}

	rc.sig.ownerState = keyStateResolved
	rc.sig.owner = owner

	return owner, nil
}

// GetActor invokes the actor dispatcher for the given handle, passing the
// actor's public key. A re-entrant call from within the dispatcher logs a
// recursion warning but still proceeds.
func (rc *RequestContext) GetActor(handle string) (*vocab.ActorType, error) {
	reg := rc.federation.actor
	if reg == nil {
		return nil, router.NewError("No actor dispatcher registered.")
	}

	if rc.inGetActor {
		logger.Warn("Re-entrant GetActor call. The actor dispatcher is calling itself.",
			logfields.WithHandle(handle))
	}

	key, err := rc.ActorKey(handle)
	if err != nil {
		return nil, err
	}

	wrapped := rc.rewrap()
	wrapped.inGetActor = true

	return reg.dispatch(wrapped, handle, key)
}

// GetObject invokes the object dispatcher for the given type, validating that
// the values contain every template variable of the object's route. A re-entrant
// call from within the dispatcher logs a recursion warning but still proceeds.
func (rc *RequestContext) GetObject(objectType vocab.Type, values map[string]string) (vocab.Document, error) {
	reg, exists := rc.federation.objects[objectType]
	if !exists {
		return nil, router.NewErrorf("No object dispatcher registered for %s.", objectType)
	}

	for _, parameter := range reg.parameters {
		if _, ok := values[parameter]; !ok {
			return nil, router.NewErrorf("missing value for template variable [%s] of %s", parameter, objectType)
		}
	}

	if rc.inGetObject {
		logger.Warn("Re-entrant GetObject call. The object dispatcher is calling itself.",
			logfields.WithActivityType(string(objectType)))
	}

	wrapped := rc.rewrap()
	wrapped.inGetObject = true

	return reg.dispatch(wrapped, values)
}

// documentKeyResolver resolves a public key by dereferencing its IRI with a
// JSON-LD document loader. The IRI may point at the key itself or at an actor
// document embedding the key under 'publicKey'.
type documentKeyResolver struct {
	loader jsonld.DocumentLoader
}

func (r *documentKeyResolver) ResolveKey(_ context.Context, keyIRI *url.URL) (*vocab.PublicKeyType, error) {
	doc, err := r.loader.LoadDocument(keyIRI.String())
	if err != nil {
		return nil, fmt.Errorf("load key document [%s]: %w", keyIRI, err)
	}

	docMap, ok := doc.Document.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("key document [%s] is not a JSON object", keyIRI)
	}

	if embedded, ok := docMap["publicKey"].(map[string]interface{}); ok {
		docMap = embedded
	}

	key := &vocab.PublicKeyType{}

	if err := vocab.UnmarshalFromDoc(vocab.Document(docMap), key); err != nil {
		return nil, fmt.Errorf("unmarshal key document [%s]: %w", keyIRI, err)
	}

	if key.PublicKeyPem == "" {
		return nil, fmt.Errorf("key document [%s] has no publicKeyPem", keyIRI)
	}

	if key.ID == "" {
		key.ID = keyIRI.String()
	}

	return key, nil
}

// resolveActor dereferences the given IRI and parses the document as an actor.
func resolveActor(loader jsonld.DocumentLoader, iri string) (*vocab.ActorType, error) {
	doc, err := loader.LoadDocument(iri)
	if err != nil {
		return nil, fmt.Errorf("load actor document [%s]: %w", iri, err)
	}

	docMap, ok := doc.Document.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("actor document [%s] is not a JSON object", iri)
	}

	actor := &vocab.ActorType{}

	if err := vocab.UnmarshalFromDoc(vocab.Document(docMap), actor); err != nil {
		return nil, fmt.Errorf("unmarshal actor document [%s]: %w", iri, err)
	}

	if actor.ID == nil {
		return nil, fmt.Errorf("actor document [%s] has no 'id'", iri)
	}

	return actor, nil
}
