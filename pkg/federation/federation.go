/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package federation implements the federation middleware core: a registry that
// turns an HTTP server into an ActivityPub peer. Inbound requests are routed to
// user-registered dispatchers for the WebFinger, NodeInfo, actor, object,
// collection and inbox surfaces; outbound activities are signed and delivered
// through a retrying queue.
package federation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	jsonld "github.com/piprate/json-gold/ld"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedway/fedway/internal/pkg/log"
	"github.com/fedway/fedway/pkg/federation/router"
	docloader "github.com/fedway/fedway/pkg/ld"
	"github.com/fedway/fedway/pkg/observability/metrics"
	queuespi "github.com/fedway/fedway/pkg/queue/spi"
	storespi "github.com/fedway/fedway/pkg/store/spi"
	"github.com/fedway/fedway/pkg/vocab"
	wfclient "github.com/fedway/fedway/pkg/webfinger/client"
)

var logger = log.New("federation")

// Route names. Object routes are named "object:" followed by the type IRI.
const (
	routeWebFinger   = "webfinger"
	routeNodeInfoJRD = "nodeInfoJrd"
	routeNodeInfo    = "nodeInfo"
	routeActor       = "actor"
	routeOutbox      = "outbox"
	routeFollowing   = "following"
	routeFollowers   = "followers"
	routeInbox       = "inbox"
	routeSharedInbox = "sharedInbox"

	objectRoutePrefix = "object:"
)

const (
	webFingerPath         = "/.well-known/webfinger"
	nodeInfoDiscoveryPath = "/.well-known/nodeinfo"

	handleVariable = "handle"

	// idempotenceTTL is how long a processed activity ID is remembered, so that a
	// sender retrying a delivery does not trigger the inbox listener twice.
	idempotenceTTL = 4 * 24 * time.Hour
)

// DefaultBackoffSchedule is the delay before each outbound delivery retry.
//
//nolint:gochecknoglobals
var DefaultBackoffSchedule = []time.Duration{
	3 * time.Second,
	15 * time.Second,
	time.Minute,
	15 * time.Minute,
	time.Hour,
}

// ExponentialBackoffSchedule returns a schedule of n retry delays that grow
// exponentially from 3s, capped at one hour.
func ExponentialBackoffSchedule(n int) []time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 3 * time.Second
	b.RandomizationFactor = 0
	b.Multiplier = 5
	b.MaxInterval = time.Hour
	b.MaxElapsedTime = 0

	schedule := make([]time.Duration, n)

	for i := range schedule {
		schedule[i] = b.NextBackOff()
	}

	return schedule
}

// KVPrefixes holds the key prefixes under which the registry stores its state.
type KVPrefixes struct {
	// ActivityIdempotence is the prefix for processed inbound activity IDs.
	ActivityIdempotence storespi.Key

	// RemoteDocument is the prefix for cached remote JSON-LD documents.
	RemoteDocument storespi.Key
}

// DefaultKVPrefixes returns the default key prefixes.
func DefaultKVPrefixes() *KVPrefixes {
	return &KVPrefixes{
		ActivityIdempotence: storespi.NewKey("_fedway", "activityIdempotence"),
		RemoteDocument:      storespi.NewKey("_fedway", "remoteDocument"),
	}
}

// Config holds the configuration for a Federation.
type Config struct {
	// KVStore is the key-value store for idempotence keys and cached documents. Required.
	KVStore storespi.Store

	// KVPrefixes overrides the default key prefixes.
	KVPrefixes *KVPrefixes

	// Queue is the outbound delivery queue. If nil, all sends are immediate.
	Queue queuespi.Queue

	// DocumentLoader overrides the default JSON-LD document loader.
	DocumentLoader jsonld.DocumentLoader

	// LoaderFactory overrides the factory for authenticated document loaders.
	LoaderFactory *docloader.LoaderFactory

	// HTTPClient is the client used for outbound deliveries and document fetches.
	HTTPClient *http.Client

	// TreatHTTPS causes HTTP request URLs to be rewritten to HTTPS when building
	// contexts, for servers running behind a TLS-terminating proxy.
	TreatHTTPS bool

	// OnOutboxError is invoked for each failed outbound delivery.
	OnOutboxError OutboxErrorHandler

	// BackoffSchedule is the delay before each delivery retry. A delivery is
	// attempted at most 1+len(BackoffSchedule) times.
	BackoffSchedule []time.Duration

	// Metrics records delivery and inbox metrics.
	Metrics metrics.Metrics
}

type actorRegistration struct {
	dispatch  ActorDispatcher
	keyPair   KeyPairDispatcher
	authorize Authorizer
}

type objectRegistration struct {
	routeName  string
	parameters []string
	dispatch   ObjectDispatcher
	authorize  ObjectAuthorizer
}

type collectionRegistration struct {
	dispatch    CollectionDispatcher
	counter     CollectionCounter
	firstCursor CollectionCursor
	lastCursor  CollectionCursor
	authorize   Authorizer
}

type inboxRegistration struct {
	listeners map[vocab.Type]InboxListener
	onError   InboxErrorHandler
	hasShared bool
}

type nodeInfoRegistration struct {
	dispatch NodeInfoDispatcher
}

// Federation is the registry at the centre of the middleware: it holds the
// router and the per-surface dispatchers, owns the KV store and the outbound
// queue, and exposes Fetch for inbound dispatch and SendActivity (through
// Context) for outbound delivery.
type Federation struct {
	router          *router.Router
	store           storespi.Store
	prefixes        *KVPrefixes
	queue           queuespi.Queue
	loaderFactory   *docloader.LoaderFactory
	documentLoader  jsonld.DocumentLoader
	client          *http.Client
	webFinger       *wfclient.Client
	treatHTTPS      bool
	onOutboxError   OutboxErrorHandler
	backoffSchedule []time.Duration
	metrics         metrics.Metrics

	actor       *actorRegistration
	objects     map[vocab.Type]*objectRegistration
	collections map[string]*collectionRegistration
	inbox       *inboxRegistration
	nodeInfo    *nodeInfoRegistration

	listenOnce sync.Once
	listenErr  error
}

// New returns a new federation registry.
func New(cfg *Config) (*Federation, error) {
	if cfg == nil || cfg.KVStore == nil {
		return nil, errors.New("a KV store is required")
	}

	prefixes := cfg.KVPrefixes
	if prefixes == nil {
		prefixes = DefaultKVPrefixes()
	}

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	loaderFactory := cfg.LoaderFactory
	if loaderFactory == nil {
		loaderFactory = docloader.NewLoaderFactory(client, &docloader.Config{
			Store:  cfg.KVStore,
			Prefix: prefixes.RemoteDocument,
		})
	}

	documentLoader := cfg.DocumentLoader
	if documentLoader == nil {
		documentLoader = loaderFactory.Default()
	}

	backoffSchedule := cfg.BackoffSchedule
	if backoffSchedule == nil {
		backoffSchedule = DefaultBackoffSchedule
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.NoOp()
	}

	f := &Federation{
		router:          router.New(),
		store:           cfg.KVStore,
		prefixes:        prefixes,
		queue:           cfg.Queue,
		loaderFactory:   loaderFactory,
		documentLoader:  documentLoader,
		client:          client,
		webFinger:       wfclient.New(wfclient.WithHTTPClient(client)),
		treatHTTPS:      cfg.TreatHTTPS,
		onOutboxError:   cfg.OnOutboxError,
		backoffSchedule: backoffSchedule,
		metrics:         m,
		objects:         make(map[vocab.Type]*objectRegistration),
		collections:     make(map[string]*collectionRegistration),
	}

	if _, err := f.router.Add(webFingerPath, routeWebFinger); err != nil {
		return nil, fmt.Errorf("register WebFinger route: %w", err)
	}

	if _, err := f.router.Add(nodeInfoDiscoveryPath, routeNodeInfoJRD); err != nil {
		return nil, fmt.Errorf("register NodeInfo discovery route: %w", err)
	}

	return f, nil
}

// SetNodeInfoDispatcher registers the NodeInfo dispatcher at the given path.
// The path must have no template variables.
func (f *Federation) SetNodeInfoDispatcher(path string, dispatch NodeInfoDispatcher) error {
	if f.nodeInfo != nil {
		return router.NewError("NodeInfo dispatcher already set.")
	}

	variables, err := f.router.Add(path, routeNodeInfo)
	if err != nil {
		return err
	}

	if len(variables) > 0 {
		return router.NewErrorf("path for the NodeInfo dispatcher must not have variables: %s", path)
	}

	f.nodeInfo = &nodeInfoRegistration{dispatch: dispatch}

	return nil
}

// ActorCallbackSetters chains the optional callbacks of the actor dispatcher.
type ActorCallbackSetters struct {
	reg *actorRegistration
}

// SetKeyPairDispatcher sets the dispatcher that returns an actor's key pair.
func (s *ActorCallbackSetters) SetKeyPairDispatcher(dispatch KeyPairDispatcher) *ActorCallbackSetters {
	s.reg.keyPair = dispatch

	return s
}

// Authorize sets the predicate that gates access to the actor document.
func (s *ActorCallbackSetters) Authorize(authorize Authorizer) *ActorCallbackSetters {
	s.reg.authorize = authorize

	return s
}

// SetActorDispatcher registers the actor dispatcher at the given path. The path
// must have exactly the {handle} variable.
func (f *Federation) SetActorDispatcher(path string, dispatch ActorDispatcher) (*ActorCallbackSetters, error) {
	if f.actor != nil {
		return nil, router.NewError("Actor dispatcher already set.")
	}

	variables, err := f.router.Add(path, routeActor)
	if err != nil {
		return nil, err
	}

	if len(variables) != 1 || variables[0] != handleVariable {
		return nil, router.NewErrorf("path for the actor dispatcher must have exactly the {handle} variable: %s", path)
	}

	f.actor = &actorRegistration{dispatch: dispatch}

	return &ActorCallbackSetters{reg: f.actor}, nil
}

// ObjectCallbackSetters chains the optional callbacks of an object dispatcher.
type ObjectCallbackSetters struct {
	reg *objectRegistration
}

// Authorize sets the predicate that gates access to the object document.
func (s *ObjectCallbackSetters) Authorize(authorize ObjectAuthorizer) *ObjectCallbackSetters {
	s.reg.authorize = authorize

	return s
}

// SetObjectDispatcher registers a dispatcher for objects of the given type at the
// given path. The path must have at least one template variable.
func (f *Federation) SetObjectDispatcher(objectType vocab.Type, path string,
	dispatch ObjectDispatcher) (*ObjectCallbackSetters, error) {
	if _, exists := f.objects[objectType]; exists {
		return nil, router.NewErrorf("Object dispatcher for %s already set.", objectType)
	}

	name := objectRouteName(objectType)

	variables, err := f.router.Add(path, name)
	if err != nil {
		return nil, err
	}

	if len(variables) == 0 {
		return nil, router.NewErrorf("path for the %s object dispatcher must have at least one variable: %s",
			objectType, path)
	}

	reg := &objectRegistration{
		routeName:  name,
		parameters: variables,
		dispatch:   dispatch,
	}

	f.objects[objectType] = reg

	return &ObjectCallbackSetters{reg: reg}, nil
}

// CollectionCallbackSetters chains the optional callbacks of a collection dispatcher.
type CollectionCallbackSetters struct {
	reg *collectionRegistration
}

// SetCounter sets the callback that returns the collection's total item count.
func (s *CollectionCallbackSetters) SetCounter(counter CollectionCounter) *CollectionCallbackSetters {
	s.reg.counter = counter

	return s
}

// SetFirstCursor sets the callback that returns the cursor of the first page.
func (s *CollectionCallbackSetters) SetFirstCursor(cursor CollectionCursor) *CollectionCallbackSetters {
	s.reg.firstCursor = cursor

	return s
}

// SetLastCursor sets the callback that returns the cursor of the last page.
func (s *CollectionCallbackSetters) SetLastCursor(cursor CollectionCursor) *CollectionCallbackSetters {
	s.reg.lastCursor = cursor

	return s
}

// Authorize sets the predicate that gates access to the collection.
func (s *CollectionCallbackSetters) Authorize(authorize Authorizer) *CollectionCallbackSetters {
	s.reg.authorize = authorize

	return s
}

// SetOutboxDispatcher registers the outbox collection dispatcher at the given
// path. The path must have exactly the {handle} variable.
func (f *Federation) SetOutboxDispatcher(path string, dispatch CollectionDispatcher) (*CollectionCallbackSetters, error) {
	return f.setCollectionDispatcher(routeOutbox, path, dispatch)
}

// SetFollowingDispatcher registers the following collection dispatcher at the
// given path. The path must have exactly the {handle} variable.
func (f *Federation) SetFollowingDispatcher(path string, dispatch CollectionDispatcher) (*CollectionCallbackSetters, error) {
	return f.setCollectionDispatcher(routeFollowing, path, dispatch)
}

// SetFollowersDispatcher registers the followers collection dispatcher at the
// given path. The path must have exactly the {handle} variable.
func (f *Federation) SetFollowersDispatcher(path string, dispatch CollectionDispatcher) (*CollectionCallbackSetters, error) {
	return f.setCollectionDispatcher(routeFollowers, path, dispatch)
}

func (f *Federation) setCollectionDispatcher(name, path string,
	dispatch CollectionDispatcher) (*CollectionCallbackSetters, error) {
	if _, exists := f.collections[name]; exists {
		return nil, router.NewErrorf("Dispatcher for the %s collection already set.", name)
	}

	variables, err := f.router.Add(path, name)
	if err != nil {
		return nil, err
	}

	if len(variables) != 1 || variables[0] != handleVariable {
		return nil, router.NewErrorf("path for the %s dispatcher must have exactly the {handle} variable: %s", name, path)
	}

	reg := &collectionRegistration{dispatch: dispatch}

	f.collections[name] = reg

	return &CollectionCallbackSetters{reg: reg}, nil
}

// InboxListenerSetter registers listeners for inbound activities.
type InboxListenerSetter struct {
	reg *inboxRegistration
}

// On registers a listener for activities of the given type. Registering the same
// type twice is an error.
func (s *InboxListenerSetter) On(activityType vocab.Type, listener InboxListener) error {
	if _, exists := s.reg.listeners[activityType]; exists {
		return router.NewErrorf("Inbox listener for %s already set.", activityType)
	}

	s.reg.listeners[activityType] = listener

	return nil
}

// OnError sets the handler invoked when an inbound activity cannot be parsed or
// a listener returns an error. It replaces any previously set handler.
func (s *InboxListenerSetter) OnError(handler InboxErrorHandler) *InboxListenerSetter {
	s.reg.onError = handler

	return s
}

// SetInboxListeners registers the personal inbox at inboxPath, which must have
// exactly the {handle} variable, and, when sharedInboxPath is non-empty, the
// shared inbox, whose path must have no variables.
func (f *Federation) SetInboxListeners(inboxPath, sharedInboxPath string) (*InboxListenerSetter, error) {
	if f.inbox != nil {
		return nil, router.NewError("Inbox listeners already set.")
	}

	variables, err := f.router.Add(inboxPath, routeInbox)
	if err != nil {
		return nil, err
	}

	if len(variables) != 1 || variables[0] != handleVariable {
		return nil, router.NewErrorf("path for the inbox must have exactly the {handle} variable: %s", inboxPath)
	}

	reg := &inboxRegistration{listeners: make(map[vocab.Type]InboxListener)}

	if sharedInboxPath != "" {
		sharedVariables, err := f.router.Add(sharedInboxPath, routeSharedInbox)
		if err != nil {
			return nil, err
		}

		if len(sharedVariables) > 0 {
			return nil, router.NewErrorf("path for the shared inbox must not have variables: %s", sharedInboxPath)
		}

		reg.hasShared = true
	}

	f.inbox = reg

	return &InboxListenerSetter{reg: reg}, nil
}

func objectRouteName(objectType vocab.Type) string {
	return objectRoutePrefix + objectType.IRI()
}

// FetchOptions holds the per-request options of Fetch.
type FetchOptions struct {
	// ContextData is the opaque user data carried by the request's Context.
	ContextData interface{}

	// OnNotFound handles requests that match no registered route. Defaults to a
	// plain-text 404.
	OnNotFound http.HandlerFunc

	// OnNotAcceptable handles requests whose Accept header excludes every
	// ActivityStreams media type. Defaults to a plain-text 406 with
	// 'Vary: Accept, Signature'.
	OnNotAcceptable http.HandlerFunc

	// OnUnauthorized handles requests that fail signature verification or an
	// authorize predicate. Defaults to a plain-text 401 with
	// 'Vary: Accept, Signature'.
	OnUnauthorized http.HandlerFunc
}

func (o *FetchOptions) notFound() http.HandlerFunc {
	if o.OnNotFound != nil {
		return o.OnNotFound
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	}
}

func (o *FetchOptions) notAcceptable() http.HandlerFunc {
	if o.OnNotAcceptable != nil {
		return o.OnNotAcceptable
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Vary", "Accept, Signature")
		http.Error(w, "Not Acceptable", http.StatusNotAcceptable)
	}
}

func (o *FetchOptions) unauthorized() http.HandlerFunc {
	if o.OnUnauthorized != nil {
		return o.OnUnauthorized
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Vary", "Accept, Signature")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
}

// Fetch routes the inbound request to the per-surface handler for its path and
// writes the response. Requests that match no route are handed to OnNotFound.
func (f *Federation) Fetch(w http.ResponseWriter, r *http.Request, opts *FetchOptions) {
	if opts == nil {
		opts = &FetchOptions{}
	}

	match := f.router.Route(r.URL.Path)
	if match == nil {
		opts.notFound()(w, r)

		return
	}

	logger.Debug("Routing request", logfields.WithPath(r.URL.Path), logfields.WithRouteName(match.Name))

	rc := f.newRequestContext(r, opts.ContextData)

	switch {
	case match.Name == routeWebFinger:
		f.handleWebFinger(w, r, rc, opts)
	case match.Name == routeNodeInfoJRD:
		f.handleNodeInfoJRD(w, r, rc, opts)
	case match.Name == routeNodeInfo:
		f.handleNodeInfo(w, r, rc)
	case match.Name == routeActor:
		f.handleActor(w, r, rc, match.Values[handleVariable], opts)
	case strings.HasPrefix(match.Name, objectRoutePrefix):
		f.handleObject(w, r, rc, match.Name, match.Values, opts)
	case match.Name == routeOutbox || match.Name == routeFollowing || match.Name == routeFollowers:
		f.handleCollection(w, r, rc, match.Name, match.Values[handleVariable], opts)
	case match.Name == routeInbox:
		f.handleInbox(w, r, rc, match.Values[handleVariable], opts)
	case match.Name == routeSharedInbox:
		f.handleInbox(w, r, rc, "", opts)
	default:
		opts.notFound()(w, r)
	}
}

// startQueueListener registers the outbound consumer. It runs at most once; the
// first sendActivity call in queued mode triggers it.
func (f *Federation) startQueueListener() error {
	f.listenOnce.Do(func() {
		f.listenErr = f.queue.Listen(f.handleOutboxMessage)
	})

	return f.listenErr
}

// handleOutboxMessage replays a queued delivery. On failure the message is
// re-enqueued with the next backoff delay until the schedule is exhausted.
func (f *Federation) handleOutboxMessage(msg *message.Message) {
	om := &OutboxMessage{}

	if err := json.Unmarshal(msg.Payload, om); err != nil {
		f.notifyOutboxError(fmt.Errorf("unmarshal outbox message [%s]: %w", msg.UUID, err), nil)

		return
	}

	if om.Type != outboxMessageType {
		f.notifyOutboxError(fmt.Errorf("unexpected message type [%s] on outbox message [%s]", om.Type, msg.UUID), nil)

		return
	}

	activity := &vocab.ActivityType{}

	if err := vocab.UnmarshalFromDoc(om.Activity, activity); err != nil {
		f.notifyOutboxError(fmt.Errorf("unmarshal activity on outbox message [%s]: %w", msg.UUID, err), nil)

		return
	}

	err := f.redeliver(om)
	if err == nil {
		logger.Debug("Delivered activity", logfields.WithActivityID(activity.ID().String()),
			logfields.WithInboxIRI(om.Inbox), logfields.WithTrial(om.Trial))

		return
	}

	f.notifyOutboxError(err, activity)

	if om.Trial < len(f.backoffSchedule) {
		delay := f.backoffSchedule[om.Trial]

		logger.Info("Delivery failed. Retrying after backoff.", logfields.WithActivityID(activity.ID().String()),
			logfields.WithInboxIRI(om.Inbox), logfields.WithTrial(om.Trial), logfields.WithBackoff(delay),
			log.WithError(err))

		retry := *om
		retry.Trial++

		if err := f.enqueueOutboxMessage(&retry, delay); err != nil {
			logger.Error("Error re-enqueueing outbox message", logfields.WithActivityID(activity.ID().String()),
				logfields.WithInboxIRI(om.Inbox), log.WithError(err))

			return
		}

		f.metrics.DeliveryRetried()

		return
	}

	logger.Warn("Giving up delivering activity", logfields.WithActivityID(activity.ID().String()),
		logfields.WithInboxIRI(om.Inbox), logfields.WithTrial(om.Trial), log.WithError(err))

	f.metrics.DeliveryGivenUp()
}

func (f *Federation) enqueueOutboxMessage(om *OutboxMessage, delay time.Duration) error {
	payload, err := json.Marshal(om)
	if err != nil {
		return fmt.Errorf("marshal outbox message: %w", err)
	}

	var opts []queuespi.Option
	if delay > 0 {
		opts = append(opts, queuespi.WithDelay(delay))
	}

	return f.queue.Enqueue(message.NewMessage(watermill.NewUUID(), payload), opts...)
}

// notifyOutboxError invokes the configured outbox error handler. A panicking
// handler is logged and otherwise ignored.
func (f *Federation) notifyOutboxError(err error, activity *vocab.ActivityType) {
	if f.onOutboxError == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Outbox error handler panicked", logfields.WithError(fmt.Errorf("%v", r)))
		}
	}()

	f.onOutboxError(err, activity)
}
