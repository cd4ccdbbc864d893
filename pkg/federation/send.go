/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trustbloc/logutil-go/pkg/log"
	"go.opentelemetry.io/otel/trace"

	logfields "github.com/fedway/fedway/internal/pkg/log"
	federrors "github.com/fedway/fedway/pkg/errors"
	"github.com/fedway/fedway/pkg/httpsig"
	"github.com/fedway/fedway/pkg/keyutil"
	"github.com/fedway/fedway/pkg/observability/tracing"
	"github.com/fedway/fedway/pkg/transport"
	"github.com/fedway/fedway/pkg/vocab"
)

const outboxMessageType = "outbox"

// OutboxMessage is the JSON shape of a queued outbound delivery. One message is
// enqueued per target inbox; Trial counts the delivery attempts made so far.
type OutboxMessage struct {
	Type       string         `json:"type"`
	KeyID      string         `json:"keyId"`
	PrivateKey *keyutil.JWK   `json:"privateKey"`
	Activity   vocab.Document `json:"activity"`
	Inbox      string         `json:"inbox"`
	Trial      int            `json:"trial"`
}

// Sender identifies the key with which an outbound activity is signed: either
// the handle of a local actor with a registered key pair, or an explicit
// (KeyID, PrivateKey) pair.
type Sender struct {
	Handle     string
	KeyID      *url.URL
	PrivateKey *rsa.PrivateKey
}

type sendOptions struct {
	preferSharedInbox bool
	immediate         bool
}

// SendOption sets an option on SendActivity.
type SendOption func(opts *sendOptions)

// WithPreferSharedInbox delivers to a recipient's shared inbox instead of its
// personal inbox when the recipient advertises one.
func WithPreferSharedInbox() SendOption {
	return func(opts *sendOptions) {
		opts.preferSharedInbox = true
	}
}

// WithImmediateDelivery bypasses the queue: all deliveries are performed in
// parallel and SendActivity returns once every one of them has terminated.
func WithImmediateDelivery() SendOption {
	return func(opts *sendOptions) {
		opts.immediate = true
	}
}

// ExtractInboxes returns the de-duplicated set of inbox IRIs of the given
// recipients. With preferSharedInbox, a recipient's shared inbox replaces its
// personal inbox when present. Recipients without any inbox are dropped.
func ExtractInboxes(recipients []*vocab.ActorType, preferSharedInbox bool) []*url.URL {
	var inboxes []*url.URL

	seen := make(map[string]struct{})

	for _, recipient := range recipients {
		inbox := recipient.InboxID()

		if preferSharedInbox {
			if shared := recipient.SharedInboxID(); shared != nil {
				inbox = shared
			}
		}

		if inbox == nil {
			continue
		}

		if _, exists := seen[inbox.String()]; exists {
			continue
		}

		seen[inbox.String()] = struct{}{}

		inboxes = append(inboxes, inbox)
	}

	return inboxes
}

// SendActivity signs the activity with the sender's key and delivers it to the
// inboxes of the recipients. If the activity has no ID, a urn:uuid ID is minted.
// Without a queue, or with WithImmediateDelivery, all deliveries are performed
// before the call returns; otherwise one message per inbox is enqueued and
// delivered by the queue listener with exponential-backoff retries.
func (c *Context) SendActivity(ctx context.Context, sender *Sender, recipients []*vocab.ActorType,
	activity *vocab.ActivityType, opts ...SendOption) error {
	options := &sendOptions{}

	for _, opt := range opts {
		opt(options)
	}

	if activity.ID() == nil {
		activity = activity.CloneWithID(vocab.MustParseURL("urn:uuid:" + uuid.NewString()))
	}

	if activity.Actor() == nil {
		return errors.New("the activity to send must have an 'actor' property")
	}

	inboxes := ExtractInboxes(recipients, options.preferSharedInbox)
	if len(inboxes) == 0 {
		logger.Debug("No inboxes to deliver to", logfields.WithActivityID(activity.ID().String()))

		return nil
	}

	keyID, privateKey, err := c.resolveSender(sender)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("marshal activity [%s]: %w", activity.ID(), err)
	}

	c.federation.metrics.ActivitySent(activity.Type().String())

	if c.federation.queue == nil || options.immediate {
		return c.federation.deliverAll(ctx, keyID, privateKey, activity.ID().String(), payload, inboxes)
	}

	return c.federation.enqueueAll(keyID, privateKey, activity, inboxes)
}

// resolveSender returns the key ID and private key to sign with. A sender given
// by handle requires a registered key-pair dispatcher.
func (c *Context) resolveSender(sender *Sender) (*url.URL, *rsa.PrivateKey, error) {
	if sender == nil {
		return nil, nil, errors.New("a sender is required")
	}

	if sender.PrivateKey != nil {
		if sender.KeyID == nil {
			return nil, nil, errors.New("a sender with an explicit private key must also have a key ID")
		}

		return sender.KeyID, sender.PrivateKey, nil
	}

	if sender.Handle == "" {
		return nil, nil, errors.New("a sender must have either a handle or a key pair")
	}

	reg := c.federation.actor
	if reg == nil || reg.keyPair == nil {
		return nil, nil, errors.New("no key-pair dispatcher registered")
	}

	keyPair, err := reg.keyPair(c, sender.Handle)
	if err != nil {
		return nil, nil, fmt.Errorf("key pair for actor [%s]: %w", sender.Handle, err)
	}

	if keyPair == nil {
		return nil, nil, fmt.Errorf("actor [%s] has no key pair", sender.Handle)
	}

	actorURI, err := c.ActorURI(sender.Handle)
	if err != nil {
		return nil, nil, err
	}

	keyID := *actorURI
	keyID.Fragment = mainKeyFragment

	return &keyID, keyPair.PrivateKey, nil
}

// deliverAll performs all deliveries in parallel and returns once every one has
// terminated, joining any errors.
func (f *Federation) deliverAll(ctx context.Context, keyID *url.URL, privateKey *rsa.PrivateKey,
	activityID string, payload []byte, inboxes []*url.URL) error {
	var wg sync.WaitGroup

	errs := make([]error, len(inboxes))

	for i, inbox := range inboxes {
		wg.Add(1)

		go func(i int, inbox *url.URL) {
			defer wg.Done()

			errs[i] = f.deliver(ctx, keyID, privateKey, activityID, payload, inbox)
		}(i, inbox)
	}

	wg.Wait()

	return errors.Join(errs...)
}

// enqueueAll enqueues one OutboxMessage per inbox at trial 0 and makes sure the
// queue listener is running.
func (f *Federation) enqueueAll(keyID *url.URL, privateKey *rsa.PrivateKey,
	activity *vocab.ActivityType, inboxes []*url.URL) error {
	if err := f.startQueueListener(); err != nil {
		return fmt.Errorf("start queue listener: %w", err)
	}

	activityDoc, err := vocab.MarshalToDoc(activity)
	if err != nil {
		return fmt.Errorf("marshal activity [%s]: %w", activity.ID(), err)
	}

	jwk := keyutil.ExportRSAPrivateKey(privateKey)

	for _, inbox := range inboxes {
		om := &OutboxMessage{
			Type:       outboxMessageType,
			KeyID:      keyID.String(),
			PrivateKey: jwk,
			Activity:   activityDoc,
			Inbox:      inbox.String(),
			Trial:      0,
		}

		if err := f.enqueueOutboxMessage(om, 0); err != nil {
			return fmt.Errorf("enqueue delivery of activity [%s] to inbox [%s]: %w", activity.ID(), inbox, err)
		}

		logger.Debug("Enqueued activity for delivery", logfields.WithActivityID(activity.ID().String()),
			logfields.WithInboxIRI(inbox.String()))
	}

	return nil
}

// redeliver replays a queued delivery: the private key is imported from its JWK
// and the activity document is posted to the message's inbox.
func (f *Federation) redeliver(om *OutboxMessage) error {
	if om.PrivateKey == nil {
		return errors.New("outbox message has no private key")
	}

	privateKey, err := keyutil.ImportRSAPrivateKey(om.PrivateKey)
	if err != nil {
		return fmt.Errorf("import private key: %w", err)
	}

	keyID, err := url.Parse(om.KeyID)
	if err != nil {
		return fmt.Errorf("parse key ID [%s]: %w", om.KeyID, err)
	}

	inbox, err := url.Parse(om.Inbox)
	if err != nil {
		return fmt.Errorf("parse inbox IRI [%s]: %w", om.Inbox, err)
	}

	payload, err := json.Marshal(om.Activity)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	var activityID string
	if id, ok := om.Activity["id"].(string); ok {
		activityID = id
	}

	return f.deliver(context.Background(), keyID, privateKey, activityID, payload, inbox)
}

// deliver signs and posts the serialized activity to one inbox.
func (f *Federation) deliver(ctx context.Context, keyID *url.URL, privateKey *rsa.PrivateKey,
	activityID string, payload []byte, inbox *url.URL) error {
	ctx, span := tracing.Tracer(tracing.SubsystemOutbox).Start(ctx, "deliver activity",
		trace.WithAttributes(tracing.ActivityIDAttribute(activityID), tracing.InboxIRIAttribute(inbox.String())))
	defer span.End()

	t := transport.New(f.client, privateKey, keyID,
		httpsig.NewSigner(httpsig.DefaultGetSignerConfig()),
		httpsig.NewSigner(httpsig.DefaultPostSignerConfig()))

	f.metrics.DeliveryAttempted()

	start := time.Now()

	resp, err := t.Post(ctx, transport.NewRequest(inbox,
		transport.WithHeader(transport.ContentTypeHeader, transport.ActivityStreamsContentType)), payload)

	f.metrics.DeliveryTime(time.Since(start))

	if err != nil {
		return federrors.NewTransientf("post activity [%s] to inbox [%s]: %w", activityID, inbox, err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("Error closing response body", log.WithError(err))
		}
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return federrors.NewTransientf("post activity [%s] to inbox [%s]: status code %d",
			activityID, inbox, resp.StatusCode)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("post activity [%s] to inbox [%s]: status code %d", activityID, inbox, resp.StatusCode)
	}

	logger.Debug("Posted activity to inbox", logfields.WithActivityID(activityID),
		logfields.WithInboxIRI(inbox.String()), logfields.WithHTTPStatus(resp.StatusCode))

	return nil
}
