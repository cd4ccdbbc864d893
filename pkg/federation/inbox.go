/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedway/fedway/internal/pkg/log"
	storespi "github.com/fedway/fedway/pkg/store/spi"
	"github.com/fedway/fedway/pkg/vocab"
)

// handleInbox accepts an activity POSTed to a personal inbox (handle set) or the
// shared inbox (handle empty). The activity is dispatched to the first listener
// registered for a type in its type chain, at most once per activity ID.
func (f *Federation) handleInbox(w http.ResponseWriter, r *http.Request, rc *RequestContext,
	handle string, opts *FetchOptions) {
	reg := f.inbox
	if reg == nil {
		opts.notFound()(w, r)

		return
	}

	if r.Method != http.MethodPost {
		respondWithError(w, http.StatusMethodNotAllowed)

		return
	}

	if !isActivityStreamsContentType(r.Header.Get("Content-Type")) {
		respondWithError(w, http.StatusBadRequest)

		return
	}

	if handle != "" {
		if !f.prepareActorInbox(w, r, rc, handle, opts) {
			return
		}
	}

	signedKey, err := rc.GetSignedKey()
	if err != nil {
		serverError(w, r, err)

		return
	}

	if signedKey == nil {
		logger.Debug("Rejecting unsigned inbox POST", logfields.WithPath(r.URL.Path))

		opts.unauthorized()(w, r)

		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		serverError(w, r, err)

		return
	}

	activity := &vocab.ActivityType{}

	if err := json.Unmarshal(body, activity); err != nil {
		f.notifyInboxError(rc, fmt.Errorf("unmarshal activity: %w", err))

		respondWithError(w, http.StatusBadRequest)

		return
	}

	inserted, err := f.claimActivity(activity)
	if err != nil {
		serverError(w, r, err)

		return
	}

	if !inserted {
		logger.Debug("Ignoring duplicate activity", logfields.WithActivityID(activity.ID().String()))

		f.metrics.InboxActivityDeduplicated()

		w.WriteHeader(http.StatusAccepted)

		return
	}

	listener := f.findListener(activity)
	if listener == nil {
		logger.Debug("No listener registered for activity",
			logfields.WithActivityID(activity.ID().String()),
			logfields.WithActivityType(activity.Type().String()))

		w.WriteHeader(http.StatusAccepted)

		return
	}

	if err := listener(rc, activity); err != nil {
		logger.Warn("Inbox listener returned an error", logfields.WithActivityID(activity.ID().String()),
			log.WithError(err))

		f.notifyInboxError(rc, err)

		respondWithError(w, http.StatusInternalServerError)

		return
	}

	f.metrics.InboxActivityHandled(activity.Type().String())

	w.WriteHeader(http.StatusAccepted)
}

// prepareActorInbox confirms that the actor exists and swaps the context's
// document loader for the actor's authenticated loader. Returns false if a
// response was already written.
func (f *Federation) prepareActorInbox(w http.ResponseWriter, r *http.Request, rc *RequestContext,
	handle string, opts *FetchOptions) bool {
	if f.actor != nil {
		actor, err := rc.GetActor(handle)
		if err != nil {
			serverError(w, r, err)

			return false
		}

		if actor == nil {
			opts.notFound()(w, r)

			return false
		}
	}

	if f.actor != nil && f.actor.keyPair != nil {
		loader, err := rc.ActorDocumentLoader(handle)
		if err != nil {
			serverError(w, r, err)

			return false
		}

		rc.Context = rc.Context.withDocumentLoader(loader)
	}

	return true
}

// claimActivity records the activity ID in the KV store with set-if-absent
// semantics. It returns false if the ID was already recorded, i.e. the activity
// is a duplicate.
func (f *Federation) claimActivity(activity *vocab.ActivityType) (bool, error) {
	key := f.prefixes.ActivityIdempotence.Append(activity.ID().String())

	inserted, err := f.store.PutIfAbsent(key, []byte("1"), storespi.WithTTL(idempotenceTTL))
	if err != nil {
		return false, fmt.Errorf("claim activity [%s]: %w", activity.ID(), err)
	}

	return inserted, nil
}

// findListener returns the first listener registered for a type in the
// activity's type chain, walking from most specific to least specific.
func (f *Federation) findListener(activity *vocab.ActivityType) InboxListener {
	for _, t := range activity.Type().Types() {
		for _, chained := range vocab.TypeChain(t) {
			if listener, exists := f.inbox.listeners[chained]; exists {
				return listener
			}
		}
	}

	return nil
}

// notifyInboxError invokes the inbox error handler. A panicking handler is
// logged and otherwise ignored.
func (f *Federation) notifyInboxError(rc *RequestContext, err error) {
	if f.inbox == nil || f.inbox.onError == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Inbox error handler panicked", logfields.WithError(fmt.Errorf("%v", r)))
		}
	}()

	f.inbox.onError(rc, err)
}
