/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	"github.com/fedway/fedway/pkg/federation/mocks"
	"github.com/fedway/fedway/pkg/vocab"
)

func recipientWithInboxes(inbox, sharedInbox string) *vocab.ActorType {
	actor := &vocab.ActorType{
		ID:   vocab.NewURLProperty(vocab.MustParseURL("https://remote.example/actor/" + inbox + sharedInbox)),
		Type: vocab.NewTypeProperty(vocab.TypePerson),
	}

	if inbox != "" {
		actor.Inbox = vocab.NewURLProperty(vocab.MustParseURL(inbox))
	}

	if sharedInbox != "" {
		actor.Endpoints = &vocab.EndpointsType{
			SharedInbox: vocab.NewURLProperty(vocab.MustParseURL(sharedInbox)),
		}
	}

	return actor
}

func TestExtractInboxes(t *testing.T) {
	const (
		inbox1 = "https://a.example/inbox"
		inbox2 = "https://b.example/inbox"
		shared = "https://a.example/shared"
	)

	t.Run("personal inboxes, de-duplicated", func(t *testing.T) {
		inboxes := ExtractInboxes([]*vocab.ActorType{
			recipientWithInboxes(inbox1, ""),
			recipientWithInboxes(inbox1, ""),
			recipientWithInboxes(inbox2, ""),
		}, false)

		require.Len(t, inboxes, 2)
		require.Equal(t, inbox1, inboxes[0].String())
		require.Equal(t, inbox2, inboxes[1].String())
	})

	t.Run("shared inbox replaces personal when preferred", func(t *testing.T) {
		inboxes := ExtractInboxes([]*vocab.ActorType{
			recipientWithInboxes(inbox1, shared),
			recipientWithInboxes(inbox2, shared),
		}, true)

		require.Len(t, inboxes, 1)
		require.Equal(t, shared, inboxes[0].String())
	})

	t.Run("shared inbox ignored when not preferred", func(t *testing.T) {
		inboxes := ExtractInboxes([]*vocab.ActorType{
			recipientWithInboxes(inbox1, shared),
		}, false)

		require.Len(t, inboxes, 1)
		require.Equal(t, inbox1, inboxes[0].String())
	})

	t.Run("recipients without an inbox are dropped", func(t *testing.T) {
		inboxes := ExtractInboxes([]*vocab.ActorType{
			recipientWithInboxes("", ""),
			recipientWithInboxes(inbox1, ""),
		}, false)

		require.Len(t, inboxes, 1)
	})
}

func newSenderKey(t *testing.T) *Sender {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	return &Sender{
		KeyID:      vocab.MustParseURL("http://example.com/users/john#main-key"),
		PrivateKey: privateKey,
	}
}

func TestSendActivityImmediate(t *testing.T) {
	var received atomic.Pointer[http.Request]

	var receivedBody atomic.Pointer[[]byte]

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err == nil {
			received.Store(r.Clone(context.Background()))
			receivedBody.Store(&body)
		}

		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	f := newTestFederation(t, &Config{HTTPClient: srv.Client()})

	c := f.NewContext(vocab.MustParseURL("http://example.com"), nil)

	activity := vocab.NewActivity(vocab.TypeCreate,
		vocab.WithActor(vocab.MustParseURL("http://example.com/users/john")))

	err := c.SendActivity(context.Background(), newSenderKey(t),
		[]*vocab.ActorType{recipientWithInboxes(srv.URL+"/inbox", "")}, activity)
	require.NoError(t, err)

	req := received.Load()
	require.NotNil(t, req)

	require.Contains(t, req.Header.Get("Content-Type"), "application/ld+json")
	require.NotEmpty(t, req.Header.Get("Signature"))
	require.True(t, strings.HasPrefix(req.Header.Get("Digest"), "SHA-256="))
	require.NotEmpty(t, req.Header.Get("Date"))

	// An activity without an ID is delivered with a minted urn:uuid ID.
	require.Contains(t, string(*receivedBody.Load()), `"id":"urn:uuid:`)
}

func TestSendActivityValidation(t *testing.T) {
	f := newTestFederation(t, nil)

	c := f.NewContext(vocab.MustParseURL("http://example.com"), nil)

	t.Run("missing actor -> error", func(t *testing.T) {
		activity := vocab.NewActivity(vocab.TypeCreate)

		err := c.SendActivity(context.Background(), newSenderKey(t),
			[]*vocab.ActorType{recipientWithInboxes("https://a.example/inbox", "")}, activity)
		require.Error(t, err)
		require.Contains(t, err.Error(), "must have an 'actor'")
	})

	t.Run("no recipients -> no-op", func(t *testing.T) {
		activity := vocab.NewActivity(vocab.TypeCreate,
			vocab.WithActor(vocab.MustParseURL("http://example.com/users/john")))

		require.NoError(t, c.SendActivity(context.Background(), newSenderKey(t), nil, activity))
	})

	t.Run("nil sender -> error", func(t *testing.T) {
		activity := vocab.NewActivity(vocab.TypeCreate,
			vocab.WithActor(vocab.MustParseURL("http://example.com/users/john")))

		err := c.SendActivity(context.Background(), nil,
			[]*vocab.ActorType{recipientWithInboxes("https://a.example/inbox", "")}, activity)
		require.Error(t, err)
		require.Contains(t, err.Error(), "sender is required")
	})

	t.Run("handle sender without key-pair dispatcher -> error", func(t *testing.T) {
		activity := vocab.NewActivity(vocab.TypeCreate,
			vocab.WithActor(vocab.MustParseURL("http://example.com/users/john")))

		err := c.SendActivity(context.Background(), &Sender{Handle: "john"},
			[]*vocab.ActorType{recipientWithInboxes("https://a.example/inbox", "")}, activity)
		require.Error(t, err)
		require.Contains(t, err.Error(), "no key-pair dispatcher")
	})
}

func TestSendActivityQueuedRetrySchedule(t *testing.T) {
	var attempts int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&attempts, 1)

		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	queue := mocks.NewQueue()

	var outboxErrs int32

	backoffSchedule := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}

	f := newTestFederation(t, &Config{
		HTTPClient:      srv.Client(),
		Queue:           queue,
		BackoffSchedule: backoffSchedule,
		OnOutboxError: func(err error, activity *vocab.ActivityType) {
			require.Error(t, err)
			require.NotNil(t, activity)

			atomic.AddInt32(&outboxErrs, 1)
		},
	})

	c := f.NewContext(vocab.MustParseURL("http://example.com"), nil)

	activity := vocab.NewActivity(vocab.TypeCreate,
		vocab.WithID(vocab.MustParseURL("http://example.com/activities/1")),
		vocab.WithActor(vocab.MustParseURL("http://example.com/users/john")))

	err := c.SendActivity(context.Background(), newSenderKey(t),
		[]*vocab.ActorType{recipientWithInboxes(srv.URL+"/inbox", "")}, activity)
	require.NoError(t, err)

	// Trial 0 is enqueued without delay; each failure re-enqueues with the next
	// delay from the schedule until the schedule is exhausted.
	var delays []time.Duration

	for queue.DeliverNext() {
		entries := queue.Entries()
		if len(entries) > 0 {
			delays = append(delays, entries[0].Delay)
		}
	}

	require.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	require.Equal(t, int32(3), atomic.LoadInt32(&outboxErrs))
	require.Equal(t, backoffSchedule, delays)
	require.Zero(t, queue.Pending())
}

func TestOutboxMessageRoundTrip(t *testing.T) {
	queue := mocks.NewQueue()

	f := newTestFederation(t, &Config{Queue: queue})

	c := f.NewContext(vocab.MustParseURL("http://example.com"), nil)

	sender := newSenderKey(t)

	activity := vocab.NewActivity(vocab.TypeAnnounce,
		vocab.WithID(vocab.MustParseURL("http://example.com/activities/2")),
		vocab.WithActor(vocab.MustParseURL("http://example.com/users/john")))

	err := c.SendActivity(context.Background(), sender,
		[]*vocab.ActorType{recipientWithInboxes("https://a.example/inbox", "")}, activity)
	require.NoError(t, err)

	entries := queue.Entries()
	require.Len(t, entries, 1)

	om := &OutboxMessage{}
	require.NoError(t, json.Unmarshal(entries[0].Msg.Payload, om))

	require.Equal(t, "outbox", om.Type)
	require.Equal(t, sender.KeyID.String(), om.KeyID)
	require.Equal(t, "https://a.example/inbox", om.Inbox)
	require.Zero(t, om.Trial)
	require.NotNil(t, om.PrivateKey)
	require.Equal(t, "RSA", om.PrivateKey.Kty)
	require.Equal(t, "http://example.com/activities/2", om.Activity["id"])

	remarshalled, err := json.Marshal(om)
	require.NoError(t, err)

	om2 := &OutboxMessage{}
	require.NoError(t, json.Unmarshal(remarshalled, om2))
	require.Equal(t, om, om2)
}

func TestOutboxMessageDeserializationFailure(t *testing.T) {
	queue := mocks.NewQueue()

	var gotErr error

	var gotActivity *vocab.ActivityType

	var calls int32

	f := newTestFederation(t, &Config{
		Queue: queue,
		OnOutboxError: func(err error, activity *vocab.ActivityType) {
			gotErr = err
			gotActivity = activity

			atomic.AddInt32(&calls, 1)
		},
	})

	require.NoError(t, f.startQueueListener())

	require.NoError(t, queue.Enqueue(message.NewMessage(watermill.NewUUID(), []byte("not json"))))
	require.True(t, queue.DeliverNext())

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Error(t, gotErr)
	require.Nil(t, gotActivity)

	// No retry is possible without the activity.
	require.Zero(t, queue.Pending())
}

func TestSendActivityMultipleInboxes(t *testing.T) {
	var hits int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)

		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	f := newTestFederation(t, &Config{HTTPClient: srv.Client()})

	c := f.NewContext(vocab.MustParseURL("http://example.com"), nil)

	activity := vocab.NewActivity(vocab.TypeCreate,
		vocab.WithActor(vocab.MustParseURL("http://example.com/users/john")))

	err := c.SendActivity(context.Background(), newSenderKey(t),
		[]*vocab.ActorType{
			recipientWithInboxes(srv.URL+"/inbox/a", ""),
			recipientWithInboxes(srv.URL+"/inbox/b", ""),
		}, activity, WithImmediateDelivery())
	require.NoError(t, err)

	require.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestSendActivityImmediateFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newTestFederation(t, &Config{HTTPClient: srv.Client()})

	c := f.NewContext(vocab.MustParseURL("http://example.com"), nil)

	activity := vocab.NewActivity(vocab.TypeCreate,
		vocab.WithActor(vocab.MustParseURL("http://example.com/users/john")))

	err := c.SendActivity(context.Background(), newSenderKey(t),
		[]*vocab.ActorType{recipientWithInboxes(srv.URL+"/inbox", "")}, activity)
	require.Error(t, err)
	require.Contains(t, err.Error(), "status code 502")
}

func TestRedeliverInvalidKey(t *testing.T) {
	f := newTestFederation(t, nil)

	err := f.redeliver(&OutboxMessage{
		Type:  "outbox",
		KeyID: "http://example.com/users/john#main-key",
		Inbox: "https://a.example/inbox",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no private key")
}
