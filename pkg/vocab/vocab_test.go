/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypeChain(t *testing.T) {
	require.Equal(t, []Type{TypeActivity}, TypeChain(TypeActivity))
	require.Equal(t, []Type{TypeCreate, TypeActivity}, TypeChain(TypeCreate))
	require.Equal(t, []Type{TypeInvite, TypeOffer, TypeActivity}, TypeChain(TypeInvite))
	require.Equal(t, []Type{Type("Arrive"), TypeActivity}, TypeChain(Type("Arrive")))
}

func TestTypeIRI(t *testing.T) {
	require.Equal(t, "https://www.w3.org/ns/activitystreams#Create", TypeCreate.IRI())
}

func TestActivityRoundTrip(t *testing.T) {
	const activityJSON = `{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id": "https://example.com/activities/abc",
		"type": "Create",
		"actor": "https://example.com/users/john",
		"to": ["https://www.w3.org/ns/activitystreams#Public"],
		"object": {"type": "Note", "content": "Hello"}
	}`

	activity := &ActivityType{}
	require.NoError(t, json.Unmarshal([]byte(activityJSON), activity))

	require.Equal(t, "https://example.com/activities/abc", activity.ID().String())
	require.True(t, activity.Type().Is(TypeCreate))
	require.Equal(t, "https://example.com/users/john", activity.Actor().String())
	require.NotNil(t, activity.Object())

	activityBytes, err := json.Marshal(activity)
	require.NoError(t, err)

	doc := MustUnmarshalToDoc(activityBytes)
	require.Equal(t, "https://example.com/activities/abc", doc["id"])
	require.Equal(t, "Create", doc["type"])
	require.Contains(t, doc, "to")
	require.Contains(t, doc, "object")
}

func TestActivityUnmarshalErrors(t *testing.T) {
	t.Run("missing id", func(t *testing.T) {
		activity := &ActivityType{}
		err := json.Unmarshal([]byte(`{"type": "Create"}`), activity)
		require.Error(t, err)
		require.Contains(t, err.Error(), "'id'")
	})

	t.Run("missing type", func(t *testing.T) {
		activity := &ActivityType{}
		err := json.Unmarshal([]byte(`{"id": "https://example.com/activities/abc"}`), activity)
		require.Error(t, err)
		require.Contains(t, err.Error(), "'type'")
	})

	t.Run("embedded actor object", func(t *testing.T) {
		activity := &ActivityType{}
		err := json.Unmarshal([]byte(`{
			"id": "https://example.com/activities/abc",
			"type": "Follow",
			"actor": {"id": "https://example.com/users/jane", "type": "Person"}
		}`), activity)
		require.NoError(t, err)
		require.Equal(t, "https://example.com/users/jane", activity.Actor().String())
	})
}

func TestActivityCloneWithID(t *testing.T) {
	activity := NewActivity(TypeCreate,
		WithActor(MustParseURL("https://example.com/users/john")),
		WithObjectDoc(Document{"type": "Note"}),
	)

	require.Nil(t, activity.ID())

	clone := activity.CloneWithID(MustParseURL("urn:uuid:deadbeef"))
	require.Equal(t, "urn:uuid:deadbeef", clone.ID().String())
	require.Nil(t, activity.ID())
	require.Equal(t, activity.Actor().String(), clone.Actor().String())
}

func TestActorInboxes(t *testing.T) {
	var actor *ActorType

	require.Nil(t, actor.InboxID())
	require.Nil(t, actor.SharedInboxID())

	actor = &ActorType{
		ID:    NewURLProperty(MustParseURL("https://example.com/users/john")),
		Inbox: NewURLProperty(MustParseURL("https://example.com/users/john/inbox")),
	}

	require.Equal(t, "https://example.com/users/john/inbox", actor.InboxID().String())
	require.Nil(t, actor.SharedInboxID())

	actor.Endpoints = &EndpointsType{
		SharedInbox: NewURLProperty(MustParseURL("https://example.com/inbox")),
	}

	require.Equal(t, "https://example.com/inbox", actor.SharedInboxID().String())
}

func TestTypePropertyMultiple(t *testing.T) {
	p := &TypeProperty{}
	require.NoError(t, json.Unmarshal([]byte(`["Create", "Note"]`), p))
	require.True(t, p.Is(TypeCreate))
	require.True(t, p.Is(TypeNote))
	require.False(t, p.Is(TypeFollow))

	b, err := json.Marshal(p)
	require.NoError(t, err)
	require.JSONEq(t, `["Create", "Note"]`, string(b))
}
