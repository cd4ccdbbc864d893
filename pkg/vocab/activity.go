/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

const (
	propertyContext = "@context"
	propertyID      = "id"
	propertyType    = "type"
	propertyActor   = "actor"
	propertyObject  = "object"
	propertyTo      = "to"
)

// ActivityType defines an ActivityStreams activity. Properties that the core does not
// interpret are preserved as-is so that an activity round-trips through JSON unchanged.
type ActivityType struct {
	id         *URLProperty
	types      *TypeProperty
	actor      *URLProperty
	additional Document
}

// ActivityOpt sets an option on an activity.
type ActivityOpt func(a *ActivityType)

// WithID sets the 'id' property.
func WithID(id *url.URL) ActivityOpt {
	return func(a *ActivityType) {
		a.id = NewURLProperty(id)
	}
}

// WithActor sets the 'actor' property.
func WithActor(iri *url.URL) ActivityOpt {
	return func(a *ActivityType) {
		a.actor = NewURLProperty(iri)
	}
}

// WithObjectDoc sets the 'object' property to the given document.
func WithObjectDoc(doc Document) ActivityOpt {
	return func(a *ActivityType) {
		a.additional[propertyObject] = doc
	}
}

// WithTo sets the 'to' property.
func WithTo(iris ...*url.URL) ActivityOpt {
	return func(a *ActivityType) {
		to := make([]string, len(iris))

		for i, iri := range iris {
			to[i] = iri.String()
		}

		a.additional[propertyTo] = to
	}
}

// NewActivity returns a new activity of the given type.
func NewActivity(t Type, opts ...ActivityOpt) *ActivityType {
	a := &ActivityType{
		types: NewTypeProperty(t),
		additional: Document{
			propertyContext: string(ContextActivityStreams),
		},
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// ID returns the activity ID.
func (a *ActivityType) ID() *URLProperty {
	if a == nil {
		return nil
	}

	return a.id
}

// SetID sets the activity ID.
func (a *ActivityType) SetID(id *url.URL) {
	a.id = NewURLProperty(id)
}

// Type returns the type property of the activity.
func (a *ActivityType) Type() *TypeProperty {
	if a == nil {
		return nil
	}

	return a.types
}

// Actor returns the IRI of the actor that performed the activity.
func (a *ActivityType) Actor() *URLProperty {
	if a == nil {
		return nil
	}

	return a.actor
}

// SetActor sets the 'actor' property.
func (a *ActivityType) SetActor(iri *url.URL) {
	a.actor = NewURLProperty(iri)
}

// Object returns the raw 'object' property, or nil if the activity has no object.
func (a *ActivityType) Object() interface{} {
	if a == nil || a.additional == nil {
		return nil
	}

	return a.additional[propertyObject]
}

// CloneWithID returns a copy of the activity with the given ID. The receiver is not modified.
func (a *ActivityType) CloneWithID(id *url.URL) *ActivityType {
	additional := make(Document, len(a.additional))
	additional.MergeWith(a.additional)

	return &ActivityType{
		id:         NewURLProperty(id),
		types:      a.types,
		actor:      a.actor,
		additional: additional,
	}
}

// MarshalJSON marshals the activity.
func (a *ActivityType) MarshalJSON() ([]byte, error) {
	doc := make(Document, len(a.additional)+3)
	doc.MergeWith(a.additional)

	if a.id != nil {
		doc[propertyID] = a.id
	}

	if a.types != nil {
		doc[propertyType] = a.types
	}

	if a.actor != nil {
		doc[propertyActor] = a.actor
	}

	return json.Marshal(doc)
}

// UnmarshalJSON unmarshals the activity. The 'id' and 'type' properties are required.
func (a *ActivityType) UnmarshalJSON(bytes []byte) error {
	var raw map[string]json.RawMessage

	if err := json.Unmarshal(bytes, &raw); err != nil {
		return err
	}

	idRaw, ok := raw[propertyID]
	if !ok {
		return errors.New("activity is missing the 'id' property")
	}

	id := &URLProperty{}
	if err := json.Unmarshal(idRaw, id); err != nil {
		return fmt.Errorf("unmarshal 'id': %w", err)
	}

	typeRaw, ok := raw[propertyType]
	if !ok {
		return errors.New("activity is missing the 'type' property")
	}

	types := &TypeProperty{}
	if err := json.Unmarshal(typeRaw, types); err != nil {
		return fmt.Errorf("unmarshal 'type': %w", err)
	}

	var actor *URLProperty

	if actorRaw, ok := raw[propertyActor]; ok {
		var err error

		actor, err = unmarshalActorIRI(actorRaw)
		if err != nil {
			return fmt.Errorf("unmarshal 'actor': %w", err)
		}
	}

	additional := make(Document)

	for k, v := range raw {
		if k == propertyID || k == propertyType || k == propertyActor {
			continue
		}

		var value interface{}
		if err := json.Unmarshal(v, &value); err != nil {
			return err
		}

		additional[k] = value
	}

	a.id = id
	a.types = types
	a.actor = actor
	a.additional = additional

	return nil
}

// unmarshalActorIRI accepts either an IRI string or an embedded actor object with an 'id'.
func unmarshalActorIRI(raw json.RawMessage) (*URLProperty, error) {
	p := &URLProperty{}
	if err := json.Unmarshal(raw, p); err == nil {
		return p, nil
	}

	var obj struct {
		ID *URLProperty `json:"id"`
	}

	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}

	if obj.ID == nil {
		return nil, errors.New("embedded actor has no 'id'")
	}

	return obj.ID, nil
}
