/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

// Context defines the object context.
type Context string

const (
	// ContextActivityStreams is the ActivityStreams context.
	ContextActivityStreams Context = "https://www.w3.org/ns/activitystreams"
	// ContextSecurity is the security context.
	ContextSecurity Context = "https://w3id.org/security/v1"
)

// Namespace is the ActivityStreams namespace under which all vocabulary types are defined.
const Namespace = "https://www.w3.org/ns/activitystreams#"

// PublicIRI indicates that the object is public, i.e. it may be viewed by anyone.
const PublicIRI = "https://www.w3.org/ns/activitystreams#Public"

// Type indicates the type of the object.
type Type string

const (
	// TypeActivity specifies the 'Activity' type, the root of the activity type hierarchy.
	TypeActivity Type = "Activity"
	// TypeCreate specifies the 'Create' activity type.
	TypeCreate Type = "Create"
	// TypeUpdate specifies the 'Update' activity type.
	TypeUpdate Type = "Update"
	// TypeDelete specifies the 'Delete' activity type.
	TypeDelete Type = "Delete"
	// TypeFollow specifies the 'Follow' activity type.
	TypeFollow Type = "Follow"
	// TypeAccept specifies the 'Accept' activity type.
	TypeAccept Type = "Accept"
	// TypeReject specifies the 'Reject' activity type.
	TypeReject Type = "Reject"
	// TypeAnnounce specifies the 'Announce' activity type.
	TypeAnnounce Type = "Announce"
	// TypeLike specifies the 'Like' activity type.
	TypeLike Type = "Like"
	// TypeUndo specifies the 'Undo' activity type.
	TypeUndo Type = "Undo"
	// TypeAdd specifies the 'Add' activity type.
	TypeAdd Type = "Add"
	// TypeRemove specifies the 'Remove' activity type.
	TypeRemove Type = "Remove"
	// TypeOffer specifies the 'Offer' activity type.
	TypeOffer Type = "Offer"
	// TypeInvite specifies the 'Invite' activity type, a specialization of 'Offer'.
	TypeInvite Type = "Invite"

	// TypePerson specifies the 'Person' actor type.
	TypePerson Type = "Person"
	// TypeService specifies the 'Service' actor type.
	TypeService Type = "Service"
	// TypeApplication specifies the 'Application' actor type.
	TypeApplication Type = "Application"
	// TypeGroup specifies the 'Group' actor type.
	TypeGroup Type = "Group"
	// TypeOrganization specifies the 'Organization' actor type.
	TypeOrganization Type = "Organization"

	// TypeNote specifies the 'Note' object type.
	TypeNote Type = "Note"
	// TypeArticle specifies the 'Article' object type.
	TypeArticle Type = "Article"
	// TypeOrderedCollection specifies the 'OrderedCollection' object type.
	TypeOrderedCollection Type = "OrderedCollection"
	// TypeOrderedCollectionPage specifies the 'OrderedCollectionPage' object type.
	TypeOrderedCollectionPage Type = "OrderedCollectionPage"
)

// IRI returns the canonical type IRI for the type.
func (t Type) IRI() string {
	return Namespace + string(t)
}

// parentType maps an activity type to its immediate supertype. Types that are not
// in this map are taken to be direct descendants of 'Activity'.
var parentType = map[Type]Type{ //nolint:gochecknoglobals
	TypeInvite: TypeOffer,
}

// TypeChain returns the type hierarchy of the given activity type, ordered from
// most specific to least specific, ending with 'Activity'.
func TypeChain(t Type) []Type {
	chain := []Type{t}

	for t != TypeActivity {
		parent, ok := parentType[t]
		if !ok {
			parent = TypeActivity
		}

		chain = append(chain, parent)
		t = parent
	}

	return chain
}
