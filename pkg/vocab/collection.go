/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"net/url"
)

// OrderedCollectionType defines an 'OrderedCollection' index document, which
// points at the first and last pages of the collection.
type OrderedCollectionType struct {
	Context    interface{}   `json:"@context,omitempty"`
	ID         *URLProperty  `json:"id"`
	Type       *TypeProperty `json:"type"`
	TotalItems *int          `json:"totalItems,omitempty"`
	First      *URLProperty  `json:"first,omitempty"`
	Last       *URLProperty  `json:"last,omitempty"`
}

// NewOrderedCollection returns a new 'OrderedCollection' with the given ID.
func NewOrderedCollection(id *url.URL) *OrderedCollectionType {
	return &OrderedCollectionType{
		Context: string(ContextActivityStreams),
		ID:      NewURLProperty(id),
		Type:    NewTypeProperty(TypeOrderedCollection),
	}
}

// OrderedCollectionPageType defines a single page of an 'OrderedCollection'.
type OrderedCollectionPageType struct {
	Context      interface{}   `json:"@context,omitempty"`
	ID           *URLProperty  `json:"id"`
	Type         *TypeProperty `json:"type"`
	PartOf       *URLProperty  `json:"partOf,omitempty"`
	OrderedItems []interface{} `json:"orderedItems"`
	Next         *URLProperty  `json:"next,omitempty"`
}

// NewOrderedCollectionPage returns a new 'OrderedCollectionPage' with the given ID and items.
func NewOrderedCollectionPage(id *url.URL, items []interface{}) *OrderedCollectionPageType {
	return &OrderedCollectionPageType{
		Context:      string(ContextActivityStreams),
		ID:           NewURLProperty(id),
		Type:         NewTypeProperty(TypeOrderedCollectionPage),
		OrderedItems: items,
	}
}
