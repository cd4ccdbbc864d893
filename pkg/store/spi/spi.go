/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package spi

import (
	"net/url"
	"strings"
	"time"
)

// Key is a key path: an ordered sequence of segments identifying a stored value.
type Key []string

// NewKey returns a key with the given segments.
func NewKey(segments ...string) Key {
	return segments
}

// Append returns a new key with the given segments appended.
func (k Key) Append(segments ...string) Key {
	key := make(Key, 0, len(k)+len(segments))
	key = append(key, k...)
	key = append(key, segments...)

	return key
}

// String returns the canonical string form of the key. Segments are escaped so
// that segment boundaries are unambiguous.
func (k Key) String() string {
	escaped := make([]string, len(k))

	for i, segment := range k {
		escaped[i] = url.QueryEscape(segment)
	}

	return strings.Join(escaped, "/")
}

// Options holds the options for a store operation.
type Options struct {
	// TTL is the time after which the entry expires. Zero means no expiry.
	TTL time.Duration
}

// Option sets an option for a store operation.
type Option func(opts *Options)

// WithTTL sets the time-to-live of the entry.
func WithTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.TTL = ttl
	}
}

// GetOptions returns the Options struct populated with the given options.
func GetOptions(opts ...Option) *Options {
	options := &Options{}

	for _, opt := range opts {
		opt(options)
	}

	return options
}

// Store defines a namespaced key-value store with optional per-entry expiry.
type Store interface {
	// Get returns the value for the given key. Returns errors.ErrNotFound if the
	// key does not exist or the entry has expired.
	Get(key Key) ([]byte, error)

	// Put stores the value under the given key.
	Put(key Key, value []byte, opts ...Option) error

	// PutIfAbsent stores the value under the given key only if the key does not
	// already hold a live entry. Returns true if the value was stored. The claim
	// is atomic: of concurrent calls with the same key, exactly one returns true.
	PutIfAbsent(key Key, value []byte, opts ...Option) (bool, error)

	// Delete removes the value for the given key. Deleting a non-existent key is not an error.
	Delete(key Key) error
}
