/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package spi

import (
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Options contains queue options.
type Options struct {
	// Delay is a hint to the queue to hold the message for the given duration
	// before it is handed to the consumer.
	Delay time.Duration
}

// Option specifies a queue option.
type Option func(opts *Options)

// WithDelay sets the delivery delay.
func WithDelay(delay time.Duration) Option {
	return func(opts *Options) {
		opts.Delay = delay
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

// Queue is a durable message queue with a single consumer. The consumer callback
// is invoked at least once per enqueued message.
type Queue interface {
	// Enqueue adds the message to the queue, optionally delayed.
	Enqueue(msg *message.Message, opts ...Option) error

	// Listen registers the consumer callback. Only one consumer may be registered.
	Listen(handle func(msg *message.Message)) error

	// Close releases the queue's resources.
	Close() error
}
