/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mocks contains test fakes shared by the federation tests.
package mocks

import (
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/piprate/json-gold/ld"

	queuespi "github.com/fedway/fedway/pkg/queue/spi"
)

// QueueEntry is one enqueued message along with its requested delay.
type QueueEntry struct {
	Msg   *message.Message
	Delay time.Duration
}

// Queue implements the queue SPI by recording enqueued messages. Messages are
// handed to the consumer only when the test calls DeliverNext, so tests control
// the delivery schedule.
type Queue struct {
	mutex   sync.Mutex
	handler func(msg *message.Message)
	entries []*QueueEntry
}

// NewQueue returns a new mock queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue records the message.
func (q *Queue) Enqueue(msg *message.Message, opts ...queuespi.Option) error {
	options := queuespi.GetOptions(opts...)

	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.entries = append(q.entries, &QueueEntry{Msg: msg, Delay: options.Delay})

	return nil
}

// Listen registers the consumer callback.
func (q *Queue) Listen(handle func(msg *message.Message)) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.handler != nil {
		return fmt.Errorf("a listener is already registered")
	}

	q.handler = handle

	return nil
}

// Close is a no-op.
func (q *Queue) Close() error {
	return nil
}

// Entries returns a copy of the undelivered entries.
func (q *Queue) Entries() []*QueueEntry {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	entries := make([]*QueueEntry, len(q.entries))
	copy(entries, q.entries)

	return entries
}

// Pending returns the number of undelivered messages.
func (q *Queue) Pending() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return len(q.entries)
}

// DeliverNext synchronously hands the oldest undelivered message to the
// consumer. Returns false if there is no message or no consumer.
func (q *Queue) DeliverNext() bool {
	q.mutex.Lock()

	if q.handler == nil || len(q.entries) == 0 {
		q.mutex.Unlock()

		return false
	}

	entry := q.entries[0]
	q.entries = q.entries[1:]
	handler := q.handler

	q.mutex.Unlock()

	handler(entry.Msg)

	return true
}

// DocumentLoader implements the json-gold DocumentLoader interface over a fixed
// set of documents.
type DocumentLoader struct {
	mutex sync.Mutex
	docs  map[string]interface{}
}

// NewDocumentLoader returns a new mock document loader.
func NewDocumentLoader() *DocumentLoader {
	return &DocumentLoader{docs: make(map[string]interface{})}
}

// Add registers the document under the given URL.
func (l *DocumentLoader) Add(u string, doc interface{}) *DocumentLoader {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.docs[u] = doc

	return l
}

// LoadDocument returns the document registered under the given URL.
func (l *DocumentLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	doc, exists := l.docs[u]
	if !exists {
		return nil, fmt.Errorf("document not found: %s", u)
	}

	return &ld.RemoteDocument{
		DocumentURL: u,
		Document:    doc,
	}, nil
}
