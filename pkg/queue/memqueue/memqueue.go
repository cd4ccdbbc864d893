/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memqueue

import (
	"errors"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedway/fedway/internal/pkg/log"
	"github.com/fedway/fedway/pkg/lifecycle"
	"github.com/fedway/fedway/pkg/queue/spi"
)

var logger = log.New("memqueue")

const defaultBufferSize = 64

// Queue implements a message queue using Go channels. This implementation works
// only on a single node and does not survive a restart. In order to distribute the
// load across a cluster, a persistent message queue (such as RabbitMQ) should
// instead be used.
type Queue struct {
	*lifecycle.Lifecycle

	msgChan  chan *message.Message
	doneChan chan struct{}
	wg       sync.WaitGroup

	mutex    sync.Mutex
	listener func(msg *message.Message)
}

// New returns a new in-memory queue.
func New(name string) *Queue {
	q := &Queue{
		msgChan:  make(chan *message.Message, defaultBufferSize),
		doneChan: make(chan struct{}),
	}

	q.Lifecycle = lifecycle.New(name, lifecycle.WithStop(q.stop))

	q.Start()

	return q
}

// Enqueue adds the message to the queue. If a delay is given then the message is
// held for (at least) that duration before it is handed to the consumer.
func (q *Queue) Enqueue(msg *message.Message, opts ...spi.Option) error {
	if q.State() != lifecycle.StateStarted {
		return lifecycle.ErrNotStarted
	}

	delay := spi.GetOptions(opts...).Delay
	if delay <= 0 {
		return q.post(msg)
	}

	logger.Debug("Delaying message", logfields.WithMessageID(msg.UUID), logfields.WithBackoff(delay))

	q.wg.Add(1)

	go func() {
		defer q.wg.Done()

		select {
		case <-time.After(delay):
			if err := q.post(msg); err != nil {
				logger.Debug("Not delivering delayed message since queue is closed",
					logfields.WithMessageID(msg.UUID))
			}
		case <-q.doneChan:
			logger.Debug("Not delivering delayed message since queue is closed",
				logfields.WithMessageID(msg.UUID))
		}
	}()

	return nil
}

// post hands the message to the dispatcher. The done channel guards the send so
// that an enqueue racing with Close does not block or panic.
func (q *Queue) post(msg *message.Message) error {
	select {
	case q.msgChan <- msg:
		return nil
	case <-q.doneChan:
		return lifecycle.ErrNotStarted
	}
}

// Listen registers the consumer callback and starts dispatching messages to it.
func (q *Queue) Listen(handle func(msg *message.Message)) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.listener != nil {
		return errors.New("a listener is already registered")
	}

	q.listener = handle

	go q.dispatch()

	return nil
}

// IsConnected returns true if the queue is able to accept messages.
func (q *Queue) IsConnected() bool {
	return q.State() == lifecycle.StateStarted
}

// Close stops the queue. Delayed messages that have not yet been delivered are dropped.
func (q *Queue) Close() error {
	q.Stop()

	return nil
}

func (q *Queue) dispatch() {
	for {
		select {
		case msg := <-q.msgChan:
			logger.Debug("Dispatching message to consumer", logfields.WithMessageID(msg.UUID))

			q.listener(msg)
		case <-q.doneChan:
			return
		}
	}
}

// stop closes the done channel and waits for the delayed-message goroutines.
// The message channel is never closed, so a send racing with stop cannot panic;
// it selects the done channel instead.
func (q *Queue) stop() {
	close(q.doneChan)

	q.wg.Wait()
}
