/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	"github.com/fedway/fedway/pkg/lifecycle"
	"github.com/fedway/fedway/pkg/queue/spi"
)

func TestQueue(t *testing.T) {
	q := New("test-queue")
	defer func() {
		require.NoError(t, q.Close())
	}()

	var mutex sync.Mutex

	var received []string

	require.NoError(t, q.Listen(func(msg *message.Message) {
		mutex.Lock()
		received = append(received, string(msg.Payload))
		mutex.Unlock()
	}))

	require.EqualError(t, q.Listen(func(*message.Message) {}), "a listener is already registered")

	require.NoError(t, q.Enqueue(message.NewMessage(watermill.NewUUID(), []byte("one"))))

	require.Eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()

		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	require.Equal(t, "one", received[0])
}

func TestQueueDelay(t *testing.T) {
	q := New("test-queue")
	defer func() {
		require.NoError(t, q.Close())
	}()

	var mutex sync.Mutex

	var receivedAt time.Time

	require.NoError(t, q.Listen(func(msg *message.Message) {
		mutex.Lock()
		receivedAt = time.Now()
		mutex.Unlock()
	}))

	enqueuedAt := time.Now()

	require.NoError(t, q.Enqueue(message.NewMessage(watermill.NewUUID(), []byte("delayed")),
		spi.WithDelay(50*time.Millisecond)))

	require.Eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()

		return !receivedAt.IsZero()
	}, time.Second, 10*time.Millisecond)

	require.GreaterOrEqual(t, receivedAt.Sub(enqueuedAt), 50*time.Millisecond)
}

func TestQueueEnqueueDuringClose(t *testing.T) {
	q := New("test-queue")

	require.NoError(t, q.Listen(func(*message.Message) {}))

	const enqueuers = 10

	var wg sync.WaitGroup

	errChan := make(chan error, enqueuers)

	for i := 0; i < enqueuers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				if err := q.Enqueue(message.NewMessage(watermill.NewUUID(), []byte("racy"))); err != nil {
					errChan <- err

					return
				}
			}
		}()
	}

	require.NoError(t, q.Close())

	wg.Wait()

	close(errChan)

	// An enqueue that loses the race with Close must fail cleanly.
	for err := range errChan {
		require.ErrorIs(t, err, lifecycle.ErrNotStarted)
	}
}

func TestQueueClosed(t *testing.T) {
	q := New("test-queue")
	require.NoError(t, q.Close())

	err := q.Enqueue(message.NewMessage(watermill.NewUUID(), []byte("late")))
	require.ErrorIs(t, err, lifecycle.ErrNotStarted)
}
