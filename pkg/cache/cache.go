/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package cache implements a loading cache whose entries may be refreshed in
// the background.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedway/fedway/internal/pkg/log"
	"github.com/fedway/fedway/pkg/lifecycle"
)

const (
	defaultRefreshInterval = time.Duration(0) // Refresh is disabled by default.
	defaultRetryBackoff    = 5 * time.Second
	defaultMonitorInterval = 5 * time.Second
	defaultCacheName       = "cache"
)

type loader func(key interface{}) (interface{}, error)

type options struct {
	refreshInterval time.Duration
	retryBackoff    time.Duration
	monitorInterval time.Duration
	name            string
}

// Opt sets a cache option.
type Opt func(opts *options)

// WithRefreshInterval sets the interval at which each entry in the cache is
// refreshed. If set to 0 (default) then entries are never refreshed.
func WithRefreshInterval(value time.Duration) Opt {
	return func(opts *options) {
		opts.refreshInterval = value
	}
}

// WithRetryBackoff sets the interval at which an entry whose last load attempt
// failed is retried.
func WithRetryBackoff(value time.Duration) Opt {
	return func(opts *options) {
		opts.retryBackoff = value
	}
}

// WithMonitorInterval sets the interval at which entries are checked whether
// they need to be refreshed.
func WithMonitorInterval(value time.Duration) Opt {
	return func(opts *options) {
		opts.monitorInterval = value
	}
}

// WithName sets the name of the cache. (Used only for logging.)
func WithName(value string) Opt {
	return func(opts *options) {
		opts.name = value
	}
}

// Cache loads an entry upon first access (using the provided loader), caches
// it, and then periodically refreshes the entry according to the configured
// refresh interval. While an entry is being refreshed callers are served the
// old value. If a refresh fails then the old value is served and another
// refresh is attempted after the retry backoff.
type Cache struct {
	*lifecycle.Lifecycle
	*options

	data   map[interface{}]*entry
	mutex  sync.RWMutex
	load   loader
	close  chan struct{}
	wg     sync.WaitGroup
	logger *log.Log
}

// New returns a new cache.
func New(load loader, opts ...Opt) *Cache {
	options := &options{
		name:            defaultCacheName,
		refreshInterval: defaultRefreshInterval,
		monitorInterval: defaultMonitorInterval,
		retryBackoff:    defaultRetryBackoff,
	}

	for _, opt := range opts {
		opt(options)
	}

	c := &Cache{
		options: options,
		data:    make(map[interface{}]*entry),
		load:    load,
		close:   make(chan struct{}),
		logger:  log.New(options.name),
	}

	c.Lifecycle = lifecycle.New(options.name, lifecycle.WithStart(c.start), lifecycle.WithStop(c.stop))

	c.logger.Debug("Created cache", logfields.WithCacheRefreshInterval(options.refreshInterval))

	return c
}

func (c *Cache) start() {
	if c.refreshInterval > 0 {
		c.wg.Add(1)

		go c.monitor()
	}
}

func (c *Cache) stop() {
	close(c.close)

	c.wg.Wait()
}

// Get returns the cached value for the given key, loading it if necessary.
func (c *Cache) Get(key interface{}) (interface{}, error) {
	value, err := c.getEntry(key).Value()
	if err != nil {
		return nil, fmt.Errorf("get value: %w", err)
	}

	return value, nil
}

// MarkAsStale marks the entry such that it is reloaded at the next monitor
// interval without waiting for the refresh time.
func (c *Cache) MarkAsStale(key interface{}) {
	c.mutex.RLock()
	e, found := c.data[key]
	c.mutex.RUnlock()

	if found {
		e.markAsStale()
	}
}

func (c *Cache) getEntry(key interface{}) *entry {
	c.mutex.RLock()
	e, found := c.data[key]
	c.mutex.RUnlock()

	if found {
		return e
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, found = c.data[key]
	if !found {
		e = newEntry(key, c.load, c.refreshInterval, c.retryBackoff)
		c.data[key] = e
	}

	return e
}

func (c *Cache) monitor() {
	ticker := time.NewTicker(c.monitorInterval)
	defer ticker.Stop()

	defer c.wg.Done()

	for {
		select {
		case <-c.close:
			return
		case <-ticker.C:
			c.refresh()
		}
	}
}

func (c *Cache) refresh() {
	for _, e := range c.entries() {
		if !e.timeToRefresh() {
			continue
		}

		if err := e.load(withLock); err != nil {
			c.logger.Warn("Error refreshing cache entry", log.WithError(err),
				logfields.WithKey(fmt.Sprintf("%s", e.key)),
				logfields.WithCacheRefreshAttempts(int(e.loadAttempts())))
		} else {
			c.logger.Debug("Refreshed cache entry", logfields.WithKey(fmt.Sprintf("%s", e.key)))
		}
	}
}

func (c *Cache) entries() []*entry {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entries := make([]*entry, 0, len(c.data))

	for _, e := range c.data {
		entries = append(entries, e)
	}

	return entries
}

type entry struct {
	key             interface{}
	value           interface{}
	refreshInterval time.Duration
	retryBackoff    time.Duration
	nextRefreshTime time.Time
	loader          loader
	mutex           sync.RWMutex
	err             error
	attempts        uint
}

func newEntry(key interface{}, loader loader, refreshInterval, retryBackoff time.Duration) *entry {
	return &entry{
		key:             key,
		loader:          loader,
		refreshInterval: refreshInterval,
		retryBackoff:    retryBackoff,
	}
}

func (e *entry) Value() (interface{}, error) {
	e.mutex.RLock()
	value := e.value
	err := e.err
	e.mutex.RUnlock()

	if value != nil {
		return value, nil
	}

	if err != nil {
		// Return the error from the last load attempt. It is cleared at the next
		// successful refresh. This prevents a failing loader from being invoked on
		// every request.
		return nil, err
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.value != nil {
		return e.value, nil
	}

	if err := e.load(withNoLock); err != nil {
		e.err = err

		if e.refreshInterval > 0 {
			e.nextRefreshTime = time.Now().Add(e.retryBackoff)
		}

		return nil, err
	}

	return e.value, nil
}

func (e *entry) timeToRefresh() bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.nextRefreshTime.Before(time.Now())
}

func (e *entry) loadAttempts() uint {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.attempts
}

func (e *entry) markAsStale() {
	now := time.Now()

	e.mutex.Lock()
	e.nextRefreshTime = now
	e.mutex.Unlock()
}

type updater func()

type wrapper func(*entry, updater)

func (e *entry) load(wrap wrapper) error {
	v, err := e.loader(e.key)
	if err != nil {
		wrap(e, func() { e.attempts++ })

		return fmt.Errorf("load value: %w", err)
	}

	wrap(e,
		func() {
			e.attempts = 0
			e.value = v
			e.err = nil

			if e.refreshInterval > 0 {
				e.nextRefreshTime = time.Now().Add(e.refreshInterval)
			}
		},
	)

	return nil
}

// withLock locks the entry before calling update.
func withLock(e *entry, update updater) {
	e.mutex.Lock()
	update()
	e.mutex.Unlock()
}

// withNoLock calls update without locking. Used when the caller already holds
// the entry's lock.
func withNoLock(_ *entry, update updater) {
	update()
}
