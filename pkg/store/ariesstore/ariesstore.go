/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ariesstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	ariesstorage "github.com/hyperledger/aries-framework-go/spi/storage"

	federrors "github.com/fedway/fedway/pkg/errors"
	"github.com/fedway/fedway/pkg/store/spi"
)

// Store implements the key-value store contract backed by an Aries storage provider,
// which allows the same code to run against in-memory, MongoDB and other backends.
type Store struct {
	namespace string
	store     ariesstorage.Store

	claimMutex sync.Mutex
}

type storedValue struct {
	Value     []byte `json:"value"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

// Open opens the store for the given namespace.
func Open(provider ariesstorage.Provider, namespace string) (*Store, error) {
	s, err := provider.OpenStore(namespace)
	if err != nil {
		return nil, fmt.Errorf("open store [%s]: %w", namespace, err)
	}

	return &Store{
		namespace: namespace,
		store:     s,
	}, nil
}

// Get returns the value for the given key.
func (s *Store) Get(key spi.Key) ([]byte, error) {
	valueBytes, err := s.store.Get(key.String())
	if err != nil {
		if errors.Is(err, ariesstorage.ErrDataNotFound) {
			return nil, federrors.ErrNotFound
		}

		return nil, federrors.NewTransient(fmt.Errorf("get [%s]: %w", key, err))
	}

	value := &storedValue{}
	if err := json.Unmarshal(valueBytes, value); err != nil {
		return nil, fmt.Errorf("unmarshal stored value [%s]: %w", key, err)
	}

	if s.expired(value) {
		if err := s.store.Delete(key.String()); err != nil {
			return nil, federrors.NewTransient(fmt.Errorf("delete expired entry [%s]: %w", key, err))
		}

		return nil, federrors.ErrNotFound
	}

	return value.Value, nil
}

// Put stores the value under the given key.
func (s *Store) Put(key spi.Key, value []byte, opts ...spi.Option) error {
	valueBytes, err := json.Marshal(newStoredValue(value, spi.GetOptions(opts...)))
	if err != nil {
		return fmt.Errorf("marshal stored value [%s]: %w", key, err)
	}

	if err := s.store.Put(key.String(), valueBytes); err != nil {
		return federrors.NewTransient(fmt.Errorf("put [%s]: %w", key, err))
	}

	return nil
}

// PutIfAbsent stores the value under the given key only if no live entry exists,
// returning true if this call claimed the key. Concurrent in-process calls on the
// same store are serialized. The value is written as a new-key insert, so backends
// that detect duplicate keys on insert (such as MongoDB) reject a claim made by
// another process between the existence check and the write.
func (s *Store) PutIfAbsent(key spi.Key, value []byte, opts ...spi.Option) (bool, error) {
	s.claimMutex.Lock()
	defer s.claimMutex.Unlock()

	// Get also reclaims an expired entry so that the insert below may succeed.
	_, err := s.Get(key)
	if err == nil {
		return false, nil
	}

	if !errors.Is(err, federrors.ErrNotFound) {
		return false, err
	}

	valueBytes, err := json.Marshal(newStoredValue(value, spi.GetOptions(opts...)))
	if err != nil {
		return false, fmt.Errorf("marshal stored value [%s]: %w", key, err)
	}

	err = s.store.Batch([]ariesstorage.Operation{{
		Key:        key.String(),
		Value:      valueBytes,
		PutOptions: &ariesstorage.PutOptions{IsNewKey: true},
	}})
	if err != nil {
		if errors.Is(err, ariesstorage.ErrDuplicateKey) {
			return false, nil
		}

		return false, federrors.NewTransient(fmt.Errorf("put if absent [%s]: %w", key, err))
	}

	return true, nil
}

// Delete removes the value for the given key.
func (s *Store) Delete(key spi.Key) error {
	if err := s.store.Delete(key.String()); err != nil {
		return federrors.NewTransient(fmt.Errorf("delete [%s]: %w", key, err))
	}

	return nil
}

func newStoredValue(value []byte, opts *spi.Options) *storedValue {
	sv := &storedValue{Value: value}

	if opts.TTL > 0 {
		sv.ExpiresAt = time.Now().Add(opts.TTL).UnixNano()
	}

	return sv
}

func (s *Store) expired(value *storedValue) bool {
	return value.ExpiresAt > 0 && time.Now().UnixNano() >= value.ExpiresAt
}
