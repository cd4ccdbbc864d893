/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memstore

import (
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"

	"github.com/fedway/fedway/pkg/store/ariesstore"
)

// New returns an in-memory key-value store for the given namespace. It is
// intended for tests and single-node deployments.
func New(namespace string) (*ariesstore.Store, error) {
	return ariesstore.Open(mem.NewProvider(), namespace)
}
