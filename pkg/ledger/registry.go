/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ledger provides clients for the distributed-ledger collaborator
// holding schemas and credential definitions. The exchange core never caches
// ledger objects itself; the CachedRegistry decorator lets a deployment opt
// into client-side caching.
package ledger

import (
	"github.com/bluele/gcache"
	"github.com/pkg/errors"
)

// Registry resolves schemas and credential definitions from the ledger.
type Registry interface {
	// GetSchema returns the schema with the given id.
	GetSchema(schemaID string) (map[string]interface{}, error)
	// GetCredentialDefinition returns the credential definition with the given id.
	GetCredentialDefinition(credDefID string) (map[string]interface{}, error)
}

const (
	schemaKeyPrefix  = "schema_"
	credDefKeyPrefix = "creddef_"
)

// CachedRegistry is a read-through cache over another Registry. Ledger objects
// are immutable once written, so entries never need invalidation.
type CachedRegistry struct {
	next  Registry
	cache gcache.Cache
}

// NewCachedRegistry returns a CachedRegistry over next holding up to size
// entries.
func NewCachedRegistry(next Registry, size int) *CachedRegistry {
	// underlying gcache is threadsafe, no need of locks.
	return &CachedRegistry{
		next:  next,
		cache: gcache.New(size).ARC().Build(),
	}
}

// GetSchema returns the schema with the given id, from cache when possible.
func (r *CachedRegistry) GetSchema(schemaID string) (map[string]interface{}, error) {
	return r.get(schemaKeyPrefix+schemaID, func() (map[string]interface{}, error) {
		return r.next.GetSchema(schemaID)
	})
}

// GetCredentialDefinition returns the credential definition with the given id,
// from cache when possible.
func (r *CachedRegistry) GetCredentialDefinition(credDefID string) (map[string]interface{}, error) {
	return r.get(credDefKeyPrefix+credDefID, func() (map[string]interface{}, error) {
		return r.next.GetCredentialDefinition(credDefID)
	})
}

func (r *CachedRegistry) get(key string, resolve func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	if cached, err := r.cache.Get(key); err == nil {
		return cached.(map[string]interface{}), nil
	}

	value, err := resolve()
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", key)
	}

	if err := r.cache.Set(key, value); err != nil {
		return nil, errors.Wrapf(err, "cache %s", key)
	}

	return value, nil
}
