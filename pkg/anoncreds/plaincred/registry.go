/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package plaincred

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/spi/storage"
)

const registryNamespace = "plaincred_registry"

const (
	schemaKeyPrefix  = "schema_"
	credDefKeyPrefix = "creddef_"
)

// LocalRegistry is a storage-backed schema and credential definition registry
// for deployments without a ledger. It satisfies the same interface as the
// HTTP ledger binding and additionally lets schemas and definitions be
// published locally.
type LocalRegistry struct {
	store storage.Store
}

// NewLocalRegistry opens the registry over the given storage provider.
func NewLocalRegistry(provider storage.Provider) (*LocalRegistry, error) {
	store, err := provider.OpenStore(registryNamespace)
	if err != nil {
		return nil, fmt.Errorf("open registry store: %w", err)
	}

	return &LocalRegistry{store: store}, nil
}

// CreateSchema publishes a schema and returns its id.
func (r *LocalRegistry) CreateSchema(name, version string, attrNames []string) (string, error) {
	if name == "" || version == "" || len(attrNames) == 0 {
		return "", fmt.Errorf("schema name, version and attribute names are required")
	}

	schemaID := fmt.Sprintf("%s:2:%s:%s", uuid.New().String(), name, version)

	schema := map[string]interface{}{
		"id":        schemaID,
		"name":      name,
		"version":   version,
		"attrNames": attrNames,
	}

	if err := r.put(schemaKeyPrefix+schemaID, schema); err != nil {
		return "", err
	}

	return schemaID, nil
}

// CreateCredentialDefinition publishes a credential definition against a
// schema and returns its id.
func (r *LocalRegistry) CreateCredentialDefinition(schemaID, tag string) (string, error) {
	if _, err := r.GetSchema(schemaID); err != nil {
		return "", err
	}

	if tag == "" {
		tag = "default"
	}

	credDefID := fmt.Sprintf("%s:3:CL:%s:%s", uuid.New().String(), schemaID, tag)

	credDef := map[string]interface{}{
		"id":       credDefID,
		"schemaId": schemaID,
		"tag":      tag,
		"type":     "CL",
	}

	if err := r.put(credDefKeyPrefix+credDefID, credDef); err != nil {
		return "", err
	}

	return credDefID, nil
}

// GetSchema returns the published schema with the given id.
func (r *LocalRegistry) GetSchema(schemaID string) (map[string]interface{}, error) {
	return r.get(schemaKeyPrefix+schemaID, "schema", schemaID)
}

// GetCredentialDefinition returns the published credential definition with
// the given id.
func (r *LocalRegistry) GetCredentialDefinition(credDefID string) (map[string]interface{}, error) {
	return r.get(credDefKeyPrefix+credDefID, "credential definition", credDefID)
}

func (r *LocalRegistry) put(key string, payload map[string]interface{}) error {
	bits, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal registry entry: %w", err)
	}

	if err := r.store.Put(key, bits); err != nil {
		return fmt.Errorf("save registry entry %s: %w", key, err)
	}

	return nil
}

func (r *LocalRegistry) get(key, kind, id string) (map[string]interface{}, error) {
	bits, err := r.store.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("%s %s not found", kind, id)
		}

		return nil, fmt.Errorf("get %s %s: %w", kind, id, err)
	}

	payload := map[string]interface{}{}
	if err := json.Unmarshal(bits, &payload); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}

	return payload, nil
}

func marshal(payload map[string]interface{}) ([]byte, error) {
	return json.Marshal(payload)
}

func unmarshal(bits []byte, payload *map[string]interface{}) error {
	return json.Unmarshal(bits, payload)
}
