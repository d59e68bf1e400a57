/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package connection

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperledger/aries-framework-go/spi/storage"
)

const (
	// Namespace is the namespace of the connection store name.
	Namespace = "connections"

	keyPattern      = "%s_%s"
	connIDKeyPrefix = "conn"

	// StateCompleted is the state of a connection that is ready for use.
	StateCompleted = "completed"
)

// ErrConnectionNotFound is returned when no connection record exists for an id.
var ErrConnectionNotFound = errors.New("connection record not found")

type provider interface {
	StorageProvider() storage.Provider
}

// Record contains info about a connection to another agent. The connection
// subsystem owns its lifecycle; this package only reads and caches it.
type Record struct {
	ConnectionID    string `json:"connection_id"`
	State           string `json:"state"`
	ThreadID        string `json:"thread_id,omitempty"`
	TheirLabel      string `json:"their_label,omitempty"`
	TheirDID        string `json:"their_did,omitempty"`
	MyDID           string `json:"my_did,omitempty"`
	ServiceEndpoint string `json:"service_endpoint,omitempty"`
}

// IsReady reports whether the connection can carry protocol messages.
func (r *Record) IsReady() bool {
	return r.State == StateCompleted
}

// Lookup is a read-only connection store.
type Lookup struct {
	store storage.Store
}

// NewLookup returns a new connection lookup instance.
func NewLookup(p provider) (*Lookup, error) {
	store, err := p.StorageProvider().OpenStore(Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection store: %w", err)
	}

	return &Lookup{store: store}, nil
}

// GetConnectionRecord returns the connection record for the given connection ID.
func (c *Lookup) GetConnectionRecord(connectionID string) (*Record, error) {
	src, err := c.store.Get(getConnectionKey(connectionID))
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("connection %s: %w", connectionID, ErrConnectionNotFound)
		}

		return nil, fmt.Errorf("get connection record %s: %w", connectionID, err)
	}

	record := &Record{}
	if err := json.Unmarshal(src, record); err != nil {
		return nil, fmt.Errorf("unmarshal connection record: %w", err)
	}

	return record, nil
}

func getConnectionKey(connectionID string) string {
	return fmt.Sprintf(keyPattern, connIDKeyPrefix, connectionID)
}
