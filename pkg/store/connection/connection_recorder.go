/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package connection

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Recorder persists connection records. Intended for the connection subsystem
// and for tests; protocol code only needs Lookup.
type Recorder struct {
	*Lookup
}

// NewRecorder returns a new connection recorder.
func NewRecorder(p provider) (*Recorder, error) {
	lookup, err := NewLookup(p)
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup: %w", err)
	}

	return &Recorder{Lookup: lookup}, nil
}

// SaveConnectionRecord persists the given connection record.
func (c *Recorder) SaveConnectionRecord(record *Record) error {
	if record.ConnectionID == "" {
		return errors.New("connection ID is required")
	}

	src, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal connection record: %w", err)
	}

	return c.store.Put(getConnectionKey(record.ConnectionID), src)
}
