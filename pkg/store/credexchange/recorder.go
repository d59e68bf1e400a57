/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package credexchange

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"
)

const (
	// Namespace is the namespace of the credential exchange store name.
	Namespace = "issuecredential"

	keyPattern       = "%s_%s"
	credExKeyPrefix  = "credex"
	tagNameThreadID  = "thread_id"
	tagNameConnID    = "connection_id"
	tagNameState     = "state"
	tagNameRole      = "role"
	tagNameCredDefID = "cred_def_id"
)

var logger = log.New("credex/store/credexchange")

// ErrNotFound is returned when no credential exchange record matches a lookup.
var ErrNotFound = errors.New("credential exchange record not found")

type provider interface {
	StorageProvider() storage.Provider
}

// Recorder persists credential exchange records.
//
// It treats the underlying store as providing per-record read-modify-write
// semantics: a record is retrieved, mutated in memory and written back as one
// logical unit. Serializing concurrent updates to the same record id is the
// store's responsibility.
type Recorder struct {
	store storage.Store
}

// NewRecorder returns a new credential exchange recorder.
func NewRecorder(p provider) (*Recorder, error) {
	store, err := p.StorageProvider().OpenStore(Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential exchange store: %w", err)
	}

	err = p.StorageProvider().SetStoreConfig(Namespace, storage.StoreConfiguration{
		TagNames: []string{tagNameThreadID, tagNameConnID, tagNameState, tagNameRole, tagNameCredDefID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set credential exchange store config: %w", err)
	}

	return &Recorder{store: store}, nil
}

// Save persists the record, updating its timestamps and query tags.
func (r *Recorder) Save(record *Record) error {
	if record.ExchangeID == "" {
		return errors.New("exchange ID is required to persist a record")
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	record.UpdatedAt = now

	src, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal credential exchange record: %w", err)
	}

	return r.store.Put(getCredExKey(record.ExchangeID), src, recordTags(record)...)
}

// GetByID returns the record with the given exchange ID.
func (r *Recorder) GetByID(exchangeID string) (*Record, error) {
	src, err := r.store.Get(getCredExKey(exchangeID))
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("get credential exchange record %s: %w", exchangeID, ErrNotFound)
		}

		return nil, fmt.Errorf("get credential exchange record %s: %w", exchangeID, err)
	}

	record := &Record{}
	if err := json.Unmarshal(src, record); err != nil {
		return nil, fmt.Errorf("unmarshal credential exchange record: %w", err)
	}

	return record, nil
}

// GetByThreadID returns the record correlated to the given thread ID.
func (r *Recorder) GetByThreadID(threadID string) (*Record, error) {
	records, err := r.Query(tagNameThreadID + ":" + threadID)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}

	return records[0], nil
}

// Query returns all records satisfying the given tag expression
// (TagName:TagValue pairs joined with &&). An empty expression returns all
// records.
func (r *Recorder) Query(expressions ...string) ([]*Record, error) {
	expression := tagNameRole
	if len(expressions) > 0 && expressions[0] != "" {
		expression = strings.Join(expressions, "&&")
	}

	itr, err := r.store.Query(expression)
	if err != nil {
		return nil, fmt.Errorf("query credential exchange records: %w", err)
	}

	defer storage.Close(itr, logger)

	var records []*Record

	more, err := itr.Next()
	if err != nil {
		return nil, fmt.Errorf("iterate credential exchange records: %w", err)
	}

	for more {
		src, err := itr.Value()
		if err != nil {
			return nil, fmt.Errorf("read credential exchange record: %w", err)
		}

		record := &Record{}
		if err := json.Unmarshal(src, record); err != nil {
			return nil, fmt.Errorf("unmarshal credential exchange record: %w", err)
		}

		records = append(records, record)

		more, err = itr.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate credential exchange records: %w", err)
		}
	}

	return records, nil
}

// Delete removes the record with the given exchange ID.
func (r *Recorder) Delete(exchangeID string) error {
	if _, err := r.GetByID(exchangeID); err != nil {
		return err
	}

	return r.store.Delete(getCredExKey(exchangeID))
}

func recordTags(record *Record) []storage.Tag {
	tags := []storage.Tag{
		{Name: tagNameThreadID, Value: record.ThreadID},
		{Name: tagNameState, Value: string(record.State)},
		{Name: tagNameRole, Value: record.Role},
	}

	if record.ConnectionID != "" {
		tags = append(tags, storage.Tag{Name: tagNameConnID, Value: record.ConnectionID})
	}

	if record.CredentialDefinitionID != "" {
		tags = append(tags, storage.Tag{Name: tagNameCredDefID, Value: record.CredentialDefinitionID})
	}

	return tags
}

func getCredExKey(exchangeID string) string {
	return fmt.Sprintf(keyPattern, credExKeyPrefix, exchangeID)
}
