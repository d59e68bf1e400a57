/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package issuecredential provides hand-rolled mocks for the credential
// exchange collaborators.
package issuecredential

import (
	"github.com/hyperledger/aries-framework-go/spi/storage"

	protocol "github.com/trustridge/credex-go/pkg/didcomm/protocol/issuecredential"
	"github.com/trustridge/credex-go/pkg/store/connection"
)

// Issuer mocks the issuer-side crypto collaborator.
type Issuer struct {
	CreateOfferValue map[string]interface{}
	CreateOfferErr   error
	CredentialValue  map[string]interface{}
	CredentialErr    error
	IssuedValues     map[string]string
}

// CreateCredentialOffer returns the configured offer payload.
func (i *Issuer) CreateCredentialOffer(credDefID string) (map[string]interface{}, error) {
	if i.CreateOfferErr != nil {
		return nil, i.CreateOfferErr
	}

	if i.CreateOfferValue != nil {
		return i.CreateOfferValue, nil
	}

	return map[string]interface{}{"cred_def_id": credDefID, "nonce": "nonce-1"}, nil
}

// IssueCredential returns the configured credential payload and records the
// values it was invoked with.
func (i *Issuer) IssueCredential(schema, credDef, offer, request map[string]interface{},
	values map[string]string) (map[string]interface{}, error) {
	i.IssuedValues = values

	if i.CredentialErr != nil {
		return nil, i.CredentialErr
	}

	if i.CredentialValue != nil {
		return i.CredentialValue, nil
	}

	return map[string]interface{}{"values": values}, nil
}

// Holder mocks the holder-side crypto collaborator.
type Holder struct {
	RequestValue  map[string]interface{}
	MetadataValue map[string]interface{}
	RequestErr    error
	StoredID      string
	StoreErr      error
	StoredWith    map[string]interface{}
}

// CreateCredentialRequest returns the configured request and metadata.
func (h *Holder) CreateCredentialRequest(holderDID string, credDef,
	offer map[string]interface{}) (map[string]interface{}, map[string]interface{}, error) {
	if h.RequestErr != nil {
		return nil, nil, h.RequestErr
	}

	request := h.RequestValue
	if request == nil {
		request = map[string]interface{}{"prover_did": holderDID}
	}

	metadata := h.MetadataValue
	if metadata == nil {
		metadata = map[string]interface{}{"master_secret_name": holderDID}
	}

	return request, metadata, nil
}

// StoreCredential returns the configured credential id and records the
// credential it was given.
func (h *Holder) StoreCredential(credDef, credential, metadata map[string]interface{},
	credentialID string) (string, error) {
	h.StoredWith = credential

	if h.StoreErr != nil {
		return "", h.StoreErr
	}

	if h.StoredID != "" {
		return h.StoredID, nil
	}

	if credentialID != "" {
		return credentialID, nil
	}

	return "mock-credential-id", nil
}

// Ledger mocks schema and credential definition resolution.
type Ledger struct {
	SchemaValue  map[string]interface{}
	SchemaErr    error
	CredDefValue map[string]interface{}
	CredDefErr   error
}

// GetSchema returns the configured schema.
func (l *Ledger) GetSchema(schemaID string) (map[string]interface{}, error) {
	if l.SchemaErr != nil {
		return nil, l.SchemaErr
	}

	if l.SchemaValue != nil {
		return l.SchemaValue, nil
	}

	return map[string]interface{}{"id": schemaID}, nil
}

// GetCredentialDefinition returns the configured credential definition.
func (l *Ledger) GetCredentialDefinition(credDefID string) (map[string]interface{}, error) {
	if l.CredDefErr != nil {
		return nil, l.CredDefErr
	}

	if l.CredDefValue != nil {
		return l.CredDefValue, nil
	}

	return map[string]interface{}{"id": credDefID}, nil
}

// Outbound records dispatched messages.
type Outbound struct {
	SendErr       error
	SentMessages  []interface{}
	SentToConnIDs []string
}

// SendToConnection records the message and destination.
func (o *Outbound) SendToConnection(msg interface{}, connectionID string) error {
	if o.SendErr != nil {
		return o.SendErr
	}

	o.SentMessages = append(o.SentMessages, msg)
	o.SentToConnIDs = append(o.SentToConnIDs, connectionID)

	return nil
}

// ConnectionLookup serves connection records from a map.
type ConnectionLookup struct {
	Records map[string]*connection.Record
	Err     error
}

// GetConnectionRecord returns the record for the given id.
func (c *ConnectionLookup) GetConnectionRecord(connectionID string) (*connection.Record, error) {
	if c.Err != nil {
		return nil, c.Err
	}

	record, ok := c.Records[connectionID]
	if !ok {
		return nil, connection.ErrConnectionNotFound
	}

	return record, nil
}

// Provider mocks the manager's dependency provider.
type Provider struct {
	StorageProviderValue storage.Provider
	IssuerValue          protocol.Issuer
	HolderValue          protocol.Holder
	LedgerValue          protocol.Ledger
}

// StorageProvider returns the configured storage provider.
func (p *Provider) StorageProvider() storage.Provider {
	return p.StorageProviderValue
}

// Issuer returns the configured issuer.
func (p *Provider) Issuer() protocol.Issuer {
	return p.IssuerValue
}

// Holder returns the configured holder.
func (p *Provider) Holder() protocol.Holder {
	return p.HolderValue
}

// Ledger returns the configured ledger.
func (p *Provider) Ledger() protocol.Ledger {
	return p.LedgerValue
}
