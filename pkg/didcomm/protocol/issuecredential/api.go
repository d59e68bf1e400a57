/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential

import (
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/trustridge/credex-go/pkg/store/connection"
)

// Issuer is the issuer-side credential crypto collaborator.
type Issuer interface {
	// CreateCredentialOffer builds the cryptographic offer payload for the
	// given credential definition.
	CreateCredentialOffer(credDefID string) (map[string]interface{}, error)
	// IssueCredential signs a credential for the given request against the
	// schema and credential definition, embedding the attribute values.
	IssueCredential(schema, credDef, offer, request map[string]interface{},
		values map[string]string) (map[string]interface{}, error)
}

// Holder is the holder-side credential crypto collaborator. Link-secret
// blinding happens behind CreateCredentialRequest.
type Holder interface {
	// CreateCredentialRequest builds the request payload for the given offer
	// and credential definition, bound to the holder DID. The returned
	// metadata is required later to store the issued credential.
	CreateCredentialRequest(holderDID string, credDef,
		offer map[string]interface{}) (request, metadata map[string]interface{}, err error)
	// StoreCredential persists the issued credential into the holder's wallet
	// and returns the local credential id.
	StoreCredential(credDef, credential, metadata map[string]interface{},
		credentialID string) (string, error)
}

// Ledger resolves schemas and credential definitions. Satisfied by
// ledger.Registry implementations.
type Ledger interface {
	GetSchema(schemaID string) (map[string]interface{}, error)
	GetCredentialDefinition(credDefID string) (map[string]interface{}, error)
}

// ConnectionLookup resolves connection records for readiness checks and
// holder DID lookup.
type ConnectionLookup interface {
	GetConnectionRecord(connectionID string) (*connection.Record, error)
}

// Outbound dispatches a protocol message to the agent owning the given
// connection. Delivery retries are the dispatcher's concern and must never
// re-invoke a manager operation.
type Outbound interface {
	SendToConnection(msg interface{}, connectionID string) error
}

// Provider contains dependencies for the credential exchange manager and is
// typically created by the framework context.
type Provider interface {
	StorageProvider() storage.Provider
	Issuer() Issuer
	Holder() Holder
	Ledger() Ledger
}

// Config carries the process-wide automation defaults. Effective values are
// captured onto each record at creation; later changes never affect in-flight
// exchanges.
type Config struct {
	// AutoOffer makes the issuer respond to proposals with an offer.
	AutoOffer bool
	// AutoIssue makes the issuer respond to requests with a credential.
	AutoIssue bool
	// AutoStore makes the holder store received credentials and ack.
	AutoStore bool
	// AutoRemove deletes exchange records once they reach the done state.
	AutoRemove bool
}
