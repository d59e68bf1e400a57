/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package plaincred provides development-grade issuer and holder
// collaborators. Payloads carry the same fields as their anoncreds
// counterparts but no zero-knowledge cryptography; the holder wallet is a
// plain storage namespace. Production deployments plug real wallet
// implementations in behind the same interfaces.
package plaincred

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/spi/storage"
)

const walletNamespace = "plaincred_wallet"

// Issuer is a non-cryptographic issuer collaborator.
type Issuer struct{}

// NewIssuer returns a development issuer.
func NewIssuer() *Issuer {
	return &Issuer{}
}

// CreateCredentialOffer builds an offer payload carrying a fresh nonce.
func (i *Issuer) CreateCredentialOffer(credDefID string) (map[string]interface{}, error) {
	if credDefID == "" {
		return nil, fmt.Errorf("credential definition id is required")
	}

	return map[string]interface{}{
		"cred_def_id": credDefID,
		"nonce":       uuid.New().String(),
	}, nil
}

// IssueCredential builds a signed-credential payload embedding the attribute
// values, bound to the request's nonce.
func (i *Issuer) IssueCredential(schema, credDef, offer, request map[string]interface{},
	values map[string]string) (map[string]interface{}, error) {
	if request == nil {
		return nil, fmt.Errorf("credential request is required")
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("attribute values are required")
	}

	attrs := map[string]interface{}{}
	for name, value := range values {
		attrs[name] = map[string]interface{}{"raw": value}
	}

	credential := map[string]interface{}{
		"schema_id":   stringField(schema, "id"),
		"cred_def_id": stringField(credDef, "id"),
		"values":      attrs,
	}

	if nonce, ok := request["nonce"]; ok {
		credential["nonce"] = nonce
	}

	return credential, nil
}

// Holder is a non-cryptographic holder collaborator storing credentials in a
// dedicated storage namespace.
type Holder struct {
	store storage.Store
}

// NewHolder returns a development holder backed by the given provider.
func NewHolder(provider storage.Provider) (*Holder, error) {
	store, err := provider.OpenStore(walletNamespace)
	if err != nil {
		return nil, fmt.Errorf("open wallet store: %w", err)
	}

	return &Holder{store: store}, nil
}

// CreateCredentialRequest builds a request payload echoing the offer nonce,
// bound to the holder DID. The returned metadata must be presented back when
// storing the issued credential.
func (h *Holder) CreateCredentialRequest(holderDID string, credDef,
	offer map[string]interface{}) (request, metadata map[string]interface{}, err error) {
	if holderDID == "" {
		return nil, nil, fmt.Errorf("holder DID is required")
	}

	if offer == nil {
		return nil, nil, fmt.Errorf("credential offer is required")
	}

	nonce := offer["nonce"]

	request = map[string]interface{}{
		"prover_did":  holderDID,
		"cred_def_id": stringField(credDef, "id"),
		"nonce":       nonce,
	}

	metadata = map[string]interface{}{
		"master_secret_name": holderDID,
		"nonce":              nonce,
	}

	return request, metadata, nil
}

// StoreCredential verifies the credential against the request metadata and
// writes it to the wallet, returning the credential id.
func (h *Holder) StoreCredential(credDef, credential, metadata map[string]interface{},
	credentialID string) (string, error) {
	if credential == nil {
		return "", fmt.Errorf("credential is required")
	}

	if metadata != nil && metadata["nonce"] != credential["nonce"] {
		return "", fmt.Errorf("credential nonce does not match request metadata")
	}

	if credentialID == "" {
		credentialID = uuid.New().String()
	}

	payload, err := marshal(credential)
	if err != nil {
		return "", fmt.Errorf("marshal credential: %w", err)
	}

	if err := h.store.Put(credentialID, payload); err != nil {
		return "", fmt.Errorf("store credential %s: %w", credentialID, err)
	}

	return credentialID, nil
}

// GetCredential reads a stored credential back from the wallet.
func (h *Holder) GetCredential(credentialID string) (map[string]interface{}, error) {
	payload, err := h.store.Get(credentialID)
	if err != nil {
		return nil, fmt.Errorf("get credential %s: %w", credentialID, err)
	}

	credential := map[string]interface{}{}
	if err := unmarshal(payload, &credential); err != nil {
		return nil, fmt.Errorf("decode credential %s: %w", credentialID, err)
	}

	return credential, nil
}

func stringField(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}

	value, _ := payload[key].(string)

	return value
}
