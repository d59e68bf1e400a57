/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package credexchange

import "time"

// State is the credential exchange state as defined in RFC 0036.
type State string

// Credential exchange states. Issuer and holder occupy different states but
// share the enum; Done and Abandoned are terminal.
const (
	StateProposalSent       State = "proposal-sent"
	StateProposalReceived   State = "proposal-received"
	StateOfferSent          State = "offer-sent"
	StateOfferReceived      State = "offer-received"
	StateRequestSent        State = "request-sent"
	StateRequestReceived    State = "request-received"
	StateCredentialIssued   State = "credential-issued"
	StateCredentialReceived State = "credential-received"
	StateDone               State = "done"
	StateAbandoned          State = "abandoned"
)

// Terminal reports whether no further transition is legal from s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAbandoned
}

// Role of this agent in the exchange, fixed at record creation.
const (
	RoleIssuer = "issuer"
	RoleHolder = "holder"
)

// Initiator of the exchange, fixed at record creation.
const (
	InitiatorSelf     = "self"
	InitiatorExternal = "external"
)

// Record is the durable state of one issue-credential protocol instance.
//
// The four message snapshots (proposal, offer, request, credential) are
// write-once: each is set when the corresponding message is sent or received
// and never mutated afterwards. Use the Set*Dict methods rather than assigning
// the fields directly.
type Record struct {
	// ExchangeID uniquely identifies the record. Immutable.
	ExchangeID string `json:"exchange_id"`
	// ConnectionID references the external connection. Empty only for free
	// offers not yet bound to a connection.
	ConnectionID string `json:"connection_id,omitempty"`
	// ThreadID correlates all messages of one protocol run.
	ThreadID  string `json:"thread_id"`
	Initiator string `json:"initiator"`
	Role      string `json:"role"`
	State     State  `json:"state"`

	CredentialProposalDict map[string]interface{} `json:"credential_proposal_dict,omitempty"`
	CredentialOfferDict    map[string]interface{} `json:"credential_offer_dict,omitempty"`
	CredentialRequestDict  map[string]interface{} `json:"credential_request_dict,omitempty"`
	CredentialDict         map[string]interface{} `json:"credential_dict,omitempty"`

	// RequestMetadata holds the holder-side blinding metadata returned by the
	// holder collaborator when the credential request was created. It is
	// needed again when the issued credential is stored.
	RequestMetadata map[string]interface{} `json:"credential_request_metadata,omitempty"`

	// Denormalized from the proposal/offer for querying.
	CredentialDefinitionID string `json:"credential_definition_id,omitempty"`
	SchemaID               string `json:"schema_id,omitempty"`

	// CredentialID is the holder's local wallet id, assigned by the holder
	// collaborator when the credential is stored.
	CredentialID string `json:"credential_id,omitempty"`

	// Automation flags, captured at creation from request values or process
	// defaults. They are never re-read from configuration afterwards, so an
	// in-flight exchange keeps its behavior even if defaults change.
	AutoOffer  bool `json:"auto_offer,omitempty"`
	AutoIssue  bool `json:"auto_issue,omitempty"`
	AutoStore  bool `json:"auto_store,omitempty"`
	AutoRemove bool `json:"auto_remove,omitempty"`

	Trace bool `json:"trace,omitempty"`

	// ErrorMsg is set only when the error-state path runs.
	ErrorMsg string `json:"error_msg,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetProposalDict sets the proposal snapshot. It reports false if the slot is
// already populated.
func (r *Record) SetProposalDict(v map[string]interface{}) bool {
	if r.CredentialProposalDict != nil {
		return false
	}

	r.CredentialProposalDict = v

	return true
}

// SetOfferDict sets the offer snapshot. It reports false if the slot is
// already populated.
func (r *Record) SetOfferDict(v map[string]interface{}) bool {
	if r.CredentialOfferDict != nil {
		return false
	}

	r.CredentialOfferDict = v

	return true
}

// SetRequestDict sets the request snapshot. It reports false if the slot is
// already populated.
func (r *Record) SetRequestDict(v map[string]interface{}) bool {
	if r.CredentialRequestDict != nil {
		return false
	}

	r.CredentialRequestDict = v

	return true
}

// SetCredentialDict sets the issued-credential snapshot. It reports false if
// the slot is already populated.
func (r *Record) SetCredentialDict(v map[string]interface{}) bool {
	if r.CredentialDict != nil {
		return false
	}

	r.CredentialDict = v

	return true
}
