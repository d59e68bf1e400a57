/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential

import (
	protocol "github.com/trustridge/credex-go/pkg/didcomm/protocol/issuecredential"
	"github.com/trustridge/credex-go/pkg/store/credexchange"
)

// RecordsArgs model
//
// for querying credential exchange records.
type RecordsArgs struct {
	// ConnectionID narrows results to one connection.
	ConnectionID string `json:"connection_id,omitempty"`
	// ThreadID narrows results to one protocol thread.
	ThreadID string `json:"thread_id,omitempty"`
	// State narrows results to one exchange state.
	State string `json:"state,omitempty"`
	// Role narrows results to issuer or holder records.
	Role string `json:"role,omitempty"`
}

// RecordsResponse model
//
// lists credential exchange records.
type RecordsResponse struct {
	Results []*credexchange.Record `json:"results"`
}

// RecordArgs model
//
// identifies one credential exchange record.
type RecordArgs struct {
	// CredExID is the credential exchange record id.
	CredExID string `json:"cred_ex_id"`
}

// RecordResponse model
//
// wraps one credential exchange record.
type RecordResponse struct {
	Result *credexchange.Record `json:"result"`
}

// SendProposalArgs model
//
// starts a holder-side exchange by sending a proposal.
type SendProposalArgs struct {
	ConnectionID string `json:"connection_id"`

	Comment   string                      `json:"comment,omitempty"`
	Preview   *protocol.CredentialPreview `json:"credential_proposal,omitempty"`
	SchemaID  string                      `json:"schema_id,omitempty"`
	CredDefID string                      `json:"cred_def_id,omitempty"`

	AutoRemove *bool `json:"auto_remove,omitempty"`
	Trace      bool  `json:"trace,omitempty"`
}

// SendArgs model
//
// runs a fully automated issuer-side exchange from attribute values.
type SendArgs struct {
	ConnectionID string `json:"connection_id"`

	Comment   string                      `json:"comment,omitempty"`
	Preview   *protocol.CredentialPreview `json:"credential_proposal"`
	SchemaID  string                      `json:"schema_id,omitempty"`
	CredDefID string                      `json:"cred_def_id"`

	AutoRemove *bool `json:"auto_remove,omitempty"`
	Trace      bool  `json:"trace,omitempty"`
}

// CreateFreeOfferArgs model
//
// creates an offer that is not bound to a prior proposal.
type CreateFreeOfferArgs struct {
	// ConnectionID may be empty for offers delivered out-of-band.
	ConnectionID string `json:"connection_id,omitempty"`

	Comment   string                      `json:"comment,omitempty"`
	Preview   *protocol.CredentialPreview `json:"credential_preview,omitempty"`
	CredDefID string                      `json:"cred_def_id"`

	AutoIssue  *bool `json:"auto_issue,omitempty"`
	AutoRemove *bool `json:"auto_remove,omitempty"`
	Trace      bool  `json:"trace,omitempty"`
}

// OfferResponse model
//
// carries the created exchange record and the offer message.
type OfferResponse struct {
	Record *credexchange.Record      `json:"record"`
	Offer  *protocol.OfferCredential `json:"offer"`
}

// SendOfferArgs model
//
// replies to a received proposal with an offer.
type SendOfferArgs struct {
	CredExID string `json:"cred_ex_id"`

	Comment string `json:"comment,omitempty"`
	// CounterProposal overrides the stored proposal content when building
	// the offer.
	CounterProposal *protocol.ProposeCredential `json:"counter_proposal,omitempty"`
}

// SendRequestArgs model
//
// replies to a received offer with a credential request.
type SendRequestArgs struct {
	CredExID string `json:"cred_ex_id"`
	// HolderDID overrides the DID the request is bound to; defaults to the
	// connection's own DID.
	HolderDID string `json:"holder_did,omitempty"`
}

// IssueArgs model
//
// issues the credential for a received request.
type IssueArgs struct {
	CredExID string `json:"cred_ex_id"`
	Comment  string `json:"comment,omitempty"`
}

// StoreArgs model
//
// stores a received credential and acknowledges it.
type StoreArgs struct {
	CredExID string `json:"cred_ex_id"`
	// CredentialID is the wallet id to store under; generated when empty.
	CredentialID string `json:"credential_id,omitempty"`
}

// ProblemReportArgs model
//
// abandons an exchange and notifies the peer.
type ProblemReportArgs struct {
	CredExID    string `json:"cred_ex_id"`
	Description string `json:"description"`
}

// RemoveArgs model
//
// deletes a credential exchange record.
type RemoveArgs struct {
	CredExID string `json:"cred_ex_id"`
}
