/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential

import (
	"github.com/trustridge/credex-go/pkg/didcomm/protocol/decorator"
)

const (
	// Name defines the protocol name.
	Name = "issue-credential"
	// Spec defines the protocol spec.
	Spec = "https://didcomm.org/issue-credential/1.0/"
	// ProposeCredentialMsgType defines the protocol propose-credential message type.
	ProposeCredentialMsgType = Spec + "propose-credential"
	// OfferCredentialMsgType defines the protocol offer-credential message type.
	OfferCredentialMsgType = Spec + "offer-credential"
	// RequestCredentialMsgType defines the protocol request-credential message type.
	RequestCredentialMsgType = Spec + "request-credential"
	// IssueCredentialMsgType defines the protocol issue-credential message type.
	IssueCredentialMsgType = Spec + "issue-credential"
	// AckMsgType defines the protocol ack message type.
	AckMsgType = Spec + "ack"
	// ProblemReportMsgType defines the protocol problem-report message type.
	ProblemReportMsgType = Spec + "problem-report"
	// CredentialPreviewMsgType defines the credential-preview inner object type.
	CredentialPreviewMsgType = Spec + "credential-preview"
)

// CredentialPreview is the inner object carrying proposed credential attribute
// values.
type CredentialPreview struct {
	Type       string             `json:"@type,omitempty"`
	Attributes []PreviewAttribute `json:"attributes"`
}

// PreviewAttribute is one attribute of a credential preview.
type PreviewAttribute struct {
	Name     string `json:"name"`
	MimeType string `json:"mime-type,omitempty"`
	Value    string `json:"value"`
}

// Values returns the preview attributes as a name->value map.
func (p *CredentialPreview) Values() map[string]string {
	values := make(map[string]string, len(p.Attributes))
	for _, attr := range p.Attributes {
		values[attr.Name] = attr.Value
	}

	return values
}

// ProposeCredential is an optional message sent by the potential holder to the
// issuer to initiate the protocol or to request adjustments to an offer.
type ProposeCredential struct {
	Type    string `json:"@type,omitempty"`
	ID      string `json:"@id,omitempty"`
	Comment string `json:"comment,omitempty"`
	// CredentialProposal represents the credential attribute values the holder
	// wants to receive.
	CredentialProposal *CredentialPreview `json:"credential_proposal,omitempty"`
	Thread             *decorator.Thread  `json:"~thread,omitempty"`

	// Filter attributes narrowing which credential is being proposed.
	SchemaID               string `json:"schema_id,omitempty"`
	SchemaIssuerDID        string `json:"schema_issuer_did,omitempty"`
	SchemaName             string `json:"schema_name,omitempty"`
	SchemaVersion          string `json:"schema_version,omitempty"`
	CredentialDefinitionID string `json:"cred_def_id,omitempty"`
	IssuerDID              string `json:"issuer_did,omitempty"`
}

// OfferCredential is a message sent by the issuer to the potential holder,
// describing the credential they intend to offer.
type OfferCredential struct {
	Type              string                 `json:"@type,omitempty"`
	ID                string                 `json:"@id,omitempty"`
	Comment           string                 `json:"comment,omitempty"`
	CredentialPreview *CredentialPreview     `json:"credential_preview,omitempty"`
	OffersAttach      []decorator.Attachment `json:"offers~attach,omitempty"`
	Thread            *decorator.Thread      `json:"~thread,omitempty"`
}

// RequestCredential is a message sent by the holder requesting issuance of the
// offered credential.
type RequestCredential struct {
	Type           string                 `json:"@type,omitempty"`
	ID             string                 `json:"@id,omitempty"`
	Comment        string                 `json:"comment,omitempty"`
	RequestsAttach []decorator.Attachment `json:"requests~attach,omitempty"`
	Thread         *decorator.Thread      `json:"~thread,omitempty"`
}

// IssueCredential carries the issued credential from the issuer to the holder.
type IssueCredential struct {
	Type              string                 `json:"@type,omitempty"`
	ID                string                 `json:"@id,omitempty"`
	Comment           string                 `json:"comment,omitempty"`
	CredentialsAttach []decorator.Attachment `json:"credentials~attach,omitempty"`
	Thread            *decorator.Thread      `json:"~thread,omitempty"`
}

// Ack is the final handshake message of the protocol.
type Ack struct {
	Type   string            `json:"@type,omitempty"`
	ID     string            `json:"@id,omitempty"`
	Status string            `json:"status,omitempty"`
	Thread *decorator.Thread `json:"~thread,omitempty"`
}

// ProblemReport notifies the counterparty that the exchange is abandoned.
type ProblemReport struct {
	Type        string            `json:"@type,omitempty"`
	ID          string            `json:"@id,omitempty"`
	Description ProblemReportDesc `json:"description,omitempty"`
	Thread      *decorator.Thread `json:"~thread,omitempty"`
}

// ProblemReportDesc is a human-readable problem description with a machine
// code.
type ProblemReportDesc struct {
	En   string `json:"en,omitempty"`
	Code string `json:"code,omitempty"`
}

// threadID returns the protocol thread id given a message's own id and thread
// decorator: the first message of a run has no ~thread, so its id starts the
// thread.
func threadID(msgID string, thread *decorator.Thread) string {
	if thread != nil && thread.ID != "" {
		return thread.ID
	}

	return msgID
}

// ThreadID returns the thread this proposal belongs to.
func (m *ProposeCredential) ThreadID() string { return threadID(m.ID, m.Thread) }

// ThreadID returns the thread this offer belongs to.
func (m *OfferCredential) ThreadID() string { return threadID(m.ID, m.Thread) }

// ThreadID returns the thread this request belongs to.
func (m *RequestCredential) ThreadID() string { return threadID(m.ID, m.Thread) }

// ThreadID returns the thread this credential message belongs to.
func (m *IssueCredential) ThreadID() string { return threadID(m.ID, m.Thread) }

// ThreadID returns the thread this ack belongs to.
func (m *Ack) ThreadID() string { return threadID(m.ID, m.Thread) }

// ThreadID returns the thread this problem report belongs to.
func (m *ProblemReport) ThreadID() string { return threadID(m.ID, m.Thread) }
