/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/trustridge/credex-go/pkg/common/utils"
	"github.com/trustridge/credex-go/pkg/didcomm/protocol/decorator"
	"github.com/trustridge/credex-go/pkg/store/credexchange"
)

var logger = log.New("credex/issuecredential")

// Manager drives the credential exchange state machine. Every operation
// validates the record's role and current state, performs exactly one
// transition, persists the updated record and, for creation operations,
// returns the next outbound protocol message. The caller owns wire delivery;
// redelivering a returned message must never re-invoke the operation that
// produced it.
type Manager struct {
	recorder *credexchange.Recorder
	issuer   Issuer
	holder   Holder
	ledger   Ledger
	config   Config
}

// NewManager returns a credential exchange manager.
func NewManager(p Provider, config Config) (*Manager, error) {
	recorder, err := credexchange.NewRecorder(p)
	if err != nil {
		return nil, fmt.Errorf("create exchange recorder: %w", err)
	}

	return &Manager{
		recorder: recorder,
		issuer:   p.Issuer(),
		holder:   p.Holder(),
		ledger:   p.Ledger(),
		config:   config,
	}, nil
}

// Recorder exposes the exchange record store for read-side consumers such as
// the administrative API.
func (m *Manager) Recorder() *credexchange.Recorder {
	return m.recorder
}

// RecordOptions carries per-request overrides captured onto the record at
// creation time. Nil pointers fall back to the process-wide defaults.
type RecordOptions struct {
	AutoOffer  *bool
	AutoIssue  *bool
	AutoStore  *bool
	AutoRemove *bool
	Trace      bool
}

func (m *Manager) effectiveFlags(opts *RecordOptions) (autoOffer, autoIssue, autoStore, autoRemove, trace bool) {
	autoOffer, autoIssue, autoStore, autoRemove = m.config.AutoOffer, m.config.AutoIssue, m.config.AutoStore, m.config.AutoRemove

	if opts == nil {
		return autoOffer, autoIssue, autoStore, autoRemove, false
	}

	if opts.AutoOffer != nil {
		autoOffer = *opts.AutoOffer
	}

	if opts.AutoIssue != nil {
		autoIssue = *opts.AutoIssue
	}

	if opts.AutoStore != nil {
		autoStore = *opts.AutoStore
	}

	if opts.AutoRemove != nil {
		autoRemove = *opts.AutoRemove
	}

	return autoOffer, autoIssue, autoStore, autoRemove, opts.Trace
}

func (m *Manager) newRecord(connectionID, threadID, role, initiator string, opts *RecordOptions) *credexchange.Record {
	autoOffer, autoIssue, autoStore, autoRemove, trace := m.effectiveFlags(opts)

	return &credexchange.Record{
		ExchangeID:   uuid.New().String(),
		ConnectionID: connectionID,
		ThreadID:     threadID,
		Role:         role,
		Initiator:    initiator,
		AutoOffer:    autoOffer,
		AutoIssue:    autoIssue,
		AutoStore:    autoStore,
		AutoRemove:   autoRemove,
		Trace:        trace,
	}
}

// save persists the record, mapping storage failures to the storage error
// kind. Storage errors are always propagated, never swallowed.
func (m *Manager) save(record *credexchange.Record) error {
	if err := m.recorder.Save(record); err != nil {
		return wrapError(KindStorageFailure, record, err, "persist credential exchange %s", record.ExchangeID)
	}

	return nil
}

// transition moves the record along one edge of the protocol graph and
// persists it.
func (m *Manager) transition(record *credexchange.Record, to credexchange.State) error {
	if !canTransition(record.State, to) {
		return newError(KindStateConflict, record,
			"illegal transition %s -> %s on credential exchange %s", record.State, to, record.ExchangeID)
	}

	record.State = to

	return m.save(record)
}

func (m *Manager) getByThread(threadID string) (*credexchange.Record, error) {
	record, err := m.recorder.GetByThreadID(threadID)
	if err != nil {
		if errors.Is(err, credexchange.ErrNotFound) {
			return nil, wrapError(KindNotFound, nil, err, "no credential exchange for thread %s", threadID)
		}

		return nil, wrapError(KindStorageFailure, nil, err, "lookup credential exchange for thread %s", threadID)
	}

	return record, nil
}

// GetByID returns the exchange record with the given id.
func (m *Manager) GetByID(exchangeID string) (*credexchange.Record, error) {
	record, err := m.recorder.GetByID(exchangeID)
	if err != nil {
		if errors.Is(err, credexchange.ErrNotFound) {
			return nil, wrapError(KindNotFound, nil, err, "credential exchange %s", exchangeID)
		}

		return nil, wrapError(KindStorageFailure, nil, err, "retrieve credential exchange %s", exchangeID)
	}

	return record, nil
}

func thread(id string) *decorator.Thread {
	return &decorator.Thread{ID: id}
}

func snapshot(msg interface{}) (map[string]interface{}, error) {
	dict, err := utils.ToMap(msg)
	if err != nil {
		return nil, fmt.Errorf("snapshot message: %w", err)
	}

	return dict, nil
}

// ProposalOptions carries the content of a new proposal.
type ProposalOptions struct {
	Comment                string
	Preview                *CredentialPreview
	SchemaID               string
	SchemaIssuerDID        string
	SchemaName             string
	SchemaVersion          string
	CredentialDefinitionID string
	IssuerDID              string
}

func (o *ProposalOptions) message() *ProposeCredential {
	msg := &ProposeCredential{
		Type:               ProposeCredentialMsgType,
		ID:                 uuid.New().String(),
		Comment:            o.Comment,
		CredentialProposal: o.Preview,

		SchemaID:               o.SchemaID,
		SchemaIssuerDID:        o.SchemaIssuerDID,
		SchemaName:             o.SchemaName,
		SchemaVersion:          o.SchemaVersion,
		CredentialDefinitionID: o.CredentialDefinitionID,
		IssuerDID:              o.IssuerDID,
	}

	if msg.CredentialProposal != nil && msg.CredentialProposal.Type == "" {
		msg.CredentialProposal.Type = CredentialPreviewMsgType
	}

	return msg
}

// CreateProposal starts a holder-initiated exchange: it creates the record in
// the proposal-sent state and returns the proposal message for dispatch.
func (m *Manager) CreateProposal(connectionID string, proposal *ProposalOptions,
	opts *RecordOptions) (*credexchange.Record, *ProposeCredential, error) {
	msg := proposal.message()

	record := m.newRecord(connectionID, msg.ThreadID(), credexchange.RoleHolder, credexchange.InitiatorSelf, opts)
	record.State = credexchange.StateProposalSent
	record.SchemaID = proposal.SchemaID
	record.CredentialDefinitionID = proposal.CredentialDefinitionID

	dict, err := snapshot(msg)
	if err != nil {
		return nil, nil, newError(KindMalformedMessage, nil, "%s", err)
	}

	record.SetProposalDict(dict)

	if err := m.save(record); err != nil {
		return nil, nil, err
	}

	return record, msg, nil
}

// ReceiveProposal handles an inbound proposal on the issuer side, creating the
// record in the proposal-received state. It never consults the crypto
// collaborators; only a malformed or replayed message can fail it.
func (m *Manager) ReceiveProposal(connectionID string, proposal *ProposeCredential) (*credexchange.Record, error) {
	if proposal.ID == "" {
		return nil, newError(KindMalformedMessage, nil, "proposal message has no id")
	}

	existing, err := m.recorder.GetByThreadID(proposal.ThreadID())
	if err == nil {
		return nil, newError(KindStateConflict, existing,
			"credential exchange for thread %s already exists", proposal.ThreadID())
	}

	if !errors.Is(err, credexchange.ErrNotFound) {
		return nil, wrapError(KindStorageFailure, nil, err, "lookup exchange for proposal")
	}

	record := m.newRecord(connectionID, proposal.ThreadID(), credexchange.RoleIssuer, credexchange.InitiatorExternal, nil)
	record.State = credexchange.StateProposalReceived
	record.SchemaID = proposal.SchemaID
	record.CredentialDefinitionID = proposal.CredentialDefinitionID

	dict, err := snapshot(proposal)
	if err != nil {
		return nil, newError(KindMalformedMessage, nil, "%s", err)
	}

	record.SetProposalDict(dict)

	if err := m.save(record); err != nil {
		return nil, err
	}

	return record, nil
}

// CreateOffer builds and records an offer against a proposal-received record.
// A counter-proposal, when given, overrides the stored proposal's content for
// the purpose of building the offer; the stored proposal snapshot itself is
// never rewritten.
func (m *Manager) CreateOffer(record *credexchange.Record, counterProposal *ProposeCredential,
	comment string) (*credexchange.Record, *OfferCredential, error) {
	if err := checkRole(record, credexchange.RoleIssuer, "create_offer"); err != nil {
		return nil, nil, err
	}

	if err := checkState(record, "create_offer", credexchange.StateProposalReceived); err != nil {
		return nil, nil, err
	}

	return m.createOffer(record, counterProposal, comment)
}

// createOffer is shared by the bound-offer and free-offer paths; free-offer
// records enter here before their first save, with no proposal snapshot.
func (m *Manager) createOffer(record *credexchange.Record, counterProposal *ProposeCredential,
	comment string) (*credexchange.Record, *OfferCredential, error) {
	proposal := counterProposal
	if proposal == nil && record.CredentialProposalDict != nil {
		proposal = &ProposeCredential{}
		if err := utils.Decode(record.CredentialProposalDict, proposal); err != nil {
			return nil, nil, newError(KindMalformedMessage, record, "stored proposal snapshot: %s", err)
		}
	}

	credDefID := record.CredentialDefinitionID

	var preview *CredentialPreview

	if proposal != nil {
		preview = proposal.CredentialProposal
		if proposal.CredentialDefinitionID != "" {
			credDefID = proposal.CredentialDefinitionID
		}

		if proposal.SchemaID != "" {
			record.SchemaID = proposal.SchemaID
		}
	}

	if credDefID == "" {
		return nil, nil, newError(KindMalformedMessage, record, "no credential definition id to offer against")
	}

	offerPayload, err := m.issuer.CreateCredentialOffer(credDefID)
	if err != nil {
		m.SaveErrorState(record, err.Error())

		return nil, nil, wrapError(KindCryptoOrLedgerFailure, record, err, "issuer create offer")
	}

	msg := &OfferCredential{
		Type:              OfferCredentialMsgType,
		ID:                uuid.New().String(),
		Comment:           comment,
		CredentialPreview: preview,
		OffersAttach:      []decorator.Attachment{decorator.NewJSONAttachment("libindy-cred-offer-0", offerPayload)},
	}

	if record.ThreadID == "" {
		// free offer: this message starts the thread.
		record.ThreadID = msg.ID
	} else {
		msg.Thread = thread(record.ThreadID)
	}

	record.CredentialDefinitionID = credDefID

	dict, err := snapshot(msg)
	if err != nil {
		return nil, nil, newError(KindMalformedMessage, record, "%s", err)
	}

	if !record.SetOfferDict(dict) {
		return nil, nil, newError(KindStateConflict, record,
			"offer already recorded on credential exchange %s", record.ExchangeID)
	}

	if record.State == "" {
		// issuer-initiated record, not yet persisted: it enters the graph at
		// offer-sent.
		record.State = credexchange.StateOfferSent

		if err := m.save(record); err != nil {
			return nil, nil, err
		}

		return record, msg, nil
	}

	if err := m.transition(record, credexchange.StateOfferSent); err != nil {
		return nil, nil, err
	}

	return record, msg, nil
}

// CreateFreeOffer creates an offer with no preceding proposal. The connection
// id may be empty; such an offer is meant for out-of-band dispatch and gets
// bound to a connection later.
func (m *Manager) CreateFreeOffer(connectionID, credDefID string, preview *CredentialPreview,
	comment string, opts *RecordOptions) (*credexchange.Record, *OfferCredential, error) {
	record := m.newRecord(connectionID, "", credexchange.RoleIssuer, credexchange.InitiatorSelf, opts)
	record.CredentialDefinitionID = credDefID

	var counter *ProposeCredential
	if preview != nil {
		counter = &ProposeCredential{CredentialProposal: preview, CredentialDefinitionID: credDefID}
	}

	return m.createOffer(record, counter, comment)
}

// PrepareSend creates an issuer-initiated exchange from attribute values and
// immediately builds the offer, so that the whole flow can run automatically:
// the record is created with auto-issue enabled.
func (m *Manager) PrepareSend(connectionID string, proposal *ProposalOptions,
	opts *RecordOptions) (*credexchange.Record, *OfferCredential, error) {
	msg := proposal.message()

	if opts == nil {
		opts = &RecordOptions{}
	}

	if opts.AutoIssue == nil {
		autoIssue := true
		opts.AutoIssue = &autoIssue
	}

	record := m.newRecord(connectionID, "", credexchange.RoleIssuer, credexchange.InitiatorSelf, opts)
	record.SchemaID = proposal.SchemaID
	record.CredentialDefinitionID = proposal.CredentialDefinitionID

	dict, err := snapshot(msg)
	if err != nil {
		return nil, nil, newError(KindMalformedMessage, nil, "%s", err)
	}

	record.SetProposalDict(dict)

	return m.createOffer(record, nil, proposal.Comment)
}

// ReceiveOffer handles an inbound offer on the holder side. It either advances
// a proposal-sent record or, for a free offer, creates a new record in the
// offer-received state.
func (m *Manager) ReceiveOffer(connectionID string, offer *OfferCredential) (*credexchange.Record, error) {
	if offer.ID == "" {
		return nil, newError(KindMalformedMessage, nil, "offer message has no id")
	}

	record, err := m.recorder.GetByThreadID(offer.ThreadID())
	if err != nil {
		if !errors.Is(err, credexchange.ErrNotFound) {
			return nil, wrapError(KindStorageFailure, nil, err, "lookup exchange for offer")
		}

		// free offer: no prior proposal on this thread.
		record = m.newRecord(connectionID, offer.ThreadID(), credexchange.RoleHolder, credexchange.InitiatorExternal, nil)
		record.State = credexchange.StateOfferReceived

		return m.finishReceiveOffer(record, offer, false)
	}

	if err := checkRole(record, credexchange.RoleHolder, "receive_offer"); err != nil {
		return nil, err
	}

	if err := checkState(record, "receive_offer", credexchange.StateProposalSent); err != nil {
		return nil, err
	}

	return m.finishReceiveOffer(record, offer, true)
}

func (m *Manager) finishReceiveOffer(record *credexchange.Record, offer *OfferCredential,
	transition bool) (*credexchange.Record, error) {
	dict, err := snapshot(offer)
	if err != nil {
		return nil, newError(KindMalformedMessage, record, "%s", err)
	}

	if !record.SetOfferDict(dict) {
		return nil, newError(KindStateConflict, record,
			"offer already recorded on credential exchange %s", record.ExchangeID)
	}

	if credDefID := offerCredDefID(offer); credDefID != "" {
		record.CredentialDefinitionID = credDefID
	}

	if transition {
		if err := m.transition(record, credexchange.StateOfferReceived); err != nil {
			return nil, err
		}

		return record, nil
	}

	if err := m.save(record); err != nil {
		return nil, err
	}

	return record, nil
}

// offerCredDefID pulls the credential definition id out of the offer
// attachment, when present.
func offerCredDefID(offer *OfferCredential) string {
	for i := range offer.OffersAttach {
		bits, err := offer.OffersAttach[i].Data.Fetch()
		if err != nil {
			continue
		}

		payload := map[string]interface{}{}
		if err := json.Unmarshal(bits, &payload); err != nil {
			continue
		}

		if id, ok := payload["cred_def_id"].(string); ok {
			return id
		}
	}

	return ""
}

// CreateRequest builds the credential request for an offer-received record.
// The holder collaborator performs link-secret blinding; the credential
// definition is re-resolved from the ledger, never cached on the record.
func (m *Manager) CreateRequest(record *credexchange.Record, holderDID string) (*credexchange.Record, *RequestCredential, error) {
	if err := checkRole(record, credexchange.RoleHolder, "create_request"); err != nil {
		return nil, nil, err
	}

	if err := checkState(record, "create_request", credexchange.StateOfferReceived); err != nil {
		return nil, nil, err
	}

	if holderDID == "" {
		return nil, nil, newError(KindMalformedMessage, record, "holder DID is required to create a request")
	}

	credDef, err := m.ledger.GetCredentialDefinition(record.CredentialDefinitionID)
	if err != nil {
		m.SaveErrorState(record, err.Error())

		return nil, nil, wrapError(KindCryptoOrLedgerFailure, record, err, "resolve credential definition")
	}

	request, metadata, err := m.holder.CreateCredentialRequest(holderDID, credDef, record.CredentialOfferDict)
	if err != nil {
		m.SaveErrorState(record, err.Error())

		return nil, nil, wrapError(KindCryptoOrLedgerFailure, record, err, "holder create request")
	}

	msg := &RequestCredential{
		Type:           RequestCredentialMsgType,
		ID:             uuid.New().String(),
		RequestsAttach: []decorator.Attachment{decorator.NewJSONAttachment("libindy-cred-request-0", request)},
		Thread:         thread(record.ThreadID),
	}

	dict, err := snapshot(msg)
	if err != nil {
		return nil, nil, newError(KindMalformedMessage, record, "%s", err)
	}

	if !record.SetRequestDict(dict) {
		return nil, nil, newError(KindStateConflict, record,
			"request already recorded on credential exchange %s", record.ExchangeID)
	}

	record.RequestMetadata = metadata

	if err := m.transition(record, credexchange.StateRequestSent); err != nil {
		return nil, nil, err
	}

	return record, msg, nil
}

// ReceiveRequest handles an inbound request on the issuer side.
func (m *Manager) ReceiveRequest(connectionID string, request *RequestCredential) (*credexchange.Record, error) {
	record, err := m.getByThread(request.ThreadID())
	if err != nil {
		return nil, err
	}

	if err := checkRole(record, credexchange.RoleIssuer, "receive_request"); err != nil {
		return nil, err
	}

	if err := checkState(record, "receive_request", credexchange.StateOfferSent); err != nil {
		return nil, err
	}

	if record.ConnectionID == "" {
		// a free offer dispatched out-of-band binds to the connection the
		// request arrives on.
		record.ConnectionID = connectionID
	}

	dict, err := snapshot(request)
	if err != nil {
		return nil, newError(KindMalformedMessage, record, "%s", err)
	}

	if !record.SetRequestDict(dict) {
		return nil, newError(KindStateConflict, record,
			"request already recorded on credential exchange %s", record.ExchangeID)
	}

	if err := m.transition(record, credexchange.StateRequestReceived); err != nil {
		return nil, err
	}

	return record, nil
}

// IssueCredential signs and records the credential for a request-received
// record. Schema and credential definition are re-resolved via the ledger
// collaborator; a collaborator failure saves the error state so the partial
// progress is never lost, and the record stays in request-received.
func (m *Manager) IssueCredential(record *credexchange.Record, comment string) (*credexchange.Record, *IssueCredential, error) {
	if err := checkRole(record, credexchange.RoleIssuer, "issue_credential"); err != nil {
		return nil, nil, err
	}

	if err := checkState(record, "issue_credential", credexchange.StateRequestReceived); err != nil {
		return nil, nil, err
	}

	schema, err := m.ledger.GetSchema(record.SchemaID)
	if err != nil {
		m.SaveErrorState(record, err.Error())

		return nil, nil, wrapError(KindCryptoOrLedgerFailure, record, err, "resolve schema")
	}

	credDef, err := m.ledger.GetCredentialDefinition(record.CredentialDefinitionID)
	if err != nil {
		m.SaveErrorState(record, err.Error())

		return nil, nil, wrapError(KindCryptoOrLedgerFailure, record, err, "resolve credential definition")
	}

	credential, err := m.issuer.IssueCredential(schema, credDef,
		record.CredentialOfferDict, record.CredentialRequestDict, m.previewValues(record))
	if err != nil {
		m.SaveErrorState(record, err.Error())

		return nil, nil, wrapError(KindCryptoOrLedgerFailure, record, err, "issuer issue credential")
	}

	msg := &IssueCredential{
		Type:              IssueCredentialMsgType,
		ID:                uuid.New().String(),
		Comment:           comment,
		CredentialsAttach: []decorator.Attachment{decorator.NewJSONAttachment("libindy-cred-0", credential)},
		Thread:            thread(record.ThreadID),
	}

	dict, err := snapshot(msg)
	if err != nil {
		return nil, nil, newError(KindMalformedMessage, record, "%s", err)
	}

	if !record.SetCredentialDict(dict) {
		return nil, nil, newError(KindStateConflict, record,
			"credential already recorded on credential exchange %s", record.ExchangeID)
	}

	if err := m.transition(record, credexchange.StateCredentialIssued); err != nil {
		return nil, nil, err
	}

	return record, msg, nil
}

// previewValues extracts the attribute values promised in the proposal or
// offer snapshot.
func (m *Manager) previewValues(record *credexchange.Record) map[string]string {
	if record.CredentialOfferDict != nil {
		offer := &OfferCredential{}
		if err := utils.Decode(record.CredentialOfferDict, offer); err == nil && offer.CredentialPreview != nil {
			return offer.CredentialPreview.Values()
		}
	}

	if record.CredentialProposalDict != nil {
		proposal := &ProposeCredential{}
		if err := utils.Decode(record.CredentialProposalDict, proposal); err == nil && proposal.CredentialProposal != nil {
			return proposal.CredentialProposal.Values()
		}
	}

	return nil
}

// ReceiveCredential handles an inbound issued credential on the holder side.
// The raw credential is held on the record pending storage.
func (m *Manager) ReceiveCredential(connectionID string, issue *IssueCredential) (*credexchange.Record, error) {
	record, err := m.getByThread(issue.ThreadID())
	if err != nil {
		return nil, err
	}

	if err := checkRole(record, credexchange.RoleHolder, "receive_credential"); err != nil {
		return nil, err
	}

	if err := checkState(record, "receive_credential", credexchange.StateRequestSent); err != nil {
		return nil, err
	}

	dict, err := snapshot(issue)
	if err != nil {
		return nil, newError(KindMalformedMessage, record, "%s", err)
	}

	if !record.SetCredentialDict(dict) {
		return nil, newError(KindStateConflict, record,
			"credential already recorded on credential exchange %s", record.ExchangeID)
	}

	if err := m.transition(record, credexchange.StateCredentialReceived); err != nil {
		return nil, err
	}

	return record, nil
}

// StoreCredential persists the received credential into the holder's wallet
// via the holder collaborator and assigns the local credential id. The state
// is left at credential-received; the ack transition is a separate step.
func (m *Manager) StoreCredential(record *credexchange.Record, credentialID string) (*credexchange.Record, error) {
	if err := checkRole(record, credexchange.RoleHolder, "store_credential"); err != nil {
		return nil, err
	}

	if err := checkState(record, "store_credential", credexchange.StateCredentialReceived); err != nil {
		return nil, err
	}

	credDef, err := m.ledger.GetCredentialDefinition(record.CredentialDefinitionID)
	if err != nil {
		m.SaveErrorState(record, err.Error())

		return nil, wrapError(KindCryptoOrLedgerFailure, record, err, "resolve credential definition")
	}

	credential := rawCredential(record.CredentialDict)

	storedID, err := m.holder.StoreCredential(credDef, credential, record.RequestMetadata, credentialID)
	if err != nil {
		m.SaveErrorState(record, err.Error())

		return nil, wrapError(KindCryptoOrLedgerFailure, record, err, "holder store credential")
	}

	record.CredentialID = storedID

	if err := m.save(record); err != nil {
		return nil, err
	}

	return record, nil
}

// rawCredential pulls the credential payload out of the issue-credential
// snapshot's attachment.
func rawCredential(dict map[string]interface{}) map[string]interface{} {
	msg := &IssueCredential{}
	if err := utils.Decode(dict, msg); err != nil {
		return nil
	}

	for i := range msg.CredentialsAttach {
		bits, err := msg.CredentialsAttach[i].Data.Fetch()
		if err != nil {
			continue
		}

		payload := map[string]interface{}{}
		if err := json.Unmarshal(bits, &payload); err != nil {
			continue
		}

		return payload
	}

	return nil
}

// SendCredentialAck finishes the holder side of the exchange after the
// credential has been stored, returning the ack for dispatch. With auto-remove
// set, the record is deleted once it reaches done.
func (m *Manager) SendCredentialAck(record *credexchange.Record) (*credexchange.Record, *Ack, error) {
	if err := checkRole(record, credexchange.RoleHolder, "send_credential_ack"); err != nil {
		return nil, nil, err
	}

	if err := checkState(record, "send_credential_ack", credexchange.StateCredentialReceived); err != nil {
		return nil, nil, err
	}

	if record.CredentialID == "" {
		return nil, nil, newError(KindStateConflict, record,
			"credential exchange %s has no stored credential to acknowledge", record.ExchangeID)
	}

	msg := &Ack{
		Type:   AckMsgType,
		ID:     uuid.New().String(),
		Status: "OK",
		Thread: thread(record.ThreadID),
	}

	if err := m.transition(record, credexchange.StateDone); err != nil {
		return nil, nil, err
	}

	m.autoRemove(record)

	return record, msg, nil
}

// ReceiveCredentialAck finishes the issuer side of the exchange.
func (m *Manager) ReceiveCredentialAck(connectionID string, ack *Ack) (*credexchange.Record, error) {
	record, err := m.getByThread(ack.ThreadID())
	if err != nil {
		return nil, err
	}

	if err := checkRole(record, credexchange.RoleIssuer, "receive_credential_ack"); err != nil {
		return nil, err
	}

	if err := checkState(record, "receive_credential_ack", credexchange.StateCredentialIssued); err != nil {
		return nil, err
	}

	if err := m.transition(record, credexchange.StateDone); err != nil {
		return nil, err
	}

	m.autoRemove(record)

	return record, nil
}

func (m *Manager) autoRemove(record *credexchange.Record) {
	if !record.AutoRemove {
		return
	}

	if err := m.recorder.Delete(record.ExchangeID); err != nil {
		logger.Errorf("auto-remove credential exchange %s: %s", record.ExchangeID, err)
	}
}

// CreateProblemReport abandons a non-terminal exchange and returns the
// problem-report message for dispatch. It does not require any prior
// successful step.
func (m *Manager) CreateProblemReport(record *credexchange.Record, description string) (*credexchange.Record, *ProblemReport, error) {
	if record.State.Terminal() {
		return nil, nil, newError(KindStateConflict, record,
			"credential exchange %s is already in terminal state %s", record.ExchangeID, record.State)
	}

	msg := &ProblemReport{
		Type:        ProblemReportMsgType,
		ID:          uuid.New().String(),
		Description: ProblemReportDesc{En: description, Code: "issuance-abandoned"},
		Thread:      thread(record.ThreadID),
	}

	record.ErrorMsg = description

	if err := m.transition(record, credexchange.StateAbandoned); err != nil {
		return nil, nil, err
	}

	return record, msg, nil
}

// ReceiveProblemReport abandons the exchange the report's thread refers to,
// regardless of its prior non-terminal state.
func (m *Manager) ReceiveProblemReport(connectionID string, report *ProblemReport) (*credexchange.Record, error) {
	record, err := m.getByThread(report.ThreadID())
	if err != nil {
		return nil, err
	}

	if record.State.Terminal() {
		return nil, newError(KindStateConflict, record,
			"credential exchange %s is already in terminal state %s", record.ExchangeID, record.State)
	}

	record.ErrorMsg = report.Description.En

	if err := m.transition(record, credexchange.StateAbandoned); err != nil {
		return nil, err
	}

	return record, nil
}

// SaveErrorState writes the failure reason onto the record without advancing
// its state, so an operation that failed after partially succeeding leaves an
// honest log instead of reverting to an unknown state. Persistence failures
// here are logged, not returned: this path runs while another error is
// already in flight.
func (m *Manager) SaveErrorState(record *credexchange.Record, reason string) {
	if record == nil {
		return
	}

	record.ErrorMsg = reason

	// A record with no state never made it past its first save; writing it
	// now would persist an exchange outside the state graph.
	if record.State == "" {
		return
	}

	// A done record flagged auto-remove has already been deleted.
	if record.AutoRemove && record.State == credexchange.StateDone {
		return
	}

	if err := m.recorder.Save(record); err != nil {
		logger.Errorf("save error state for credential exchange %s: %s", record.ExchangeID, err)
	}
}
