/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential_test

import (
	"errors"
	"testing"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/stretchr/testify/require"

	"github.com/trustridge/credex-go/pkg/didcomm/protocol/decorator"
	protocol "github.com/trustridge/credex-go/pkg/didcomm/protocol/issuecredential"
	mocks "github.com/trustridge/credex-go/pkg/mock/issuecredential"
	"github.com/trustridge/credex-go/pkg/store/credexchange"
)

const (
	schemaID  = "S"
	credDefID = "CD"
	connID    = "conn-1"
)

type managerEnv struct {
	manager *protocol.Manager
	issuer  *mocks.Issuer
	holder  *mocks.Holder
	ledger  *mocks.Ledger
}

func newManagerEnv(t *testing.T, config protocol.Config) *managerEnv {
	t.Helper()

	env := &managerEnv{
		issuer: &mocks.Issuer{},
		holder: &mocks.Holder{},
		ledger: &mocks.Ledger{},
	}

	manager, err := protocol.NewManager(&mocks.Provider{
		StorageProviderValue: mem.NewProvider(),
		IssuerValue:          env.issuer,
		HolderValue:          env.holder,
		LedgerValue:          env.ledger,
	}, config)
	require.NoError(t, err)

	env.manager = manager

	return env
}

func thread(id string) *decorator.Thread {
	return &decorator.Thread{ID: id}
}

func proposalMsg(id string) *protocol.ProposeCredential {
	return &protocol.ProposeCredential{
		Type: protocol.ProposeCredentialMsgType,
		ID:   id,
		CredentialProposal: &protocol.CredentialPreview{
			Type:       protocol.CredentialPreviewMsgType,
			Attributes: []protocol.PreviewAttribute{{Name: "score", Value: "10"}},
		},
		SchemaID:               schemaID,
		CredentialDefinitionID: credDefID,
	}
}

func TestIssuerHappyPath(t *testing.T) {
	env := newManagerEnv(t, protocol.Config{})

	record, err := env.manager.ReceiveProposal(connID, proposalMsg("proposal-1"))
	require.NoError(t, err)
	require.Equal(t, credexchange.StateProposalReceived, record.State)
	require.Equal(t, credexchange.RoleIssuer, record.Role)
	require.Equal(t, credexchange.InitiatorExternal, record.Initiator)
	require.Equal(t, "proposal-1", record.ThreadID)
	require.Equal(t, schemaID, record.SchemaID)
	require.NotNil(t, record.CredentialProposalDict)

	record, offer, err := env.manager.CreateOffer(record, nil, "here you go")
	require.NoError(t, err)
	require.Equal(t, credexchange.StateOfferSent, record.State)
	require.Equal(t, "proposal-1", offer.ThreadID())
	require.NotNil(t, record.CredentialOfferDict)
	require.NotEmpty(t, offer.OffersAttach)

	record, err = env.manager.ReceiveRequest(connID, &protocol.RequestCredential{
		Type:   protocol.RequestCredentialMsgType,
		ID:     "request-1",
		Thread: thread("proposal-1"),
	})
	require.NoError(t, err)
	require.Equal(t, credexchange.StateRequestReceived, record.State)
	require.NotNil(t, record.CredentialRequestDict)

	record, credential, err := env.manager.IssueCredential(record, "")
	require.NoError(t, err)
	require.Equal(t, credexchange.StateCredentialIssued, record.State)
	require.NotNil(t, record.CredentialDict)
	require.Equal(t, "proposal-1", credential.ThreadID())
	require.Equal(t, map[string]string{"score": "10"}, env.issuer.IssuedValues)

	record, err = env.manager.ReceiveCredentialAck(connID, &protocol.Ack{
		Type:   protocol.AckMsgType,
		ID:     "ack-1",
		Status: "OK",
		Thread: thread("proposal-1"),
	})
	require.NoError(t, err)
	require.Equal(t, credexchange.StateDone, record.State)

	// all four snapshots survive to the terminal state.
	final, err := env.manager.GetByID(record.ExchangeID)
	require.NoError(t, err)
	require.NotNil(t, final.CredentialProposalDict)
	require.NotNil(t, final.CredentialOfferDict)
	require.NotNil(t, final.CredentialRequestDict)
	require.NotNil(t, final.CredentialDict)
}

func TestHolderHappyPath(t *testing.T) {
	env := newManagerEnv(t, protocol.Config{})

	record, proposal, err := env.manager.CreateProposal(connID, &protocol.ProposalOptions{
		Preview: &protocol.CredentialPreview{
			Attributes: []protocol.PreviewAttribute{{Name: "score", Value: "10"}},
		},
		SchemaID:               schemaID,
		CredentialDefinitionID: credDefID,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, credexchange.StateProposalSent, record.State)
	require.Equal(t, credexchange.RoleHolder, record.Role)
	require.Equal(t, credexchange.InitiatorSelf, record.Initiator)
	require.Equal(t, proposal.ID, record.ThreadID)

	record, err = env.manager.ReceiveOffer(connID, &protocol.OfferCredential{
		Type:   protocol.OfferCredentialMsgType,
		ID:     "offer-1",
		Thread: thread(record.ThreadID),
	})
	require.NoError(t, err)
	require.Equal(t, credexchange.StateOfferReceived, record.State)

	record, request, err := env.manager.CreateRequest(record, "did:example:holder")
	require.NoError(t, err)
	require.Equal(t, credexchange.StateRequestSent, record.State)
	require.NotNil(t, record.RequestMetadata)
	require.NotEmpty(t, request.RequestsAttach)

	record, err = env.manager.ReceiveCredential(connID, &protocol.IssueCredential{
		Type:   protocol.IssueCredentialMsgType,
		ID:     "credential-1",
		Thread: thread(record.ThreadID),
	})
	require.NoError(t, err)
	require.Equal(t, credexchange.StateCredentialReceived, record.State)

	env.holder.StoredID = "wallet-cred-1"

	record, err = env.manager.StoreCredential(record, "")
	require.NoError(t, err)
	require.Equal(t, credexchange.StateCredentialReceived, record.State)
	require.Equal(t, "wallet-cred-1", record.CredentialID)

	record, ack, err := env.manager.SendCredentialAck(record)
	require.NoError(t, err)
	require.Equal(t, credexchange.StateDone, record.State)
	require.Equal(t, "OK", ack.Status)
	require.Equal(t, record.ThreadID, ack.ThreadID())
}

func TestReceiveProposal_DuplicateThread(t *testing.T) {
	env := newManagerEnv(t, protocol.Config{})

	_, err := env.manager.ReceiveProposal(connID, proposalMsg("proposal-1"))
	require.NoError(t, err)

	_, err = env.manager.ReceiveProposal(connID, proposalMsg("proposal-1"))
	require.Error(t, err)
	require.Equal(t, protocol.KindStateConflict, protocol.ErrorKind(err))
}

func TestReceiveRequest_Reapplied(t *testing.T) {
	env := newManagerEnv(t, protocol.Config{})

	record, err := env.manager.ReceiveProposal(connID, proposalMsg("proposal-1"))
	require.NoError(t, err)

	_, _, err = env.manager.CreateOffer(record, nil, "")
	require.NoError(t, err)

	request := &protocol.RequestCredential{
		Type:   protocol.RequestCredentialMsgType,
		ID:     "request-1",
		Thread: thread("proposal-1"),
	}

	_, err = env.manager.ReceiveRequest(connID, request)
	require.NoError(t, err)

	// redelivery must not re-apply the transition.
	_, err = env.manager.ReceiveRequest(connID, request)
	require.Error(t, err)
	require.Equal(t, protocol.KindStateConflict, protocol.ErrorKind(err))
}

func TestCreateOffer_RoleAndStateChecks(t *testing.T) {
	env := newManagerEnv(t, protocol.Config{})

	holderRecord, _, err := env.manager.CreateProposal(connID, &protocol.ProposalOptions{
		CredentialDefinitionID: credDefID,
	}, nil)
	require.NoError(t, err)

	_, _, err = env.manager.CreateOffer(holderRecord, nil, "")
	require.Error(t, err)
	require.Equal(t, protocol.KindStateConflict, protocol.ErrorKind(err))

	issuerRecord, err := env.manager.ReceiveProposal("conn-2", proposalMsg("proposal-2"))
	require.NoError(t, err)

	_, _, err = env.manager.CreateOffer(issuerRecord, nil, "")
	require.NoError(t, err)

	// offer already made: the operation cannot run twice.
	_, _, err = env.manager.CreateOffer(issuerRecord, nil, "")
	require.Error(t, err)
	require.Equal(t, protocol.KindStateConflict, protocol.ErrorKind(err))
}

func TestIssueCredential_CollaboratorFailure(t *testing.T) {
	env := newManagerEnv(t, protocol.Config{})

	record, err := env.manager.ReceiveProposal(connID, proposalMsg("proposal-1"))
	require.NoError(t, err)

	record, _, err = env.manager.CreateOffer(record, nil, "")
	require.NoError(t, err)

	record, err = env.manager.ReceiveRequest(connID, &protocol.RequestCredential{
		ID:     "request-1",
		Thread: thread("proposal-1"),
	})
	require.NoError(t, err)

	env.issuer.CredentialErr = errors.New("wallet unreachable")

	_, _, err = env.manager.IssueCredential(record, "")
	require.Error(t, err)
	require.Equal(t, protocol.KindCryptoOrLedgerFailure, protocol.ErrorKind(err))

	// the record keeps its state and carries the failure reason.
	saved, err := env.manager.GetByID(record.ExchangeID)
	require.NoError(t, err)
	require.Equal(t, credexchange.StateRequestReceived, saved.State)
	require.Equal(t, "wallet unreachable", saved.ErrorMsg)
	require.Nil(t, saved.CredentialDict)

	// the exchange can be retried once the collaborator recovers.
	env.issuer.CredentialErr = nil

	saved, _, err = env.manager.IssueCredential(saved, "")
	require.NoError(t, err)
	require.Equal(t, credexchange.StateCredentialIssued, saved.State)
}

func TestFreeOffer(t *testing.T) {
	env := newManagerEnv(t, protocol.Config{})

	record, offer, err := env.manager.CreateFreeOffer("", credDefID, &protocol.CredentialPreview{
		Attributes: []protocol.PreviewAttribute{{Name: "score", Value: "10"}},
	}, "", nil)
	require.NoError(t, err)
	require.Empty(t, record.ConnectionID)
	require.Nil(t, record.CredentialProposalDict)
	require.Equal(t, credexchange.StateOfferSent, record.State)
	require.Equal(t, offer.ID, record.ThreadID)
	require.Nil(t, offer.Thread)

	// the request binds the exchange to the connection it arrives on.
	record, err = env.manager.ReceiveRequest("conn-9", &protocol.RequestCredential{
		ID:     "request-1",
		Thread: thread(record.ThreadID),
	})
	require.NoError(t, err)
	require.Equal(t, "conn-9", record.ConnectionID)
	require.Equal(t, credexchange.StateRequestReceived, record.State)
}

func TestPrepareSend(t *testing.T) {
	env := newManagerEnv(t, protocol.Config{})

	record, offer, err := env.manager.PrepareSend(connID, &protocol.ProposalOptions{
		Preview: &protocol.CredentialPreview{
			Attributes: []protocol.PreviewAttribute{{Name: "score", Value: "10"}},
		},
		SchemaID:               schemaID,
		CredentialDefinitionID: credDefID,
	}, nil)
	require.NoError(t, err)
	require.True(t, record.AutoIssue)
	require.Equal(t, credexchange.StateOfferSent, record.State)
	require.NotNil(t, record.CredentialProposalDict)
	require.NotNil(t, offer.CredentialPreview)
}

func TestReceiveOffer_Free(t *testing.T) {
	env := newManagerEnv(t, protocol.Config{})

	record, err := env.manager.ReceiveOffer(connID, &protocol.OfferCredential{
		Type: protocol.OfferCredentialMsgType,
		ID:   "offer-1",
	})
	require.NoError(t, err)
	require.Equal(t, credexchange.StateOfferReceived, record.State)
	require.Equal(t, credexchange.RoleHolder, record.Role)
	require.Equal(t, credexchange.InitiatorExternal, record.Initiator)
	require.Equal(t, "offer-1", record.ThreadID)
	require.Nil(t, record.CredentialProposalDict)
}

func TestSendCredentialAck_RequiresStoredCredential(t *testing.T) {
	env := newManagerEnv(t, protocol.Config{})

	record, err := env.manager.ReceiveOffer(connID, &protocol.OfferCredential{ID: "offer-1"})
	require.NoError(t, err)

	record, _, err = env.manager.CreateRequest(record, "did:example:holder")
	require.NoError(t, err)

	record, err = env.manager.ReceiveCredential(connID, &protocol.IssueCredential{
		ID:     "credential-1",
		Thread: thread("offer-1"),
	})
	require.NoError(t, err)

	_, _, err = env.manager.SendCredentialAck(record)
	require.Error(t, err)
	require.Equal(t, protocol.KindStateConflict, protocol.ErrorKind(err))
}

func TestReceiveCredentialAck_AutoRemove(t *testing.T) {
	env := newManagerEnv(t, protocol.Config{AutoRemove: true})

	record, err := env.manager.ReceiveProposal(connID, proposalMsg("proposal-1"))
	require.NoError(t, err)

	record, _, err = env.manager.CreateOffer(record, nil, "")
	require.NoError(t, err)

	record, err = env.manager.ReceiveRequest(connID, &protocol.RequestCredential{
		ID:     "request-1",
		Thread: thread("proposal-1"),
	})
	require.NoError(t, err)

	record, _, err = env.manager.IssueCredential(record, "")
	require.NoError(t, err)

	record, err = env.manager.ReceiveCredentialAck(connID, &protocol.Ack{
		ID:     "ack-1",
		Thread: thread("proposal-1"),
	})
	require.NoError(t, err)
	require.Equal(t, credexchange.StateDone, record.State)

	_, err = env.manager.GetByID(record.ExchangeID)
	require.Error(t, err)
	require.Equal(t, protocol.KindNotFound, protocol.ErrorKind(err))
}

func TestProblemReport(t *testing.T) {
	env := newManagerEnv(t, protocol.Config{})

	record, err := env.manager.ReceiveProposal(connID, proposalMsg("proposal-1"))
	require.NoError(t, err)

	record, report, err := env.manager.CreateProblemReport(record, "no longer offered")
	require.NoError(t, err)
	require.Equal(t, credexchange.StateAbandoned, record.State)
	require.Equal(t, "no longer offered", record.ErrorMsg)
	require.Equal(t, "no longer offered", report.Description.En)
	require.Equal(t, "proposal-1", report.ThreadID())

	// terminal records cannot be abandoned again.
	_, _, err = env.manager.CreateProblemReport(record, "again")
	require.Error(t, err)
	require.Equal(t, protocol.KindStateConflict, protocol.ErrorKind(err))
}

func TestReceiveProblemReport(t *testing.T) {
	env := newManagerEnv(t, protocol.Config{})

	record, _, err := env.manager.CreateProposal(connID, &protocol.ProposalOptions{
		CredentialDefinitionID: credDefID,
	}, nil)
	require.NoError(t, err)

	got, err := env.manager.ReceiveProblemReport(connID, &protocol.ProblemReport{
		ID:          "report-1",
		Description: protocol.ProblemReportDesc{En: "issuer shutting down"},
		Thread:      thread(record.ThreadID),
	})
	require.NoError(t, err)
	require.Equal(t, credexchange.StateAbandoned, got.State)
	require.Equal(t, "issuer shutting down", got.ErrorMsg)

	_, err = env.manager.ReceiveProblemReport(connID, &protocol.ProblemReport{
		ID:     "report-2",
		Thread: thread("unknown-thread"),
	})
	require.Error(t, err)
	require.Equal(t, protocol.KindNotFound, protocol.ErrorKind(err))
}

func TestAutomationFlagsCapturedAtCreation(t *testing.T) {
	env := newManagerEnv(t, protocol.Config{AutoOffer: true})

	record, err := env.manager.ReceiveProposal(connID, proposalMsg("proposal-1"))
	require.NoError(t, err)
	require.True(t, record.AutoOffer)
	require.False(t, record.AutoIssue)

	autoIssue := true

	override, _, err := env.manager.CreateProposal("conn-2", &protocol.ProposalOptions{
		CredentialDefinitionID: credDefID,
	}, &protocol.RecordOptions{AutoIssue: &autoIssue})
	require.NoError(t, err)
	require.True(t, override.AutoIssue)
	require.True(t, override.AutoOffer)
}

func TestCreateFreeOffer_CollaboratorFailureLeavesNoRecord(t *testing.T) {
	env := newManagerEnv(t, protocol.Config{})
	env.issuer.CreateOfferErr = errors.New("wallet down")

	_, _, err := env.manager.CreateFreeOffer(connID, credDefID, nil, "", nil)
	require.Error(t, err)
	require.Equal(t, protocol.KindCryptoOrLedgerFailure, protocol.ErrorKind(err))

	_, _, err = env.manager.PrepareSend(connID, &protocol.ProposalOptions{
		CredentialDefinitionID: credDefID,
	}, nil)
	require.Error(t, err)
	require.Equal(t, protocol.KindCryptoOrLedgerFailure, protocol.ErrorKind(err))

	// an exchange that never made a transition is not persisted: every stored
	// record stays inside the state graph.
	records, err := env.manager.Recorder().Query()
	require.NoError(t, err)
	require.Empty(t, records)
}

// failingQueryProvider wraps a working provider and makes every store query
// fail while queryErr is set.
type failingQueryProvider struct {
	storage.Provider
	queryErr error
}

func (p *failingQueryProvider) OpenStore(name string) (storage.Store, error) {
	store, err := p.Provider.OpenStore(name)
	if err != nil {
		return nil, err
	}

	return &failingQueryStore{Store: store, provider: p}, nil
}

type failingQueryStore struct {
	storage.Store
	provider *failingQueryProvider
}

func (s *failingQueryStore) Query(expression string, options ...storage.QueryOption) (storage.Iterator, error) {
	if s.provider.queryErr != nil {
		return nil, s.provider.queryErr
	}

	return s.Store.Query(expression, options...)
}

func TestReceiveProposal_LookupFailure(t *testing.T) {
	provider := &failingQueryProvider{Provider: mem.NewProvider()}

	manager, err := protocol.NewManager(&mocks.Provider{
		StorageProviderValue: provider,
		IssuerValue:          &mocks.Issuer{},
		HolderValue:          &mocks.Holder{},
		LedgerValue:          &mocks.Ledger{},
	}, protocol.Config{})
	require.NoError(t, err)

	provider.queryErr = errors.New("disk offline")

	record, err := manager.ReceiveProposal(connID, proposalMsg("proposal-1"))
	require.Error(t, err)
	require.Nil(t, record)
	require.Equal(t, protocol.KindStorageFailure, protocol.ErrorKind(err))

	// the failed duplicate check must not mint a record for the thread.
	provider.queryErr = nil

	records, err := manager.Recorder().Query()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestIssueCredential_ValuesFromProposalSnapshot(t *testing.T) {
	env := newManagerEnv(t, protocol.Config{})

	record, err := env.manager.ReceiveProposal(connID, proposalMsg("proposal-1"))
	require.NoError(t, err)

	// a counter-proposal without a preview leaves the offer bare, so the
	// issued values have to come from the stored proposal snapshot.
	record, offer, err := env.manager.CreateOffer(record, &protocol.ProposeCredential{
		CredentialDefinitionID: credDefID,
	}, "")
	require.NoError(t, err)
	require.Nil(t, offer.CredentialPreview)

	record, err = env.manager.ReceiveRequest(connID, &protocol.RequestCredential{
		ID:     "request-1",
		Thread: thread("proposal-1"),
	})
	require.NoError(t, err)

	_, _, err = env.manager.IssueCredential(record, "")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"score": "10"}, env.issuer.IssuedValues)
}
