/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"

	"github.com/trustridge/credex-go/pkg/controller/command"
	"github.com/trustridge/credex-go/pkg/didcomm/protocol/decorator"
	protocol "github.com/trustridge/credex-go/pkg/didcomm/protocol/issuecredential"
	mocks "github.com/trustridge/credex-go/pkg/mock/issuecredential"
	"github.com/trustridge/credex-go/pkg/store/connection"
	"github.com/trustridge/credex-go/pkg/store/credexchange"
)

const (
	testConnID    = "conn-1"
	testCredDefID = "creddef-1"
)

type commandEnv struct {
	cmd         *Command
	manager     *protocol.Manager
	issuer      *mocks.Issuer
	holder      *mocks.Holder
	connections *mocks.ConnectionLookup
	outbound    *mocks.Outbound
}

func newCommandEnv(t *testing.T) *commandEnv {
	t.Helper()

	env := &commandEnv{
		issuer: &mocks.Issuer{},
		holder: &mocks.Holder{},
		connections: &mocks.ConnectionLookup{Records: map[string]*connection.Record{
			testConnID: {
				ConnectionID:    testConnID,
				MyDID:           "did:example:mine",
				State:           connection.StateCompleted,
				ServiceEndpoint: "https://peer",
			},
		}},
		outbound: &mocks.Outbound{},
	}

	manager, err := protocol.NewManager(&mocks.Provider{
		StorageProviderValue: mem.NewProvider(),
		IssuerValue:          env.issuer,
		HolderValue:          env.holder,
		LedgerValue:          &mocks.Ledger{},
	}, protocol.Config{})
	require.NoError(t, err)

	env.manager = manager
	env.cmd = New(manager, env.connections, env.outbound)

	return env
}

func execute(t *testing.T, exec command.Exec, request interface{}) (*bytes.Buffer, command.Error) {
	t.Helper()

	raw, err := json.Marshal(request)
	require.NoError(t, err)

	var resp bytes.Buffer

	return &resp, exec(&resp, bytes.NewReader(raw))
}

func preview() *protocol.CredentialPreview {
	return &protocol.CredentialPreview{
		Type:       protocol.CredentialPreviewMsgType,
		Attributes: []protocol.PreviewAttribute{{Name: "score", Value: "10"}},
	}
}

func TestNew(t *testing.T) {
	env := newCommandEnv(t)

	handlers := env.cmd.GetHandlers()
	require.Len(t, handlers, 13)
}

func TestCommand_Records(t *testing.T) {
	env := newCommandEnv(t)

	_, _, err := env.manager.CreateProposal(testConnID,
		&protocol.ProposalOptions{CredentialDefinitionID: testCredDefID}, nil)
	require.NoError(t, err)

	resp, cmdErr := execute(t, env.cmd.Records, &RecordsArgs{ConnectionID: testConnID})
	require.Nil(t, cmdErr)

	var result RecordsResponse
	require.NoError(t, json.Unmarshal(resp.Bytes(), &result))
	require.Len(t, result.Results, 1)
	require.Equal(t, credexchange.RoleHolder, result.Results[0].Role)

	resp, cmdErr = execute(t, env.cmd.Records, &RecordsArgs{ConnectionID: "other"})
	require.Nil(t, cmdErr)

	require.NoError(t, json.Unmarshal(resp.Bytes(), &result))
	require.Empty(t, result.Results)
}

func TestCommand_Record(t *testing.T) {
	env := newCommandEnv(t)

	record, _, err := env.manager.CreateProposal(testConnID,
		&protocol.ProposalOptions{CredentialDefinitionID: testCredDefID}, nil)
	require.NoError(t, err)

	resp, cmdErr := execute(t, env.cmd.Record, &RecordArgs{CredExID: record.ExchangeID})
	require.Nil(t, cmdErr)

	var result RecordResponse
	require.NoError(t, json.Unmarshal(resp.Bytes(), &result))
	require.Equal(t, record.ExchangeID, result.Result.ExchangeID)

	_, cmdErr = execute(t, env.cmd.Record, &RecordArgs{})
	require.NotNil(t, cmdErr)
	require.Equal(t, command.ValidationError, cmdErr.Type())
	require.Equal(t, InvalidRequestErrorCode, cmdErr.Code())

	_, cmdErr = execute(t, env.cmd.Record, &RecordArgs{CredExID: "missing"})
	require.NotNil(t, cmdErr)
	require.Equal(t, command.ExecuteError, cmdErr.Type())
}

func TestCommand_SendProposal(t *testing.T) {
	env := newCommandEnv(t)

	resp, cmdErr := execute(t, env.cmd.SendProposal, &SendProposalArgs{
		ConnectionID: testConnID,
		Preview:      preview(),
		CredDefID:    testCredDefID,
	})
	require.Nil(t, cmdErr)

	var result RecordResponse
	require.NoError(t, json.Unmarshal(resp.Bytes(), &result))
	require.Equal(t, credexchange.StateProposalSent, result.Result.State)

	require.Len(t, env.outbound.SentMessages, 1)
	require.IsType(t, &protocol.ProposeCredential{}, env.outbound.SentMessages[0])
}

func TestCommand_SendProposalValidation(t *testing.T) {
	env := newCommandEnv(t)

	_, cmdErr := execute(t, env.cmd.SendProposal, &SendProposalArgs{Preview: preview()})
	require.NotNil(t, cmdErr)
	require.Equal(t, command.ValidationError, cmdErr.Type())
	require.Contains(t, cmdErr.Error(), "empty connection_id")

	_, cmdErr = execute(t, env.cmd.SendProposal, &SendProposalArgs{
		ConnectionID: "unknown",
		Preview:      preview(),
	})
	require.NotNil(t, cmdErr)
	require.Equal(t, command.ExecuteError, cmdErr.Type())
}

func TestCommand_Create(t *testing.T) {
	env := newCommandEnv(t)

	resp, cmdErr := execute(t, env.cmd.Create, &SendArgs{
		Preview:   preview(),
		CredDefID: testCredDefID,
	})
	require.Nil(t, cmdErr)

	var result OfferResponse
	require.NoError(t, json.Unmarshal(resp.Bytes(), &result))
	require.Equal(t, credexchange.StateOfferSent, result.Record.State)
	require.NotNil(t, result.Offer)

	// nothing dispatched for Create.
	require.Empty(t, env.outbound.SentMessages)
}

func TestCommand_Send(t *testing.T) {
	env := newCommandEnv(t)

	resp, cmdErr := execute(t, env.cmd.Send, &SendArgs{
		ConnectionID: testConnID,
		Preview:      preview(),
		CredDefID:    testCredDefID,
	})
	require.Nil(t, cmdErr)

	var result OfferResponse
	require.NoError(t, json.Unmarshal(resp.Bytes(), &result))
	require.Equal(t, credexchange.StateOfferSent, result.Record.State)
	require.True(t, result.Record.AutoIssue)

	require.Len(t, env.outbound.SentMessages, 1)
	require.IsType(t, &protocol.OfferCredential{}, env.outbound.SentMessages[0])
}

func TestCommand_SendValidation(t *testing.T) {
	env := newCommandEnv(t)

	_, cmdErr := execute(t, env.cmd.Send, &SendArgs{CredDefID: testCredDefID})
	require.NotNil(t, cmdErr)
	require.Equal(t, command.ValidationError, cmdErr.Type())
	require.Contains(t, cmdErr.Error(), "empty credential_proposal")

	_, cmdErr = execute(t, env.cmd.Send, &SendArgs{Preview: preview()})
	require.NotNil(t, cmdErr)
	require.Equal(t, command.ValidationError, cmdErr.Type())
	require.Contains(t, cmdErr.Error(), "empty cred_def_id")
}

func TestCommand_FreeOffer(t *testing.T) {
	env := newCommandEnv(t)

	resp, cmdErr := execute(t, env.cmd.CreateFreeOffer, &CreateFreeOfferArgs{
		Preview:   preview(),
		CredDefID: testCredDefID,
	})
	require.Nil(t, cmdErr)

	var result OfferResponse
	require.NoError(t, json.Unmarshal(resp.Bytes(), &result))
	require.Empty(t, result.Record.ConnectionID)
	require.Empty(t, env.outbound.SentMessages)

	resp, cmdErr = execute(t, env.cmd.SendFreeOffer, &CreateFreeOfferArgs{
		ConnectionID: testConnID,
		Preview:      preview(),
		CredDefID:    testCredDefID,
	})
	require.Nil(t, cmdErr)

	require.NoError(t, json.Unmarshal(resp.Bytes(), &result))
	require.Equal(t, testConnID, result.Record.ConnectionID)
	require.Len(t, env.outbound.SentMessages, 1)
}

func TestCommand_SendOffer(t *testing.T) {
	env := newCommandEnv(t)

	record, err := env.manager.ReceiveProposal(testConnID, &protocol.ProposeCredential{
		ID:                     "proposal-1",
		CredentialProposal:     preview(),
		CredentialDefinitionID: testCredDefID,
	})
	require.NoError(t, err)

	resp, cmdErr := execute(t, env.cmd.SendOffer, &SendOfferArgs{CredExID: record.ExchangeID})
	require.Nil(t, cmdErr)

	var result RecordResponse
	require.NoError(t, json.Unmarshal(resp.Bytes(), &result))
	require.Equal(t, credexchange.StateOfferSent, result.Result.State)
	require.Len(t, env.outbound.SentMessages, 1)
}

func TestCommand_SendRequestDefaultsHolderDID(t *testing.T) {
	env := newCommandEnv(t)

	record, err := env.manager.ReceiveOffer(testConnID, &protocol.OfferCredential{
		ID:                "offer-1",
		CredentialPreview: preview(),
	})
	require.NoError(t, err)

	env.holder.RequestValue = map[string]interface{}{"prover_did": "did:example:mine"}

	resp, cmdErr := execute(t, env.cmd.SendRequest, &SendRequestArgs{CredExID: record.ExchangeID})
	require.Nil(t, cmdErr)

	var result RecordResponse
	require.NoError(t, json.Unmarshal(resp.Bytes(), &result))
	require.Equal(t, credexchange.StateRequestSent, result.Result.State)
	require.Len(t, env.outbound.SentMessages, 1)
}

func TestCommand_IssueAndAck(t *testing.T) {
	env := newCommandEnv(t)

	record, err := env.manager.ReceiveProposal(testConnID, &protocol.ProposeCredential{
		ID:                     "proposal-1",
		CredentialProposal:     preview(),
		CredentialDefinitionID: testCredDefID,
	})
	require.NoError(t, err)

	_, cmdErr := execute(t, env.cmd.SendOffer, &SendOfferArgs{CredExID: record.ExchangeID})
	require.Nil(t, cmdErr)

	_, err = env.manager.ReceiveRequest(testConnID, &protocol.RequestCredential{
		ID:     "request-1",
		Thread: thread(record.ThreadID),
	})
	require.NoError(t, err)

	resp, cmdErr := execute(t, env.cmd.Issue, &IssueArgs{CredExID: record.ExchangeID})
	require.Nil(t, cmdErr)

	var result RecordResponse
	require.NoError(t, json.Unmarshal(resp.Bytes(), &result))
	require.Equal(t, credexchange.StateCredentialIssued, result.Result.State)

	_, err = env.manager.ReceiveCredentialAck(testConnID, &protocol.Ack{
		ID:     "ack-1",
		Status: "OK",
		Thread: thread(record.ThreadID),
	})
	require.NoError(t, err)
}

func TestCommand_Store(t *testing.T) {
	env := newCommandEnv(t)

	record, err := env.manager.ReceiveOffer(testConnID, &protocol.OfferCredential{
		ID:                "offer-1",
		CredentialPreview: preview(),
	})
	require.NoError(t, err)

	_, _, err = env.manager.CreateRequest(record, "did:example:mine")
	require.NoError(t, err)

	_, err = env.manager.ReceiveCredential(testConnID, &protocol.IssueCredential{
		ID:     "credential-1",
		Thread: thread(record.ThreadID),
	})
	require.NoError(t, err)

	env.holder.StoredID = "wallet-cred-1"

	resp, cmdErr := execute(t, env.cmd.Store, &StoreArgs{CredExID: record.ExchangeID})
	require.Nil(t, cmdErr)

	var result RecordResponse
	require.NoError(t, json.Unmarshal(resp.Bytes(), &result))
	require.Equal(t, credexchange.StateDone, result.Result.State)
	require.Equal(t, "wallet-cred-1", result.Result.CredentialID)

	require.Len(t, env.outbound.SentMessages, 1)
	require.IsType(t, &protocol.Ack{}, env.outbound.SentMessages[0])
}

func TestCommand_ProblemReport(t *testing.T) {
	env := newCommandEnv(t)

	record, err := env.manager.ReceiveProposal(testConnID, &protocol.ProposeCredential{
		ID:                     "proposal-1",
		CredentialProposal:     preview(),
		CredentialDefinitionID: testCredDefID,
	})
	require.NoError(t, err)

	_, cmdErr := execute(t, env.cmd.ProblemReport, &ProblemReportArgs{CredExID: record.ExchangeID})
	require.NotNil(t, cmdErr)
	require.Equal(t, command.ValidationError, cmdErr.Type())
	require.Contains(t, cmdErr.Error(), "empty description")

	resp, cmdErr := execute(t, env.cmd.ProblemReport, &ProblemReportArgs{
		CredExID:    record.ExchangeID,
		Description: "cannot fulfil",
	})
	require.Nil(t, cmdErr)

	var result RecordResponse
	require.NoError(t, json.Unmarshal(resp.Bytes(), &result))
	require.Equal(t, credexchange.StateAbandoned, result.Result.State)
	require.Len(t, env.outbound.SentMessages, 1)
	require.IsType(t, &protocol.ProblemReport{}, env.outbound.SentMessages[0])
}

func TestCommand_Remove(t *testing.T) {
	env := newCommandEnv(t)

	record, _, err := env.manager.CreateProposal(testConnID,
		&protocol.ProposalOptions{CredentialDefinitionID: testCredDefID}, nil)
	require.NoError(t, err)

	_, cmdErr := execute(t, env.cmd.Remove, &RemoveArgs{CredExID: record.ExchangeID})
	require.Nil(t, cmdErr)

	_, err = env.manager.GetByID(record.ExchangeID)
	require.Error(t, err)

	_, cmdErr = execute(t, env.cmd.Remove, &RemoveArgs{CredExID: record.ExchangeID})
	require.NotNil(t, cmdErr)
	require.Equal(t, command.ExecuteError, cmdErr.Type())
}

func TestCommand_DispatchFailureSavesErrorState(t *testing.T) {
	env := newCommandEnv(t)

	env.outbound.SendErr = errors.New("transport down")

	_, cmdErr := execute(t, env.cmd.SendProposal, &SendProposalArgs{
		ConnectionID: testConnID,
		Preview:      preview(),
		CredDefID:    testCredDefID,
	})
	require.NotNil(t, cmdErr)
	require.Equal(t, command.ExecuteError, cmdErr.Type())

	records, err := env.manager.Recorder().Query()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, credexchange.StateProposalSent, records[0].State)
	require.Equal(t, "transport down", records[0].ErrorMsg)
}

func TestCommand_StoreDispatchFailureAfterAutoRemove(t *testing.T) {
	env := newCommandEnv(t)

	record, err := env.manager.ReceiveOffer(testConnID, &protocol.OfferCredential{
		ID:                "offer-1",
		CredentialPreview: preview(),
	})
	require.NoError(t, err)

	record.AutoRemove = true
	require.NoError(t, env.manager.Recorder().Save(record))

	_, _, err = env.manager.CreateRequest(record, "did:example:mine")
	require.NoError(t, err)

	_, err = env.manager.ReceiveCredential(testConnID, &protocol.IssueCredential{
		ID:     "credential-1",
		Thread: thread(record.ThreadID),
	})
	require.NoError(t, err)

	env.outbound.SendErr = errors.New("transport down")

	_, cmdErr := execute(t, env.cmd.Store, &StoreArgs{CredExID: record.ExchangeID})
	require.NotNil(t, cmdErr)
	require.Equal(t, command.ExecuteError, cmdErr.Type())

	// the ack dispatch failure must not resurrect the auto-removed record.
	records, err := env.manager.Recorder().Query()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestCommand_MalformedRequest(t *testing.T) {
	env := newCommandEnv(t)

	for _, exec := range []command.Exec{
		env.cmd.Records, env.cmd.Record, env.cmd.SendProposal, env.cmd.Create,
		env.cmd.Send, env.cmd.CreateFreeOffer, env.cmd.SendFreeOffer,
		env.cmd.SendOffer, env.cmd.SendRequest, env.cmd.Issue, env.cmd.Store,
		env.cmd.ProblemReport, env.cmd.Remove,
	} {
		var resp bytes.Buffer

		cmdErr := exec(&resp, bytes.NewReader([]byte("{not json")))
		require.NotNil(t, cmdErr)
		require.Equal(t, command.ValidationError, cmdErr.Type())
		require.Equal(t, InvalidRequestErrorCode, cmdErr.Code())
	}
}

func thread(id string) *decorator.Thread {
	return &decorator.Thread{ID: id}
}
