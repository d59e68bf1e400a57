/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/trustridge/credex-go/pkg/controller/command"
	"github.com/trustridge/credex-go/pkg/controller/internal/cmdutil"
	protocol "github.com/trustridge/credex-go/pkg/didcomm/protocol/issuecredential"
	"github.com/trustridge/credex-go/pkg/internal/logutil"
	"github.com/trustridge/credex-go/pkg/store/credexchange"
)

var logger = log.New("credex/controller/issuecredential")

const (
	// InvalidRequestErrorCode is typically a code for validation errors
	// for invalid issue credential controller requests.
	InvalidRequestErrorCode = command.Code(iota + command.IssueCredential)
	// RecordsErrorCode is for failures in the records query command.
	RecordsErrorCode
	// SendProposalErrorCode is for failures in the send proposal command.
	SendProposalErrorCode
	// SendErrorCode is for failures in the automated send command.
	SendErrorCode
	// CreateOfferErrorCode is for failures in the create free offer command.
	CreateOfferErrorCode
	// SendOfferErrorCode is for failures in the send offer command.
	SendOfferErrorCode
	// SendRequestErrorCode is for failures in the send request command.
	SendRequestErrorCode
	// IssueErrorCode is for failures in the issue credential command.
	IssueErrorCode
	// StoreErrorCode is for failures in the store credential command.
	StoreErrorCode
	// ProblemReportErrorCode is for failures in the problem report command.
	ProblemReportErrorCode
	// RemoveErrorCode is for failures in the remove record command.
	RemoveErrorCode
)

// constants for issue credential commands.
const (
	CommandName = "issuecredential"

	RecordsCommandMethod         = "Records"
	RecordCommandMethod          = "Record"
	SendProposalCommandMethod    = "SendProposal"
	CreateCommandMethod          = "Create"
	SendCommandMethod            = "Send"
	CreateFreeOfferCommandMethod = "CreateFreeOffer"
	SendFreeOfferCommandMethod   = "SendFreeOffer"
	SendOfferCommandMethod       = "SendOffer"
	SendRequestCommandMethod     = "SendRequest"
	IssueCommandMethod           = "Issue"
	StoreCommandMethod           = "Store"
	ProblemReportCommandMethod   = "ProblemReport"
	RemoveCommandMethod          = "Remove"
)

const (
	// error messages.
	errEmptyConnID      = "empty connection_id"
	errEmptyCredExID    = "empty cred_ex_id"
	errEmptyCredDefID   = "empty cred_def_id"
	errEmptyPreview     = "empty credential_proposal"
	errEmptyDescription = "empty description"
	// log constants.
	successString = "success"
	credExID      = "cred_ex_id"
)

// Command is controller command for credential exchange.
type Command struct {
	manager     *protocol.Manager
	connections protocol.ConnectionLookup
	outbound    protocol.Outbound
}

// New returns new issue credential controller command instance.
func New(manager *protocol.Manager, connections protocol.ConnectionLookup, outbound protocol.Outbound) *Command {
	return &Command{
		manager:     manager,
		connections: connections,
		outbound:    outbound,
	}
}

// GetHandlers returns list of all commands supported by this controller command.
func (c *Command) GetHandlers() []command.Handler {
	return []command.Handler{
		cmdutil.NewCommandHandler(CommandName, RecordsCommandMethod, c.Records),
		cmdutil.NewCommandHandler(CommandName, RecordCommandMethod, c.Record),
		cmdutil.NewCommandHandler(CommandName, SendProposalCommandMethod, c.SendProposal),
		cmdutil.NewCommandHandler(CommandName, CreateCommandMethod, c.Create),
		cmdutil.NewCommandHandler(CommandName, SendCommandMethod, c.Send),
		cmdutil.NewCommandHandler(CommandName, CreateFreeOfferCommandMethod, c.CreateFreeOffer),
		cmdutil.NewCommandHandler(CommandName, SendFreeOfferCommandMethod, c.SendFreeOffer),
		cmdutil.NewCommandHandler(CommandName, SendOfferCommandMethod, c.SendOffer),
		cmdutil.NewCommandHandler(CommandName, SendRequestCommandMethod, c.SendRequest),
		cmdutil.NewCommandHandler(CommandName, IssueCommandMethod, c.Issue),
		cmdutil.NewCommandHandler(CommandName, StoreCommandMethod, c.Store),
		cmdutil.NewCommandHandler(CommandName, ProblemReportCommandMethod, c.ProblemReport),
		cmdutil.NewCommandHandler(CommandName, RemoveCommandMethod, c.Remove),
	}
}

// Records queries credential exchange records by connection, thread, state
// and role.
func (c *Command) Records(rw io.Writer, req io.Reader) command.Error {
	var args RecordsArgs
	if err := json.NewDecoder(req).Decode(&args); err != nil {
		logutil.LogInfo(logger, CommandName, RecordsCommandMethod, err.Error())

		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	var expressions []string

	for tag, value := range map[string]string{
		"connection_id": args.ConnectionID,
		"thread_id":     args.ThreadID,
		"state":         args.State,
		"role":          args.Role,
	} {
		if value != "" {
			expressions = append(expressions, tag+":"+value)
		}
	}

	records, err := c.manager.Recorder().Query(expressions...)
	if err != nil {
		logutil.LogError(logger, CommandName, RecordsCommandMethod, err.Error())

		return command.NewExecuteError(RecordsErrorCode, err)
	}

	command.WriteNillableResponse(rw, &RecordsResponse{Results: records}, logger)

	logutil.LogDebug(logger, CommandName, RecordsCommandMethod, successString)

	return nil
}

// Record retrieves one credential exchange record by id.
func (c *Command) Record(rw io.Writer, req io.Reader) command.Error {
	var args RecordArgs
	if err := json.NewDecoder(req).Decode(&args); err != nil {
		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	if args.CredExID == "" {
		return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf(errEmptyCredExID))
	}

	record, err := c.manager.GetByID(args.CredExID)
	if err != nil {
		logutil.LogError(logger, CommandName, RecordCommandMethod, err.Error(),
			logutil.CreateKeyValueString(credExID, args.CredExID))

		return command.NewExecuteError(RecordsErrorCode, err)
	}

	command.WriteNillableResponse(rw, &RecordResponse{Result: record}, logger)

	return nil
}

// SendProposal starts a holder-side exchange and dispatches the proposal.
func (c *Command) SendProposal(rw io.Writer, req io.Reader) command.Error {
	var args SendProposalArgs
	if err := json.NewDecoder(req).Decode(&args); err != nil {
		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	if args.ConnectionID == "" {
		return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf(errEmptyConnID))
	}

	if err := c.checkConnection(args.ConnectionID); err != nil {
		return command.NewExecuteError(SendProposalErrorCode, err)
	}

	record, msg, err := c.manager.CreateProposal(args.ConnectionID, &protocol.ProposalOptions{
		Comment:                args.Comment,
		Preview:                args.Preview,
		SchemaID:               args.SchemaID,
		CredentialDefinitionID: args.CredDefID,
	}, &protocol.RecordOptions{AutoRemove: args.AutoRemove, Trace: args.Trace})
	if err != nil {
		logutil.LogError(logger, CommandName, SendProposalCommandMethod, err.Error())

		return command.NewExecuteError(SendProposalErrorCode, err)
	}

	if cmdErr := c.dispatch(record, msg, SendProposalCommandMethod, SendProposalErrorCode); cmdErr != nil {
		return cmdErr
	}

	command.WriteNillableResponse(rw, &RecordResponse{Result: record}, logger)

	logutil.LogDebug(logger, CommandName, SendProposalCommandMethod, successString,
		logutil.CreateKeyValueString(credExID, record.ExchangeID))

	return nil
}

// Create builds an issuer-initiated exchange record and its offer without
// dispatching anything.
func (c *Command) Create(rw io.Writer, req io.Reader) command.Error {
	record, msg, cmdErr := c.prepareSend(req, CreateCommandMethod)
	if cmdErr != nil {
		return cmdErr
	}

	command.WriteNillableResponse(rw, &OfferResponse{Record: record, Offer: msg}, logger)

	return nil
}

// Send creates an issuer-initiated exchange with full automation and
// dispatches the offer. The created record has auto-issue enabled, so the
// exchange completes without further operator action.
func (c *Command) Send(rw io.Writer, req io.Reader) command.Error {
	record, msg, cmdErr := c.prepareSend(req, SendCommandMethod)
	if cmdErr != nil {
		return cmdErr
	}

	if record.ConnectionID == "" {
		return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf(errEmptyConnID))
	}

	if cmdErr := c.dispatch(record, msg, SendCommandMethod, SendErrorCode); cmdErr != nil {
		return cmdErr
	}

	command.WriteNillableResponse(rw, &OfferResponse{Record: record, Offer: msg}, logger)

	return nil
}

func (c *Command) prepareSend(req io.Reader, methodName string) (*credexchange.Record,
	*protocol.OfferCredential, command.Error) {
	var args SendArgs
	if err := json.NewDecoder(req).Decode(&args); err != nil {
		return nil, nil, command.NewValidationError(InvalidRequestErrorCode, err)
	}

	if args.Preview == nil {
		return nil, nil, command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf(errEmptyPreview))
	}

	if args.CredDefID == "" {
		return nil, nil, command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf(errEmptyCredDefID))
	}

	if args.ConnectionID != "" {
		if err := c.checkConnection(args.ConnectionID); err != nil {
			return nil, nil, command.NewExecuteError(SendErrorCode, err)
		}
	}

	record, msg, err := c.manager.PrepareSend(args.ConnectionID, &protocol.ProposalOptions{
		Comment:                args.Comment,
		Preview:                args.Preview,
		SchemaID:               args.SchemaID,
		CredentialDefinitionID: args.CredDefID,
	}, &protocol.RecordOptions{AutoRemove: args.AutoRemove, Trace: args.Trace})
	if err != nil {
		logutil.LogError(logger, CommandName, methodName, err.Error())

		return nil, nil, command.NewExecuteError(SendErrorCode, err)
	}

	return record, msg, nil
}

// CreateFreeOffer creates an offer with no prior proposal without dispatching
// it, for out-of-band delivery.
func (c *Command) CreateFreeOffer(rw io.Writer, req io.Reader) command.Error {
	record, msg, cmdErr := c.createFreeOffer(req, CreateFreeOfferCommandMethod)
	if cmdErr != nil {
		return cmdErr
	}

	command.WriteNillableResponse(rw, &OfferResponse{Record: record, Offer: msg}, logger)

	return nil
}

// SendFreeOffer creates an offer with no prior proposal and dispatches it on
// the given connection.
func (c *Command) SendFreeOffer(rw io.Writer, req io.Reader) command.Error {
	record, msg, cmdErr := c.createFreeOffer(req, SendFreeOfferCommandMethod)
	if cmdErr != nil {
		return cmdErr
	}

	if record.ConnectionID == "" {
		return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf(errEmptyConnID))
	}

	if cmdErr := c.dispatch(record, msg, SendFreeOfferCommandMethod, SendOfferErrorCode); cmdErr != nil {
		return cmdErr
	}

	command.WriteNillableResponse(rw, &OfferResponse{Record: record, Offer: msg}, logger)

	return nil
}

func (c *Command) createFreeOffer(req io.Reader, methodName string) (*credexchange.Record,
	*protocol.OfferCredential, command.Error) {
	var args CreateFreeOfferArgs
	if err := json.NewDecoder(req).Decode(&args); err != nil {
		return nil, nil, command.NewValidationError(InvalidRequestErrorCode, err)
	}

	if args.CredDefID == "" {
		return nil, nil, command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf(errEmptyCredDefID))
	}

	if args.ConnectionID != "" {
		if err := c.checkConnection(args.ConnectionID); err != nil {
			return nil, nil, command.NewExecuteError(CreateOfferErrorCode, err)
		}
	}

	record, msg, err := c.manager.CreateFreeOffer(args.ConnectionID, args.CredDefID, args.Preview,
		args.Comment, &protocol.RecordOptions{
			AutoIssue:  args.AutoIssue,
			AutoRemove: args.AutoRemove,
			Trace:      args.Trace,
		})
	if err != nil {
		logutil.LogError(logger, CommandName, methodName, err.Error())

		return nil, nil, command.NewExecuteError(CreateOfferErrorCode, err)
	}

	return record, msg, nil
}

// SendOffer replies to a received proposal with an offer.
func (c *Command) SendOffer(rw io.Writer, req io.Reader) command.Error {
	var args SendOfferArgs
	if err := json.NewDecoder(req).Decode(&args); err != nil {
		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	record, cmdErr := c.getRecord(args.CredExID, SendOfferErrorCode)
	if cmdErr != nil {
		return cmdErr
	}

	record, msg, err := c.manager.CreateOffer(record, args.CounterProposal, args.Comment)
	if err != nil {
		logutil.LogError(logger, CommandName, SendOfferCommandMethod, err.Error(),
			logutil.CreateKeyValueString(credExID, args.CredExID))

		return command.NewExecuteError(SendOfferErrorCode, err)
	}

	if cmdErr := c.dispatch(record, msg, SendOfferCommandMethod, SendOfferErrorCode); cmdErr != nil {
		return cmdErr
	}

	command.WriteNillableResponse(rw, &RecordResponse{Result: record}, logger)

	return nil
}

// SendRequest replies to a received offer with a credential request. The
// holder DID defaults to the connection's own DID.
func (c *Command) SendRequest(rw io.Writer, req io.Reader) command.Error {
	var args SendRequestArgs
	if err := json.NewDecoder(req).Decode(&args); err != nil {
		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	record, cmdErr := c.getRecord(args.CredExID, SendRequestErrorCode)
	if cmdErr != nil {
		return cmdErr
	}

	holderDID := args.HolderDID
	if holderDID == "" {
		conn, err := c.connections.GetConnectionRecord(record.ConnectionID)
		if err != nil {
			return command.NewExecuteError(SendRequestErrorCode, err)
		}

		holderDID = conn.MyDID
	}

	record, msg, err := c.manager.CreateRequest(record, holderDID)
	if err != nil {
		logutil.LogError(logger, CommandName, SendRequestCommandMethod, err.Error(),
			logutil.CreateKeyValueString(credExID, args.CredExID))

		return command.NewExecuteError(SendRequestErrorCode, err)
	}

	if cmdErr := c.dispatch(record, msg, SendRequestCommandMethod, SendRequestErrorCode); cmdErr != nil {
		return cmdErr
	}

	command.WriteNillableResponse(rw, &RecordResponse{Result: record}, logger)

	return nil
}

// Issue signs the credential for a received request and dispatches it.
func (c *Command) Issue(rw io.Writer, req io.Reader) command.Error {
	var args IssueArgs
	if err := json.NewDecoder(req).Decode(&args); err != nil {
		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	record, cmdErr := c.getRecord(args.CredExID, IssueErrorCode)
	if cmdErr != nil {
		return cmdErr
	}

	record, msg, err := c.manager.IssueCredential(record, args.Comment)
	if err != nil {
		logutil.LogError(logger, CommandName, IssueCommandMethod, err.Error(),
			logutil.CreateKeyValueString(credExID, args.CredExID))

		return command.NewExecuteError(IssueErrorCode, err)
	}

	if cmdErr := c.dispatch(record, msg, IssueCommandMethod, IssueErrorCode); cmdErr != nil {
		return cmdErr
	}

	command.WriteNillableResponse(rw, &RecordResponse{Result: record}, logger)

	return nil
}

// Store stores a received credential into the wallet, then acknowledges it to
// the issuer.
func (c *Command) Store(rw io.Writer, req io.Reader) command.Error {
	var args StoreArgs
	if err := json.NewDecoder(req).Decode(&args); err != nil {
		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	record, cmdErr := c.getRecord(args.CredExID, StoreErrorCode)
	if cmdErr != nil {
		return cmdErr
	}

	record, err := c.manager.StoreCredential(record, args.CredentialID)
	if err != nil {
		logutil.LogError(logger, CommandName, StoreCommandMethod, err.Error(),
			logutil.CreateKeyValueString(credExID, args.CredExID))

		return command.NewExecuteError(StoreErrorCode, err)
	}

	record, ack, err := c.manager.SendCredentialAck(record)
	if err != nil {
		logutil.LogError(logger, CommandName, StoreCommandMethod, err.Error(),
			logutil.CreateKeyValueString(credExID, args.CredExID))

		return command.NewExecuteError(StoreErrorCode, err)
	}

	if cmdErr := c.dispatch(record, ack, StoreCommandMethod, StoreErrorCode); cmdErr != nil {
		return cmdErr
	}

	command.WriteNillableResponse(rw, &RecordResponse{Result: record}, logger)

	return nil
}

// ProblemReport abandons an exchange and sends a problem report to the peer.
func (c *Command) ProblemReport(rw io.Writer, req io.Reader) command.Error {
	var args ProblemReportArgs
	if err := json.NewDecoder(req).Decode(&args); err != nil {
		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	if args.Description == "" {
		return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf(errEmptyDescription))
	}

	record, cmdErr := c.getRecord(args.CredExID, ProblemReportErrorCode)
	if cmdErr != nil {
		return cmdErr
	}

	record, msg, err := c.manager.CreateProblemReport(record, args.Description)
	if err != nil {
		logutil.LogError(logger, CommandName, ProblemReportCommandMethod, err.Error(),
			logutil.CreateKeyValueString(credExID, args.CredExID))

		return command.NewExecuteError(ProblemReportErrorCode, err)
	}

	if cmdErr := c.dispatch(record, msg, ProblemReportCommandMethod, ProblemReportErrorCode); cmdErr != nil {
		return cmdErr
	}

	command.WriteNillableResponse(rw, &RecordResponse{Result: record}, logger)

	return nil
}

// Remove deletes an exchange record.
func (c *Command) Remove(rw io.Writer, req io.Reader) command.Error {
	var args RemoveArgs
	if err := json.NewDecoder(req).Decode(&args); err != nil {
		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	if args.CredExID == "" {
		return command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf(errEmptyCredExID))
	}

	if err := c.manager.Recorder().Delete(args.CredExID); err != nil {
		logutil.LogError(logger, CommandName, RemoveCommandMethod, err.Error(),
			logutil.CreateKeyValueString(credExID, args.CredExID))

		return command.NewExecuteError(RemoveErrorCode, err)
	}

	command.WriteNillableResponse(rw, nil, logger)

	return nil
}

func (c *Command) getRecord(id string, code command.Code) (*credexchange.Record, command.Error) {
	if id == "" {
		return nil, command.NewValidationError(InvalidRequestErrorCode, fmt.Errorf(errEmptyCredExID))
	}

	record, err := c.manager.GetByID(id)
	if err != nil {
		return nil, command.NewExecuteError(code, err)
	}

	return record, nil
}

func (c *Command) checkConnection(connectionID string) error {
	conn, err := c.connections.GetConnectionRecord(connectionID)
	if err != nil {
		return fmt.Errorf("lookup connection %s: %w", connectionID, err)
	}

	if !conn.IsReady() {
		return fmt.Errorf("connection %s in state %s is not ready", connectionID, conn.State)
	}

	return nil
}

// dispatch sends msg on the record's connection. A dispatch failure is stored
// on the record; the state transition already made stands.
func (c *Command) dispatch(record *credexchange.Record, msg interface{}, methodName string,
	code command.Code) command.Error {
	if err := c.outbound.SendToConnection(msg, record.ConnectionID); err != nil {
		c.manager.SaveErrorState(record, err.Error())

		logutil.LogError(logger, CommandName, methodName, err.Error(),
			logutil.CreateKeyValueString(credExID, record.ExchangeID))

		return command.NewExecuteError(code, err)
	}

	return nil
}
