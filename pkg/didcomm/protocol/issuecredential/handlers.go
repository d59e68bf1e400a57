/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential

import (
	"encoding/json"
	"errors"

	"github.com/trustridge/credex-go/pkg/store/connection"
	"github.com/trustridge/credex-go/pkg/store/credexchange"
)

// Handlers is the inbound entry point of the protocol. It decodes wire
// messages, verifies the connection they arrived on, applies the matching
// manager operation and then evaluates the record's automation flags exactly
// once. A failure in an automatic continuation is recorded on the exchange and
// logged; it never fails the inbound delivery that triggered it.
type Handlers struct {
	manager     *Manager
	connections ConnectionLookup
	outbound    Outbound
}

// NewHandlers returns the inbound message handlers for the protocol.
func NewHandlers(manager *Manager, connections ConnectionLookup, outbound Outbound) *Handlers {
	return &Handlers{
		manager:     manager,
		connections: connections,
		outbound:    outbound,
	}
}

// HandleInbound routes a raw inbound message by type. Unknown types are
// rejected as malformed.
func (h *Handlers) HandleInbound(msgType string, raw []byte, connectionID string) error {
	if err := h.checkConnection(connectionID); err != nil {
		return err
	}

	switch msgType {
	case ProposeCredentialMsgType:
		return h.handleProposal(raw, connectionID)
	case OfferCredentialMsgType:
		return h.handleOffer(raw, connectionID)
	case RequestCredentialMsgType:
		return h.handleRequest(raw, connectionID)
	case IssueCredentialMsgType:
		return h.handleCredential(raw, connectionID)
	case AckMsgType:
		return h.handleAck(raw, connectionID)
	case ProblemReportMsgType:
		return h.handleProblemReport(raw, connectionID)
	default:
		return newError(KindMalformedMessage, nil, "unsupported message type %s", msgType)
	}
}

// checkConnection verifies the inbound connection exists and is ready before
// any protocol processing. It runs ahead of message decoding so a message on a
// dead connection never touches exchange state.
func (h *Handlers) checkConnection(connectionID string) error {
	record, err := h.connections.GetConnectionRecord(connectionID)
	if err != nil {
		if errors.Is(err, connection.ErrConnectionNotFound) {
			return newError(KindConnectionNotReady, nil, "connection %s not found", connectionID)
		}

		return wrapError(KindStorageFailure, nil, err, "lookup connection %s", connectionID)
	}

	if !record.IsReady() {
		return newError(KindConnectionNotReady, nil,
			"connection %s in state %s is not ready", connectionID, record.State)
	}

	return nil
}

func decode(raw []byte, msg interface{}) error {
	if err := json.Unmarshal(raw, msg); err != nil {
		return newError(KindMalformedMessage, nil, "decode message: %s", err)
	}

	return nil
}

func (h *Handlers) handleProposal(raw []byte, connectionID string) error {
	proposal := &ProposeCredential{}
	if err := decode(raw, proposal); err != nil {
		return err
	}

	record, err := h.manager.ReceiveProposal(connectionID, proposal)
	if err != nil {
		return err
	}

	if record.AutoOffer {
		h.autoOffer(record)
	}

	return nil
}

func (h *Handlers) handleOffer(raw []byte, connectionID string) error {
	offer := &OfferCredential{}
	if err := decode(raw, offer); err != nil {
		return err
	}

	_, err := h.manager.ReceiveOffer(connectionID, offer)

	// requesting against an offer needs a holder DID, so there is no
	// automatic continuation here; the controller drives create_request.
	return err
}

func (h *Handlers) handleRequest(raw []byte, connectionID string) error {
	request := &RequestCredential{}
	if err := decode(raw, request); err != nil {
		return err
	}

	record, err := h.manager.ReceiveRequest(connectionID, request)
	if err != nil {
		return err
	}

	if record.AutoIssue {
		h.autoIssue(record)
	}

	return nil
}

func (h *Handlers) handleCredential(raw []byte, connectionID string) error {
	issue := &IssueCredential{}
	if err := decode(raw, issue); err != nil {
		return err
	}

	record, err := h.manager.ReceiveCredential(connectionID, issue)
	if err != nil {
		return err
	}

	if record.AutoStore {
		h.autoStore(record)
	}

	return nil
}

func (h *Handlers) handleAck(raw []byte, connectionID string) error {
	ack := &Ack{}
	if err := decode(raw, ack); err != nil {
		return err
	}

	_, err := h.manager.ReceiveCredentialAck(connectionID, ack)

	return err
}

// handleProblemReport abandons the referenced exchange. A report whose thread
// matches no record is dropped with a warning: there is no exchange to
// abandon and creating one would let peers mint placeholder records.
func (h *Handlers) handleProblemReport(raw []byte, connectionID string) error {
	report := &ProblemReport{}
	if err := decode(raw, report); err != nil {
		return err
	}

	record, err := h.manager.ReceiveProblemReport(connectionID, report)
	if err != nil {
		if ErrorKind(err) == KindNotFound {
			logger.Warnf("dropping problem report for unknown thread %s: %s", report.ThreadID(), report.Description.En)

			return nil
		}

		return err
	}

	logger.Infof("credential exchange %s abandoned by peer: %s", record.ExchangeID, record.ErrorMsg)

	return nil
}

// autoOffer continues a proposal-received exchange with an offer.
func (h *Handlers) autoOffer(record *credexchange.Record) {
	record, msg, err := h.manager.CreateOffer(record, nil, "")
	if err != nil {
		h.continuationFailed(record, "auto offer", err)

		return
	}

	h.send(record, msg, "auto offer")
}

// autoIssue continues a request-received exchange by issuing the credential.
func (h *Handlers) autoIssue(record *credexchange.Record) {
	record, msg, err := h.manager.IssueCredential(record, "")
	if err != nil {
		h.continuationFailed(record, "auto issue", err)

		return
	}

	h.send(record, msg, "auto issue")
}

// autoStore continues a credential-received exchange by storing the
// credential and acknowledging it.
func (h *Handlers) autoStore(record *credexchange.Record) {
	record, err := h.manager.StoreCredential(record, "")
	if err != nil {
		h.continuationFailed(record, "auto store", err)

		return
	}

	record, msg, err := h.manager.SendCredentialAck(record)
	if err != nil {
		h.continuationFailed(record, "auto store ack", err)

		return
	}

	h.send(record, msg, "auto store ack")
}

func (h *Handlers) send(record *credexchange.Record, msg interface{}, step string) {
	if err := h.outbound.SendToConnection(msg, record.ConnectionID); err != nil {
		h.continuationFailed(record, step+" dispatch", err)
	}
}

// continuationFailed records an automation failure on the exchange without
// failing the inbound delivery that triggered it. The already-applied receive
// transition stands; the operator can pick the exchange up from its honest
// intermediate state.
func (h *Handlers) continuationFailed(record *credexchange.Record, step string, err error) {
	if record == nil {
		record = ErrorRecord(err)
	}

	if record != nil {
		h.manager.SaveErrorState(record, err.Error())
	}

	logger.Errorf("%s failed: %s", step, err)
}
