/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/trustridge/credex-go/pkg/controller/command/issuecredential"
	"github.com/trustridge/credex-go/pkg/controller/internal/cmdutil"
	"github.com/trustridge/credex-go/pkg/controller/rest"
	protocol "github.com/trustridge/credex-go/pkg/didcomm/protocol/issuecredential"
)

// constants for the issue credential operations.
const (
	OperationID       = "/issue-credential"
	RecordsPath       = OperationID + "/records"
	RecordPath        = RecordsPath + "/{credExID}"
	SendProposalPath  = OperationID + "/send-proposal"
	CreatePath        = OperationID + "/create"
	SendPath          = OperationID + "/send"
	CreateOfferPath   = OperationID + "/create-offer"
	SendFreeOfferPath = OperationID + "/send-offer"
	SendOfferPath     = RecordPath + "/send-offer"
	SendRequestPath   = RecordPath + "/send-request"
	IssuePath         = RecordPath + "/issue"
	StorePath         = RecordPath + "/store"
	ProblemReportPath = RecordPath + "/problem-report"
	RemovePath        = RecordPath
)

// Operation is the REST controller for credential exchange.
type Operation struct {
	command  *issuecredential.Command
	handlers []rest.Handler
}

// New returns a new issue credential rest client protocol instance.
func New(manager *protocol.Manager, connections protocol.ConnectionLookup, outbound protocol.Outbound) *Operation {
	o := &Operation{command: issuecredential.New(manager, connections, outbound)}
	o.registerHandler()

	return o
}

// GetRESTHandlers get all controller API handlers available for this service.
func (c *Operation) GetRESTHandlers() []rest.Handler {
	return c.handlers
}

func (c *Operation) registerHandler() {
	c.handlers = []rest.Handler{
		cmdutil.NewHTTPHandler(RecordsPath, http.MethodGet, c.Records),
		cmdutil.NewHTTPHandler(RecordPath, http.MethodGet, c.Record),
		cmdutil.NewHTTPHandler(SendProposalPath, http.MethodPost, c.SendProposal),
		cmdutil.NewHTTPHandler(CreatePath, http.MethodPost, c.Create),
		cmdutil.NewHTTPHandler(SendPath, http.MethodPost, c.Send),
		cmdutil.NewHTTPHandler(CreateOfferPath, http.MethodPost, c.CreateOffer),
		cmdutil.NewHTTPHandler(SendFreeOfferPath, http.MethodPost, c.SendFreeOffer),
		cmdutil.NewHTTPHandler(SendOfferPath, http.MethodPost, c.SendOffer),
		cmdutil.NewHTTPHandler(SendRequestPath, http.MethodPost, c.SendRequest),
		cmdutil.NewHTTPHandler(IssuePath, http.MethodPost, c.Issue),
		cmdutil.NewHTTPHandler(StorePath, http.MethodPost, c.Store),
		cmdutil.NewHTTPHandler(ProblemReportPath, http.MethodPost, c.ProblemReport),
		cmdutil.NewHTTPHandler(RemovePath, http.MethodDelete, c.Remove),
	}
}

// Records swagger:route GET /issue-credential/records issue-credential recordsRequest
//
// Queries credential exchange records.
//
// Responses:
//    default: genericError
//        200: recordsResponse
func (c *Operation) Records(rw http.ResponseWriter, req *http.Request) {
	args := issuecredential.RecordsArgs{
		ConnectionID: req.URL.Query().Get("connection_id"),
		ThreadID:     req.URL.Query().Get("thread_id"),
		State:        req.URL.Query().Get("state"),
		Role:         req.URL.Query().Get("role"),
	}

	payload, err := json.Marshal(args)
	if err != nil {
		rest.SendHTTPStatusError(rw, http.StatusInternalServerError, issuecredential.InvalidRequestErrorCode, err)

		return
	}

	rest.Execute(c.command.Records, rw, bytes.NewReader(payload))
}

// Record swagger:route GET /issue-credential/records/{credExID} issue-credential recordRequest
//
// Retrieves one credential exchange record.
//
// Responses:
//    default: genericError
//        200: recordResponse
func (c *Operation) Record(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(c.command.Record, rw, recordIDBody(req))
}

// SendProposal swagger:route POST /issue-credential/send-proposal issue-credential sendProposalRequest
//
// Sends a credential proposal.
//
// Responses:
//    default: genericError
//        200: recordResponse
func (c *Operation) SendProposal(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(c.command.SendProposal, rw, req.Body)
}

// Create swagger:route POST /issue-credential/create issue-credential sendRequest
//
// Creates an exchange record and its offer without dispatching anything.
//
// Responses:
//    default: genericError
//        200: offerResponse
func (c *Operation) Create(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(c.command.Create, rw, req.Body)
}

// Send swagger:route POST /issue-credential/send issue-credential sendRequest
//
// Runs a fully automated credential issuance from attribute values.
//
// Responses:
//    default: genericError
//        200: offerResponse
func (c *Operation) Send(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(c.command.Send, rw, req.Body)
}

// CreateOffer swagger:route POST /issue-credential/create-offer issue-credential createOfferRequest
//
// Creates a free credential offer without dispatching it.
//
// Responses:
//    default: genericError
//        200: offerResponse
func (c *Operation) CreateOffer(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(c.command.CreateFreeOffer, rw, req.Body)
}

// SendFreeOffer swagger:route POST /issue-credential/send-offer issue-credential sendFreeOfferRequest
//
// Creates and dispatches a free credential offer.
//
// Responses:
//    default: genericError
//        200: offerResponse
func (c *Operation) SendFreeOffer(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(c.command.SendFreeOffer, rw, req.Body)
}

// SendOffer swagger:route POST /issue-credential/records/{credExID}/send-offer issue-credential sendOfferRequest
//
// Replies to a received proposal with an offer.
//
// Responses:
//    default: genericError
//        200: recordResponse
func (c *Operation) SendOffer(rw http.ResponseWriter, req *http.Request) {
	body, err := mergeRecordID(req)
	if err != nil {
		rest.SendHTTPStatusError(rw, http.StatusBadRequest, issuecredential.InvalidRequestErrorCode, err)

		return
	}

	rest.Execute(c.command.SendOffer, rw, body)
}

// SendRequest swagger:route POST /issue-credential/records/{credExID}/send-request issue-credential sendRequestRequest
//
// Replies to a received offer with a credential request.
//
// Responses:
//    default: genericError
//        200: recordResponse
func (c *Operation) SendRequest(rw http.ResponseWriter, req *http.Request) {
	body, err := mergeRecordID(req)
	if err != nil {
		rest.SendHTTPStatusError(rw, http.StatusBadRequest, issuecredential.InvalidRequestErrorCode, err)

		return
	}

	rest.Execute(c.command.SendRequest, rw, body)
}

// Issue swagger:route POST /issue-credential/records/{credExID}/issue issue-credential issueRequest
//
// Issues the credential for a received request.
//
// Responses:
//    default: genericError
//        200: recordResponse
func (c *Operation) Issue(rw http.ResponseWriter, req *http.Request) {
	body, err := mergeRecordID(req)
	if err != nil {
		rest.SendHTTPStatusError(rw, http.StatusBadRequest, issuecredential.InvalidRequestErrorCode, err)

		return
	}

	rest.Execute(c.command.Issue, rw, body)
}

// Store swagger:route POST /issue-credential/records/{credExID}/store issue-credential storeRequest
//
// Stores a received credential and acknowledges it.
//
// Responses:
//    default: genericError
//        200: recordResponse
func (c *Operation) Store(rw http.ResponseWriter, req *http.Request) {
	body, err := mergeRecordID(req)
	if err != nil {
		rest.SendHTTPStatusError(rw, http.StatusBadRequest, issuecredential.InvalidRequestErrorCode, err)

		return
	}

	rest.Execute(c.command.Store, rw, body)
}

// ProblemReport swagger:route POST /issue-credential/records/{credExID}/problem-report issue-credential problemReportRequest
//
// Abandons an exchange and notifies the peer.
//
// Responses:
//    default: genericError
//        200: recordResponse
func (c *Operation) ProblemReport(rw http.ResponseWriter, req *http.Request) {
	body, err := mergeRecordID(req)
	if err != nil {
		rest.SendHTTPStatusError(rw, http.StatusBadRequest, issuecredential.InvalidRequestErrorCode, err)

		return
	}

	rest.Execute(c.command.ProblemReport, rw, body)
}

// Remove swagger:route DELETE /issue-credential/records/{credExID} issue-credential removeRequest
//
// Deletes a credential exchange record.
//
// Responses:
//    default: genericError
//        200: emptyResponse
func (c *Operation) Remove(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(c.command.Remove, rw, recordIDBody(req))
}

func recordIDBody(req *http.Request) io.Reader {
	return bytes.NewBufferString(fmt.Sprintf(`{"cred_ex_id":%q}`, mux.Vars(req)["credExID"]))
}

// mergeRecordID folds the path's record id into the JSON request body so the
// command layer sees a single document.
func mergeRecordID(req *http.Request) (io.Reader, error) {
	body := map[string]interface{}{}

	if req.Body != nil {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil && err != io.EOF {
			return nil, fmt.Errorf("invalid request body: %w", err)
		}
	}

	body["cred_ex_id"] = mux.Vars(req)["credExID"]

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(payload), nil
}
