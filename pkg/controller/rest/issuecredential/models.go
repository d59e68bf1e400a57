/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential

import (
	"github.com/trustridge/credex-go/pkg/controller/command/issuecredential"
)

// recordsRequest model
//
// swagger:parameters recordsRequest
type recordsRequest struct { //nolint:unused
	// in: query
	ConnectionID string `json:"connection_id"`
	// in: query
	ThreadID string `json:"thread_id"`
	// in: query
	State string `json:"state"`
	// in: query
	Role string `json:"role"`
}

// recordsResponse model
//
// swagger:response recordsResponse
type recordsResponse struct { //nolint:unused
	// in: body
	Body issuecredential.RecordsResponse
}

// recordRequest model
//
// swagger:parameters recordRequest issueRequest storeRequest removeRequest
type recordRequest struct { //nolint:unused
	// in: path
	// required: true
	CredExID string `json:"credExID"`
}

// recordResponse model
//
// swagger:response recordResponse
type recordResponse struct { //nolint:unused
	// in: body
	Body issuecredential.RecordResponse
}

// sendProposalRequest model
//
// swagger:parameters sendProposalRequest
type sendProposalRequest struct { //nolint:unused
	// in: body
	Body issuecredential.SendProposalArgs
}

// sendRequest model
//
// swagger:parameters sendRequest
type sendRequest struct { //nolint:unused
	// in: body
	Body issuecredential.SendArgs
}

// createOfferRequest model
//
// swagger:parameters createOfferRequest sendFreeOfferRequest
type createOfferRequest struct { //nolint:unused
	// in: body
	Body issuecredential.CreateFreeOfferArgs
}

// offerResponse model
//
// swagger:response offerResponse
type offerResponse struct { //nolint:unused
	// in: body
	Body issuecredential.OfferResponse
}

// sendOfferRequest model
//
// swagger:parameters sendOfferRequest
type sendOfferRequest struct { //nolint:unused
	// in: path
	// required: true
	CredExID string `json:"credExID"`
	// in: body
	Body issuecredential.SendOfferArgs
}

// sendRequestRequest model
//
// swagger:parameters sendRequestRequest
type sendRequestRequest struct { //nolint:unused
	// in: path
	// required: true
	CredExID string `json:"credExID"`
	// in: body
	Body issuecredential.SendRequestArgs
}

// problemReportRequest model
//
// swagger:parameters problemReportRequest
type problemReportRequest struct { //nolint:unused
	// in: path
	// required: true
	CredExID string `json:"credExID"`
	// in: body
	Body issuecredential.ProblemReportArgs
}
