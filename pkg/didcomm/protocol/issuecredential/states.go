/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential

import (
	"github.com/trustridge/credex-go/pkg/store/credexchange"
)

// transitions is the closed transition graph of the protocol. A record may
// only move along these edges; the abandoned state is additionally reachable
// from every non-terminal state via the problem-report path, which is checked
// separately so the table stays the happy-path graph.
var transitions = map[credexchange.State][]credexchange.State{ //nolint:gochecknoglobals
	credexchange.StateProposalSent:       {credexchange.StateOfferReceived},
	credexchange.StateProposalReceived:   {credexchange.StateOfferSent},
	credexchange.StateOfferSent:          {credexchange.StateRequestReceived},
	credexchange.StateOfferReceived:      {credexchange.StateRequestSent},
	credexchange.StateRequestSent:        {credexchange.StateCredentialReceived},
	credexchange.StateRequestReceived:    {credexchange.StateCredentialIssued},
	credexchange.StateCredentialIssued:   {credexchange.StateDone},
	credexchange.StateCredentialReceived: {credexchange.StateDone},
	credexchange.StateDone:               {},
	credexchange.StateAbandoned:          {},
}

// canTransition reports whether the edge from -> to exists in the protocol
// graph.
func canTransition(from, to credexchange.State) bool {
	if to == credexchange.StateAbandoned {
		return !from.Terminal()
	}

	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// checkRole fails with a state-conflict error when the record's role does not
// permit the operation. The role check runs before any state check.
func checkRole(record *credexchange.Record, role, operation string) error {
	if record.Role != role {
		return newError(KindStateConflict, record,
			"operation %s requires role %s but record %s has role %s",
			operation, role, record.ExchangeID, record.Role)
	}

	return nil
}

// checkState fails with a state-conflict error unless the record is in one of
// the allowed states. Re-invoking an operation on a record that already made
// its transition therefore fails instead of re-emitting a message.
func checkState(record *credexchange.Record, operation string, allowed ...credexchange.State) error {
	for _, state := range allowed {
		if record.State == state {
			return nil
		}
	}

	return newError(KindStateConflict, record,
		"credential exchange %s in state %s does not permit %s (requires one of %v)",
		record.ExchangeID, record.State, operation, allowed)
}
