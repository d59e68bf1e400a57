/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package controller

import (
	"github.com/trustridge/credex-go/pkg/controller/command"
	issuecredentialcmd "github.com/trustridge/credex-go/pkg/controller/command/issuecredential"
	"github.com/trustridge/credex-go/pkg/controller/rest"
	issuecredentialrest "github.com/trustridge/credex-go/pkg/controller/rest/issuecredential"
	protocol "github.com/trustridge/credex-go/pkg/didcomm/protocol/issuecredential"
)

// GetRESTHandlers returns all REST API handlers provided by controller.
func GetRESTHandlers(manager *protocol.Manager, connections protocol.ConnectionLookup,
	outbound protocol.Outbound) []rest.Handler {
	return issuecredentialrest.New(manager, connections, outbound).GetRESTHandlers()
}

// GetCommandHandlers returns all command handlers provided by controller.
func GetCommandHandlers(manager *protocol.Manager, connections protocol.ConnectionLookup,
	outbound protocol.Outbound) []command.Handler {
	return issuecredentialcmd.New(manager, connections, outbound).GetHandlers()
}
