/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package main (Credential Exchange Agent REST Server).
//
//
// Terms Of Service:
//
//
//     Schemes: https
//     Version: 0.1.0
//     License: SPDX-License-Identifier: Apache-2.0
//
//     Consumes:
//     - application/json
//
//     Produces:
//     - application/json
//
// swagger:meta
package main

import (
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/spf13/cobra"

	"github.com/trustridge/credex-go/cmd/credex-agent-rest/startcmd"
)

// This is an application which starts the credential exchange controller API
// on a given port.
func main() {
	rootCmd := &cobra.Command{
		Use: "credex-agent-rest",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	logger := log.New("credex/agent-rest")

	startCmd, err := startcmd.Cmd(&startcmd.HTTPServer{})
	if err != nil {
		logger.Fatalf(err.Error())
	}

	rootCmd.AddCommand(startCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Fatalf("Failed to run credex-agent-rest: %s", err)
	}
}
