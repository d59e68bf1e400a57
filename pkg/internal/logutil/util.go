/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package logutil formats controller command log lines so every entry carries
// the command and action it belongs to.
package logutil

import (
	"fmt"
	"strings"

	"github.com/hyperledger/aries-framework-go/component/log"
)

// LogError logs a command failure with optional key=value data.
func LogError(logger *log.Log, command, action, errMsg string, data ...string) {
	logger.Errorf("command=[%s] action=[%s]%s errMsg=[%s]", command, action, joined(data), errMsg)
}

// LogDebug logs a command debug message with optional key=value data.
func LogDebug(logger *log.Log, command, action, msg string, data ...string) {
	logger.Debugf("command=[%s] action=[%s]%s msg=[%s]", command, action, joined(data), msg)
}

// LogInfo logs a command info message with optional key=value data.
func LogInfo(logger *log.Log, command, action, msg string, data ...string) {
	logger.Infof("command=[%s] action=[%s]%s msg=[%s]", command, action, joined(data), msg)
}

// CreateKeyValueString renders one key=[value] pair for the data arguments.
func CreateKeyValueString(key, val string) string {
	return fmt.Sprintf("%s=[%s]", key, val)
}

func joined(data []string) string {
	if len(data) == 0 {
		return ""
	}

	return " " + strings.Join(data, " ")
}
