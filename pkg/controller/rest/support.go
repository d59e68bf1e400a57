/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rest

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/trustridge/credex-go/pkg/controller/command"
)

var logger = log.New("credex/controller/rest")

// genericErrorBody is the JSON error response body sent for failed commands.
type genericErrorBody struct {
	Code    command.Code `json:"code"`
	Message string       `json:"message"`
}

// Execute runs the given command and writes its response or error to the
// http response writer.
func Execute(exec command.Exec, rw http.ResponseWriter, req io.Reader) {
	rw.Header().Set("Content-Type", "application/json")

	if err := exec(rw, req); err != nil {
		SendError(rw, err)
	}
}

// SendError writes a command error with the HTTP status matching its type:
// validation errors map to 400, execution errors to 500.
func SendError(rw http.ResponseWriter, err command.Error) {
	status := http.StatusInternalServerError
	if err.Type() == command.ValidationError {
		status = http.StatusBadRequest
	}

	SendHTTPStatusError(rw, status, err.Code(), err)
}

// SendHTTPStatusError writes an error response with the given HTTP status.
func SendHTTPStatusError(rw http.ResponseWriter, status int, code command.Code, err error) {
	rw.WriteHeader(status)

	if encErr := json.NewEncoder(rw).Encode(genericErrorBody{Code: code, Message: err.Error()}); encErr != nil {
		logger.Errorf("Unable to send error response, %s", encErr)
	}
}
