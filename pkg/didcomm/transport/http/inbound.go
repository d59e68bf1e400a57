/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package http

import (
	"encoding/json"
	"io"
	"net/http"
)

// MessageHandler processes a decoded inbound message.
type MessageHandler interface {
	HandleInbound(msgType string, raw []byte, connectionID string) error
}

// NewInboundHandler returns an http.Handler that accepts protocol messages
// posted by peer agents and routes them by their @type. The connection the
// message belongs to is carried in the connection_id query parameter.
func NewInboundHandler(handler MessageHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)

			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			logger.Errorf("reading inbound request body: %v", err)
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		envelope := struct {
			Type string `json:"@type"`
		}{}

		if err := json.Unmarshal(body, &envelope); err != nil || envelope.Type == "" {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		connectionID := r.URL.Query().Get("connection_id")

		if err := handler.HandleInbound(envelope.Type, body, connectionID); err != nil {
			logger.Warnf("inbound message %s rejected: %v", envelope.Type, err)
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		w.WriteHeader(http.StatusAccepted)
	})
}
