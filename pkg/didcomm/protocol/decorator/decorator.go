/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package decorator

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Thread thread data.
type Thread struct {
	ID  string `json:"thid,omitempty"`
	PID string `json:"pthid,omitempty"`
}

// Timing keeps expiration time.
type Timing struct {
	ExpiresTime time.Time `json:"expires_time,omitempty"`
}

// Attachment is intended to provide the possibility to include files, links or
// even JSON payload to the message.
type Attachment struct {
	// ID is a JSON-LD construct that uniquely identifies attached content
	// within the scope of a given message.
	ID string `json:"@id,omitempty"`
	// MimeType describes the MIME type of the attached content.
	MimeType string `json:"mime-type,omitempty"`
	// Data provides the bytes of the attachment.
	Data AttachmentData `json:"data,omitempty"`
}

// AttachmentData contains attachment payload in one of its fields.
type AttachmentData struct {
	// Base64 contains the base64-encoded bytes of the attachment.
	Base64 string `json:"base64,omitempty"`
	// JSON is a directly embedded JSON payload.
	JSON interface{} `json:"json,omitempty"`
}

// Fetch decodes the attachment payload and returns it as raw JSON bytes.
func (d *AttachmentData) Fetch() ([]byte, error) {
	if d.JSON != nil {
		bits, err := json.Marshal(d.JSON)
		if err != nil {
			return nil, fmt.Errorf("marshal json attachment contents: %w", err)
		}

		return bits, nil
	}

	if d.Base64 != "" {
		bits, err := base64.StdEncoding.DecodeString(d.Base64)
		if err != nil {
			return nil, fmt.Errorf("decode base64 attachment contents: %w", err)
		}

		return bits, nil
	}

	return nil, fmt.Errorf("no contents in this attachment")
}

// NewJSONAttachment returns an attachment embedding the given payload as JSON.
func NewJSONAttachment(id string, payload interface{}) Attachment {
	return Attachment{
		ID:       id,
		MimeType: "application/json",
		Data:     AttachmentData{JSON: payload},
	}
}
