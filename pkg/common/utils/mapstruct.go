/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package utils

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Decode decodes a generic map into the target struct, honoring the struct's
// json tags. Used to turn stored message snapshots back into typed messages.
func Decode(src map[string]interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  target,
	})
	if err != nil {
		return fmt.Errorf("create map decoder: %w", err)
	}

	if err := decoder.Decode(src); err != nil {
		return fmt.Errorf("decode map: %w", err)
	}

	return nil
}

// ToMap converts the given struct to a generic map via its json form.
func ToMap(v interface{}) (map[string]interface{}, error) {
	bits, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal to map: %w", err)
	}

	target := map[string]interface{}{}
	if err := json.Unmarshal(bits, &target); err != nil {
		return nil, fmt.Errorf("unmarshal to map: %w", err)
	}

	return target, nil
}
