/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/pkg/errors"
)

var logger = log.New("credex/ledger")

// HTTPBinding resolves ledger objects from a read-side HTTP endpoint exposing
// /schemas/{id} and /credential-definitions/{id}.
type HTTPBinding struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBinding returns a Registry backed by the ledger read endpoint at
// baseURL.
func NewHTTPBinding(baseURL string, opts ...BindingOption) (*HTTPBinding, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid ledger base URL: %w", err)
	}

	binding := &HTTPBinding{
		baseURL: baseURL,
		client:  http.DefaultClient,
	}

	for _, opt := range opts {
		opt(binding)
	}

	return binding, nil
}

// BindingOption configures an HTTPBinding.
type BindingOption func(*HTTPBinding)

// WithHTTPClient overrides the HTTP client used by the binding.
func WithHTTPClient(client *http.Client) BindingOption {
	return func(b *HTTPBinding) {
		b.client = client
	}
}

// GetSchema returns the schema with the given id.
func (b *HTTPBinding) GetSchema(schemaID string) (map[string]interface{}, error) {
	return b.resolve("schemas", schemaID)
}

// GetCredentialDefinition returns the credential definition with the given id.
func (b *HTTPBinding) GetCredentialDefinition(credDefID string) (map[string]interface{}, error) {
	return b.resolve("credential-definitions", credDefID)
}

func (b *HTTPBinding) resolve(collection, id string) (map[string]interface{}, error) {
	resp, err := b.client.Get(fmt.Sprintf("%s/%s/%s", b.baseURL, collection, url.PathEscape(id)))
	if err != nil {
		return nil, errors.Wrapf(err, "ledger read of %s %s", collection, id)
	}

	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			logger.Warnf("failed to close response body: %s", errClose)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("ledger read of %s %s: status %d", collection, id, resp.StatusCode)
	}

	value := map[string]interface{}{}
	if err := json.NewDecoder(resp.Body).Decode(&value); err != nil {
		return nil, errors.Wrapf(err, "decode ledger response for %s %s", collection, id)
	}

	return value, nil
}
