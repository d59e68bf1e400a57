/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package http

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/trustridge/credex-go/pkg/store/connection"
)

var logger = log.New("credex/transport/http")

const commContentType = "application/didcomm-envelope-enc"

type outboundOpts struct {
	client     *http.Client
	maxRetries uint64
}

// OutboundOpt configures the outbound HTTP transport.
type OutboundOpt func(opts *outboundOpts)

// WithOutboundHTTPClient sets the http.Client used for dispatch.
func WithOutboundHTTPClient(client *http.Client) OutboundOpt {
	return func(opts *outboundOpts) {
		opts.client = client
	}
}

// WithOutboundTimeout sets the client timeout.
func WithOutboundTimeout(timeout time.Duration) OutboundOpt {
	return func(opts *outboundOpts) {
		opts.client.Timeout = timeout
	}
}

// WithOutboundTLSConfig builds the client from a tls.Config.
func WithOutboundTLSConfig(tlsConfig *tls.Config) OutboundOpt {
	return func(opts *outboundOpts) {
		opts.client = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		}
	}
}

// WithOutboundRetries sets how many times a failed POST is retried with
// exponential backoff before the send is reported as failed.
func WithOutboundRetries(maxRetries uint64) OutboundOpt {
	return func(opts *outboundOpts) {
		opts.maxRetries = maxRetries
	}
}

// ConnectionEndpoints resolves a connection id to its record, which carries
// the peer's service endpoint.
type ConnectionEndpoints interface {
	GetConnectionRecord(connectionID string) (*connection.Record, error)
}

// Outbound posts protocol messages to the service endpoint of the connection
// they belong to. Transient POST failures are retried with exponential
// backoff; the caller sees a single error once retries are exhausted and must
// not replay the state machine operation that produced the message.
type Outbound struct {
	client      *http.Client
	connections ConnectionEndpoints
	maxRetries  uint64
}

// NewOutbound creates the outbound HTTP transport. An http.Client or
// tls.Config option is mandatory.
func NewOutbound(connections ConnectionEndpoints, opts ...OutboundOpt) (*Outbound, error) {
	clOpts := &outboundOpts{maxRetries: 4}

	for _, opt := range opts {
		opt(clOpts)
	}

	if clOpts.client == nil {
		return nil, fmt.Errorf("can't create an outbound transport without an HTTP client")
	}

	return &Outbound{
		client:      clOpts.client,
		connections: connections,
		maxRetries:  clOpts.maxRetries,
	}, nil
}

// SendToConnection marshals the message and posts it to the connection's
// service endpoint.
func (o *Outbound) SendToConnection(msg interface{}, connectionID string) error {
	record, err := o.connections.GetConnectionRecord(connectionID)
	if err != nil {
		return fmt.Errorf("resolve connection %s: %w", connectionID, err)
	}

	if record.ServiceEndpoint == "" {
		return fmt.Errorf("connection %s has no service endpoint", connectionID)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}

	return backoff.Retry(func() error {
		return o.post(record.ServiceEndpoint, payload)
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), o.maxRetries))
}

func (o *Outbound) post(url string, payload []byte) error {
	resp, err := o.client.Post(url, commContentType, bytes.NewReader(payload))
	if err != nil {
		logger.Warnf("posting message to [%s] failed: %v", url, err)

		return err
	}

	defer func() {
		if _, e := io.Copy(io.Discard, resp.Body); e != nil {
			logger.Errorf("draining response body: %v", e)
		}

		if e := resp.Body.Close(); e != nil {
			logger.Errorf("closing response body: %v", e)
		}
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("received non-success POST status from [%s]: %v", url, resp.Status)
	}

	return nil
}
