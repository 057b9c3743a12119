// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package rpc

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pingcap/errors"
	"github.com/pingcap/serviceless/pkg/clock"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"github.com/pingcap/serviceless/pkg/httputil"
	"github.com/pingcap/serviceless/pkg/logutil"
	"github.com/pingcap/serviceless/pkg/security"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithJWTSecret signs every request with a HS256 bearer token.
func WithJWTSecret(secret []byte) ClientOption {
	return func(c *Client) {
		c.secret = secret
	}
}

// WithCredential enables TLS for the client.
func WithCredential(credential *security.Credential) ClientOption {
	return func(c *Client) {
		c.credential = credential
	}
}

// WithClock sets the clock used to issue tokens.
func WithClock(clk clock.Clock) ClientOption {
	return func(c *Client) {
		c.clock = clk
	}
}

// WithHTTPClient sets the underlying HTTP client, it overrides WithCredential.
func WithHTTPClient(cli *httputil.Client) ClientOption {
	return func(c *Client) {
		c.http = cli
	}
}

// Client is a JSON-RPC 2.0 client over HTTP. It is safe for concurrent use.
type Client struct {
	url        string
	id         atomic.Uint64
	secret     []byte
	credential *security.Credential
	clock      clock.Clock
	http       *httputil.Client
	logger     *zap.Logger
}

// NewClient creates a client that posts to endpoint.
func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, cerrors.ErrInvalidConfig.GenWithStackByArgs("invalid rpc endpoint " + endpoint)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, cerrors.ErrInvalidConfig.GenWithStackByArgs(
			"rpc endpoint should be a valid http or https URL: " + endpoint)
	}
	c := &Client{url: endpoint}
	for _, opt := range opts {
		opt(c)
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.http == nil {
		c.http, err = httputil.NewClient(c.credential, 0)
		if err != nil {
			return nil, errors.Trace(err)
		}
	}
	c.logger = logutil.NewLogger4Remote(endpoint)
	return c, nil
}

// URL returns the endpoint of the client.
func (c *Client) URL() string {
	return c.url
}

func (c *Client) nextID() json.RawMessage {
	return encodeID(c.id.Inc())
}

// Call invokes method with params and decodes the result into out, which
// may be nil if the result is not needed.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	req, err := NewRequest(method, params)
	if err != nil {
		return err
	}
	req.JSONRPC = Version
	req.ID = c.nextID()
	c.logger.Debug("request jsonrpc method",
		zap.String("method", method), zap.ByteString("id", req.ID))

	body, err := c.post(ctx, method, &req)
	if err != nil {
		return err
	}
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return cerrors.ErrRPCDecodeResult.GenWithStackByArgs(err.Error())
	}
	return resp.Decode(out)
}

// Notify invokes method without waiting for a result.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	req, err := NewRequest(method, params)
	if err != nil {
		return err
	}
	req.JSONRPC = Version
	c.logger.Debug("notify jsonrpc method", zap.String("method", method))
	_, err = c.post(ctx, method, &req)
	return err
}

// MultiCall sends reqs in one batch. Every request gets a fresh ID, the
// responses are returned in the order of reqs.
func (c *Client) MultiCall(ctx context.Context, reqs []Request) ([]Response, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	batch := make([]Request, len(reqs))
	index := make(map[string]int, len(reqs))
	for i, req := range reqs {
		req.JSONRPC = Version
		req.ID = c.nextID()
		batch[i] = req
		index[string(req.ID)] = i
	}
	body, err := c.post(ctx, batchMethod, batch)
	if err != nil {
		return nil, err
	}
	var resps []Response
	if err := json.Unmarshal(body, &resps); err != nil {
		return nil, cerrors.ErrRPCDecodeResult.GenWithStackByArgs(err.Error())
	}
	ordered := make([]Response, len(reqs))
	for _, resp := range resps {
		i, ok := index[string(resp.ID)]
		if !ok {
			return nil, cerrors.ErrRPCDecodeResult.GenWithStackByArgs(
				"unexpected response id " + string(resp.ID))
		}
		ordered[i] = resp
	}
	for i := range ordered {
		if ordered[i].ID == nil {
			return nil, cerrors.ErrRPCDecodeResult.GenWithStackByArgs(
				"missing response for id " + string(batch[i].ID))
		}
	}
	return ordered, nil
}

func (c *Client) post(ctx context.Context, method string, payload any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, cerrors.ErrRPCWrongRequestFormat.GenWithStackByArgs(err.Error())
	}
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	if len(c.secret) > 0 {
		token, err := buildToken(c.secret, c.clock.Now())
		if err != nil {
			return nil, errors.Trace(err)
		}
		headers.Set("Authorization", "Bearer "+token)
	}

	start := c.clock.Mono()
	code := "error"
	defer func() {
		requestCounter.WithLabelValues(sideClient, method, code).Inc()
		requestDuration.WithLabelValues(sideClient, method).
			Observe(c.clock.Mono().Sub(start).Seconds())
	}()

	resp, err := c.http.Post(ctx, c.url, headers, bytes.NewReader(data))
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Trace(ctx.Err())
		}
		return nil, cerrors.ErrRPCTransport.GenWithStackByArgs(err.Error())
	}
	defer resp.Body.Close()
	code = strconv.Itoa(resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, cerrors.ErrRPCTransport.GenWithStackByArgs(err.Error())
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, cerrors.ErrRPCUnauthorized.GenWithStackByArgs(
			strings.TrimSpace(string(body)))
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return nil, cerrors.ErrRPCNotSuccessCode.GenWithStackByArgs(
			resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
