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

package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/serviceless/pkg/security"
)

// Client is an http.Client whose requests are always bound to a context.
type Client struct {
	http.Client
}

// NewClient builds a Client trusting the CA of credential, if any. A zero
// timeout leaves requests bounded only by their context.
func NewClient(credential *security.Credential, timeout time.Duration) (*Client, error) {
	c := &Client{Client: http.Client{Transport: http.DefaultTransport, Timeout: timeout}}
	if credential == nil {
		return c, nil
	}
	tlsCfg, err := credential.ToTLSConfig()
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = tlsCfg
		c.Transport = tr
	}
	return c, nil
}

// StatusError is returned by ReadAll when the server answers with a non 2xx
// status.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Body)
}

// Get issues a GET request. The caller owns the response body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.send(ctx, http.MethodGet, url, nil, nil)
}

// Post issues a POST request. The caller owns the response body.
func (c *Client) Post(
	ctx context.Context, url string, headers http.Header, body io.Reader,
) (*http.Response, error) {
	return c.send(ctx, http.MethodPost, url, headers, body)
}

// ReadAll sends a request and returns the whole response body. A non 2xx
// answer is reported as a *StatusError.
func (c *Client) ReadAll(
	ctx context.Context, method, url string, headers http.Header, body io.Reader,
) ([]byte, error) {
	resp, err := c.send(ctx, method, url, headers, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{Code: resp.StatusCode, Body: content}
	}
	return content, nil
}

func (c *Client) send(
	ctx context.Context, method, url string, headers http.Header, body io.Reader,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errors.Trace(err)
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return resp, nil
}
