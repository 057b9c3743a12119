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
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/pingcap/serviceless/pkg/actor"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"go.uber.org/atomic"
)

// Address is the address of a service served by a remote Server. Messages
// posted to it must implement Method.
type Address[S any] struct {
	client *Client
	closed atomic.Bool
}

var _ actor.Addr[struct{}] = (*Address[struct{}])(nil)

// NewAddress returns an address that talks through client.
func NewAddress[S any](client *Client) *Address[S] {
	return &Address[S]{client: client}
}

// Dial creates a client for endpoint and returns an address using it.
func Dial[S any](endpoint string, opts ...ClientOption) (*Address[S], error) {
	client, err := NewClient(endpoint, opts...)
	if err != nil {
		return nil, err
	}
	return NewAddress[S](client), nil
}

// IsStop returns true once the address is closed. A remote service is
// assumed to be running, failures are reported by Post.
func (a *Address[S]) IsStop() bool {
	return a.closed.Load()
}

// Post sends the message of env as a request, or as a notification if no
// result is expected, and completes env with the decoded result.
func (a *Address[S]) Post(ctx context.Context, env actor.Envelope[S]) error {
	if a.closed.Load() {
		env.Cancel()
		return cerrors.ErrServiceStopped.GenWithStackByArgs()
	}
	msg := env.Message()
	m, ok := msg.(Method)
	if !ok {
		env.Cancel()
		return cerrors.ErrRPCWrongRequestFormat.GenWithStackByArgs(
			fmt.Sprintf("%T does not implement rpc.Method", msg))
	}

	if !env.ExpectsResult() {
		err := a.client.Notify(ctx, m.Method(), msg)
		env.Cancel()
		return err
	}

	var raw json.RawMessage
	if err := a.client.Call(ctx, m.Method(), msg, &raw); err != nil {
		env.Cancel()
		return err
	}
	return env.Complete(func(out any) error {
		if len(raw) == 0 || string(raw) == "null" {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return cerrors.ErrRPCDecodeResult.GenWithStackByArgs(err.Error())
		}
		return nil
	})
}

// Client returns the underlying client.
func (a *Address[S]) Client() *Client {
	return a.client
}

// Close marks the address stopped.
func (a *Address[S]) Close() {
	a.closed.Store(true)
}
