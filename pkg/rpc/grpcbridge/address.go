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

package grpcbridge

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/pingcap/errors"
	"github.com/pingcap/serviceless/pkg/actor"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"github.com/pingcap/serviceless/pkg/logutil"
	"github.com/pingcap/serviceless/pkg/rpc"
	"github.com/pingcap/serviceless/pkg/security"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	gbackoff "google.golang.org/grpc/backoff"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

const dialTimeout = 10 * time.Second

// Address is the address of a service served by a bridge Server. Messages
// posted to it must implement rpc.Method.
type Address[S any] struct {
	conn   *grpc.ClientConn
	closed atomic.Bool
	logger *zap.Logger
}

var _ actor.Addr[struct{}] = (*Address[struct{}])(nil)

// Dial connects to the bridge at target. The connection is established
// lazily, a nil credential dials without TLS.
func Dial[S any](ctx context.Context, target string, credential *security.Credential) (*Address[S], error) {
	if credential == nil {
		credential = &security.Credential{}
	}
	grpcTLSOption, err := credential.ToGRPCDialOption()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, err := grpc.DialContext(
		ctx,
		target,
		grpcTLSOption,
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
		grpc.WithUnaryInterceptor(grpcClientMetrics.UnaryClientInterceptor()),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff: gbackoff.Config{
				BaseDelay:  time.Second,
				Multiplier: 1.1,
				Jitter:     0.1,
				MaxDelay:   3 * time.Second,
			},
			MinConnectTimeout: 3 * time.Second,
		}),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, cerrors.WrapError(cerrors.ErrGRPCDialFailed, err)
	}
	return &Address[S]{conn: conn, logger: logutil.NewLogger4Remote(target)}, nil
}

// IsStop returns true once the address is closed.
func (a *Address[S]) IsStop() bool {
	return a.closed.Load()
}

// Post implements actor.Addr.
func (a *Address[S]) Post(ctx context.Context, env actor.Envelope[S]) error {
	if a.closed.Load() {
		env.Cancel()
		return cerrors.ErrServiceStopped.GenWithStackByArgs()
	}
	msg := env.Message()
	m, ok := msg.(rpc.Method)
	if !ok {
		env.Cancel()
		return cerrors.ErrRPCWrongRequestFormat.GenWithStackByArgs(
			fmt.Sprintf("%T does not implement rpc.Method", msg))
	}
	params, err := json.Marshal(msg)
	if err != nil {
		env.Cancel()
		return cerrors.ErrRPCWrongRequestFormat.GenWithStackByArgs(err.Error())
	}
	req := &InvokeRequest{
		Method: m.Method(),
		Params: params,
		OneWay: !env.ExpectsResult(),
	}

	resp := new(InvokeResponse)
	if err := a.conn.Invoke(ctx, invokeMethod, req, resp); err != nil {
		env.Cancel()
		if ctx.Err() != nil {
			return errors.Trace(ctx.Err())
		}
		a.logger.Debug("invoke bridge method failed",
			zap.String("method", req.Method), zap.Error(err))
		return cerrors.ErrRPCTransport.GenWithStackByArgs(status.Convert(err).Message())
	}
	if resp.Error != nil {
		env.Cancel()
		return resp.Error.Err()
	}
	if req.OneWay {
		env.Cancel()
		return nil
	}
	return env.Complete(func(out any) error {
		if len(resp.Result) == 0 || string(resp.Result) == "null" {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return cerrors.ErrRPCDecodeResult.GenWithStackByArgs(err.Error())
		}
		return nil
	})
}

// Close marks the address stopped and closes the connection. It is
// idempotent.
func (a *Address[S]) Close() {
	if a.closed.CompareAndSwap(false, true) {
		if err := a.conn.Close(); err != nil {
			a.logger.Warn("close bridge connection failed", zap.Error(err))
		}
	}
}
