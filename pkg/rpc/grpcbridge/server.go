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
	"sync"

	"github.com/goccy/go-json"
	"github.com/pingcap/log"
	"github.com/pingcap/serviceless/pkg/actor"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"github.com/pingcap/serviceless/pkg/rpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

type methodHandler func(ctx context.Context, params json.RawMessage, oneWay bool) (any, *rpc.Error)

// Server exposes local services through the gRPC bridge service.
type Server struct {
	mu      sync.RWMutex
	methods map[string]methodHandler
}

var _ bridgeServer = (*Server)(nil)

// NewServer creates a server without any method.
func NewServer() *Server {
	return &Server{methods: make(map[string]methodHandler)}
}

// Handle registers method, its params are decoded into M and delivered to
// addr.
func Handle[M actor.Message[S, R], S any, R any](srv *Server, method string, addr actor.Addr[S]) error {
	handler := func(ctx context.Context, params json.RawMessage, oneWay bool) (any, *rpc.Error) {
		var msg M
		if len(params) > 0 {
			if err := json.Unmarshal(params, &msg); err != nil {
				return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
			}
		}
		if oneWay {
			if err := actor.Send[S, R](addr, msg); err != nil {
				return nil, rpc.ToError(err)
			}
			return nil, nil
		}
		r, err := actor.Call[S, R](ctx, addr, msg)
		if err != nil {
			return nil, rpc.ToError(err)
		}
		return r, nil
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if _, ok := srv.methods[method]; ok {
		return cerrors.ErrRPCDuplicateMethod.GenWithStackByArgs(method)
	}
	srv.methods[method] = handler
	return nil
}

// Register adds the bridge service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&bridgeServiceDesc, s)
}

// Invoke implements the bridge service. Failures of the target service are
// returned in the response, the gRPC error is reserved for the transport.
func (s *Server) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	s.mu.RLock()
	h, ok := s.methods[req.Method]
	s.mu.RUnlock()
	if !ok {
		err := cerrors.ErrRPCMethodNotFound.GenWithStackByArgs(req.Method)
		return &InvokeResponse{Error: rpc.ToError(err)}, nil
	}

	result, rerr := h(ctx, req.Params, req.OneWay)
	if rerr != nil {
		log.Debug("bridge invoke failed",
			zap.String("method", req.Method), zap.Bool("one-way", req.OneWay),
			zap.Error(rerr))
		return &InvokeResponse{Error: rerr}, nil
	}
	if req.OneWay {
		return &InvokeResponse{}, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return &InvokeResponse{Error: &rpc.Error{
			Code: rpc.CodeInternalError, Message: err.Error(),
		}}, nil
	}
	return &InvokeResponse{Result: data}, nil
}
