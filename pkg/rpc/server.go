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
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/serviceless/pkg/actor"
	"github.com/pingcap/serviceless/pkg/clock"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"go.uber.org/zap"
)

// DefaultPath is where RegisterRoutes mounts the JSON-RPC endpoint.
const DefaultPath = "/rpc"

// methodHandler runs one request. It returns the result to encode, or an
// error object.
type methodHandler func(ctx context.Context, params json.RawMessage, notify bool) (any, *Error)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerJWTSecret requires every request to carry a bearer token signed
// with secret.
func WithServerJWTSecret(secret []byte) ServerOption {
	return func(s *Server) {
		s.secret = secret
	}
}

// WithServerClock sets the clock used to validate tokens.
func WithServerClock(clk clock.Clock) ServerOption {
	return func(s *Server) {
		s.clock = clk
	}
}

// Server serves local services over JSON-RPC 2.0.
type Server struct {
	mu      sync.RWMutex
	methods map[string]methodHandler

	secret []byte
	clock  clock.Clock
}

// NewServer creates a server without any method.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{methods: make(map[string]methodHandler)}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	return s
}

// Handle registers method. Its params are decoded into M, which is then
// called, or sent for notifications, on addr.
func Handle[M actor.Message[S, R], S any, R any](srv *Server, method string, addr actor.Addr[S]) error {
	handler := func(ctx context.Context, params json.RawMessage, notify bool) (any, *Error) {
		var msg M
		if len(params) > 0 {
			if err := json.Unmarshal(params, &msg); err != nil {
				return nil, newError(CodeInvalidParams, err.Error())
			}
		}
		if notify {
			if err := actor.Send[S, R](addr, msg); err != nil {
				return nil, ToError(err)
			}
			return nil, nil
		}
		r, err := actor.Call[S, R](ctx, addr, msg)
		if err != nil {
			return nil, ToError(err)
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

// Methods returns the names of all registered methods.
func (s *Server) Methods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	return names
}

func (s *Server) lookup(method string) (methodHandler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.methods[method]
	return h, ok
}

// RegisterRoutes mounts the endpoint at DefaultPath.
func (s *Server) RegisterRoutes(router gin.IRouter) {
	router.POST(DefaultPath, s.ServeRPC)
}

// ServeRPC handles a single or a batch JSON-RPC request.
func (s *Server) ServeRPC(c *gin.Context) {
	if len(s.secret) > 0 {
		if err := s.authenticate(c.GetHeader("Authorization")); err != nil {
			log.Warn("reject unauthorized rpc request",
				zap.String("ip", c.ClientIP()), zap.Error(err))
			c.String(http.StatusUnauthorized, err.Error())
			c.Abort()
			return
		}
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		_ = c.Error(errors.Trace(err))
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			s.writeJSON(c, errorResponse(nil, newError(CodeParseError, err.Error())))
			return
		}
		if len(raws) == 0 {
			s.writeJSON(c, errorResponse(nil, newError(CodeInvalidRequest, "empty batch")))
			return
		}
		resps := make([]*Response, 0, len(raws))
		for _, raw := range raws {
			if resp := s.handleOne(ctx, raw); resp != nil {
				resps = append(resps, resp)
			}
		}
		if len(resps) == 0 {
			c.Status(http.StatusNoContent)
			return
		}
		s.writeJSON(c, resps)
		return
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		s.writeJSON(c, errorResponse(nil, newError(CodeParseError, err.Error())))
		return
	}
	resp := s.handleRequest(ctx, &req)
	if resp == nil {
		c.Status(http.StatusNoContent)
		return
	}
	s.writeJSON(c, resp)
}

func (s *Server) authenticate(header string) error {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return cerrors.ErrRPCUnauthorized.GenWithStackByArgs("missing bearer token")
	}
	return verifyToken(s.secret, token, s.clock.Now())
}

func (s *Server) handleOne(ctx context.Context, raw json.RawMessage) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nil, newError(CodeInvalidRequest, err.Error()))
	}
	return s.handleRequest(ctx, &req)
}

// handleRequest returns nil for notifications.
func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != Version || req.Method == "" {
		return errorResponse(req.ID, newError(CodeInvalidRequest,
			"invalid jsonrpc request, version "+strconv.Quote(req.JSONRPC)))
	}
	notify := req.IsNotification()

	start := s.clock.Mono()
	var (
		result any
		rerr   *Error
	)
	if h, ok := s.lookup(req.Method); ok {
		result, rerr = h(ctx, req.Params, notify)
	} else {
		rerr = newError(CodeMethodNotFound,
			cerrors.ErrRPCMethodNotFound.GenWithStackByArgs(req.Method).Error())
	}
	code := "0"
	if rerr != nil {
		code = strconv.Itoa(rerr.Code)
	}
	requestCounter.WithLabelValues(sideServer, req.Method, code).Inc()
	requestDuration.WithLabelValues(sideServer, req.Method).
		Observe(s.clock.Mono().Sub(start).Seconds())

	if notify {
		if rerr != nil {
			log.Debug("rpc notification failed",
				zap.String("method", req.Method), zap.Error(rerr))
		}
		return nil
	}
	if rerr != nil {
		return errorResponse(req.ID, rerr)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, newError(CodeInternalError, err.Error()))
	}
	return &Response{JSONRPC: Version, Result: data, ID: req.ID}
}

func (s *Server) writeJSON(c *gin.Context, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		_ = c.Error(errors.Trace(err))
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}
