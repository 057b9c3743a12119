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

package tcpserver

import (
	"context"
	"crypto/tls"
	stdErrors "errors"
	"net"
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"github.com/pingcap/serviceless/pkg/security"
	"github.com/soheilhy/cmux"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TCPServer splits one listening socket into a gRPC listener and a plain
// HTTP/1 listener.
type TCPServer interface {
	// Run dispatches accepted connections until ctx is done or Close is
	// called. It must be called at most once.
	Run(ctx context.Context) error
	// GrpcListener yields connections carrying gRPC requests.
	GrpcListener() net.Listener
	// HTTP1Listener yields every other HTTP/1 connection.
	HTTP1Listener() net.Listener
	Addr() net.Addr
	IsTLSEnabled() bool
	// Close stops accepting connections. Consumers of the split listeners
	// observe an accept error and exit. Close is idempotent.
	Close() error
}

type muxServer struct {
	root  net.Listener
	mux   cmux.CMux
	grpc  net.Listener
	http1 net.Listener

	tls    bool
	closed atomic.Bool
}

// NewTCPServer listens on address. The socket is wrapped in TLS when the
// credential carries a certificate.
func NewTCPServer(address string, credential *security.Credential) (TCPServer, error) {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.Trace(err)
	}
	s := &muxServer{root: lis}
	if credential != nil && credential.IsTLSEnabled() {
		tlsCfg, err := credential.ToTLSConfigWithVerify()
		if err != nil {
			_ = lis.Close()
			return nil, errors.Trace(err)
		}
		s.root = tls.NewListener(lis, tlsCfg)
		s.tls = true
	}

	s.mux = cmux.New(s.root)
	// gRPC java clients wait for the server SETTINGS frame before sending
	// headers, so the matcher has to write it.
	s.grpc = s.mux.MatchWithWriters(
		cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	s.http1 = s.mux.Match(cmux.HTTP1Fast())
	return s, nil
}

func (s *muxServer) Run(ctx context.Context) error {
	if s.closed.Load() {
		return cerrors.ErrTCPServerClosed.GenWithStackByArgs()
	}
	defer func() {
		s.closed.Store(true)
		if err := s.closeRoot(); err != nil {
			log.Warn("close tcp listener failed", zap.Error(err))
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(s.serve)
	g.Go(func() error {
		<-ctx.Done()
		log.Debug("tcp server canceled", zap.Stringer("addr", s.Addr()), zap.Error(ctx.Err()))
		s.mux.Close()
		_ = s.root.Close()
		return nil
	})
	return g.Wait()
}

func (s *muxServer) serve() error {
	err := s.mux.Serve()
	switch {
	case err == nil:
		return nil
	case isClosed(err):
		return cerrors.ErrTCPServerClosed.GenWithStackByArgs()
	default:
		return errors.Trace(err)
	}
}

func (s *muxServer) GrpcListener() net.Listener { return s.grpc }

func (s *muxServer) HTTP1Listener() net.Listener { return s.http1 }

func (s *muxServer) Addr() net.Addr { return s.root.Addr() }

func (s *muxServer) IsTLSEnabled() bool { return s.tls }

func (s *muxServer) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.closeRoot()
}

// closeRoot refuses new connections, established ones are left alone.
func (s *muxServer) closeRoot() error {
	if err := s.root.Close(); err != nil && !isClosed(err) {
		return errors.Trace(err)
	}
	return nil
}

func isClosed(err error) bool {
	return stdErrors.Is(err, cmux.ErrServerClosed) ||
		stdErrors.Is(err, cmux.ErrListenerClosed) ||
		stdErrors.Is(err, net.ErrClosed) ||
		strings.Contains(err.Error(), "use of closed network connection")
}
