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

package server

import (
	"context"
	stdErrors "errors"
	"io"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/serviceless/pkg/actor"
	"github.com/pingcap/serviceless/pkg/clock"
	"github.com/pingcap/serviceless/pkg/config"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"github.com/pingcap/serviceless/pkg/kvservice"
	"github.com/pingcap/serviceless/pkg/rpc"
	"github.com/pingcap/serviceless/pkg/rpc/grpcbridge"
	"github.com/pingcap/serviceless/pkg/step"
	"github.com/pingcap/serviceless/pkg/tcpserver"
	"github.com/pingcap/serviceless/pkg/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const (
	// maxHTTPConnection is used to limit the max concurrent connections of
	// http server.
	maxHTTPConnection = 1000
	// httpConnectionTimeout is used to limit a connection max alive time of
	// http server.
	httpConnectionTimeout = 10 * time.Minute

	// StatusPath serves the Status of the server.
	StatusPath = "/status"
	// MetricsPath serves prometheus metrics when they are enabled.
	MetricsPath = "/metrics"
)

// Status is returned by the status endpoint.
type Status struct {
	Version string   `json:"version"`
	GitHash string   `json:"git-hash"`
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	State   string   `json:"state"`
	Paused  bool     `json:"paused"`
	Pending int      `json:"pending"`
	Methods []string `json:"methods"`
}

// Server hosts a kv store and exposes it through JSON-RPC and the gRPC
// bridge.
type Server struct {
	cfg    *config.ServerConfig
	secret []byte
	clock  clock.Clock

	tcpServer    tcpserver.TCPServer
	grpcListener net.Listener

	mu         sync.Mutex
	cancel     context.CancelFunc
	httpServer *http.Server
	grpcServer *grpc.Server
	kv         *actor.Context[*kvservice.Store]
	kvAddr     *actor.ServiceAddress[*kvservice.Store]
	steps      *step.Group
}

// New creates a server and binds its listeners. cfg must have been
// validated.
func New(cfg *config.ServerConfig) (*Server, error) {
	s := &Server{cfg: cfg, clock: clock.New()}
	if cfg.JWTSecretPath != "" {
		secret, err := rpc.LoadJWTSecret(cfg.JWTSecretPath)
		if err != nil {
			return nil, errors.Trace(err)
		}
		s.secret = secret
	}

	tcpServer, err := tcpserver.NewTCPServer(cfg.Addr, cfg.Security)
	if err != nil {
		return nil, errors.Trace(err)
	}
	s.tcpServer = tcpServer
	if cfg.GRPCAddr == "" {
		s.grpcListener = tcpServer.GrpcListener()
	} else {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			_ = tcpServer.Close()
			return nil, errors.Trace(err)
		}
		s.grpcListener = lis
	}
	return s, nil
}

// Addr returns the address of the JSON-RPC endpoint.
func (s *Server) Addr() string {
	return s.tcpServer.Addr().String()
}

// GRPCAddr returns the address of the gRPC bridge.
func (s *Server) GRPCAddr() string {
	if s.cfg.GRPCAddr == "" {
		return s.Addr()
	}
	return s.grpcListener.Addr().String()
}

// Run serves until ctx is done or Close is called. It returns nil on a
// requested shutdown.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var rpcOpts []rpc.ServerOption
	if len(s.secret) > 0 {
		rpcOpts = append(rpcOpts, rpc.WithServerJWTSecret(s.secret))
	}
	rpcServer := rpc.NewServer(rpcOpts...)
	bridge := grpcbridge.NewServer()

	grpcOpts := grpcbridge.ServerOptions()
	if s.cfg.GRPCAddr != "" {
		// The shared port gets TLS from the tcp server.
		tlsOpts, err := s.cfg.Security.ToGRPCServerOptions()
		if err != nil {
			return errors.Trace(err)
		}
		grpcOpts = append(grpcOpts, tlsOpts...)
	}

	kv, kvAddr := kvservice.Start(ctx, s.cfg.KV.MailboxName)
	if err := kvservice.Register(rpcServer, bridge, kvAddr); err != nil {
		kvAddr.Close()
		return errors.Trace(err)
	}

	httpServer := &http.Server{
		Handler:      s.newRouter(rpcServer, kv, kvAddr),
		ReadTimeout:  httpConnectionTimeout,
		WriteTimeout: httpConnectionTimeout,
	}
	grpcServer := grpc.NewServer(grpcOpts...)
	bridge.Register(grpcServer)
	steps := step.NewGroup(&statsReporter{
		addr:     kvAddr,
		interval: time.Duration(s.cfg.KV.ReportInterval),
		clock:    s.clock,
	}).WithClock(s.clock).WithErrorBackoff(time.Second, 30*time.Second)

	s.mu.Lock()
	s.cancel = cancel
	s.httpServer, s.grpcServer = httpServer, grpcServer
	s.kv, s.kvAddr, s.steps = kv, kvAddr, steps
	s.mu.Unlock()

	wg, cctx := errgroup.WithContext(ctx)
	// ignore errors caused by the shutdown
	shutdown := func(err error) error {
		if cctx.Err() != nil {
			return nil
		}
		return err
	}

	wg.Go(func() error {
		return shutdown(s.tcpServer.Run(cctx))
	})

	wg.Go(func() error {
		lis := netutil.LimitListener(s.tcpServer.HTTP1Listener(), maxHTTPConnection)
		log.Info("http server is running", zap.String("addr", s.Addr()))
		err := httpServer.Serve(lis)
		if err != nil && err != http.ErrServerClosed {
			return shutdown(cerrors.WrapError(cerrors.ErrServeHTTP, err))
		}
		return nil
	})

	wg.Go(func() error {
		log.Info("grpc bridge is running", zap.String("addr", s.GRPCAddr()))
		return shutdown(errors.Trace(grpcServer.Serve(s.grpcListener)))
	})

	wg.Go(func() error {
		if err := steps.Start(cctx); err != nil {
			return errors.Trace(err)
		}
		if err := steps.Wait(); err != nil {
			log.Info("step services exited", zap.Error(err))
		}
		return nil
	})

	wg.Go(func() error {
		<-cctx.Done()
		steps.Stop()
		grpcServer.Stop()
		if err := httpServer.Close(); err != nil {
			log.Warn("close http server failed", zap.Error(err))
		}
		return s.tcpServer.Close()
	})

	return wg.Wait()
}

func (s *Server) newRouter(
	rpcServer *rpc.Server,
	kv *actor.Context[*kvservice.Store],
	kvAddr *actor.ServiceAddress[*kvservice.Store],
) *gin.Engine {
	// discard gin log output
	gin.DefaultWriter = io.Discard
	router := gin.New()
	// add gin.Recovery() to handle unexpected panic
	router.Use(gin.Recovery(), logMiddleware())

	rpcServer.RegisterRoutes(router)
	router.GET(StatusPath, func(c *gin.Context) {
		c.IndentedJSON(http.StatusOK, &Status{
			Version: version.ReleaseVersion,
			GitHash: version.GitHash,
			ID:      string(kv.ID()),
			Name:    kv.Name(),
			State:   kv.State().String(),
			Paused:  kv.IsPaused(),
			Pending: kvAddr.Pending(),
			Methods: rpcServer.Methods(),
		})
	})
	if s.cfg.EnableMetrics {
		registry := newRegistry()
		router.GET(MetricsPath, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	// pprof debug API
	pprofGroup := router.Group("/debug/pprof")
	pprofGroup.GET("", gin.WrapF(pprof.Index))
	pprofGroup.GET("/:any", gin.WrapF(pprof.Index))
	pprofGroup.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	pprofGroup.GET("/profile", gin.WrapF(pprof.Profile))
	pprofGroup.GET("/symbol", gin.WrapF(pprof.Symbol))
	pprofGroup.GET("/trace", gin.WrapF(pprof.Trace))
	return router
}

// Close stops Run, then waits for the kv store to drain its mailbox at most
// the configured shutdown timeout.
func (s *Server) Close() error {
	s.mu.Lock()
	cancel, kv, kvAddr := s.cancel, s.kv, s.kvAddr
	s.mu.Unlock()

	var err error
	if cancel != nil {
		cancel()
	}
	if kvAddr != nil {
		kvAddr.Close()
		ctx, cancelWait := context.WithTimeout(
			context.Background(), time.Duration(s.cfg.ShutdownTimeout))
		defer cancelWait()
		if werr := kv.Wait(ctx); werr != nil {
			err = multierr.Append(err, errors.Annotate(werr, "wait kv store"))
		}
	}
	if cerr := s.tcpServer.Close(); cerr != nil {
		err = multierr.Append(err, cerr)
	}
	if s.cfg.GRPCAddr != "" {
		if cerr := s.grpcListener.Close(); cerr != nil && !stdErrors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, errors.Trace(cerr))
		}
	}
	return err
}
