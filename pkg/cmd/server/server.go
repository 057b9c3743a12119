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
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/serviceless/pkg/cmd/util"
	"github.com/pingcap/serviceless/pkg/config"
	"github.com/pingcap/serviceless/pkg/security"
	"github.com/pingcap/serviceless/pkg/server"
	"github.com/pingcap/serviceless/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// options defines flags for the `server` command.
type options struct {
	configFile string
	// serverConfig receives the flag values until complete replaces it with
	// the merged configuration.
	serverConfig *config.ServerConfig
}

func newOptions() *options {
	return &options{serverConfig: config.GetDefaultServerConfig()}
}

func (o *options) addFlags(cmd *cobra.Command) {
	c := o.serverConfig
	flags := cmd.Flags()
	flags.StringVar(&c.Addr, "addr", c.Addr, "Listen address of JSON-RPC, status and metrics")
	flags.StringVar(&c.GRPCAddr, "grpc-addr", c.GRPCAddr, "Listen address of the gRPC bridge, empty disables it")
	flags.StringVar(&c.LogFile, "log-file", c.LogFile, "Log file path, empty logs to stderr")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	flags.StringVar(&c.JWTSecretPath, "jwt-secret-path", c.JWTSecretPath, "Path of the hex encoded JWT secret, empty disables authentication")
	flags.BoolVar(&c.EnableMetrics, "enable-metrics", c.EnableMetrics, "Serve prometheus metrics")
	flags.DurationVar((*time.Duration)(&c.ShutdownTimeout), "shutdown-timeout", time.Duration(c.ShutdownTimeout), "Max time to wait for the kv service to drain on shutdown")
	flags.DurationVar((*time.Duration)(&c.KV.ReportInterval), "kv-report-interval", time.Duration(c.KV.ReportInterval), "How often the kv stats are reported")

	flags.StringVar(&c.Security.CAPath, "ca", "", "CA certificate path for TLS connection")
	flags.StringVar(&c.Security.CertPath, "cert", "", "Certificate path for TLS connection")
	flags.StringVar(&c.Security.KeyPath, "key", "", "Private key path for TLS connection")
	flags.StringSliceVar(&c.Security.CertAllowedCN, "cert-allowed-cn", nil, "Common names a peer certificate may carry, comma separated")
	flags.BoolVar(&c.Security.MTLS, "mtls", false, "Require clients to present a certificate signed by the CA")

	flags.StringVar(&o.configFile, "config", "", "Path of the configuration file")
}

// flagOverrides copies a flag set on the command line over the value read
// from the configuration file.
var flagOverrides = map[string]func(dst, src *config.ServerConfig){
	"addr":               func(dst, src *config.ServerConfig) { dst.Addr = src.Addr },
	"grpc-addr":          func(dst, src *config.ServerConfig) { dst.GRPCAddr = src.GRPCAddr },
	"log-file":           func(dst, src *config.ServerConfig) { dst.LogFile = src.LogFile },
	"log-level":          func(dst, src *config.ServerConfig) { dst.LogLevel = src.LogLevel },
	"jwt-secret-path":    func(dst, src *config.ServerConfig) { dst.JWTSecretPath = src.JWTSecretPath },
	"enable-metrics":     func(dst, src *config.ServerConfig) { dst.EnableMetrics = src.EnableMetrics },
	"shutdown-timeout":   func(dst, src *config.ServerConfig) { dst.ShutdownTimeout = src.ShutdownTimeout },
	"kv-report-interval": func(dst, src *config.ServerConfig) { dst.KV.ReportInterval = src.KV.ReportInterval },
	"ca":                 func(dst, src *config.ServerConfig) { dst.Security.CAPath = src.Security.CAPath },
	"cert":               func(dst, src *config.ServerConfig) { dst.Security.CertPath = src.Security.CertPath },
	"key":                func(dst, src *config.ServerConfig) { dst.Security.KeyPath = src.Security.KeyPath },
	"cert-allowed-cn":    func(dst, src *config.ServerConfig) { dst.Security.CertAllowedCN = src.Security.CertAllowedCN },
	"mtls":               func(dst, src *config.ServerConfig) { dst.Security.MTLS = src.Security.MTLS },
}

// run runs the server.
func (o *options) run(cmd *cobra.Command) error {
	ctx, cancel, err := util.InitCmd(cmd, o.serverConfig.LoggerConfig())
	if err != nil {
		return errors.Trace(err)
	}
	defer cancel()

	version.LogVersionInfo("server")
	util.LogFailpoints()
	util.LogHTTPProxies()
	log.Info("serviceless server config", zap.Stringer("config", o.serverConfig))

	if len(o.serverConfig.Security.CertAllowedCN) != 0 {
		// Peers of this server share its certificate.
		if err := o.serverConfig.Security.AddSelfCommonName(); err != nil {
			return errors.Trace(err)
		}
	}

	srv, err := server.New(o.serverConfig)
	if err != nil {
		return errors.Annotate(err, "new server")
	}
	util.InitSignalHandling(func() <-chan struct{} {
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := srv.Close(); err != nil {
				log.Warn("close server", zap.Error(err))
			}
		}()
		return done
	}, cancel)

	err = srv.Run(ctx)
	if err != nil && errors.Cause(err) != context.Canceled {
		log.Error("run server", zap.String("error", errors.ErrorStack(err)))
		_ = srv.Close()
		return errors.Annotate(err, "run server")
	}
	if err := srv.Close(); err != nil {
		log.Warn("close server", zap.Error(err))
	}
	log.Info("serviceless server exits successfully")
	return nil
}

// complete merges the configuration file and the flags set on the command
// line, flags win.
func (o *options) complete(cmd *cobra.Command) error {
	cfg := config.GetDefaultServerConfig()
	if o.configFile != "" {
		if err := util.StrictDecodeFile(o.configFile, "serviceless server", cfg); err != nil {
			return err
		}
	}
	if cfg.KV == nil {
		cfg.KV = &config.KVConfig{}
	}
	if cfg.Security == nil {
		cfg.Security = &security.Credential{}
	}

	cmd.Flags().Visit(func(flag *pflag.Flag) {
		if flag.Name == "config" {
			return
		}
		override, ok := flagOverrides[flag.Name]
		if !ok {
			log.Panic("unknown flag, please report a bug", zap.String("flagName", flag.Name))
		}
		override(cfg, o.serverConfig)
	})

	if err := cfg.ValidateAndAdjust(); err != nil {
		return errors.Trace(err)
	}
	o.serverConfig = cfg
	return nil
}

// validate warns about settings that are legal but unsafe.
func (o *options) validate() error {
	if o.serverConfig.JWTSecretPath == "" {
		log.Warn("jwt-secret-path is not set, JSON-RPC requests are not authenticated")
	}
	return nil
}

// NewCmdServer creates the `server` command.
func NewCmdServer() *cobra.Command {
	o := newOptions()

	command := &cobra.Command{
		Use:   "server",
		Short: "Start a serviceless server hosting the kv service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.complete(cmd); err != nil {
				return err
			}
			if err := o.validate(); err != nil {
				return err
			}
			return o.run(cmd)
		},
	}

	o.addFlags(command)

	return command
}
