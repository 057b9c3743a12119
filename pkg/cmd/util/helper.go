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

package util

import (
	"context"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-json"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/serviceless/pkg/logutil"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/http/httpproxy"
)

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"
)

var shutdownSignals = []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}

// InitLogger replaces the global logger.
func InitLogger(logCfg *logutil.Config) error {
	if err := logutil.InitLogger(logCfg); err != nil {
		return errors.Annotate(err, "init logger")
	}
	log.Info("logger initialized", zap.String("file", logCfg.File), zap.String("level", logCfg.Level))
	return nil
}

// InitCmd initializes the logger and derives a cancelable context from the
// command context.
func InitCmd(cmd *cobra.Command, logCfg *logutil.Config) (context.Context, context.CancelFunc, error) {
	if err := InitLogger(logCfg); err != nil {
		return nil, nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	return ctx, cancel, nil
}

// InitSignalHandling calls shutdown on the first termination signal and
// cancel once shutdown is done. A second signal cancels right away.
// shutdown must not block, it returns a channel closed when it completes.
func InitSignalHandling(shutdown func() <-chan struct{}, cancel context.CancelFunc) {
	// Room for both the graceful and the forcing signal.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, shutdownSignals...)
	go func() {
		defer signal.Stop(sigCh)
		awaitShutdown(sigCh, shutdown, cancel)
	}()
}

func awaitShutdown(sigCh <-chan os.Signal, shutdown func() <-chan struct{}, cancel context.CancelFunc) {
	defer cancel()
	sig := <-sigCh
	log.Info("received signal, shutting down", zap.Stringer("signal", sig))
	select {
	case <-shutdown():
		log.Info("shutdown complete")
	case sig = <-sigCh:
		log.Warn("received signal again, forcing shutdown", zap.Stringer("signal", sig))
	}
}

// LogHTTPProxies logs the proxy environment the HTTP clients will honor.
func LogHTTPProxies() {
	if fields := findProxyFields(); len(fields) != 0 {
		log.Info("using proxy config", fields...)
	}
}

func findProxyFields() []zap.Field {
	cfg := httpproxy.FromEnvironment()
	var fields []zap.Field
	for _, env := range []struct{ key, value string }{
		{"http_proxy", cfg.HTTPProxy},
		{"https_proxy", cfg.HTTPSProxy},
		{"no_proxy", cfg.NoProxy},
	} {
		if env.value != "" {
			fields = append(fields, zap.String(env.key, env.value))
		}
	}
	return fields
}

// StrictDecodeFile decodes the toml file at path into cfg and fails on keys
// cfg has no field for. Top level keys listed in ignoreCheckItems are
// tolerated.
func StrictDecodeFile(path, component string, cfg any, ignoreCheckItems ...string) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return errors.Annotatef(err, "decode %s config file %s", component, path)
	}
	ignored := make(map[string]struct{}, len(ignoreCheckItems))
	for _, item := range ignoreCheckItems {
		ignored[item] = struct{}{}
	}
	var unknown []string
	for _, key := range meta.Undecoded() {
		if _, ok := ignored[key[0]]; ok {
			continue
		}
		unknown = append(unknown, key.String())
	}
	if len(unknown) != 0 {
		return errors.Errorf("%s config file %s has unknown configuration options: %s",
			component, path, strings.Join(unknown, ", "))
	}
	return nil
}

// VerifyServerEndpoint checks that endpoint is an http URL, or an https one
// when useTLS is set.
func VerifyServerEndpoint(endpoint string, useTLS bool) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return errors.Annotate(err, "parse server endpoint")
	}
	switch {
	case u.Host == "" || (u.Scheme != schemeHTTP && u.Scheme != schemeHTTPS):
		return errors.Errorf("server endpoint %q must be an http or https URL", endpoint)
	case useTLS && u.Scheme == schemeHTTP:
		return errors.Errorf("server endpoint %q must use https when certificates are provided", endpoint)
	case !useTLS && u.Scheme == schemeHTTPS:
		return errors.Errorf("server endpoint %q uses https, provide --ca, --cert and --key", endpoint)
	}
	return nil
}

// JSONPrint writes v to the command output as indented JSON.
func JSONPrint(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	cmd.Printf("%s\n", data)
	return nil
}
