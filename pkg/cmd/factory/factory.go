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

package factory

import (
	"crypto/tls"
	"strings"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/serviceless/pkg/cmd/util"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"github.com/pingcap/serviceless/pkg/httputil"
	"github.com/pingcap/serviceless/pkg/rpc"
	"github.com/pingcap/serviceless/pkg/security"
	"github.com/spf13/cobra"
)

const defaultServerAddr = "http://127.0.0.1:8300"

// Factory defines the client-side construction factory.
type Factory interface {
	ClientGetter
	RPCClient() (*rpc.Client, error)
	HTTPClient() (*httputil.Client, error)
}

// ClientGetter defines the client getter.
type ClientGetter interface {
	ToTLSConfig() (*tls.Config, error)
	GetServerAddr() string
	GetLogLevel() string
	GetJWTSecretPath() string
	GetTimeout() time.Duration
	GetCredential() *security.Credential
}

// ClientFlags specifies the parameters needed to construct the client.
type ClientFlags struct {
	serverAddr    string
	logLevel      string
	jwtSecretPath string
	timeout       time.Duration
	caPath        string
	certPath      string
	keyPath       string
}

var _ ClientGetter = &ClientFlags{}

// ToTLSConfig returns the configuration of tls.
func (c *ClientFlags) ToTLSConfig() (*tls.Config, error) {
	credential := c.GetCredential()
	tlsConfig, err := credential.ToTLSConfig()
	if err != nil {
		return nil, errors.Annotate(err, "fail to validate TLS settings")
	}
	return tlsConfig, nil
}

// GetServerAddr returns the server address without a trailing slash.
func (c *ClientFlags) GetServerAddr() string {
	return strings.TrimSuffix(c.serverAddr, "/")
}

// GetLogLevel returns log level.
func (c *ClientFlags) GetLogLevel() string {
	return c.logLevel
}

// GetJWTSecretPath returns the path of the JWT secret.
func (c *ClientFlags) GetJWTSecretPath() string {
	return c.jwtSecretPath
}

// GetTimeout returns the request timeout.
func (c *ClientFlags) GetTimeout() time.Duration {
	return c.timeout
}

// NewClientFlags creates new client flags.
func NewClientFlags() *ClientFlags {
	return &ClientFlags{}
}

// AddFlags receives a *cobra.Command reference and binds
// flags related to template printing to it.
func (c *ClientFlags) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&c.serverAddr, "server",
		defaultServerAddr, "serviceless server address")
	cmd.PersistentFlags().StringVar(&c.jwtSecretPath, "jwt-secret-path", "",
		"Path of the hex encoded JWT secret shared with the server")
	cmd.PersistentFlags().DurationVar(&c.timeout, "timeout", 10*time.Second,
		"Timeout of a single request")
	cmd.PersistentFlags().StringVar(&c.caPath, "ca", "",
		"CA certificate path for TLS connection to serviceless server")
	cmd.PersistentFlags().StringVar(&c.certPath, "cert", "",
		"Certificate path for TLS connection to serviceless server")
	cmd.PersistentFlags().StringVar(&c.keyPath, "key", "",
		"Private key path for TLS connection to serviceless server")
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn",
		"log level (etc: debug|info|warn|error)")
}

// GetCredential returns credential.
func (c *ClientFlags) GetCredential() *security.Credential {
	return &security.Credential{
		CAPath:   c.caPath,
		CertPath: c.certPath,
		KeyPath:  c.keyPath,
	}
}

type factoryImpl struct {
	ClientGetter
}

// NewFactory creates a client build factory.
func NewFactory(c ClientGetter) Factory {
	return &factoryImpl{ClientGetter: c}
}

func (f *factoryImpl) verifyServerAddr() error {
	err := util.VerifyServerEndpoint(f.GetServerAddr(), f.GetCredential().IsTLSEnabled())
	if err != nil {
		return cerrors.WrapError(cerrors.ErrInvalidConfig, err)
	}
	return nil
}

// HTTPClient returns a client for the plain HTTP endpoints of the server.
func (f *factoryImpl) HTTPClient() (*httputil.Client, error) {
	if err := f.verifyServerAddr(); err != nil {
		return nil, err
	}
	return httputil.NewClient(f.GetCredential(), f.GetTimeout())
}

// RPCClient returns a JSON-RPC client of the server.
func (f *factoryImpl) RPCClient() (*rpc.Client, error) {
	hc, err := f.HTTPClient()
	if err != nil {
		return nil, err
	}
	opts := []rpc.ClientOption{rpc.WithHTTPClient(hc)}
	if path := f.GetJWTSecretPath(); path != "" {
		secret, err := rpc.LoadJWTSecret(path)
		if err != nil {
			return nil, errors.Trace(err)
		}
		opts = append(opts, rpc.WithJWTSecret(secret))
	}
	return rpc.NewClient(f.GetServerAddr()+rpc.DefaultPath, opts...)
}
