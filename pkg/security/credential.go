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

package security

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"strings"

	"github.com/pingcap/serviceless/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Credential locates the certificates used by the JSON-RPC endpoint, the
// gRPC bridge and their clients.
type Credential struct {
	CAPath        string   `toml:"ca-path" json:"ca-path"`
	CertPath      string   `toml:"cert-path" json:"cert-path"`
	KeyPath       string   `toml:"key-path" json:"key-path"`
	CertAllowedCN []string `toml:"cert-allowed-cn" json:"cert-allowed-cn"`

	// MTLS makes servers demand a client certificate signed by CAPath.
	MTLS bool `toml:"mtls" json:"mtls"`
}

// IsTLSEnabled reports whether all three paths are set.
func (s *Credential) IsTLSEnabled() bool {
	return s.CAPath != "" && s.CertPath != "" && s.KeyPath != ""
}

// IsEmpty reports whether none of the paths is set.
func (s *Credential) IsEmpty() bool {
	return s.CAPath == "" && s.CertPath == "" && s.KeyPath == ""
}

// ToGRPCDialOption falls back to insecure transport when no CA is set.
func (s *Credential) ToGRPCDialOption() (grpc.DialOption, error) {
	tlsCfg, err := s.ToTLSConfig()
	if err != nil {
		return nil, err
	}
	if tlsCfg == nil {
		return grpc.WithTransportCredentials(insecure.NewCredentials()), nil
	}
	return grpc.WithTransportCredentials(credentials.NewTLS(tlsCfg)), nil
}

// ToGRPCServerOptions returns nil when TLS is not configured.
func (s *Credential) ToGRPCServerOptions() ([]grpc.ServerOption, error) {
	tlsCfg, err := s.ToTLSConfigWithVerify()
	if err != nil || tlsCfg == nil {
		return nil, err
	}
	return []grpc.ServerOption{grpc.Creds(credentials.NewTLS(tlsCfg))}, nil
}

// ToTLSConfig builds a client side config, the peer common name is not
// checked.
func (s *Credential) ToTLSConfig() (*tls.Config, error) {
	return s.build(nil)
}

// ToTLSConfigWithVerify builds a config that also rejects peers whose common
// name is not in CertAllowedCN.
func (s *Credential) ToTLSConfigWithVerify() (*tls.Config, error) {
	return s.build(s.CertAllowedCN)
}

func (s *Credential) build(allowedCN []string) (*tls.Config, error) {
	cfg, err := ToTLSConfigWithVerify(s.CAPath, s.CertPath, s.KeyPath, allowedCN, s.MTLS)
	if err != nil {
		return nil, errors.WrapError(errors.ErrToTLSConfigFailed, err)
	}
	return cfg, nil
}

// AddSelfCommonName appends the common name of CertPath to CertAllowedCN.
func (s *Credential) AddSelfCommonName() error {
	if s.CertPath == "" {
		return nil
	}
	cert, err := readCertificate(s.CertPath)
	if err != nil {
		return errors.WrapError(errors.ErrToTLSConfigFailed, err)
	}
	if cn := cert.Subject.CommonName; cn != "" {
		s.CertAllowedCN = append(s.CertAllowedCN, cn)
	}
	return nil
}

func readCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.Errorf("%s does not hold a PEM certificate", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	return cert, errors.Trace(err)
}

// ToTLSConfigWithVerify builds a tls.Config trusting caPath. The key pair is
// reloaded on every handshake so rotated files take effect without restart.
// A nil config is returned when caPath is empty.
func ToTLSConfigWithVerify(
	caPath, certPath, keyPath string, allowedCN []string, mTLS bool,
) (*tls.Config, error) {
	if caPath == "" {
		return nil, nil
	}
	pemCA, err := os.ReadFile(caPath)
	if err != nil {
		return nil, errors.Annotate(err, "read ca certificate")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemCA) {
		return nil, errors.Errorf("no certificate found in %s", caPath)
	}

	cfg := &tls.Config{
		RootCAs:    pool,
		ClientCAs:  pool,
		NextProtos: []string{"h2", "http/1.1"},
		MinVersion: tls.VersionTLS12,
	}
	if mTLS {
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	if certPath != "" && keyPath != "" {
		load := func() (*tls.Certificate, error) {
			pair, err := tls.LoadX509KeyPair(certPath, keyPath)
			if err != nil {
				return nil, errors.Annotate(err, "load key pair")
			}
			return &pair, nil
		}
		cfg.GetCertificate = func(*tls.ClientHelloInfo) (*tls.Certificate, error) { return load() }
		cfg.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) { return load() }
	}
	if len(allowedCN) != 0 {
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
		cfg.VerifyPeerCertificate = commonNameVerifier(allowedCN)
	}
	return cfg, nil
}

func commonNameVerifier(allowedCN []string) func([][]byte, [][]*x509.Certificate) error {
	allowed := make(map[string]struct{}, len(allowedCN))
	for _, cn := range allowedCN {
		allowed[strings.TrimSpace(cn)] = struct{}{}
	}
	return func(_ [][]byte, chains [][]*x509.Certificate) error {
		var seen []string
		for _, chain := range chains {
			for _, cert := range chain {
				if _, ok := allowed[cert.Subject.CommonName]; ok {
					return nil
				}
				seen = append(seen, cert.Subject.CommonName)
			}
		}
		return errors.Errorf("peer certificate common names %v are not in cert-allowed-cn %v",
			seen, allowedCN)
	}
}
