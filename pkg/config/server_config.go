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

package config

import (
	"net"
	"time"

	"github.com/goccy/go-json"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	serrors "github.com/pingcap/serviceless/pkg/errors"
	"github.com/pingcap/serviceless/pkg/logutil"
	"github.com/pingcap/serviceless/pkg/security"
	"go.uber.org/zap"
)

const (
	defaultAddr            = "127.0.0.1:8300"
	defaultGRPCAddr        = "127.0.0.1:8301"
	defaultMailboxName     = "kv"
	defaultReportInterval  = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	minReportInterval      = time.Second
)

var defaultServerConfig = &ServerConfig{
	Addr:     defaultAddr,
	GRPCAddr: defaultGRPCAddr,
	LogFile:  "",
	LogLevel: "info",
	Log: &LogConfig{
		File: &LogFileConfig{
			MaxSize:    300,
			MaxDays:    0,
			MaxBackups: 0,
		},
	},
	Security:        &security.Credential{},
	EnableMetrics:   true,
	ShutdownTimeout: TomlDuration(defaultShutdownTimeout),
	KV: &KVConfig{
		MailboxName:    defaultMailboxName,
		ReportInterval: TomlDuration(defaultReportInterval),
	},
}

// ServerConfig holds the configuration of a serviceless server.
type ServerConfig struct {
	// Addr is the listen address of the JSON-RPC, metrics and status endpoints.
	Addr string `toml:"addr" json:"addr"`
	// GRPCAddr is the listen address of the gRPC bridge, empty disables it.
	GRPCAddr string `toml:"grpc-addr" json:"grpc-addr"`

	LogFile  string     `toml:"log-file" json:"log-file"`
	LogLevel string     `toml:"log-level" json:"log-level"`
	Log      *LogConfig `toml:"log" json:"log"`

	Security *security.Credential `toml:"security" json:"security"`
	// JWTSecretPath points at the shared HS256 secret, empty disables auth.
	JWTSecretPath string `toml:"jwt-secret-path" json:"jwt-secret-path"`

	EnableMetrics   bool         `toml:"enable-metrics" json:"enable-metrics"`
	ShutdownTimeout TomlDuration `toml:"shutdown-timeout" json:"shutdown-timeout"`

	KV *KVConfig `toml:"kv" json:"kv"`
}

// LogConfig represents log config for server
type LogConfig struct {
	File *LogFileConfig `toml:"file" json:"file"`
}

// LogFileConfig represents log file config for server
type LogFileConfig struct {
	MaxSize    int `toml:"max-size" json:"max-size"`
	MaxDays    int `toml:"max-days" json:"max-days"`
	MaxBackups int `toml:"max-backups" json:"max-backups"`
}

// KVConfig configures the built-in key/value service.
type KVConfig struct {
	MailboxName string `toml:"mailbox-name" json:"mailbox-name"`
	// ReportInterval is how often the stats reporter logs the store size.
	ReportInterval TomlDuration `toml:"report-interval" json:"report-interval"`
}

// GetDefaultServerConfig returns the default server config
func GetDefaultServerConfig() *ServerConfig {
	return defaultServerConfig.Clone()
}

// Clone clones the server config
func (c *ServerConfig) Clone() *ServerConfig {
	str, err := c.Marshal()
	if err != nil {
		log.Panic("failed to marshal server config", zap.Error(err))
	}
	cloned := new(ServerConfig)
	if err := cloned.Unmarshal([]byte(str)); err != nil {
		log.Panic("failed to unmarshal server config", zap.Error(err))
	}
	return cloned
}

// Marshal returns the json marshal format of a ServerConfig
func (c *ServerConfig) Marshal() (string, error) {
	cfg, err := json.Marshal(c)
	if err != nil {
		return "", errors.Annotate(serrors.WrapError(serrors.ErrInvalidConfig, err), "marshal server config")
	}
	return string(cfg), nil
}

// Unmarshal unmarshals into *ServerConfig from json marshal byte slice
func (c *ServerConfig) Unmarshal(data []byte) error {
	err := json.Unmarshal(data, c)
	if err != nil {
		return errors.Annotate(serrors.WrapError(serrors.ErrInvalidConfig, err), "unmarshal server config")
	}
	return nil
}

// String implements the Stringer interface
func (c *ServerConfig) String() string {
	s, _ := c.Marshal()
	return logutil.HideSensitive(s)
}

// LoggerConfig builds the logger config out of the server config.
func (c *ServerConfig) LoggerConfig() *logutil.Config {
	cfg := &logutil.Config{
		Level: c.LogLevel,
		File:  c.LogFile,
	}
	if c.Log != nil && c.Log.File != nil {
		cfg.FileMaxSize = c.Log.File.MaxSize
		cfg.FileMaxDays = c.Log.File.MaxDays
		cfg.FileMaxBackups = c.Log.File.MaxBackups
	}
	return cfg
}

// ValidateAndAdjust validates and adjusts the server configuration
func (c *ServerConfig) ValidateAndAdjust() error {
	if c.Addr == "" {
		return serrors.ErrInvalidConfig.GenWithStackByArgs("empty address")
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return serrors.ErrInvalidConfig.GenWithStackByArgs("invalid address " + c.Addr)
	}
	if c.GRPCAddr != "" {
		if _, _, err := net.SplitHostPort(c.GRPCAddr); err != nil {
			return serrors.ErrInvalidConfig.GenWithStackByArgs("invalid grpc address " + c.GRPCAddr)
		}
		if c.GRPCAddr == c.Addr {
			return serrors.ErrInvalidConfig.GenWithStackByArgs("grpc-addr must differ from addr")
		}
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultServerConfig.LogLevel
	}
	if _, err := logutil.ParseLevel(c.LogLevel); err != nil {
		return serrors.ErrInvalidConfig.GenWithStackByArgs("invalid log level " + c.LogLevel)
	}
	if c.Log == nil {
		c.Log = defaultServerConfig.Log.Clone()
	}
	if c.Log.File == nil {
		c.Log.File = defaultServerConfig.Log.File.Clone()
	}
	if c.Security == nil {
		c.Security = &security.Credential{}
	}
	if !c.Security.IsEmpty() && !c.Security.IsTLSEnabled() {
		return serrors.ErrInvalidConfig.GenWithStackByArgs(
			"ca-path, cert-path and key-path must be set together")
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultServerConfig.ShutdownTimeout
	}
	if c.KV == nil {
		c.KV = &KVConfig{}
	}
	if err := c.KV.ValidateAndAdjust(); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Clone clones the log config.
func (c *LogConfig) Clone() *LogConfig {
	cloned := *c
	if c.File != nil {
		cloned.File = c.File.Clone()
	}
	return &cloned
}

// Clone clones the log file config.
func (c *LogFileConfig) Clone() *LogFileConfig {
	cloned := *c
	return &cloned
}

// ValidateAndAdjust validates and adjusts the kv configuration
func (c *KVConfig) ValidateAndAdjust() error {
	if c.MailboxName == "" {
		c.MailboxName = defaultMailboxName
	}
	if c.ReportInterval == 0 {
		c.ReportInterval = TomlDuration(defaultReportInterval)
	}
	if time.Duration(c.ReportInterval) < minReportInterval {
		return serrors.ErrInvalidConfig.GenWithStackByArgs(
			"report-interval must be at least " + minReportInterval.String())
	}
	return nil
}
