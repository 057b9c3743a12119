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

package logutil

import (
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultLogLevel        = "info"
	defaultFileMaxSize     = 300 // 300MB
	defaultFileMaxDays     = 0   // no limit
	defaultFileMaxBackups  = 0   // no limit
	fieldServiceKey        = "service"
	fieldMailboxKey        = "mailbox-id"
	fieldRemoteEndpointKey = "endpoint"
)

// Config serializes log related config in toml/json.
type Config struct {
	// Log level.
	Level string `toml:"level" json:"level"`
	// Log filename, leave empty to disable file log.
	File string `toml:"file" json:"file"`
	// Max size for a single file, in MB.
	FileMaxSize int `toml:"max-size" json:"max-size"`
	// Max log keep days, default is never deleting.
	FileMaxDays int `toml:"max-days" json:"max-days"`
	// Maximum number of old log files to retain.
	FileMaxBackups int `toml:"max-backups" json:"max-backups"`
}

// Adjust adjusts config
func (cfg *Config) Adjust() {
	if len(cfg.Level) == 0 {
		cfg.Level = defaultLogLevel
	}
	if cfg.Level == "warning" {
		cfg.Level = "warn"
	}
	if cfg.FileMaxSize == 0 {
		cfg.FileMaxSize = defaultFileMaxSize
	}
	if cfg.FileMaxDays == 0 {
		cfg.FileMaxDays = defaultFileMaxDays
	}
	if cfg.FileMaxBackups == 0 {
		cfg.FileMaxBackups = defaultFileMaxBackups
	}
}

// InitLogger initializes logger
func InitLogger(cfg *Config, opts ...zap.Option) error {
	cfg.Adjust()
	pclogConfig := &log.Config{
		Level: cfg.Level,
		File: log.FileLogConfig{
			Filename:   cfg.File,
			MaxSize:    cfg.FileMaxSize,
			MaxDays:    cfg.FileMaxDays,
			MaxBackups: cfg.FileMaxBackups,
		},
	}

	logger, props, err := log.InitLogger(pclogConfig, opts...)
	if err != nil {
		return errors.Trace(err)
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

// ParseLevel parses a log level name.
func ParseLevel(level string) (zapcore.Level, error) {
	if level == "warning" {
		level = "warn"
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return lvl, errors.Trace(err)
	}
	return lvl, nil
}

// SetLogLevel changes the global log level dynamically.
func SetLogLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return errors.Trace(err)
	}
	if lvl == log.GetLevel() {
		return nil
	}
	log.SetLevel(lvl)
	return nil
}

// ZapErrorFilter wraps zap.Error, if err is in given filterErrors, it will be set to nil
func ZapErrorFilter(err error, filterErrors ...error) zap.Field {
	cause := errors.Cause(err)
	for _, ferr := range filterErrors {
		if cause == ferr {
			return zap.Error(nil)
		}
	}
	return zap.Error(err)
}

// NewLogger4Service returns a logger carrying the service name and the id
// of its mailbox.
func NewLogger4Service(name, mailboxID string) *zap.Logger {
	return log.L().With(
		zap.String(fieldServiceKey, name),
		zap.String(fieldMailboxKey, mailboxID),
	)
}

// NewLogger4Remote returns a logger for a remote transport endpoint.
func NewLogger4Remote(endpoint string) *zap.Logger {
	return log.L().With(zap.String(fieldRemoteEndpointKey, endpoint))
}
