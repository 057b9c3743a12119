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

package errors

import (
	"github.com/pingcap/errors"
)

// errors
var (
	// channel related errors
	ErrChannelDisconnected = errors.Normalize(
		"channel is disconnected",
		errors.RFCCodeText("SL:ErrChannelDisconnected"),
	)
	ErrChannelEmpty = errors.Normalize(
		"channel is empty",
		errors.RFCCodeText("SL:ErrChannelEmpty"),
	)
	ErrChannelEndOfStream = errors.Normalize(
		"channel is closed and drained",
		errors.RFCCodeText("SL:ErrChannelEndOfStream"),
	)
	ErrCompletionCanceled = errors.Normalize(
		"completion sender dropped without a value",
		errors.RFCCodeText("SL:ErrCompletionCanceled"),
	)
	ErrCompletionAlreadySent = errors.Normalize(
		"completion already sent",
		errors.RFCCodeText("SL:ErrCompletionAlreadySent"),
	)
	ErrCompletionReceiverClosed = errors.Normalize(
		"completion receiver closed",
		errors.RFCCodeText("SL:ErrCompletionReceiverClosed"),
	)

	// actor related errors
	ErrServiceStopped = errors.Normalize(
		"service already stopped",
		errors.RFCCodeText("SL:ErrServiceStopped"),
	)
	ErrServicePaused = errors.Normalize(
		"service is paused, result unavailable",
		errors.RFCCodeText("SL:ErrServicePaused"),
	)
	ErrServiceAlreadyStarted = errors.Normalize(
		"service %s already started",
		errors.RFCCodeText("SL:ErrServiceAlreadyStarted"),
	)

	// rpc related errors
	ErrRPCNotSuccessCode = errors.Normalize(
		"rpc server returns non-success status code %d: %s",
		errors.RFCCodeText("SL:ErrRPCNotSuccessCode"),
	)
	ErrRPCWrongRequestFormat = errors.Normalize(
		"wrong format of rpc request: %s",
		errors.RFCCodeText("SL:ErrRPCWrongRequestFormat"),
	)
	ErrRPCResponse = errors.Normalize(
		"rpc error response, code: %d, message: %s",
		errors.RFCCodeText("SL:ErrRPCResponse"),
	)
	ErrRPCDecodeResult = errors.Normalize(
		"decode rpc result failed: %s",
		errors.RFCCodeText("SL:ErrRPCDecodeResult"),
	)
	ErrRPCMethodNotFound = errors.Normalize(
		"rpc method %s not found",
		errors.RFCCodeText("SL:ErrRPCMethodNotFound"),
	)
	ErrRPCUnauthorized = errors.Normalize(
		"rpc request unauthorized: %s",
		errors.RFCCodeText("SL:ErrRPCUnauthorized"),
	)
	ErrRPCTransport = errors.Normalize(
		"rpc transport failed: %s",
		errors.RFCCodeText("SL:ErrRPCTransport"),
	)
	ErrRPCDuplicateMethod = errors.Normalize(
		"rpc method %s registered twice",
		errors.RFCCodeText("SL:ErrRPCDuplicateMethod"),
	)
	ErrGRPCDialFailed = errors.Normalize(
		"grpc dial failed",
		errors.RFCCodeText("SL:ErrGRPCDialFailed"),
	)
	ErrTCPServerClosed = errors.Normalize(
		"The TCP server has been closed",
		errors.RFCCodeText("SL:ErrTCPServerClosed"),
	)
	ErrServeHTTP = errors.Normalize(
		"serve http error",
		errors.RFCCodeText("SL:ErrServeHTTP"),
	)

	// step service errors
	ErrStepServiceExit = errors.Normalize(
		"step service exits",
		errors.RFCCodeText("SL:ErrStepServiceExit"),
	)
	ErrStepGroupStarted = errors.Normalize(
		"step group already started",
		errors.RFCCodeText("SL:ErrStepGroupStarted"),
	)

	// utilities related errors
	ErrToTLSConfigFailed = errors.Normalize(
		"generate tls config failed",
		errors.RFCCodeText("SL:ErrToTLSConfigFailed"),
	)
	ErrInvalidConfig = errors.Normalize(
		"invalid config: %s",
		errors.RFCCodeText("SL:ErrInvalidConfig"),
	)
	ErrReachMaxTry = errors.Normalize("reach maximum try: %s, error: %s",
		errors.RFCCodeText("SL:ErrReachMaxTry"),
	)
	ErrVersionIncompatible = errors.Normalize(
		"version is incompatible: %s",
		errors.RFCCodeText("SL:ErrVersionIncompatible"),
	)
	ErrInvalidJWTSecret = errors.Normalize(
		"invalid jwt secret",
		errors.RFCCodeText("SL:ErrInvalidJWTSecret"),
	)
)
