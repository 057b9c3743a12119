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
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
)

// Version is the only supported JSON-RPC version.
const Version = "2.0"

// Error codes defined by JSON-RPC 2.0, and the ones used by serviceless in
// the range reserved for implementation-defined server errors.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeServiceStopped = -32000
	CodeServicePaused  = -32001
)

// Method is implemented by messages that can be sent to a remote service.
// The message itself is encoded as the params of the request.
type Method interface {
	Method() string
}

// Request is a JSON-RPC request. A request without ID is a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// NewRequest builds a request, ID and version are filled by the client.
func NewRequest(method string, params any) (Request, error) {
	req := Request{Method: method}
	if params == nil {
		return req, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return req, cerrors.ErrRPCWrongRequestFormat.GenWithStackByArgs(err.Error())
	}
	req.Params = data
	return req, nil
}

// IsNotification returns true if no response is expected.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is a JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Decode decodes the result into out. An error object is turned into
// ErrServiceStopped or ErrServicePaused for the codes the server uses for
// them, and into ErrRPCResponse otherwise. A missing or null result leaves
// out untouched.
func (r *Response) Decode(out any) error {
	if r.Error != nil {
		return r.Error.Err()
	}
	if len(r.Result) == 0 || string(r.Result) == "null" || out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return cerrors.ErrRPCDecodeResult.GenWithStackByArgs(err.Error())
	}
	return nil
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Err converts the error object back into the error a local call would have
// returned.
func (e *Error) Err() error {
	switch e.Code {
	case CodeServiceStopped:
		return cerrors.ErrServiceStopped.GenWithStackByArgs()
	case CodeServicePaused:
		return cerrors.ErrServicePaused.GenWithStackByArgs()
	}
	return cerrors.ErrRPCResponse.GenWithStackByArgs(e.Code, e.Message)
}

// ToError maps the error of a local call to an error object.
func ToError(err error) *Error {
	switch {
	case cerrors.ErrServiceStopped.Equal(err):
		return newError(CodeServiceStopped, err.Error())
	case cerrors.ErrServicePaused.Equal(err):
		return newError(CodeServicePaused, err.Error())
	case cerrors.ErrRPCMethodNotFound.Equal(err):
		return newError(CodeMethodNotFound, err.Error())
	}
	return newError(CodeInternalError, err.Error())
}

func newError(code int, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func encodeID(id uint64) json.RawMessage {
	return json.RawMessage(strconv.FormatUint(id, 10))
}

func errorResponse(id json.RawMessage, rerr *Error) *Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &Response{JSONRPC: Version, Error: rerr, ID: id}
}
