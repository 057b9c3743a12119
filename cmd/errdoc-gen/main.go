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

package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
	serrors "github.com/pingcap/serviceless/pkg/errors"
)

type spec struct {
	Code        string
	Error       string `toml:"error"`
	Description string `toml:"description"`
	Workaround  string `toml:"workaround"`
}

var allErrors = []error{
	serrors.ErrChannelDisconnected,
	serrors.ErrChannelEmpty,
	serrors.ErrChannelEndOfStream,
	serrors.ErrCompletionCanceled,
	serrors.ErrCompletionAlreadySent,
	serrors.ErrCompletionReceiverClosed,
	serrors.ErrServiceStopped,
	serrors.ErrServicePaused,
	serrors.ErrServiceAlreadyStarted,
	serrors.ErrRPCNotSuccessCode,
	serrors.ErrRPCWrongRequestFormat,
	serrors.ErrRPCResponse,
	serrors.ErrRPCDecodeResult,
	serrors.ErrRPCMethodNotFound,
	serrors.ErrRPCUnauthorized,
	serrors.ErrRPCTransport,
	serrors.ErrRPCDuplicateMethod,
	serrors.ErrGRPCDialFailed,
	serrors.ErrTCPServerClosed,
	serrors.ErrServeHTTP,
	serrors.ErrStepServiceExit,
	serrors.ErrStepGroupStarted,
	serrors.ErrToTLSConfigFailed,
	serrors.ErrInvalidConfig,
	serrors.ErrReachMaxTry,
	serrors.ErrVersionIncompatible,
	serrors.ErrInvalidJWTSecret,
}

func main() {
	var outpath string
	flag.StringVar(&outpath, "output", "", "Specify the error documentation output file path")
	flag.Parse()
	if outpath == "" {
		fmt.Fprintln(os.Stderr, "Usage: errdoc-gen --output /path/to/errors.toml")
		os.Exit(1)
	}
	if err := generate(outpath, allErrors); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// generate writes the documentation of errs to outpath, keeping the
// description and workaround already written there.
func generate(outpath string, errs []error) error {
	existDefinition := map[string]spec{}
	if file, err := os.ReadFile(outpath); err == nil {
		if err := toml.Unmarshal(file, &existDefinition); err != nil {
			return errors.Annotatef(err, "invalid toml file %s", outpath)
		}
	}

	dedup := map[string]spec{}
	for _, e := range errs {
		terr, ok := e.(*errors.Error)
		if !ok {
			return errors.Errorf("non-normalized error: %s", e.Error())
		}
		val := reflect.ValueOf(terr).Elem()
		codeText := val.FieldByName("codeText").String()
		message := val.FieldByName("message").String()
		if _, found := dedup[codeText]; found {
			return errors.Errorf("duplicated error code: %s", codeText)
		}
		s := spec{Code: codeText, Error: message}
		if exist, found := existDefinition[s.Code]; found {
			s.Description = strings.TrimSpace(exist.Description)
			s.Workaround = strings.TrimSpace(exist.Workaround)
		}
		dedup[codeText] = s
	}

	sorted := make([]spec, 0, len(dedup))
	for _, item := range dedup {
		sorted = append(sorted, item)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Code < sorted[j].Code
	})

	// toml cannot keep the order of a map[string]spec.
	buffer := bytes.NewBufferString("# AUTOGENERATED BY github.com/pingcap/serviceless/cmd/errdoc-gen\n" +
		"# YOU CAN CHANGE THE 'description'/'workaround' FIELDS IF THEM ARE IMPROPER.\n\n")
	for _, item := range sorted {
		fmt.Fprintf(buffer, "[\"%s\"]\nerror = '''\n%s\n'''\n", item.Code, item.Error)
		if item.Description != "" {
			fmt.Fprintf(buffer, "description = '''\n%s\n'''\n", item.Description)
		}
		if item.Workaround != "" {
			fmt.Fprintf(buffer, "workaround = '''\n%s\n'''\n", item.Workaround)
		}
		buffer.WriteString("\n")
	}
	return errors.Trace(os.WriteFile(outpath, buffer.Bytes(), 0o644))
}
