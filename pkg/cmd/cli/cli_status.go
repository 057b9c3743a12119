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

package cli

import (
	"context"
	"net/http"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/pingcap/errors"
	"github.com/pingcap/serviceless/pkg/cmd/factory"
	"github.com/pingcap/serviceless/pkg/cmd/util"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"github.com/pingcap/serviceless/pkg/httputil"
	"github.com/pingcap/serviceless/pkg/server"
	"github.com/pingcap/serviceless/pkg/version"
	"github.com/spf13/cobra"
)

// runStatus fetches the status of the server and prints it.
func runStatus(ctx context.Context, f factory.Factory, cmd *cobra.Command) error {
	client, err := f.HTTPClient()
	if err != nil {
		return errors.Trace(err)
	}
	body, err := client.ReadAll(ctx, http.MethodGet, f.GetServerAddr()+server.StatusPath, nil, nil)
	if statusErr, ok := errors.Cause(err).(*httputil.StatusError); ok {
		return cerrors.ErrRPCNotSuccessCode.GenWithStackByArgs(statusErr.Code, string(statusErr.Body))
	}
	if err != nil {
		return cerrors.WrapError(cerrors.ErrRPCTransport, err)
	}

	var status server.Status
	if err := json.Unmarshal(body, &status); err != nil {
		return cerrors.ErrRPCDecodeResult.GenWithStackByArgs(err.Error())
	}
	if err := version.CheckServerVersion(status.Version); err != nil {
		cmd.PrintErr(color.HiYellowString("[WARN] %s\n", err.Error()))
	}
	return util.JSONPrint(cmd, &status)
}

// newCmdStatus creates the `cli status` command.
func newCmdStatus(f factory.Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the status of the server and its kv service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), f, cmd)
		},
	}
}
