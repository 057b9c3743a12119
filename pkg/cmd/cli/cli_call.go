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
	"time"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/pingcap/errors"
	"github.com/pingcap/serviceless/pkg/cmd/factory"
	"github.com/pingcap/serviceless/pkg/cmd/util"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"github.com/pingcap/serviceless/pkg/retry"
	"github.com/spf13/cobra"
)

// callOptions defines flags for the `cli call` command.
type callOptions struct {
	method   string
	params   string
	notify   bool
	maxTries uint64
}

// newCallOptions creates new options for the `cli call` command.
func newCallOptions() *callOptions {
	return &callOptions{}
}

// addFlags receives a *cobra.Command reference and binds
// flags related to template printing to it.
func (o *callOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.method, "method", "", "JSON-RPC method to call, e.g. kv_get")
	cmd.Flags().StringVar(&o.params, "params", "", "JSON encoded params of the method")
	cmd.Flags().BoolVar(&o.notify, "notify", false, "Send a notification and do not wait for the result")
	cmd.Flags().Uint64Var(&o.maxTries, "max-tries", 3, "Max tries when the server is unreachable")
	_ = cmd.MarkFlagRequired("method")
}

// validate checks that the provided call options are specified.
func (o *callOptions) validate() error {
	if o.method == "" {
		return cerrors.ErrInvalidConfig.GenWithStackByArgs("method is required")
	}
	if o.params != "" && !json.Valid([]byte(o.params)) {
		return cerrors.ErrInvalidConfig.GenWithStackByArgs("params is not valid JSON: " + o.params)
	}
	if o.maxTries == 0 {
		return cerrors.ErrInvalidConfig.GenWithStackByArgs("max-tries must be positive")
	}
	return nil
}

// run the `cli call` command.
func (o *callOptions) run(ctx context.Context, f factory.Factory, cmd *cobra.Command) error {
	client, err := f.RPCClient()
	if err != nil {
		return errors.Trace(err)
	}
	var params any
	if o.params != "" {
		params = json.RawMessage(o.params)
	}

	var result json.RawMessage
	err = retry.Do(ctx, func() error {
		if o.notify {
			return client.Notify(ctx, o.method, params)
		}
		return client.Call(ctx, o.method, params, &result)
	}, retry.WithMaxTries(o.maxTries),
		retry.WithBackoffBaseDelay(100*time.Millisecond),
		retry.WithBackoffMaxDelay(time.Second),
		retry.WithIsRetryableErr(cerrors.IsTransportError))
	if err != nil {
		switch {
		case cerrors.ErrServicePaused.Equal(err):
			cmd.PrintErr(color.HiYellowString("[WARN] the service is paused, the result is discarded\n"))
		case cerrors.ErrServiceStopped.Equal(err):
			cmd.PrintErr(color.HiRedString("[ERROR] the service is stopped\n"))
		}
		return err
	}
	if o.notify {
		return nil
	}
	return util.JSONPrint(cmd, result)
}

// newCmdCall creates the `cli call` command.
func newCmdCall(f factory.Factory) *cobra.Command {
	o := newCallOptions()

	command := &cobra.Command{
		Use:   "call",
		Short: "Call a method of a hosted service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.validate(); err != nil {
				return err
			}
			return o.run(cmd.Context(), f, cmd)
		},
	}

	o.addFlags(command)

	return command
}
