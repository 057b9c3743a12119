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
	"github.com/pingcap/serviceless/pkg/cmd/factory"
	"github.com/pingcap/serviceless/pkg/cmd/util"
	"github.com/pingcap/serviceless/pkg/logutil"
	"github.com/spf13/cobra"
)

// NewCmdCli creates the `cli` command.
func NewCmdCli() *cobra.Command {
	// Bind the certificate options and construct the client construction factory.
	cf := factory.NewClientFlags()
	f := factory.NewFactory(cf)

	cmds := &cobra.Command{
		Use:   "cli",
		Short: "Call services hosted by a serviceless server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := util.InitLogger(&logutil.Config{Level: cf.GetLogLevel()}); err != nil {
				return err
			}
			util.LogHTTPProxies()
			return nil
		},
	}
	cf.AddFlags(cmds)

	// Add subcommands.
	cmds.AddCommand(newCmdCall(f))
	cmds.AddCommand(newCmdStatus(f))

	return cmds
}
