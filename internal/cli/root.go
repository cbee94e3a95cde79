// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"github.com/spf13/cobra"
	"github.com/tombee/wfdebug/internal/commands/breakpoints"
	"github.com/tombee/wfdebug/internal/commands/completion"
	"github.com/tombee/wfdebug/internal/commands/dapserver"
	"github.com/tombee/wfdebug/internal/commands/message"
	"github.com/tombee/wfdebug/internal/commands/plan"
	"github.com/tombee/wfdebug/internal/commands/shared"
	"github.com/tombee/wfdebug/internal/commands/version"
)

// Command groups shown in help output
const (
	groupDebug   = "debug"
	groupInspect = "inspect"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command with every wfdebug command
// attached.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wfdebug",
		Short: "wfdebug - step through workflow jobs on a remote runner",
		Long: `wfdebug lets an editor set breakpoints on the steps of a workflow file and
debug a job running on a remote runner through the Debug Adapter Protocol.

Run 'wfdebug plan <workflow>' to see the jobs that can be debugged.
Run 'wfdebug dap <workflow>' from your editor's debug configuration.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	json, config := shared.RegisterFlagPointers()
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/wfdebug/config.yaml)")

	cmd.AddCommand(
		grouped(dapserver.NewCommand(), groupDebug),
		grouped(plan.NewCommand(), groupInspect),
		grouped(message.NewCommand(), groupInspect),
		grouped(breakpoints.NewCommand(), groupInspect),
		completion.NewCommand(),
		version.NewCommand(),
	)
	cmd.SetHelpCommand(NewHelpCommand(cmd))

	return cmd
}

func grouped(cmd *cobra.Command, group string) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations["group"] = group
	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
