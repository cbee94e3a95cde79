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

/*
Package cli provides the root command of the wfdebug CLI.

The command tree is:

	wfdebug
	├── dap           Serve the Debug Adapter Protocol for a workflow
	├── plan          List jobs and their matrix executions
	├── message       Print the job request for an execution
	├── breakpoints   Resolve breakpoint lines to steps
	├── completion    Generate shell completion scripts
	├── version       Show version
	└── help          Show help (--json for machine-readable output)

From main.go:

	cli.SetVersion(version, commit, date)
	if err := cli.NewRootCommand().Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

	--json           Output in JSON format
	--config         Path to config file

# Exit Codes

  - 0: Success
  - 1: General error
  - 2: Workflow cannot be read, parsed or planned
  - 3: Invalid configuration
  - 4: Runner unreachable
*/
package cli
