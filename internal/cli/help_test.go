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
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/tombee/wfdebug/internal/commands/shared"
)

func runHelp(t *testing.T, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	defer shared.SetJSONForTest(false)

	rootCmd := NewRootCommand()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append([]string{"help"}, args...))
	return buf, rootCmd.Execute()
}

func TestHelpCommandJSON(t *testing.T) {
	buf, err := runHelp(t, "--json")
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}

	var resp HelpResponse
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if resp.Command != "help" || !resp.Success {
		t.Errorf("unexpected envelope: %+v", resp.JSONResponse)
	}

	names := map[string]CommandMetadata{}
	for _, c := range resp.Commands {
		names[c.Name] = c
	}
	for _, want := range []string{"dap", "plan", "message", "breakpoints", "version"} {
		if _, ok := names[want]; !ok {
			t.Errorf("command %q missing from help", want)
		}
	}
	if _, ok := names["help"]; ok {
		t.Error("help should not list itself")
	}
	if names["dap"].Group != groupDebug {
		t.Errorf("dap group = %q", names["dap"].Group)
	}

	var global []string
	for _, f := range resp.GlobalFlags {
		global = append(global, f.Name)
	}
	if strings.Join(global, ",") != "config,json" {
		t.Errorf("global flags = %v", global)
	}
}

func TestHelpCommandJSON_Specific(t *testing.T) {
	buf, err := runHelp(t, "dap", "--json")
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}

	var resp HelpResponse
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if resp.Command != "help dap" || resp.Detail == nil {
		t.Fatalf("unexpected response: %s", buf.String())
	}

	flags := map[string]bool{}
	for _, f := range resp.Detail.Flags {
		flags[f.Name] = true
	}
	for _, want := range []string{"job", "listen", "runner-port"} {
		if !flags[want] {
			t.Errorf("flag %q missing from dap help", want)
		}
	}
	if flags["json"] {
		t.Error("global flags belong in global_flags")
	}
}

func TestHelpCommand_Text(t *testing.T) {
	buf, err := runHelp(t, "plan")
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}
	if !strings.Contains(buf.String(), "wfdebug plan <workflow>") {
		t.Errorf("expected plan usage, got:\n%s", buf.String())
	}
}

func TestHelpCommand_Unknown(t *testing.T) {
	if _, err := runHelp(t, "frobnicate"); err == nil {
		t.Error("expected an error for an unknown command")
	}
}
