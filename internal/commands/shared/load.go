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

package shared

import (
	"log/slog"

	"github.com/tombee/wfdebug/internal/config"
	"github.com/tombee/wfdebug/internal/log"
	"github.com/tombee/wfdebug/pkg/workflow"
)

// LoadConfig loads the configuration selected by --config.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, NewConfigError("", err)
	}
	return cfg, nil
}

// NewLogger builds the process logger. Logs always go to stderr so that
// stdout stays free for protocol traffic and command output.
func NewLogger(cfg *config.Config) *slog.Logger {
	return log.New(cfg.LoggerConfig())
}

// LoadWorkflow reads and parses the workflow file at path.
func LoadWorkflow(path string) (*workflow.Document, error) {
	doc, err := workflow.ParseFile(path)
	if err != nil {
		return nil, NewInvalidWorkflowError("", err)
	}
	return doc, nil
}
