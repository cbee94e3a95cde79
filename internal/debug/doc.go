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

// Package debug bridges an editor's Debug Adapter Protocol session to a
// workflow runner.
//
// Each editor connection gets a Session bound to one workflow file and one
// job. The session translates between the editor's view of the file, where
// breakpoints and stack frames are lines, and the runner's view, where the
// unit of execution is a step index within the bound job.
//
// # Lifecycle
//
// The editor must send initialize first. Initialize parses the bound file
// and connects to the runner; either failure ends the session. After the
// editor has set its breakpoints it sends configurationDone, which releases
// any launch or attach request waiting for it.
//
// # Breakpoints
//
// Lines are converted to the byte offset at the end of the line and
// resolved to a step. A breakpoint is verified only when it lands in a
// step of the bound job. The verified step indices are pushed to the
// runner, and the step to line mapping is kept so that stack frames
// reported by the runner can be shown at the line where the breakpoint
// was set.
//
// # Hosting
//
// Server accepts editor connections on stdio or a listener and tracks the
// live sessions in a Registry.
//
//	srv := debug.NewServer(debug.ServerConfig{Session: cfg, Logger: logger})
//	err := srv.Serve(ctx, listener)
package debug
