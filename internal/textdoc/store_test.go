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

package textdoc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/wfdebug/internal/log"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ci.yml")
	writeFile(t, path, "jobs:\n  a:\n    steps:\n      - run: echo\n")

	s, err := Open(path, log.Discard())
	require.NoError(t, err)

	assert.Equal(t, "ci.yml", s.Name())
	assert.True(t, s.Matches(path))
	assert.True(t, s.Matches(filepath.Join(dir, ".", "ci.yml")))
	assert.False(t, s.Matches(filepath.Join(dir, "other.yml")))
	assert.False(t, s.Matches(""))
	assert.Equal(t, 1, s.Version())

	doc, err := s.Document()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, doc.Workflow.JobIDs())

	again, err := s.Document()
	require.NoError(t, err)
	assert.Same(t, doc, again)
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.yml"), log.Discard())
	assert.Error(t, err)
}

func TestSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ci.yml")
	writeFile(t, path, "jobs: {}\n")
	s, err := Open(path, log.Discard())
	require.NoError(t, err)

	text := []byte("jobs:\n  b:\n    steps: []\n")
	s.set(text)
	text[0] = 'X'

	assert.Equal(t, 2, s.Version())

	doc, err := s.Document()
	require.NoError(t, err)
	assert.Equal(t, "jobs:\n  b:\n    steps: []\n", string(doc.Source))
	assert.Equal(t, []string{"b"}, doc.Workflow.JobIDs())

	s.set([]byte("- not a workflow\n"))
	_, err = s.Document()
	assert.Error(t, err)
}

func TestChanges_Coalesce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ci.yml")
	writeFile(t, path, "jobs: {}\n")
	s, err := Open(path, log.Discard())
	require.NoError(t, err)

	s.set([]byte("a: 1\n"))
	s.set([]byte("a: 2\n"))

	select {
	case v := <-s.Changes():
		assert.Equal(t, 3, v)
	default:
		t.Fatal("expected a change notification")
	}
}

func TestWatch_ReloadsOnSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ci.yml")
	writeFile(t, path, "jobs: {}\n")

	s, err := Open(path, log.Discard())
	require.NoError(t, err)
	<-s.Changes()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Watch(ctx))
	defer s.Close()

	writeFile(t, filepath.Join(dir, "unrelated.yml"), "x: 1\n")
	writeFile(t, path, "jobs:\n  c:\n    steps: []\n")

	source := func() string {
		doc, err := s.Document()
		if err != nil {
			return ""
		}
		return string(doc.Source)
	}
	deadline := time.After(5 * time.Second)
	for source() != "jobs:\n  c:\n    steps: []\n" {
		select {
		case <-s.Changes():
		case <-deadline:
			t.Fatalf("document was not reloaded, text %q", source())
		}
	}
}

func TestClose_WithoutWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ci.yml")
	writeFile(t, path, "jobs: {}\n")
	s, err := Open(path, log.Discard())
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
