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

// Package textdoc keeps the current text of the workflow file bound to a
// debug session. Breakpoint lines are always resolved against the latest
// saved text, which is reloaded whenever the file changes on disk.
package textdoc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/tombee/wfdebug/internal/log"
	"github.com/tombee/wfdebug/pkg/workflow"
)

// reloadOps are the fsnotify operations that may change the file content.
// Editors often save by writing a temporary file and renaming it over the
// original, which shows up as a create.
const reloadOps = fsnotify.Write | fsnotify.Create

// Store holds the text of one file.
type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	text    []byte
	version int
	doc     *workflow.Document
	docErr  error
	parsed  int

	changes chan int
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Open reads path into a new Store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		path:    filepath.Clean(abs),
		logger:  log.WithComponent(logger, "textdoc").With(slog.String("path", abs)),
		changes: make(chan int, 1),
		parsed:  -1,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the absolute path of the file.
func (s *Store) Path() string {
	return s.path
}

// Name returns the file's base name.
func (s *Store) Name() string {
	return filepath.Base(s.path)
}

// Matches reports whether path names the stored file.
func (s *Store) Matches(path string) bool {
	if path == "" {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return filepath.Clean(abs) == s.path
}

// Version increases every time the text changes.
func (s *Store) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// set replaces the text and announces the new version.
func (s *Store) set(text []byte) {
	s.mu.Lock()
	s.text = append([]byte(nil), text...)
	s.version++
	v := s.version
	s.mu.Unlock()
	s.notify(v)
}

// Reload reads the file from disk.
func (s *Store) Reload() error {
	text, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	s.set(text)
	s.logger.Debug("document loaded", slog.Int("bytes", len(text)))
	return nil
}

// Document parses the current text. The result is cached until the text
// changes.
func (s *Store) Document() (*workflow.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parsed != s.version {
		s.doc, s.docErr = workflow.Parse(filepath.Base(s.path), s.text)
		s.parsed = s.version
	}
	return s.doc, s.docErr
}

// Changes receives the new version after the text changes. Notifications
// are coalesced when nobody is receiving.
func (s *Store) Changes() <-chan int {
	return s.changes
}

func (s *Store) notify(version int) {
	select {
	case s.changes <- version:
	default:
		select {
		case <-s.changes:
		default:
		}
		select {
		case s.changes <- version:
		default:
		}
	}
}

// Watch reloads the text whenever the file is saved, until ctx is done or
// Close is called. The parent directory is watched so that saves which
// replace the file are seen.
func (s *Store) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(s.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch path: %w", err)
	}

	s.mu.Lock()
	s.watcher = fsw
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.eventLoop(ctx, fsw, stopCh, doneCh)
	s.logger.Info("watching document")
	return nil
}

// Close stops watching.
func (s *Store) Close() error {
	s.mu.Lock()
	fsw, stopCh, doneCh := s.watcher, s.stopCh, s.doneCh
	s.watcher = nil
	s.mu.Unlock()
	if fsw == nil {
		return nil
	}
	close(stopCh)
	<-doneCh
	return fsw.Close()
}

func (s *Store) eventLoop(ctx context.Context, fsw *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path || event.Op&reloadOps == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Warn("failed to reload document", log.Error(err))
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			s.logger.Error("document watcher error", log.Error(err))
		}
	}
}
