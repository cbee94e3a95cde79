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

package debug

import (
	"fmt"
	"slices"
	"sync"

	"github.com/tombee/wfdebug/pkg/errors"
)

// Registry tracks the live sessions of one hosting process.
type Registry struct {
	maxSessions int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a registry holding at most maxSessions sessions.
// Zero means no limit.
func NewRegistry(maxSessions int) *Registry {
	return &Registry{
		maxSessions: maxSessions,
		sessions:    make(map[string]*Session),
	}
}

// Add registers s.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID()]; exists {
		return fmt.Errorf("session %s already registered", s.ID())
	}
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		return &errors.ValidationError{
			Field:      "sessions",
			Message:    fmt.Sprintf("limit of %d concurrent sessions reached", r.maxSessions),
			Suggestion: "disconnect another debug session first",
		}
	}
	r.sessions[s.ID()] = s
	return nil
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "session", ID: id}
	}
	return s, nil
}

// Remove forgets the session with the given id. It does not close it.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// List returns the registered sessions, oldest first.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	slices.SortFunc(list, func(a, b *Session) int {
		return a.Created().Compare(b.Created())
	})
	return list
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll ends every registered session.
func (r *Registry) CloseAll() {
	for _, s := range r.List() {
		s.Close()
	}
}
