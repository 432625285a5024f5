// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package relay

import (
	"sync"
	"sync/atomic"
)

// Registry is the process-wide mapping of session id to Session. Ids are
// monotonically increasing, starting at 1, and are never reused within the
// process lifetime.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	nextID   int64
	cfg      Config
}

// NewRegistry returns an empty Registry; sessions it creates use cfg for
// their timing constants.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		sessions: make(map[int64]*Session),
		cfg:      cfg,
	}
}

// Create allocates the next id, constructs and starts a Session for file,
// wires its completion to automatic removal from the registry, and returns
// the new id.
func (r *Registry) Create(file FileDescriptor) int64 {
	id := atomic.AddInt64(&r.nextID, 1)

	session := NewSession(id, file, r.cfg)

	r.mu.Lock()
	r.sessions[id] = session
	r.mu.Unlock()

	go func() {
		<-session.Done()
		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()
	}()

	return id
}

// Get returns the session for id, or (nil, false) if none is registered —
// either because id was never issued, or because its session has already
// terminated and been reaped.
func (r *Registry) Get(id int64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of currently active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
