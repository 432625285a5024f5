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
	"context"
	"sync"

	"github.com/pkg/errors"
)

// errSlotAlreadyFilled is returned by slot.fill to the second filler of a
// rendezvous slot — the spec requires this to be "an error observable by
// the filler", not a panic or a silent overwrite.
var errSlotAlreadyFilled = errors.New("rendezvous slot already filled")

// slot is a one-shot container used to pass a connection handle from a
// request handler into the session task. It transitions empty -> filled
// exactly once; a second fill attempt fails and leaves the first value in
// place.
type slot[T any] struct {
	mu      sync.Mutex
	filled  bool
	value   T
	readyCh chan struct{}
}

func newSlot[T any]() *slot[T] {
	return &slot[T]{readyCh: make(chan struct{})}
}

// fill sets the slot's value. It returns errSlotAlreadyFilled if called a
// second time.
func (s *slot[T]) fill(v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filled {
		return errSlotAlreadyFilled
	}
	s.value = v
	s.filled = true
	close(s.readyCh)
	return nil
}

// isFilled reports whether fill has already succeeded.
func (s *slot[T]) isFilled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filled
}

// wait blocks until the slot is filled or ctx is done, whichever happens
// first.
func (s *slot[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-s.readyCh:
		s.mu.Lock()
		v := s.value
		s.mu.Unlock()
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
