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
)

// Channel is a closable, asynchronous, single-consumer queue of status
// messages. It is the Go-native reading of the Python original's
// asyncio.Future-based Channel (see original_source/app/channel.py):
// put/tryPut never block the producer, a single waiting consumer is handed
// an item directly when one arrives, and close() wakes any waiter with
// ErrChannelClosed if nothing was buffered for it.
//
// A bare Go channel can't express this directly: an unbuffered chan would
// block the producer until a consumer is ready, and a buffered chan can't
// answer pending()/empty() precisely once items have been both sent and
// are awaiting a receive. Channel instead keeps an explicit FIFO buffer
// plus at most one parked waiter, exactly mirroring the source's
// _item_queue / _get_queue pair.
type Channel struct {
	mu     sync.Mutex
	buf    []any
	waiter chan result
	closed bool
}

type result struct {
	item   any
	closed bool
}

// NewChannel returns an open, empty Channel.
func NewChannel() *Channel {
	return &Channel{}
}

// Put enqueues item, returning ErrChannelClosed if the channel is closed.
// Put never blocks the caller.
func (c *Channel) Put(item any) error {
	if !c.TryPut(item) {
		return ErrChannelClosed
	}
	return nil
}

// TryPut enqueues item and reports whether it succeeded; it returns false
// only when the channel is already closed.
func (c *Channel) TryPut(item any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	if c.waiter != nil {
		w := c.waiter
		c.waiter = nil
		w <- result{item: item}
		close(w)
		return true
	}

	c.buf = append(c.buf, item)
	return true
}

// Get returns the next item, waiting for one to arrive if the buffer is
// empty. It returns ErrChannelClosed if the channel is closed with nothing
// buffered, and ctx.Err() if ctx is done first.
func (c *Channel) Get(ctx context.Context) (any, error) {
	c.mu.Lock()
	if len(c.buf) > 0 {
		item := c.buf[0]
		c.buf = c.buf[1:]
		c.mu.Unlock()
		return item, nil
	}
	if c.closed {
		c.mu.Unlock()
		return nil, ErrChannelClosed
	}

	w := make(chan result, 1)
	c.waiter = w
	c.mu.Unlock()

	select {
	case r := <-w:
		if r.closed {
			return nil, ErrChannelClosed
		}
		return r.item, nil
	case <-ctx.Done():
		// Withdraw as the waiter under the lock. If Put or Close already
		// took us off c.waiter, it has handed its result into w (capacity
		// 1), so that result is returned instead of being lost.
		c.mu.Lock()
		if c.waiter == w {
			c.waiter = nil
			c.mu.Unlock()
			return nil, ctx.Err()
		}
		c.mu.Unlock()
		r := <-w
		if r.closed {
			return nil, ErrChannelClosed
		}
		return r.item, nil
	}
}

// GetNowait returns the next buffered item without waiting, or
// ErrChannelEmpty if nothing is buffered and the channel is still open, or
// ErrChannelClosed if it is closed and drained.
func (c *Channel) GetNowait() (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buf) > 0 {
		item := c.buf[0]
		c.buf = c.buf[1:]
		return item, nil
	}
	if c.closed {
		return nil, ErrChannelClosed
	}
	return nil, ErrChannelEmpty
}

// Close idempotently closes the channel. Buffered items remain drainable;
// a parked waiter is woken with its next buffered item, or ErrChannelClosed
// if none remain.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	if c.waiter == nil {
		return
	}
	w := c.waiter
	c.waiter = nil

	if len(c.buf) > 0 {
		item := c.buf[0]
		c.buf = c.buf[1:]
		w <- result{item: item}
	} else {
		w <- result{closed: true}
	}
	close(w)
}

// Pending returns the number of items currently buffered.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// Empty reports whether Pending() == 0.
func (c *Channel) Empty() bool {
	return c.Pending() == 0
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Done reports whether the channel is closed and has nothing left
// buffered — no further items can ever be received.
func (c *Channel) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed && len(c.buf) == 0
}
