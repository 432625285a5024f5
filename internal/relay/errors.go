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
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a relay error so that HTTP handlers and the status
// channel can react to it without string-matching.
type Kind int

const (
	// KindBadRequest covers malformed JSON, bad ids and non-positive sizes.
	KindBadRequest Kind = iota
	// KindNotFound covers unknown ids, slots already filled, and sessions
	// that have already timed out.
	KindNotFound
	// KindChannelClosed is returned by Channel.Put/Get once the channel has
	// been closed; never surfaced to an HTTP client.
	KindChannelClosed
	// KindChannelEmpty is returned by Channel.GetNowait when nothing is
	// buffered and the channel is still open.
	KindChannelEmpty
	// KindRendezvousTimeout marks a session that never completed its
	// rendezvous phase in time.
	KindRendezvousTimeout
	// KindCopyFailure covers I/O failure on upload/download and short reads.
	KindCopyFailure
	// KindSlowStatus specializes KindCopyFailure: the status channel has
	// more than 60 pending messages at a progress checkpoint.
	KindSlowStatus
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindChannelClosed:
		return "channel_closed"
	case KindChannelEmpty:
		return "channel_empty"
	case KindRendezvousTimeout:
		return "rendezvous_timeout"
	case KindCopyFailure:
		return "copy_failure"
	case KindSlowStatus:
		return "slow_status"
	default:
		return "unknown"
	}
}

// Error wraps a Kind with a causing error, keeping the pkg/errors stack
// trace from the wrapped cause available to callers that want it.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// newErr builds a relay.Error, wrapping cause (if any) with pkg/errors so a
// stack trace survives for logging.
func newErr(kind Kind, msg string, cause error) *Error {
	if cause != nil {
		cause = errors.Wrap(cause, msg)
	}
	return &Error{Kind: kind, msg: msg, err: cause}
}

// NewBadRequest builds a KindBadRequest error for request validation
// failures in internal/api.
func NewBadRequest(msg string, cause error) *Error { return newErr(KindBadRequest, msg, cause) }

// NewNotFound builds a KindNotFound error for unknown/consumed/timed-out
// session lookups in internal/api.
func NewNotFound(msg string, cause error) *Error { return newErr(KindNotFound, msg, cause) }

// ErrChannelClosed is the sentinel returned once a Channel has been closed
// and has nothing left buffered.
var ErrChannelClosed = newErr(KindChannelClosed, "channel closed", nil)

// ErrChannelEmpty is the sentinel returned by GetNowait on an open,
// unbuffered channel.
var ErrChannelEmpty = newErr(KindChannelEmpty, "channel empty", nil)

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	return false
}
