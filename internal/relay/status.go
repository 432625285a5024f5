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

// StatusType is the discriminator of the status-channel JSON message union.
type StatusType string

const (
	StatusStart    StatusType = "start"
	StatusProgress StatusType = "progress"
	StatusDone     StatusType = "done"
	StatusError    StatusType = "error"
	StatusTimeout  StatusType = "timeout"
)

// StatusMessage is serialized as JSON text on the status WebSocket. Done
// and Size are only meaningful (and only emitted) for StatusProgress.
type StatusMessage struct {
	Type StatusType `json:"type"`
	Done int64      `json:"done,omitempty"`
	Size int64      `json:"size,omitempty"`
}
