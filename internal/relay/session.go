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
	"encoding/json"
	stderrors "errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// readChunk is the hard 256 KiB read-size constant from the copy loop.
	readChunk = 256 * 1024
	// progressInterval is the hard 0.5s progress-emission cadence.
	progressInterval = 500 * time.Millisecond
	// slowStatusBacklog is the hard 60-message backlog cap on the status
	// channel before the copy loop fails with KindSlowStatus.
	slowStatusBacklog = 60

	writeWait = 10 * time.Second
)

// Config tunes the timing constants a Session's state machine runs under.
// Production code should use DefaultConfig; tests shrink the timeouts to
// exercise the rendezvous/download timeout paths without waiting hours.
type Config struct {
	RendezvousTimeout time.Duration
	DownloadTimeout   time.Duration
	Upgrader          websocket.Upgrader
}

// DefaultConfig returns the production timing constants from the spec: a
// 5s rendezvous deadline and a 2h download deadline.
func DefaultConfig() Config {
	return Config{
		RendezvousTimeout: 5 * time.Second,
		DownloadTimeout:   2 * time.Hour,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// No auth/CORS layer exists in this system (spec.md Non-goals);
			// the status socket is same-origin by convention of the
			// accompanying web client, not by enforcement here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// downloadSink is what the copy loop writes the streamed file to: an
// http.ResponseWriter paired with its Flusher, so that each write's
// backpressure point (waiting for the TCP send buffer to drain) is
// explicit rather than hidden behind Go's internal response buffering.
type downloadSink interface {
	io.Writer
	Flush()
}

type httpDownloadSink struct {
	w http.ResponseWriter
	f http.Flusher
}

func (s httpDownloadSink) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s httpDownloadSink) Flush()                      { s.f.Flush() }

// Session is the per-transfer state machine and byte pump: it rendezvouses
// three independently-arriving connections (status, upload, download),
// enforces timeouts on that rendezvous, streams bytes with backpressure,
// publishes progress, and tears down cleanly on any disconnect, error, or
// cancellation.
type Session struct {
	id   int64
	file FileDescriptor
	cfg  Config

	statusSlot   *slot[*Channel]
	uploadSlot   *slot[io.ReadCloser]
	downloadSlot *slot[downloadSink]

	timedOut atomic.Bool

	doneCh   chan struct{}
	doneOnce sync.Once
	doneErr  error

	cancel context.CancelFunc
}

// NewSession constructs a Session and spawns its background state-machine
// task. The caller is responsible for wiring Done() to registry removal.
func NewSession(id int64, file FileDescriptor, cfg Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:           id,
		file:         file,
		cfg:          cfg,
		statusSlot:   newSlot[*Channel](),
		uploadSlot:   newSlot[io.ReadCloser](),
		downloadSlot: newSlot[downloadSink](),
		doneCh:       make(chan struct{}),
		cancel:       cancel,
	}
	go s.run(ctx)
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() int64 { return s.id }

// File returns the session's immutable file descriptor.
func (s *Session) File() FileDescriptor { return s.file }

// TimedOut reports whether the session's rendezvous or download phase
// exceeded its deadline. Request handlers reject latecomers once this is
// true.
func (s *Session) TimedOut() bool { return s.timedOut.Load() }

// Done returns a channel closed exactly once, when the session task
// terminates for any reason (success, timeout, error, or cancellation).
func (s *Session) Done() <-chan struct{} { return s.doneCh }

// Err returns the error that caused task termination, or nil on a clean
// finish (including rendezvous/download timeouts, which are not errors).
func (s *Session) Err() error { return s.doneErr }

func (s *Session) logf(format string, args ...any) {
	log.Printf("session %d: "+format, append([]any{s.id}, args...)...)
}

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.doneCh) })
}

// run is the background state-machine task: INIT -> AWAIT_SU -> AWAIT_D ->
// COPY -> DONE, with TIMED_OUT and CANCELLED/ERROR exits as documented in
// the spec.
func (s *Session) run(ctx context.Context) {
	defer s.finish()

	suCtx, suCancel := context.WithTimeout(ctx, s.cfg.RendezvousTimeout)
	defer suCancel()
	statusCh, upload, err := s.awaitStatusAndUpload(suCtx)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			s.timedOut.Store(true)
			s.logf("rendezvous timed out waiting for status+upload")
		} else {
			s.logf("cancelled during rendezvous: %v", err)
		}
		return
	}

	dCtx, dCancel := context.WithTimeout(ctx, s.cfg.DownloadTimeout)
	defer dCancel()
	download, err := s.downloadSlot.wait(dCtx)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			s.timedOut.Store(true)
			statusCh.TryPut(StatusMessage{Type: StatusTimeout})
			s.logf("timed out waiting for downloader")
		} else {
			s.logf("cancelled waiting for downloader: %v", err)
		}
		return
	}

	if err := s.copy(upload, download, statusCh); err != nil {
		statusCh.TryPut(StatusMessage{Type: StatusError})
		s.doneErr = err
		s.logf("copy failed: %v", err)
		return
	}
	s.logf("copy complete")
}

// awaitStatusAndUpload waits jointly for both the status and upload slots,
// the Go-native form of the source's asyncio.gather(status_future,
// upload_future).
func (s *Session) awaitStatusAndUpload(ctx context.Context) (*Channel, io.ReadCloser, error) {
	type statusResult struct {
		v   *Channel
		err error
	}
	type uploadResult struct {
		v   io.ReadCloser
		err error
	}
	sc := make(chan statusResult, 1)
	uc := make(chan uploadResult, 1)

	go func() {
		v, err := s.statusSlot.wait(ctx)
		sc <- statusResult{v, err}
	}()
	go func() {
		v, err := s.uploadSlot.wait(ctx)
		uc <- uploadResult{v, err}
	}()

	var status *Channel
	var upload io.ReadCloser
	var statusErr, uploadErr error
	for i := 0; i < 2; i++ {
		select {
		case r := <-sc:
			status, statusErr = r.v, r.err
		case r := <-uc:
			upload, uploadErr = r.v, r.err
		}
	}
	if statusErr != nil {
		return nil, nil, statusErr
	}
	if uploadErr != nil {
		return nil, nil, uploadErr
	}
	return status, upload, nil
}

// copy is the byte pump: it reads fixed 256 KiB chunks from upload, writes
// and drains each one to download, and emits progress at most once every
// 0.5s, failing with KindSlowStatus if the status consumer falls more than
// 60 messages behind.
func (s *Session) copy(upload io.Reader, download downloadSink, statusCh *Channel) error {
	if err := statusCh.Put(StatusMessage{Type: StatusStart}); err != nil {
		return newErr(KindCopyFailure, "status channel closed before start", err)
	}

	buf := make([]byte, readChunk)
	var done int64
	pending := s.file.Size
	var lastProgress time.Time
	haveProgress := false

	for pending > 0 {
		n := pending
		if n > readChunk {
			n = readChunk
		}

		if _, err := io.ReadFull(upload, buf[:n]); err != nil {
			return newErr(KindCopyFailure, "short read from uploader", err)
		}

		if _, err := download.Write(buf[:n]); err != nil {
			return newErr(KindCopyFailure, "write to downloader", err)
		}
		download.Flush()

		done += n
		pending -= n

		now := time.Now()
		if !haveProgress || now.Sub(lastProgress) >= progressInterval {
			if statusCh.Pending() > slowStatusBacklog {
				return newErr(KindSlowStatus, "status consumer is not keeping up", nil)
			}
			statusCh.TryPut(StatusMessage{Type: StatusProgress, Done: done, Size: s.file.Size})
			lastProgress = now
			haveProgress = true
		}
	}

	if err := statusCh.Put(StatusMessage{Type: StatusDone}); err != nil {
		return newErr(KindCopyFailure, "status channel closed before done", err)
	}
	return nil
}

// StatusResponse handles GET /api/status: it upgrades the request to a
// WebSocket, fills the status slot, and runs the reader/writer pump pair
// until both finish and the socket is closed.
func (s *Session) StatusResponse(w http.ResponseWriter, r *http.Request) error {
	if s.timedOut.Load() || s.statusSlot.isFilled() {
		return newErr(KindNotFound, "cannot connect to this session", nil)
	}

	conn, err := s.cfg.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// A failed upgrade is indistinguishable from no connection at all;
		// the rendezvous timeout will resolve it. See spec.md's "Open
		// question" on this exact behavior.
		return nil
	}

	ch := NewChannel()
	if err := s.statusSlot.fill(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil
	}

	go func() {
		<-s.doneCh
		ch.Close()
	}()

	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { conn.Close() }) }

	writerCtx, cancelWriter := context.WithCancel(context.Background())
	defer cancelWriter()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() { // writer
		defer wg.Done()
		defer closeConn()
		for {
			msg, err := ch.Get(writerCtx)
			if err != nil {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}()

	go func() { // reader
		defer wg.Done()
		defer closeConn()
		defer cancelWriter()
		for {
			mt, _, err := conn.ReadMessage()
			if err != nil {
				// Close or error frame (or any socket failure): cancel the
				// session task per spec.
				s.cancel()
				return
			}
			if mt == websocket.TextMessage {
				// Out-of-contract inbound text frame: ends the reader only,
				// not the session task. See spec.md's "Open question" on
				// this asymmetry — preserved intentionally.
				return
			}
		}
	}()

	wg.Wait()
	ch.Close()
	closeConn()
	return nil
}

// UploadResponse handles POST /u/{id}: it fills the upload slot with the
// request body and blocks until the session task terminates.
func (s *Session) UploadResponse(w http.ResponseWriter, r *http.Request) error {
	if s.timedOut.Load() || s.uploadSlot.isFilled() {
		return newErr(KindNotFound, "cannot upload to this session", nil)
	}
	if err := s.uploadSlot.fill(r.Body); err != nil {
		return newErr(KindNotFound, "cannot upload to this session", err)
	}

	<-s.doneCh

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ok"))
	return nil
}

// DownloadResponse handles GET /d/{id}: it writes the streaming response
// headers, fills the download slot with the writer, and blocks until the
// session task terminates.
func (s *Session) DownloadResponse(w http.ResponseWriter, r *http.Request) error {
	if s.timedOut.Load() || s.downloadSlot.isFilled() {
		return newErr(KindNotFound, "cannot download from this session", nil)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		return newErr(KindCopyFailure, "response writer does not support flushing", nil)
	}

	header := w.Header()
	header.Set("Content-Type", "application/octet-stream")
	header.Set("Content-Disposition", `attachment; filename="`+s.file.Name+`"`)
	header.Set("Connection", "close")
	header.Set("Content-Length", strconv.FormatInt(s.file.Size, 10))
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := httpDownloadSink{w: w, f: flusher}
	if err := s.downloadSlot.fill(sink); err != nil {
		return nil
	}

	<-s.doneCh
	flusher.Flush()
	return nil
}
