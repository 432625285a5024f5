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

// Package api wires the relay package's sessions onto an HTTP mux: request
// routing, id/body validation, and the periodic diagnostic log line.
package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/xtaci/dropstream/internal/relay"
)

// Dispatcher owns the session registry and the mux it is wired to.
type Dispatcher struct {
	registry *relay.Registry
	cfg      relay.Config
	router   *mux.Router
	verbose  bool
}

// Options configures New beyond the relay.Config timing constants.
type Options struct {
	// Env selects dev-mode static asset serving ("dev") or prod ("" or
	// anything else) — mirrors the source's apptype switch in
	// Application.__init__.
	Env string
	// AssetsDir is the directory served at "/" and "/*" when Env == "dev".
	AssetsDir string
	// Verbose enables one log line per created session. The per-phase lines
	// a relay.Session writes through its logf helper are always logged,
	// whatever this is set to.
	Verbose bool
}

// New builds a Dispatcher with its full route table wired in.
func New(cfg relay.Config, opts Options) *Dispatcher {
	d := &Dispatcher{
		registry: relay.NewRegistry(cfg),
		cfg:      cfg,
		router:   mux.NewRouter(),
		verbose:  opts.Verbose,
	}

	d.router.HandleFunc("/api/create", d.createTransfer).Methods(http.MethodPost)
	d.router.HandleFunc("/api/status", d.transferStatus).Methods(http.MethodGet)
	d.router.HandleFunc("/u/{id}", d.startUpload).Methods(http.MethodPost)
	d.router.HandleFunc("/d/{id}", d.startDownload).Methods(http.MethodGet)

	if opts.Env == "dev" {
		assetsDir := opts.AssetsDir
		if assetsDir == "" {
			assetsDir = "assets"
		}
		fileServer := http.FileServer(http.Dir(assetsDir))
		d.router.PathPrefix("/").Handler(fileServer)
	}

	return d
}

// ServeHTTP makes Dispatcher an http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.router.ServeHTTP(w, r)
}

// createTransfer handles POST /api/create: validate the body, register a
// new session, and respond with its id as plain text.
func (d *Dispatcher) createTransfer(w http.ResponseWriter, r *http.Request) {
	file, err := decodeCreateRequest(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	id := d.registry.Create(file)
	if d.verbose {
		log.Printf("session %d: created (%s, %d bytes)", id, file.Name, file.Size)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(formatID(id)))
}

// transferStatus handles GET /api/status?id=N: look up the session and
// delegate to its StatusResponse.
func (d *Dispatcher) transferStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	session, ok := d.registry.Get(id)
	if !ok {
		writeError(w, relay.NewNotFound("unknown session", nil))
		return
	}

	if err := session.StatusResponse(w, r); err != nil {
		writeError(w, err)
	}
}

// startUpload handles POST /u/{id}: look up the session and delegate to
// its UploadResponse.
func (d *Dispatcher) startUpload(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	session, ok := d.registry.Get(id)
	if !ok {
		writeError(w, relay.NewNotFound("unknown session", nil))
		return
	}

	if err := session.UploadResponse(w, r); err != nil {
		writeError(w, err)
	}
}

// startDownload handles GET /d/{id}: look up the session and delegate to
// its DownloadResponse.
func (d *Dispatcher) startDownload(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	session, ok := d.registry.Get(id)
	if !ok {
		writeError(w, relay.NewNotFound("unknown session", nil))
		return
	}

	if err := session.DownloadResponse(w, r); err != nil {
		writeError(w, err)
	}
}

// RunDiagnosticLoop logs the active session count every interval, until stop
// is closed. A non-positive interval disables the loop. Grounded on std/snmp.go's ticker-driven periodic logger in the
// teacher, retargeted from an SNMP CSV dump to the one counter this system
// has: how many sessions are in flight.
func (d *Dispatcher) RunDiagnosticLoop(stop <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			log.Printf("diagnostic: %d active session(s)", d.registry.Count())
		case <-stop:
			return
		}
	}
}
