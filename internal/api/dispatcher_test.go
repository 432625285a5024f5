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

package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xtaci/dropstream/internal/relay"
)

func testCfg() relay.Config {
	cfg := relay.DefaultConfig()
	cfg.RendezvousTimeout = 100 * time.Millisecond
	cfg.DownloadTimeout = 2 * time.Second
	return cfg
}

func TestCreateTransferAssignsIncreasingIDs(t *testing.T) {
	d := New(testCfg(), Options{})
	srv := httptest.NewServer(d)
	defer srv.Close()

	id1 := mustCreate(t, srv.URL, `{"name":"a.txt","size":10}`)
	id2 := mustCreate(t, srv.URL, `{"name":"b.txt","size":20}`)
	if id2 <= id1 {
		t.Fatalf("expected increasing ids, got %d then %d", id1, id2)
	}
}

func TestCreateTransferRejectsNonPositiveSize(t *testing.T) {
	d := New(testCfg(), Options{})
	srv := httptest.NewServer(d)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/create", "application/json", strings.NewReader(`{"size":0}`))
	if err != nil {
		t.Fatalf("POST /api/create: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateTransferRejectsMalformedJSON(t *testing.T) {
	d := New(testCfg(), Options{})
	srv := httptest.NewServer(d)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/create", "application/json", strings.NewReader(`not json`))
	if err != nil {
		t.Fatalf("POST /api/create: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStatusUnknownIDReturns404(t *testing.T) {
	d := New(testCfg(), Options{})
	srv := httptest.NewServer(d)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status?id=999")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStatusMalformedIDReturns400(t *testing.T) {
	d := New(testCfg(), Options{})
	srv := httptest.NewServer(d)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status?id=nope")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUploadAndDownloadUnknownIDReturn404(t *testing.T) {
	d := New(testCfg(), Options{})
	srv := httptest.NewServer(d)
	defer srv.Close()

	uploadResp, err := http.Post(srv.URL+"/u/999", "application/octet-stream", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("POST /u/999: %v", err)
	}
	defer uploadResp.Body.Close()
	if uploadResp.StatusCode != http.StatusNotFound {
		t.Fatalf("upload status = %d, want 404", uploadResp.StatusCode)
	}

	downloadResp, err := http.Get(srv.URL + "/d/999")
	if err != nil {
		t.Fatalf("GET /d/999: %v", err)
	}
	defer downloadResp.Body.Close()
	if downloadResp.StatusCode != http.StatusNotFound {
		t.Fatalf("download status = %d, want 404", downloadResp.StatusCode)
	}
}

// TestEndToEndTransfer exercises the full rendezvous: status socket,
// upload, and download all converge on one session and the bytes round
// trip exactly.
func TestEndToEndTransfer(t *testing.T) {
	d := New(testCfg(), Options{})
	srv := httptest.NewServer(d)
	defer srv.Close()

	payload := bytes.Repeat([]byte{0xAB}, 3*256*1024+17)
	id := mustCreate(t, srv.URL, `{"name":"payload.bin","size":`+strconv.Itoa(len(payload))+`}`)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/status?id=" + strconv.FormatInt(id, 10)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial status socket: %v", err)
	}
	defer conn.Close()

	var sawDone bool
	msgsDone := make(chan struct{})
	go func() {
		defer close(msgsDone)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if strings.Contains(string(data), `"type":"done"`) {
				sawDone = true
			}
		}
	}()

	uploadDone := make(chan struct{})
	go func() {
		defer close(uploadDone)
		resp, err := http.Post(srv.URL+"/u/"+strconv.FormatInt(id, 10), "application/octet-stream", bytes.NewReader(payload))
		if err != nil {
			t.Errorf("POST upload: %v", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("upload status = %d, want 200", resp.StatusCode)
		}
	}()

	time.Sleep(10 * time.Millisecond)
	downloadResp, err := http.Get(srv.URL + "/d/" + strconv.FormatInt(id, 10))
	if err != nil {
		t.Fatalf("GET download: %v", err)
	}
	defer downloadResp.Body.Close()

	got, err := io.ReadAll(downloadResp.Body)
	if err != nil {
		t.Fatalf("read download body: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("downloaded %d bytes, want %d bytes identical to upload", len(got), len(payload))
	}
	if downloadResp.Header.Get("Content-Disposition") != `attachment; filename="payload.bin"` {
		t.Fatalf("unexpected Content-Disposition: %q", downloadResp.Header.Get("Content-Disposition"))
	}

	<-uploadDone
	<-msgsDone
	if !sawDone {
		t.Fatalf("status socket never saw a done message")
	}
}

func mustCreate(t *testing.T, baseURL, body string) int64 {
	t.Helper()
	resp, err := http.Post(baseURL+"/api/create", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/create: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		t.Fatalf("parse id %q: %v", data, err)
	}
	return id
}
