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
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/xtaci/dropstream/internal/relay"
)

// createRequest is the body of POST /api/create. Name and Type are
// optional; Size must be a positive integer. json_types.py in the source
// gives this exactly the same three fields and the same optionality.
type createRequest struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// decodeCreateRequest parses and validates a POST /api/create body into a
// FileDescriptor. It never returns a relay.Error of any kind other than
// KindBadRequest.
func decodeCreateRequest(body io.Reader) (relay.FileDescriptor, error) {
	var req createRequest
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		return relay.FileDescriptor{}, relay.NewBadRequest("malformed request body", err)
	}
	if req.Size <= 0 {
		return relay.FileDescriptor{}, relay.NewBadRequest("size must be a positive integer", nil)
	}

	return relay.FileDescriptor{
		Name: relay.SanitizeFilename(req.Name),
		Size: req.Size,
		Type: req.Type,
	}, nil
}

// formatID renders a session id as the plain-text body of a successful
// POST /api/create response.
func formatID(id int64) string { return strconv.FormatInt(id, 10) }

// parseID parses a session id out of a path variable or query parameter.
// A malformed id is a BadRequest, never a NotFound — spec.md draws that
// line explicitly (§4.4: "respond 400 on parse error, 404 if absent").
func parseID(raw string) (int64, error) {
	if raw == "" {
		return 0, relay.NewBadRequest("missing id", nil)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, relay.NewBadRequest("malformed id", err)
	}
	return id, nil
}

// writeError maps a relay error (or any error) onto its HTTP status and a
// short plain-text body. Errors of any other kind are treated as 500s —
// the dispatcher itself never constructs one; the session handlers can
// (DownloadResponse returns a KindCopyFailure when the response writer
// does not support flushing).
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case relay.IsKind(err, relay.KindBadRequest):
		status = http.StatusBadRequest
	case relay.IsKind(err, relay.KindNotFound):
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}
