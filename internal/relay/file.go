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

import "strings"

// maxFilenameLen is the hard cap on a sanitized display filename.
const maxFilenameLen = 256

// FileDescriptor is the immutable record announced by the uploader and
// handed unchanged to the downloader.
type FileDescriptor struct {
	Name string // sanitized display name, <=256 chars
	Size int64  // byte count, > 0
	Type string // MIME string, may be empty
}

// validFilenameChar reports whether r may appear in a sanitized filename:
// A-Z a-z 0-9 space - _ . ( )
func validFilenameChar(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	}
	switch r {
	case ' ', '-', '_', '.', '(', ')':
		return true
	}
	return false
}

// SanitizeFilename keeps only the printable subset allowed on the wire
// (A-Za-z0-9 -_.() ), strips leading/trailing whitespace, truncates to 256
// characters, and substitutes "file.bin" for an empty result.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if validFilenameChar(r) {
			b.WriteRune(r)
		}
	}

	out := strings.TrimSpace(b.String())
	if len(out) > maxFilenameLen {
		out = out[:maxFilenameLen]
	}
	if out == "" {
		out = "file.bin"
	}
	return out
}
