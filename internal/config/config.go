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

package config

import (
	"encoding/json"
	"os"
	"time"
)

// Config holds the values cmd/dropstream-server's flags resolve to. An
// optional --config JSON file can override any subset of these fields,
// the same two-step (flag defaults, then JSON override) the teacher's
// server/config.go gives to kcptun's -c flag.
type Config struct {
	Listen             string        `json:"listen"`
	Env                string        `json:"env"`
	Assets             string        `json:"assets"`
	RendezvousTimeout  time.Duration `json:"rendezvous_timeout"`
	DownloadTimeout    time.Duration `json:"download_timeout"`
	DiagnosticInterval time.Duration `json:"diagnostic_interval"`
	Log                string        `json:"log"`
}

// jsonConfig mirrors Config but with duration fields as Go duration
// strings ("5s", "2h") rather than int64 nanoseconds, so a hand-written
// --config file stays readable.
type jsonConfig struct {
	Listen             *string `json:"listen"`
	Env                *string `json:"env"`
	Assets             *string `json:"assets"`
	RendezvousTimeout  *string `json:"rendezvous_timeout"`
	DownloadTimeout    *string `json:"download_timeout"`
	DiagnosticInterval *string `json:"diagnostic_interval"`
	Log                *string `json:"log"`
}

// ParseJSONConfig opens path and overlays any fields it sets onto config,
// leaving fields it omits untouched — so a --config file only needs to
// name the values it wants to override.
func ParseJSONConfig(cfg *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var jc jsonConfig
	if err := json.NewDecoder(file).Decode(&jc); err != nil {
		return err
	}

	if jc.Listen != nil {
		cfg.Listen = *jc.Listen
	}
	if jc.Env != nil {
		cfg.Env = *jc.Env
	}
	if jc.Assets != nil {
		cfg.Assets = *jc.Assets
	}
	if jc.Log != nil {
		cfg.Log = *jc.Log
	}
	if jc.RendezvousTimeout != nil {
		d, err := time.ParseDuration(*jc.RendezvousTimeout)
		if err != nil {
			return err
		}
		cfg.RendezvousTimeout = d
	}
	if jc.DownloadTimeout != nil {
		d, err := time.ParseDuration(*jc.DownloadTimeout)
		if err != nil {
			return err
		}
		cfg.DownloadTimeout = d
	}
	if jc.DiagnosticInterval != nil {
		d, err := time.ParseDuration(*jc.DiagnosticInterval)
		if err != nil {
			return err
		}
		cfg.DiagnosticInterval = d
	}

	return nil
}
