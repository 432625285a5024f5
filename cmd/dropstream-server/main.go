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

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/xtaci/dropstream/internal/api"
	"github.com/xtaci/dropstream/internal/config"
	"github.com/xtaci/dropstream/internal/relay"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		// Enable timestamps + file:line to simplify debugging self-built binaries.
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "dropstream-server"
	myApp.Usage = "one-shot peer-to-peer file relay"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen,l",
			Value: "0.0.0.0:8080",
			Usage: "HTTP listen address",
		},
		cli.StringFlag{
			Name:   "env",
			Value:  "",
			Usage:  "dev or prod; falls back to the TYPE environment variable, then prod",
			EnvVar: "TYPE",
		},
		cli.StringFlag{
			Name:  "assets",
			Value: "assets",
			Usage: "dev-mode static asset directory",
		},
		cli.DurationFlag{
			Name:   "rendezvous-timeout",
			Value:  5 * time.Second,
			Usage:  "deadline for the status+upload rendezvous",
			Hidden: true,
		},
		cli.DurationFlag{
			Name:   "download-timeout",
			Value:  2 * time.Hour,
			Usage:  "deadline for the downloader to arrive",
			Hidden: true,
		},
		cli.DurationFlag{
			Name:   "diagnostic-interval",
			Value:  5 * time.Minute,
			Usage:  "how often to log the active session count, 0 to disable",
			Hidden: true,
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "specify a log file to output, default goes to stderr",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "log a line for each created session",
		},
		cli.StringFlag{
			Name:  "config,c",
			Value: "",
			Usage: "config from json file, which will override the command from shell",
		},
	}
	myApp.Action = func(c *cli.Context) error {
		cfg := config.Config{
			Listen:             c.String("listen"),
			Env:                c.String("env"),
			Assets:             c.String("assets"),
			RendezvousTimeout:  c.Duration("rendezvous-timeout"),
			DownloadTimeout:    c.Duration("download-timeout"),
			DiagnosticInterval: c.Duration("diagnostic-interval"),
			Log:                c.String("log"),
		}

		if c.String("c") != "" {
			// Only JSON configuration files are supported at the moment.
			err := config.ParseJSONConfig(&cfg, c.String("c"))
			checkError(err)
		}

		if cfg.Env == "" {
			cfg.Env = "prod"
		}

		// Redirect logs when the user supplied a dedicated log file.
		if cfg.Log != "" {
			f, err := os.OpenFile(cfg.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			checkError(err)
			defer f.Close()
			log.SetOutput(f)
		}

		log.Println("version:", VERSION)
		log.Println("listening on:", cfg.Listen)
		log.Println("env:", cfg.Env)
		log.Println("assets:", cfg.Assets)
		log.Println("rendezvous timeout:", cfg.RendezvousTimeout)
		log.Println("download timeout:", cfg.DownloadTimeout)
		log.Println("diagnostic interval:", cfg.DiagnosticInterval)

		if cfg.Env == "dev" {
			color.Yellow("dev mode enabled: serving static assets from %q, do not use in production", cfg.Assets)
		}

		relayCfg := relay.DefaultConfig()
		relayCfg.RendezvousTimeout = cfg.RendezvousTimeout
		relayCfg.DownloadTimeout = cfg.DownloadTimeout

		dispatcher := api.New(relayCfg, api.Options{
			Env:       cfg.Env,
			AssetsDir: cfg.Assets,
			Verbose:   c.Bool("verbose"),
		})

		stopDiagnostics := make(chan struct{})
		go dispatcher.RunDiagnosticLoop(stopDiagnostics, cfg.DiagnosticInterval)

		server := &http.Server{
			Addr:    cfg.Listen,
			Handler: dispatcher,
		}

		serveErr := make(chan error, 1)
		go func() { serveErr <- server.ListenAndServe() }()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-serveErr:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
		case sig := <-sigCh:
			log.Println("received signal, shutting down:", sig)
			close(stopDiagnostics)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				log.Printf("graceful shutdown failed: %v", err)
			}
		}

		return nil
	}

	if err := myApp.Run(os.Args); err != nil {
		checkError(err)
	}
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}
