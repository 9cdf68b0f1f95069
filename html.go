/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"embed"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

//go:embed assets/*
var assets embed.FS

func homePage(cfg *Config) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
	htmlBody.WriteString(`<link rel="icon" type="image/svg+xml" href="` + cfg.prefix + `/assets/favicon.svg">`)
	htmlBody.WriteString(`<link rel="stylesheet" href="` + cfg.prefix + `/assets/gridrace.css">`)
	htmlBody.WriteString(`<title>gridrace</title></head><body>`)
	htmlBody.WriteString(`<main class="home"><h1>gridrace</h1>`)
	htmlBody.WriteString(`<p>Race your friends to find the numbers 1-100, in order, on a shuffled grid.</p>`)
	htmlBody.WriteString(`<form action="` + cfg.prefix + `/room/new"><button type="submit">Create a room</button></form>`)
	htmlBody.WriteString(`<form onsubmit="location.href='` + cfg.prefix + `/room/'+this.code.value.toUpperCase();return false">`)
	htmlBody.WriteString(`<input name="code" placeholder="Room code" maxlength="6" required><button type="submit">Join</button></form>`)
	htmlBody.WriteString(`</main></body></html>`)

	return htmlBody.String()
}

func serveHomePage(cfg *Config) httprouter.Handle {
	page := homePage(cfg)

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'")

		_, _ = w.Write([]byte(page))
	}
}

// serveRoomPage renders the per-room client shell. The room code comes from
// the URL path; "new" tells the script to create a room instead of joining.
func serveRoomPage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")

		var htmlBody strings.Builder

		htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
		htmlBody.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		htmlBody.WriteString(`<link rel="icon" type="image/svg+xml" href="` + cfg.prefix + `/assets/favicon.svg">`)
		htmlBody.WriteString(`<link rel="stylesheet" href="` + cfg.prefix + `/assets/gridrace.css">`)
		htmlBody.WriteString(fmt.Sprintf("<title>gridrace - %s</title></head>", code))
		htmlBody.WriteString(fmt.Sprintf(`<body data-room=%q data-prefix=%q>`, code, cfg.prefix))
		htmlBody.WriteString(`<main id="app"><noscript>This game requires JavaScript.</noscript></main>`)
		htmlBody.WriteString(`<script src="` + cfg.prefix + `/assets/gridrace.js"></script></body></html>`)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(htmlBody.String()))
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveAssets(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		fname := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, cfg.prefix), "/")

		data, err := assets.ReadFile(fname)
		if err != nil {
			return
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		ext := strings.ToLower(filepath.Ext(fname))
		switch ext {
		case ".css":
			w.Header().Set("Content-Type", "text/css; charset=utf-8")
		case ".js":
			w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		case ".svg":
			w.Header().Set("Content-Type", "image/svg+xml")
		}

		_, err = w.Write(data)
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: Amazonbot
Disallow: /

User-agent: Applebot-Extended
Disallow: /

User-agent: Bytespider
Disallow: /

User-agent: CCBot
Disallow: /

User-agent: ClaudeBot
Disallow: /

User-agent: Google-Extended
Disallow: /

User-agent: GPTBot
Disallow: /

User-agent: meta-externalagent
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
