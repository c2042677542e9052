package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/exp/slog"
)

// PageCandidates are tried in order for the monitoring page.
var PageCandidates = []string{
	"FIM92LOCAL.html",
	"FIM92_LOCAL.html",
	"fim92_local.html",
	"index.html",
}

var missingPageTemplate = template.Must(template.New("missing").Funcs(template.FuncMap{"join": strings.Join}).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Monitoring page not found</title></head>
<body>
<h1>Monitoring page not found</h1>
<p>Looked for: {{join .Candidates ", "}}</p>
<p>HTML files in directory: {{if .HTML}}{{join .HTML ", "}}{{else}}none{{end}}</p>
<p>All files: {{join .Files ", "}}</p>
<hr>
<p><a href="/test">Diagnostics page</a></p>
</body>
</html>
`))

var diagnosticsTemplate = template.Must(template.New("test").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Bit relay diagnostics</title>
<style>
body { font-family: monospace; background: #1a1a1a; color: #00ff00; padding: 20px; }
.container { max-width: 800px; margin: 0 auto; }
.status { background: #2a2a2a; padding: 10px; margin: 10px 0; border-left: 4px solid #00ff00; }
.info { color: #00aaff; }
.warning { color: #ff6600; }
ul { background: #2a2a2a; padding: 15px; }
</style>
</head>
<body>
<div class="container">
<h1>Bit relay diagnostics</h1>
<div class="status">
<h3>Server</h3>
<p class="info">Port: {{.Port}}</p>
<p class="info">Server time: {{.Time}}</p>
<p class="info">Uptime: {{printf "%.0f" .Snapshot.ServerUptime}}s</p>
</div>
<div class="status">
<h3>Status value (16 bits)</h3>
<ul>
<li><strong>1</strong> = BIT0 (launcher ready)</li>
<li><strong>2</strong> = BIT1 (vibrator ready, LED on)</li>
<li><strong>4</strong> = BIT2 (medium vibration)</li>
<li><strong>8</strong> = BIT3 (strong vibration)</li>
<li><strong>32</strong> = BIT5 (rocker switch)</li>
</ul>
<p class="warning">Example: 34 = BIT1 + BIT5 (LED on, switch pressed)</p>
</div>
<div class="status">
<h3>Connections</h3>
<p>Device: {{if .Snapshot.DeviceConnected}}connected{{else}}not connected{{end}}</p>
<p>Monitors: {{.Snapshot.WebClientsCount}}</p>
<p>WebSocket URL: {{.SocketURL}}</p>
</div>
</div>
</body>
</html>
`))

var notFoundTemplate = template.Must(template.New("404").Parse(`<h1>404 - Not Found</h1>
<p>Requested path: {{.}}</p>
<p><a href="/">Home</a> | <a href="/test">Diagnostics</a></p>
`))

func IndexRoute(logger *slog.Logger, dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, name := range PageCandidates {
			b, err := os.ReadFile(filepath.Join(dir, name))
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			if err != nil {
				logger.Error("failed to read page", err, slog.String("file", name))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(b)
			return
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			logger.Error("failed to read page directory", err, slog.String("dir", dir))
			http.Error(w, "Error reading directory", http.StatusInternalServerError)
			return
		}

		data := struct {
			Candidates []string
			HTML       []string
			Files      []string
		}{Candidates: PageCandidates}

		for _, e := range entries {
			data.Files = append(data.Files, e.Name())
			if strings.HasSuffix(e.Name(), ".html") {
				data.HTML = append(data.HTML, e.Name())
			}
		}

		logger.Warn("no monitoring page found", slog.String("dir", dir))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_ = missingPageTemplate.Execute(w, data)
	}
}

func TestRoute(relay *Relay, port int, publicHost string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheme := "ws"
		if r.TLS != nil {
			scheme = "wss"
		}

		socketURL := fmt.Sprintf("%v://%v/", scheme, r.Host)
		if publicHost != "" {
			socketURL = fmt.Sprintf("%v://%v:%v/", scheme, publicHost, port)
		}

		data := struct {
			Port      int
			Time      string
			Snapshot  Snapshot
			SocketURL string
		}{
			Port:      port,
			Time:      time.Now().Format(time.DateTime),
			Snapshot:  relay.Snapshot(),
			SocketURL: socketURL,
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = diagnosticsTemplate.Execute(w, data)
	}
}

func StatusRoute(relay *Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(relay.Snapshot())
	}
}

func NotFoundRoute() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_ = notFoundTemplate.Execute(w, r.URL.Path)
	}
}
