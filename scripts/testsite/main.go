// Command testsite serves a small multi-page site for exercising stresstest
// locally. Pages reference stylesheets, scripts and images so the browser
// probe has subresources to fetch.
package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type siteOptions struct {
	port      int
	latency   time.Duration
	jitter    time.Duration
	failEvery int
}

func main() {
	var opts siteOptions
	cmd := &cobra.Command{
		Use:           "testsite",
		Short:         "Serve a local site for stresstest runs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.port <= 0 {
				return fmt.Errorf("port must be > 0")
			}
			logger := logrus.New()
			addr := fmt.Sprintf(":%d", opts.port)
			logger.WithFields(logrus.Fields{
				"addr":       addr,
				"latency":    opts.latency,
				"fail_every": opts.failEvery,
			}).Info("test site listening")
			srv := &http.Server{
				Addr:              addr,
				Handler:           newSite(opts, logger),
				ReadHeaderTimeout: 5 * time.Second,
			}
			return srv.ListenAndServe()
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 8080, "Listening port")
	cmd.Flags().DurationVar(&opts.latency, "latency", 0, "Base delay added to every page")
	cmd.Flags().DurationVar(&opts.jitter, "jitter", 0, "Random extra delay up to this value")
	cmd.Flags().IntVar(&opts.failEvery, "fail-every", 0, "Answer every Nth page request of /flaky with 503")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var pages = map[string]string{
	"/":        "Home",
	"/about":   "About",
	"/pricing": "Pricing",
	"/blog":    "Blog",
	"/flaky":   "Flaky",
}

func newSite(opts siteOptions, logger logrus.FieldLogger) http.Handler {
	var flakyHits atomic.Int64
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		title, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		delay(opts)
		if r.URL.Path == "/flaky" && opts.failEvery > 0 {
			if flakyHits.Add(1)%int64(opts.failEvery) == 0 {
				logger.WithField("path", r.URL.Path).Debug("injected failure")
				http.Error(w, "injected failure", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, renderPage(title))
	})

	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		ms, _ := strconv.Atoi(r.URL.Query().Get("ms"))
		if ms <= 0 {
			ms = 1500
		}
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, renderPage("Slow"))
	})

	mux.HandleFunc("/static/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/static/")
		switch {
		case strings.HasSuffix(name, ".css"):
			w.Header().Set("Content-Type", "text/css")
			fmt.Fprint(w, "body{font-family:sans-serif}")
		case strings.HasSuffix(name, ".js"):
			w.Header().Set("Content-Type", "application/javascript")
			fmt.Fprint(w, "console.log('ok');")
		case strings.HasSuffix(name, ".svg"):
			w.Header().Set("Content-Type", "image/svg+xml")
			fmt.Fprint(w, `<svg xmlns="http://www.w3.org/2000/svg" width="1" height="1"/>`)
		default:
			http.NotFound(w, r)
		}
	})

	return mux
}

func delay(opts siteOptions) {
	d := opts.latency
	if opts.jitter > 0 {
		d += time.Duration(rand.Int63n(int64(opts.jitter)))
	}
	if d > 0 {
		time.Sleep(d)
	}
}

func renderPage(title string) string {
	var links strings.Builder
	for path, name := range pages {
		fmt.Fprintf(&links, `<a href="%s">%s</a> `, path, name)
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<title>%s</title>
<link rel="stylesheet" href="/static/site.css">
<script src="/static/app.js"></script>
</head>
<body>
<h1>%s</h1>
<img src="/static/logo.svg" alt="logo">
<nav>%s</nav>
</body>
</html>
`, title, title, links.String())
}
