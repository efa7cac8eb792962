package main

import (
	"fmt"
	"html/template"
	"net/http"

	"codeberg.org/mutker/ecobee-exporter/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var landingPage = template.Must(template.New("landing").Parse(`<html>
<head><title>Ecobee Exporter</title></head>
<body>
<h1>Ecobee Exporter</h1>
<p><a href="{{.}}">Metrics</a></p>
</body>
</html>
`))

// promLogger routes promhttp errors into the application log.
type promLogger struct{}

func (promLogger) Println(v ...interface{}) {
	logger.Error().Str("component", "promhttp").Msg(fmt.Sprint(v...))
}

func newHandler(metricsPath string, c prometheus.Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c,
	)

	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:      promLogger{},
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := landingPage.Execute(w, metricsPath); err != nil {
			logger.Error().Err(err).Msg("failed to render landing page")
		}
	})

	return mux
}
