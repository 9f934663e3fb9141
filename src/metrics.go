package main

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// счётчики сервера, отдаются по /metrics
type serverMetrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	// открытые консоли
	replSessions prometheus.Gauge
	// переданные файлы, direction = upload или download
	files *prometheus.CounterVec
}

func newServerMetrics() *serverMetrics {
	m := &serverMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "board_manager",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		replSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "board_manager",
			Name:      "repl_sessions",
			Help:      "Open REPL sessions.",
		}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "board_manager",
			Name:      "files_total",
			Help:      "Files transferred to or from boards.",
		}, []string{"direction"}),
	}
	m.registry.MustRegister(m.requests, m.replSessions, m.files)
	return m
}

func (m *serverMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// middleware для gorilla/mux, считает запросы по шаблону маршрута
func (m *serverMetrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := "unknown"
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}
		m.requests.WithLabelValues(route, strconv.Itoa(recorder.code)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// веб-сокет перехватывает соединение у ResponseWriter
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.code = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}
