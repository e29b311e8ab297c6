// Package server wires the gateway handlers into one HTTP router.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"changefeed-gateway/pkg/auth"
	"changefeed-gateway/pkg/metrics"
	"changefeed-gateway/pkg/websocket"
)

type Router struct {
	Gatekeeper http.Handler
	Diff       http.Handler
	Registry   *websocket.Registry
	Validator  auth.Validator
	Metrics    *metrics.Metrics
	Logger     *logrus.Logger
}

func (rt Router) Handler() http.Handler {
	r := mux.NewRouter()

	// The gatekeeper answers non-upgrade requests itself.
	r.Handle("/ws", rt.Gatekeeper)
	r.Handle("/diff", rt.Diff).Methods(http.MethodPost)
	r.Handle("/status", auth.Middleware(rt.Validator)(http.HandlerFunc(rt.status))).Methods(http.MethodGet)
	if rt.Metrics != nil {
		r.Handle("/metrics", rt.Metrics.Handler()).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	return r
}

func (rt Router) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.Registry.Status(), rt.Logger)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"}, nil)
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"}, nil)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}, logger *logrus.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && logger != nil {
		logger.WithError(err).Warn("failed to write response")
	}
}
