package websocket

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"changefeed-gateway/pkg/auth"
	"changefeed-gateway/pkg/metrics"
)

type RateLimiter interface {
	Allow(ctx context.Context, address string) bool
}

// Handler is the upgrade gatekeeper: rate limit, then credential, then
// handshake and registration. Refused attempts never reach the handshake.
type Handler struct {
	registry *Registry
	limiter  RateLimiter
	auth     auth.Validator
	upgrader websocket.Upgrader
	cfg      Config
	logger   *logrus.Logger
	metrics  *metrics.Metrics
}

func NewHandler(
	registry *Registry,
	limiter RateLimiter,
	validator auth.Validator,
	cfg Config,
	logger *logrus.Logger,
	m *metrics.Metrics,
) *Handler {
	return &Handler{
		registry: registry,
		limiter:  limiter,
		auth:     validator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Admission is decided by the signed credential, not the origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

// Admit runs the admission gates for r and returns the derived source
// address. A refusal is an *AdmissionError.
func (h *Handler) Admit(r *http.Request) (string, error) {
	address := ClientAddress(r)

	if !h.limiter.Allow(r.Context(), address) {
		return address, &AdmissionError{Reason: ReasonRateLimited, Address: address}
	}

	cred := auth.CredentialFromRequest(r)
	if !h.auth.Validate(cred.Token, cred.Timestamp) {
		return address, &AdmissionError{Reason: ReasonUnauthorized, Address: address}
	}

	return address, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		w.Header().Set("Upgrade", "websocket")
		http.Error(w, http.StatusText(http.StatusUpgradeRequired), http.StatusUpgradeRequired)
		return
	}

	address, err := h.Admit(r)
	if err != nil {
		h.reject(w, err)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		h.logger.WithError(err).WithField("address", address).Warn("websocket handshake failed")
		return
	}

	conn := newConn(ws, address, h.cfg)
	h.registry.Add(conn)
	h.metrics.Admission(metrics.OutcomeAdmitted)
	h.logger.WithFields(logrus.Fields{
		"conn_id": conn.ID(),
		"address": address,
	}).Info("connection admitted")

	go h.watch(conn)
	conn.start()
}

// watch removes conn from the registry once it terminates, logging the
// cause when it failed.
func (h *Handler) watch(conn *Conn) {
	<-conn.Done()

	entry := h.logger.WithFields(logrus.Fields{
		"conn_id": conn.ID(),
		"address": conn.Address(),
	})
	if err := conn.Err(); err != nil {
		entry.WithError(err).Warn("connection error")
	} else {
		entry.Info("connection closed")
	}

	h.registry.Remove(conn)
}

func (h *Handler) reject(w http.ResponseWriter, err error) {
	var admissionErr *AdmissionError
	if !errors.As(err, &admissionErr) {
		h.logger.WithError(err).Error("admission failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.metrics.Admission(string(admissionErr.Reason))
	h.logger.WithFields(logrus.Fields{
		"address": admissionErr.Address,
		"reason":  admissionErr.Reason,
	}).Warn("connection refused")

	code := admissionErr.StatusCode()
	w.Header().Set("Connection", "close")
	http.Error(w, http.StatusText(code), code)
}
