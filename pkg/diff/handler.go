package diff

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fastjson"

	"changefeed-gateway/pkg/metrics"
)

const DefaultMaxBodyBytes = 1 << 20

// RequestError is a malformed diff request. It is reported to the caller
// with a 400 status.
type RequestError struct {
	Msg string
}

func (e *RequestError) Error() string { return e.Msg }

type Handler struct {
	maxBodyBytes int64
	logger       *logrus.Logger
	metrics      *metrics.Metrics
}

func NewHandler(maxBodyBytes int64, logger *logrus.Logger, m *metrics.Metrics) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
		metrics:      m,
	}
}

// ServeHTTP handles POST /diff?type=<format> with body {"old": ..., "new": ...}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	format := ParseFormat(r.URL.Query().Get("type"))

	entries, err := h.decode(w, r)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			writeError(w, http.StatusBadRequest, reqErr.Msg)
			return
		}
		h.logger.WithError(err).Error("failed to read diff request")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out, err := Render(entries, format)
	if err != nil {
		h.logger.WithError(err).Error("failed to render diff")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.metrics.DiffRequest(string(format))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, out)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) ([]Entry, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &RequestError{Msg: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)}
		}
		return nil, err
	}

	var p fastjson.Parser
	doc, err := p.ParseBytes(body)
	if err != nil {
		return nil, &RequestError{Msg: "request body is not valid JSON"}
	}
	if doc.Type() != fastjson.TypeObject {
		return nil, &RequestError{Msg: `request body must be an object with "old" and "new"`}
	}

	oldDoc, newDoc := doc.Get("old"), doc.Get("new")
	if oldDoc == nil || newDoc == nil {
		return nil, &RequestError{Msg: `request body must contain "old" and "new"`}
	}
	if !structured(oldDoc) || !structured(newDoc) {
		return nil, &RequestError{Msg: `"old" and "new" must be JSON objects or arrays`}
	}
	return Compare(oldDoc, newDoc), nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
