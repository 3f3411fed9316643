// Package server exposes a pipeline over HTTP: the snapshot as JSON, a
// websocket snapshot stream, start and stop controls and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/noriah/brainwave"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Controller is the part of a pipeline the server drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Snapshot() brainwave.Snapshot
}

// Handler serves the HTTP routes.
type Handler struct {
	ctx  context.Context
	ctrl Controller
	log  *zap.Logger
	mux  *http.ServeMux
}

// NewHandler registers all routes. Sessions started over HTTP live until ctx
// ends. hub and gatherer may be nil, which leaves their routes out.
func NewHandler(ctx context.Context, ctrl Controller, hub *Hub, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	h := &Handler{ctx: ctx, ctrl: ctrl, log: logger, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/snapshot", h.snapshot)
	h.mux.HandleFunc("/api/start", h.start)
	h.mux.HandleFunc("/api/stop", h.stop)

	if hub != nil {
		h.mux.Handle("/ws/stream", hub)
	}

	if gatherer != nil {
		h.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// snapshot returns GET /api/snapshot. ?windows=1 adds the channel windows.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	windows := r.URL.Query().Get("windows") == "1"
	jsonResp(w, http.StatusOK, BuildSnapshot(h.ctrl.Snapshot(), windows))
}

// start handles POST /api/start.
func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	if err := h.ctrl.Start(h.ctx); err != nil {
		h.log.Warn("[server] start failed", zap.Error(err))

		code := http.StatusInternalServerError
		switch brainwave.ErrorKind(err) {
		case "stream_not_found":
			code = http.StatusServiceUnavailable
		case "worker_join_timeout", "closed":
			code = http.StatusConflict
		}

		jsonErr(w, code, err.Error(), err)
		return
	}

	jsonResp(w, http.StatusOK, h.state())
}

// stop handles POST /api/stop.
func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	if err := h.ctrl.Stop(); err != nil {
		h.log.Error("[server] stop failed", zap.Error(err))
		jsonErr(w, http.StatusInternalServerError, err.Error(), err)
		return
	}

	jsonResp(w, http.StatusOK, h.state())
}

func (h *Handler) state() StateResponse {
	s := h.ctrl.Snapshot()

	resp := StateResponse{
		State:   s.State,
		Session: s.Session,
	}

	if s.LastError != nil {
		resp.Error = s.LastError.Error()
		resp.ErrorKind = brainwave.ErrorKind(s.LastError)
	}

	return resp
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string, err error) {
	jsonResp(w, code, errorResponse{Error: msg, Kind: brainwave.ErrorKind(err)})
}
