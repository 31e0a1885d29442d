package console

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/mattbaird/ontology-sub000/internal/logger"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

const maxBody = 4 << 20

type ctxKey struct{}

// RequestID returns the ID assigned to the HTTP request in ctx
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// requestIDs takes the caller's request ID or assigns a UUID
func requestIDs(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// Health reports the active graph
type Health func() map[string]any

// Router mounts the console on a chi router:
//
//	POST /v1/{op}    request body without "op", e.g. {"type": "Money", "value": {...}}
//	GET  /healthz
//	GET  /metrics    when metrics is non-nil
func (h *Handler) Router(metrics http.Handler, health Health) chi.Router {
	r := chi.NewRouter()
	r.Use(requestIDs)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	r.Post("/v1/{op}", h.serveOp)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if health != nil {
			for k, v := range health() {
				body[k] = v
			}
		}
		writeJSON(w, http.StatusOK, body)
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Debug("http request",
			logger.F("request_id", RequestID(r.Context())),
			logger.F("method", r.Method),
			logger.F("path", r.URL.Path),
			logger.F("status", ww.Status()),
			logger.F("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (h *Handler) serveOp(w http.ResponseWriter, r *http.Request) {
	var req Request
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err == nil && len(body) > 0 {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{
			ID:    RequestID(r.Context()),
			Error: &ErrorBody{Kind: ErrInvalidRequest, Message: "malformed request: " + err.Error()},
		})
		return
	}

	req.Op = Op(chi.URLParam(r, "op"))
	if req.ID == "" {
		req.ID = RequestID(r.Context())
	}
	resp := h.Handle(r.Context(), req)
	writeJSON(w, statusOf(resp), resp)
}

func statusOf(resp Response) int {
	if resp.Error == nil {
		return http.StatusOK
	}
	switch resp.Error.Kind {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict, ErrDrift, ErrLoad:
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
