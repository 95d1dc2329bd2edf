package transport

import (
	"context"
	"encoding/json"
	stdErrors "errors" // Alias for standard errors package
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"hybrid-filesystem/internal/errors"
	"hybrid-filesystem/internal/models"
	"hybrid-filesystem/internal/service"
)

const (
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 60 * time.Second
	// Request bodies carry whole file contents for write_file and friends.
	defaultMaxRequestSizeMB = 50

	requestIDHeader = "X-Request-ID"
)

// HTTPHandler serves the tool catalog as a small REST surface.
type HTTPHandler struct {
	dispatcher   *service.Dispatcher
	logger       zerolog.Logger
	limiter      *rate.Limiter
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxReqSize   int64
	Server       *http.Server
}

// HTTPOption configures an HTTPHandler.
type HTTPOption func(*HTTPHandler)

// WithHTTPLogger sets the access and error logger.
func WithHTTPLogger(l zerolog.Logger) HTTPOption {
	return func(h *HTTPHandler) { h.logger = l }
}

// WithRateLimit applies a token bucket of perSecond requests with the given
// burst across all clients. perSecond <= 0 disables limiting.
func WithRateLimit(perSecond float64, burst int) HTTPOption {
	return func(h *HTTPHandler) {
		if perSecond <= 0 {
			h.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMaxRequestBytes overrides the request body cap.
func WithMaxRequestBytes(n int64) HTTPOption {
	return func(h *HTTPHandler) { h.maxReqSize = n }
}

// WithTimeouts sets the server read and write timeouts. Zero keeps the default.
func WithTimeouts(read, write time.Duration) HTTPOption {
	return func(h *HTTPHandler) {
		if read > 0 {
			h.readTimeout = read
		}
		if write > 0 {
			h.writeTimeout = write
		}
	}
}

// NewHTTPHandler creates a handler listening on addr once started.
func NewHTTPHandler(d *service.Dispatcher, addr string, opts ...HTTPOption) *HTTPHandler {
	h := &HTTPHandler{
		dispatcher:   d,
		logger:       zerolog.Nop(),
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		maxReqSize:   int64(defaultMaxRequestSizeMB) * 1024 * 1024,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.Server = &http.Server{
		Addr:         addr,
		Handler:      h.Handler(),
		ReadTimeout:  h.readTimeout,
		WriteTimeout: h.writeTimeout,
	}
	return h
}

// RegisterRoutes sets up the HTTP routes for the handler.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealthCheck)
	mux.HandleFunc("GET /tools", h.handleListTools)
	mux.HandleFunc("GET /list_allowed_directories", h.handleAllowedDirectories)
	mux.HandleFunc("POST /tools/{name}", h.handleCallTool)
	if rec := h.dispatcher.Metrics(); rec != nil {
		mux.Handle("GET /metrics", rec.Handler())
	}
}

// Handler returns the routed mux wrapped in request id, rate limit and
// access log middleware.
func (h *HTTPHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h.withRequestID(h.withAccessLog(h.withRateLimit(mux)))
}

// ListenAndServe blocks until the server stops. A graceful Shutdown is not an error.
func (h *HTTPHandler) ListenAndServe() error {
	h.logger.Info().Str("addr", h.Server.Addr).Dur("read_timeout", h.readTimeout).
		Dur("write_timeout", h.writeTimeout).Msg("HTTP server starting")
	err := h.Server.ListenAndServe()
	if err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	h.logger.Info().Str("addr", h.Server.Addr).Msg("HTTP server shut down")
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (h *HTTPHandler) Shutdown(ctx context.Context) error {
	return h.Server.Shutdown(ctx)
}

// writeJSONResponse is a helper to write JSON data to the response.
func (h *HTTPHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			h.logger.Error().Err(err).Msg("Error encoding JSON response")
		}
	}
}

// writeJSONErrorResponse is a helper to write a JSON error response.
func (h *HTTPHandler) writeJSONErrorResponse(w http.ResponseWriter, httpStatusCode int, errorDetail *models.ErrorDetail) {
	if errorDetail == nil {
		errorDetail = errors.ToErrorDetail(stdErrors.New("error details were lost"), "")
		httpStatusCode = http.StatusInternalServerError
	}
	h.writeJSONResponse(w, httpStatusCode, errors.ToErrorResponse(errorDetail))
}

func (h *HTTPHandler) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) handleListTools(w http.ResponseWriter, _ *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, models.ToolsListResponse{Tools: h.dispatcher.Catalog().Definitions()})
}

func (h *HTTPHandler) handleAllowedDirectories(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, "list_allowed_directories", map[string]interface{}{})
}

func (h *HTTPHandler) handleCallTool(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		errDetail := errors.NewInvalidRequestError("Invalid Content-Type header. Must be 'application/json' or 'application/json; charset=utf-8'.")
		h.writeJSONErrorResponse(w, http.StatusUnsupportedMediaType, errDetail)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxReqSize)
	defer r.Body.Close()

	args := map[string]interface{}{}
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !stdErrors.Is(err, io.EOF) {
		status, errDetail := decodeFailure(err, h.maxReqSize)
		h.writeJSONErrorResponse(w, status, errDetail)
		return
	}
	h.dispatch(w, r, r.PathValue("name"), args)
}

func (h *HTTPHandler) dispatch(w http.ResponseWriter, r *http.Request, tool string, args map[string]interface{}) {
	res, err := h.dispatcher.Call(r.Context(), tool, args)
	if err != nil {
		errDetail := errors.ToErrorDetail(err, tool)
		h.writeJSONErrorResponse(w, errors.MapErrorToHTTPStatus(errDetail.Code, errDetail), errDetail)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.ToolCallResponse{Tool: tool, Result: res})
}

func decodeFailure(err error, limit int64) (int, *models.ErrorDetail) {
	var tooLarge *http.MaxBytesError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case stdErrors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge,
			errors.NewInvalidRequestError(fmt.Sprintf("Request body exceeds maximum size of %d bytes.", limit))
	case stdErrors.As(err, &syntaxErr):
		return http.StatusBadRequest,
			errors.NewParseError(fmt.Sprintf("Invalid JSON syntax at offset %d: %s", syntaxErr.Offset, syntaxErr.Error()))
	case stdErrors.As(err, &typeErr):
		return http.StatusBadRequest,
			errors.NewParseError(fmt.Sprintf("Request body must be a JSON object of tool arguments, got %s.", typeErr.Value))
	default:
		return http.StatusBadRequest, errors.NewParseError(fmt.Sprintf("Failed to decode request body: %v", err))
	}
}

func (h *HTTPHandler) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (h *HTTPHandler) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			h.writeJSONErrorResponse(w, http.StatusTooManyRequests,
				errors.NewInvalidRequestError("Rate limit exceeded, retry later."))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (h *HTTPHandler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		ev := h.logger.Info()
		if rec.status >= http.StatusInternalServerError {
			ev = h.logger.Warn()
		}
		ev.Str("request_id", r.Header.Get(requestIDHeader)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int("bytes", rec.bytes).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
