// Package httpapi exposes still-image decoding and live capture over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Skryldev/qrscan"
	"github.com/Skryldev/qrscan/capture"
	"github.com/Skryldev/qrscan/config"
	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
	"github.com/Skryldev/qrscan/utils"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10

	uploadField = "image"
)

// Server serves the decode API and, when a capture controller is attached,
// the live-scan websocket.
type Server struct {
	scanner  *qrscan.Scanner
	cfg      config.HTTPConfig
	logger   core.Logger
	upgrader websocket.Upgrader

	ctrl    *capture.Controller
	newSink func() core.Sink

	mu      sync.Mutex
	clients int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger attaches a structured logger.
func WithLogger(l core.Logger) Option { return func(s *Server) { s.logger = l } }

// WithCapture enables /v1/live.  newSink returns the preview surface for
// each new session.
func WithCapture(ctrl *capture.Controller, newSink func() core.Sink) Option {
	return func(s *Server) {
		s.ctrl = ctrl
		s.newSink = newSink
	}
}

// New returns a Server decoding with scanner.
func New(scanner *qrscan.Scanner, cfg config.HTTPConfig, opts ...Option) *Server {
	s := &Server{
		scanner: scanner,
		cfg:     cfg,
		logger:  nopLogger{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router returns the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestID)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/v1/decode", s.handleDecode).Methods(http.MethodPost)
	r.HandleFunc("/v1/live", s.handleLive).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		if s.ctrl != nil {
			s.ctrl.Close()
		}
	}()

	s.logger.Info("http.listen", "addr", s.cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, "OK")
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	clients := s.clients
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"scanner":      s.scanner.Stats(),
		"live_clients": clients,
	})
}

// ── decode ────────────────────────────────────────────────────────────────────

// DecodeResponse is the body of a successful /v1/decode call.
type DecodeResponse struct {
	Text          string                 `json:"text"`
	Points        []core.Point           `json:"points,omitempty"`
	Strategy      string                 `json:"strategy"`
	StrategyIndex int                    `json:"strategy_index"`
	Tried         []string               `json:"tried"`
	Width         int                    `json:"width"`
	Height        int                    `json:"height"`
	Format        core.Format            `json:"format"`
	DurationMs    int64                  `json:"duration_ms"`
	Validation    *core.ValidationResult `json:"validation,omitempty"`
}

// ErrorResponse is the body of every failed call.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Detail  string   `json:"detail,omitempty"`
	Tried   []string `json:"tried,omitempty"`
}

// handleDecode accepts either a multipart upload (field "image") or a raw
// image body.  ?validate=true hands a found payload to the validator.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}

	src, closeFn, err := sourceFrom(r)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	defer closeFn()

	validate, _ := strconv.ParseBool(r.URL.Query().Get("validate"))
	var out *core.Outcome
	if validate {
		out, err = s.scanner.Submit(r.Context(), src)
	} else {
		var res *core.ProcessingResult
		res, err = s.scanner.Process(r.Context(), src)
		if res != nil {
			out = &core.Outcome{ProcessingResult: res}
		}
	}
	if err != nil {
		s.writeError(w, err, nil)
		return
	}

	attempt := out.Attempt
	if !attempt.Found() {
		s.writeError(w, apperrors.New(apperrors.KindNoCodeFound, "http.decode", apperrors.ErrNoCodeFound), attempt.Tried)
		return
	}
	writeJSON(w, http.StatusOK, DecodeResponse{
		Text:          attempt.Payload.Text,
		Points:        attempt.Payload.Points,
		Strategy:      attempt.Strategy,
		StrategyIndex: attempt.StrategyIndex,
		Tried:         attempt.Tried,
		Width:         out.Meta.Width,
		Height:        out.Meta.Height,
		Format:        out.Meta.Format,
		DurationMs:    out.ProcessingTime.Milliseconds(),
		Validation:    out.Validation,
	})
}

func sourceFrom(r *http.Request) (core.Source, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return core.Source{
			Reader:      r.Body,
			ContentType: r.Header.Get("Content-Type"),
			Size:        r.ContentLength,
		}, func() {}, nil
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return core.Source{}, nil, apperrors.New(apperrors.KindDecode, "http.upload", err)
	}
	return core.Source{
		Reader:      file,
		ContentType: header.Header.Get("Content-Type"),
		Name:        header.Filename,
		Size:        header.Size,
	}, func() { _ = file.Close() }, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error, tried []string) {
	status := statusFor(err)
	kind := apperrors.KindOf(err)
	if kind == "" {
		kind = apperrors.KindPipeline
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("http.error", "kind", string(kind), "error", err.Error())
	} else {
		s.logger.Debug("http.reject", "kind", string(kind), "error", err.Error())
	}
	writeJSON(w, status, ErrorResponse{
		Error:   string(kind),
		Message: kind.UserMessage(),
		Detail:  err.Error(),
		Tried:   tried,
	})
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig), errors.Is(err, utils.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, apperrors.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindNoCodeFound:
		return http.StatusUnprocessableEntity
	case apperrors.KindDecode:
		return http.StatusBadRequest
	case apperrors.KindValidation, apperrors.KindTransient:
		return http.StatusBadGateway
	case apperrors.KindSessionAlreadyActive:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
