package mcp

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	httpRateLimit  = 100
	httpRateWindow = time.Minute
)

// HTTPServer exposes the dispatcher at POST /mcp, with /healthz and
// /metrics alongside.
type HTTPServer struct {
	dispatcher *Dispatcher
	log        zerolog.Logger
}

func NewHTTPServer(d *Dispatcher, logger zerolog.Logger) *HTTPServer {
	return &HTTPServer{
		dispatcher: d,
		log:        logger.With().Str("component", "mcp.http").Logger(),
	}
}

// Routes assembles the router and middleware stack.
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(httprate.LimitByIP(httpRateLimit, httpRateWindow))

	r.Post("/mcp", s.handleCall)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// ListenAndServe blocks until the listener fails or ctx is cancelled, then
// drains in-flight requests.
func (s *HTTPServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http transport listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// handleCall decodes one CallRequest body and answers with a pretty-printed
// envelope. Tool failures stay HTTP 200; only an unreadable request body is
// a transport-level 400.
func (s *HTTPServer) handleCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeEnvelope(w, http.StatusBadRequest, failure(Errorf(CodeInvalidArgument, "bad request body: %v", err)))
		return
	}
	if req.ToolName == "" {
		s.writeEnvelope(w, http.StatusBadRequest, failure(Errorf(CodeInvalidArgument, "tool_name is required")))
		return
	}

	env := s.dispatcher.Call(r.Context(), req.ToolName, req.Arguments)
	s.writeEnvelope(w, http.StatusOK, env)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeEnvelope(w, http.StatusOK, map[string]any{"status": "ok", "success": true})
}

func (s *HTTPServer) writeEnvelope(w http.ResponseWriter, status int, env map[string]any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(Render(env, true)); err != nil {
		s.log.Warn().Err(err).Msg("write response")
	}
}
