package iam

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog"
	"github.com/go-chi/traceid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	passportclaim "github.com/passportxyz/passport-claim"
	"github.com/passportxyz/passport-claim/o11y"
	"github.com/passportxyz/passport-claim/types"
)

// Server serves the issuance API: challenge and verify, versioned under
// /v0.0.0, plus health, status and metrics.
type Server struct {
	Service  *Service
	Log      zerolog.Logger
	Server   *http.Server
	Gatherer prometheus.Gatherer

	startTime time.Time
	running   int32
}

func NewServer(service *Service, log zerolog.Logger, gatherer prometheus.Gatherer) *Server {
	httpServer := &http.Server{
		ReadTimeout:       45 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       45 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		Service:  service,
		Log:      log,
		Server:   httpServer,
		Gatherer: gatherer,

		startTime: time.Now(),
	}
}

func (s *Server) Run(ctx context.Context, l net.Listener) error {
	if s.IsRunning() {
		return fmt.Errorf("iam: already running")
	}

	s.Log.Info().
		Str("op", "run").
		Str("ver", passportclaim.VERSION).
		Msg("-> iam: started issuance server")

	atomic.StoreInt32(&s.running, 1)
	defer atomic.StoreInt32(&s.running, 0)

	s.Server.Handler = s.Handler()

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	err := s.Server.Serve(l)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop(timeoutCtx context.Context) {
	if !s.IsRunning() || s.IsStopping() {
		return
	}
	atomic.StoreInt32(&s.running, 2)

	s.Log.Info().Str("op", "stop").Msg("-> iam: stopping..")
	s.Server.Shutdown(timeoutCtx)
	s.Log.Info().Str("op", "stop").Msg("-> iam: stopped.")
}

func (s *Server) IsRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

func (s *Server) IsStopping() bool {
	return atomic.LoadInt32(&s.running) == 2
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)

	// Propagate TraceId
	r.Use(traceid.Middleware)

	// HTTP request logger
	r.Use(httplog.RequestLogger(s.Log, []string{"/", "/ping", "/health", "/status", "/favicon.ico"}))

	// The challenge/verify exchange is driven from browser apps on
	// other origins.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "TraceId"},
		MaxAge:         600,
	}))

	// Timeout any request after 28 seconds as Cloudflare has a 30 second limit anyways.
	r.Use(middleware.Timeout(28 * time.Second))

	// Observability middleware
	r.Use(o11y.Middleware())

	// Healthcheck
	r.Use(middleware.PageRoute("/health", http.HandlerFunc(s.healthHandler)))
	r.Use(middleware.PageRoute("/status", http.HandlerFunc(s.statusHandler)))

	r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v"+APIVersion, func(r chi.Router) {
		r.Post("/challenge", s.challengeHandler)
		r.Post("/verify", s.verifyHandler)
	})

	return r
}

func (s *Server) challengeHandler(w http.ResponseWriter, r *http.Request) {
	var body types.ChallengeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		types.RespondWithError(w, types.NewAPIError(http.StatusBadRequest, "invalid request body"))
		return
	}

	credential, err := s.Service.Challenge(r.Context(), body.Payload)
	if err != nil {
		types.RespondWithError(w, err)
		return
	}
	respondJSON(w, types.ChallengeResponse{Credential: credential})
}

func (s *Server) verifyHandler(w http.ResponseWriter, r *http.Request) {
	var body types.VerifyRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		types.RespondWithError(w, types.NewAPIError(http.StatusBadRequest, "invalid request body"))
		return
	}

	resp, err := s.Service.Verify(r.Context(), body)
	if err != nil {
		types.RespondWithError(w, err)
		return
	}
	respondJSON(w, resp)
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	status := map[string]interface{}{
		"startTime": s.startTime,
		"uptime":    uint64(time.Now().UTC().Sub(s.startTime).Seconds()),
		"ver":       passportclaim.VERSION,
		"issuer":    s.Service.signer.DID(),
		"providers": s.Service.verifiers.IDs(),
	}
	respondJSON(w, status)
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
