package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog"
	"github.com/go-chi/traceid"
	"github.com/goware/cachestore/memlru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	passportclaim "github.com/passportxyz/passport-claim"
	"github.com/passportxyz/passport-claim/claim"
	"github.com/passportxyz/passport-claim/config"
	"github.com/passportxyz/passport-claim/data"
	"github.com/passportxyz/passport-claim/identity"
	"github.com/passportxyz/passport-claim/o11y"
	"github.com/passportxyz/passport-claim/platforms"
	"github.com/passportxyz/passport-claim/platforms/brightid"
	"github.com/passportxyz/passport-claim/platforms/evm"
	"github.com/passportxyz/passport-claim/platforms/idena"
	"github.com/passportxyz/passport-claim/platforms/oauth"
	"github.com/passportxyz/passport-claim/rendezvous"
	"github.com/passportxyz/passport-claim/rpc/awscreds"
	"github.com/passportxyz/passport-claim/types"
)

type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
	Get(string) (*http.Response, error)
}

// RPC is the claim service: it owns the redirect rendezvous broker, the
// platform registry and the claimer, and serves the endpoints external
// flows (OAuth redirects, the Idena app) call back into.
type RPC struct {
	Config     *config.Config
	Log        zerolog.Logger
	Server     *http.Server
	HTTPClient HTTPClient
	Broker     *rendezvous.Broker
	Platforms  *platforms.Registry
	Idena      *idena.Platform
	Claimer    *claim.Claimer
	Stamps     *data.StampTable
	Metrics    *o11y.ClaimMetrics
	Gatherer   prometheus.Gatherer

	startTime time.Time
	running   int32
	claiming  int32
}

func New(cfg *config.Config, transport http.RoundTripper) (*RPC, error) {
	client := &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
	wrappedClient := o11y.WrapClient(client)

	log := httplog.NewLogger("passport-claim", httplog.Options{
		LogLevel: zerolog.LevelDebugValue,
	})

	options := []func(options *awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(wrappedClient),
	}
	if cfg.Endpoints.MetadataServer != "" {
		options = append(options, awsconfig.WithCredentialsProvider(
			awscreds.NewProvider(wrappedClient, cfg.Endpoints.MetadataServer)))
	}
	if cfg.Endpoints.AWSEndpoint != "" {
		options = append(options, awsconfig.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{URL: cfg.Endpoints.AWSEndpoint}, nil
			}),
		), awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", "test")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), options...)
	if err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		ReadTimeout:       45 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       45 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	broker := rendezvous.NewBroker(log, cfg.Claim.Timeout())
	cacheBackend := memlru.Backend(1024)

	registry := platforms.NewRegistry()
	for _, oc := range cfg.Platforms.OAuth {
		p, err := oauth.New(oauth.Config{
			PlatformID: types.PlatformID(oc.Platform),
			Path:       oc.Path,
			AuthURL:    oc.AuthURL,
			ClientID:   oc.ClientID,
			Scope:      oc.Scope,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("oauth platform %q: %w", oc.Platform, err)
		}
		if err := registry.Register(o11y.NewTracedPlatform(p)); err != nil {
			return nil, err
		}
	}
	if cfg.Platforms.BrightID.SponsorURL != "" {
		p := brightid.New(cfg.Platforms.BrightID.SponsorURL, wrappedClient, log)
		if err := registry.Register(o11y.NewTracedPlatform(p)); err != nil {
			return nil, err
		}
	}
	idenaPlatform, err := idena.New(cacheBackend, cfg.Platforms.Idena.APIURL, wrappedClient, log)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(o11y.NewTracedPlatform(idenaPlatform)); err != nil {
		return nil, err
	}
	for _, id := range cfg.Platforms.EVM {
		if err := registry.Register(evm.New(types.PlatformID(id))); err != nil {
			return nil, err
		}
	}

	promRegistry := prometheus.NewRegistry()
	metrics := o11y.NewClaimMetrics(promRegistry)

	signer, err := identity.NewKeySigner(cfg.Claim.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("claim signing key: %w", err)
	}

	var stampTable *data.StampTable
	var stamps claim.StampStore
	if cfg.Database.StampsTable != "" {
		db := dynamodb.NewFromConfig(awsCfg)
		stampTable = data.NewStampTable(db, cfg.Database.StampsTable, data.StampIndices{
			ByProvider: cfg.Database.ByProviderIdx,
		})
		stamps = o11y.NewTracedStamps("dynamodb", stampTable.ForAddress(signer.Address()))
	} else {
		// Local mode runs without a credential store backend.
		stamps = o11y.NewTracedStamps("memory", data.NewMemoryStamps())
	}

	claimer, err := claim.NewClaimer(claim.Config{
		Platforms: registry,
		Issuance:  identity.NewClient(wrappedClient, log),
		Stamps:    stamps,
		Sponsor:   claim.NewSponsorNotifier(nil, log),
		Signer:    signer,
		Redirects: func(ctx context.Context, path string) (string, string, error) {
			redirect, err := broker.Wait(ctx, path)
			if err != nil {
				return "", "", err
			}
			return redirect.Code, redirect.State, nil
		},
		IssuerURL:     cfg.Issuer.URL,
		CallbackURL:   cfg.Claim.CallbackURL,
		SignatureType: cfg.Claim.SignatureType,
		Metrics:       metrics,
	}, log)
	if err != nil {
		return nil, err
	}

	s := &RPC{
		Config:     cfg,
		Log:        log,
		Server:     httpServer,
		HTTPClient: wrappedClient,
		Broker:     broker,
		Platforms:  registry,
		Idena:      idenaPlatform,
		Claimer:    claimer,
		Stamps:     stampTable,
		Metrics:    metrics,
		Gatherer:   promRegistry,

		startTime: time.Now(),
	}
	return s, nil
}

func (s *RPC) Run(ctx context.Context, l net.Listener) error {
	if s.IsRunning() {
		return fmt.Errorf("rpc: already running")
	}

	s.Log.Info().
		Str("op", "run").
		Str("ver", passportclaim.VERSION).
		Msg("-> rpc: started claim service")

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

func (s *RPC) Stop(timeoutCtx context.Context) {
	if !s.IsRunning() || s.IsStopping() {
		return
	}
	atomic.StoreInt32(&s.running, 2)

	s.Log.Info().Str("op", "stop").Msg("-> rpc: stopping..")
	s.Server.Shutdown(timeoutCtx)
	s.Log.Info().Str("op", "stop").Msg("-> rpc: stopped.")
}

func (s *RPC) IsRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

func (s *RPC) IsStopping() bool {
	return atomic.LoadInt32(&s.running) == 2
}

func (s *RPC) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)

	// Propagate TraceId
	r.Use(traceid.Middleware)

	// HTTP request logger
	r.Use(httplog.RequestLogger(s.Log, []string{"/", "/ping", "/health", "/status", "/favicon.ico"}))

	// OAuth redirects and the Idena app arrive from other origins.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "TraceId"},
		MaxAge:         600,
	}))

	// Timeout any request after 28 seconds as Cloudflare has a 30 second
	// limit anyways. Claim runs detach from the request, so redirect
	// waits are unaffected.
	r.Use(middleware.Timeout(28 * time.Second))

	// Observability middleware
	r.Use(o11y.Middleware())

	// Healthcheck
	r.Use(middleware.PageRoute("/health", http.HandlerFunc(s.healthHandler)))
	r.Use(middleware.PageRoute("/status", http.HandlerFunc(s.statusHandler)))

	r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))

	r.Get("/oauth/callback", s.oauthCallbackHandler)

	r.Route("/claim", func(r chi.Router) {
		r.Post("/", s.claimHandler)
		r.Get("/status", s.claimStatusHandler)
	})

	r.Route("/idena", func(r chi.Router) {
		r.Post("/start-session", s.idenaStartSessionHandler)
		r.Post("/authenticate", s.idenaAuthenticateHandler)
	})

	return r
}

func (s *RPC) statusHandler(w http.ResponseWriter, _ *http.Request) {
	status := map[string]interface{}{
		"startTime": s.startTime,
		"uptime":    uint64(time.Now().UTC().Sub(s.startTime).Seconds()),
		"ver":       passportclaim.VERSION,
		"platforms": s.Platforms.IDs(),
		"claim":     s.Claimer.Status(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(status)
}

func (s *RPC) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
