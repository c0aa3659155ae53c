// Package api exposes the exchange over REST and pushes committed events to
// WebSocket subscribers.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/spotex/pkg/app/core/transaction"
	"github.com/uhyunpark/spotex/pkg/app/spot"
	"github.com/uhyunpark/spotex/pkg/crypto"
)

// AuthMode selects how trading endpoints learn who the caller is
type AuthMode string

const (
	// AuthSignature requires an EIP-712 signed envelope as the request body
	AuthSignature AuthMode = "signature"
	// AuthHeader trusts the X-Owner header. Only for deployments behind an
	// authenticating gateway.
	AuthHeader AuthMode = "header"
)

// Header names
const (
	HeaderOwner  = "X-Owner"
	HeaderAPIKey = "X-Api-Key"
)

// Config configures the REST surface
type Config struct {
	CORSOrigins   []string
	FundingAPIKey string // empty disables the funding endpoints
	AuthMode      AuthMode
	ChainID       int64
}

// Server handles REST API and WebSocket connections
type Server struct {
	app      *spot.App
	router   *mux.Router
	hub      *Hub
	verifier *transaction.Verifier
	validate *validator.Validate
	cfg      Config
	log      *zap.SugaredLogger
}

// NewServer creates a new API server. hub must be the same hub the app
// publishes to.
func NewServer(app *spot.App, hub *Hub, cfg Config, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.AuthMode == "" {
		cfg.AuthMode = AuthSignature
	}

	s := &Server{
		app:      app,
		router:   mux.NewRouter(),
		hub:      hub,
		verifier: transaction.NewVerifier(crypto.DefaultDomain(cfg.ChainID)),
		validate: validator.New(),
		cfg:      cfg,
		log:      log,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.logRequests)

	// Market endpoints
	api.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")
	api.HandleFunc("/markets/{pair}/orders", s.handleGetPairOrders).Methods("GET")
	api.HandleFunc("/markets/{pair}/trades", s.handleGetTrades).Methods("GET")

	// Order endpoints
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/trades", s.handleGetOrderTrades).Methods("GET")

	// Account endpoints
	api.HandleFunc("/accounts/transfer", s.handleTransfer).Methods("POST")
	api.HandleFunc("/accounts/{owner}/orders", s.handleGetOwnerOrders).Methods("GET")
	api.HandleFunc("/accounts/{owner}/balances", s.handleGetBalances).Methods("GET")
	api.HandleFunc("/accounts/{owner}/balances/{currency}/entries", s.handleGetEntries).Methods("GET")
	api.HandleFunc("/accounts/{owner}/entries", s.handleGetOwnerEntries).Methods("GET")
	api.HandleFunc("/entries/{id}", s.handleGetEntry).Methods("GET")

	// Funding endpoints, operator only
	funding := api.PathPrefix("/funding").Subrouter()
	funding.Use(s.requireAPIKey)
	funding.HandleFunc("/credit", s.handleCredit).Methods("POST")
	funding.HandleFunc("/debit", s.handleDebit).Methods("POST")

	api.HandleFunc("/audit", s.handleAudit).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", HeaderOwner, HeaderAPIKey},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr and runs the WebSocket hub until ctx is done, then
// shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("api_server_starting", "addr", addr, "auth_mode", s.cfg.AuthMode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debugw("http_request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}
