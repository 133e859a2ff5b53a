// Package api exposes the settlement engine to the admin UI over HTTP. It is
// deliberately thin: decode, call a service, map the result.
package api

import (
	"context"
	"net/http"
	"time"

	"raffler/domain/interfaces"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// AdminChecker reports whether a wallet may call admin endpoints. Session
// handling and authentication live outside this service.
type AdminChecker func(wallet string) bool

// Server wires the HTTP surface to the domain services
type Server struct {
	settlement interfaces.SettlementService
	winner     interfaces.WinnerService
	lifecycle  interfaces.LifecycleService
	raffleRepo interfaces.RaffleRepository
	entryRepo  interfaces.EntryRepository
	isAdmin    AdminChecker

	httpServer *http.Server
}

// NewServer creates the HTTP server on the given listen address
func NewServer(
	addr string,
	settlement interfaces.SettlementService,
	winner interfaces.WinnerService,
	lifecycle interfaces.LifecycleService,
	raffleRepo interfaces.RaffleRepository,
	entryRepo interfaces.EntryRepository,
	isAdmin AdminChecker,
) *Server {
	s := &Server{
		settlement: settlement,
		winner:     winner,
		lifecycle:  lifecycle,
		raffleRepo: raffleRepo,
		entryRepo:  entryRepo,
		isAdmin:    isAdmin,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Post("/verify", s.handleVerify)
		r.Get("/raffles/{slug}", s.handleGetRaffle)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/raffles/{slug}/draw", s.handleDraw)
			r.Post("/raffles/{slug}/restore", s.handleRestore)
		})
	})

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Start blocks serving HTTP until the listener fails or Shutdown is called
func (s *Server) Start() error {
	log.WithField("addr", s.httpServer.Addr).Info("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// requireAdmin gates admin endpoints on the wallet allowlist. The wallet
// header is trusted here because authentication happens upstream.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet := r.Header.Get("X-Admin-Wallet")
		if wallet == "" || s.isAdmin == nil || !s.isAdmin(wallet) {
			writeJSON(w, http.StatusForbidden, errorResponse{
				Kind:    "FORBIDDEN",
				Message: "admin wallet required",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
