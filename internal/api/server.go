// Package api exposes the family ledger over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/julianstephens/tipje/internal/catalog"
	"github.com/julianstephens/tipje/internal/constants"
	"github.com/julianstephens/tipje/internal/family"
	"github.com/julianstephens/tipje/internal/logger"
	"github.com/julianstephens/tipje/internal/metrics"
	"github.com/julianstephens/tipje/internal/onboarding"
)

// Server is the tipje HTTP API server
type Server struct {
	family  *family.Family
	gate    *onboarding.Gate
	catalog catalog.Provider
	metrics *metrics.Recorder
}

func NewServer(f *family.Family, cat catalog.Provider) *Server {
	return &Server{family: f, gate: onboarding.NewGate(f), catalog: cat}
}

// EnableMetrics instruments requests and serves /metrics from rec
func (s *Server) EnableMetrics(rec *metrics.Recorder) { s.metrics = rec }

// Handler returns the chi router with all routes mounted
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(requestLogger)
	if s.metrics != nil {
		r.Use(s.instrument)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": constants.Version})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/onboarding", s.handleOnboarding)
		r.Get("/catalog", s.handleCatalog)

		r.Post("/account", s.handleEnsureAccount)
		r.With(s.requireGuardian).Put("/account/pin", s.handleSetPIN)

		r.Get("/kids", s.handleListKids)
		r.With(s.requireGuardian).Post("/kids", s.handleCreateKid)

		r.Route("/kids/{kid}", func(r chi.Router) {
			r.Use(s.loadKid)
			r.Get("/", s.handleGetKid)
			r.With(s.requireGuardian).Delete("/", s.handleDeleteKid)

			r.Get("/cards/{kind}", s.handleListCards)
			r.Group(func(r chi.Router) {
				r.Use(s.requireGuardian)
				r.Post("/cards/{kind}", s.handleAddCard)
				r.Patch("/cards/{kind}/{id}", s.handleUpdateCard)
				r.Delete("/cards/{kind}/{id}", s.handleDeleteCard)
				r.Get("/validate", s.handleValidate)
			})

			r.Get("/basket", s.handleBasket)
			r.Get("/purchases", s.handlePurchases)
			r.Get("/transactions", s.handleTransactions)

			r.Group(func(r chi.Router) {
				r.Use(s.requireOnboarded)
				r.Post("/cards/{kind}/{id}/complete", s.handleComplete)
				r.Post("/rewards/{id}/purchase", s.handlePurchase)
				r.Delete("/purchases/{id}", s.handleRemoveFromBasket)

				r.Group(func(r chi.Router) {
					r.Use(s.requireGuardian)
					r.Post("/purchases/{id}/given", s.handleConfirmGiven)
					r.Post("/balance/reset", s.handleReset)
					r.Post("/balance/adjust", s.handleAdjust)
				})
			})
		})
	})

	return r
}

// Serve runs the API until ctx is cancelled
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("API shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Message: msg, Type: kind}})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errBadRequest{err}
	}
	return nil
}

type errBadRequest struct{ err error }

func (e errBadRequest) Error() string { return "invalid request body: " + e.err.Error() }
func (e errBadRequest) Unwrap() error { return e.err }
