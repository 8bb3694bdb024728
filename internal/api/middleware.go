package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/julianstephens/tipje/internal/constants"
	"github.com/julianstephens/tipje/internal/family"
	"github.com/julianstephens/tipje/internal/ledger"
	"github.com/julianstephens/tipje/internal/logger"
	"github.com/julianstephens/tipje/internal/models"
)

type ctxKey int

const kidKey ctxKey = iota

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveRequest(r.Method, route, status)
	})
}

// requireGuardian checks the PIN header once a PIN has been set. Before
// that the guardian routes stay open so onboarding can complete.
func (s *Server) requireGuardian(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := s.family.VerifyPIN(r.Context(), r.Header.Get(constants.PINHeader))
		switch {
		case err == nil, errors.Is(err, family.ErrPINNotSet), errors.Is(err, family.ErrAccountNotFound):
			next.ServeHTTP(w, r)
		default:
			writeFailure(w, err)
		}
	})
}

func (s *Server) requireOnboarded(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.gate.Require(r.Context()); err != nil {
			writeFailure(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loadKid(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kid, err := s.family.Kid(r.Context(), chi.URLParam(r, "kid"))
		if err != nil {
			writeFailure(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), kidKey, kid)))
	})
}

func kidFrom(r *http.Request) models.Kid {
	kid, _ := r.Context().Value(kidKey).(models.Kid)
	return kid
}

func (s *Server) ledgerFor(r *http.Request) *ledger.Ledger {
	return s.family.Ledger(kidFrom(r).ID)
}
