// Package httpapi exposes the Orchestrator over HTTP with JSON payloads
// (spec §6, "External Interfaces").
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gpumand/pkg/types"
)

// Service defines the methods required by the HTTP API layer. Satisfied
// by *orchestrator.Orchestrator.
type Service interface {
	Status(ctx context.Context) (types.StatusReport, error)
	PrepareForPhase(ctx context.Context, phase int) (bool, error)
	StartService(ctx context.Context, name string) (bool, error)
	StopService(ctx context.Context, name string, force bool) (bool, error)
	ReleaseAll(ctx context.Context) error
	ForceReleaseLock(ctx context.Context) (bool, error)
}

// Readyer reports whether the process is ready to serve traffic.
type Readyer interface {
	Ready() bool
}

func NewMux(svc Service, ready Readyer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			}
			next.ServeHTTP(w, r)
		})
	})

	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	r.Route("/gpu", func(r chi.Router) {
		r.Get("/status", handleStatus(svc))
		r.Post("/prepare-phase/{n}", handlePreparePhase(svc))
		r.Post("/service/{name}/start", handleServiceStart(svc))
		r.Post("/service/{name}/stop", handleServiceStop(svc))
		r.Post("/release-all", handleReleaseAll(svc))
		r.Post("/lock/release", handleLockRelease(svc))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ready == nil || ready.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}

func requestCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return joinContexts(serverBaseCtx, r.Context())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeServiceError(w http.ResponseWriter, err error) {
	if he, ok := err.(HTTPError); ok {
		writeJSONError(w, he.StatusCode(), he.Error())
		return
	}
	writeJSONError(w, http.StatusInternalServerError, err.Error())
}

func handleStatus(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := requestCtx(r)
		defer cancel()
		report, err := svc.Status(ctx)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handlePreparePhase(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(chi.URLParam(r, "n"))
		if err != nil || n < 1 || n > 5 {
			writeJSONError(w, http.StatusBadRequest, "phase must be an integer in [1,5]")
			return
		}
		ctx, cancel := requestCtx(r)
		defer cancel()
		success, err := svc.PrepareForPhase(ctx, n)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.PrepareResponse{Success: success, Phase: n})
	}
}

func handleServiceStart(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		ctx, cancel := requestCtx(r)
		defer cancel()
		success, err := svc.StartService(ctx, name)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.ServiceActionResponse{Success: success, Service: name})
	}
}

func handleServiceStop(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		force := r.URL.Query().Get("force") == "true"
		ctx, cancel := requestCtx(r)
		defer cancel()
		success, err := svc.StopService(ctx, name, force)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.ServiceActionResponse{Success: success, Service: name})
	}
}

func handleReleaseAll(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := requestCtx(r)
		defer cancel()
		if err := svc.ReleaseAll(ctx); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.ReleaseAllResponse{Success: true})
	}
}

func handleLockRelease(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := requestCtx(r)
		defer cancel()
		released, err := svc.ForceReleaseLock(ctx)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.LockReleaseResponse{Released: released})
	}
}
