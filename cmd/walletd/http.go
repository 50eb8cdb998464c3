package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dcbstore/internal/processor"
)

// newRouter builds the operator control-plane spec.md §1 calls out of
// scope as a *core* concern but that a running process still needs:
// a health check and pause/resume/reset over each processor's Runtime.
// HTTP is not a consumer surface for the Event Log/Command Executor
// themselves - only for operating the processor fleet.
func newRouter(runtimes map[string]*processor.Runtime) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/processors/{id}", func(r chi.Router) {
		r.Post("/pause", processorAction(runtimes, (*processor.Runtime).Pause))
		r.Post("/resume", processorAction(runtimes, (*processor.Runtime).Resume))
		r.Post("/reset", processorAction(runtimes, (*processor.Runtime).Reset))
	})

	return r
}

func processorAction(runtimes map[string]*processor.Runtime, action func(*processor.Runtime, context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		rt, ok := runtimes[id]
		if !ok {
			http.Error(w, "unknown processor", http.StatusNotFound)
			return
		}
		if err := action(rt, req.Context()); err != nil {
			respondErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func respondErr(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
