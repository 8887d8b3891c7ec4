// cmd/server/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/valeran/chartex/internal/config"
	"github.com/valeran/chartex/pkg/api"
)

func main() {
	configFile := ""
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			log.Fatalf("failed to load configuration: %v", err)
		}
	} else {
		cfg = config.Default()
	}

	ctx := context.Background()
	engine, err := api.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	srv := &server{engine: engine}
	limiter := rate.NewLimiter(rate.Limit(cfg.Server.RequestsPerSecond), cfg.Server.Burst)

	httpServer := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      rateLimitMiddleware(limiter, srv.routes()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", cfg.Server.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

type server struct {
	engine *api.Engine
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.Handle("/metrics", s.engine.Metrics().Handler()).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/extract", s.extractHandler).Methods("POST")
	v1.HandleFunc("/templates", s.listTemplatesHandler).Methods("GET")
	v1.HandleFunc("/patterns", s.listPatternsHandler).Methods("GET")

	return r
}

// extractRequest is the POST /api/v1/extract body. Either URL alone or
// URL plus inline HTML may be supplied.
type extractRequest struct {
	URL            string   `json:"url"`
	HTML           string   `json:"html,omitempty"`
	MinConfidence  *float64 `json:"min_confidence,omitempty"`
	MaxRetries     *int     `json:"max_retries,omitempty"`
	AllowDiscovery *bool    `json:"allow_discovery,omitempty"`
}

func (s *server) extractHandler(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if req.MinConfidence != nil && (*req.MinConfidence < 0 || *req.MinConfidence > 1) {
		writeError(w, http.StatusBadRequest, "min_confidence must be within [0,1]")
		return
	}

	opts := api.Options{
		MinConfidence:  req.MinConfidence,
		MaxRetries:     req.MaxRetries,
		AllowDiscovery: req.AllowDiscovery,
	}

	var result *api.Result
	var err error
	if req.HTML != "" {
		result, err = s.engine.ExtractHTML(r.Context(), req.URL, req.HTML, opts)
	} else {
		result, err = s.engine.ExtractURL(r.Context(), req.URL, opts)
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *server) listTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"templates": s.engine.Templates(),
	})
}

func (s *server) listPatternsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patterns": s.engine.Patterns(),
	})
}

func (s *server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if s.engine.Degraded() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func rateLimitMiddleware(limiter *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
