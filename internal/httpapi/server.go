package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"imaged/internal/manager"
	"imaged/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() ([]string, error)
	ListLoRAs() ([]string, error)
	Submit(ctx context.Context, req types.GenerateRequest) (*manager.Image, error)
	Status() types.StatusResponse
	Ready() bool
}

// NewMux builds the router. ui, when non-nil, serves every path the API
// does not claim (the form front end and its static assets).
func NewMux(svc Service, ui http.Handler) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Compression for JSON and HTML; PNG is not in the default type list.
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: orDefault(corsAllowedMethods, []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: orDefault(corsAllowedHeaders, []string{"Content-Type", "X-Log-Level"}),
			ExposedHeaders: []string{"X-Seed", "X-Model-Family", "X-Generation-ID"},
			MaxAge:         300,
		}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
			models, err := svc.ListModels()
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, types.ModelsResponse{Models: models})
		})
		r.Get("/loras", func(w http.ResponseWriter, r *http.Request) {
			loras, err := svc.ListLoRAs()
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, types.LoRAsResponse{LoRAs: loras})
		})
		r.Post("/generate", generateHandler(svc))
	})

	r.Post("/shutdown", func(w http.ResponseWriter, r *http.Request) {
		shutdownMu.Lock()
		fn := shutdownFn
		shutdownMu.Unlock()
		if fn == nil {
			writeJSON(w, types.MessageResponse{Message: "server instance not found"})
			return
		}
		zlog.Info().Str("remote", r.RemoteAddr).Msg("shutdown requested")
		writeJSON(w, types.MessageResponse{Message: "shutting down"})
		go fn()
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	if ui != nil {
		r.Mount("/", ui)
	}
	return r
}

func generateHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		req := types.DefaultGenerateRequest()
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		lvl := requestLogLevel(r)
		start := time.Now()
		if lvl >= LevelDebug {
			zlog.Debug().Str("model", req.ModelName).Str("lora", req.LoRAName).
				Int("steps", req.Steps).Int("width", req.Width).Int("height", req.Height).
				Int64("seed", req.Seed).Msg("generate start")
		}

		ctx, cancel := GenerationContext(r)
		defer cancel()
		img, err := svc.Submit(ctx, req)
		if err != nil {
			// Client went away: nobody to answer.
			if r.Context().Err() != nil {
				return
			}
			status := statusFor(err)
			if serverBaseCtx.Err() != nil {
				status = http.StatusServiceUnavailable
			}
			writeJSONError(w, status, err.Error())
			logGenerate(r, lvl, status, start, err)
			return
		}

		h := w.Header()
		h.Set("Content-Type", "image/png")
		h.Set("Content-Length", strconv.Itoa(len(img.PNG)))
		h.Set("Cache-Control", "no-store")
		h.Set("X-Seed", strconv.FormatInt(img.Seed, 10))
		h.Set("X-Model-Family", string(img.Family))
		h.Set("X-Generation-ID", uuid.NewString())
		w.WriteHeader(http.StatusOK)
		n, _ := w.Write(img.PNG)
		imageBytesTotal.Add(float64(n))
		logGenerate(r, lvl, http.StatusOK, start, nil)
	}
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}
