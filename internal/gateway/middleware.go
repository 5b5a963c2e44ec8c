// ABOUTME: Router construction and HTTP middleware for the gateway
// ABOUTME: chi request ids, slog access logging, CORS and the WebSocket origin check

package gateway

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/nexial/nexial-gateway/internal/auth"
)

func (g *Gateway) routes(logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger.With("component", "http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   g.config.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	requireAuth := auth.HTTPAuthMiddleware(g.store, g.verifier, false)

	r.Get("/", g.handleRoot)
	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", g.handleRegister)
		r.Post("/login", g.handleLogin)
		r.With(requireAuth).Get("/me", g.handleMe)
	})

	r.Route("/chat", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/contacts", g.handleContacts)
		r.Get("/messages/{otherUserID}", g.handleMessages)
		r.Post("/send", g.handleSend)
		r.Post("/assistant", g.handleAssistant)
	})

	// Authenticated inside the handler so a bad token is rejected before the upgrade.
	r.Get("/ws", g.handleWebSocket)

	return r
}

// requestLogger writes one slog line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				level := slog.LevelInfo
				if ww.Status() >= http.StatusInternalServerError {
					level = slog.LevelError
				}
				logger.Log(r.Context(), level, "http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"remote", r.RemoteAddr,
					"request_id", middleware.GetReqID(r.Context()))
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// originChecker builds the WebSocket CheckOrigin function from the CORS list.
// Requests without an Origin header (non-browser clients) are allowed.
func originChecker(allowed []string) func(r *http.Request) bool {
	anyOrigin := slices.Contains(allowed, "*")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || anyOrigin {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}
