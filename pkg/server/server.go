// Package server exposes the GeneaFlow facade over HTTP.
//
// The adapter is deliberately thin: handlers decode the request, call one
// facade method, and encode the result. Authorization lives in the facade
// (tree roles); the server only authenticates the bearer token and passes
// the resulting user id down. Every client error is returned as a
// {"message": "..."} payload with a 4xx status; 5xx bodies never leak
// internals.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/DavidMGG/geneaflow/pkg/auth"
	"github.com/DavidMGG/geneaflow/pkg/geneaflow"
	"github.com/DavidMGG/geneaflow/pkg/storage"
	"github.com/DavidMGG/geneaflow/pkg/validate"
)

// Config holds the HTTP listener settings.
type Config struct {
	Address string
	Port    int

	EnableCORS  bool
	CORSOrigins []string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the default listener settings.
func DefaultConfig() *Config {
	return &Config{
		Address:      "0.0.0.0",
		Port:         8080,
		EnableCORS:   true,
		CORSOrigins:  []string{"*"},
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP adapter over a facade and an authenticator.
type Server struct {
	db     *geneaflow.DB
	auth   *auth.Authenticator
	config *Config

	httpServer   *http.Server
	requestCount atomic.Int64
	errorCount   atomic.Int64
	startedAt    time.Time
}

// New builds a server. Both db and authenticator are required.
func New(db *geneaflow.DB, authenticator *auth.Authenticator, config *Config) (*Server, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{db: db, auth: authenticator, config: config}, nil
}

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	s.startedAt = time.Now()
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Address, s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the full middleware-wrapped router. Exposed for tests
// and for embedding under another mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/token", s.handleToken)
	mux.HandleFunc("GET /auth/me", s.withAuth(s.handleMe))
	mux.HandleFunc("POST /auth/password", s.withAuth(s.handlePasswordChange))

	mux.HandleFunc("POST /trees", s.withAuth(s.handleCreateTree))
	mux.HandleFunc("GET /trees", s.withAuth(s.handleListTrees))
	mux.HandleFunc("GET /trees/{treeID}", s.withAuth(s.handleGetTree))
	mux.HandleFunc("PUT /trees/{treeID}", s.withAuth(s.handleRenameTree))
	mux.HandleFunc("DELETE /trees/{treeID}", s.withAuth(s.handleDeleteTree))
	mux.HandleFunc("GET /trees/{treeID}/export", s.withAuth(s.handleExportTree))
	mux.HandleFunc("GET /trees/{treeID}/search", s.withAuth(s.handleSearch))

	mux.HandleFunc("GET /trees/{treeID}/collaborators", s.withAuth(s.handleListCollaborators))
	mux.HandleFunc("POST /trees/{treeID}/collaborators", s.withAuth(s.handleInviteCollaborator))
	mux.HandleFunc("DELETE /trees/{treeID}/collaborators/{userID}", s.withAuth(s.handleRemoveCollaborator))

	mux.HandleFunc("POST /trees/{treeID}/persons", s.withAuth(s.handleCreatePerson))
	mux.HandleFunc("GET /trees/{treeID}/persons", s.withAuth(s.handleListPersons))
	mux.HandleFunc("GET /trees/{treeID}/persons/{personID}", s.withAuth(s.handleGetPerson))
	mux.HandleFunc("PUT /trees/{treeID}/persons/{personID}", s.withAuth(s.handleUpdatePerson))
	mux.HandleFunc("DELETE /trees/{treeID}/persons/{personID}", s.withAuth(s.handleDeletePerson))

	mux.HandleFunc("POST /trees/{treeID}/relationships", s.withAuth(s.handleCreateRelationship))
	mux.HandleFunc("GET /trees/{treeID}/relationships", s.withAuth(s.handleListRelationships))
	mux.HandleFunc("GET /trees/{treeID}/relationships/{relID}", s.withAuth(s.handleGetRelationship))
	mux.HandleFunc("DELETE /trees/{treeID}/relationships/{relID}", s.withAuth(s.handleDeleteRelationship))

	var handler http.Handler = mux
	handler = s.corsMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	return handler
}

type contextKey string

const contextKeyClaims contextKey = "claims"

// claimsFrom returns the verified claims placed by withAuth.
func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(contextKeyClaims).(*auth.Claims)
	return claims
}

// actorFrom returns the acting user id for a request.
func actorFrom(r *http.Request) storage.UserID {
	if claims := claimsFrom(r); claims != nil {
		return claims.UserID()
	}
	return ""
}

// withAuth authenticates the bearer token and stores the claims in the
// request context. Tree-level authorization happens in the facade.
func (s *Server) withAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractToken(
			r.Header.Get("Authorization"),
			getCookie(r, "token"),
			r.URL.Query().Get("token"),
		)
		claims, err := s.auth.ValidateToken(token)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyClaims, claims)
		handler(w, r.WithContext(ctx))
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.EnableCORS {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}
			allowed := false
			for _, o := range s.config.CORSOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.requestCount.Add(1)
		if wrapped.status >= 500 {
			s.errorCount.Add(1)
		}
		if r.URL.Path != "/health" {
			log.Printf("%s %s %d %s", r.Method, r.URL.Path, wrapped.status, time.Since(start).Round(time.Millisecond))
		}
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				log.Printf("panic serving %s %s: %v\n%s", r.Method, r.URL.Path, err, buf[:n])
				s.errorCount.Add(1)
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"message": message})
}

// fail maps a facade error onto a status and a {"message"} payload.
// Unknown errors become opaque 500s.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFromError(err)
	message := err.Error()
	if status >= 500 {
		message = "internal server error"
	}
	s.writeError(w, status, message)
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, geneaflow.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, geneaflow.ErrTreeNotFound):
		return http.StatusNotFound
	case errors.Is(err, geneaflow.ErrAlreadyInvited),
		errors.Is(err, storage.ErrConflict),
		errors.Is(err, storage.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, geneaflow.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrNoCredentials),
		errors.Is(err, auth.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrAccountLocked):
		return http.StatusLocked
	case errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, auth.ErrPasswordTooShort), errors.Is(err, auth.ErrUserNotFound):
		return http.StatusBadRequest
	case validate.IsValidationError(err):
		return validate.StatusFor(err)
	default:
		return http.StatusInternalServerError
	}
}

// decode parses a JSON request body into v.
func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", geneaflow.ErrInvalidInput)
	}
	return nil
}

func getCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
